package table

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AsString renders a cell for display and CSV output. Nil renders as the
// empty string; floats use the shortest round-trip form.
func AsString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format("2006-01-02")
	default:
		return fmt.Sprintf("%v", x)
	}
}

// AsFloat attempts a numeric view of a cell.
func AsFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// IsEmpty reports whether a cell is nil or a blank string.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// Coerce parses a raw string cell into a typed value: int64 when it is an
// integer, float64 when numeric, otherwise the string unchanged. Empty
// strings stay empty strings so downstream cleaning rules can see them.
func Coerce(s string) any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	return s
}

// Compare orders two cells: numerically when both have numeric views,
// otherwise by string form. Nil sorts before everything.
func Compare(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	fa, aok := AsFloat(a)
	fb, bok := AsFloat(b)
	if aok && bok {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(AsString(a), AsString(b))
}

// Equal reports cell equality under Compare's rules.
func Equal(a, b any) bool { return Compare(a, b) == 0 }
