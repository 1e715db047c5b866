package processor

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/zen-systems/sheetpipe/pkg/table"
)

// cleanData applies an ordered list of cleaning rules to columns.
type cleanData struct {
	base
}

type cleanRule struct {
	action      string
	columns     []string
	oldValue    any
	newValue    any
	pattern     *regexp.Regexp
	replacement string
	fillValue   any
}

var cleanActions = map[string]bool{
	"strip_whitespace":       true,
	"normalize_whitespace":   true,
	"remove_invisible_chars": true,
	"uppercase":              true,
	"lowercase":              true,
	"title_case":             true,
	"replace":                true,
	"regex_replace":          true,
	"fill_empty":             true,
	"remove_duplicates":      true,
}

func cleanActionNames() []string {
	names := make([]string, 0, len(cleanActions))
	for n := range cleanActions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (p *cleanData) rules() ([]cleanRule, error) {
	raw, err := p.listParam("rules")
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("step %q: rules must be a non-empty list", p.name())
	}
	out := make([]cleanRule, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("step %q: rule %d must be a mapping", p.name(), i+1)
		}
		action, _ := m["action"].(string)
		if !cleanActions[action] {
			return nil, fmt.Errorf("step %q: unknown clean action %q (valid: %s)",
				p.name(), action, strings.Join(cleanActionNames(), ", "))
		}
		r := cleanRule{action: action}
		switch cols := m["columns"].(type) {
		case nil:
		case string:
			r.columns = []string{cols}
		case []any:
			for _, c := range cols {
				s, ok := c.(string)
				if !ok {
					return nil, fmt.Errorf("step %q: rule %d columns must be strings", p.name(), i+1)
				}
				r.columns = append(r.columns, s)
			}
		default:
			return nil, fmt.Errorf("step %q: rule %d columns must be a string or list", p.name(), i+1)
		}
		switch action {
		case "replace":
			old, ok := m["old_value"]
			if !ok {
				return nil, fmt.Errorf("step %q: rule %d replace needs old_value", p.name(), i+1)
			}
			r.oldValue = old
			r.newValue = m["new_value"]
		case "regex_replace":
			pat, _ := m["pattern"].(string)
			if pat == "" {
				return nil, fmt.Errorf("step %q: rule %d regex_replace needs pattern", p.name(), i+1)
			}
			re, err := regexp.Compile(pat)
			if err != nil {
				return nil, fmt.Errorf("step %q: rule %d invalid pattern: %w", p.name(), i+1, err)
			}
			r.pattern = re
			r.replacement, _ = m["replacement"].(string)
		case "fill_empty":
			fill, ok := m["fill_value"]
			if !ok {
				return nil, fmt.Errorf("step %q: rule %d fill_empty needs fill_value", p.name(), i+1)
			}
			r.fillValue = fill
		}
		if action != "remove_duplicates" && len(r.columns) == 0 {
			return nil, fmt.Errorf("step %q: rule %d action %q needs columns", p.name(), i+1, action)
		}
		out = append(out, r)
	}
	return out, nil
}

func (p *cleanData) Validate() error {
	if err := p.requireParams("rules"); err != nil {
		return err
	}
	_, err := p.rules()
	return err
}

func (p *cleanData) Execute(rc *RunContext) (*Outcome, error) {
	rules, err := p.rules()
	if err != nil {
		return nil, err
	}
	return runTransform(&p.base, rc, func(rc *RunContext, in *table.Table) (*table.Table, error) {
		out := in.Clone()
		for _, r := range rules {
			var err error
			if r.action == "remove_duplicates" {
				out, err = removeDuplicates(out, r.columns)
			} else {
				err = applyCellRule(out, r, p.name())
			}
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	})
}

func applyCellRule(t *table.Table, r cleanRule, step string) error {
	for _, col := range r.columns {
		idx, ok := t.ColumnIndex(col)
		if !ok {
			return fmt.Errorf("step %q: clean column %q not found (columns: %v)", step, col, t.Columns())
		}
		for i := 0; i < t.NumRows(); i++ {
			row := t.Row(i)
			row[idx] = cleanCell(row[idx], r)
		}
	}
	return nil
}

func cleanCell(v any, r cleanRule) any {
	switch r.action {
	case "fill_empty":
		if table.IsEmpty(v) {
			return r.fillValue
		}
		return v
	case "replace":
		if table.Equal(v, r.oldValue) {
			return r.newValue
		}
		return v
	}
	// The remaining actions operate on text only.
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch r.action {
	case "strip_whitespace":
		return strings.TrimSpace(s)
	case "normalize_whitespace":
		return strings.Join(strings.Fields(s), " ")
	case "remove_invisible_chars":
		return strings.Map(func(r rune) rune {
			if r != ' ' && r != '\t' && (unicode.IsControl(r) || !unicode.IsPrint(r)) {
				return -1
			}
			return r
		}, s)
	case "uppercase":
		return strings.ToUpper(s)
	case "lowercase":
		return strings.ToLower(s)
	case "title_case":
		return titleCase(s)
	case "regex_replace":
		return r.pattern.ReplaceAllString(s, r.replacement)
	}
	return v
}

func titleCase(s string) string {
	var b strings.Builder
	startOfWord := true
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			startOfWord = true
			b.WriteRune(r)
		case startOfWord:
			b.WriteRune(unicode.ToUpper(r))
			startOfWord = false
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// removeDuplicates keeps the first occurrence of each key. An empty column
// list dedupes on the whole row.
func removeDuplicates(t *table.Table, columns []string) (*table.Table, error) {
	idxs := make([]int, 0, len(columns))
	if len(columns) == 0 {
		for i := 0; i < t.NumCols(); i++ {
			idxs = append(idxs, i)
		}
	} else {
		for _, col := range columns {
			idx, ok := t.ColumnIndex(col)
			if !ok {
				return nil, fmt.Errorf("dedupe column %q not found (columns: %v)", col, t.Columns())
			}
			idxs = append(idxs, idx)
		}
	}
	seen := make(map[string]bool, t.NumRows())
	return t.Filter(func(row []any) (bool, error) {
		key := rowKey(row, idxs)
		if seen[key] {
			return false, nil
		}
		seen[key] = true
		return true, nil
	})
}

func rowKey(row []any, idxs []int) string {
	parts := make([]string, len(idxs))
	for i, idx := range idxs {
		parts[i] = table.AsString(row[idx])
	}
	return strings.Join(parts, "\x1f")
}
