package processor

import (
	"fmt"
	"strings"

	"github.com/zen-systems/sheetpipe/pkg/table"
)

// sortData sorts rows by one or more columns, with optional per-column
// direction, custom value orderings, and empty-cell positioning.
type sortData struct {
	base
}

func (p *sortData) Validate() error {
	if err := p.requireParams("columns"); err != nil {
		return err
	}
	cols, err := p.stringList("columns")
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return fmt.Errorf("step %q: columns must not be empty", p.name())
	}
	if _, err := p.ascending(len(cols)); err != nil {
		return err
	}
	switch na := p.stringParam("na_position", "last"); na {
	case "first", "last":
	default:
		return fmt.Errorf("step %q: na_position must be first or last, got %q", p.name(), na)
	}
	if _, err := p.customOrders(); err != nil {
		return err
	}
	return nil
}

// ascending accepts a single bool applied to all columns or a per-column
// bool list.
func (p *sortData) ascending(n int) ([]bool, error) {
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	v, ok := p.param("ascending")
	if !ok {
		return out, nil
	}
	switch x := v.(type) {
	case bool:
		for i := range out {
			out[i] = x
		}
	case []any:
		if len(x) != n {
			return nil, fmt.Errorf("step %q: ascending list has %d entries for %d columns",
				p.name(), len(x), n)
		}
		for i, item := range x {
			b, ok := item.(bool)
			if !ok {
				return nil, fmt.Errorf("step %q: ascending entries must be booleans", p.name())
			}
			out[i] = b
		}
	default:
		return nil, fmt.Errorf("step %q: ascending must be a boolean or list of booleans", p.name())
	}
	return out, nil
}

// customOrders maps column name to value rank. Unlisted values sort after
// listed ones.
func (p *sortData) customOrders() (map[string]map[string]int, error) {
	raw, err := p.mapParam("custom_orders")
	if err != nil || raw == nil {
		return nil, err
	}
	out := make(map[string]map[string]int, len(raw))
	for col, orderRaw := range raw {
		order, ok := orderRaw.([]any)
		if !ok {
			return nil, fmt.Errorf("step %q: custom_orders for %q must be a list", p.name(), col)
		}
		ranks := make(map[string]int, len(order))
		for i, v := range order {
			ranks[table.AsString(v)] = i
		}
		out[col] = ranks
	}
	return out, nil
}

func (p *sortData) Execute(rc *RunContext) (*Outcome, error) {
	cols, err := p.stringList("columns")
	if err != nil {
		return nil, err
	}
	ascending, err := p.ascending(len(cols))
	if err != nil {
		return nil, err
	}
	customOrders, err := p.customOrders()
	if err != nil {
		return nil, err
	}
	ignoreCase := p.boolParam("ignore_case", false)
	naFirst := p.stringParam("na_position", "last") == "first"

	return runTransform(&p.base, rc, func(rc *RunContext, in *table.Table) (*table.Table, error) {
		idxs := make([]int, len(cols))
		for i, col := range cols {
			idx, ok := in.ColumnIndex(col)
			if !ok {
				return nil, fmt.Errorf("step %q: sort column %q not found (columns: %v)",
					p.name(), col, in.Columns())
			}
			idxs[i] = idx
		}
		out := in.Clone()
		out.SortStable(func(a, b []any) bool {
			for i, idx := range idxs {
				c := compareCells(a[idx], b[idx], customOrders[cols[i]], ignoreCase, naFirst)
				if c == 0 {
					continue
				}
				if !ascending[i] {
					c = -c
				}
				return c < 0
			}
			return false
		})
		return out, nil
	})
}

func compareCells(a, b any, ranks map[string]int, ignoreCase, naFirst bool) int {
	aEmpty, bEmpty := table.IsEmpty(a), table.IsEmpty(b)
	if aEmpty || bEmpty {
		switch {
		case aEmpty && bEmpty:
			return 0
		case aEmpty == naFirst:
			return -1
		default:
			return 1
		}
	}
	if ranks != nil {
		ra, aok := ranks[table.AsString(a)]
		rb, bok := ranks[table.AsString(b)]
		switch {
		case aok && bok:
			return ra - rb
		case aok:
			return -1
		case bok:
			return 1
		}
	}
	if ignoreCase {
		if sa, ok := a.(string); ok {
			a = strings.ToLower(sa)
		}
		if sb, ok := b.(string); ok {
			b = strings.ToLower(sb)
		}
	}
	return table.Compare(a, b)
}
