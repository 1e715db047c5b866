package processor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zen-systems/sheetpipe/pkg/table"
)

// filterData keeps rows matching every condition in an ordered filter list.
type filterData struct {
	base
}

type filterCond struct {
	column    string
	condition string
	value     any
}

var filterConditions = map[string]bool{
	"equals":        true,
	"not_equals":    true,
	"contains":      true,
	"not_contains":  true,
	"starts_with":   true,
	"ends_with":     true,
	"greater_than":  true,
	"less_than":     true,
	"greater_equal": true,
	"less_equal":    true,
	"not_empty":     true,
	"is_empty":      true,
	"in_list":       true,
	"not_in_list":   true,
}

func (p *filterData) conditions() ([]filterCond, error) {
	raw, err := p.listParam("filters")
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("step %q: filters must be a non-empty list", p.name())
	}
	out := make([]filterCond, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("step %q: filter %d must be a mapping", p.name(), i+1)
		}
		col, _ := m["column"].(string)
		cond, _ := m["condition"].(string)
		if col == "" || cond == "" {
			return nil, fmt.Errorf("step %q: filter %d needs column and condition", p.name(), i+1)
		}
		if !filterConditions[cond] {
			return nil, fmt.Errorf("step %q: unknown filter condition %q (valid: %s)",
				p.name(), cond, strings.Join(conditionNames(), ", "))
		}
		fc := filterCond{column: col, condition: cond, value: m["value"]}
		switch cond {
		case "not_empty", "is_empty":
		case "in_list", "not_in_list":
			if _, ok := fc.value.([]any); !ok {
				return nil, fmt.Errorf("step %q: filter %d condition %q needs a list value", p.name(), i+1, cond)
			}
		default:
			if _, ok := m["value"]; !ok {
				return nil, fmt.Errorf("step %q: filter %d condition %q needs a value", p.name(), i+1, cond)
			}
		}
		out = append(out, fc)
	}
	return out, nil
}

func conditionNames() []string {
	names := make([]string, 0, len(filterConditions))
	for n := range filterConditions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (p *filterData) Validate() error {
	if err := p.requireParams("filters"); err != nil {
		return err
	}
	_, err := p.conditions()
	return err
}

func (p *filterData) Execute(rc *RunContext) (*Outcome, error) {
	conds, err := p.conditions()
	if err != nil {
		return nil, err
	}
	return runTransform(&p.base, rc, func(rc *RunContext, in *table.Table) (*table.Table, error) {
		for _, c := range conds {
			if !in.HasColumn(c.column) {
				return nil, fmt.Errorf("step %q: filter column %q not found (columns: %v)",
					p.name(), c.column, in.Columns())
			}
		}
		out, err := in.Filter(func(row []any) (bool, error) {
			for _, c := range conds {
				idx, _ := in.ColumnIndex(c.column)
				ok, err := matchCondition(row[idx], c.condition, c.value)
				if err != nil {
					return false, fmt.Errorf("step %q: %w", p.name(), err)
				}
				if !ok {
					return false, nil
				}
			}
			return true, nil
		})
		if err != nil {
			return nil, err
		}
		rc.Log.Info("filtered rows", "step", p.name(), "in", in.NumRows(), "out", out.NumRows())
		return out, nil
	})
}

func matchCondition(cell any, condition string, want any) (bool, error) {
	switch condition {
	case "equals":
		return table.Equal(cell, want), nil
	case "not_equals":
		return !table.Equal(cell, want), nil
	case "contains":
		return strings.Contains(table.AsString(cell), table.AsString(want)), nil
	case "not_contains":
		return !strings.Contains(table.AsString(cell), table.AsString(want)), nil
	case "starts_with":
		return strings.HasPrefix(table.AsString(cell), table.AsString(want)), nil
	case "ends_with":
		return strings.HasSuffix(table.AsString(cell), table.AsString(want)), nil
	case "greater_than":
		return table.Compare(cell, want) > 0, nil
	case "less_than":
		return table.Compare(cell, want) < 0, nil
	case "greater_equal":
		return table.Compare(cell, want) >= 0, nil
	case "less_equal":
		return table.Compare(cell, want) <= 0, nil
	case "not_empty":
		return !table.IsEmpty(cell), nil
	case "is_empty":
		return table.IsEmpty(cell), nil
	case "in_list":
		list, _ := want.([]any)
		for _, item := range list {
			if table.Equal(cell, item) {
				return true, nil
			}
		}
		return false, nil
	case "not_in_list":
		list, _ := want.([]any)
		for _, item := range list {
			if table.Equal(cell, item) {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("unknown filter condition %q", condition)
	}
}
