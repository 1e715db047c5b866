package processor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zen-systems/sheetpipe/pkg/table"
)

// aggregateData groups rows by key columns and reduces value columns with
// named aggregate functions. Group order follows first appearance unless
// sort_by_groups is set.
type aggregateData struct {
	base
}

type aggregation struct {
	column   string
	function string
	outName  string
}

var aggregateFunctions = map[string]bool{
	"sum":   true,
	"count": true,
	"mean":  true,
	"min":   true,
	"max":   true,
	"first": true,
	"last":  true,
}

func aggregateFunctionNames() []string {
	names := make([]string, 0, len(aggregateFunctions))
	for n := range aggregateFunctions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (p *aggregateData) aggregations() ([]aggregation, error) {
	raw, err := p.listParam("aggregations")
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("step %q: aggregations must be a non-empty list", p.name())
	}
	out := make([]aggregation, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("step %q: aggregation %d must be a mapping", p.name(), i+1)
		}
		col, _ := m["column"].(string)
		fn, _ := m["function"].(string)
		if col == "" || fn == "" {
			return nil, fmt.Errorf("step %q: aggregation %d needs column and function", p.name(), i+1)
		}
		if !aggregateFunctions[fn] {
			return nil, fmt.Errorf("step %q: unknown aggregate function %q (valid: %s)",
				p.name(), fn, strings.Join(aggregateFunctionNames(), ", "))
		}
		// new_column_name with output_name as the older spelling
		name, _ := m["new_column_name"].(string)
		if name == "" {
			name, _ = m["output_name"].(string)
		}
		if name == "" {
			name = col + "_" + fn
		}
		out = append(out, aggregation{column: col, function: fn, outName: name})
	}
	return out, nil
}

func (p *aggregateData) Validate() error {
	if err := p.requireParams("group_by", "aggregations"); err != nil {
		return err
	}
	groupBy, err := p.stringList("group_by")
	if err != nil {
		return err
	}
	if len(groupBy) == 0 {
		return fmt.Errorf("step %q: group_by must not be empty", p.name())
	}
	_, err = p.aggregations()
	return err
}

func (p *aggregateData) Execute(rc *RunContext) (*Outcome, error) {
	groupBy, err := p.stringList("group_by")
	if err != nil {
		return nil, err
	}
	aggs, err := p.aggregations()
	if err != nil {
		return nil, err
	}
	sortGroups := p.boolParam("sort_by_groups", false)

	return runTransform(&p.base, rc, func(rc *RunContext, in *table.Table) (*table.Table, error) {
		keyIdxs := make([]int, len(groupBy))
		for i, col := range groupBy {
			idx, ok := in.ColumnIndex(col)
			if !ok {
				return nil, fmt.Errorf("step %q: group column %q not found (columns: %v)",
					p.name(), col, in.Columns())
			}
			keyIdxs[i] = idx
		}
		aggIdxs := make([]int, len(aggs))
		for i, a := range aggs {
			idx, ok := in.ColumnIndex(a.column)
			if !ok {
				return nil, fmt.Errorf("step %q: aggregate column %q not found (columns: %v)",
					p.name(), a.column, in.Columns())
			}
			aggIdxs[i] = idx
		}

		var keys []string
		groups := make(map[string][][]any)
		for i := 0; i < in.NumRows(); i++ {
			row := in.Row(i)
			key := rowKey(row, keyIdxs)
			if _, seen := groups[key]; !seen {
				keys = append(keys, key)
			}
			groups[key] = append(groups[key], row)
		}
		if sortGroups {
			sort.Strings(keys)
		}

		outCols := append([]string{}, groupBy...)
		for _, a := range aggs {
			outCols = append(outCols, a.outName)
		}
		out := table.New(outCols...)
		for _, key := range keys {
			rows := groups[key]
			result := make([]any, 0, len(outCols))
			for _, idx := range keyIdxs {
				result = append(result, rows[0][idx])
			}
			for i, a := range aggs {
				v, err := reduceColumn(rows, aggIdxs[i], a.function)
				if err != nil {
					return nil, fmt.Errorf("step %q: column %q: %w", p.name(), a.column, err)
				}
				result = append(result, v)
			}
			out.AppendRow(result)
		}
		return out, nil
	})
}

// reduceColumn applies an aggregate function to one column across a group.
// Empty cells are skipped for numeric reductions; count counts non-empty
// cells.
func reduceColumn(rows [][]any, idx int, fn string) (any, error) {
	switch fn {
	case "count":
		n := int64(0)
		for _, row := range rows {
			if !table.IsEmpty(row[idx]) {
				n++
			}
		}
		return n, nil
	case "first":
		for _, row := range rows {
			if !table.IsEmpty(row[idx]) {
				return row[idx], nil
			}
		}
		return nil, nil
	case "last":
		for i := len(rows) - 1; i >= 0; i-- {
			if !table.IsEmpty(rows[i][idx]) {
				return rows[i][idx], nil
			}
		}
		return nil, nil
	case "min", "max":
		var best any
		for _, row := range rows {
			v := row[idx]
			if table.IsEmpty(v) {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			c := table.Compare(v, best)
			if (fn == "min" && c < 0) || (fn == "max" && c > 0) {
				best = v
			}
		}
		return best, nil
	case "sum", "mean":
		total := 0.0
		n := 0
		for _, row := range rows {
			v := row[idx]
			if table.IsEmpty(v) {
				continue
			}
			f, ok := table.AsFloat(v)
			if !ok {
				return nil, fmt.Errorf("%s requires numeric values, got %q", fn, table.AsString(v))
			}
			total += f
			n++
		}
		if fn == "mean" {
			if n == 0 {
				return nil, nil
			}
			return total / float64(n), nil
		}
		return total, nil
	default:
		return nil, fmt.Errorf("unknown aggregate function %q", fn)
	}
}
