package processor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zen-systems/sheetpipe/pkg/table"
)

// pivotTable cross-tabulates rows: index columns become row keys, the
// distinct values of the columns field become new columns, and the values
// field is reduced per cell with aggfunc.
type pivotTable struct {
	base
}

func (p *pivotTable) Validate() error {
	if err := p.requireParams("index", "values"); err != nil {
		return err
	}
	index, err := p.stringList("index")
	if err != nil {
		return err
	}
	if len(index) == 0 {
		return fmt.Errorf("step %q: index must not be empty", p.name())
	}
	if p.stringParam("values", "") == "" {
		return fmt.Errorf("step %q: values must name a column", p.name())
	}
	if fn := p.stringParam("aggfunc", "sum"); !aggregateFunctions[fn] {
		return fmt.Errorf("step %q: unknown aggfunc %q (valid: %s)",
			p.name(), fn, strings.Join(aggregateFunctionNames(), ", "))
	}
	return nil
}

func (p *pivotTable) Execute(rc *RunContext) (*Outcome, error) {
	index, err := p.stringList("index")
	if err != nil {
		return nil, err
	}
	valuesCol := p.stringParam("values", "")
	columnsCol := p.stringParam("columns", "")
	aggfunc := p.stringParam("aggfunc", "sum")
	fillValue, hasFill := p.param("fill_value")

	return runTransform(&p.base, rc, func(rc *RunContext, in *table.Table) (*table.Table, error) {
		idxIdxs := make([]int, len(index))
		for i, col := range index {
			idx, ok := in.ColumnIndex(col)
			if !ok {
				return nil, fmt.Errorf("step %q: index column %q not found (columns: %v)",
					p.name(), col, in.Columns())
			}
			idxIdxs[i] = idx
		}
		valIdx, ok := in.ColumnIndex(valuesCol)
		if !ok {
			return nil, fmt.Errorf("step %q: values column %q not found (columns: %v)",
				p.name(), valuesCol, in.Columns())
		}
		colIdx := -1
		if columnsCol != "" {
			colIdx, ok = in.ColumnIndex(columnsCol)
			if !ok {
				return nil, fmt.Errorf("step %q: columns column %q not found (columns: %v)",
					p.name(), columnsCol, in.Columns())
			}
		}

		// bucket values by (row key, pivoted column name)
		type bucket struct{ rows [][]any }
		var rowKeys []string
		rowHead := make(map[string][]any)
		cells := make(map[string]map[string]*bucket)
		colSet := make(map[string]bool)
		for i := 0; i < in.NumRows(); i++ {
			row := in.Row(i)
			key := rowKey(row, idxIdxs)
			if _, seen := cells[key]; !seen {
				rowKeys = append(rowKeys, key)
				cells[key] = make(map[string]*bucket)
				head := make([]any, len(idxIdxs))
				for j, idx := range idxIdxs {
					head[j] = row[idx]
				}
				rowHead[key] = head
			}
			colName := valuesCol
			if colIdx >= 0 {
				colName = table.AsString(row[colIdx])
			}
			colSet[colName] = true
			b := cells[key][colName]
			if b == nil {
				b = &bucket{}
				cells[key][colName] = b
			}
			b.rows = append(b.rows, row)
		}

		pivotCols := make([]string, 0, len(colSet))
		for c := range colSet {
			pivotCols = append(pivotCols, c)
		}
		sort.Strings(pivotCols)

		out := table.New(append(append([]string{}, index...), pivotCols...)...)
		for _, key := range rowKeys {
			result := append([]any{}, rowHead[key]...)
			for _, col := range pivotCols {
				b := cells[key][col]
				if b == nil {
					if hasFill {
						result = append(result, fillValue)
					} else {
						result = append(result, nil)
					}
					continue
				}
				v, err := reduceColumn(b.rows, valIdx, aggfunc)
				if err != nil {
					return nil, fmt.Errorf("step %q: %w", p.name(), err)
				}
				result = append(result, v)
			}
			out.AppendRow(result)
		}
		return out, nil
	})
}
