package processor

import (
	"fmt"
	"strings"

	"github.com/zen-systems/sheetpipe/pkg/table"
)

// addSubtotals inserts a subtotal row after every run of equal group_by
// values, and optionally a grand total row at the end. Rows are assumed
// pre-sorted by the group columns; a re-appearing key starts a new run.
type addSubtotals struct {
	base
}

func (p *addSubtotals) Validate() error {
	if err := p.requireParams("group_by", "subtotal_columns"); err != nil {
		return err
	}
	groupBy, err := p.stringList("group_by")
	if err != nil {
		return err
	}
	if len(groupBy) == 0 {
		return fmt.Errorf("step %q: group_by must not be empty", p.name())
	}
	cols, err := p.stringList("subtotal_columns")
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return fmt.Errorf("step %q: subtotal_columns must not be empty", p.name())
	}
	fns, err := p.functions(len(cols))
	if err != nil {
		return err
	}
	for _, fn := range fns {
		switch fn {
		case "sum", "count", "mean", "min", "max":
		default:
			return fmt.Errorf("step %q: unknown subtotal function %q (valid: count, max, mean, min, sum)",
				p.name(), fn)
		}
	}
	return nil
}

// functions accepts a single function applied to all subtotal columns or a
// per-column list.
func (p *addSubtotals) functions(n int) ([]string, error) {
	fns, err := p.stringList("subtotal_functions")
	if err != nil {
		return nil, err
	}
	switch len(fns) {
	case 0:
		out := make([]string, n)
		for i := range out {
			out[i] = "sum"
		}
		return out, nil
	case 1:
		out := make([]string, n)
		for i := range out {
			out[i] = fns[0]
		}
		return out, nil
	case n:
		return fns, nil
	default:
		return nil, fmt.Errorf("step %q: subtotal_functions has %d entries for %d columns",
			p.name(), len(fns), n)
	}
}

func (p *addSubtotals) Execute(rc *RunContext) (*Outcome, error) {
	groupBy, err := p.stringList("group_by")
	if err != nil {
		return nil, err
	}
	subCols, err := p.stringList("subtotal_columns")
	if err != nil {
		return nil, err
	}
	fns, err := p.functions(len(subCols))
	if err != nil {
		return nil, err
	}
	label := p.stringParam("subtotal_label", "Subtotal")
	grandTotal := p.boolParam("grand_total", false)

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
		subIdxs := make([]int, len(subCols))
		for i, col := range subCols {
			idx, ok := in.ColumnIndex(col)
			if !ok {
				return nil, fmt.Errorf("step %q: subtotal column %q not found (columns: %v)",
					p.name(), col, in.Columns())
			}
			subIdxs[i] = idx
		}

		out := table.New(in.Columns()...)
		makeTotal := func(rows [][]any, rowLabel string) ([]any, error) {
			total := make([]any, in.NumCols())
			total[keyIdxs[0]] = rowLabel
			for i, idx := range subIdxs {
				v, err := reduceColumn(rows, idx, fns[i])
				if err != nil {
					return nil, fmt.Errorf("step %q: column %q: %w", p.name(), subCols[i], err)
				}
				total[idx] = v
			}
			return total, nil
		}

		var run [][]any
		var runKey string
		var all [][]any
		flush := func() error {
			if len(run) == 0 {
				return nil
			}
			groupName := table.AsString(run[0][keyIdxs[0]])
			total, err := makeTotal(run, groupName+" "+label)
			if err != nil {
				return err
			}
			out.AppendRow(total)
			run = nil
			return nil
		}
		for i := 0; i < in.NumRows(); i++ {
			row := in.Row(i)
			key := rowKey(row, keyIdxs)
			if len(run) > 0 && key != runKey {
				if err := flush(); err != nil {
					return nil, err
				}
			}
			runKey = key
			run = append(run, row)
			all = append(all, row)
			out.AppendRow(row)
		}
		if err := flush(); err != nil {
			return nil, err
		}
		if grandTotal && len(all) > 0 {
			total, err := makeTotal(all, grandTotalLabel(label))
			if err != nil {
				return nil, err
			}
			out.AppendRow(total)
		}
		return out, nil
	})
}

func grandTotalLabel(label string) string {
	if strings.EqualFold(label, "subtotal") {
		return "Grand Total"
	}
	return "Grand " + label
}
