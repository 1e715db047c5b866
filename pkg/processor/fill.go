package processor

import (
	"fmt"

	"github.com/zen-systems/sheetpipe/pkg/table"
)

// fillData fills empty cells in the named columns forward, backward, or
// with a constant. A limit caps consecutive fills from one source value.
type fillData struct {
	base
}

func (p *fillData) Validate() error {
	if err := p.requireParams("columns", "fill_method"); err != nil {
		return err
	}
	cols, err := p.stringList("columns")
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return fmt.Errorf("step %q: columns must not be empty", p.name())
	}
	switch method := p.stringParam("fill_method", ""); method {
	case "forward", "backward":
	case "value":
		if _, ok := p.param("fill_value"); !ok {
			return fmt.Errorf("step %q: fill_method value needs fill_value", p.name())
		}
	default:
		return fmt.Errorf("step %q: unknown fill_method %q (valid: forward, backward, value)",
			p.name(), method)
	}
	return nil
}

func (p *fillData) Execute(rc *RunContext) (*Outcome, error) {
	cols, err := p.stringList("columns")
	if err != nil {
		return nil, err
	}
	method := p.stringParam("fill_method", "")
	fillValue, _ := p.param("fill_value")
	limit := p.intParam("limit", 0)

	return runTransform(&p.base, rc, func(rc *RunContext, in *table.Table) (*table.Table, error) {
		out := in.Clone()
		for _, col := range cols {
			idx, ok := out.ColumnIndex(col)
			if !ok {
				return nil, fmt.Errorf("step %q: fill column %q not found (columns: %v)",
					p.name(), col, out.Columns())
			}
			switch method {
			case "value":
				for i := 0; i < out.NumRows(); i++ {
					row := out.Row(i)
					if table.IsEmpty(row[idx]) {
						row[idx] = fillValue
					}
				}
			case "forward":
				fillDirectional(out, idx, limit, false)
			case "backward":
				fillDirectional(out, idx, limit, true)
			}
		}
		return out, nil
	})
}

// fillDirectional propagates the nearest non-empty value down (or up when
// reverse) a column, carrying at most limit cells when limit is positive.
func fillDirectional(t *table.Table, idx, limit int, reverse bool) {
	var carry any
	haveCarry := false
	carried := 0

	n := t.NumRows()
	for step := 0; step < n; step++ {
		i := step
		if reverse {
			i = n - 1 - step
		}
		row := t.Row(i)
		if !table.IsEmpty(row[idx]) {
			carry = row[idx]
			haveCarry = true
			carried = 0
			continue
		}
		if !haveCarry {
			continue
		}
		if limit > 0 && carried >= limit {
			continue
		}
		row[idx] = carry
		carried++
	}
}
