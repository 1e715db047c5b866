package processor

import (
	"fmt"

	"github.com/zen-systems/sheetpipe/pkg/table"
)

// sliceData takes a row range, head, or tail of the data. Row ranges are
// 1-based and inclusive; out-of-range bounds clamp rather than fail.
type sliceData struct {
	base
}

func (p *sliceData) Validate() error {
	if err := p.requireParams("slice_type"); err != nil {
		return err
	}
	switch st := p.stringParam("slice_type", ""); st {
	case "row_range":
		if _, ok := p.param("start_row"); !ok {
			return fmt.Errorf("step %q: row_range needs start_row", p.name())
		}
		if p.intParam("start_row", 0) < 1 {
			return fmt.Errorf("step %q: start_row is 1-based and must be positive", p.name())
		}
		if end, ok := p.param("end_row"); ok {
			if n, ok := toInt(end); !ok || n < p.intParam("start_row", 1) {
				return fmt.Errorf("step %q: end_row must be an integer >= start_row", p.name())
			}
		}
	case "head", "tail":
		if p.intParam("num_rows", 0) < 1 {
			return fmt.Errorf("step %q: %s needs a positive num_rows", p.name(), st)
		}
	default:
		return fmt.Errorf("step %q: unknown slice_type %q (valid: row_range, head, tail)", p.name(), st)
	}
	return nil
}

func (p *sliceData) Execute(rc *RunContext) (*Outcome, error) {
	sliceType := p.stringParam("slice_type", "")
	return runTransform(&p.base, rc, func(rc *RunContext, in *table.Table) (*table.Table, error) {
		switch sliceType {
		case "row_range":
			start := p.intParam("start_row", 1)
			end := in.NumRows()
			if _, ok := p.param("end_row"); ok {
				end = p.intParam("end_row", end)
			}
			return in.Slice(start-1, end), nil
		case "head":
			return in.Slice(0, p.intParam("num_rows", 0)), nil
		default: // tail
			n := p.intParam("num_rows", 0)
			return in.Slice(in.NumRows()-n, in.NumRows()), nil
		}
	})
}
