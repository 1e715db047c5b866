package processor

import (
	"fmt"

	"github.com/zen-systems/sheetpipe/pkg/table"
)

// selectColumns keeps or drops a set of columns. Exactly one of the two
// lists must be given; columns_to_keep also reorders.
type selectColumns struct {
	base
}

func (p *selectColumns) Validate() error {
	keep, err := p.stringList("columns_to_keep")
	if err != nil {
		return err
	}
	drop, err := p.stringList("columns_to_drop")
	if err != nil {
		return err
	}
	if (keep == nil) == (drop == nil) {
		return fmt.Errorf("step %q needs exactly one of columns_to_keep or columns_to_drop", p.name())
	}
	if len(keep)+len(drop) == 0 {
		return fmt.Errorf("step %q: column list must not be empty", p.name())
	}
	return nil
}

func (p *selectColumns) Execute(rc *RunContext) (*Outcome, error) {
	keep, err := p.stringList("columns_to_keep")
	if err != nil {
		return nil, err
	}
	drop, err := p.stringList("columns_to_drop")
	if err != nil {
		return nil, err
	}
	return runTransform(&p.base, rc, func(rc *RunContext, in *table.Table) (*table.Table, error) {
		var out *table.Table
		if keep != nil {
			out, err = in.Select(keep)
		} else {
			out, err = in.Drop(drop)
		}
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", p.name(), err)
		}
		return out, nil
	})
}
