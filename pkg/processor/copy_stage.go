package processor

import (
	"github.com/zen-systems/sheetpipe/pkg/table"
)

// copyStage copies one stage's data verbatim to another stage. The stage
// store clones on both load and save, so the copy is fully isolated.
type copyStage struct {
	base
}

func (p *copyStage) Validate() error { return nil }

func (p *copyStage) Execute(rc *RunContext) (*Outcome, error) {
	return runTransform(&p.base, rc, func(rc *RunContext, in *table.Table) (*table.Table, error) {
		return in, nil
	})
}
