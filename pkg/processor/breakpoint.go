package processor

import (
	"fmt"

	"github.com/zen-systems/sheetpipe/pkg/fileio"
)

// debugBreakpoint dumps the source stage to a timestamped file and halts
// the run. The halt is a deliberate terminal state, not a failure; later
// steps simply do not run.
type debugBreakpoint struct {
	base
}

func (p *debugBreakpoint) Validate() error {
	if format := p.stringParam("format", ""); format != "" {
		switch format {
		case fileio.FormatXLSX, fileio.FormatCSV, fileio.FormatTSV:
		default:
			return fmt.Errorf("step %q: unknown dump format %q (valid: csv, tsv, xlsx)", p.name(), format)
		}
	}
	return nil
}

func (p *debugBreakpoint) Execute(rc *RunContext) (*Outcome, error) {
	// A breakpoint without source_stage dumps whatever the pipeline most
	// recently produced.
	source := p.step.SourceStage
	if source == "" {
		source = rc.Stages.LastSaved()
		if source == "" {
			return nil, fmt.Errorf("step %q: no stage has been populated yet; nothing to dump", p.name())
		}
	}
	t, err := rc.Stages.Load(source)
	if err != nil {
		return nil, err
	}
	path, err := fileio.WriteDump(t, fileio.DumpOptions{
		Dir:              p.stringParam("output_path", ""),
		Prefix:           p.stringParam("filename_prefix", ""),
		IncludeTimestamp: p.boolParam("include_timestamp", true),
		Format:           p.stringParam("format", ""),
		Now:              rc.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("breakpoint dump: %w", err)
	}
	msg := p.stringParam("message", "")
	if msg == "" {
		msg = "breakpoint reached, inspect " + path
	}
	rc.Log.Info("debug breakpoint", "step", p.name(), "dump", path, "rows", t.NumRows())
	return &Outcome{RowsIn: t.NumRows(), RowsOut: t.NumRows(), Halt: true, DumpPath: path, Info: msg}, nil
}
