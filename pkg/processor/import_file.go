package processor

import (
	"fmt"

	"github.com/zen-systems/sheetpipe/pkg/fileio"
)

// importFile reads an external tabular file into its save_to_stage. The
// only processor with an external source.
type importFile struct {
	base
}

func (p *importFile) Validate() error {
	if err := p.requireParams("input_file"); err != nil {
		return err
	}
	if p.stringParam("input_file", "") == "" {
		return fmt.Errorf("step %q: input_file must be a non-empty string", p.name())
	}
	if format := p.stringParam("format", ""); format != "" {
		if _, err := fileio.DetectFormat("x."+format, format); err != nil {
			return err
		}
	}
	return nil
}

func (p *importFile) Execute(rc *RunContext) (*Outcome, error) {
	path := p.stringParam("input_file", "")

	sep := rune(0)
	if s := p.stringParam("separator", ""); s != "" {
		sep = []rune(s)[0]
	}
	opts := fileio.ReadOptions{
		Sheet:     p.stringParam("sheet", ""),
		Separator: sep,
		Format:    p.stringParam("format", ""),
	}
	if idx := p.intParam("sheet_index", 0); idx > 0 {
		opts.SheetIndex = idx
	}

	t, err := fileio.ReadTable(path, opts)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", path, err)
	}
	if err := p.saveResult(rc, t); err != nil {
		return nil, err
	}
	rc.Log.Info("imported file", "file", path, "rows", t.NumRows(), "cols", t.NumCols())
	return &Outcome{RowsIn: t.NumRows(), RowsOut: t.NumRows(), Info: "imported " + path}, nil
}
