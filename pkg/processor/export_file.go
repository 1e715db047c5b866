package processor

import (
	"fmt"

	"github.com/zen-systems/sheetpipe/pkg/fileio"
)

// exportFile writes its source_stage to an external file. The only
// processor with an external destination.
type exportFile struct {
	base
}

func (p *exportFile) Validate() error {
	if err := p.requireParams("output_file"); err != nil {
		return err
	}
	if p.stringParam("output_file", "") == "" {
		return fmt.Errorf("step %q: output_file must be a non-empty string", p.name())
	}
	return nil
}

func (p *exportFile) Execute(rc *RunContext) (*Outcome, error) {
	t, err := p.loadSource(rc)
	if err != nil {
		return nil, err
	}
	path := p.stringParam("output_file", "")
	opts := fileio.WriteOptions{
		SheetName:    p.stringParam("sheet_name", "Data"),
		Format:       p.stringParam("format", ""),
		CreateBackup: p.boolParam("create_backup", true),
		Now:          rc.Now,
	}
	if err := fileio.WriteTable(path, t, opts); err != nil {
		return nil, fmt.Errorf("export %s: %w", path, err)
	}
	rc.Log.Info("exported file", "file", path, "rows", t.NumRows())
	return &Outcome{RowsIn: t.NumRows(), RowsOut: t.NumRows(), Info: "exported " + path}, nil
}
