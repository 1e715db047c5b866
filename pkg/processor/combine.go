package processor

import (
	"fmt"

	"github.com/zen-systems/sheetpipe/pkg/table"
)

// combineData stacks multiple stages into one table, either vertically
// (rows appended in order) or horizontally (columns side by side), with
// optional blank separator rows or columns between sections.
type combineData struct {
	base
}

// combineSource is one entry of data_sources: exactly one of a stage
// reference, a blank-row run, or a blank-column run.
type combineSource struct {
	stage     string
	blankRows int
	blankCols int
	// retainHeader overrides the column_handling default for whether the
	// section's column names are inserted as its first data row.
	retainHeader *bool
}

func (p *combineData) Validate() error {
	if err := p.requireParams("combine_type", "column_handling", "data_sources"); err != nil {
		return err
	}
	combineType := p.stringParam("combine_type", "")
	switch combineType {
	case "vertical_stack", "horizontal_concat":
	default:
		return fmt.Errorf("step %q: combine_type must be vertical_stack or horizontal_concat, got %q",
			p.name(), combineType)
	}
	switch ch := p.stringParam("column_handling", ""); ch {
	case "require_matching_columns", "allow_mismatched_columns":
	default:
		return fmt.Errorf("step %q: column_handling must be require_matching_columns or allow_mismatched_columns, got %q",
			p.name(), ch)
	}
	_, err := p.sources(combineType)
	return err
}

func (p *combineData) sources(combineType string) ([]combineSource, error) {
	raw, err := p.listParam("data_sources")
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("step %q: data_sources must be a non-empty list", p.name())
	}
	out := make([]combineSource, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("step %q: data source %d must be a mapping", p.name(), i+1)
		}
		var cs combineSource
		ops := 0
		if v, ok := m["insert_from_stage"]; ok {
			ops++
			cs.stage, _ = v.(string)
			if cs.stage == "" {
				return nil, fmt.Errorf("step %q: data source %d: insert_from_stage must name a stage", p.name(), i+1)
			}
		}
		if v, ok := m["insert_blank_rows"]; ok {
			ops++
			if combineType != "vertical_stack" {
				return nil, fmt.Errorf("step %q: data source %d: insert_blank_rows only applies to vertical_stack", p.name(), i+1)
			}
			n, ok := toInt(v)
			if !ok || n < 0 {
				return nil, fmt.Errorf("step %q: data source %d: insert_blank_rows must be a non-negative integer", p.name(), i+1)
			}
			cs.blankRows = n
		}
		if v, ok := m["insert_blank_cols"]; ok {
			ops++
			if combineType != "horizontal_concat" {
				return nil, fmt.Errorf("step %q: data source %d: insert_blank_cols only applies to horizontal_concat", p.name(), i+1)
			}
			n, ok := toInt(v)
			if !ok || n < 0 {
				return nil, fmt.Errorf("step %q: data source %d: insert_blank_cols must be a non-negative integer", p.name(), i+1)
			}
			cs.blankCols = n
		}
		if ops != 1 {
			return nil, fmt.Errorf("step %q: data source %d must have exactly one of insert_from_stage, insert_blank_rows, insert_blank_cols",
				p.name(), i+1)
		}
		if v, ok := m["retain_column_names"]; ok {
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("step %q: data source %d: retain_column_names must be a boolean", p.name(), i+1)
			}
			if cs.stage == "" {
				return nil, fmt.Errorf("step %q: data source %d: retain_column_names only applies with insert_from_stage", p.name(), i+1)
			}
			cs.retainHeader = &b
		}
		out = append(out, cs)
	}
	return out, nil
}

func (p *combineData) Execute(rc *RunContext) (*Outcome, error) {
	combineType := p.stringParam("combine_type", "")
	allowMismatched := p.stringParam("column_handling", "") == "allow_mismatched_columns"
	srcs, err := p.sources(combineType)
	if err != nil {
		return nil, err
	}

	sections, err := p.loadSections(rc, srcs, combineType, allowMismatched)
	if err != nil {
		return nil, err
	}

	var out *table.Table
	if combineType == "vertical_stack" {
		out, err = p.stackVertical(sections, allowMismatched)
	} else {
		out, err = p.concatHorizontal(sections)
	}
	if err != nil {
		return nil, err
	}
	if err := p.saveResult(rc, out); err != nil {
		return nil, err
	}
	rc.Log.Info("combined sections",
		"step", p.name(), "sections", len(sections), "rows", out.NumRows(), "cols", out.NumCols())
	return &Outcome{RowsOut: out.NumRows(), Info: fmt.Sprintf("combined %d sources", len(srcs))}, nil
}

// loadSections materializes each data source as a table. Blank runs take
// their shape from the preceding section and are dropped when they come
// first.
func (p *combineData) loadSections(rc *RunContext, srcs []combineSource, combineType string, allowMismatched bool) ([]*table.Table, error) {
	var sections []*table.Table
	var firstDataCols []string
	for i, src := range srcs {
		if src.stage == "" {
			if len(sections) == 0 {
				continue
			}
			prev := sections[len(sections)-1]
			if combineType == "vertical_stack" {
				sections = append(sections, blankRows(prev.Columns(), src.blankRows))
			} else {
				sections = append(sections, blankCols(prev.NumRows(), src.blankCols))
			}
			continue
		}
		t, err := rc.Stages.Load(src.stage)
		if err != nil {
			return nil, fmt.Errorf("step %q: data source %d: %w", p.name(), i+1, err)
		}
		// With mismatched columns allowed the header names carry the
		// section's meaning, so they default to being kept as a data row.
		retain := allowMismatched
		if src.retainHeader != nil {
			retain = *src.retainHeader
		}
		if retain && t.NumRows() > 0 {
			t = withHeaderRow(t)
		}
		// Column matching is a vertical concern; horizontal sections are
		// expected to differ.
		if combineType == "vertical_stack" && !allowMismatched {
			if firstDataCols == nil {
				firstDataCols = t.Columns()
			} else if !sameColumns(firstDataCols, t.Columns()) {
				return nil, fmt.Errorf(
					"step %q: data source %d (%s) columns %v do not match first source columns %v; use column_handling: allow_mismatched_columns to combine anyway",
					p.name(), i+1, src.stage, t.Columns(), firstDataCols)
			}
		}
		sections = append(sections, t)
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("step %q: no data sources produced any data", p.name())
	}
	return sections, nil
}

func (p *combineData) stackVertical(sections []*table.Table, allowMismatched bool) (*table.Table, error) {
	cols := sections[0].Columns()
	if allowMismatched {
		seen := make(map[string]bool, len(cols))
		for _, c := range cols {
			seen[c] = true
		}
		for _, s := range sections[1:] {
			for _, c := range s.Columns() {
				if !seen[c] {
					seen[c] = true
					cols = append(cols, c)
				}
			}
		}
	}
	out := table.New(cols...)
	for _, s := range sections {
		idx := make([]int, len(s.Columns()))
		for j, c := range s.Columns() {
			k, _ := out.ColumnIndex(c)
			idx[j] = k
		}
		for i := 0; i < s.NumRows(); i++ {
			row := make([]any, len(cols))
			for j, v := range s.Row(i) {
				row[idx[j]] = v
			}
			out.AppendRow(row)
		}
	}
	return out, nil
}

func (p *combineData) concatHorizontal(sections []*table.Table) (*table.Table, error) {
	rows := sections[0].NumRows()
	for i, s := range sections[1:] {
		if s.NumRows() != rows {
			return nil, fmt.Errorf("step %q: row count mismatch for horizontal_concat: first section has %d rows, section %d has %d",
				p.name(), rows, i+2, s.NumRows())
		}
	}
	var cols []string
	taken := make(map[string]bool)
	for _, s := range sections {
		for _, c := range s.Columns() {
			name := c
			for n := 1; taken[name]; n++ {
				name = fmt.Sprintf("%s.%d", c, n)
			}
			taken[name] = true
			cols = append(cols, name)
		}
	}
	out := table.New(cols...)
	for i := 0; i < rows; i++ {
		row := make([]any, 0, len(cols))
		for _, s := range sections {
			row = append(row, s.Row(i)...)
		}
		out.AppendRow(row)
	}
	return out, nil
}

// withHeaderRow returns a copy whose first data row is the column names.
func withHeaderRow(t *table.Table) *table.Table {
	cols := t.Columns()
	out := table.New(cols...)
	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	out.AppendRow(header)
	for i := 0; i < t.NumRows(); i++ {
		out.AppendRow(t.Row(i))
	}
	return out
}

func blankRows(cols []string, n int) *table.Table {
	out := table.New(cols...)
	for i := 0; i < n; i++ {
		out.AppendRow(make([]any, len(cols)))
	}
	return out
}

func blankCols(rows, n int) *table.Table {
	cols := make([]string, n)
	for i := range cols {
		cols[i] = fmt.Sprintf("Blank_%d", i+1)
	}
	out := table.New(cols...)
	for i := 0; i < rows; i++ {
		out.AppendRow(make([]any, n))
	}
	return out
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
