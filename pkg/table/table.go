// Package table provides the in-memory tabular snapshot that flows between
// pipeline stages: an ordered list of column names plus row-major typed cells.
package table

import (
	"fmt"
	"sort"
)

// Table is an ordered-column, row-major tabular snapshot. Cells hold string,
// int64, float64, bool, time.Time, or nil. A Table loaded from a stage must
// be treated as a private copy; the stage store hands out clones.
type Table struct {
	cols []string
	rows [][]any
}

// New creates an empty table with the given column names.
func New(cols ...string) *Table {
	t := &Table{cols: make([]string, len(cols))}
	copy(t.cols, cols)
	return t
}

// FromRows creates a table from column names and row values. Rows shorter
// than the column list are padded with nil.
func FromRows(cols []string, rows [][]any) *Table {
	t := New(cols...)
	for _, row := range rows {
		t.AppendRow(row)
	}
	return t
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.cols))
	copy(out, t.cols)
	return out
}

// NumRows returns the number of data rows.
func (t *Table) NumRows() int { return len(t.rows) }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.cols) }

// ColumnIndex returns the position of the named column.
func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, c := range t.cols {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.ColumnIndex(name)
	return ok
}

// Row returns the i-th row. The returned slice is the table's own storage;
// callers that keep it must copy it.
func (t *Table) Row(i int) []any { return t.rows[i] }

// AppendRow adds a row, padding or truncating to the column count.
func (t *Table) AppendRow(row []any) {
	r := make([]any, len(t.cols))
	copy(r, row)
	t.rows = append(t.rows, r)
}

// Value returns the cell at row i in the named column.
func (t *Table) Value(i int, col string) (any, error) {
	idx, ok := t.ColumnIndex(col)
	if !ok {
		return nil, fmt.Errorf("column %q not found (columns: %v)", col, t.cols)
	}
	return t.rows[i][idx], nil
}

// Set replaces the cell at row i in the named column.
func (t *Table) Set(i int, col string, v any) error {
	idx, ok := t.ColumnIndex(col)
	if !ok {
		return fmt.Errorf("column %q not found (columns: %v)", col, t.cols)
	}
	t.rows[i][idx] = v
	return nil
}

// Clone returns a deep copy. Cell values themselves are immutable Go values,
// so copying the row slices is sufficient isolation.
func (t *Table) Clone() *Table {
	c := New(t.cols...)
	c.rows = make([][]any, len(t.rows))
	for i, row := range t.rows {
		r := make([]any, len(row))
		copy(r, row)
		c.rows[i] = r
	}
	return c
}

// AddColumn appends a new column filled with the given value.
func (t *Table) AddColumn(name string, fill any) error {
	if t.HasColumn(name) {
		return fmt.Errorf("column %q already exists", name)
	}
	t.cols = append(t.cols, name)
	for i := range t.rows {
		t.rows[i] = append(t.rows[i], fill)
	}
	return nil
}

// RenameColumn changes a column's name in place.
func (t *Table) RenameColumn(from, to string) error {
	idx, ok := t.ColumnIndex(from)
	if !ok {
		return fmt.Errorf("column %q not found (columns: %v)", from, t.cols)
	}
	if from != to && t.HasColumn(to) {
		return fmt.Errorf("column %q already exists", to)
	}
	t.cols[idx] = to
	return nil
}

// Select returns a new table containing only the named columns, in the
// requested order.
func (t *Table) Select(names []string) (*Table, error) {
	idxs := make([]int, len(names))
	for i, n := range names {
		idx, ok := t.ColumnIndex(n)
		if !ok {
			return nil, fmt.Errorf("column %q not found (columns: %v)", n, t.cols)
		}
		idxs[i] = idx
	}
	out := New(names...)
	for _, row := range t.rows {
		r := make([]any, len(idxs))
		for i, idx := range idxs {
			r[i] = row[idx]
		}
		out.rows = append(out.rows, r)
	}
	return out, nil
}

// Drop returns a new table without the named columns.
func (t *Table) Drop(names []string) (*Table, error) {
	dropping := make(map[string]bool, len(names))
	for _, n := range names {
		if !t.HasColumn(n) {
			return nil, fmt.Errorf("column %q not found (columns: %v)", n, t.cols)
		}
		dropping[n] = true
	}
	var keep []string
	for _, c := range t.cols {
		if !dropping[c] {
			keep = append(keep, c)
		}
	}
	return t.Select(keep)
}

// Filter returns a new table containing only rows for which keep returns true.
func (t *Table) Filter(keep func(row []any) (bool, error)) (*Table, error) {
	out := New(t.cols...)
	for _, row := range t.rows {
		ok, err := keep(row)
		if err != nil {
			return nil, err
		}
		if ok {
			r := make([]any, len(row))
			copy(r, row)
			out.rows = append(out.rows, r)
		}
	}
	return out, nil
}

// SortStable sorts rows in place using the given less function.
func (t *Table) SortStable(less func(a, b []any) bool) {
	sort.SliceStable(t.rows, func(i, j int) bool { return less(t.rows[i], t.rows[j]) })
}

// Slice returns a copy of rows [start, end) as a new table. Bounds are
// clamped to the row count.
func (t *Table) Slice(start, end int) *Table {
	if start < 0 {
		start = 0
	}
	if end > len(t.rows) {
		end = len(t.rows)
	}
	if start > end {
		start = end
	}
	out := New(t.cols...)
	for _, row := range t.rows[start:end] {
		out.AppendRow(row)
	}
	return out
}
