// Package fileio reads and writes tabular files in the formats the
// pipeline understands: xlsx/xlsm via excelize, csv and tsv via
// encoding/csv. It also handles backup copies and timestamped debug dumps.
package fileio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"github.com/zen-systems/sheetpipe/pkg/table"
)

// Logical file formats.
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
	FormatTSV  = "tsv"
)

var extensionFormats = map[string]string{
	".xlsx": FormatXLSX,
	".xlsm": FormatXLSX,
	".csv":  FormatCSV,
	".tsv":  FormatTSV,
	".tab":  FormatTSV,
}

// DetectFormat resolves the logical format from an explicit override or the
// file extension.
func DetectFormat(path, explicit string) (string, error) {
	if explicit != "" {
		switch strings.ToLower(explicit) {
		case FormatXLSX, "xlsm":
			return FormatXLSX, nil
		case FormatCSV:
			return FormatCSV, nil
		case FormatTSV:
			return FormatTSV, nil
		default:
			return "", fmt.Errorf("unsupported format %q (supported: xlsx, csv, tsv)", explicit)
		}
	}
	ext := strings.ToLower(filepath.Ext(path))
	format, ok := extensionFormats[ext]
	if !ok {
		return "", fmt.Errorf("cannot detect format of %s: unsupported extension %q", path, ext)
	}
	return format, nil
}

// ReadOptions select the sheet and separator for reading.
type ReadOptions struct {
	// Sheet selects an Excel sheet by name; empty means SheetIndex.
	Sheet string
	// SheetIndex is 1-based; 0 means the first sheet.
	SheetIndex int
	// Separator overrides the CSV delimiter; zero means comma (tab for tsv).
	Separator rune
	// Format overrides extension-based detection.
	Format string
}

// ReadTable reads a file into a table. The first row becomes the header;
// blank or duplicate header cells are made unique.
func ReadTable(path string, opts ReadOptions) (*table.Table, error) {
	format, err := DetectFormat(path, opts.Format)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatXLSX:
		return readExcel(path, opts)
	case FormatCSV:
		sep := opts.Separator
		if sep == 0 {
			sep = ','
		}
		return readDelimited(path, sep)
	case FormatTSV:
		return readDelimited(path, '\t')
	default:
		return nil, fmt.Errorf("unsupported file format: %s", format)
	}
}

func readExcel(path string, opts ReadOptions) (*table.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%s contains no sheets", path)
		}
		idx := opts.SheetIndex
		if idx <= 0 {
			idx = 1
		}
		if idx > len(sheets) {
			return nil, fmt.Errorf("%s has %d sheets, sheet %d requested", path, len(sheets), idx)
		}
		sheet = sheets[idx-1]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q of %s: %w", sheet, path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q of %s is empty", sheet, path)
	}
	return buildTable(rows), nil
}

func readDelimited(path string, sep rune) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = sep
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}
	return buildTable(records), nil
}

// buildTable turns raw string rows into a table: unique headers, typed cells.
func buildTable(rows [][]string) *table.Table {
	header := dedupeHeader(rows[0])
	t := table.New(header...)
	for _, raw := range rows[1:] {
		row := make([]any, len(header))
		for i := range header {
			if i < len(raw) {
				row[i] = table.Coerce(raw[i])
			}
		}
		t.AppendRow(row)
	}
	return t
}

func dedupeHeader(raw []string) []string {
	seen := make(map[string]int)
	out := make([]string, len(raw))
	for i, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("Column_%d", i+1)
		}
		if n, dup := seen[name]; dup {
			base := name
			for {
				name = fmt.Sprintf("%s.%d", base, n)
				if _, taken := seen[name]; !taken {
					break
				}
				n++
			}
			seen[base] = n + 1
		}
		seen[name] = 1
		out[i] = name
	}
	return out
}

// WriteOptions control output format and backups.
type WriteOptions struct {
	// SheetName names the Excel output sheet; empty means "Sheet1".
	SheetName string
	// Format overrides extension-based detection.
	Format string
	// CreateBackup copies a pre-existing file aside before overwriting.
	CreateBackup bool
	// Now supplies the backup timestamp; zero means the wall clock.
	Now time.Time
}

// WriteTable writes a table to disk, backing up an existing file first when
// requested.
func WriteTable(path string, t *table.Table, opts WriteOptions) error {
	format, err := DetectFormat(path, opts.Format)
	if err != nil {
		return err
	}
	if opts.CreateBackup {
		if _, statErr := os.Stat(path); statErr == nil {
			if _, err := BackupFile(path, opts.Now); err != nil {
				return err
			}
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory for %s: %w", path, err)
		}
	}
	switch format {
	case FormatXLSX:
		return writeExcel(path, t, opts.SheetName)
	case FormatCSV:
		return writeDelimited(path, t, ',')
	case FormatTSV:
		return writeDelimited(path, t, '\t')
	default:
		return fmt.Errorf("unsupported file format: %s", format)
	}
}

func writeExcel(path string, t *table.Table, sheetName string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Sheet1"
	if sheetName != "" && sheetName != sheet {
		if err := f.SetSheetName(sheet, sheetName); err != nil {
			return fmt.Errorf("name sheet %q: %w", sheetName, err)
		}
		sheet = sheetName
	}

	header := make([]any, t.NumCols())
	for i, c := range t.Columns() {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header of %s: %w", path, err)
	}
	for i := 0; i < t.NumRows(); i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := make([]any, t.NumCols())
		copy(row, t.Row(i))
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d of %s: %w", i+1, path, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func writeDelimited(path string, t *table.Table, sep rune) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = sep
	if err := w.Write(t.Columns()); err != nil {
		return fmt.Errorf("write header of %s: %w", path, err)
	}
	record := make([]string, t.NumCols())
	for i := 0; i < t.NumRows(); i++ {
		for j, cell := range t.Row(i) {
			record[j] = table.AsString(cell)
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write row %d of %s: %w", i+1, path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}

// BackupFile copies path to a timestamped sibling
// (name_backup_YYYYMMDD_HHMMSS.ext) and returns the backup path.
func BackupFile(path string, now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now()
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	backup := fmt.Sprintf("%s_backup_%s%s", base, now.Format("20060102_150405"), ext)

	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s for backup: %w", path, err)
	}
	defer src.Close()
	dst, err := os.Create(backup)
	if err != nil {
		return "", fmt.Errorf("create backup %s: %w", backup, err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("copy %s to %s: %w", path, backup, err)
	}
	if err := dst.Close(); err != nil {
		return "", err
	}
	return backup, nil
}

// DumpOptions configure a debug breakpoint dump.
type DumpOptions struct {
	Dir              string
	Prefix           string
	IncludeTimestamp bool
	// Format is the dump file format; empty means xlsx.
	Format string
	Now    time.Time
}

// WriteDump writes a stage snapshot to a timestamped file and returns its
// path.
func WriteDump(t *table.Table, opts DumpOptions) (string, error) {
	dir := opts.Dir
	if dir == "" {
		dir = "debug_outputs"
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "debug_breakpoint"
	}
	format := opts.Format
	if format == "" {
		format = FormatXLSX
	}
	ext := "." + format
	if format == FormatXLSX {
		ext = ".xlsx"
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	name := prefix + ext
	if opts.IncludeTimestamp {
		name = fmt.Sprintf("%s_%s%s", prefix, now.Format("20060102_150405"), ext)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create dump directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := WriteTable(path, t, WriteOptions{Format: format}); err != nil {
		return "", err
	}
	return path, nil
}
