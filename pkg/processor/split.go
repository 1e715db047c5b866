package processor

import (
	"fmt"
	"strings"

	"github.com/zen-systems/sheetpipe/pkg/table"
)

// splitColumn splits one column into several by delimiter or fixed widths.
type splitColumn struct {
	base
}

func (p *splitColumn) Validate() error {
	if err := p.requireParams("source_column", "split_type"); err != nil {
		return err
	}
	switch st := p.stringParam("split_type", ""); st {
	case "delimiter":
		if p.stringParam("delimiter", "") == "" {
			return fmt.Errorf("step %q: delimiter split needs a delimiter", p.name())
		}
	case "fixed_width":
		widths, err := p.listParam("widths")
		if err != nil {
			return err
		}
		if len(widths) == 0 {
			return fmt.Errorf("step %q: fixed_width split needs widths", p.name())
		}
		for _, w := range widths {
			if n, ok := toInt(w); !ok || n <= 0 {
				return fmt.Errorf("step %q: widths must be positive integers", p.name())
			}
		}
	default:
		return fmt.Errorf("step %q: unknown split_type %q (valid: delimiter, fixed_width)", p.name(), st)
	}
	if _, err := p.stringList("new_column_names"); err != nil {
		return err
	}
	return nil
}

func (p *splitColumn) Execute(rc *RunContext) (*Outcome, error) {
	source := p.stringParam("source_column", "")
	splitType := p.stringParam("split_type", "")
	names, err := p.stringList("new_column_names")
	if err != nil {
		return nil, err
	}
	fillMissing := p.stringParam("fill_missing", "")
	removeOriginal := p.boolParam("remove_original", false)

	return runTransform(&p.base, rc, func(rc *RunContext, in *table.Table) (*table.Table, error) {
		srcIdx, ok := in.ColumnIndex(source)
		if !ok {
			return nil, fmt.Errorf("step %q: source column %q not found (columns: %v)",
				p.name(), source, in.Columns())
		}

		var parts [][]string
		width := 0
		switch splitType {
		case "delimiter":
			delim := p.stringParam("delimiter", "")
			maxSplits := p.intParam("max_splits", 0)
			for i := 0; i < in.NumRows(); i++ {
				fields := splitDelimited(table.AsString(in.Row(i)[srcIdx]), delim, maxSplits)
				if len(fields) > width {
					width = len(fields)
				}
				parts = append(parts, fields)
			}
		case "fixed_width":
			raw, _ := p.listParam("widths")
			widths := make([]int, len(raw))
			for i, w := range raw {
				widths[i], _ = toInt(w)
			}
			width = len(widths)
			for i := 0; i < in.NumRows(); i++ {
				parts = append(parts, splitFixed(table.AsString(in.Row(i)[srcIdx]), widths))
			}
		}

		colNames := make([]string, width)
		for i := range colNames {
			if i < len(names) {
				colNames[i] = names[i]
			} else {
				colNames[i] = fmt.Sprintf("%s_%d", source, i+1)
			}
		}

		out := in.Clone()
		for i, name := range colNames {
			if err := out.AddColumn(name, nil); err != nil {
				return nil, fmt.Errorf("step %q: %w", p.name(), err)
			}
			for r := 0; r < out.NumRows(); r++ {
				var v any = fillMissing
				if i < len(parts[r]) {
					v = parts[r][i]
				}
				if err := out.Set(r, name, v); err != nil {
					return nil, err
				}
			}
		}
		if removeOriginal {
			trimmed, err := out.Drop([]string{source})
			if err != nil {
				return nil, err
			}
			out = trimmed
		}
		return out, nil
	})
}

// splitDelimited splits s on delim, honoring an optional max split count.
// maxSplits of 0 means unlimited; n splits yields at most n+1 fields.
func splitDelimited(s, delim string, maxSplits int) []string {
	if maxSplits <= 0 {
		return strings.Split(s, delim)
	}
	return strings.SplitN(s, delim, maxSplits+1)
}

// splitFixed cuts s into rune slices of the given widths. Short strings
// leave trailing fields empty.
func splitFixed(s string, widths []int) []string {
	runes := []rune(s)
	out := make([]string, len(widths))
	pos := 0
	for i, w := range widths {
		if pos >= len(runes) {
			out[i] = ""
			continue
		}
		end := pos + w
		if end > len(runes) {
			end = len(runes)
		}
		out[i] = string(runes[pos:end])
		pos = end
	}
	return out
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	}
	return 0, false
}
