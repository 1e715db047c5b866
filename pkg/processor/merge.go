package processor

import (
	"fmt"

	"github.com/zen-systems/sheetpipe/pkg/fileio"
	"github.com/zen-systems/sheetpipe/pkg/table"
)

// mergeData joins the source stage with a second dataset (another stage or
// a file) on key columns, emitting every key pairing (a relational join,
// unlike lookup_data's one-row enrichment).
type mergeData struct {
	base
}

func (p *mergeData) Validate() error {
	if err := p.requireParams("merge_source", "left_key", "right_key"); err != nil {
		return err
	}
	src, err := p.mapParam("merge_source")
	if err != nil {
		return err
	}
	switch srcType, _ := src["type"].(string); srcType {
	case "stage":
		if name, _ := src["stage_name"].(string); name == "" {
			return fmt.Errorf("step %q: stage merge source needs stage_name", p.name())
		}
	case "excel", "csv", "tsv":
		if path, _ := src["path"].(string); path == "" {
			return fmt.Errorf("step %q: %s merge source needs path", p.name(), srcType)
		}
	default:
		return fmt.Errorf("step %q: merge_source type must be stage, excel, csv, or tsv, got %q",
			p.name(), srcType)
	}
	switch jt := p.stringParam("join_type", "left"); jt {
	case "left", "right", "inner", "outer":
	default:
		return fmt.Errorf("step %q: join_type must be left, right, inner, or outer, got %q", p.name(), jt)
	}
	if suf, err := p.stringList("suffixes"); err != nil {
		return err
	} else if suf != nil && len(suf) != 2 {
		return fmt.Errorf("step %q: suffixes must be a two-element list", p.name())
	}
	return nil
}

// loadMergeSource resolves the right side of the join: a stage, or a file
// read on the spot.
func (p *mergeData) loadMergeSource(rc *RunContext) (*table.Table, error) {
	src, err := p.mapParam("merge_source")
	if err != nil {
		return nil, err
	}
	srcType, _ := src["type"].(string)
	if srcType == "stage" {
		name, _ := src["stage_name"].(string)
		return rc.Stages.Load(name)
	}

	path, _ := src["path"].(string)
	opts := fileio.ReadOptions{}
	if sheet, ok := src["sheet"].(string); ok {
		opts.Sheet = sheet
	}
	if sep, ok := src["separator"].(string); ok && sep != "" {
		opts.Separator = []rune(sep)[0]
	}
	if format, ok := src["format"].(string); ok {
		opts.Format = format
	} else if srcType != "excel" {
		opts.Format = srcType
	}
	t, err := fileio.ReadTable(path, opts)
	if err != nil {
		return nil, fmt.Errorf("step %q: read merge source %s: %w", p.name(), path, err)
	}
	return t, nil
}

func (p *mergeData) Execute(rc *RunContext) (*Outcome, error) {
	leftKey := p.stringParam("left_key", "")
	rightKey := p.stringParam("right_key", "")
	joinType := p.stringParam("join_type", "left")
	suffixes, err := p.stringList("suffixes")
	if err != nil {
		return nil, err
	}
	if suffixes == nil {
		suffixes = []string{"_x", "_y"}
	}

	right, err := p.loadMergeSource(rc)
	if err != nil {
		return nil, err
	}
	rightKeyIdx, ok := right.ColumnIndex(rightKey)
	if !ok {
		return nil, fmt.Errorf("step %q: right key %q not found in merge source (columns: %v)",
			p.name(), rightKey, right.Columns())
	}

	return runTransform(&p.base, rc, func(rc *RunContext, left *table.Table) (*table.Table, error) {
		leftKeyIdx, ok := left.ColumnIndex(leftKey)
		if !ok {
			return nil, fmt.Errorf("step %q: left key %q not found (columns: %v)",
				p.name(), leftKey, left.Columns())
		}

		// output columns: all left, then right minus its key; collisions
		// get the suffix pair
		leftCols := left.Columns()
		leftNames := make(map[string]bool, len(leftCols))
		for _, c := range leftCols {
			leftNames[c] = true
		}
		var rightCols []string
		var rightIdxs []int
		for i, c := range right.Columns() {
			if i == rightKeyIdx {
				continue
			}
			rightCols = append(rightCols, c)
			rightIdxs = append(rightIdxs, i)
		}
		outCols := make([]string, 0, len(leftCols)+len(rightCols))
		for _, c := range leftCols {
			name := c
			for _, rcol := range rightCols {
				if rcol == c {
					name = c + suffixes[0]
					break
				}
			}
			outCols = append(outCols, name)
		}
		for _, c := range rightCols {
			name := c
			if leftNames[c] {
				name = c + suffixes[1]
			}
			outCols = append(outCols, name)
		}

		rightByKey := make(map[string][]int, right.NumRows())
		for i := 0; i < right.NumRows(); i++ {
			key := table.AsString(right.Row(i)[rightKeyIdx])
			rightByKey[key] = append(rightByKey[key], i)
		}

		out := table.New(outCols...)
		emit := func(leftRow []any, rightRow []any) {
			result := make([]any, 0, len(outCols))
			if leftRow != nil {
				result = append(result, leftRow...)
			} else {
				// right-only row: carry the key over so it is not lost
				for i := range leftCols {
					if i == leftKeyIdx {
						result = append(result, rightRow[rightKeyIdx])
					} else {
						result = append(result, nil)
					}
				}
			}
			for _, idx := range rightIdxs {
				if rightRow != nil {
					result = append(result, rightRow[idx])
				} else {
					result = append(result, nil)
				}
			}
			out.AppendRow(result)
		}

		matchedRight := make(map[int]bool)
		for i := 0; i < left.NumRows(); i++ {
			row := left.Row(i)
			matches := rightByKey[table.AsString(row[leftKeyIdx])]
			if len(matches) == 0 {
				if joinType == "left" || joinType == "outer" {
					emit(row, nil)
				}
				continue
			}
			for _, ri := range matches {
				matchedRight[ri] = true
				emit(row, right.Row(ri))
			}
		}
		if joinType == "right" || joinType == "outer" {
			for i := 0; i < right.NumRows(); i++ {
				if !matchedRight[i] {
					emit(nil, right.Row(i))
				}
			}
		}
		return out, nil
	})
}
