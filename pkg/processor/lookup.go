package processor

import (
	"fmt"

	"github.com/zen-systems/sheetpipe/pkg/table"
)

// lookupData enriches the source stage with columns looked up from another
// stage, matched on one key column each side.
type lookupData struct {
	base
}

func (p *lookupData) Validate() error {
	if err := p.requireParams("lookup_stage", "match_col_in_lookup_data", "match_col_in_main_data", "lookup_columns"); err != nil {
		return err
	}
	cols, err := p.stringList("lookup_columns")
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return fmt.Errorf("step %q: lookup_columns must not be empty", p.name())
	}
	switch jt := p.stringParam("join_type", "left"); jt {
	case "left", "inner":
	default:
		return fmt.Errorf("step %q: join_type must be left or inner, got %q", p.name(), jt)
	}
	switch hd := p.stringParam("handle_duplicates", "first"); hd {
	case "first", "last", "error":
	default:
		return fmt.Errorf("step %q: handle_duplicates must be first, last, or error, got %q", p.name(), hd)
	}
	if _, err := p.mapParam("default_values"); err != nil {
		return err
	}
	return nil
}

func (p *lookupData) Execute(rc *RunContext) (*Outcome, error) {
	lookupStage := p.stringParam("lookup_stage", "")
	matchLookup := p.stringParam("match_col_in_lookup_data", "")
	matchMain := p.stringParam("match_col_in_main_data", "")
	lookupCols, err := p.stringList("lookup_columns")
	if err != nil {
		return nil, err
	}
	joinType := p.stringParam("join_type", "left")
	handleDups := p.stringParam("handle_duplicates", "first")
	defaults, err := p.mapParam("default_values")
	if err != nil {
		return nil, err
	}
	prefix := p.stringParam("prefix", "")
	suffix := p.stringParam("suffix", "")

	lookup, err := rc.Stages.Load(lookupStage)
	if err != nil {
		return nil, err
	}
	keyIdx, ok := lookup.ColumnIndex(matchLookup)
	if !ok {
		return nil, fmt.Errorf("step %q: lookup key %q not found in stage %q (columns: %v)",
			p.name(), matchLookup, lookupStage, lookup.Columns())
	}
	colIdxs := make([]int, len(lookupCols))
	for i, col := range lookupCols {
		idx, ok := lookup.ColumnIndex(col)
		if !ok {
			return nil, fmt.Errorf("step %q: lookup column %q not found in stage %q (columns: %v)",
				p.name(), col, lookupStage, lookup.Columns())
		}
		colIdxs[i] = idx
	}

	// index the lookup side, resolving duplicate keys per handle_duplicates
	index := make(map[string][]any, lookup.NumRows())
	for i := 0; i < lookup.NumRows(); i++ {
		row := lookup.Row(i)
		key := table.AsString(row[keyIdx])
		if _, dup := index[key]; dup {
			switch handleDups {
			case "first":
				continue
			case "error":
				return nil, fmt.Errorf("step %q: lookup stage %q has duplicate key %q",
					p.name(), lookupStage, key)
			}
		}
		index[key] = row
	}

	return runTransform(&p.base, rc, func(rc *RunContext, in *table.Table) (*table.Table, error) {
		mainIdx, ok := in.ColumnIndex(matchMain)
		if !ok {
			return nil, fmt.Errorf("step %q: match column %q not found (columns: %v)",
				p.name(), matchMain, in.Columns())
		}
		outNames := make([]string, len(lookupCols))
		for i, col := range lookupCols {
			outNames[i] = prefix + col + suffix
		}

		out := table.New(append(in.Columns(), outNames...)...)
		unmatched := 0
		for i := 0; i < in.NumRows(); i++ {
			row := in.Row(i)
			match, found := index[table.AsString(row[mainIdx])]
			if !found {
				unmatched++
				if joinType == "inner" {
					continue
				}
			}
			result := make([]any, 0, len(row)+len(lookupCols))
			result = append(result, row...)
			for j, col := range lookupCols {
				switch {
				case found:
					result = append(result, match[colIdxs[j]])
				case defaults != nil:
					result = append(result, defaults[col])
				default:
					result = append(result, nil)
				}
			}
			out.AppendRow(result)
		}
		if unmatched > 0 {
			rc.Log.Warn("lookup left rows unmatched", "step", p.name(), "unmatched", unmatched)
		}
		return out, nil
	})
}
