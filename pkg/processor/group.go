package processor

import (
	"fmt"
	"strings"

	"github.com/zen-systems/sheetpipe/pkg/table"
)

// groupData maps raw column values into named groups via a label→values
// mapping, writing the label to a target column.
type groupData struct {
	base
}

func (p *groupData) Validate() error {
	if err := p.requireParams("source_column", "groups"); err != nil {
		return err
	}
	groups, err := p.mapParam("groups")
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		return fmt.Errorf("step %q: groups must not be empty", p.name())
	}
	for label, values := range groups {
		if _, ok := values.([]any); !ok {
			return fmt.Errorf("step %q: group %q must map to a list of values", p.name(), label)
		}
	}
	switch action := p.stringParam("unmatched_action", "keep_original"); action {
	case "keep_original", "error":
	case "set_value":
		if _, ok := p.param("unmatched_value"); !ok {
			return fmt.Errorf("step %q: unmatched_action set_value needs unmatched_value", p.name())
		}
	default:
		return fmt.Errorf("step %q: unknown unmatched_action %q (valid: keep_original, set_value, error)",
			p.name(), action)
	}
	return nil
}

func (p *groupData) Execute(rc *RunContext) (*Outcome, error) {
	source := p.stringParam("source_column", "")
	groups, err := p.mapParam("groups")
	if err != nil {
		return nil, err
	}
	target := p.stringParam("target_column", "")
	if target == "" {
		target = source + "_group"
	}
	replaceSource := p.boolParam("replace_source", false)
	caseSensitive := p.boolParam("case_sensitive", true)
	action := p.stringParam("unmatched_action", "keep_original")
	unmatchedValue, _ := p.param("unmatched_value")

	// label lookup keyed by the rendered member value
	labels := make(map[string]string)
	for label, valuesRaw := range groups {
		values, _ := valuesRaw.([]any)
		for _, v := range values {
			key := table.AsString(v)
			if !caseSensitive {
				key = strings.ToLower(key)
			}
			labels[key] = label
		}
	}

	return runTransform(&p.base, rc, func(rc *RunContext, in *table.Table) (*table.Table, error) {
		srcIdx, ok := in.ColumnIndex(source)
		if !ok {
			return nil, fmt.Errorf("step %q: source column %q not found (columns: %v)",
				p.name(), source, in.Columns())
		}
		out := in.Clone()
		if !replaceSource && !out.HasColumn(target) {
			if err := out.AddColumn(target, nil); err != nil {
				return nil, fmt.Errorf("step %q: %w", p.name(), err)
			}
		}
		writeCol := target
		if replaceSource {
			writeCol = source
		}
		for i := 0; i < out.NumRows(); i++ {
			raw := out.Row(i)[srcIdx]
			key := table.AsString(raw)
			if !caseSensitive {
				key = strings.ToLower(key)
			}
			label, matched := labels[key]
			var v any
			switch {
			case matched:
				v = label
			case action == "keep_original":
				v = raw
			case action == "set_value":
				v = unmatchedValue
			default:
				return nil, fmt.Errorf("step %q: value %q in row %d matches no group",
					p.name(), table.AsString(raw), i+1)
			}
			if err := out.Set(i, writeCol, v); err != nil {
				return nil, err
			}
		}
		return out, nil
	})
}
