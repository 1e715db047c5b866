package processor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zen-systems/sheetpipe/pkg/table"
)

// renameColumns renames columns by explicit mapping, regex pattern, case
// conversion, or prefix/suffix decoration. At least one mode must be given.
type renameColumns struct {
	base
}

func (p *renameColumns) Validate() error {
	if _, ok := p.param("mapping"); ok {
		m, err := p.mapParam("mapping")
		if err != nil {
			return err
		}
		if len(m) == 0 {
			return fmt.Errorf("step %q: mapping must not be empty", p.name())
		}
		return nil
	}
	if pat := p.stringParam("pattern", ""); pat != "" {
		if _, err := regexp.Compile(pat); err != nil {
			return fmt.Errorf("step %q: invalid pattern: %w", p.name(), err)
		}
		return nil
	}
	switch conv := p.stringParam("case_conversion", ""); conv {
	case "", "upper", "lower", "title", "snake_case":
	default:
		return fmt.Errorf("step %q: unknown case_conversion %q (valid: upper, lower, title, snake_case)",
			p.name(), conv)
	}
	if p.stringParam("case_conversion", "") != "" ||
		p.stringParam("add_prefix", "") != "" ||
		p.stringParam("add_suffix", "") != "" ||
		p.boolParam("replace_spaces", false) {
		return nil
	}
	return fmt.Errorf("step %q needs one of mapping, pattern, case_conversion, add_prefix, add_suffix, or replace_spaces",
		p.name())
}

func (p *renameColumns) Execute(rc *RunContext) (*Outcome, error) {
	return runTransform(&p.base, rc, func(rc *RunContext, in *table.Table) (*table.Table, error) {
		out := in.Clone()

		if mapping, _ := p.mapParam("mapping"); len(mapping) > 0 {
			for from, toRaw := range mapping {
				to, ok := toRaw.(string)
				if !ok {
					return nil, fmt.Errorf("step %q: mapping value for %q must be a string", p.name(), from)
				}
				if err := out.RenameColumn(from, to); err != nil {
					return nil, fmt.Errorf("step %q: %w", p.name(), err)
				}
			}
			return out, nil
		}

		if pat := p.stringParam("pattern", ""); pat != "" {
			re := regexp.MustCompile(pat)
			repl := p.stringParam("replacement", "")
			for _, col := range out.Columns() {
				renamed := re.ReplaceAllString(col, repl)
				if renamed != col {
					if err := out.RenameColumn(col, renamed); err != nil {
						return nil, fmt.Errorf("step %q: %w", p.name(), err)
					}
				}
			}
			return out, nil
		}

		conv := p.stringParam("case_conversion", "")
		prefix := p.stringParam("add_prefix", "")
		suffix := p.stringParam("add_suffix", "")
		replaceSpaces := p.boolParam("replace_spaces", false)
		for _, col := range out.Columns() {
			renamed := col
			switch conv {
			case "upper":
				renamed = strings.ToUpper(renamed)
			case "lower":
				renamed = strings.ToLower(renamed)
			case "title":
				renamed = titleCase(renamed)
			case "snake_case":
				renamed = strings.ToLower(strings.Join(strings.Fields(renamed), "_"))
			}
			if replaceSpaces {
				renamed = strings.ReplaceAll(renamed, " ", "_")
			}
			renamed = prefix + renamed + suffix
			if renamed != col {
				if err := out.RenameColumn(col, renamed); err != nil {
					return nil, fmt.Errorf("step %q: %w", p.name(), err)
				}
			}
		}
		return out, nil
	})
}
