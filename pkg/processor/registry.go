package processor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zen-systems/sheetpipe/pkg/recipe"
)

// Spec describes a processor for validation and capability listings.
// Required and Optional name the processor-specific parameters; the shared
// source_stage/save_to_stage requirements are carried by NeedsSource and
// NeedsSave.
type Spec struct {
	Description string   `json:"description"`
	Required    []string `json:"required,omitempty"`
	Optional    []string `json:"optional,omitempty"`
	NeedsSource bool     `json:"needs_source_stage"`
	NeedsSave   bool     `json:"needs_save_stage"`
}

type entry struct {
	spec    Spec
	factory Factory
}

// Registry maps processor_type strings to factories. The built-in set is
// registered at construction; there is no dynamic discovery, so an unknown
// type is always a recipe mistake.
type Registry struct {
	entries map[string]entry
}

// NewRegistry builds the registry with every built-in processor.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]entry)}

	r.register("import_file", Spec{
		Description: "Read an Excel/CSV/TSV file into a stage",
		Required:    []string{"input_file"},
		Optional:    []string{"sheet", "sheet_index", "separator", "format"},
		NeedsSave:   true,
	}, func(s recipe.Step) Processor { return &importFile{base: newBase(s)} })

	r.register("export_file", Spec{
		Description: "Write a stage to an Excel/CSV/TSV file",
		Required:    []string{"output_file"},
		Optional:    []string{"sheet_name", "format", "create_backup"},
		NeedsSource: true,
	}, func(s recipe.Step) Processor { return &exportFile{base: newBase(s)} })

	r.register("filter_data", Spec{
		Description: "Keep rows matching an ordered list of conditions (AND logic)",
		Required:    []string{"filters"},
		NeedsSource: true,
		NeedsSave:   true,
	}, func(s recipe.Step) Processor { return &filterData{base: newBase(s)} })

	r.register("clean_data", Spec{
		Description: "Apply cleaning rules (whitespace, case, replace, dedupe) to columns",
		Required:    []string{"rules"},
		NeedsSource: true,
		NeedsSave:   true,
	}, func(s recipe.Step) Processor { return &cleanData{base: newBase(s)} })

	r.register("rename_columns", Spec{
		Description: "Rename columns by mapping, pattern, or case conversion",
		Optional:    []string{"mapping", "pattern", "replacement", "case_conversion", "add_prefix", "add_suffix", "replace_spaces"},
		NeedsSource: true,
		NeedsSave:   true,
	}, func(s recipe.Step) Processor { return &renameColumns{base: newBase(s)} })

	r.register("split_column", Spec{
		Description: "Split one column into several by delimiter or fixed widths",
		Required:    []string{"source_column", "split_type"},
		Optional:    []string{"delimiter", "widths", "new_column_names", "remove_original", "max_splits", "fill_missing"},
		NeedsSource: true,
		NeedsSave:   true,
	}, func(s recipe.Step) Processor { return &splitColumn{base: newBase(s)} })

	r.register("fill_data", Spec{
		Description: "Fill empty cells forward, backward, or with a constant",
		Required:    []string{"columns", "fill_method"},
		Optional:    []string{"fill_value", "limit"},
		NeedsSource: true,
		NeedsSave:   true,
	}, func(s recipe.Step) Processor { return &fillData{base: newBase(s)} })

	r.register("sort_data", Spec{
		Description: "Sort rows by one or more columns",
		Required:    []string{"columns"},
		Optional:    []string{"ascending", "custom_orders", "ignore_case", "na_position"},
		NeedsSource: true,
		NeedsSave:   true,
	}, func(s recipe.Step) Processor { return &sortData{base: newBase(s)} })

	r.register("aggregate_data", Spec{
		Description: "Group rows and aggregate columns (sum, count, mean, min, max, first, last)",
		Required:    []string{"group_by", "aggregations"},
		Optional:    []string{"sort_by_groups"},
		NeedsSource: true,
		NeedsSave:   true,
	}, func(s recipe.Step) Processor { return &aggregateData{base: newBase(s)} })

	r.register("group_data", Spec{
		Description: "Map raw values into named groups via a label→values mapping",
		Required:    []string{"source_column", "groups"},
		Optional:    []string{"target_column", "unmatched_action", "unmatched_value", "case_sensitive", "replace_source"},
		NeedsSource: true,
		NeedsSave:   true,
	}, func(s recipe.Step) Processor { return &groupData{base: newBase(s)} })

	r.register("lookup_data", Spec{
		Description: "Enrich rows with columns looked up from another stage",
		Required:    []string{"lookup_stage", "match_col_in_lookup_data", "match_col_in_main_data", "lookup_columns"},
		Optional:    []string{"join_type", "default_values", "handle_duplicates", "prefix", "suffix"},
		NeedsSource: true,
		NeedsSave:   true,
	}, func(s recipe.Step) Processor { return &lookupData{base: newBase(s)} })

	r.register("merge_data", Spec{
		Description: "Join the source stage with another stage or file on key columns",
		Required:    []string{"merge_source", "left_key", "right_key"},
		Optional:    []string{"join_type", "suffixes"},
		NeedsSource: true,
		NeedsSave:   true,
	}, func(s recipe.Step) Processor { return &mergeData{base: newBase(s)} })

	r.register("combine_data", Spec{
		Description: "Stack multiple stages vertically or side by side, with optional blank separators",
		Required:    []string{"combine_type", "column_handling", "data_sources"},
		NeedsSave:   true,
	}, func(s recipe.Step) Processor { return &combineData{base: newBase(s)} })

	r.register("pivot_table", Spec{
		Description: "Pivot rows into a cross-tabulation of index × columns",
		Required:    []string{"index", "values"},
		Optional:    []string{"columns", "aggfunc", "fill_value"},
		NeedsSource: true,
		NeedsSave:   true,
	}, func(s recipe.Step) Processor { return &pivotTable{base: newBase(s)} })

	r.register("add_subtotals", Spec{
		Description: "Insert subtotal rows after each group run",
		Required:    []string{"group_by", "subtotal_columns"},
		Optional:    []string{"subtotal_functions", "subtotal_label", "grand_total"},
		NeedsSource: true,
		NeedsSave:   true,
	}, func(s recipe.Step) Processor { return &addSubtotals{base: newBase(s)} })

	r.register("select_columns", Spec{
		Description: "Keep or drop a set of columns",
		Optional:    []string{"columns_to_keep", "columns_to_drop"},
		NeedsSource: true,
		NeedsSave:   true,
	}, func(s recipe.Step) Processor { return &selectColumns{base: newBase(s)} })

	r.register("slice_data", Spec{
		Description: "Take a row range, head, or tail of the data",
		Required:    []string{"slice_type"},
		Optional:    []string{"start_row", "end_row", "num_rows"},
		NeedsSource: true,
		NeedsSave:   true,
	}, func(s recipe.Step) Processor { return &sliceData{base: newBase(s)} })

	r.register("copy_stage", Spec{
		Description: "Copy one stage's data verbatim to another stage",
		NeedsSource: true,
		NeedsSave:   true,
	}, func(s recipe.Step) Processor { return &copyStage{base: newBase(s)} })

	r.register("debug_breakpoint", Spec{
		Description: "Dump a stage to a timestamped file and halt the run; without source_stage it dumps the most recently saved stage",
		Optional:    []string{"output_path", "filename_prefix", "include_timestamp", "message", "format"},
	}, func(s recipe.Step) Processor { return &debugBreakpoint{base: newBase(s)} })

	return r
}

func (r *Registry) register(name string, spec Spec, f Factory) {
	if _, dup := r.entries[name]; dup {
		panic(fmt.Sprintf("processor %q registered twice", name))
	}
	r.entries[name] = entry{spec: spec, factory: f}
}

// Known reports whether the processor type is registered.
func (r *Registry) Known(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Names returns all registered processor types, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Requirements reports the stage fields the named processor needs. Unknown
// names report the strictest requirements.
func (r *Registry) Requirements(name string) (needsSource, needsSave bool) {
	e, ok := r.entries[name]
	if !ok {
		return true, true
	}
	return e.spec.NeedsSource, e.spec.NeedsSave
}

// Spec returns the capability description for a processor type.
func (r *Registry) Spec(name string) (Spec, bool) {
	e, ok := r.entries[name]
	return e.spec, ok
}

// Create builds a processor for the step, failing with the valid type list
// on an unknown processor_type.
func (r *Registry) Create(step recipe.Step) (Processor, error) {
	e, ok := r.entries[step.ProcessorType]
	if !ok {
		return nil, fmt.Errorf("unknown processor type %q; valid types: %s",
			step.ProcessorType, strings.Join(r.Names(), ", "))
	}
	return e.factory(step), nil
}
