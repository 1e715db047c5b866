package processor

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/zen-systems/sheetpipe/pkg/recipe"
	"github.com/zen-systems/sheetpipe/pkg/stage"
	"github.com/zen-systems/sheetpipe/pkg/table"
	"github.com/zen-systems/sheetpipe/pkg/vars"
)

var testClock = time.Date(2024, 12, 21, 14, 30, 45, 0, time.UTC)

// newTestContext builds a run context with declared stages "in" and "out",
// plus any extras, seeding "in" with the given table.
func newTestContext(t *testing.T, in *table.Table, extra map[string]*table.Table) *RunContext {
	t.Helper()
	store := stage.NewStore(slog.New(slog.NewTextHandler(io.Discard, nil)))
	for _, name := range []string{"in", "out"} {
		if err := store.Declare(stage.Decl{Name: name}); err != nil {
			t.Fatal(err)
		}
	}
	if in != nil {
		if err := store.Save("in", in, stage.SaveOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	for name, tbl := range extra {
		if err := store.Declare(stage.Decl{Name: name}); err != nil {
			t.Fatal(err)
		}
		if err := store.Save(name, tbl, stage.SaveOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	return &RunContext{
		Stages: store,
		Vars:   vars.New(vars.WithClock(testClock)),
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    testClock,
	}
}

func step(processorType string, params map[string]any) recipe.Step {
	return recipe.Step{
		Description:   "test " + processorType,
		ProcessorType: processorType,
		SourceStage:   "in",
		SaveToStage:   "out",
		Params:        params,
	}
}

// runStep validates and executes a processor, returning the "out" stage.
func runStep(t *testing.T, rc *RunContext, s recipe.Step) *table.Table {
	t.Helper()
	p, err := NewRegistry().Create(s)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, err := p.Execute(rc); err != nil {
		t.Fatalf("execute: %v", err)
	}
	out, err := rc.Stages.Load("out")
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func column(t *testing.T, tbl *table.Table, name string) []any {
	t.Helper()
	idx, ok := tbl.ColumnIndex(name)
	if !ok {
		t.Fatalf("column %q not found in %v", name, tbl.Columns())
	}
	out := make([]any, tbl.NumRows())
	for i := range out {
		out[i] = tbl.Row(i)[idx]
	}
	return out
}

func TestRegistryCoversEveryFactory(t *testing.T) {
	reg := NewRegistry()
	for _, name := range reg.Names() {
		p, err := reg.Create(recipe.Step{ProcessorType: name})
		if err != nil {
			t.Errorf("create %s: %v", name, err)
		}
		if p == nil {
			t.Errorf("create %s returned nil", name)
		}
	}
}

func TestRegistryUnknownTypeListsValid(t *testing.T) {
	_, err := NewRegistry().Create(recipe.Step{ProcessorType: "pivot_tabel"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "pivot_table") {
		t.Fatalf("error should list valid types: %v", err)
	}
}

func TestFilterEqualsAndNumeric(t *testing.T) {
	in := table.FromRows([]string{"Status", "Amount"}, [][]any{
		{"Active", int64(100)},
		{"Closed", int64(500)},
		{"Active", int64(20)},
	})
	rc := newTestContext(t, in, nil)
	out := runStep(t, rc, step("filter_data", map[string]any{
		"filters": []any{
			map[string]any{"column": "Status", "condition": "equals", "value": "Active"},
			map[string]any{"column": "Amount", "condition": "greater_than", "value": 50},
		},
	}))
	if out.NumRows() != 1 {
		t.Fatalf("got %d rows, want 1", out.NumRows())
	}
	if v, _ := out.Value(0, "Amount"); v != int64(100) {
		t.Fatalf("Amount = %v", v)
	}
}

func TestFilterInListAndEmpty(t *testing.T) {
	in := table.FromRows([]string{"Region"}, [][]any{
		{"west"}, {"east"}, {""}, {nil}, {"north"},
	})
	rc := newTestContext(t, in, nil)
	out := runStep(t, rc, step("filter_data", map[string]any{
		"filters": []any{
			map[string]any{"column": "Region", "condition": "not_empty"},
			map[string]any{"column": "Region", "condition": "in_list", "value": []any{"west", "north"}},
		},
	}))
	want := []any{"west", "north"}
	if diff := cmp.Diff(want, column(t, out, "Region")); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterUnknownConditionFailsValidation(t *testing.T) {
	p, err := NewRegistry().Create(step("filter_data", map[string]any{
		"filters": []any{
			map[string]any{"column": "a", "condition": "equalz", "value": "x"},
		},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Validate(); err == nil || !strings.Contains(err.Error(), "equalz") {
		t.Fatalf("validate = %v", err)
	}
}

func TestCleanWhitespaceAndCase(t *testing.T) {
	in := table.FromRows([]string{"Name"}, [][]any{
		{"  acme   corp  "},
		{"BETA\tllc"},
	})
	rc := newTestContext(t, in, nil)
	out := runStep(t, rc, step("clean_data", map[string]any{
		"rules": []any{
			map[string]any{"action": "normalize_whitespace", "columns": "Name"},
			map[string]any{"action": "title_case", "columns": "Name"},
		},
	}))
	want := []any{"Acme Corp", "Beta Llc"}
	if diff := cmp.Diff(want, column(t, out, "Name")); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestCleanReplaceAndFillEmpty(t *testing.T) {
	in := table.FromRows([]string{"Code"}, [][]any{
		{"N/A"}, {""}, {"X1"},
	})
	rc := newTestContext(t, in, nil)
	out := runStep(t, rc, step("clean_data", map[string]any{
		"rules": []any{
			map[string]any{"action": "replace", "columns": "Code", "old_value": "N/A", "new_value": ""},
			map[string]any{"action": "fill_empty", "columns": "Code", "fill_value": "UNKNOWN"},
		},
	}))
	want := []any{"UNKNOWN", "UNKNOWN", "X1"}
	if diff := cmp.Diff(want, column(t, out, "Code")); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestCleanRemoveDuplicates(t *testing.T) {
	in := table.FromRows([]string{"ID", "Note"}, [][]any{
		{int64(1), "first"},
		{int64(1), "second"},
		{int64(2), "third"},
	})
	rc := newTestContext(t, in, nil)
	out := runStep(t, rc, step("clean_data", map[string]any{
		"rules": []any{
			map[string]any{"action": "remove_duplicates", "columns": []any{"ID"}},
		},
	}))
	if out.NumRows() != 2 {
		t.Fatalf("got %d rows, want 2", out.NumRows())
	}
	if v, _ := out.Value(0, "Note"); v != "first" {
		t.Fatalf("dedupe kept %v, want first occurrence", v)
	}
}

func TestRenameByMappingAndConversion(t *testing.T) {
	in := table.FromRows([]string{"Cust Name", "Order Total"}, [][]any{{"a", int64(1)}})
	rc := newTestContext(t, in, nil)
	out := runStep(t, rc, step("rename_columns", map[string]any{
		"mapping": map[string]any{"Cust Name": "Customer"},
	}))
	if !out.HasColumn("Customer") || out.HasColumn("Cust Name") {
		t.Fatalf("columns = %v", out.Columns())
	}

	rc2 := newTestContext(t, in, nil)
	out2 := runStep(t, rc2, step("rename_columns", map[string]any{
		"case_conversion": "snake_case",
	}))
	if diff := cmp.Diff([]string{"cust_name", "order_total"}, out2.Columns()); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitColumnDelimiter(t *testing.T) {
	in := table.FromRows([]string{"Full"}, [][]any{
		{"Doe, Jane"},
		{"Solo"},
	})
	rc := newTestContext(t, in, nil)
	out := runStep(t, rc, step("split_column", map[string]any{
		"source_column":    "Full",
		"split_type":       "delimiter",
		"delimiter":        ", ",
		"new_column_names": []any{"Last", "First"},
		"remove_original":  true,
		"fill_missing":     "",
	}))
	if diff := cmp.Diff([]string{"Last", "First"}, out.Columns()); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"Jane", ""}, column(t, out, "First")); diff != "" {
		t.Fatalf("First mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitColumnFixedWidth(t *testing.T) {
	in := table.FromRows([]string{"Code"}, [][]any{{"AB1234"}})
	rc := newTestContext(t, in, nil)
	out := runStep(t, rc, step("split_column", map[string]any{
		"source_column": "Code",
		"split_type":    "fixed_width",
		"widths":        []any{2, 4},
	}))
	if v, _ := out.Value(0, "Code_1"); v != "AB" {
		t.Fatalf("Code_1 = %v", v)
	}
	if v, _ := out.Value(0, "Code_2"); v != "1234" {
		t.Fatalf("Code_2 = %v", v)
	}
}

func TestFillForwardWithLimit(t *testing.T) {
	in := table.FromRows([]string{"Group"}, [][]any{
		{"A"}, {nil}, {nil}, {nil}, {"B"}, {nil},
	})
	rc := newTestContext(t, in, nil)
	out := runStep(t, rc, step("fill_data", map[string]any{
		"columns":     "Group",
		"fill_method": "forward",
		"limit":       2,
	}))
	want := []any{"A", "A", "A", nil, "B", "B"}
	if diff := cmp.Diff(want, column(t, out, "Group")); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestFillBackward(t *testing.T) {
	in := table.FromRows([]string{"V"}, [][]any{{nil}, {"x"}, {nil}})
	rc := newTestContext(t, in, nil)
	out := runStep(t, rc, step("fill_data", map[string]any{
		"columns":     []any{"V"},
		"fill_method": "backward",
	}))
	want := []any{"x", "x", nil}
	if diff := cmp.Diff(want, column(t, out, "V")); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestSortMultiColumn(t *testing.T) {
	in := table.FromRows([]string{"Region", "Amount"}, [][]any{
		{"west", int64(5)},
		{"east", int64(9)},
		{"west", int64(2)},
	})
	rc := newTestContext(t, in, nil)
	out := runStep(t, rc, step("sort_data", map[string]any{
		"columns":   []any{"Region", "Amount"},
		"ascending": []any{true, false},
	}))
	if diff := cmp.Diff([]any{int64(9), int64(5), int64(2)}, column(t, out, "Amount")); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestSortCustomOrderAndNaPosition(t *testing.T) {
	in := table.FromRows([]string{"Size"}, [][]any{
		{"Large"}, {nil}, {"Small"}, {"Medium"},
	})
	rc := newTestContext(t, in, nil)
	out := runStep(t, rc, step("sort_data", map[string]any{
		"columns": "Size",
		"custom_orders": map[string]any{
			"Size": []any{"Small", "Medium", "Large"},
		},
		"na_position": "last",
	}))
	want := []any{"Small", "Medium", "Large", nil}
	if diff := cmp.Diff(want, column(t, out, "Size")); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregateSumMeanCount(t *testing.T) {
	in := table.FromRows([]string{"Region", "Amount"}, [][]any{
		{"west", int64(10)},
		{"east", int64(7)},
		{"west", int64(30)},
	})
	rc := newTestContext(t, in, nil)
	out := runStep(t, rc, step("aggregate_data", map[string]any{
		"group_by": "Region",
		"aggregations": []any{
			map[string]any{"column": "Amount", "function": "sum", "new_column_name": "Total"},
			map[string]any{"column": "Amount", "function": "mean"},
			map[string]any{"column": "Amount", "function": "count"},
		},
	}))
	// first-appearance group order
	if diff := cmp.Diff([]any{"west", "east"}, column(t, out, "Region")); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{40.0, 7.0}, column(t, out, "Total")); diff != "" {
		t.Fatalf("sums mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{20.0, 7.0}, column(t, out, "Amount_mean")); diff != "" {
		t.Fatalf("means mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{int64(2), int64(1)}, column(t, out, "Amount_count")); diff != "" {
		t.Fatalf("counts mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregateNonNumericSumFails(t *testing.T) {
	in := table.FromRows([]string{"G", "V"}, [][]any{{"a", "oops"}})
	rc := newTestContext(t, in, nil)
	p, err := NewRegistry().Create(step("aggregate_data", map[string]any{
		"group_by": "G",
		"aggregations": []any{
			map[string]any{"column": "V", "function": "sum"},
		},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Execute(rc); err == nil {
		t.Fatal("summing text should fail")
	}
}

func TestGroupDataMapsValues(t *testing.T) {
	in := table.FromRows([]string{"Product"}, [][]any{
		{"apple"}, {"Carrot"}, {"mystery"},
	})
	rc := newTestContext(t, in, nil)
	out := runStep(t, rc, step("group_data", map[string]any{
		"source_column": "Product",
		"groups": map[string]any{
			"Fruit":     []any{"apple", "banana"},
			"Vegetable": []any{"carrot"},
		},
		"case_sensitive": false,
	}))
	want := []any{"Fruit", "Vegetable", "mystery"}
	if diff := cmp.Diff(want, column(t, out, "Product_group")); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupDataUnmatchedError(t *testing.T) {
	in := table.FromRows([]string{"P"}, [][]any{{"nope"}})
	rc := newTestContext(t, in, nil)
	p, err := NewRegistry().Create(step("group_data", map[string]any{
		"source_column":    "P",
		"groups":           map[string]any{"G": []any{"yes"}},
		"unmatched_action": "error",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Execute(rc); err == nil || !strings.Contains(err.Error(), "matches no group") {
		t.Fatalf("execute = %v", err)
	}
}

func TestLookupLeftJoinWithDefaults(t *testing.T) {
	main := table.FromRows([]string{"SKU", "Qty"}, [][]any{
		{"A1", int64(3)},
		{"B2", int64(1)},
	})
	lookup := table.FromRows([]string{"Code", "Price"}, [][]any{
		{"A1", 9.99},
	})
	rc := newTestContext(t, main, map[string]*table.Table{"prices": lookup})
	out := runStep(t, rc, step("lookup_data", map[string]any{
		"lookup_stage":             "prices",
		"match_col_in_lookup_data": "Code",
		"match_col_in_main_data":   "SKU",
		"lookup_columns":           []any{"Price"},
		"default_values":           map[string]any{"Price": 0},
	}))
	if diff := cmp.Diff([]any{9.99, 0}, column(t, out, "Price")); diff != "" {
		t.Fatalf("prices mismatch (-want +got):\n%s", diff)
	}
}

func TestLookupInnerJoinDropsUnmatched(t *testing.T) {
	main := table.FromRows([]string{"SKU"}, [][]any{{"A1"}, {"B2"}})
	lookup := table.FromRows([]string{"Code", "Price"}, [][]any{{"A1", 9.99}})
	rc := newTestContext(t, main, map[string]*table.Table{"prices": lookup})
	out := runStep(t, rc, step("lookup_data", map[string]any{
		"lookup_stage":             "prices",
		"match_col_in_lookup_data": "Code",
		"match_col_in_main_data":   "SKU",
		"lookup_columns":           []any{"Price"},
		"join_type":                "inner",
	}))
	if out.NumRows() != 1 {
		t.Fatalf("got %d rows, want 1", out.NumRows())
	}
}

func TestLookupDuplicateKeyError(t *testing.T) {
	main := table.FromRows([]string{"SKU"}, [][]any{{"A1"}})
	lookup := table.FromRows([]string{"Code", "Price"}, [][]any{
		{"A1", 1.0},
		{"A1", 2.0},
	})
	rc := newTestContext(t, main, map[string]*table.Table{"prices": lookup})
	p, err := NewRegistry().Create(step("lookup_data", map[string]any{
		"lookup_stage":             "prices",
		"match_col_in_lookup_data": "Code",
		"match_col_in_main_data":   "SKU",
		"lookup_columns":           []any{"Price"},
		"handle_duplicates":        "error",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Execute(rc); err == nil || !strings.Contains(err.Error(), "duplicate key") {
		t.Fatalf("execute = %v", err)
	}
}

func TestLookupHandleDuplicatesLast(t *testing.T) {
	main := table.FromRows([]string{"SKU"}, [][]any{{"A1"}})
	lookup := table.FromRows([]string{"Code", "Price"}, [][]any{
		{"A1", 1.0},
		{"A1", 2.0},
	})
	rc := newTestContext(t, main, map[string]*table.Table{"prices": lookup})
	out := runStep(t, rc, step("lookup_data", map[string]any{
		"lookup_stage":             "prices",
		"match_col_in_lookup_data": "Code",
		"match_col_in_main_data":   "SKU",
		"lookup_columns":           []any{"Price"},
		"handle_duplicates":        "last",
	}))
	if v, _ := out.Value(0, "Price"); v != 2.0 {
		t.Fatalf("Price = %v, want 2.0", v)
	}
}

func TestMergeOuterJoinWithSuffixes(t *testing.T) {
	left := table.FromRows([]string{"ID", "Name"}, [][]any{
		{int64(1), "left-one"},
		{int64(2), "left-two"},
	})
	right := table.FromRows([]string{"ID", "Name"}, [][]any{
		{int64(2), "right-two"},
		{int64(3), "right-three"},
	})
	rc := newTestContext(t, left, map[string]*table.Table{"other": right})
	out := runStep(t, rc, step("merge_data", map[string]any{
		"merge_source": map[string]any{"type": "stage", "stage_name": "other"},
		"left_key":     "ID",
		"right_key":    "ID",
		"join_type":    "outer",
	}))
	if diff := cmp.Diff([]string{"ID", "Name_x", "Name_y"}, out.Columns()); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
	if out.NumRows() != 3 {
		t.Fatalf("got %d rows, want 3", out.NumRows())
	}
	// the right-only row keeps its key
	if v, _ := out.Value(2, "ID"); v != int64(3) {
		t.Fatalf("right-only key = %v, want 3", v)
	}
	if v, _ := out.Value(2, "Name_x"); v != nil {
		t.Fatalf("right-only left name = %v, want nil", v)
	}
}

func TestMergeInnerJoin(t *testing.T) {
	left := table.FromRows([]string{"K", "A"}, [][]any{{"x", int64(1)}, {"y", int64(2)}})
	right := table.FromRows([]string{"K", "B"}, [][]any{{"x", int64(10)}})
	rc := newTestContext(t, left, map[string]*table.Table{"other": right})
	out := runStep(t, rc, step("merge_data", map[string]any{
		"merge_source": map[string]any{"type": "stage", "stage_name": "other"},
		"left_key":     "K",
		"right_key":    "K",
		"join_type":    "inner",
	}))
	if out.NumRows() != 1 {
		t.Fatalf("got %d rows, want 1", out.NumRows())
	}
	if v, _ := out.Value(0, "B"); v != int64(10) {
		t.Fatalf("B = %v", v)
	}
}

func TestPivotTable(t *testing.T) {
	in := table.FromRows([]string{"Region", "Quarter", "Sales"}, [][]any{
		{"west", "Q1", int64(10)},
		{"west", "Q2", int64(20)},
		{"east", "Q1", int64(5)},
		{"west", "Q1", int64(1)},
	})
	rc := newTestContext(t, in, nil)
	out := runStep(t, rc, step("pivot_table", map[string]any{
		"index":      "Region",
		"columns":    "Quarter",
		"values":     "Sales",
		"aggfunc":    "sum",
		"fill_value": 0,
	}))
	if diff := cmp.Diff([]string{"Region", "Q1", "Q2"}, out.Columns()); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{11.0, 5.0}, column(t, out, "Q1")); diff != "" {
		t.Fatalf("Q1 mismatch (-want +got):\n%s", diff)
	}
	// east has no Q2 rows, so the fill value applies
	if v, _ := out.Value(1, "Q2"); v != 0 {
		t.Fatalf("east Q2 = %v, want fill value 0", v)
	}
}

func TestAddSubtotals(t *testing.T) {
	in := table.FromRows([]string{"Region", "Amount"}, [][]any{
		{"east", int64(5)},
		{"west", int64(10)},
		{"west", int64(30)},
	})
	rc := newTestContext(t, in, nil)
	out := runStep(t, rc, step("add_subtotals", map[string]any{
		"group_by":         "Region",
		"subtotal_columns": "Amount",
		"grand_total":      true,
	}))
	// 3 data rows + 2 subtotals + 1 grand total
	if out.NumRows() != 6 {
		t.Fatalf("got %d rows, want 6", out.NumRows())
	}
	if v, _ := out.Value(1, "Region"); v != "east Subtotal" {
		t.Fatalf("row 1 label = %v", v)
	}
	if v, _ := out.Value(4, "Amount"); v != 40.0 {
		t.Fatalf("west subtotal = %v, want 40", v)
	}
	if v, _ := out.Value(5, "Region"); v != "Grand Total" {
		t.Fatalf("grand total label = %v", v)
	}
	if v, _ := out.Value(5, "Amount"); v != 45.0 {
		t.Fatalf("grand total = %v, want 45", v)
	}
}

func TestSelectColumnsKeepAndDrop(t *testing.T) {
	in := table.FromRows([]string{"a", "b", "c"}, [][]any{{int64(1), int64(2), int64(3)}})
	rc := newTestContext(t, in, nil)
	out := runStep(t, rc, step("select_columns", map[string]any{
		"columns_to_keep": []any{"c", "a"},
	}))
	if diff := cmp.Diff([]string{"c", "a"}, out.Columns()); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}

	p, err := NewRegistry().Create(step("select_columns", map[string]any{
		"columns_to_keep": []any{"a"},
		"columns_to_drop": []any{"b"},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Validate(); err == nil {
		t.Fatal("both keep and drop should fail validation")
	}
}

func TestSliceRowRangeHeadTail(t *testing.T) {
	in := table.FromRows([]string{"n"}, [][]any{
		{int64(1)}, {int64(2)}, {int64(3)}, {int64(4)}, {int64(5)},
	})

	rc := newTestContext(t, in, nil)
	out := runStep(t, rc, step("slice_data", map[string]any{
		"slice_type": "row_range",
		"start_row":  2,
		"end_row":    4,
	}))
	if diff := cmp.Diff([]any{int64(2), int64(3), int64(4)}, column(t, out, "n")); diff != "" {
		t.Fatalf("row_range mismatch (-want +got):\n%s", diff)
	}

	rc = newTestContext(t, in, nil)
	out = runStep(t, rc, step("slice_data", map[string]any{
		"slice_type": "head",
		"num_rows":   2,
	}))
	if out.NumRows() != 2 {
		t.Fatalf("head got %d rows", out.NumRows())
	}

	rc = newTestContext(t, in, nil)
	out = runStep(t, rc, step("slice_data", map[string]any{
		"slice_type": "tail",
		"num_rows":   2,
	}))
	if diff := cmp.Diff([]any{int64(4), int64(5)}, column(t, out, "n")); diff != "" {
		t.Fatalf("tail mismatch (-want +got):\n%s", diff)
	}
}

func TestCopyStage(t *testing.T) {
	in := table.FromRows([]string{"a"}, [][]any{{"v"}})
	rc := newTestContext(t, in, nil)
	out := runStep(t, rc, step("copy_stage", nil))
	if v, _ := out.Value(0, "a"); v != "v" {
		t.Fatalf("copy = %v", v)
	}
}

func TestRequireParamsReportsAllMissing(t *testing.T) {
	p, err := NewRegistry().Create(step("lookup_data", map[string]any{}))
	if err != nil {
		t.Fatal(err)
	}
	err = p.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, field := range []string{"lookup_stage", "match_col_in_lookup_data", "match_col_in_main_data", "lookup_columns"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("missing-field report should name %s: %v", field, err)
		}
	}
}
