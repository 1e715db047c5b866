package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zen-systems/sheetpipe/pkg/processor"
	"github.com/zen-systems/sheetpipe/pkg/recipe"
)

var testClock = time.Date(2024, 12, 21, 14, 30, 45, 0, time.UTC)

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func parseRecipe(t *testing.T, yamlText string) *recipe.Recipe {
	t.Helper()
	r, err := recipe.Parse([]byte(yamlText))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	input := writeCSV(t, dir, "sales.csv",
		"Region,Status,Amount\nwest,Active,100\neast,Closed,50\nwest,Active,25\n")
	output := filepath.Join(dir, "out_{YY}{MMDD}.csv")

	rec := parseRecipe(t, `
settings:
  description: "filter and total"
  stages:
    - stage_name: "raw"
    - stage_name: "active"
    - stage_name: "totals"
recipe:
  - step_description: "import"
    processor_type: "import_file"
    input_file: "`+strings.ReplaceAll(input, `\`, `\\`)+`"
    save_to_stage: "raw"
  - step_description: "keep active"
    processor_type: "filter_data"
    source_stage: "raw"
    save_to_stage: "active"
    filters:
      - column: "Status"
        condition: "equals"
        value: "Active"
  - step_description: "total by region"
    processor_type: "aggregate_data"
    source_stage: "active"
    save_to_stage: "totals"
    group_by: "Region"
    aggregations:
      - column: "Amount"
        function: "sum"
        new_column_name: "Total"
`)

	result, err := Run(context.Background(), rec, processor.NewRegistry(), RunOptions{
		InputPath:  input,
		OutputPath: output,
		Logger:     quietLogger(),
		Clock:      testClock,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != StatusCompleted {
		t.Fatalf("status = %s", result.Status)
	}
	if len(result.Steps) != 3 {
		t.Fatalf("got %d step results", len(result.Steps))
	}
	if result.Steps[1].RowsIn != 3 || result.Steps[1].RowsOut != 2 {
		t.Fatalf("filter step = %+v", result.Steps[1])
	}
	if result.RunID == "" {
		t.Fatal("missing run ID")
	}

	// the output filename's variables expand against the frozen clock
	wantOut := filepath.Join(dir, "out_241221.csv")
	if result.OutputPath != wantOut {
		t.Fatalf("output path = %q, want %q", result.OutputPath, wantOut)
	}
	data, err := os.ReadFile(wantOut)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, "west,125") {
		t.Fatalf("output content:\n%s", text)
	}
	if strings.Contains(text, "east") {
		t.Fatalf("closed rows leaked into output:\n%s", text)
	}
}

func TestRunFailsAtStepAndStopsThere(t *testing.T) {
	dir := t.TempDir()
	input := writeCSV(t, dir, "in.csv", "A\n1\n")

	rec := parseRecipe(t, `
settings:
  description: "fails midway"
  stages:
    - stage_name: "raw"
    - stage_name: "second"
    - stage_name: "third"
recipe:
  - processor_type: "import_file"
    input_file: "`+strings.ReplaceAll(input, `\`, `\\`)+`"
    save_to_stage: "raw"
  - step_description: "bad filter"
    processor_type: "filter_data"
    source_stage: "raw"
    save_to_stage: "second"
    filters:
      - column: "Missing"
        condition: "equals"
        value: "x"
  - processor_type: "copy_stage"
    source_stage: "second"
    save_to_stage: "third"
`)

	result, err := Run(context.Background(), rec, processor.NewRegistry(), RunOptions{Logger: quietLogger()})
	if err == nil {
		t.Fatal("expected error")
	}
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("error type %T", err)
	}
	if stepErr.Index != 1 || stepErr.ProcessorType != "filter_data" {
		t.Fatalf("step error = %+v", stepErr)
	}
	if !strings.Contains(err.Error(), "step 2") {
		t.Fatalf("error = %v", err)
	}
	if result == nil || result.Status != StatusFailed {
		t.Fatalf("result = %+v", result)
	}
	// only the steps up to the failure ran
	if len(result.Steps) != 2 {
		t.Fatalf("got %d step results, want 2", len(result.Steps))
	}
}

func TestRunHaltsAtBreakpoint(t *testing.T) {
	dir := t.TempDir()
	input := writeCSV(t, dir, "in.csv", "A\n1\n2\n")
	dumpDir := filepath.Join(dir, "dumps")

	rec := parseRecipe(t, `
settings:
  description: "halts"
  stages:
    - stage_name: "raw"
    - stage_name: "never"
recipe:
  - processor_type: "import_file"
    input_file: "`+strings.ReplaceAll(input, `\`, `\\`)+`"
    save_to_stage: "raw"
  - processor_type: "debug_breakpoint"
    source_stage: "raw"
    output_path: "`+strings.ReplaceAll(dumpDir, `\`, `\\`)+`"
    format: "csv"
  - processor_type: "copy_stage"
    source_stage: "raw"
    save_to_stage: "never"
`)

	result, err := Run(context.Background(), rec, processor.NewRegistry(), RunOptions{
		Logger: quietLogger(),
		Clock:  testClock,
	})
	if err != nil {
		t.Fatalf("a breakpoint halt is not an error: %v", err)
	}
	if result.Status != StatusHalted {
		t.Fatalf("status = %s", result.Status)
	}
	if len(result.Steps) != 2 {
		t.Fatalf("got %d step results, want 2 (later steps must not run)", len(result.Steps))
	}
	if result.DumpPath == "" {
		t.Fatal("missing dump path")
	}
	if _, err := os.Stat(result.DumpPath); err != nil {
		t.Fatalf("dump file missing: %v", err)
	}
	// no output file on a halted run
	if result.OutputPath != "" {
		t.Fatalf("halted run wrote output %q", result.OutputPath)
	}
}

func TestRunRejectsInvalidRecipeUpFront(t *testing.T) {
	rec := parseRecipe(t, `
settings:
  description: "invalid"
  stages:
    - stage_name: "raw"
recipe:
  - processor_type: "pivot_tabel"
    source_stage: "raw"
    save_to_stage: "raw"
`)
	_, err := Run(context.Background(), rec, processor.NewRegistry(), RunOptions{Logger: quietLogger()})
	var cfg *recipe.ConfigError
	if !errors.As(err, &cfg) {
		t.Fatalf("error type %T, want ConfigError", err)
	}
	if !strings.Contains(err.Error(), "pivot_table") {
		t.Fatalf("error should list valid types: %v", err)
	}
}

func TestRunProtectedStageBlocksSecondWrite(t *testing.T) {
	dir := t.TempDir()
	input := writeCSV(t, dir, "in.csv", "A\n1\n")

	rec := parseRecipe(t, `
settings:
  description: "protected overwrite"
  stages:
    - stage_name: "guarded"
      protected: true
recipe:
  - processor_type: "import_file"
    input_file: "`+strings.ReplaceAll(input, `\`, `\\`)+`"
    save_to_stage: "guarded"
  - processor_type: "copy_stage"
    source_stage: "guarded"
    save_to_stage: "guarded"
`)

	_, err := Run(context.Background(), rec, processor.NewRegistry(), RunOptions{Logger: quietLogger()})
	if err == nil || !strings.Contains(err.Error(), "protected") {
		t.Fatalf("err = %v", err)
	}

	// the same overwrite succeeds with explicit confirmation
	rec2 := parseRecipe(t, `
settings:
  description: "confirmed overwrite"
  stages:
    - stage_name: "guarded"
      protected: true
recipe:
  - processor_type: "import_file"
    input_file: "`+strings.ReplaceAll(input, `\`, `\\`)+`"
    save_to_stage: "guarded"
  - processor_type: "copy_stage"
    source_stage: "guarded"
    save_to_stage: "guarded"
    confirm_stage_replacement: true
`)
	if _, err := Run(context.Background(), rec2, processor.NewRegistry(), RunOptions{Logger: quietLogger()}); err != nil {
		t.Fatalf("confirmed overwrite failed: %v", err)
	}
}

func TestRunVariableOverridesWin(t *testing.T) {
	dir := t.TempDir()
	input := writeCSV(t, dir, "in.csv", "Region\nwest\neast\n")

	rec := parseRecipe(t, `
settings:
  description: "variables"
  variables:
    region: "east"
  stages:
    - stage_name: "raw"
    - stage_name: "picked"
recipe:
  - processor_type: "import_file"
    input_file: "`+strings.ReplaceAll(input, `\`, `\\`)+`"
    save_to_stage: "raw"
  - processor_type: "filter_data"
    source_stage: "raw"
    save_to_stage: "picked"
    filters:
      - column: "Region"
        condition: "equals"
        value: "{region}"
`)

	result, err := Run(context.Background(), rec, processor.NewRegistry(), RunOptions{
		Logger:    quietLogger(),
		Variables: map[string]string{"region": "west"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Steps[1].RowsOut != 1 {
		t.Fatalf("filter kept %d rows", result.Steps[1].RowsOut)
	}
}

func TestRunUnknownVariableFailsStep(t *testing.T) {
	dir := t.TempDir()
	input := writeCSV(t, dir, "in.csv", "A\n1\n")

	rec := parseRecipe(t, `
settings:
  description: "bad token"
  stages:
    - stage_name: "raw"
recipe:
  - processor_type: "import_file"
    input_file: "`+strings.ReplaceAll(input, `\`, `\\`)+`"
    save_to_stage: "raw"
  - processor_type: "export_file"
    source_stage: "raw"
    output_file: "out_{nope}.csv"
`)

	_, err := Run(context.Background(), rec, processor.NewRegistry(), RunOptions{Logger: quietLogger()})
	if err == nil || !strings.Contains(err.Error(), "unknown variable") {
		t.Fatalf("err = %v", err)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := parseRecipe(t, `
settings:
  description: "cancelled"
  stages:
    - stage_name: "raw"
recipe:
  - processor_type: "import_file"
    input_file: "whatever.csv"
    save_to_stage: "raw"
`)
	_, err := Run(ctx, rec, processor.NewRegistry(), RunOptions{Logger: quietLogger()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunFailureKeepsStageSnapshots(t *testing.T) {
	dir := t.TempDir()
	input := writeCSV(t, dir, "in.csv", "A,B\n1,x\n2,y\n")

	rec := parseRecipe(t, `
settings:
  description: "fails after the import"
  stages:
    - stage_name: "raw"
    - stage_name: "second"
recipe:
  - processor_type: "import_file"
    input_file: "`+strings.ReplaceAll(input, `\`, `\\`)+`"
    save_to_stage: "raw"
  - step_description: "bad filter"
    processor_type: "filter_data"
    source_stage: "raw"
    save_to_stage: "second"
    filters:
      - column: "Missing"
        condition: "equals"
        value: "x"
`)

	result, err := Run(context.Background(), rec, processor.NewRegistry(), RunOptions{Logger: quietLogger()})
	if err == nil {
		t.Fatal("expected error")
	}
	if result.Status != StatusFailed {
		t.Fatalf("status = %s", result.Status)
	}
	// the stages populated before the failing step stay readable for
	// diagnostic dumping
	if result.Snapshots == nil {
		t.Fatal("failed run lost its stage store")
	}
	raw, err := result.Snapshots.Load("raw")
	if err != nil {
		t.Fatalf("stage from before the failure unreadable: %v", err)
	}
	if raw.NumRows() != 2 {
		t.Fatalf("snapshot has %d rows, want 2", raw.NumRows())
	}
	if v, err := raw.Value(1, "B"); err != nil || v != "y" {
		t.Fatalf("snapshot value = %v, %v", v, err)
	}
	if result.Stages.Populated != 1 {
		t.Fatalf("summary = %+v, want 1 populated stage", result.Stages)
	}
}

func TestRunCleansThenFilters(t *testing.T) {
	dir := t.TempDir()
	input := writeCSV(t, dir, "statuses.csv",
		"Name,Status\nAlice,Active \nBob,Active\nCara,  Active\n")
	output := filepath.Join(dir, "active.csv")

	rec := parseRecipe(t, `
settings:
  description: "strip then filter"
  stages:
    - stage_name: "raw"
    - stage_name: "clean"
    - stage_name: "active"
recipe:
  - processor_type: "import_file"
    input_file: "`+strings.ReplaceAll(input, `\`, `\\`)+`"
    save_to_stage: "raw"
  - step_description: "strip padding"
    processor_type: "clean_data"
    source_stage: "raw"
    save_to_stage: "clean"
    rules:
      - columns: "Status"
        action: "strip_whitespace"
  - step_description: "keep active"
    processor_type: "filter_data"
    source_stage: "clean"
    save_to_stage: "active"
    filters:
      - column: "Status"
        condition: "equals"
        value: "Active"
`)

	result, err := Run(context.Background(), rec, processor.NewRegistry(), RunOptions{
		OutputPath: output,
		Logger:     quietLogger(),
		Clock:      testClock,
	})
	if err != nil {
		t.Fatal(err)
	}
	// all three rows survive once the padding is stripped
	if got := result.Steps[2]; got.RowsIn != 3 || got.RowsOut != 3 {
		t.Fatalf("filter step = %+v, want 3 rows in and out", got)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("output has %d lines, want header + 3 rows:\n%s", len(lines), data)
	}
}

func TestRunBreakpointWithoutSourceStage(t *testing.T) {
	dir := t.TempDir()
	input := writeCSV(t, dir, "in.csv", "A\n1\n2\n")
	dumpDir := filepath.Join(dir, "dumps")

	rec := parseRecipe(t, `
settings:
  description: "bare breakpoint"
  stages:
    - stage_name: "raw"
recipe:
  - processor_type: "import_file"
    input_file: "`+strings.ReplaceAll(input, `\`, `\\`)+`"
    save_to_stage: "raw"
  - processor_type: "debug_breakpoint"
    output_path: "`+strings.ReplaceAll(dumpDir, `\`, `\\`)+`"
    format: "csv"
`)

	result, err := Run(context.Background(), rec, processor.NewRegistry(), RunOptions{
		Logger: quietLogger(),
		Clock:  testClock,
	})
	if err != nil {
		t.Fatalf("breakpoint without source_stage must validate and run: %v", err)
	}
	if result.Status != StatusHalted {
		t.Fatalf("status = %s", result.Status)
	}
	data, err := os.ReadFile(result.DumpPath)
	if err != nil {
		t.Fatal(err)
	}
	// the dump carries the most recently saved stage
	if !strings.HasPrefix(string(data), "A\n") {
		t.Fatalf("dump content:\n%s", data)
	}
}
