package recipe

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// fakeCatalog stands in for the processor registry.
type fakeCatalog struct {
	types map[string][2]bool
}

func (c *fakeCatalog) Known(name string) bool {
	_, ok := c.types[name]
	return ok
}

func (c *fakeCatalog) Names() []string {
	var out []string
	for name := range c.types {
		out = append(out, name)
	}
	return out
}

func (c *fakeCatalog) Requirements(name string) (bool, bool) {
	req, ok := c.types[name]
	if !ok {
		return true, true
	}
	return req[0], req[1]
}

func testCatalog() *fakeCatalog {
	return &fakeCatalog{types: map[string][2]bool{
		"import_file":      {false, true},
		"export_file":      {true, false},
		"filter_data":      {true, true},
		"pivot_table":      {true, true},
		"debug_breakpoint": {false, false},
	}}
}

const validYAML = `
settings:
  description: "Monthly sales cleanup"
  stages:
    - stage_name: "raw"
      description: "imported data"
    - stage_name: "cleaned"
      protected: true
  variables:
    region: "west"
  output_filename: "out_{date}.xlsx"

recipe:
  - step_description: "Import the export"
    processor_type: "import_file"
    input_file: "{input_filename}"
    save_to_stage: "raw"
  - step_description: "Keep active rows"
    processor_type: "filter_data"
    source_stage: "raw"
    save_to_stage: "cleaned"
    filters:
      - column: "Status"
        condition: "equals"
        value: "Active"
`

func TestParseValidRecipe(t *testing.T) {
	r, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatal(err)
	}
	if r.Settings.Description != "Monthly sales cleanup" {
		t.Fatalf("description = %q", r.Settings.Description)
	}
	if len(r.Settings.Stages) != 2 || !r.Settings.Stages[1].Protected {
		t.Fatalf("stages = %+v", r.Settings.Stages)
	}
	if r.Settings.Variables["region"] != "west" {
		t.Fatalf("variables = %v", r.Settings.Variables)
	}
	if len(r.Steps) != 2 {
		t.Fatalf("got %d steps", len(r.Steps))
	}

	step := r.Steps[1]
	if step.ProcessorType != "filter_data" || step.SourceStage != "raw" || step.SaveToStage != "cleaned" {
		t.Fatalf("step = %+v", step)
	}
	// shared fields must not leak into Params
	for _, key := range []string{"step_description", "processor_type", "source_stage", "save_to_stage"} {
		if _, ok := step.Params[key]; ok {
			t.Errorf("shared field %q leaked into Params", key)
		}
	}
	if _, ok := step.Params["filters"]; !ok {
		t.Fatal("processor params missing from Params")
	}

	if err := Validate(r, testCatalog()); err != nil {
		t.Fatalf("valid recipe rejected: %v", err)
	}
}

func TestParseMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("settings: [unclosed"))
	var cfg *ConfigError
	if !errors.As(err, &cfg) {
		t.Fatalf("error type %T, want ConfigError", err)
	}
}

func TestParseEmptyDocument(t *testing.T) {
	if _, err := Parse([]byte("")); err == nil {
		t.Fatal("empty recipe accepted")
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	r, err := Parse([]byte(`
settings:
  description: "broken recipe"
  stages:
    - stage_name: "raw"
recipe:
  - processor_type: "pivot_tabel"
    source_stage: "raw"
    save_to_stage: "pivoted"
  - processor_type: "filter_data"
    source_stage: "missing"
    save_to_stage: "raw"
  - step_description: "no type"
    source_stage: "raw"
`))
	if err != nil {
		t.Fatal(err)
	}
	problems := Problems(r, testCatalog())
	if len(problems) != 3 {
		t.Fatalf("got %d problems, want 3:\n%s", len(problems), strings.Join(problems, "\n"))
	}

	// a typoed processor type must list the valid types
	if !strings.Contains(problems[0], `unknown processor type "pivot_tabel"`) ||
		!strings.Contains(problems[0], "pivot_table") {
		t.Fatalf("typo report should list valid types: %s", problems[0])
	}
	if !strings.Contains(problems[1], `source stage "missing"`) {
		t.Fatalf("problems[1] = %s", problems[1])
	}
	if !strings.Contains(problems[2], "processor_type is required") {
		t.Fatalf("problems[2] = %s", problems[2])
	}
}

func TestUndeclaredStages(t *testing.T) {
	r, err := Parse([]byte(`
settings:
  description: "d"
  stages:
    - stage_name: "raw"
recipe:
  - processor_type: "filter_data"
    source_stage: "raw"
    save_to_stage: "cleaned"
  - processor_type: "export_file"
    source_stage: "cleaned"
    output_file: "o.csv"
`))
	if err != nil {
		t.Fatal(err)
	}
	got := UndeclaredStages(r)
	if diff := cmp.Diff([]string{"cleaned"}, got); diff != "" {
		t.Fatalf("undeclared stages mismatch (-want +got):\n%s", diff)
	}

	block := SuggestDeclarations(got)
	if !strings.Contains(block, `stage_name: "cleaned"`) {
		t.Fatalf("suggestion block:\n%s", block)
	}
}

func TestStepName(t *testing.T) {
	s := Step{ProcessorType: "filter_data"}
	if got := s.StepName(2); got != "step 3 (filter_data)" {
		t.Fatalf("got %q", got)
	}
	s.Description = "named"
	if got := s.StepName(2); got != "named" {
		t.Fatalf("got %q", got)
	}
}
