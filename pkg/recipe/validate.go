package recipe

import (
	"fmt"
	"sort"
	"strings"
)

// ProcessorCatalog is what validation needs to know about registered
// processors without depending on the processor package.
type ProcessorCatalog interface {
	Known(name string) bool
	Names() []string
	// Requirements reports whether the named processor needs a source_stage
	// and a save_to_stage.
	Requirements(name string) (needsSource, needsSave bool)
}

// Validate runs the full structural validation and returns a ConfigError
// listing every problem found, or nil.
func Validate(r *Recipe, cat ProcessorCatalog) error {
	problems := Problems(r, cat)
	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

// Problems collects every structural problem in the recipe. An empty slice
// means the recipe is valid.
func Problems(r *Recipe, cat ProcessorCatalog) []string {
	var problems []string

	if strings.TrimSpace(r.Settings.Description) == "" {
		problems = append(problems, "settings.description is required")
	}
	if len(r.Steps) == 0 {
		problems = append(problems, "recipe must contain at least one step")
	}

	declared := make(map[string]bool)
	for i, d := range r.Settings.Stages {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			problems = append(problems, fmt.Sprintf("settings.stages[%d]: stage_name is required", i))
			continue
		}
		if declared[name] {
			problems = append(problems, fmt.Sprintf("stage %q declared more than once", name))
		}
		declared[name] = true
	}

	for i, step := range r.Steps {
		label := step.StepName(i)
		if step.ProcessorType == "" {
			problems = append(problems, fmt.Sprintf("%s: processor_type is required", label))
			continue
		}
		if !cat.Known(step.ProcessorType) {
			problems = append(problems, fmt.Sprintf(
				"%s: unknown processor type %q; valid types: %s",
				label, step.ProcessorType, strings.Join(cat.Names(), ", ")))
			continue
		}
		needsSource, needsSave := cat.Requirements(step.ProcessorType)
		if needsSource && step.SourceStage == "" {
			problems = append(problems, fmt.Sprintf("%s: source_stage is required for %s", label, step.ProcessorType))
		}
		if needsSave && step.SaveToStage == "" {
			problems = append(problems, fmt.Sprintf("%s: save_to_stage is required for %s", label, step.ProcessorType))
		}
		if step.SourceStage != "" && !declared[step.SourceStage] {
			problems = append(problems, fmt.Sprintf("%s: source stage %q is not declared in settings.stages", label, step.SourceStage))
		}
		if step.SaveToStage != "" && !declared[step.SaveToStage] {
			problems = append(problems, fmt.Sprintf("%s: save stage %q is not declared in settings.stages", label, step.SaveToStage))
		}
	}

	return problems
}

// UndeclaredStages returns every stage name a step references that is
// missing from settings.stages, sorted.
func UndeclaredStages(r *Recipe) []string {
	declared := make(map[string]bool)
	for _, d := range r.Settings.Stages {
		declared[d.Name] = true
	}
	seen := make(map[string]bool)
	for _, step := range r.Steps {
		for _, name := range []string{step.SourceStage, step.SaveToStage} {
			if name != "" && !declared[name] && !seen[name] {
				seen[name] = true
			}
		}
	}
	var out []string
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SuggestDeclarations renders a settings.stages block for undeclared stage
// names, ready to paste into the recipe.
func SuggestDeclarations(names []string) string {
	if len(names) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("suggested stage declarations for settings:\n\nstages:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  - stage_name: %q\n", name)
		fmt.Fprintf(&b, "    description: \"TODO: describe %s\"\n", name)
		b.WriteString("    protected: false\n")
	}
	return b.String()
}
