// Package recipe defines the YAML recipe document (settings + ordered
// steps), its loader, and structural validation.
package recipe

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigError reports one or more recipe configuration problems. Validation
// collects every problem it finds before reporting, so a recipe author sees
// the full list at once.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	if len(e.Problems) == 1 {
		return e.Problems[0]
	}
	return fmt.Sprintf("%d recipe problems:\n  - %s",
		len(e.Problems), strings.Join(e.Problems, "\n  - "))
}

// StageDecl declares a stage in recipe settings.
type StageDecl struct {
	Name        string `yaml:"stage_name"`
	Description string `yaml:"description"`
	Protected   bool   `yaml:"protected"`
}

// Settings is the recipe's settings section.
type Settings struct {
	Description    string         `yaml:"description"`
	Stages         []StageDecl    `yaml:"stages"`
	Variables      map[string]any `yaml:"variables"`
	OutputFilename string         `yaml:"output_filename"`
	OutputSheet    string         `yaml:"output_sheet"`
	CreateBackup   bool           `yaml:"create_backup"`
}

// Step is one entry in the recipe's step list. Known fields are extracted;
// everything else is processor-specific and kept in Params for the
// processor to validate.
type Step struct {
	Description             string
	ProcessorType           string
	SourceStage             string
	SaveToStage             string
	ConfirmStageReplacement bool
	Params                  map[string]any
}

// UnmarshalYAML splits the step mapping into the shared fields and the
// processor-specific remainder.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	s.Params = make(map[string]any)
	for key, value := range raw {
		switch key {
		case "step_description":
			s.Description = asString(value)
		case "processor_type":
			s.ProcessorType = asString(value)
		case "source_stage":
			s.SourceStage = asString(value)
		case "save_to_stage":
			s.SaveToStage = asString(value)
		case "confirm_stage_replacement":
			b, _ := value.(bool)
			s.ConfirmStageReplacement = b
		default:
			s.Params[key] = value
		}
	}
	return nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// Recipe is a fully parsed recipe file.
type Recipe struct {
	Settings Settings `yaml:"settings"`
	Steps    []Step   `yaml:"recipe"`

	// Path records where the recipe was loaded from; empty for in-memory
	// recipes.
	Path string `yaml:"-"`
}

// Load reads and parses a recipe file.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recipe %s: %w", path, err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, err
	}
	r.Path = path
	return r, nil
}

// Parse parses recipe YAML. Malformed YAML and empty documents are
// configuration errors.
func Parse(data []byte) (*Recipe, error) {
	var r Recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, &ConfigError{Problems: []string{fmt.Sprintf("recipe YAML is malformed: %v", err)}}
	}
	if len(r.Steps) == 0 && r.Settings.Description == "" {
		return nil, &ConfigError{Problems: []string{"recipe file is empty or missing the settings and recipe sections"}}
	}
	return &r, nil
}

// StepName returns the step's description, or a placeholder built from its
// position and processor type.
func (s *Step) StepName(index int) string {
	if s.Description != "" {
		return s.Description
	}
	return fmt.Sprintf("step %d (%s)", index+1, s.ProcessorType)
}
