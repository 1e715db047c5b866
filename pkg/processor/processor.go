// Package processor defines the step processor contract, the registry that
// maps processor_type strings to constructors, and the built-in processor
// set.
package processor

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zen-systems/sheetpipe/pkg/recipe"
	"github.com/zen-systems/sheetpipe/pkg/stage"
	"github.com/zen-systems/sheetpipe/pkg/table"
	"github.com/zen-systems/sheetpipe/pkg/vars"
)

// RunContext carries the run-scoped collaborators a processor may touch.
// A processor must not write to any stage other than its step's
// save_to_stage, nor to any file other than its declared target.
type RunContext struct {
	Stages *stage.Store
	Vars   *vars.Resolver
	Log    *slog.Logger
	// Now is the frozen run clock, used for dump and backup timestamps.
	Now time.Time
}

// Outcome summarizes a completed step for the run report.
type Outcome struct {
	RowsIn  int
	RowsOut int
	// Halt is set by the debug breakpoint: the run stops here on purpose.
	Halt     bool
	DumpPath string
	Info     string
}

// Processor is the lifecycle every step processor implements: check the
// configuration, then perform exactly one of stage→stage transform, file→
// stage import, stage→file export, or stage inspection.
type Processor interface {
	Validate() error
	Execute(rc *RunContext) (*Outcome, error)
}

// Factory builds a processor for a parsed step.
type Factory func(step recipe.Step) Processor

// base carries the step configuration and the shared stage plumbing.
type base struct {
	step recipe.Step
}

func newBase(step recipe.Step) base { return base{step: step} }

func (b *base) name() string {
	if b.step.Description != "" {
		return b.step.Description
	}
	return "unnamed " + b.step.ProcessorType + " step"
}

// requireParams reports every missing required field at once.
func (b *base) requireParams(keys ...string) error {
	var missing []string
	for _, key := range keys {
		if _, ok := b.step.Params[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("step %q missing required fields: %s", b.name(), strings.Join(missing, ", "))
	}
	return nil
}

func (b *base) param(key string) (any, bool) {
	v, ok := b.step.Params[key]
	return v, ok
}

func (b *base) stringParam(key, def string) string {
	if v, ok := b.step.Params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func (b *base) boolParam(key string, def bool) bool {
	if v, ok := b.step.Params[key]; ok {
		if x, ok := v.(bool); ok {
			return x
		}
	}
	return def
}

func (b *base) intParam(key string, def int) int {
	if v, ok := b.step.Params[key]; ok {
		switch x := v.(type) {
		case int:
			return x
		case int64:
			return int(x)
		case float64:
			return int(x)
		}
	}
	return def
}

// stringList accepts either a single string or a list of strings.
func (b *base) stringList(key string) ([]string, error) {
	v, ok := b.step.Params[key]
	if !ok {
		return nil, nil
	}
	switch x := v.(type) {
	case string:
		return []string{x}, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("step %q field %q must contain strings, got %T", b.name(), key, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("step %q field %q must be a string or list of strings", b.name(), key)
	}
}

func (b *base) mapParam(key string) (map[string]any, error) {
	v, ok := b.step.Params[key]
	if !ok {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("step %q field %q must be a mapping", b.name(), key)
	}
	return m, nil
}

func (b *base) listParam(key string) ([]any, error) {
	v, ok := b.step.Params[key]
	if !ok {
		return nil, nil
	}
	l, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("step %q field %q must be a list", b.name(), key)
	}
	return l, nil
}

func (b *base) loadSource(rc *RunContext) (*table.Table, error) {
	return rc.Stages.Load(b.step.SourceStage)
}

func (b *base) saveResult(rc *RunContext, t *table.Table) error {
	return rc.Stages.Save(b.step.SaveToStage, t, stage.SaveOptions{
		Description:        "result from " + b.name(),
		StepName:           b.name(),
		ConfirmReplacement: b.step.ConfirmStageReplacement,
	})
}

// runTransform is the shared stage→stage execution path.
func runTransform(b *base, rc *RunContext, fn func(rc *RunContext, in *table.Table) (*table.Table, error)) (*Outcome, error) {
	in, err := b.loadSource(rc)
	if err != nil {
		return nil, err
	}
	out, err := fn(rc, in)
	if err != nil {
		return nil, err
	}
	if err := b.saveResult(rc, out); err != nil {
		return nil, err
	}
	return &Outcome{RowsIn: in.NumRows(), RowsOut: out.NumRows()}, nil
}
