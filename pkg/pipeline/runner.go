// Package pipeline runs a parsed recipe: it validates the configuration,
// seeds the variable resolver and stage store, then executes the steps in
// order, stopping at the first failure or at a debug breakpoint.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zen-systems/sheetpipe/pkg/fileio"
	"github.com/zen-systems/sheetpipe/pkg/processor"
	"github.com/zen-systems/sheetpipe/pkg/recipe"
	"github.com/zen-systems/sheetpipe/pkg/stage"
	"github.com/zen-systems/sheetpipe/pkg/vars"
)

// Status is the terminal state of a run.
type Status string

const (
	// StatusCompleted means every step ran.
	StatusCompleted Status = "completed"
	// StatusFailed means a step returned an error; later steps did not run.
	StatusFailed Status = "failed"
	// StatusHalted means a debug breakpoint stopped the run on purpose.
	StatusHalted Status = "halted"
)

// StepError wraps a step failure with its position and identity.
type StepError struct {
	Index         int
	Description   string
	ProcessorType string
	Err           error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s, %s): %v", e.Index+1, e.Description, e.ProcessorType, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// RunOptions carry per-invocation inputs that are not part of the recipe.
type RunOptions struct {
	// InputPath feeds the input_* variable tokens.
	InputPath string
	// RecipePath feeds the recipe_* variable tokens; defaults to the
	// recipe's own load path.
	RecipePath string
	// OutputPath overrides settings.output_filename.
	OutputPath string
	// OutputSheet overrides settings.output_sheet.
	OutputSheet string
	// Variables are command-line overrides; they shadow recipe variables.
	Variables map[string]string
	Logger    *slog.Logger
	// Clock freezes the run clock for variable expansion and file
	// timestamps. Zero means time.Now.
	Clock time.Time
}

// StepResult records one executed step for the run report.
type StepResult struct {
	Index         int
	Description   string
	ProcessorType string
	RowsIn        int
	RowsOut       int
	Duration      time.Duration
	Err           error
}

// RunResult is the full report of one pipeline run.
type RunResult struct {
	RunID      string
	Status     Status
	Steps      []StepResult
	DumpPath   string
	OutputPath string
	Stages     stage.Summary

	// Snapshots is the run's stage store. After a failure it still holds
	// every stage populated before the failing step, so callers can dump
	// intermediate data for diagnosis.
	Snapshots *stage.Store
}

// Run executes the recipe. A failed run still returns the result so the
// caller can report how far execution got; the error is the step error.
func Run(ctx context.Context, rec *recipe.Recipe, reg *processor.Registry, opts RunOptions) (*RunResult, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if err := recipe.Validate(rec, reg); err != nil {
		return nil, err
	}

	resolver, err := buildResolver(rec, opts)
	if err != nil {
		return nil, err
	}

	stages := stage.NewStore(log)
	for _, d := range rec.Settings.Stages {
		if err := stages.Declare(stage.Decl{
			Name:        d.Name,
			Description: d.Description,
			Protected:   d.Protected,
		}); err != nil {
			return nil, err
		}
	}

	result := &RunResult{RunID: uuid.NewString(), Status: StatusCompleted, Snapshots: stages}
	fail := func(err error) (*RunResult, error) {
		result.Status = StatusFailed
		result.Stages = stages.Summarize()
		return result, err
	}
	log.Info("starting run",
		"run_id", result.RunID,
		"recipe", rec.Settings.Description,
		"steps", len(rec.Steps))

	rc := &processor.RunContext{
		Stages: stages,
		Vars:   resolver,
		Log:    log,
		Now:    resolver.Now(),
	}

	halted := false
	for i := range rec.Steps {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		step := rec.Steps[i]
		stepErr := func(err error) error {
			return &StepError{
				Index:         i,
				Description:   step.StepName(i),
				ProcessorType: step.ProcessorType,
				Err:           err,
			}
		}

		expanded, err := resolver.ExpandValue(step.Params)
		if err != nil {
			return fail(stepErr(err))
		}
		step.Params = expanded.(map[string]any)

		proc, err := reg.Create(step)
		if err != nil {
			return fail(stepErr(err))
		}
		if err := proc.Validate(); err != nil {
			return fail(stepErr(err))
		}

		log.Info("running step",
			"index", i+1,
			"step", step.StepName(i),
			"processor", step.ProcessorType)
		started := time.Now()
		outcome, err := proc.Execute(rc)
		sr := StepResult{
			Index:         i,
			Description:   step.StepName(i),
			ProcessorType: step.ProcessorType,
			Duration:      time.Since(started),
			Err:           err,
		}
		if err != nil {
			result.Steps = append(result.Steps, sr)
			return fail(stepErr(err))
		}
		sr.RowsIn = outcome.RowsIn
		sr.RowsOut = outcome.RowsOut
		result.Steps = append(result.Steps, sr)
		if outcome.Halt {
			result.Status = StatusHalted
			result.DumpPath = outcome.DumpPath
			log.Info("run halted at breakpoint", "step", step.StepName(i), "dump", outcome.DumpPath)
			halted = true
			break
		}
	}

	if halted {
		result.Stages = stages.Summarize()
		return result, nil
	}

	path, err := writeOutput(rec, stages, resolver, opts, log)
	if err != nil {
		return fail(err)
	}
	result.OutputPath = path
	result.Stages = stages.Summarize()

	for _, name := range stages.UnusedStages() {
		log.Warn("stage was populated but never read", "stage", name)
	}
	log.Info("run completed", "run_id", result.RunID, "steps", len(result.Steps))
	return result, nil
}

func buildResolver(rec *recipe.Recipe, opts RunOptions) (*vars.Resolver, error) {
	recipePath := opts.RecipePath
	if recipePath == "" {
		recipePath = rec.Path
	}
	var ro []vars.Option
	if !opts.Clock.IsZero() {
		ro = append(ro, vars.WithClock(opts.Clock))
	}
	if opts.InputPath != "" {
		ro = append(ro, vars.WithInputPath(opts.InputPath))
	}
	if recipePath != "" {
		ro = append(ro, vars.WithRecipePath(recipePath))
	}
	resolver := vars.New(ro...)
	for name, value := range rec.Settings.Variables {
		if err := resolver.Register(name, value); err != nil {
			return nil, err
		}
	}
	// command-line overrides win over recipe variables
	for name, value := range opts.Variables {
		if err := resolver.Register(name, value); err != nil {
			return nil, err
		}
	}
	return resolver, nil
}

// writeOutput saves the final stage to the configured output file, if any.
// The final stage is the save_to_stage of the last stage-writing step.
func writeOutput(rec *recipe.Recipe, stages *stage.Store, resolver *vars.Resolver, opts RunOptions, log *slog.Logger) (string, error) {
	outPath := opts.OutputPath
	if outPath == "" {
		outPath = rec.Settings.OutputFilename
	}
	if outPath == "" {
		return "", nil
	}
	outPath, err := resolver.Expand(outPath)
	if err != nil {
		return "", fmt.Errorf("expand output filename: %w", err)
	}

	finalStage := ""
	for i := len(rec.Steps) - 1; i >= 0; i-- {
		if rec.Steps[i].SaveToStage != "" {
			finalStage = rec.Steps[i].SaveToStage
			break
		}
	}
	if finalStage == "" {
		return "", fmt.Errorf("output file %s requested but no step saves to a stage", outPath)
	}
	t, err := stages.Load(finalStage)
	if err != nil {
		return "", err
	}

	sheet := opts.OutputSheet
	if sheet == "" {
		sheet = rec.Settings.OutputSheet
	}
	if err := fileio.WriteTable(outPath, t, fileio.WriteOptions{
		SheetName:    sheet,
		CreateBackup: rec.Settings.CreateBackup,
		Now:          resolver.Now(),
	}); err != nil {
		return "", err
	}
	log.Info("wrote output file", "file", outPath, "stage", finalStage, "rows", t.NumRows())
	return outPath, nil
}
