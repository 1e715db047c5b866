package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zen-systems/sheetpipe/pkg/pipeline"
	"github.com/zen-systems/sheetpipe/pkg/processor"
	"github.com/zen-systems/sheetpipe/pkg/recipe"
)

// exit codes: 0 success or breakpoint halt, 1 error, 2 validation warnings
const (
	exitOK       = 0
	exitError    = 1
	exitWarnings = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configFile   string
		outputFile   string
		sheetFlag    string
		outputSheet  string
		verbose      bool
		varFlags     []string
		listCaps     bool
		detailedFlag bool
		jsonFlag     bool
		matrixFlag   bool
		validateOnly bool
	)

	exitCode := exitOK

	rootCmd := &cobra.Command{
		Use:   "sheetpipe [input-file]",
		Short: "Recipe-driven Excel and CSV transformation pipelines",
		Long: `Sheetpipe runs YAML recipes against tabular files: each recipe step
	reads a named stage, applies one processor (filter, clean, aggregate,
	pivot, lookup, ...), and saves the result to another stage.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := processor.NewRegistry()

			if listCaps {
				return listCapabilities(reg, detailedFlag, jsonFlag, matrixFlag)
			}
			if configFile == "" {
				return fmt.Errorf("--config is required")
			}

			rec, err := recipe.Load(configFile)
			if err != nil {
				return err
			}

			if validateOnly {
				exitCode = validateRecipe(rec, reg)
				return nil
			}

			inputPath := ""
			if len(args) > 0 {
				inputPath = args[0]
			}

			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			overrides, err := parseVarFlags(varFlags)
			if err != nil {
				return err
			}
			if sheetFlag != "" {
				if overrides == nil {
					overrides = make(map[string]string)
				}
				// recipes reference the chosen sheet as {input_sheet}
				overrides["input_sheet"] = sheetFlag
			}

			result, err := pipeline.Run(context.Background(), rec, reg, pipeline.RunOptions{
				InputPath:   inputPath,
				RecipePath:  configFile,
				OutputPath:  outputFile,
				OutputSheet: outputSheet,
				Variables:   overrides,
				Logger:      log,
			})
			if err != nil {
				return err
			}

			switch result.Status {
			case pipeline.StatusHalted:
				fmt.Fprintf(os.Stderr, "Run halted at breakpoint after %d step(s). Dump: %s\n",
					len(result.Steps), result.DumpPath)
			default:
				fmt.Fprintf(os.Stderr, "Run complete: %d step(s).\n", len(result.Steps))
				if result.OutputPath != "" {
					fmt.Fprintf(os.Stderr, "Output: %s\n", result.OutputPath)
				}
			}
			return nil
		},
	}

	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "recipe YAML file (required unless listing capabilities)")
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "", "override the recipe's output file")
	rootCmd.Flags().StringVarP(&sheetFlag, "sheet", "s", "", "input sheet name for Excel files")
	rootCmd.Flags().StringVar(&outputSheet, "output-sheet", "", "override the recipe's output sheet name")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().StringArrayVar(&varFlags, "var", nil, "recipe variable override as name=value (repeatable)")
	rootCmd.Flags().BoolVar(&listCaps, "list-capabilities", false, "list available processors and exit")
	rootCmd.Flags().BoolVar(&detailedFlag, "detailed", false, "with --list-capabilities, show parameters")
	rootCmd.Flags().BoolVar(&jsonFlag, "json", false, "with --list-capabilities, emit JSON")
	rootCmd.Flags().BoolVar(&matrixFlag, "matrix", false, "with --list-capabilities, show the stage requirement matrix")
	rootCmd.Flags().BoolVar(&validateOnly, "validate-recipe", false, "check the recipe and report all problems without running")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}
	return exitCode
}

func parseVarFlags(flags []string) (map[string]string, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(flags))
	for _, f := range flags {
		name, value, ok := strings.Cut(f, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q: expected name=value", f)
		}
		out[name] = value
	}
	return out, nil
}

// validateRecipe reports every configuration problem at once and suggests
// stage declarations for any stages the steps use but settings omit.
func validateRecipe(rec *recipe.Recipe, reg *processor.Registry) int {
	problems := recipe.Problems(rec, reg)
	if len(problems) == 0 {
		fmt.Println("Recipe is valid.")
		return exitOK
	}
	fmt.Fprintf(os.Stderr, "Found %d problem(s):\n", len(problems))
	for _, p := range problems {
		fmt.Fprintf(os.Stderr, "  - %s\n", p)
	}
	if undeclared := recipe.UndeclaredStages(rec); len(undeclared) > 0 {
		fmt.Fprintf(os.Stderr, "\nAdd these stage declarations to settings:\n\n%s\n",
			recipe.SuggestDeclarations(undeclared))
	}
	return exitWarnings
}

func listCapabilities(reg *processor.Registry, detailed, asJSON, matrix bool) error {
	names := reg.Names()

	if asJSON {
		specs := make(map[string]processor.Spec, len(names))
		for _, name := range names {
			spec, _ := reg.Spec(name)
			specs[name] = spec
		}
		data, err := json.MarshalIndent(specs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if matrix {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PROCESSOR\tSOURCE_STAGE\tSAVE_TO_STAGE")
		for _, name := range names {
			needsSource, needsSave := reg.Requirements(name)
			fmt.Fprintf(w, "%s\t%s\t%s\n", name, yesNo(needsSource), yesNo(needsSave))
		}
		return w.Flush()
	}

	if detailed {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PROCESSOR\tREQUIRED\tOPTIONAL\tDESCRIPTION")
		for _, name := range names {
			spec, _ := reg.Spec(name)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name,
				strings.Join(spec.Required, ", "),
				strings.Join(spec.Optional, ", "),
				spec.Description)
		}
		return w.Flush()
	}

	fmt.Printf("%d processors available:\n", len(names))
	for _, name := range names {
		spec, _ := reg.Spec(name)
		fmt.Printf("  %-18s %s\n", name, spec.Description)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "required"
	}
	return "-"
}
