package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rulekernel/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	GameID   string                     `json:"game_id,omitempty"`
	Digest   string                     `json:"digest,omitempty"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <rules>",
		Short: "Validate a rule tree",
		Long: `Validate a rule tree without running it.

Checks the document shape, cross-references (phases, zones, variables,
lasting effects, markers) and turn order settings, then reports trigger
cascades that may loop. Cycle warnings do not fail validation.

Exit codes:
  0 - Rule tree valid
  1 - Validation failed
  2 - Command error (rules not found, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, rulesPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	tree, err := LoadRules(rulesPath)
	if err != nil {
		var loadErr *LoadError
		if !errors.As(err, &loadErr) {
			return fail(formatter, ExitCommandError, ErrCodeGeneric, err.Error(), nil)
		}
		if loadErr.Code == ErrCodeNotFound {
			return fail(formatter, ExitCommandError, loadErr.Code, loadErr.Message, nil)
		}
		// A document that does not compile is reported like any other
		// validation failure.
		return outputValidationErrors(formatter, []compiler.ValidationError{{
			Field:   "document",
			Message: loadErr.Message,
			Code:    loadErr.Code,
			Line:    loadErr.Line(),
		}})
	}

	formatter.VerboseLog("Validating rule tree: %s", tree.Metadata.ID)
	if errs := compiler.Validate(tree); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	warnings := compiler.AnalyzeCycles(tree)
	for _, w := range warnings {
		formatter.VerboseLog("Cycle: %s", strings.Join(w.Path, " -> "))
	}

	result := ValidationResult{
		Valid:    true,
		GameID:   tree.Metadata.ID,
		Digest:   tree.Digest,
		Warnings: warnings,
	}
	return formatter.Success(result)
}

func (r ValidationResult) writeText(f *OutputFormatter) error {
	if !r.Valid {
		fmt.Fprintln(f.Writer, "✗ Validation failed")
		fmt.Fprintln(f.Writer)
		for _, err := range r.Errors {
			if err.Line > 0 {
				fmt.Fprintf(f.Writer, "line %d\n", err.Line)
			}
			fmt.Fprintf(f.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
		}
		return nil
	}
	fmt.Fprintf(f.Writer, "✓ Rule tree %s valid\n", r.GameID)
	for _, w := range r.Warnings {
		fmt.Fprintf(f.Writer, "  %s: %s\n", w.Level, w.Message)
	}
	return nil
}

// outputValidationErrors reports errs and returns an ExitFailure error.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	result := ValidationResult{Valid: false, Errors: errs}
	if err := formatter.Failure(errs[0].Code, errs[0].Message, result); err != nil {
		return err
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
