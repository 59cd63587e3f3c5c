package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rulekernel/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationStats holds summary statistics of a compiled rule tree.
type CompilationStats struct {
	GameID         string `json:"game_id"`
	Digest         string `json:"digest"`
	MinPlayers     int    `json:"min_players"`
	MaxPlayers     int    `json:"max_players"`
	Phases         int    `json:"phases"`
	Zones          int    `json:"zones"`
	Actions        int    `json:"actions"`
	Triggers       int    `json:"triggers"`
	LastingEffects int    `json:"lasting_effects"`
	EndConditions  int    `json:"end_conditions"`
	Output         string `json:"output,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <rules>",
		Short: "Compile a rule tree to its JSON form",
		Long: `Compile a rule tree document and report its digest.

The rules may be a .cue, .json, .yaml or .yml file, or a directory holding
a CUE package. The compiled tree is validated; with --output it is also
written as JSON.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, rulesPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	tree, err := loadValidRules(formatter, rulesPath)
	if err != nil {
		return err
	}

	stats := calculateStats(tree)
	if opts.Output != "" {
		if err := writeJSONFile(opts.Output, tree); err != nil {
			return fail(formatter, ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
		stats.Output = opts.Output
	}

	return formatter.Success(stats)
}

func (s CompilationStats) writeText(f *OutputFormatter) error {
	w := f.Writer
	fmt.Fprintf(w, "✓ Compiled %s\n", s.GameID)
	fmt.Fprintf(w, "  Digest: %s\n", s.Digest)
	fmt.Fprintf(w, "  Players: %d-%d\n", s.MinPlayers, s.MaxPlayers)
	fmt.Fprintf(w, "  %d phase(s), %d zone(s), %d action(s), %d trigger(s), %d lasting effect(s), %d end condition(s)\n",
		s.Phases, s.Zones, s.Actions, s.Triggers, s.LastingEffects, s.EndConditions)
	if s.Output != "" {
		fmt.Fprintf(w, "  Output: %s\n", s.Output)
	}
	return nil
}

// calculateStats computes summary statistics of a compiled tree.
func calculateStats(tree *ir.RuleTree) CompilationStats {
	return CompilationStats{
		GameID:         tree.Metadata.ID,
		Digest:         tree.Digest,
		MinPlayers:     tree.Metadata.MinPlayers,
		MaxPlayers:     tree.Metadata.MaxPlayers,
		Phases:         len(tree.Phases),
		Zones:          len(tree.Zones),
		Actions:        len(tree.Actions),
		Triggers:       len(tree.Triggers),
		LastingEffects: len(tree.LastingEffects),
		EndConditions:  len(tree.EndConditions),
	}
}
