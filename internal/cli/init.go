package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rulekernel/internal/ir"
	"github.com/roach88/rulekernel/internal/turnflow"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Players int
	Seed    uint64
	Output  string
}

// InitResult describes a freshly initialized game.
type InitResult struct {
	GameID      string        `json:"game_id"`
	Players     int           `json:"players"`
	Seed        uint64        `json:"seed"`
	Phase       string        `json:"phase"`
	StateDigest string        `json:"state_digest"`
	Output      string        `json:"output,omitempty"`
	State       *ir.GameState `json:"state,omitempty"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init <rules>",
		Short: "Create the initial game state",
		Long: `Create the initial state of a game: declared variables and zones,
setup effects and the first phase, seeded for reproducible randomness.

Without --output the state is printed as JSON.

Example:
  rulekernel init rules.yaml --players 2 --seed 42 -o state.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Players, "players", 0, "number of players (required)")
	_ = cmd.MarkFlagRequired("players")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "RNG seed")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the state to this file")

	return cmd
}

func runInit(opts *InitOptions, rulesPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	tree, err := loadValidRules(formatter, rulesPath)
	if err != nil {
		return err
	}

	m := turnflow.New(tree, opts.machineOptions()...)
	state, err := m.NewGame(opts.Players, opts.Seed)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeInvalidInput, err.Error(), nil)
	}
	digest, err := ir.StateDigest(state)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	result := InitResult{
		GameID:      tree.Metadata.ID,
		Players:     opts.Players,
		Seed:        opts.Seed,
		Phase:       state.CurrentPhase,
		StateDigest: digest,
	}
	if opts.Output != "" {
		if err := writeJSONFile(opts.Output, state); err != nil {
			return fail(formatter, ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing state: %v", err), nil)
		}
		result.Output = opts.Output
	} else {
		result.State = state
	}

	return formatter.Success(result)
}

// writeText prints the state itself when it was not written to a file, so
// the output can be redirected into a state file.
func (r InitResult) writeText(f *OutputFormatter) error {
	w := f.Writer
	if r.Output == "" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(r.State)
	}
	fmt.Fprintf(w, "✓ Initialized %s for %d player(s), seed %d\n", r.GameID, r.Players, r.Seed)
	fmt.Fprintf(w, "  Phase: %s\n", r.Phase)
	fmt.Fprintf(w, "  State digest: %s\n", r.StateDigest)
	fmt.Fprintf(w, "  Output: %s\n", r.Output)
	return nil
}
