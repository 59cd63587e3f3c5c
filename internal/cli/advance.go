package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rulekernel/internal/engine"
	"github.com/roach88/rulekernel/internal/ir"
	"github.com/roach88/rulekernel/internal/turnflow"
)

// AdvanceOptions holds flags for the advance command.
type AdvanceOptions struct {
	*RootOptions
	StatePath  string
	ToDecision bool
	Output     string
}

// AdvanceResult describes the outcome of advancing a stored state.
type AdvanceResult struct {
	FromPhase   string               `json:"from_phase"`
	Phase       string               `json:"phase"`
	Turn        int                  `json:"turn"`
	Active      int                  `json:"active"`
	Advances    int                  `json:"advances"`
	Boundaries  []ir.BoundaryKind    `json:"boundaries,omitempty"`
	Expired     []string             `json:"expired,omitempty"`
	Trace       []ir.TriggerLogEntry `json:"trace"`
	StateDigest string               `json:"state_digest"`
	Output      string               `json:"output,omitempty"`
}

// NewAdvanceCommand creates the advance command.
func NewAdvanceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AdvanceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "advance <rules>",
		Short: "Advance a stored game state to the next phase",
		Long: `Advance a game state written by init or a previous advance.

By default one phase is advanced. With --to-decision phases are advanced
until a player has a legal action or the game is over.

Example:
  rulekernel advance rules.yaml --state state.json --to-decision -o state.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdvance(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.StatePath, "state", "", "game state file (required)")
	_ = cmd.MarkFlagRequired("state")
	cmd.Flags().BoolVar(&opts.ToDecision, "to-decision", false, "advance until a decision point")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the new state to this file")

	return cmd
}

func runAdvance(opts *AdvanceOptions, rulesPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	tree, err := loadValidRules(formatter, rulesPath)
	if err != nil {
		return err
	}
	state, err := readState(opts.StatePath)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return fail(formatter, ExitCommandError, loadErr.Code, loadErr.Message, nil)
		}
		return fail(formatter, ExitCommandError, ErrCodeReadFailed, err.Error(), nil)
	}

	m := turnflow.New(tree, opts.machineOptions()...)
	var step turnflow.Step
	if opts.ToDecision {
		step, err = m.AdvanceToDecisionPoint(state, nil)
	} else {
		step, err = m.AdvancePhase(state)
	}
	if err != nil {
		return fail(formatter, ExitFailure, engine.ErrorCode(err), err.Error(), nil)
	}

	digest, err := ir.StateDigest(step.State)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	result := AdvanceResult{
		FromPhase:   state.CurrentPhase,
		Phase:       step.State.CurrentPhase,
		Turn:        step.State.TurnCount,
		Active:      step.State.ActivePlayer,
		Advances:    step.Advances,
		Boundaries:  step.Boundaries,
		Expired:     step.Expired,
		Trace:       step.Log,
		StateDigest: digest,
	}
	if result.Trace == nil {
		result.Trace = []ir.TriggerLogEntry{}
	}
	if opts.Output != "" {
		if err := writeJSONFile(opts.Output, step.State); err != nil {
			return fail(formatter, ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing state: %v", err), nil)
		}
		result.Output = opts.Output
	}

	return formatter.Success(result)
}

func (r AdvanceResult) writeText(f *OutputFormatter) error {
	w := f.Writer
	fmt.Fprintf(w, "✓ %s -> %s (%d advance(s))\n", r.FromPhase, r.Phase, r.Advances)
	fmt.Fprintf(w, "  Turn %d, active player %d\n", r.Turn, r.Active)
	for _, b := range r.Boundaries {
		fmt.Fprintf(w, "  Boundary: %s\n", b)
	}
	for _, id := range r.Expired {
		fmt.Fprintf(w, "  Expired: %s\n", id)
	}
	writeTraceText(w, r.Trace, "  ")
	fmt.Fprintf(w, "  State digest: %s\n", r.StateDigest)
	if r.Output != "" {
		fmt.Fprintf(w, "  Output: %s\n", r.Output)
	}
	return nil
}
