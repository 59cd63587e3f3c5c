package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/rulekernel/internal/engine"
	"github.com/roach88/rulekernel/internal/harness"
	"github.com/roach88/rulekernel/internal/store"
)

// StepOptions holds flags for the step command.
type StepOptions struct {
	*RootOptions
	Database string
	RunID    string
	Do       string
	Action   string
	Actor    int
	Params   string
	Event    string
}

// NewStepCommand creates the step command.
func NewStepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "step <rules>",
		Short: "Append one step to a recorded run",
		Long: `Resume a recorded run from its last step and execute one more.

The rule tree must be the one the run was recorded with.

Examples:
  rulekernel step rules.yaml --db runs.db --run r1 --do advance_to_decision
  rulekernel step rules.yaml --db runs.db --run r1 --do move --action play --actor 0 --params '{"target": 3}'
  rulekernel step rules.yaml --db runs.db --run r1 --do dispatch --event '{"kind": "turnStarted"}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStep(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $RULEKERNEL_DB)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id (required)")
	_ = cmd.MarkFlagRequired("run")
	cmd.Flags().StringVar(&opts.Do, "do", "", "step kind: advance, advance_to_decision, move or dispatch (required)")
	_ = cmd.MarkFlagRequired("do")
	cmd.Flags().StringVar(&opts.Action, "action", "", "action id of a move")
	cmd.Flags().IntVar(&opts.Actor, "actor", 0, "acting player of a move")
	cmd.Flags().StringVar(&opts.Params, "params", "", "move parameters as JSON")
	cmd.Flags().StringVar(&opts.Event, "event", "", "dispatched event as JSON")

	return cmd
}

func runStep(opts *StepOptions, rulesPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	step, err := opts.step()
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeInvalidInput, err.Error(), nil)
	}
	in, err := step.Input()
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeInvalidInput, err.Error(), nil)
	}

	tree, err := loadValidRules(formatter, rulesPath)
	if err != nil {
		return err
	}

	st, err := openStore(opts.RootOptions, opts.Database)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeDatabase, err.Error(), nil)
	}
	defer st.Close()

	rs, err := st.GetRunState(ctx, opts.RunID)
	if errors.Is(err, store.ErrNotFound) {
		return fail(formatter, ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run not found: %s", opts.RunID), nil)
	}
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeDatabase, err.Error(), nil)
	}

	eng := newEngine(opts.RootOptions, tree, engine.WithRecorder(st))
	session, err := eng.Resume(rs)
	if err != nil {
		if engine.IsRulesMismatch(err) {
			return fail(formatter, ExitCommandError, ErrCodeRulesMismatch, err.Error(), nil)
		}
		return fail(formatter, ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	res, stepErr := session.Execute(ctx, in)
	if stepErr != nil && res.Seq == 0 {
		return fail(formatter, ExitCommandError, engine.ErrorCode(stepErr), stepErr.Error(), nil)
	}

	summary := summarizeStep(step.Do, res)
	if formatter.Format == "json" {
		return formatter.Success(summary)
	}
	return outputStepText(formatter, opts.RunID, summary, stepErr)
}

// step assembles the step described by the flags.
func (o *StepOptions) step() (harness.Step, error) {
	s := harness.Step{Do: o.Do, Action: o.Action, Actor: o.Actor}
	// JSON is YAML, so both flags accept either.
	if o.Params != "" {
		if err := yaml.Unmarshal([]byte(o.Params), &s.Params); err != nil {
			return harness.Step{}, fmt.Errorf("invalid --params: %w", err)
		}
	}
	if o.Event != "" {
		s.Event = &harness.Event{}
		if err := yaml.Unmarshal([]byte(o.Event), s.Event); err != nil {
			return harness.Step{}, fmt.Errorf("invalid --event: %w", err)
		}
	}
	return s, nil
}

// openStore opens path, or the configured database when path is empty.
func openStore(opts *RootOptions, path string) (*store.Store, error) {
	if path == "" {
		path = opts.config().DB
	}
	if path == "" {
		return nil, fmt.Errorf("no database: pass --db or set RULEKERNEL_DB")
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return st, nil
}

func outputStepText(formatter *OutputFormatter, runID string, s StepSummary, stepErr error) error {
	w := formatter.Writer
	if stepErr != nil {
		fmt.Fprintf(w, "✗ %s step %d rejected: %s\n", runID, s.Seq, s.ErrorCode)
		formatter.VerboseLog("%v", stepErr)
	} else {
		fmt.Fprintf(w, "✓ %s step %d: %s\n", runID, s.Seq, s.Do)
	}
	fmt.Fprintf(w, "  Phase %s, turn %d, active player %d\n", s.Phase, s.Turn, s.Active)
	for _, id := range s.Fired {
		fmt.Fprintf(w, "  fired %s\n", id)
	}
	fmt.Fprintf(w, "  State digest: %s\n", s.StateDigest)
	return nil
}

