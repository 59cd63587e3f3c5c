package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/roach88/rulekernel/internal/engine"
	"github.com/roach88/rulekernel/internal/harness"
	"github.com/roach88/rulekernel/internal/ir"
	"github.com/roach88/rulekernel/internal/store"
	"github.com/roach88/rulekernel/internal/turnflow"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Players  int
	Seed     uint64
	RunID    string

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// StepSummary is the reported outcome of one executed step.
type StepSummary struct {
	Seq         int64    `json:"seq"`
	Do          string   `json:"do"`
	ErrorCode   string   `json:"error_code,omitempty"`
	Phase       string   `json:"phase"`
	Turn        int      `json:"turn"`
	Active      int      `json:"active"`
	Fired       []string `json:"fired"`
	StateDigest string   `json:"state_digest"`
}

// RunResult is the outcome of the run command.
type RunResult struct {
	RunID       string             `json:"run_id"`
	GameID      string             `json:"game_id"`
	Recorded    bool               `json:"recorded"`
	Steps       []StepSummary      `json:"steps"`
	FinalDigest string             `json:"final_digest"`
	Terminal    *ir.TerminalResult `json:"terminal,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <rules> <steps-file>",
		Short: "Play a scripted game",
		Long: `Start a game and execute a YAML list of steps against it.

Each step is one of:
  - do: advance
  - do: advance_to_decision
  - do: move
    action: play
    actor: 0
    params: {target: 3}
  - do: dispatch
    event: {kind: turnStarted}

A step the rules reject is reported with its error code and the game
continues. With --db (or RULEKERNEL_DB) every step is recorded for replay.

Example:
  rulekernel run rules.yaml steps.yaml --players 2 --seed 42 --db runs.db`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGame(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $RULEKERNEL_DB)")
	cmd.Flags().IntVar(&opts.Players, "players", 0, "number of players (required)")
	_ = cmd.MarkFlagRequired("players")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "RNG seed")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run id (default: a generated UUIDv7)")

	return cmd
}

func runGame(opts *RunOptions, rulesPath, stepsPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := opts.logger()

	tree, err := loadValidRules(formatter, rulesPath)
	if err != nil {
		return err
	}
	steps, err := loadSteps(stepsPath)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeReadFailed, err.Error(), nil)
	}
	inputs := make([]engine.StepInput, len(steps))
	for i, s := range steps {
		if inputs[i], err = s.Input(); err != nil {
			return fail(formatter, ExitCommandError, ErrCodeInvalidInput, fmt.Sprintf("steps[%d]: %v", i, err), nil)
		}
	}

	engineOpts := []engine.Option{engine.WithRunIDGenerator(opts.runIDs())}
	dbPath := opts.Database
	if dbPath == "" {
		dbPath = opts.config().DB
	}
	if dbPath != "" {
		st, err := store.Open(dbPath)
		if err != nil {
			return fail(formatter, ExitCommandError, ErrCodeDatabase, fmt.Sprintf("failed to open database: %v", err), nil)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", zap.Error(closeErr))
			}
		}()
		name, src, err := readRulesSource(rulesPath)
		if err != nil {
			return fail(formatter, ExitCommandError, ErrCodeReadFailed, err.Error(), nil)
		}
		engineOpts = append(engineOpts, engine.WithRecorder(st), engine.WithRulesSource(name, src))
	}
	eng := newEngine(opts.RootOptions, tree, engineOpts...)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := eng.Start(ctx, opts.Players, opts.Seed)
	if err != nil {
		return fail(formatter, ExitCommandError, engine.ErrorCode(err), err.Error(), nil)
	}
	formatter.VerboseLog("Run %s started", session.RunID())

	for _, in := range inputs {
		if err := session.Submit(in); err != nil {
			return fail(formatter, ExitCommandError, ErrCodeGeneric, err.Error(), nil)
		}
	}
	session.Stop()

	result := RunResult{
		RunID:    session.RunID(),
		GameID:   tree.Metadata.ID,
		Recorded: dbPath != "",
		Steps:    make([]StepSummary, 0, len(inputs)),
	}
	var hardErr error
	i := 0
	err = session.Run(ctx, func(res engine.Result, stepErr error) {
		do := steps[i].Do
		i++
		if stepErr != nil && res.Seq == 0 {
			if hardErr == nil {
				hardErr = fmt.Errorf("step %d (%s): %w", i, do, stepErr)
			}
			return
		}
		summary := summarizeStep(do, res)
		formatter.VerboseLog("Step %d %s: phase %s, fired %v", summary.Seq, do, summary.Phase, summary.Fired)
		result.Steps = append(result.Steps, summary)
	})
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeGeneric, fmt.Sprintf("run interrupted: %v", err), nil)
	}
	if hardErr != nil {
		return fail(formatter, ExitCommandError, engine.ErrorCode(hardErr), hardErr.Error(), nil)
	}

	if result.FinalDigest, err = ir.StateDigest(session.State()); err != nil {
		return fail(formatter, ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	if result.Terminal, err = session.Terminal(); err != nil {
		return fail(formatter, ExitFailure, engine.ErrorCode(err), err.Error(), nil)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	return outputRunText(formatter, result)
}

func (o *RunOptions) runIDs() engine.RunIDGenerator {
	switch {
	case o.RunIDs != nil:
		return o.RunIDs
	case o.RunID != "":
		return engine.NewFixedGenerator(o.RunID)
	default:
		return engine.UUIDv7Generator{}
	}
}

// newEngine builds an engine over tree with the configured limits.
func newEngine(opts *RootOptions, tree *ir.RuleTree, extra ...engine.Option) *engine.Engine {
	engineOpts := []engine.Option{
		engine.WithLogger(opts.logger()),
		engine.WithMaxSteps(opts.config().MaxSteps),
	}
	return engine.New(turnflow.New(tree, opts.machineOptions()...), append(engineOpts, extra...)...)
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// loadSteps decodes a YAML list of steps. Unknown fields are rejected.
func loadSteps(path string) ([]harness.Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading steps: %w", err)
	}
	var steps []harness.Step
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&steps); err != nil {
		return nil, fmt.Errorf("parsing steps %s: %w", path, err)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("steps file %s is empty", path)
	}
	return steps, nil
}

func summarizeStep(do string, res engine.Result) StepSummary {
	state := res.Step.State
	return StepSummary{
		Seq:         res.Seq,
		Do:          do,
		ErrorCode:   res.ErrorCode,
		Phase:       state.CurrentPhase,
		Turn:        state.TurnCount,
		Active:      state.ActivePlayer,
		Fired:       harness.Fired(res.Step.Log),
		StateDigest: res.StateDigest,
	}
}

func outputRunText(formatter *OutputFormatter, result RunResult) error {
	w := formatter.Writer
	fmt.Fprintf(w, "Run %s (%s)\n", result.RunID, result.GameID)
	for _, s := range result.Steps {
		status := "✓"
		if s.ErrorCode != "" {
			status = "✗"
		}
		fmt.Fprintf(w, "  %s [%d] %s -> %s (turn %d, active %d)", status, s.Seq, s.Do, s.Phase, s.Turn, s.Active)
		if s.ErrorCode != "" {
			fmt.Fprintf(w, " %s", s.ErrorCode)
		}
		fmt.Fprintln(w)
		for _, id := range s.Fired {
			fmt.Fprintf(w, "      fired %s\n", id)
		}
	}
	fmt.Fprintf(w, "Final digest: %s\n", result.FinalDigest)
	if t := result.Terminal; t != nil {
		if t.Player != nil {
			fmt.Fprintf(w, "Result: %s for player %d\n", t.Kind, *t.Player)
		} else {
			fmt.Fprintf(w, "Result: %s\n", t.Kind)
		}
	}
	if !result.Recorded {
		formatter.VerboseLog("Run not recorded (no --db)")
	}
	return nil
}
