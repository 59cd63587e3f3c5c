package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/rulekernel/internal/compiler"
	"github.com/roach88/rulekernel/internal/engine"
	"github.com/roach88/rulekernel/internal/ir"
	"github.com/roach88/rulekernel/internal/store"
	"github.com/roach88/rulekernel/internal/turnflow"
)

// Option configures a scenario run.
type Option func(*runConfig)

type runConfig struct {
	logger *zap.Logger
}

// WithLogger passes a logger to the engine and the turn machine.
func WithLogger(l *zap.Logger) Option {
	return func(c *runConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a run id equal to
// the scenario name, so traces and digests are reproducible.
//
// Execution flow:
//  1. Compile and validate the rule tree
//  2. Start a recorded session from the scenario's players and seed
//  3. Execute the steps, checking each step's expectation
//  4. Replay the recorded run and report any divergence
//  5. Evaluate assertions against the result
//
// Step expectations, assertions and replay divergences fail the result. An
// error is returned only when the scenario cannot run at all.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	tree, err := scenario.LoadRules()
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	if errs := compiler.Validate(tree); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid rule tree:\n  %s", strings.Join(msgs, "\n  "))
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	eng := engine.New(
		turnflow.New(tree, turnflow.WithLogger(cfg.logger)),
		engine.WithRecorder(st),
		engine.WithRunIDGenerator(engine.NewFixedGenerator(scenario.Name)),
		engine.WithLogger(cfg.logger),
	)

	ctx := context.Background()
	session, err := eng.Start(ctx, scenario.Players, scenario.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to start game: %w", err)
	}

	result := NewResult(session.RunID())
	for i, step := range scenario.Steps {
		in, err := step.Input()
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		res, stepErr := session.Execute(ctx, in)
		if stepErr != nil && res.Seq == 0 {
			return nil, fmt.Errorf("steps[%d]: %w", i, stepErr)
		}
		rec := recordStep(step.Do, res)
		result.Steps = append(result.Steps, rec)
		checkExpect(result, rec, step.Expect)
	}

	result.Final = session.State()
	if result.FinalDigest, err = ir.StateDigest(result.Final); err != nil {
		return nil, err
	}

	report, err := eng.Replay(ctx, st, session.RunID())
	if err != nil {
		return nil, fmt.Errorf("failed to replay run: %w", err)
	}
	if !report.OK() {
		d := report.Divergence
		result.AddError(fmt.Sprintf("replay diverged at step %d: %s recorded %q, replayed %q",
			d.Seq, d.Field, d.Recorded, d.Replayed))
	}

	actx := &AssertionContext{Machine: eng.Machine()}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func recordStep(do string, res engine.Result) StepRecord {
	state := res.Step.State
	trace := res.Step.Log
	if trace == nil {
		trace = []ir.TriggerLogEntry{}
	}
	return StepRecord{
		Seq:         res.Seq,
		Do:          do,
		ErrorCode:   res.ErrorCode,
		Phase:       state.CurrentPhase,
		Turn:        state.TurnCount,
		Active:      state.ActivePlayer,
		StateDigest: res.StateDigest,
		Trace:       trace,
	}
}

// checkExpect compares a step's outcome with its expectation. A step without
// one must succeed.
func checkExpect(result *Result, rec StepRecord, expect *Expect) {
	want := ""
	if expect != nil {
		want = expect.ErrorCode
	}
	if rec.ErrorCode != want {
		result.AddError(fmt.Sprintf("step %d (%s): expected error code %q, got %q",
			rec.Seq, rec.Do, want, rec.ErrorCode))
	}
	if expect == nil || expect.Fired == nil {
		return
	}
	if fired := Fired(rec.Trace); !slices.Equal(fired, expect.Fired) {
		result.AddError(fmt.Sprintf("step %d (%s): expected fired %v, got %v",
			rec.Seq, rec.Do, expect.Fired, fired))
	}
}
