package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/rulekernel/internal/ir"
	"github.com/roach88/rulekernel/internal/store"
	"github.com/roach88/rulekernel/internal/turnflow"
)

// Recorder persists runs and their steps. Implemented by *store.Store.
type Recorder interface {
	WriteRun(ctx context.Context, run store.Run) error
	AppendStep(ctx context.Context, step store.Step) error
}

// Engine starts and resumes sessions of one rule tree.
//
// An Engine holds configuration only; every game lives in its own Session.
type Engine struct {
	machine     *turnflow.Machine
	recorder    Recorder
	ids         RunIDGenerator
	logger      *zap.Logger
	oracle      turnflow.MoveOracle
	maxSteps    int
	rulesName   string
	rulesSource []byte
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder records every run and step. Without a recorder sessions run
// in memory only.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithRunIDGenerator sets the run id source.
//
// Default: UUIDv7Generator
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithOracle sets the move oracle used by advance-to-decision steps.
//
// Default: the machine's ActionAvailability
func WithOracle(o turnflow.MoveOracle) Option {
	return func(e *Engine) {
		e.oracle = o
	}
}

// WithMaxSteps sets the step quota per session.
//
// Default: 10000 steps (DefaultMaxSteps)
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		e.maxSteps = n
	}
}

// WithRulesSource embeds the rule tree source in recorded runs so they can
// be replayed without the original file. name selects the format on reload.
func WithRulesSource(name string, src []byte) Option {
	return func(e *Engine) {
		e.rulesName = name
		e.rulesSource = src
	}
}

// New creates an Engine driving m.
func New(m *turnflow.Machine, opts ...Option) *Engine {
	e := &Engine{
		machine:  m,
		ids:      UUIDv7Generator{},
		logger:   zap.NewNop(),
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Machine returns the state machine the engine drives.
func (e *Engine) Machine() *turnflow.Machine {
	return e.machine
}

// Start initializes a new game and, with a recorder, records its run header.
func (e *Engine) Start(ctx context.Context, players int, seed uint64) (*Session, error) {
	state, err := e.machine.NewGame(players, seed)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	digest, err := ir.StateDigest(state)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	tree := e.machine.Tree()
	s := e.newSession(e.ids.Generate(), state, NewClock())
	if e.recorder != nil {
		err := e.recorder.WriteRun(ctx, store.Run{
			ID:            s.runID,
			GameID:        tree.Metadata.ID,
			RulesDigest:   tree.Digest,
			RulesName:     e.rulesName,
			RulesSource:   e.rulesSource,
			Players:       players,
			Seed:          seed,
			EngineVersion: ir.EngineVersion,
			StateVersion:  ir.StateVersion,
			InitialState:  state,
			InitialDigest: digest,
		})
		if err != nil {
			return nil, fmt.Errorf("start: %w", err)
		}
	}

	e.logger.Info("run started",
		zap.String("run", s.runID),
		zap.String("game", tree.Metadata.ID),
		zap.Int("players", players),
		zap.Uint64("seed", seed),
		zap.String("state_digest", digest),
	)
	return s, nil
}

// Resume continues a recorded run from its last step. The engine's rule tree
// must be the one the run was recorded with.
func (e *Engine) Resume(rs store.RunState) (*Session, error) {
	if current := e.machine.Tree().Digest; rs.Run.RulesDigest != current {
		return nil, &RulesMismatchError{RunID: rs.Run.ID, Recorded: rs.Run.RulesDigest, Current: current}
	}
	state := rs.Run.InitialState
	if n := len(rs.Steps); n > 0 {
		state = rs.Steps[n-1].State
	}
	s := e.newSession(rs.Run.ID, state, NewClockAt(rs.LastSeq))
	s.quota.current = len(rs.Steps)

	e.logger.Info("run resumed",
		zap.String("run", rs.Run.ID),
		zap.Int64("seq", rs.LastSeq),
	)
	return s, nil
}

func (e *Engine) newSession(runID string, state *ir.GameState, clock *Clock) *Session {
	return &Session{
		engine: e,
		runID:  runID,
		state:  state,
		clock:  clock,
		quota:  NewQuotaEnforcer(e.maxSteps),
		queue:  newStepQueue(),
	}
}

// apply runs one input against state without recording it.
func (e *Engine) apply(state *ir.GameState, in StepInput) (turnflow.Step, error) {
	switch in.Kind {
	case StepAdvance:
		return e.machine.AdvancePhase(state)
	case StepAdvanceToDecision:
		return e.machine.AdvanceToDecisionPoint(state, e.oracle)
	case StepMove:
		return e.machine.ApplyMove(state, *in.Move)
	case StepDispatch:
		return e.machine.Dispatch(state, *in.Event)
	}
	return turnflow.Step{}, fmt.Errorf("unknown step kind %q", in.Kind)
}

// Result is the outcome of one executed step.
type Result struct {
	Seq   int64
	Input StepInput

	// Step holds the state after the step, its trace and boundary details.
	// A failed step keeps the state it was applied to and has no trace.
	Step turnflow.Step

	StateDigest string
	TraceDigest string
	ErrorCode   string
}

// Session is one game in progress.
//
// Execute may be called from any goroutine; steps are serialized. Submit
// and Run offer the same through a FIFO queue drained by a single loop.
type Session struct {
	engine *Engine
	runID  string
	clock  *Clock
	queue  *stepQueue

	mu    sync.Mutex
	state *ir.GameState
	quota *QuotaEnforcer
}

// RunID returns the id of the session's run.
func (s *Session) RunID() string {
	return s.runID
}

// State returns the current state. The value is immutable.
func (s *Session) State() *ir.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Seq returns the seq of the last executed step.
func (s *Session) Seq() int64 {
	return s.clock.Last()
}

// Terminal returns the game result once an end condition holds.
func (s *Session) Terminal() (*ir.TerminalResult, error) {
	return s.engine.machine.TerminalResult(s.State())
}

// Execute applies one step and records it.
//
// A step the core rejects is still recorded, with its error code and the
// unchanged state, and the error is returned alongside the Result. Invalid
// inputs, a spent quota and recorder failures are not recorded and leave the
// session untouched.
func (s *Session) Execute(ctx context.Context, in StepInput) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}
	input, err := in.Canonical()
	if err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.quota.Check(s.runID); err != nil {
		return Result{}, err
	}

	seq := s.clock.Peek()
	step, stepErr := s.engine.apply(s.state, in)
	if stepErr != nil {
		step = turnflow.Step{State: s.state}
	}

	res := Result{Seq: seq, Input: in, Step: step, ErrorCode: ErrorCode(stepErr)}
	if res.StateDigest, err = ir.StateDigest(step.State); err != nil {
		return Result{}, fmt.Errorf("step %d: %w", seq, err)
	}
	if res.TraceDigest, err = ir.TraceDigest(step.Log); err != nil {
		return Result{}, fmt.Errorf("step %d: %w", seq, err)
	}

	if r := s.engine.recorder; r != nil {
		err := r.AppendStep(ctx, store.Step{
			RunID:       s.runID,
			Seq:         seq,
			Kind:        string(in.Kind),
			Input:       input,
			State:       step.State,
			StateDigest: res.StateDigest,
			TraceDigest: res.TraceDigest,
			ErrorCode:   res.ErrorCode,
			Trace:       step.Log,
		})
		if err != nil {
			return Result{}, fmt.Errorf("step %d: %w", seq, err)
		}
	}

	if !s.clock.Commit(seq) {
		return Result{}, fmt.Errorf("step %d: clock moved during the step", seq)
	}
	s.state = step.State

	stepLog := s.engine.logger.With(
		zap.String("run", s.runID),
		zap.Int64("seq", seq),
		zap.String("kind", string(in.Kind)),
	)
	if stepErr != nil {
		stepLog.Warn("step rejected", zap.String("code", res.ErrorCode), zap.Error(stepErr))
		return res, fmt.Errorf("step %d: %w", seq, stepErr)
	}
	stepLog.Debug("step applied",
		zap.String("phase", step.State.CurrentPhase),
		zap.Int("turn", step.State.TurnCount),
		zap.Int("trace", len(step.Log)),
		zap.String("state_digest", res.StateDigest),
	)
	return res, nil
}

// Submit queues an input for the Run loop. Safe from any goroutine.
func (s *Session) Submit(in StepInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if !s.queue.Enqueue(in) {
		return ErrSessionClosed
	}
	return nil
}

// Run executes queued inputs in FIFO order until ctx is cancelled or Stop
// is called and the queue is drained. Must be called from one goroutine.
//
// A failing step does not stop the loop: the error is logged and passed to
// onStep, which may be nil.
func (s *Session) Run(ctx context.Context, onStep func(Result, error)) error {
	for {
		if in, ok := s.queue.TryDequeue(); ok {
			res, err := s.Execute(ctx, in)
			if err != nil {
				s.engine.logger.Debug("queued step failed",
					zap.String("run", s.runID),
					zap.String("kind", string(in.Kind)),
					zap.Error(err))
			}
			if onStep != nil {
				onStep(res, err)
			}
			continue
		}

		if s.queue.Closed() {
			return nil
		}

		select {
		case <-ctx.Done():
			s.queue.Close()
			return ctx.Err()
		case <-s.queue.Wait():
		}
	}
}

// Stop closes the queue. Run returns once queued inputs are drained.
func (s *Session) Stop() {
	s.queue.Close()
}
