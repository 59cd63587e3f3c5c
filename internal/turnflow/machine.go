package turnflow

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/rulekernel/internal/effects"
	"github.com/roach88/rulekernel/internal/eval"
	"github.com/roach88/rulekernel/internal/ir"
	"github.com/roach88/rulekernel/internal/trigger"
)

// Machine advances game states through phases and turns for one rule tree.
//
// A Machine holds configuration only. Every method is a pure function of its
// arguments: the input state is never modified and identical inputs yield
// identical steps, trace logs included.
type Machine struct {
	tree   *ir.RuleTree
	logger *zap.Logger

	maxDepth        int
	effectBudget    int
	maxQueryResults int
	trace           bool

	interp     *effects.Interpreter
	dispatcher *trigger.Dispatcher
}

// Option configures a Machine.
type Option func(*Machine)

// WithMaxTriggerDepth sets the cascade depth passed to every dispatch.
//
// Default: 8 (trigger.DefaultMaxDepth)
func WithMaxTriggerDepth(n int) Option {
	return func(m *Machine) {
		m.maxDepth = n
	}
}

// WithEffectBudget bounds the effects executed by one move, one lasting
// effect transition, or one trigger cascade.
//
// Default: 10000 (effects.DefaultEffectBudget)
func WithEffectBudget(n int) Option {
	return func(m *Machine) {
		m.effectBudget = n
	}
}

// WithMaxQueryResults bounds every query result.
func WithMaxQueryResults(n int) Option {
	return func(m *Machine) {
		m.maxQueryResults = n
	}
}

// WithLogger sets the logger shared with the dispatcher and interpreter.
func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) {
		m.logger = l
	}
}

// WithTrace adds trace entries, such as rolls, to Step.Diagnostics.
func WithTrace(enabled bool) Option {
	return func(m *Machine) {
		m.trace = enabled
	}
}

// New creates a Machine for tree. The tree is read, never modified.
func New(tree *ir.RuleTree, opts ...Option) *Machine {
	m := &Machine{
		tree:         tree,
		logger:       zap.NewNop(),
		maxDepth:     trigger.DefaultMaxDepth,
		effectBudget: effects.DefaultEffectBudget,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.interp = effects.New(effects.WithLogger(m.logger))
	m.dispatcher = trigger.New(
		trigger.WithLogger(m.logger),
		trigger.WithEffectBudget(m.effectBudget),
		trigger.WithMaxQueryResults(m.maxQueryResults),
		trigger.WithTrace(m.trace),
	)
	return m
}

// Tree returns the rule tree the machine runs.
func (m *Machine) Tree() *ir.RuleTree {
	return m.tree
}

// Step is the outcome of one state-machine operation.
type Step struct {
	State *ir.GameState `json:"state"`

	// Log holds the trigger entries recorded during the operation, in
	// execution order.
	Log []ir.TriggerLogEntry `json:"log"`

	// Boundaries lists the duration boundaries crossed. Only end-of-turn
	// advances cross boundaries.
	Boundaries []ir.BoundaryKind `json:"boundaries,omitempty"`

	// Expired lists the lasting effects torn down during the operation.
	Expired []string `json:"expired,omitempty"`

	// Advances counts the phase advances performed.
	Advances int `json:"advances,omitempty"`

	// Diagnostics holds the warnings, and traces when enabled, raised by
	// this operation alone.
	Diagnostics []ir.CollectorEntry `json:"diagnostics,omitempty"`
}

// stepper is the working set of one Machine operation. Every field holds an
// immutable value; only the stepper's references move forward.
type stepper struct {
	m    *Machine
	step Step
	card cardTransition
	diag ir.Collector
}

func (m *Machine) begin(state *ir.GameState) *stepper {
	return &stepper{m: m, step: Step{State: state}, diag: ir.Collector{TraceEnabled: m.trace}}
}

// done returns the finished step with its diagnostics.
func (s *stepper) done() Step {
	s.step.Diagnostics = s.diag.Entries
	return s.step
}

func (s *stepper) state() *ir.GameState {
	return s.step.State
}

// dispatch runs one event through the trigger cascade at depth 0.
func (s *stepper) dispatch(event ir.TriggerEvent) error {
	res, err := s.m.dispatcher.Dispatch(s.m.tree, s.step.State, s.step.State.Rng, event, 0, s.m.maxDepth, s.step.Log)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", event.Kind, err)
	}
	s.step.State, s.step.Log = res.State, res.Log
	s.diag.Entries = append(s.diag.Entries, res.Diagnostics...)
	return nil
}

// Dispatch runs event through the trigger cascade at depth 0 against state.
func (m *Machine) Dispatch(state *ir.GameState, event ir.TriggerEvent) (Step, error) {
	s := m.begin(state)
	if err := s.dispatch(event); err != nil {
		return Step{}, err
	}
	return s.done(), nil
}

func (s *stepper) dispatchAll(events []ir.TriggerEvent) error {
	for _, e := range events {
		if err := s.dispatch(e); err != nil {
			return err
		}
	}
	return nil
}

// apply runs effects against the current state and returns the emitted
// events without dispatching them.
func (s *stepper) apply(list []ir.Effect, call effectCall, budget *effects.Budget) ([]ir.TriggerEvent, error) {
	if len(list) == 0 {
		return nil, nil
	}
	state := s.step.State
	res, err := s.m.interp.ApplyEffects(list, &effects.Context{
		Tree:            s.m.tree,
		State:           state,
		Rng:             state.Rng,
		Bindings:        call.bindings,
		MoveParams:      call.params,
		ActivePlayer:    state.ActivePlayer,
		Actor:           call.actor,
		Collector:       &s.diag,
		MaxQueryResults: s.m.maxQueryResults,
	}, budget)
	if err != nil {
		return nil, err
	}
	s.step.State = res.State
	return res.Emitted, nil
}

// effectCall is the call-site context of one effect list.
type effectCall struct {
	actor    int
	params   ir.Object
	bindings *eval.Frame
}

func (m *Machine) evalContext(state *ir.GameState, actor int, params ir.Object) *eval.Context {
	return &eval.Context{
		Tree:            m.tree,
		State:           state,
		MoveParams:      params,
		ActivePlayer:    state.ActivePlayer,
		Actor:           actor,
		MaxQueryResults: m.maxQueryResults,
	}
}

func (m *Machine) budget() *effects.Budget {
	return effects.NewBudget(m.effectBudget)
}
