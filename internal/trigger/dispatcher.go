package trigger

import (
	"fmt"
	"slices"
	"strconv"

	"go.uber.org/zap"

	"github.com/roach88/rulekernel/internal/effects"
	"github.com/roach88/rulekernel/internal/eval"
	"github.com/roach88/rulekernel/internal/ir"
)

// DefaultMaxDepth is the cascade depth used when the caller does not choose
// one. Depth 0 is the originating event.
const DefaultMaxDepth = 8

// Result is the outcome of one dispatch call.
type Result struct {
	State *ir.GameState
	Rng   ir.RngState
	Log   []ir.TriggerLogEntry

	// Diagnostics holds the warnings, and traces when enabled, raised by
	// this call alone.
	Diagnostics []ir.CollectorEntry
}

// Dispatcher fires declared triggers in response to events.
//
// A Dispatcher holds configuration only. Every Dispatch call is independent
// and pure: identical inputs produce identical state, rng and log.
type Dispatcher struct {
	logger          *zap.Logger
	interp          *effects.Interpreter
	effectBudget    int
	maxQueryResults int
	trace           bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. The effect interpreter shares it.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithEffectBudget bounds the total effects executed by one Dispatch call,
// including every cascaded trigger.
func WithEffectBudget(n int) Option {
	return func(d *Dispatcher) {
		d.effectBudget = n
	}
}

// WithMaxQueryResults bounds every query evaluated by triggers.
func WithMaxQueryResults(n int) Option {
	return func(d *Dispatcher) {
		d.maxQueryResults = n
	}
}

// WithTrace adds trace entries, such as rolls, to Result.Diagnostics.
func WithTrace(enabled bool) Option {
	return func(d *Dispatcher) {
		d.trace = enabled
	}
}

// New creates a Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:       zap.NewNop(),
		effectBudget: effects.DefaultEffectBudget,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.interp = effects.New(effects.WithLogger(d.logger))
	return d
}

var defaultDispatcher = New()

// Dispatch runs the cascade for event with a default Dispatcher.
func Dispatch(tree *ir.RuleTree, state *ir.GameState, rng ir.RngState, event ir.TriggerEvent, depth, maxDepth int, log []ir.TriggerLogEntry) (Result, error) {
	return defaultDispatcher.Dispatch(tree, state, rng, event, depth, maxDepth, log)
}

// Dispatch fires every trigger matching event, in declaration order.
//
// Events emitted by a firing trigger are dispatched immediately at depth+1,
// before the scan moves on to the next trigger. An emitted event that at
// least one trigger would react to, but whose depth exceeds maxDepth, is
// logged as truncated and none of its triggers run.
//
// The returned log is log with this cascade's entries appended. Each call
// gathers its own diagnostics, so one Dispatcher may serve concurrent
// callers. The call is all-or-nothing: on error the Result is empty.
func (d *Dispatcher) Dispatch(tree *ir.RuleTree, state *ir.GameState, rng ir.RngState, event ir.TriggerEvent, depth, maxDepth int, log []ir.TriggerLogEntry) (Result, error) {
	c := &cascade{
		d:        d,
		tree:     tree,
		maxDepth: maxDepth,
		budget:   effects.NewBudget(d.effectBudget),
		state:    state,
		rng:      rng,
		log:      slices.Clone(log),
		diag:     &ir.Collector{TraceEnabled: d.trace},
	}
	if err := c.dispatch(event, depth); err != nil {
		return Result{}, err
	}
	return Result{State: c.state, Rng: c.rng, Log: c.log, Diagnostics: c.diag.Entries}, nil
}

// cascade is the working set of one Dispatch call. The effect budget is
// shared by every trigger in the cascade.
type cascade struct {
	d        *Dispatcher
	tree     *ir.RuleTree
	maxDepth int
	budget   *effects.Budget
	diag     *ir.Collector

	state *ir.GameState
	rng   ir.RngState
	log   []ir.TriggerLogEntry
}

func (c *cascade) dispatch(event ir.TriggerEvent, depth int) error {
	for i := range c.tree.Triggers {
		t := &c.tree.Triggers[i]
		if !t.On.Matches(event) {
			continue
		}
		frame := (*eval.Frame)(nil).ExtendAll(event.Bindings())
		ok, err := c.fires(t, event, frame)
		if err != nil {
			return fmt.Errorf("trigger %s: %w", t.ID, err)
		}
		if !ok {
			continue
		}

		c.d.logger.Debug("trigger fired",
			zap.String("trigger", t.ID),
			zap.String("event", string(event.Kind)),
			zap.Int("depth", depth))
		c.log = append(c.log, ir.TriggerLogEntry{Kind: ir.LogFired, TriggerID: t.ID, Event: event, Depth: depth})

		out, err := c.d.interp.ApplyEffects(t.Effects, c.effectContext(event, frame), c.budget)
		if err != nil {
			return fmt.Errorf("trigger %s: %w", t.ID, err)
		}
		c.state, c.rng = out.State, out.Rng

		for _, emitted := range out.Emitted {
			if depth+1 > c.maxDepth {
				c.truncate(emitted, depth+1)
				continue
			}
			if err := c.dispatch(emitted, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// fires evaluates the dynamic match and when predicates. Both must hold; a
// missing predicate holds.
func (c *cascade) fires(t *ir.TriggerDef, event ir.TriggerEvent, frame *eval.Frame) (bool, error) {
	if t.Match == nil && t.When == nil {
		return true, nil
	}
	ctx := c.evalContext(event, frame)
	for _, cond := range []ir.Condition{t.Match, t.When} {
		if cond == nil {
			continue
		}
		ok, err := eval.Condition(cond, ctx)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// truncate logs a depth-exceeded event, but only when some trigger would
// have reacted to it.
func (c *cascade) truncate(event ir.TriggerEvent, depth int) {
	if !slices.ContainsFunc(c.tree.Triggers, func(t ir.TriggerDef) bool { return t.On.Matches(event) }) {
		return
	}
	c.d.logger.Warn("trigger cascade truncated",
		zap.String("event", string(event.Kind)),
		zap.Int("depth", depth),
		zap.Int("max_depth", c.maxDepth))
	c.diag.Warn("TRIGGER_DEPTH_TRUNCATED", "cascade depth exceeded",
		"event", string(event.Kind), "depth", strconv.Itoa(depth))
	c.log = append(c.log, ir.TriggerLogEntry{Kind: ir.LogTruncated, Event: event, Depth: depth})
}

// actor is the player an event is attributed to: the event's player when it
// carries one, otherwise the active player.
func (c *cascade) actor(event ir.TriggerEvent) int {
	if event.Player != nil {
		return *event.Player
	}
	return c.state.ActivePlayer
}

func (c *cascade) evalContext(event ir.TriggerEvent, frame *eval.Frame) *eval.Context {
	return &eval.Context{
		Tree:            c.tree,
		State:           c.state,
		Bindings:        frame,
		ActivePlayer:    c.state.ActivePlayer,
		Actor:           c.actor(event),
		Collector:       c.diag,
		MaxQueryResults: c.d.maxQueryResults,
	}
}

func (c *cascade) effectContext(event ir.TriggerEvent, frame *eval.Frame) *effects.Context {
	return &effects.Context{
		Tree:            c.tree,
		State:           c.state,
		Rng:             c.rng,
		Bindings:        frame,
		ActivePlayer:    c.state.ActivePlayer,
		Actor:           c.actor(event),
		Collector:       c.diag,
		MaxQueryResults: c.d.maxQueryResults,
	}
}
