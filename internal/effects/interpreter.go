package effects

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/roach88/rulekernel/internal/eval"
	"github.com/roach88/rulekernel/internal/ir"
)

const (
	// DefaultEffectBudget is the total effect executions allowed per call
	// chain when the caller does not choose one.
	DefaultEffectBudget = 10000

	// DefaultForEachLimit caps forEach iterations when no limit is given.
	DefaultForEachLimit = 100
)

// Budget bounds the total work of one effect call chain. The same *Budget
// is threaded through every nested call; exceeding it is fatal.
type Budget struct {
	Remaining int
	Max       int
}

// NewBudget returns a full budget of limit executions.
func NewBudget(limit int) *Budget {
	return &Budget{Remaining: limit, Max: limit}
}

func (b *Budget) spend(effect string) error {
	if b.Remaining <= 0 {
		return ir.NewRuntimeError(ir.ErrCodeEffectBudgetExceeded, "effect budget exhausted",
			"effect", effect,
			"max", strconv.Itoa(b.Max))
	}
	b.Remaining--
	return nil
}

// Context is the input to one effect call.
type Context struct {
	Tree  *ir.RuleTree
	State *ir.GameState
	Rng   ir.RngState

	// Bindings is the lexical scope the effects start in.
	Bindings *eval.Frame

	// MoveParams are visible to every expression at lower precedence than
	// lexical bindings.
	MoveParams ir.Object

	ActivePlayer int
	Actor        int

	Collector       *ir.Collector
	MaxQueryResults int
}

// Result is the outcome of an effect call. Emitted events are returned, not
// dispatched.
type Result struct {
	State    *ir.GameState
	Rng      ir.RngState
	Emitted  []ir.TriggerEvent
	Bindings ir.Object
}

// Interpreter executes effect trees. It holds configuration only; every call
// is independent.
type Interpreter struct {
	logger *zap.Logger
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger used for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(in *Interpreter) {
		in.logger = l
	}
}

// New creates an Interpreter.
func New(opts ...Option) *Interpreter {
	in := &Interpreter{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

var defaultInterpreter = New()

// ApplyEffects runs effects with a default Interpreter.
func ApplyEffects(effects []ir.Effect, ctx *Context, budget *Budget) (Result, error) {
	return defaultInterpreter.ApplyEffects(effects, ctx, budget)
}

// Apply runs a single effect.
func (in *Interpreter) Apply(effect ir.Effect, ctx *Context, budget *Budget) (Result, error) {
	return in.ApplyEffects([]ir.Effect{effect}, ctx, budget)
}

// ApplyEffects runs effects in order against ctx.State.
//
// The call is all-or-nothing: on error the returned Result is empty and
// ctx.State is untouched, so the caller simply discards the attempt.
// Bindings created with bindValue at the top level of effects are
// returned in Result.Bindings.
func (in *Interpreter) ApplyEffects(effects []ir.Effect, ctx *Context, budget *Budget) (Result, error) {
	if budget == nil {
		budget = NewBudget(DefaultEffectBudget)
	}
	r := &run{
		in:     in,
		ctx:    ctx,
		budget: budget,
		state:  ctx.State,
		rng:    ctx.Rng,
	}
	exports, err := r.block(effects, ctx.Bindings)
	if err != nil {
		return Result{}, err
	}
	state := r.state
	if !rngEqual(state.Rng, r.rng) {
		state = state.Clone()
		state.Rng = r.rng
	}
	return Result{State: state, Rng: r.rng, Emitted: r.emitted, Bindings: exports}, nil
}

func rngEqual(a, b ir.RngState) bool {
	return a.Algorithm == b.Algorithm && a.Version == b.Version && string(a.State) == string(b.State)
}

// run is the mutable working set of one ApplyEffects call. It never
// escapes the call; state values it produces are immutable.
type run struct {
	in      *Interpreter
	ctx     *Context
	budget  *Budget
	state   *ir.GameState
	rng     ir.RngState
	emitted []ir.TriggerEvent
}

func (r *run) evalCtx(frame *eval.Frame) *eval.Context {
	return &eval.Context{
		Tree:            r.ctx.Tree,
		State:           r.state,
		Bindings:        frame,
		MoveParams:      r.ctx.MoveParams,
		ActivePlayer:    r.ctx.ActivePlayer,
		Actor:           r.ctx.Actor,
		Collector:       r.ctx.Collector,
		MaxQueryResults: r.ctx.MaxQueryResults,
	}
}

func (r *run) emit(e ir.TriggerEvent) {
	r.emitted = append(r.emitted, e)
}

// block runs a list of effects. bindValue extends the frame for the
// following siblings; the exports are returned to the caller, which
// decides whether they escape.
func (r *run) block(effects []ir.Effect, frame *eval.Frame) (ir.Object, error) {
	var exports ir.Object
	for _, e := range effects {
		if bv, ok := e.(ir.BindValue); ok {
			if err := r.budget.spend("bindValue"); err != nil {
				return nil, err
			}
			v, err := eval.Value(bv.Value, r.evalCtx(frame))
			if err != nil {
				return nil, err
			}
			frame = frame.Extend(bv.Bind, v)
			if exports == nil {
				exports = ir.Object{}
			}
			exports[bv.Bind] = v
			continue
		}
		if err := r.effect(e, frame); err != nil {
			return nil, err
		}
	}
	return exports, nil
}
