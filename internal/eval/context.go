package eval

import (
	"slices"

	"github.com/roach88/rulekernel/internal/ir"
)

// DefaultMaxQueryResults caps query result sizes when a Context leaves
// MaxQueryResults at zero.
const DefaultMaxQueryResults = 10000

// Context is the read-only input to one evaluation call. It is built per
// call and extended, never mutated, when entering a nested scope.
type Context struct {
	Tree  *ir.RuleTree
	State *ir.GameState

	// Bindings is the lexical scope. It takes precedence over MoveParams.
	Bindings *Frame

	// MoveParams are the call-site parameters of the move being resolved.
	MoveParams ir.Object

	ActivePlayer int
	Actor        int

	// Collector receives warnings and trace entries. May be nil.
	Collector *ir.Collector

	MaxQueryResults int
}

// NewContext returns a context over state with the active player as actor.
func NewContext(tree *ir.RuleTree, state *ir.GameState) *Context {
	return &Context{
		Tree:         tree,
		State:        state,
		ActivePlayer: state.ActivePlayer,
		Actor:        state.ActivePlayer,
	}
}

// WithBinding returns a copy of c with name bound in a child frame.
func (c *Context) WithBinding(name string, v ir.Value) *Context {
	out := *c
	out.Bindings = c.Bindings.Extend(name, v)
	return &out
}

// WithFrame returns a copy of c using frame as its lexical scope.
func (c *Context) WithFrame(frame *Frame) *Context {
	out := *c
	out.Bindings = frame
	return &out
}

// WithState returns a copy of c reading from state.
func (c *Context) WithState(state *ir.GameState) *Context {
	out := *c
	out.State = state
	return &out
}

// Lookup resolves a name against lexical bindings first, then move params.
func (c *Context) Lookup(name string) (ir.Value, bool) {
	if v, ok := c.Bindings.Lookup(name); ok {
		return v, true
	}
	v, ok := c.MoveParams[name]
	return v, ok
}

// visibleNames lists every bound name for MISSING_BINDING diagnostics.
func (c *Context) visibleNames() []string {
	names := c.Bindings.Names()
	for k := range c.MoveParams {
		names = append(names, k)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

func (c *Context) maxResults() int {
	if c.MaxQueryResults > 0 {
		return c.MaxQueryResults
	}
	return DefaultMaxQueryResults
}
