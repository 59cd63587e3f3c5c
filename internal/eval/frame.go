package eval

import (
	"slices"

	"github.com/roach88/rulekernel/internal/ir"
)

// Frame is an immutable lexical binding scope. Extending a frame returns a
// new frame that points at its parent, so outer scopes and sibling branches
// never observe inner bindings. The nil *Frame is the empty scope.
type Frame struct {
	parent *Frame
	name   string
	value  ir.Value
}

// Extend returns a child frame binding name to v.
func (f *Frame) Extend(name string, v ir.Value) *Frame {
	return &Frame{parent: f, name: name, value: v}
}

// ExtendAll binds every entry of obj in sorted key order.
func (f *Frame) ExtendAll(obj ir.Object) *Frame {
	out := f
	for _, k := range obj.SortedKeys() {
		out = out.Extend(k, obj[k])
	}
	return out
}

// Lookup finds the innermost binding for name.
func (f *Frame) Lookup(name string) (ir.Value, bool) {
	for cur := f; cur != nil; cur = cur.parent {
		if cur.name == name {
			return cur.value, true
		}
	}
	return nil, false
}

// Names returns every visible name, sorted and deduplicated.
func (f *Frame) Names() []string {
	var names []string
	for cur := f; cur != nil; cur = cur.parent {
		names = append(names, cur.name)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// Depth returns the number of bindings in the chain.
func (f *Frame) Depth() int {
	n := 0
	for cur := f; cur != nil; cur = cur.parent {
		n++
	}
	return n
}
