package eval

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/rulekernel/internal/ir"
)

// Condition evaluates a boolean expression. and/or short-circuit left to
// right; the empty and is true and the empty or is false.
func Condition(cond ir.Condition, ctx *Context) (bool, error) {
	switch c := cond.(type) {
	case ir.BoolLit:
		return c.Value, nil
	case ir.And:
		for _, arg := range c.Args {
			ok, err := Condition(arg, ctx)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case ir.Or:
		for _, arg := range c.Args {
			ok, err := Condition(arg, ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case ir.Not:
		ok, err := Condition(c.Arg, ctx)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case ir.Compare:
		l, err := Value(c.Left, ctx)
		if err != nil {
			return false, err
		}
		r, err := Value(c.Right, ctx)
		if err != nil {
			return false, err
		}
		return Compare(c.Op, l, r)
	case ir.In:
		return in(c, ctx)
	case ir.ZonePropIncludes:
		return zonePropIncludes(c, ctx)
	case nil:
		return true, nil
	default:
		return false, fmt.Errorf("unknown condition %T", cond)
	}
}

// Compare applies a comparison operator. Both operands must have the same
// kind; ordering operators accept only integers and strings.
func Compare(op string, l, r ir.Value) (bool, error) {
	if ir.KindOf(l) != ir.KindOf(r) {
		return false, newError(CodeTypeMismatch,
			fmt.Sprintf("cannot compare %s %s %s", ir.KindOf(l), op, ir.KindOf(r)),
			"op", op, "left", string(ir.KindOf(l)), "right", string(ir.KindOf(r)))
	}
	switch op {
	case "==":
		return ir.Equal(l, r), nil
	case "!=":
		return !ir.Equal(l, r), nil
	case "<", "<=", ">", ">=":
	default:
		return false, fmt.Errorf("unknown comparison operator %q", op)
	}

	var c int
	switch lv := l.(type) {
	case ir.Int:
		c = cmpOrdered(lv, r.(ir.Int))
	case ir.Str:
		c = cmpOrdered(lv, r.(ir.Str))
	default:
		return false, newError(CodeTypeMismatch,
			fmt.Sprintf("operator %s needs integers or strings, got %s", op, ir.KindOf(l)),
			"op", op, "left", string(ir.KindOf(l)), "right", string(ir.KindOf(r)))
	}
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	default:
		return c >= 0, nil
	}
}

func cmpOrdered[T ir.Int | ir.Str](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func in(c ir.In, ctx *Context) (bool, error) {
	item, err := Value(c.Item, ctx)
	if err != nil {
		return false, err
	}
	setVal, err := Value(c.Set, ctx)
	if err != nil {
		return false, err
	}
	set, ok := setVal.(ir.List)
	if !ok {
		return false, mismatch("in: right operand", ir.KindList, setVal)
	}
	if len(set) == 0 {
		return false, nil
	}
	elemKind := ir.KindOf(set[0])
	if !isScalar(elemKind) {
		return false, newError(CodeTypeMismatch, fmt.Sprintf("in: collection of %s is not scalar", elemKind),
			"element", string(elemKind))
	}
	for i, v := range set {
		if ir.KindOf(v) != elemKind {
			return false, newError(CodeTypeMismatch, "in: collection is not homogeneous",
				"element", string(elemKind),
				"index", fmt.Sprint(i),
				"actual", string(ir.KindOf(v)))
		}
	}
	if ir.KindOf(item) != elemKind {
		return false, mismatch("in: item", elemKind, item)
	}
	for _, v := range set {
		if ir.Equal(item, v) {
			return true, nil
		}
	}
	return false, nil
}

func isScalar(k ir.Kind) bool {
	return k == ir.KindInt || k == ir.KindString || k == ir.KindBool
}

func zonePropIncludes(c ir.ZonePropIncludes, ctx *Context) (bool, error) {
	zone, err := Zone(c.Zone, ctx)
	if err != nil {
		return false, err
	}
	def, ok := ctx.Tree.Zone(ZoneDefID(zone))
	if !ok {
		return false, zoneNotFound(ZoneDefID(zone), ctx)
	}
	attr, ok := def.Attributes[c.Prop]
	if !ok {
		return false, notFound("attribute", c.Prop, slices.Collect(maps.Keys(def.Attributes)))
	}
	list, ok := attr.(ir.List)
	if !ok {
		return false, mismatch("zonePropIncludes "+zone+"."+c.Prop, ir.KindList, attr)
	}
	want, err := Value(c.Value, ctx)
	if err != nil {
		return false, err
	}
	for _, v := range list {
		if ir.Equal(v, want) {
			return true, nil
		}
	}
	return false, nil
}
