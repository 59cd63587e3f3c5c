package eval

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"

	"github.com/roach88/rulekernel/internal/ir"
)

// Value evaluates a value expression. It never mutates ctx or its state.
func Value(expr ir.ValueExpr, ctx *Context) (ir.Value, error) {
	switch e := expr.(type) {
	case ir.Literal:
		return e.Value, nil
	case ir.ListExpr:
		out := make(ir.List, len(e.Items))
		for i, item := range e.Items {
			v, err := Value(item, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case ir.Ref:
		return ref(e, ctx)
	case ir.Arith:
		return arith(e, ctx)
	case ir.Aggregate:
		return aggregate(e, ctx)
	case ir.IfValue:
		ok, err := Condition(e.When, ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			return Value(e.Then, ctx)
		}
		return Value(e.Else, ctx)
	case ir.QueryValue:
		return Query(e.Query, ctx)
	case nil:
		return nil, newError(CodeTypeMismatch, "missing value expression")
	default:
		return nil, fmt.Errorf("unknown value expression %T", expr)
	}
}

// Int evaluates expr and requires an integer result.
func Int(expr ir.ValueExpr, ctx *Context) (int64, error) {
	v, err := Value(expr, ctx)
	if err != nil {
		return 0, err
	}
	n, ok := v.(ir.Int)
	if !ok {
		return 0, mismatch("integer expression", ir.KindInt, v)
	}
	return int64(n), nil
}

func ref(r ir.Ref, ctx *Context) (ir.Value, error) {
	s := ctx.State
	switch r.Kind {
	case ir.RefGlobalVar:
		return variable(s.Globals, r.Var, "global")
	case ir.RefPlayerVar:
		p, err := Player(r.Player, ctx)
		if err != nil {
			return nil, err
		}
		return variable(s.PerPlayer[p], r.Var, "player "+strconv.Itoa(p))
	case ir.RefZoneVar:
		z, err := Zone(r.Zone, ctx)
		if err != nil {
			return nil, err
		}
		return variable(s.ZoneVars[z], r.Var, "zone "+z)
	case ir.RefBinding:
		return lookup(r.Name, ctx)
	case ir.RefTokenProp:
		v, err := lookup(r.Name, ctx)
		if err != nil {
			return nil, err
		}
		tok, ok := v.(ir.Token)
		if !ok {
			return nil, mismatch("tokenProp "+r.Name, ir.KindToken, v)
		}
		pv, ok := tok.Props[r.Prop]
		if !ok {
			return nil, notFound("prop", r.Prop, slices.Collect(maps.Keys(tok.Props)))
		}
		return pv, nil
	case ir.RefZoneAttr:
		z, err := Zone(r.Zone, ctx)
		if err != nil {
			return nil, err
		}
		return zoneAttr(z, r.Prop, ctx)
	case ir.RefMarker:
		z, err := Zone(r.Zone, ctx)
		if err != nil {
			return nil, err
		}
		st, ok := s.Markers[z][r.Marker]
		if !ok {
			return nil, notFound("marker", r.Marker, slices.Collect(maps.Keys(s.Markers[z])))
		}
		return ir.Str(st), nil
	case ir.RefActivePlayer:
		return ir.Int(ctx.ActivePlayer), nil
	case ir.RefActor:
		return ir.Int(ctx.Actor), nil
	case ir.RefTurnCount:
		return ir.Int(s.TurnCount), nil
	case ir.RefPhase:
		return ir.Str(s.CurrentPhase), nil
	case ir.RefPlayerCount:
		return ir.Int(s.PlayerCount), nil
	case ir.RefTokenCount:
		z, err := Zone(r.Zone, ctx)
		if err != nil {
			return nil, err
		}
		return ir.Int(len(s.Zones[z])), nil
	default:
		return nil, fmt.Errorf("unknown ref kind %q", r.Kind)
	}
}

func variable(vars ir.Object, name, where string) (ir.Value, error) {
	v, ok := vars[name]
	if !ok {
		return nil, newError(CodeMissingVar, fmt.Sprintf("variable %q not declared for %s", name, where),
			"var", name, "scope", where)
	}
	return v, nil
}

// zoneNotFound reports a missing zone definition against the declared ids.
func zoneNotFound(defID string, ctx *Context) *Error {
	ids := make([]string, len(ctx.Tree.Zones))
	for i, z := range ctx.Tree.Zones {
		ids[i] = z.ID
	}
	return notFound("zone", defID, ids)
}

func zoneAttr(zone, attr string, ctx *Context) (ir.Value, error) {
	defID := ZoneDefID(zone)
	def, ok := ctx.Tree.Zone(defID)
	if !ok {
		return nil, zoneNotFound(defID, ctx)
	}
	v, ok := def.Attributes[attr]
	if !ok {
		return nil, notFound("attribute", attr, slices.Collect(maps.Keys(def.Attributes)))
	}
	return v, nil
}

func arith(a ir.Arith, ctx *Context) (ir.Value, error) {
	l, err := Int(a.Left, ctx)
	if err != nil {
		return nil, err
	}
	r, err := Int(a.Right, ctx)
	if err != nil {
		return nil, err
	}
	var (
		n  int64
		ok = true
	)
	switch a.Op {
	case "+":
		n, ok = AddInt(l, r)
	case "-":
		n, ok = subInt(l, r)
	case "*":
		n, ok = mulInt(l, r)
	case "/", "%":
		if r == 0 {
			return nil, newError(CodeDivisionByZero, fmt.Sprintf("%d %s 0", l, a.Op), "op", a.Op)
		}
		switch {
		case a.Op == "%":
			n = l % r
		case l == math.MinInt64 && r == -1:
			ok = false
		default:
			n = l / r
		}
	default:
		return nil, fmt.Errorf("unknown arithmetic operator %q", a.Op)
	}
	if !ok {
		return nil, overflow(l, a.Op, r)
	}
	return ir.Int(n), nil
}

// AddInt returns l+r and whether it fits in int64.
func AddInt(l, r int64) (int64, bool) {
	n := l + r
	return n, (r >= 0) == (n >= l)
}

func subInt(l, r int64) (int64, bool) {
	n := l - r
	return n, (r >= 0) == (n <= l)
}

func mulInt(l, r int64) (int64, bool) {
	if l == 0 || r == 0 {
		return 0, true
	}
	n := l * r
	if (l == -1 && r == math.MinInt64) || (r == -1 && l == math.MinInt64) || n/r != l {
		return n, false
	}
	return n, true
}

func overflow(l int64, op string, r int64) *Error {
	return newError(CodeIntegerOverflow, fmt.Sprintf("%d %s %d overflows int64", l, op, r), "op", op)
}

// aggregate folds a query. sum of nothing is 0; min and max of nothing are
// 0 as well so aggregates stay total.
func aggregate(a ir.Aggregate, ctx *Context) (ir.Value, error) {
	items, err := Query(a.Query, ctx)
	if err != nil {
		return nil, err
	}
	if a.Op == ir.AggCount {
		return ir.Int(len(items)), nil
	}
	var acc int64
	for i, item := range items {
		n, err := aggregateItem(item, a.Prop)
		if err != nil {
			return nil, err
		}
		switch a.Op {
		case ir.AggSum:
			sum, ok := AddInt(acc, n)
			if !ok {
				return nil, overflow(acc, "+", n)
			}
			acc = sum
		case ir.AggMin:
			if i == 0 || n < acc {
				acc = n
			}
		case ir.AggMax:
			if i == 0 || n > acc {
				acc = n
			}
		default:
			return nil, fmt.Errorf("unknown aggregate %q", a.Op)
		}
	}
	return ir.Int(acc), nil
}

func aggregateItem(item ir.Value, prop string) (int64, error) {
	if prop != "" {
		tok, ok := item.(ir.Token)
		if !ok {
			return 0, mismatch("aggregate prop "+prop, ir.KindToken, item)
		}
		item, ok = tok.Props[prop]
		if !ok {
			return 0, notFound("prop", prop, slices.Collect(maps.Keys(tok.Props)))
		}
	}
	n, ok := item.(ir.Int)
	if !ok {
		return 0, mismatch("aggregate item", ir.KindInt, item)
	}
	return int64(n), nil
}

func mismatch(what string, want ir.Kind, got ir.Value) *Error {
	return newError(CodeTypeMismatch,
		fmt.Sprintf("%s: expected %s, got %s", what, want, ir.KindOf(got)),
		"expected", string(want),
		"actual", string(ir.KindOf(got)))
}
