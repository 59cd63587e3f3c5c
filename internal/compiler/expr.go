package compiler

import (
	"slices"

	"cuelang.org/go/cue"

	"github.com/roach88/rulekernel/internal/ir"
)

var refKinds = []ir.RefKind{
	ir.RefGlobalVar, ir.RefPlayerVar, ir.RefZoneVar, ir.RefBinding, ir.RefTokenProp,
	ir.RefZoneAttr, ir.RefMarker, ir.RefActivePlayer, ir.RefActor, ir.RefTurnCount,
	ir.RefPhase, ir.RefPlayerCount, ir.RefTokenCount,
}

var (
	arithOps   = []string{"+", "-", "*", "/", "%"}
	compareOps = []string{"==", "!=", "<", "<=", ">", ">="}
	aggOps     = []ir.AggregateOp{ir.AggCount, ir.AggSum, ir.AggMin, ir.AggMax}
)

// valueExpr decodes a value expression. Scalars are literals and lists
// build lists; objects are told apart by their leading key: ref, op,
// aggregate, if, query or value.
func valueExpr(v cue.Value, path string) (ir.ValueExpr, error) {
	switch v.Kind() {
	case cue.IntKind, cue.StringKind, cue.BoolKind, cue.FloatKind:
		val, err := literal(v, path)
		if err != nil {
			return nil, err
		}
		return ir.Literal{Value: val}, nil
	case cue.ListKind:
		var items []ir.ValueExpr
		err := list(v, path, func(item cue.Value, p string) error {
			e, err := valueExpr(item, p)
			items = append(items, e)
			return err
		})
		return ir.ListExpr{Items: items}, err
	case cue.StructKind:
	default:
		return nil, errAt(v, path, "%v is not a value expression", v.Kind())
	}

	if _, ok := lookup(v, "ref"); ok {
		return decodeRef(v, path)
	}
	if f, ok := lookup(v, "op"); ok {
		if err := fields(v, path, "op", "left", "right"); err != nil {
			return nil, err
		}
		op, err := str(f, child(path, "op"))
		if err != nil {
			return nil, err
		}
		if !slices.Contains(arithOps, op) {
			return nil, errAt(f, child(path, "op"), "unknown arithmetic operator %q", op)
		}
		left, right, err := operands(v, path)
		return ir.Arith{Op: op, Left: left, Right: right}, err
	}
	if f, ok := lookup(v, "aggregate"); ok {
		if err := fields(v, path, "aggregate", "query", "prop"); err != nil {
			return nil, err
		}
		op, err := str(f, child(path, "aggregate"))
		if err != nil {
			return nil, err
		}
		if !slices.Contains(aggOps, ir.AggregateOp(op)) {
			return nil, errAt(f, child(path, "aggregate"), "unknown aggregate %q", op)
		}
		agg := ir.Aggregate{Op: ir.AggregateOp(op)}
		q, ok := lookup(v, "query")
		if !ok {
			return nil, errAt(v, child(path, "query"), "is required")
		}
		if agg.Query, err = query(q, child(path, "query")); err != nil {
			return nil, err
		}
		agg.Prop, err = optStr(v, "prop", path)
		return agg, err
	}
	if f, ok := lookup(v, "if"); ok {
		if err := fields(v, path, "if", "then", "else"); err != nil {
			return nil, err
		}
		when, err := condition(f, child(path, "if"))
		if err != nil {
			return nil, err
		}
		then, err := reqValueExpr(v, "then", path)
		if err != nil {
			return nil, err
		}
		els, err := reqValueExpr(v, "else", path)
		return ir.IfValue{When: when, Then: then, Else: els}, err
	}
	if f, ok := lookup(v, "query"); ok {
		if err := fields(v, path, "query"); err != nil {
			return nil, err
		}
		q, err := query(f, child(path, "query"))
		return ir.QueryValue{Query: q}, err
	}
	if f, ok := lookup(v, "value"); ok {
		if err := fields(v, path, "value"); err != nil {
			return nil, err
		}
		val, err := literal(f, child(path, "value"))
		return ir.Literal{Value: val}, err
	}
	return nil, errAt(v, path, "unknown value expression (expected ref, op, aggregate, if, query or value)")
}

func reqValueExpr(v cue.Value, name, path string) (ir.ValueExpr, error) {
	f, ok := lookup(v, name)
	if !ok {
		return nil, errAt(v, child(path, name), "is required")
	}
	return valueExpr(f, child(path, name))
}

func optValueExpr(v cue.Value, name, path string) (ir.ValueExpr, error) {
	f, ok := lookup(v, name)
	if !ok {
		return nil, nil
	}
	return valueExpr(f, child(path, name))
}

func operands(v cue.Value, path string) (ir.ValueExpr, ir.ValueExpr, error) {
	left, err := reqValueExpr(v, "left", path)
	if err != nil {
		return nil, nil, err
	}
	right, err := reqValueExpr(v, "right", path)
	return left, right, err
}

func decodeRef(v cue.Value, path string) (ir.ValueExpr, error) {
	if err := fields(v, path, "ref", "var", "player", "zone", "name", "prop", "marker"); err != nil {
		return nil, err
	}
	kind, err := reqStr(v, "ref", path)
	if err != nil {
		return nil, err
	}
	r := ir.Ref{Kind: ir.RefKind(kind)}
	if !slices.Contains(refKinds, r.Kind) {
		f, _ := lookup(v, "ref")
		return nil, errAt(f, child(path, "ref"), "unknown ref kind %q", kind)
	}
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"var", &r.Var}, {"player", &r.Player}, {"zone", &r.Zone},
		{"name", &r.Name}, {"prop", &r.Prop}, {"marker", &r.Marker},
	} {
		if *f.dst, err = optStr(v, f.name, path); err != nil {
			return nil, err
		}
	}

	var missing string
	switch r.Kind {
	case ir.RefGlobalVar:
		missing = need(r.Var == "", "var")
	case ir.RefPlayerVar:
		missing = need(r.Var == "", "var") + need(r.Player == "", "player")
	case ir.RefZoneVar:
		missing = need(r.Var == "", "var") + need(r.Zone == "", "zone")
	case ir.RefBinding:
		missing = need(r.Name == "", "name")
	case ir.RefTokenProp:
		missing = need(r.Name == "", "name") + need(r.Prop == "", "prop")
	case ir.RefZoneAttr:
		missing = need(r.Zone == "", "zone") + need(r.Prop == "", "prop")
	case ir.RefMarker:
		missing = need(r.Zone == "", "zone") + need(r.Marker == "", "marker")
	case ir.RefTokenCount:
		missing = need(r.Zone == "", "zone")
	}
	if missing != "" {
		return nil, errAt(v, path, "%s ref needs%s", kind, missing)
	}
	return r, nil
}

func need(missing bool, name string) string {
	if missing {
		return " " + name
	}
	return ""
}

func optCondition(v cue.Value, name, path string) (ir.Condition, error) {
	f, ok := lookup(v, name)
	if !ok {
		return nil, nil
	}
	return condition(f, child(path, name))
}

// condition decodes a boolean expression: a bool, {and: [...]}, {or: [...]},
// {not: c}, {op, left, right}, {in, set} or {zonePropIncludes: {...}}.
func condition(v cue.Value, path string) (ir.Condition, error) {
	if v.Kind() == cue.BoolKind {
		b, err := v.Bool()
		if err != nil {
			return nil, errAt(v, path, "expected a bool")
		}
		return ir.BoolLit{Value: b}, nil
	}
	if v.Kind() != cue.StructKind {
		return nil, errAt(v, path, "%v is not a condition", v.Kind())
	}

	for _, key := range []string{"and", "or"} {
		f, ok := lookup(v, key)
		if !ok {
			continue
		}
		if err := fields(v, path, key); err != nil {
			return nil, err
		}
		var args []ir.Condition
		err := list(f, child(path, key), func(item cue.Value, p string) error {
			c, err := condition(item, p)
			args = append(args, c)
			return err
		})
		if err != nil {
			return nil, err
		}
		if key == "and" {
			return ir.And{Args: args}, nil
		}
		return ir.Or{Args: args}, nil
	}
	if f, ok := lookup(v, "not"); ok {
		if err := fields(v, path, "not"); err != nil {
			return nil, err
		}
		c, err := condition(f, child(path, "not"))
		return ir.Not{Arg: c}, err
	}
	if f, ok := lookup(v, "op"); ok {
		if err := fields(v, path, "op", "left", "right"); err != nil {
			return nil, err
		}
		op, err := str(f, child(path, "op"))
		if err != nil {
			return nil, err
		}
		if !slices.Contains(compareOps, op) {
			return nil, errAt(f, child(path, "op"), "unknown comparison %q", op)
		}
		left, right, err := operands(v, path)
		return ir.Compare{Op: op, Left: left, Right: right}, err
	}
	if f, ok := lookup(v, "in"); ok {
		if err := fields(v, path, "in", "set"); err != nil {
			return nil, err
		}
		item, err := valueExpr(f, child(path, "in"))
		if err != nil {
			return nil, err
		}
		set, err := reqValueExpr(v, "set", path)
		return ir.In{Item: item, Set: set}, err
	}
	if f, ok := lookup(v, "zonePropIncludes"); ok {
		if err := fields(v, path, "zonePropIncludes"); err != nil {
			return nil, err
		}
		p := child(path, "zonePropIncludes")
		if err := fields(f, p, "zone", "prop", "value"); err != nil {
			return nil, err
		}
		var c ir.ZonePropIncludes
		var err error
		if c.Zone, err = reqStr(f, "zone", p); err != nil {
			return nil, err
		}
		if c.Prop, err = reqStr(f, "prop", p); err != nil {
			return nil, err
		}
		c.Value, err = reqValueExpr(f, "value", p)
		return c, err
	}
	return nil, errAt(v, path, "unknown condition (expected and, or, not, op, in or zonePropIncludes)")
}

// query decodes a single-key query object.
func query(v cue.Value, path string) (ir.Query, error) {
	key, f, err := single(v, path, "query")
	if err != nil {
		return nil, err
	}
	p := child(path, key)
	switch key {
	case "tokensInZone":
		// Shorthand: {tokensInZone: "zone"}.
		if f.Kind() == cue.StringKind {
			zone, err := str(f, p)
			return ir.TokensInZone{Zone: zone}, err
		}
		if err := fields(f, p, "zone", "filters"); err != nil {
			return nil, err
		}
		zone, err := reqStr(f, "zone", p)
		if err != nil {
			return nil, err
		}
		filters, err := propFilters(f, p)
		return ir.TokensInZone{Zone: zone, Filters: filters}, err
	case "zones":
		if err := fields(f, p, "where"); err != nil {
			return nil, err
		}
		where, err := optCondition(f, "where", p)
		return ir.ZonesQuery{Where: where}, err
	case "players":
		if err := fields(f, p); err != nil {
			return nil, err
		}
		return ir.PlayersQuery{}, nil
	case "intsInRange":
		if err := fields(f, p, "min", "max"); err != nil {
			return nil, err
		}
		lo, err := reqValueExpr(f, "min", p)
		if err != nil {
			return nil, err
		}
		hi, err := reqValueExpr(f, "max", p)
		return ir.IntsInRange{Min: lo, Max: hi}, err
	case "enums":
		values, err := strList(f, p)
		return ir.EnumsQuery{Values: values}, err
	case "binding":
		name, err := str(f, p)
		return ir.BindingQuery{Name: name}, err
	case "concat":
		var parts []ir.Query
		err := list(f, p, func(item cue.Value, ip string) error {
			q, err := query(item, ip)
			parts = append(parts, q)
			return err
		})
		return ir.ConcatQuery{Parts: parts}, err
	default:
		return nil, errAt(v, path, "unknown query %q", key)
	}
}

func propFilters(v cue.Value, path string) ([]ir.PropFilter, error) {
	var out []ir.PropFilter
	err := optList(v, "filters", path, func(item cue.Value, p string) error {
		if err := fields(item, p, "prop", "op", "value"); err != nil {
			return err
		}
		var pf ir.PropFilter
		var err error
		if pf.Prop, err = reqStr(item, "prop", p); err != nil {
			return err
		}
		if pf.Op, err = optStr(item, "op", p); err != nil {
			return err
		}
		if pf.Op == "" {
			pf.Op = "=="
		}
		if !slices.Contains(compareOps, pf.Op) {
			f, _ := lookup(item, "op")
			return errAt(f, child(p, "op"), "unknown comparison %q", pf.Op)
		}
		if pf.Value, err = reqValueExpr(item, "value", p); err != nil {
			return err
		}
		out = append(out, pf)
		return nil
	})
	return out, err
}
