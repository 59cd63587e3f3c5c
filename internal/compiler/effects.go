package compiler

import (
	"cuelang.org/go/cue"

	"github.com/roach88/rulekernel/internal/ir"
)

func optEffects(v cue.Value, name, path string) ([]ir.Effect, error) {
	f, ok := lookup(v, name)
	if !ok {
		return nil, nil
	}
	return effectList(f, child(path, name))
}

func effectList(v cue.Value, path string) ([]ir.Effect, error) {
	var out []ir.Effect
	err := list(v, path, func(item cue.Value, p string) error {
		e, err := effect(item, p)
		out = append(out, e)
		return err
	})
	return out, err
}

// effect decodes one single-key effect object such as
// {moveAll: {from: "deck", to: "hand:actor"}}.
func effect(v cue.Value, path string) (ir.Effect, error) {
	key, f, err := single(v, path, "effect")
	if err != nil {
		return nil, err
	}
	p := child(path, key)
	d := effectDecoder{v: f, path: p}

	switch key {
	case "setVar":
		d.allow("scope", "var", "player", "zone", "value")
		e := ir.SetVar{Target: d.target()}
		e.Value = d.value("value")
		return e, d.err
	case "addVar":
		d.allow("scope", "var", "player", "zone", "delta")
		e := ir.AddVar{Target: d.target()}
		e.Delta = d.value("delta")
		return e, d.err
	case "moveToken":
		d.allow("token", "from", "to", "position")
		e := ir.MoveToken{
			Token:    d.req("token"),
			From:     d.opt("from"),
			To:       d.req("to"),
			Position: ir.Position(d.opt("position")),
		}
		switch e.Position {
		case "":
			e.Position = ir.PositionBottom
		case ir.PositionTop, ir.PositionBottom, ir.PositionRandom:
		default:
			d.fail("position", "unknown position %q (top, bottom or random)", e.Position)
		}
		return e, d.err
	case "moveAll":
		d.allow("from", "to", "filters")
		e := ir.MoveAll{From: d.req("from"), To: d.req("to")}
		if d.err == nil {
			e.Filters, d.err = propFilters(f, p)
		}
		return e, d.err
	case "draw":
		d.allow("from", "to", "count")
		e := ir.Draw{From: d.req("from"), To: d.req("to")}
		e.Count = d.value("count")
		return e, d.err
	case "createToken":
		d.allow("type", "zone", "props", "bind", "in")
		e := ir.CreateToken{Type: d.req("type"), Zone: d.req("zone"), Bind: d.opt("bind")}
		e.Props = d.props("props")
		e.In = d.effects("in")
		return e, d.err
	case "destroyToken":
		d.allow("token")
		return ir.DestroyToken{Token: d.req("token")}, d.err
	case "setTokenProp":
		d.allow("token", "prop", "value")
		e := ir.SetTokenProp{Token: d.req("token"), Prop: d.req("prop")}
		e.Value = d.value("value")
		return e, d.err
	case "setMarker":
		d.allow("zone", "marker", "state")
		e := ir.SetMarker{Zone: d.req("zone"), Marker: d.req("marker")}
		e.State = d.value("state")
		return e, d.err
	case "shuffle":
		d.allow("zone")
		return ir.Shuffle{Zone: d.req("zone")}, d.err
	case "rollRandom":
		d.allow("bind", "min", "max", "in")
		e := ir.RollRandom{Bind: d.req("bind")}
		e.Min = d.value("min")
		e.Max = d.value("max")
		e.In = d.effects("in")
		return e, d.err
	case "bindValue":
		d.allow("bind", "value")
		e := ir.BindValue{Bind: d.req("bind")}
		e.Value = d.value("value")
		return e, d.err
	case "if":
		d.allow("when", "then", "else")
		e := ir.If{When: d.condition("when")}
		e.Then = d.effects("then")
		e.Else = d.effects("else")
		return e, d.err
	case "let":
		d.allow("bind", "value", "in")
		e := ir.Let{Bind: d.req("bind")}
		e.Value = d.value("value")
		e.In = d.effects("in")
		return e, d.err
	case "forEach":
		d.allow("bind", "over", "limit", "effects", "count_bind", "in")
		e := ir.ForEach{Bind: d.req("bind"), CountBind: d.opt("count_bind")}
		e.Over = d.query("over")
		e.Limit = d.optValue("limit")
		e.Effects = d.effects("effects")
		e.In = d.effects("in")
		return e, d.err
	case "removeByPriority":
		d.allow("budget", "groups", "remaining_bind", "in")
		e := ir.RemoveByPriority{RemainingBind: d.opt("remaining_bind")}
		e.Budget = d.value("budget")
		e.Groups = d.groups("groups")
		e.In = d.effects("in")
		return e, d.err
	case "grantFreeOperation":
		d.allow("seat", "actions")
		e := ir.GrantFreeOperation{Seat: d.value("seat")}
		if d.err == nil {
			e.Actions, d.err = optStrList(f, "actions", p)
		}
		return e, d.err
	case "setEligibility":
		d.allow("seat", "eligible")
		e := ir.SetEligibility{Seat: d.value("seat")}
		e.Eligible = d.condition("eligible")
		return e, d.err
	default:
		return nil, errAt(v, path, "unknown effect %q", key)
	}
}

// effectDecoder reads the fields of one effect body and keeps the first
// error, so each case reads as a flat list of fields.
type effectDecoder struct {
	v    cue.Value
	path string
	err  error
}

func (d *effectDecoder) allow(names ...string) {
	if d.err == nil {
		d.err = fields(d.v, d.path, names...)
	}
}

func (d *effectDecoder) fail(name, format string, args ...any) {
	if d.err != nil {
		return
	}
	f, ok := lookup(d.v, name)
	if !ok {
		f = d.v
	}
	d.err = errAt(f, child(d.path, name), format, args...)
}

func (d *effectDecoder) req(name string) string {
	if d.err != nil {
		return ""
	}
	s, err := reqStr(d.v, name, d.path)
	d.err = err
	return s
}

func (d *effectDecoder) opt(name string) string {
	if d.err != nil {
		return ""
	}
	s, err := optStr(d.v, name, d.path)
	d.err = err
	return s
}

func (d *effectDecoder) value(name string) ir.ValueExpr {
	if d.err != nil {
		return nil
	}
	e, err := reqValueExpr(d.v, name, d.path)
	d.err = err
	return e
}

func (d *effectDecoder) optValue(name string) ir.ValueExpr {
	if d.err != nil {
		return nil
	}
	e, err := optValueExpr(d.v, name, d.path)
	d.err = err
	return e
}

func (d *effectDecoder) condition(name string) ir.Condition {
	if d.err != nil {
		return nil
	}
	f, ok := lookup(d.v, name)
	if !ok {
		d.err = errAt(d.v, child(d.path, name), "is required")
		return nil
	}
	c, err := condition(f, child(d.path, name))
	d.err = err
	return c
}

func (d *effectDecoder) query(name string) ir.Query {
	if d.err != nil {
		return nil
	}
	f, ok := lookup(d.v, name)
	if !ok {
		d.err = errAt(d.v, child(d.path, name), "is required")
		return nil
	}
	q, err := query(f, child(d.path, name))
	d.err = err
	return q
}

func (d *effectDecoder) effects(name string) []ir.Effect {
	if d.err != nil {
		return nil
	}
	list, err := optEffects(d.v, name, d.path)
	d.err = err
	return list
}

func (d *effectDecoder) props(name string) map[string]ir.ValueExpr {
	if d.err != nil {
		return nil
	}
	f, ok := lookup(d.v, name)
	if !ok {
		return nil
	}
	p := child(d.path, name)
	if f.Kind() != cue.StructKind {
		d.err = errAt(f, p, "expected an object, got %v", f.Kind())
		return nil
	}
	iter, err := f.Fields()
	if err != nil {
		d.err = formatCUEError(err)
		return nil
	}
	out := make(map[string]ir.ValueExpr)
	for iter.Next() {
		e, err := valueExpr(iter.Value(), child(p, iter.Label()))
		if err != nil {
			d.err = err
			return nil
		}
		out[iter.Label()] = e
	}
	return out
}

// target reads a variable target; scope defaults to global.
func (d *effectDecoder) target() ir.VarTarget {
	t := ir.VarTarget{
		Scope:  ir.VarScope(d.opt("scope")),
		Var:    d.req("var"),
		Player: d.opt("player"),
		Zone:   d.opt("zone"),
	}
	if d.err != nil {
		return t
	}
	switch t.Scope {
	case "":
		t.Scope = ir.ScopeGlobal
	case ir.ScopeGlobal:
	case ir.ScopePlayer:
		if t.Player == "" {
			d.fail("player", "is required for pvar targets")
		}
	case ir.ScopeZone:
		if t.Zone == "" {
			d.fail("zone", "is required for zoneVar targets")
		}
	default:
		d.fail("scope", "unknown variable scope %q (global, pvar or zoneVar)", t.Scope)
	}
	return t
}

func (d *effectDecoder) groups(name string) []ir.PriorityGroup {
	if d.err != nil {
		return nil
	}
	var out []ir.PriorityGroup
	d.err = optList(d.v, name, d.path, func(item cue.Value, p string) error {
		g := effectDecoder{v: item, path: p}
		g.allow("bind", "over", "to", "count_bind")
		pg := ir.PriorityGroup{Bind: g.req("bind"), To: g.req("to"), CountBind: g.opt("count_bind")}
		pg.Over = g.query("over")
		out = append(out, pg)
		return g.err
	})
	return out
}
