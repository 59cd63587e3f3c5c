package compiler

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/rulekernel/internal/ir"
)

func errAt(v cue.Value, path, format string, args ...any) error {
	return &CompileError{Field: path, Message: fmt.Sprintf(format, args...), Pos: v.Pos()}
}

func child(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func index(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}

// lookup returns the named field of a struct value.
func lookup(v cue.Value, name string) (cue.Value, bool) {
	f := v.LookupPath(cue.MakePath(cue.Str(name)))
	return f, f.Exists()
}

// fields checks that v is a struct with no fields outside allowed.
func fields(v cue.Value, path string, allowed ...string) error {
	if v.Kind() != cue.StructKind {
		return errAt(v, path, "expected an object, got %v", v.Kind())
	}
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if !slices.Contains(allowed, iter.Label()) {
			return errAt(iter.Value(), child(path, iter.Label()),
				"unknown field (allowed: %s)", strings.Join(allowed, ", "))
		}
	}
	return nil
}

// single splits a one-field object such as {moveAll: {...}} into its key
// and value.
func single(v cue.Value, path, what string) (string, cue.Value, error) {
	if v.Kind() != cue.StructKind {
		return "", cue.Value{}, errAt(v, path, "%s must be an object with a single key", what)
	}
	iter, err := v.Fields()
	if err != nil {
		return "", cue.Value{}, formatCUEError(err)
	}
	var (
		key string
		val cue.Value
		n   int
	)
	for iter.Next() {
		key, val = iter.Label(), iter.Value()
		n++
	}
	if n != 1 {
		return "", cue.Value{}, errAt(v, path, "%s must have exactly one key, got %d", what, n)
	}
	return key, val, nil
}

func str(v cue.Value, path string) (string, error) {
	s, err := v.String()
	if err != nil {
		return "", errAt(v, path, "expected a string, got %v", v.Kind())
	}
	return s, nil
}

func optStr(v cue.Value, name, path string) (string, error) {
	f, ok := lookup(v, name)
	if !ok {
		return "", nil
	}
	return str(f, child(path, name))
}

func reqStr(v cue.Value, name, path string) (string, error) {
	f, ok := lookup(v, name)
	if !ok {
		return "", errAt(v, child(path, name), "is required")
	}
	s, err := str(f, child(path, name))
	if err == nil && s == "" {
		return "", errAt(f, child(path, name), "must not be empty")
	}
	return s, err
}

func integer(v cue.Value, path string) (int64, error) {
	if v.Kind() == cue.FloatKind {
		return 0, errAt(v, path, "floats are not allowed, use an int")
	}
	n, err := v.Int64()
	if err != nil {
		return 0, errAt(v, path, "expected an int, got %v", v.Kind())
	}
	return n, nil
}

func optInt(v cue.Value, name, path string) (*int64, error) {
	f, ok := lookup(v, name)
	if !ok {
		return nil, nil
	}
	n, err := integer(f, child(path, name))
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func strList(v cue.Value, path string) ([]string, error) {
	var out []string
	err := list(v, path, func(item cue.Value, p string) error {
		s, err := str(item, p)
		out = append(out, s)
		return err
	})
	return out, err
}

func optStrList(v cue.Value, name, path string) ([]string, error) {
	f, ok := lookup(v, name)
	if !ok {
		return nil, nil
	}
	return strList(f, child(path, name))
}

// list calls fn for every element of a list value.
func list(v cue.Value, path string, fn func(item cue.Value, path string) error) error {
	iter, err := v.List()
	if err != nil {
		return errAt(v, path, "expected a list, got %v", v.Kind())
	}
	for i := 0; iter.Next(); i++ {
		if err := fn(iter.Value(), index(path, i)); err != nil {
			return err
		}
	}
	return nil
}

// optList calls fn for every element of the named list field, if present.
func optList(v cue.Value, name, path string, fn func(item cue.Value, path string) error) error {
	f, ok := lookup(v, name)
	if !ok {
		return nil
	}
	return list(f, child(path, name), fn)
}

// literal decodes a constant value. Objects are tokens.
func literal(v cue.Value, path string) (ir.Value, error) {
	switch v.Kind() {
	case cue.IntKind:
		n, err := integer(v, path)
		return ir.Int(n), err
	case cue.FloatKind:
		return nil, errAt(v, path, "floats are not allowed, use an int")
	case cue.StringKind:
		s, err := str(v, path)
		return ir.Str(s), err
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, errAt(v, path, "expected a bool")
		}
		return ir.Bool(b), nil
	case cue.ListKind:
		out := ir.List{}
		err := list(v, path, func(item cue.Value, p string) error {
			lv, err := literal(item, p)
			out = append(out, lv)
			return err
		})
		return out, err
	case cue.StructKind:
		var m map[string]any
		if err := v.Decode(&m); err != nil {
			return nil, formatCUEError(err)
		}
		val, err := ir.FromGo(m)
		if err != nil {
			return nil, errAt(v, path, "%v", err)
		}
		return val, nil
	default:
		return nil, errAt(v, path, "%v is not a value", v.Kind())
	}
}

// object decodes a struct of constant values.
func object(v cue.Value, path string) (ir.Object, error) {
	if v.Kind() != cue.StructKind {
		return nil, errAt(v, path, "expected an object, got %v", v.Kind())
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	obj := ir.Object{}
	for iter.Next() {
		name := iter.Label()
		val, err := literal(iter.Value(), child(path, name))
		if err != nil {
			return nil, err
		}
		obj[name] = val
	}
	return obj, nil
}

func decodeTree(v cue.Value) (*ir.RuleTree, error) {
	if err := fields(v, "", "metadata", "globals", "per_player", "zone_vars", "zones", "markers",
		"phases", "turn_order", "actions", "triggers", "lasting_effects", "end_conditions", "setup"); err != nil {
		return nil, err
	}
	tree := &ir.RuleTree{}
	var err error

	if tree.Metadata, err = decodeMetadata(v); err != nil {
		return nil, err
	}
	for _, section := range []struct {
		name string
		dst  *[]ir.VariableDef
	}{
		{"globals", &tree.Globals},
		{"per_player", &tree.PerPlayer},
		{"zone_vars", &tree.ZoneVars},
	} {
		err := optList(v, section.name, "", func(item cue.Value, p string) error {
			d, err := decodeVariable(item, p)
			*section.dst = append(*section.dst, d)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	if err := optList(v, "zones", "", func(item cue.Value, p string) error {
		z, err := decodeZone(item, p)
		tree.Zones = append(tree.Zones, z)
		return err
	}); err != nil {
		return nil, err
	}
	if err := optList(v, "markers", "", func(item cue.Value, p string) error {
		m, err := decodeMarker(item, p)
		tree.Markers = append(tree.Markers, m)
		return err
	}); err != nil {
		return nil, err
	}
	if tree.Phases, err = decodePhases(v); err != nil {
		return nil, err
	}
	if f, ok := lookup(v, "turn_order"); ok {
		if tree.TurnOrder, err = decodeTurnOrder(f, "turn_order"); err != nil {
			return nil, err
		}
	} else {
		tree.TurnOrder.Strategy = ir.StrategyRoundRobin
	}
	if err := optList(v, "actions", "", func(item cue.Value, p string) error {
		a, err := decodeAction(item, p)
		tree.Actions = append(tree.Actions, a)
		return err
	}); err != nil {
		return nil, err
	}
	if err := optList(v, "triggers", "", func(item cue.Value, p string) error {
		t, err := decodeTrigger(item, p)
		tree.Triggers = append(tree.Triggers, t)
		return err
	}); err != nil {
		return nil, err
	}
	if err := optList(v, "lasting_effects", "", func(item cue.Value, p string) error {
		l, err := decodeLasting(item, p)
		tree.LastingEffects = append(tree.LastingEffects, l)
		return err
	}); err != nil {
		return nil, err
	}
	if err := optList(v, "end_conditions", "", func(item cue.Value, p string) error {
		ec, err := decodeEndCondition(item, p)
		tree.EndConditions = append(tree.EndConditions, ec)
		return err
	}); err != nil {
		return nil, err
	}
	if tree.Setup, err = optEffects(v, "setup", ""); err != nil {
		return nil, err
	}
	return tree, nil
}

func decodeMetadata(v cue.Value) (ir.Metadata, error) {
	var md ir.Metadata
	f, ok := lookup(v, "metadata")
	if !ok {
		return md, errAt(v, "metadata", "is required")
	}
	if err := fields(f, "metadata", "id", "min_players", "max_players"); err != nil {
		return md, err
	}
	var err error
	if md.ID, err = reqStr(f, "id", "metadata"); err != nil {
		return md, err
	}
	for _, bound := range []struct {
		name string
		dst  *int
	}{{"min_players", &md.MinPlayers}, {"max_players", &md.MaxPlayers}} {
		n, err := optInt(f, bound.name, "metadata")
		if err != nil {
			return md, err
		}
		if n != nil {
			*bound.dst = int(*n)
		}
	}
	return md, nil
}

func decodeVariable(v cue.Value, path string) (ir.VariableDef, error) {
	var d ir.VariableDef
	if err := fields(v, path, "name", "type", "init", "min", "max"); err != nil {
		return d, err
	}
	var err error
	if d.Name, err = reqStr(v, "name", path); err != nil {
		return d, err
	}
	typ, err := reqStr(v, "type", path)
	if err != nil {
		return d, err
	}
	d.Type = ir.VarType(typ)
	if d.Type != ir.VarTypeInt && d.Type != ir.VarTypeBoolean {
		f, _ := lookup(v, "type")
		return d, errAt(f, child(path, "type"), "unknown variable type %q (int or boolean)", typ)
	}
	if f, ok := lookup(v, "init"); ok {
		if d.Init, err = literal(f, child(path, "init")); err != nil {
			return d, err
		}
	}
	if d.Min, err = optInt(v, "min", path); err != nil {
		return d, err
	}
	if d.Max, err = optInt(v, "max", path); err != nil {
		return d, err
	}
	return d, nil
}

func decodeZone(v cue.Value, path string) (ir.ZoneDef, error) {
	var z ir.ZoneDef
	if err := fields(v, path, "id", "owner", "attributes"); err != nil {
		return z, err
	}
	var err error
	if z.ID, err = reqStr(v, "id", path); err != nil {
		return z, err
	}
	owner, err := optStr(v, "owner", path)
	if err != nil {
		return z, err
	}
	switch ir.ZoneOwner(owner) {
	case "", ir.ZoneOwnerNone:
		z.Owner = ir.ZoneOwnerNone
	case ir.ZoneOwnerPlayer:
		z.Owner = ir.ZoneOwnerPlayer
	default:
		f, _ := lookup(v, "owner")
		return z, errAt(f, child(path, "owner"), "unknown zone owner %q (none or player)", owner)
	}
	if f, ok := lookup(v, "attributes"); ok {
		if z.Attributes, err = object(f, child(path, "attributes")); err != nil {
			return z, err
		}
	}
	return z, nil
}

func decodeMarker(v cue.Value, path string) (ir.MarkerDef, error) {
	var m ir.MarkerDef
	if err := fields(v, path, "id", "states", "default"); err != nil {
		return m, err
	}
	var err error
	if m.ID, err = reqStr(v, "id", path); err != nil {
		return m, err
	}
	if m.States, err = optStrList(v, "states", path); err != nil {
		return m, err
	}
	if m.Default, err = reqStr(v, "default", path); err != nil {
		return m, err
	}
	return m, nil
}

// decodePhases accepts phase ids or {id} objects.
func decodePhases(v cue.Value) ([]ir.PhaseDef, error) {
	var out []ir.PhaseDef
	err := optList(v, "phases", "", func(item cue.Value, p string) error {
		if item.Kind() == cue.StringKind {
			id, err := str(item, p)
			out = append(out, ir.PhaseDef{ID: id})
			return err
		}
		if err := fields(item, p, "id"); err != nil {
			return err
		}
		id, err := reqStr(item, "id", p)
		out = append(out, ir.PhaseDef{ID: id})
		return err
	})
	return out, err
}

func decodeTurnOrder(v cue.Value, path string) (ir.TurnOrderDef, error) {
	var to ir.TurnOrderDef
	if err := fields(v, path, "strategy", "order", "card_driven"); err != nil {
		return to, err
	}
	strategy, err := optStr(v, "strategy", path)
	if err != nil {
		return to, err
	}
	to.Strategy = ir.TurnOrderStrategy(strategy)
	switch to.Strategy {
	case "":
		to.Strategy = ir.StrategyRoundRobin
	case ir.StrategyRoundRobin, ir.StrategyFixedOrder, ir.StrategyCardDriven, ir.StrategySimultaneous:
	default:
		f, _ := lookup(v, "strategy")
		return to, errAt(f, child(path, "strategy"), "unknown turn order strategy %q", strategy)
	}
	if f, ok := lookup(v, "order"); ok {
		// Order entries may be written as ints or strings.
		err := list(f, child(path, "order"), func(item cue.Value, p string) error {
			if item.Kind() == cue.IntKind {
				n, err := integer(item, p)
				to.Order = append(to.Order, strconv.FormatInt(n, 10))
				return err
			}
			s, err := str(item, p)
			to.Order = append(to.Order, s)
			return err
		})
		if err != nil {
			return to, err
		}
	}
	if f, ok := lookup(v, "card_driven"); ok {
		cd, err := decodeCardDriven(f, child(path, "card_driven"))
		if err != nil {
			return to, err
		}
		to.CardDriven = cd
	}
	return to, nil
}

func decodeCardDriven(v cue.Value, path string) (*ir.CardDrivenDef, error) {
	if err := fields(v, path, "seats", "played_zone", "lookahead_zone", "draw_zone", "discard_zone",
		"coup_prop", "coup_phases", "final_coup_omit_phases"); err != nil {
		return nil, err
	}
	cd := &ir.CardDrivenDef{}
	var err error
	if cd.Seats, err = optStrList(v, "seats", path); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		name     string
		dst      *string
		required bool
	}{
		{"played_zone", &cd.PlayedZone, true},
		{"lookahead_zone", &cd.LookaheadZone, true},
		{"draw_zone", &cd.DrawZone, true},
		{"discard_zone", &cd.DiscardZone, false},
		{"coup_prop", &cd.CoupProp, false},
	} {
		if f.required {
			*f.dst, err = reqStr(v, f.name, path)
		} else {
			*f.dst, err = optStr(v, f.name, path)
		}
		if err != nil {
			return nil, err
		}
	}
	if cd.CoupPhases, err = optStrList(v, "coup_phases", path); err != nil {
		return nil, err
	}
	if cd.FinalCoupOmitPhases, err = optStrList(v, "final_coup_omit_phases", path); err != nil {
		return nil, err
	}
	return cd, nil
}

func decodeAction(v cue.Value, path string) (ir.ActionDef, error) {
	var a ir.ActionDef
	if err := fields(v, path, "id", "phases", "actor", "pre", "cost", "effects", "limits", "lasting"); err != nil {
		return a, err
	}
	var err error
	if a.ID, err = reqStr(v, "id", path); err != nil {
		return a, err
	}
	if a.Phases, err = optStrList(v, "phases", path); err != nil {
		return a, err
	}
	actor, err := optStr(v, "actor", path)
	if err != nil {
		return a, err
	}
	switch ir.ActorRule(actor) {
	case "", ir.ActorActive:
		a.Actor = ir.ActorActive
	case ir.ActorAny:
		a.Actor = ir.ActorAny
	default:
		f, _ := lookup(v, "actor")
		return a, errAt(f, child(path, "actor"), "unknown actor rule %q (active or any)", actor)
	}
	if a.Pre, err = optCondition(v, "pre", path); err != nil {
		return a, err
	}
	if a.Cost, err = optEffects(v, "cost", path); err != nil {
		return a, err
	}
	if a.Effects, err = optEffects(v, "effects", path); err != nil {
		return a, err
	}
	if err := optList(v, "limits", path, func(item cue.Value, p string) error {
		l, err := decodeLimit(item, p)
		a.Limits = append(a.Limits, l)
		return err
	}); err != nil {
		return a, err
	}
	if a.Lasting, err = optStrList(v, "lasting", path); err != nil {
		return a, err
	}
	return a, nil
}

func decodeLimit(v cue.Value, path string) (ir.ActionLimit, error) {
	var l ir.ActionLimit
	if err := fields(v, path, "scope", "max"); err != nil {
		return l, err
	}
	scope, err := reqStr(v, "scope", path)
	if err != nil {
		return l, err
	}
	l.Scope = ir.LimitScope(scope)
	switch l.Scope {
	case ir.LimitTurn, ir.LimitPhase, ir.LimitGame:
	default:
		f, _ := lookup(v, "scope")
		return l, errAt(f, child(path, "scope"), "unknown limit scope %q (turn, phase or game)", scope)
	}
	n, err := optInt(v, "max", path)
	if err != nil {
		return l, err
	}
	if n == nil {
		return l, errAt(v, child(path, "max"), "is required")
	}
	l.Max = int(*n)
	return l, nil
}

func decodeTrigger(v cue.Value, path string) (ir.TriggerDef, error) {
	var t ir.TriggerDef
	if err := fields(v, path, "id", "on", "match", "when", "effects"); err != nil {
		return t, err
	}
	var err error
	if t.ID, err = reqStr(v, "id", path); err != nil {
		return t, err
	}
	on, ok := lookup(v, "on")
	if !ok {
		return t, errAt(v, child(path, "on"), "is required")
	}
	if t.On, err = decodeMatcher(on, child(path, "on")); err != nil {
		return t, err
	}
	if t.Match, err = optCondition(v, "match", path); err != nil {
		return t, err
	}
	if t.When, err = optCondition(v, "when", path); err != nil {
		return t, err
	}
	if t.Effects, err = optEffects(v, "effects", path); err != nil {
		return t, err
	}
	return t, nil
}

var eventKinds = []ir.EventKind{
	ir.EventPhaseEntered, ir.EventPhaseExited, ir.EventTurnStarted, ir.EventTurnEnded,
	ir.EventActionResolved, ir.EventTokenEntered, ir.EventVarChanged,
}

// decodeMatcher accepts an event kind or {event, phase, action, zone, var}.
func decodeMatcher(v cue.Value, path string) (ir.EventMatcher, error) {
	var m ir.EventMatcher
	var kind string
	var err error
	if v.Kind() == cue.StringKind {
		kind, err = str(v, path)
	} else {
		if err := fields(v, path, "event", "phase", "action", "zone", "var"); err != nil {
			return m, err
		}
		kind, err = reqStr(v, "event", path)
		if err == nil {
			m.Phase, err = optStr(v, "phase", path)
		}
		if err == nil {
			m.Action, err = optStr(v, "action", path)
		}
		if err == nil {
			m.Zone, err = optStr(v, "zone", path)
		}
		if err == nil {
			m.Var, err = optStr(v, "var", path)
		}
	}
	if err != nil {
		return m, err
	}
	m.Kind = ir.EventKind(kind)
	if !slices.Contains(eventKinds, m.Kind) {
		return m, errAt(v, path, "unknown event kind %q", kind)
	}
	return m, nil
}

func decodeLasting(v cue.Value, path string) (ir.LastingEffectDef, error) {
	var l ir.LastingEffectDef
	if err := fields(v, path, "id", "duration", "setup", "teardown"); err != nil {
		return l, err
	}
	var err error
	if l.ID, err = reqStr(v, "id", path); err != nil {
		return l, err
	}
	duration, err := reqStr(v, "duration", path)
	if err != nil {
		return l, err
	}
	l.Duration = ir.LastingDuration(duration)
	switch l.Duration {
	case ir.DurationCard, ir.DurationNextCard, ir.DurationCoup, ir.DurationCampaign:
	default:
		f, _ := lookup(v, "duration")
		return l, errAt(f, child(path, "duration"), "unknown duration %q (card, nextCard, coup or campaign)", duration)
	}
	if l.Setup, err = optEffects(v, "setup", path); err != nil {
		return l, err
	}
	if l.Teardown, err = optEffects(v, "teardown", path); err != nil {
		return l, err
	}
	return l, nil
}

func decodeEndCondition(v cue.Value, path string) (ir.EndCondition, error) {
	var ec ir.EndCondition
	if err := fields(v, path, "when", "result"); err != nil {
		return ec, err
	}
	when, ok := lookup(v, "when")
	if !ok {
		return ec, errAt(v, child(path, "when"), "is required")
	}
	var err error
	if ec.When, err = condition(when, child(path, "when")); err != nil {
		return ec, err
	}
	res, ok := lookup(v, "result")
	if !ok {
		return ec, errAt(v, child(path, "result"), "is required")
	}
	rp := child(path, "result")
	if err := fields(res, rp, "kind", "player"); err != nil {
		return ec, err
	}
	kind, err := reqStr(res, "kind", rp)
	if err != nil {
		return ec, err
	}
	ec.Result.Kind = ir.ResultKind(kind)
	if ec.Result.Kind != ir.ResultWin && ec.Result.Kind != ir.ResultDraw {
		return ec, errAt(res, child(rp, "kind"), "unknown result kind %q (win or draw)", kind)
	}
	if ec.Result.Player, err = optStr(res, "player", rp); err != nil {
		return ec, err
	}
	return ec, nil
}
