package effects

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"go.uber.org/zap"

	"github.com/roach88/rulekernel/internal/eval"
	"github.com/roach88/rulekernel/internal/ir"
	"github.com/roach88/rulekernel/internal/rng"
)

// effect executes one non-bindValue effect. Every effect spends one unit of
// budget before it does anything else.
func (r *run) effect(e ir.Effect, frame *eval.Frame) error {
	if err := r.budget.spend(effectName(e)); err != nil {
		return err
	}
	switch eff := e.(type) {
	case ir.SetVar:
		return r.setVar(eff.Target, eff.Value, false, frame)
	case ir.AddVar:
		return r.setVar(eff.Target, eff.Delta, true, frame)
	case ir.MoveToken:
		return r.moveTokenEffect(eff, frame)
	case ir.MoveAll:
		return r.moveAll(eff, frame)
	case ir.Draw:
		return r.draw(eff, frame)
	case ir.CreateToken:
		return r.createToken(eff, frame)
	case ir.DestroyToken:
		return r.destroyToken(eff, frame)
	case ir.SetTokenProp:
		return r.setTokenProp(eff, frame)
	case ir.SetMarker:
		return r.setMarker(eff, frame)
	case ir.Shuffle:
		return r.shuffle(eff, frame)
	case ir.RollRandom:
		return r.rollRandom(eff, frame)
	case ir.If:
		return r.ifEffect(eff, frame)
	case ir.Let:
		v, err := eval.Value(eff.Value, r.evalCtx(frame))
		if err != nil {
			return err
		}
		_, err = r.block(eff.In, frame.Extend(eff.Bind, v))
		return err
	case ir.ForEach:
		return r.forEach(eff, frame)
	case ir.RemoveByPriority:
		return r.removeByPriority(eff, frame)
	case ir.GrantFreeOperation:
		return r.grantFreeOperation(eff, frame)
	case ir.SetEligibility:
		return r.setEligibility(eff, frame)
	default:
		return fmt.Errorf("unknown effect %T", e)
	}
}

func effectName(e ir.Effect) string {
	switch e.(type) {
	case ir.SetVar:
		return "setVar"
	case ir.AddVar:
		return "addVar"
	case ir.MoveToken:
		return "moveToken"
	case ir.MoveAll:
		return "moveAll"
	case ir.Draw:
		return "draw"
	case ir.CreateToken:
		return "createToken"
	case ir.DestroyToken:
		return "destroyToken"
	case ir.SetTokenProp:
		return "setTokenProp"
	case ir.SetMarker:
		return "setMarker"
	case ir.Shuffle:
		return "shuffle"
	case ir.RollRandom:
		return "rollRandom"
	case ir.If:
		return "if"
	case ir.Let:
		return "let"
	case ir.ForEach:
		return "forEach"
	case ir.RemoveByPriority:
		return "removeByPriority"
	case ir.GrantFreeOperation:
		return "grantFreeOperation"
	case ir.SetEligibility:
		return "setEligibility"
	default:
		return fmt.Sprintf("%T", e)
	}
}

// setVar writes (or, when add is set, increments) one variable. Integer
// values are clamped to the declared bounds. A write that changes the value
// emits varChanged.
func (r *run) setVar(t ir.VarTarget, expr ir.ValueExpr, add bool, frame *eval.Frame) error {
	ctx := r.evalCtx(frame)
	v, err := eval.Value(expr, ctx)
	if err != nil {
		return err
	}

	var (
		current ir.Value
		defs    []ir.VariableDef
		event   = ir.TriggerEvent{Kind: ir.EventVarChanged, Var: t.Var, Scope: t.Scope}
		player  int
		zone    string
	)
	switch t.Scope {
	case ir.ScopeGlobal:
		current = r.state.Globals[t.Var]
		defs = r.ctx.Tree.Globals
	case ir.ScopePlayer:
		player, err = eval.Player(t.Player, ctx)
		if err != nil {
			return err
		}
		current = r.state.PerPlayer[player][t.Var]
		defs = r.ctx.Tree.PerPlayer
		event.Player = ir.PlayerRef(player)
	case ir.ScopeZone:
		zone, err = eval.Zone(t.Zone, ctx)
		if err != nil {
			return err
		}
		current = r.state.ZoneVars[zone][t.Var]
		defs = r.ctx.Tree.ZoneVars
		event.Zone = zone
	default:
		return fmt.Errorf("unknown variable scope %q", t.Scope)
	}
	if current == nil {
		return eval.NewError(eval.CodeMissingVar, fmt.Sprintf("variable %q is not declared", t.Var),
			"var", t.Var, "scope", string(t.Scope))
	}
	if ir.KindOf(current) != ir.KindOf(v) {
		return eval.NewError(eval.CodeTypeMismatch,
			fmt.Sprintf("variable %q holds %s, got %s", t.Var, ir.KindOf(current), ir.KindOf(v)),
			"var", t.Var, "expected", string(ir.KindOf(current)), "actual", string(ir.KindOf(v)))
	}

	next := v
	if n, ok := v.(ir.Int); ok {
		sum := int64(n)
		if add {
			var ok bool
			if sum, ok = eval.AddInt(int64(current.(ir.Int)), sum); !ok {
				return eval.NewError(eval.CodeIntegerOverflow,
					fmt.Sprintf("addVar %q overflows int64", t.Var), "var", t.Var)
			}
		}
		if def, ok := ir.VarDef(defs, t.Var); ok {
			sum = def.Clamp(sum)
		}
		next = ir.Int(sum)
	} else if add {
		return eval.NewError(eval.CodeTypeMismatch, fmt.Sprintf("addVar on non-integer %q", t.Var),
			"var", t.Var, "actual", string(ir.KindOf(current)))
	}
	if ir.Equal(current, next) {
		return nil
	}

	switch t.Scope {
	case ir.ScopeGlobal:
		r.state = r.state.WithGlobal(t.Var, next)
	case ir.ScopePlayer:
		r.state = r.state.WithPlayerVar(player, t.Var, next)
	case ir.ScopeZone:
		r.state = r.state.WithZoneVar(zone, t.Var, next)
	}
	r.emit(event)
	return nil
}

// tokenID resolves the token reference of an effect: a binding holding a
// token or a token id string.
func (r *run) tokenID(name string, frame *eval.Frame) (string, error) {
	v, err := eval.Value(ir.Ref{Kind: ir.RefBinding, Name: name}, r.evalCtx(frame))
	if err != nil {
		return "", err
	}
	switch tok := v.(type) {
	case ir.Token:
		return tok.ID, nil
	case ir.Str:
		return string(tok), nil
	default:
		return "", eval.NewError(eval.CodeTypeMismatch,
			fmt.Sprintf("%s must hold a token, got %s", name, ir.KindOf(v)),
			"name", name, "expected", string(ir.KindToken), "actual", string(ir.KindOf(v)))
	}
}

// locate finds a token by id, optionally restricted to one zone.
func (r *run) locate(id, fromSel string, frame *eval.Frame) (string, int, error) {
	if fromSel != "" {
		zone, err := eval.Zone(fromSel, r.evalCtx(frame))
		if err != nil {
			return "", -1, err
		}
		for i, t := range r.state.Zones[zone] {
			if t.ID == id {
				return zone, i, nil
			}
		}
		return "", -1, eval.NotFound("token", id, tokenIDs(r.state.Zones[zone]))
	}
	zone, idx, ok := r.state.FindToken(id)
	if !ok {
		return "", -1, eval.NotFound("token", id, nil)
	}
	return zone, idx, nil
}

func tokenIDs(tokens []ir.Token) []string {
	ids := make([]string, len(tokens))
	for i, t := range tokens {
		ids[i] = t.ID
	}
	return ids
}

// move is the single token-move primitive: remove the token at idx of from
// and insert it into to at pos, then emit tokenEntered.
func (r *run) move(from string, idx int, to string, pos ir.Position) error {
	tok := r.state.Zones[from][idx]
	src := slices.Delete(slices.Clone(r.state.Zones[from]), idx, idx+1)
	r.state = r.state.WithZone(from, src)

	dst := slices.Clone(r.state.Zones[to])
	switch pos {
	case ir.PositionTop:
		dst = slices.Insert(dst, 0, tok)
	case ir.PositionRandom:
		at, next, err := rng.IntRange(r.rng, 0, int64(len(dst)))
		if err != nil {
			return err
		}
		r.rng = next
		dst = slices.Insert(dst, int(at), tok)
	default:
		dst = append(dst, tok)
	}
	r.state = r.state.WithZone(to, dst)
	r.emit(ir.TriggerEvent{Kind: ir.EventTokenEntered, Zone: to, Token: tok.ID})
	return nil
}

func (r *run) moveTokenEffect(m ir.MoveToken, frame *eval.Frame) error {
	id, err := r.tokenID(m.Token, frame)
	if err != nil {
		return err
	}
	from, idx, err := r.locate(id, m.From, frame)
	if err != nil {
		return err
	}
	to, err := eval.Zone(m.To, r.evalCtx(frame))
	if err != nil {
		return err
	}
	return r.move(from, idx, to, m.Position)
}

func (r *run) moveAll(m ir.MoveAll, frame *eval.Frame) error {
	ctx := r.evalCtx(frame)
	from, err := eval.Zone(m.From, ctx)
	if err != nil {
		return err
	}
	to, err := eval.Zone(m.To, ctx)
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}
	var ids []string
	for _, tok := range r.state.Zones[from] {
		ok, err := eval.MatchFilters(tok, m.Filters, ctx)
		if err != nil {
			return err
		}
		if ok {
			ids = append(ids, tok.ID)
		}
	}
	for _, id := range ids {
		idx := slices.IndexFunc(r.state.Zones[from], func(t ir.Token) bool { return t.ID == id })
		if err := r.move(from, idx, to, ir.PositionBottom); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) draw(d ir.Draw, frame *eval.Frame) error {
	ctx := r.evalCtx(frame)
	from, err := eval.Zone(d.From, ctx)
	if err != nil {
		return err
	}
	to, err := eval.Zone(d.To, ctx)
	if err != nil {
		return err
	}
	count, err := eval.Int(d.Count, ctx)
	if err != nil {
		return err
	}
	n := min(max(count, 0), int64(len(r.state.Zones[from])))
	if from == to {
		return nil
	}
	for i := int64(0); i < n; i++ {
		if err := r.move(from, 0, to, ir.PositionBottom); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) createToken(c ir.CreateToken, frame *eval.Frame) error {
	ctx := r.evalCtx(frame)
	zone, err := eval.Zone(c.Zone, ctx)
	if err != nil {
		return err
	}
	var props ir.Object
	for _, k := range slices.Sorted(maps.Keys(c.Props)) {
		v, err := eval.Value(c.Props[k], ctx)
		if err != nil {
			return err
		}
		if props == nil {
			props = ir.Object{}
		}
		props[k] = v
	}
	tok := ir.Token{
		ID:    c.Type + "-" + strconv.FormatInt(r.state.NextTokenOrdinal, 10),
		Type:  c.Type,
		Props: props,
	}
	next := r.state.WithZone(zone, append(slices.Clone(r.state.Zones[zone]), tok))
	next.NextTokenOrdinal++
	r.state = next
	r.emit(ir.TriggerEvent{Kind: ir.EventTokenEntered, Zone: zone, Token: tok.ID})

	if c.Bind == "" || len(c.In) == 0 {
		return nil
	}
	_, err = r.block(c.In, frame.Extend(c.Bind, tok))
	return err
}

func (r *run) destroyToken(d ir.DestroyToken, frame *eval.Frame) error {
	id, err := r.tokenID(d.Token, frame)
	if err != nil {
		return err
	}
	zone, idx, err := r.locate(id, "", frame)
	if err != nil {
		return err
	}
	r.state = r.state.WithZone(zone, slices.Delete(slices.Clone(r.state.Zones[zone]), idx, idx+1))
	return nil
}

func (r *run) setTokenProp(s ir.SetTokenProp, frame *eval.Frame) error {
	id, err := r.tokenID(s.Token, frame)
	if err != nil {
		return err
	}
	zone, idx, err := r.locate(id, "", frame)
	if err != nil {
		return err
	}
	v, err := eval.Value(s.Value, r.evalCtx(frame))
	if err != nil {
		return err
	}
	tokens := slices.Clone(r.state.Zones[zone])
	tok := tokens[idx]
	tok.Props = tok.Props.With(s.Prop, v)
	tokens[idx] = tok
	r.state = r.state.WithZone(zone, tokens)
	return nil
}

func (r *run) setMarker(s ir.SetMarker, frame *eval.Frame) error {
	ctx := r.evalCtx(frame)
	zone, err := eval.Zone(s.Zone, ctx)
	if err != nil {
		return err
	}
	v, err := eval.Value(s.State, ctx)
	if err != nil {
		return err
	}
	st, ok := v.(ir.Str)
	if !ok {
		return eval.NewError(eval.CodeTypeMismatch, "marker state must be a string",
			"marker", s.Marker, "actual", string(ir.KindOf(v)))
	}
	var def *ir.MarkerDef
	ids := make([]string, len(r.ctx.Tree.Markers))
	for i := range r.ctx.Tree.Markers {
		ids[i] = r.ctx.Tree.Markers[i].ID
		if r.ctx.Tree.Markers[i].ID == s.Marker {
			def = &r.ctx.Tree.Markers[i]
		}
	}
	if def == nil {
		return eval.NotFound("marker", s.Marker, ids)
	}
	if !slices.Contains(def.States, string(st)) {
		return eval.NotFound("state", string(st), def.States)
	}
	r.state = r.state.WithMarker(zone, s.Marker, string(st))
	return nil
}

func (r *run) shuffle(s ir.Shuffle, frame *eval.Frame) error {
	zone, err := eval.Zone(s.Zone, r.evalCtx(frame))
	if err != nil {
		return err
	}
	shuffled, next, err := rng.Shuffle(r.rng, r.state.Zones[zone])
	if err != nil {
		return err
	}
	r.rng = next
	r.state = r.state.WithZone(zone, shuffled)
	return nil
}

func (r *run) rollRandom(rr ir.RollRandom, frame *eval.Frame) error {
	ctx := r.evalCtx(frame)
	lo, err := eval.Int(rr.Min, ctx)
	if err != nil {
		return err
	}
	hi, err := eval.Int(rr.Max, ctx)
	if err != nil {
		return err
	}
	if hi < lo {
		return ir.NewRuntimeError(ir.ErrCodeInvalidRuleTree, "rollRandom range is empty",
			"min", strconv.FormatInt(lo, 10), "max", strconv.FormatInt(hi, 10))
	}
	n, next, err := rng.IntRange(r.rng, lo, hi)
	if err != nil {
		return err
	}
	r.rng = next
	r.ctx.Collector.Trace("ROLL", "rolled "+strconv.FormatInt(n, 10), "bind", rr.Bind)
	_, err = r.block(rr.In, frame.Extend(rr.Bind, ir.Int(n)))
	return err
}

// ifEffect runs one branch. Branch exports are dropped so nothing bound
// inside a branch is visible afterwards.
func (r *run) ifEffect(e ir.If, frame *eval.Frame) error {
	ok, err := eval.Condition(e.When, r.evalCtx(frame))
	if err != nil {
		return err
	}
	branch := e.Else
	if ok {
		branch = e.Then
	}
	_, err = r.block(branch, frame)
	return err
}

// forEach iterates a query result with one fresh frame per item.
func (r *run) forEach(f ir.ForEach, frame *eval.Frame) error {
	ctx := r.evalCtx(frame)
	limit := int64(DefaultForEachLimit)
	if f.Limit != nil {
		v, err := eval.Value(f.Limit, ctx)
		if err != nil {
			return err
		}
		n, ok := v.(ir.Int)
		if !ok || n <= 0 {
			return ir.NewRuntimeError(ir.ErrCodeInvalidLimit, "forEach limit must be a positive integer",
				"bind", f.Bind, "limit", ir.FormatValue(v))
		}
		limit = int64(n)
	}
	items, err := eval.Query(f.Over, ctx)
	if err != nil {
		return err
	}
	n := min(int64(len(items)), limit)
	if n == 0 {
		r.ctx.Collector.Warn("FOR_EACH_EMPTY", "forEach matched no items",
			"bind", f.Bind, "matched", strconv.Itoa(len(items)))
	}
	if int64(len(items)) > n {
		r.in.logger.Debug("forEach truncated",
			zap.String("bind", f.Bind),
			zap.Int("matched", len(items)),
			zap.Int64("limit", limit))
	}
	for _, item := range items[:n] {
		if _, err := r.block(f.Effects, frame.Extend(f.Bind, item)); err != nil {
			return err
		}
	}
	if len(f.In) == 0 {
		return nil
	}
	after := frame
	if f.CountBind != "" {
		after = after.Extend(f.CountBind, ir.Int(n))
	}
	_, err = r.block(f.In, after)
	return err
}

// removeByPriority drains one budget across groups in order. Each group's
// query sees the state left by the groups before it.
func (r *run) removeByPriority(rb ir.RemoveByPriority, frame *eval.Frame) error {
	v, err := eval.Value(rb.Budget, r.evalCtx(frame))
	if err != nil {
		return err
	}
	budget, ok := v.(ir.Int)
	if !ok || budget < 0 {
		return ir.NewRuntimeError(ir.ErrCodeInvalidBudget, "removeByPriority budget must be a non-negative integer",
			"budget", ir.FormatValue(v))
	}

	remaining := int64(budget)
	after := frame
	for gi, g := range rb.Groups {
		items, err := eval.Query(g.Over, r.evalCtx(frame))
		if err != nil {
			return err
		}
		take := min(remaining, int64(len(items)))
		for _, item := range items[:take] {
			tok, ok := item.(ir.Token)
			if !ok {
				return eval.NewError(eval.CodeTypeMismatch,
					fmt.Sprintf("removeByPriority group %d yielded %s", gi, ir.KindOf(item)),
					"expected", string(ir.KindToken), "actual", string(ir.KindOf(item)))
			}
			itemFrame := frame
			if g.Bind != "" {
				itemFrame = frame.Extend(g.Bind, tok)
			}
			to, err := eval.Zone(g.To, r.evalCtx(itemFrame))
			if err != nil {
				return err
			}
			from, idx, ok := r.state.FindToken(tok.ID)
			if !ok {
				return eval.NotFound("token", tok.ID, nil)
			}
			if err := r.move(from, idx, to, ir.PositionBottom); err != nil {
				return err
			}
		}
		remaining -= take
		if g.CountBind != "" {
			after = after.Extend(g.CountBind, ir.Int(take))
		}
	}
	r.in.logger.Debug("removeByPriority",
		zap.Int64("budget", int64(budget)),
		zap.Int64("moved", int64(budget)-remaining))

	if rb.RemainingBind != "" {
		after = after.Extend(rb.RemainingBind, ir.Int(remaining))
	}
	if len(rb.In) == 0 {
		return nil
	}
	_, err = r.block(rb.In, after)
	return err
}

func (r *run) cardDriven(effect string) (*ir.CardDrivenDef, ir.TurnOrderState, error) {
	def := r.ctx.Tree.TurnOrder.CardDriven
	if r.state.TurnOrder.CardDriven == nil || def == nil {
		return nil, ir.TurnOrderState{}, ir.NewRuntimeError(ir.ErrCodeInvalidRuleTree,
			effect+" requires card-driven turn order",
			"strategy", string(r.state.TurnOrder.Strategy))
	}
	return def, r.state.TurnOrder.Clone(), nil
}

func (r *run) seat(expr ir.ValueExpr, def *ir.CardDrivenDef, frame *eval.Frame) (int, error) {
	n, err := eval.Int(expr, r.evalCtx(frame))
	if err != nil {
		return 0, err
	}
	if n < 0 || n >= int64(len(def.Seats)) {
		return 0, eval.NewError(eval.CodeSelectorCardinality, fmt.Sprintf("seat %d does not exist", n),
			"seat", strconv.FormatInt(n, 10), "seats", strconv.Itoa(len(def.Seats)))
	}
	return int(n), nil
}

func (r *run) grantFreeOperation(g ir.GrantFreeOperation, frame *eval.Frame) error {
	def, to, err := r.cardDriven("grantFreeOperation")
	if err != nil {
		return err
	}
	seat, err := r.seat(g.Seat, def, frame)
	if err != nil {
		return err
	}
	to.CardDriven.PendingFreeOperationGrants = append(to.CardDriven.PendingFreeOperationGrants,
		ir.FreeOperationGrant{Seat: seat, Actions: slices.Clone(g.Actions)})
	r.state = r.state.WithTurnOrder(to)
	return nil
}

func (r *run) setEligibility(s ir.SetEligibility, frame *eval.Frame) error {
	def, to, err := r.cardDriven("setEligibility")
	if err != nil {
		return err
	}
	seat, err := r.seat(s.Seat, def, frame)
	if err != nil {
		return err
	}
	eligible, err := eval.Condition(s.Eligible, r.evalCtx(frame))
	if err != nil {
		return err
	}
	to.CardDriven.PendingEligibilityOverrides = append(to.CardDriven.PendingEligibilityOverrides,
		ir.EligibilityOverride{Seat: seat, Eligible: eligible})
	r.state = r.state.WithTurnOrder(to)
	return nil
}
