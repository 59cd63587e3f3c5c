package turnflow

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/roach88/rulekernel/internal/ir"
	"github.com/roach88/rulekernel/internal/rng"
)

// NewGame builds the initial state of tree with a default Machine.
func NewGame(tree *ir.RuleTree, players int, seed uint64) (*ir.GameState, error) {
	return New(tree).NewGame(players, seed)
}

// NewGame builds the initial state for players seeded with seed.
//
// Variables start at their declared values, every zone is instantiated
// (player-owned zones once per player) with each marker at its default, and
// the first phase is current. Setup effects then run without dispatch, and
// card-driven trees reveal the first played and lookahead cards.
func (m *Machine) NewGame(players int, seed uint64) (*ir.GameState, error) {
	tree := m.tree
	meta := tree.Metadata
	if players < 1 || (meta.MinPlayers > 0 && players < meta.MinPlayers) || (meta.MaxPlayers > 0 && players > meta.MaxPlayers) {
		return nil, ir.NewRuntimeError(ir.ErrCodeInvalidRuleTree, "player count out of range",
			"players", strconv.Itoa(players),
			"min", strconv.Itoa(meta.MinPlayers),
			"max", strconv.Itoa(meta.MaxPlayers))
	}
	if len(tree.Phases) == 0 {
		return nil, ir.NewRuntimeError(ir.ErrCodeEmptyPhaseList, "rule tree declares no phases")
	}

	globals, err := initVars(tree.Globals)
	if err != nil {
		return nil, err
	}
	perPlayer := make([]ir.Object, players)
	for p := range perPlayer {
		if perPlayer[p], err = initVars(tree.PerPlayer); err != nil {
			return nil, err
		}
	}

	state := &ir.GameState{
		Globals:      globals,
		PerPlayer:    perPlayer,
		Zones:        make(map[string][]ir.Token),
		Markers:      make(map[string]map[string]string),
		PlayerCount:  players,
		CurrentPhase: tree.Phases[0].ID,
		Rng:          rng.New(seed),
	}
	if len(tree.ZoneVars) > 0 {
		state.ZoneVars = make(map[string]ir.Object)
	}
	for _, z := range tree.Zones {
		for _, id := range ZoneInstances(z, players) {
			state.Zones[id] = []ir.Token{}
			if state.ZoneVars != nil {
				if state.ZoneVars[id], err = initVars(tree.ZoneVars); err != nil {
					return nil, err
				}
			}
			if len(tree.Markers) > 0 {
				ms := make(map[string]string, len(tree.Markers))
				for _, mk := range tree.Markers {
					ms[mk.ID] = mk.Default
				}
				state.Markers[id] = ms
			}
		}
	}

	if err := m.initTurnOrder(state); err != nil {
		return nil, err
	}

	s := m.begin(state)
	if _, err := s.apply(tree.Setup, effectCall{actor: state.ActivePlayer}, m.budget()); err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}
	if cd := m.cardDef(); cd != nil {
		if err := s.reveal(cd); err != nil {
			return nil, fmt.Errorf("initial reveal: %w", err)
		}
	}

	phases, err := m.EffectivePhases(s.state())
	if err != nil {
		return nil, err
	}
	first, err := phaseAt(phases, 0)
	if err != nil {
		return nil, err
	}
	out := s.state().Clone()
	out.CurrentPhase = first

	m.logger.Debug("game initialized",
		zap.String("game", meta.ID),
		zap.Int("players", players),
		zap.Uint64("seed", seed),
		zap.String("phase", first))
	return out, nil
}

// ZoneInstances returns the state zone ids of z for players.
func ZoneInstances(z ir.ZoneDef, players int) []string {
	if z.Owner != ir.ZoneOwnerPlayer {
		return []string{z.ID}
	}
	ids := make([]string, players)
	for p := range ids {
		ids[p] = z.ID + ":" + strconv.Itoa(p)
	}
	return ids
}

// initVars builds a variable object from declarations. Missing initial
// values default to 0 or false.
func initVars(defs []ir.VariableDef) (ir.Object, error) {
	obj := make(ir.Object, len(defs))
	for _, d := range defs {
		v := d.Init
		switch d.Type {
		case ir.VarTypeInt:
			if v == nil {
				v = ir.Int(0)
			}
			n, ok := v.(ir.Int)
			if !ok {
				return nil, varTypeError(d, v)
			}
			v = ir.Int(d.Clamp(int64(n)))
		case ir.VarTypeBoolean:
			if v == nil {
				v = ir.Bool(false)
			}
			if _, ok := v.(ir.Bool); !ok {
				return nil, varTypeError(d, v)
			}
		default:
			return nil, ir.NewRuntimeError(ir.ErrCodeInvalidRuleTree, "unknown variable type",
				"var", d.Name, "type", string(d.Type))
		}
		obj[d.Name] = v
	}
	return obj, nil
}

func varTypeError(d ir.VariableDef, v ir.Value) error {
	return ir.NewRuntimeError(ir.ErrCodeInvalidRuleTree, "initial value does not match variable type",
		"var", d.Name, "type", string(d.Type), "init", string(ir.KindOf(v)))
}

// initTurnOrder sets the turn-order runtime and first active player.
func (m *Machine) initTurnOrder(state *ir.GameState) error {
	def := m.tree.TurnOrder
	state.TurnOrder = ir.TurnOrderState{Strategy: def.Strategy}
	switch def.Strategy {
	case ir.StrategyRoundRobin, "":
		state.TurnOrder.Strategy = ir.StrategyRoundRobin
	case ir.StrategyFixedOrder:
		idx, player, ok := firstInOrder(def.Order, state.PlayerCount)
		if !ok {
			return ir.NewRuntimeError(ir.ErrCodeInvalidRuleTree, "fixed order names no seated player",
				"players", strconv.Itoa(state.PlayerCount))
		}
		state.TurnOrder.FixedOrder = &ir.FixedOrderState{Index: idx}
		state.ActivePlayer = player
	case ir.StrategyCardDriven:
		cd := def.CardDriven
		if cd == nil {
			return ir.NewRuntimeError(ir.ErrCodeInvalidRuleTree, "card-driven turn order has no card configuration")
		}
		if len(cd.Seats) != state.PlayerCount {
			return ir.NewRuntimeError(ir.ErrCodeInvalidRuleTree, "card-driven seats must match the player count",
				"seats", strconv.Itoa(len(cd.Seats)),
				"players", strconv.Itoa(state.PlayerCount))
		}
		eligible := make([]bool, len(cd.Seats))
		for i := range eligible {
			eligible[i] = true
		}
		card := startCard(eligible)
		state.TurnOrder.CardDriven = &ir.CardDrivenState{Eligible: eligible, CurrentCard: card}
		state.ActivePlayer = *card.FirstEligible
	case ir.StrategySimultaneous:
		state.TurnOrder.Simultaneous = newSimultaneous(state.PlayerCount)
	default:
		return ir.NewRuntimeError(ir.ErrCodeInvalidRuleTree, "unknown turn order strategy",
			"strategy", string(def.Strategy))
	}
	return nil
}

// reveal deals the first played and lookahead cards from the draw zone.
func (s *stepper) reveal(cd *ir.CardDrivenDef) error {
	one := ir.Literal{Value: ir.Int(1)}
	list := []ir.Effect{
		ir.Draw{From: cd.DrawZone, To: cd.PlayedZone, Count: one},
		ir.Draw{From: cd.DrawZone, To: cd.LookaheadZone, Count: one},
	}
	if _, err := s.apply(list, effectCall{actor: s.state().ActivePlayer}, s.m.budget()); err != nil {
		return err
	}
	if s.m.coupCard(s.state()) {
		to := s.state().TurnOrder.Clone()
		to.CardDriven.ConsecutiveCoupRounds = 1
		s.step.State = s.state().WithTurnOrder(to)
	}
	return nil
}
