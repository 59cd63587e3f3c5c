package turnflow

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/rulekernel/internal/ir"
)

func unknownAction(tree *ir.RuleTree, id string) error {
	ids := make([]string, len(tree.Actions))
	for i, a := range tree.Actions {
		ids[i] = a.ID
	}
	slices.Sort(ids)
	return ir.NewRuntimeError(ir.ErrCodeUnknownAction, "action is not declared",
		"action", id, "available", strings.Join(ids, ","))
}

// ApplyMove resolves move against state.
//
// The action must exist and be available to the actor. Resolution runs the
// cost (skipped for free operations) and the effects with the move
// parameters, bumps the usage counters, activates the action's lasting
// effects, records card-driven progress, dispatches every emitted event in
// order and finally dispatches actionResolved.
//
// Under the simultaneous strategy the move is only recorded until every
// player has submitted; then all pending moves resolve in player order.
func (m *Machine) ApplyMove(state *ir.GameState, move ir.Move) (Step, error) {
	action, ok := m.tree.Action(move.ActionID)
	if !ok {
		return Step{}, unknownAction(m.tree, move.ActionID)
	}
	reason, free, err := m.check(state, action, move.Actor, move.Params)
	if err != nil {
		return Step{}, fmt.Errorf("action %s: %w", action.ID, err)
	}
	if reason != "" {
		return Step{}, ir.NewRuntimeError(ir.ErrCodeActionNotAvailable, "action is not available",
			"action", action.ID,
			"actor", strconv.Itoa(move.Actor),
			"phase", state.CurrentPhase,
			"reason", reason)
	}

	s := m.begin(state)
	if m.tree.TurnOrder.Strategy == ir.StrategySimultaneous {
		err = s.submit(move)
	} else {
		err = s.resolve(action, move, free)
	}
	if err != nil {
		return Step{}, err
	}
	return s.done(), nil
}

func (s *stepper) submit(move ir.Move) error {
	state := s.state()
	to := state.TurnOrder.Clone()
	if to.Simultaneous == nil {
		to.Simultaneous = newSimultaneous(state.PlayerCount)
	}
	pending := move
	pending.Params = move.Params.Clone()
	to.Simultaneous.Submitted[move.Actor] = true
	to.Simultaneous.Pending[move.Actor] = &pending
	s.step.State = state.WithTurnOrder(to)

	s.m.logger.Debug("move submitted",
		zap.String("action", move.ActionID),
		zap.Int("actor", move.Actor))
	if !allSubmitted(to.Simultaneous) {
		return nil
	}

	moves := to.Simultaneous.Pending
	cleared := s.state().TurnOrder.Clone()
	cleared.Simultaneous.Pending = make([]*ir.Move, len(moves))
	s.step.State = s.state().WithTurnOrder(cleared)

	for _, mv := range moves {
		if mv == nil {
			continue
		}
		action, ok := s.m.tree.Action(mv.ActionID)
		if !ok {
			return unknownAction(s.m.tree, mv.ActionID)
		}
		if err := s.resolve(action, *mv, false); err != nil {
			return err
		}
	}
	return nil
}

func (s *stepper) resolve(action *ir.ActionDef, move ir.Move, free bool) error {
	call := effectCall{actor: move.Actor, params: move.Params}
	budget := s.m.budget()

	var events []ir.TriggerEvent
	if !free {
		emitted, err := s.apply(action.Cost, call, budget)
		if err != nil {
			return fmt.Errorf("action %s cost: %w", action.ID, err)
		}
		events = append(events, emitted...)
	}
	emitted, err := s.apply(action.Effects, call, budget)
	if err != nil {
		return fmt.Errorf("action %s: %w", action.ID, err)
	}
	events = append(events, emitted...)

	state := s.state()
	usage := state.ActionUsage[action.ID]
	usage.Turn++
	usage.Phase++
	usage.Game++
	s.step.State = state.WithUsage(action.ID, usage)

	for _, id := range action.Lasting {
		emitted, err := s.activate(id, action.ID, call, budget)
		if err != nil {
			return fmt.Errorf("action %s: %w", action.ID, err)
		}
		events = append(events, emitted...)
	}

	if s.m.cardDef() != nil && !s.m.coupCard(s.state()) {
		if free {
			if idx := freeGrant(s.state(), move.Actor, action.ID); idx >= 0 {
				s.step.State = consumeGrant(s.state(), idx)
			}
		} else {
			s.step.State = recordActed(s.state(), move.Actor)
		}
	}

	s.m.logger.Debug("move resolved",
		zap.String("action", action.ID),
		zap.Int("actor", move.Actor),
		zap.Bool("free", free),
		zap.Int("events", len(events)))

	if err := s.dispatchAll(events); err != nil {
		return err
	}
	return s.dispatch(ir.TriggerEvent{Kind: ir.EventActionResolved, Action: action.ID, Player: ir.PlayerRef(move.Actor)})
}
