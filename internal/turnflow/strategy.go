package turnflow

import (
	"slices"
	"strconv"

	"github.com/roach88/rulekernel/internal/ir"
)

// advanceTurnOrder moves the turn-order runtime to the next turn.
func (s *stepper) advanceTurnOrder() error {
	state := s.state()
	if state.PlayerCount <= 0 {
		return ir.NewRuntimeError(ir.ErrCodeInvalidRuleTree, "state has no players")
	}
	def := s.m.tree.TurnOrder

	switch def.Strategy {
	case ir.StrategyRoundRobin, "":
		next := state.Clone()
		next.ActivePlayer = (state.ActivePlayer + 1) % state.PlayerCount
		s.step.State = next

	case ir.StrategyFixedOrder:
		to := state.TurnOrder.Clone()
		if to.FixedOrder == nil {
			to.FixedOrder = &ir.FixedOrderState{}
		}
		idx, player, ok := nextInOrder(def.Order, to.FixedOrder.Index, state.PlayerCount)
		to.FixedOrder.Index = idx
		next := state.WithTurnOrder(to)
		if ok {
			next.ActivePlayer = player
		}
		s.step.State = next

	case ir.StrategyCardDriven:
		s.rollEligibility()

	case ir.StrategySimultaneous:
		to := state.TurnOrder.Clone()
		to.Simultaneous = newSimultaneous(state.PlayerCount)
		s.step.State = state.WithTurnOrder(to)

	default:
		return ir.NewRuntimeError(ir.ErrCodeInvalidRuleTree, "unknown turn order strategy",
			"strategy", string(def.Strategy))
	}
	return nil
}

// nextInOrder finds the next order entry after index that names a seated
// player. Entries that do not parse or are out of range are skipped.
func nextInOrder(order []string, index, players int) (int, int, bool) {
	for step := 1; step <= len(order); step++ {
		i := (index + step) % len(order)
		if p, ok := orderPlayer(order[i], players); ok {
			return i, p, true
		}
	}
	return index, 0, false
}

// firstInOrder finds the first valid order entry.
func firstInOrder(order []string, players int) (int, int, bool) {
	if len(order) == 0 {
		return 0, 0, false
	}
	return nextInOrder(order, len(order)-1, players)
}

func orderPlayer(entry string, players int) (int, bool) {
	p, err := strconv.Atoi(entry)
	if err != nil || p < 0 || p >= players {
		return 0, false
	}
	return p, true
}

func newSimultaneous(players int) *ir.SimultaneousState {
	return &ir.SimultaneousState{
		Submitted: make([]bool, players),
		Pending:   make([]*ir.Move, players),
	}
}

// allSubmitted reports whether every player has submitted this turn.
func allSubmitted(sim *ir.SimultaneousState) bool {
	return sim != nil && len(sim.Submitted) > 0 && !slices.Contains(sim.Submitted, false)
}
