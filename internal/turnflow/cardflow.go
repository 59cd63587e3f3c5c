package turnflow

import (
	"slices"

	"go.uber.org/zap"

	"github.com/roach88/rulekernel/internal/ir"
)

// cardDef returns the card-driven configuration, or nil when the tree uses
// another strategy.
func (m *Machine) cardDef() *ir.CardDrivenDef {
	if m.tree.TurnOrder.Strategy != ir.StrategyCardDriven {
		return nil
	}
	return m.tree.TurnOrder.CardDriven
}

// coupCard reports whether the card in the played slot is a coup card.
func (m *Machine) coupCard(state *ir.GameState) bool {
	cd := m.cardDef()
	if cd == nil || cd.CoupProp == "" {
		return false
	}
	played := state.Zones[cd.PlayedZone]
	if len(played) == 0 {
		return false
	}
	v, ok := played[0].Props[cd.CoupProp]
	return ok && ir.Equal(v, ir.Bool(true))
}

// finalCoup reports whether no card is left to reveal.
func (m *Machine) finalCoup(state *ir.GameState) bool {
	cd := m.cardDef()
	return cd != nil && len(state.Zones[cd.LookaheadZone]) == 0 && len(state.Zones[cd.DrawZone]) == 0
}

// cardTransition records what the end-of-turn card settlement saw, for the
// turn-order advance that follows the lasting sweep.
type cardTransition struct {
	wasCoup  bool
	nextCoup bool
}

// settleCard promotes the card slots and returns the boundaries crossed.
//
// Every turn end crosses a card boundary. Ending a coup card also crosses a
// coup boundary, and a campaign boundary when the coup round is over: the
// next card is not a coup card, or no card is left.
func (s *stepper) settleCard() ([]ir.BoundaryKind, error) {
	m := s.m
	cd := m.cardDef()
	if cd == nil {
		return []ir.BoundaryKind{ir.BoundaryCard}, nil
	}
	wasCoup := m.coupCard(s.state())
	final := wasCoup && m.finalCoup(s.state())

	if err := s.promote(cd); err != nil {
		return nil, err
	}
	nextCoup := m.coupCard(s.state())
	s.card = cardTransition{wasCoup: wasCoup, nextCoup: nextCoup}

	boundaries := []ir.BoundaryKind{ir.BoundaryCard}
	if wasCoup {
		boundaries = append(boundaries, ir.BoundaryCoup)
		if final || !nextCoup {
			boundaries = append(boundaries, ir.BoundaryCampaign)
		}
	}
	m.logger.Debug("card settled",
		zap.Bool("was_coup", wasCoup),
		zap.Bool("next_coup", nextCoup),
		zap.Int("played", len(s.state().Zones[cd.PlayedZone])))
	return boundaries, nil
}

// promote discards the played card and moves one card down each slot:
// lookahead to played, draw to lookahead. Slot bookkeeping is not a game
// event, so the moves are not dispatched.
func (s *stepper) promote(cd *ir.CardDrivenDef) error {
	one := ir.Literal{Value: ir.Int(1)}
	var list []ir.Effect
	if cd.DiscardZone != "" {
		list = append(list, ir.MoveAll{From: cd.PlayedZone, To: cd.DiscardZone})
	} else if len(s.state().Zones[cd.PlayedZone]) > 0 {
		s.step.State = s.state().WithZone(cd.PlayedZone, []ir.Token{})
	}
	list = append(list,
		ir.Draw{From: cd.LookaheadZone, To: cd.PlayedZone, Count: one},
		ir.Draw{From: cd.DrawZone, To: cd.LookaheadZone, Count: one},
	)
	_, err := s.apply(list, effectCall{actor: s.state().ActivePlayer}, s.m.budget())
	return err
}

// rollEligibility prepares the eligibility runtime for the next card.
//
// Seats that acted on the finished card become ineligible and seats that
// sat it out become eligible; a finished coup card makes every seat
// eligible. Pending overrides apply on top and are consumed, unused free
// operation grants lapse, and the first two eligible seats in seat order
// become the first and second eligible for the new card.
func (s *stepper) rollEligibility() {
	to := s.state().TurnOrder.Clone()
	st := to.CardDriven
	if st == nil {
		return
	}
	for seat := range st.Eligible {
		st.Eligible[seat] = s.card.wasCoup || !st.CurrentCard.Acted(seat)
	}
	for _, o := range st.PendingEligibilityOverrides {
		if o.Seat >= 0 && o.Seat < len(st.Eligible) {
			st.Eligible[o.Seat] = o.Eligible
		}
	}
	st.PendingEligibilityOverrides = nil
	st.PendingFreeOperationGrants = nil
	if s.card.nextCoup {
		st.ConsecutiveCoupRounds++
	} else {
		st.ConsecutiveCoupRounds = 0
	}
	st.CurrentCard = startCard(st.Eligible)

	next := s.state().WithTurnOrder(to)
	if first := st.CurrentCard.FirstEligible; first != nil {
		next.ActivePlayer = *first
	}
	s.step.State = next
}

// startCard picks the first and second eligible seats. When no seat is
// eligible every seat becomes eligible again.
func startCard(eligible []bool) ir.CardProgress {
	if !slices.Contains(eligible, true) {
		for i := range eligible {
			eligible[i] = true
		}
	}
	var picked []int
	for seat, ok := range eligible {
		if ok && len(picked) < 2 {
			picked = append(picked, seat)
		}
	}
	var p ir.CardProgress
	if len(picked) > 0 {
		p.FirstEligible = ir.PlayerRef(picked[0])
	}
	if len(picked) > 1 {
		p.SecondEligible = ir.PlayerRef(picked[1])
	}
	return p
}

// recordActed marks seat as having acted on the current card and hands the
// turn to the second eligible seat.
func recordActed(state *ir.GameState, seat int) *ir.GameState {
	to := state.TurnOrder.Clone()
	cur := &to.CardDriven.CurrentCard
	cur.ActedSeats = append(cur.ActedSeats, seat)
	next := state.WithTurnOrder(to)
	if cur.FirstEligible != nil && *cur.FirstEligible == seat && cur.SecondEligible != nil {
		next.ActivePlayer = *cur.SecondEligible
	}
	return next
}

// freeGrant returns the index of a pending grant letting seat take action,
// or -1.
func freeGrant(state *ir.GameState, seat int, action string) int {
	cd := state.TurnOrder.CardDriven
	if cd == nil {
		return -1
	}
	return slices.IndexFunc(cd.PendingFreeOperationGrants, func(g ir.FreeOperationGrant) bool {
		return g.Seat == seat && slices.Contains(g.Actions, action)
	})
}

func consumeGrant(state *ir.GameState, idx int) *ir.GameState {
	to := state.TurnOrder.Clone()
	to.CardDriven.PendingFreeOperationGrants = slices.Delete(to.CardDriven.PendingFreeOperationGrants, idx, idx+1)
	if len(to.CardDriven.PendingFreeOperationGrants) == 0 {
		to.CardDriven.PendingFreeOperationGrants = nil
	}
	return state.WithTurnOrder(to)
}
