package turnflow

import (
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/rulekernel/internal/effects"
	"github.com/roach88/rulekernel/internal/ir"
)

// NewActiveLasting registers def under id with the remaining-boundary
// counter of its duration class: card 1, nextCard 2, coup 1, campaign 1.
func NewActiveLasting(def *ir.LastingEffectDef, id, sourceID string) (ir.ActiveLastingEffect, error) {
	a := ir.ActiveLastingEffect{ID: id, SourceID: sourceID, DefID: def.ID, Duration: def.Duration}
	switch def.Duration {
	case ir.DurationCard:
		a.RemainingCardBoundaries = counter(1)
	case ir.DurationNextCard:
		a.RemainingCardBoundaries = counter(2)
	case ir.DurationCoup:
		a.RemainingCoupBoundaries = counter(1)
	case ir.DurationCampaign:
		a.RemainingCampaignBoundaries = counter(1)
	default:
		return ir.ActiveLastingEffect{}, ir.NewRuntimeError(ir.ErrCodeInvalidRuleTree, "unknown lasting duration",
			"lasting", def.ID, "duration", string(def.Duration))
	}
	return a, nil
}

func counter(n int) *int {
	return &n
}

// SweepCounters decrements every active effect once per matching boundary
// kind in boundaries and splits the effects into retained and expired, both
// in registration order. An effect expires when any counter reaches exactly
// zero. Decisions use the pre-sweep counters, so a kind listed twice still
// counts once.
func SweepCounters(active []ir.ActiveLastingEffect, boundaries []ir.BoundaryKind) (kept, expired []ir.ActiveLastingEffect) {
	card := slices.Contains(boundaries, ir.BoundaryCard)
	coup := slices.Contains(boundaries, ir.BoundaryCoup)
	campaign := slices.Contains(boundaries, ir.BoundaryCampaign)

	for _, e := range active {
		var x1, x2, x3 bool
		next := e
		next.RemainingCardBoundaries, x1 = decrement(e.RemainingCardBoundaries, card)
		next.RemainingCoupBoundaries, x2 = decrement(e.RemainingCoupBoundaries, coup)
		next.RemainingCampaignBoundaries, x3 = decrement(e.RemainingCampaignBoundaries, campaign)
		if x1 || x2 || x3 {
			expired = append(expired, e)
			continue
		}
		kept = append(kept, next)
	}
	return kept, expired
}

func decrement(c *int, crossed bool) (*int, bool) {
	if c == nil || !crossed {
		return c, false
	}
	n := *c - 1
	return &n, n == 0
}

// ActivateLasting runs the setup effects of lasting effect defID, registers
// it, and dispatches the events the setup emitted.
func (m *Machine) ActivateLasting(state *ir.GameState, defID, sourceID string) (Step, error) {
	s := m.begin(state)
	events, err := s.activate(defID, sourceID, effectCall{actor: state.ActivePlayer}, m.budget())
	if err != nil {
		return Step{}, err
	}
	if err := s.dispatchAll(events); err != nil {
		return Step{}, err
	}
	return s.done(), nil
}

// SweepLasting expires lasting effects for the given boundaries, running
// teardowns and dispatching the events they emit.
func (m *Machine) SweepLasting(state *ir.GameState, boundaries []ir.BoundaryKind) (Step, error) {
	s := m.begin(state)
	if err := s.sweep(boundaries); err != nil {
		return Step{}, err
	}
	return s.done(), nil
}

func (s *stepper) activate(defID, sourceID string, call effectCall, budget *effects.Budget) ([]ir.TriggerEvent, error) {
	def, ok := s.m.tree.Lasting(defID)
	if !ok {
		ids := make([]string, len(s.m.tree.LastingEffects))
		for i, d := range s.m.tree.LastingEffects {
			ids[i] = d.ID
		}
		slices.Sort(ids)
		return nil, ir.NewRuntimeError(ir.ErrCodeUnknownLastingEffect, "lasting effect is not declared",
			"lasting", defID, "source", sourceID, "available", strings.Join(ids, ","))
	}
	events, err := s.apply(def.Setup, call, budget)
	if err != nil {
		return nil, err
	}

	state := s.state()
	active, err := NewActiveLasting(def, "lasting-"+strconv.FormatInt(state.NextLastingSeq, 10), sourceID)
	if err != nil {
		return nil, err
	}
	next := state.Clone()
	next.NextLastingSeq++
	next.LastingEffects = append(slices.Clone(state.LastingEffects), active)
	s.step.State = next

	s.m.logger.Debug("lasting effect activated",
		zap.String("lasting", active.ID),
		zap.String("def", defID),
		zap.String("source", sourceID),
		zap.String("duration", string(def.Duration)))
	return events, nil
}

// sweep expires lasting effects for one set of boundaries. Teardowns run in
// registration order after the retained list is stored.
func (s *stepper) sweep(boundaries []ir.BoundaryKind) error {
	state := s.state()
	if len(state.LastingEffects) == 0 || len(boundaries) == 0 {
		return nil
	}
	kept, expired := SweepCounters(state.LastingEffects, boundaries)
	next := state.Clone()
	next.LastingEffects = kept
	s.step.State = next

	budget := s.m.budget()
	var events []ir.TriggerEvent
	for _, e := range expired {
		def, ok := s.m.tree.Lasting(e.DefID)
		if !ok {
			return ir.NewRuntimeError(ir.ErrCodeUnknownLastingEffect, "active lasting effect has no definition",
				"lasting", e.ID, "def", e.DefID)
		}
		emitted, err := s.apply(def.Teardown, effectCall{actor: s.state().ActivePlayer}, budget)
		if err != nil {
			return err
		}
		events = append(events, emitted...)
		s.step.Expired = append(s.step.Expired, e.ID)
		s.m.logger.Debug("lasting effect expired",
			zap.String("lasting", e.ID),
			zap.String("def", e.DefID))
	}
	return s.dispatchAll(events)
}
