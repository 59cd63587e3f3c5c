package turnflow

import (
	"slices"
	"strconv"

	"go.uber.org/zap"

	"github.com/roach88/rulekernel/internal/ir"
)

// EffectivePhases returns the phase list for the current turn.
//
// Outside card-driven play, or when no coup phases are declared, this is
// the declared list. On a coup card it narrows to the coup phases, minus
// the final-coup omissions once the lookahead and draw zones are empty. On
// any other card the coup phases are removed.
func (m *Machine) EffectivePhases(state *ir.GameState) ([]string, error) {
	if len(m.tree.Phases) == 0 {
		return nil, ir.NewRuntimeError(ir.ErrCodeEmptyPhaseList, "rule tree declares no phases")
	}
	all := make([]string, len(m.tree.Phases))
	for i, p := range m.tree.Phases {
		all[i] = p.ID
	}
	cd := m.cardDef()
	if cd == nil || len(cd.CoupPhases) == 0 {
		return all, nil
	}

	coup := m.coupCard(state)
	final := coup && m.finalCoup(state)
	phases := slices.DeleteFunc(all, func(id string) bool {
		inCoup := slices.Contains(cd.CoupPhases, id)
		if !coup {
			return inCoup
		}
		return !inCoup || (final && slices.Contains(cd.FinalCoupOmitPhases, id))
	})
	if len(phases) == 0 {
		return nil, ir.NewRuntimeError(ir.ErrCodeEmptyPhaseList, "effective phase list is empty",
			"coup", strconv.FormatBool(coup),
			"final", strconv.FormatBool(final))
	}
	return phases, nil
}

func phaseAt(phases []string, i int) (string, error) {
	if i < 0 || i >= len(phases) {
		return "", ir.NewRuntimeError(ir.ErrCodePhaseIndexOutOfRange, "next phase index out of range",
			"index", strconv.Itoa(i),
			"phases", strconv.Itoa(len(phases)))
	}
	return phases[i], nil
}

// AdvancePhase moves state to the next phase, or through the end of the
// turn when the current phase is the last one.
//
// A non-terminal advance dispatches phaseExited, resets phase usage,
// enters the next phase and dispatches phaseEntered. A terminal advance
// dispatches phaseExited and turnEnded, settles the card slots, sweeps
// lasting effects for the boundaries crossed, advances the turn order,
// resets turn usage, and dispatches turnStarted and phaseEntered for the
// first phase of the new turn.
func (m *Machine) AdvancePhase(state *ir.GameState) (Step, error) {
	s := m.begin(state)
	if err := s.advance(); err != nil {
		return Step{}, err
	}
	return s.done(), nil
}

func (s *stepper) advance() error {
	m := s.m
	phases, err := m.EffectivePhases(s.state())
	if err != nil {
		return err
	}
	current := s.state().CurrentPhase
	idx := slices.Index(phases, current)
	if idx < 0 {
		return ir.NewRuntimeError(ir.ErrCodePhaseNotFound, "current phase is not in the effective phase list",
			"phase", current,
			"turn", strconv.Itoa(s.state().TurnCount))
	}
	s.step.Advances++

	if err := s.dispatch(ir.TriggerEvent{Kind: ir.EventPhaseExited, Phase: current}); err != nil {
		return err
	}

	if idx < len(phases)-1 {
		next, err := phaseAt(phases, idx+1)
		if err != nil {
			return err
		}
		s.enterPhase(next)
		m.logger.Debug("phase advanced",
			zap.String("from", current),
			zap.String("to", next),
			zap.Int("turn", s.state().TurnCount))
		return s.dispatch(ir.TriggerEvent{Kind: ir.EventPhaseEntered, Phase: next})
	}

	if err := s.dispatch(ir.TriggerEvent{Kind: ir.EventTurnEnded}); err != nil {
		return err
	}
	if err := s.endTurn(); err != nil {
		return err
	}

	// The new turn may play a different card, so the list is recomputed.
	// The first phase is current while turnStarted triggers run.
	phases, err = m.EffectivePhases(s.state())
	if err != nil {
		return err
	}
	first, err := phaseAt(phases, 0)
	if err != nil {
		return err
	}
	s.enterPhase(first)
	m.logger.Debug("turn advanced",
		zap.String("from", current),
		zap.String("to", first),
		zap.Int("turn", s.state().TurnCount),
		zap.Int("active", s.state().ActivePlayer))
	if err := s.dispatch(ir.TriggerEvent{Kind: ir.EventTurnStarted}); err != nil {
		return err
	}
	return s.dispatch(ir.TriggerEvent{Kind: ir.EventPhaseEntered, Phase: first})
}

// enterPhase sets the current phase and rolls the phase usage window.
func (s *stepper) enterPhase(phase string) {
	next := s.state().ResetUsage(false, true)
	if next == s.state() {
		next = next.Clone()
	}
	next.CurrentPhase = phase
	s.step.State = next
}

// endTurn runs the end-of-turn bookkeeping between turnEnded and
// turnStarted.
func (s *stepper) endTurn() error {
	boundaries, err := s.settleCard()
	if err != nil {
		return err
	}
	s.step.Boundaries = append(s.step.Boundaries, boundaries...)

	if err := s.sweep(boundaries); err != nil {
		return err
	}
	if err := s.advanceTurnOrder(); err != nil {
		return err
	}

	next := s.state().ResetUsage(true, true)
	if next == s.state() {
		next = next.Clone()
	}
	next.TurnCount++
	s.step.State = next
	return nil
}
