package turnflow

import (
	"fmt"

	"github.com/roach88/rulekernel/internal/eval"
	"github.com/roach88/rulekernel/internal/ir"
)

// Reasons an action is unavailable.
const (
	ReasonWrongPhase   = "wrong_phase"
	ReasonNotActor     = "not_actor"
	ReasonIneligible   = "ineligible"
	ReasonSubmitted    = "submitted"
	ReasonLimitReached = "limit_reached"
	ReasonPrecondition = "precondition"
)

// MoveOracle decides whether a state offers a decision. The core does not
// enumerate moves itself; AdvanceToDecisionPoint only asks the oracle.
type MoveOracle interface {
	HasLegalMove(state *ir.GameState) (bool, error)
}

// OracleFunc adapts a function to MoveOracle.
type OracleFunc func(state *ir.GameState) (bool, error)

// HasLegalMove calls f.
func (f OracleFunc) HasLegalMove(state *ir.GameState) (bool, error) {
	return f(state)
}

// Candidate is an action a player could take, before parameters are chosen.
type Candidate struct {
	Action string `json:"action"`
	Actor  int    `json:"actor"`
	Free   bool   `json:"free,omitempty"`
}

// ActionAvailability is the default MoveOracle. An action is available when
// it is declared for the current phase, the turn order lets the actor move,
// its usage limits are not exhausted and its precondition holds. A
// precondition that needs an unbound move parameter counts as available:
// the check is deferred until the move is made.
type ActionAvailability struct {
	m *Machine
}

// Availability returns the default oracle for m.
func (m *Machine) Availability() ActionAvailability {
	return ActionAvailability{m: m}
}

// HasLegalMove reports whether any candidate exists.
func (a ActionAvailability) HasLegalMove(state *ir.GameState) (bool, error) {
	found := false
	err := a.m.candidates(state, func(Candidate) bool {
		found = true
		return false
	})
	return found, err
}

// Candidates lists the available actions in declaration order, then actor
// order.
func (m *Machine) Candidates(state *ir.GameState) ([]Candidate, error) {
	var out []Candidate
	err := m.candidates(state, func(c Candidate) bool {
		out = append(out, c)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Machine) candidates(state *ir.GameState, yield func(Candidate) bool) error {
	for i := range m.tree.Actions {
		action := &m.tree.Actions[i]
		if !action.AllowedIn(state.CurrentPhase) {
			continue
		}
		for _, actor := range m.actorsFor(state, action) {
			reason, free, err := m.check(state, action, actor, nil)
			if err != nil && !eval.IsDeferrable(err) {
				return fmt.Errorf("action %s: %w", action.ID, err)
			}
			if reason != "" {
				continue
			}
			if !yield(Candidate{Action: action.ID, Actor: actor, Free: free}) {
				return nil
			}
		}
	}
	return nil
}

// actorsFor lists the players worth checking for action.
func (m *Machine) actorsFor(state *ir.GameState, action *ir.ActionDef) []int {
	all := make([]int, state.PlayerCount)
	for p := range all {
		all[p] = p
	}
	switch {
	case m.tree.TurnOrder.Strategy == ir.StrategySimultaneous,
		m.cardDef() != nil,
		action.Actor == ir.ActorAny:
		return all
	default:
		return []int{state.ActivePlayer}
	}
}

// Available reports whether actor may take actionID with params now. The
// reason is empty when the action is available.
func (m *Machine) Available(state *ir.GameState, actionID string, actor int, params ir.Object) (string, error) {
	action, ok := m.tree.Action(actionID)
	if !ok {
		return "", unknownAction(m.tree, actionID)
	}
	reason, _, err := m.check(state, action, actor, params)
	return reason, err
}

// check runs every availability gate in order and returns the first
// failing reason. free is set when a pending free operation grant lets the
// actor move out of turn.
func (m *Machine) check(state *ir.GameState, action *ir.ActionDef, actor int, params ir.Object) (reason string, free bool, err error) {
	if !action.AllowedIn(state.CurrentPhase) {
		return ReasonWrongPhase, false, nil
	}
	if actor < 0 || actor >= state.PlayerCount {
		return ReasonNotActor, false, nil
	}

	switch {
	case m.tree.TurnOrder.Strategy == ir.StrategySimultaneous:
		sim := state.TurnOrder.Simultaneous
		if sim != nil && actor < len(sim.Submitted) && sim.Submitted[actor] {
			return ReasonSubmitted, false, nil
		}
	case m.cardDef() != nil && !m.coupCard(state):
		if freeGrant(state, actor, action.ID) >= 0 {
			free = true
			break
		}
		if actor != state.ActivePlayer {
			return ReasonNotActor, false, nil
		}
		cd := state.TurnOrder.CardDriven
		if cd == nil || actor >= len(cd.Eligible) || !cd.Eligible[actor] || cd.CurrentCard.Acted(actor) {
			return ReasonIneligible, false, nil
		}
	default:
		if action.Actor != ir.ActorAny && actor != state.ActivePlayer {
			return ReasonNotActor, false, nil
		}
	}

	usage := state.ActionUsage[action.ID]
	for _, l := range action.Limits {
		used := usage.Game
		switch l.Scope {
		case ir.LimitTurn:
			used = usage.Turn
		case ir.LimitPhase:
			used = usage.Phase
		}
		if used >= l.Max {
			return ReasonLimitReached, free, nil
		}
	}

	if action.Pre != nil {
		ok, err := eval.Condition(action.Pre, m.evalContext(state, actor, params))
		if err != nil {
			return "", free, err
		}
		if !ok {
			return ReasonPrecondition, free, nil
		}
	}
	return "", free, nil
}
