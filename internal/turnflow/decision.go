package turnflow

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/roach88/rulekernel/internal/eval"
	"github.com/roach88/rulekernel/internal/ir"
)

// TerminalResult returns the result of the first declared end condition
// that holds, or nil while the game goes on.
func (m *Machine) TerminalResult(state *ir.GameState) (*ir.TerminalResult, error) {
	ctx := m.evalContext(state, state.ActivePlayer, nil)
	for i, ec := range m.tree.EndConditions {
		ok, err := eval.Condition(ec.When, ctx)
		if err != nil {
			return nil, fmt.Errorf("end condition %d: %w", i, err)
		}
		if !ok {
			continue
		}
		res := &ir.TerminalResult{Kind: ec.Result.Kind}
		if ec.Result.Player != "" {
			p, err := eval.Player(ec.Result.Player, ctx)
			if err != nil {
				return nil, fmt.Errorf("end condition %d player: %w", i, err)
			}
			res.Player = ir.PlayerRef(p)
		}
		return res, nil
	}
	return nil, nil
}

// AdvanceToDecisionPoint advances phases until the game is over or oracle
// reports a legal move. A nil oracle uses the machine's ActionAvailability.
//
// At most playerCount × phaseCount + 1 advances are made; a rule tree that
// needs more can never reach a decision and fails with STALL_LOOP_DETECTED.
func (m *Machine) AdvanceToDecisionPoint(state *ir.GameState, oracle MoveOracle) (Step, error) {
	if oracle == nil {
		oracle = m.Availability()
	}
	s := m.begin(state)
	bound := state.PlayerCount*len(m.tree.Phases) + 1
	for {
		res, err := m.TerminalResult(s.state())
		if err != nil {
			return Step{}, err
		}
		if res != nil {
			return s.done(), nil
		}
		ok, err := oracle.HasLegalMove(s.state())
		if err != nil {
			return Step{}, fmt.Errorf("move oracle: %w", err)
		}
		if ok {
			return s.done(), nil
		}
		if s.step.Advances >= bound {
			m.logger.Warn("stall loop detected",
				zap.Int("advances", s.step.Advances),
				zap.String("phase", s.state().CurrentPhase),
				zap.Int("turn", s.state().TurnCount))
			return Step{}, ir.NewRuntimeError(ir.ErrCodeStallLoopDetected, "no decision point reachable",
				"advances", strconv.Itoa(s.step.Advances),
				"bound", strconv.Itoa(bound),
				"phase", s.state().CurrentPhase)
		}
		if err := s.advance(); err != nil {
			return Step{}, err
		}
	}
}
