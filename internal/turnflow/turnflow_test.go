package turnflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulekernel/internal/ir"
	"github.com/roach88/rulekernel/internal/rng"
)

func lit(n int64) ir.ValueExpr { return ir.Literal{Value: ir.Int(n)} }

func global(name string) ir.VarTarget { return ir.VarTarget{Scope: ir.ScopeGlobal, Var: name} }

func add(name string, n int64) ir.Effect {
	return ir.AddVar{Target: global(name), Delta: lit(n)}
}

func phases(ids ...string) []ir.PhaseDef {
	out := make([]ir.PhaseDef, len(ids))
	for i, id := range ids {
		out[i] = ir.PhaseDef{ID: id}
	}
	return out
}

func tokenIDs(tokens []ir.Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.ID
	}
	return out
}

func firedIDs(log []ir.TriggerLogEntry) []string {
	var out []string
	for _, e := range log {
		if e.Kind == ir.LogFired {
			out = append(out, e.TriggerID)
		}
	}
	return out
}

func runtimeDetails(t *testing.T, err error, code ir.RuntimeErrorCode) map[string]string {
	t.Helper()
	var re *ir.RuntimeError
	require.True(t, errors.As(err, &re), "expected runtime error, got %v", err)
	require.Equal(t, code, re.Code)
	return re.Details
}

func newGame(t *testing.T, m *Machine, players int) *ir.GameState {
	t.Helper()
	state, err := m.NewGame(players, 1)
	require.NoError(t, err)
	return state
}

func TestNewGame(t *testing.T) {
	tree := &ir.RuleTree{
		Metadata: ir.Metadata{ID: "demo", MinPlayers: 2, MaxPlayers: 4},
		Globals: []ir.VariableDef{
			{Name: "cap", Type: ir.VarTypeInt, Init: ir.Int(12), Max: func() *int64 { n := int64(10); return &n }()},
			{Name: "flag", Type: ir.VarTypeBoolean},
		},
		PerPlayer: []ir.VariableDef{{Name: "vp", Type: ir.VarTypeInt}},
		ZoneVars:  []ir.VariableDef{{Name: "supply", Type: ir.VarTypeInt}},
		Zones:     []ir.ZoneDef{{ID: "board"}, {ID: "hand", Owner: ir.ZoneOwnerPlayer}},
		Markers:   []ir.MarkerDef{{ID: "control", States: []string{"neutral", "red"}, Default: "neutral"}},
		Phases:    phases("main"),
	}

	state, err := NewGame(tree, 2, 42)
	require.NoError(t, err)

	assert.Equal(t, ir.Object{"cap": ir.Int(10), "flag": ir.Bool(false)}, state.Globals)
	assert.Equal(t, []ir.Object{{"vp": ir.Int(0)}, {"vp": ir.Int(0)}}, state.PerPlayer)
	assert.Equal(t, []string{"board", "hand:0", "hand:1"}, state.ZoneIDs())
	assert.Equal(t, ir.Int(0), state.ZoneVars["hand:1"]["supply"])
	assert.Equal(t, "neutral", state.Markers["board"]["control"])
	assert.Equal(t, "main", state.CurrentPhase)
	assert.Equal(t, 0, state.ActivePlayer)
	assert.Equal(t, ir.StrategyRoundRobin, state.TurnOrder.Strategy)
	assert.Equal(t, rng.New(42), state.Rng)

	again, err := NewGame(tree, 2, 42)
	require.NoError(t, err)
	assert.Equal(t, state, again)

	t.Run("player count out of range", func(t *testing.T) {
		_, err := NewGame(tree, 5, 42)
		assert.True(t, ir.IsRuntimeError(err, ir.ErrCodeInvalidRuleTree))
	})

	t.Run("initial value of the wrong type", func(t *testing.T) {
		bad := *tree
		bad.Globals = []ir.VariableDef{{Name: "cap", Type: ir.VarTypeInt, Init: ir.Str("x")}}
		_, err := NewGame(&bad, 2, 42)
		assert.True(t, ir.IsRuntimeError(err, ir.ErrCodeInvalidRuleTree))
	})

	t.Run("no phases", func(t *testing.T) {
		bad := *tree
		bad.Phases = nil
		_, err := NewGame(&bad, 2, 42)
		assert.True(t, ir.IsRuntimeError(err, ir.ErrCodeEmptyPhaseList))
	})
}

// eventTree fires one trigger per lifecycle event.
func eventTree() *ir.RuleTree {
	on := func(id string, kind ir.EventKind) ir.TriggerDef {
		return ir.TriggerDef{ID: id, On: ir.EventMatcher{Kind: kind}, Effects: []ir.Effect{add("ticks", 1)}}
	}
	return &ir.RuleTree{
		Metadata: ir.Metadata{ID: "events", MinPlayers: 2, MaxPlayers: 4},
		Globals:  []ir.VariableDef{{Name: "ticks", Type: ir.VarTypeInt}},
		Phases:   phases("main", "cleanup"),
		Triggers: []ir.TriggerDef{
			on("exit", ir.EventPhaseExited),
			on("end", ir.EventTurnEnded),
			on("start", ir.EventTurnStarted),
			on("enter", ir.EventPhaseEntered),
		},
	}
}

func TestAdvancePhaseWithinTurn(t *testing.T) {
	m := New(eventTree())
	state := newGame(t, m, 3)

	step, err := m.AdvancePhase(state)
	require.NoError(t, err)

	assert.Equal(t, "cleanup", step.State.CurrentPhase)
	assert.Equal(t, []string{"exit", "enter"}, firedIDs(step.Log))
	assert.Equal(t, 1, step.Advances)
	assert.Empty(t, step.Boundaries)
	assert.Equal(t, 0, step.State.TurnCount)
	assert.Equal(t, ir.Int(2), step.State.Globals["ticks"])

	assert.Equal(t, "main", state.CurrentPhase, "input state must not change")
	assert.Equal(t, ir.Int(0), state.Globals["ticks"])
}

func TestAdvancePhaseThroughTurnEnd(t *testing.T) {
	m := New(eventTree())
	state := newGame(t, m, 3)

	step, err := m.AdvancePhase(state)
	require.NoError(t, err)
	step, err = m.AdvancePhase(step.State)
	require.NoError(t, err)

	assert.Equal(t, []string{"exit", "end", "start", "enter"}, firedIDs(step.Log))
	assert.Equal(t, "main", step.State.CurrentPhase)
	assert.Equal(t, 1, step.State.ActivePlayer)
	assert.Equal(t, 1, step.State.TurnCount)
	assert.Equal(t, []ir.BoundaryKind{ir.BoundaryCard}, step.Boundaries)

	var active []int
	s := step.State
	for range 2 {
		for range 2 {
			st, err := m.AdvancePhase(s)
			require.NoError(t, err)
			s = st.State
		}
		active = append(active, s.ActivePlayer)
	}
	assert.Equal(t, []int{2, 0}, active)
}

func TestAdvancePhaseErrors(t *testing.T) {
	m := New(eventTree())
	state := newGame(t, m, 2)

	lost := state.Clone()
	lost.CurrentPhase = "nowhere"
	_, err := m.AdvancePhase(lost)
	details := runtimeDetails(t, err, ir.ErrCodePhaseNotFound)
	assert.Equal(t, "nowhere", details["phase"])

	_, err = New(&ir.RuleTree{}).EffectivePhases(state)
	assert.True(t, ir.IsRuntimeError(err, ir.ErrCodeEmptyPhaseList))
}

func TestFixedOrderSkipsInvalidEntries(t *testing.T) {
	m := New(&ir.RuleTree{
		Metadata:  ir.Metadata{ID: "fixed"},
		Phases:    phases("main"),
		TurnOrder: ir.TurnOrderDef{Strategy: ir.StrategyFixedOrder, Order: []string{"1", "x", "5", "0"}},
	})
	state := newGame(t, m, 2)
	assert.Equal(t, 1, state.ActivePlayer)
	assert.Equal(t, 0, state.TurnOrder.FixedOrder.Index)

	step, err := m.AdvancePhase(state)
	require.NoError(t, err)
	assert.Equal(t, 0, step.State.ActivePlayer)
	assert.Equal(t, 3, step.State.TurnOrder.FixedOrder.Index)

	step, err = m.AdvancePhase(step.State)
	require.NoError(t, err)
	assert.Equal(t, 1, step.State.ActivePlayer)
	assert.Equal(t, 0, step.State.TurnOrder.FixedOrder.Index)
	assert.Equal(t, 0, state.TurnOrder.FixedOrder.Index, "input state must not change")
}

// lastingTree activates a nextCard effect that adds a bonus while active.
func lastingTree() *ir.RuleTree {
	return &ir.RuleTree{
		Metadata: ir.Metadata{ID: "lasting"},
		Globals:  []ir.VariableDef{{Name: "bonus", Type: ir.VarTypeInt}},
		Phases:   phases("main"),
		Actions: []ir.ActionDef{
			{ID: "rally", Phases: []string{"main"}, Lasting: []string{"surge"}},
		},
		LastingEffects: []ir.LastingEffectDef{
			{
				ID:       "surge",
				Duration: ir.DurationNextCard,
				Setup:    []ir.Effect{add("bonus", 1)},
				Teardown: []ir.Effect{add("bonus", -1)},
			},
		},
	}
}

func TestNextCardLastingSurvivesOneBoundary(t *testing.T) {
	m := New(lastingTree())
	state := newGame(t, m, 2)

	step, err := m.ApplyMove(state, ir.Move{ActionID: "rally", Actor: 0})
	require.NoError(t, err)
	require.Len(t, step.State.LastingEffects, 1)
	active := step.State.LastingEffects[0]
	assert.Equal(t, "lasting-0", active.ID)
	assert.Equal(t, "rally", active.SourceID)
	assert.Equal(t, 2, *active.RemainingCardBoundaries)
	assert.Equal(t, ir.Int(1), step.State.Globals["bonus"])
	assert.Equal(t, int64(1), step.State.NextLastingSeq)

	step, err = m.AdvancePhase(step.State)
	require.NoError(t, err)
	assert.Equal(t, []ir.BoundaryKind{ir.BoundaryCard}, step.Boundaries)
	assert.Empty(t, step.Expired)
	require.Len(t, step.State.LastingEffects, 1)
	assert.Equal(t, 1, *step.State.LastingEffects[0].RemainingCardBoundaries)
	assert.Equal(t, ir.Int(1), step.State.Globals["bonus"])

	step, err = m.AdvancePhase(step.State)
	require.NoError(t, err)
	assert.Equal(t, []string{"lasting-0"}, step.Expired)
	assert.Empty(t, step.State.LastingEffects)
	assert.Equal(t, ir.Int(0), step.State.Globals["bonus"])
}

func TestSweepLasting(t *testing.T) {
	m := New(lastingTree())
	state := newGame(t, m, 2)

	step, err := m.ActivateLasting(state, "surge", "event-card")
	require.NoError(t, err)
	assert.Equal(t, "event-card", step.State.LastingEffects[0].SourceID)

	step, err = m.SweepLasting(step.State, []ir.BoundaryKind{ir.BoundaryCoup})
	require.NoError(t, err)
	assert.Equal(t, 2, *step.State.LastingEffects[0].RemainingCardBoundaries, "coup boundaries leave card counters alone")

	step, err = m.SweepLasting(step.State, []ir.BoundaryKind{ir.BoundaryCard})
	require.NoError(t, err)
	assert.Empty(t, step.Expired)

	step, err = m.SweepLasting(step.State, []ir.BoundaryKind{ir.BoundaryCard})
	require.NoError(t, err)
	assert.Equal(t, []string{"lasting-0"}, step.Expired)
	assert.Equal(t, ir.Int(0), step.State.Globals["bonus"])

	_, err = m.ActivateLasting(state, "ghost", "event-card")
	details := runtimeDetails(t, err, ir.ErrCodeUnknownLastingEffect)
	assert.Equal(t, "surge", details["available"])
}

func TestSweepCountersUsePreSweepValues(t *testing.T) {
	mk := func(id string, d ir.LastingDuration) ir.ActiveLastingEffect {
		a, err := NewActiveLasting(&ir.LastingEffectDef{ID: id, Duration: d}, id, "src")
		require.NoError(t, err)
		return a
	}
	active := []ir.ActiveLastingEffect{
		mk("next", ir.DurationNextCard),
		mk("coup", ir.DurationCoup),
		mk("campaign", ir.DurationCampaign),
		mk("card", ir.DurationCard),
	}

	kept, expired := SweepCounters(active, []ir.BoundaryKind{ir.BoundaryCard, ir.BoundaryCard, ir.BoundaryCoup})

	require.Len(t, kept, 2)
	assert.Equal(t, "next", kept[0].ID)
	assert.Equal(t, 1, *kept[0].RemainingCardBoundaries, "a repeated kind counts once")
	assert.Equal(t, "campaign", kept[1].ID)
	assert.Equal(t, 1, *kept[1].RemainingCampaignBoundaries)

	var ids []string
	for _, e := range expired {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"coup", "card"}, ids)
	assert.Equal(t, 2, *active[0].RemainingCardBoundaries, "input must not change")

	_, err := NewActiveLasting(&ir.LastingEffectDef{ID: "x", Duration: "forever"}, "x", "src")
	assert.True(t, ir.IsRuntimeError(err, ir.ErrCodeInvalidRuleTree))
}

// playTree has one action, only legal in the cleanup phase.
func playTree() *ir.RuleTree {
	return &ir.RuleTree{
		Metadata: ir.Metadata{ID: "play"},
		Globals:  []ir.VariableDef{{Name: "score", Type: ir.VarTypeInt}},
		Phases:   phases("main", "cleanup"),
		Actions: []ir.ActionDef{
			{
				ID:      "play",
				Phases:  []string{"cleanup"},
				Effects: []ir.Effect{add("score", 1)},
				Limits:  []ir.ActionLimit{{Scope: ir.LimitTurn, Max: 1}},
			},
			{ID: "pass", Phases: []string{"cleanup"}, Pre: ir.BoolLit{Value: false}},
		},
		EndConditions: []ir.EndCondition{
			{
				When: ir.Compare{Op: ">=", Left: ir.Ref{Kind: ir.RefGlobalVar, Var: "score"}, Right: lit(3)},
				Result: ir.EndResult{Kind: ir.ResultWin, Player: "active"},
			},
		},
	}
}

func TestApplyMove(t *testing.T) {
	m := New(playTree())
	state := newGame(t, m, 2)

	_, err := m.ApplyMove(state, ir.Move{ActionID: "dance", Actor: 0})
	details := runtimeDetails(t, err, ir.ErrCodeUnknownAction)
	assert.Equal(t, "pass,play", details["available"])

	_, err = m.ApplyMove(state, ir.Move{ActionID: "play", Actor: 0})
	details = runtimeDetails(t, err, ir.ErrCodeActionNotAvailable)
	assert.Equal(t, ReasonWrongPhase, details["reason"])

	step, err := m.AdvancePhase(state)
	require.NoError(t, err)
	cleanup := step.State

	_, err = m.ApplyMove(cleanup, ir.Move{ActionID: "play", Actor: 1})
	details = runtimeDetails(t, err, ir.ErrCodeActionNotAvailable)
	assert.Equal(t, ReasonNotActor, details["reason"])

	step, err = m.ApplyMove(cleanup, ir.Move{ActionID: "play", Actor: 0})
	require.NoError(t, err)
	assert.Equal(t, ir.Int(1), step.State.Globals["score"])
	assert.Equal(t, ir.ActionUsage{Turn: 1, Phase: 1, Game: 1}, step.State.ActionUsage["play"])
	require.Len(t, step.Log, 0)

	reason, err := m.Available(step.State, "play", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonLimitReached, reason)

	reason, err = m.Available(cleanup, "pass", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonPrecondition, reason)

	t.Run("budget", func(t *testing.T) {
		_, err := New(playTree(), WithEffectBudget(0)).ApplyMove(cleanup, ir.Move{ActionID: "play", Actor: 0})
		assert.True(t, ir.IsRuntimeError(err, ir.ErrCodeEffectBudgetExceeded))
	})
}

func TestTerminalResult(t *testing.T) {
	m := New(playTree())
	state := newGame(t, m, 2)

	res, err := m.TerminalResult(state)
	require.NoError(t, err)
	assert.Nil(t, res)

	won := state.WithGlobal("score", ir.Int(3))
	won.ActivePlayer = 1
	res, err = m.TerminalResult(won)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, ir.ResultWin, res.Kind)
	assert.Equal(t, 1, *res.Player)

	step, err := m.AdvanceToDecisionPoint(won, nil)
	require.NoError(t, err)
	assert.Same(t, won, step.State)
	assert.Equal(t, 0, step.Advances)
}

func TestAdvanceToDecisionPoint(t *testing.T) {
	m := New(playTree())
	state := newGame(t, m, 2)

	step, err := m.AdvanceToDecisionPoint(state, nil)
	require.NoError(t, err)
	assert.Equal(t, "cleanup", step.State.CurrentPhase)
	assert.Equal(t, 1, step.Advances)

	candidates, err := m.Candidates(step.State)
	require.NoError(t, err)
	assert.Equal(t, []Candidate{{Action: "play", Actor: 0}}, candidates)
}

func TestAdvanceToDecisionPointDetectsStall(t *testing.T) {
	tree := playTree()
	tree.Actions = nil
	m := New(tree)
	state := newGame(t, m, 2)

	calls := 0
	oracle := OracleFunc(func(*ir.GameState) (bool, error) {
		calls++
		return false, nil
	})
	_, err := m.AdvanceToDecisionPoint(state, oracle)
	details := runtimeDetails(t, err, ir.ErrCodeStallLoopDetected)
	assert.Equal(t, "5", details["bound"])
	assert.Equal(t, "5", details["advances"])
	assert.Equal(t, 6, calls)

	_, err = m.AdvanceToDecisionPoint(state, nil)
	assert.True(t, ir.IsRuntimeError(err, ir.ErrCodeStallLoopDetected))
}

func TestSimultaneousResolvesInPlayerOrder(t *testing.T) {
	m := New(&ir.RuleTree{
		Metadata:  ir.Metadata{ID: "bids"},
		Globals:   []ir.VariableDef{{Name: "last", Type: ir.VarTypeInt, Init: ir.Int(-1)}},
		Phases:    phases("main"),
		TurnOrder: ir.TurnOrderDef{Strategy: ir.StrategySimultaneous},
		Actions: []ir.ActionDef{
			{
				ID:      "bid",
				Phases:  []string{"main"},
				Effects: []ir.Effect{ir.SetVar{Target: global("last"), Value: ir.Ref{Kind: ir.RefActor}}},
			},
		},
	})
	state := newGame(t, m, 2)

	candidates, err := m.Candidates(state)
	require.NoError(t, err)
	assert.Equal(t, []Candidate{{Action: "bid", Actor: 0}, {Action: "bid", Actor: 1}}, candidates)

	step, err := m.ApplyMove(state, ir.Move{ActionID: "bid", Actor: 1})
	require.NoError(t, err)
	sim := step.State.TurnOrder.Simultaneous
	assert.Equal(t, []bool{false, true}, sim.Submitted)
	require.NotNil(t, sim.Pending[1])
	assert.Equal(t, "bid", sim.Pending[1].ActionID)
	assert.Equal(t, ir.Int(-1), step.State.Globals["last"], "nothing resolves before every player submitted")

	_, err = m.ApplyMove(step.State, ir.Move{ActionID: "bid", Actor: 1})
	details := runtimeDetails(t, err, ir.ErrCodeActionNotAvailable)
	assert.Equal(t, ReasonSubmitted, details["reason"])

	step, err = m.ApplyMove(step.State, ir.Move{ActionID: "bid", Actor: 0})
	require.NoError(t, err)
	assert.Equal(t, ir.Int(1), step.State.Globals["last"])
	assert.Equal(t, []*ir.Move{nil, nil}, step.State.TurnOrder.Simultaneous.Pending)
	assert.Equal(t, 2, step.State.ActionUsage["bid"].Game)

	step, err = m.AdvancePhase(step.State)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false}, step.State.TurnOrder.Simultaneous.Submitted)
}

// cardTree deals two event cards and a final coup card.
func cardTree() *ir.RuleTree {
	card := ir.CreateToken{Type: "card", Zone: "deck"}
	coup := ir.CreateToken{Type: "card", Zone: "deck", Props: map[string]ir.ValueExpr{"coup": ir.Literal{Value: ir.Bool(true)}}}
	return &ir.RuleTree{
		Metadata: ir.Metadata{ID: "cards", MinPlayers: 2, MaxPlayers: 2},
		Globals: []ir.VariableDef{
			{Name: "ops", Type: ir.VarTypeInt},
			{Name: "resources", Type: ir.VarTypeInt, Init: ir.Int(5)},
		},
		Zones:  []ir.ZoneDef{{ID: "deck"}, {ID: "lookahead"}, {ID: "played"}, {ID: "discard"}},
		Phases: phases("ops", "reset"),
		TurnOrder: ir.TurnOrderDef{
			Strategy: ir.StrategyCardDriven,
			CardDriven: &ir.CardDrivenDef{
				Seats:         []string{"us", "them"},
				PlayedZone:    "played",
				LookaheadZone: "lookahead",
				DrawZone:      "deck",
				DiscardZone:   "discard",
				CoupProp:      "coup",
				CoupPhases:    []string{"reset"},
			},
		},
		Actions: []ir.ActionDef{
			{
				ID:      "op",
				Phases:  []string{"ops"},
				Cost:    []ir.Effect{add("resources", -1)},
				Effects: []ir.Effect{add("ops", 1)},
			},
		},
		Setup: []ir.Effect{card, card, coup},
	}
}

func TestCardDrivenFlow(t *testing.T) {
	m := New(cardTree())
	state := newGame(t, m, 2)

	assert.Equal(t, []string{"card-0"}, tokenIDs(state.Zones["played"]))
	assert.Equal(t, []string{"card-1"}, tokenIDs(state.Zones["lookahead"]))
	assert.Equal(t, []string{"card-2"}, tokenIDs(state.Zones["deck"]))
	assert.Equal(t, "ops", state.CurrentPhase)
	assert.Equal(t, 0, state.ActivePlayer)

	candidates, err := m.Candidates(state)
	require.NoError(t, err)
	assert.Equal(t, []Candidate{{Action: "op", Actor: 0}}, candidates)

	step, err := m.ApplyMove(state, ir.Move{ActionID: "op", Actor: 0})
	require.NoError(t, err)
	assert.Equal(t, ir.Int(4), step.State.Globals["resources"])
	assert.Equal(t, []int{0}, step.State.TurnOrder.CardDriven.CurrentCard.ActedSeats)
	assert.Equal(t, 1, step.State.ActivePlayer, "second eligible takes over")

	// The second eligible passes.
	step, err = m.AdvancePhase(step.State)
	require.NoError(t, err)
	s := step.State
	assert.Equal(t, []ir.BoundaryKind{ir.BoundaryCard}, step.Boundaries)
	assert.Equal(t, []bool{false, true}, s.TurnOrder.CardDriven.Eligible)
	assert.Equal(t, 1, s.ActivePlayer)
	assert.Equal(t, []string{"card-0"}, tokenIDs(s.Zones["discard"]))
	assert.Equal(t, []string{"card-1"}, tokenIDs(s.Zones["played"]))
	assert.Equal(t, []string{"card-2"}, tokenIDs(s.Zones["lookahead"]))

	reason, err := m.Available(s, "op", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonNotActor, reason)

	t.Run("free operation", func(t *testing.T) {
		to := s.TurnOrder.Clone()
		to.CardDriven.PendingFreeOperationGrants = []ir.FreeOperationGrant{{Seat: 0, Actions: []string{"op"}}}
		granted := s.WithTurnOrder(to)

		candidates, err := m.Candidates(granted)
		require.NoError(t, err)
		assert.Equal(t, []Candidate{{Action: "op", Actor: 0, Free: true}, {Action: "op", Actor: 1}}, candidates)

		step, err := m.ApplyMove(granted, ir.Move{ActionID: "op", Actor: 0})
		require.NoError(t, err)
		assert.Equal(t, ir.Int(4), step.State.Globals["resources"], "free operations skip the cost")
		assert.Equal(t, ir.Int(2), step.State.Globals["ops"])
		assert.Nil(t, step.State.TurnOrder.CardDriven.PendingFreeOperationGrants)
		assert.Empty(t, step.State.TurnOrder.CardDriven.CurrentCard.ActedSeats)
	})

	// Card 1 ends; the coup card is next and nothing is left to draw.
	step, err = m.AdvancePhase(s)
	require.NoError(t, err)
	s = step.State
	assert.Equal(t, []string{"card-2"}, tokenIDs(s.Zones["played"]))
	assert.Equal(t, "reset", s.CurrentPhase)
	assert.Equal(t, []bool{true, true}, s.TurnOrder.CardDriven.Eligible)
	assert.Equal(t, 1, s.TurnOrder.CardDriven.ConsecutiveCoupRounds)
	assert.Equal(t, 0, s.ActivePlayer)

	phaseList, err := m.EffectivePhases(s)
	require.NoError(t, err)
	assert.Equal(t, []string{"reset"}, phaseList)

	reason, err = m.Available(s, "op", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonWrongPhase, reason)

	// The final coup card ends the campaign.
	step, err = m.AdvancePhase(s)
	require.NoError(t, err)
	assert.Equal(t, []ir.BoundaryKind{ir.BoundaryCard, ir.BoundaryCoup, ir.BoundaryCampaign}, step.Boundaries)
	assert.Equal(t, []string{"card-0", "card-1", "card-2"}, tokenIDs(step.State.Zones["discard"]))
	assert.Equal(t, "ops", step.State.CurrentPhase)
	assert.Equal(t, 0, step.State.TurnOrder.CardDriven.ConsecutiveCoupRounds)
}

func TestCardDrivenSeatsMustMatchPlayers(t *testing.T) {
	tree := cardTree()
	tree.Metadata.MaxPlayers = 3
	_, err := NewGame(tree, 3, 1)
	assert.True(t, ir.IsRuntimeError(err, ir.ErrCodeInvalidRuleTree))
}

func TestDispatch(t *testing.T) {
	tree := &ir.RuleTree{
		Metadata: ir.Metadata{ID: "echo", MinPlayers: 1, MaxPlayers: 1},
		Globals:  []ir.VariableDef{{Name: "hits", Type: ir.VarTypeInt}},
		Phases:   phases("main"),
		Triggers: []ir.TriggerDef{{
			ID:      "count",
			On:      ir.EventMatcher{Kind: ir.EventTurnStarted},
			Effects: []ir.Effect{add("hits", 1)},
		}},
	}
	m := New(tree)
	state := newGame(t, m, 1)

	step, err := m.Dispatch(state, ir.TriggerEvent{Kind: ir.EventTurnStarted})
	require.NoError(t, err)
	assert.Equal(t, ir.Int(1), step.State.Globals["hits"])
	assert.Equal(t, []string{"count"}, firedIDs(step.Log))
	assert.Equal(t, 0, step.Log[0].Depth)
	assert.Equal(t, ir.Int(0), state.Globals["hits"], "input state is untouched")

	step, err = m.Dispatch(state, ir.TriggerEvent{Kind: ir.EventTurnEnded})
	require.NoError(t, err)
	assert.Same(t, state, step.State)
	assert.Empty(t, step.Log)
}

func TestStepDiagnosticsArePerCall(t *testing.T) {
	tree := &ir.RuleTree{
		Metadata: ir.Metadata{ID: "diag", MinPlayers: 1, MaxPlayers: 1},
		Zones:    []ir.ZoneDef{{ID: "pile"}},
		Phases:   phases("main"),
		Triggers: []ir.TriggerDef{{
			ID: "scan",
			On: ir.EventMatcher{Kind: ir.EventTurnStarted},
			Effects: []ir.Effect{
				ir.RollRandom{Bind: "$r", Min: lit(1), Max: lit(6)},
				ir.ForEach{Bind: "$t", Over: ir.TokensInZone{Zone: "pile"}},
			},
		}},
	}
	m := New(tree, WithTrace(true))
	state := newGame(t, m, 1)

	codes := func(step Step) []string {
		var out []string
		for _, e := range step.Diagnostics {
			out = append(out, e.Code)
		}
		return out
	}

	first, err := m.Dispatch(state, ir.TriggerEvent{Kind: ir.EventTurnStarted})
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLL", "FOR_EACH_EMPTY"}, codes(first))

	second, err := m.Dispatch(state, ir.TriggerEvent{Kind: ir.EventTurnStarted})
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLL", "FOR_EACH_EMPTY"}, codes(second), "a second call does not see the first call's entries")

	quiet, err := New(tree).Dispatch(state, ir.TriggerEvent{Kind: ir.EventTurnStarted})
	require.NoError(t, err)
	assert.Equal(t, []string{"FOR_EACH_EMPTY"}, codes(quiet), "traces are off by default")
}
