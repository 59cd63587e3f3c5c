package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithHelpersCopyOnWrite(t *testing.T) {
	base := testState()
	baseDigest := MustStateDigest(base)

	_ = base.WithGlobal("score", Int(9))
	_ = base.WithPlayerVar(1, "vp", Int(5))
	_ = base.WithZoneVar("deck", "n", Int(1))
	_ = base.WithZone("deck", nil)
	_ = base.WithMarker("deck", "control", "red")
	_ = base.WithUsage("play", ActionUsage{Turn: 1})

	assert.Equal(t, baseDigest, MustStateDigest(base), "base state must be unchanged")
}

func TestWithPlayerVarIsolatesPlayers(t *testing.T) {
	base := testState()
	next := base.WithPlayerVar(0, "vp", Int(7))

	assert.Equal(t, Int(7), next.PerPlayer[0]["vp"])
	assert.Equal(t, Int(1), next.PerPlayer[1]["vp"])
	assert.Equal(t, Int(0), base.PerPlayer[0]["vp"])
}

func TestFindToken(t *testing.T) {
	s := testState().WithZone("hand", []Token{{ID: "c2"}, {ID: "c3"}})

	zone, idx, ok := s.FindToken("c3")
	require.True(t, ok)
	assert.Equal(t, "hand", zone)
	assert.Equal(t, 1, idx)

	_, _, ok = s.FindToken("missing")
	assert.False(t, ok)
}

func TestResetUsage(t *testing.T) {
	s := testState().WithUsage("play", ActionUsage{Turn: 2, Phase: 1, Game: 5})

	phaseReset := s.ResetUsage(false, true)
	assert.Equal(t, ActionUsage{Turn: 2, Phase: 0, Game: 5}, phaseReset.ActionUsage["play"])

	turnReset := s.ResetUsage(true, true)
	assert.Equal(t, ActionUsage{Turn: 0, Phase: 0, Game: 5}, turnReset.ActionUsage["play"])
	assert.Equal(t, 2, s.ActionUsage["play"].Turn)
}

func TestTurnOrderCloneIsDeep(t *testing.T) {
	orig := TurnOrderState{
		Strategy: StrategyCardDriven,
		CardDriven: &CardDrivenState{
			Eligible:    []bool{true, true},
			CurrentCard: CardProgress{ActedSeats: []int{0}},
		},
	}
	c := orig.Clone()
	c.CardDriven.Eligible[0] = false
	c.CardDriven.CurrentCard.ActedSeats[0] = 1

	assert.True(t, orig.CardDriven.Eligible[0])
	assert.Equal(t, []int{0}, orig.CardDriven.CurrentCard.ActedSeats)
}

func TestEventMatcher(t *testing.T) {
	m := EventMatcher{Kind: EventTokenEntered, Zone: "B"}

	assert.True(t, m.Matches(TriggerEvent{Kind: EventTokenEntered, Zone: "B", Token: "t1"}))
	assert.False(t, m.Matches(TriggerEvent{Kind: EventTokenEntered, Zone: "C"}))
	assert.False(t, m.Matches(TriggerEvent{Kind: EventVarChanged, Zone: "B"}))
}

func TestEventBindings(t *testing.T) {
	e := TriggerEvent{Kind: EventActionResolved, Action: "play", Player: PlayerRef(1)}
	b := e.Bindings()

	assert.Equal(t, Str("actionResolved"), b["$event.kind"])
	assert.Equal(t, Str("play"), b["$event.action"])
	assert.Equal(t, Int(1), b["$event.player"])
	_, hasZone := b["$event.zone"]
	assert.False(t, hasZone)
}

func TestCollectorNilSafe(t *testing.T) {
	var c *Collector
	c.Warn("X", "ignored")
	c.Trace("Y", "ignored")
	assert.Nil(t, c.Warnings())

	live := &Collector{}
	live.Trace("T", "dropped when tracing is off")
	live.Warn("W", "kept", "k", "v")
	require.Len(t, live.Entries, 1)
	assert.Equal(t, EntryWarning, live.Entries[0].Kind)
	assert.Equal(t, map[string]string{"k": "v"}, live.Entries[0].Context)
}

func TestRuntimeErrorHelpers(t *testing.T) {
	err := NewRuntimeError(ErrCodeStallLoopDetected, "no decision point", "advances", "5")

	assert.True(t, IsRuntimeError(err, ErrCodeStallLoopDetected))
	assert.False(t, IsRuntimeError(err, ErrCodeEmptyPhaseList))
	assert.Equal(t, ErrCodeStallLoopDetected, RuntimeCode(err))
	assert.Equal(t, "STALL_LOOP_DETECTED: no decision point (advances=5)", err.Error())
}
