package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulekernel/internal/ir"
)

func TestReadRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	want := createTestRun(t, s, "run-1")

	got, err := s.ReadRun(t.Context(), "run-1")
	require.NoError(t, err)

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.RulesDigest, got.RulesDigest)
	assert.Equal(t, want.RulesName, got.RulesName)
	assert.Equal(t, want.RulesSource, got.RulesSource)
	assert.Equal(t, 2, got.Players)
	assert.Equal(t, uint64(7), got.Seed)
	assert.Equal(t, want.InitialDigest, ir.MustStateDigest(got.InitialState),
		"snapshot must decode to a state with the recorded digest")
}

func TestReadRun_LargeSeed(t *testing.T) {
	s := createTestStore(t)
	run := createTestRun(t, s, "run-1")
	run.ID = "run-2"
	run.Seed = ^uint64(0)
	require.NoError(t, s.WriteRun(t.Context(), run))

	got, err := s.ReadRun(t.Context(), "run-2")
	require.NoError(t, err)
	assert.Equal(t, ^uint64(0), got.Seed)
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadRun(t.Context(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRuns(t *testing.T) {
	s := createTestStore(t)

	runs, err := s.ListRuns(t.Context())
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)

	createTestRun(t, s, "b")
	createTestRun(t, s, "a")

	runs, err = s.ListRuns(t.Context())
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "a", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
}

func TestReadSteps_OrderAndTrace(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1")

	fired := func(id string) ir.TriggerLogEntry {
		return ir.TriggerLogEntry{Kind: ir.LogFired, TriggerID: id, Event: ir.TriggerEvent{Kind: ir.EventTurnStarted}}
	}
	require.NoError(t, s.AppendStep(t.Context(), createTestStep(t, "run-1", 1, fired("a"), fired("b"))))
	require.NoError(t, s.AppendStep(t.Context(), createTestStep(t, "run-1", 3)))
	require.NoError(t, s.AppendStep(t.Context(), createTestStep(t, "run-1", 7, fired("c"))))

	steps, err := s.ReadSteps(t.Context(), "run-1")
	require.NoError(t, err)
	require.Len(t, steps, 3)

	assert.Equal(t, []int64{1, 3, 7}, []int64{steps[0].Seq, steps[1].Seq, steps[2].Seq})
	require.Len(t, steps[0].Trace, 2)
	assert.Equal(t, "a", steps[0].Trace[0].TriggerID)
	assert.Equal(t, "b", steps[0].Trace[1].TriggerID)
	assert.Empty(t, steps[1].Trace)
	assert.Equal(t, ir.Int(7), steps[2].State.Globals["score"])
	assert.Equal(t, steps[2].StateDigest, ir.MustStateDigest(steps[2].State))

	traceDigest, err := ir.TraceDigest(steps[0].Trace)
	require.NoError(t, err)
	assert.Equal(t, steps[0].TraceDigest, traceDigest, "stored trace must hash to the recorded digest")
}

func TestReadSteps_Empty(t *testing.T) {
	s := createTestStore(t)
	steps, err := s.ReadSteps(t.Context(), "none")
	require.NoError(t, err)
	assert.NotNil(t, steps)
	assert.Empty(t, steps)
}

func TestReadStep(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1")

	step := createTestStep(t, "run-1", 1, ir.TriggerLogEntry{
		Kind:      ir.LogFired,
		TriggerID: "gain",
		Event:     ir.TriggerEvent{Kind: ir.EventActionResolved, Action: "play", Player: ir.PlayerRef(1)},
		Depth:     0,
	})
	step.ErrorCode = "ACTION_NOT_AVAILABLE"
	require.NoError(t, s.AppendStep(t.Context(), step))

	got, err := s.ReadStep(t.Context(), "run-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "ACTION_NOT_AVAILABLE", got.ErrorCode)
	require.Len(t, got.Trace, 1)
	require.NotNil(t, got.Trace[0].Event.Player)
	assert.Equal(t, 1, *got.Trace[0].Event.Player)

	_, err = s.ReadStep(t.Context(), "run-1", 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadTrace_FilterByTrigger(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1")

	entry := func(id string, depth int) ir.TriggerLogEntry {
		return ir.TriggerLogEntry{Kind: ir.LogFired, TriggerID: id, Depth: depth, Event: ir.TriggerEvent{Kind: ir.EventPhaseEntered, Phase: "main"}}
	}
	require.NoError(t, s.AppendStep(t.Context(), createTestStep(t, "run-1", 1, entry("x", 0), entry("y", 1))))
	require.NoError(t, s.AppendStep(t.Context(), createTestStep(t, "run-1", 2, entry("x", 0))))

	all, err := s.ReadTrace(t.Context(), "run-1", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(2), all[2].StepSeq)

	xs, err := s.ReadTrace(t.Context(), "run-1", "x")
	require.NoError(t, err)
	require.Len(t, xs, 2)
	assert.Equal(t, int64(1), xs[0].StepSeq)
	assert.Equal(t, int64(2), xs[1].StepSeq)
	assert.Equal(t, "main", xs[0].Entry.Event.Phase)
}

func TestGetRunState(t *testing.T) {
	s := createTestStore(t)
	run := createTestRun(t, s, "run-1")

	state, err := s.GetRunState(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.InitialDigest, state.FinalDigest)
	assert.Zero(t, state.LastSeq)

	failed := createTestStep(t, "run-1", 1)
	failed.ErrorCode = "UNKNOWN_ACTION"
	require.NoError(t, s.AppendStep(t.Context(), failed))
	last := createTestStep(t, "run-1", 2)
	require.NoError(t, s.AppendStep(t.Context(), last))

	state, err = s.GetRunState(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), state.LastSeq)
	assert.Equal(t, 1, state.Failed)
	assert.Equal(t, last.StateDigest, state.FinalDigest)
	assert.Len(t, state.Steps, 2)

	_, err = s.GetRunState(t.Context(), "other")
	assert.ErrorIs(t, err, ErrNotFound)
}
