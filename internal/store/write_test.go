package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulekernel/internal/ir"
)

func TestWriteRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	run := createTestRun(t, s, "run-1")

	changed := run
	changed.GameID = "other"
	require.NoError(t, s.WriteRun(t.Context(), changed))

	got, err := s.ReadRun(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "tally", got.GameID, "second write must be ignored")
}

func TestWriteRun_RequiresState(t *testing.T) {
	s := createTestStore(t)
	err := s.WriteRun(t.Context(), Run{ID: "run-1", GameID: "g", Players: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil state")
}

func TestAppendStep_WithTrace(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1")

	trace := []ir.TriggerLogEntry{
		{Kind: ir.LogFired, TriggerID: "score", Event: ir.TriggerEvent{Kind: ir.EventTurnStarted}},
		{Kind: ir.LogTruncated, Event: ir.TriggerEvent{Kind: ir.EventVarChanged, Var: "score", Scope: ir.ScopeGlobal}, Depth: 9},
	}
	require.NoError(t, s.AppendStep(t.Context(), createTestStep(t, "run-1", 1, trace...)))

	var count int
	require.NoError(t, s.db.QueryRow(
		"SELECT COUNT(*) FROM trace_entries WHERE run_id = ? AND step_seq = 1", "run-1",
	).Scan(&count))
	assert.Equal(t, 2, count)

	var event string
	require.NoError(t, s.db.QueryRow(
		"SELECT event FROM trace_entries WHERE run_id = ? AND idx = 1", "run-1",
	).Scan(&event))
	assert.Equal(t, `{"kind":"varChanged","scope":"global","var":"score"}`, event)
}

func TestAppendStep_SeqMustIncrease(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1")

	require.NoError(t, s.AppendStep(t.Context(), createTestStep(t, "run-1", 2)))

	err := s.AppendStep(t.Context(), createTestStep(t, "run-1", 2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seq 2 is not after 2")

	err = s.AppendStep(t.Context(), createTestStep(t, "run-1", 1))
	require.Error(t, err)

	last, err := s.LastSeq(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), last)
}

func TestAppendStep_ForeignKeyViolation(t *testing.T) {
	s := createTestStore(t)
	err := s.AppendStep(t.Context(), createTestStep(t, "missing", 1))
	assert.Error(t, err, "a step needs its run")
}

func TestAppendStep_RequiresState(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1")

	step := createTestStep(t, "run-1", 1)
	step.State = nil
	require.Error(t, s.AppendStep(t.Context(), step))

	last, err := s.LastSeq(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)
}

func TestDeleteRun_Cascades(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1")
	require.NoError(t, s.AppendStep(t.Context(), createTestStep(t, "run-1", 1,
		ir.TriggerLogEntry{Kind: ir.LogFired, TriggerID: "t", Event: ir.TriggerEvent{Kind: ir.EventTurnEnded}})))

	require.NoError(t, s.DeleteRun(t.Context(), "run-1"))

	for _, table := range []string{"runs", "steps", "trace_entries"} {
		var count int
		require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&count))
		assert.Zero(t, count, table)
	}

	assert.ErrorIs(t, s.DeleteRun(t.Context(), "run-1"), ErrNotFound)
}
