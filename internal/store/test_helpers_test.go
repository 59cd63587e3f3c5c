package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rulekernel/internal/ir"
	"github.com/roach88/rulekernel/internal/turnflow"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testTree() *ir.RuleTree {
	return &ir.RuleTree{
		Metadata: ir.Metadata{ID: "tally", MinPlayers: 2, MaxPlayers: 2},
		Globals:  []ir.VariableDef{{Name: "score", Type: ir.VarTypeInt}},
		Zones:    []ir.ZoneDef{{ID: "board"}},
		Phases:   []ir.PhaseDef{{ID: "main"}},
	}
}

func testState(t *testing.T) *ir.GameState {
	t.Helper()
	state, err := turnflow.NewGame(testTree(), 2, 7)
	require.NoError(t, err)
	return state
}

// createTestRun writes a run with the test tree's initial state.
func createTestRun(t *testing.T, s *Store, id string) Run {
	t.Helper()
	state := testState(t)
	run := Run{
		ID:            id,
		GameID:        "tally",
		RulesDigest:   "rules-digest",
		RulesName:     "tally.yaml",
		RulesSource:   []byte("metadata: {id: tally}\n"),
		Players:       2,
		Seed:          7,
		EngineVersion: ir.EngineVersion,
		StateVersion:  ir.StateVersion,
		InitialState:  state,
		InitialDigest: ir.MustStateDigest(state),
	}
	require.NoError(t, s.WriteRun(t.Context(), run))
	return run
}

// createTestStep builds a step whose state has score set to seq.
func createTestStep(t *testing.T, runID string, seq int64, trace ...ir.TriggerLogEntry) Step {
	t.Helper()
	state := testState(t).WithGlobal("score", ir.Int(seq))
	traceDigest, err := ir.TraceDigest(trace)
	require.NoError(t, err)
	return Step{
		RunID:       runID,
		Seq:         seq,
		Kind:        "advance",
		Input:       `{"kind":"advance"}`,
		State:       state,
		StateDigest: ir.MustStateDigest(state),
		TraceDigest: traceDigest,
		Trace:       trace,
	}
}
