package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulekernel/internal/store"
)

func TestReplayCommand_Deterministic(t *testing.T) {
	dbPath := recordRun(t)

	out, err := execute(t, NewReplayCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Replaying 1 run(s)...")
	assert.Contains(t, out, "✓ r1 (tally): 4/4 steps verified")
	assert.Contains(t, out, "All runs deterministic ✓")
}

func TestReplayCommand_JSONWithRules(t *testing.T) {
	dbPath := recordRun(t)

	out, err := execute(t, NewReplayCommand(&RootOptions{Format: "json"}),
		"--db", dbPath, "--run", "r1", "--rules", "testdata/tally.yaml")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Runs, 1)
	run := resp.Data.Runs[0]
	assert.True(t, run.Deterministic)
	assert.Equal(t, 4, run.Steps)
	assert.Equal(t, 4, run.Verified)
	assert.True(t, resp.Data.AllDeterministic)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	rs, err := st.GetRunState(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, rs.FinalDigest, run.FinalDigest)
}

func TestReplayCommand_TamperedRun(t *testing.T) {
	dbPath := recordRun(t)

	// The sqlite3 driver is registered by the store package.
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE steps SET state_digest = 'tampered' WHERE run_id = 'r1' AND seq = 2`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out, err := execute(t, NewReplayCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ r1 (tally): diverged at step 2")
	assert.Contains(t, out, `state_digest recorded "tampered"`)
	assert.Contains(t, out, "Determinism verification FAILED ✗")
}

func TestReplayCommand_RulesMismatch(t *testing.T) {
	dbPath := recordRun(t)

	out, err := execute(t, NewReplayCommand(&RootOptions{Format: "text"}),
		"--db", dbPath, "--rules", "testdata/heat.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ r1: ")
}

func TestReplayCommand_EmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")

	out, err := execute(t, NewReplayCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs found in database.")
}

func TestReplayCommand_UnknownRun(t *testing.T) {
	dbPath := recordRun(t)

	out, err := execute(t, NewReplayCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--run", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "run not found: nope")
}
