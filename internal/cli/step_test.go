package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulekernel/internal/store"
)

func TestStepCommand_AppendsToRun(t *testing.T) {
	dbPath := recordRun(t)

	// The recorded run ends in draw; the next decision point is player 1's main phase.
	out, err := execute(t, NewStepCommand(&RootOptions{Format: "text"}),
		"testdata/tally.yaml", "--db", dbPath, "--run", "r1", "--do", "advance_to_decision")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ r1 step 5: advance_to_decision")
	assert.Contains(t, out, "Phase main")

	out, err = execute(t, NewStepCommand(&RootOptions{Format: "json"}),
		"testdata/tally.yaml", "--db", dbPath, "--run", "r1", "--do", "move", "--action", "play", "--actor", "1")
	require.NoError(t, err)

	var resp struct {
		Data StepSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, int64(6), resp.Data.Seq)
	assert.Equal(t, []string{"count-plays"}, resp.Data.Fired)
	assert.Empty(t, resp.Data.ErrorCode)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	last, err := st.LastSeq(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), last)
}

func TestStepCommand_RejectedStepIsRecorded(t *testing.T) {
	dbPath := recordRun(t)

	// Player 0 is not active in the draw phase.
	out, err := execute(t, NewStepCommand(&RootOptions{Format: "text"}),
		"testdata/tally.yaml", "--db", dbPath, "--run", "r1", "--do", "move", "--action", "play", "--actor", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "✗ r1 step 5 rejected: ACTION_NOT_AVAILABLE")
}

func TestStepCommand_Dispatch(t *testing.T) {
	dbPath := recordRun(t)

	out, err := execute(t, NewStepCommand(&RootOptions{Format: "text"}),
		"testdata/tally.yaml", "--db", dbPath, "--run", "r1", "--do", "dispatch",
		"--event", `{"kind": "actionResolved", "action": "play"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "fired count-plays")
}

func TestStepCommand_Errors(t *testing.T) {
	dbPath := recordRun(t)

	tests := []struct {
		name  string
		rules string
		args  []string
		code  string
	}{
		{"unknown run", "testdata/tally.yaml", []string{"--run", "nope", "--do", "advance"}, ErrCodeNotFound},
		{"bad params", "testdata/tally.yaml", []string{"--run", "r1", "--do", "move", "--action", "play", "--params", "{"}, ErrCodeInvalidInput},
		{"unknown step", "testdata/tally.yaml", []string{"--run", "r1", "--do", "jump"}, ErrCodeInvalidInput},
		{"other rules", "testdata/heat.yaml", []string{"--run", "r1", "--do", "advance"}, ErrCodeRulesMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{tt.rules, "--db", dbPath}, tt.args...)
			out, err := execute(t, NewStepCommand(&RootOptions{Format: "text"}), args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error ["+tt.code+"]")
		})
	}
}

func TestStepCommand_NoDatabase(t *testing.T) {
	out, err := execute(t, NewStepCommand(&RootOptions{Format: "text"}),
		"testdata/tally.yaml", "--run", "r1", "--do", "advance")
	require.Error(t, err)
	assert.Contains(t, out, "no database")
}
