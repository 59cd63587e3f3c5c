package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulekernel/internal/ir"
	"github.com/roach88/rulekernel/internal/store"
	"github.com/roach88/rulekernel/internal/testutil"
	"github.com/roach88/rulekernel/internal/turnflow"
)

// tamperedSource serves a recorded run after edit changes it.
type tamperedSource struct {
	src  RunSource
	edit func(rs *store.RunState)
}

func (s tamperedSource) GetRunState(ctx context.Context, runID string) (store.RunState, error) {
	rs, err := s.src.GetRunState(ctx, runID)
	if err != nil {
		return rs, err
	}
	s.edit(&rs)
	return rs, nil
}

func TestReplay_Verifies(t *testing.T) {
	st := testutil.OpenStore(t)
	e := newTestEngine(t, st)
	s := playRun(t, e)

	report, err := e.Replay(t.Context(), st, "run-1")
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 4, report.Steps)
	assert.Equal(t, 4, report.Verified)
	assert.Equal(t, ir.MustStateDigest(s.State()), report.FinalDigest)
}

func TestReplay_IsRepeatable(t *testing.T) {
	st := testutil.OpenStore(t)
	e := newTestEngine(t, st)
	playRun(t, e)

	first, err := e.Replay(t.Context(), st, "run-1")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := e.Replay(t.Context(), st, "run-1")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestReplay_FirstDivergence(t *testing.T) {
	st := testutil.OpenStore(t)
	e := newTestEngine(t, st)
	playRun(t, e)

	tests := []struct {
		name      string
		edit      func(rs *store.RunState)
		wantSeq   int64
		wantField string
	}{
		{
			name:      "initial state",
			edit:      func(rs *store.RunState) { rs.Run.InitialDigest = "bogus" },
			wantSeq:   0,
			wantField: "initial_digest",
		},
		{
			name: "state digest",
			edit: func(rs *store.RunState) {
				rs.Steps[1].StateDigest = "bogus"
				rs.Steps[3].StateDigest = "also bogus"
			},
			wantSeq:   2,
			wantField: "state_digest",
		},
		{
			name:      "trace digest",
			edit:      func(rs *store.RunState) { rs.Steps[1].TraceDigest = "bogus" },
			wantSeq:   2,
			wantField: "trace_digest",
		},
		{
			name:      "missing error",
			edit:      func(rs *store.RunState) { rs.Steps[2].ErrorCode = "" },
			wantSeq:   3,
			wantField: "error_code",
		},
		{
			name: "different move",
			edit: func(rs *store.RunState) {
				rs.Steps[1].Input = `{"kind":"move","move":{"action":"pass","actor":0}}`
			},
			wantSeq:   2,
			wantField: "state_digest",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := e.Replay(t.Context(), tamperedSource{src: st, edit: tt.edit}, "run-1")
			require.NoError(t, err)
			require.False(t, report.OK())
			assert.Equal(t, tt.wantSeq, report.Divergence.Seq)
			assert.Equal(t, tt.wantField, report.Divergence.Field)
		})
	}
}

func TestReplay_Errors(t *testing.T) {
	st := testutil.OpenStore(t)
	e := newTestEngine(t, st)
	playRun(t, e)

	_, err := e.Replay(t.Context(), st, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	other := New(turnflow.New(&ir.RuleTree{Digest: "other", Phases: []ir.PhaseDef{{ID: "main"}}}))
	_, err = other.Replay(t.Context(), st, "run-1")
	assert.True(t, IsRulesMismatch(err))

	_, err = e.Replay(t.Context(), tamperedSource{src: st, edit: func(rs *store.RunState) {
		rs.Steps[0].Input = `{"kind":"teleport"}`
	}}, "run-1")
	assert.ErrorContains(t, err, `unknown step kind "teleport"`)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = e.Replay(ctx, st, "run-1")
	assert.ErrorIs(t, err, context.Canceled)
}
