package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/rulekernel/internal/ir"
	"github.com/roach88/rulekernel/internal/store"
)

// RunSource loads recorded runs. Implemented by *store.Store.
type RunSource interface {
	GetRunState(ctx context.Context, runID string) (store.RunState, error)
}

// Divergence locates the first point where a replay disagrees with the
// recording.
type Divergence struct {
	// Seq is the divergent step, or 0 when the initial state differs.
	Seq int64 `json:"seq"`

	// Field is one of initial_digest, error_code, state_digest, trace_digest.
	Field    string `json:"field"`
	Recorded string `json:"recorded"`
	Replayed string `json:"replayed"`
}

// ReplayReport is the outcome of re-executing a recorded run.
type ReplayReport struct {
	RunID       string      `json:"run_id"`
	Steps       int         `json:"steps"`
	Verified    int         `json:"verified"`
	FinalDigest string      `json:"final_digest"`
	Divergence  *Divergence `json:"divergence,omitempty"`
}

// OK reports whether every step reproduced its recorded outcome.
func (r *ReplayReport) OK() bool {
	return r.Divergence == nil
}

// Replay re-executes a recorded run from its seed and compares every step
// with the recording. It stops at the first divergence.
//
// Replay needs no special mode: the same pure operations that produced the
// recording run again, so any difference means the rule tree, the engine or
// the stored data changed.
func (e *Engine) Replay(ctx context.Context, src RunSource, runID string) (*ReplayReport, error) {
	rs, err := src.GetRunState(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", runID, err)
	}
	if current := e.machine.Tree().Digest; rs.Run.RulesDigest != current {
		return nil, &RulesMismatchError{RunID: runID, Recorded: rs.Run.RulesDigest, Current: current}
	}

	report := &ReplayReport{RunID: runID, Steps: len(rs.Steps)}
	state, err := e.machine.NewGame(rs.Run.Players, rs.Run.Seed)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", runID, err)
	}
	digest, err := ir.StateDigest(state)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", runID, err)
	}
	report.FinalDigest = digest
	if digest != rs.Run.InitialDigest {
		report.Divergence = &Divergence{Field: "initial_digest", Recorded: rs.Run.InitialDigest, Replayed: digest}
		return report, nil
	}

	for _, rec := range rs.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		in, err := ParseStepInput(rec.Input)
		if err != nil {
			return nil, fmt.Errorf("replay %s step %d: %w", runID, rec.Seq, err)
		}

		step, stepErr := e.apply(state, in)
		if code := ErrorCode(stepErr); code != rec.ErrorCode {
			report.Divergence = &Divergence{Seq: rec.Seq, Field: "error_code", Recorded: rec.ErrorCode, Replayed: code}
			return report, nil
		}
		if stepErr != nil {
			report.Verified++
			continue
		}

		stateDigest, err := ir.StateDigest(step.State)
		if err != nil {
			return nil, fmt.Errorf("replay %s step %d: %w", runID, rec.Seq, err)
		}
		if stateDigest != rec.StateDigest {
			report.Divergence = &Divergence{Seq: rec.Seq, Field: "state_digest", Recorded: rec.StateDigest, Replayed: stateDigest}
			return report, nil
		}
		traceDigest, err := ir.TraceDigest(step.Log)
		if err != nil {
			return nil, fmt.Errorf("replay %s step %d: %w", runID, rec.Seq, err)
		}
		if traceDigest != rec.TraceDigest {
			report.Divergence = &Divergence{Seq: rec.Seq, Field: "trace_digest", Recorded: rec.TraceDigest, Replayed: traceDigest}
			return report, nil
		}

		state = step.State
		report.FinalDigest = stateDigest
		report.Verified++
	}

	e.logger.Info("replay verified",
		zap.String("run", runID),
		zap.Int("steps", report.Verified),
		zap.String("final_digest", report.FinalDigest),
	)
	return report, nil
}
