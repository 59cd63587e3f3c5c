package store

import (
	"context"
	"fmt"
)

// RunState is a recorded run loaded for replay or inspection.
type RunState struct {
	Run   Run
	Steps []Step

	LastSeq int64

	// Failed counts steps that recorded an error code.
	Failed int

	// FinalDigest is the state digest after the last step, or the initial
	// digest for a run without steps.
	FinalDigest string
}

// GetRunState loads a run with all its steps in seq order.
func (s *Store) GetRunState(ctx context.Context, runID string) (RunState, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return RunState{}, fmt.Errorf("get run state: %w", err)
	}

	steps, err := s.ReadSteps(ctx, runID)
	if err != nil {
		return RunState{}, fmt.Errorf("get run state: %w", err)
	}

	state := RunState{Run: run, Steps: steps, FinalDigest: run.InitialDigest}
	for _, step := range steps {
		if step.ErrorCode != "" {
			state.Failed++
		}
		state.LastSeq = step.Seq
		state.FinalDigest = step.StateDigest
	}
	return state, nil
}
