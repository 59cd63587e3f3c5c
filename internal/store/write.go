package store

import (
	"context"
	"fmt"
)

// WriteRun inserts a run header.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - writing the same run id
// twice is silently ignored.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	stateJSON, err := marshalState(run.InitialState)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, game_id, rules_digest, rules_name, rules_source, players, seed,
		 engine_version, state_version, initial_state, initial_digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.GameID,
		run.RulesDigest,
		run.RulesName,
		run.RulesSource,
		run.Players,
		formatSeed(run.Seed),
		run.EngineVersion,
		run.StateVersion,
		stateJSON,
		run.InitialDigest,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// AppendStep writes a step and its trace entries in one transaction.
//
// Steps are append-only: seq must be greater than every seq already stored
// for the run, so a recorded run can never be rewritten. The run must exist
// (foreign key constraint).
func (s *Store) AppendStep(ctx context.Context, step Step) error {
	stateJSON, err := marshalState(step.State)
	if err != nil {
		return fmt.Errorf("append step: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append step: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var last int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM steps WHERE run_id = ?
	`, step.RunID).Scan(&last)
	if err != nil {
		return fmt.Errorf("append step: last seq: %w", err)
	}
	if step.Seq <= last {
		return fmt.Errorf("append step: seq %d is not after %d in run %s", step.Seq, last, step.RunID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO steps
		(run_id, seq, kind, input, state, state_digest, trace_digest, error_code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		step.RunID,
		step.Seq,
		step.Kind,
		step.Input,
		stateJSON,
		step.StateDigest,
		step.TraceDigest,
		step.ErrorCode,
	)
	if err != nil {
		return fmt.Errorf("append step: insert: %w", err)
	}

	for i, entry := range step.Trace {
		eventJSON, err := marshalEvent(entry.Event)
		if err != nil {
			return fmt.Errorf("append step: trace %d: %w", i, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO trace_entries
			(run_id, step_seq, idx, kind, trigger_id, depth, event)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			step.RunID,
			step.Seq,
			i,
			string(entry.Kind),
			entry.TriggerID,
			entry.Depth,
			eventJSON,
		)
		if err != nil {
			return fmt.Errorf("append step: trace %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append step: commit: %w", err)
	}
	return nil
}

// DeleteRun removes a run with its steps and trace entries.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete run %s: %w", id, ErrNotFound)
	}
	return nil
}
