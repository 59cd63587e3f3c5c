package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/rulekernel/internal/ir"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const runColumns = `id, game_id, rules_digest, rules_name, rules_source, players, seed,
	engine_version, state_version, initial_state, initial_digest`

const stepColumns = `run_id, seq, kind, input, state, state_digest, trace_digest, error_code`

// ReadRun retrieves a run header by id.
// Returns an error wrapping ErrNotFound if the run does not exist.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// ListRuns returns every run header ordered by id.
// Returns an empty slice (not nil) for an empty store.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadSteps returns every step of a run ordered by seq, each with its trace.
// Returns an empty slice (not nil) if the run has no steps.
func (s *Store) ReadSteps(ctx context.Context, runID string) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+stepColumns+`
		FROM steps
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	steps := []Step{}
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	// Close before the trace queries: the store runs on a single connection.
	rows.Close()

	traces, err := s.readTraceEntries(ctx, runID)
	if err != nil {
		return nil, err
	}
	for _, te := range traces {
		for i := range steps {
			if steps[i].Seq == te.StepSeq {
				steps[i].Trace = append(steps[i].Trace, te.Entry)
				break
			}
		}
	}
	return steps, nil
}

// ReadStep retrieves one step with its trace.
// Returns an error wrapping ErrNotFound if the step does not exist.
func (s *Store) ReadStep(ctx context.Context, runID string, seq int64) (Step, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+stepColumns+`
		FROM steps
		WHERE run_id = ? AND seq = ?
	`, runID, seq)
	step, err := scanStep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Step{}, fmt.Errorf("read step %s/%d: %w", runID, seq, ErrNotFound)
	}
	if err != nil {
		return Step{}, err
	}

	entries, err := s.queryTrace(ctx, `
		SELECT run_id, step_seq, idx, kind, trigger_id, depth, event
		FROM trace_entries
		WHERE run_id = ? AND step_seq = ?
		ORDER BY idx ASC
	`, runID, seq)
	if err != nil {
		return Step{}, err
	}
	for _, te := range entries {
		step.Trace = append(step.Trace, te.Entry)
	}
	return step, nil
}

// LastSeq returns the highest step seq of a run, or 0 for a run without
// steps.
func (s *Store) LastSeq(ctx context.Context, runID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM steps WHERE run_id = ?
	`, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

// ReadTrace returns the trace of a run in execution order. A non-empty
// triggerID keeps only entries of that trigger.
func (s *Store) ReadTrace(ctx context.Context, runID, triggerID string) ([]TraceEntry, error) {
	if triggerID == "" {
		return s.readTraceEntries(ctx, runID)
	}
	return s.queryTrace(ctx, `
		SELECT run_id, step_seq, idx, kind, trigger_id, depth, event
		FROM trace_entries
		WHERE run_id = ? AND trigger_id = ?
		ORDER BY step_seq ASC, idx ASC
	`, runID, triggerID)
}

func (s *Store) readTraceEntries(ctx context.Context, runID string) ([]TraceEntry, error) {
	return s.queryTrace(ctx, `
		SELECT run_id, step_seq, idx, kind, trigger_id, depth, event
		FROM trace_entries
		WHERE run_id = ?
		ORDER BY step_seq ASC, idx ASC
	`, runID)
}

func (s *Store) queryTrace(ctx context.Context, query string, args ...any) ([]TraceEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trace: %w", err)
	}
	defer rows.Close()

	entries := []TraceEntry{}
	for rows.Next() {
		te, err := scanTraceEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, te)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trace: %w", err)
	}
	return entries, nil
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var seed string
	var stateJSON []byte

	if err := row.Scan(
		&run.ID, &run.GameID, &run.RulesDigest, &run.RulesName, &run.RulesSource,
		&run.Players, &seed, &run.EngineVersion, &run.StateVersion,
		&stateJSON, &run.InitialDigest,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	var err error
	if run.Seed, err = parseSeed(seed); err != nil {
		return Run{}, err
	}
	if run.InitialState, err = unmarshalState(stateJSON); err != nil {
		return Run{}, err
	}
	return run, nil
}

func scanStep(row rowScanner) (Step, error) {
	var step Step
	var stateJSON []byte

	if err := row.Scan(
		&step.RunID, &step.Seq, &step.Kind, &step.Input, &stateJSON,
		&step.StateDigest, &step.TraceDigest, &step.ErrorCode,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Step{}, err
		}
		return Step{}, fmt.Errorf("scan step: %w", err)
	}

	state, err := unmarshalState(stateJSON)
	if err != nil {
		return Step{}, err
	}
	step.State = state
	return step, nil
}

func scanTraceEntry(row rowScanner) (TraceEntry, error) {
	var te TraceEntry
	var kind, eventJSON string

	if err := row.Scan(
		&te.RunID, &te.StepSeq, &te.Index, &kind, &te.Entry.TriggerID,
		&te.Entry.Depth, &eventJSON,
	); err != nil {
		return TraceEntry{}, fmt.Errorf("scan trace entry: %w", err)
	}

	te.Entry.Kind = ir.TriggerLogKind(kind)
	event, err := unmarshalEvent(eventJSON)
	if err != nil {
		return TraceEntry{}, err
	}
	te.Entry.Event = event
	return te, nil
}
