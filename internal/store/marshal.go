package store

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/roach88/rulekernel/internal/ir"
)

// marshalState converts a GameState to JSON for the snapshot columns.
// Snapshots are compared by digest, never by bytes, so plain encoding/json
// is enough here.
func marshalState(state *ir.GameState) ([]byte, error) {
	if state == nil {
		return nil, fmt.Errorf("marshal state: nil state")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return data, nil
}

func unmarshalState(data []byte) (*ir.GameState, error) {
	var state ir.GameState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &state, nil
}

// marshalEvent converts a TriggerEvent to canonical JSON TEXT so trace rows
// compare byte for byte across runs.
func marshalEvent(e ir.TriggerEvent) (string, error) {
	data, err := ir.MarshalCanonical(e)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	return string(data), nil
}

func unmarshalEvent(data string) (ir.TriggerEvent, error) {
	var e ir.TriggerEvent
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return ir.TriggerEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return e, nil
}

// Seeds are stored as decimal text: SQLite integers are signed.
func formatSeed(seed uint64) string {
	return strconv.FormatUint(seed, 10)
}

func parseSeed(s string) (uint64, error) {
	seed, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse seed %q: %w", s, err)
	}
	return seed, nil
}
