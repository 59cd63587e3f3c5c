package store

import (
	"errors"

	"github.com/roach88/rulekernel/internal/ir"
)

// ErrNotFound is returned when a run or step does not exist.
var ErrNotFound = errors.New("not found")

// Run is the header of one recorded game: everything needed to rebuild its
// initial state.
type Run struct {
	ID            string
	GameID        string
	RulesDigest   string
	RulesName     string // file name the rules were compiled from, used to pick the format
	RulesSource   []byte // nil when the rules were not embedded
	Players       int
	Seed          uint64
	EngineVersion string
	StateVersion  string
	InitialState  *ir.GameState
	InitialDigest string
}

// Step is one recorded operation of a run with its outcome.
//
// Input is the canonical JSON of the operation. A step that failed keeps
// the state it was applied to and records the error code.
type Step struct {
	RunID       string
	Seq         int64
	Kind        string
	Input       string
	State       *ir.GameState
	StateDigest string
	TraceDigest string
	ErrorCode   string
	Trace       []ir.TriggerLogEntry
}

// TraceEntry is a trace log entry located in its run.
type TraceEntry struct {
	RunID   string
	StepSeq int64
	Index   int
	Entry   ir.TriggerLogEntry
}
