// Package engine runs games of one rule tree as recorded sessions.
//
// An Engine wraps a turnflow.Machine. Start initializes a game and opens a
// Session; every Execute call applies one step (advance, advance to
// decision, move or dispatch) with the pure core and, when a Recorder is
// configured, appends it to the run log together with the resulting state
// snapshot and its state and trace digests.
//
// Steps are numbered by a logical Clock, never by wall-clock time. A session
// is single-writer: Execute serializes callers, and Submit/Run feed the same
// path through a FIFO queue for drivers that collect moves concurrently.
//
// Replay re-executes a recorded run from its seed and reports the first step
// whose error code, state digest or trace digest differs from the record.
package engine
