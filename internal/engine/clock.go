package engine

import "sync/atomic"

// Clock numbers the steps of a session. A step takes the seq returned by
// Peek and only advances the clock with Commit once it has been recorded,
// so a step that fails to record leaves no gap in the run.
//
// Seqs are logical; wall-clock time never orders steps.
type Clock struct {
	last atomic.Int64
}

// NewClock creates a clock for a new run. Its first step is seq 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming a run whose last step was last.
func NewClockAt(last int64) *Clock {
	c := &Clock{}
	c.last.Store(last)
	return c
}

// Peek returns the seq of the next step.
func (c *Clock) Peek() int64 {
	return c.last.Load() + 1
}

// Commit marks seq as taken. It reports false, leaving the clock unchanged,
// when seq is not the next step.
func (c *Clock) Commit(seq int64) bool {
	return c.last.CompareAndSwap(seq-1, seq)
}

// Last returns the seq of the last committed step, or 0.
func (c *Clock) Last() int64 {
	return c.last.Load()
}
