package engine

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_PeekCommit(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Last())
	assert.Equal(t, int64(1), c.Peek())
	assert.Equal(t, int64(1), c.Peek(), "Peek must not advance")

	assert.True(t, c.Commit(1))
	assert.Equal(t, int64(1), c.Last())
	assert.Equal(t, int64(2), c.Peek())
}

func TestClock_CommitRejectsGaps(t *testing.T) {
	c := NewClock()
	assert.False(t, c.Commit(2), "seq 2 before seq 1")
	assert.False(t, c.Commit(0))
	assert.Equal(t, int64(0), c.Last())

	assert.True(t, c.Commit(1))
	assert.False(t, c.Commit(1), "seq 1 twice")
}

func TestClock_NewClockAt(t *testing.T) {
	c := NewClockAt(41)
	assert.Equal(t, int64(41), c.Last())
	assert.Equal(t, int64(42), c.Peek())
	assert.True(t, c.Commit(42))
}

func TestClock_ConcurrentCommit(t *testing.T) {
	c := NewClock()
	const goroutines = 50

	// Every goroutine races for the same seq; exactly one wins.
	var wins atomic.Int32
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Commit(1) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int64(1), c.Last())
}
