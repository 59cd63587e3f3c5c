package engine

import "sync"

// stepQueue is the FIFO queue feeding a session's Run loop.
//
// Any goroutine may enqueue; only the Run loop dequeues. The signal channel
// is buffered with size 1 so Enqueue never blocks.
type stepQueue struct {
	mu     sync.Mutex
	inputs []StepInput
	closed bool
	signal chan struct{}
}

func newStepQueue() *stepQueue {
	return &stepQueue{
		inputs: make([]StepInput, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends an input. Returns false once the queue is closed.
func (q *stepQueue) Enqueue(in StepInput) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.inputs = append(q.inputs, in)

	// Non-blocking signal: a pending signal already wakes the loop.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the oldest input without blocking.
func (q *stepQueue) TryDequeue() (StepInput, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.inputs) == 0 {
		return StepInput{}, false
	}
	in := q.inputs[0]
	q.inputs[0] = StepInput{} // drop references held by the backing array
	q.inputs = q.inputs[1:]
	return in, true
}

// Wait returns the channel signalled on enqueue and closed on Close.
func (q *stepQueue) Wait() <-chan struct{} {
	return q.signal
}

// Closed reports whether Close was called.
func (q *stepQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of queued inputs.
func (q *stepQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inputs)
}

// Close stops accepting inputs and wakes the loop. Queued inputs are still
// drained.
func (q *stepQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
