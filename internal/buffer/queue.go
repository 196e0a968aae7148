// SPDX-License-Identifier: MIT
package buffer

import "sync/atomic"

// Queue is the bounded single-producer single-consumer handoff between the
// capture callback and the analysis goroutine. Push and Pop are single
// channel operations with select/default: the producer drops on overflow
// instead of blocking, the consumer polls instead of parking on the
// real-time side.
type Queue struct {
	ch       chan *Buffer
	capacity int
	dropped  atomic.Uint64
}

// NewQueue creates a queue holding at most capacity buffers.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch:       make(chan *Buffer, capacity),
		capacity: capacity,
	}
}

// Push enqueues a buffer. Returns false and counts a drop when the queue is
// full; the caller must release the buffer back to its pool in that case.
func (q *Queue) Push(b *Buffer) bool {
	select {
	case q.ch <- b:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Pop dequeues the oldest buffer, or returns (nil, false) immediately when
// the queue is empty.
func (q *Queue) Pop() (*Buffer, bool) {
	select {
	case b := <-q.ch:
		return b, true
	default:
		return nil, false
	}
}

// Len reports the number of buffers currently queued.
func (q *Queue) Len() int { return len(q.ch) }

// Capacity reports the fixed queue capacity.
func (q *Queue) Capacity() int { return q.capacity }

// Occupancy reports the fill level as a percentage, for telemetry.
func (q *Queue) Occupancy() float64 {
	if q.capacity == 0 {
		return 0
	}
	return float64(len(q.ch)) / float64(q.capacity) * 100.0
}

// Dropped reports how many pushes were rejected because the queue was full.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }
