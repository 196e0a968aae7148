// SPDX-License-Identifier: MIT
package telemetry

import (
	"sync"
	"sync/atomic"
)

// Bus is a bounded fan-out bus. Each subscriber owns a fixed-depth buffered
// channel; Publish never blocks. When a subscriber's buffer is full the
// oldest event is evicted to make room and the global drop counter is
// incremented, so backpressure shows up in telemetry instead of stalling
// the producer.
type Bus[T any] struct {
	mu    sync.Mutex
	subs  map[*Subscription[T]]struct{}
	depth int

	dropped atomic.Uint64
}

// Subscription is one subscriber's view of a Bus.
type Subscription[T any] struct {
	ch  chan T
	bus *Bus[T]
}

// NewBus creates a bus whose subscribers buffer up to depth events.
func NewBus[T any](depth int) *Bus[T] {
	if depth < 1 {
		depth = 1
	}
	return &Bus[T]{
		subs:  make(map[*Subscription[T]]struct{}),
		depth: depth,
	}
}

// Subscribe registers a new subscriber.
func (b *Bus[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{ch: make(chan T, b.depth), bus: b}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Publish delivers v to every subscriber without blocking. A full
// subscriber loses its oldest buffered event.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for s := range b.subs {
		select {
		case s.ch <- v:
			continue
		default:
		}

		// Full: evict the oldest, then retry once. The second attempt can
		// only fail if a concurrent publisher refilled the slot, in which
		// case the event is dropped outright and still counted.
		select {
		case <-s.ch:
			b.dropped.Add(1)
		default:
		}
		select {
		case s.ch <- v:
		default:
			b.dropped.Add(1)
		}
	}
}

// SubscriberCount reports the number of active subscribers.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped reports the total number of events evicted or discarded because
// a subscriber could not keep up.
func (b *Bus[T]) Dropped() uint64 {
	return b.dropped.Load()
}

// C returns the subscriber's receive channel.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Close detaches the subscription from the bus. The channel is not closed:
// a racing Publish may still hold a reference, and receivers drain what
// remains via C.
func (s *Subscription[T]) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
}
