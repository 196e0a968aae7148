// SPDX-License-Identifier: MIT
/*
Package buffer provides the pre-allocated buffer pool and the single-producer
single-consumer queue that move captured audio from the PortAudio callback to
the analysis goroutine.

Thread Safety:
- Acquire runs on the capture callback, Release on the analysis goroutine
- Both are non-blocking and allocation-free after construction
- Exhaustion and overflow are reported through counters, never by blocking
*/
package buffer

import "sync/atomic"

// Buffer is one pooled slab of captured samples. Samples is always backed by
// the full fixed-capacity array; Len records how many samples the producer
// wrote. Seq and Timestamp are stamped by the producer on every acquire
// cycle, so a stale read is detectable.
type Buffer struct {
	Samples   []float32
	Len       int
	Seq       uint64
	Timestamp uint64 // engine frame count at the first sample
}

// Reset clears bookkeeping without touching the sample slab.
func (b *Buffer) Reset() {
	b.Len = 0
	b.Seq = 0
	b.Timestamp = 0
}

// Pool is a fixed population of Buffers allocated once at construction.
// The free list is a buffered channel: acquire and release are single
// channel operations with select/default, which never block and never
// allocate. Population and buffer capacity are immutable.
type Pool struct {
	free       chan *Buffer
	size       int
	bufferSize int
	exhausted  atomic.Uint64
}

// NewPool allocates size buffers of bufferSize samples each.
func NewPool(size, bufferSize int) *Pool {
	p := &Pool{
		free:       make(chan *Buffer, size),
		size:       size,
		bufferSize: bufferSize,
	}
	for i := 0; i < size; i++ {
		p.free <- &Buffer{Samples: make([]float32, bufferSize)}
	}
	return p
}

// Acquire returns a free buffer or nil when the pool is dry. Never blocks:
// the capture callback drops the frame and moves on when nil comes back.
func (p *Pool) Acquire() *Buffer {
	select {
	case b := <-p.free:
		b.Samples = b.Samples[:p.bufferSize]
		return b
	default:
		p.exhausted.Add(1)
		return nil
	}
}

// Release returns a buffer to the free list. Releasing more buffers than the
// pool owns is a programming error and panics rather than silently growing.
func (p *Pool) Release(b *Buffer) {
	if b == nil {
		return
	}
	b.Reset()
	select {
	case p.free <- b:
	default:
		panic("buffer: release into a full pool")
	}
}

// Available reports how many buffers are currently free.
func (p *Pool) Available() int { return len(p.free) }

// Size reports the fixed pool population.
func (p *Pool) Size() int { return p.size }

// BufferSize reports the per-buffer sample capacity.
func (p *Pool) BufferSize() int { return p.bufferSize }

// Exhausted reports how many acquires failed because the pool was dry.
func (p *Pool) Exhausted() uint64 { return p.exhausted.Load() }
