// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"sync"
	"time"

	"beatbox/internal/errs"
	applog "beatbox/internal/log"
)

// PacketMagic identifies a beatbox metric packet ("BX").
const PacketMagic uint16 = 0x4258

// PacketVersion is bumped whenever the packet layout changes.
const PacketVersion uint8 = 1

// Stats is one engine health snapshot, sampled by the publisher each tick.
type Stats struct {
	AvgLatencyMs   float64
	MaxLatencyMs   float64
	QueueOccupancy float64 // percent
	QueueDropped   uint64
	PoolExhausted  uint64
	BusDropped     uint64
}

/*
Metric packet layout (BigEndian):

	magic          uint16   0x4258 ("BX")
	version        uint8    1
	sequence       uint32   monotonically increasing
	timestamp      int64    nanoseconds since epoch
	avg_latency_ms float32
	max_latency_ms float32
	occupancy_pct  float32
	queue_dropped  uint32   truncated counter
	pool_exhausted uint32   truncated counter
	bus_dropped    uint32   truncated counter
*/

// Publisher periodically samples engine stats, packs them into the binary
// layout above, and sends them through a Sender. Start and Stop manage one
// goroutine; both are safe to call repeatedly.
type Publisher struct {
	sender   *Sender
	source   func() Stats
	interval time.Duration

	mu       sync.Mutex
	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	sequence uint32
	packet   *bytes.Buffer
}

// NewPublisher creates a publisher sampling stats from source at the given
// interval. Intervals below 1 ms fall back to 33 ms (~30 Hz).
func NewPublisher(interval time.Duration, sender *Sender, source func() Stats) (*Publisher, error) {
	if sender == nil {
		return nil, errs.New(errs.CodeStreamOpen, "udp publisher needs a sender")
	}
	if source == nil {
		return nil, errs.New(errs.CodeStreamOpen, "udp publisher needs a stats source")
	}
	if interval < time.Millisecond {
		interval = 33 * time.Millisecond
		applog.Warnf("UDP: invalid publish interval, defaulting to %s", interval)
	}

	return &Publisher{
		sender:   sender,
		source:   source,
		interval: interval,
		packet:   new(bytes.Buffer),
	}, nil
}

// Start launches the publish goroutine. A second Start without an
// intervening Stop is a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDP: publisher already running")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("UDP: publishing metrics every %s", p.interval)
		for {
			select {
			case <-ticker.C:
				p.publishOnce()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop terminates the publish goroutine and waits for it to exit. Idempotent.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// Close stops the publisher; it does not close the underlying sender, which
// the owner may share.
func (p *Publisher) Close() error {
	return p.Stop()
}

func (p *Publisher) publishOnce() {
	stats := p.source()
	p.sequence++

	p.packet.Reset()
	fields := []any{
		PacketMagic,
		PacketVersion,
		p.sequence,
		time.Now().UnixNano(),
		float32(stats.AvgLatencyMs),
		float32(stats.MaxLatencyMs),
		float32(stats.QueueOccupancy),
		uint32(stats.QueueDropped),
		uint32(stats.PoolExhausted),
		uint32(stats.BusDropped),
	}
	for _, f := range fields {
		if err := binary.Write(p.packet, binary.BigEndian, f); err != nil {
			applog.Errorf("UDP: packet encode: %v", err)
			return
		}
	}

	if err := p.sender.Send(p.packet.Bytes()); err != nil {
		applog.Debugf("UDP: send failed: %v", err)
		return
	}
	applog.Debugf("UDP: sent packet %d (%d bytes)", p.sequence, p.packet.Len())
}
