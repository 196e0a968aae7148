// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"sync/atomic"

	"beatbox/internal/errs"
)

// Timing classifies an onset against the metronome grid.
type Timing uint8

const (
	TimingOnTime Timing = iota
	TimingEarly
	TimingLate
)

// String returns the wire name of the timing band.
func (t Timing) String() string {
	switch t {
	case TimingEarly:
		return "early"
	case TimingLate:
		return "late"
	default:
		return "on_time"
	}
}

// MarshalText makes Timing serialize as its wire name in JSON payloads.
func (t Timing) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// OnTimeWindowMs is the half-width of the on-time band: an onset within
// 50 ms (inclusive) of the nearest beat boundary counts as on time.
const OnTimeWindowMs = 50.0

// Tempo limits.
const (
	MinBpm = 40.0
	MaxBpm = 240.0
)

// TimingResult is the quantizer verdict for one onset. ErrorMs is signed:
// negative means the onset landed before the nearest boundary.
type TimingResult struct {
	Timing  Timing  `json:"timing"`
	ErrorMs float64 `json:"timing_error_ms"`
}

// tempoGrid is one immutable tempo epoch. A BPM change creates a new grid
// anchored at the next boundary of the old one; the old grid is kept as
// prev so onsets stamped before the switch still quantize correctly.
type tempoGrid struct {
	bpm    float64
	anchor uint64 // frame of a beat boundary under this grid
	prev   *tempoGrid
}

// Quantizer measures onset timestamps against a beat grid. Quantize runs on
// the analysis goroutine while SetBpm arrives from the control plane, so the
// active grid is swapped atomically and never mutated in place. Results are
// values: once returned they cannot be altered by later tempo changes.
type Quantizer struct {
	sampleRate float64
	grid       atomic.Pointer[tempoGrid]
}

// NewQuantizer creates a quantizer with its first beat boundary at frame 0.
func NewQuantizer(sampleRate, bpm float64) (*Quantizer, error) {
	if err := validateBpm(bpm); err != nil {
		return nil, err
	}
	q := &Quantizer{sampleRate: sampleRate}
	q.grid.Store(&tempoGrid{bpm: bpm})
	return q, nil
}

func validateBpm(bpm float64) error {
	if bpm < MinBpm || bpm > MaxBpm {
		return errs.New(errs.CodeBpmInvalid, "bpm %.1f outside [%.0f, %.0f]", bpm, MinBpm, MaxBpm)
	}
	return nil
}

// Bpm returns the tempo of the active grid.
func (q *Quantizer) Bpm() float64 {
	return q.grid.Load().bpm
}

// SamplesPerBeat returns the beat period of the active grid in samples.
func (q *Quantizer) SamplesPerBeat() float64 {
	return q.sampleRate * 60.0 / q.grid.Load().bpm
}

// SetBpm switches tempo at the next beat boundary after currentFrame. The
// boundary is computed under the old tempo so the grid never jumps
// mid-beat; onsets stamped before it keep quantizing against the old grid.
func (q *Quantizer) SetBpm(bpm float64, currentFrame uint64) error {
	if err := validateBpm(bpm); err != nil {
		return err
	}

	old := q.grid.Load()
	spb := q.sampleRate * 60.0 / old.bpm

	elapsed := float64(currentFrame - old.anchor)
	beats := math.Floor(elapsed/spb) + 1
	switchAt := old.anchor + uint64(beats*spb)

	// Depth-one history: keep only the grid being replaced.
	q.grid.Store(&tempoGrid{
		bpm:    bpm,
		anchor: switchAt,
		prev:   &tempoGrid{bpm: old.bpm, anchor: old.anchor},
	})
	return nil
}

// Quantize measures one onset against the grid in force at its timestamp.
func (q *Quantizer) Quantize(onsetFrame uint64) TimingResult {
	g := q.grid.Load()
	if onsetFrame < g.anchor && g.prev != nil {
		g = g.prev
	}

	spb := q.sampleRate * 60.0 / g.bpm

	// Onsets older than the retained grid history land before the anchor;
	// the modulo still works on the negative relative position.
	var rel float64
	if onsetFrame >= g.anchor {
		rel = float64(onsetFrame - g.anchor)
	} else {
		rel = -float64(g.anchor - onsetFrame)
	}
	phase := math.Mod(rel, spb)
	if phase < 0 {
		phase += spb
	}

	// Signed offset to the nearest boundary.
	offset := phase
	if phase > spb/2 {
		offset = phase - spb
	}
	errorMs := offset / q.sampleRate * 1000.0

	// Round to hundredths so the band edge is exact: +50.00 ms is on time,
	// +50.01 ms is late.
	errorMs = math.Round(errorMs*100) / 100

	timing := TimingOnTime
	switch {
	case math.Abs(errorMs) <= OnTimeWindowMs:
		timing = TimingOnTime
	case errorMs > 0:
		timing = TimingLate
	default:
		timing = TimingEarly
	}
	return TimingResult{Timing: timing, ErrorMs: errorMs}
}
