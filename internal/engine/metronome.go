// SPDX-License-Identifier: MIT
package engine

import (
	"beatbox/internal/analysis"
	"beatbox/internal/errs"
	"beatbox/pkg/utils"
)

// clickDurationMs is the length of one metronome click.
const clickDurationMs = 20

// Metronome renders a click track for a fixed tempo: a short seeded-noise
// burst at every beat boundary. The seed makes renders reproducible, so a
// click track can serve as a fixture input.
type Metronome struct {
	sampleRate float64
	bpm        float64
	click      []float32
}

// NewMetronome builds a metronome. The seed shapes the click's noise burst.
func NewMetronome(sampleRate, bpm float64, seed int64) (*Metronome, error) {
	if bpm < analysis.MinBpm || bpm > analysis.MaxBpm {
		return nil, errs.New(errs.CodeBpmInvalid, "bpm %.1f outside [%.0f, %.0f]",
			bpm, analysis.MinBpm, analysis.MaxBpm)
	}

	clickLen := int(sampleRate * clickDurationMs / 1000.0)
	click := utils.GenerateWhiteNoise(clickLen, seed, 0.8)
	// Linear fade so the click ends without a step discontinuity.
	for i := range click {
		click[i] *= float32(1 - float64(i)/float64(clickLen))
	}

	return &Metronome{sampleRate: sampleRate, bpm: bpm, click: click}, nil
}

// Bpm returns the metronome tempo.
func (m *Metronome) Bpm() float64 { return m.bpm }

// SamplesPerBeat returns the beat period in samples.
func (m *Metronome) SamplesPerBeat() float64 {
	return m.sampleRate * 60.0 / m.bpm
}

// IsOnBeat reports whether the frame falls inside a click window.
func (m *Metronome) IsOnBeat(frame uint64) bool {
	spb := m.SamplesPerBeat()
	phase := float64(frame) - float64(uint64(float64(frame)/spb))*spb
	return phase < float64(len(m.click))
}

// Render fills out with the click track starting at startFrame, summing
// clicks into whatever the buffer already holds.
func (m *Metronome) Render(out []float32, startFrame uint64) {
	spb := m.SamplesPerBeat()
	beat := uint64(float64(startFrame) / spb)

	for {
		clickStart := uint64(float64(beat) * spb)
		if clickStart >= startFrame+uint64(len(out)) {
			return
		}
		for j, s := range m.click {
			pos := clickStart + uint64(j)
			if pos < startFrame {
				continue
			}
			idx := pos - startFrame
			if idx >= uint64(len(out)) {
				break
			}
			out[idx] += s
		}
		beat++
	}
}
