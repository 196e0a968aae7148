// SPDX-License-Identifier: MIT
package engine

import (
	"os"
	"time"

	"github.com/go-audio/wav"

	"beatbox/internal/buffer"
	"beatbox/internal/errs"
	applog "beatbox/internal/log"
	"beatbox/pkg/utils"
)

// FixtureSource selects where a fixture session's samples come from.
type FixtureSource uint8

const (
	FixtureWAV FixtureSource = iota
	FixtureSine
	FixtureSquare
	FixtureWhiteNoise
	FixtureImpulseTrain
	FixtureRaw
)

// FixtureSpec describes one deterministic input session. Fixture samples
// travel the exact pool/queue path live capture uses, so identical specs
// produce identical classification sequences.
type FixtureSpec struct {
	Source FixtureSource

	Path string // WAV file, FixtureWAV only

	// Synthetic source parameters. Duration is in samples.
	Duration  int
	Frequency float64 // Hz, sine and square
	Seed      int64   // white noise
	Amplitude float64 // defaults to 0.9 when zero

	// Impulse train geometry, in samples.
	FirstAt  int
	Period   int
	ClickLen int

	// Pre-rendered samples, FixtureRaw only.
	Samples []float32

	// Session tempo; zero falls back to the configured default.
	Bpm float64
}

// StartFixtureSession renders the spec and pumps it through the capture
// path. The pump waits on a full pool or queue instead of dropping, so
// replays are sample-identical. Fails with 1002 while any session runs.
func (e *Engine) StartFixtureSession(spec FixtureSpec) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode != modeIdle {
		return errs.New(errs.CodeAlreadyRunning, "engine already running")
	}

	samples, err := e.renderFixture(spec)
	if err != nil {
		return err
	}
	if err := e.resetSessionLocked(spec.Bpm); err != nil {
		return err
	}

	e.mode = modeFixture
	e.startLoopLocked()
	e.pumpDone = make(chan struct{})

	done := e.done
	e.pumpWG.Add(1)
	go e.pumpFixture(samples, done)

	applog.Infof("Engine: fixture session started (%d samples)", len(samples))
	e.publishLifecycle("fixture_started")
	return nil
}

// StopFixtureSession ends the pump and the analysis loop. The loop drains
// already-queued buffers before exiting, so a session stopped after its pump
// finished has analyzed every sample.
func (e *Engine) StopFixtureSession() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode != modeFixture {
		return errs.New(errs.CodeNotRunning, "no fixture session to stop")
	}

	close(e.done)
	e.pumpWG.Wait()
	e.loopWG.Wait()
	e.mode = modeIdle

	applog.Infof("Engine: fixture session stopped")
	e.publishLifecycle("fixture_stopped")
	return nil
}

// FixtureDone is closed once the active session's pump has pushed every
// sample. Callers typically wait on it, then StopFixtureSession to drain.
func (e *Engine) FixtureDone() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pumpDone
}

// pumpFixture feeds rendered samples through the pool and queue in capture-
// sized chunks. Unlike the live callback it blocks on backpressure: fixture
// sessions trade real-time behavior for determinism.
func (e *Engine) pumpFixture(samples []float32, done chan struct{}) {
	defer e.pumpWG.Done()
	defer close(e.pumpDone)

	fpb := e.cfg.Audio.FramesPerBuffer
	var seq uint64

	for off := 0; off < len(samples); off += fpb {
		end := off + fpb
		if end > len(samples) {
			end = len(samples)
		}

		var b *buffer.Buffer
		for {
			select {
			case <-done:
				return
			default:
			}
			if b = e.pool.Acquire(); b != nil {
				break
			}
			time.Sleep(pollInterval)
		}

		n := copy(b.Samples, samples[off:end])
		b.Len = n
		seq++
		b.Seq = seq
		b.Timestamp = e.framesCaptured.Load()
		e.framesCaptured.Add(uint64(n))

		for !e.queue.Push(b) {
			select {
			case <-done:
				e.pool.Release(b)
				return
			default:
				time.Sleep(pollInterval)
			}
		}
	}
}

// renderFixture materializes the spec into a sample buffer.
func (e *Engine) renderFixture(spec FixtureSpec) ([]float32, error) {
	amplitude := spec.Amplitude
	if amplitude == 0 {
		amplitude = 0.9
	}
	sampleRate := e.cfg.Audio.SampleRate

	switch spec.Source {
	case FixtureWAV:
		return loadWAV(spec.Path)
	case FixtureSine:
		return utils.GenerateSineWave(spec.Duration, sampleRate, spec.Frequency), nil
	case FixtureSquare:
		return utils.GenerateSquareWave(spec.Duration, sampleRate, spec.Frequency), nil
	case FixtureWhiteNoise:
		return utils.GenerateWhiteNoise(spec.Duration, spec.Seed, amplitude), nil
	case FixtureImpulseTrain:
		return utils.GenerateImpulseTrain(spec.Duration, spec.FirstAt, spec.Period, spec.ClickLen, amplitude), nil
	case FixtureRaw:
		return spec.Samples, nil
	default:
		return nil, errs.New(errs.CodeInitFailed, "unknown fixture source %d", spec.Source)
	}
}

// loadWAV decodes a PCM WAV file into normalized mono float32 samples.
// Multi-channel files keep only the first channel.
func loadWAV(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInitFailed, err, "open fixture %q", path)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, errs.New(errs.CodeInitFailed, "%q is not a valid WAV file", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, errs.Wrap(errs.CodeInitFailed, err, "decode fixture %q", path)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))

	out := make([]float32, 0, len(buf.Data)/channels)
	for i := 0; i < len(buf.Data); i += channels {
		out = append(out, float32(float64(buf.Data[i])*scale))
	}
	return out, nil
}
