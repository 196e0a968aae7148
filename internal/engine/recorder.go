// SPDX-License-Identifier: MIT
package engine

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"beatbox/internal/errs"
	applog "beatbox/internal/log"
	"beatbox/pkg/bitint"
)

// Recorder taps the analyzed sample stream into a PCM WAV file, for
// authoring fixture inputs from real sessions. Write runs on the analysis
// goroutine; Start and Stop come from the control plane, so the active flag
// is atomic and the encoder is mutex-guarded.
type Recorder struct {
	sampleRate int
	bitDepth   int

	active atomic.Bool

	mu      sync.Mutex
	file    *os.File
	enc     *wav.Encoder
	buf     *audio.IntBuffer
	onError func(error)
}

// NewRecorder creates an inactive recorder. Bit depths other than 16 or 24
// fall back to 16.
func NewRecorder(sampleRate, bitDepth int) *Recorder {
	if bitDepth != 16 && bitDepth != 24 {
		bitDepth = 16
	}
	return &Recorder{sampleRate: sampleRate, bitDepth: bitDepth}
}

// Active reports whether a tap is running.
func (r *Recorder) Active() bool { return r.active.Load() }

// OnError installs a sink for asynchronous failures. The tap stops itself on
// a write error; the sink surfaces the coded error to telemetry.
func (r *Recorder) OnError(fn func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onError = fn
}

// Start opens the output file and begins encoding. Mono, configured bit
// depth.
func (r *Recorder) Start(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active.Load() {
		return errs.New(errs.CodeAlreadyRunning, "already recording")
	}

	file, err := os.Create(path)
	if err != nil {
		return errs.Wrap(errs.CodeInitFailed, err, "create recording %q", path)
	}

	r.file = file
	r.enc = wav.NewEncoder(file, r.sampleRate, r.bitDepth, 1, 1)
	r.buf = &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: r.sampleRate},
		SourceBitDepth: r.bitDepth,
	}

	r.active.Store(true)
	applog.Infof("Recorder: writing %d-bit WAV to %s", r.bitDepth, path)
	return nil
}

// Write appends one buffer of samples to the tap. Safe to call when
// inactive; encoding errors stop the tap rather than fail the caller.
func (r *Recorder) Write(samples []float32) {
	if !r.active.Load() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return
	}

	fullScale := float64(int64(1)<<(r.bitDepth-1) - 1)
	if cap(r.buf.Data) < len(samples) {
		r.buf.Data = make([]int, len(samples), bitint.NextPowerOfTwo(len(samples)))
	}
	r.buf.Data = r.buf.Data[:len(samples)]
	for i, s := range samples {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		r.buf.Data[i] = int(v * fullScale)
	}

	if err := r.enc.Write(r.buf); err != nil {
		applog.Errorf("Recorder: write failed, stopping tap: %v", err)
		werr := errs.Wrap(errs.CodeStreamFailure, err, "recording write")
		r.closeLocked()
		if r.onError != nil {
			r.onError(werr)
		}
	}
}

// Stop finalizes the WAV file. Idempotent.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active.Load() {
		return nil
	}
	return r.closeLocked()
}

func (r *Recorder) closeLocked() error {
	r.active.Store(false)

	var firstErr error
	if r.enc != nil {
		if err := r.enc.Close(); err != nil {
			firstErr = errs.Wrap(errs.CodeStreamFailure, err, "finalize recording")
		}
		r.enc = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil && firstErr == nil {
			firstErr = errs.Wrap(errs.CodeStreamFailure, err, "close recording")
		}
		r.file = nil
	}
	return firstErr
}
