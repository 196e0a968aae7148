// SPDX-License-Identifier: MIT
package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"

	"beatbox/internal/errs"
	"beatbox/internal/telemetry"
	"beatbox/pkg/utils"
)

func TestRecorderWritesDecodableWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tap.wav")
	r := NewRecorder(48000, 16)

	if err := r.Start(path); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !r.Active() {
		t.Fatal("recorder not active after Start")
	}

	signal := utils.GenerateSineWave(4096, 48000, 440)
	r.Write(signal[:2048])
	r.Write(signal[2048:])

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if r.Active() {
		t.Error("recorder still active after Stop")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open tap: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("tap is not a valid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode tap: %v", err)
	}
	if len(buf.Data) != len(signal) {
		t.Errorf("decoded %d samples, want %d", len(buf.Data), len(signal))
	}
	if int(dec.SampleRate) != 48000 {
		t.Errorf("sample rate = %d, want 48000", dec.SampleRate)
	}
}

func TestRecorderDoubleStartFails(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(48000, 16)

	if err := r.Start(filepath.Join(dir, "a.wav")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(filepath.Join(dir, "b.wav")); errs.CodeOf(err) != errs.CodeAlreadyRunning {
		t.Errorf("second Start code = %d, want %d", errs.CodeOf(err), errs.CodeAlreadyRunning)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Errorf("second Stop should be a no-op, got %v", err)
	}
}

func TestRecorderWriteWhenInactiveIsNoop(t *testing.T) {
	r := NewRecorder(48000, 16)
	r.Write(make([]float32, 512)) // must not panic
}

// TestRecorderWriteFailureSurfacesErrorEvent yanks the file out from under
// the encoder: the tap must stop itself and put a coded error on the metric
// stream.
func TestRecorderWriteFailureSurfacesErrorEvent(t *testing.T) {
	e := newTestEngine(t)
	sub := e.SubscribeMetrics()
	defer sub.Close()

	if err := e.StartRecording(filepath.Join(t.TempDir(), "tap.wav")); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	e.recorder.mu.Lock()
	e.recorder.file.Close()
	e.recorder.mu.Unlock()

	e.recorder.Write(make([]float32, 512))
	if e.recorder.Active() {
		t.Error("recorder still active after write failure")
	}

	var got *telemetry.ErrorMetric
	for done := false; !done; {
		select {
		case ev := <-sub.C():
			if ev.Type == telemetry.EventError {
				got = ev.Error
			}
		default:
			done = true
		}
	}
	if got == nil {
		t.Fatal("no error event on the metric stream")
	}
	if got.Code != int(errs.CodeStreamFailure) {
		t.Errorf("error event code = %d, want %d", got.Code, errs.CodeStreamFailure)
	}
	if got.Context != "recorder" {
		t.Errorf("error event context = %q, want recorder", got.Context)
	}
}

func TestRecorderFixtureRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.wav")
	r := NewRecorder(48000, 16)

	if err := r.Start(path); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Write(utils.GenerateImpulseTrain(48000, 12000, 24000, 32, 0.9))
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// A recorded tap must load back through the fixture WAV path.
	samples, err := loadWAV(path)
	if err != nil {
		t.Fatalf("loadWAV: %v", err)
	}
	if len(samples) != 48000 {
		t.Errorf("loaded %d samples, want 48000", len(samples))
	}
	// 16-bit quantization keeps the click peak within half a percent.
	peak := float32(0)
	for _, s := range samples {
		if s > peak {
			peak = s
		}
	}
	if peak < 0.89 || peak > 0.91 {
		t.Errorf("round-tripped peak = %.4f, want about 0.9", peak)
	}
}
