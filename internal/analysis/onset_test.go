// SPDX-License-Identifier: MIT
package analysis

import (
	"testing"

	"beatbox/pkg/utils"
)

func newTestDetector(t testing.TB) *Detector {
	t.Helper()
	d, err := NewDetector(DetectorConfig{
		FFTSize:    256,
		HopSize:    64,
		HalfWindow: 50,
		Offset:     0.15,
		MinGapMs:   50,
		MinHistory: 512,
		SampleRate: testSampleRate,
		WindowType: Hann,
	})
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	return d
}

func feedAll(d *Detector, samples []float32, chunk int) []Onset {
	var onsets []Onset
	for off := 0; off < len(samples); off += chunk {
		end := off + chunk
		if end > len(samples) {
			end = len(samples)
		}
		onsets = append(onsets, d.Process(samples[off:end])...)
	}
	return onsets
}

func TestDetectorSilenceProducesNoOnsets(t *testing.T) {
	d := newTestDetector(t)
	onsets := feedAll(d, make([]float32, testSampleRate), 512)
	if len(onsets) != 0 {
		t.Errorf("silence produced %d onsets", len(onsets))
	}
}

func TestDetectorFindsImpulses(t *testing.T) {
	d := newTestDetector(t)

	// Four clicks, 500 ms apart, first at 250 ms.
	period := int(testSampleRate / 2)
	first := period / 2
	size := first + period*4
	signal := utils.GenerateImpulseTrain(size, first, period, 32, 0.9)

	onsets := feedAll(d, signal, 512)

	if len(onsets) != 4 {
		t.Fatalf("detected %d onsets, want 4 (got %+v)", len(onsets), onsets)
	}

	// Each reported frame should land within 5 ms of the true click.
	tolerance := uint64(testSampleRate * 0.005)
	for i, onset := range onsets {
		want := uint64(first + i*period)
		diff := onset.Frame - want
		if onset.Frame < want {
			diff = want - onset.Frame
		}
		if diff > tolerance {
			t.Errorf("onset %d at frame %d, want %d +/- %d", i, onset.Frame, want, tolerance)
		}
	}
}

func TestDetectorDebouncesDoubleTriggers(t *testing.T) {
	d := newTestDetector(t)

	// Two clicks 20 ms apart: inside the 50 ms gap, so only the first counts.
	gap := int(testSampleRate * 0.020)
	signal := make([]float32, int(testSampleRate))
	click := utils.GenerateImpulseTrain(32, 0, 32, 32, 0.9)
	copy(signal[24000:], click)
	copy(signal[24000+gap:], click)

	onsets := feedAll(d, signal, 512)
	if len(onsets) != 1 {
		t.Errorf("double trigger not debounced: %d onsets", len(onsets))
	}
}

func TestDetectorWarmupSuppression(t *testing.T) {
	d := newTestDetector(t)

	// A click inside the first 512 samples must not be reported.
	signal := make([]float32, int(testSampleRate))
	for j := 0; j < 32; j++ {
		signal[100+j] = 0.9
	}

	onsets := feedAll(d, signal, 512)
	for _, o := range onsets {
		if o.Frame < 512 {
			t.Errorf("onset at frame %d reported before warmup", o.Frame)
		}
	}
}

func TestDetectorResetClearsState(t *testing.T) {
	d := newTestDetector(t)

	period := int(testSampleRate / 2)
	signal := utils.GenerateImpulseTrain(period*2, period/2, period, 32, 0.9)

	firstRun := feedAll(d, signal, 512)
	d.Reset()
	secondRun := feedAll(d, signal, 512)

	if len(firstRun) != len(secondRun) {
		t.Fatalf("runs differ after reset: %d vs %d onsets", len(firstRun), len(secondRun))
	}
	for i := range firstRun {
		if firstRun[i].Frame != secondRun[i].Frame {
			t.Errorf("onset %d frame differs: %d vs %d", i, firstRun[i].Frame, secondRun[i].Frame)
		}
	}
}

func TestLevelGateHysteresis(t *testing.T) {
	g := NewLevelGate(0.5)

	if !g.Process(0.8) {
		t.Error("armed gate should fire above threshold")
	}
	if g.Process(0.8) {
		t.Error("gate should not re-fire while level stays high")
	}
	// Level falls, but not below the 60% reset point.
	if g.Process(0.35) {
		t.Error("gate should stay closed above reset level")
	}
	g.Process(0.2) // below 0.5*0.6=0.3, re-arms
	if !g.Process(0.8) {
		t.Error("re-armed gate should fire again")
	}
}

func TestLevelGateThresholdUpdateRearms(t *testing.T) {
	g := NewLevelGate(0.5)
	g.Process(0.8) // fires and disarms

	g.SetThreshold(0.2)
	if !g.Process(0.4) {
		t.Error("gate should fire after threshold update re-arms it")
	}
}

func BenchmarkDetectorProcess(b *testing.B) {
	d := newTestDetector(b)
	chunk := utils.GenerateWhiteNoise(512, 3, 0.2)
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		d.Process(chunk)
	}
}
