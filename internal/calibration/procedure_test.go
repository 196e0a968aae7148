// SPDX-License-Identifier: MIT
package calibration

import (
	"testing"

	"beatbox/internal/analysis"
	"beatbox/internal/errs"
)

// Strike features that pass the base gates for each sound.
func goodKick() analysis.Features {
	return analysis.Features{RMS: 0.3, SpectralCentroid: 500, ZeroCrossingRate: 0.05, SpectralFlatness: 0.05, DecayTimeMs: 120, Peak: 0.7}
}
func goodSnare() analysis.Features {
	return analysis.Features{RMS: 0.25, SpectralCentroid: 2500, ZeroCrossingRate: 0.2, SpectralFlatness: 0.4, DecayTimeMs: 90, Peak: 0.6}
}
func goodHihat() analysis.Features {
	return analysis.Features{RMS: 0.2, SpectralCentroid: 8000, ZeroCrossingRate: 0.5, SpectralFlatness: 0.6, DecayTimeMs: 30, Peak: 0.4}
}

// feedNoiseFloor completes the noise floor step with a quiet room.
func feedNoiseFloor(t *testing.T, p *Procedure) {
	t.Helper()
	for i := 0; i < 30; i++ {
		p.AddNoiseSample(0.01)
	}
	if p.Step() != StepKick {
		t.Fatalf("after noise floor: step = %v, want kick", p.Step())
	}
}

// fillStep feeds quota-many good samples and confirms the step.
func fillStep(t *testing.T, p *Procedure, f analysis.Features) {
	t.Helper()
	for i := 0; i < 10; i++ {
		p.AddOnsetSample(f)
	}
	if !p.Progress().WaitingForConfirmation {
		t.Fatalf("step %v did not reach waiting state: %+v", p.Step(), p.Progress())
	}
	if _, err := p.ConfirmStep(); err != nil {
		t.Fatalf("confirm %v: %v", p.Step(), err)
	}
}

func TestProcedureFullFlow(t *testing.T) {
	p := NewProcedure(10, 30)

	feedNoiseFloor(t, p)
	if nf := p.NoiseFloor(); nf < 0.009 || nf > 0.011 {
		t.Errorf("noise floor = %.4f, want ~0.01", nf)
	}

	fillStep(t, p, goodKick())
	if p.Step() != StepSnare {
		t.Fatalf("step = %v, want snare", p.Step())
	}
	fillStep(t, p, goodSnare())
	fillStep(t, p, goodHihat())

	if p.Step() != StepComplete {
		t.Fatalf("step = %v, want complete", p.Step())
	}

	state, err := p.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if !state.IsCalibrated || state.Level != 2 {
		t.Errorf("finalized state: %+v", state)
	}

	// Midpoint thresholds between identical-sample means.
	if state.TKickCentroid != (500+2500)/2 {
		t.Errorf("t_kick_centroid = %.1f, want 1500", state.TKickCentroid)
	}
	if state.TSnareCentroid != (2500+8000)/2 {
		t.Errorf("t_snare_centroid = %.1f, want 5250", state.TSnareCentroid)
	}
	if state.TKickZcr != (0.05+0.2)/2 {
		t.Errorf("t_kick_zcr = %.3f, want 0.125", state.TKickZcr)
	}
	if state.THihatZcr != (0.2+0.5)/2 {
		t.Errorf("t_hihat_zcr = %.3f, want 0.35", state.THihatZcr)
	}

	// The calibrated thresholds classify the calibration sounds themselves.
	th := state.Thresholds()
	if got := analysis.Classify(goodKick(), th); got.Sound != analysis.SoundKick {
		t.Errorf("calibrated kick classifies as %v", got.Sound)
	}
	if got := analysis.Classify(goodHihat(), th); got.Sound == analysis.SoundUnknown || got.Sound == analysis.SoundKick {
		t.Errorf("calibrated hihat classifies as %v", got.Sound)
	}
}

func TestConfirmBeforeQuotaFails(t *testing.T) {
	p := NewProcedure(10, 30)
	feedNoiseFloor(t, p)

	for i := 0; i < 7; i++ {
		p.AddOnsetSample(goodKick())
	}

	before := p.Progress()
	_, err := p.ConfirmStep()
	if errs.CodeOf(err) != errs.CodeNotComplete {
		t.Fatalf("confirm with 7/10 samples: code = %d, want %d", errs.CodeOf(err), errs.CodeNotComplete)
	}

	after := p.Progress()
	if before != after {
		t.Errorf("failed confirm mutated state:\n before %+v\n after  %+v", before, after)
	}
	if p.Step() != StepKick {
		t.Errorf("step advanced to %v on failed confirm", p.Step())
	}
}

func TestExtraStrikesIgnoredWhileWaiting(t *testing.T) {
	p := NewProcedure(10, 30)
	feedNoiseFloor(t, p)

	for i := 0; i < 10; i++ {
		p.AddOnsetSample(goodKick())
	}
	progress := p.AddOnsetSample(goodKick())
	if progress.Collected != 10 {
		t.Errorf("collected = %d after extra strike, want 10", progress.Collected)
	}
}

func TestRetryStepClearsCollection(t *testing.T) {
	p := NewProcedure(10, 30)
	feedNoiseFloor(t, p)

	for i := 0; i < 10; i++ {
		p.AddOnsetSample(goodKick())
	}
	progress, err := p.RetryStep()
	if err != nil {
		t.Fatalf("RetryStep: %v", err)
	}
	if progress.Collected != 0 || progress.WaitingForConfirmation {
		t.Errorf("retry did not reset: %+v", progress)
	}
	if p.Step() != StepKick {
		t.Errorf("retry changed step to %v", p.Step())
	}
}

func TestGuidanceReasons(t *testing.T) {
	tests := []struct {
		desc string
		f    analysis.Features
		want GuidanceReason
	}{
		{"Too quiet", analysis.Features{RMS: 0.012, SpectralCentroid: 500, ZeroCrossingRate: 0.05, Peak: 0.05}, GuidanceTooQuiet},
		{"Clipped", analysis.Features{RMS: 0.5, SpectralCentroid: 500, ZeroCrossingRate: 0.05, Peak: 1.0}, GuidanceClipped},
		{"Implausible for kick", analysis.Features{RMS: 0.3, SpectralCentroid: 9000, ZeroCrossingRate: 0.6, Peak: 0.5}, GuidanceImplausible},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			p := NewProcedure(10, 30)
			feedNoiseFloor(t, p)
			progress := p.AddOnsetSample(tt.f)
			if progress.Guidance != tt.want {
				t.Errorf("guidance = %v, want %v", progress.Guidance, tt.want)
			}
			if progress.Misses != 1 {
				t.Errorf("misses = %d, want 1", progress.Misses)
			}
		})
	}
}

func TestStagnationGuidanceAfterRepeatedMisses(t *testing.T) {
	p := NewProcedure(10, 30)
	feedNoiseFloor(t, p)

	quiet := analysis.Features{RMS: 0.012, SpectralCentroid: 500, ZeroCrossingRate: 0.05, Peak: 0.05}
	var progress Progress
	for i := 0; i < 5; i++ {
		progress = p.AddOnsetSample(quiet)
	}
	if progress.Guidance != GuidanceStagnation {
		t.Errorf("guidance after 5 misses = %v, want stagnation", progress.Guidance)
	}
}

func TestBackoffLoosensRmsGate(t *testing.T) {
	p := NewProcedure(10, 30)
	feedNoiseFloor(t, p)

	// Gate starts at 1.6x the 0.01 noise floor: 0.016. A 0.0145 strike is
	// too quiet until three rejects drop the gate by 0.85x to 0.0136.
	marginal := analysis.Features{RMS: 0.0145, SpectralCentroid: 500, ZeroCrossingRate: 0.05, Peak: 0.1}

	p.AddOnsetSample(marginal)
	p.AddOnsetSample(marginal)
	progress := p.AddOnsetSample(marginal)
	if progress.Collected != 0 {
		t.Fatal("marginal strike accepted before backoff")
	}

	progress = p.AddOnsetSample(marginal)
	if progress.Collected != 1 {
		t.Errorf("marginal strike still rejected after backoff: %+v", progress)
	}
}

func TestBackoffNeverDropsBelowFloor(t *testing.T) {
	var b backoff
	for i := 0; i < 100; i++ {
		b.recordReject()
	}
	if gate := b.rmsGate(0.01); gate < 0.01*rmsGateFloor-1e-12 {
		t.Errorf("rms gate %.6f fell below floor %.6f", gate, 0.01*rmsGateFloor)
	}
	if b.steps > maxBackoffSteps {
		t.Errorf("backoff exceeded %d steps: %d", maxBackoffSteps, b.steps)
	}
}

func TestManualAcceptLastCandidate(t *testing.T) {
	p := NewProcedure(10, 30)
	feedNoiseFloor(t, p)

	// No candidate yet.
	if _, err := p.ManualAcceptLastCandidate(); errs.CodeOf(err) != errs.CodeInvalidFeatures {
		t.Fatalf("manual accept with no candidate: %v", err)
	}

	// An out-of-window but hard-valid kick becomes a candidate.
	odd := analysis.Features{RMS: 0.3, SpectralCentroid: 3000, ZeroCrossingRate: 0.1, Peak: 0.5}
	progress := p.AddOnsetSample(odd)
	if !progress.ManualAcceptAvailable {
		t.Fatal("rejected hard-valid sample should be a manual-accept candidate")
	}

	progress, err := p.ManualAcceptLastCandidate()
	if err != nil {
		t.Fatalf("ManualAcceptLastCandidate: %v", err)
	}
	if progress.Collected != 1 {
		t.Errorf("collected = %d after manual accept, want 1", progress.Collected)
	}
	if progress.ManualAcceptAvailable {
		t.Error("candidate should be consumed by manual accept")
	}

	// Candidate is gone, a second accept fails.
	if _, err := p.ManualAcceptLastCandidate(); err == nil {
		t.Error("second manual accept should fail")
	}
}

func TestManualAcceptUnavailableDuringNoiseFloor(t *testing.T) {
	p := NewProcedure(10, 30)
	if _, err := p.ManualAcceptLastCandidate(); errs.CodeOf(err) != errs.CodeInvalidFeatures {
		t.Errorf("manual accept during noise floor: %v", err)
	}
}

func TestResultBeforeCompleteFails(t *testing.T) {
	p := NewProcedure(10, 30)
	if _, err := p.Result(); errs.CodeOf(err) != errs.CodeNotComplete {
		t.Errorf("Result before completion: %v", err)
	}
}
