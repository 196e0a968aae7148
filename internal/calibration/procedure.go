// SPDX-License-Identifier: MIT
package calibration

import (
	"sync"

	"gonum.org/v1/gonum/stat"

	"beatbox/internal/analysis"
	"beatbox/internal/errs"
	applog "beatbox/internal/log"
)

// Procedure drives one calibration run through its steps: noise floor, then
// kick, snare, and hihat collection, each closed by an explicit
// confirmation. The analysis goroutine feeds samples, the API confirms and
// retries; both paths share the mutex.
type Procedure struct {
	mu sync.Mutex

	samplesPerSound  int
	noiseFloorFrames int

	step    Step
	waiting bool

	noiseRMS   []float64
	noiseFloor float64

	kickSamples  []analysis.Features
	snareSamples []analysis.Features
	hihatSamples []analysis.Features

	// Most recent hard-valid sample that the soft gates rejected, kept per
	// sound so the user can force-accept an unusual but real strike.
	candidates map[Step]*analysis.Features

	misses   int
	guidance GuidanceReason
	backoff  backoff

	result *State
}

// NewProcedure starts a calibration run at the noise floor step.
func NewProcedure(samplesPerSound, noiseFloorFrames int) *Procedure {
	return &Procedure{
		samplesPerSound:  samplesPerSound,
		noiseFloorFrames: noiseFloorFrames,
		step:             StepNoiseFloor,
		noiseRMS:         make([]float64, 0, noiseFloorFrames),
		candidates:       make(map[Step]*analysis.Features),
	}
}

// Step returns the current step.
func (p *Procedure) Step() Step {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.step
}

// NoiseFloor returns the measured ambient RMS, or 0 before the noise floor
// step completes.
func (p *Procedure) NoiseFloor() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.noiseFloor
}

// AddNoiseSample feeds one ambient RMS frame during the noise floor step.
// The step advances automatically once enough frames are collected; sound
// steps, by contrast, require explicit confirmation.
func (p *Procedure) AddNoiseSample(rms float64) Progress {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.step != StepNoiseFloor {
		return p.progressLocked()
	}

	p.noiseRMS = append(p.noiseRMS, rms)
	if len(p.noiseRMS) >= p.noiseFloorFrames {
		p.noiseFloor = stat.Mean(p.noiseRMS, nil)
		p.step = StepKick
		p.resetStepLocked()
		applog.Infof("Calibration: noise floor %.6f from %d frames, starting kick collection",
			p.noiseFloor, len(p.noiseRMS))
	}
	return p.progressLocked()
}

// AddOnsetSample feeds the features of one detected strike during a sound
// step. Rejected samples update guidance and the backoff; accepted samples
// count toward the quota. Extra strikes after the quota is reached are
// ignored until the step is confirmed or retried.
func (p *Procedure) AddOnsetSample(f analysis.Features) Progress {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.step.isSoundPhase() || p.waiting {
		return p.progressLocked()
	}

	if err := validateFeatures(f); err != nil {
		p.rejectLocked(GuidanceImplausible)
		applog.Debugf("Calibration: hard-rejected sample for %s: %v", p.step, err)
		return p.progressLocked()
	}

	if f.Peak >= clipPeak {
		p.rejectLocked(GuidanceClipped)
		return p.progressLocked()
	}
	if f.RMS < p.backoff.rmsGate(p.noiseFloor) {
		p.rejectLocked(GuidanceTooQuiet)
		return p.progressLocked()
	}

	bounds, _ := p.backoff.bounds(p.step)
	if f.SpectralCentroid < bounds.centroidLo || f.SpectralCentroid > bounds.centroidHi ||
		f.ZeroCrossingRate < bounds.zcrLo || f.ZeroCrossingRate > bounds.zcrHi {
		// Hard-valid but outside the per-sound window: remember it so the
		// user can force-accept.
		sample := f
		p.candidates[p.step] = &sample
		p.rejectLocked(GuidanceImplausible)
		return p.progressLocked()
	}

	p.acceptLocked(f)
	return p.progressLocked()
}

func (p *Procedure) rejectLocked(reason GuidanceReason) {
	p.misses++
	p.backoff.recordReject()
	if p.misses >= stagnationMisses {
		p.guidance = GuidanceStagnation
	} else {
		p.guidance = reason
	}
}

func (p *Procedure) acceptLocked(f analysis.Features) {
	samples := p.samplesLocked(p.step)
	*samples = append(*samples, f)
	p.misses = 0
	p.guidance = GuidanceNone
	p.backoff.recordAccept()
	delete(p.candidates, p.step)

	if len(*samples) >= p.samplesPerSound {
		p.waiting = true
		applog.Infof("Calibration: %s collection complete (%d samples), awaiting confirmation",
			p.step, len(*samples))
	}
}

// ConfirmStep advances past a completed sound step. Confirming before the
// quota is met fails with no state change; confirming the hihat step
// finalizes the thresholds.
func (p *Procedure) ConfirmStep() (Progress, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.step.isSoundPhase() {
		return p.progressLocked(), errs.New(errs.CodeNotComplete, "no sound step active to confirm")
	}
	if len(*p.samplesLocked(p.step)) < p.samplesPerSound {
		return p.progressLocked(), errs.New(errs.CodeNotComplete,
			"%s has %d of %d samples", p.step, len(*p.samplesLocked(p.step)), p.samplesPerSound)
	}

	confirmed := p.step
	p.step = p.step.next()
	p.resetStepLocked()
	applog.Infof("Calibration: %s confirmed, now at %s", confirmed, p.step)

	if p.step == StepComplete {
		p.finalizeLocked()
	}
	return p.progressLocked(), nil
}

// RetryStep discards everything collected for the current sound step.
func (p *Procedure) RetryStep() (Progress, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.step.isSoundPhase() {
		return p.progressLocked(), errs.New(errs.CodeNotComplete, "no sound step active to retry")
	}

	*p.samplesLocked(p.step) = (*p.samplesLocked(p.step))[:0]
	p.resetStepLocked()
	applog.Infof("Calibration: %s retried, collection cleared", p.step)
	return p.progressLocked(), nil
}

// ManualAcceptLastCandidate promotes the most recent hard-valid sample that
// the soft gates rejected for the current sound.
func (p *Procedure) ManualAcceptLastCandidate() (Progress, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.step.isSoundPhase() {
		return p.progressLocked(), errs.New(errs.CodeInvalidFeatures,
			"manual accept is only available during sound collection")
	}
	if p.waiting {
		return p.progressLocked(), errs.New(errs.CodeInvalidFeatures,
			"%s already complete, confirm or retry first", p.step)
	}
	candidate, ok := p.candidates[p.step]
	if !ok {
		return p.progressLocked(), errs.New(errs.CodeInvalidFeatures,
			"no candidate available for %s", p.step)
	}

	delete(p.candidates, p.step)
	p.acceptLocked(*candidate)
	applog.Infof("Calibration: manual accept used for %s", p.step)
	return p.progressLocked(), nil
}

// Progress returns a snapshot of the run.
func (p *Procedure) Progress() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progressLocked()
}

// Result returns the finalized state. Fails until every step is confirmed.
func (p *Procedure) Result() (*State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.step != StepComplete || p.result == nil {
		return nil, errs.New(errs.CodeNotComplete, "calibration at step %s", p.step)
	}
	out := *p.result
	return &out, nil
}

func (p *Procedure) progressLocked() Progress {
	collected := 0
	needed := p.noiseFloorFrames
	switch {
	case p.step == StepNoiseFloor:
		collected = len(p.noiseRMS)
	case p.step.isSoundPhase():
		collected = len(*p.samplesLocked(p.step))
		needed = p.samplesPerSound
	default:
		collected, needed = p.samplesPerSound, p.samplesPerSound
	}

	_, hasCandidate := p.candidates[p.step]
	return Progress{
		Step:                   p.step,
		Collected:              collected,
		Needed:                 needed,
		Guidance:               p.guidance,
		Misses:                 p.misses,
		ManualAcceptAvailable:  hasCandidate && !p.waiting,
		WaitingForConfirmation: p.waiting,
	}
}

func (p *Procedure) samplesLocked(step Step) *[]analysis.Features {
	switch step {
	case StepSnare:
		return &p.snareSamples
	case StepHiHat:
		return &p.hihatSamples
	default:
		return &p.kickSamples
	}
}

func (p *Procedure) resetStepLocked() {
	p.waiting = false
	p.misses = 0
	p.guidance = GuidanceNone
	p.backoff.reset()
	delete(p.candidates, p.step)
}

// finalizeLocked derives the thresholds from the collected samples. Each
// boundary sits at the midpoint between the means of the adjacent sound
// families, so every calibrated sound lands on its own side.
func (p *Procedure) finalizeLocked() {
	kickC, kickZ := meanFeatures(p.kickSamples)
	snareC, snareZ := meanFeatures(p.snareSamples)
	hihatC, hihatZ := meanFeatures(p.hihatSamples)

	p.result = &State{
		Level:          2,
		TKickCentroid:  (kickC + snareC) / 2,
		TKickZcr:       (kickZ + snareZ) / 2,
		TSnareCentroid: (snareC + hihatC) / 2,
		THihatZcr:      (snareZ + hihatZ) / 2,
		IsCalibrated:   true,
		NoiseFloorRMS:  p.noiseFloor,
	}
	applog.Infof("Calibration: finalized (kickC=%.0f kickZ=%.3f snareC=%.0f hihatZ=%.3f floor=%.6f)",
		p.result.TKickCentroid, p.result.TKickZcr, p.result.TSnareCentroid,
		p.result.THihatZcr, p.result.NoiseFloorRMS)
}

func meanFeatures(samples []analysis.Features) (centroid, zcr float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	centroids := make([]float64, len(samples))
	zcrs := make([]float64, len(samples))
	for i, f := range samples {
		centroids[i] = f.SpectralCentroid
		zcrs[i] = f.ZeroCrossingRate
	}
	return stat.Mean(centroids, nil), stat.Mean(zcrs, nil)
}
