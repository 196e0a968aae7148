// SPDX-License-Identifier: MIT
package calibration

// Soft plausibility gates per sound. These start tight enough to reject a
// stray cough during kick collection, and the backoff widens them when a
// user's sound genuinely sits outside the typical range.
type gateBounds struct {
	centroidLo, centroidHi float64 // Hz
	zcrLo, zcrHi           float64
}

func baseBounds(step Step) (gateBounds, bool) {
	switch step {
	case StepKick:
		return gateBounds{60, 2000, 0, 0.3}, true
	case StepSnare:
		return gateBounds{500, 7000, 0.02, 0.6}, true
	case StepHiHat:
		return gateBounds{3500, 14000, 0.18, 1.0}, true
	default:
		return gateBounds{}, false
	}
}

// Backoff tuning.
const (
	rejectsPerStep  = 3    // consecutive soft rejects before loosening
	maxBackoffSteps = 3    // loosening ceiling
	rmsStepScale    = 0.85 // RMS gate multiplier per step
	widenStep       = 0.12 // bound widening per step, fraction of base

	rmsGateStart = 1.6 // initial RMS gate, multiple of noise floor
	rmsGateFloor = 1.2 // the gate never drops below this multiple

	// Consecutive misses before the guidance escalates to stagnation.
	stagnationMisses = 5
)

// backoff tracks consecutive soft rejections for the current step and
// loosens the gates in bounded increments. It resets on every accepted
// sample and on step changes.
type backoff struct {
	rejects int
	steps   int
}

// recordReject counts a soft rejection; every rejectsPerStep in a row
// loosens the gates one step, up to maxBackoffSteps.
func (b *backoff) recordReject() {
	b.rejects++
	if b.rejects%rejectsPerStep == 0 && b.steps < maxBackoffSteps {
		b.steps++
	}
}

// recordAccept resets the consecutive rejection streak. Loosening already
// granted stays in force for the remainder of the step.
func (b *backoff) recordAccept() {
	b.rejects = 0
}

// reset returns the backoff to its tight starting point.
func (b *backoff) reset() {
	b.rejects = 0
	b.steps = 0
}

// bounds returns the soft gates for the step, widened by the current
// backoff level.
func (b *backoff) bounds(step Step) (gateBounds, bool) {
	base, ok := baseBounds(step)
	if !ok {
		return base, false
	}
	w := widenStep * float64(b.steps)
	return gateBounds{
		centroidLo: base.centroidLo * (1 - w),
		centroidHi: base.centroidHi * (1 + w),
		zcrLo:      base.zcrLo * (1 - w),
		zcrHi:      min(base.zcrHi*(1+w), 1.0),
	}, true
}

// rmsGate returns the minimum RMS an accepted strike must reach, derived
// from the measured noise floor and scaled down by the backoff level.
func (b *backoff) rmsGate(noiseFloor float64) float64 {
	gate := noiseFloor * rmsGateStart
	for i := 0; i < b.steps; i++ {
		gate *= rmsStepScale
	}
	floor := noiseFloor * rmsGateFloor
	if gate < floor {
		gate = floor
	}
	return gate
}
