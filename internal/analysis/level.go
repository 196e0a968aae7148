// SPDX-License-Identifier: MIT
package analysis

// LevelGate is an amplitude gate with hysteresis. It fires once when the
// signal crosses the threshold and stays closed until the level falls back
// below resetRatio of the threshold, so the ringing tail of a single hit
// cannot re-trigger it.
type LevelGate struct {
	threshold  float64
	resetRatio float64
	armed      bool
}

// defaultResetRatio re-arms the gate once the level drops to 60% of the
// detection threshold.
const defaultResetRatio = 0.6

// NewLevelGate creates an armed gate. A threshold of 0 makes the gate
// transparent: every Process call with a positive peak fires.
func NewLevelGate(threshold float64) *LevelGate {
	return &LevelGate{
		threshold:  threshold,
		resetRatio: defaultResetRatio,
		armed:      true,
	}
}

// SetThreshold updates the detection threshold, typically after calibration
// establishes the noise floor. The gate re-arms on threshold change.
func (g *LevelGate) SetThreshold(threshold float64) {
	g.threshold = threshold
	g.armed = true
}

// Threshold returns the current detection threshold.
func (g *LevelGate) Threshold() float64 { return g.threshold }

// Process feeds the peak level of one buffer. Returns true exactly once per
// excursion above the threshold.
func (g *LevelGate) Process(peak float64) bool {
	if g.threshold == 0 {
		return peak > 0
	}
	if g.armed {
		if peak > g.threshold {
			g.armed = false
			return true
		}
		return false
	}
	if peak < g.threshold*g.resetRatio {
		g.armed = true
	}
	return false
}
