// SPDX-License-Identifier: MIT
package calibration

// Step is the current phase of the calibration flow.
type Step uint8

const (
	StepNoiseFloor Step = iota
	StepKick
	StepSnare
	StepHiHat
	StepComplete
)

// String returns the wire name of the step.
func (s Step) String() string {
	switch s {
	case StepNoiseFloor:
		return "noise_floor"
	case StepKick:
		return "kick"
	case StepSnare:
		return "snare"
	case StepHiHat:
		return "hihat"
	case StepComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// MarshalText makes Step serialize as its wire name.
func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// next returns the step that follows s in the fixed flow.
func (s Step) next() Step {
	switch s {
	case StepNoiseFloor:
		return StepKick
	case StepKick:
		return StepSnare
	case StepSnare:
		return StepHiHat
	default:
		return StepComplete
	}
}

// isSoundPhase reports whether the step collects sound samples.
func (s Step) isSoundPhase() bool {
	return s == StepKick || s == StepSnare || s == StepHiHat
}

// GuidanceReason tells the user why their last strike was not accepted.
type GuidanceReason uint8

const (
	GuidanceNone GuidanceReason = iota
	GuidanceTooQuiet
	GuidanceClipped
	GuidanceImplausible
	GuidanceStagnation
)

// String returns the wire name of the guidance reason.
func (g GuidanceReason) String() string {
	switch g {
	case GuidanceTooQuiet:
		return "too_quiet"
	case GuidanceClipped:
		return "clipped"
	case GuidanceImplausible:
		return "implausible"
	case GuidanceStagnation:
		return "stagnation"
	default:
		return "none"
	}
}

// MarshalText makes GuidanceReason serialize as its wire name.
func (g GuidanceReason) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// Progress is a snapshot of the calibration flow, streamed to subscribers
// after every state change.
type Progress struct {
	Step                   Step           `json:"step"`
	Collected              int            `json:"collected"`
	Needed                 int            `json:"needed"`
	Guidance               GuidanceReason `json:"guidance"`
	Misses                 int            `json:"misses"`
	ManualAcceptAvailable  bool           `json:"manual_accept_available"`
	WaitingForConfirmation bool           `json:"waiting_for_confirmation"`
}
