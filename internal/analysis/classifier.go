// SPDX-License-Identifier: MIT
package analysis

// Sound is a classified beatbox sound.
type Sound uint8

const (
	SoundUnknown Sound = iota
	SoundKick
	SoundSnare
	SoundHiHat
	SoundKSnare
	SoundClosedHiHat
	SoundOpenHiHat
)

// String returns the wire name of the sound.
func (s Sound) String() string {
	switch s {
	case SoundKick:
		return "kick"
	case SoundSnare:
		return "snare"
	case SoundHiHat:
		return "hihat"
	case SoundKSnare:
		return "k_snare"
	case SoundClosedHiHat:
		return "closed_hihat"
	case SoundOpenHiHat:
		return "open_hihat"
	default:
		return "unknown"
	}
}

// MarshalText makes Sound serialize as its wire name in JSON payloads.
func (s Sound) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Thresholds holds the classifier decision boundaries. Level 1 separates
// kick, snare, and hihat on centroid and zero-crossing rate; Level 2 adds
// flatness and decay refinements within those families.
type Thresholds struct {
	KickCentroid  float64 // Hz, kicks live below this
	KickZcr       float64 // kicks live below this
	SnareCentroid float64 // Hz, snares live below, hihats above
	HihatZcr      float64 // hihats live above this
	Level         int     // 1 or 2
}

// Factory defaults used before calibration. Derived from typical acoustic
// beatbox recordings at 48 kHz.
const (
	DefaultKickCentroid  = 1500.0
	DefaultKickZcr       = 0.1
	DefaultSnareCentroid = 4000.0
	DefaultHihatZcr      = 0.3
)

// DefaultThresholds returns the uncalibrated Level 1 boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		KickCentroid:  DefaultKickCentroid,
		KickZcr:       DefaultKickZcr,
		SnareCentroid: DefaultSnareCentroid,
		HihatZcr:      DefaultHihatZcr,
		Level:         1,
	}
}

// Classification is the outcome of classifying one onset.
type Classification struct {
	Sound      Sound   `json:"sound"`
	Confidence float64 `json:"confidence"` // (0, 1], 0 only for unknown
}

// Level 2 refinement boundaries.
const (
	kickFlatnessTonal = 0.1   // below: clean kick
	kickFlatnessNoisy = 0.3   // above: kick-snare hybrid
	hihatDecayClosed  = 50.0  // ms, below: closed hihat
	hihatDecayOpen    = 150.0 // ms, above: open hihat
)

// scoreFloor keeps a gated category's score strictly positive so confidence
// stays in (0, 1] even at the exact decision boundary.
const scoreFloor = 0.05

// Classify maps a feature vector to a sound. It is a pure function: no
// state, no allocation, safe to call from any goroutine with any
// Thresholds snapshot.
//
// Each category gates on its feature region, scores its distance from the
// boundary, and the winner is picked in fixed kick, snare, hihat priority.
// Confidence is the winner's share of the total gated score, so overlapping
// regions read as lower confidence.
func Classify(f Features, th Thresholds) Classification {
	if f.RMS <= 0 {
		return Classification{Sound: SoundUnknown}
	}

	kickGated := f.SpectralCentroid < th.KickCentroid && f.ZeroCrossingRate < th.KickZcr
	snareGated := f.SpectralCentroid < th.SnareCentroid
	hihatGated := f.SpectralCentroid >= th.SnareCentroid && f.ZeroCrossingRate > th.HihatZcr

	var kickScore, snareScore, hihatScore float64
	if kickGated {
		kickScore = clampScore(0.5*(1-f.SpectralCentroid/th.KickCentroid) +
			0.5*(1-f.ZeroCrossingRate/th.KickZcr))
	}
	if snareGated {
		snareScore = clampScore(1 - f.SpectralCentroid/th.SnareCentroid)
	}
	if hihatGated {
		zcrSpan := 1 - th.HihatZcr
		if zcrSpan <= 0 {
			zcrSpan = 1
		}
		hihatScore = clampScore(0.5*(f.ZeroCrossingRate-th.HihatZcr)/zcrSpan +
			0.5*(f.SpectralCentroid-th.SnareCentroid)/th.SnareCentroid)
	}

	total := kickScore + snareScore + hihatScore
	if total == 0 {
		return Classification{Sound: SoundUnknown}
	}

	var sound Sound
	var winner float64
	switch {
	case kickGated:
		sound, winner = SoundKick, kickScore
	case snareGated:
		sound, winner = SoundSnare, snareScore
	case hihatGated:
		sound, winner = SoundHiHat, hihatScore
	default:
		return Classification{Sound: SoundUnknown}
	}

	if th.Level >= 2 {
		sound = refine(sound, f)
	}

	return Classification{Sound: sound, Confidence: winner / total}
}

// refine applies the Level 2 sub-family split.
func refine(sound Sound, f Features) Sound {
	switch sound {
	case SoundKick:
		if f.SpectralFlatness > kickFlatnessNoisy {
			return SoundKSnare
		}
		return SoundKick
	case SoundHiHat:
		if f.DecayTimeMs < hihatDecayClosed {
			return SoundClosedHiHat
		}
		if f.DecayTimeMs > hihatDecayOpen {
			return SoundOpenHiHat
		}
		return SoundHiHat
	default:
		return sound
	}
}

func clampScore(s float64) float64 {
	if s < scoreFloor {
		return scoreFloor
	}
	if s > 1 {
		return 1
	}
	return s
}
