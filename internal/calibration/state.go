// SPDX-License-Identifier: MIT
/*
Package calibration implements the guided calibration flow: noise floor
measurement, per-sound sample collection with quality gating and adaptive
backoff, explicit step confirmation, and the resulting threshold state.

The Procedure is fed from the analysis goroutine and controlled from the
API; a single mutex covers both since neither path is latency critical.
The finished State is immutable and published to the classifier by atomic
pointer swap in the engine.
*/
package calibration

import (
	"bytes"
	"encoding/json"
	"math"

	"beatbox/internal/analysis"
	"beatbox/internal/errs"
)

// State is the calibrated threshold set. The JSON field names are the
// persistence contract: snapshots written by one build must load in the
// next, and unknown fields are rejected on load.
type State struct {
	Level          int     `json:"level"`
	TKickCentroid  float64 `json:"t_kick_centroid"`
	TKickZcr       float64 `json:"t_kick_zcr"`
	TSnareCentroid float64 `json:"t_snare_centroid"`
	THihatZcr      float64 `json:"t_hihat_zcr"`
	IsCalibrated   bool    `json:"is_calibrated"`
	NoiseFloorRMS  float64 `json:"noise_floor_rms"`
}

// DefaultState returns the factory thresholds used before any calibration.
func DefaultState() *State {
	return &State{
		Level:          1,
		TKickCentroid:  analysis.DefaultKickCentroid,
		TKickZcr:       analysis.DefaultKickZcr,
		TSnareCentroid: analysis.DefaultSnareCentroid,
		THihatZcr:      analysis.DefaultHihatZcr,
	}
}

// Thresholds converts the state into the classifier's decision boundaries.
func (s *State) Thresholds() analysis.Thresholds {
	return analysis.Thresholds{
		KickCentroid:  s.TKickCentroid,
		KickZcr:       s.TKickZcr,
		SnareCentroid: s.TSnareCentroid,
		HihatZcr:      s.THihatZcr,
		Level:         s.Level,
	}
}

// JSON serializes the state for persistence.
func (s *State) JSON() ([]byte, error) {
	return json.Marshal(s)
}

// ParseState loads and validates a persisted state snapshot. Unknown keys
// and non-finite or out-of-range values are rejected: a corrupt snapshot
// must not silently poison classification.
func ParseState(data []byte) (*State, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var s State
	if err := dec.Decode(&s); err != nil {
		return nil, errs.Wrap(errs.CodeInvalidFeatures, err, "calibration state parse")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the state for values the classifier cannot operate on.
func (s *State) Validate() error {
	if s.Level < 1 || s.Level > 2 {
		return errs.New(errs.CodeInvalidFeatures, "level %d outside [1, 2]", s.Level)
	}
	for _, v := range []struct {
		name string
		val  float64
	}{
		{"t_kick_centroid", s.TKickCentroid},
		{"t_snare_centroid", s.TSnareCentroid},
	} {
		if !isFinite(v.val) || v.val <= 0 {
			return errs.New(errs.CodeInvalidFeatures, "%s %.2f must be finite and positive", v.name, v.val)
		}
	}
	for _, v := range []struct {
		name string
		val  float64
	}{
		{"t_kick_zcr", s.TKickZcr},
		{"t_hihat_zcr", s.THihatZcr},
	} {
		if !isFinite(v.val) || v.val <= 0 || v.val > 1 {
			return errs.New(errs.CodeInvalidFeatures, "%s %.4f outside (0, 1]", v.name, v.val)
		}
	}
	if s.TKickCentroid >= s.TSnareCentroid {
		return errs.New(errs.CodeInvalidFeatures,
			"t_kick_centroid %.0f must be below t_snare_centroid %.0f", s.TKickCentroid, s.TSnareCentroid)
	}
	if !isFinite(s.NoiseFloorRMS) || s.NoiseFloorRMS < 0 {
		return errs.New(errs.CodeInvalidFeatures, "noise_floor_rms %.4f must be finite and non-negative", s.NoiseFloorRMS)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
