// SPDX-License-Identifier: MIT
package telemetry

import (
	"math"

	"beatbox/internal/config"
	"beatbox/internal/errs"
)

// ParamPatch is a sparse override sent inbound over the command bus: tempo
// plus classifier thresholds. Nil fields are left untouched; at least one
// field must be set.
type ParamPatch struct {
	Bpm           *float64 `json:"bpm,omitempty"`
	KickCentroid  *float64 `json:"kick_centroid,omitempty"`
	KickZcr       *float64 `json:"kick_zcr,omitempty"`
	SnareCentroid *float64 `json:"snare_centroid,omitempty"`
	HihatZcr      *float64 `json:"hihat_zcr,omitempty"`
	NoiseFloorRMS *float64 `json:"noise_floor_rms,omitempty"`
}

// IsEmpty reports whether the patch carries no overrides.
func (p ParamPatch) IsEmpty() bool {
	return p.Bpm == nil && p.KickCentroid == nil && p.KickZcr == nil &&
		p.SnareCentroid == nil && p.HihatZcr == nil && p.NoiseFloorRMS == nil
}

// Validate rejects empty patches and per-field nonsense. Cross-field
// consistency (kick centroid below snare centroid) is checked by the
// engine against the state the patch lands on.
func (p ParamPatch) Validate() error {
	if p.IsEmpty() {
		return errs.New(errs.CodePatchEmpty, "patch carries no overrides")
	}
	if p.Bpm != nil && (!finite(*p.Bpm) || *p.Bpm < config.MinBpm || *p.Bpm > config.MaxBpm) {
		return errs.New(errs.CodeBpmInvalid, "bpm %.1f outside [%.0f, %.0f]", *p.Bpm, config.MinBpm, config.MaxBpm)
	}
	for _, f := range []struct {
		name string
		val  *float64
	}{
		{"kick_centroid", p.KickCentroid},
		{"snare_centroid", p.SnareCentroid},
	} {
		if f.val != nil && (!finite(*f.val) || *f.val <= 0) {
			return errs.New(errs.CodeInvalidFeatures, "%s %.2f must be finite and positive", f.name, *f.val)
		}
	}
	for _, f := range []struct {
		name string
		val  *float64
	}{
		{"kick_zcr", p.KickZcr},
		{"hihat_zcr", p.HihatZcr},
	} {
		if f.val != nil && (!finite(*f.val) || *f.val <= 0 || *f.val > 1) {
			return errs.New(errs.CodeInvalidFeatures, "%s %.4f outside (0, 1]", f.name, *f.val)
		}
	}
	if p.NoiseFloorRMS != nil && (!finite(*p.NoiseFloorRMS) || *p.NoiseFloorRMS < 0) {
		return errs.New(errs.CodeInvalidFeatures, "noise_floor_rms %.6f must be finite and non-negative", *p.NoiseFloorRMS)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
