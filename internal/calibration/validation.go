// SPDX-License-Identifier: MIT
package calibration

import (
	"beatbox/internal/analysis"
	"beatbox/internal/errs"
)

// Hard feature limits. A sample outside these is physically implausible for
// any microphone strike and is rejected before the per-sound gates run.
const (
	minCentroidHz = 50.0
	maxCentroidHz = 20000.0
)

// clipPeak marks a sample as clipped when its peak reaches 99% of full scale.
const clipPeak = 0.99

// validateFeatures applies the hard gates. Soft per-sound plausibility is
// handled by the backoff table.
func validateFeatures(f analysis.Features) error {
	if !isFinite(f.RMS) || f.RMS <= 0 {
		return errs.New(errs.CodeInvalidFeatures, "rms %.6f must be finite and positive", f.RMS)
	}
	if !isFinite(f.SpectralCentroid) || f.SpectralCentroid < minCentroidHz || f.SpectralCentroid > maxCentroidHz {
		return errs.New(errs.CodeInvalidFeatures,
			"centroid %.1f Hz outside [%.0f, %.0f]", f.SpectralCentroid, minCentroidHz, maxCentroidHz)
	}
	if !isFinite(f.ZeroCrossingRate) || f.ZeroCrossingRate < 0 || f.ZeroCrossingRate > 1 {
		return errs.New(errs.CodeInvalidFeatures, "zcr %.4f outside [0, 1]", f.ZeroCrossingRate)
	}
	return nil
}
