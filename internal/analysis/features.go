// SPDX-License-Identifier: MIT
/*
Package analysis implements the DSP chain of the beatbox engine: feature
extraction around detected onsets, spectral-flux onset detection, the
calibrated sound classifier, and the tempo quantizer.

All types in this package are driven from the single analysis goroutine.
They pre-allocate their workspaces at construction and do not allocate or
lock in their processing methods.
*/
package analysis

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"beatbox/pkg/bitint"
)

// Features is the acoustic fingerprint of one onset window. All values are
// finite for every input; silence produces the zero value.
type Features struct {
	RMS              float64 `json:"rms"`
	SpectralCentroid float64 `json:"spectral_centroid"` // Hz
	ZeroCrossingRate float64 `json:"zcr"`               // [0, 1]
	SpectralFlatness float64 `json:"spectral_flatness"` // [0, 1]
	SpectralRolloff  float64 `json:"spectral_rolloff"`  // Hz, 85% energy point
	DecayTimeMs      float64 `json:"decay_time_ms"`     // peak to 10% of peak
	Peak             float64 `json:"peak"`              // max absolute sample
}

// rolloffFraction is the share of spectral energy below the rolloff point.
const rolloffFraction = 0.85

// decayFloorRatio defines where the decay measurement ends, relative to the
// envelope peak.
const decayFloorRatio = 0.1

// Extractor computes Features from a window of samples. Workspace buffers
// are allocated once; Extract is allocation-free.
type Extractor struct {
	fft        *fourier.FFT
	fftSize    int
	sampleRate float64

	input  []float64
	coeffs []complex128
	mag    []float64
	window []float64
}

// NewExtractor creates a feature extractor for windows of fftSize samples.
func NewExtractor(fftSize int, sampleRate float64, windowType WindowFunc) (*Extractor, error) {
	if !bitint.IsPowerOfTwo(fftSize) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", fftSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}

	magSize := fftSize/2 + 1
	return &Extractor{
		fft:        fourier.NewFFT(fftSize),
		fftSize:    fftSize,
		sampleRate: sampleRate,
		input:      make([]float64, fftSize),
		coeffs:     make([]complex128, magSize),
		mag:        make([]float64, magSize),
		window:     windowCoefficients(fftSize, windowType),
	}, nil
}

// FFTSize returns the analysis window length in samples.
func (e *Extractor) FFTSize() int { return e.fftSize }

// Extract computes the full feature set for one onset window. Input shorter
// than the FFT size is zero-padded; longer input is truncated. Pure silence
// returns the zero Features value.
func (e *Extractor) Extract(samples []float32) Features {
	n := len(samples)
	if n > e.fftSize {
		n = e.fftSize
	}
	if n == 0 {
		return Features{}
	}

	// Time-domain measures on the raw (unwindowed) samples.
	var sumSq, peak float64
	peakIdx := 0
	for i := 0; i < n; i++ {
		s := float64(samples[i])
		sumSq += s * s
		if a := math.Abs(s); a > peak {
			peak = a
			peakIdx = i
		}
	}
	rms := math.Sqrt(sumSq / float64(n))
	if rms == 0 {
		return Features{}
	}

	crossings := 0
	for i := 1; i < n; i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	zcr := 0.0
	if n > 1 {
		zcr = float64(crossings) / float64(n-1)
	}

	// Windowed spectrum.
	for i := 0; i < e.fftSize; i++ {
		if i < n {
			e.input[i] = float64(samples[i]) * e.window[i]
		} else {
			e.input[i] = 0
		}
	}
	e.fft.Coefficients(e.coeffs, e.input)
	for i, c := range e.coeffs {
		e.mag[i] = cmplx.Abs(c)
	}

	binHz := e.sampleRate / float64(e.fftSize)

	var magSum, weightedSum float64
	for i, m := range e.mag {
		magSum += m
		weightedSum += float64(i) * binHz * m
	}
	centroid := 0.0
	if magSum > 0 {
		centroid = weightedSum / magSum
	}

	flatness := spectralFlatness(e.mag)
	rolloff := spectralRolloff(e.mag, binHz)
	decay := e.decayTimeMs(samples[:n], peakIdx, peak)

	return Features{
		RMS:              rms,
		SpectralCentroid: centroid,
		ZeroCrossingRate: zcr,
		SpectralFlatness: flatness,
		SpectralRolloff:  rolloff,
		DecayTimeMs:      decay,
		Peak:             peak,
	}
}

// spectralFlatness is the ratio of geometric to arithmetic magnitude mean.
// Near 0 for tonal content, near 1 for noise. The epsilon keeps the log
// defined for empty bins without visibly skewing non-degenerate spectra.
func spectralFlatness(mag []float64) float64 {
	const eps = 1e-12
	var logSum, sum float64
	for _, m := range mag {
		logSum += math.Log(m + eps)
		sum += m + eps
	}
	nf := float64(len(mag))
	gm := math.Exp(logSum / nf)
	am := sum / nf
	f := gm / am
	if f > 1 {
		f = 1
	}
	return f
}

// spectralRolloff finds the frequency below which rolloffFraction of the
// spectral energy lies.
func spectralRolloff(mag []float64, binHz float64) float64 {
	var total float64
	for _, m := range mag {
		total += m * m
	}
	if total == 0 {
		return 0
	}
	target := total * rolloffFraction
	var cum float64
	for i, m := range mag {
		cum += m * m
		if cum >= target {
			return float64(i) * binHz
		}
	}
	return float64(len(mag)-1) * binHz
}

// decayTimeMs measures how long the envelope takes to fall from its peak to
// decayFloorRatio of the peak. If the window ends before the floor is
// reached, the remaining window length is reported: a truncated tail reads
// as a long decay, which is the honest answer for sustained sounds.
func (e *Extractor) decayTimeMs(samples []float32, peakIdx int, peak float64) float64 {
	floor := peak * decayFloorRatio
	for i := peakIdx + 1; i < len(samples); i++ {
		if math.Abs(float64(samples[i])) <= floor {
			return float64(i-peakIdx) / e.sampleRate * 1000.0
		}
	}
	return float64(len(samples)-1-peakIdx) / e.sampleRate * 1000.0
}
