// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"beatbox/pkg/bitint"
)

// Onset marks a detected percussive attack in the sample stream.
type Onset struct {
	Frame     uint64  // stream sample index of the attack
	Flux      float64 // spectral flux at the peak
	Threshold float64 // adaptive threshold the peak cleared
}

// DetectorConfig bounds the spectral flux onset detector.
type DetectorConfig struct {
	FFTSize    int     // STFT size, power of 2
	HopSize    int     // samples between STFT frames
	HalfWindow int     // flux frames each side of the rolling median
	Offset     float64 // added to the median to form the threshold
	MinGapMs   float64 // minimum spacing between reported onsets
	MinHistory int     // samples to observe before arming
	SampleRate float64 // Hz
	WindowType WindowFunc
}

type fluxFrame struct {
	frame uint64
	flux  float64
}

// Detector finds onsets by spectral flux: the positive change in magnitude
// between consecutive STFT frames, compared against a rolling median
// threshold. Detection lags the input by HalfWindow hops because the median
// window must close around a candidate before it can be judged.
type Detector struct {
	cfg DetectorConfig
	fft *fourier.FFT

	window []float64
	input  []float64
	coeffs []complex128
	mag    []float64
	prev   []float64
	warm   bool

	buf      []float32 // unconsumed tail of the sample stream
	bufStart uint64    // stream index of buf[0]

	flux    []fluxFrame // sliding median window, 2*HalfWindow+1 frames
	scratch []float64   // sort buffer for the median

	minGap    uint64
	lastOnset uint64
	haveOnset bool

	out []Onset // reused result slice
}

// NewDetector constructs a streaming onset detector.
func NewDetector(cfg DetectorConfig) (*Detector, error) {
	if !bitint.IsPowerOfTwo(cfg.FFTSize) {
		return nil, fmt.Errorf("onset fft size must be a power of 2, got %d", cfg.FFTSize)
	}
	if cfg.HopSize < 1 || cfg.HopSize > cfg.FFTSize {
		return nil, fmt.Errorf("hop size %d outside [1, %d]", cfg.HopSize, cfg.FFTSize)
	}
	if cfg.HalfWindow < 1 {
		return nil, fmt.Errorf("half window must be >= 1, got %d", cfg.HalfWindow)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", cfg.SampleRate)
	}

	magSize := cfg.FFTSize/2 + 1
	span := 2*cfg.HalfWindow + 1
	return &Detector{
		cfg:     cfg,
		fft:     fourier.NewFFT(cfg.FFTSize),
		window:  windowCoefficients(cfg.FFTSize, cfg.WindowType),
		input:   make([]float64, cfg.FFTSize),
		coeffs:  make([]complex128, magSize),
		mag:     make([]float64, magSize),
		prev:    make([]float64, magSize),
		buf:     make([]float32, 0, cfg.FFTSize*4),
		flux:    make([]fluxFrame, 0, span),
		scratch: make([]float64, span),
		minGap:  uint64(cfg.MinGapMs * cfg.SampleRate / 1000.0),
		out:     make([]Onset, 0, 4),
	}, nil
}

// Process feeds the next contiguous chunk of the stream and returns any
// onsets whose median window closed during this call. The returned slice is
// reused across calls; callers must not retain it.
func (d *Detector) Process(samples []float32) []Onset {
	d.out = d.out[:0]
	d.buf = append(d.buf, samples...)

	for len(d.buf) >= d.cfg.FFTSize {
		d.processFrame()

		// Slide by one hop.
		copy(d.buf, d.buf[d.cfg.HopSize:])
		d.buf = d.buf[:len(d.buf)-d.cfg.HopSize]
		d.bufStart += uint64(d.cfg.HopSize)
	}
	return d.out
}

// Processed reports the total number of stream samples consumed so far.
func (d *Detector) Processed() uint64 {
	return d.bufStart + uint64(len(d.buf))
}

func (d *Detector) processFrame() {
	for i := 0; i < d.cfg.FFTSize; i++ {
		d.input[i] = float64(d.buf[i]) * d.window[i]
	}
	d.fft.Coefficients(d.coeffs, d.input)

	var flux float64
	for i, c := range d.coeffs {
		d.mag[i] = cmplx.Abs(c)
		if rise := d.mag[i] - d.prev[i]; rise > 0 {
			flux += rise
		}
	}
	copy(d.prev, d.mag)

	// The first frame has no predecessor; its flux would be the full
	// spectrum magnitude and would poison the median window.
	if !d.warm {
		d.warm = true
		return
	}

	span := 2*d.cfg.HalfWindow + 1
	d.flux = append(d.flux, fluxFrame{frame: d.bufStart + uint64(d.cfg.FFTSize), flux: flux})
	if len(d.flux) < span {
		return
	}

	d.evaluateCenter()

	copy(d.flux, d.flux[1:])
	d.flux = d.flux[:span-1]
}

// evaluateCenter judges the frame in the middle of the median window: it is
// an onset when it is a local peak that clears median+offset, the detector
// has seen enough history to trust its statistics, and the debounce gap
// since the last onset has passed.
func (d *Detector) evaluateCenter() {
	center := d.cfg.HalfWindow
	cand := d.flux[center]

	if cand.flux <= d.flux[center-1].flux || cand.flux < d.flux[center+1].flux {
		return
	}

	for i, f := range d.flux {
		d.scratch[i] = f.flux
	}
	sort.Float64s(d.scratch)
	threshold := stat.Quantile(0.5, stat.Empirical, d.scratch, nil) + d.cfg.Offset

	if cand.flux <= threshold {
		return
	}
	if cand.frame < uint64(d.cfg.MinHistory) {
		return
	}
	if d.haveOnset && cand.frame-d.lastOnset < d.minGap {
		return
	}

	d.lastOnset = cand.frame
	d.haveOnset = true
	d.out = append(d.out, Onset{Frame: cand.frame, Flux: cand.flux, Threshold: threshold})
}

// Reset clears all detector state so a new stream can be fed.
func (d *Detector) Reset() {
	d.buf = d.buf[:0]
	d.bufStart = 0
	d.flux = d.flux[:0]
	d.haveOnset = false
	d.lastOnset = 0
	d.warm = false
	for i := range d.prev {
		d.prev[i] = 0
	}
}
