// SPDX-License-Identifier: MIT
package engine

import (
	"math"
	"time"

	"beatbox/internal/analysis"
	"beatbox/internal/buffer"
	"beatbox/internal/calibration"
	"beatbox/internal/config"
	applog "beatbox/internal/log"
	"beatbox/internal/telemetry"
)

// historyMax bounds the retained sample history. It must cover the onset
// detector's reporting lag (half window times hop) plus one feature window
// plus one capture buffer; 16384 leaves ample slack at the default geometry.
const historyMax = 16384

// gateMatchWindow is the tolerance, in samples, between a level gate fire
// and the onset frame it vouches for.
const gateMatchWindow = 1024

// pollInterval is how long the loop sleeps when the queue is empty.
const pollInterval = 500 * time.Microsecond

// streamHistory is a sliding window over the consumed sample stream, used to
// cut feature windows at onset positions the detector reports with lag.
type streamHistory struct {
	samples []float32
	start   uint64 // stream index of samples[0]
	max     int
}

func (h *streamHistory) append(chunk []float32) {
	h.samples = append(h.samples, chunk...)
	if over := len(h.samples) - h.max; over > 0 {
		copy(h.samples, h.samples[over:])
		h.samples = h.samples[:len(h.samples)-over]
		h.start += uint64(over)
	}
}

// window returns up to n samples starting at stream index from. Returns
// false when the requested range has already slid out of retention.
func (h *streamHistory) window(from uint64, n int) ([]float32, bool) {
	if from < h.start {
		return nil, false
	}
	off := int(from - h.start)
	if off >= len(h.samples) {
		return nil, false
	}
	end := off + n
	if end > len(h.samples) {
		end = len(h.samples)
	}
	return h.samples[off:end], true
}

// analysisLoop is the single consumer of the capture queue. It runs until
// done is closed, then drains whatever the producer already pushed so a
// fixture session never loses its tail.
func (e *Engine) analysisLoop(done chan struct{}) {
	defer e.loopWG.Done()

	hist := &streamHistory{max: historyMax}
	var gateFires []uint64

	logEvery := e.cfg.Analysis.LogEveryNBuffers
	if logEvery < 1 {
		logEvery = config.DefaultLogEveryNBuffers
	}

	var latSum, latMax, lastRMS, lastPeak float64
	latCount := 0
	buffers := 0

	for {
		b, ok := e.queue.Pop()
		if !ok {
			select {
			case <-done:
				for {
					b, ok := e.queue.Pop()
					if !ok {
						return
					}
					e.processBuffer(b, hist, &gateFires)
					e.pool.Release(b)
				}
			default:
				time.Sleep(pollInterval)
				continue
			}
		}

		start := time.Now()
		lastRMS, lastPeak = e.processBuffer(b, hist, &gateFires)
		e.pool.Release(b)
		elapsed := float64(time.Since(start)) / float64(time.Millisecond)

		latSum += elapsed
		if elapsed > latMax {
			latMax = elapsed
		}
		latCount++
		buffers++

		if buffers%logEvery == 0 {
			avg := latSum / float64(latCount)
			e.statAvgMs.Store(math.Float64bits(avg))
			e.statMaxMs.Store(math.Float64bits(latMax))

			frame := e.framesAnalyzed.Load()
			e.metrics.Publish(telemetry.NewLatencyEvent(avg, latMax, latCount))
			e.metrics.Publish(telemetry.NewOccupancyEvent("analysis", e.queue.Occupancy()))
			e.metrics.Publish(telemetry.NewAudioEvent(lastRMS, lastPeak, frame, e.frameMs(frame)))
			applog.Debugf("Engine: %d buffers, latency avg=%.3fms max=%.3fms, queue %.0f%%, dropped q=%d pool=%d",
				buffers, avg, latMax, e.queue.Occupancy(), e.queue.Dropped(), e.pool.Exhausted())

			latSum, latMax, latCount = 0, 0, 0
		}
	}
}

// processBuffer advances the stream clock through one capture buffer:
// level measurement, calibration feeding, onset detection, and per-onset
// classification. Returns the buffer's RMS and peak for telemetry.
func (e *Engine) processBuffer(b *buffer.Buffer, hist *streamHistory, gateFires *[]uint64) (rms, peak float64) {
	samples := b.Samples[:b.Len]
	if len(samples) == 0 {
		return 0, 0
	}
	bufStart := e.framesAnalyzed.Load()

	if pending := e.gateUpdate.Swap(nil); pending != nil {
		e.gate.SetThreshold(*pending)
	}

	var sumSq float64
	for _, s := range samples {
		v := float64(s)
		sumSq += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	rms = math.Sqrt(sumSq / float64(len(samples)))

	if e.recorder.Active() {
		e.recorder.Write(samples)
	}

	if cal := e.cal.Load(); cal != nil && cal.Step() == calibration.StepNoiseFloor {
		prog := cal.AddNoiseSample(rms)
		e.progress.Publish(prog)
		if prog.Step != calibration.StepNoiseFloor {
			// Floor established: raise the level gate above the ambient bed.
			e.gate.SetThreshold(cal.NoiseFloor() * gatePeakScale)
		}
	}

	if e.gate.Process(peak) {
		*gateFires = append(*gateFires, bufStart)
	}
	retain := uint64(e.cfg.Audio.SampleRate)
	for len(*gateFires) > 0 && bufStart > (*gateFires)[0]+retain {
		*gateFires = (*gateFires)[1:]
	}

	hist.append(samples)
	onsets := e.detector.Process(samples)
	e.framesAnalyzed.Add(uint64(len(samples)))

	for _, onset := range onsets {
		if !matchGateFire(*gateFires, onset.Frame) {
			continue
		}
		// The detector stamps the frame where its STFT window closed, so the
		// attack sits up to one onset window earlier in the stream.
		start := onset.Frame
		if back := uint64(e.cfg.Analysis.OnsetFFTSize); start > back {
			start -= back
		} else {
			start = 0
		}
		window, ok := hist.window(start, e.extractor.FFTSize())
		if !ok {
			applog.Warnf("Engine: onset at frame %d slid out of history", onset.Frame)
			continue
		}
		e.handleOnset(onset, e.extractor.Extract(window))
	}
	return rms, peak
}

// matchGateFire reports whether some level gate fire vouches for the onset.
// Flux ghosts without an amplitude excursion are discarded here.
func matchGateFire(fires []uint64, frame uint64) bool {
	for _, f := range fires {
		diff := frame - f
		if frame < f {
			diff = f - frame
		}
		if diff <= gateMatchWindow {
			return true
		}
	}
	return false
}

// handleOnset routes one detected onset: to the calibration procedure while
// a run is active, otherwise through classification and quantization.
func (e *Engine) handleOnset(onset analysis.Onset, f analysis.Features) {
	if cal := e.cal.Load(); cal != nil {
		e.progress.Publish(cal.AddOnsetSample(f))
		return
	}

	cls := analysis.Classify(f, e.calState.Load().Thresholds())
	timing := e.quantizer.Load().Quantize(onset.Frame)

	res := analysis.Result{
		Sound:         cls.Sound,
		Confidence:    cls.Confidence,
		Timing:        timing.Timing,
		TimingErrorMs: timing.ErrorMs,
		TimestampMs:   e.frameMs(onset.Frame),
	}
	e.results.Publish(res)
	e.metrics.Publish(telemetry.NewClassificationEvent(cls.Sound.String(), cls.Confidence, timing.ErrorMs))
	e.sendAll(res)

	applog.Debugf("Engine: onset @%dms %s conf=%.2f %s %+.2fms",
		res.TimestampMs, res.Sound, res.Confidence, res.Timing, res.TimingErrorMs)
}

func float64frombits(bits uint64) float64 {
	return math.Float64frombits(bits)
}
