// SPDX-License-Identifier: MIT
/*
Package engine wires the full pipeline together: PortAudio capture (or a
fixture pump) feeds pooled buffers through an SPSC queue into one analysis
goroutine, which runs onset detection, feature extraction, classification
against the calibrated thresholds, and tempo quantization, publishing results
and metrics on bounded buses.

Thread Safety:
- The capture callback touches only the pool, the queue, and atomics
- Calibration state is published by atomic pointer swap
- The control plane (start/stop, bpm, patches) is mutex-guarded
*/
package engine

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"beatbox/internal/analysis"
	"beatbox/internal/audio"
	"beatbox/internal/buffer"
	"beatbox/internal/calibration"
	"beatbox/internal/config"
	"beatbox/internal/errs"
	applog "beatbox/internal/log"
	"beatbox/internal/telemetry"
	"beatbox/internal/transport"
)

type mode uint8

const (
	modeIdle mode = iota
	modeLive
	modeFixture
)

// gatePeakScale converts the calibrated noise floor RMS into the level
// gate's peak threshold.
const gatePeakScale = 1.6

// Stats is a point-in-time engine health snapshot for the UDP metric feed.
type Stats struct {
	AvgLatencyMs   float64
	MaxLatencyMs   float64
	QueueOccupancy float64
	QueueDropped   uint64
	PoolExhausted  uint64
	BusDropped     uint64
	FramesCaptured uint64
}

// Engine owns the capture stream, the buffer plumbing, the analysis
// goroutine, and the calibration lifecycle.
type Engine struct {
	cfg *config.Config

	pool  *buffer.Pool
	queue *buffer.Queue

	detector  *analysis.Detector
	extractor *analysis.Extractor
	gate      *analysis.LevelGate

	// Replaced wholesale on session reset while SetBpm/Bpm arrive from any
	// goroutine, so the pointer itself is swapped atomically.
	quantizer atomic.Pointer[analysis.Quantizer]

	calState atomic.Pointer[calibration.State]
	cal      atomic.Pointer[calibration.Procedure]

	// Pending level gate threshold. The gate itself belongs to the analysis
	// goroutine; the control plane parks updates here and the loop applies
	// them at the next buffer.
	gateUpdate atomic.Pointer[float64]

	results  *telemetry.Bus[analysis.Result]
	metrics  *telemetry.Bus[telemetry.MetricEvent]
	progress *telemetry.Bus[calibration.Progress]

	transports atomic.Pointer[[]transport.Transport]

	recorder *Recorder

	mu       sync.Mutex // control plane
	mode     mode
	stream   *portaudio.Stream
	done     chan struct{}
	loopWG   sync.WaitGroup
	pumpWG   sync.WaitGroup
	pumpDone chan struct{}

	// Producer-side counters. capSeq is touched only by the single producer;
	// framesCaptured is read by the control plane for Stats.
	capSeq         uint64
	framesCaptured atomic.Uint64

	// Consumer-side stream clock: samples the analysis loop has consumed.
	// This is the time base for onsets, quantization, and result timestamps.
	framesAnalyzed atomic.Uint64

	// Last published latency window, float64 bits.
	statAvgMs atomic.Uint64
	statMaxMs atomic.Uint64
}

// New builds an engine from the configuration. No hardware is touched until
// StartAudio; fixture sessions never touch hardware at all.
func New(cfg *config.Config) (*Engine, error) {
	windowType, err := analysis.ParseWindowFunc(cfg.Analysis.Window)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInitFailed, err, "window function")
	}

	detector, err := analysis.NewDetector(analysis.DetectorConfig{
		FFTSize:    cfg.Analysis.OnsetFFTSize,
		HopSize:    cfg.Analysis.OnsetHopSize,
		HalfWindow: cfg.Analysis.ThresholdHalfWindow,
		Offset:     cfg.Analysis.ThresholdOffset,
		MinGapMs:   cfg.Analysis.MinOnsetGapMs,
		MinHistory: config.DefaultMinFluxHistory,
		SampleRate: cfg.Audio.SampleRate,
		WindowType: windowType,
	})
	if err != nil {
		return nil, errs.Wrap(errs.CodeInitFailed, err, "onset detector")
	}

	extractor, err := analysis.NewExtractor(cfg.Analysis.FFTSize, cfg.Audio.SampleRate, windowType)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInitFailed, err, "feature extractor")
	}

	quantizer, err := analysis.NewQuantizer(cfg.Audio.SampleRate, cfg.Audio.Bpm)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		pool:      buffer.NewPool(cfg.Audio.PoolSize, cfg.Audio.BufferSize),
		queue:     buffer.NewQueue(cfg.Audio.PoolSize),
		detector:  detector,
		extractor: extractor,
		gate:      analysis.NewLevelGate(0),
		results:   telemetry.NewBus[analysis.Result](config.DefaultMetricRingDepth),
		metrics:   telemetry.NewBus[telemetry.MetricEvent](config.DefaultMetricRingDepth),
		progress:  telemetry.NewBus[calibration.Progress](config.DefaultMetricRingDepth),
		recorder:  NewRecorder(int(cfg.Audio.SampleRate), cfg.Recording.BitDepth),
	}
	e.quantizer.Store(quantizer)
	e.calState.Store(calibration.DefaultState())
	e.transports.Store(&[]transport.Transport{})
	e.recorder.OnError(func(err error) { e.publishError(err, "recorder") })
	return e, nil
}

// StartAudio opens the configured input device and starts live capture at
// the given tempo.
func (e *Engine) StartAudio(bpm float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode != modeIdle {
		return errs.New(errs.CodeAlreadyRunning, "engine already running")
	}
	if err := e.resetSessionLocked(bpm); err != nil {
		return err
	}

	device, err := audio.InputDevice(e.cfg.Audio.InputDevice)
	if err != nil {
		e.publishError(err, "input device")
		return err
	}

	latency := device.DefaultHighInputLatency
	if e.cfg.Audio.LowLatency {
		latency = device.DefaultLowInputLatency
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: e.cfg.Audio.InputChannels,
			Device:   device,
			Latency:  latency,
		},
		FramesPerBuffer: e.cfg.Audio.FramesPerBuffer,
		SampleRate:      e.cfg.Audio.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.captureCallback)
	if err != nil {
		code := errs.CodeStreamOpen
		if errors.Is(err, os.ErrPermission) {
			code = errs.CodePermission
		}
		werr := errs.Wrap(code, err, "open input stream")
		e.publishError(werr, "open input stream")
		return werr
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		werr := errs.Wrap(errs.CodeStreamOpen, err, "start input stream")
		e.publishError(werr, "start input stream")
		return werr
	}

	e.stream = stream
	e.mode = modeLive
	e.startLoopLocked()

	applog.Infof("Engine: live capture started (device %q, %.0f Hz, %.1f bpm)",
		device.Name, e.cfg.Audio.SampleRate, bpm)
	e.publishLifecycle("audio_started")
	return nil
}

// StopAudio tears live capture down: stop the stream, drain the queue, stop
// the analysis loop.
func (e *Engine) StopAudio() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode != modeLive {
		return errs.New(errs.CodeNotRunning, "no live capture to stop")
	}

	var firstErr error
	if err := e.stream.Stop(); err != nil {
		firstErr = errs.Wrap(errs.CodeStreamFailure, err, "stop input stream")
	}
	if err := e.stream.Close(); err != nil && firstErr == nil {
		firstErr = errs.Wrap(errs.CodeStreamFailure, err, "close input stream")
	}
	e.stream = nil
	if firstErr != nil {
		e.publishError(firstErr, "stop input stream")
	}

	e.stopLoopLocked()
	e.mode = modeIdle

	applog.Infof("Engine: live capture stopped")
	e.publishLifecycle("audio_stopped")
	return firstErr
}

// SetBpm changes the tempo; the new grid takes effect at the next beat
// boundary of the current one.
func (e *Engine) SetBpm(bpm float64) error {
	if err := e.quantizer.Load().SetBpm(bpm, e.framesAnalyzed.Load()); err != nil {
		return err
	}
	applog.Infof("Engine: tempo set to %.1f bpm", bpm)
	return nil
}

// Bpm returns the active tempo.
func (e *Engine) Bpm() float64 { return e.quantizer.Load().Bpm() }

// captureCallback is the PortAudio input callback. It copies the frame into
// a pooled buffer and pushes it to the analysis queue. No locks, no
// allocation, no logging; overload drops the frame and counts it.
func (e *Engine) captureCallback(in []float32) {
	b := e.pool.Acquire()
	if b == nil {
		e.framesCaptured.Add(uint64(len(in)))
		return
	}

	n := copy(b.Samples, in)
	b.Len = n
	e.capSeq++
	b.Seq = e.capSeq
	b.Timestamp = e.framesCaptured.Load()
	e.framesCaptured.Add(uint64(n))

	if !e.queue.Push(b) {
		e.pool.Release(b)
	}
}

// resetSessionLocked rewinds the stream clock and analysis state for a new
// capture or fixture session.
func (e *Engine) resetSessionLocked(bpm float64) error {
	if bpm == 0 {
		bpm = e.cfg.Audio.Bpm
	}
	quantizer, err := analysis.NewQuantizer(e.cfg.Audio.SampleRate, bpm)
	if err != nil {
		return err
	}
	e.quantizer.Store(quantizer)
	e.detector.Reset()
	e.capSeq = 0
	e.framesCaptured.Store(0)
	e.framesAnalyzed.Store(0)
	return nil
}

func (e *Engine) startLoopLocked() {
	e.done = make(chan struct{})
	e.loopWG.Add(1)
	go e.analysisLoop(e.done)
}

func (e *Engine) stopLoopLocked() {
	close(e.done)
	e.loopWG.Wait()
}

// SubscribeResults attaches a consumer to the classification stream.
func (e *Engine) SubscribeResults() *telemetry.Subscription[analysis.Result] {
	return e.results.Subscribe()
}

// SubscribeMetrics attaches a consumer to the metric event stream.
func (e *Engine) SubscribeMetrics() *telemetry.Subscription[telemetry.MetricEvent] {
	return e.metrics.Subscribe()
}

// SubscribeProgress attaches a consumer to the calibration progress stream.
func (e *Engine) SubscribeProgress() *telemetry.Subscription[calibration.Progress] {
	return e.progress.Subscribe()
}

// AddTransport attaches an outbound transport; every published result and
// metric event is also sent through it.
func (e *Engine) AddTransport(t transport.Transport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := append(append([]transport.Transport{}, *e.transports.Load()...), t)
	e.transports.Store(&next)
}

// Stats samples the engine health counters.
func (e *Engine) Stats() Stats {
	return Stats{
		AvgLatencyMs:   float64frombits(e.statAvgMs.Load()),
		MaxLatencyMs:   float64frombits(e.statMaxMs.Load()),
		QueueOccupancy: e.queue.Occupancy(),
		QueueDropped:   e.queue.Dropped(),
		PoolExhausted:  e.pool.Exhausted(),
		BusDropped:     e.results.Dropped() + e.metrics.Dropped() + e.progress.Dropped(),
		FramesCaptured: e.framesCaptured.Load(),
	}
}

// StartRecording taps the analyzed stream into a 16-bit PCM WAV file.
func (e *Engine) StartRecording(path string) error {
	return e.recorder.Start(path)
}

// StopRecording finalizes the WAV tap.
func (e *Engine) StopRecording() error {
	return e.recorder.Stop()
}

// Close stops whatever is running and releases transports.
func (e *Engine) Close() error {
	e.mu.Lock()
	m := e.mode
	e.mu.Unlock()

	var firstErr error
	switch m {
	case modeLive:
		firstErr = e.StopAudio()
	case modeFixture:
		firstErr = e.StopFixtureSession()
	}

	if err := e.recorder.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	for _, t := range *e.transports.Load() {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// publishError surfaces a coded failure once on the metric stream.
func (e *Engine) publishError(err error, context string) {
	e.metrics.Publish(telemetry.NewErrorEvent(int(errs.CodeOf(err)), context))
}

func (e *Engine) publishLifecycle(phase string) {
	e.metrics.Publish(telemetry.NewLifecycleEvent(phase, e.frameMs(e.framesAnalyzed.Load())))
}

func (e *Engine) frameMs(frame uint64) uint64 {
	return uint64(float64(frame) / e.cfg.Audio.SampleRate * 1000.0)
}

func (e *Engine) sendAll(payload any) {
	for _, t := range *e.transports.Load() {
		if err := t.Send(payload); err != nil {
			applog.Debugf("Engine: transport send failed: %v", err)
		}
	}
}
