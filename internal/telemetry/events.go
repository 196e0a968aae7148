// SPDX-License-Identifier: MIT
/*
Package telemetry provides the engine's in-process event buses and the
metric event model. Buses are bounded: publishing never blocks the analysis
loop, and a slow subscriber loses its oldest events, counted globally.
*/
package telemetry

// EventType discriminates the MetricEvent union on the wire.
type EventType string

const (
	EventLatency        EventType = "latency"
	EventOccupancy      EventType = "buffer_occupancy"
	EventClassification EventType = "classification"
	EventLifecycle      EventType = "lifecycle"
	EventError          EventType = "error"
	EventAudio          EventType = "audio"
)

// MetricEvent is the tagged union carried on the metric bus. Exactly one
// payload field is non-nil, matching Type.
type MetricEvent struct {
	Type           EventType             `json:"type"`
	Latency        *LatencyMetric        `json:"latency,omitempty"`
	Occupancy      *OccupancyMetric      `json:"buffer_occupancy,omitempty"`
	Classification *ClassificationMetric `json:"classification,omitempty"`
	Lifecycle      *LifecycleMetric      `json:"lifecycle,omitempty"`
	Error          *ErrorMetric          `json:"error,omitempty"`
	Audio          *AudioMetric          `json:"audio,omitempty"`
}

// LatencyMetric summarizes analysis processing time over a window.
type LatencyMetric struct {
	AvgMs       float64 `json:"avg_ms"`
	MaxMs       float64 `json:"max_ms"`
	SampleCount int     `json:"sample_count"`
}

// OccupancyMetric reports the fill level of a named channel.
type OccupancyMetric struct {
	Channel string  `json:"channel"`
	Percent float64 `json:"percent"`
}

// ClassificationMetric mirrors one emitted classification for dashboards.
type ClassificationMetric struct {
	Sound         string  `json:"sound"`
	Confidence    float64 `json:"confidence"`
	TimingErrorMs float64 `json:"timing_error_ms"`
}

// LifecycleMetric marks an engine lifecycle transition.
type LifecycleMetric struct {
	Phase       string `json:"phase"`
	TimestampMs uint64 `json:"timestamp_ms"`
}

// ErrorMetric carries a coded failure onto the metric stream.
type ErrorMetric struct {
	Code    int    `json:"code"`
	Context string `json:"context"`
}

// AudioMetric is a periodic sample of the analyzed signal level.
type AudioMetric struct {
	RMS         float64 `json:"rms"`
	Peak        float64 `json:"peak"`
	Frame       uint64  `json:"frame"`
	TimestampMs uint64  `json:"timestamp_ms"`
}

// NewLatencyEvent builds a latency metric event.
func NewLatencyEvent(avgMs, maxMs float64, sampleCount int) MetricEvent {
	return MetricEvent{Type: EventLatency, Latency: &LatencyMetric{AvgMs: avgMs, MaxMs: maxMs, SampleCount: sampleCount}}
}

// NewOccupancyEvent builds a buffer occupancy metric event.
func NewOccupancyEvent(channel string, percent float64) MetricEvent {
	return MetricEvent{Type: EventOccupancy, Occupancy: &OccupancyMetric{Channel: channel, Percent: percent}}
}

// NewClassificationEvent builds a classification metric event.
func NewClassificationEvent(sound string, confidence, timingErrorMs float64) MetricEvent {
	return MetricEvent{Type: EventClassification, Classification: &ClassificationMetric{
		Sound: sound, Confidence: confidence, TimingErrorMs: timingErrorMs}}
}

// NewLifecycleEvent builds a lifecycle metric event.
func NewLifecycleEvent(phase string, timestampMs uint64) MetricEvent {
	return MetricEvent{Type: EventLifecycle, Lifecycle: &LifecycleMetric{Phase: phase, TimestampMs: timestampMs}}
}

// NewErrorEvent builds an error metric event.
func NewErrorEvent(code int, context string) MetricEvent {
	return MetricEvent{Type: EventError, Error: &ErrorMetric{Code: code, Context: context}}
}

// NewAudioEvent builds a signal level metric event.
func NewAudioEvent(rms, peak float64, frame, timestampMs uint64) MetricEvent {
	return MetricEvent{Type: EventAudio, Audio: &AudioMetric{
		RMS: rms, Peak: peak, Frame: frame, TimestampMs: timestampMs}}
}
