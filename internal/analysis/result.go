// SPDX-License-Identifier: MIT
package analysis

// Result is one classified, quantized onset as published to subscribers and
// transports. Results are immutable values: later tempo or threshold
// changes never alter an emitted Result.
type Result struct {
	Sound         Sound   `json:"sound"`
	Confidence    float64 `json:"confidence"`
	Timing        Timing  `json:"timing"`
	TimingErrorMs float64 `json:"timing_error_ms"`
	TimestampMs   uint64  `json:"timestamp_ms"`
}

// OnsetEvent carries the raw acoustics of one onset alongside its
// classification, for debug clients that render feature space.
type OnsetEvent struct {
	TimestampMs uint64   `json:"timestamp_ms"`
	Features    Features `json:"features"`
	Result      *Result  `json:"result,omitempty"`
}
