// SPDX-License-Identifier: MIT
package config

// Core constants that bound the engine. Buffer geometry is fixed after
// construction: the capture callback and the analysis loop both assume
// these sizes never change while a stream is open.
const (
	// Capture defaults.
	DefaultSampleRate      = 48000 // Hz, overridable via ENGINE_SAMPLE_RATE
	DefaultFramesPerBuffer = 512   // frames handed to the capture callback
	DefaultInputChannels   = 1     // mono capture
	DefaultDeviceID        = MinDeviceID

	// Buffer pool geometry.
	DefaultBufferSize = 2048 // samples per pooled buffer
	DefaultPoolSize   = 64   // pre-allocated buffers in the pool

	// Feature extraction.
	DefaultFFTSize = 1024 // analysis window around each onset

	// Onset detection (spectral flux STFT).
	DefaultOnsetFFTSize        = 256
	DefaultOnsetHopSize        = 64
	DefaultThresholdHalfWindow = 50   // flux frames each side of the median
	DefaultThresholdOffset     = 0.15 // added to the rolling median
	DefaultMinOnsetGapMs       = 50.0 // double-trigger debounce
	DefaultMinFluxHistory      = 512  // samples before the detector arms

	// Calibration.
	DefaultSamplesPerSound  = 10
	DefaultNoiseFloorFrames = 30

	// Tempo.
	DefaultBpm = 120.0
	MinBpm     = 40.0
	MaxBpm     = 240.0

	// Telemetry cadence.
	DefaultLogEveryNBuffers = 100
	DefaultMetricRingDepth  = 256

	// Hardware limits.
	MinDeviceID   = -1 // -1 selects the system default device
	MinSampleRate = 8000
	MaxSampleRate = 192000
)

// Config is the full engine configuration, loaded from YAML with environment
// and CLI flag overrides layered on top.
type Config struct {
	Debug    bool   `yaml:"debug"`
	LogLevel string `yaml:"log_level"`

	Audio       AudioConfig       `yaml:"audio"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Transport   TransportConfig   `yaml:"transport"`
	Recording   RecordingConfig   `yaml:"recording"`
}

// AudioConfig holds capture and buffer geometry settings.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index, -1 for default
	SampleRate      float64 `yaml:"sample_rate"`       // Hz
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // frames per capture callback
	InputChannels   int     `yaml:"input_channels"`
	LowLatency      bool    `yaml:"low_latency"`
	BufferSize      int     `yaml:"buffer_size"` // samples per pooled buffer
	PoolSize        int     `yaml:"pool_size"`   // pooled buffer population
	Bpm             float64 `yaml:"bpm"`         // initial tempo
}

// AnalysisConfig holds onset detection and feature extraction settings.
type AnalysisConfig struct {
	FFTSize             int     `yaml:"fft_size"`              // feature window, power of 2
	Window              string  `yaml:"window"`                // window function name
	OnsetFFTSize        int     `yaml:"onset_fft_size"`        // flux STFT size, power of 2
	OnsetHopSize        int     `yaml:"onset_hop_size"`        // flux STFT hop
	ThresholdHalfWindow int     `yaml:"threshold_half_window"` // flux frames each side of median
	ThresholdOffset     float64 `yaml:"threshold_offset"`
	MinOnsetGapMs       float64 `yaml:"min_onset_gap_ms"`
	LogEveryNBuffers    int     `yaml:"log_every_n_buffers"`
}

// CalibrationConfig holds the guided calibration settings.
type CalibrationConfig struct {
	SamplesPerSound  int    `yaml:"samples_per_sound"`
	NoiseFloorFrames int    `yaml:"noise_floor_frames"`
	StatePath        string `yaml:"state_path"` // optional JSON snapshot location
}

// TransportConfig holds outbound streaming settings.
type TransportConfig struct {
	WebsocketEnabled  bool   `yaml:"websocket_enabled"`
	WebsocketAddr     string `yaml:"websocket_addr"`
	UDPEnabled        bool   `yaml:"udp_enabled"`
	UDPTargetAddress  string `yaml:"udp_target_address"`
	UDPSendIntervalMs int    `yaml:"udp_send_interval_ms"`
}

// RecordingConfig holds the WAV tap settings used for fixture authoring.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
	BitDepth  int    `yaml:"bit_depth"`
}

// NewConfig returns a Config populated with engine defaults. This is the base
// that YAML, environment, and CLI layers override in that order.
func NewConfig() *Config {
	return &Config{
		Debug:    false,
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			InputChannels:   DefaultInputChannels,
			LowLatency:      false,
			BufferSize:      DefaultBufferSize,
			PoolSize:        DefaultPoolSize,
			Bpm:             DefaultBpm,
		},
		Analysis: AnalysisConfig{
			FFTSize:             DefaultFFTSize,
			Window:              "Hann",
			OnsetFFTSize:        DefaultOnsetFFTSize,
			OnsetHopSize:        DefaultOnsetHopSize,
			ThresholdHalfWindow: DefaultThresholdHalfWindow,
			ThresholdOffset:     DefaultThresholdOffset,
			MinOnsetGapMs:       DefaultMinOnsetGapMs,
			LogEveryNBuffers:    DefaultLogEveryNBuffers,
		},
		Calibration: CalibrationConfig{
			SamplesPerSound:  DefaultSamplesPerSound,
			NoiseFloorFrames: DefaultNoiseFloorFrames,
		},
		Transport: TransportConfig{
			WebsocketEnabled:  false,
			WebsocketAddr:     ":8080",
			UDPEnabled:        false,
			UDPTargetAddress:  "127.0.0.1:9090",
			UDPSendIntervalMs: 33,
		},
		Recording: RecordingConfig{
			Enabled:   false,
			OutputDir: "./recordings",
			BitDepth:  16,
		},
	}
}
