// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"beatbox/pkg/bitint"
)

// LoadConfig loads configuration from a YAML file specified by path. If path
// is empty it searches default locations ("beatbox.yaml", "config.yaml").
// If no file is found, built-in defaults are used. Environment variable
// overrides are applied after file loading, then the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		candidates := []string{"beatbox.yaml", "config.yaml"}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the engine cannot run with.
// Buffer geometry errors are caught here rather than at stream open time so
// a bad config fails fast, before PortAudio is touched.
func (c *Config) Validate() error {
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate %.0f outside [%d, %d]", c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if c.Audio.InputChannels < 1 {
		return fmt.Errorf("audio.input_channels must be >= 1, got %d", c.Audio.InputChannels)
	}
	if c.Audio.PoolSize < 2 {
		return fmt.Errorf("audio.pool_size must be >= 2, got %d", c.Audio.PoolSize)
	}
	if !bitint.IsPowerOfTwo(c.Audio.BufferSize) {
		return fmt.Errorf("audio.buffer_size must be a power of 2, got %d", c.Audio.BufferSize)
	}
	if !bitint.IsPowerOfTwo(c.Analysis.FFTSize) {
		return fmt.Errorf("analysis.fft_size must be a power of 2, got %d", c.Analysis.FFTSize)
	}
	if !bitint.IsPowerOfTwo(c.Analysis.OnsetFFTSize) {
		return fmt.Errorf("analysis.onset_fft_size must be a power of 2, got %d", c.Analysis.OnsetFFTSize)
	}
	if c.Analysis.OnsetHopSize < 1 || c.Analysis.OnsetHopSize > c.Analysis.OnsetFFTSize {
		return fmt.Errorf("analysis.onset_hop_size %d outside [1, %d]", c.Analysis.OnsetHopSize, c.Analysis.OnsetFFTSize)
	}
	if c.Analysis.FFTSize > c.Audio.BufferSize {
		return fmt.Errorf("analysis.fft_size %d exceeds audio.buffer_size %d", c.Analysis.FFTSize, c.Audio.BufferSize)
	}
	if c.Audio.Bpm < MinBpm || c.Audio.Bpm > MaxBpm {
		return fmt.Errorf("audio.bpm %.1f outside [%.0f, %.0f]", c.Audio.Bpm, MinBpm, MaxBpm)
	}
	if c.Calibration.SamplesPerSound < 1 {
		return fmt.Errorf("calibration.samples_per_sound must be >= 1, got %d", c.Calibration.SamplesPerSound)
	}
	if c.Calibration.NoiseFloorFrames < 1 {
		return fmt.Errorf("calibration.noise_floor_frames must be >= 1, got %d", c.Calibration.NoiseFloorFrames)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return fmt.Errorf("log_level %q not recognized", c.LogLevel)
	}
	return nil
}

// applyEnvOverrides layers ENGINE_* environment variables over the loaded
// configuration. Unparseable values are ignored rather than fatal: a bad
// override should not take down a run with a valid file config.
func (cfg *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("ENGINE_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
		}
	}
	if val, ok := os.LookupEnv("ENGINE_LOG_LEVEL"); ok {
		cfg.LogLevel = val
	}
	if val, ok := os.LookupEnv("ENGINE_SAMPLE_RATE"); ok {
		if fVal, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Audio.SampleRate = fVal
		}
	}
	if val, ok := os.LookupEnv("ENGINE_INPUT_DEVICE"); ok {
		if iVal, err := strconv.Atoi(val); err == nil {
			cfg.Audio.InputDevice = iVal
		}
	}
	if val, ok := os.LookupEnv("ENGINE_WS_ADDR"); ok {
		cfg.Transport.WebsocketAddr = val
		cfg.Transport.WebsocketEnabled = true
	}
	if val, ok := os.LookupEnv("ENGINE_UDP_TARGET"); ok {
		cfg.Transport.UDPTargetAddress = val
		cfg.Transport.UDPEnabled = true
	}
}
