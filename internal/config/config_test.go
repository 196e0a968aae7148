// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration should validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		desc   string
		mutate func(*Config)
	}{
		{"Sample rate too low", func(c *Config) { c.Audio.SampleRate = 4000 }},
		{"Sample rate too high", func(c *Config) { c.Audio.SampleRate = 400000 }},
		{"Zero channels", func(c *Config) { c.Audio.InputChannels = 0 }},
		{"Pool too small", func(c *Config) { c.Audio.PoolSize = 1 }},
		{"Buffer size not power of 2", func(c *Config) { c.Audio.BufferSize = 2000 }},
		{"FFT size not power of 2", func(c *Config) { c.Analysis.FFTSize = 1000 }},
		{"Onset FFT not power of 2", func(c *Config) { c.Analysis.OnsetFFTSize = 200 }},
		{"Hop exceeds onset FFT", func(c *Config) { c.Analysis.OnsetHopSize = 512 }},
		{"FFT larger than buffer", func(c *Config) { c.Analysis.FFTSize = 4096 }},
		{"BPM below range", func(c *Config) { c.Audio.Bpm = 30 }},
		{"BPM above range", func(c *Config) { c.Audio.Bpm = 300 }},
		{"Zero samples per sound", func(c *Config) { c.Calibration.SamplesPerSound = 0 }},
		{"Unknown log level", func(c *Config) { c.LogLevel = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() accepted an invalid configuration")
			}
		})
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beatbox.yaml")
	yamlContent := `
debug: true
log_level: debug
audio:
  sample_rate: 44100
  pool_size: 32
  bpm: 90
analysis:
  threshold_offset: 0.2
calibration:
  samples_per_sound: 5
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if !cfg.Debug {
		t.Error("debug should be true")
	}
	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("sample_rate = %.0f, want 44100", cfg.Audio.SampleRate)
	}
	if cfg.Audio.PoolSize != 32 {
		t.Errorf("pool_size = %d, want 32", cfg.Audio.PoolSize)
	}
	if cfg.Audio.Bpm != 90 {
		t.Errorf("bpm = %.0f, want 90", cfg.Audio.Bpm)
	}
	if cfg.Analysis.ThresholdOffset != 0.2 {
		t.Errorf("threshold_offset = %v, want 0.2", cfg.Analysis.ThresholdOffset)
	}
	if cfg.Calibration.SamplesPerSound != 5 {
		t.Errorf("samples_per_sound = %d, want 5", cfg.Calibration.SamplesPerSound)
	}

	// Untouched sections keep their defaults.
	if cfg.Analysis.FFTSize != DefaultFFTSize {
		t.Errorf("fft_size = %d, want default %d", cfg.Analysis.FFTSize, DefaultFFTSize)
	}
}

func TestLoadConfigInvalidFileRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("audio:\n  sample_rate: 100\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig accepted a config with an out-of-range sample rate")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENGINE_SAMPLE_RATE", "96000")
	t.Setenv("ENGINE_DEBUG", "true")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Audio.SampleRate != 96000 {
		t.Errorf("ENGINE_SAMPLE_RATE override ignored, got %.0f", cfg.Audio.SampleRate)
	}
	if !cfg.Debug {
		t.Error("ENGINE_DEBUG override ignored")
	}
}

func TestEnvOverrideBadValueIgnored(t *testing.T) {
	t.Setenv("ENGINE_SAMPLE_RATE", "not-a-number")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Audio.SampleRate != DefaultSampleRate {
		t.Errorf("bad env value should leave default, got %.0f", cfg.Audio.SampleRate)
	}
}
