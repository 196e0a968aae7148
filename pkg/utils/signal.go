// SPDX-License-Identifier: MIT
//
// Package utils provides deterministic signal generators and small helpers
// shared by tests and fixture sessions. Generators with a seed parameter
// produce identical output for identical seeds.
package utils

import (
	"math"
	"math/rand"
	"sync"
)

// GenerateSineWave returns a sine wave at the given frequency, 90% of full
// scale.
func GenerateSineWave(size int, sampleRate, frequency float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(math.Sin(2*math.Pi*frequency*t) * 0.9)
	}
	return buffer
}

// GenerateSquareWave returns a square wave at the given frequency, 90% of
// full scale.
func GenerateSquareWave(size int, sampleRate, frequency float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		if math.Sin(2*math.Pi*frequency*t) >= 0 {
			buffer[i] = 0.9
		} else {
			buffer[i] = -0.9
		}
	}
	return buffer
}

// GenerateComplexWave returns a 440 Hz fundamental with two harmonics.
func GenerateComplexWave(size int, sampleRate float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*t)*0.5 +
			math.Sin(2*math.Pi*880*t)*0.3 +
			math.Sin(2*math.Pi*1320*t)*0.2
		buffer[i] = float32(signal * 0.9)
	}
	return buffer
}

// GenerateWhiteNoise returns seeded uniform noise scaled to amplitude.
// The same seed always yields the same buffer.
func GenerateWhiteNoise(size int, seed int64, amplitude float64) []float32 {
	rng := rand.New(rand.NewSource(seed))
	buffer := make([]float32, size)
	for i := range buffer {
		buffer[i] = float32((rng.Float64()*2 - 1) * amplitude)
	}
	return buffer
}

// GenerateImpulseTrain returns silence punctuated by short decaying clicks.
// Clicks start at firstAt and repeat every periodSamples; each click is
// clickLen samples with a linear decay from amplitude to zero. The sharp
// attack makes the train ideal for exercising onset detection and timing.
func GenerateImpulseTrain(size, firstAt, periodSamples, clickLen int, amplitude float64) []float32 {
	buffer := make([]float32, size)
	if periodSamples <= 0 || clickLen <= 0 {
		return buffer
	}
	for start := firstAt; start < size; start += periodSamples {
		for j := 0; j < clickLen && start+j < size; j++ {
			decay := 1 - float64(j)/float64(clickLen)
			sign := 1.0
			if j%2 == 1 {
				sign = -1.0
			}
			buffer[start+j] = float32(amplitude * decay * sign)
		}
	}
	return buffer
}

// FindPeakBin returns the index of the largest magnitude within
// [startBin, endBin].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}
	return peakBin
}

// MockTransport records everything sent through it, for tests.
type MockTransport struct {
	mu   sync.Mutex
	Sent []any
}

// Send stores the payload for later inspection instead of transmitting.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, data)
	return nil
}

// Close is a no-op.
func (m *MockTransport) Close() error { return nil }

// SentCount returns how many payloads were sent.
func (m *MockTransport) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
