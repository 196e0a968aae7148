// SPDX-License-Identifier: MIT
package analysis

import "testing"

// Canonical feature vectors for each sound family, well inside the default
// decision regions.
var (
	kickFeatures = Features{
		RMS: 0.4, SpectralCentroid: 300, ZeroCrossingRate: 0.03,
		SpectralFlatness: 0.05, SpectralRolloff: 800, DecayTimeMs: 120, Peak: 0.7,
	}
	snareFeatures = Features{
		RMS: 0.3, SpectralCentroid: 2500, ZeroCrossingRate: 0.15,
		SpectralFlatness: 0.4, SpectralRolloff: 6000, DecayTimeMs: 90, Peak: 0.6,
	}
	hihatFeatures = Features{
		RMS: 0.2, SpectralCentroid: 8000, ZeroCrossingRate: 0.5,
		SpectralFlatness: 0.6, SpectralRolloff: 12000, DecayTimeMs: 30, Peak: 0.4,
	}
)

func TestClassifyLevel1(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		desc string
		f    Features
		want Sound
	}{
		{"Canonical kick", kickFeatures, SoundKick},
		{"Canonical snare", snareFeatures, SoundSnare},
		{"Canonical hihat", hihatFeatures, SoundHiHat},
		{"Silence", Features{}, SoundUnknown},
		{"High centroid low zcr", Features{RMS: 0.3, SpectralCentroid: 9000, ZeroCrossingRate: 0.05}, SoundUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got := Classify(tt.f, th)
			if got.Sound != tt.want {
				t.Errorf("Classify() = %v, want %v", got.Sound, tt.want)
			}
			if tt.want != SoundUnknown {
				if got.Confidence <= 0 || got.Confidence > 1 {
					t.Errorf("confidence %.3f outside (0, 1]", got.Confidence)
				}
			} else if got.Confidence != 0 {
				t.Errorf("unknown should have zero confidence, got %.3f", got.Confidence)
			}
		})
	}
}

func TestClassifyLevel2Refinement(t *testing.T) {
	th := DefaultThresholds()
	th.Level = 2

	tests := []struct {
		desc   string
		mutate func(Features) Features
		base   Features
		want   Sound
	}{
		{"Tonal kick stays kick", func(f Features) Features { f.SpectralFlatness = 0.05; return f }, kickFeatures, SoundKick},
		{"Noisy kick becomes k-snare", func(f Features) Features { f.SpectralFlatness = 0.5; return f }, kickFeatures, SoundKSnare},
		{"Mid-flatness kick stays kick", func(f Features) Features { f.SpectralFlatness = 0.2; return f }, kickFeatures, SoundKick},
		{"Fast hihat is closed", func(f Features) Features { f.DecayTimeMs = 20; return f }, hihatFeatures, SoundClosedHiHat},
		{"Slow hihat is open", func(f Features) Features { f.DecayTimeMs = 200; return f }, hihatFeatures, SoundOpenHiHat},
		{"Mid-decay hihat stays hihat", func(f Features) Features { f.DecayTimeMs = 100; return f }, hihatFeatures, SoundHiHat},
		{"Snare unchanged at level 2", func(f Features) Features { return f }, snareFeatures, SoundSnare},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got := Classify(tt.mutate(tt.base), th)
			if got.Sound != tt.want {
				t.Errorf("Classify() = %v, want %v", got.Sound, tt.want)
			}
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	th := DefaultThresholds()
	first := Classify(snareFeatures, th)
	for i := 0; i < 100; i++ {
		if got := Classify(snareFeatures, th); got != first {
			t.Fatal("classification is not deterministic")
		}
	}
}

func TestClassifyOverlapLowersConfidence(t *testing.T) {
	th := DefaultThresholds()

	// A deep kick also sits inside the snare centroid region, so two
	// categories share the score mass.
	deepKick := Classify(kickFeatures, th)

	// A sound gated only as snare keeps the whole mass.
	onlySnare := Classify(Features{RMS: 0.3, SpectralCentroid: 3000, ZeroCrossingRate: 0.2}, th)

	if deepKick.Confidence >= onlySnare.Confidence {
		t.Errorf("overlapping regions should lower confidence: kick %.3f vs snare %.3f",
			deepKick.Confidence, onlySnare.Confidence)
	}
}

func TestClassifyCustomThresholds(t *testing.T) {
	// After calibration the kick centroid boundary may move well below the
	// factory default; a 1 kHz centroid then reads as snare, not kick.
	th := Thresholds{KickCentroid: 600, KickZcr: 0.08, SnareCentroid: 3500, HihatZcr: 0.35, Level: 1}

	f := Features{RMS: 0.3, SpectralCentroid: 1000, ZeroCrossingRate: 0.05}
	if got := Classify(f, th); got.Sound != SoundSnare {
		t.Errorf("Classify() = %v, want snare under tightened kick boundary", got.Sound)
	}
}

func BenchmarkClassify(b *testing.B) {
	th := DefaultThresholds()
	th.Level = 2
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		Classify(snareFeatures, th)
	}
}
