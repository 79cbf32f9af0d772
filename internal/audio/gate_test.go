// SPDX-License-Identifier: MIT
package audio

import (
	"testing"
)

func TestGateEnableHotPath(t *testing.T) {
	engine := &Engine{
		gateEnabled:   false,
		gateThreshold: 0.01,
	}

	if engine.gateEnabled {
		t.Error("Gate should be disabled initially")
	}

	engine.EnableGate()
	if !engine.gateEnabled {
		t.Error("Gate should be enabled after EnableGate()")
	}

	engine.DisableGate()
	if engine.gateEnabled {
		t.Error("Gate should be disabled after DisableGate()")
	}

	engine.EnableGate()
	engine.EnableGate() // Multiple calls should be idempotent
	if !engine.gateEnabled {
		t.Error("Gate should remain enabled after multiple EnableGate()")
	}

	engine.DisableGate()
	engine.DisableGate() // Multiple calls should be idempotent
	if engine.gateEnabled {
		t.Error("Gate should remain disabled after multiple DisableGate()")
	}
}

func TestConfigureGate(t *testing.T) {
	tests := []struct {
		name        string
		wasEnabled  bool
		threshold   float64
		wantEnabled bool
		wantValue   float64
	}{
		{"Arm from off", false, 0.2, true, 0.2},
		{"Zero turns off", true, 0, false, 0},
		{"Negative turns off", true, -0.5, false, 0},
		{"Clamped above one", false, 3, true, 1},
		{"Stays off", false, 0, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &Engine{gateEnabled: tt.wasEnabled, gateThreshold: 0.5}
			engine.ConfigureGate(tt.threshold)
			if engine.gateEnabled != tt.wantEnabled {
				t.Errorf("gateEnabled = %v, want %v", engine.gateEnabled, tt.wantEnabled)
			}
			if got := engine.GetGateThreshold(); absFloat(got-tt.wantValue) > 1e-6 {
				t.Errorf("threshold = %f, want %f", got, tt.wantValue)
			}
			if !tt.wantEnabled && !engine.gateOpen(make([]float32, 8)) {
				t.Error("disabled gate should pass silence")
			}
		})
	}
}

func TestGateThresholdBoundaries(t *testing.T) {
	tests := []struct {
		input    float64
		expected float64
	}{
		{-0.1, 0.0}, // Below min
		{0.0, 0.0},  // Minimum
		{0.5, 0.5},  // Middle
		{1.0, 1.0},  // Maximum
		{1.5, 1.0},  // Above max
	}

	engine := &Engine{gateEnabled: true}

	for _, tt := range tests {
		t.Run(formatFloat(tt.input), func(t *testing.T) {
			engine.SetGateThreshold(tt.input)
			got := engine.GetGateThreshold()

			if absFloat(got-tt.expected) > 0.001 {
				t.Errorf("Gate threshold conversion: got %.3f, want %.3f", got, tt.expected)
			}
		})
	}
}

func TestGateDetectionHotPath(t *testing.T) {
	tests := []struct {
		desc          string
		buffer        []float32
		gateEnabled   bool
		threshold     float64
		shouldTrigger bool
	}{
		{"Gate disabled/Quiet signal", quietBuffer, false, 0.1, true},                // Disabled gate always passes
		{"Gate disabled/Loud signal", loudBuffer, false, 0.1, true},                  // Disabled gate always passes
		{"Gate enabled/Quiet signal/Low threshold", quietBuffer, true, 0.0001, true}, // Very low threshold that quiet signal can pass
		{"Gate enabled/Quiet signal/Mid threshold", quietBuffer, true, 0.1, false},   // Signal below threshold
		{"Gate enabled/Loud signal/Mid threshold", loudBuffer, true, 0.1, true},      // Signal above threshold
		{"Gate enabled/Loud signal/High threshold", loudBuffer, true, 0.999, false},  // Very high threshold that even loud signal can't pass
		{"Gate enabled/Silence/Zero threshold", make([]float32, 64), true, 0, false}, // Nothing exceeds zero
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			engine := &Engine{gateEnabled: tt.gateEnabled}
			engine.SetGateThreshold(tt.threshold)

			if triggered := engine.gateOpen(tt.buffer); triggered != tt.shouldTrigger {
				t.Errorf("Gate detection error: got triggered=%v, want %v (peak=%f, threshold=%f)",
					triggered, tt.shouldTrigger, peakAmplitude(tt.buffer), engine.gateThreshold)
			}
		})
	}

	engine := &Engine{gateEnabled: true, gateThreshold: 0.1}
	allocs := testing.AllocsPerRun(100, func() {
		_ = engine.gateOpen(testBuffer)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in gate check, got %.1f", allocs)
	}
}

func TestPeakAmplitude(t *testing.T) {
	tests := []struct {
		name string
		in   []float32
		want float32
	}{
		{"Empty", nil, 0},
		{"Positive Peak", []float32{0.1, 0.5, -0.2}, 0.5},
		{"Negative Peak", []float32{0.1, -0.7, 0.2}, 0.7},
	}
	for _, tt := range tests {
		if got := peakAmplitude(tt.in); got != tt.want {
			t.Errorf("%s: peakAmplitude() = %f, want %f", tt.name, got, tt.want)
		}
	}
}

func BenchmarkGateThresholdConversionHotPath(b *testing.B) {
	engine := &Engine{}
	values := []float64{0.0, 0.25, 0.5, 0.75, 1.0}

	for _, v := range values {
		b.Run(formatFloat(v), func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				engine.SetGateThreshold(v)
				_ = engine.GetGateThreshold()
			}
		})
	}
}

func BenchmarkGateProcessingHotPath(b *testing.B) {
	benchmarks := []struct {
		name      string
		buffer    []float32
		threshold float64
		enabled   bool
	}{
		{"Gate disabled/Normal", testBuffer, 0.01, false},
		{"Gate enabled/Quiet signal/Low threshold", quietBuffer, 0.01, true},
		{"Gate enabled/Loud signal/High threshold", loudBuffer, 0.99, true},
	}

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			engine := &Engine{gateEnabled: bm.enabled}
			engine.SetGateThreshold(bm.threshold)

			b.ReportAllocs()
			for b.Loop() {
				_ = engine.gateOpen(bm.buffer)
			}
		})
	}
}
