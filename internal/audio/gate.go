// SPDX-License-Identifier: MIT
package audio

func (e *Engine) EnableGate() {
	e.gateEnabled = true
}

func (e *Engine) DisableGate() {
	e.gateEnabled = false
}

// SetGateThreshold adjusts the noise gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (e *Engine) SetGateThreshold(threshold float64) {
	if threshold < 0.0 {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}

	e.gateThreshold = float32(threshold)
}

// ConfigureGate applies a configured threshold. A positive threshold arms
// the gate and zero turns it off.
func (e *Engine) ConfigureGate(threshold float64) {
	e.SetGateThreshold(threshold)
	if e.gateThreshold > 0 {
		e.EnableGate()
		return
	}
	e.DisableGate()
}

// GetGateThreshold returns the current noise gate threshold as a float64.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (e *Engine) GetGateThreshold() float64 {
	return float64(e.gateThreshold)
}

// gateOpen reports whether the block's peak amplitude exceeds the
// threshold. A disabled gate is always open.
func (e *Engine) gateOpen(buffer []float32) bool {
	if !e.gateEnabled {
		return true
	}
	return peakAmplitude(buffer) > e.gateThreshold
}

func peakAmplitude(buffer []float32) float32 {
	var peak float32
	for _, s := range buffer {
		if s < 0 {
			s = -s
		}
		peak = max(peak, s)
	}
	return peak
}
