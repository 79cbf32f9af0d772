// SPDX-License-Identifier: MIT
package analysis

// SpectralTransform turns one frame of time-domain samples into a spectrum
// row of Bins() normalized magnitudes.
type SpectralTransform interface {
	// Transform allocates and returns a new spectrum row.
	Transform(frame []float64) []float64
	// TransformInto writes the spectrum row into dst without allocating.
	TransformInto(dst, frame []float64)
	Bins() int
}

// BinMapper maps spectrum bins to frequencies, used by sinks that label or
// crop the frequency axis.
type BinMapper interface {
	FrequencyForBin(bin int) float64 // Center frequency (Hz) of bin.
	BinForFrequency(hz float64) int  // Bin containing hz, clamped to [0, Bins()).
	Bins() int
}
