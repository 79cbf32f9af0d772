// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"spectro/internal/log"
	"spectro/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc defines the type for selecting an FFT window function.
type WindowFunc int

// Enum for available window functions.
const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
	Rectangular
)

func (w WindowFunc) String() string {
	switch w {
	case BartlettHann:
		return "BartlettHann"
	case Blackman:
		return "Blackman"
	case BlackmanNuttall:
		return "BlackmanNuttall"
	case Hann:
		return "Hann"
	case Hamming:
		return "Hamming"
	case Lanczos:
		return "Lanczos"
	case Nuttall:
		return "Nuttall"
	case Rectangular:
		return "Rectangular"
	default:
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
}

// Normalization selects how raw magnitudes are scaled before log compression.
type Normalization int

const (
	// NormalizePeak divides by the frame's own peak, so every non-silent row
	// tops out at log1p(1).
	NormalizePeak Normalization = iota
	// NormalizeFixed divides by a constant reference, keeping loudness
	// comparable across frames.
	NormalizeFixed
)

// ParseNormalization maps "peak" or "fixed" to a Normalization.
func ParseNormalization(name string) (Normalization, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "peak":
		return NormalizePeak, nil
	case "fixed":
		return NormalizeFixed, nil
	default:
		return NormalizePeak, fmt.Errorf("unknown normalization: '%s'", name)
	}
}

var (
	ErrInvalidBlockSize  = errors.New("block size must be positive")
	ErrInvalidFFTSize    = errors.New("fft size must be a power of 2 and at least 2")
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	ErrInvalidReference  = errors.New("fixed normalization needs a positive reference")
)

// Options configures a Transformer. Zero values for Epsilon and Reference
// fall back to 1e-6 and 1.
type Options struct {
	BlockSize     int
	FFTSize       int
	SampleRate    float64
	Window        WindowFunc
	Normalization Normalization
	Reference     float64
	Epsilon       float64
}

// Pre-allocated buffers for FFT calculations.
type fftWorkspace struct {
	input     []float64    // Windowed, truncated or zero-padded frame.
	fftOutput []complex128 // fftSize/2 + 1 coefficients.
	magnitude []float64    // First fftSize/2 magnitudes.
	window    []float64    // Coefficients over the full block length.
}

// Transformer windows a frame with a window spanning the whole block, fits
// it to the FFT length, keeps the first fftSize/2 magnitudes (the Nyquist
// bin is dropped) and log-compresses them.
//
// A Transformer is owned by a single producer; it is not safe for
// concurrent use.
type Transformer struct {
	fftCalculator *fourier.FFT
	blockSize     int
	fftSize       int
	bins          int
	sampleRate    float64
	windowType    WindowFunc
	normalization Normalization
	reference     float64
	epsilon       float64
	workspace     fftWorkspace
}

var _ SpectralTransform = (*Transformer)(nil)
var _ BinMapper = (*Transformer)(nil)

// NewTransformer validates opts and pre-computes the window and FFT plan.
func NewTransformer(opts Options) (*Transformer, error) {
	if opts.BlockSize <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidBlockSize, opts.BlockSize)
	}
	if opts.FFTSize < 2 || !bitint.IsPowerOfTwo(opts.FFTSize) {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidFFTSize, opts.FFTSize)
	}
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("%w, got %f", ErrInvalidSampleRate, opts.SampleRate)
	}
	if opts.Epsilon <= 0 {
		opts.Epsilon = 1e-6
	}
	if opts.Reference == 0 {
		opts.Reference = 1
	}
	if opts.Normalization == NormalizeFixed && opts.Reference < 0 {
		return nil, fmt.Errorf("%w, got %f", ErrInvalidReference, opts.Reference)
	}

	windowCoeffs := make([]float64, opts.BlockSize)
	applyWindow(windowCoeffs, opts.Window)

	bins := opts.FFTSize / 2

	log.Debugf("Analysis: Initializing Transformer (Block: %d, FFT: %d (2^%d), Bins: %d, SampleRate: %.1f Hz, Window: %v)",
		opts.BlockSize, opts.FFTSize, bitint.Log2(opts.FFTSize), bins, opts.SampleRate, opts.Window)

	return &Transformer{
		fftCalculator: fourier.NewFFT(opts.FFTSize),
		blockSize:     opts.BlockSize,
		fftSize:       opts.FFTSize,
		bins:          bins,
		sampleRate:    opts.SampleRate,
		windowType:    opts.Window,
		normalization: opts.Normalization,
		reference:     opts.Reference,
		epsilon:       opts.Epsilon,
		workspace: fftWorkspace{
			input:     make([]float64, opts.FFTSize),
			fftOutput: make([]complex128, opts.FFTSize/2+1),
			magnitude: make([]float64, bins),
			window:    windowCoeffs,
		},
	}, nil
}

// Transform returns a freshly allocated spectrum row for frame.
// It panics if len(frame) != BlockSize().
func (t *Transformer) Transform(frame []float64) []float64 {
	dst := make([]float64, t.bins)
	t.TransformInto(dst, frame)
	return dst
}

// TransformInto writes the spectrum row for frame into dst. Both lengths are
// fixed at construction; a mismatch is a programming error and panics.
func (t *Transformer) TransformInto(dst, frame []float64) {
	if len(frame) != t.blockSize {
		panic(fmt.Sprintf("analysis: frame length %d, want %d", len(frame), t.blockSize))
	}
	if len(dst) != t.bins {
		panic(fmt.Sprintf("analysis: destination length %d, want %d", len(dst), t.bins))
	}

	// --- 1. Window over the whole block, then truncate or zero-pad ---
	n := min(t.blockSize, t.fftSize)
	input := t.workspace.input
	for i := range n {
		input[i] = frame[i] * t.workspace.window[i]
	}
	for i := n; i < t.fftSize; i++ {
		input[i] = 0
	}

	// --- 2. Perform FFT ---
	t.fftCalculator.Coefficients(t.workspace.fftOutput, input)

	// --- 3. Magnitudes of the first fftSize/2 bins ---
	peak := 0.0
	for i := range t.bins {
		m := cmplx.Abs(t.workspace.fftOutput[i])
		t.workspace.magnitude[i] = m
		if m > peak {
			peak = m
		}
	}

	// --- 4. Normalize and compress ---
	scale := peak + t.epsilon
	if t.normalization == NormalizeFixed {
		scale = t.reference
	}
	for i, m := range t.workspace.magnitude {
		dst[i] = math.Log1p(m / scale)
	}
}

// FrequencyForBin returns the center frequency (Hz) for a given bin index,
// or 0 for an index outside the spectrum row.
func (t *Transformer) FrequencyForBin(bin int) float64 {
	if bin < 0 || bin >= t.bins {
		return 0.0
	}
	return float64(bin) * (t.sampleRate / float64(t.fftSize))
}

// BinForFrequency returns the bin nearest to hz, clamped to the row.
func (t *Transformer) BinForFrequency(hz float64) int {
	bin := int(math.Round(hz * float64(t.fftSize) / t.sampleRate))
	return max(0, min(bin, t.bins-1))
}

func (t *Transformer) Bins() int           { return t.bins }
func (t *Transformer) BlockSize() int      { return t.blockSize }
func (t *Transformer) FFTSize() int        { return t.fftSize }
func (t *Transformer) SampleRate() float64 { return t.sampleRate }
func (t *Transformer) Window() WindowFunc  { return t.windowType }
func (t *Transformer) Mode() Normalization { return t.normalization }

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc
// enum, returns a known default (Hann) and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning", "":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	case "rectangular", "none":
		return Rectangular, nil
	default:
		return Hann, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// applyWindow fills coeffs with the selected window. Unknown types fall
// back to Hann.
func applyWindow(coeffs []float64, windowType WindowFunc) {
	// The gonum window funcs scale in place.
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch windowType {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	case Rectangular:
		// All ones.
	default:
		log.Warnf("Analysis: Unknown window function type %d, defaulting to Hann", windowType)
		window.Hann(coeffs)
	}
}
