// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the spectrogram pipeline. All of them are fixed once the process
// has started.
const (
	DefaultSampleRate    = 44100         // CD-quality audio
	DefaultBlockSize     = 1024          // Samples per frame
	DefaultFFTSize       = 512           // Bins = FFTSize/2
	DefaultHistory       = 100           // Rows retained in the spectrogram
	DefaultMaxFrequency  = 2000.0        // Display ceiling for the 2D view (Hz)
	DefaultWindow        = "Hann"        // Window applied before the FFT
	DefaultNormalization = NormalizePeak // Per-frame self normalization
	DefaultReference     = 1.0           // Reference magnitude for NormalizeFixed
	DefaultEpsilon       = 1e-6          // Guards division on silent frames
	DefaultRenderMode    = RenderMode3D  // Full waterfall
	DefaultLogLevel      = "info"        // Quiet operation
	DefaultDeviceID      = MinDeviceID   // System default device
	DefaultBitDepth      = 16            // WAV recording bit depth
	DefaultProgressScale = 1000          // Progress indicator range 0..1000
	DefaultRenderEvery   = 10 * time.Millisecond
	DefaultProgressEvery = 100 * time.Millisecond
	DefaultWSAddress     = ":8080"
	DefaultWSInterval    = 33 * time.Millisecond // ~30Hz
	DefaultUDPAddress    = "127.0.0.1:9090"
	DefaultUDPInterval   = 16 * time.Millisecond // ~60Hz
	DefaultMetricsAddr   = ":9464"

	// Hardware and processing limits.
	MinDeviceID   = -1     // -1 represents the system default device
	MinSampleRate = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate = 192000 // Maximum supported sample rate (Hz)
	MaxBlockSize  = 8192   // Maximum samples per frame
	MaxFFTSize    = 16384
	MaxHistory    = 10000
)

// Normalization modes for the spectral transform.
const (
	NormalizePeak  = "peak"
	NormalizeFixed = "fixed"
)

// Render modes for the terminal sink.
const (
	RenderMode3D   = "3d"
	RenderMode2D   = "2d"
	RenderModeNone = "none"
)

// Config represents the application configuration. It is assembled from
// built-in defaults, an optional YAML file, environment overrides and
// finally command line flags.
type Config struct {
	Debug       bool              `yaml:"debug"`       // Shorthand for log_level=debug.
	LogLevel    string            `yaml:"log_level"`   // debug, info, warn, error.
	LogFile     string            `yaml:"log_file"`    // Log destination while the TUI owns the terminal.
	Command     string            `yaml:"-"`           // One-off command (list) instead of running a pipeline.
	TrackPath   string            `yaml:"-"`           // File to play in playback mode.
	ListTUI     bool              `yaml:"-"`           // Interactive device list.
	Audio       AudioConfig       `yaml:"audio"`       // Device and framing settings.
	Spectrogram SpectrogramConfig `yaml:"spectrogram"` // Transform and buffer settings.
	Render      RenderConfig      `yaml:"render"`      // Terminal sink settings.
	Recording   RecordingConfig   `yaml:"recording"`   // Live input recording.
	Transport   TransportConfig   `yaml:"transport"`   // Network sinks.
	Metrics     MetricsConfig     `yaml:"metrics"`     // Prometheus endpoint.
}

// AudioConfig holds device and framing settings.
type AudioConfig struct {
	InputDevice   int     `yaml:"input_device"`   // PortAudio device index for capture (-1 for default).
	OutputDevice  int     `yaml:"output_device"`  // PortAudio device index for track playback (-1 for default).
	SampleRate    float64 `yaml:"sample_rate"`    // Pipeline sample rate in Hz; decoded tracks are resampled to it.
	BlockSize     int     `yaml:"block_size"`     // Samples per frame.
	LowLatency    bool    `yaml:"low_latency"`    // Request the device's low latency settings.
	FFTWindow     string  `yaml:"fft_window"`     // Window function name (Hann, Hamming, Blackman, ...).
	GateThreshold float64 `yaml:"gate_threshold"` // Live noise gate in [0,1]; 0 disables it.
	Mute          bool    `yaml:"mute"`           // Visualize tracks without playing them.
}

// SpectrogramConfig holds the spectral transform and buffer settings.
type SpectrogramConfig struct {
	FFTSize       int     `yaml:"fft_size"`      // Power of two; bin count is FFTSize/2.
	History       int     `yaml:"history"`       // Rows retained.
	Normalization string  `yaml:"normalization"` // "peak" (per frame) or "fixed".
	Reference     float64 `yaml:"reference"`     // Reference magnitude for "fixed".
	Epsilon       float64 `yaml:"epsilon"`       // Added to the peak before dividing.
}

// Bins returns the number of magnitude values per spectrum.
func (s SpectrogramConfig) Bins() int {
	return s.FFTSize / 2
}

// RenderConfig holds the terminal sink settings.
type RenderConfig struct {
	Mode             string        `yaml:"mode"`              // "3d" waterfall, "2d" bars, "none" headless.
	Interval         time.Duration `yaml:"interval"`          // Snapshot poll interval.
	ProgressInterval time.Duration `yaml:"progress_interval"` // Progress poll interval.
	ProgressScale    int           `yaml:"progress_scale"`    // Integer range of the progress indicator.
	MaxFrequency     float64       `yaml:"max_frequency"`     // Display ceiling in Hz for the 2D view.
}

// RecordingConfig holds settings for recording the live input to WAV.
type RecordingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	OutputFile string `yaml:"output_file"` // Empty means recording-DD-MM-YYYY-HHMMSS.wav.
	BitDepth   int    `yaml:"bit_depth"`
}

// TransportConfig holds settings for sending spectrogram data over the network.
type TransportConfig struct {
	WebSocketEnabled  bool          `yaml:"websocket_enabled"`
	WebSocketAddress  string        `yaml:"websocket_address"`
	WebSocketInterval time.Duration `yaml:"websocket_interval"`
	UDPEnabled        bool          `yaml:"udp_enabled"`
	UDPTargetAddress  string        `yaml:"udp_target_address"`
	UDPSendInterval   time.Duration `yaml:"udp_send_interval"`
}

// MetricsConfig holds settings for the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// NewConfig creates a new Config instance with default values.
func NewConfig() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			InputDevice:  DefaultDeviceID,
			OutputDevice: DefaultDeviceID,
			SampleRate:   DefaultSampleRate,
			BlockSize:    DefaultBlockSize,
			FFTWindow:    DefaultWindow,
		},
		Spectrogram: SpectrogramConfig{
			FFTSize:       DefaultFFTSize,
			History:       DefaultHistory,
			Normalization: DefaultNormalization,
			Reference:     DefaultReference,
			Epsilon:       DefaultEpsilon,
		},
		Render: RenderConfig{
			Mode:             DefaultRenderMode,
			Interval:         DefaultRenderEvery,
			ProgressInterval: DefaultProgressEvery,
			ProgressScale:    DefaultProgressScale,
			MaxFrequency:     DefaultMaxFrequency,
		},
		Recording: RecordingConfig{
			BitDepth: DefaultBitDepth,
		},
		Transport: TransportConfig{
			WebSocketAddress:  DefaultWSAddress,
			WebSocketInterval: DefaultWSInterval,
			UDPTargetAddress:  DefaultUDPAddress,
			UDPSendInterval:   DefaultUDPInterval,
		},
		Metrics: MetricsConfig{
			Address: DefaultMetricsAddr,
		},
	}
}

// RecordingFile returns the configured recording path or a timestamped
// default relative to the working directory.
func (c *Config) RecordingFile(now time.Time) string {
	if c.Recording.OutputFile != "" {
		return c.Recording.OutputFile
	}
	return "recording-" + now.UTC().Format("02-01-2006-150405") + ".wav"
}
