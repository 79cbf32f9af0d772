// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	applog "spectro/internal/log"
	"spectro/pkg/bitint"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultEnvFile is loaded, when present, before environment overrides
// are applied. Variables already set in the process environment win.
const DefaultEnvFile = ".env"

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("spectro.yaml", "config.yaml"). If no file is found,
// it uses built-in defaults. After loading defaults or from file, it applies .env and
// environment variable overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		for _, candidate := range []string{"spectro.yaml", "config.yaml"} {
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
		applog.Debugf("Config: loaded %s", path)
	}

	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadEnvFile populates the process environment from a dotenv file. A
// missing file is not an error.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	applog.Debugf("Config: loaded environment from %s", path)
	return nil
}

// Validate enforces the ranges the pipeline relies on. It is called by
// LoadConfig and again by the CLI after flags have been applied.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}

	a := c.Audio
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		errs = append(errs, fmt.Errorf("audio.sample_rate %.0f outside [%d, %d]", a.SampleRate, MinSampleRate, MaxSampleRate))
	}
	if a.BlockSize <= 0 || a.BlockSize > MaxBlockSize {
		errs = append(errs, fmt.Errorf("audio.block_size %d outside [1, %d]", a.BlockSize, MaxBlockSize))
	}
	if a.InputDevice < MinDeviceID || a.OutputDevice < MinDeviceID {
		errs = append(errs, fmt.Errorf("audio device ids must be >= %d", MinDeviceID))
	}
	if a.GateThreshold < 0 || a.GateThreshold > 1 {
		errs = append(errs, fmt.Errorf("audio.gate_threshold %.3f outside [0, 1]", a.GateThreshold))
	}
	if strings.TrimSpace(a.FFTWindow) == "" {
		errs = append(errs, errors.New("audio.fft_window must be set"))
	}

	s := c.Spectrogram
	switch {
	case s.FFTSize < 4 || s.FFTSize > MaxFFTSize:
		errs = append(errs, fmt.Errorf("spectrogram.fft_size %d must be a power of two in [4, %d]", s.FFTSize, MaxFFTSize))
	case !bitint.IsPowerOfTwo(s.FFTSize):
		errs = append(errs, fmt.Errorf("spectrogram.fft_size %d is not a power of two (try %d or %d)",
			s.FFTSize, bitint.PrevPowerOfTwo(s.FFTSize), min(bitint.NextPowerOfTwo(s.FFTSize), MaxFFTSize)))
	}
	if s.History <= 0 || s.History > MaxHistory {
		errs = append(errs, fmt.Errorf("spectrogram.history %d outside [1, %d]", s.History, MaxHistory))
	}
	switch s.Normalization {
	case NormalizePeak:
	case NormalizeFixed:
		if s.Reference <= 0 {
			errs = append(errs, fmt.Errorf("spectrogram.reference must be positive for fixed normalization, got %g", s.Reference))
		}
	default:
		errs = append(errs, fmt.Errorf("spectrogram.normalization %q is not %q or %q", s.Normalization, NormalizePeak, NormalizeFixed))
	}
	if s.Epsilon <= 0 {
		errs = append(errs, fmt.Errorf("spectrogram.epsilon must be positive, got %g", s.Epsilon))
	}

	r := c.Render
	switch r.Mode {
	case RenderMode3D, RenderMode2D, RenderModeNone:
	default:
		errs = append(errs, fmt.Errorf("render.mode %q is not one of 3d, 2d, none", r.Mode))
	}
	if r.Interval <= 0 || r.ProgressInterval <= 0 {
		errs = append(errs, errors.New("render intervals must be positive"))
	}
	if r.ProgressScale <= 0 {
		errs = append(errs, fmt.Errorf("render.progress_scale must be positive, got %d", r.ProgressScale))
	}
	if r.MaxFrequency <= 0 {
		errs = append(errs, fmt.Errorf("render.max_frequency must be positive, got %g", r.MaxFrequency))
	}

	if c.Recording.Enabled && c.Recording.BitDepth != 16 && c.Recording.BitDepth != 24 && c.Recording.BitDepth != 32 {
		errs = append(errs, fmt.Errorf("recording.bit_depth %d must be 16, 24 or 32", c.Recording.BitDepth))
	}

	t := c.Transport
	if t.WebSocketEnabled {
		if t.WebSocketAddress == "" {
			errs = append(errs, errors.New("transport.websocket_address must be set when the websocket sink is enabled"))
		}
		if t.WebSocketInterval <= 0 {
			errs = append(errs, errors.New("transport.websocket_interval must be positive"))
		}
	}
	if t.UDPEnabled {
		if !strings.Contains(t.UDPTargetAddress, ":") {
			errs = append(errs, fmt.Errorf("transport.udp_target_address %q appears invalid (missing port?)", t.UDPTargetAddress))
		}
		if t.UDPSendInterval <= 0 {
			errs = append(errs, errors.New("transport.udp_send_interval must be positive when UDP is enabled"))
		}
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, errors.New("metrics.address must be set when metrics are enabled"))
	}

	return errors.Join(errs...)
}

// applyEnvOverrides reads ENV_* variables over the file values. Values
// that fail to parse are ignored with a warning.
func (cfg *Config) applyEnvOverrides() {
	boolVar := func(name string, dst *bool) {
		if val, ok := os.LookupEnv(name); ok {
			b, err := strconv.ParseBool(val)
			if err != nil {
				applog.Warnf("Config: ignoring %s=%q: %v", name, val, err)
				return
			}
			*dst = b
			applog.Debugf("Config: overriding from %s: %v", name, b)
		}
	}
	intVar := func(name string, dst *int) {
		if val, ok := os.LookupEnv(name); ok {
			n, err := strconv.Atoi(val)
			if err != nil {
				applog.Warnf("Config: ignoring %s=%q: %v", name, val, err)
				return
			}
			*dst = n
			applog.Debugf("Config: overriding from %s: %d", name, n)
		}
	}
	floatVar := func(name string, dst *float64) {
		if val, ok := os.LookupEnv(name); ok {
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				applog.Warnf("Config: ignoring %s=%q: %v", name, val, err)
				return
			}
			*dst = f
			applog.Debugf("Config: overriding from %s: %g", name, f)
		}
	}
	stringVar := func(name string, dst *string) {
		if val, ok := os.LookupEnv(name); ok {
			*dst = val
			applog.Debugf("Config: overriding from %s: %s", name, val)
		}
	}
	durationVar := func(name string, dst *time.Duration) {
		if val, ok := os.LookupEnv(name); ok {
			d, err := time.ParseDuration(val)
			if err != nil {
				applog.Warnf("Config: ignoring %s=%q: %v", name, val, err)
				return
			}
			*dst = d
			applog.Debugf("Config: overriding from %s: %s", name, d)
		}
	}

	// ENV_{...} general overrides.
	boolVar("ENV_DEBUG", &cfg.Debug)
	stringVar("ENV_LOG_LEVEL", &cfg.LogLevel)

	// Pipeline shape.
	floatVar("ENV_SAMPLE_RATE", &cfg.Audio.SampleRate)
	intVar("ENV_BLOCK_SIZE", &cfg.Audio.BlockSize)
	intVar("ENV_FFT_SIZE", &cfg.Spectrogram.FFTSize)
	intVar("ENV_HISTORY", &cfg.Spectrogram.History)
	stringVar("ENV_NORMALIZATION", &cfg.Spectrogram.Normalization)

	// ENV_WS_{...} and ENV_UDP_{...} transport layer.
	boolVar("ENV_WS_ENABLED", &cfg.Transport.WebSocketEnabled)
	stringVar("ENV_WS_ADDRESS", &cfg.Transport.WebSocketAddress)
	boolVar("ENV_UDP_ENABLED", &cfg.Transport.UDPEnabled)
	stringVar("ENV_UDP_TARGET_ADDRESS", &cfg.Transport.UDPTargetAddress)
	durationVar("ENV_UDP_SEND_INTERVAL", &cfg.Transport.UDPSendInterval)

	// ENV_METRICS_{...}
	boolVar("ENV_METRICS_ENABLED", &cfg.Metrics.Enabled)
	stringVar("ENV_METRICS_ADDRESS", &cfg.Metrics.Address)
}

// EffectiveLogLevel folds the debug flag into the configured level.
func (c *Config) EffectiveLogLevel() applog.LogLevel {
	if c.Debug {
		return applog.LevelDebug
	}
	level, _ := applog.ParseLevel(c.LogLevel)
	return level
}
