package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"spectro/internal/config"
)

func TestParseArgsCommands(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		command   string
		trackPath string
		listTUI   bool
	}{
		{"live by default", nil, CommandLive, "", false},
		{"play", []string{"play", "song.mp3"}, CommandPlay, "song.mp3", false},
		{"list", []string{"list"}, CommandList, "", false},
		{"list tui", []string{"list", "--tui"}, CommandList, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseArgs(tt.args)
			if err != nil {
				t.Fatalf("ParseArgs(%v) error = %v", tt.args, err)
			}
			if cfg.Command != tt.command || cfg.TrackPath != tt.trackPath || cfg.ListTUI != tt.listTUI {
				t.Errorf("got command %q track %q tui %v", cfg.Command, cfg.TrackPath, cfg.ListTUI)
			}
		})
	}
}

func TestParseArgsFlagsOverrideDefaults(t *testing.T) {
	cfg, err := ParseArgs([]string{
		"play", "a.wav",
		"--sample-rate", "48000",
		"-b", "2048",
		"--fft-size", "1024",
		"--history", "50",
		"--mode", "2d",
		"--max-frequency", "4000",
		"--normalization", "fixed",
		"--window", "Hamming",
		"--mute",
		"-v",
	})
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}

	if cfg.Audio.SampleRate != 48000 || cfg.Audio.BlockSize != 2048 || !cfg.Audio.Mute {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Spectrogram.FFTSize != 1024 || cfg.Spectrogram.History != 50 || cfg.Spectrogram.Normalization != config.NormalizeFixed {
		t.Errorf("spectrogram = %+v", cfg.Spectrogram)
	}
	if cfg.Audio.FFTWindow != "Hamming" {
		t.Errorf("window = %q", cfg.Audio.FFTWindow)
	}
	if cfg.Render.Mode != config.RenderMode2D || cfg.Render.MaxFrequency != 4000 {
		t.Errorf("render = %+v", cfg.Render)
	}
	if !cfg.Debug {
		t.Error("--verbose should enable debug")
	}
}

func TestParseArgsUnsetFlagsKeepFileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spectro.yaml")
	content := "spectrogram:\n  history: 200\naudio:\n  block_size: 512\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := ParseArgs([]string{"--config", path, "--block-size", "256"})
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if cfg.Spectrogram.History != 200 {
		t.Errorf("history = %d, want the file's 200", cfg.Spectrogram.History)
	}
	if cfg.Audio.BlockSize != 256 {
		t.Errorf("block size = %d, want the flag's 256", cfg.Audio.BlockSize)
	}
}

func TestParseArgsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"play without file", []string{"play"}},
		{"unknown flag", []string{"--bogus"}},
		{"stray argument", []string{"extra"}},
		{"invalid fft size", []string{"--fft-size", "500"}},
		{"invalid mode", []string{"--mode", "4d"}},
		{"missing config file", []string{"--config", "/nonexistent/spectro.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseArgs(tt.args); err == nil {
				t.Errorf("ParseArgs(%v) expected error", tt.args)
			}
		})
	}
}
