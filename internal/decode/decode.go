// SPDX-License-Identifier: MIT

// Package decode turns audio files into mono float64 PCM at the pipeline's
// sample rate.
package decode

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"spectro/internal/log"
)

// ErrUnsupportedFormat is wrapped by Error when the file extension or
// header is not one this package can read.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Error reports a failed decode together with the stage and file.
type Error struct {
	Op   string // open, parse, read or resample.
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("decode %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Track is a fully decoded mono track. It is immutable once returned.
type Track struct {
	Samples    []float64
	SampleRate float64
	Path       string
}

// Duration returns the playing time of the track.
func (t *Track) Duration() time.Duration {
	if t.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(t.Samples)) / t.SampleRate * float64(time.Second))
}

// pcm is what a format decoder hands back before down-mixing.
type pcm struct {
	interleaved []float64
	channels    int
	sampleRate  float64
}

// File decodes the MP3 or WAV file at path, down-mixes it to mono and
// resamples it to sampleRate when the file's rate differs.
func File(path string, sampleRate float64) (*Track, error) {
	var decodeFn func(io.ReadSeeker) (*pcm, error)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		decodeFn = decodeMP3
	case ".wav", ".wave":
		decodeFn = decodeWAV
	default:
		return nil, &Error{Op: "open", Path: path, Err: ErrUnsupportedFormat}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	start := time.Now()
	raw, err := decodeFn(f)
	if err != nil {
		var de *Error
		if errors.As(err, &de) {
			de.Path = path
			return nil, de
		}
		return nil, &Error{Op: "read", Path: path, Err: err}
	}

	mono := Downmix(raw.interleaved, raw.channels)
	log.Debugf("Decode: %s decoded (%d channels, %.0f Hz, %d frames) in %s",
		path, raw.channels, raw.sampleRate, len(mono), time.Since(start))

	if raw.sampleRate != sampleRate {
		start = time.Now()
		mono, err = Resample(mono, raw.sampleRate, sampleRate)
		if err != nil {
			return nil, &Error{Op: "resample", Path: path, Err: err}
		}
		log.Debugf("Decode: %s resampled %.0f -> %.0f Hz in %s", path, raw.sampleRate, sampleRate, time.Since(start))
	}

	return &Track{Samples: mono, SampleRate: sampleRate, Path: path}, nil
}

// Downmix averages interleaved channels into a mono slice. A single channel
// is returned as is.
func Downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	mono := make([]float64, frames)
	scale := 1 / float64(channels)
	for i := range mono {
		sum := 0.0
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		mono[i] = sum * scale
	}
	return mono
}
