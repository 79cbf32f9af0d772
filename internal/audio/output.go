// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"spectro/internal/log"

	"github.com/gordonklaus/portaudio"
)

// TrackOutput plays a decoded mono track on an output device. It satisfies
// playback.Output: Play starts a new stream and returns immediately, Stop
// closes it. The callback reads the immutable sample slice and never blocks.
type TrackOutput struct {
	deviceID   int
	blockSize  int
	lowLatency bool

	mu       sync.Mutex
	stream   *portaudio.Stream
	samples  []float64
	position atomic.Int64
	finished atomic.Bool
}

// NewTrackOutput plays on deviceID (-1 for the default output) with
// blockSize frames per buffer. PortAudio must be initialized before Play.
func NewTrackOutput(deviceID, blockSize int, lowLatency bool) *TrackOutput {
	return &TrackOutput{deviceID: deviceID, blockSize: blockSize, lowLatency: lowLatency}
}

// Play stops any track already playing and starts samples at sampleRate.
func (t *TrackOutput) Play(samples []float64, sampleRate float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.stopLocked(); err != nil {
		log.Warnf("Audio: Failed to stop previous output stream: %v", err)
	}

	device, err := OutputDevice(t.deviceID)
	if err != nil {
		return fmt.Errorf("resolve output device: %w", err)
	}

	latency := device.DefaultHighOutputLatency
	if t.lowLatency {
		latency = device.DefaultLowOutputLatency
	}

	t.samples = samples
	t.position.Store(0)
	t.finished.Store(false)

	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Channels: 1,
			Device:   device,
			Latency:  latency,
		},
		FramesPerBuffer: t.blockSize,
		SampleRate:      sampleRate,
	}

	stream, err := portaudio.OpenStream(params, t.processOutputStream)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start output stream: %w", err)
	}
	t.stream = stream

	log.Debugf("Audio: Output started on %q (%d samples at %.0f Hz, latency %s)",
		device.Name, len(samples), sampleRate, latency.Round(time.Millisecond))
	return nil
}

// processOutputStream is the output callback.
func (t *TrackOutput) processOutputStream(out []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	t.fill(out)
}

// fill copies the next len(out) samples and pads with silence past the end.
func (t *TrackOutput) fill(out []float32) {
	pos := t.position.Load()
	total := int64(len(t.samples))

	n := 0
	for ; n < len(out) && pos+int64(n) < total; n++ {
		out[n] = float32(t.samples[pos+int64(n)])
	}
	clear(out[n:])

	t.position.Store(pos + int64(n))
	if pos+int64(n) >= total {
		t.finished.Store(true)
	}
}

// Position reports how many samples have been handed to the device.
func (t *TrackOutput) Position() int64 { return t.position.Load() }

// Finished reports whether every sample has been handed to the device.
func (t *TrackOutput) Finished() bool { return t.finished.Load() }

// Stop halts and closes the current stream, if any.
func (t *TrackOutput) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopLocked()
}

func (t *TrackOutput) stopLocked() error {
	if t.stream == nil {
		return nil
	}
	stream := t.stream
	t.stream = nil

	if err := stream.Stop(); err != nil {
		stream.Close()
		return err
	}
	return stream.Close()
}
