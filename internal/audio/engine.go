// SPDX-License-Identifier: MIT
/*
Package audio wraps PortAudio for the spectrogram pipeline:
- Lock-free live capture into a single-slot mailbox
- Stream status accounting for overflow and underflow reports
- Noise gate on the captured block
- WAV recording of the captured input
- Track playback on an output device

Thread Safety:
- The capture callback never blocks and never allocates
- Uses atomic operations for state shared with the callback
- Locks OS thread during audio processing
*/
package audio

import (
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"spectro/internal/config"
	"spectro/internal/log"
	"spectro/internal/source"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"
)

// StreamStatus is a snapshot of the flags the driver reported to the
// capture callback.
type StreamStatus struct {
	Callbacks       uint64
	InputOverflow   uint64
	InputUnderflow  uint64
	OutputOverflow  uint64
	OutputUnderflow uint64
}

// Interruptions sums every reported status flag.
func (s StreamStatus) Interruptions() uint64 {
	return s.InputOverflow + s.InputUnderflow + s.OutputOverflow + s.OutputUnderflow
}

// Engine captures mono blocks from an input device and publishes them into
// a mailbox for the live consumer.
type Engine struct {
	// Core configuration and state.
	config  *config.Config
	mailbox *source.Mailbox

	// Audio input handling.
	inputBuffer  []float32
	silence      []float32
	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  *portaudio.Stream

	// Noise gate for signal conditioning.
	gateEnabled   bool
	gateThreshold float32 // Absolute amplitude threshold (0-1)

	// Stream status counters written by the callback.
	callbacks       atomic.Uint64
	inputOverflow   atomic.Uint64
	inputUnderflow  atomic.Uint64
	outputOverflow  atomic.Uint64
	outputUnderflow atomic.Uint64

	// Recording state and buffers.
	isRecording int32 // Atomic flag for thread-safe state
	outputFile  *os.File
	wavEncoder  *wav.Encoder
	sampleBuf   *audio.IntBuffer // Reusable buffer for format conversion
	sampleScale float64          // Full scale for the recording bit depth
}

// NewEngine resolves the configured input device. PortAudio must be
// initialized.
func NewEngine(cfg *config.Config, mailbox *source.Mailbox) (*Engine, error) {
	inputDevice, err := InputDevice(cfg.Audio.InputDevice)
	if err != nil {
		return nil, err
	}

	engine := newEngine(cfg, mailbox)
	engine.inputDevice = inputDevice

	if cfg.Audio.LowLatency {
		engine.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		engine.inputLatency = inputDevice.DefaultHighInputLatency
	}

	log.Infof("Audio: Using input device %q (%.0f Hz default, latency %s)",
		inputDevice.Name, inputDevice.DefaultSampleRate, engine.inputLatency)

	return engine, nil
}

// newEngine pre-allocates every buffer the callback touches.
func newEngine(cfg *config.Config, mailbox *source.Mailbox) *Engine {
	e := &Engine{
		config:      cfg,
		mailbox:     mailbox,
		inputBuffer: make([]float32, cfg.Audio.BlockSize),
		silence:     make([]float32, cfg.Audio.BlockSize),
	}
	e.ConfigureGate(cfg.Audio.GateThreshold)
	return e
}

// StartInputStream opens and starts a mono float32 capture stream of
// BlockSize frames per buffer.
func (e *Engine) StartInputStream() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 1,
			Device:   e.inputDevice,
			Latency:  e.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: e.config.Audio.BlockSize,
		SampleRate:      e.config.Audio.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processInputStream)
	if err != nil {
		return err
	}
	e.inputStream = stream

	if err := e.inputStream.Start(); err != nil {
		e.inputStream.Close()
		e.inputStream = nil
		return err
	}

	return nil
}

func (e *Engine) StopInputStream() error {
	if e.inputStream != nil {
		if err := e.inputStream.Stop(); err != nil {
			return err
		}

		if err := e.inputStream.Close(); err != nil {
			return err
		}

		e.inputStream = nil
	}

	return nil
}

// Status returns the callback counters.
func (e *Engine) Status() StreamStatus {
	return StreamStatus{
		Callbacks:       e.callbacks.Load(),
		InputOverflow:   e.inputOverflow.Load(),
		InputUnderflow:  e.inputUnderflow.Load(),
		OutputOverflow:  e.outputOverflow.Load(),
		OutputUnderflow: e.outputUnderflow.Load(),
	}
}

// processInputStream is the core audio processing callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
// - No dynamic allocations in the hot path
func (e *Engine) processInputStream(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	e.callbacks.Add(1)
	if flags != 0 {
		e.countFlags(flags)
	}

	n := copy(e.inputBuffer, in)
	clear(e.inputBuffer[n:])

	if e.gateOpen(e.inputBuffer) {
		e.mailbox.PublishFloat32(e.inputBuffer)
	} else {
		e.mailbox.PublishFloat32(e.silence)
	}

	// Write to WAV file if recording
	if atomic.LoadInt32(&e.isRecording) == 1 && e.wavEncoder != nil {
		e.writeRecording(e.inputBuffer)
	}
}

func (e *Engine) countFlags(flags portaudio.StreamCallbackFlags) {
	if flags&portaudio.InputOverflow != 0 {
		e.inputOverflow.Add(1)
	}
	if flags&portaudio.InputUnderflow != 0 {
		e.inputUnderflow.Add(1)
	}
	if flags&portaudio.OutputOverflow != 0 {
		e.outputOverflow.Add(1)
	}
	if flags&portaudio.OutputUnderflow != 0 {
		e.outputUnderflow.Add(1)
	}
}

func (e *Engine) Close() error {
	if err := e.StopInputStream(); err != nil {
		return err
	}

	if atomic.LoadInt32(&e.isRecording) == 1 {
		if err := e.StopRecording(); err != nil {
			return err
		}
	}

	return nil
}
