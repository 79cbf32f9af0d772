// SPDX-License-Identifier: MIT

// Package playback drives file mode: it decodes a track, starts the audio
// output and runs a paced producer that feeds the spectrogram one block at
// a time.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"spectro/internal/analysis"
	"spectro/internal/decode"
	"spectro/internal/log"
	"spectro/internal/observe"
	"spectro/internal/source"
	"spectro/internal/spectrogram"
)

// ErrNoTrack is returned by LoadTrack for a nil or empty track.
var ErrNoTrack = errors.New("no track to play")

// Output plays a decoded track on an audio device. Play is called once per
// load and must not block for the duration of the track.
type Output interface {
	Play(samples []float64, sampleRate float64) error
	Stop() error
}

// drainer is implemented by outputs that can tell when the device has been
// handed every sample.
type drainer interface {
	Finished() bool
}

// DecodeFunc decodes the file at path to mono samples at sampleRate.
type DecodeFunc func(path string, sampleRate float64) (*decode.Track, error)

// FrameHook is called by the producer after every push with the load
// generation and the reader position. It runs on the producer goroutine.
type FrameHook func(generation uint64, position int64)

// Option configures a Player.
type Option func(*Player)

// WithOutput plays every loaded track through out.
func WithOutput(out Output) Option { return func(p *Player) { p.output = out } }

// WithClock replaces the wall-clock pacer.
func WithClock(c *Clock) Option { return func(p *Player) { p.clock = c } }

// WithDecoder replaces decode.File.
func WithDecoder(fn DecodeFunc) Option { return func(p *Player) { p.decode = fn } }

// WithFrameHook installs a per-frame callback.
func WithFrameHook(fn FrameHook) Option { return func(p *Player) { p.hook = fn } }

// WithMetrics records into m instead of observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option { return func(p *Player) { p.metrics = m } }

// Player owns the single file-mode producer. Load and Stop may be called
// from any goroutine; State and Progress are lock-free reads for pollers.
//
// At most one producer writes the buffer at a time: a new load cancels the
// previous producer and waits for it to exit before resetting anything.
type Player struct {
	transform  analysis.SpectralTransform
	buffer     *spectrogram.Buffer
	blockSize  int
	sampleRate float64

	output  Output
	clock   *Clock
	decode  DecodeFunc
	hook    FrameHook
	metrics *observe.Metrics

	mu         sync.Mutex // Serializes Load, Stop and producer hand-over.
	cancel     context.CancelFunc
	done       chan struct{}
	playing    bool // Output.Play succeeded for the current load.
	state      atomic.Int32
	generation atomic.Uint64
	reader     atomic.Pointer[source.TrackReader]
}

// NewPlayer returns an idle player that transforms blocks of blockSize
// samples and pushes the rows into buffer.
func NewPlayer(transform analysis.SpectralTransform, buffer *spectrogram.Buffer, blockSize int, sampleRate float64, opts ...Option) *Player {
	if transform.Bins() != buffer.Bins() {
		panic(fmt.Sprintf("playback: transform yields %d bins, buffer holds %d", transform.Bins(), buffer.Bins()))
	}
	p := &Player{
		transform:  transform,
		buffer:     buffer,
		blockSize:  blockSize,
		sampleRate: sampleRate,
		clock:      NewClock(),
		decode:     decode.File,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Load decodes path and starts playing it. A decode failure is returned
// before any state changes, so a track that is already playing carries on.
func (p *Player) Load(ctx context.Context, path string) error {
	track, err := p.decode(path, p.sampleRate)
	if err != nil {
		op := "unknown"
		var de *decode.Error
		if errors.As(err, &de) {
			op = de.Op
		}
		p.metrics.RecordDecodeError(ctx, op)
		p.metrics.RecordTrackLoad(ctx, "error")
		return err
	}
	return p.LoadTrack(ctx, track)
}

// LoadTrack starts playing an already decoded track. Any producer from a
// previous load is cancelled and awaited first. The producer runs until the
// track ends, Stop is called, another load preempts it, or ctx is done.
func (p *Player) LoadTrack(ctx context.Context, track *decode.Track) error {
	if track == nil || len(track.Samples) == 0 {
		p.metrics.RecordTrackLoad(ctx, "error")
		return ErrNoTrack
	}
	if track.SampleRate != p.sampleRate {
		p.metrics.RecordTrackLoad(ctx, "error")
		return fmt.Errorf("track %s is %.0f Hz, pipeline runs at %.0f Hz", track.Path, track.SampleRate, p.sampleRate)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	// --- Loading: single writer guaranteed from here ---
	p.state.Store(int32(Loading))
	p.reader.Store(nil)
	p.buffer.Reset()
	gen := p.generation.Add(1)

	reader := source.NewTrackReader(track.Samples, p.blockSize)
	if p.output != nil {
		if err := p.output.Play(track.Samples, track.SampleRate); err != nil {
			log.Warnf("Playback: Audio output failed for %s, visualizing silently: %v", track.Path, err)
		} else {
			p.playing = true
		}
	}

	prodCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel, p.done = cancel, done
	p.reader.Store(reader)
	p.clock.Reset()
	p.state.Store(int32(Playing))
	p.metrics.RecordTrackLoad(ctx, "ok")

	log.Infof("Playback: Playing %s (%s, generation %d)", track.Path, track.Duration().Round(time.Millisecond), gen)

	go p.produce(prodCtx, gen, reader, done)
	return nil
}

// produce is the file-mode producer loop. It checks for cancellation once
// per block, before reading.
func (p *Player) produce(ctx context.Context, gen uint64, reader *source.TrackReader, done chan struct{}) {
	defer close(done)

	row := make([]float64, p.transform.Bins())
	for {
		if ctx.Err() != nil {
			p.finish(gen, Stopped)
			return
		}

		frame, err := reader.Next()
		if errors.Is(err, source.ErrEndOfStream) {
			p.finish(gen, Finished)
			return
		}

		start := time.Now()
		p.transform.TransformInto(row, frame)
		p.metrics.RecordTransform(ctx, time.Since(start))

		p.buffer.Push(row)
		p.metrics.RecordFramePushed(ctx, observe.ModeFile)
		if p.hook != nil {
			p.hook(gen, reader.Position())
		}

		if err := p.clock.Pace(ctx, len(frame), p.sampleRate); err != nil {
			p.finish(gen, Stopped)
			return
		}
	}
}

func (p *Player) finish(gen uint64, s State) {
	// A newer load owns the state once the generation moves on.
	if p.generation.Load() != gen {
		return
	}
	p.state.CompareAndSwap(int32(Playing), int32(s))
	log.Debugf("Playback: Producer %d exited (%s)", gen, s)
}

// stopLocked cancels the running producer, if any, and waits for it to
// exit. The caller holds p.mu.
func (p *Player) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
		p.cancel = nil
	}
	if p.playing {
		if err := p.output.Stop(); err != nil {
			log.Warnf("Playback: Failed to stop audio output: %v", err)
		}
		p.playing = false
	}
}

// Stop cancels the current producer and waits for it to exit. The state
// becomes Stopped unless the track had already finished.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// Wait blocks until the current producer exits or ctx is done.
func (p *Player) Wait(ctx context.Context) error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drained reports whether the audio output has been handed the whole
// current track. It is true when nothing is playing or the output cannot
// tell.
func (p *Player) Drained() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return true
	}
	d, ok := p.output.(drainer)
	return !ok || d.Finished()
}

// WaitDrained polls Drained every interval until it holds or ctx is done.
func (p *Player) WaitDrained(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for !p.Drained() {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// State returns the current lifecycle state.
func (p *Player) State() State { return State(p.state.Load()) }

// Generation returns the number of successful loads so far.
func (p *Player) Generation() uint64 { return p.generation.Load() }

// Position returns samples consumed from the current track.
func (p *Player) Position() int64 {
	if r := p.reader.Load(); r != nil {
		return r.Position()
	}
	return 0
}

// Total returns the current track length in samples.
func (p *Player) Total() int64 {
	if r := p.reader.Load(); r != nil {
		return r.Total()
	}
	return 0
}

// Progress returns position/total clamped to [0, 1]. It is 0 before the
// first load and drops back to 0 when a new track starts loading.
func (p *Player) Progress() float64 {
	if r := p.reader.Load(); r != nil {
		return r.Progress()
	}
	return 0
}

// ProgressScaled maps Progress onto the integer range [0, scale] for a
// bounded indicator.
func (p *Player) ProgressScaled(scale int) int {
	return int(p.Progress() * float64(scale))
}
