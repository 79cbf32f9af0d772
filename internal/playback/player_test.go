// SPDX-License-Identifier: MIT
package playback

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"spectro/internal/analysis"
	"spectro/internal/decode"
	"spectro/internal/spectrogram"
	"spectro/pkg/utils"
)

const (
	testSampleRate = 44100
	testBlockSize  = 1024
	testFFTSize    = 512
	testHistory    = 100
)

// recordingTransform checks every row the producer computes.
type recordingTransform struct {
	*analysis.Transformer
	mu   sync.Mutex
	rows [][]float64
}

func (r *recordingTransform) TransformInto(dst, frame []float64) {
	r.Transformer.TransformInto(dst, frame)
	row := make([]float64, len(dst))
	copy(row, dst)
	r.mu.Lock()
	r.rows = append(r.rows, row)
	r.mu.Unlock()
}

func (r *recordingTransform) Rows() [][]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows
}

type fakeOutput struct {
	plays    atomic.Int32
	stops    atomic.Int32
	finished atomic.Bool
	err      error
}

func (f *fakeOutput) Finished() bool { return f.finished.Load() }

func (f *fakeOutput) Play([]float64, float64) error {
	f.plays.Add(1)
	return f.err
}

func (f *fakeOutput) Stop() error {
	f.stops.Add(1)
	return nil
}

// fastClock paces nothing, so tracks play as fast as the CPU allows.
func fastClock() *Clock {
	return NewClockWith(time.Now, func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	})
}

// gateClock blocks every Pace until a step is released or ctx is done.
func gateClock() (*Clock, chan struct{}) {
	steps := make(chan struct{})
	return NewClockWith(time.Now, func(ctx context.Context, _ time.Duration) error {
		select {
		case <-steps:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}), steps
}

func newTestPlayer(t *testing.T, opts ...Option) (*Player, *recordingTransform, *spectrogram.Buffer) {
	t.Helper()
	tr, err := analysis.NewTransformer(analysis.Options{
		BlockSize:  testBlockSize,
		FFTSize:    testFFTSize,
		SampleRate: testSampleRate,
		Window:     analysis.Hann,
	})
	if err != nil {
		t.Fatalf("NewTransformer() error = %v", err)
	}
	rec := &recordingTransform{Transformer: tr}
	buf := spectrogram.New(testHistory, tr.Bins())
	p := NewPlayer(rec, buf, testBlockSize, testSampleRate, opts...)
	t.Cleanup(p.Stop)
	return p, rec, buf
}

func track(samples []float64) *decode.Track {
	return &decode.Track{Samples: samples, SampleRate: testSampleRate, Path: "test.wav"}
}

func waitDone(t *testing.T, p *Player) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func TestPlayerInitialState(t *testing.T) {
	p, _, _ := newTestPlayer(t)
	if p.State() != Idle {
		t.Errorf("State() = %v, want idle", p.State())
	}
	if p.Progress() != 0 || p.ProgressScaled(1000) != 0 || p.Total() != 0 {
		t.Errorf("progress before load = %f", p.Progress())
	}
	if err := p.Wait(context.Background()); err != nil {
		t.Errorf("Wait() before load = %v", err)
	}
}

func TestPlayerSilentTrackEndToEnd(t *testing.T) {
	p, rec, buf := newTestPlayer(t, WithClock(fastClock()))
	silence := utils.GenerateSilence(2 * testSampleRate)

	if err := p.LoadTrack(context.Background(), track(silence)); err != nil {
		t.Fatalf("LoadTrack() error = %v", err)
	}
	waitDone(t, p)

	if p.State() != Finished {
		t.Errorf("State() = %v, want finished", p.State())
	}
	if p.Position() != p.Total() || p.Total() != int64(len(silence)) {
		t.Errorf("Position() = %d, Total() = %d, want both %d", p.Position(), p.Total(), len(silence))
	}
	if p.Progress() != 1 || p.ProgressScaled(1000) != 1000 {
		t.Errorf("Progress() = %f, ProgressScaled() = %d", p.Progress(), p.ProgressScaled(1000))
	}

	wantRows := len(silence) / testBlockSize
	rows := rec.Rows()
	if len(rows) != wantRows || buf.Writes() != uint64(wantRows) {
		t.Fatalf("rows = %d, writes = %d, want %d", len(rows), buf.Writes(), wantRows)
	}
	for i, row := range rows {
		for j, v := range row {
			if math.Abs(v) > 1e-9 {
				t.Fatalf("row %d bin %d = %g, want 0", i, j, v)
			}
		}
	}
}

func TestPlayerSinePeakBin(t *testing.T) {
	p, rec, _ := newTestPlayer(t, WithClock(fastClock()))
	sine := utils.GenerateSineWave(testSampleRate/2, testSampleRate, 440, 0.5)

	if err := p.LoadTrack(context.Background(), track(sine)); err != nil {
		t.Fatalf("LoadTrack() error = %v", err)
	}
	waitDone(t, p)

	want := 440 / (float64(testSampleRate) / testFFTSize)
	rows := rec.Rows()
	if len(rows) == 0 {
		t.Fatal("no rows pushed")
	}
	for i, row := range rows {
		got := utils.FindPeakBin(row, 0, len(row)-1)
		if math.Abs(float64(got)-want) > 1.5 {
			t.Fatalf("row %d peak bin = %d, want %.1f±1", i, got, want)
		}
	}
}

func TestPlayerProgressMonotonic(t *testing.T) {
	p, _, _ := newTestPlayer(t, WithClock(fastClock()))
	samples := utils.GenerateSilence(20 * testSampleRate)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		last := 0.0
		for {
			select {
			case <-stop:
				return
			default:
			}
			pr := p.Progress()
			if pr < last {
				t.Errorf("progress went backwards within one load: %f < %f", pr, last)
				return
			}
			if pr < 0 || pr > 1 {
				t.Errorf("progress %f outside [0, 1]", pr)
				return
			}
			last = pr
		}
	}()

	if err := p.LoadTrack(context.Background(), track(samples)); err != nil {
		t.Fatalf("LoadTrack() error = %v", err)
	}
	waitDone(t, p)
	close(stop)
	wg.Wait()
}

func TestPlayerProgressResetsOnLoad(t *testing.T) {
	clock, steps := gateClock()
	p, _, buf := newTestPlayer(t, WithClock(clock))
	samples := utils.GenerateSineWave(10*testBlockSize, testSampleRate, 440, 0.5)

	if err := p.LoadTrack(context.Background(), track(samples)); err != nil {
		t.Fatalf("LoadTrack() error = %v", err)
	}
	for range 5 {
		steps <- struct{}{}
	}
	if p.Progress() < 0.5 {
		t.Fatalf("Progress() = %f after five blocks, want >= 0.5", p.Progress())
	}

	if err := p.LoadTrack(context.Background(), track(samples)); err != nil {
		t.Fatalf("second LoadTrack() error = %v", err)
	}
	// The new producer has pushed at most its first block.
	if got, limit := p.Progress(), float64(testBlockSize)/float64(len(samples)); got > limit {
		t.Errorf("Progress() after reload = %f, want <= %f", got, limit)
	}
	for _, row := range buf.Snapshot()[:testHistory-1] {
		if row[0] != 0 {
			t.Fatal("buffer not reset on reload")
		}
	}
}

func TestPlayerReloadSingleProducer(t *testing.T) {
	var (
		mu       sync.Mutex
		reloaded atomic.Bool
		calls    = map[uint64]int{}
		stale    int
	)
	hook := func(gen uint64, _ int64) {
		mu.Lock()
		defer mu.Unlock()
		calls[gen]++
		if gen == 1 && reloaded.Load() {
			stale++
		}
	}

	clock, steps := gateClock()
	out := &fakeOutput{}
	p, _, buf := newTestPlayer(t, WithClock(clock), WithFrameHook(hook), WithOutput(out))
	samples := utils.GenerateSilence(50 * testBlockSize)

	if err := p.LoadTrack(context.Background(), track(samples)); err != nil {
		t.Fatalf("LoadTrack() error = %v", err)
	}
	for range 3 {
		steps <- struct{}{}
	}

	if err := p.LoadTrack(context.Background(), track(samples)); err != nil {
		t.Fatalf("second LoadTrack() error = %v", err)
	}
	reloaded.Store(true)
	if p.Generation() != 2 || p.State() != Playing {
		t.Fatalf("after reload: generation %d, state %v", p.Generation(), p.State())
	}

	for range 3 {
		steps <- struct{}{}
	}
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	if stale != 0 {
		t.Errorf("first producer pushed %d rows after the reload returned", stale)
	}
	// Three released paces guarantee three pushes; a fourth may race the cancel.
	if calls[1] < 3 || calls[1] > 4 || calls[2] < 3 || calls[2] > 4 {
		t.Errorf("pushes per generation = %v", calls)
	}
	if buf.Writes() != uint64(calls[1]+calls[2]) {
		t.Errorf("Writes() = %d, hook saw %d", buf.Writes(), calls[1]+calls[2])
	}
	if p.State() != Stopped {
		t.Errorf("State() = %v, want stopped", p.State())
	}
	if out.plays.Load() != 2 || out.stops.Load() != 2 {
		t.Errorf("output plays/stops = %d/%d, want 2/2", out.plays.Load(), out.stops.Load())
	}
}

func TestPlayerDecodeErrorLeavesState(t *testing.T) {
	decodeErr := &decode.Error{Op: "parse", Path: "broken.mp3", Err: decode.ErrUnsupportedFormat}
	samples := utils.GenerateSilence(10 * testBlockSize)
	decoder := func(path string, rate float64) (*decode.Track, error) {
		if path == "broken.mp3" {
			return nil, decodeErr
		}
		return &decode.Track{Samples: samples, SampleRate: rate, Path: path}, nil
	}

	clock, steps := gateClock()
	p, _, _ := newTestPlayer(t, WithClock(clock), WithDecoder(decoder))

	if err := p.Load(context.Background(), "good.wav"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	steps <- struct{}{}
	before := p.Progress()

	err := p.Load(context.Background(), "broken.mp3")
	if !errors.Is(err, decode.ErrUnsupportedFormat) {
		t.Fatalf("Load() error = %v, want ErrUnsupportedFormat", err)
	}
	if p.State() != Playing || p.Generation() != 1 || p.Progress() < before {
		t.Errorf("decode error changed state: %v gen %d progress %f", p.State(), p.Generation(), p.Progress())
	}

	// The original producer keeps going.
	steps <- struct{}{}
	steps <- struct{}{}
	if p.Progress() <= before {
		t.Errorf("producer stalled after failed load: %f", p.Progress())
	}
}

func TestPlayerDecodeErrorFromIdle(t *testing.T) {
	p, _, _ := newTestPlayer(t, WithDecoder(func(string, float64) (*decode.Track, error) {
		return nil, errors.New("boom")
	}))
	if err := p.Load(context.Background(), "x.wav"); err == nil {
		t.Fatal("expected error")
	}
	if p.State() != Idle || p.Generation() != 0 {
		t.Errorf("State() = %v, Generation() = %d", p.State(), p.Generation())
	}
}

func TestPlayerLoadTrackRejects(t *testing.T) {
	p, _, _ := newTestPlayer(t)

	tests := []struct {
		name  string
		track *decode.Track
	}{
		{"Nil", nil},
		{"Empty", track(nil)},
		{"Wrong Rate", &decode.Track{Samples: make([]float64, 4096), SampleRate: 48000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := p.LoadTrack(context.Background(), tt.track); err == nil {
				t.Error("expected error")
			}
			if p.State() != Idle {
				t.Errorf("State() = %v, want idle", p.State())
			}
		})
	}
}

func TestPlayerStopAndContextCancel(t *testing.T) {
	clock, _ := gateClock()
	out := &fakeOutput{err: errors.New("no device")}
	p, _, _ := newTestPlayer(t, WithClock(clock), WithOutput(out))

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.LoadTrack(ctx, track(utils.GenerateSilence(10*testBlockSize))); err != nil {
		t.Fatalf("LoadTrack() error = %v", err)
	}
	cancel()
	waitDone(t, p)
	if p.State() != Stopped {
		t.Errorf("State() = %v, want stopped", p.State())
	}

	// A failed Play is not stopped again.
	p.Stop()
	if out.stops.Load() != 0 {
		t.Errorf("Stop() called on output that never started")
	}
}

func TestPlayerStopAfterFinishKeepsFinished(t *testing.T) {
	p, _, _ := newTestPlayer(t, WithClock(fastClock()))
	if err := p.LoadTrack(context.Background(), track(utils.GenerateSilence(4*testBlockSize))); err != nil {
		t.Fatal(err)
	}
	waitDone(t, p)
	p.Stop()
	if p.State() != Finished {
		t.Errorf("State() = %v, want finished", p.State())
	}
}

// plainOutput cannot report whether the device has drained.
type plainOutput struct{}

func (plainOutput) Play([]float64, float64) error { return nil }
func (plainOutput) Stop() error                   { return nil }

func TestPlayerDrained(t *testing.T) {
	tests := []struct {
		name     string
		output   Output
		load     bool
		finished bool
		want     bool
	}{
		{"No output", nil, true, false, true},
		{"Nothing loaded", &fakeOutput{}, false, false, true},
		{"Output still playing", &fakeOutput{}, true, false, false},
		{"Output finished", &fakeOutput{}, true, true, true},
		{"Output failed to start", &fakeOutput{err: errors.New("no device")}, true, false, true},
		{"Output cannot tell", plainOutput{}, true, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.output != nil {
				opts = append(opts, WithOutput(tt.output))
			}
			clock, _ := gateClock()
			p, _, _ := newTestPlayer(t, append(opts, WithClock(clock))...)
			if tt.load {
				if err := p.LoadTrack(context.Background(), track(utils.GenerateSilence(4*testBlockSize))); err != nil {
					t.Fatalf("LoadTrack() error = %v", err)
				}
			}
			if out, ok := tt.output.(*fakeOutput); ok {
				out.finished.Store(tt.finished)
			}
			if got := p.Drained(); got != tt.want {
				t.Errorf("Drained() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPlayerWaitDrained(t *testing.T) {
	out := &fakeOutput{}
	p, _, _ := newTestPlayer(t, WithClock(fastClock()), WithOutput(out))
	if err := p.LoadTrack(context.Background(), track(utils.GenerateSilence(4*testBlockSize))); err != nil {
		t.Fatalf("LoadTrack() error = %v", err)
	}
	waitDone(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.WaitDrained(ctx, time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitDrained() before drain = %v, want deadline exceeded", err)
	}

	time.AfterFunc(5*time.Millisecond, func() { out.finished.Store(true) })
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.WaitDrained(ctx, time.Millisecond); err != nil {
		t.Errorf("WaitDrained() error = %v", err)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		Idle: "idle", Loading: "loading", Playing: "playing",
		Finished: "finished", Stopped: "stopped", State(42): "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
	if !Finished.Terminal() || !Stopped.Terminal() || Playing.Terminal() {
		t.Error("Terminal() mismatch")
	}
}
