// SPDX-License-Identifier: MIT
package playback

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeTime advances only when the clock sleeps.
type fakeTime struct {
	now    time.Time
	slept  []time.Duration
	extra  time.Duration // Added on every sleep to simulate a slow producer.
	cancel bool
}

func (f *fakeTime) Now() time.Time { return f.now }

func (f *fakeTime) Sleep(ctx context.Context, d time.Duration) error {
	f.slept = append(f.slept, d)
	f.now = f.now.Add(d + f.extra)
	return ctx.Err()
}

func TestBlockDuration(t *testing.T) {
	tests := []struct {
		samples int
		rate    float64
		want    time.Duration
	}{
		{1024, 44100, 23219954 * time.Nanosecond},
		{44100, 44100, time.Second},
		{0, 44100, 0},
		{1024, 0, 0},
	}
	for _, tt := range tests {
		if got := BlockDuration(tt.samples, tt.rate); got != tt.want {
			t.Errorf("BlockDuration(%d, %.0f) = %s, want %s", tt.samples, tt.rate, got, tt.want)
		}
	}
}

func TestClockPaceSteady(t *testing.T) {
	ft := &fakeTime{now: time.Unix(0, 0)}
	c := NewClockWith(ft.Now, ft.Sleep)
	block := BlockDuration(1024, 44100)

	for range 10 {
		if err := c.Pace(context.Background(), 1024, 44100); err != nil {
			t.Fatalf("Pace() error = %v", err)
		}
	}
	for i, d := range ft.slept {
		if d != block {
			t.Errorf("sleep %d = %s, want %s", i, d, block)
		}
	}
}

func TestClockPaceCompensatesJitter(t *testing.T) {
	ft := &fakeTime{now: time.Unix(0, 0), extra: time.Millisecond}
	c := NewClockWith(ft.Now, ft.Sleep)
	block := BlockDuration(1024, 44100)

	for range 3 {
		_ = c.Pace(context.Background(), 1024, 44100)
	}
	// Each late wake-up is taken out of the next wait.
	if ft.slept[0] != block || ft.slept[1] != block-time.Millisecond || ft.slept[2] != block-time.Millisecond {
		t.Errorf("sleeps = %v", ft.slept)
	}
}

func TestClockPaceReanchorsWhenFarBehind(t *testing.T) {
	ft := &fakeTime{now: time.Unix(0, 0)}
	c := NewClockWith(ft.Now, ft.Sleep)
	block := BlockDuration(1024, 44100)

	_ = c.Pace(context.Background(), 1024, 44100)
	ft.now = ft.now.Add(10 * block) // stalled producer
	_ = c.Pace(context.Background(), 1024, 44100)

	if ft.slept[1] != block {
		t.Errorf("sleep after stall = %s, want %s", ft.slept[1], block)
	}

	c.Reset()
	_ = c.Pace(context.Background(), 1024, 44100)
	if ft.slept[2] != block {
		t.Errorf("sleep after Reset = %s, want %s", ft.slept[2], block)
	}
}

func TestClockPaceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClock()
	start := time.Now()
	if err := c.Pace(ctx, 44100, 44100); !errors.Is(err, context.Canceled) {
		t.Errorf("Pace() error = %v, want context.Canceled", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("Pace() blocked on a cancelled context")
	}
}

func TestSleep(t *testing.T) {
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Sleep() error = %v", err)
	}
	if err := Sleep(context.Background(), -time.Second); err != nil {
		t.Errorf("Sleep(negative) error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := Sleep(ctx, time.Minute); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Sleep() error = %v, want DeadlineExceeded", err)
	}
}
