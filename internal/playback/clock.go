// SPDX-License-Identifier: MIT
package playback

import (
	"context"
	"time"
)

// SleepFunc blocks for d or until ctx is done, returning ctx.Err() in the
// latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Clock paces the producer so frames are consumed at the rate the audio
// output plays them. Each Pace waits until the cumulative play time of all
// blocks since Reset has elapsed, so scheduling jitter does not add up over
// a long track. A producer that falls more than one block behind is
// re-anchored instead of racing to catch up.
type Clock struct {
	now   func() time.Time
	sleep SleepFunc
	next  time.Time
}

// NewClock returns a wall-clock pacer.
func NewClock() *Clock {
	return &Clock{now: time.Now, sleep: Sleep}
}

// NewClockWith returns a pacer driven by the given time source and sleep,
// used by tests to run playback faster than real time.
func NewClockWith(now func() time.Time, sleep SleepFunc) *Clock {
	return &Clock{now: now, sleep: sleep}
}

// Reset re-anchors the clock at the current time. Call it once per load.
func (c *Clock) Reset() {
	c.next = time.Time{}
}

// Pace blocks for blockSamples/sampleRate seconds measured from the end of
// the previous block, returning early with ctx.Err() if ctx is cancelled.
func (c *Clock) Pace(ctx context.Context, blockSamples int, sampleRate float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d := BlockDuration(blockSamples, sampleRate)
	now := c.now()
	if c.next.IsZero() || now.Sub(c.next) > d {
		c.next = now
	}
	c.next = c.next.Add(d)

	return c.sleep(ctx, c.next.Sub(now))
}

// BlockDuration returns the play time of blockSamples at sampleRate.
func BlockDuration(blockSamples int, sampleRate float64) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(blockSamples) / sampleRate * float64(time.Second))
}

// Sleep waits on a timer, honouring ctx cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
