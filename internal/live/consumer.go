// SPDX-License-Identifier: MIT

// Package live drives live mode: it drains the capture mailbox, transforms
// each fresh frame and pushes the row into the spectrogram.
package live

import (
	"context"
	"fmt"
	"time"

	"spectro/internal/analysis"
	"spectro/internal/log"
	"spectro/internal/observe"
	"spectro/internal/source"
	"spectro/internal/spectrogram"
)

// Interruption kinds used as the "kind" metric attribute.
const (
	KindInputOverflow   = "input_overflow"
	KindInputUnderflow  = "input_underflow"
	KindOutputOverflow  = "output_overflow"
	KindOutputUnderflow = "output_underflow"
)

// Status is a snapshot of the capture callback's cumulative status flags.
type Status struct {
	InputOverflow   uint64
	InputUnderflow  uint64
	OutputOverflow  uint64
	OutputUnderflow uint64
}

// StatusFunc reports the capture stream status counters.
type StatusFunc func() Status

// Option configures a Consumer.
type Option func(*Consumer)

// WithStatus polls fn for stream interruptions after every tick.
func WithStatus(fn StatusFunc) Option { return func(c *Consumer) { c.status = fn } }

// WithInterval sets how often the mailbox is checked for a fresh frame.
func WithInterval(d time.Duration) Option { return func(c *Consumer) { c.interval = d } }

// WithMetrics records into m instead of observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option { return func(c *Consumer) { c.metrics = m } }

// Consumer is the single live-mode producer for a spectrogram buffer.
type Consumer struct {
	mailbox   *source.Mailbox
	transform analysis.SpectralTransform
	buffer    *spectrogram.Buffer
	row       []float64

	interval time.Duration
	status   StatusFunc
	metrics  *observe.Metrics

	lastDropped uint64
	lastStatus  Status
}

// NewConsumer reads frames from mailbox. It panics if the transform and the
// buffer disagree on the bin count.
func NewConsumer(mailbox *source.Mailbox, transform analysis.SpectralTransform, buffer *spectrogram.Buffer, opts ...Option) *Consumer {
	if transform.Bins() != buffer.Bins() {
		panic(fmt.Sprintf("live: transform yields %d bins, buffer holds %d", transform.Bins(), buffer.Bins()))
	}
	c := &Consumer{
		mailbox:   mailbox,
		transform: transform,
		buffer:    buffer,
		row:       make([]float64, transform.Bins()),
		interval:  5 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Run checks the mailbox every interval until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	log.Debugf("Live: Consumer started (interval %s)", c.interval)
	for {
		select {
		case <-ctx.Done():
			log.Debugf("Live: Consumer stopped after %d frames (%d dropped)",
				c.mailbox.Consumed(), c.mailbox.Dropped())
			return nil
		case <-ticker.C:
			c.Step(ctx)
		}
	}
}

// Step pushes the newest frame if one arrived since the last call and
// reports whether it did. Stale frames are never pushed twice.
func (c *Consumer) Step(ctx context.Context) bool {
	defer c.checkStatus(ctx)

	frame, fresh := c.mailbox.Latest()
	if !fresh {
		return false
	}

	start := time.Now()
	c.transform.TransformInto(c.row, frame)
	c.metrics.RecordTransform(ctx, time.Since(start))

	c.buffer.Push(c.row)
	c.metrics.RecordFramePushed(ctx, observe.ModeLive)

	if dropped := c.mailbox.Dropped(); dropped > c.lastDropped {
		c.metrics.RecordFramesDropped(ctx, int64(dropped-c.lastDropped))
		log.Debugf("Live: %d frames overwritten before they were read", dropped-c.lastDropped)
		c.lastDropped = dropped
	}
	return true
}

// checkStatus logs and counts interruptions reported since the last check.
func (c *Consumer) checkStatus(ctx context.Context) {
	if c.status == nil {
		return
	}
	s := c.status()
	prev := c.lastStatus
	c.lastStatus = s

	c.report(ctx, KindInputOverflow, s.InputOverflow, prev.InputOverflow)
	c.report(ctx, KindInputUnderflow, s.InputUnderflow, prev.InputUnderflow)
	c.report(ctx, KindOutputOverflow, s.OutputOverflow, prev.OutputOverflow)
	c.report(ctx, KindOutputUnderflow, s.OutputUnderflow, prev.OutputUnderflow)
}

func (c *Consumer) report(ctx context.Context, kind string, now, prev uint64) {
	if now <= prev {
		return
	}
	n := now - prev
	log.Warnf("Live: Capture stream reported %s (%d)", kind, n)
	c.metrics.RecordStreamInterruption(ctx, kind, int64(n))
}
