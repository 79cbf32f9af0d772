package transport

import (
	"context"
	"time"

	"spectro/internal/log"
	"spectro/internal/spectrogram"
)

// Transport defines a generic interface for sending spectrogram snapshots.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// Frame is one published spectrogram snapshot. Rows run oldest to newest.
type Frame struct {
	Sequence  uint64      `json:"seq"`
	Timestamp int64       `json:"ts"` // Unix nanoseconds.
	Bins      int         `json:"bins"`
	Rows      [][]float64 `json:"rows"`
}

// Broadcaster polls a spectrogram buffer and hands every new snapshot to a
// Transport. Rows in the frame are reused between ticks, so a Transport must
// finish with the data before Send returns.
type Broadcaster struct {
	buffer   *spectrogram.Buffer
	sink     Transport
	interval time.Duration

	grid       [][]float64
	lastWrites uint64
}

// NewBroadcaster polls buffer every interval. A non-positive interval
// defaults to 33ms (~30Hz).
func NewBroadcaster(buffer *spectrogram.Buffer, sink Transport, interval time.Duration) *Broadcaster {
	if interval <= 0 {
		interval = 33 * time.Millisecond
		log.Warnf("Transport: Invalid broadcast interval, defaulting to %s", interval)
	}
	return &Broadcaster{
		buffer:   buffer,
		sink:     sink,
		interval: interval,
		grid:     buffer.NewGrid(),
	}
}

// Run ticks until ctx is cancelled, then closes the sink.
func (b *Broadcaster) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return b.sink.Close()
		case <-ticker.C:
			b.Tick()
		}
	}
}

// Tick sends a snapshot if rows were pushed since the previous one and
// reports whether it did.
func (b *Broadcaster) Tick() bool {
	writes := b.buffer.Writes()
	if writes == b.lastWrites {
		return false
	}
	b.lastWrites = writes

	if err := b.buffer.SnapshotInto(b.grid); err != nil {
		log.Errorf("Transport: Snapshot failed: %v", err)
		return false
	}

	frame := Frame{
		Sequence:  writes,
		Timestamp: time.Now().UnixNano(),
		Bins:      b.buffer.Bins(),
		Rows:      b.grid,
	}
	if err := b.sink.Send(frame); err != nil {
		log.Debugf("Transport: Send failed: %v", err)
	}
	return true
}
