// SPDX-License-Identifier: MIT
package source

import (
	"fmt"
	"sync/atomic"
)

// TrackReader slices non-overlapping blocks from an immutable decoded
// track. Next is called by a single producer; Position, Total and Progress
// may be read from any goroutine.
type TrackReader struct {
	samples   []float64
	blockSize int
	position  atomic.Int64
	total     int64
}

var _ Source = (*TrackReader)(nil)

// NewTrackReader reads samples in blocks of blockSize starting at 0.
func NewTrackReader(samples []float64, blockSize int) *TrackReader {
	if blockSize <= 0 {
		panic(fmt.Sprintf("source: invalid block size %d", blockSize))
	}
	return &TrackReader{
		samples:   samples,
		blockSize: blockSize,
		total:     int64(len(samples)),
	}
}

// Next returns the block at the current position and advances past it.
// When fewer than BlockSize samples remain it moves position to the end of
// the track and returns ErrEndOfStream. The returned slice aliases the track
// and must not be modified.
func (r *TrackReader) Next() ([]float64, error) {
	pos := r.position.Load()
	end := pos + int64(r.blockSize)
	if end > r.total {
		r.position.Store(r.total)
		return nil, ErrEndOfStream
	}
	r.position.Store(end)
	return r.samples[pos:end:end], nil
}

// Position reports samples consumed so far.
func (r *TrackReader) Position() int64 { return r.position.Load() }

// Total reports the track length in samples.
func (r *TrackReader) Total() int64 { return r.total }

// BlockSize returns the frame length.
func (r *TrackReader) BlockSize() int { return r.blockSize }

// Progress returns Position/Total clamped to [0, 1], or 0 for an empty track.
func (r *TrackReader) Progress() float64 {
	if r.total == 0 {
		return 0
	}
	p := float64(r.position.Load()) / float64(r.total)
	return max(0, min(p, 1))
}
