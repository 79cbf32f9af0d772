// SPDX-License-Identifier: MIT

// Package spectrogram holds the scrolling history of spectrum rows shared
// between the single producer and any number of render pollers.
package spectrogram

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Buffer is a fixed H x K history of spectrum rows. Externally it behaves as
// a FIFO of depth H: in every snapshot row H-1 is the newest spectrum and
// row 0 the oldest retained one. Internally rows live in a ring indexed by a
// write cursor, so Push never moves existing rows.
//
// Push copies the row into its slot under the write lock; snapshots copy
// under the read lock. Readers therefore never see a half-written row.
type Buffer struct {
	mu      sync.RWMutex
	rows    [][]float64 // Ring storage, rows[next] is the oldest slot.
	backing []float64   // Single allocation behind rows.
	next    int         // Slot the next Push writes into.
	history int
	bins    int
	writes  atomic.Uint64
}

// New returns a zeroed buffer of history rows by bins columns. It panics if
// either dimension is not positive.
func New(history, bins int) *Buffer {
	if history <= 0 || bins <= 0 {
		panic(fmt.Sprintf("spectrogram: invalid dimensions %dx%d", history, bins))
	}

	backing := make([]float64, history*bins)
	rows := make([][]float64, history)
	for i := range rows {
		rows[i] = backing[i*bins : (i+1)*bins : (i+1)*bins]
	}

	return &Buffer{
		rows:    rows,
		backing: backing,
		history: history,
		bins:    bins,
	}
}

// Push appends spectrum as the newest row, evicting the oldest. The buffer
// keeps its own copy. It panics if len(spectrum) != Bins().
func (b *Buffer) Push(spectrum []float64) {
	if len(spectrum) != b.bins {
		panic(fmt.Sprintf("spectrogram: row length %d, want %d", len(spectrum), b.bins))
	}

	b.mu.Lock()
	copy(b.rows[b.next], spectrum)
	b.next = (b.next + 1) % b.history
	b.writes.Add(1)
	b.mu.Unlock()
}

// Snapshot returns a deep copy of the buffer, oldest row first.
// NOTE: This method allocates on each call. Pollers that run on a tight
// interval should hold a grid from NewGrid and use SnapshotInto.
func (b *Buffer) Snapshot() [][]float64 {
	dst := b.NewGrid()
	b.SnapshotInto(dst)
	return dst
}

// NewGrid allocates a History() x Bins() grid suitable for SnapshotInto.
func (b *Buffer) NewGrid() [][]float64 {
	backing := make([]float64, b.history*b.bins)
	grid := make([][]float64, b.history)
	for i := range grid {
		grid[i] = backing[i*b.bins : (i+1)*b.bins : (i+1)*b.bins]
	}
	return grid
}

// SnapshotInto copies the buffer into dst, oldest row first, without
// allocating. dst must be History() rows of Bins() columns.
func (b *Buffer) SnapshotInto(dst [][]float64) error {
	if len(dst) != b.history {
		return fmt.Errorf("destination has %d rows, want %d", len(dst), b.history)
	}
	for i, row := range dst {
		if len(row) != b.bins {
			return fmt.Errorf("destination row %d has %d columns, want %d", i, len(row), b.bins)
		}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for i := range dst {
		copy(dst[i], b.rows[(b.next+i)%b.history])
	}
	return nil
}

// Latest copies the newest row into dst and returns the number of pushes
// it reflects. Zero means nothing has been pushed and dst is all zeros.
func (b *Buffer) Latest(dst []float64) (uint64, error) {
	if len(dst) != b.bins {
		return 0, fmt.Errorf("destination length %d does not match bins %d", len(dst), b.bins)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	copy(dst, b.rows[(b.next+b.history-1)%b.history])
	return b.writes.Load(), nil
}

// Reset zeroes every row. The write counter keeps counting so pollers
// comparing sequence numbers still notice new rows.
func (b *Buffer) Reset() {
	b.mu.Lock()
	clear(b.backing)
	b.next = 0
	b.mu.Unlock()
}

// Writes reports the total number of rows pushed since construction.
func (b *Buffer) Writes() uint64 { return b.writes.Load() }

func (b *Buffer) History() int { return b.history }
func (b *Buffer) Bins() int    { return b.bins }
