// SPDX-License-Identifier: MIT
package source

import (
	"fmt"
	"sync/atomic"
)

// slot is one frame buffer. The consumer reads seq through middle while the
// publisher may be writing it.
type slot struct {
	data []float64
	seq  atomic.Uint64
}

// Mailbox is a lossy single-slot exchange between one publisher (the
// capture callback) and one consumer. It is a triple buffer: the publisher
// owns back, the consumer owns front, and middle is exchanged atomically.
// Publish never blocks or allocates. Frames published faster than the
// consumer reads them are overwritten and counted as dropped.
type Mailbox struct {
	blockSize int

	back   *slot // Publisher only.
	middle atomic.Pointer[slot]
	front  *slot // Consumer only.

	published atomic.Uint64
	consumed  atomic.Uint64
	dropped   atomic.Uint64
}

var _ Source = (*Mailbox)(nil)

// NewMailbox returns a mailbox of blockSize frames. Until the first Publish
// the consumer sees a frame of zeros.
func NewMailbox(blockSize int) *Mailbox {
	if blockSize <= 0 {
		panic(fmt.Sprintf("source: invalid block size %d", blockSize))
	}
	m := &Mailbox{
		blockSize: blockSize,
		back:      &slot{data: make([]float64, blockSize)},
		front:     &slot{data: make([]float64, blockSize)},
	}
	m.middle.Store(&slot{data: make([]float64, blockSize)})
	return m
}

// PublishFloat32 copies a capture buffer into the mailbox. Short buffers are
// zero-padded and long ones truncated so a misbehaving driver cannot fault
// the callback.
func (m *Mailbox) PublishFloat32(in []float32) {
	dst := m.back.data
	n := min(len(in), len(dst))
	for i := range n {
		dst[i] = float64(in[i])
	}
	clear(dst[n:])
	m.commit()
}

// Publish is PublishFloat32 for float64 samples.
func (m *Mailbox) Publish(in []float64) {
	n := copy(m.back.data, in)
	clear(m.back.data[n:])
	m.commit()
}

func (m *Mailbox) commit() {
	m.back.seq.Store(m.published.Add(1))
	m.back = m.middle.Swap(m.back)
}

// Latest returns the most recently published frame and whether it is newer
// than the frame returned by the previous call. The slice stays valid until
// the next Latest or Next call. Only one goroutine may consume.
func (m *Mailbox) Latest() ([]float64, bool) {
	prev := m.front.seq.Load()
	if mid := m.middle.Load(); mid.seq.Load() <= prev {
		return m.front.data, false
	}

	m.front = m.middle.Swap(m.front)

	m.consumed.Add(1)
	if gap := m.front.seq.Load() - prev; gap > 1 {
		m.dropped.Add(gap - 1)
	}
	return m.front.data, true
}

// Next returns the latest frame. A live source never ends, so the error is
// always nil.
func (m *Mailbox) Next() ([]float64, error) {
	frame, _ := m.Latest()
	return frame, nil
}

// BlockSize returns the frame length.
func (m *Mailbox) BlockSize() int { return m.blockSize }

// Published reports how many frames have been published.
func (m *Mailbox) Published() uint64 { return m.published.Load() }

// Consumed reports how many fresh frames the consumer has taken.
func (m *Mailbox) Consumed() uint64 { return m.consumed.Load() }

// Dropped reports how many frames were overwritten before the consumer saw
// them, as of the consumer's last fresh read.
func (m *Mailbox) Dropped() uint64 { return m.dropped.Load() }
