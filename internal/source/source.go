// SPDX-License-Identifier: MIT

// Package source produces fixed-size mono frames for the spectral pipeline,
// either from a live capture callback (Mailbox) or from a decoded track
// (TrackReader).
package source

import "errors"

// ErrEndOfStream is returned by Next when fewer than one block of samples
// remains.
var ErrEndOfStream = errors.New("end of stream")

// Source yields frames of a fixed block size. The returned slice is owned
// by the source and is only valid until the next call.
type Source interface {
	Next() ([]float64, error)
	BlockSize() int
}
