// SPDX-License-Identifier: MIT
/*
Package bitint provides the power-of-two helpers used to size FFT plans
and ring buffers. Everything here is allocation free and constant time so
it may be called from the capture callback.

	fftSize := bitint.NextPowerOfTwo(blockSize / 2)
	ok := bitint.IsPowerOfTwo(fftSize)

NextPowerOfTwo subtracts one before taking the bit length so that exact
powers of two map to themselves:

	size-1 = 7 (0111), bits.Len = 3, 1<<3 = 8
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size. Non-positive
// sizes return 1.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// PrevPowerOfTwo returns the largest power of two <= size, or 0 when size
// is not positive. Used to clamp an FFT size to the block length.
func PrevPowerOfTwo(size int) int {
	if size <= 0 {
		return 0
	}
	return 1 << (bits.Len(uint(size)) - 1)
}

// IsPowerOfTwo reports whether n is a positive power of two. Powers of two
// have a single bit set, so n&(n-1) clears it to zero.
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
//	0      false
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// Log2 returns log2(n) for a power of two n and -1 otherwise.
func Log2(n int) int {
	if !IsPowerOfTwo(n) {
		return -1
	}
	return bits.TrailingZeros(uint(n))
}
