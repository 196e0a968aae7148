// SPDX-License-Identifier: MIT
//
// Package bitint provides the power-of-2 helpers behind FFT and buffer
// geometry. Constant time, no allocation.
package bitint

import "math/bits"

// IsPowerOfTwo reports whether n is a positive power of 2. A power of 2 has
// exactly one bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// NextPowerOfTwo returns the smallest power of 2 >= size; sizes <= 0 round
// up to 1. The size-1 keeps exact powers of 2 unchanged instead of doubling
// them.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len64(uint64(size-1))
}
