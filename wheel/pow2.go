package wheel

import "math/bits"

// maxHorizon bounds NextPowerOf2 so the result stays a positive int64.
const maxHorizon = int64(1) << 62

func IsPowerOf2(v int64) bool {
	return v > 0 && v&(v-1) == 0
}

// NextPowerOf2 returns the smallest power of two >= v. v must be in (0, 1<<62].
func NextPowerOf2(v int64) int64 {
	if v <= 1 {
		return 1
	}
	return int64(1) << uint(bits.Len64(uint64(v-1)))
}

func log2(v int64) uint {
	return uint(bits.TrailingZeros64(uint64(v)))
}
