package lower

import "math"

// floatBits returns the bit pattern used to dedup float constants by exact
// value.
func floatBits(v float64, isDouble bool) uint64 {
	if !isDouble {
		return uint64(math.Float32bits(float32(v)))
	}
	return math.Float64bits(v)
}
