package utils

// MinUint64 returns the minimum of a and b.
func MinUint64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// MaxUint64 returns the maximum of a and b.
func MaxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
