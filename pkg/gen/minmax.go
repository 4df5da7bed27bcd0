package gen

import "cmp"

func Clamp[T cmp.Ordered](v, min, max T) T {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func Abs[T ~int | ~int32 | ~int64 | ~float32 | ~float64](a T) T {
	if a < 0 {
		return -a
	}
	return a
}
