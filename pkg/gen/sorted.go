package gen

// MergeSorted merges two slices that are already sorted according to 'less'.
// The merge is stable: when elements compare equal, elements of 'a' come before elements of 'b'.
func MergeSorted[T any](a, b []T, less func(x, y T) bool) []T {
	out := make([]T, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if less(b[j], a[i]) {
			out = append(out, b[j])
			j++
		} else {
			out = append(out, a[i])
			i++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// IsSorted returns true if no element is 'less' than its predecessor
func IsSorted[T any](a []T, less func(x, y T) bool) bool {
	for i := 1; i < len(a); i++ {
		if less(a[i], a[i-1]) {
			return false
		}
	}
	return true
}

// First returns at most the first n elements of a
func First[T any](a []T, n int) []T {
	if n < 0 || n >= len(a) {
		return a
	}
	return a[:n]
}
