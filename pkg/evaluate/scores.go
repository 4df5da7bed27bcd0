package evaluate

import "github.com/cyclopcam/windet/pkg/gen"

// ClassifiedScore is the score of a detection, and whether it was correct
type ClassifiedScore struct {
	Score        float64
	TruePositive bool
}

func descending(a, b ClassifiedScore) bool {
	return a.Score > b.Score
}

// MergeSorted merges two lists sorted by descending score.
// Equal scores from 'a' come before those from 'b'.
func MergeSorted(a, b []ClassifiedScore) []ClassifiedScore {
	return gen.MergeSorted(a, b, descending)
}

// IsSorted returns true if scores are in descending order
func IsSorted(scores []ClassifiedScore) bool {
	return gen.IsSorted(scores, descending)
}
