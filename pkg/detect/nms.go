package detect

import (
	"errors"
	"fmt"
	"slices"

	flatbush "github.com/bmharper/flatbush-go"
)

var ErrInvalidOverlapThreshold = errors.New("overlap threshold must be in (0, 1]")

// NoSuppression is an overlap threshold that no pair of boxes can exceed
const NoSuppression = 1.0

// Suppressor performs greedy non-maximum suppression
type Suppressor struct {
	OverlapThreshold float64 // Boxes that overlap a better box by more than this IoU are discarded
}

func NewSuppressor(overlapThreshold float64) (*Suppressor, error) {
	if !(overlapThreshold > 0 && overlapThreshold <= 1) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOverlapThreshold, overlapThreshold)
	}
	return &Suppressor{OverlapThreshold: overlapThreshold}, nil
}

// Suppress repeatedly keeps the best remaining detection, and discards all remaining detections
// that overlap it by more than the threshold. The result is sorted by descending score.
// The input is not modified.
func (s *Suppressor) Suppress(input []Detection) []Detection {
	sorted := slices.Clone(input)
	SortByScore(sorted)
	if len(sorted) == 0 || s.OverlapThreshold >= NoSuppression {
		return sorted
	}

	// Create spatial index to avoid O(N^2) comparisons
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(sorted))
	for _, d := range sorted {
		fb.Add(int32(d.Box.X), int32(d.Box.Y), int32(d.Box.X2()), int32(d.Box.Y2()))
	}
	fb.Finish()

	suppressed := make([]bool, len(sorted))
	keep := make([]Detection, 0, len(sorted))
	nearby := []int{}
	for i, d := range sorted {
		if suppressed[i] {
			continue
		}
		keep = append(keep, d)
		nearby = fb.SearchFast(int32(d.Box.X), int32(d.Box.Y), int32(d.Box.X2()), int32(d.Box.Y2()), nearby)
		for _, j := range nearby {
			// Everything before i has already been kept or suppressed
			if j <= i || suppressed[j] {
				continue
			}
			if d.Box.IOU(sorted[j].Box) > s.OverlapThreshold {
				suppressed[j] = true
			}
		}
	}
	return keep
}
