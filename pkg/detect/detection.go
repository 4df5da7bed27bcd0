// Package detect scans a feature pyramid with a linear classifier, and turns
// the resulting score maps into non-overlapping detections.
package detect

import (
	"slices"

	"github.com/cyclopcam/windet/pkg/geom"
)

type Detection struct {
	Box   geom.Rect `json:"box"`
	Score float64   `json:"score"`
}

// SortByScore sorts detections by descending score.
// Detections with equal scores keep their relative order.
func SortByScore(d []Detection) {
	slices.SortStableFunc(d, func(a, b Detection) int {
		if a.Score > b.Score {
			return -1
		} else if a.Score < b.Score {
			return 1
		}
		return 0
	})
}

// Boxes strips the scores
func Boxes(d []Detection) []geom.Rect {
	boxes := make([]geom.Rect, len(d))
	for i := range d {
		boxes[i] = d[i].Box
	}
	return boxes
}
