// Package evaluate matches detections against ground truth, and summarizes
// the quality of a detector with miss rate, FPPI and precision/recall curves.
package evaluate

import (
	"slices"

	"github.com/cyclopcam/windet/pkg/detect"
	"github.com/cyclopcam/windet/pkg/geom"
	"github.com/cyclopcam/windet/pkg/imgsrc"
)

type Outcome int

const (
	OutcomeFalsePositive Outcome = iota
	OutcomeTruePositive
	OutcomeIgnored // Matched a fuzzy annotation
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFalsePositive:
		return "false positive"
	case OutcomeTruePositive:
		return "true positive"
	case OutcomeIgnored:
		return "ignored"
	}
	return "unknown"
}

// ImageResult is the classification of the detections of one image
type ImageResult struct {
	Detections     []detect.Detection // Sorted by descending score
	Outcomes       []Outcome          // One per detection
	FalseNegatives []geom.Rect        // Positive annotations that no detection matched
}

// Count returns the number of detections with the given outcome
func (r *ImageResult) Count(o Outcome) int {
	n := 0
	for _, x := range r.Outcomes {
		if x == o {
			n++
		}
	}
	return n
}

// Scores returns the classified scores of the detections that were not ignored, in descending order
func (r *ImageResult) Scores() []ClassifiedScore {
	scores := make([]ClassifiedScore, 0, len(r.Detections))
	for i, d := range r.Detections {
		if r.Outcomes[i] == OutcomeIgnored {
			continue
		}
		scores = append(scores, ClassifiedScore{Score: d.Score, TruePositive: r.Outcomes[i] == OutcomeTruePositive})
	}
	return scores
}

// Classify matches the detections of one image against its annotations.
//
// Detections are visited from best to worst. Each one is compared with the best remaining
// positive and the best remaining fuzzy annotation. If neither overlaps by at least 'threshold',
// the detection is a false positive. If the positive overlaps by at least 'threshold', and at
// least as much as the fuzzy, the detection is a true positive. Otherwise it is ignored.
// Every match consumes the annotation it matched.
func Classify(detections []detect.Detection, annotations imgsrc.Annotations, threshold float64) ImageResult {
	dets := slices.Clone(detections)
	detect.SortByScore(dets)
	positives := annotations.Positives()
	fuzzies := annotations.Fuzzies()
	usedPositive := make([]bool, len(positives))
	usedFuzzy := make([]bool, len(fuzzies))

	result := ImageResult{
		Detections: dets,
		Outcomes:   make([]Outcome, len(dets)),
	}
	for i, d := range dets {
		bestPos, iPos := bestMatch(d.Box, positives, usedPositive)
		bestFuzzy, iFuzzy := bestMatch(d.Box, fuzzies, usedFuzzy)
		// A non-positive threshold must not match an annotation that isn't there
		matchPos := iPos != -1 && bestPos >= threshold
		matchFuzzy := iFuzzy != -1 && bestFuzzy >= threshold
		switch {
		case matchPos && (!matchFuzzy || bestPos >= bestFuzzy):
			result.Outcomes[i] = OutcomeTruePositive
			usedPositive[iPos] = true
		case matchFuzzy:
			result.Outcomes[i] = OutcomeIgnored
			usedFuzzy[iFuzzy] = true
		default:
			result.Outcomes[i] = OutcomeFalsePositive
		}
	}
	for i, p := range positives {
		if !usedPositive[i] {
			result.FalseNegatives = append(result.FalseNegatives, p)
		}
	}
	return result
}

// bestMatch returns the highest IoU of box with an unused rectangle, and that rectangle's index (-1 if none)
func bestMatch(box geom.Rect, rects []geom.Rect, used []bool) (float64, int) {
	best := 0.0
	bestIdx := -1
	for i, r := range rects {
		if used[i] {
			continue
		}
		if iou := box.IOU(r); bestIdx == -1 || iou > best {
			best = iou
			bestIdx = i
		}
	}
	return best, bestIdx
}
