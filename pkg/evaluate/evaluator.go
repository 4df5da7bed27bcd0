package evaluate

import (
	"fmt"
	"time"

	"github.com/cyclopcam/windet/pkg/detect"
	"github.com/cyclopcam/windet/pkg/imgsrc"
	"github.com/cyclopcam/windet/pkg/perfstats"
)

const DefaultOverlapThreshold = 0.5

// Evaluator accumulates classified detections over many images
type Evaluator struct {
	OverlapThreshold float64 // Minimum IoU for a detection to match an annotation
	Threshold        float64 // Score threshold of the detector that was evaluated. Informational only.

	scores    []ClassifiedScore // Sorted by descending score
	images    int
	positives int
	time      perfstats.TimeAccumulator
}

func NewEvaluator(overlapThreshold float64) (*Evaluator, error) {
	if !(overlapThreshold > 0 && overlapThreshold <= 1) {
		return nil, fmt.Errorf("%w: %v", detect.ErrInvalidOverlapThreshold, overlapThreshold)
	}
	return &Evaluator{OverlapThreshold: overlapThreshold}, nil
}

// AddImage classifies the detections of one image, and adds them to the totals.
// elapsed is the time that the detector took on this image.
func (e *Evaluator) AddImage(detections []detect.Detection, annotations imgsrc.Annotations, elapsed time.Duration) ImageResult {
	result := Classify(detections, annotations, e.OverlapThreshold)
	e.scores = MergeSorted(e.scores, result.Scores())
	e.images++
	e.positives += len(annotations.Positives())
	e.time.AddSample(elapsed)
	return result
}

// Merge adds the results of another evaluator, for example from another cross validation fold
func (e *Evaluator) Merge(other *Evaluator) {
	e.scores = MergeSorted(e.scores, other.scores)
	e.images += other.images
	e.positives += other.positives
	e.time.Merge(other.time)
}

// Scores returns the classified scores of all detections, sorted by descending score
func (e *Evaluator) Scores() []ClassifiedScore {
	return e.scores
}

func (e *Evaluator) Images() int {
	return e.images
}

// Positives is the number of positive annotations
func (e *Evaluator) Positives() int {
	return e.positives
}

func (e *Evaluator) TotalTime() time.Duration {
	return e.time.Total
}

// AverageTime is the average detection time per image, at millisecond resolution
func (e *Evaluator) AverageTime() time.Duration {
	if e.images == 0 {
		return 0
	}
	return e.TotalTime().Truncate(time.Millisecond) / time.Duration(e.images)
}

// Counts holds the running totals at one point of the score list
type Counts struct {
	TruePositives  int
	FalsePositives int
	Positives      int
	Images         int
}

func (c Counts) MissRate() float64 {
	if c.Positives == 0 {
		return 0
	}
	return float64(c.Positives-c.TruePositives) / float64(c.Positives)
}

func (c Counts) FPPI() float64 {
	if c.Images == 0 {
		return 0
	}
	return float64(c.FalsePositives) / float64(c.Images)
}

func (c Counts) Recall() float64 {
	if c.Positives == 0 {
		return 0
	}
	return float64(c.TruePositives) / float64(c.Positives)
}

func (c Counts) Precision() float64 {
	if c.TruePositives+c.FalsePositives == 0 {
		return 1
	}
	return float64(c.TruePositives) / float64(c.TruePositives+c.FalsePositives)
}

func (e *Evaluator) initialCounts() Counts {
	return Counts{Positives: e.positives, Images: e.images}
}

func (c *Counts) add(s ClassifiedScore) {
	if s.TruePositive {
		c.TruePositives++
	} else {
		c.FalsePositives++
	}
}
