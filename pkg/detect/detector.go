package detect

import (
	"errors"
	"fmt"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/windet/pkg/features"
	"github.com/cyclopcam/windet/pkg/geom"
	"github.com/cyclopcam/windet/pkg/imgsrc"
	"github.com/cyclopcam/windet/pkg/svm"
)

var ErrKernelNotLinear = errors.New("detector requires a linear classifier")

type Options struct {
	ScoreThreshold      float64 // Windows must score above this to be detected
	NMSOverlapThreshold float64 // In (0, 1]. Use NoSuppression to keep every window.
	WidthScale          float64 // Multiplied onto the width of a window to produce the detected box. Zero means 1.
	HeightScale         float64 // Multiplied onto the height of a window to produce the detected box. Zero means 1.
}

// Candidate is a window that scored above the threshold, before suppression
type Candidate struct {
	Detection
	Layer int // Index of the pyramid layer
	CellX int // Top-left cell of the window, inside the layer
	CellY int
}

// LayerScores is the score map of one pyramid layer
type LayerScores struct {
	Layer       int
	ScaleFactor float64
	Map         *ScoreMap
}

// Detector finds objects with a linear classifier.
// The extractor is shared with whoever created the detector, so a detector is not safe for concurrent use.
type Detector struct {
	classifier *svm.Classifier
	extractor  *features.Extractor
	scorer     *Scorer
	suppressor *Suppressor
	options    Options
	scores     []LayerScores
}

func NewDetector(classifier *svm.Classifier, extractor *features.Extractor, options Options) (*Detector, error) {
	if !classifier.IsLinear() {
		return nil, fmt.Errorf("%w: kernel is %v", ErrKernelNotLinear, classifier.Kernel.Type)
	}
	weights, err := classifier.LinearWeights()
	if err != nil {
		return nil, err
	}
	scorer, err := NewScorer(weights, classifier.Bias, extractor.Geometry(), extractor.Descriptor().Depth())
	if err != nil {
		return nil, err
	}
	suppressor, err := NewSuppressor(options.NMSOverlapThreshold)
	if err != nil {
		return nil, err
	}
	if options.WidthScale == 0 {
		options.WidthScale = 1
	}
	if options.HeightScale == 0 {
		options.HeightScale = 1
	}
	return &Detector{
		classifier: classifier,
		extractor:  extractor,
		scorer:     scorer,
		suppressor: suppressor,
		options:    options,
	}, nil
}

// WithThreshold returns a detector that shares everything with d, except for the score threshold
func (d *Detector) WithThreshold(threshold float64) *Detector {
	c := *d
	c.options.ScoreThreshold = threshold
	c.scores = nil
	return &c
}

func (d *Detector) Options() Options {
	return d.options
}

func (d *Detector) Classifier() *svm.Classifier {
	return d.classifier
}

func (d *Detector) Extractor() *features.Extractor {
	return d.extractor
}

// Candidates returns every window in every layer that scores above threshold.
// No suppression is performed, and the order is by layer and then by position.
func (d *Detector) Candidates(img *cimg.Image, threshold float64) []Candidate {
	return d.CandidatesVersioned(imgsrc.NewVersionedImage(img), threshold)
}

// CandidatesVersioned is Candidates, but the feature pyramid is only recomputed if v has changed
func (d *Detector) CandidatesVersioned(v imgsrc.VersionedImage, threshold float64) []Candidate {
	d.extractor.UpdateVersioned(v)
	d.scores = d.scores[:0]
	geometry := d.extractor.Geometry()
	candidates := []Candidate{}
	for _, layer := range d.extractor.Layers() {
		scores := d.scorer.ScoreLayer(layer.Data)
		d.scores = append(d.scores, LayerScores{Layer: layer.Index, ScaleFactor: layer.ScaleFactor, Map: scores})
		for y := 0; y < scores.Height; y++ {
			for x := 0; x < scores.Width; x++ {
				s := float64(scores.At(x, y))
				if s <= threshold {
					continue
				}
				cells := geom.NewRect(x, y, geometry.WindowWidth, geometry.WindowHeight)
				box := d.extractor.ToPixels(layer, cells).ScaleAroundCenter(d.options.WidthScale, d.options.HeightScale)
				candidates = append(candidates, Candidate{
					Detection: Detection{Box: box, Score: s},
					Layer:     layer.Index,
					CellX:     x,
					CellY:     y,
				})
			}
		}
	}
	return candidates
}

// DetectScored returns the detections in img, sorted by descending score
func (d *Detector) DetectScored(img *cimg.Image) []Detection {
	return d.DetectScoredVersioned(imgsrc.NewVersionedImage(img))
}

func (d *Detector) DetectScoredVersioned(v imgsrc.VersionedImage) []Detection {
	candidates := d.CandidatesVersioned(v, d.options.ScoreThreshold)
	dets := make([]Detection, len(candidates))
	for i := range candidates {
		dets[i] = candidates[i].Detection
	}
	return d.suppressor.Suppress(dets)
}

// Detect returns the boxes of the detections in img, best first
func (d *Detector) Detect(img *cimg.Image) []geom.Rect {
	return Boxes(d.DetectScored(img))
}

// ScoreMaps returns the score maps of the most recent scan
func (d *Detector) ScoreMaps() []LayerScores {
	return d.scores
}
