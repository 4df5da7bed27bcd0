// Package train bootstraps a linear window classifier from annotated images,
// by alternating between fitting and mining hard negatives.
package train

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/windet/pkg/detect"
	"github.com/cyclopcam/windet/pkg/features"
	"github.com/cyclopcam/windet/pkg/geom"
	"github.com/cyclopcam/windet/pkg/imgsrc"
	"github.com/cyclopcam/windet/pkg/pyramid"
	"github.com/cyclopcam/windet/pkg/svm"
)

var ErrNotTrained = errors.New("classifier has not been trained")

type State int

const (
	StateEmpty State = iota
	StateInitialExamplesCollected
	StateFit
	StateMiningRound
	StateRefit
	StateUsable
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateInitialExamplesCollected:
		return "initial examples collected"
	case StateFit:
		return "fit"
	case StateMiningRound:
		return "mining"
	case StateRefit:
		return "refit"
	case StateUsable:
		return "usable"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Params struct {
	Mirror                   bool     // Also train on the horizontal mirror of every image
	MaxNegatives             int      // Capacity of the negative store. Zero is unbounded.
	RandomNegativesPerImage  int      // Number of random negatives drawn from each image before the first fit
	MaxHardNegativesPerImage int      // Cap on hard negatives mined from one image per round. Zero is unlimited.
	BootstrappingRounds      int      // Number of mining + refit rounds after the first fit
	NegativeScoreThreshold   float64  // Windows scoring above this while mining are hard negatives
	OverlapThreshold         float64  // Negatives may not overlap a positive or fuzzy annotation by more than this IoU
	MaxSamplingAttempts      int      // Attempts at drawing one random negative before giving up on the image
	MinNegativeWidth         int      // Smallest random negative, in pixels
	WidthScale               float64  // Positive windows are this much wider than their annotation, to include context
	HeightScale              float64  // Positive windows are this much taller than their annotation
	ImageFilters             []string // Filters applied to every image before computing features (see pyramid.ParseFilter)

	// Classifier
	C                   float64
	CompensateImbalance bool
	Probabilistic       bool
}

func DefaultParams() Params {
	return Params{
		Mirror:                   true,
		MaxNegatives:             0,
		RandomNegativesPerImage:  20,
		MaxHardNegativesPerImage: 50,
		BootstrappingRounds:      2,
		NegativeScoreThreshold:   -1,
		OverlapThreshold:         0.3,
		MaxSamplingAttempts:      100,
		WidthScale:               1,
		HeightScale:              1,
		C:                        1,
	}
}

// Trainer is a bootstrapping trainer.
// The trainer and its models share nothing mutable, so a trained Model remains valid
// after the trainer is reused.
type Trainer struct {
	log           logs.Log
	geometry      features.Geometry
	descriptor    features.Descriptor
	pyramidParams features.PyramidParams
	params        Params
	extractor     *features.Extractor

	state      State
	positives  [][]float64
	negatives  *NegativeStore
	classifier *svm.Classifier
	fitSeed    int64
}

// NewTrainer creates a trainer. pyramidParams defines the scales at which windows are extracted.
// Its ImageFilter is ignored, because the filters come from params.ImageFilters.
func NewTrainer(log logs.Log, geometry features.Geometry, descriptor features.Descriptor, pyramidParams features.PyramidParams, params Params) (*Trainer, error) {
	filter, err := pyramid.ParseFilters(params.ImageFilters)
	if err != nil {
		return nil, err
	}
	if params.WidthScale == 0 {
		params.WidthScale = 1
	}
	if params.HeightScale == 0 {
		params.HeightScale = 1
	}
	if params.MaxSamplingAttempts < 1 {
		return nil, fmt.Errorf("MaxSamplingAttempts must be at least 1")
	}
	if !(params.OverlapThreshold > 0 && params.OverlapThreshold <= 1) {
		return nil, fmt.Errorf("%w: %v", detect.ErrInvalidOverlapThreshold, params.OverlapThreshold)
	}
	pyramidParams.ImageFilter = filter
	extractor, err := features.NewExtractor(geometry, descriptor, pyramidParams)
	if err != nil {
		return nil, err
	}
	return &Trainer{
		log:           log,
		geometry:      geometry,
		descriptor:    descriptor,
		pyramidParams: pyramidParams,
		params:        params,
		extractor:     extractor,
	}, nil
}

func (t *Trainer) State() State {
	return t.state
}

// Positives returns the positive examples of the most recent training run
func (t *Trainer) Positives() [][]float64 {
	return t.positives
}

// Negatives returns the negative examples of the most recent training run
func (t *Trainer) Negatives() [][]float64 {
	if t.negatives == nil {
		return nil
	}
	return t.negatives.Examples()
}

// FitSeed is the seed of the random number generator that shuffles the examples inside every fit
func (t *Trainer) FitSeed() int64 {
	return t.fitSeed
}

// Classifier returns the trained classifier, or ErrNotTrained
func (t *Trainer) Classifier() (*svm.Classifier, error) {
	if t.state != StateUsable {
		return nil, ErrNotTrained
	}
	return t.classifier, nil
}

// Model returns the trained model, or ErrNotTrained
func (t *Trainer) Model() (*Model, error) {
	if t.state != StateUsable {
		return nil, ErrNotTrained
	}
	return &Model{
		classifier:   t.classifier,
		geometry:     t.geometry,
		descriptor:   t.descriptor,
		imageFilters: slices.Clone(t.params.ImageFilters),
		widthScale:   t.params.WidthScale,
		heightScale:  t.params.HeightScale,
	}, nil
}

// NewDetector builds a detector from the trained classifier, or fails with ErrNotTrained
func (t *Trainer) NewDetector(params DetectorParams) (*detect.Detector, error) {
	m, err := t.Model()
	if err != nil {
		return nil, err
	}
	return m.NewDetector(params)
}

// Train runs the whole bootstrapping procedure on the images of 'source'.
// All randomness is drawn from rng.
func (t *Trainer) Train(source imgsrc.Source, rng *rand.Rand) (*Model, error) {
	t.state = StateEmpty
	t.positives = nil
	t.negatives = NewNegativeStore(t.params.MaxNegatives)
	t.classifier = nil
	t.fitSeed = rng.Int63()

	if err := t.collectInitial(source, rng); err != nil {
		return nil, t.fail(err)
	}
	t.state = StateInitialExamplesCollected
	t.log.Infof("Collected %v positives and %v random negatives", len(t.positives), t.negatives.Len())

	cls, err := t.fit()
	if err != nil {
		return nil, t.fail(err)
	}
	t.classifier = cls
	t.state = StateFit

	for round := 0; round < t.params.BootstrappingRounds; round++ {
		t.state = StateMiningRound
		mined, err := t.mine(source, cls, rng)
		if err != nil {
			return nil, t.fail(err)
		}
		t.log.Infof("Round %v: mined %v hard negatives, %v negatives in store", round+1, mined, t.negatives.Len())
		t.state = StateRefit
		cls, err = t.fit()
		if err != nil {
			return nil, t.fail(err)
		}
		t.classifier = cls
	}

	t.state = StateUsable
	return t.Model()
}

func (t *Trainer) fail(err error) error {
	t.state = StateFailed
	t.classifier = nil
	return err
}

func (t *Trainer) fit() (*svm.Classifier, error) {
	if len(t.positives) == 0 {
		return nil, fmt.Errorf("No positive examples could be extracted")
	}
	if t.negatives.Len() == 0 {
		return nil, fmt.Errorf("No negative examples could be extracted")
	}
	trainer := svm.NewTrainer(t.params.C)
	trainer.CompensateImbalance = t.params.CompensateImbalance
	trainer.Probabilistic = t.params.Probabilistic
	cls, err := trainer.Train(t.positives, t.negatives.Examples(), rand.New(rand.NewSource(t.fitSeed)))
	if err != nil {
		return nil, fmt.Errorf("Training failed with %v positives and %v negatives: %w", len(t.positives), t.negatives.Len(), err)
	}
	return cls, nil
}

// Calls fn on every image of the source, and on its mirror image if configured
func (t *Trainer) forEachImage(source imgsrc.Source, fn func(name string, img *cimg.Image, anns imgsrc.Annotations)) error {
	source.Reset()
	for source.Next() {
		img := source.Image()
		anns := source.Annotations()
		fn(source.Name(), img, anns)
		if t.params.Mirror {
			fn(source.Name()+" (mirrored)", imgsrc.Mirror(img), anns.Mirror(img.Width))
		}
	}
	return source.Err()
}

func (t *Trainer) collectInitial(source imgsrc.Source, rng *rand.Rand) error {
	return t.forEachImage(source, func(name string, img *cimg.Image, anns imgsrc.Annotations) {
		t.extractor.Update(img)
		skipped := 0
		for _, box := range anns.Positives() {
			window := box.ScaleAroundCenter(t.params.WidthScale, t.params.HeightScale)
			cx, cy := window.CenterF()
			f, ok := t.extractor.Extract(cx, cy, float64(window.Width), float64(window.Height))
			if !ok {
				skipped++
				continue
			}
			t.positives = append(t.positives, f)
		}
		if skipped != 0 {
			t.log.Debugf("%v: %v positives could not be extracted", name, skipped)
		}
		negatives := [][]float64{}
		for i := 0; i < t.params.RandomNegativesPerImage; i++ {
			f, ok := t.sampleNegative(img.Width, img.Height, anns.NonNegatives(), rng)
			if !ok {
				t.log.Warnf("%v: gave up on random negatives after %v attempts (%v found)", name, t.params.MaxSamplingAttempts, len(negatives))
				break
			}
			negatives = append(negatives, f)
		}
		t.negatives.Add(negatives, nil, rng)
	})
}

// sampleNegative draws random windows until it finds one that doesn't overlap any of the
// non-negative boxes, and that can be extracted. The extractor must already hold the image.
func (t *Trainer) sampleNegative(imgWidth, imgHeight int, nonNegatives []geom.Rect, rng *rand.Rand) ([]float64, bool) {
	aspect := t.geometry.AspectRatio() * t.params.HeightScale / t.params.WidthScale
	minWidth := max(t.params.MinNegativeWidth, t.geometry.PixelWidth())
	maxWidth := min(imgWidth, int(float64(imgHeight)*aspect))
	if maxWidth < minWidth {
		return nil, false
	}
	for attempt := 0; attempt < t.params.MaxSamplingAttempts; attempt++ {
		width := minWidth + rng.Intn(maxWidth-minWidth+1)
		height := min(imgHeight, int(float64(width)/aspect+0.5))
		window := geom.NewRect(rng.Intn(imgWidth-width+1), rng.Intn(imgHeight-height+1), width, height)
		object := window.ScaleAroundCenter(1/t.params.WidthScale, 1/t.params.HeightScale)
		if overlapsAny(object, nonNegatives, t.params.OverlapThreshold) {
			continue
		}
		cx, cy := window.CenterF()
		if f, ok := t.extractor.Extract(cx, cy, float64(width), float64(height)); ok {
			return f, true
		}
	}
	return nil, false
}

func overlapsAny(box geom.Rect, others []geom.Rect, threshold float64) bool {
	for _, o := range others {
		if box.IOU(o) > threshold {
			return true
		}
	}
	return false
}

// mine scans the training images with a relaxed threshold and no suppression, and adds every
// window that doesn't overlap an annotation to the negative store. Returns the number of windows added.
func (t *Trainer) mine(source imgsrc.Source, cls *svm.Classifier, rng *rand.Rand) (int, error) {
	detector, err := detect.NewDetector(cls, t.extractor, detect.Options{
		ScoreThreshold:      t.params.NegativeScoreThreshold,
		NMSOverlapThreshold: detect.NoSuppression,
		WidthScale:          1 / t.params.WidthScale,
		HeightScale:         1 / t.params.HeightScale,
	})
	if err != nil {
		return 0, err
	}
	total := 0
	err = t.forEachImage(source, func(name string, img *cimg.Image, anns imgsrc.Annotations) {
		candidates := detector.Candidates(img, t.params.NegativeScoreThreshold)
		// Hardest first, so that the per-image cap keeps the worst mistakes
		slices.SortStableFunc(candidates, func(a, b detect.Candidate) int {
			if a.Score > b.Score {
				return -1
			} else if a.Score < b.Score {
				return 1
			}
			return 0
		})
		nonNegatives := anns.NonNegatives()
		hard := [][]float64{}
		for _, c := range candidates {
			if t.params.MaxHardNegativesPerImage > 0 && len(hard) >= t.params.MaxHardNegativesPerImage {
				break
			}
			if overlapsAny(c.Box, nonNegatives, t.params.OverlapThreshold) {
				continue
			}
			if f, ok := t.extractor.WindowAt(c.Layer, c.CellX, c.CellY); ok {
				hard = append(hard, f)
			}
		}
		total += len(hard)
		t.negatives.Add(hard, cls, rng)
	})
	return total, err
}
