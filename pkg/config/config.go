// Package config reads the YAML configuration of training, detection and evaluation.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/cyclopcam/windet/pkg/features"
	"github.com/cyclopcam/windet/pkg/pyramid"
	"github.com/cyclopcam/windet/pkg/train"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

// Smallest pyramid scale when the maximum window width is unlimited
const minPyramidScale = 1.0 / 64

type Config struct {
	Features   Features   `yaml:"features"`
	Training   Training   `yaml:"training"`
	Detection  Detection  `yaml:"detection"`
	Evaluation Evaluation `yaml:"evaluation"`
}

type Features struct {
	CellSize     int      `yaml:"cellSize"`     // Pixels per cell side
	WindowWidth  int      `yaml:"windowWidth"`  // Classifier window, in cells
	WindowHeight int      `yaml:"windowHeight"` // Classifier window, in cells
	OctaveLayers int      `yaml:"octaveLayers"` // Pyramid layers per octave, while training
	MinScale     float64  `yaml:"minScale"`     // Smallest pyramid scale while training
	WidthScale   float64  `yaml:"widthScale"`   // Context around positives: window width / annotation width
	HeightScale  float64  `yaml:"heightScale"`  // Context around positives: window height / annotation height
	Descriptor   string   `yaml:"descriptor"`   // "hog" or "intensity"
	Bins         int      `yaml:"bins"`         // Orientation bins of "hog"
	ImageFilters []string `yaml:"imageFilters"` // See pyramid.ParseFilter
}

type Training struct {
	Mirror                   bool    `yaml:"mirror"`
	MaxNegatives             int     `yaml:"maxNegatives"` // 0 = unbounded
	RandomNegativesPerImage  int     `yaml:"randomNegativesPerImage"`
	MaxHardNegativesPerImage int     `yaml:"maxHardNegativesPerImage"` // 0 = unlimited
	BootstrappingRounds      int     `yaml:"bootstrappingRounds"`
	NegativeScoreThreshold   float64 `yaml:"negativeScoreThreshold"`
	OverlapThreshold         float64 `yaml:"overlapThreshold"`
	C                        float64 `yaml:"c"`
	CompensateImbalance      bool    `yaml:"compensateImbalance"`
	Probabilistic            bool    `yaml:"probabilistic"`
	Seed                     int64   `yaml:"seed"`
	MaxSamplingAttempts      int     `yaml:"maxSamplingAttempts"`
	MinNegativeWidth         int     `yaml:"minNegativeWidth"`
}

type Detection struct {
	MinWindowWidth      int     `yaml:"minWindowWidth"` // Smallest detection window, in pixels. 0 = the classifier window.
	MaxWindowWidth      int     `yaml:"maxWindowWidth"` // Largest detection window, in pixels. 0 = unlimited.
	OctaveLayers        int     `yaml:"octaveLayers"`
	ApproximatePyramid  bool    `yaml:"approximatePyramid"`
	NMSOverlapThreshold float64 `yaml:"nmsOverlapThreshold"`
	ScoreThreshold      float64 `yaml:"scoreThreshold"`
}

type Evaluation struct {
	OverlapThreshold float64 `yaml:"overlapThreshold"`
}

func Default() *Config {
	tp := train.DefaultParams()
	return &Config{
		Features: Features{
			CellSize:     8,
			WindowWidth:  8,
			WindowHeight: 16,
			OctaveLayers: 4,
			MinScale:     0.05,
			WidthScale:   1,
			HeightScale:  1,
			Descriptor:   "hog",
			Bins:         features.DefaultHOGBins,
		},
		Training: Training{
			Mirror:                   tp.Mirror,
			MaxNegatives:             tp.MaxNegatives,
			RandomNegativesPerImage:  tp.RandomNegativesPerImage,
			MaxHardNegativesPerImage: tp.MaxHardNegativesPerImage,
			BootstrappingRounds:      tp.BootstrappingRounds,
			NegativeScoreThreshold:   tp.NegativeScoreThreshold,
			OverlapThreshold:         tp.OverlapThreshold,
			C:                        tp.C,
			Seed:                     1,
			MaxSamplingAttempts:      tp.MaxSamplingAttempts,
		},
		Detection: Detection{
			OctaveLayers:        4,
			NMSOverlapThreshold: 0.3,
		},
		Evaluation: Evaluation{
			OverlapThreshold: 0.5,
		},
	}
}

// Parse reads YAML on top of the defaults
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func Load(filename string) (*Config, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	c, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	return c, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %v", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func (c *Config) Validate() error {
	f := &c.Features
	if err := c.Geometry().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if f.OctaveLayers < 1 {
		return invalid("features.octaveLayers must be at least 1")
	}
	if !(f.MinScale > 0 && f.MinScale <= 1) {
		return invalid("features.minScale must be in (0, 1]")
	}
	if f.WidthScale <= 0 || f.HeightScale <= 0 {
		return invalid("features.widthScale and features.heightScale must be positive")
	}
	if _, err := c.Descriptor(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := pyramid.ParseFilters(f.ImageFilters); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	t := &c.Training
	if t.MaxNegatives < 0 || t.RandomNegativesPerImage < 0 || t.MaxHardNegativesPerImage < 0 || t.BootstrappingRounds < 0 {
		return invalid("training counts may not be negative")
	}
	if !(t.OverlapThreshold > 0 && t.OverlapThreshold <= 1) {
		return invalid("training.overlapThreshold must be in (0, 1]")
	}
	if !(t.C > 0) {
		return invalid("training.c must be positive")
	}
	if t.MaxSamplingAttempts < 1 {
		return invalid("training.maxSamplingAttempts must be at least 1")
	}

	d := &c.Detection
	if d.OctaveLayers < 1 {
		return invalid("detection.octaveLayers must be at least 1")
	}
	if d.MinWindowWidth < 0 || d.MaxWindowWidth < 0 || (d.MaxWindowWidth != 0 && d.MaxWindowWidth < d.MinWindowWidth) {
		return invalid("detection window widths must satisfy 0 <= minWindowWidth <= maxWindowWidth")
	}
	if !(d.NMSOverlapThreshold > 0 && d.NMSOverlapThreshold <= 1) {
		return invalid("detection.nmsOverlapThreshold must be in (0, 1]")
	}

	if !(c.Evaluation.OverlapThreshold > 0 && c.Evaluation.OverlapThreshold <= 1) {
		return invalid("evaluation.overlapThreshold must be in (0, 1]")
	}
	return nil
}

func (c *Config) Geometry() features.Geometry {
	return features.Geometry{
		CellSize:     c.Features.CellSize,
		WindowWidth:  c.Features.WindowWidth,
		WindowHeight: c.Features.WindowHeight,
	}
}

func (c *Config) Descriptor() (features.Descriptor, error) {
	return features.NewDescriptor(c.Features.Descriptor, c.Features.Bins)
}

// TrainPyramidParams is the pyramid that training windows are extracted from
func (c *Config) TrainPyramidParams() features.PyramidParams {
	return features.PyramidParams{
		MinScale:     c.Features.MinScale,
		MaxScale:     1,
		OctaveLayers: c.Features.OctaveLayers,
	}
}

func (c *Config) TrainParams() train.Params {
	t := &c.Training
	return train.Params{
		Mirror:                   t.Mirror,
		MaxNegatives:             t.MaxNegatives,
		RandomNegativesPerImage:  t.RandomNegativesPerImage,
		MaxHardNegativesPerImage: t.MaxHardNegativesPerImage,
		BootstrappingRounds:      t.BootstrappingRounds,
		NegativeScoreThreshold:   t.NegativeScoreThreshold,
		OverlapThreshold:         t.OverlapThreshold,
		MaxSamplingAttempts:      t.MaxSamplingAttempts,
		MinNegativeWidth:         t.MinNegativeWidth,
		WidthScale:               c.Features.WidthScale,
		HeightScale:              c.Features.HeightScale,
		ImageFilters:             c.Features.ImageFilters,
		C:                        t.C,
		CompensateImbalance:      t.CompensateImbalance,
		Probabilistic:            t.Probabilistic,
	}
}

// DetectorParams converts the detection window widths into pyramid scales.
// The geometry is that of the trained model, which needn't match the features section.
func (c *Config) DetectorParams(geometry features.Geometry) train.DetectorParams {
	d := &c.Detection
	pixelWidth := float64(geometry.PixelWidth())
	maxScale := 1.0
	if d.MinWindowWidth > 0 {
		maxScale = min(1, pixelWidth/float64(d.MinWindowWidth))
	}
	minScale := minPyramidScale
	if d.MaxWindowWidth > 0 {
		minScale = min(maxScale, pixelWidth/float64(d.MaxWindowWidth))
	}
	return train.DetectorParams{
		MinScale:            minScale,
		MaxScale:            maxScale,
		OctaveLayers:        d.OctaveLayers,
		Approximate:         d.ApproximatePyramid,
		ScoreThreshold:      d.ScoreThreshold,
		NMSOverlapThreshold: d.NMSOverlapThreshold,
	}
}
