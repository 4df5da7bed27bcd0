package train

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cyclopcam/windet/pkg/detect"
	"github.com/cyclopcam/windet/pkg/features"
	"github.com/cyclopcam/windet/pkg/pyramid"
	"github.com/cyclopcam/windet/pkg/svm"
)

// DetectorParams controls the detectors that are created from a trained model.
// The pyramid can have a different resolution to the one that the model was trained with.
type DetectorParams struct {
	MinScale            float64
	MaxScale            float64
	OctaveLayers        int
	Approximate         bool
	ScoreThreshold      float64
	NMSOverlapThreshold float64
}

// Model is a trained classifier, plus everything needed to compute its features
type Model struct {
	classifier   *svm.Classifier
	geometry     features.Geometry
	descriptor   features.Descriptor
	imageFilters []string
	widthScale   float64
	heightScale  float64
}

// The JSON representation of a model
type modelFile struct {
	Geometry     features.Geometry `json:"geometry"`
	Descriptor   string            `json:"descriptor"`
	Bins         int               `json:"bins,omitempty"`
	ImageFilters []string          `json:"imageFilters,omitempty"`
	WidthScale   float64           `json:"widthScale"`
	HeightScale  float64           `json:"heightScale"`
	Classifier   *svm.Classifier   `json:"classifier"`
}

func (m *Model) Classifier() *svm.Classifier {
	return m.classifier
}

// Weights returns the linear weight vector of the classifier
func (m *Model) Weights() []float64 {
	w, _ := m.classifier.LinearWeights()
	return w
}

func (m *Model) Bias() float64 {
	return m.classifier.Bias
}

func (m *Model) Geometry() features.Geometry {
	return m.geometry
}

func (m *Model) Descriptor() features.Descriptor {
	return m.descriptor
}

func (m *Model) ImageFilters() []string {
	return m.imageFilters
}

// NewExtractor creates a feature extractor that produces the same features that the model was trained on
func (m *Model) NewExtractor(minScale, maxScale float64, octaveLayers int, approximate bool) (*features.Extractor, error) {
	filter, err := pyramid.ParseFilters(m.imageFilters)
	if err != nil {
		return nil, err
	}
	return features.NewExtractor(m.geometry, m.descriptor, features.PyramidParams{
		MinScale:     minScale,
		MaxScale:     maxScale,
		OctaveLayers: octaveLayers,
		ImageFilter:  filter,
		Approximate:  approximate,
	})
}

// NewDetector creates a detector with suppression enabled.
// Every detector gets its own feature extractor.
func (m *Model) NewDetector(params DetectorParams) (*detect.Detector, error) {
	ex, err := m.NewExtractor(params.MinScale, params.MaxScale, params.OctaveLayers, params.Approximate)
	if err != nil {
		return nil, err
	}
	return detect.NewDetector(m.classifier, ex, detect.Options{
		ScoreThreshold:      params.ScoreThreshold,
		NMSOverlapThreshold: params.NMSOverlapThreshold,
		WidthScale:          1 / m.widthScale,
		HeightScale:         1 / m.heightScale,
	})
}

func (m *Model) SaveFile(filename string) error {
	mf := modelFile{
		Geometry:     m.geometry,
		Descriptor:   m.descriptor.Name(),
		ImageFilters: m.imageFilters,
		WidthScale:   m.widthScale,
		HeightScale:  m.heightScale,
		Classifier:   m.classifier,
	}
	if _, ok := m.descriptor.(*features.HOG); ok {
		mf.Bins = m.descriptor.Depth()
	}
	b, err := json.MarshalIndent(&mf, "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, b, 0644)
}

func LoadModelFile(filename string) (*Model, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	mf := modelFile{}
	if err := json.Unmarshal(b, &mf); err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	if mf.Classifier == nil {
		return nil, fmt.Errorf("Error loading %v: no classifier", filename)
	}
	if err := mf.Classifier.Validate(); err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	if err := mf.Geometry.Validate(); err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	desc, err := features.NewDescriptor(mf.Descriptor, mf.Bins)
	if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	if mf.WidthScale == 0 {
		mf.WidthScale = 1
	}
	if mf.HeightScale == 0 {
		mf.HeightScale = 1
	}
	return &Model{
		classifier:   mf.Classifier,
		geometry:     mf.Geometry,
		descriptor:   desc,
		imageFilters: mf.ImageFilters,
		widthScale:   mf.WidthScale,
		heightScale:  mf.HeightScale,
	}, nil
}
