package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/windet/pkg/features"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParse(t *testing.T) {
	c, err := Parse([]byte(`
features:
  cellSize: 4
  windowWidth: 6
  windowHeight: 12
  descriptor: intensity
  imageFilters: [grayscale, "blur:1.5"]
training:
  mirror: false
  bootstrappingRounds: 0
  c: 0.01
detection:
  minWindowWidth: 48
  maxWindowWidth: 96
`))
	require.NoError(t, err)
	require.Equal(t, features.Geometry{CellSize: 4, WindowWidth: 6, WindowHeight: 12}, c.Geometry())
	d, err := c.Descriptor()
	require.NoError(t, err)
	require.Equal(t, "intensity", d.Name())

	tp := c.TrainParams()
	require.False(t, tp.Mirror)
	require.Equal(t, 0, tp.BootstrappingRounds)
	require.Equal(t, 0.01, tp.C)
	require.Equal(t, []string{"grayscale", "blur:1.5"}, tp.ImageFilters)
	// Untouched keys keep their defaults
	require.Equal(t, Default().Training.RandomNegativesPerImage, tp.RandomNegativesPerImage)
	require.Equal(t, 0.5, c.Evaluation.OverlapThreshold)

	// The window is 24 pixels wide
	dp := c.DetectorParams(c.Geometry())
	require.InDelta(t, 0.5, dp.MaxScale, 1e-12)
	require.InDelta(t, 0.25, dp.MinScale, 1e-12)
	require.Equal(t, 4, dp.OctaveLayers)
}

func TestDetectorParamsUnlimited(t *testing.T) {
	dp := Default().DetectorParams(features.Geometry{CellSize: 8, WindowWidth: 8, WindowHeight: 16})
	require.Equal(t, 1.0, dp.MaxScale)
	require.Equal(t, minPyramidScale, dp.MinScale)
}

func TestInvalid(t *testing.T) {
	bad := []string{
		"features: {cellSize: 0}",
		"features: {descriptor: lbp}",
		"features: {imageFilters: [sharpen]}",
		"training: {overlapThreshold: 0}",
		"training: {c: -1}",
		"detection: {nmsOverlapThreshold: 1.5}",
		"detection: {minWindowWidth: 100, maxWindowWidth: 50}",
		"evaluation: {overlapThreshold: 2}",
	}
	for _, b := range bad {
		_, err := Parse([]byte(b))
		require.ErrorIs(t, err, ErrInvalidConfig, b)
	}
	_, err := Parse([]byte("features: [1, 2"))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(filename, []byte("detection:\n  scoreThreshold: 0.25\n"), 0644))
	c, err := Load(filename)
	require.NoError(t, err)
	require.Equal(t, 0.25, c.Detection.ScoreThreshold)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
