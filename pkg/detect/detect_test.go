package detect

import (
	"math/rand"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/windet/pkg/features"
	"github.com/cyclopcam/windet/pkg/geom"
	"github.com/cyclopcam/windet/pkg/svm"
	"github.com/stretchr/testify/require"
)

func det(x, y, w, h int, score float64) Detection {
	return Detection{Box: geom.NewRect(x, y, w, h), Score: score}
}

func TestSortByScore(t *testing.T) {
	d := []Detection{det(0, 0, 1, 1, 1), det(1, 0, 1, 1, 3), det(2, 0, 1, 1, 1), det(3, 0, 1, 1, 2)}
	SortByScore(d)
	require.Equal(t, []float64{3, 2, 1, 1}, []float64{d[0].Score, d[1].Score, d[2].Score, d[3].Score})
	require.Equal(t, 0, d[2].Box.X)
	require.Equal(t, 2, d[3].Box.X)
}

func TestSuppress(t *testing.T) {
	_, err := NewSuppressor(0)
	require.ErrorIs(t, err, ErrInvalidOverlapThreshold)
	_, err = NewSuppressor(1.01)
	require.ErrorIs(t, err, ErrInvalidOverlapThreshold)

	s, err := NewSuppressor(0.3)
	require.NoError(t, err)
	require.Equal(t, 0, len(s.Suppress(nil)))

	input := []Detection{
		det(0, 0, 10, 10, 1),
		det(1, 1, 10, 10, 2), // Suppresses the first one
		det(100, 100, 10, 10, 0.5),
		det(105, 100, 10, 10, 0.7), // IoU with the previous one is 1/3
		det(50, 50, 10, 10, 3),
	}
	out := s.Suppress(input)
	require.Equal(t, []Detection{
		det(50, 50, 10, 10, 3),
		det(1, 1, 10, 10, 2),
		det(105, 100, 10, 10, 0.7),
	}, out)

	// Idempotent
	require.Equal(t, out, s.Suppress(out))

	all, err := NewSuppressor(NoSuppression)
	require.NoError(t, err)
	kept := all.Suppress(input)
	require.Equal(t, len(input), len(kept))
	require.Equal(t, 3.0, kept[0].Score)
	require.Equal(t, 0.5, kept[4].Score)
}

func TestSuppressRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	input := []Detection{}
	for i := 0; i < 300; i++ {
		input = append(input, det(rng.Intn(200), rng.Intn(200), 10+rng.Intn(30), 10+rng.Intn(30), rng.Float64()))
	}
	s, err := NewSuppressor(0.4)
	require.NoError(t, err)
	out := s.Suppress(input)
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			require.LessOrEqual(t, out[i].Box.IOU(out[j].Box), 0.4)
		}
		if i > 0 {
			require.GreaterOrEqual(t, out[i-1].Score, out[i].Score)
		}
	}
	require.Equal(t, out, s.Suppress(out))
}

func TestScorerMatchesClassifier(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	g := features.Geometry{CellSize: 4, WindowWidth: 3, WindowHeight: 2}
	depth := 5
	m := features.NewMap(7, 6, depth)
	for i := range m.Data {
		m.Data[i] = rng.Float32()
	}
	weights := make([]float64, g.Dimensions(depth))
	for i := range weights {
		weights[i] = rng.Float64()*2 - 1
	}
	cls := svm.NewLinear(weights, -0.25)
	scorer, err := NewScorer(weights, cls.Bias, g, depth)
	require.NoError(t, err)

	scores := scorer.ScoreLayer(m)
	require.Equal(t, 5, scores.Width)
	require.Equal(t, 5, scores.Height)
	for y := 0; y < scores.Height; y++ {
		for x := 0; x < scores.Width; x++ {
			expect := cls.Score(m.Window(x, y, g.WindowWidth, g.WindowHeight))
			require.InDelta(t, expect, scores.At(x, y), 1e-4)
		}
	}

	// Window doesn't fit
	tiny := scorer.ScoreLayer(features.NewMap(2, 6, depth))
	require.Equal(t, 0, len(tiny.Scores))
	_, ok := tiny.Max()
	require.False(t, ok)

	_, err = NewScorer(weights[1:], 0, g, depth)
	require.Error(t, err)
}

// A black image with a white square that fills exactly one 2x2 cell window
func squareImage() *cimg.Image {
	img := cimg.NewImage(32, 32, cimg.PixelFormatRGB)
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			v := byte(0)
			if x >= 8 && x < 16 && y >= 8 && y < 16 {
				v = 255
			}
			p := y*img.Stride + x*3
			img.Pixels[p], img.Pixels[p+1], img.Pixels[p+2] = v, v, v
		}
	}
	return img
}

func newSquareDetector(t *testing.T, options Options) *Detector {
	g := features.Geometry{CellSize: 4, WindowWidth: 2, WindowHeight: 2}
	ex, err := features.NewExtractor(g, &features.Intensity{}, features.PyramidParams{MinScale: 1, MaxScale: 1, OctaveLayers: 1})
	require.NoError(t, err)
	cls := svm.NewLinear([]float64{1, 1, 1, 1}, -3.5)
	d, err := NewDetector(cls, ex, options)
	require.NoError(t, err)
	return d
}

func TestDetector(t *testing.T) {
	d := newSquareDetector(t, Options{NMSOverlapThreshold: 0.3})
	dets := d.DetectScored(squareImage())
	require.Equal(t, 1, len(dets))
	require.Equal(t, geom.NewRect(8, 8, 8, 8), dets[0].Box)
	require.InDelta(t, 0.5, dets[0].Score, 1e-5)
	require.Equal(t, []geom.Rect{geom.NewRect(8, 8, 8, 8)}, d.Detect(squareImage()))

	maps := d.ScoreMaps()
	require.Equal(t, 1, len(maps))
	require.Equal(t, 7, maps[0].Map.Width)
	best, ok := maps[0].Map.Max()
	require.True(t, ok)
	require.InDelta(t, 0.5, best, 1e-5)

	// Windows that contain half of the square score -1.5
	relaxed := d.WithThreshold(-2)
	candidates := relaxed.Candidates(squareImage(), -2)
	require.Greater(t, len(candidates), 1)
	for _, c := range candidates {
		require.Equal(t, 0, c.Layer)
		require.Equal(t, geom.NewRect(c.CellX*4, c.CellY*4, 8, 8), c.Box)
	}
	require.Equal(t, 0.0, d.Options().ScoreThreshold)
	require.Equal(t, -2.0, relaxed.Options().ScoreThreshold)
	require.Same(t, d.Classifier(), relaxed.Classifier())
}

func TestDetectorBoxScale(t *testing.T) {
	d := newSquareDetector(t, Options{NMSOverlapThreshold: 0.3, WidthScale: 2})
	require.Equal(t, []geom.Rect{geom.NewRect(4, 8, 16, 8)}, d.Detect(squareImage()))
}

func TestDetectorErrors(t *testing.T) {
	g := features.Geometry{CellSize: 4, WindowWidth: 2, WindowHeight: 2}
	ex, err := features.NewExtractor(g, &features.Intensity{}, features.PyramidParams{MinScale: 1, MaxScale: 1, OctaveLayers: 1})
	require.NoError(t, err)

	rbf := &svm.Classifier{
		Kernel:         svm.Kernel{Type: svm.KernelRBF, Gamma: 1},
		SupportVectors: [][]float64{{1, 1, 1, 1}},
		Coefficients:   []float64{1},
	}
	_, err = NewDetector(rbf, ex, Options{NMSOverlapThreshold: 0.3})
	require.ErrorIs(t, err, ErrKernelNotLinear)

	_, err = NewDetector(svm.NewLinear([]float64{1, 1, 1, 1}, 0), ex, Options{NMSOverlapThreshold: 0})
	require.ErrorIs(t, err, ErrInvalidOverlapThreshold)

	_, err = NewDetector(svm.NewLinear([]float64{1, 1, 1}, 0), ex, Options{NMSOverlapThreshold: 0.3})
	require.Error(t, err)
}
