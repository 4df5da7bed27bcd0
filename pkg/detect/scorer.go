package detect

import (
	"fmt"

	"github.com/cyclopcam/windet/pkg/features"
)

// ScoreMap holds the classifier score of every window position that fits inside a feature map.
// Position (x,y) is the window whose top-left cell is (x,y).
type ScoreMap struct {
	Width  int
	Height int
	Scores []float32
}

func (m *ScoreMap) At(x, y int) float32 {
	return m.Scores[y*m.Width+x]
}

// Max returns the highest score, or false if the map is empty
func (m *ScoreMap) Max() (float32, bool) {
	if len(m.Scores) == 0 {
		return 0, false
	}
	best := m.Scores[0]
	for _, s := range m.Scores[1:] {
		best = max(best, s)
	}
	return best, true
}

// Scorer correlates a linear classifier's weights over a feature map
type Scorer struct {
	geometry features.Geometry
	depth    int
	rowLen   int       // WindowWidth * depth
	weights  []float32 // One row of rowLen per window row
	bias     float32
}

// NewScorer creates a scorer for a linear classifier. The weight vector must have the
// same layout as the windows produced by features.Map.Window.
func NewScorer(weights []float64, bias float64, geometry features.Geometry, depth int) (*Scorer, error) {
	if err := geometry.Validate(); err != nil {
		return nil, err
	}
	if len(weights) != geometry.Dimensions(depth) {
		return nil, fmt.Errorf("Classifier has %v weights, but a %v window of depth %v needs %v", len(weights), geometry, depth, geometry.Dimensions(depth))
	}
	s := &Scorer{
		geometry: geometry,
		depth:    depth,
		rowLen:   geometry.WindowWidth * depth,
		weights:  make([]float32, len(weights)),
		bias:     float32(bias),
	}
	for i, w := range weights {
		s.weights[i] = float32(w)
	}
	return s, nil
}

func (s *Scorer) Geometry() features.Geometry {
	return s.geometry
}

// ScoreLayer computes w . window + bias at every position where the window fits inside m
func (s *Scorer) ScoreLayer(m *features.Map) *ScoreMap {
	out := &ScoreMap{
		Width:  max(0, m.Width-s.geometry.WindowWidth+1),
		Height: max(0, m.Height-s.geometry.WindowHeight+1),
	}
	out.Scores = make([]float32, out.Width*out.Height)
	if len(out.Scores) == 0 {
		return out
	}
	if m.Depth != s.depth {
		panic(fmt.Sprintf("Feature map depth %v does not match scorer depth %v", m.Depth, s.depth))
	}
	for i := range out.Scores {
		out.Scores[i] = s.bias
	}
	// Accumulate one kernel row at a time. For kernel row 'ky', the map row y+ky contributes
	// to output row y. Each output position is a dot product of two contiguous runs.
	for ky := 0; ky < s.geometry.WindowHeight; ky++ {
		kernel := s.weights[ky*s.rowLen : (ky+1)*s.rowLen]
		for y := 0; y < out.Height; y++ {
			row := m.Data[(y+ky)*m.Width*m.Depth:]
			dst := out.Scores[y*out.Width : (y+1)*out.Width]
			for x := range dst {
				src := row[x*m.Depth : x*m.Depth+s.rowLen]
				sum := float32(0)
				for i, w := range kernel {
					sum += w * src[i]
				}
				dst[x] += sum
			}
		}
	}
	return out
}
