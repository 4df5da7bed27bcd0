package features

import (
	"errors"
	"fmt"
)

var ErrInvalidGeometry = errors.New("invalid feature geometry")

// Geometry is the size of a classifier window.
// WindowWidth and WindowHeight are measured in cells.
type Geometry struct {
	CellSize     int `json:"cellSize"`
	WindowWidth  int `json:"windowWidth"`
	WindowHeight int `json:"windowHeight"`
}

func (g Geometry) Validate() error {
	if g.CellSize < 1 || g.WindowWidth < 1 || g.WindowHeight < 1 {
		return fmt.Errorf("%w: cell size %v, window %v x %v cells", ErrInvalidGeometry, g.CellSize, g.WindowWidth, g.WindowHeight)
	}
	return nil
}

// PixelWidth is the width of the window, in pixels of the layer it is extracted from
func (g Geometry) PixelWidth() int {
	return g.WindowWidth * g.CellSize
}

func (g Geometry) PixelHeight() int {
	return g.WindowHeight * g.CellSize
}

// AspectRatio is width / height
func (g Geometry) AspectRatio() float64 {
	return float64(g.WindowWidth) / float64(g.WindowHeight)
}

// Dimensions is the length of a feature vector of one window
func (g Geometry) Dimensions(depth int) int {
	return g.WindowWidth * g.WindowHeight * depth
}

func (g Geometry) String() string {
	return fmt.Sprintf("%vx%v cells of %vpx", g.WindowWidth, g.WindowHeight, g.CellSize)
}
