// Package geom holds the axis-aligned rectangle type shared by the detector,
// the trainer and the evaluator.
package geom

import (
	"fmt"
	"math"
)

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rect is an axis-aligned rectangle in pixel coordinates.
// (X,Y) is the top-left corner, and X2(),Y2() are exclusive.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func NewRect(x, y, width, height int) Rect {
	return Rect{X: x, Y: y, Width: width, Height: height}
}

// FromCenter builds a rectangle of the given size around a (floating point) center
func FromCenter(cx, cy, width, height float64) Rect {
	return Rect{
		X:      int(math.Round(cx - width/2)),
		Y:      int(math.Round(cy - height/2)),
		Width:  int(math.Round(width)),
		Height: int(math.Round(height)),
	}
}

func (r Rect) X2() int {
	return r.X + r.Width
}

func (r Rect) Y2() int {
	return r.Y + r.Height
}

func (r Rect) Area() int {
	return r.Width * r.Height
}

func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

func (r Rect) Intersection(b Rect) Rect {
	x1 := max(r.X, b.X)
	y1 := max(r.Y, b.Y)
	x2 := min(r.X2(), b.X2())
	y2 := min(r.Y2(), b.Y2())
	return Rect{
		X:      x1,
		Y:      y1,
		Width:  max(0, x2-x1),
		Height: max(0, y2-y1),
	}
}

// Union returns the bounding box of both rectangles
func (r Rect) Union(b Rect) Rect {
	x1 := min(r.X, b.X)
	y1 := min(r.Y, b.Y)
	x2 := max(r.X2(), b.X2())
	y2 := max(r.Y2(), b.Y2())
	return Rect{
		X:      x1,
		Y:      y1,
		Width:  x2 - x1,
		Height: y2 - y1,
	}
}

// Intersection over Union.
// Empty rectangles have an IoU of zero with everything, including themselves.
func (r Rect) IOU(b Rect) float64 {
	if r.Empty() || b.Empty() {
		return 0
	}
	intersection := r.Intersection(b).Area()
	return float64(intersection) / float64(r.Area()+b.Area()-intersection)
}

func (r Rect) Center() Point {
	return Point{
		X: r.X + r.Width/2,
		Y: r.Y + r.Height/2,
	}
}

// CenterF returns the exact center
func (r Rect) CenterF() (float64, float64) {
	return float64(r.X) + float64(r.Width)/2, float64(r.Y) + float64(r.Height)/2
}

func (r *Rect) Offset(dx, dy int) {
	r.X += dx
	r.Y += dy
}

// Scale multiplies all coordinates, which maps a rectangle between two image resolutions
func (r Rect) Scale(sx, sy float64) Rect {
	x1 := math.Round(float64(r.X) * sx)
	y1 := math.Round(float64(r.Y) * sy)
	x2 := math.Round(float64(r.X2()) * sx)
	y2 := math.Round(float64(r.Y2()) * sy)
	return Rect{X: int(x1), Y: int(y1), Width: int(x2 - x1), Height: int(y2 - y1)}
}

// ScaleAroundCenter grows or shrinks the rectangle, keeping its center fixed
func (r Rect) ScaleAroundCenter(sx, sy float64) Rect {
	if sx == 1 && sy == 1 {
		return r
	}
	cx, cy := r.CenterF()
	return FromCenter(cx, cy, float64(r.Width)*sx, float64(r.Height)*sy)
}

// WithAspectRatio returns a rectangle with the same center and area as r,
// but with width/height equal to 'aspect'.
func (r Rect) WithAspectRatio(aspect float64) Rect {
	if r.Empty() || aspect <= 0 {
		return r
	}
	cx, cy := r.CenterF()
	area := float64(r.Area())
	height := math.Sqrt(area / aspect)
	return FromCenter(cx, cy, height*aspect, height)
}

// Mirror reflects the rectangle horizontally inside an image of the given width
func (r Rect) Mirror(imageWidth int) Rect {
	return Rect{X: imageWidth - r.X2(), Y: r.Y, Width: r.Width, Height: r.Height}
}

// Inside returns true if r lies entirely within bounds
func (r Rect) Inside(bounds Rect) bool {
	return r.X >= bounds.X && r.Y >= bounds.Y && r.X2() <= bounds.X2() && r.Y2() <= bounds.Y2()
}

func (r Rect) String() string {
	return fmt.Sprintf("[%v,%v %vx%v]", r.X, r.Y, r.Width, r.Height)
}
