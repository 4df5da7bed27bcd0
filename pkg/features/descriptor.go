package features

import (
	"fmt"

	"github.com/bmharper/cimg/v2"
	"github.com/chewxy/math32"
	"github.com/cyclopcam/windet/pkg/imgsrc"
)

// Descriptor turns an image into a feature map with one vector per cell.
// A map computed from a W x H image has W/cellSize x H/cellSize cells.
type Descriptor interface {
	Name() string
	Depth() int
	Compute(img *cimg.Image, cellSize int) *Map
}

// NewDescriptor creates a descriptor by name.
// bins is only used by "hog", where zero selects the default.
func NewDescriptor(name string, bins int) (Descriptor, error) {
	switch name {
	case "hog", "":
		if bins == 0 {
			bins = DefaultHOGBins
		}
		if bins < 2 {
			return nil, fmt.Errorf("HOG needs at least 2 bins, not %v", bins)
		}
		return &HOG{Bins: bins}, nil
	case "intensity":
		return &Intensity{}, nil
	}
	return nil, fmt.Errorf("Unknown descriptor '%v'", name)
}

const DefaultHOGBins = 9

// HOG is a histogram of unsigned gradient orientations per cell.
// Each cell histogram is normalized by the gradient energy of the 3x3 cells around it,
// and then clipped, which makes it robust to local changes in contrast.
type HOG struct {
	Bins int
}

const (
	hogClip    = 0.2
	hogEpsilon = 1e-4
)

func (h *HOG) Name() string {
	return "hog"
}

func (h *HOG) Depth() int {
	return h.Bins
}

func (h *HOG) Compute(img *cimg.Image, cellSize int) *Map {
	img = imgsrc.EnsureRGB(img)
	cw := img.Width / cellSize
	ch := img.Height / cellSize
	hist := NewMap(cw, ch, h.Bins)
	if cw == 0 || ch == 0 {
		return hist
	}
	binWidth := math32.Pi / float32(h.Bins)

	// Only the pixels that belong to a whole cell contribute.
	// Gradients use central differences, clamped at the image border.
	for y := 0; y < ch*cellSize; y++ {
		yUp := max(y-1, 0)
		yDown := min(y+1, img.Height-1)
		cy := y / cellSize
		for x := 0; x < cw*cellSize; x++ {
			xLeft := max(x-1, 0)
			xRight := min(x+1, img.Width-1)
			// Use the channel with the strongest gradient
			var dx, dy, mag2 float32
			for c := 0; c < 3; c++ {
				gx := float32(img.Pixels[y*img.Stride+xRight*3+c]) - float32(img.Pixels[y*img.Stride+xLeft*3+c])
				gy := float32(img.Pixels[yDown*img.Stride+x*3+c]) - float32(img.Pixels[yUp*img.Stride+x*3+c])
				m := gx*gx + gy*gy
				if m > mag2 {
					dx, dy, mag2 = gx, gy, m
				}
			}
			if mag2 == 0 {
				continue
			}
			angle := math32.Atan2(dy, dx)
			if angle < 0 {
				angle += math32.Pi
			}
			// Linear interpolation between the two nearest bins
			pos := angle/binWidth - 0.5
			b0 := int(math32.Floor(pos))
			frac := pos - float32(b0)
			b1 := b0 + 1
			b0 = (b0 + h.Bins) % h.Bins
			b1 = b1 % h.Bins
			mag := math32.Sqrt(mag2)
			cell := hist.At(x/cellSize, cy)
			cell[b0] += mag * (1 - frac)
			cell[b1] += mag * frac
		}
	}

	energy := make([]float32, cw*ch)
	for i := range energy {
		e := float32(0)
		for _, v := range hist.Data[i*h.Bins : (i+1)*h.Bins] {
			e += v * v
		}
		energy[i] = e
	}

	out := NewMap(cw, ch, h.Bins)
	for y := 0; y < ch; y++ {
		for x := 0; x < cw; x++ {
			sum := float32(0)
			for ny := max(y-1, 0); ny <= min(y+1, ch-1); ny++ {
				for nx := max(x-1, 0); nx <= min(x+1, cw-1); nx++ {
					sum += energy[ny*cw+nx]
				}
			}
			norm := 1 / math32.Sqrt(sum+hogEpsilon)
			src := hist.At(x, y)
			dst := out.At(x, y)
			for b := range dst {
				dst[b] = math32.Min(src[b]*norm, hogClip)
			}
		}
	}
	return out
}

// Intensity is the mean brightness of each cell, in the range [0,1]
type Intensity struct{}

func (i *Intensity) Name() string {
	return "intensity"
}

func (i *Intensity) Depth() int {
	return 1
}

func (i *Intensity) Compute(img *cimg.Image, cellSize int) *Map {
	img = imgsrc.EnsureRGB(img)
	cw := img.Width / cellSize
	ch := img.Height / cellSize
	out := NewMap(cw, ch, 1)
	scale := 1 / float32(cellSize*cellSize*3*255)
	for cy := 0; cy < ch; cy++ {
		for cx := 0; cx < cw; cx++ {
			sum := 0
			for y := cy * cellSize; y < (cy+1)*cellSize; y++ {
				row := img.Pixels[y*img.Stride+cx*cellSize*3:]
				for _, v := range row[:cellSize*3] {
					sum += int(v)
				}
			}
			out.Data[cy*cw+cx] = float32(sum) * scale
		}
	}
	return out
}
