package features

// Map is a grid of feature vectors, one per cell.
// Data is row-major, with the Depth values of a cell stored contiguously.
type Map struct {
	Width  int
	Height int
	Depth  int
	Data   []float32
}

func NewMap(width, height, depth int) *Map {
	width = max(width, 0)
	height = max(height, 0)
	return &Map{
		Width:  width,
		Height: height,
		Depth:  depth,
		Data:   make([]float32, width*height*depth),
	}
}

// At returns the feature vector of the cell at (x,y). The slice aliases the map.
func (m *Map) At(x, y int) []float32 {
	i := (y*m.Width + x) * m.Depth
	return m.Data[i : i+m.Depth]
}

// Contains returns true if a window of w x h cells at (x,y) lies entirely inside the map
func (m *Map) Contains(x, y, w, h int) bool {
	return x >= 0 && y >= 0 && x+w <= m.Width && y+h <= m.Height
}

// Window copies the features of a window of w x h cells, with its top-left cell at (x,y).
// Returns nil if the window does not fit inside the map.
func (m *Map) Window(x, y, w, h int) []float64 {
	if !m.Contains(x, y, w, h) {
		return nil
	}
	out := make([]float64, 0, w*h*m.Depth)
	rowLen := w * m.Depth
	for row := y; row < y+h; row++ {
		start := (row*m.Width + x) * m.Depth
		for _, v := range m.Data[start : start+rowLen] {
			out = append(out, float64(v))
		}
	}
	return out
}

// Resample produces a map of a different size by bilinear interpolation of the cell vectors.
// Cell centers are aligned, so the corners of both maps coincide.
func (m *Map) Resample(width, height int) *Map {
	out := NewMap(width, height, m.Depth)
	if m.Width == 0 || m.Height == 0 || width == 0 || height == 0 {
		return out
	}
	sx := float32(m.Width) / float32(width)
	sy := float32(m.Height) / float32(height)
	for y := 0; y < height; y++ {
		fy := (float32(y)+0.5)*sy - 0.5
		y0, y1, wy := neighbors(fy, m.Height)
		for x := 0; x < width; x++ {
			fx := (float32(x)+0.5)*sx - 0.5
			x0, x1, wx := neighbors(fx, m.Width)
			a := m.At(x0, y0)
			b := m.At(x1, y0)
			c := m.At(x0, y1)
			d := m.At(x1, y1)
			dst := out.At(x, y)
			for i := range dst {
				top := a[i] + (b[i]-a[i])*wx
				bottom := c[i] + (d[i]-c[i])*wx
				dst[i] = top + (bottom-top)*wy
			}
		}
	}
	return out
}

// neighbors returns the two cells that straddle position f, and the weight of the second one
func neighbors(f float32, n int) (int, int, float32) {
	if f <= 0 {
		return 0, 0, 0
	}
	i := int(f)
	if i >= n-1 {
		return n - 1, n - 1, 0
	}
	return i, i + 1, f - float32(i)
}
