// Package features computes feature maps over an image pyramid, and extracts
// the feature vectors of classifier windows from them.
package features

import (
	"fmt"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/windet/pkg/geom"
	"github.com/cyclopcam/windet/pkg/imgsrc"
	"github.com/cyclopcam/windet/pkg/pyramid"
)

type Layer = pyramid.Layer[*Map]

// PyramidParams controls the range and density of the scales that features are computed at
type PyramidParams struct {
	MinScale     float64
	MaxScale     float64
	OctaveLayers int            // Number of layers per halving of scale
	ImageFilter  pyramid.Filter // Applied to the full resolution image, before scaling
	Approximate  bool           // Compute descriptors on one layer per octave, and resample the maps in between
}

// Extractor maintains a feature pyramid of the most recent image
type Extractor struct {
	geometry   Geometry
	descriptor Descriptor
	params     PyramidParams
	images     *pyramid.Pyramid

	exact *pyramid.Derived[*cimg.Image, *Map]

	// Approximate mode
	approx        []*Layer
	approxVersion int64
	approxBuilds  int
}

func NewExtractor(geometry Geometry, descriptor Descriptor, params PyramidParams) (*Extractor, error) {
	if err := geometry.Validate(); err != nil {
		return nil, err
	}
	if params.OctaveLayers < 1 {
		return nil, fmt.Errorf("%w: octave layers must be at least 1, not %v", pyramid.ErrInvalidScaleFactor, params.OctaveLayers)
	}
	images, err := pyramid.New(params.MinScale, params.MaxScale, pyramid.IncrementalFromOctaveLayers(params.OctaveLayers))
	if err != nil {
		return nil, err
	}
	images.SetImageFilter(params.ImageFilter)
	e := &Extractor{
		geometry:   geometry,
		descriptor: descriptor,
		params:     params,
		images:     images,
	}
	if !params.Approximate {
		e.exact, err = pyramid.NewDerived(pyramid.Source[*cimg.Image](images), params.MinScale, params.MaxScale, e.compute)
		if err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Extractor) compute(img *cimg.Image) *Map {
	return e.descriptor.Compute(img, e.geometry.CellSize)
}

// Update sets a new image, and recomputes the feature pyramid
func (e *Extractor) Update(img *cimg.Image) {
	e.UpdateVersioned(imgsrc.NewVersionedImage(img))
}

// UpdateVersioned recomputes the feature pyramid, unless v is the image that it was built from
func (e *Extractor) UpdateVersioned(v imgsrc.VersionedImage) {
	e.images.SetVersionedSource(v)
	if e.exact != nil {
		e.exact.Update()
		return
	}
	e.images.Update()
	if e.images.Version() != e.approxVersion {
		e.buildApproximate()
		e.approxVersion = e.images.Version()
	}
}

func (e *Extractor) buildApproximate() {
	e.approxBuilds++
	e.approx = nil
	var computed *Layer
	for _, src := range e.images.Layers() {
		cw := src.Width / e.geometry.CellSize
		ch := src.Height / e.geometry.CellSize
		fresh := computed == nil || src.Index-computed.Index >= e.params.OctaveLayers
		var m *Map
		if fresh {
			m = e.compute(src.Data)
		} else {
			m = computed.Data.Resample(cw, ch)
		}
		layer := &Layer{
			Index:       src.Index,
			ScaleFactor: src.ScaleFactor,
			Width:       src.Width,
			Height:      src.Height,
			Data:        m,
		}
		if fresh {
			computed = layer
		}
		e.approx = append(e.approx, layer)
	}
}

// Layers returns the feature layers, finest first
func (e *Extractor) Layers() []*Layer {
	if e.exact != nil {
		return e.exact.Layers()
	}
	return e.approx
}

// BuildCount is the number of times that the feature maps have been recomputed
func (e *Extractor) BuildCount() int {
	if e.exact != nil {
		return e.exact.BuildCount()
	}
	return e.approxBuilds
}

func (e *Extractor) Geometry() Geometry {
	return e.geometry
}

func (e *Extractor) Descriptor() Descriptor {
	return e.descriptor
}

func (e *Extractor) Params() PyramidParams {
	return e.params
}

// Dimensions is the length of the feature vector of one window
func (e *Extractor) Dimensions() int {
	return e.geometry.Dimensions(e.descriptor.Depth())
}

// ImageSize is the size of the image that the features were computed from
func (e *Extractor) ImageSize() (int, int) {
	return e.images.ImageSize()
}

// Layer returns the feature layer with the given index
func (e *Extractor) Layer(index int) (*Layer, bool) {
	layers := e.Layers()
	if len(layers) == 0 {
		return nil, false
	}
	i := index - layers[0].Index
	if i < 0 || i >= len(layers) {
		return nil, false
	}
	return layers[i], true
}

// LayerForScale returns the layer whose scale is closest to 'scale'
func (e *Extractor) LayerForScale(scale float64) (*Layer, bool) {
	return e.Layer(pyramid.IndexForScale(scale, e.images.IncrementalScaleFactor()))
}

// Extract returns the features of a window of the given size, centered at (cx,cy) in
// original image pixels. The layer is chosen so that the window fills the classifier
// window as closely as possible. Returns false if no layer has that scale, or if the
// window does not fit inside the layer.
func (e *Extractor) Extract(cx, cy, width, height float64) ([]float64, bool) {
	if width <= 0 || height <= 0 {
		return nil, false
	}
	layer, ok := e.LayerForScale(float64(e.geometry.PixelWidth()) / width)
	if !ok {
		return nil, false
	}
	imgWidth, imgHeight := e.ImageSize()
	cs := float64(e.geometry.CellSize)
	ccx := cx * layer.ScaleX(imgWidth) / cs
	ccy := cy * layer.ScaleY(imgHeight) / cs
	cells := geom.FromCenter(ccx, ccy, float64(e.geometry.WindowWidth), float64(e.geometry.WindowHeight))
	return e.WindowAt(layer.Index, cells.X, cells.Y)
}

// WindowAt returns the features of the window whose top-left cell is (cellX, cellY) in the given layer
func (e *Extractor) WindowAt(layerIndex, cellX, cellY int) ([]float64, bool) {
	layer, ok := e.Layer(layerIndex)
	if !ok {
		return nil, false
	}
	w := layer.Data.Window(cellX, cellY, e.geometry.WindowWidth, e.geometry.WindowHeight)
	return w, w != nil
}

// ToCells converts a rectangle in original image pixels into cells of the given layer
func (e *Extractor) ToCells(layer *Layer, r geom.Rect) geom.Rect {
	imgWidth, imgHeight := e.ImageSize()
	cs := float64(e.geometry.CellSize)
	return r.Scale(layer.ScaleX(imgWidth)/cs, layer.ScaleY(imgHeight)/cs)
}

// ToPixels converts a rectangle of cells in the given layer into original image pixels
func (e *Extractor) ToPixels(layer *Layer, cells geom.Rect) geom.Rect {
	imgWidth, imgHeight := e.ImageSize()
	cs := float64(e.geometry.CellSize)
	return cells.Scale(cs/layer.ScaleX(imgWidth), cs/layer.ScaleY(imgHeight))
}
