// Package pyramid builds multi-scale representations of an image.
//
// A Pyramid scales a source image down from scale 1 in steps of a fixed
// incremental factor, keeping only the layers whose scale lies inside
// [minScale, maxScale]. A Derived pyramid converts every layer of another
// pyramid (for example into feature maps), without rescaling anything.
//
// Both kinds cache their layers, and only recompute them when the version of
// their source changes. Nothing here is safe for concurrent use.
package pyramid

import (
	"errors"
	"fmt"
	"math"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/windet/pkg/imgsrc"
)

var ErrInvalidScaleFactor = errors.New("invalid scale factor")

// Tolerance when comparing scale factors, so that eg 0.5^1 is not rejected by a maximum of 0.5
const scaleEpsilon = 1e-9

// Layer is one level of a pyramid.
// Width and Height are the dimensions of the scaled image that the layer was produced from.
type Layer[T any] struct {
	Index       int     // Layer 0 is scale 1, layer i is scale incremental^i
	ScaleFactor float64 // Nominal scale relative to the original image
	Width       int
	Height      int
	Data        T
}

// ScaleX is the exact horizontal scale of the layer relative to an original image of the given width
func (l *Layer[T]) ScaleX(originalWidth int) float64 {
	return float64(l.Width) / float64(originalWidth)
}

// ScaleY is the exact vertical scale of the layer relative to an original image of the given height
func (l *Layer[T]) ScaleY(originalHeight int) float64 {
	return float64(l.Height) / float64(originalHeight)
}

// Source is anything that a Derived pyramid can be built from
type Source[T any] interface {
	Update()
	Version() int64
	Layers() []*Layer[T]
	IncrementalScaleFactor() float64
	ImageSize() (width, height int)
}

// IncrementalFromOctaveLayers returns the incremental scale factor that produces
// 'layersPerOctave' layers for every halving of the scale.
func IncrementalFromOctaveLayers(layersPerOctave int) float64 {
	return math.Pow(0.5, 1/float64(layersPerOctave))
}

func validateScales(minScale, maxScale float64) error {
	if !(minScale > 0) || !(maxScale <= 1) || minScale > maxScale {
		return fmt.Errorf("%w: scale window [%v, %v] must satisfy 0 < min <= max <= 1", ErrInvalidScaleFactor, minScale, maxScale)
	}
	return nil
}

// Pyramid is an image pyramid
type Pyramid struct {
	minScale    float64
	maxScale    float64
	incremental float64
	imageFilter Filter // Applied to the original image, before scaling
	layerFilter Filter // Applied to every layer, after scaling

	source  imgsrc.VersionedImage
	built   int64 // Version of the source that 'layers' were built from
	version int64 // Changes every time 'layers' are rebuilt
	width   int
	height  int
	layers  []*Layer[*cimg.Image]
	builds  int
}

// New creates an image pyramid.
// Requires 0 < minScale <= maxScale <= 1 and 0 < incremental < 1.
func New(minScale, maxScale, incremental float64) (*Pyramid, error) {
	if err := validateScales(minScale, maxScale); err != nil {
		return nil, err
	}
	if !(incremental > 0 && incremental < 1) {
		return nil, fmt.Errorf("%w: incremental scale factor %v must be in (0, 1)", ErrInvalidScaleFactor, incremental)
	}
	return &Pyramid{
		minScale:    minScale,
		maxScale:    maxScale,
		incremental: incremental,
	}, nil
}

// SetImageFilter sets the filter that runs on the whole image, before scaling.
// The layers are rebuilt on the next Update.
func (p *Pyramid) SetImageFilter(f Filter) {
	p.imageFilter = f
	p.built = 0
}

// SetLayerFilter sets the filter that runs on every layer, after scaling.
// The layers are rebuilt on the next Update.
func (p *Pyramid) SetLayerFilter(f Filter) {
	p.layerFilter = f
	p.built = 0
}

// SetSource declares a new source image, without computing anything
func (p *Pyramid) SetSource(img *cimg.Image) {
	p.source = imgsrc.NewVersionedImage(img)
}

// SetVersionedSource declares the source, without computing anything.
// If the version is the one that was used for the current layers, then the next Update is a no-op.
func (p *Pyramid) SetVersionedSource(v imgsrc.VersionedImage) {
	p.source = v
}

// UpdateImage sets the source and updates the layers
func (p *Pyramid) UpdateImage(img *cimg.Image) {
	p.SetSource(img)
	p.Update()
}

// Update recomputes the layers if the source version has changed since the last update
func (p *Pyramid) Update() {
	if !p.source.Valid() || p.source.Version == p.built {
		return
	}
	p.build()
	p.built = p.source.Version
	p.version = imgsrc.NextVersion()
}

func (p *Pyramid) build() {
	p.builds++
	src := p.source.Image
	p.width = src.Width
	p.height = src.Height
	// A fresh slice, so that layers handed out before this build are left intact
	p.layers = nil

	filtered := Apply(p.imageFilter, src)
	var previous *cimg.Image
	for index := 0; ; index++ {
		scale := math.Pow(p.incremental, float64(index))
		if scale < p.minScale-scaleEpsilon {
			break
		}
		if scale > p.maxScale+scaleEpsilon {
			continue
		}
		w := int(math.Round(float64(p.width) * scale))
		h := int(math.Round(float64(p.height) * scale))
		if w < 1 || h < 1 {
			break
		}
		var scaled *cimg.Image
		if previous == nil {
			// Area averaging from the original avoids aliasing, no matter how far down the first layer is
			scaled = resize(filtered, w, h, cimg.ResizeFilterBox)
		} else {
			// Subsequent layers compound the previous layer's blur, which is cheaper than going back to the original
			scaled = resize(previous, w, h, cimg.ResizeFilterTriangle)
		}
		p.layers = append(p.layers, &Layer[*cimg.Image]{
			Index:       index,
			ScaleFactor: scale,
			Width:       w,
			Height:      h,
			Data:        Apply(p.layerFilter, scaled),
		})
		previous = scaled
	}
}

func resize(img *cimg.Image, width, height int, filter cimg.ResizeFilter) *cimg.Image {
	if img.Width == width && img.Height == height {
		return imgsrc.Clone(img)
	}
	params := cimg.ResizeParams{
		CheapSRGBFilter: true,
		Filter:          filter,
	}
	return cimg.ResizeNew(img, width, height, &params)
}

// Version identifies the current layers (0 if never built). It changes on every rebuild,
// including one that was caused by a new filter.
func (p *Pyramid) Version() int64 {
	return p.version
}

// SourceVersion is the version of the source image that the current layers were built from
func (p *Pyramid) SourceVersion() int64 {
	return p.built
}

// BuildCount is the number of times that the layers have been recomputed
func (p *Pyramid) BuildCount() int {
	return p.builds
}

func (p *Pyramid) Layers() []*Layer[*cimg.Image] {
	return p.layers
}

func (p *Pyramid) IncrementalScaleFactor() float64 {
	return p.incremental
}

func (p *Pyramid) MinScale() float64 {
	return p.minScale
}

func (p *Pyramid) MaxScale() float64 {
	return p.maxScale
}

// ImageSize is the size of the source image that the layers were built from
func (p *Pyramid) ImageSize() (int, int) {
	return p.width, p.height
}

// FirstIndex is the index of the finest layer, or -1 if there are no layers
func (p *Pyramid) FirstIndex() int {
	if len(p.layers) == 0 {
		return -1
	}
	return p.layers[0].Index
}

// Layer returns the layer with the given index, or false if it doesn't exist
func (p *Pyramid) Layer(index int) (*Layer[*cimg.Image], bool) {
	return findLayer(p.layers, index)
}

// LayerForScale returns the layer whose scale is closest to 'scale', or false
// if that layer is outside the pyramid.
func (p *Pyramid) LayerForScale(scale float64) (*Layer[*cimg.Image], bool) {
	return findLayer(p.layers, IndexForScale(scale, p.incremental))
}

// IndexForScale is the layer index whose nominal scale is closest to 'scale' (in log space)
func IndexForScale(scale, incremental float64) int {
	if !(scale > 0) {
		return math.MinInt32
	}
	return int(math.Round(math.Log(scale) / math.Log(incremental)))
}

func findLayer[T any](layers []*Layer[T], index int) (*Layer[T], bool) {
	if len(layers) == 0 {
		return nil, false
	}
	i := index - layers[0].Index
	if i < 0 || i >= len(layers) {
		return nil, false
	}
	return layers[i], true
}
