package pyramid

import (
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/windet/pkg/imgsrc"
	"github.com/stretchr/testify/require"
)

func testImage(width, height int) *cimg.Image {
	img := cimg.NewImage(width, height, cimg.PixelFormatRGB)
	for y := 0; y < height; y++ {
		row := img.Pixels[y*img.Stride:]
		for x := 0; x < width; x++ {
			row[x*3] = byte(x * 255 / width)
			row[x*3+1] = byte(y * 255 / height)
			row[x*3+2] = byte((x + y) % 256)
		}
	}
	return img
}

func TestLayers(t *testing.T) {
	p, err := New(0.2, 0.9, 0.5)
	require.NoError(t, err)
	p.UpdateImage(testImage(100, 80))

	layers := p.Layers()
	require.Equal(t, 2, len(layers))
	require.Equal(t, 1, layers[0].Index)
	require.Equal(t, 50, layers[0].Width)
	require.Equal(t, 40, layers[0].Height)
	require.Equal(t, 50, layers[0].Data.Width)
	require.Equal(t, 40, layers[0].Data.Height)
	require.Equal(t, 2, layers[1].Index)
	require.Equal(t, 25, layers[1].Width)
	require.Equal(t, 20, layers[1].Height)
	require.InDelta(t, 0.25, layers[1].ScaleFactor, 1e-9)

	w, h := p.ImageSize()
	require.Equal(t, 100, w)
	require.Equal(t, 80, h)
}

func TestFullScaleLayerIsCopy(t *testing.T) {
	p, err := New(0.5, 1, 0.5)
	require.NoError(t, err)
	img := testImage(40, 30)
	p.UpdateImage(img)
	require.Equal(t, 2, len(p.Layers()))
	first := p.Layers()[0]
	require.Equal(t, 0, first.Index)
	require.Equal(t, img.Pixels, first.Data.Pixels)
	first.Data.Pixels[0] = img.Pixels[0] + 1
	require.NotEqual(t, img.Pixels[0], first.Data.Pixels[0])
}

func TestInvalidScales(t *testing.T) {
	bad := [][3]float64{
		{0, 0.5, 0.5},
		{0.6, 0.5, 0.5},
		{0.5, 1.5, 0.5},
		{0.2, 0.9, 1},
		{0.2, 0.9, 0},
	}
	for _, b := range bad {
		_, err := New(b[0], b[1], b[2])
		require.ErrorIs(t, err, ErrInvalidScaleFactor, "%v", b)
	}
}

func TestCaching(t *testing.T) {
	p, err := New(0.2, 1, 0.5)
	require.NoError(t, err)
	var vs imgsrc.VersionedSource
	v := vs.Set(testImage(64, 64))

	p.SetVersionedSource(v)
	p.Update()
	require.Equal(t, 1, p.BuildCount())
	require.Equal(t, v.Version, p.SourceVersion())
	first := p.Version()
	require.NotZero(t, first)

	// Same version: nothing to do
	p.SetVersionedSource(v)
	p.Update()
	p.Update()
	require.Equal(t, 1, p.BuildCount())

	// New version
	p.SetVersionedSource(vs.Set(testImage(64, 64)))
	p.Update()
	require.Equal(t, 2, p.BuildCount())

	second := p.Version()
	require.NotEqual(t, first, second)

	// Changing a filter invalidates the layers, even though the source is the same
	p.SetLayerFilter(Grayscale())
	p.Update()
	require.Equal(t, 3, p.BuildCount())
	require.NotEqual(t, second, p.Version())
}

func TestUpdateReplacesLayers(t *testing.T) {
	p, err := New(0.2, 1, 0.5)
	require.NoError(t, err)
	p.UpdateImage(testImage(64, 64))
	before := p.Layers()
	require.Equal(t, 3, len(before))

	p.UpdateImage(testImage(32, 32))
	require.Equal(t, 3, len(p.Layers()))
	// The old layers still describe the old image
	require.Equal(t, 64, before[0].Width)
	require.Equal(t, 32, before[1].Width)
	require.Equal(t, 16, before[2].Width)
	require.Equal(t, 32, p.Layers()[0].Width)
}

func TestUpdateWithoutSource(t *testing.T) {
	p, err := New(0.2, 1, 0.5)
	require.NoError(t, err)
	p.Update()
	require.Equal(t, 0, p.BuildCount())
	require.Equal(t, 0, len(p.Layers()))
}

func TestLayerForScale(t *testing.T) {
	p, err := New(0.1, 1, 0.5)
	require.NoError(t, err)
	p.UpdateImage(testImage(160, 160))
	require.Equal(t, 4, len(p.Layers()))

	l, ok := p.LayerForScale(0.5)
	require.True(t, ok)
	require.Equal(t, 1, l.Index)

	l, ok = p.LayerForScale(0.27)
	require.True(t, ok)
	require.Equal(t, 2, l.Index)

	_, ok = p.LayerForScale(0.01)
	require.False(t, ok)

	l, ok = p.Layer(3)
	require.True(t, ok)
	require.Equal(t, 20, l.Width)
	_, ok = p.Layer(4)
	require.False(t, ok)
}

func TestIncrementalFromOctaveLayers(t *testing.T) {
	require.InDelta(t, 0.5, IncrementalFromOctaveLayers(1), 1e-12)
	inc := IncrementalFromOctaveLayers(4)
	require.InDelta(t, 0.5, inc*inc*inc*inc, 1e-12)
}

func TestDerived(t *testing.T) {
	p, err := New(0.1, 1, 0.5)
	require.NoError(t, err)
	d, err := NewDerived[*cimg.Image, int](p, 0.2, 0.6, func(img *cimg.Image) int {
		return img.Width
	})
	require.NoError(t, err)

	var vs imgsrc.VersionedSource
	p.SetVersionedSource(vs.Set(testImage(160, 80)))
	d.Update()
	require.Equal(t, 1, p.BuildCount())
	require.Equal(t, 1, d.BuildCount())

	layers := d.Layers()
	require.Equal(t, 2, len(layers))
	require.Equal(t, 1, layers[0].Index)
	require.Equal(t, 80, layers[0].Data)
	require.Equal(t, 2, layers[1].Index)
	require.Equal(t, 40, layers[1].Data)

	l, ok := d.LayerForScale(0.25)
	require.True(t, ok)
	require.Equal(t, 40, l.Data)

	d.Update()
	require.Equal(t, 1, d.BuildCount())

	p.SetVersionedSource(vs.Set(testImage(80, 80)))
	d.Update()
	require.Equal(t, 2, d.BuildCount())
	require.Equal(t, 40, d.Layers()[0].Data)

	// Layers handed out before the update are left alone
	require.Equal(t, 80, layers[0].Data)

	_, err = NewDerived[*cimg.Image, int](p, 0.7, 0.6, nil)
	require.ErrorIs(t, err, ErrInvalidScaleFactor)
}

func TestDerivedSeesFilterChange(t *testing.T) {
	p, err := New(0.5, 1, 0.5)
	require.NoError(t, err)
	// Red channel of one pixel of the full scale layer
	d, err := NewDerived[*cimg.Image, byte](p, 1, 1, func(img *cimg.Image) byte {
		return img.Pixels[img.Stride*10+3*30]
	})
	require.NoError(t, err)

	img := testImage(40, 40)
	p.SetSource(img)
	d.Update()
	require.Equal(t, 1, d.BuildCount())
	require.Equal(t, img.Pixels[img.Stride*10+3*30], d.Layers()[0].Data)

	p.SetImageFilter(Grayscale())
	d.Update()
	require.Equal(t, 2, p.BuildCount())
	require.Equal(t, 2, d.BuildCount())
	gray := Grayscale()(img)
	require.Equal(t, gray.Pixels[gray.Stride*10+3*30], d.Layers()[0].Data)
	require.NotEqual(t, img.Pixels[img.Stride*10+3*30], d.Layers()[0].Data)
}

func TestChain(t *testing.T) {
	require.Nil(t, Chain())
	require.Nil(t, Chain(nil, nil))

	calls := []string{}
	a := func(img *cimg.Image) *cimg.Image { calls = append(calls, "a"); return img }
	b := func(img *cimg.Image) *cimg.Image { calls = append(calls, "b"); return img }
	img := testImage(4, 4)
	require.Same(t, img, Apply(Chain(a, nil, b), img))
	require.Equal(t, []string{"a", "b"}, calls)
	require.Same(t, img, Apply(nil, img))
}

func TestParseFilters(t *testing.T) {
	f, err := ParseFilters([]string{"grayscale", "blur:1.5", "median:1", "contrast:0.2"})
	require.NoError(t, err)
	require.NotNil(t, f)

	out := f(testImage(16, 12))
	require.Equal(t, 16, out.Width)
	require.Equal(t, 12, out.Height)
	require.Equal(t, 3, out.NChan())
	// Grayscale went first, so the channels are equal
	require.Equal(t, out.Pixels[0], out.Pixels[1])
	require.Equal(t, out.Pixels[1], out.Pixels[2])

	_, err = ParseFilter("sharpen")
	require.Error(t, err)
	_, err = ParseFilter("blur:abc")
	require.Error(t, err)
}
