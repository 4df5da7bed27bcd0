// Package imgsrc supplies images to the detector: versioned image buffers for
// the pyramid caches, annotated training/test images, and the sources that
// iterate over them.
package imgsrc

import (
	"image"
	"image/color"

	"github.com/bmharper/cimg/v2"
	"github.com/disintegration/imaging"
)

// Clone returns a deep copy of img
func Clone(img *cimg.Image) *cimg.Image {
	c := cimg.NewImage(img.Width, img.Height, img.Format)
	for y := 0; y < img.Height; y++ {
		copy(c.Pixels[y*c.Stride:y*c.Stride+c.Width*c.NChan()], img.Pixels[y*img.Stride:y*img.Stride+img.Width*img.NChan()])
	}
	return c
}

// channelOffsets returns the byte offsets of red, green and blue within a pixel
func channelOffsets(img *cimg.Image) (r, g, b int) {
	switch img.Format {
	case cimg.PixelFormatBGR, cimg.PixelFormatBGRX, cimg.PixelFormatBGRA:
		return 2, 1, 0
	case cimg.PixelFormatXRGB, cimg.PixelFormatARGB:
		return 1, 2, 3
	case cimg.PixelFormatXBGR, cimg.PixelFormatABGR:
		return 3, 2, 1
	}
	return 0, 1, 2
}

// EnsureRGB returns an RGB image. Gray images are replicated into 3 channels,
// and other channel orders are swizzled into RGB, dropping alpha or padding.
// RGB images are returned as-is.
func EnsureRGB(img *cimg.Image) *cimg.Image {
	if img.Format == cimg.PixelFormatRGB {
		return img
	}
	nchan := img.NChan()
	r, g, b := channelOffsets(img)
	rgb := cimg.NewImage(img.Width, img.Height, cimg.PixelFormatRGB)
	for y := 0; y < img.Height; y++ {
		src := img.Pixels[y*img.Stride:]
		dst := rgb.Pixels[y*rgb.Stride:]
		for x := 0; x < img.Width; x++ {
			p := src[x*nchan:]
			if nchan == 1 {
				dst[x*3], dst[x*3+1], dst[x*3+2] = p[0], p[0], p[0]
			} else {
				dst[x*3], dst[x*3+1], dst[x*3+2] = p[r], p[g], p[b]
			}
		}
	}
	return rgb
}

// ToNRGBA copies an RGB image into a Go image, so that it can be handed to
// the pure Go image libraries.
func ToNRGBA(img *cimg.Image) *image.NRGBA {
	img = EnsureRGB(img)
	out := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		src := img.Pixels[y*img.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < img.Width; x++ {
			dst[x*4] = src[x*3]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+2]
			dst[x*4+3] = 255
		}
	}
	return out
}

// FromImage converts any Go image into an RGB image. Alpha is discarded.
func FromImage(src image.Image) *cimg.Image {
	b := src.Bounds()
	out := cimg.NewImage(b.Dx(), b.Dy(), cimg.PixelFormatRGB)
	switch s := src.(type) {
	case *image.NRGBA:
		for y := 0; y < out.Height; y++ {
			in := s.Pix[(y+b.Min.Y-s.Rect.Min.Y)*s.Stride+(b.Min.X-s.Rect.Min.X)*4:]
			dst := out.Pixels[y*out.Stride:]
			for x := 0; x < out.Width; x++ {
				dst[x*3] = in[x*4]
				dst[x*3+1] = in[x*4+1]
				dst[x*3+2] = in[x*4+2]
			}
		}
	case *image.RGBA:
		for y := 0; y < out.Height; y++ {
			in := s.Pix[(y+b.Min.Y-s.Rect.Min.Y)*s.Stride+(b.Min.X-s.Rect.Min.X)*4:]
			dst := out.Pixels[y*out.Stride:]
			for x := 0; x < out.Width; x++ {
				dst[x*3] = in[x*4]
				dst[x*3+1] = in[x*4+1]
				dst[x*3+2] = in[x*4+2]
			}
		}
	default:
		for y := 0; y < out.Height; y++ {
			dst := out.Pixels[y*out.Stride:]
			for x := 0; x < out.Width; x++ {
				c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				dst[x*3] = c.R
				dst[x*3+1] = c.G
				dst[x*3+2] = c.B
			}
		}
	}
	return out
}

// Mirror returns the horizontally flipped image
func Mirror(img *cimg.Image) *cimg.Image {
	return FromImage(imaging.FlipH(ToNRGBA(img)))
}

// ReadImage decodes an image file into an RGB image
func ReadImage(filename string) (*cimg.Image, error) {
	img, err := cimg.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return EnsureRGB(img), nil
}
