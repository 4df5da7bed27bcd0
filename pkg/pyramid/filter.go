package pyramid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/effect"
	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/windet/pkg/imgsrc"
	"github.com/disintegration/imaging"
)

// Filter transforms an image. Filters must not modify their input.
type Filter func(img *cimg.Image) *cimg.Image

// Chain composes filters, applying them left to right. nil filters are skipped.
// A chain without any filters returns nil, which Apply treats as the identity.
func Chain(filters ...Filter) Filter {
	nonNil := []Filter{}
	for _, f := range filters {
		if f != nil {
			nonNil = append(nonNil, f)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	}
	return func(img *cimg.Image) *cimg.Image {
		for _, f := range nonNil {
			img = f(img)
		}
		return img
	}
}

// Apply runs the filter on img. A nil filter returns img unchanged.
func Apply(f Filter, img *cimg.Image) *cimg.Image {
	if f == nil {
		return img
	}
	return f(img)
}

// Grayscale keeps 3 channels, but sets them all to the luminance
func Grayscale() Filter {
	return func(img *cimg.Image) *cimg.Image {
		return imgsrc.FromImage(imaging.Grayscale(imgsrc.ToNRGBA(img)))
	}
}

// GaussianBlur blurs with the given standard deviation, in pixels
func GaussianBlur(sigma float64) Filter {
	return func(img *cimg.Image) *cimg.Image {
		return imgsrc.FromImage(imaging.Blur(imgsrc.ToNRGBA(img), sigma))
	}
}

// Median is a median filter, which removes speckle noise without smearing edges
func Median(radius float64) Filter {
	return func(img *cimg.Image) *cimg.Image {
		return imgsrc.FromImage(effect.Median(imgsrc.ToNRGBA(img), radius))
	}
}

// Contrast changes the contrast. 'change' is in the range [-1, 1]
func Contrast(change float64) Filter {
	return func(img *cimg.Image) *cimg.Image {
		return imgsrc.FromImage(adjust.Contrast(imgsrc.ToNRGBA(img), change))
	}
}

// ParseFilter builds a filter from a config string such as "grayscale", "blur:1.5", "median:2", "contrast:0.3"
func ParseFilter(desc string) (Filter, error) {
	name, arg, hasArg := strings.Cut(strings.TrimSpace(desc), ":")
	name = strings.ToLower(name)
	param := 0.0
	if hasArg {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("Invalid parameter in filter '%v': %w", desc, err)
		}
		param = v
	}
	needArg := func() error {
		if !hasArg || param <= 0 {
			return fmt.Errorf("Filter '%v' needs a positive parameter, eg '%v:1'", desc, name)
		}
		return nil
	}
	switch name {
	case "grayscale", "gray":
		return Grayscale(), nil
	case "blur":
		if err := needArg(); err != nil {
			return nil, err
		}
		return GaussianBlur(param), nil
	case "median":
		if err := needArg(); err != nil {
			return nil, err
		}
		return Median(param), nil
	case "contrast":
		if !hasArg || param < -1 || param > 1 {
			return nil, fmt.Errorf("Filter '%v' needs a parameter between -1 and 1", desc)
		}
		return Contrast(param), nil
	}
	return nil, fmt.Errorf("Unknown filter '%v'", desc)
}

// ParseFilters parses and chains a list of filter specs
func ParseFilters(specs []string) (Filter, error) {
	filters := []Filter{}
	for _, s := range specs {
		f, err := ParseFilter(s)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return Chain(filters...), nil
}
