package imgsrc

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmharper/cimg/v2"
)

// LabeledImage is an image with its ground truth
type LabeledImage struct {
	Name        string
	Image       *cimg.Image
	Annotations Annotations
}

// Source iterates over labeled images.
// Usage:
//
//	for src.Next() {
//		img, anns := src.Image(), src.Annotations()
//	}
//	if err := src.Err(); err != nil { ... }
type Source interface {
	// Next advances to the next image. Returns false when there are no more images, or on error.
	Next() bool
	Image() *cimg.Image
	Annotations() Annotations
	Name() string
	// Reset rewinds to before the first image
	Reset()
	// Err returns the first error that stopped iteration
	Err() error
}

// Collect reads all remaining images from the source
func Collect(src Source) ([]LabeledImage, error) {
	all := []LabeledImage{}
	for src.Next() {
		all = append(all, LabeledImage{Name: src.Name(), Image: src.Image(), Annotations: src.Annotations()})
	}
	return all, src.Err()
}

// ListSource is an in-memory Source
type ListSource struct {
	Images []LabeledImage
	pos    int
}

func NewListSource(images []LabeledImage) *ListSource {
	return &ListSource{Images: images, pos: -1}
}

func (s *ListSource) Next() bool {
	if s.pos+1 >= len(s.Images) {
		s.pos = len(s.Images)
		return false
	}
	s.pos++
	return true
}

func (s *ListSource) current() *LabeledImage {
	if s.pos < 0 || s.pos >= len(s.Images) {
		return nil
	}
	return &s.Images[s.pos]
}

func (s *ListSource) Image() *cimg.Image {
	if c := s.current(); c != nil {
		return c.Image
	}
	return nil
}

func (s *ListSource) Annotations() Annotations {
	if c := s.current(); c != nil {
		return c.Annotations
	}
	return nil
}

func (s *ListSource) Name() string {
	if c := s.current(); c != nil {
		return c.Name
	}
	return ""
}

func (s *ListSource) Reset() {
	s.pos = -1
}

func (s *ListSource) Err() error {
	return nil
}

func (s *ListSource) Len() int {
	return len(s.Images)
}

// Fold splits the images for cross validation into 'numFolds' interleaved folds.
// Image i belongs to fold i % numFolds. Returns (training set, test set) for fold 'fold'.
// With numFolds <= 1, both sets contain all images.
func (s *ListSource) Fold(numFolds, fold int) (train, test *ListSource) {
	if numFolds <= 1 {
		return NewListSource(s.Images), NewListSource(s.Images)
	}
	trainImages := []LabeledImage{}
	testImages := []LabeledImage{}
	for i, img := range s.Images {
		if i%numFolds == fold {
			testImages = append(testImages, img)
		} else {
			trainImages = append(trainImages, img)
		}
	}
	return NewListSource(trainImages), NewListSource(testImages)
}

// DirectorySource reads the images named in an image set file.
// The image set file lists one image filename per line, relative to the directory.
// The annotations of "foo.jpg" are read from "foo.txt" in the same directory (see ReadAnnotations).
// An image without an annotation file has no annotations.
type DirectorySource struct {
	dir   string
	names []string
	pos   int
	cur   LabeledImage
	err   error
}

func NewDirectorySource(dir, imageSetFile string) (*DirectorySource, error) {
	if !filepath.IsAbs(imageSetFile) {
		if _, err := os.Stat(imageSetFile); err != nil {
			imageSetFile = filepath.Join(dir, imageSetFile)
		}
	}
	f, err := os.Open(imageSetFile)
	if err != nil {
		return nil, fmt.Errorf("Failed to open image set: %w", err)
	}
	defer f.Close()
	names := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			names = append(names, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("Failed to read image set: %w", err)
	}
	return &DirectorySource{dir: dir, names: names, pos: -1}, nil
}

func (s *DirectorySource) Next() bool {
	if s.err != nil || s.pos+1 >= len(s.names) {
		return false
	}
	s.pos++
	name := s.names[s.pos]
	imgPath := filepath.Join(s.dir, name)
	img, err := ReadImage(imgPath)
	if err != nil {
		s.err = fmt.Errorf("Failed to read image %v: %w", imgPath, err)
		return false
	}
	anns, err := readAnnotationFile(strings.TrimSuffix(imgPath, filepath.Ext(imgPath)) + ".txt")
	if err != nil {
		s.err = err
		return false
	}
	s.cur = LabeledImage{Name: name, Image: img, Annotations: anns}
	return true
}

func readAnnotationFile(filename string) (Annotations, error) {
	f, err := os.Open(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return Annotations{}, nil
	} else if err != nil {
		return nil, err
	}
	defer f.Close()
	anns, err := ReadAnnotations(f)
	if err != nil {
		return nil, fmt.Errorf("Failed to parse %v: %w", filename, err)
	}
	return anns, nil
}

func (s *DirectorySource) Image() *cimg.Image       { return s.cur.Image }
func (s *DirectorySource) Annotations() Annotations { return s.cur.Annotations }
func (s *DirectorySource) Name() string             { return s.cur.Name }
func (s *DirectorySource) Err() error               { return s.err }

func (s *DirectorySource) Reset() {
	s.pos = -1
	s.err = nil
	s.cur = LabeledImage{}
}

// Len is the number of images in the set
func (s *DirectorySource) Len() int {
	return len(s.names)
}

// AspectRatioSource wraps another source, and rewrites every positive annotation to
// have width/height equal to AspectRatio. The height and center are preserved.
// Fuzzy annotations are passed through untouched.
type AspectRatioSource struct {
	Source
	AspectRatio float64
}

func NewAspectRatioSource(inner Source, aspectRatio float64) *AspectRatioSource {
	return &AspectRatioSource{Source: inner, AspectRatio: aspectRatio}
}

func (s *AspectRatioSource) Annotations() Annotations {
	return AdjustAspectRatio(s.Source.Annotations(), s.AspectRatio)
}

// AdjustAspectRatio changes the width of positive annotations so that width/height = aspectRatio
func AdjustAspectRatio(anns Annotations, aspectRatio float64) Annotations {
	out := make(Annotations, len(anns))
	for i, a := range anns {
		out[i] = a
		if a.Category == CategoryPositive && aspectRatio > 0 {
			cx, _ := a.Box.CenterF()
			width := float64(a.Box.Height) * aspectRatio
			adjusted := a.Box
			adjusted.X = int(math.Round(cx - width/2))
			adjusted.Width = int(math.Round(width))
			out[i].Box = adjusted
		}
	}
	return out
}
