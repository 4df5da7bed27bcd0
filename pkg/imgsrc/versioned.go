package imgsrc

import (
	"sync/atomic"

	"github.com/bmharper/cimg/v2"
)

// Versions are unique across all sources, so that a cache which is pointed at a
// different source never mistakes a new image for the one it has already seen.
var lastVersion atomic.Int64

// NextVersion returns a version number that has never been used before.
// Caches that are derived from a versioned image use it to version their own output.
func NextVersion() int64 {
	return lastVersion.Add(1)
}

// VersionedImage is an image plus a version number.
// A cache that has already processed Version does not need to look at Image again.
type VersionedImage struct {
	Image   *cimg.Image
	Version int64
}

// NewVersionedImage wraps img with a fresh version number
func NewVersionedImage(img *cimg.Image) VersionedImage {
	return VersionedImage{Image: img, Version: NextVersion()}
}

// Valid returns false for the zero VersionedImage
func (v VersionedImage) Valid() bool {
	return v.Image != nil && v.Version != 0
}

// VersionedSource holds the current image, and bumps its version every time the image is replaced.
type VersionedSource struct {
	current VersionedImage
}

// Set replaces the current image, and returns the newly versioned image
func (s *VersionedSource) Set(img *cimg.Image) VersionedImage {
	s.current = NewVersionedImage(img)
	return s.current
}

func (s *VersionedSource) Current() VersionedImage {
	return s.current
}

func (s *VersionedSource) Version() int64 {
	return s.current.Version
}
