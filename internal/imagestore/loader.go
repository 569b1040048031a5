// Package imagestore reads pixel dimensions of the already-downloaded images
// referenced by an annotation export.
package imagestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/disintegration/imaging"
)

// ErrImageNotFound is returned when the export references an image that is
// not present in the image directory, usually because the path-structure
// flags do not match the data on disk.
var ErrImageNotFound = errors.New("image file not found")

// Dimensions is the pixel size of an image.
type Dimensions struct {
	Width  int
	Height int
}

// DimensionLoader returns the pixel dimensions of the image at path.
type DimensionLoader interface {
	Dimensions(path string) (Dimensions, error)
}

// Loader decodes images from disk and caches their dimensions, so an image
// referenced by several workers and stages is decoded once.
//
// Loader is safe for concurrent use.
type Loader struct {
	mu    sync.RWMutex
	cache map[string]Dimensions
}

// NewLoader creates an empty loader.
func NewLoader() *Loader {
	return &Loader{cache: make(map[string]Dimensions)}
}

// Dimensions returns the cached dimensions of path, decoding it on first use.
func (l *Loader) Dimensions(path string) (Dimensions, error) {
	l.mu.RLock()
	if d, ok := l.cache[path]; ok {
		l.mu.RUnlock()
		return d, nil
	}
	l.mu.RUnlock()

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Dimensions{}, fmt.Errorf("%w: %s: %w", ErrImageNotFound, path, err)
		}
		return Dimensions{}, fmt.Errorf("failed to stat image: %w", err)
	}

	img, err := imaging.Open(path)
	if err != nil {
		return Dimensions{}, fmt.Errorf("failed to decode image %s: %w", path, err)
	}

	bounds := img.Bounds()
	d := Dimensions{Width: bounds.Dx(), Height: bounds.Dy()}

	l.mu.Lock()
	l.cache[path] = d
	l.mu.Unlock()

	return d, nil
}

// Len reports the number of cached images.
func (l *Loader) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.cache)
}

// Static is a fixed DimensionLoader keyed by path, for callers that already
// know the image sizes.
type Static map[string]Dimensions

// Dimensions returns the registered dimensions or ErrImageNotFound.
func (s Static) Dimensions(path string) (Dimensions, error) {
	d, ok := s[path]
	if !ok {
		return Dimensions{}, fmt.Errorf("%w: %s", ErrImageNotFound, path)
	}
	return d, nil
}
