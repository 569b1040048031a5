package markup

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Structure is the file naming convention of an image directory or export.
type Structure string

const (
	// Flat names join folders with underscores: "horse_001.jpg".
	Flat Structure = "flat"
	// Nested names keep folders as path segments: "horse/001.jpg".
	Nested Structure = "nested"
)

// ErrUnknownStructure is returned for conventions other than flat and nested.
var ErrUnknownStructure = errors.New("unknown path structure")

// ParseStructure validates a convention name.
func ParseStructure(s string) (Structure, error) {
	switch Structure(s) {
	case Flat, Nested:
		return Structure(s), nil
	}
	return "", fmt.Errorf("%w: %q (want %q or %q)", ErrUnknownStructure, s, Flat, Nested)
}

// Restructure converts name from one convention to the other by a one-to-one
// replace of the separator. The conversion is lossy when folder names or file
// names themselves contain an underscore.
func Restructure(name string, from, to Structure) string {
	if from == to {
		return name
	}
	if from == Nested {
		return strings.ReplaceAll(name, "/", "_")
	}
	return strings.ReplaceAll(name, "_", "/")
}

// Resolver maps export file names to image paths on disk.
type Resolver struct {
	ImagesDir       string
	ImagesStructure Structure
	MarkupStructure Structure
}

// Path returns the on-disk location of the image an export record refers to.
func (r Resolver) Path(fileName string) string {
	return filepath.Join(r.ImagesDir, Restructure(fileName, r.MarkupStructure, r.ImagesStructure))
}

// MarkupName converts an image-directory relative name into export form.
func (r Resolver) MarkupName(rel string) string {
	return Restructure(filepath.ToSlash(rel), r.ImagesStructure, r.MarkupStructure)
}
