// Package checks verifies that an annotation export and the downloaded
// images agree with each other.
package checks

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/banshee-data/markup-consensus/internal/fsutil"
	"github.com/banshee-data/markup-consensus/internal/markup"
)

// Report file names inside the wrong-cases directory.
const (
	FileToImageReport = "file_to_image.txt"
	ImageToFileReport = "image_to_file.txt"

	// DefaultImagePattern matches the image files ImageToFile looks for.
	DefaultImagePattern = "*.JPG"
)

// UniqueFields lists the record fields UniqueField accepts.
var UniqueFields = []string{"file_name", "marker_id", "item_id"}

// Result is the outcome of one check. Path names the failure report and is
// empty when the check passed.
type Result struct {
	Check    string
	OK       bool
	Failures []string
	Path     string
}

func (r Result) String() string {
	if r.OK {
		return fmt.Sprintf("%s: ok", r.Check)
	}
	return fmt.Sprintf("%s: %d failures, see %s", r.Check, len(r.Failures), r.Path)
}

// Checker runs checks against one images directory.
type Checker struct {
	Resolver      markup.Resolver
	WrongCasesDir string

	// Images is the images directory. Defaults to os.DirFS(Resolver.ImagesDir).
	Images fs.FS
	// FS receives failure reports. Defaults to the OS filesystem.
	FS fsutil.FileSystem
	// Pattern selects image files by base name. Defaults to DefaultImagePattern.
	Pattern string
}

func (c *Checker) images() fs.FS {
	if c.Images != nil {
		return c.Images
	}
	return os.DirFS(c.Resolver.ImagesDir)
}

func (c *Checker) fsys() fsutil.FileSystem {
	if c.FS != nil {
		return c.FS
	}
	return fsutil.OSFileSystem{}
}

// FileToImage reports every export record whose image is missing.
func (c *Checker) FileToImage(samples []markup.Sample) (Result, error) {
	images := c.images()
	var missing []string
	for _, s := range samples {
		name := markup.Restructure(s.FileName, c.Resolver.MarkupStructure, c.Resolver.ImagesStructure)
		if !fs.ValidPath(name) {
			missing = append(missing, name)
			continue
		}
		if _, err := fs.Stat(images, name); err != nil {
			missing = append(missing, name)
		}
	}
	return c.finish("file-to-image", FileToImageReport, missing)
}

// ImageToFile reports every image under the images directory that no
// export record refers to. Image paths are taken relative to the images
// directory and converted to the export's naming convention.
func (c *Checker) ImageToFile(samples []markup.Sample) (Result, error) {
	pattern := c.Pattern
	if pattern == "" {
		pattern = DefaultImagePattern
	}

	known := make(map[string]bool, len(samples))
	for _, s := range samples {
		known[s.FileName] = true
	}

	var missing []string
	err := fs.WalkDir(c.images(), ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ok, _ := path.Match(pattern, d.Name()); !ok {
			return nil
		}
		name := c.Resolver.MarkupName(p)
		if !known[name] {
			missing = append(missing, name)
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to walk images: %w", err)
	}
	return c.finish("image-to-file", ImageToFileReport, missing)
}

// UniqueField reports every repeated value of field across the export.
// The first occurrence of a value is not reported.
func (c *Checker) UniqueField(samples []markup.Sample, field string) (Result, error) {
	valid := false
	for _, f := range UniqueFields {
		valid = valid || f == field
	}
	if !valid {
		return Result{}, fmt.Errorf("unknown field %q (want one of %s)", field, strings.Join(UniqueFields, ", "))
	}

	seen := make(map[string]bool)
	var dups []string
	for _, s := range samples {
		v, ok := fieldValue(s, field)
		if !ok {
			continue
		}
		if seen[v] {
			dups = append(dups, v)
			continue
		}
		seen[v] = true
	}
	return c.finish("unique "+field, "not_unique_"+field+".txt", dups)
}

func fieldValue(s markup.Sample, field string) (string, bool) {
	switch field {
	case "file_name":
		return s.FileName, true
	case "marker_id":
		return s.MarkerID, true
	}
	raw, ok := s.Extra[field]
	if !ok {
		return "", false
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, true
	}
	return strings.TrimSpace(string(raw)), true
}

// finish writes failures one per line, or nothing when there are none.
func (c *Checker) finish(check, report string, failures []string) (Result, error) {
	res := Result{Check: check, OK: len(failures) == 0, Failures: failures}
	if res.OK {
		return res, nil
	}

	fsys := c.fsys()
	if err := fsutil.EnsureDir(fsys, c.WrongCasesDir); err != nil {
		return Result{}, err
	}
	res.Path = filepath.Join(c.WrongCasesDir, report)
	err := fsutil.WriteTo(fsys, res.Path, func(w io.Writer) error {
		for _, f := range failures {
			if _, err := io.WriteString(w, f+"\n"); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}
