// Package security guards file names taken from annotation exports before
// they are used as output paths.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateRelativeName rejects names that are absolute or that climb out of
// the directory they are joined to. Names use forward slashes.
func ValidateRelativeName(name string) error {
	if name == "" {
		return fmt.Errorf("empty file name")
	}
	native := filepath.FromSlash(name)
	if filepath.IsAbs(native) || strings.HasPrefix(name, "/") {
		return fmt.Errorf("absolute file name %q", name)
	}

	clean := filepath.Clean(native)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path traversal detected: %s escapes its directory", name)
	}
	return nil
}

// JoinWithin joins name onto dir after validating it.
func JoinWithin(dir, name string) (string, error) {
	if err := ValidateRelativeName(name); err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.FromSlash(name)), nil
}
