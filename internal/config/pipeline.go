package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Defaults applied when a field is omitted.
const (
	DefaultStructure           = "nested"
	DefaultMinimalRelativeSize = 0.005
	DefaultRelativeError       = 0.01
	DefaultAggregator          = "dawid_skene"
	DefaultNIter               = 100
	DefaultTol                 = 1e-5
	DefaultWorkers             = 4
	DefaultWrongCasesDir       = "wrong_cases"
	DefaultOutputDir           = "output"

	maxFileSize = 1 * 1024 * 1024 // 1MB
)

// PipelineConfig holds every setting of a consensus run. Fields are
// pointers so a partial file leaves the rest at their defaults; use the
// Get* accessors to read values.
type PipelineConfig struct {
	// Directories
	ImagesDir     *string `json:"images_dir,omitempty"`
	WrongCasesDir *string `json:"wrong_cases_dir,omitempty"`
	OutputDir     *string `json:"output_dir,omitempty"`

	// Path conventions: "flat" or "nested"
	ImagesDirStructure *string `json:"images_dir_structure,omitempty"`
	MarkupStructure    *string `json:"markup_structure,omitempty"`

	// Box aggregation
	BboxMinimalRelativeSize *float64 `json:"bbox_minimal_relative_size,omitempty"`
	BboxRelativeError       *float64 `json:"bbox_relative_error,omitempty"`
	Workers                 *int     `json:"workers,omitempty"`
	CorrectImageAxes        *bool    `json:"correct_image_axes,omitempty"`
	LegacyInconsistentLog   *bool    `json:"legacy_inconsistent_log,omitempty"`

	// Label aggregation
	Aggregator *string  `json:"aggregator,omitempty"`
	NIter      *int     `json:"n_iter,omitempty"`
	Tol        *float64 `json:"tol,omitempty"`

	// Optional run store
	DatabasePath *string `json:"database_path,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// Empty returns a PipelineConfig with every field unset.
func Empty() *PipelineConfig {
	return &PipelineConfig{}
}

// Defaults returns a PipelineConfig with every defaulted field set
// explicitly. Directories without a default stay unset.
func Defaults() *PipelineConfig {
	return &PipelineConfig{
		WrongCasesDir:           ptrString(DefaultWrongCasesDir),
		OutputDir:               ptrString(DefaultOutputDir),
		ImagesDirStructure:      ptrString(DefaultStructure),
		MarkupStructure:         ptrString(DefaultStructure),
		BboxMinimalRelativeSize: ptrFloat64(DefaultMinimalRelativeSize),
		BboxRelativeError:       ptrFloat64(DefaultRelativeError),
		Workers:                 ptrInt(DefaultWorkers),
		CorrectImageAxes:        ptrBool(false),
		LegacyInconsistentLog:   ptrBool(false),
		Aggregator:              ptrString(DefaultAggregator),
		NIter:                   ptrInt(DefaultNIter),
		Tol:                     ptrFloat64(DefaultTol),
	}
}

// Load reads a PipelineConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file keep their defaults.
func Load(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configured values are usable.
func (c *PipelineConfig) Validate() error {
	for name, v := range map[string]*string{
		"images_dir_structure": c.ImagesDirStructure,
		"markup_structure":     c.MarkupStructure,
	} {
		if v != nil && *v != "flat" && *v != "nested" {
			return fmt.Errorf("%s must be \"flat\" or \"nested\", got %q", name, *v)
		}
	}

	if c.BboxMinimalRelativeSize != nil {
		if v := *c.BboxMinimalRelativeSize; v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("bbox_minimal_relative_size must be between 0 and 1, got %f", v)
		}
	}
	if c.BboxRelativeError != nil {
		if v := *c.BboxRelativeError; v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("bbox_relative_error must be between 0 and 1, got %f", v)
		}
	}

	if c.Workers != nil && *c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", *c.Workers)
	}

	if c.Aggregator != nil && *c.Aggregator != "majority_vote" && *c.Aggregator != "dawid_skene" {
		return fmt.Errorf("aggregator must be \"majority_vote\" or \"dawid_skene\", got %q", *c.Aggregator)
	}
	if c.NIter != nil && *c.NIter <= 0 {
		return fmt.Errorf("n_iter must be positive, got %d", *c.NIter)
	}
	if c.Tol != nil && (*c.Tol < 0 || math.IsNaN(*c.Tol)) {
		return fmt.Errorf("tol must be non-negative, got %g", *c.Tol)
	}

	return nil
}

// Merge copies every field set in other over c.
func (c *PipelineConfig) Merge(other *PipelineConfig) {
	if other == nil {
		return
	}
	mergeString(&c.ImagesDir, other.ImagesDir)
	mergeString(&c.WrongCasesDir, other.WrongCasesDir)
	mergeString(&c.OutputDir, other.OutputDir)
	mergeString(&c.ImagesDirStructure, other.ImagesDirStructure)
	mergeString(&c.MarkupStructure, other.MarkupStructure)
	mergeString(&c.Aggregator, other.Aggregator)
	mergeString(&c.DatabasePath, other.DatabasePath)
	if other.BboxMinimalRelativeSize != nil {
		c.BboxMinimalRelativeSize = ptrFloat64(*other.BboxMinimalRelativeSize)
	}
	if other.BboxRelativeError != nil {
		c.BboxRelativeError = ptrFloat64(*other.BboxRelativeError)
	}
	if other.Tol != nil {
		c.Tol = ptrFloat64(*other.Tol)
	}
	if other.Workers != nil {
		c.Workers = ptrInt(*other.Workers)
	}
	if other.NIter != nil {
		c.NIter = ptrInt(*other.NIter)
	}
	if other.CorrectImageAxes != nil {
		c.CorrectImageAxes = ptrBool(*other.CorrectImageAxes)
	}
	if other.LegacyInconsistentLog != nil {
		c.LegacyInconsistentLog = ptrBool(*other.LegacyInconsistentLog)
	}
}

func mergeString(dst **string, src *string) {
	if src != nil {
		*dst = ptrString(*src)
	}
}

func stringOr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

// GetImagesDir returns the images directory, or "" if unset.
func (c *PipelineConfig) GetImagesDir() string { return stringOr(c.ImagesDir, "") }

// GetWrongCasesDir returns the rejection log directory or the default.
func (c *PipelineConfig) GetWrongCasesDir() string {
	return stringOr(c.WrongCasesDir, DefaultWrongCasesDir)
}

// GetOutputDir returns the output directory or the default.
func (c *PipelineConfig) GetOutputDir() string { return stringOr(c.OutputDir, DefaultOutputDir) }

// GetImagesDirStructure returns the images path convention or the default.
func (c *PipelineConfig) GetImagesDirStructure() string {
	return stringOr(c.ImagesDirStructure, DefaultStructure)
}

// GetMarkupStructure returns the export path convention or the default.
func (c *PipelineConfig) GetMarkupStructure() string {
	return stringOr(c.MarkupStructure, DefaultStructure)
}

// GetBboxMinimalRelativeSize returns the size threshold or the default.
func (c *PipelineConfig) GetBboxMinimalRelativeSize() float64 {
	if c.BboxMinimalRelativeSize == nil {
		return DefaultMinimalRelativeSize
	}
	return *c.BboxMinimalRelativeSize
}

// GetBboxRelativeError returns the clustering error fraction or the default.
func (c *PipelineConfig) GetBboxRelativeError() float64 {
	if c.BboxRelativeError == nil {
		return DefaultRelativeError
	}
	return *c.BboxRelativeError
}

// GetWorkers returns the image-loading pool size or the default.
func (c *PipelineConfig) GetWorkers() int {
	if c.Workers == nil {
		return DefaultWorkers
	}
	return *c.Workers
}

// GetCorrectImageAxes returns correct_image_axes, false by default.
func (c *PipelineConfig) GetCorrectImageAxes() bool {
	return c.CorrectImageAxes != nil && *c.CorrectImageAxes
}

// GetLegacyInconsistentLog returns legacy_inconsistent_log, false by default.
func (c *PipelineConfig) GetLegacyInconsistentLog() bool {
	return c.LegacyInconsistentLog != nil && *c.LegacyInconsistentLog
}

// GetAggregator returns the label aggregator name or the default.
func (c *PipelineConfig) GetAggregator() string { return stringOr(c.Aggregator, DefaultAggregator) }

// GetNIter returns the EM iteration cap or the default.
func (c *PipelineConfig) GetNIter() int {
	if c.NIter == nil {
		return DefaultNIter
	}
	return *c.NIter
}

// GetTol returns the EM tolerance or the default.
func (c *PipelineConfig) GetTol() float64 {
	if c.Tol == nil {
		return DefaultTol
	}
	return *c.Tol
}

// GetDatabasePath returns the run store path, or "" when runs are not
// recorded.
func (c *PipelineConfig) GetDatabasePath() string { return stringOr(c.DatabasePath, "") }
