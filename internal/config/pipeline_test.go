package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestEmptyConfigUsesDefaults(t *testing.T) {
	cfg := Empty()

	assert.Equal(t, "", cfg.GetImagesDir())
	assert.Equal(t, DefaultWrongCasesDir, cfg.GetWrongCasesDir())
	assert.Equal(t, DefaultOutputDir, cfg.GetOutputDir())
	assert.Equal(t, "nested", cfg.GetImagesDirStructure())
	assert.Equal(t, "nested", cfg.GetMarkupStructure())
	assert.Equal(t, 0.005, cfg.GetBboxMinimalRelativeSize())
	assert.Equal(t, 0.01, cfg.GetBboxRelativeError())
	assert.Equal(t, 4, cfg.GetWorkers())
	assert.False(t, cfg.GetCorrectImageAxes())
	assert.False(t, cfg.GetLegacyInconsistentLog())
	assert.Equal(t, "dawid_skene", cfg.GetAggregator())
	assert.Equal(t, 100, cfg.GetNIter())
	assert.Equal(t, 1e-5, cfg.GetTol())
	assert.Equal(t, "", cfg.GetDatabasePath())
	assert.NoError(t, cfg.Validate())
}

func TestDefaultsMatchGetters(t *testing.T) {
	d := Defaults()
	e := Empty()
	require.NoError(t, d.Validate())

	assert.Equal(t, e.GetWrongCasesDir(), *d.WrongCasesDir)
	assert.Equal(t, e.GetBboxMinimalRelativeSize(), *d.BboxMinimalRelativeSize)
	assert.Equal(t, e.GetBboxRelativeError(), *d.BboxRelativeError)
	assert.Equal(t, e.GetAggregator(), *d.Aggregator)
	assert.Equal(t, e.GetNIter(), *d.NIter)
	assert.Equal(t, e.GetTol(), *d.Tol)
	assert.Equal(t, e.GetWorkers(), *d.Workers)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "pipeline.json", `{
  "images_dir": "horse",
  "wrong_cases_dir": "tmp",
  "images_dir_structure": "flat",
  "bbox_relative_error": 0.02,
  "aggregator": "majority_vote",
  "legacy_inconsistent_log": true
}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "horse", cfg.GetImagesDir())
	assert.Equal(t, "tmp", cfg.GetWrongCasesDir())
	assert.Equal(t, "flat", cfg.GetImagesDirStructure())
	assert.Equal(t, "nested", cfg.GetMarkupStructure())
	assert.Equal(t, 0.02, cfg.GetBboxRelativeError())
	assert.Equal(t, 0.005, cfg.GetBboxMinimalRelativeSize())
	assert.Equal(t, "majority_vote", cfg.GetAggregator())
	assert.True(t, cfg.GetLegacyInconsistentLog())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"extension", "pipeline.yaml", `{}`, ".json extension"},
		{"syntax", "pipeline.json", `{"n_iter": }`, "parse config JSON"},
		{"structure", "pipeline.json", `{"markup_structure": "tree"}`, "markup_structure"},
		{"fraction", "pipeline.json", `{"bbox_minimal_relative_size": 1.5}`, "bbox_minimal_relative_size"},
		{"relative error", "pipeline.json", `{"bbox_relative_error": -0.1}`, "bbox_relative_error"},
		{"aggregator", "pipeline.json", `{"aggregator": "glad"}`, "aggregator"},
		{"n_iter", "pipeline.json", `{"n_iter": 0}`, "n_iter"},
		{"tol", "pipeline.json", `{"tol": -1}`, "tol"},
		{"workers", "pipeline.json", `{"workers": 0}`, "workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stat")
}

func TestLoad_TooLarge(t *testing.T) {
	body := `{"images_dir": "` + strings.Repeat("a", maxFileSize) + `"}`
	_, err := Load(writeConfig(t, "big.json", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestMerge(t *testing.T) {
	cfg := Defaults()
	override := &PipelineConfig{
		ImagesDir:        ptrString("cats"),
		NIter:            ptrInt(5),
		CorrectImageAxes: ptrBool(true),
	}
	cfg.Merge(override)
	cfg.Merge(nil)

	assert.Equal(t, "cats", cfg.GetImagesDir())
	assert.Equal(t, 5, cfg.GetNIter())
	assert.True(t, cfg.GetCorrectImageAxes())
	assert.Equal(t, DefaultTol, cfg.GetTol())

	// The merged values do not alias the source.
	*override.NIter = 9
	assert.Equal(t, 5, cfg.GetNIter())
}
