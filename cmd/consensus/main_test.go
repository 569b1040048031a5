package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/markup-consensus/internal/markup"
	"github.com/banshee-data/markup-consensus/internal/monitoring"
	"github.com/banshee-data/markup-consensus/internal/pipeline"
	"github.com/banshee-data/markup-consensus/internal/store"
	"github.com/banshee-data/markup-consensus/internal/version"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

type cliEnv struct {
	dir    string
	images string
	export string
	flags  []string
}

func (e cliEnv) args(args ...string) []string {
	return append(append([]string{}, e.flags...), args...)
}

func (e cliEnv) path(parts ...string) string {
	return filepath.Join(append([]string{e.dir}, parts...)...)
}

func writeImage(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1000, 1000))
	for y := 0; y < 1000; y++ {
		for x := 0; x < 1000; x++ {
			img.Set(x, y, color.White)
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func setupCLITestEnv(t *testing.T) cliEnv {
	t.Helper()
	dir := t.TempDir()
	env := cliEnv{
		dir:    dir,
		images: filepath.Join(dir, "images"),
		export: filepath.Join(dir, "export.json"),
	}
	writeImage(t, filepath.Join(env.images, "a.png"))
	writeImage(t, filepath.Join(env.images, "b.png"))

	bbox := func(label string, x, y float64) markup.Mark {
		return markup.Mark{Type: "bbox", Label: label, Position: markup.Position{X: x, Y: y, Width: 60, Height: 60}}
	}
	rec := func(file, marker string, marks ...markup.Mark) markup.Sample {
		return markup.Sample{
			FileName: file,
			MarkerID: marker,
			Result:   &markup.Result{Marks: marks},
			Extra:    map[string]json.RawMessage{"item_id": json.RawMessage(`"` + file + marker + `"`)},
		}
	}
	samples := []markup.Sample{
		rec("a.png", "w1", bbox("horse", 100, 100), bbox("cow", 600, 600)),
		rec("a.png", "w2", bbox("horse", 101, 100), bbox("cow", 602, 601)),
		rec("a.png", "w3", bbox("cow", 99, 101), bbox("cow", 601, 600)),
		rec("b.png", "w1", bbox("cow", 300, 300)),
		rec("b.png", "w2", markup.Mark{Label: markup.LabelBadQuality}),
	}
	var buf bytes.Buffer
	require.NoError(t, markup.Encode(&buf, samples))
	require.NoError(t, os.WriteFile(env.export, buf.Bytes(), 0644))

	env.flags = []string{
		"--images", env.images,
		"--wrong-cases", env.path("wrong"),
		"--out", env.path("out"),
		"--db", env.path("runs.db"),
	}
	return env
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "version", "--config", "missing.json")
	require.NoError(t, err)
	assert.Equal(t, version.String()+"\n", out)
}

func TestRootShowsHelp(t *testing.T) {
	out, err := runCLI(t)
	require.NoError(t, err)
	assert.Contains(t, out, "boxes")
	assert.Contains(t, out, "labels")
}

func TestEndToEnd(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env.args("boxes", "--markup", env.export)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Inconsistent boxes")
	assert.Contains(t, out, env.path("out", pipeline.InstancesFile))
	assert.FileExists(t, env.path("out", pipeline.InstancesFile))
	assert.FileExists(t, env.path("wrong", "filtered_files.csv"))

	out, err = runCLI(t, env.args("labels",
		"--instances", env.path("out", pipeline.InstancesFile),
		"--aggregator", "majority_vote")...)
	require.NoError(t, err)
	assert.Contains(t, out, "majority_vote")
	assert.Contains(t, out, "cow")
	assert.FileExists(t, env.path("out", pipeline.ResultsFile))
	assert.FileExists(t, env.path("out", pipeline.PosteriorsFile))

	out, err = runCLI(t, env.args("export",
		"--results", env.path("out", pipeline.ResultsFile),
		"--markup", env.export)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 2 records")

	data, err := os.ReadFile(env.path("out", markup.ExportFileName))
	require.NoError(t, err)
	exported, err := markup.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, exported, 2)
	assert.Equal(t, "a.png", exported[0].FileName)
	assert.Len(t, exported[0].Result.Marks, 6)

	out, err = runCLI(t, env.args("runs")...)
	require.NoError(t, err)
	assert.Contains(t, out, "boxes")
	assert.Contains(t, out, "labels")
	assert.Contains(t, out, "majority_vote")
}

func TestLabelsDawidSkene(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := runCLI(t, env.args("boxes", "--markup", env.export)...)
	require.NoError(t, err)

	out, err := runCLI(t, env.args("labels", "--instances", env.path("out", pipeline.InstancesFile), "--n-iter", "5")...)
	require.NoError(t, err)
	assert.Contains(t, out, "dawid_skene")
	assert.FileExists(t, env.path("out", "loss_history.png"))
	assert.FileExists(t, env.path("out", "summary.html"))
}

func TestLabelsRejectsInvalidOverrides(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := runCLI(t, env.args("labels", "--instances", "x.csv", "--aggregator", "glad")...)
	assert.ErrorContains(t, err, "aggregator")
}

func TestConfigFile(t *testing.T) {
	env := setupCLITestEnv(t)
	cfgPath := env.path("pipeline.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"output_dir": "`+env.path("from-config")+`", "workers": 2}`), 0644))

	_, err := runCLI(t, "--config", cfgPath, "--images", env.images, "--wrong-cases", env.path("wrong"),
		"boxes", "--markup", env.export)
	require.NoError(t, err)
	assert.FileExists(t, env.path("from-config", pipeline.InstancesFile))

	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"bbox_relative_error": 2}`), 0644))
	_, err = runCLI(t, "--config", cfgPath, "boxes", "--markup", env.export)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestCheckCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env.args("check", "file-to-image", "--markup", env.export)...)
	require.NoError(t, err)
	assert.Equal(t, "file-to-image: ok\n", out)

	out, err = runCLI(t, env.args("check", "image-to-file", "--markup", env.export, "--pattern", "*.png")...)
	require.NoError(t, err)
	assert.Contains(t, out, "ok")

	out, err = runCLI(t, env.args("check", "unique", "--field", "file_name", "--markup", env.export)...)
	assert.ErrorIs(t, err, errCheckFailed)
	assert.Contains(t, out, "failures")
	assert.FileExists(t, env.path("wrong", "not_unique_file_name.txt"))

	_, err = runCLI(t, env.args("check", "unique", "--markup", env.export)...)
	assert.Error(t, err)
}

func TestDrawCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := runCLI(t, env.args("draw", "--markup", env.export, "--dump", env.path("dump"))...)
	require.NoError(t, err)
	assert.Contains(t, out, "Drew 5 images")
	assert.FileExists(t, env.path("dump", "a.png"))
}

func TestRunsWithoutDatabase(t *testing.T) {
	_, err := runCLI(t, "runs")
	assert.ErrorContains(t, err, "no run database")
}

func TestRunsShow(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := runCLI(t, env.args("boxes", "--markup", env.export)...)
	require.NoError(t, err)
	_, err = runCLI(t, env.args("labels", "--instances", env.path("out", pipeline.InstancesFile), "--n-iter", "5")...)
	require.NoError(t, err)

	s, err := store.Open(env.path("runs.db"))
	require.NoError(t, err)
	runs, err := s.ListRuns()
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.Len(t, runs, 2)
	byKind := map[string]store.RunSummary{}
	for _, r := range runs {
		byKind[r.Kind] = r
	}
	labels, boxes := byKind[store.KindLabels], byKind[store.KindBoxes]

	out, err := runCLI(t, env.args("runs", "--show", labels.ID)...)
	require.NoError(t, err)
	assert.Contains(t, out, labels.ID)
	assert.Contains(t, out, "dawid_skene")
	assert.Contains(t, out, "a.png_0")
	assert.Contains(t, out, "ELBO")
	assert.Regexp(t, regexp.MustCompile(`│\s+1\s+│\s+-?[0-9.e+-]+\s+│`), out)

	out, err = runCLI(t, env.args("runs", "--show", boxes.ID)...)
	require.NoError(t, err)
	assert.Contains(t, out, "boxes")
	assert.NotContains(t, out, "ELBO")

	_, err = runCLI(t, env.args("runs", "--show", "missing")...)
	assert.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestMigrateCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	version := func(out string) string {
		m := regexp.MustCompile(`Schema version\s+│\s+(\d+)`).FindStringSubmatch(out)
		require.Len(t, m, 2, out)
		return m[1]
	}

	out, err := runCLI(t, env.args("migrate", "status")...)
	require.NoError(t, err)
	assert.Equal(t, "0", version(out))

	out, err = runCLI(t, env.args("migrate", "up")...)
	require.NoError(t, err)
	assert.Equal(t, "1", version(out))

	_, err = runCLI(t, env.args("boxes", "--markup", env.export)...)
	require.NoError(t, err)

	out, err = runCLI(t, env.args("migrate", "down")...)
	require.NoError(t, err)
	assert.Equal(t, "0", version(out))

	// Opening the store for runs migrates it up again, empty.
	out, err = runCLI(t, env.args("runs")...)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded")
}
