package report

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/markup-consensus/internal/fsutil"
	"github.com/banshee-data/markup-consensus/internal/labelagg"
)

func TestLabelDistribution(t *testing.T) {
	got := LabelDistribution([]labelagg.Consensus{
		{Subtask: "a_0", Label: "horse"},
		{Subtask: "a_1", Label: "cow"},
		{Subtask: "b_0", Label: "horse"},
		{Subtask: "b_1", Label: "pony"},
	})
	assert.Equal(t, []LabelCount{{"horse", 2}, {"cow", 1}, {"pony", 1}}, got)
	assert.Empty(t, LabelDistribution(nil))
}

func TestPlotLoss(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()

	wrote, err := PlotLoss(fsys, "out/"+LossPlotFile, []float64{-1.2, -0.8, -0.79})
	require.NoError(t, err)
	assert.True(t, wrote)

	data, err := fsys.ReadFile("out/" + LossPlotFile)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 0)
}

func TestPlotLoss_EmptyHistory(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	wrote, err := PlotLoss(fsys, "out/"+LossPlotFile, nil)
	require.NoError(t, err)
	assert.False(t, wrote)
	assert.False(t, fsys.Exists("out/"+LossPlotFile))
}

func TestWriteSummaryHTML(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	err := WriteSummaryHTML(fsys, "out/"+SummaryFile, Summary{
		RunID:       "run-1",
		Aggregator:  labelagg.NameDawidSkene,
		Votes:       12,
		LossHistory: []float64{-1, -0.5},
		Labels:      []LabelCount{{"horse", 3}},
	})
	require.NoError(t, err)

	data, err := fsys.ReadFile("out/" + SummaryFile)
	require.NoError(t, err)
	html := string(data)
	assert.Contains(t, html, "Consensus summary")
	assert.Contains(t, html, "ELBO per iteration")
	assert.Contains(t, html, "horse")
	assert.Contains(t, html, echartsAssetsPrefix)
}

func TestWriteSummaryHTML_MajorityVoteHasNoLossChart(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, WriteSummaryHTML(fsys, "out/"+SummaryFile, Summary{Aggregator: labelagg.NameMajorityVote}))

	data, err := fsys.ReadFile("out/" + SummaryFile)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "ELBO per iteration"))
	assert.Contains(t, string(data), "Consensus labels")
}
