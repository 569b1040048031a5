// Package report renders convergence diagnostics for a consensus run.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/markup-consensus/internal/fsutil"
	"github.com/banshee-data/markup-consensus/internal/labelagg"
)

// Output file names inside the output directory.
const (
	LossPlotFile = "loss_history.png"
	SummaryFile  = "summary.html"

	echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"
)

// LabelCount is the number of subtasks that received a consensus label.
type LabelCount struct {
	Label string
	Count int
}

// LabelDistribution counts consensus labels, most frequent first. Equal
// counts are ordered by label.
func LabelDistribution(cs []labelagg.Consensus) []LabelCount {
	counts := make(map[string]int)
	for _, c := range cs {
		counts[c.Label]++
	}
	out := make([]LabelCount, 0, len(counts))
	for label, n := range counts {
		out = append(out, LabelCount{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// Summary describes one label aggregation run.
type Summary struct {
	RunID       string
	Aggregator  string
	Votes       int
	LossHistory []float64
	Labels      []LabelCount
}

// PlotLoss writes the evidence lower bound per iteration as a PNG. Runs
// without a loss history, such as majority vote, produce no file and a
// false result.
func PlotLoss(fsys fsutil.FileSystem, path string, history []float64) (bool, error) {
	if len(history) == 0 {
		return false, nil
	}

	p := plot.New()
	p.Title.Text = "Dawid-Skene ELBO"
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "ELBO per vote"

	pts := make(plotter.XYs, len(history))
	for i, v := range history {
		pts[i] = plotter.XY{X: float64(i + 1), Y: v}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return false, fmt.Errorf("failed to build loss line: %w", err)
	}
	line.Width = vg.Points(1)
	p.Add(line)

	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return false, fmt.Errorf("failed to render loss plot: %w", err)
	}
	err = fsutil.WriteTo(fsys, path, func(w io.Writer) error {
		_, err := wt.WriteTo(w)
		return err
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// WriteSummaryHTML renders the loss history and label distribution as an
// HTML page.
func WriteSummaryHTML(fsys fsutil.FileSystem, path string, s Summary) error {
	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.SetPageTitle("Consensus summary")

	if len(s.LossHistory) > 0 {
		x := make([]int, len(s.LossHistory))
		y := make([]opts.LineData, len(s.LossHistory))
		for i, v := range s.LossHistory {
			x[i] = i + 1
			y[i] = opts.LineData{Value: v}
		}

		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px", AssetsHost: echartsAssetsPrefix}),
			charts.WithTitleOpts(opts.Title{Title: "ELBO per iteration", Subtitle: fmt.Sprintf("run=%s aggregator=%s votes=%d", s.RunID, s.Aggregator, s.Votes)}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		)
		line.SetXAxis(x).AddSeries("elbo", y)
		page.AddCharts(line)
	}

	x := make([]string, len(s.Labels))
	y := make([]opts.BarData, len(s.Labels))
	for i, lc := range s.Labels {
		x[i] = lc.Label
		y[i] = opts.BarData{Value: lc.Count}
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Consensus labels", Subtitle: fmt.Sprintf("aggregator=%s", s.Aggregator)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("subtasks", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	page.AddCharts(bar)

	return fsutil.WriteTo(fsys, path, page.Render)
}
