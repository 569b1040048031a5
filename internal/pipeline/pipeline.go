// Package pipeline wires the aggregation stages to their input and output
// files. Each Runner method is one CLI operation.
package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/banshee-data/markup-consensus/internal/boxagg"
	"github.com/banshee-data/markup-consensus/internal/checks"
	"github.com/banshee-data/markup-consensus/internal/config"
	"github.com/banshee-data/markup-consensus/internal/draw"
	"github.com/banshee-data/markup-consensus/internal/fsutil"
	"github.com/banshee-data/markup-consensus/internal/imagestore"
	"github.com/banshee-data/markup-consensus/internal/labelagg"
	"github.com/banshee-data/markup-consensus/internal/markup"
	"github.com/banshee-data/markup-consensus/internal/monitoring"
	"github.com/banshee-data/markup-consensus/internal/report"
	"github.com/banshee-data/markup-consensus/internal/store"
	"github.com/banshee-data/markup-consensus/internal/table"
)

// Output file names inside the output directory.
const (
	InstancesFile  = "instances.csv"
	ResultsFile    = "aggregated_results.csv"
	PosteriorsFile = "posteriors.csv"
)

// Runner executes pipeline operations under one configuration.
type Runner struct {
	Config *config.PipelineConfig

	// FS receives every output file. Defaults to the OS filesystem.
	FS fsutil.FileSystem
	// Loader overrides the image dimension loader of the box aggregator.
	Loader imagestore.DimensionLoader
	// Store records runs when set.
	Store *store.Store
}

func (r *Runner) fsys() fsutil.FileSystem {
	if r.FS != nil {
		return r.FS
	}
	return fsutil.OSFileSystem{}
}

func (r *Runner) structures() (markup.Structure, markup.Structure, error) {
	images, err := markup.ParseStructure(r.Config.GetImagesDirStructure())
	if err != nil {
		return "", "", fmt.Errorf("images structure: %w", err)
	}
	mk, err := markup.ParseStructure(r.Config.GetMarkupStructure())
	if err != nil {
		return "", "", fmt.Errorf("markup structure: %w", err)
	}
	return images, mk, nil
}

func (r *Runner) resolver() (markup.Resolver, error) {
	images, mk, err := r.structures()
	if err != nil {
		return markup.Resolver{}, err
	}
	return markup.Resolver{
		ImagesDir:       r.Config.GetImagesDir(),
		ImagesStructure: images,
		MarkupStructure: mk,
	}, nil
}

func (r *Runner) output(name string) string {
	return filepath.Join(r.Config.GetOutputDir(), name)
}

// BoxesResult summarises a box aggregation run.
type BoxesResult struct {
	RunID     string
	Samples   int
	Instances []table.InstanceRow
	Logs      boxagg.Logs
	Path      string
}

// Subtasks counts the distinct instances found.
func (b *BoxesResult) Subtasks() int {
	seen := make(map[string]bool)
	for _, row := range b.Instances {
		seen[row.Subtask] = true
	}
	return len(seen)
}

// Boxes runs the box aggregator over the export at markupPath and writes the
// instance table and the rejection logs.
func (r *Runner) Boxes(markupPath string) (*BoxesResult, error) {
	samples, err := markup.Load(markupPath)
	if err != nil {
		return nil, err
	}
	images, mk, err := r.structures()
	if err != nil {
		return nil, err
	}

	agg, err := boxagg.New(boxagg.Options{
		ImagesDir:             r.Config.GetImagesDir(),
		WrongCasesDir:         r.Config.GetWrongCasesDir(),
		ImagesStructure:       images,
		MarkupStructure:       mk,
		Loader:                r.Loader,
		FS:                    r.fsys(),
		Workers:               r.Config.GetWorkers(),
		CorrectImageAxes:      r.Config.GetCorrectImageAxes(),
		LegacyInconsistentLog: r.Config.GetLegacyInconsistentLog(),
	})
	if err != nil {
		return nil, err
	}

	res, err := agg.Aggregate(samples, r.Config.GetBboxMinimalRelativeSize(), r.Config.GetBboxRelativeError())
	if err != nil {
		return nil, err
	}

	out := &BoxesResult{
		Samples:   len(samples),
		Instances: res.Instances,
		Logs:      res.Logs,
		Path:      r.output(InstancesFile),
	}
	err = fsutil.WriteTo(r.fsys(), out.Path, func(w io.Writer) error {
		return table.WriteInstances(w, res.Instances)
	})
	if err != nil {
		return nil, err
	}

	if r.Store != nil {
		run, err := r.Store.SaveBoxesRun(r.Config, res.Instances)
		if err != nil {
			return nil, err
		}
		out.RunID = run.ID
	}

	monitoring.Logf("boxes: %d samples -> %d instances, written to %s", out.Samples, out.Subtasks(), out.Path)
	return out, nil
}

// LabelsResult summarises a label aggregation run.
type LabelsResult struct {
	RunID      string
	Aggregator string
	Votes      int
	Fit        *labelagg.FitResult
	Rows       []table.ConsensusRow
	Labels     []report.LabelCount

	ResultsPath    string
	PosteriorsPath string
	// PlotPath and SummaryPath are empty when no report was written.
	PlotPath    string
	SummaryPath string
}

// Labels fits the configured label aggregator to the instance table at
// instancesPath and writes the consensus table, the posteriors and, for
// iterative aggregators, the convergence report.
func (r *Runner) Labels(instancesPath string) (*LabelsResult, error) {
	rows, err := readInstances(instancesPath)
	if err != nil {
		return nil, err
	}
	if err := table.Validate(rows); err != nil {
		return nil, fmt.Errorf("invalid instance table: %w", err)
	}

	name := r.Config.GetAggregator()
	agg, err := labelagg.New(name, r.Config.GetNIter(), r.Config.GetTol())
	if err != nil {
		return nil, err
	}
	votes := table.Votes(rows)
	fit, err := agg.Fit(votes)
	if err != nil {
		return nil, err
	}
	cs := fit.Consensus()

	out := &LabelsResult{
		Aggregator:     name,
		Votes:          len(votes),
		Fit:            fit,
		Rows:           table.Merge(rows, labelagg.LabelMap(cs)),
		Labels:         report.LabelDistribution(cs),
		ResultsPath:    r.output(ResultsFile),
		PosteriorsPath: r.output(PosteriorsFile),
	}

	fsys := r.fsys()
	err = fsutil.WriteTo(fsys, out.ResultsPath, func(w io.Writer) error {
		return table.WriteConsensus(w, out.Rows)
	})
	if err != nil {
		return nil, err
	}
	err = fsutil.WriteTo(fsys, out.PosteriorsPath, func(w io.Writer) error {
		return labelagg.WriteProba(w, fit.Proba)
	})
	if err != nil {
		return nil, err
	}

	if r.Store != nil {
		run, err := r.Store.SaveLabelsRun(name, r.Config, cs, fit.Proba, fit.LossHistory)
		if err != nil {
			return nil, err
		}
		out.RunID = run.ID
	}

	plotted, err := report.PlotLoss(fsys, r.output(report.LossPlotFile), fit.LossHistory)
	if err != nil {
		return nil, err
	}
	if plotted {
		out.PlotPath = r.output(report.LossPlotFile)
		out.SummaryPath = r.output(report.SummaryFile)
		err = report.WriteSummaryHTML(fsys, out.SummaryPath, report.Summary{
			RunID:       out.RunID,
			Aggregator:  name,
			Votes:       out.Votes,
			LossHistory: fit.LossHistory,
			Labels:      out.Labels,
		})
		if err != nil {
			return nil, err
		}
	}

	monitoring.Logf("labels: %s over %d votes -> %d subtasks, written to %s", name, out.Votes, len(cs), out.ResultsPath)
	return out, nil
}

func readInstances(path string) ([]table.InstanceRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open instance table: %w", err)
	}
	defer f.Close()

	rows, err := table.ReadInstances(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rows, nil
}

// Export converts the consensus table at resultsPath back into the
// annotation export format, using the export at markupPath for the
// non-result fields. It returns the written file's path and record count.
func (r *Runner) Export(resultsPath, markupPath string) (string, int, error) {
	f, err := os.Open(resultsPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open consensus table: %w", err)
	}
	defer f.Close()

	rows, err := table.ReadConsensus(f)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read %s: %w", resultsPath, err)
	}
	original, err := markup.Load(markupPath)
	if err != nil {
		return "", 0, err
	}

	samples, err := markup.ToExport(rows, original)
	if err != nil {
		return "", 0, err
	}

	path := r.output(markup.ExportFileName)
	err = fsutil.WriteTo(r.fsys(), path, func(w io.Writer) error {
		return markup.Encode(w, samples)
	})
	if err != nil {
		return "", 0, err
	}
	monitoring.Logf("export: %d records written to %s", len(samples), path)
	return path, len(samples), nil
}

// Draw renders the marks of the export at markupPath onto their images
// under dumpDir.
func (r *Runner) Draw(markupPath, dumpDir string) (int, error) {
	samples, err := markup.Load(markupPath)
	if err != nil {
		return 0, err
	}
	res, err := r.resolver()
	if err != nil {
		return 0, err
	}
	d := &draw.Drawer{Resolver: res, DumpDir: dumpDir, FS: r.fsys()}
	return d.Markup(samples)
}

// Checker returns a consistency checker over the configured images
// directory.
func (r *Runner) Checker() (*checks.Checker, error) {
	res, err := r.resolver()
	if err != nil {
		return nil, err
	}
	if res.ImagesDir == "" {
		return nil, fmt.Errorf("images directory is not configured")
	}
	return &checks.Checker{
		Resolver:      res,
		WrongCasesDir: r.Config.GetWrongCasesDir(),
		FS:            r.fsys(),
	}, nil
}
