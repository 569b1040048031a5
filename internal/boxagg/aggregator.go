package boxagg

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/markup-consensus/internal/cluster"
	"github.com/banshee-data/markup-consensus/internal/fsutil"
	"github.com/banshee-data/markup-consensus/internal/imagestore"
	"github.com/banshee-data/markup-consensus/internal/markup"
	"github.com/banshee-data/markup-consensus/internal/table"
)

// Default aggregation parameters.
const (
	DefaultMinimalRelativeSize = 0.005
	DefaultRelativeError       = 0.01
	DefaultWorkers             = 4
)

// Options configures an Aggregator.
type Options struct {
	// ImagesDir holds the downloaded images referenced by the export.
	ImagesDir string
	// WrongCasesDir receives the rejection logs.
	WrongCasesDir string

	ImagesStructure markup.Structure
	MarkupStructure markup.Structure

	// Loader reads image dimensions. Defaults to a caching disk loader.
	Loader imagestore.DimensionLoader
	// FS receives the rejection logs. Defaults to the OS filesystem.
	FS fsutil.FileSystem
	// Cluster groups box centres. Defaults to cluster.MeanShift.
	Cluster cluster.Func
	// Workers bounds concurrent per-image work. Defaults to DefaultWorkers.
	Workers int

	// CorrectImageAxes compares box width with image width. When false the
	// image's row count is used as its width, matching previously exported
	// data.
	CorrectImageAxes bool
	// LegacyInconsistentLog reproduces the old per-cluster logging of the
	// consistency step, where a box is logged once for every higher-ranked
	// cluster checked before its own.
	LegacyInconsistentLog bool
}

// Aggregator resolves per-worker boxes into object instances.
type Aggregator struct {
	opts     Options
	resolver markup.Resolver
}

// New validates opts and returns an Aggregator.
func New(opts Options) (*Aggregator, error) {
	if opts.ImagesDir == "" {
		return nil, fmt.Errorf("images directory is required")
	}
	if opts.WrongCasesDir == "" {
		return nil, fmt.Errorf("wrong cases directory is required")
	}
	if opts.ImagesStructure == "" {
		opts.ImagesStructure = markup.Nested
	}
	if opts.MarkupStructure == "" {
		opts.MarkupStructure = markup.Nested
	}
	for _, s := range []markup.Structure{opts.ImagesStructure, opts.MarkupStructure} {
		if _, err := markup.ParseStructure(string(s)); err != nil {
			return nil, err
		}
	}
	if opts.Loader == nil {
		opts.Loader = imagestore.NewLoader()
	}
	if opts.FS == nil {
		opts.FS = fsutil.OSFileSystem{}
	}
	if opts.Cluster == nil {
		opts.Cluster = cluster.MeanShift
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}

	return &Aggregator{
		opts: opts,
		resolver: markup.Resolver{
			ImagesDir:       opts.ImagesDir,
			ImagesStructure: opts.ImagesStructure,
			MarkupStructure: opts.MarkupStructure,
		},
	}, nil
}

// Result is the outcome of a full aggregation run.
type Result struct {
	Instances []table.InstanceRow
	Logs      Logs
}

// Aggregate runs the label filter, size filter and consistency clustering
// over samples, then writes the three rejection logs. Nothing is written if
// any stage fails.
func (a *Aggregator) Aggregate(samples []markup.Sample, minimalRelativeSize, relativeError float64) (*Result, error) {
	res, err := a.Run(samples, minimalRelativeSize, relativeError)
	if err != nil {
		return nil, err
	}
	if err := res.Logs.Write(a.opts.FS, a.opts.WrongCasesDir); err != nil {
		return nil, err
	}
	return res, nil
}

// Run executes the three stages without touching the filesystem.
func (a *Aggregator) Run(samples []markup.Sample, minimalRelativeSize, relativeError float64) (*Result, error) {
	if minimalRelativeSize < 0 || minimalRelativeSize > 1 {
		return nil, fmt.Errorf("minimal relative size must be between 0 and 1, got %g", minimalRelativeSize)
	}
	if relativeError < 0 || relativeError > 1 {
		return nil, fmt.Errorf("relative error must be between 0 and 1, got %g", relativeError)
	}

	labelled, filtered := FilterByLabel(samples)

	predictions, wrong, err := a.FilterBySize(labelled, minimalRelativeSize)
	if err != nil {
		return nil, err
	}

	rows, inconsistent, err := a.FilterByConsistency(predictions, relativeError)
	if err != nil {
		return nil, err
	}

	return &Result{
		Instances: rows,
		Logs: Logs{
			FilteredFiles:     filtered,
			WrongBoxes:        wrong,
			InconsistentBoxes: inconsistent,
		},
	}, nil
}

// axes returns the (width, height) pair the thresholds are applied to.
func (a *Aggregator) axes(d imagestore.Dimensions) (float64, float64) {
	if a.opts.CorrectImageAxes {
		return float64(d.Width), float64(d.Height)
	}
	return float64(d.Height), float64(d.Width)
}

// loadDimensions reads the dimensions of every named image on the worker
// pool. Results are returned in the order of names; the first failure in
// that order is reported.
func (a *Aggregator) loadDimensions(names []string) ([]imagestore.Dimensions, error) {
	dims := make([]imagestore.Dimensions, len(names))
	errs := make([]error, len(names))

	forEach(len(names), a.opts.Workers, func(i int) {
		dims[i], errs[i] = a.opts.Loader.Dimensions(a.resolver.Path(names[i]))
	})

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("image for %q: %w", names[i], err)
		}
	}
	return dims, nil
}

// forEach runs fn(0..n-1) with at most workers calls in flight and waits
// for all of them.
func forEach(n, workers int, fn func(i int)) {
	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}
