package boxagg

import (
	"math"

	"github.com/banshee-data/markup-consensus/internal/markup"
	"github.com/banshee-data/markup-consensus/internal/monitoring"
)

// WorkerMarks is the surviving boxes of one worker on one image. A worker
// whose boxes were all too small is kept with no marks: it still counts
// towards the image's instance count.
type WorkerMarks struct {
	MarkerID string
	Marks    []markup.Mark
}

// ImageMarks groups surviving boxes per worker for one image, in the order
// workers first appear in the export.
type ImageMarks struct {
	Task    string
	Workers []WorkerMarks
}

// Predictions is the per-image, per-worker structure produced by the size
// filter, in first-seen image order.
type Predictions []ImageMarks

// FilterBySize drops boxes whose width or height does not exceed
// minimalRelativeSize of the corresponding image dimension. Thresholds are
// rounded half to even.
func (a *Aggregator) FilterBySize(samples []markup.Sample, minimalRelativeSize float64) (Predictions, []RejectedBox, error) {
	var preds Predictions
	imageIdx := make(map[string]int)
	workerIdx := make(map[string]map[string]int)

	for _, s := range samples {
		if s.Result == nil {
			continue
		}
		if _, ok := imageIdx[s.FileName]; !ok {
			imageIdx[s.FileName] = len(preds)
			workerIdx[s.FileName] = make(map[string]int)
			preds = append(preds, ImageMarks{Task: s.FileName})
		}
	}

	names := make([]string, len(preds))
	for i, p := range preds {
		names[i] = p.Task
	}
	dims, err := a.loadDimensions(names)
	if err != nil {
		return nil, nil, err
	}

	var rejected []RejectedBox
	kept := 0
	for _, s := range samples {
		if s.Result == nil {
			continue
		}
		i := imageIdx[s.FileName]
		img := &preds[i]

		w, ok := workerIdx[s.FileName][s.MarkerID]
		if !ok {
			w = len(img.Workers)
			workerIdx[s.FileName][s.MarkerID] = w
			img.Workers = append(img.Workers, WorkerMarks{MarkerID: s.MarkerID})
		}

		width, height := a.axes(dims[i])
		minWidth := math.RoundToEven(width * minimalRelativeSize)
		minHeight := math.RoundToEven(height * minimalRelativeSize)

		for _, mark := range s.Result.Marks {
			if mark.Position.Width > minWidth && mark.Position.Height > minHeight {
				img.Workers[w].Marks = append(img.Workers[w].Marks, mark)
				kept++
				continue
			}
			rejected = append(rejected, RejectedBox{Path: s.FileName, MarkerID: s.MarkerID, Position: mark.Position})
		}
	}

	monitoring.Stagef(stageSizeFilter, "kept %d boxes on %d images, %d too small", kept, len(preds), len(rejected))
	return preds, rejected, nil
}
