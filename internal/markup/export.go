package markup

import (
	"fmt"

	"github.com/banshee-data/markup-consensus/internal/table"
)

// ExportFileName is the name of the aggregated export written by the CLI.
const ExportFileName = "aggragation_in_tagme_format.json"

// ToExport converts consensus rows back into export records, one per task.
// Each record carries every row's box labelled with the consensus label, plus
// the non-result fields of the original record submitted by the task's first
// listed worker.
func ToExport(rows []table.ConsensusRow, original []Sample) ([]Sample, error) {
	type key struct{ file, marker string }
	byKey := make(map[key]Sample, len(original))
	for _, s := range original {
		byKey[key{s.FileName, s.MarkerID}] = s
	}

	var order []string
	grouped := make(map[string][]table.ConsensusRow)
	for _, r := range rows {
		if _, ok := grouped[r.Task]; !ok {
			order = append(order, r.Task)
		}
		grouped[r.Task] = append(grouped[r.Task], r)
	}

	out := make([]Sample, 0, len(order))
	for _, task := range order {
		taskRows := grouped[task]
		src, ok := byKey[key{task, taskRows[0].MarkerID}]
		if !ok {
			return nil, fmt.Errorf("no original record for task %q and worker %q", task, taskRows[0].MarkerID)
		}

		marks := make([]Mark, len(taskRows))
		for i, r := range taskRows {
			label := r.AggregatedLabel
			if label == "" {
				label = r.Label
			}
			rotation := 0.0
			marks[i] = Mark{
				Type:  "bbox",
				Label: label,
				Position: Position{
					X:        r.BboxX,
					Y:        r.BboxY,
					Width:    r.BboxWidth,
					Height:   r.BboxHeight,
					Rotation: &rotation,
				},
			}
		}

		rec := src.Clone()
		rec.Result = &Result{Marks: marks}
		out = append(out, rec)
	}
	return out, nil
}
