package boxagg

import (
	"fmt"
	"math"

	"github.com/banshee-data/markup-consensus/internal/cluster"
	"github.com/banshee-data/markup-consensus/internal/markup"
	"github.com/banshee-data/markup-consensus/internal/monitoring"
	"github.com/banshee-data/markup-consensus/internal/table"
)

// Bandwidth returns the clustering radius for an image of the given extent.
func Bandwidth(width, height, relativeError float64) float64 {
	w := width * relativeError
	h := height * relativeError
	return math.RoundToEven(math.Sqrt(w*w + h*h))
}

// Center returns the rounded centre of a box.
func Center(p markup.Position) cluster.Point {
	return cluster.Point{
		X: math.RoundToEven(p.X + p.Width/2),
		Y: math.RoundToEven(p.Y + p.Height/2),
	}
}

// SubtaskID names the instance of rank r on task.
func SubtaskID(task string, rank int) string {
	return fmt.Sprintf("%s_%d", task, rank)
}

type box struct {
	markerID string
	mark     markup.Mark
}

// FilterByConsistency clusters box centres per image and keeps the n most
// populated clusters, where n is the most common per-worker box count.
// Boxes outside those clusters are returned as inconsistent. A worker gets
// at most one box per instance; further boxes of the same worker in that
// cluster are logged as inconsistent.
func (a *Aggregator) FilterByConsistency(preds Predictions, relativeError float64) ([]table.InstanceRow, []RejectedBox, error) {
	names := make([]string, len(preds))
	for i, p := range preds {
		names[i] = p.Task
	}
	dims, err := a.loadDimensions(names)
	if err != nil {
		return nil, nil, err
	}

	perImage := make([]imageOutcome, len(preds))
	forEach(len(preds), a.opts.Workers, func(i int) {
		width, height := a.axes(dims[i])
		perImage[i] = a.clusterImage(preds[i], Bandwidth(width, height, relativeError))
	})

	var rows []table.InstanceRow
	var inconsistent []RejectedBox
	for _, o := range perImage {
		rows = append(rows, o.rows...)
		inconsistent = append(inconsistent, o.inconsistent...)
	}

	monitoring.Stagef(stageConsistencyCheck, "%d instance rows on %d images, %d inconsistent boxes", len(rows), len(preds), len(inconsistent))
	return rows, inconsistent, nil
}

type imageOutcome struct {
	rows         []table.InstanceRow
	inconsistent []RejectedBox
}

func (a *Aggregator) clusterImage(img ImageMarks, bandwidth float64) imageOutcome {
	var out imageOutcome

	counts := make([]int, len(img.Workers))
	var boxes []box
	for i, w := range img.Workers {
		counts[i] = len(w.Marks)
		for _, m := range w.Marks {
			boxes = append(boxes, box{markerID: w.MarkerID, mark: m})
		}
	}
	if len(boxes) == 0 {
		return out
	}

	n, _ := cluster.Mode(counts)

	points := make([]cluster.Point, len(boxes))
	for i, b := range boxes {
		points[i] = Center(b.mark.Position)
	}
	labels := a.opts.Cluster(points, bandwidth)

	ranked := cluster.RankByPopulation(labels)
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	rankOf := make(map[int]int, len(ranked))
	for r, label := range ranked {
		rankOf[label] = r
	}

	seen := make(map[string]bool)
	for i, b := range boxes {
		reject := RejectedBox{Path: img.Task, MarkerID: b.markerID, Position: b.mark.Position}
		rank, ok := rankOf[labels[i]]

		if a.opts.LegacyInconsistentLog {
			// One entry per higher-ranked cluster checked before a match.
			misses := len(ranked)
			if ok {
				misses = rank
			}
			for k := 0; k < misses; k++ {
				out.inconsistent = append(out.inconsistent, reject)
			}
		} else if !ok {
			out.inconsistent = append(out.inconsistent, reject)
		}
		if !ok {
			continue
		}

		subtask := SubtaskID(img.Task, rank)
		key := subtask + "\x00" + b.markerID
		if seen[key] {
			out.inconsistent = append(out.inconsistent, reject)
			continue
		}
		seen[key] = true

		out.rows = append(out.rows, table.InstanceRow{
			Subtask:    subtask,
			Task:       img.Task,
			MarkerID:   b.markerID,
			Label:      b.mark.Label,
			BboxX:      b.mark.Position.X,
			BboxY:      b.mark.Position.Y,
			BboxWidth:  b.mark.Position.Width,
			BboxHeight: b.mark.Position.Height,
		})
	}
	return out
}
