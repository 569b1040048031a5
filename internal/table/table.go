// Package table defines the interchange rows passed between the box
// aggregator and the label aggregator, and the consensus rows handed to the
// export collaborators.
package table

import (
	"fmt"
)

// InstanceRow is one (worker, instance) pair produced by box aggregation.
type InstanceRow struct {
	Subtask    string
	Task       string
	MarkerID   string
	Label      string
	BboxX      float64
	BboxY      float64
	BboxWidth  float64
	BboxHeight float64
}

// Vote is the label aggregator's view of an InstanceRow.
type Vote struct {
	Subtask  string
	MarkerID string
	Label    string
}

// ConsensusRow is an InstanceRow joined with its instance's consensus label.
type ConsensusRow struct {
	InstanceRow
	AggregatedLabel string
}

// Votes projects rows onto the subtask, marker_id and label columns.
func Votes(rows []InstanceRow) []Vote {
	votes := make([]Vote, len(rows))
	for i, r := range rows {
		votes[i] = Vote{Subtask: r.Subtask, MarkerID: r.MarkerID, Label: r.Label}
	}
	return votes
}

// Validate checks the interchange invariants: a subtask belongs to exactly
// one task and a worker contributes at most one box per subtask.
func Validate(rows []InstanceRow) error {
	taskOf := make(map[string]string)
	seen := make(map[[2]string]bool)
	for i, r := range rows {
		if task, ok := taskOf[r.Subtask]; ok && task != r.Task {
			return fmt.Errorf("row %d: subtask %q belongs to tasks %q and %q", i, r.Subtask, task, r.Task)
		}
		taskOf[r.Subtask] = r.Task

		key := [2]string{r.Subtask, r.MarkerID}
		if seen[key] {
			return fmt.Errorf("row %d: worker %q has more than one box in subtask %q", i, r.MarkerID, r.Subtask)
		}
		seen[key] = true
	}
	return nil
}

// Merge inner-joins rows with per-subtask consensus labels, preserving row
// order. Rows whose subtask has no consensus label are dropped.
func Merge(rows []InstanceRow, labels map[string]string) []ConsensusRow {
	out := make([]ConsensusRow, 0, len(rows))
	for _, r := range rows {
		label, ok := labels[r.Subtask]
		if !ok {
			continue
		}
		out = append(out, ConsensusRow{InstanceRow: r, AggregatedLabel: label})
	}
	return out
}
