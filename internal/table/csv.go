package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Column names shared by every table file.
var (
	InstanceColumns  = []string{"subtask", "task", "marker_id", "label", "bbox_x", "bbox_y", "bbox_width", "bbox_height"}
	ConsensusColumns = append(append([]string{}, InstanceColumns...), "aggregated_label")
)

// WriteIndexed writes a CSV whose first column is an unnamed row index, the
// layout the downstream export tooling already reads.
func WriteIndexed(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{""}, header...)); err != nil {
		return err
	}
	for i, row := range rows {
		if err := cw.Write(append([]string{strconv.Itoa(i)}, row...)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadIndexed reads a CSV written by WriteIndexed, or a plain CSV without an
// index column. Records are returned as column-name maps.
func ReadIndexed(r io.Reader) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	offset := 0
	if len(header) > 0 && header[0] == "" {
		offset = 1
	}

	var records []map[string]string
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		m := make(map[string]string, len(header)-offset)
		for i := offset; i < len(header) && i < len(rec); i++ {
			m[header[i]] = rec[i]
		}
		records = append(records, m)
	}
	return records, nil
}

// FormatFloat renders coordinates without trailing zeros.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (r InstanceRow) record() []string {
	return []string{
		r.Subtask, r.Task, r.MarkerID, r.Label,
		FormatFloat(r.BboxX), FormatFloat(r.BboxY), FormatFloat(r.BboxWidth), FormatFloat(r.BboxHeight),
	}
}

func parseInstance(m map[string]string) (InstanceRow, error) {
	row := InstanceRow{
		Subtask:  m["subtask"],
		Task:     m["task"],
		MarkerID: m["marker_id"],
		Label:    m["label"],
	}
	fields := []struct {
		name string
		dst  *float64
	}{
		{"bbox_x", &row.BboxX},
		{"bbox_y", &row.BboxY},
		{"bbox_width", &row.BboxWidth},
		{"bbox_height", &row.BboxHeight},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(m[f.name], 64)
		if err != nil {
			return InstanceRow{}, fmt.Errorf("invalid %s %q: %w", f.name, m[f.name], err)
		}
		*f.dst = v
	}
	if row.Subtask == "" || row.MarkerID == "" {
		return InstanceRow{}, fmt.Errorf("missing subtask or marker_id")
	}
	return row, nil
}

// WriteInstances writes the Instance-Worker table.
func WriteInstances(w io.Writer, rows []InstanceRow) error {
	records := make([][]string, len(rows))
	for i, r := range rows {
		records[i] = r.record()
	}
	return WriteIndexed(w, InstanceColumns, records)
}

// ReadInstances reads an Instance-Worker table.
func ReadInstances(r io.Reader) ([]InstanceRow, error) {
	records, err := ReadIndexed(r)
	if err != nil {
		return nil, err
	}
	rows := make([]InstanceRow, 0, len(records))
	for i, m := range records {
		row, err := parseInstance(m)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteConsensus writes the consensus table.
func WriteConsensus(w io.Writer, rows []ConsensusRow) error {
	records := make([][]string, len(rows))
	for i, r := range rows {
		records[i] = append(r.record(), r.AggregatedLabel)
	}
	return WriteIndexed(w, ConsensusColumns, records)
}

// ReadConsensus reads a consensus table. A missing aggregated_label column
// yields rows with an empty AggregatedLabel.
func ReadConsensus(r io.Reader) ([]ConsensusRow, error) {
	records, err := ReadIndexed(r)
	if err != nil {
		return nil, err
	}
	rows := make([]ConsensusRow, 0, len(records))
	for i, m := range records {
		row, err := parseInstance(m)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		rows = append(rows, ConsensusRow{InstanceRow: row, AggregatedLabel: m["aggregated_label"]})
	}
	return rows, nil
}
