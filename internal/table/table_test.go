package table

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rows() []InstanceRow {
	return []InstanceRow{
		{Subtask: "a.jpg_0", Task: "a.jpg", MarkerID: "w1", Label: "horse", BboxX: 10, BboxY: 20.5, BboxWidth: 30, BboxHeight: 40},
		{Subtask: "a.jpg_0", Task: "a.jpg", MarkerID: "w2", Label: "cow", BboxX: 11, BboxY: 21, BboxWidth: 29, BboxHeight: 41},
		{Subtask: "b.jpg_0", Task: "b.jpg", MarkerID: "w1", Label: "cow", BboxX: 1, BboxY: 2, BboxWidth: 3, BboxHeight: 4},
	}
}

func TestWriteInstances(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteInstances(&buf, rows()[:1]))
	assert.Equal(t,
		",subtask,task,marker_id,label,bbox_x,bbox_y,bbox_width,bbox_height\n"+
			"0,a.jpg_0,a.jpg,w1,horse,10,20.5,30,40\n",
		buf.String())

	got, err := ReadInstances(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(rows()[:1], got); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestReadInstances_WithoutIndexColumn(t *testing.T) {
	in := "subtask,task,marker_id,label,bbox_x,bbox_y,bbox_width,bbox_height\n" +
		"b.jpg_0,b.jpg,w1,cow,1,2,3,4\n"
	got, err := ReadInstances(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, rows()[2:], got)
}

func TestReadInstances_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"bad number", "subtask,task,marker_id,label,bbox_x,bbox_y,bbox_width,bbox_height\na_0,a,w1,cow,x,2,3,4\n"},
		{"missing marker", "subtask,task,label,bbox_x,bbox_y,bbox_width,bbox_height\na_0,a,cow,1,2,3,4\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadInstances(strings.NewReader(tt.in))
			assert.ErrorContains(t, err, "row 0")
		})
	}

	got, err := ReadInstances(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestConsensusRoundTrip(t *testing.T) {
	merged := Merge(rows(), map[string]string{"a.jpg_0": "horse"})
	require.Len(t, merged, 2)

	var buf bytes.Buffer
	require.NoError(t, WriteConsensus(&buf, merged))
	assert.True(t, strings.HasPrefix(buf.String(), ",subtask,task,marker_id,label,bbox_x,bbox_y,bbox_width,bbox_height,aggregated_label\n"))

	got, err := ReadConsensus(&buf)
	require.NoError(t, err)
	assert.Equal(t, merged, got)
}

func TestReadConsensus_MissingAggregatedLabel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteInstances(&buf, rows()))
	got, err := ReadConsensus(&buf)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Empty(t, got[0].AggregatedLabel)
}

func TestMerge(t *testing.T) {
	got := Merge(rows(), map[string]string{"b.jpg_0": "cow", "z_0": "pig"})
	assert.Equal(t, []ConsensusRow{{InstanceRow: rows()[2], AggregatedLabel: "cow"}}, got)
	assert.Empty(t, Merge(nil, nil))
}

func TestVotes(t *testing.T) {
	assert.Equal(t, []Vote{
		{Subtask: "a.jpg_0", MarkerID: "w1", Label: "horse"},
		{Subtask: "a.jpg_0", MarkerID: "w2", Label: "cow"},
		{Subtask: "b.jpg_0", MarkerID: "w1", Label: "cow"},
	}, Votes(rows()))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(rows()))

	dup := append(rows(), rows()[0])
	assert.ErrorContains(t, Validate(dup), "more than one box")

	moved := append(rows(), InstanceRow{Subtask: "a.jpg_0", Task: "c.jpg", MarkerID: "w9"})
	assert.ErrorContains(t, Validate(moved), "belongs to tasks")
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "10", FormatFloat(10))
	assert.Equal(t, "0.25", FormatFloat(0.25))
	assert.Equal(t, "-3.5", FormatFloat(-3.5))
}
