package cluster

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMeanShift_Empty(t *testing.T) {
	if got := MeanShift(nil, 10); got != nil {
		t.Errorf("MeanShift(nil) = %v, want nil", got)
	}
}

func TestMeanShift_SinglePoint(t *testing.T) {
	if diff := cmp.Diff([]int{0}, MeanShift([]Point{{X: 5, Y: 5}}, 3)); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestMeanShift_TwoGroups(t *testing.T) {
	points := []Point{
		{X: 10, Y: 10}, {X: 11, Y: 10}, {X: 10, Y: 11},
		{X: 100, Y: 100}, {X: 101, Y: 101},
	}
	labels := MeanShift(points, 5)

	// The denser group ranks first.
	want := []int{0, 0, 0, 1, 1}
	if diff := cmp.Diff(want, labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestMeanShift_BandwidthControlsMerging(t *testing.T) {
	// Centres of (10,10,50,50) and (12,11,49,51).
	points := []Point{{X: 35, Y: 35}, {X: 37, Y: 37}}

	tests := []struct {
		bandwidth float64
		merged    bool
	}{
		{bandwidth: 10, merged: true},
		{bandwidth: 2, merged: false},
		{bandwidth: 0, merged: false},
	}
	for _, tt := range tests {
		labels := MeanShift(points, tt.bandwidth)
		if got := labels[0] == labels[1]; got != tt.merged {
			t.Errorf("bandwidth %g: merged = %v, want %v", tt.bandwidth, got, tt.merged)
		}
	}
}

func TestMeanShift_ZeroBandwidthMergesIdenticalPoints(t *testing.T) {
	points := []Point{{X: 1, Y: 1}, {X: 2, Y: 2}, {X: 1, Y: 1}}
	labels := MeanShift(points, 0)
	// Two points at (1,1) form the densest mode.
	if diff := cmp.Diff([]int{0, 1, 0}, labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestMeanShift_Deterministic(t *testing.T) {
	points := []Point{
		{X: 0, Y: 0}, {X: 3, Y: 0}, {X: 50, Y: 50}, {X: 52, Y: 49}, {X: 0, Y: 2}, {X: 200, Y: 10},
	}
	first := MeanShift(points, 6)
	for i := 0; i < 20; i++ {
		if diff := cmp.Diff(first, MeanShift(points, 6)); diff != "" {
			t.Fatalf("run %d differs (-first +again):\n%s", i, diff)
		}
	}
}

func TestMeanShift_NegativeBandwidthTreatedAsZero(t *testing.T) {
	labels := MeanShift([]Point{{X: 0, Y: 0}, {X: 1, Y: 0}}, -4)
	if labels[0] == labels[1] {
		t.Errorf("labels = %v, want two clusters", labels)
	}
}

func TestRankByPopulation(t *testing.T) {
	tests := []struct {
		name   string
		labels []int
		want   []int
	}{
		{"empty", nil, nil},
		{"by count", []int{2, 1, 1, 0, 1, 2}, []int{1, 2, 0}},
		{"ties keep first appearance", []int{3, 1, 1, 3, 0}, []int{3, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, RankByPopulation(tt.labels)); diff != "" {
				t.Errorf("ranking mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMode(t *testing.T) {
	tests := []struct {
		name string
		xs   []int
		want int
		ok   bool
	}{
		{"empty", nil, 0, false},
		{"single", []int{3}, 3, true},
		{"majority", []int{2, 2, 1, 2, 3}, 2, true},
		{"tie picks smallest", []int{3, 1, 3, 1}, 1, true},
		{"zero counts", []int{0, 0, 2}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Mode(tt.xs)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Mode(%v) = %d, %v; want %d, %v", tt.xs, got, ok, tt.want, tt.ok)
			}
		})
	}
}
