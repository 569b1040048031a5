package cluster

import "sort"

// Func clusters points given a spatial bandwidth and returns a cluster id
// per point. MeanShift is the production implementation.
type Func func(points []Point, bandwidth float64) []int

// RankByPopulation orders cluster ids by member count, largest first. Ties
// keep the order in which the ids first appear in labels.
func RankByPopulation(labels []int) []int {
	counts := make(map[int]int)
	var order []int
	for _, l := range labels {
		if _, ok := counts[l]; !ok {
			order = append(order, l)
		}
		counts[l]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	return order
}

// Mode returns the most frequent value of xs, the smallest value on ties.
// The second result is false for an empty input.
func Mode(xs []int) (int, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	counts := make(map[int]int)
	for _, x := range xs {
		counts[x]++
	}
	best, bestCount := 0, -1
	for v, c := range counts {
		if c > bestCount || (c == bestCount && v < best) {
			best, bestCount = v, c
		}
	}
	return best, true
}
