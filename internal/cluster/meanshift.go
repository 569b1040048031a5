package cluster

import (
	"math"
	"sort"

	flatbush "github.com/bmharper/flatbush-go"
)

const (
	// MaxIterations bounds the shifts performed from a single seed.
	MaxIterations = 300
	// StopFraction of the bandwidth below which a seed is considered converged.
	StopFraction = 1e-3
)

// Point is a 2D location in pixel coordinates.
type Point struct {
	X, Y float64
}

func (p Point) dist2(q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

// index answers "which points lie within radius r of q" using a flatbush
// tree over degenerate point boxes.
type index struct {
	points []Point
	fb     *flatbush.Flatbush[float64]
}

func newIndex(points []Point) *index {
	fb := flatbush.NewFlatbush[float64]()
	fb.Reserve(len(points))
	for _, p := range points {
		fb.Add(p.X, p.Y, p.X, p.Y)
	}
	fb.Finish()
	return &index{points: points, fb: fb}
}

// within returns the indices of points at Euclidean distance <= r from q,
// in ascending index order.
func (ix *index) within(q Point, r float64) []int {
	r2 := r * r
	var out []int
	for _, j := range ix.fb.Search(q.X-r, q.Y-r, q.X+r, q.Y+r) {
		if ix.points[j].dist2(q) <= r2 {
			out = append(out, j)
		}
	}
	sort.Ints(out)
	return out
}

type mode struct {
	center    Point
	intensity int
}

// MeanShift clusters points with flat-kernel mean shift and returns a cluster
// id per point. Every point is used as a seed; each seed moves to the mean of
// the points within bandwidth until it stops moving. Converged modes are
// ordered by the number of points in their window (densest first), modes
// within bandwidth of a denser mode are discarded, and each point is assigned
// to its nearest surviving mode. Cluster ids index that ordering.
//
// A bandwidth of zero only merges points at identical locations. The function
// is pure and deterministic.
func MeanShift(points []Point, bandwidth float64) []int {
	if len(points) == 0 {
		return nil
	}
	if bandwidth < 0 || math.IsNaN(bandwidth) {
		bandwidth = 0
	}

	ix := newIndex(points)
	stop := StopFraction * bandwidth

	// Seeds converging to the same location collapse into one mode; the last
	// seed to arrive sets the intensity, the first fixes the position in order.
	var modes []mode
	slot := make(map[Point]int)
	for _, seed := range points {
		m, ok := shift(ix, seed, bandwidth, stop)
		if !ok {
			continue
		}
		if i, seen := slot[m.center]; seen {
			modes[i].intensity = m.intensity
			continue
		}
		slot[m.center] = len(modes)
		modes = append(modes, m)
	}

	sort.SliceStable(modes, func(i, j int) bool {
		a, b := modes[i], modes[j]
		if a.intensity != b.intensity {
			return a.intensity > b.intensity
		}
		if a.center.X != b.center.X {
			return a.center.X > b.center.X
		}
		return a.center.Y > b.center.Y
	})

	centers := make([]Point, len(modes))
	for i, m := range modes {
		centers[i] = m.center
	}
	centers = suppress(centers, bandwidth)

	labels := make([]int, len(points))
	for i, p := range points {
		labels[i] = nearest(centers, p)
	}
	return labels
}

// shift runs a single seed to convergence.
func shift(ix *index, seed Point, bandwidth, stop float64) (mode, bool) {
	mean := seed
	for iter := 0; ; iter++ {
		nbrs := ix.within(mean, bandwidth)
		if len(nbrs) == 0 {
			return mode{}, false
		}
		old := mean
		var sx, sy float64
		for _, j := range nbrs {
			sx += ix.points[j].X
			sy += ix.points[j].Y
		}
		n := float64(len(nbrs))
		mean = Point{X: sx / n, Y: sy / n}

		if math.Sqrt(mean.dist2(old)) <= stop || iter == MaxIterations {
			return mode{center: mean, intensity: len(nbrs)}, true
		}
	}
}

// suppress keeps a center only if no earlier (denser) kept center lies within
// bandwidth of it.
func suppress(centers []Point, bandwidth float64) []Point {
	if len(centers) == 0 {
		return nil
	}
	ix := newIndex(centers)
	unique := make([]bool, len(centers))
	for i := range unique {
		unique[i] = true
	}
	for i, c := range centers {
		if !unique[i] {
			continue
		}
		for _, j := range ix.within(c, bandwidth) {
			unique[j] = false
		}
		unique[i] = true
	}

	kept := make([]Point, 0, len(centers))
	for i, c := range centers {
		if unique[i] {
			kept = append(kept, c)
		}
	}
	return kept
}

// nearest returns the index of the closest center, the lowest index on ties.
func nearest(centers []Point, p Point) int {
	best, bestD := 0, math.Inf(1)
	for i, c := range centers {
		if d := c.dist2(p); d < bestD {
			best, bestD = i, d
		}
	}
	return best
}
