// Package labelagg estimates one consensus label per instance from the
// labels different workers gave it.
//
// Two aggregators are provided: MajorityVote and DawidSkene, the latter
// jointly estimating per-worker confusion matrices and the true-label
// posterior with expectation maximisation. Both operate on the subtask,
// marker_id and label columns of the box aggregator's output.
package labelagg

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/markup-consensus/internal/table"
)

// Aggregator names accepted by New.
const (
	NameMajorityVote = "majority_vote"
	NameDawidSkene   = "dawid_skene"
)

// Aggregator estimates consensus labels from worker votes.
type Aggregator interface {
	// Fit returns every fitted quantity.
	Fit(votes []table.Vote) (*FitResult, error)
	// FitPredict returns one consensus label per subtask.
	FitPredict(votes []table.Vote) ([]Consensus, error)
	// FitPredictProba returns the label distribution of every subtask.
	FitPredictProba(votes []table.Vote) (Proba, error)
}

// New returns the aggregator registered under name.
func New(name string, nIter int, tol float64) (Aggregator, error) {
	switch name {
	case NameMajorityVote:
		return MajorityVote{}, nil
	case NameDawidSkene:
		ds := DawidSkene{NIter: nIter, Tol: tol}
		if err := ds.validate(); err != nil {
			return nil, err
		}
		return ds, nil
	default:
		return nil, fmt.Errorf("unknown aggregator %q (want %s or %s)", name, NameMajorityVote, NameDawidSkene)
	}
}

// Consensus is the aggregated label of one subtask.
type Consensus struct {
	Subtask string
	Label   string
}

// Proba holds per-subtask label distributions. Row i of P belongs to
// Subtasks[i] and column j to Labels[j]; rows sum to one. P is nil when
// there are no subtasks.
type Proba struct {
	Subtasks []string
	Labels   []string
	P        *mat.Dense
}

// Len returns the number of subtasks.
func (p Proba) Len() int { return len(p.Subtasks) }

// MostProbable returns the argmax label of every row. Ties go to the label
// that sorts first.
func (p Proba) MostProbable() []Consensus {
	if p.Len() == 0 {
		return nil
	}
	out := make([]Consensus, p.Len())
	for i, s := range p.Subtasks {
		out[i] = Consensus{Subtask: s, Label: p.Labels[floats.MaxIdx(p.P.RawRowView(i))]}
	}
	return out
}

// FitResult is the state of a fitted aggregator. Each EM iteration produces
// a new FitResult; values are never modified once returned.
type FitResult struct {
	Proba Proba
	// Priors is the marginal distribution over Proba.Labels.
	Priors []float64
	// Workers and Errors are parallel. Errors[w] has one row per observed
	// label and one column per true label, both indexed like Proba.Labels.
	// Each column sums to one over the labels the worker actually used.
	Workers []string
	Errors  []*mat.Dense
	// LossHistory is the per-iteration evidence lower bound.
	LossHistory []float64
}

// Consensus returns the most probable label of every subtask.
func (r *FitResult) Consensus() []Consensus {
	return r.Proba.MostProbable()
}

// LabelMap indexes consensus labels by subtask for table.Merge.
func LabelMap(cs []Consensus) map[string]string {
	m := make(map[string]string, len(cs))
	for _, c := range cs {
		m[c.Subtask] = c.Label
	}
	return m
}

// encoding maps votes onto dense indices. Subtasks and labels are sorted;
// workers keep first-appearance order.
type encoding struct {
	subtasks []string
	labels   []string
	workers  []string

	subtask []int
	worker  []int
	label   []int
}

func encode(votes []table.Vote) *encoding {
	e := &encoding{}
	subtaskSet := make(map[string]bool)
	labelSet := make(map[string]bool)
	workerIdx := make(map[string]int)

	for _, v := range votes {
		subtaskSet[v.Subtask] = true
		labelSet[v.Label] = true
		if _, ok := workerIdx[v.MarkerID]; !ok {
			workerIdx[v.MarkerID] = len(e.workers)
			e.workers = append(e.workers, v.MarkerID)
		}
	}
	e.subtasks = sortedKeys(subtaskSet)
	e.labels = sortedKeys(labelSet)

	subtaskIdx := indexOf(e.subtasks)
	labelIdx := indexOf(e.labels)

	e.subtask = make([]int, len(votes))
	e.worker = make([]int, len(votes))
	e.label = make([]int, len(votes))
	for i, v := range votes {
		e.subtask[i] = subtaskIdx[v.Subtask]
		e.worker[i] = workerIdx[v.MarkerID]
		e.label[i] = labelIdx[v.Label]
	}
	return e
}

func (e *encoding) votes() int { return len(e.subtask) }

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func indexOf(values []string) map[string]int {
	m := make(map[string]int, len(values))
	for i, v := range values {
		m[v] = i
	}
	return m
}
