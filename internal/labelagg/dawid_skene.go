package labelagg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/markup-consensus/internal/monitoring"
	"github.com/banshee-data/markup-consensus/internal/table"
)

// Dawid-Skene defaults.
const (
	DefaultNIter = 100
	DefaultTol   = 1e-5

	// errorFloor keeps unseen (observed, true) pairs from locking a
	// posterior at zero.
	errorFloor = 1e-10
)

// DawidSkene estimates true labels and per-worker confusion matrices with
// expectation maximisation, starting from the majority vote.
//
// Iteration stops after NIter rounds or once the evidence lower bound
// improves by less than Tol. The bound is not monotone in this model and can
// drop between rounds; with a positive Tol the first drop ends the fit and
// the lower value is kept in LossHistory. A zero NIter returns the
// majority-vote posterior with the worker errors fitted to it.
type DawidSkene struct {
	NIter int
	Tol   float64
}

// NewDawidSkene returns a DawidSkene with the default parameters.
func NewDawidSkene() DawidSkene {
	return DawidSkene{NIter: DefaultNIter, Tol: DefaultTol}
}

func (ds DawidSkene) validate() error {
	if ds.NIter < 0 {
		return fmt.Errorf("n_iter must be non-negative, got %d", ds.NIter)
	}
	if math.IsNaN(ds.Tol) {
		return fmt.Errorf("tol must be a number")
	}
	return nil
}

// Fit runs EM to convergence. An empty vote table yields an empty result
// without iterating.
func (ds DawidSkene) Fit(votes []table.Vote) (*FitResult, error) {
	if err := ds.validate(); err != nil {
		return nil, err
	}

	m := newModel(votes)
	res := m.initial()
	if m.enc.votes() == 0 {
		return res, nil
	}

	loss := math.Inf(-1)
	for i := 0; i < ds.NIter; i++ {
		res = m.iterate(res)
		newLoss := res.LossHistory[len(res.LossHistory)-1]
		if newLoss-loss < ds.Tol {
			break
		}
		loss = newLoss
	}

	monitoring.Logf("dawid-skene: %d subtasks, %d workers, %d labels, %d iterations, elbo %.6g",
		res.Proba.Len(), len(res.Workers), len(res.Proba.Labels), len(res.LossHistory), lastOr(res.LossHistory, math.NaN()))
	return res, nil
}

// FitPredict returns the most probable label per subtask.
func (ds DawidSkene) FitPredict(votes []table.Vote) ([]Consensus, error) {
	res, err := ds.Fit(votes)
	if err != nil {
		return nil, err
	}
	return res.Consensus(), nil
}

// FitPredictProba returns the converged posterior per subtask.
func (ds DawidSkene) FitPredictProba(votes []table.Vote) (Proba, error) {
	res, err := ds.Fit(votes)
	if err != nil {
		return Proba{}, err
	}
	return res.Proba, nil
}

// model holds the encoded votes shared by every iteration.
type model struct {
	enc *encoding
}

func newModel(votes []table.Vote) model {
	return model{enc: encode(votes)}
}

// initial returns the majority-vote posterior, its priors and the worker
// errors fitted to it.
func (m model) initial() *FitResult {
	proba := majorityProba(m.enc)
	res := &FitResult{Proba: proba, Workers: m.enc.workers}
	if proba.P == nil {
		return res
	}
	res.Priors = columnMeans(proba.P)
	res.Errors = m.mStep(proba.P)
	return res
}

// iterate performs one E-step and M-step on prev and returns the new state
// with its evidence lower bound appended to the loss history.
func (m model) iterate(prev *FitResult) *FitResult {
	p := m.eStep(prev.Priors, prev.Errors)
	priors := columnMeans(p)
	errs := m.mStep(p)
	elbo := m.elbo(p, priors, errs) / float64(m.enc.votes())

	history := make([]float64, len(prev.LossHistory), len(prev.LossHistory)+1)
	copy(history, prev.LossHistory)

	return &FitResult{
		Proba:       Proba{Subtasks: m.enc.subtasks, Labels: m.enc.labels, P: p},
		Priors:      priors,
		Workers:     m.enc.workers,
		Errors:      errs,
		LossHistory: append(history, elbo),
	}
}

// mStep accumulates each worker's observed-vs-true label mass under p,
// floors it and normalises every true-label column over the labels the
// worker used.
func (m model) mStep(p *mat.Dense) []*mat.Dense {
	e := m.enc
	k := len(e.labels)

	errs := make([]*mat.Dense, len(e.workers))
	observed := make([][]bool, len(e.workers))
	for w := range errs {
		errs[w] = mat.NewDense(k, k, nil)
		observed[w] = make([]bool, k)
	}

	for v := 0; v < e.votes(); v++ {
		w, l := e.worker[v], e.label[v]
		observed[w][l] = true
		floats.Add(errs[w].RawRowView(l), p.RawRowView(e.subtask[v]))
	}

	for w, em := range errs {
		for l := 0; l < k; l++ {
			if !observed[w][l] {
				continue
			}
			row := em.RawRowView(l)
			for t := range row {
				row[t] = math.Max(row[t], errorFloor)
			}
		}
		for t := 0; t < k; t++ {
			var sum float64
			for l := 0; l < k; l++ {
				sum += em.At(l, t)
			}
			for l := 0; l < k; l++ {
				if observed[w][l] {
					em.Set(l, t, em.At(l, t)/sum)
				}
			}
		}
	}
	return errs
}

// eStep computes the posterior of every subtask in log space, shifting each
// row by its maximum before exponentiating.
func (m model) eStep(priors []float64, errs []*mat.Dense) *mat.Dense {
	e := m.enc
	k := len(e.labels)

	logPrior := make([]float64, k)
	for t, pr := range priors {
		logPrior[t] = math.Log2(pr)
	}

	ll := mat.NewDense(len(e.subtasks), k, nil)
	for s := range e.subtasks {
		copy(ll.RawRowView(s), logPrior)
	}
	for v := 0; v < e.votes(); v++ {
		row := ll.RawRowView(e.subtask[v])
		obs := errs[e.worker[v]].RawRowView(e.label[v])
		for t := range row {
			row[t] += math.Log2(obs[t])
		}
	}

	for s := range e.subtasks {
		row := ll.RawRowView(s)
		top := floats.Max(row)
		for t := range row {
			row[t] = math.Exp2(row[t] - top)
		}
		floats.Scale(1/floats.Sum(row), row)
	}
	return ll
}

// elbo is the expected joint log-likelihood of the votes under p plus the
// entropy of p. Terms with zero posterior mass contribute nothing.
func (m model) elbo(p *mat.Dense, priors []float64, errs []*mat.Dense) float64 {
	e := m.enc

	var joint float64
	for v := 0; v < e.votes(); v++ {
		post := p.RawRowView(e.subtask[v])
		obs := errs[e.worker[v]].RawRowView(e.label[v])
		for t, q := range post {
			if q == 0 {
				continue
			}
			joint += q * (math.Log(obs[t]) + math.Log(priors[t]))
		}
	}

	var entropy float64
	for s := range e.subtasks {
		entropy += stat.Entropy(p.RawRowView(s))
	}
	return joint + entropy
}

func columnMeans(p *mat.Dense) []float64 {
	_, cols := p.Dims()
	means := make([]float64, cols)
	for j := range means {
		means[j] = stat.Mean(mat.Col(nil, j, p), nil)
	}
	return means
}

func lastOr(xs []float64, def float64) float64 {
	if len(xs) == 0 {
		return def
	}
	return xs[len(xs)-1]
}
