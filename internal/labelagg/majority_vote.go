package labelagg

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/markup-consensus/internal/table"
)

// MajorityVote picks the most frequent label of every subtask. Its
// probabilities are the normalised label counts.
type MajorityVote struct{}

// Fit counts votes. Only Proba is populated in the result.
func (MajorityVote) Fit(votes []table.Vote) (*FitResult, error) {
	return &FitResult{Proba: majorityProba(encode(votes))}, nil
}

// FitPredict returns the most frequent label per subtask.
func (mv MajorityVote) FitPredict(votes []table.Vote) ([]Consensus, error) {
	res, err := mv.Fit(votes)
	if err != nil {
		return nil, err
	}
	return res.Consensus(), nil
}

// FitPredictProba returns the normalised label counts per subtask.
func (mv MajorityVote) FitPredictProba(votes []table.Vote) (Proba, error) {
	res, err := mv.Fit(votes)
	if err != nil {
		return Proba{}, err
	}
	return res.Proba, nil
}

func majorityProba(e *encoding) Proba {
	p := Proba{Subtasks: e.subtasks, Labels: e.labels}
	if len(e.subtasks) == 0 {
		return p
	}

	counts := mat.NewDense(len(e.subtasks), len(e.labels), nil)
	for v := 0; v < e.votes(); v++ {
		s, l := e.subtask[v], e.label[v]
		counts.Set(s, l, counts.At(s, l)+1)
	}
	normalizeRows(counts)
	p.P = counts
	return p
}

// normalizeRows scales every row of m to sum to one. All-zero rows are left
// as they are.
func normalizeRows(m *mat.Dense) {
	rows, _ := m.Dims()
	for i := 0; i < rows; i++ {
		row := m.RawRowView(i)
		if sum := floats.Sum(row); sum != 0 {
			floats.Scale(1/sum, row)
		}
	}
}
