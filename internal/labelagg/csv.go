package labelagg

import (
	"encoding/csv"
	"io"

	"github.com/banshee-data/markup-consensus/internal/table"
)

// WriteProba writes one row per subtask with a column per label.
func WriteProba(w io.Writer, p Proba) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"subtask"}, p.Labels...)); err != nil {
		return err
	}
	for i, s := range p.Subtasks {
		rec := make([]string, 0, len(p.Labels)+1)
		rec = append(rec, s)
		for _, v := range p.P.RawRowView(i) {
			rec = append(rec, table.FormatFloat(v))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
