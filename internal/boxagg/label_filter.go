package boxagg

import (
	"github.com/banshee-data/markup-consensus/internal/markup"
	"github.com/banshee-data/markup-consensus/internal/monitoring"
)

// FilterByLabel drops samples that report no valid object and strips marks
// flagged as mistakes.
//
// A sample containing any "empty" or "Bad_quality" mark is discarded whole,
// and every such mark produces its own log entry: repeated sentinel marks on
// one file are not collapsed into a single entry. A sample whose marks were
// all "mistake" is logged as "all_mistakes". Samples without a result are
// skipped silently. The input is not modified.
func FilterByLabel(samples []markup.Sample) ([]markup.Sample, []FilteredFile) {
	var kept []markup.Sample
	var rejected []FilteredFile

	for _, sample := range samples {
		if sample.Result == nil {
			continue
		}

		var correct []markup.Mark
		discarded := false
		gotMistake := false

		for _, mark := range sample.Result.Marks {
			switch mark.Label {
			case markup.LabelEmpty, markup.LabelBadQuality:
				rejected = append(rejected, FilteredFile{FilePath: sample.FileName, Reason: mark.Label})
				discarded = true
			case markup.LabelMistake:
				gotMistake = true
			default:
				correct = append(correct, mark)
			}
		}

		if discarded {
			continue
		}
		if len(correct) == 0 {
			if gotMistake {
				rejected = append(rejected, FilteredFile{FilePath: sample.FileName, Reason: ReasonAllMistakes})
			}
			continue
		}

		out := sample.Clone()
		out.Result.Marks = correct
		kept = append(kept, out)
	}

	monitoring.Stagef(stageLabelFilter, "kept %d of %d samples, %d rejections logged", len(kept), len(samples), len(rejected))
	return kept, rejected
}
