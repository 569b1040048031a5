package boxagg

import (
	"io"
	"path/filepath"

	"github.com/banshee-data/markup-consensus/internal/fsutil"
	"github.com/banshee-data/markup-consensus/internal/markup"
	"github.com/banshee-data/markup-consensus/internal/table"
)

// Rejection log file names inside the wrong-cases directory.
const (
	FilteredFilesLog      = "filtered_files.csv"
	WrongBoxesLog         = "wrond_bboxes.csv"
	InconsistentBoxesLog  = "inconsistent_bboxes.csv"
	ReasonAllMistakes     = "all_mistakes"
	stageLabelFilter      = "label-filter"
	stageSizeFilter       = "size-filter"
	stageConsistencyCheck = "consistency"
)

// FilteredFile records a sample discarded by the label filter.
type FilteredFile struct {
	FilePath string
	Reason   string
}

// RejectedBox records a box discarded by the size filter or the consistency
// step. Path is the image file name for size rejections and the task for
// consistency rejections.
type RejectedBox struct {
	Path     string
	MarkerID string
	Position markup.Position
}

// Logs accumulates the three rejection logs of one aggregation run.
type Logs struct {
	FilteredFiles     []FilteredFile
	WrongBoxes        []RejectedBox
	InconsistentBoxes []RejectedBox
}

func boxRecords(boxes []RejectedBox) [][]string {
	rows := make([][]string, len(boxes))
	for i, b := range boxes {
		rows[i] = []string{
			b.Path, b.MarkerID,
			table.FormatFloat(b.Position.X), table.FormatFloat(b.Position.Y),
			table.FormatFloat(b.Position.Width), table.FormatFloat(b.Position.Height),
		}
	}
	return rows
}

// Write overwrites the three log files in dir.
func (l Logs) Write(fsys fsutil.FileSystem, dir string) error {
	filtered := make([][]string, len(l.FilteredFiles))
	for i, f := range l.FilteredFiles {
		filtered[i] = []string{f.FilePath, f.Reason}
	}

	files := []struct {
		name   string
		header []string
		rows   [][]string
	}{
		{FilteredFilesLog, []string{"filepath", "reason"}, filtered},
		{WrongBoxesLog, []string{"filepath", "marker_id", "bbox_x", "bbox_y", "bbox_width", "bbox_height"}, boxRecords(l.WrongBoxes)},
		{InconsistentBoxesLog, []string{"task", "marker_id", "bbox_x", "bbox_y", "bbox_width", "bbox_height"}, boxRecords(l.InconsistentBoxes)},
	}

	if err := fsutil.EnsureDir(fsys, dir); err != nil {
		return err
	}
	for _, f := range files {
		err := fsutil.WriteTo(fsys, filepath.Join(dir, f.name), func(w io.Writer) error {
			return table.WriteIndexed(w, f.header, f.rows)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
