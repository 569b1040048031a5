package markup

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Sentinel labels that carry workflow meaning instead of an object class.
const (
	LabelEmpty      = "empty"
	LabelBadQuality = "Bad_quality"
	LabelMistake    = "mistake"
)

// Position is a bounding box in pixel coordinates, origin top-left.
type Position struct {
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Width    float64  `json:"width"`
	Height   float64  `json:"height"`
	Rotation *float64 `json:"rotation,omitempty"`
}

// Mark is one worker's single bounding-box annotation on one image.
type Mark struct {
	Type     string   `json:"type,omitempty"`
	Label    string   `json:"entityId"`
	Position Position `json:"position"`
}

// Result holds the marks of a submission.
type Result struct {
	Marks []Mark `json:"marks"`
}

// Sample is one worker's full submission for one image. Result is nil when
// the export record carries no result (skipped or unfinished assignment).
//
// Every other field of the export record is retained verbatim in Extra so the
// record can be written back after aggregation.
type Sample struct {
	FileName string
	MarkerID string
	Result   *Result
	Extra    map[string]json.RawMessage
}

// UnmarshalJSON decodes an export record, keeping unknown fields in Extra.
func (s *Sample) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*s = Sample{Extra: make(map[string]json.RawMessage, len(fields))}
	for key, raw := range fields {
		var err error
		switch key {
		case "file_name":
			err = json.Unmarshal(raw, &s.FileName)
			s.Extra[key] = raw
		case "marker_id":
			err = json.Unmarshal(raw, &s.MarkerID)
			s.Extra[key] = raw
		case "result":
			if string(raw) != "null" {
				s.Result = &Result{}
				err = json.Unmarshal(raw, s.Result)
			}
		default:
			s.Extra[key] = raw
		}
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
	}
	return nil
}

// MarshalJSON writes the record back with its original fields.
func (s Sample) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(s.Extra)+3)
	for key, raw := range s.Extra {
		fields[key] = raw
	}
	fields["file_name"] = s.FileName
	fields["marker_id"] = s.MarkerID
	if s.Result != nil {
		fields["result"] = s.Result
	}
	return json.Marshal(fields)
}

// Decode reads an annotation export (a JSON array of records).
func Decode(r io.Reader) ([]Sample, error) {
	var samples []Sample
	if err := json.NewDecoder(r).Decode(&samples); err != nil {
		return nil, fmt.Errorf("failed to decode markup export: %w", err)
	}
	return samples, nil
}

// Load reads an annotation export from path.
func Load(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open markup export: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Encode writes samples as a JSON array.
func Encode(w io.Writer, samples []Sample) error {
	if samples == nil {
		samples = []Sample{}
	}
	return json.NewEncoder(w).Encode(samples)
}

// Clone returns a deep copy of the sample's marks so stage filters never
// mutate the caller's export.
func (s Sample) Clone() Sample {
	out := s
	if s.Result != nil {
		marks := make([]Mark, len(s.Result.Marks))
		copy(marks, s.Result.Marks)
		out.Result = &Result{Marks: marks}
	}
	return out
}
