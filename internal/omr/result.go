package omr

import (
	"encoding/json"
	"sort"

	"github.com/ironsheep/sheet-omr/internal/detection"
)

// Answer sentinels for questions without exactly one mark.
const (
	AnswerNone     = "none"
	AnswerMultiple = "multiple"
)

// ChoiceResult is one classified choice.
type ChoiceResult struct {
	Choice string `json:"choice"`
	Marked bool   `json:"marked"`
}

// QuestionResult collects the choices of one question.
type QuestionResult struct {
	QuestionNumber int            `json:"question_number"`
	Choices        []ChoiceResult `json:"choices"`
	Selected       []string       `json:"selected"`
	Answer         string         `json:"answer"`
}

// Result is the outcome of one pipeline run.
type Result struct {
	Success         bool             `json:"success"`
	DetectedMarkers int              `json:"detected_markers"`
	MarkerIDs       []int            `json:"marker_ids"`
	Questions       []QuestionResult `json:"questions"`
	Error           string           `json:"error,omitempty"`

	err error
}

// Err returns the failure behind an unsuccessful result, or nil.
func (r *Result) Err() error {
	return r.err
}

// Kind classifies the failure behind an unsuccessful result.
func (r *Result) Kind() Kind {
	return KindOf(r.err)
}

// JSON encodes the result with two-space indentation.
func (r *Result) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Answers returns the answer of every question keyed by question number.
func (r *Result) Answers() map[int]string {
	out := make(map[int]string, len(r.Questions))
	for _, q := range r.Questions {
		out[q.QuestionNumber] = q.Answer
	}
	return out
}

// markerIDs returns the distinct IDs of markers in ascending order.
func markerIDs(markers []detection.Marker) []int {
	seen := make(map[int]bool, len(markers))
	ids := make([]int, 0, len(markers))
	for _, m := range markers {
		if !seen[m.ID] {
			seen[m.ID] = true
			ids = append(ids, m.ID)
		}
	}
	sort.Ints(ids)
	return ids
}
