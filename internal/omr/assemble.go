package omr

import (
	"github.com/ironsheep/sheet-omr/internal/detection"
)

// ChoiceLabel returns the letter for a 0-based choice index.
func ChoiceLabel(choice int) string {
	return string(rune('A' + choice))
}

// Assemble groups cell marks into question results.
//
// Every question from 1 to questions gets a record with one choice per
// column, even if marks holds no entry for it.
func Assemble(questions, choices int, marks []CellMark) []QuestionResult {
	out := make([]QuestionResult, questions)
	for q := range out {
		out[q] = QuestionResult{
			QuestionNumber: q + 1,
			Choices:        make([]ChoiceResult, choices),
			Selected:       []string{},
		}
		for c := range out[q].Choices {
			out[q].Choices[c] = ChoiceResult{Choice: ChoiceLabel(c)}
		}
	}

	for _, m := range marks {
		q, c := m.Cell.Question-1, m.Cell.Choice
		if q < 0 || q >= questions || c < 0 || c >= choices {
			continue
		}
		out[q].Choices[c].Marked = m.Marked
	}

	for q := range out {
		for _, ch := range out[q].Choices {
			if ch.Marked {
				out[q].Selected = append(out[q].Selected, ch.Choice)
			}
		}
		switch len(out[q].Selected) {
		case 0:
			out[q].Answer = AnswerNone
		case 1:
			out[q].Answer = out[q].Selected[0]
		default:
			out[q].Answer = AnswerMultiple
		}
	}
	return out
}

// newResult builds a successful result.
func newResult(markers []detection.Marker, questions []QuestionResult) *Result {
	return &Result{
		Success:         true,
		DetectedMarkers: len(markers),
		MarkerIDs:       markerIDs(markers),
		Questions:       questions,
	}
}

// failedResult builds a result for a run that stopped at err. The questions
// array is always empty so callers never see partial answers.
func failedResult(markers []detection.Marker, err error) *Result {
	return &Result{
		Success:         false,
		DetectedMarkers: len(markers),
		MarkerIDs:       markerIDs(markers),
		Questions:       []QuestionResult{},
		Error:           err.Error(),
		err:             err,
	}
}
