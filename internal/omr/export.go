package omr

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// maxMatrixQuestions is the number of questions that fit in one byte.
const maxMatrixQuestions = 8

// BitMatrix encodes the marked matrix one choice column per line as
// "0bXXXXXXXX,", question 1 in the most significant bit. Lines are grouped
// by eight with a line holding a lone comma between groups.
func BitMatrix(questions []QuestionResult) ([]string, error) {
	if len(questions) > maxMatrixQuestions {
		return nil, configError("bit matrix holds at most %d questions, got %d", maxMatrixQuestions, len(questions))
	}

	choices := 0
	for _, q := range questions {
		choices = max(choices, len(q.Choices))
	}

	var lines []string
	for c := 0; c < choices; c++ {
		if c > 0 && c%8 == 0 {
			lines = append(lines, ",")
		}
		var v uint8
		for r, q := range questions {
			if c < len(q.Choices) && q.Choices[c].Marked {
				v |= 1 << uint(7-r)
			}
		}
		lines = append(lines, fmt.Sprintf("0b%08b,", v))
	}
	return lines, nil
}

// WriteBitMatrix writes BitMatrix to w, one line each.
func WriteBitMatrix(w io.Writer, questions []QuestionResult) error {
	lines, err := BitMatrix(questions)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	for _, l := range lines {
		if _, err := bw.WriteString(l + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ExportBitMatrix writes the bit matrix of a successful result to path.
func ExportBitMatrix(r *Result, path string) error {
	if !r.Success {
		return fmt.Errorf("cannot export failed result: %s", r.Error)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteBitMatrix(f, r.Questions); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
