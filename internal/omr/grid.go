package omr

import (
	"image"
	"math"
	"sync"
)

// MaxChoices is the number of available choice labels (A-Z).
const MaxChoices = 26

// Cell is the region of one (question, choice) pair in the rectified sheet.
type Cell struct {
	// Question is 1-based.
	Question int `json:"question"`

	// Choice is 0-based; 0 is "A".
	Choice int `json:"choice"`

	// Region is in rectified-image pixels, Min inclusive and Max exclusive.
	Region image.Rectangle `json:"region"`
}

// MarginPixels converts a margin fraction of the shorter side to pixels.
func MarginPixels(width, height int, fraction float64) int {
	return int(math.Round(fraction * float64(min(width, height))))
}

// GridArea is the part of a width x height sheet that holds the grid.
func GridArea(width, height int, fraction float64) image.Rectangle {
	m := MarginPixels(width, height, fraction)
	return image.Rect(m, m, width-m, height-m)
}

// ComputeLayout partitions the grid area of a width x height sheet into
// questions horizontal bands, each split into choices columns.
//
// Band and column edges are rounded down from exact fractions, so the cells
// tile the grid area with no gaps or overlaps. Cells are returned in
// question-major order.
func ComputeLayout(questions, choices, width, height int, margin float64) ([]Cell, error) {
	if questions < 1 {
		return nil, configError("num_questions must be positive, got %d", questions)
	}
	if choices < 1 || choices > MaxChoices {
		return nil, configError("num_choices must be 1-%d, got %d", MaxChoices, choices)
	}
	if width < 1 || height < 1 {
		return nil, configError("sheet size must be positive, got %dx%d", width, height)
	}
	if !inRange(margin, 0, 0.5) {
		return nil, configError("grid_margin must be in [0, 0.5), got %g", margin)
	}

	area := GridArea(width, height, margin)
	if area.Dx() < choices || area.Dy() < questions {
		return nil, configError("grid area %dx%d too small for %d questions x %d choices",
			area.Dx(), area.Dy(), questions, choices)
	}

	xs := edges(area.Min.X, area.Dx(), choices)
	ys := edges(area.Min.Y, area.Dy(), questions)

	cells := make([]Cell, 0, questions*choices)
	for q := 0; q < questions; q++ {
		for c := 0; c < choices; c++ {
			cells = append(cells, Cell{
				Question: q + 1,
				Choice:   c,
				Region:   image.Rect(xs[c], ys[q], xs[c+1], ys[q+1]),
			})
		}
	}
	return cells, nil
}

func edges(start, length, n int) []int {
	out := make([]int, n+1)
	for i := 0; i <= n; i++ {
		out[i] = start + i*length/n
	}
	return out
}

type layoutKey struct {
	questions, choices int
	width, height      int
	marginPx           int
}

// LayoutEngine memoizes ComputeLayout per (questions, choices, width,
// height, margin in pixels). It is safe for concurrent use.
type LayoutEngine struct {
	mu    sync.RWMutex
	cache map[layoutKey][]Cell
}

// NewLayoutEngine creates an empty layout cache.
func NewLayoutEngine() *LayoutEngine {
	return &LayoutEngine{
		cache: make(map[layoutKey][]Cell),
	}
}

// Layout returns the cells for the given grid. Callers receive their own
// copy and may modify it.
func (e *LayoutEngine) Layout(questions, choices, width, height int, margin float64) ([]Cell, error) {
	if !inRange(margin, 0, 0.5) {
		return nil, configError("grid_margin must be in [0, 0.5), got %g", margin)
	}
	key := layoutKey{questions, choices, width, height, MarginPixels(width, height, margin)}

	e.mu.RLock()
	cells, ok := e.cache[key]
	e.mu.RUnlock()
	if ok {
		return append([]Cell(nil), cells...), nil
	}

	cells, err := ComputeLayout(questions, choices, width, height, margin)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[key] = cells
	e.mu.Unlock()

	return append([]Cell(nil), cells...), nil
}

// Len returns the number of cached layouts.
func (e *LayoutEngine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
