package omr

import (
	"context"
	"image"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/sheet-omr/internal/imaging"
)

// ThresholdMode selects how the darkness level is chosen.
type ThresholdMode string

const (
	// ThresholdFixed uses the configured darkness threshold.
	ThresholdFixed ThresholdMode = "fixed"

	// ThresholdOtsu derives one level from the grid area of each sheet.
	ThresholdOtsu ThresholdMode = "otsu"
)

// CellMark is the classification of one cell.
type CellMark struct {
	Cell   Cell    `json:"cell"`
	Ratio  float64 `json:"ratio"`
	Marked bool    `json:"marked"`
}

// Classifier measures ink coverage per cell.
//
// A pixel is ink when its luminance is below Level. A cell is marked when
// its ink ratio is strictly greater than BlackRatio.
type Classifier struct {
	Level      uint8
	BlackRatio float64

	// Inset trims this fraction of the cell's width and height from every
	// side before measuring.
	Inset float64

	// Workers bounds the number of cells measured at once. Zero or less
	// means runtime.NumCPU().
	Workers int
}

// GridLevel returns the darkness level for mode. For ThresholdOtsu the level
// is computed over area of gray.
func GridLevel(gray *image.Gray, area image.Rectangle, mode ThresholdMode, fixed uint8) uint8 {
	if mode == ThresholdOtsu {
		return imaging.OtsuThreshold(imaging.Histogram(gray, area))
	}
	return fixed
}

// Classify measures every cell of gray. The result has one entry per cell in
// the same order. Cells that fall outside gray are unmarked.
//
// Workers stop picking up cells once ctx is done, and the context's error is
// returned.
func (c Classifier) Classify(ctx context.Context, gray *image.Gray, cells []Cell) ([]CellMark, error) {
	workers := c.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	out := make([]CellMark, len(cells))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range cells {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ratio := c.Ratio(gray, cells[i].Region)
			out[i] = CellMark{
				Cell:   cells[i],
				Ratio:  ratio,
				Marked: ratio > c.BlackRatio,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Ratio returns the fraction of ink pixels inside region after the inset.
// It returns 0 when nothing of the region lies inside gray.
func (c Classifier) Ratio(gray *image.Gray, region image.Rectangle) float64 {
	r := inset(region.Canon(), c.Inset).Intersect(gray.Rect)
	if r.Empty() {
		return 0
	}

	dark := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := gray.Pix[gray.PixOffset(r.Min.X, y):gray.PixOffset(r.Max.X, y)]
		for _, v := range row {
			if v < c.Level {
				dark++
			}
		}
	}
	return float64(dark) / float64(r.Dx()*r.Dy())
}

func inset(r image.Rectangle, fraction float64) image.Rectangle {
	if fraction <= 0 {
		return r
	}
	dx := int(math.Round(float64(r.Dx()) * fraction))
	dy := int(math.Round(float64(r.Dy()) * fraction))
	out := image.Rect(r.Min.X+dx, r.Min.Y+dy, r.Max.X-dx, r.Max.Y-dy)
	if out.Empty() {
		return r
	}
	return out
}
