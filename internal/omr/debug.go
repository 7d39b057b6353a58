package omr

import (
	"fmt"
	"image"
	"image/color"

	"github.com/ironsheep/sheet-omr/internal/detection"
	"github.com/ironsheep/sheet-omr/internal/geometry"
	"github.com/ironsheep/sheet-omr/internal/imaging"
)

// Overlay colors.
var (
	outlineColor = imaging.ColorOr("#00C800", color.NRGBA{G: 200, A: 255})
	originColor  = imaging.ColorOr("#FF0000", color.NRGBA{R: 255, A: 255})
	labelColor   = color.NRGBA{A: 255}
	markedColor  = imaging.ColorOr("#00C800", color.NRGBA{G: 200, A: 255})
	blankColor   = imaging.ColorOr("#DC0000", color.NRGBA{R: 220, A: 255})
	captionBG    = imaging.Blend(color.White, color.NRGBA{G: 200, A: 255}, 0.15)
)

// RenderMarkerOverlay draws every marker outline on a copy of img, with its
// ID at the center and a dot on its own top-left corner, plus a caption with
// the marker count.
func RenderMarkerOverlay(img image.Image, markers []detection.Marker) *image.NRGBA {
	canvas := imaging.NewCanvas(img)
	origin := img.Bounds().Min
	shift := func(p geometry.Point) geometry.Point {
		return geometry.Pt(p.X-float64(origin.X), p.Y-float64(origin.Y))
	}

	for _, m := range markers {
		pts := make([]geometry.Point, len(m.Corners))
		for i, p := range m.Corners {
			pts[i] = shift(p)
		}
		canvas.StrokePolygon(pts, outlineColor, 2)

		tl := pts[0]
		canvas.FillRect(image.Rect(int(tl.X)-3, int(tl.Y)-3, int(tl.X)+4, int(tl.Y)+4), originColor)

		c := shift(m.Center())
		canvas.Label(int(c.X)-14, int(c.Y)-6, fmt.Sprintf("ID:%d", m.ID), labelColor, color.White)
	}

	canvas.Label(10, 10, fmt.Sprintf("Detected: %d markers", len(markers)), labelColor, captionBG)
	return canvas.Image()
}

// RenderGridOverlay outlines every cell of a rectified sheet: marked cells in
// thick green, blank cells in thin red.
func RenderGridOverlay(sheet image.Image, marks []CellMark) *image.NRGBA {
	canvas := imaging.NewCanvas(sheet)
	origin := sheet.Bounds().Min

	for _, m := range marks {
		r := m.Cell.Region.Sub(origin)
		if m.Marked {
			canvas.StrokeRect(r, markedColor, 3)
		} else {
			canvas.StrokeRect(r, blankColor, 1)
		}
		if m.Cell.Choice == 0 {
			canvas.Label(r.Min.X+4, r.Min.Y+4, fmt.Sprintf("Q%d", m.Cell.Question), labelColor, nil)
		}
	}
	return canvas.Image()
}

// RenderMarkers detects markers in img and writes the overlay to path.
func (p *Pipeline) RenderMarkers(img image.Image, path string, opts Options) ([]detection.Marker, error) {
	markers, err := p.DetectMarkers(img, opts)
	if err != nil {
		return nil, err
	}
	if err := imaging.SaveImage(RenderMarkerOverlay(img, markers), path); err != nil {
		return markers, err
	}
	p.log.Debug().Str("path", path).Int("markers", len(markers)).Msg("marker overlay written")
	return markers, nil
}

// RenderGrid processes img and writes the grid overlay of the rectified
// sheet to path. The result is returned even when the overlay cannot be
// written.
func (p *Pipeline) RenderGrid(img image.Image, path string, opts Options) (*Result, error) {
	a, err := p.Analyze(img, opts)
	if err != nil {
		return failedResult(a.Markers, err), err
	}
	res := newResult(a.Markers, a.Questions)
	if err := imaging.SaveImage(RenderGridOverlay(a.Rectified, a.Marks), path); err != nil {
		return res, err
	}
	p.log.Debug().Str("path", path).Msg("grid overlay written")
	return res, nil
}
