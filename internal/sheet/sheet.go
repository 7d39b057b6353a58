// Package sheet renders printable answer sheets that the omr pipeline can
// read back.
//
// The page is the rectified sheet surrounded by a padding band. Each corner
// marker is centered on a corner of the rectified area, so a sheet read with
// the default center corner mode rectifies back onto exactly the layout it
// was drawn from.
package sheet

import (
	"fmt"
	"image"
	"image/color"
	"strconv"

	"github.com/ironsheep/sheet-omr/internal/detection"
	"github.com/ironsheep/sheet-omr/internal/geometry"
	"github.com/ironsheep/sheet-omr/internal/imaging"
	"github.com/ironsheep/sheet-omr/internal/omr"
)

// Shape is the shape of a pre-filled mark.
type Shape string

const (
	ShapeRect    Shape = "rect"
	ShapeEllipse Shape = "ellipse"
)

// Mark is a pre-filled answer. Question is 1-based, Choice 0-based.
type Mark struct {
	Question int `json:"question"`
	Choice   int `json:"choice"`
}

// Options describes a sheet.
type Options struct {
	Questions int
	Choices   int

	// Width and Height are the size of the rectified area.
	Width  int
	Height int

	// Margin is the grid margin as a fraction of the shorter side.
	Margin float64

	// Pad is the band around the rectified area. Marker centers sit at its
	// inner edge.
	Pad int

	// ModuleSize is the side of one marker module in pixels.
	ModuleSize int

	// MarkerIDs are the IDs printed at the top-left, top-right,
	// bottom-right and bottom-left corners. A negative ID leaves the corner
	// empty. Nil prints 0, 1, 2, 3.
	MarkerIDs []int

	Marks     []Mark
	MarkShape Shape

	// MarkFill is the fraction of the cell's width and height a mark covers.
	MarkFill float64

	// Boxes draws light choice outlines and labels.
	Boxes bool

	Title string
}

// DefaultOptions matches the pipeline defaults.
func DefaultOptions() Options {
	return Options{
		Questions:  5,
		Choices:    4,
		Width:      800,
		Height:     1000,
		Margin:     0.05,
		Pad:        60,
		ModuleSize: 10,
		MarkShape:  ShapeRect,
		MarkFill:   0.6,
		Boxes:      true,
	}
}

var (
	boxColor  = color.Gray{Y: 190}
	textColor = color.Gray{Y: 150}
	inkColor  = color.Black
)

// Generate renders the sheet described by opts.
func Generate(opts Options) (*image.NRGBA, error) {
	if opts.Pad < 1 || opts.ModuleSize < 1 {
		return nil, fmt.Errorf("pad and module size must be positive")
	}
	side := detection.MarkerModules * opts.ModuleSize
	if opts.Pad < side/2+opts.ModuleSize {
		return nil, fmt.Errorf("pad %d leaves no quiet zone around %dpx markers", opts.Pad, side)
	}
	if opts.MarkFill <= 0 || opts.MarkFill > 1 {
		return nil, fmt.Errorf("mark fill must be in (0, 1], got %g", opts.MarkFill)
	}

	cells, err := omr.ComputeLayout(opts.Questions, opts.Choices, opts.Width, opts.Height, opts.Margin)
	if err != nil {
		return nil, err
	}

	ids := opts.MarkerIDs
	if ids == nil {
		ids = omr.RequiredMarkerIDs()
	}
	if len(ids) != 4 {
		return nil, fmt.Errorf("need 4 marker ids, got %d", len(ids))
	}

	pad := opts.Pad
	canvas := imaging.NewBlankCanvas(opts.Width+2*pad, opts.Height+2*pad, color.White)
	offset := image.Pt(pad, pad)

	centers := geometry.RectTarget(opts.Width, opts.Height)
	for i, id := range ids {
		if id < 0 {
			continue
		}
		c := centers[i]
		o := image.Pt(pad+int(c.X)-side/2, pad+int(c.Y)-side/2)
		if err := detection.DrawMarker(canvas.Image(), id, o, opts.ModuleSize); err != nil {
			return nil, err
		}
	}

	if opts.Title != "" {
		canvas.Label(pad+side, pad/2-6, opts.Title, inkColor, nil)
	}

	if opts.Boxes {
		for _, cell := range cells {
			r := cell.Region.Add(offset)
			canvas.StrokeRect(box(r, 0.8), boxColor, 1)
			canvas.Label(r.Min.X+4, r.Min.Y+4, omr.ChoiceLabel(cell.Choice), textColor, nil)
			if cell.Choice == 0 {
				canvas.Label(pad+4, (r.Min.Y+r.Max.Y)/2-6, strconv.Itoa(cell.Question), textColor, nil)
			}
		}
	}

	for _, m := range opts.Marks {
		if m.Question < 1 || m.Question > opts.Questions || m.Choice < 0 || m.Choice >= opts.Choices {
			return nil, fmt.Errorf("mark %d%s outside the grid", m.Question, omr.ChoiceLabel(m.Choice))
		}
		r := box(cells[(m.Question-1)*opts.Choices+m.Choice].Region.Add(offset), opts.MarkFill)
		switch opts.MarkShape {
		case ShapeEllipse:
			canvas.FillEllipse(r, inkColor)
		default:
			canvas.FillRect(r, inkColor)
		}
	}

	return canvas.Image(), nil
}

// box returns the rectangle covering fill of r's width and height, centered
// in r.
func box(r image.Rectangle, fill float64) image.Rectangle {
	w := int(float64(r.Dx()) * fill)
	h := int(float64(r.Dy()) * fill)
	x := r.Min.X + (r.Dx()-w)/2
	y := r.Min.Y + (r.Dy()-h)/2
	return image.Rect(x, y, x+w, y+h)
}

// Save renders the sheet and writes it to path.
func Save(opts Options, path string) error {
	img, err := Generate(opts)
	if err != nil {
		return err
	}
	return imaging.SaveImage(img, path)
}
