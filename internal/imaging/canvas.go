package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/ironsheep/sheet-omr/internal/geometry"
)

// Canvas is a mutable RGBA drawing surface used for debug overlays and
// generated answer sheets.
type Canvas struct {
	img *image.NRGBA
}

// NewCanvas copies src onto a new canvas so drawing never touches the input.
func NewCanvas(src image.Image) *Canvas {
	return &Canvas{img: imaging.Clone(src)}
}

// NewBlankCanvas creates a width x height canvas filled with bg.
func NewBlankCanvas(width, height int, bg color.Color) *Canvas {
	return &Canvas{img: imaging.New(width, height, bg)}
}

// Image returns the canvas pixels.
func (c *Canvas) Image() *image.NRGBA {
	return c.img
}

// Bounds returns the canvas bounds.
func (c *Canvas) Bounds() image.Rectangle {
	return c.img.Bounds()
}

// FillRect paints r (clipped to the canvas) with col.
func (c *Canvas) FillRect(r image.Rectangle, col color.Color) {
	draw.Draw(c.img, r.Intersect(c.img.Bounds()), image.NewUniform(col), image.Point{}, draw.Over)
}

// StrokeRect outlines r with a border of the given thickness drawn inside r.
func (c *Canvas) StrokeRect(r image.Rectangle, col color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	r = r.Canon()
	t := min(thickness, (min(r.Dx(), r.Dy())+1)/2)
	c.FillRect(image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t), col)
	c.FillRect(image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y), col)
	c.FillRect(image.Rect(r.Min.X, r.Min.Y+t, r.Min.X+t, r.Max.Y-t), col)
	c.FillRect(image.Rect(r.Max.X-t, r.Min.Y+t, r.Max.X, r.Max.Y-t), col)
}

// Line draws a segment from a to b with a square brush.
func (c *Canvas) Line(a, b geometry.Point, col color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	x0, y0 := int(math.Round(a.X)), int(math.Round(a.Y))
	x1, y1 := int(math.Round(b.X)), int(math.Round(b.Y))
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	half := thickness / 2
	err := dx + dy
	for {
		c.FillRect(image.Rect(x0-half, y0-half, x0-half+thickness, y0-half+thickness), col)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// StrokePolygon draws the closed outline through pts.
func (c *Canvas) StrokePolygon(pts []geometry.Point, col color.Color, thickness int) {
	for i := range pts {
		c.Line(pts[i], pts[(i+1)%len(pts)], col, thickness)
	}
}

// FillPolygon fills the closed polygon through pts with anti-aliased edges.
func (c *Canvas) FillPolygon(pts []geometry.Point, col color.Color) {
	if len(pts) < 3 {
		return
	}
	b := c.img.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	z.MoveTo(float32(pts[0].X), float32(pts[0].Y))
	for _, p := range pts[1:] {
		z.LineTo(float32(p.X), float32(p.Y))
	}
	z.ClosePath()
	z.Draw(c.img, b, image.NewUniform(col), image.Point{})
}

// FillEllipse fills the ellipse inscribed in r.
func (c *Canvas) FillEllipse(r image.Rectangle, col color.Color) {
	const segments = 64
	r = r.Canon()
	cx := float64(r.Min.X+r.Max.X) / 2
	cy := float64(r.Min.Y+r.Max.Y) / 2
	rx := float64(r.Dx()) / 2
	ry := float64(r.Dy()) / 2
	pts := make([]geometry.Point, segments)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / segments
		pts[i] = geometry.Pt(cx+rx*math.Cos(a), cy+ry*math.Sin(a))
	}
	c.FillPolygon(pts, col)
}

// Label draws text with its top-left corner at (x, y) on a background box.
// A nil bg draws the text only.
func (c *Canvas) Label(x, y int, text string, fg, bg color.Color) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(fg),
		Face: face,
	}
	if bg != nil {
		w := d.MeasureString(text).Ceil()
		c.FillRect(image.Rect(x-1, y-1, x+w+1, y+face.Height+1), bg)
	}
	d.Dot = fixed.P(x, y+face.Ascent)
	d.DrawString(text)
}

// Save writes the canvas to path, creating parent directories. The format
// follows the file extension (png, jpg, gif, tif, bmp).
func (c *Canvas) Save(path string) error {
	return SaveImage(c.img, path)
}

// SaveImage writes img to path, creating parent directories.
func SaveImage(img image.Image, path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save image %s: %w", path, err)
	}
	return nil
}

// ParseColor parses "#RRGGBB" or "#RRGGBBAA" (leading # optional).
func ParseColor(hex string) (color.NRGBA, error) {
	if hex == "" {
		return color.NRGBA{}, fmt.Errorf("empty color string")
	}
	hex = strings.TrimPrefix(hex, "#")

	alpha := uint8(255)
	switch len(hex) {
	case 6:
	case 8:
		a, err := strconv.ParseUint(hex[6:], 16, 8)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("invalid alpha in %q: %w", hex, err)
		}
		alpha = uint8(a)
		hex = hex[:6]
	default:
		return color.NRGBA{}, fmt.Errorf("invalid hex color length %q", hex)
	}

	cf, err := colorful.Hex("#" + hex)
	if err != nil {
		return color.NRGBA{}, err
	}
	r, g, b := cf.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}, nil
}

// ColorOr parses hex and falls back to def when it is empty or invalid.
func ColorOr(hex string, def color.NRGBA) color.NRGBA {
	c, err := ParseColor(hex)
	if err != nil {
		return def
	}
	return c
}

// Blend mixes a and b in CIE-L*a*b* space; t=0 is a, t=1 is b.
func Blend(a, b color.Color, t float64) color.NRGBA {
	ca, _ := colorful.MakeColor(a)
	cb, _ := colorful.MakeColor(b)
	r, g, bl := ca.BlendLab(cb, t).Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: bl, A: 255}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
