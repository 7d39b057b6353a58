package geometry

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Paper is the fill colour for output pixels whose source lies off-image.
var Paper = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// Rectification is the output of Rectify.
type Rectification struct {
	// Image is the distortion-corrected sheet, exactly Width x Height.
	Image *image.NRGBA

	// Forward maps source-image points to rectified points.
	Forward Homography

	// Inverse maps rectified points back to the source image.
	Inverse Homography
}

// RectTarget returns the destination corners of a W x H rectangle in the
// order expected by SheetCorners.Points.
func RectTarget(width, height int) [4]Point {
	w, h := float64(width), float64(height)
	return [4]Point{{0, 0}, {w, 0}, {w, h}, {0, h}}
}

// Rectify warps src so that corners land on the corners of a width x height
// rectangle.
//
// The corners are validated before any transform is solved, so a degenerate
// configuration never produces an image. Output is deterministic for
// identical inputs.
func Rectify(src image.Image, corners SheetCorners, width, height int) (*Rectification, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", width, height)
	}
	if err := corners.Validate(); err != nil {
		return nil, err
	}

	target := RectTarget(width, height)
	fwd, err := SolveHomography(corners.Points(), target)
	if err != nil {
		return nil, err
	}
	inv, err := SolveHomography(target, corners.Points())
	if err != nil {
		return nil, err
	}

	return &Rectification{
		Image:   Warp(src, inv, width, height),
		Forward: fwd,
		Inverse: inv,
	}, nil
}

// Warp produces a width x height image whose pixel (x, y) is the bilinear
// sample of src at inv(x, y). inv maps into src's own coordinate space, so a
// src whose bounds do not start at (0,0) is sampled relative to its origin.
func Warp(src image.Image, inv Homography, width, height int) *image.NRGBA {
	s := imaging.Clone(src)
	origin := src.Bounds().Min
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+width*4]
		for x := 0; x < width; x++ {
			c := Paper
			if p, ok := inv.Apply(Point{X: float64(x), Y: float64(y)}); ok {
				c = bilinear(s, p.X-float64(origin.X), p.Y-float64(origin.Y))
			}
			i := x * 4
			row[i], row[i+1], row[i+2], row[i+3] = c.R, c.G, c.B, c.A
		}
	}
	return dst
}

// bilinear samples img at a fractional position. Neighbours outside the
// image contribute Paper.
func bilinear(img *image.NRGBA, fx, fy float64) color.NRGBA {
	if math.IsNaN(fx) || math.IsNaN(fy) {
		return Paper
	}
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	ax := fx - float64(x0)
	ay := fy - float64(y0)

	p00 := pixel(img, x0, y0)
	p10 := pixel(img, x0+1, y0)
	p01 := pixel(img, x0, y0+1)
	p11 := pixel(img, x0+1, y0+1)

	var out [4]uint8
	for ch := 0; ch < 4; ch++ {
		top := float64(p00[ch])*(1-ax) + float64(p10[ch])*ax
		bot := float64(p01[ch])*(1-ax) + float64(p11[ch])*ax
		v := top*(1-ay) + bot*ay
		out[ch] = uint8(math.Max(0, math.Min(255, math.Round(v))))
	}
	return color.NRGBA{R: out[0], G: out[1], B: out[2], A: out[3]}
}

func pixel(img *image.NRGBA, x, y int) [4]uint8 {
	b := img.Bounds()
	if x < 0 || y < 0 || x >= b.Dx() || y >= b.Dy() {
		return [4]uint8{Paper.R, Paper.G, Paper.B, Paper.A}
	}
	i := y*img.Stride + x*4
	return [4]uint8{img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3]}
}
