package imaging

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// CropSheet cuts an absolute rectangle out of a rectified sheet.
//
// The rectangle may be given with its corners in either order; it is
// normalized and clamped to the image bounds first. A rectangle with no area
// left after clamping is an error. The result always starts at (0,0).
func CropSheet(img image.Image, r image.Rectangle) (*image.NRGBA, error) {
	bounds := img.Bounds()
	r = r.Canon().Intersect(bounds)
	if r.Empty() {
		return nil, fmt.Errorf("crop region outside image bounds (%d,%d)-(%d,%d)",
			bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Max.Y)
	}
	return imaging.Crop(img, r), nil
}

// Scale resizes img by factor using linear filtering. A factor of 1 returns
// an unscaled copy.
func Scale(img image.Image, factor float64) (*image.NRGBA, error) {
	if factor <= 0 {
		return nil, fmt.Errorf("invalid scale factor %g", factor)
	}
	if factor == 1 {
		return imaging.Clone(img), nil
	}
	b := img.Bounds()
	w := int(float64(b.Dx())*factor + 0.5)
	h := int(float64(b.Dy())*factor + 0.5)
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("scale factor %g collapses %dx%d image", factor, b.Dx(), b.Dy())
	}
	return imaging.Resize(img, w, h, imaging.Linear), nil
}
