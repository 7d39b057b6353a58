package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
)

// Gray converts img to an 8-bit luminance plane whose bounds start at (0,0).
func Gray(img image.Image) *image.Gray {
	return luma(effect.Grayscale(img))
}

// Median applies a median filter of the given radius and returns the
// luminance plane of the result. A radius <= 0 returns g unchanged.
func Median(g *image.Gray, radius float64) *image.Gray {
	if radius <= 0 {
		return g
	}
	return luma(effect.Median(g, radius))
}

// luma copies the red channel of a grey RGBA image into a zero-origin plane.
func luma(src *image.RGBA) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			dst[x] = row[x*4]
		}
	}
	return out
}

// Histogram counts the luminance values inside r (clipped to g's bounds).
func Histogram(g *image.Gray, r image.Rectangle) [256]int {
	var hist [256]int
	r = r.Intersect(g.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := g.Pix[(y-g.Rect.Min.Y)*g.Stride:]
		for x := r.Min.X; x < r.Max.X; x++ {
			hist[row[x-g.Rect.Min.X]]++
		}
	}
	return hist
}

// OtsuThreshold returns the level t that maximizes the between-class
// variance of hist, where the dark class is every value below t.
//
// When several adjacent levels separate the classes equally well (a purely
// two-valued image) the middle of that run is returned. An empty or
// single-valued histogram yields 0, so nothing is classed dark.
func OtsuThreshold(hist [256]int) uint8 {
	var total, sumAll int
	for i, h := range hist {
		total += h
		sumAll += i * h
	}

	var sumB, wB int
	best, last := 0, 0
	bestVar := 0.0
	for t := 1; t < 256; t++ {
		wB += hist[t-1]
		sumB += (t - 1) * hist[t-1]
		if wB == 0 || wB == total {
			continue
		}
		wF := total - wB
		mB := float64(sumB) / float64(wB)
		mF := float64(sumAll-sumB) / float64(wF)
		v := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		switch {
		case v > bestVar:
			bestVar = v
			best, last = t, t
		case v == bestVar && t == last+1:
			last = t
		}
	}
	return uint8((best + last) / 2)
}

// Binarize maps every pixel below level to 0 (ink) and every other pixel to
// 255 (paper).
func Binarize(g *image.Gray, level uint8) *image.Gray {
	return segment.Threshold(g, level)
}

// AdaptiveBinarize marks a pixel as ink when it is darker than the mean of
// the window x window neighbourhood around it by more than offset.
//
// The local mean comes from a summed-area table, so the cost is independent
// of the window size.
func AdaptiveBinarize(g *image.Gray, window int, offset float64) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}
	if window < 3 {
		window = 3
	}
	half := window / 2

	// integral has a zero row and column so lookups need no bounds checks.
	stride := w + 1
	integral := make([]int64, stride*(h+1))
	for y := 0; y < h; y++ {
		var rowSum int64
		src := g.Pix[y*g.Stride:]
		for x := 0; x < w; x++ {
			rowSum += int64(src[x])
			integral[(y+1)*stride+x+1] = integral[y*stride+x+1] + rowSum
		}
	}

	for y := 0; y < h; y++ {
		y0, y1 := clamp(y-half, 0, h), clamp(y+half+1, 0, h)
		for x := 0; x < w; x++ {
			x0, x1 := clamp(x-half, 0, w), clamp(x+half+1, 0, w)
			sum := integral[y1*stride+x1] - integral[y0*stride+x1] - integral[y1*stride+x0] + integral[y0*stride+x0]
			area := float64((y1 - y0) * (x1 - x0))
			v := float64(g.Pix[y*g.Stride+x])
			if v < float64(sum)/area-offset {
				out.Pix[y*out.Stride+x] = 0
			} else {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// clamp constrains val to the range [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
