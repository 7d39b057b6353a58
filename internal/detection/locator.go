package detection

import (
	"image"
	"math"
	"sort"

	"github.com/ironsheep/sheet-omr/internal/geometry"
	"github.com/ironsheep/sheet-omr/internal/imaging"
)

// Marker is one decoded fiducial.
type Marker struct {
	// ID is the dictionary index decoded from the data modules.
	ID int `json:"id"`

	// Corners are the outer corners of the marker in source-image pixels,
	// starting at the marker's own top-left and running clockwise.
	Corners [4]geometry.Point `json:"corners"`
}

// Center returns the mean of the four corners.
func (m Marker) Center() geometry.Point {
	return geometry.Centroid(m.Corners[:])
}

// Options tunes the Locator.
type Options struct {
	// Preprocess enables median denoising before binarization.
	Preprocess bool

	// MedianRadius is the median filter radius used when Preprocess is set.
	MedianRadius float64

	// Scales lists the resize factors tried in order. The first pass that
	// finds every Required ID stops the search; otherwise the pass with the
	// most markers wins.
	Scales []float64

	// AdaptiveWindow enables a second, locally thresholded pass when > 0.
	AdaptiveWindow int

	// AdaptiveOffset is how much darker than its neighbourhood mean a pixel
	// must be to count as ink in the adaptive pass.
	AdaptiveOffset float64

	// MinSide is the smallest marker side in pixels accepted at scale 1.
	MinSide float64

	// MaxBorderErrors is how many border modules may read light.
	MaxBorderErrors int

	// MaxBitErrors is how many data bits may be corrected.
	MaxBitErrors int

	// Required are the IDs whose joint presence ends the scale search early.
	Required []int
}

// DefaultOptions returns the locator settings used by the pipeline.
func DefaultOptions() Options {
	return Options{
		Preprocess:      true,
		MedianRadius:    1,
		Scales:          []float64{1, 0.5},
		AdaptiveOffset:  10,
		MinSide:         12,
		MaxBorderErrors: 2,
		MaxBitErrors:    1,
		Required:        []int{0, 1, 2, 3},
	}
}

// Locator finds fiducial markers in raster images.
//
// A Locator holds configuration only and is safe for concurrent use.
type Locator struct {
	opts Options
}

// NewLocator creates a Locator. Zero-valued numeric options fall back to
// DefaultOptions.
func NewLocator(opts Options) *Locator {
	def := DefaultOptions()
	if len(opts.Scales) == 0 {
		opts.Scales = def.Scales
	}
	if opts.MedianRadius <= 0 {
		opts.MedianRadius = def.MedianRadius
	}
	if opts.MinSide <= 0 {
		opts.MinSide = def.MinSide
	}
	if opts.MaxBorderErrors < 0 {
		opts.MaxBorderErrors = 0
	}
	if opts.MaxBitErrors < 0 {
		opts.MaxBitErrors = 0
	}
	return &Locator{opts: opts}
}

// Detect returns every marker it can decode in img.
//
// An image with no markers is not an error: the result is simply empty.
// An error is returned only when img cannot be resampled for a retry scale.
// Markers are ordered by ID, then top-to-bottom, left-to-right.
func (l *Locator) Detect(img image.Image) ([]Marker, error) {
	origin := img.Bounds().Min
	var best []Marker
	for _, s := range l.opts.Scales {
		src := img
		if s != 1 {
			scaled, err := imaging.Scale(img, s)
			if err != nil {
				return nil, err
			}
			src = scaled
		}

		// Plane coordinates start at zero; map back to the caller's frame.
		markers := l.detectOnce(src, math.Max(l.opts.MinSide*s, 6))
		for i := range markers {
			for j := range markers[i].Corners {
				markers[i].Corners[j].X = markers[i].Corners[j].X/s + float64(origin.X)
				markers[i].Corners[j].Y = markers[i].Corners[j].Y/s + float64(origin.Y)
			}
		}

		if len(markers) > len(best) {
			best = markers
		}
		if hasAll(best, l.opts.Required) {
			break
		}
	}

	sortMarkers(best)
	return best, nil
}

// detectOnce runs every binarization pass on one scale and keeps the best.
func (l *Locator) detectOnce(img image.Image, minSide float64) []Marker {
	gray := imaging.Gray(img)
	if l.opts.Preprocess {
		gray = imaging.Median(gray, l.opts.MedianRadius)
	}

	level := imaging.OtsuThreshold(imaging.Histogram(gray, gray.Rect))
	best := l.scan(imaging.Binarize(gray, level), minSide)

	if l.opts.AdaptiveWindow > 0 && !hasAll(best, l.opts.Required) {
		bin := imaging.AdaptiveBinarize(gray, l.opts.AdaptiveWindow, l.opts.AdaptiveOffset)
		if alt := l.scan(bin, minSide); len(alt) > len(best) {
			best = alt
		}
	}

	return best
}

// scan fits and decodes a quadrilateral for every plausible ink blob.
func (l *Locator) scan(bin *image.Gray, minSide float64) []Marker {
	minPixels := int(minSide * minSide * 0.3)
	var markers []Marker

	eachComponent(bin, minPixels, func(c component) {
		if float64(c.bounds.Dx()) < minSide || float64(c.bounds.Dy()) < minSide {
			return
		}
		quad, ok := fitQuad(c.points, minSide)
		if !ok {
			return
		}
		if m, ok := l.decode(bin, quad); ok {
			markers = append(markers, m)
		}
	})
	return markers
}

// fitQuad finds the four extreme points of a blob: the point farthest from
// the centroid, the point farthest from that one, and the points farthest on
// either side of the diagonal between them. The result runs clockwise.
func fitQuad(pts []image.Point, minSide float64) ([4]geometry.Point, bool) {
	var quad [4]geometry.Point
	if len(pts) < 4 {
		return quad, false
	}

	fp := make([]geometry.Point, len(pts))
	for i, p := range pts {
		fp[i] = geometry.Pt(float64(p.X)+0.5, float64(p.Y)+0.5)
	}
	c := geometry.Centroid(fp)

	p1 := farthest(fp, c)
	p3 := farthest(fp, p1)
	diag := p3.Sub(p1)

	var p2, p4 geometry.Point
	var dPos, dNeg float64
	for _, p := range fp {
		d := diag.Cross(p.Sub(p1))
		if d > dPos {
			dPos, p2 = d, p
		}
		if d < dNeg {
			dNeg, p4 = d, p
		}
	}
	if dPos == 0 || dNeg == 0 {
		return quad, false
	}

	quad = [4]geometry.Point{p1, p2, p3, p4}
	if p2.Sub(p1).Cross(p3.Sub(p2)) < 0 {
		quad[1], quad[3] = quad[3], quad[1]
	}

	shortest, longest := math.Inf(1), 0.0
	for i := range quad {
		s := quad[i].Dist(quad[(i+1)%4])
		shortest = math.Min(shortest, s)
		longest = math.Max(longest, s)
	}
	if shortest < minSide*0.8 || longest > shortest*4 {
		return quad, false
	}

	sc := geometry.SheetCorners{TopLeft: quad[0], TopRight: quad[1], BottomRight: quad[2], BottomLeft: quad[3]}
	if sc.Validate() != nil {
		return quad, false
	}

	// A marker's ink covers between its bare border ring (~56%) and the
	// full square.
	fill := float64(len(pts)) / polygonArea(quad)
	if fill < 0.35 || fill > 1.3 {
		return quad, false
	}
	return quad, true
}

// decode samples the 6x6 module grid through the quad and identifies the
// data bits.
func (l *Locator) decode(bin *image.Gray, quad [4]geometry.Point) (Marker, bool) {
	n := float64(gridModules)
	unit := [4]geometry.Point{{X: 0, Y: 0}, {X: n, Y: 0}, {X: n, Y: n}, {X: 0, Y: n}}
	h, err := geometry.SolveHomography(unit, quad)
	if err != nil {
		return Marker{}, false
	}

	borderErrors := 0
	var observed uint16
	for r := 0; r < gridModules; r++ {
		for c := 0; c < gridModules; c++ {
			dark := moduleDark(bin, h, r, c)
			if r == 0 || c == 0 || r == gridModules-1 || c == gridModules-1 {
				if !dark {
					borderErrors++
				}
				continue
			}
			if dark {
				observed |= bitMask(r-1, c-1)
			}
		}
	}
	if borderErrors > l.opts.MaxBorderErrors {
		return Marker{}, false
	}

	id, turns, ok := Identify(observed, l.opts.MaxBitErrors)
	if !ok {
		return Marker{}, false
	}

	// After k clockwise turns the canonical top-left sits at quad corner k.
	var corners [4]geometry.Point
	for i := range corners {
		corners[i] = quad[(turns+i)%4]
	}
	return Marker{ID: id, Corners: corners}, true
}

// moduleDark votes over a 3x3 lattice of samples inside module (r, c).
func moduleDark(bin *image.Gray, h geometry.Homography, r, c int) bool {
	votes := 0
	for _, dy := range [3]float64{-0.2, 0, 0.2} {
		for _, dx := range [3]float64{-0.2, 0, 0.2} {
			p, ok := h.Apply(geometry.Pt(float64(c)+0.5+dx, float64(r)+0.5+dy))
			if !ok {
				continue
			}
			x, y := int(math.Floor(p.X)), int(math.Floor(p.Y))
			if x < 0 || y < 0 || x >= bin.Rect.Dx() || y >= bin.Rect.Dy() {
				continue
			}
			if bin.Pix[y*bin.Stride+x] == 0 {
				votes++
			}
		}
	}
	return votes >= 5
}

func farthest(pts []geometry.Point, from geometry.Point) geometry.Point {
	best, bestD := pts[0], -1.0
	for _, p := range pts {
		if d := p.Dist(from); d > bestD {
			best, bestD = p, d
		}
	}
	return best
}

func polygonArea(q [4]geometry.Point) float64 {
	var a float64
	for i := range q {
		a += q[i].Cross(q[(i+1)%4])
	}
	return math.Abs(a) / 2
}

func hasAll(markers []Marker, ids []int) bool {
	if len(ids) == 0 {
		return false
	}
	seen := make(map[int]bool, len(markers))
	for _, m := range markers {
		seen[m.ID] = true
	}
	for _, id := range ids {
		if !seen[id] {
			return false
		}
	}
	return true
}

func sortMarkers(markers []Marker) {
	sort.SliceStable(markers, func(i, j int) bool {
		if markers[i].ID != markers[j].ID {
			return markers[i].ID < markers[j].ID
		}
		ci, cj := markers[i].Center(), markers[j].Center()
		if ci.Y != cj.Y {
			return ci.Y < cj.Y
		}
		return ci.X < cj.X
	})
}
