package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrDegenerate is returned when four corners cannot define a valid
// perspective transform.
var ErrDegenerate = errors.New("degenerate sheet corners")

const (
	// minCornerSeparation is the smallest distance in pixels between two
	// distinct sheet corners.
	minCornerSeparation = 1.0

	// minTriangleRatio bounds twice the area of any corner triangle relative
	// to the square of its longest side. Below it the points are treated as
	// collinear.
	minTriangleRatio = 1e-3
)

// Point is a 2D coordinate in pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Cross returns the z component of the cross product of p and q.
func (p Point) Cross(q Point) float64 {
	return p.X*q.Y - p.Y*q.X
}

// Centroid returns the arithmetic mean of pts. It returns the zero Point for
// an empty slice.
func Centroid(pts []Point) Point {
	if len(pts) == 0 {
		return Point{}
	}
	var sx, sy float64
	for _, p := range pts {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(pts))
	return Point{X: sx / n, Y: sy / n}
}

// SheetCorners holds one representative point per sheet corner.
type SheetCorners struct {
	TopLeft     Point `json:"top_left"`
	TopRight    Point `json:"top_right"`
	BottomRight Point `json:"bottom_right"`
	BottomLeft  Point `json:"bottom_left"`
}

// Points returns the corners in clockwise order starting at the top-left.
func (c SheetCorners) Points() [4]Point {
	return [4]Point{c.TopLeft, c.TopRight, c.BottomRight, c.BottomLeft}
}

// Validate rejects coincident, collinear, non-convex and mirrored corner sets.
//
// The corners must run clockwise on screen (Y down): top-left, top-right,
// bottom-right, bottom-left. A counter-clockwise ordering means the sheet
// was mirrored or the marker IDs were printed in the wrong corners.
func (c SheetCorners) Validate() error {
	pts := c.Points()

	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			if pts[i].Dist(pts[j]) < minCornerSeparation {
				return fmt.Errorf("%w: corners %d and %d coincide at (%.1f,%.1f)",
					ErrDegenerate, i, j, pts[i].X, pts[i].Y)
			}
		}
	}

	// Every choice of three corners must span a real triangle.
	triples := [4][3]int{{0, 1, 2}, {1, 2, 3}, {2, 3, 0}, {3, 0, 1}}
	for _, t := range triples {
		a, b, p := pts[t[0]], pts[t[1]], pts[t[2]]
		area2 := math.Abs(b.Sub(a).Cross(p.Sub(a)))
		longest := math.Max(a.Dist(b), math.Max(b.Dist(p), p.Dist(a)))
		if area2/(longest*longest) < minTriangleRatio {
			return fmt.Errorf("%w: corners %d, %d and %d are collinear",
				ErrDegenerate, t[0], t[1], t[2])
		}
	}

	for i := 0; i < 4; i++ {
		e1 := pts[(i+1)%4].Sub(pts[i])
		e2 := pts[(i+2)%4].Sub(pts[(i+1)%4])
		if e1.Cross(e2) <= 0 {
			return fmt.Errorf("%w: quadrilateral is not convex and clockwise at corner %d",
				ErrDegenerate, (i+1)%4)
		}
	}

	return nil
}

// MeanSides returns the average width (top and bottom edges) and the average
// height (left and right edges) of the corner quadrilateral.
func (c SheetCorners) MeanSides() (width, height float64) {
	width = (c.TopLeft.Dist(c.TopRight) + c.BottomLeft.Dist(c.BottomRight)) / 2
	height = (c.TopLeft.Dist(c.BottomLeft) + c.TopRight.Dist(c.BottomRight)) / 2
	return width, height
}
