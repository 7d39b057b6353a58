package omr

import (
	"fmt"
	"math"
	"sort"

	"github.com/ironsheep/sheet-omr/internal/detection"
	"github.com/ironsheep/sheet-omr/internal/geometry"
)

// Corner names one corner of the sheet.
type Corner int

const (
	TopLeft Corner = iota
	TopRight
	BottomRight
	BottomLeft
)

func (c Corner) String() string {
	switch c {
	case TopLeft:
		return "top_left"
	case TopRight:
		return "top_right"
	case BottomRight:
		return "bottom_right"
	case BottomLeft:
		return "bottom_left"
	default:
		return fmt.Sprintf("corner(%d)", int(c))
	}
}

// cornerOfID is the fixed marker placement: ID n sits at corner n.
var cornerOfID = map[int]Corner{
	0: TopLeft,
	1: TopRight,
	2: BottomRight,
	3: BottomLeft,
}

// CornerOfID reports which sheet corner the marker with the given ID marks.
func CornerOfID(id int) (Corner, bool) {
	c, ok := cornerOfID[id]
	return c, ok
}

// RequiredMarkerIDs returns the marker IDs that must be present, in corner
// order.
func RequiredMarkerIDs() []int {
	return []int{0, 1, 2, 3}
}

// CornerMode selects the point taken from each corner marker.
type CornerMode string

const (
	// CornerCenter uses the mean of the marker's four corners.
	CornerCenter CornerMode = "center"

	// CornerOuter uses the marker corner farthest from the middle of the
	// sheet, i.e. the marker corner nearest the sheet corner.
	CornerOuter CornerMode = "outer"
)

// ResolveCorners picks one marker per sheet corner and reduces it to a point.
//
// Markers with IDs outside the required set are ignored. A duplicated
// required ID is reported before a missing one.
func ResolveCorners(markers []detection.Marker, mode CornerMode) (geometry.SheetCorners, error) {
	var found [4]*detection.Marker
	counts := make(map[int]int)
	for i := range markers {
		corner, ok := cornerOfID[markers[i].ID]
		if !ok {
			continue
		}
		counts[markers[i].ID]++
		found[corner] = &markers[i]
	}

	var dups []int
	for id, n := range counts {
		if n > 1 {
			dups = append(dups, id)
		}
	}
	if len(dups) > 0 {
		sort.Ints(dups)
		return geometry.SheetCorners{}, fmt.Errorf("%w: ids %v appear more than once", ErrDuplicateMarkerID, dups)
	}

	var missing []int
	for _, id := range RequiredMarkerIDs() {
		if found[cornerOfID[id]] == nil {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return geometry.SheetCorners{}, fmt.Errorf("%w: found %d of 4 corner markers, missing ids %v",
			ErrIncompleteMarkerSet, 4-len(missing), missing)
	}

	var pts [4]geometry.Point
	for i, m := range found {
		pts[i] = m.Center()
	}

	switch mode {
	case CornerCenter, "":
	case CornerOuter:
		mid := geometry.Centroid(pts[:])
		for i, m := range found {
			pts[i] = farthestFrom(m.Corners, mid)
		}
	default:
		return geometry.SheetCorners{}, configError("unknown corner mode %q", mode)
	}

	return geometry.SheetCorners{
		TopLeft:     pts[TopLeft],
		TopRight:    pts[TopRight],
		BottomRight: pts[BottomRight],
		BottomLeft:  pts[BottomLeft],
	}, nil
}

func farthestFrom(pts [4]geometry.Point, ref geometry.Point) geometry.Point {
	best, bestD := pts[0], math.Inf(-1)
	for _, p := range pts {
		if d := p.Dist(ref); d > bestD {
			best, bestD = p, d
		}
	}
	return best
}
