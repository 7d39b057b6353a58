package omr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/sheet-omr/internal/detection"
	"github.com/ironsheep/sheet-omr/internal/geometry"
)

// square returns a marker of the given side centered at (cx, cy).
func square(id int, cx, cy, side float64) detection.Marker {
	h := side / 2
	return detection.Marker{
		ID: id,
		Corners: [4]geometry.Point{
			{X: cx - h, Y: cy - h},
			{X: cx + h, Y: cy - h},
			{X: cx + h, Y: cy + h},
			{X: cx - h, Y: cy + h},
		},
	}
}

func sheetMarkers() []detection.Marker {
	return []detection.Marker{
		square(2, 900, 1100, 60),
		square(0, 100, 100, 60),
		square(3, 100, 1100, 60),
		square(1, 900, 100, 60),
	}
}

func TestResolveCornersCenter(t *testing.T) {
	c, err := ResolveCorners(sheetMarkers(), CornerCenter)
	require.NoError(t, err)

	assert.Equal(t, geometry.Pt(100, 100), c.TopLeft)
	assert.Equal(t, geometry.Pt(900, 100), c.TopRight)
	assert.Equal(t, geometry.Pt(900, 1100), c.BottomRight)
	assert.Equal(t, geometry.Pt(100, 1100), c.BottomLeft)
	assert.NoError(t, c.Validate())
}

func TestResolveCornersDefaultModeIsCenter(t *testing.T) {
	a, err := ResolveCorners(sheetMarkers(), "")
	require.NoError(t, err)
	b, err := ResolveCorners(sheetMarkers(), CornerCenter)
	require.NoError(t, err)
	assert.Equal(t, b, a)
}

func TestResolveCornersOuter(t *testing.T) {
	c, err := ResolveCorners(sheetMarkers(), CornerOuter)
	require.NoError(t, err)

	assert.Equal(t, geometry.Pt(70, 70), c.TopLeft)
	assert.Equal(t, geometry.Pt(930, 70), c.TopRight)
	assert.Equal(t, geometry.Pt(930, 1130), c.BottomRight)
	assert.Equal(t, geometry.Pt(70, 1130), c.BottomLeft)
}

func TestResolveCornersIgnoresOtherIDs(t *testing.T) {
	markers := append(sheetMarkers(), square(7, 500, 500, 60), square(7, 500, 700, 60))
	c, err := ResolveCorners(markers, CornerCenter)
	require.NoError(t, err)
	assert.Equal(t, geometry.Pt(100, 100), c.TopLeft)
}

func TestResolveCornersFailures(t *testing.T) {
	tests := []struct {
		name    string
		markers []detection.Marker
		want    error
	}{
		{"none", nil, ErrIncompleteMarkerSet},
		{"missing bottom-left", sheetMarkers()[:3], ErrIncompleteMarkerSet},
		{"only foreign ids", []detection.Marker{square(9, 0, 0, 10)}, ErrIncompleteMarkerSet},
		{"duplicate", append(sheetMarkers(), square(1, 500, 100, 60)), ErrDuplicateMarkerID},
		{"duplicate reported before missing", []detection.Marker{
			square(0, 100, 100, 60),
			square(0, 900, 100, 60),
		}, ErrDuplicateMarkerID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveCorners(tt.markers, CornerCenter)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, KindMarkerDetection, KindOf(err))
		})
	}
}

func TestResolveCornersUnknownMode(t *testing.T) {
	_, err := ResolveCorners(sheetMarkers(), CornerMode("nearest"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestResolveCornersMirrored(t *testing.T) {
	// IDs 1 and 3 swapped: the corners run counter-clockwise.
	markers := []detection.Marker{
		square(0, 100, 100, 60),
		square(3, 900, 100, 60),
		square(2, 900, 1100, 60),
		square(1, 100, 1100, 60),
	}
	c, err := ResolveCorners(markers, CornerCenter)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Validate(), ErrDegenerateCorners)
}

func TestCornerString(t *testing.T) {
	assert.Equal(t, "top_left", TopLeft.String())
	assert.Equal(t, "bottom_left", BottomLeft.String())
	assert.Equal(t, []int{0, 1, 2, 3}, RequiredMarkerIDs())
}

func TestCornerOfID(t *testing.T) {
	for i, id := range RequiredMarkerIDs() {
		c, ok := CornerOfID(id)
		require.True(t, ok)
		assert.Equal(t, Corner(i), c)
	}
	_, ok := CornerOfID(7)
	assert.False(t, ok)
}
