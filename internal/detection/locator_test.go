package detection

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/sheet-omr/internal/geometry"
)

// newPage creates a white page.
func newPage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	return img
}

// createMarkerImage draws markers on a white page. Each entry of origins is
// the top-left pixel of the marker with the same index as its ID.
func createMarkerImage(t *testing.T, width, height, module int, origins map[int]image.Point) *image.RGBA {
	t.Helper()
	img := newPage(width, height)
	for id, o := range origins {
		if err := DrawMarker(img, id, o, module); err != nil {
			t.Fatalf("DrawMarker(%d) failed: %v", id, err)
		}
	}
	return img
}

// expectedCorners returns the pixel-center corners of a drawn marker.
func expectedCorners(o image.Point, module int) [4]geometry.Point {
	side := float64(MarkerModules * module)
	x, y := float64(o.X)+0.5, float64(o.Y)+0.5
	return [4]geometry.Point{
		{X: x, Y: y},
		{X: x + side - 1, Y: y},
		{X: x + side - 1, Y: y + side - 1},
		{X: x, Y: y + side - 1},
	}
}

func near(a, b geometry.Point, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol
}

func TestDrawMarker(t *testing.T) {
	img := newPage(80, 80)
	if err := DrawMarker(img, 0, image.Pt(10, 10), 10); err != nil {
		t.Fatalf("DrawMarker failed: %v", err)
	}

	// Border modules are always black.
	for _, p := range []image.Point{{15, 15}, {65, 15}, {15, 65}, {65, 65}, {40, 15}} {
		r, _, _, _ := img.At(p.X, p.Y).RGBA()
		if r != 0 {
			t.Errorf("border pixel %v is not black", p)
		}
	}

	// Quiet zone stays white.
	r, _, _, _ := img.At(5, 5).RGBA()
	if r != 0xFFFF {
		t.Errorf("quiet zone pixel is not white")
	}
}

func TestDrawMarkerErrors(t *testing.T) {
	img := newPage(80, 80)
	tests := []struct {
		name   string
		id     int
		module int
	}{
		{"negative id", -1, 5},
		{"id beyond dictionary", DictionarySize(), 5},
		{"zero module", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := DrawMarker(img, tt.id, image.Pt(0, 0), tt.module); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDetectFourMarkers(t *testing.T) {
	const module = 8
	origins := map[int]image.Point{
		0: {20, 20},
		1: {332, 20},
		2: {332, 432},
		3: {20, 432},
	}
	img := createMarkerImage(t, 400, 500, module, origins)

	markers, err := NewLocator(DefaultOptions()).Detect(img)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(markers) != 4 {
		t.Fatalf("expected 4 markers, got %d", len(markers))
	}

	for i, m := range markers {
		if m.ID != i {
			t.Errorf("marker %d has ID %d; output must be sorted by ID", i, m.ID)
		}
		want := expectedCorners(origins[m.ID], module)
		for j := range want {
			if !near(m.Corners[j], want[j], 2) {
				t.Errorf("marker %d corner %d = %v, want %v", m.ID, j, m.Corners[j], want[j])
			}
		}
	}
}

func TestDetectRotatedMarker(t *testing.T) {
	const module = 10
	img := createMarkerImage(t, 100, 100, module, map[int]image.Point{5: {20, 20}})

	// A quarter turn counter-clockwise moves the marker's own top-left to the
	// bottom-left of the image.
	rotated := imaging.Rotate90(img)

	markers, err := NewLocator(DefaultOptions()).Detect(rotated)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(markers) != 1 {
		t.Fatalf("expected 1 marker, got %d", len(markers))
	}
	m := markers[0]
	if m.ID != 5 {
		t.Errorf("expected ID 5, got %d", m.ID)
	}

	want := []geometry.Point{{X: 20.5, Y: 79.5}, {X: 20.5, Y: 20.5}, {X: 79.5, Y: 20.5}, {X: 79.5, Y: 79.5}}
	for j := range want {
		if !near(m.Corners[j], want[j], 2) {
			t.Errorf("corner %d = %v, want %v", j, m.Corners[j], want[j])
		}
	}
}

func TestDetectRejectsNonMarkers(t *testing.T) {
	tests := []struct {
		name string
		draw func(img *image.RGBA)
	}{
		{"blank page", func(img *image.RGBA) {}},
		{"solid square", func(img *image.RGBA) {
			for y := 20; y < 80; y++ {
				for x := 20; x < 80; x++ {
					img.Set(x, y, color.Black)
				}
			}
		}},
		{"hollow square", func(img *image.RGBA) {
			for y := 20; y < 80; y++ {
				for x := 20; x < 80; x++ {
					if x < 30 || x >= 70 || y < 30 || y >= 70 {
						img.Set(x, y, color.Black)
					}
				}
			}
		}},
		{"thin line", func(img *image.RGBA) {
			for x := 10; x < 90; x++ {
				img.Set(x, 50, color.Black)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := newPage(100, 100)
			tt.draw(img)
			markers, err := NewLocator(DefaultOptions()).Detect(img)
			if err != nil {
				t.Fatalf("Detect failed: %v", err)
			}
			if len(markers) != 0 {
				t.Errorf("expected no markers, got %+v", markers)
			}
		})
	}
}

func TestDetectAtReducedScale(t *testing.T) {
	const module = 10
	o := image.Pt(30, 30)
	img := createMarkerImage(t, 160, 160, module, map[int]image.Point{2: o})

	opts := DefaultOptions()
	opts.Scales = []float64{0.5}
	markers, err := NewLocator(opts).Detect(img)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(markers) != 1 || markers[0].ID != 2 {
		t.Fatalf("expected marker 2, got %+v", markers)
	}

	// Corners come back in full-resolution pixels.
	want := expectedCorners(o, module)
	for j := range want {
		if !near(markers[0].Corners[j], want[j], 3) {
			t.Errorf("corner %d = %v, want %v", j, markers[0].Corners[j], want[j])
		}
	}
}

func TestDetectPartialSet(t *testing.T) {
	origins := map[int]image.Point{
		0: {20, 20},
		1: {200, 20},
		3: {20, 200},
	}
	img := createMarkerImage(t, 300, 300, 8, origins)

	markers, err := NewLocator(DefaultOptions()).Detect(img)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(markers) != 3 {
		t.Fatalf("expected 3 markers, got %d", len(markers))
	}
	for i, id := range []int{0, 1, 3} {
		if markers[i].ID != id {
			t.Errorf("marker %d: expected ID %d, got %d", i, id, markers[i].ID)
		}
	}
}

func TestDetectNonZeroOrigin(t *testing.T) {
	img := createMarkerImage(t, 200, 200, 8, map[int]image.Point{4: {100, 100}})
	sub := img.SubImage(image.Rect(50, 50, 200, 200))

	markers, err := NewLocator(DefaultOptions()).Detect(sub)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(markers) != 1 {
		t.Fatalf("expected 1 marker, got %d", len(markers))
	}
	want := expectedCorners(image.Pt(100, 100), 8)
	if !near(markers[0].Corners[0], want[0], 2) {
		t.Errorf("corner 0 = %v, want %v in parent coordinates", markers[0].Corners[0], want[0])
	}
}

func TestMarkerCenter(t *testing.T) {
	m := Marker{Corners: [4]geometry.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}}
	if c := m.Center(); c.X != 5 || c.Y != 5 {
		t.Errorf("Center() = %v, want (5, 5)", c)
	}
}
