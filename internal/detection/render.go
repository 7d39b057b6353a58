package detection

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

// MarkerModules is the side of a printed marker in modules.
const MarkerModules = gridModules

// DrawMarker prints marker id in canonical orientation with its top-left
// corner at origin. Each module is moduleSize x moduleSize pixels. The
// caller is responsible for leaving a light quiet zone around the marker.
func DrawMarker(dst draw.Image, id int, origin image.Point, moduleSize int) error {
	code, ok := Code(id)
	if !ok {
		return fmt.Errorf("marker id %d outside dictionary (0-%d)", id, DictionarySize()-1)
	}
	if moduleSize < 1 {
		return fmt.Errorf("invalid module size %d", moduleSize)
	}

	black := image.NewUniform(color.Black)
	white := image.NewUniform(color.White)

	for r := 0; r < gridModules; r++ {
		for c := 0; c < gridModules; c++ {
			src := white
			if r == 0 || c == 0 || r == gridModules-1 || c == gridModules-1 || bitAt(code, r-1, c-1) {
				src = black
			}
			cell := image.Rect(0, 0, moduleSize, moduleSize).Add(origin).Add(image.Pt(c*moduleSize, r*moduleSize))
			draw.Draw(dst, cell, src, image.Point{}, draw.Src)
		}
	}
	return nil
}
