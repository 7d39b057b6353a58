package detection

import (
	"image"
)

// component is one 8-connected blob of ink pixels in a binary plane.
type component struct {
	points []image.Point
	bounds image.Rectangle
}

// eachComponent flood-fills every ink (zero) region of bin and calls fn for
// those with at least minPixels pixels. The points slice is reused between
// calls, so fn must not retain it.
func eachComponent(bin *image.Gray, minPixels int, fn func(component)) {
	w, h := bin.Rect.Dx(), bin.Rect.Dy()
	visited := make([]bool, w*h)
	var pts []image.Point
	var stack []image.Point

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if visited[y*w+x] || bin.Pix[y*bin.Stride+x] != 0 {
				continue
			}
			pts = pts[:0]
			stack = append(stack[:0], image.Pt(x, y))
			visited[y*w+x] = true
			bounds := image.Rect(x, y, x+1, y+1)

			// Iterative fill so large blobs cannot overflow the goroutine stack.
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				pts = append(pts, p)
				bounds = bounds.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))

				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := p.X+dx, p.Y+dy
						if nx < 0 || ny < 0 || nx >= w || ny >= h {
							continue
						}
						i := ny*w + nx
						if visited[i] || bin.Pix[ny*bin.Stride+nx] != 0 {
							continue
						}
						visited[i] = true
						stack = append(stack, image.Pt(nx, ny))
					}
				}
			}

			if len(pts) >= minPixels {
				fn(component{points: pts, bounds: bounds})
			}
		}
	}
}
