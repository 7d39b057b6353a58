package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// maxCondition is the largest 2-norm condition number accepted for the
// normalized 8x8 correspondence system.
const maxCondition = 1e10

// Homography is a 3x3 projective transform stored row-major with H[8] == 1.
type Homography [9]float64

// Identity returns the identity transform.
func Identity() Homography {
	return Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// Apply maps p through the transform. ok is false when p lies on the
// transform's line at infinity.
func (h Homography) Apply(p Point) (q Point, ok bool) {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if math.Abs(w) < 1e-12 {
		return Point{}, false
	}
	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}, true
}

// Inverse returns the inverse transform.
func (h Homography) Inverse() (Homography, error) {
	var inv mat.Dense
	if err := inv.Inverse(mat.NewDense(3, 3, h[:])); err != nil {
		return Homography{}, fmt.Errorf("%w: transform is not invertible: %v", ErrDegenerate, err)
	}
	return fromDense(&inv)
}

// SolveHomography computes the unique projective transform mapping src[i] to
// dst[i] for i = 0..3.
//
// Both point sets are normalized (centroid at the origin, mean distance
// sqrt(2)) before the 8x8 system is solved; the result is denormalized and
// scaled so that H[8] == 1.
func SolveHomography(src, dst [4]Point) (Homography, error) {
	tSrc, nSrc := normalize(src)
	tDst, nDst := normalize(dst)

	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := 0; i < 4; i++ {
		x, y := nSrc[i].X, nSrc[i].Y
		u, v := nDst[i].X, nDst[i].Y
		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y})
		b.SetVec(2*i, u)
		b.SetVec(2*i+1, v)
	}

	if c := mat.Cond(a, 2); math.IsInf(c, 0) || math.IsNaN(c) || c > maxCondition {
		return Homography{}, fmt.Errorf("%w: correspondence system is ill-conditioned (cond=%.3g)", ErrDegenerate, c)
	}

	var sol mat.VecDense
	if err := sol.SolveVec(a, b); err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}

	hn := mat.NewDense(3, 3, []float64{
		sol.AtVec(0), sol.AtVec(1), sol.AtVec(2),
		sol.AtVec(3), sol.AtVec(4), sol.AtVec(5),
		sol.AtVec(6), sol.AtVec(7), 1,
	})

	var tDstInv mat.Dense
	if err := tDstInv.Inverse(tDst); err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}

	var tmp, full mat.Dense
	tmp.Mul(hn, tSrc)
	full.Mul(&tDstInv, &tmp)

	return fromDense(&full)
}

// normalize returns the Hartley similarity for pts and the transformed points.
func normalize(pts [4]Point) (*mat.Dense, [4]Point) {
	c := Centroid(pts[:])
	var mean float64
	for _, p := range pts {
		mean += p.Dist(c)
	}
	mean /= 4

	s := 1.0
	if mean > 0 {
		s = math.Sqrt2 / mean
	}

	var out [4]Point
	for i, p := range pts {
		out[i] = Point{X: (p.X - c.X) * s, Y: (p.Y - c.Y) * s}
	}

	t := mat.NewDense(3, 3, []float64{
		s, 0, -s * c.X,
		0, s, -s * c.Y,
		0, 0, 1,
	})
	return t, out
}

func fromDense(m mat.Matrix) (Homography, error) {
	w := m.At(2, 2)
	if math.Abs(w) < 1e-12 {
		return Homography{}, fmt.Errorf("%w: transform has zero scale", ErrDegenerate)
	}
	var h Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			h[r*3+c] = m.At(r, c) / w
		}
	}
	return h, nil
}
