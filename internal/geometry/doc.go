// Package geometry recovers the planar pose of an answer sheet and removes
// perspective distortion from a photograph of it.
//
// # Coordinate System
//
// All coordinates follow the image convention used by the rest of the module:
//   - Origin (0, 0) at the top-left corner
//   - X increases rightward, Y increases downward
//   - Points are float64 so sub-pixel marker corners survive the transform
//
// # Homography
//
// A Homography is a 3x3 projective transform with h[8] normalized to 1. It is
// solved from exactly four point correspondences (8 degrees of freedom) using
// Hartley normalization followed by a dense linear solve from gonum.
//
// # Rectification
//
// Rectify maps the four sheet corners onto a W x H rectangle:
//
//	top_left     -> (0, 0)
//	top_right    -> (W, 0)
//	bottom_right -> (W, H)
//	bottom_left  -> (0, H)
//
// and inverse-warps every output pixel with bilinear interpolation. Samples that
// fall outside the source image are filled with white paper so the border never
// reads as ink.
//
// Degenerate corner sets (coincident, collinear, self-intersecting or mirrored)
// are rejected with ErrDegenerate before any solve is attempted.
package geometry
