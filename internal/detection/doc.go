// Package detection finds and decodes the square fiducial markers printed at
// the corners of an answer sheet.
//
// # Marker Format
//
// A marker is a 6x6 grid of square modules: a solid black one-module border
// around a 4x4 data grid. A black data module is a set bit. Bit 15 is the
// top-left data module and bit 0 the bottom-right, read row by row.
//
// The dictionary holds 32 codes, chosen greedily in ascending numeric order
// from the 16-bit patterns with 5 to 11 set bits. Every code differs in at
// least 3 bits from every rotation of every other code and from its own
// non-identity rotations, so a single flipped module is corrected and the
// orientation of a marker is never ambiguous.
//
// # Algorithm Overview
//
//  1. Grayscale conversion and an optional median filter
//  2. Global Otsu binarization, plus a local-mean pass when configured
//  3. 8-connected ink components above a minimum size
//  4. Quadrilateral fit from the extreme points of each component
//  5. Module sampling through a homography and dictionary lookup
//
// The whole search repeats at each configured scale until the required IDs
// are all found; corners are always reported in original-image pixels.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//
// Marker corners are reported clockwise starting from the marker's own
// top-left, regardless of how the marker is rotated in the image.
//
// # Limitations
//
// Mirrored markers decode as a different code or not at all. Markers whose
// border touches another ink region merge into one component and are missed,
// so printed sheets need a light quiet zone around each marker.
package detection
