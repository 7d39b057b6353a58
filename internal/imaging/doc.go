// Package imaging provides the raster primitives shared by the marker
// locator, the OMR pipeline and the sheet generator.
//
// It covers decoding (with a path-keyed cache), luminance conversion and
// thresholding, cropping and scaling, and a small drawing canvas used for
// debug overlays and generated sheets.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner, X
// increasing rightward and Y increasing downward. Rectangles follow
// image.Rectangle: Min is inclusive, Max is exclusive.
//
// Every function that derives a new image (Gray, Median, Binarize, CropSheet,
// Scale) returns one whose bounds start at (0,0), whatever the bounds of its
// input.
//
// # Thresholding
//
// Gray levels are 0 (black) to 255 (white). A pixel is ink when its value is
// strictly below the threshold level. OtsuThreshold picks a global level from
// a histogram; AdaptiveBinarize compares each pixel against its local mean
// instead, for unevenly lit scans.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. All other functions are
// stateless. A Canvas is not safe for concurrent drawing.
package imaging
