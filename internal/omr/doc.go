// Package omr turns a photographed answer sheet into answers.
//
// A run is a straight line of stages, each consuming the previous stage's
// output:
//
//	markers  -> detection.Locator
//	corners  -> ResolveCorners
//	sheet    -> geometry.Rectify (plus optional crop)
//	cells    -> LayoutEngine
//	marks    -> Classifier
//	answers  -> Assemble
//
// Pipeline.ProcessImage wraps the stages and always returns a well-formed
// Result: either every question with its answer, or Success false with an
// error message and no questions. A question with no mark or several marks
// is answered "none" or "multiple" and is not a failure.
//
// Marker IDs 0, 1, 2 and 3 sit at the top-left, top-right, bottom-right and
// bottom-left corners. Other IDs are reported but ignored.
//
// # Errors
//
// Failures wrap one of the sentinel errors; KindOf groups them into marker
// detection, geometry and configuration failures.
package omr
