package omr

import (
	"errors"
	"fmt"

	"github.com/ironsheep/sheet-omr/internal/geometry"
)

// Sentinel errors. Wrapped errors returned by the pipeline always match one of
// these with errors.Is.
var (
	// ErrImageUnreadable means the source image could not be loaded or decoded.
	ErrImageUnreadable = errors.New("image could not be read")

	// ErrIncompleteMarkerSet means fewer than four distinct corner marker IDs
	// were found.
	ErrIncompleteMarkerSet = errors.New("incomplete marker set")

	// ErrDuplicateMarkerID means a corner marker ID was found more than once.
	ErrDuplicateMarkerID = errors.New("duplicate marker id")

	// ErrDegenerateCorners means the sheet corners cannot define a
	// perspective transform.
	ErrDegenerateCorners = geometry.ErrDegenerate

	// ErrInvalidConfig means the requested configuration cannot produce a
	// valid grid.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Kind classifies a pipeline error.
type Kind int

const (
	// KindNone is the kind of a nil error.
	KindNone Kind = iota

	// KindMarkerDetection covers unreadable images and missing or duplicate
	// corner markers.
	KindMarkerDetection

	// KindGeometry covers degenerate sheet corners.
	KindGeometry

	// KindConfiguration covers invalid question, choice or grid settings.
	KindConfiguration

	// KindUnknown is any other error.
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindMarkerDetection:
		return "marker_detection"
	case KindGeometry:
		return "geometry"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// KindOf maps err to its Kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrImageUnreadable),
		errors.Is(err, ErrIncompleteMarkerSet),
		errors.Is(err, ErrDuplicateMarkerID):
		return KindMarkerDetection
	case errors.Is(err, ErrDegenerateCorners):
		return KindGeometry
	case errors.Is(err, ErrInvalidConfig):
		return KindConfiguration
	default:
		return KindUnknown
	}
}

func configError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
