package omr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ironsheep/sheet-omr/internal/geometry"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"unreadable", fmt.Errorf("%w: bad png", ErrImageUnreadable), KindMarkerDetection},
		{"incomplete", ErrIncompleteMarkerSet, KindMarkerDetection},
		{"duplicate", fmt.Errorf("wrapped: %w", ErrDuplicateMarkerID), KindMarkerDetection},
		{"degenerate", ErrDegenerateCorners, KindGeometry},
		{"geometry package", fmt.Errorf("%w: collinear", geometry.ErrDegenerate), KindGeometry},
		{"config", configError("bad %s", "thing"), KindConfiguration},
		{"other", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "marker_detection", KindMarkerDetection.String())
	assert.Equal(t, "geometry", KindGeometry.String())
	assert.Equal(t, "configuration", KindConfiguration.String())
	assert.Equal(t, "none", KindNone.String())
	assert.Equal(t, "unknown", Kind(42).String())
}

func TestConfigErrorMessage(t *testing.T) {
	err := configError("num_questions must be positive, got %d", 0)
	assert.EqualError(t, err, "invalid configuration: num_questions must be positive, got 0")
}
