// Package face defines the Detector interface for trained face and
// expression detection backends.
//
// A Detector locates faces in a single video frame and reports, for each face,
// its bounding box, an optional landmark subset and a probability per
// expression label. Detectors are optional: the analyzer probes a detector
// once with Load and falls back to pixel-statistics estimation when the
// capability is missing.
//
// Implementations must be safe for concurrent use.
package face

import (
	"context"
	"image"

	"github.com/MrWong99/interviewcoach/pkg/types"
)

// Detection is one face found in a frame.
type Detection struct {
	// Box is the face rectangle in the frame's pixel coordinates.
	Box types.BoundingBox

	// Landmarks is nil when the detector does not report landmarks.
	Landmarks *types.Landmarks

	// Expressions maps expression label to probability in [0, 1].
	Expressions map[string]float64
}

// Detector is the trained face/expression detection capability.
type Detector interface {
	// Load checks that the detection models are available. It is called
	// exactly once before the first Detect; a non-nil error means the
	// capability is missing for the whole session.
	Load(ctx context.Context) error

	// Detect returns every face found in img, largest confidence first.
	// An empty slice with a nil error means no face is visible.
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}
