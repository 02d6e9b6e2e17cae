// Package vision defines the Provider interface for face analysis backends.
//
// A vision provider wraps a face landmark / detection service and is used by
// the reference-style extractor to measure head motion and expression
// variance in reference footage. Frames are exchanged as encoded JPEG bytes.
//
// Implementations must be safe for concurrent use; the extractor fans frames
// out across goroutines.
package vision

import (
	"context"
	"errors"
)

// ErrNoFace is returned when a frame contains no detectable face. Callers
// skip such frames rather than aborting the whole extraction.
var ErrNoFace = errors.New("vision: no face detected")

// Landmark is a single 2D facial landmark in coordinates normalised to the
// frame size, so x and y are in [0, 1].
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FaceBox is an axis-aligned face bounding box in coordinates normalised to
// the frame size.
type FaceBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	// Confidence is the detector's score in [0, 1].
	Confidence float64 `json:"confidence"`
}

// Provider is the abstraction over any face analysis backend.
type Provider interface {
	// DetectLandmarks returns the dense facial landmark set for the most
	// prominent face in the JPEG frame. Returns ErrNoFace (possibly wrapped)
	// when no face is found.
	DetectLandmarks(ctx context.Context, imageJPEG []byte) ([]Landmark, error)

	// DetectFace returns the bounding box of the most prominent face in the
	// JPEG frame. Returns ErrNoFace (possibly wrapped) when no face is found.
	DetectFace(ctx context.Context, imageJPEG []byte) (*FaceBox, error)

	// Name returns a short identifier for logging and metrics ("mediapipe").
	Name() string
}
