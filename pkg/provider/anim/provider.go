// Package anim defines the Provider interface for face animation backends.
//
// An animation provider wraps an audio-driven talking-head model server and
// exposes two operations: extracting per-frame motion coefficients from audio
// plus a reference image, and rendering a coefficient sequence back into
// video. Splitting the two lets the motion governor sit between them and
// reshape the coefficients before any pixels are produced.
//
// Implementations must be safe for concurrent use, though a single model
// server typically serialises heavy requests internally.
package anim

import (
	"context"

	"github.com/lumenlabs/lumen/pkg/coeff"
)

// CoeffRequest asks the model to predict motion coefficients for an utterance.
type CoeffRequest struct {
	// AudioWAV is a complete WAV file containing the utterance.
	AudioWAV []byte

	// ImageJPEG is the reference portrait the coefficients will animate.
	ImageJPEG []byte

	// FPS is the coefficient frame rate. Must be positive.
	FPS int
}

// RenderRequest asks the model to render a coefficient sequence into video.
type RenderRequest struct {
	// Coeffs is the (possibly governed) coefficient sequence to render. Its
	// frame count at FPS determines the video duration.
	Coeffs *coeff.Bundle

	// AudioWAV is the soundtrack, muxed into the output video.
	AudioWAV []byte

	// ImageJPEG is the reference portrait.
	ImageJPEG []byte

	// FPS is the output video frame rate. Must match the coefficient rate.
	FPS int

	// Resolution is the output video size in pixels (square). Zero means
	// server default.
	Resolution int

	// Enhance enables the server's face enhancement pass. Slower but sharper.
	Enhance bool
}

// RenderResult is the rendered video.
type RenderResult struct {
	// VideoMP4 is the complete MP4 container with audio muxed in.
	VideoMP4 []byte
}

// Provider is the abstraction over any talking-head animation backend.
type Provider interface {
	// AudioToCoeffs predicts per-frame motion coefficients for the audio.
	// The returned bundle has round(duration*fps) frames; its width depends
	// on the backing model and decides how the governor may edit it.
	AudioToCoeffs(ctx context.Context, req CoeffRequest) (*coeff.Bundle, error)

	// Render produces the final video from a coefficient sequence. The
	// coefficient width must match what AudioToCoeffs produced for the same
	// model; providers must reject mismatched widths rather than render
	// garbage.
	Render(ctx context.Context, req RenderRequest) (*RenderResult, error)

	// Name returns a short identifier for logging and metrics ("sadtalker").
	Name() string
}
