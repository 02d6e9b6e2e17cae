// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service and presents a uniform batch
// interface: one Synthesize call per script segment, returning the complete
// PCM for that segment. The segmented synthesizer calls Synthesize once per
// segment and assembles the timeline itself, so streaming is deliberately not
// part of the contract.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// VoiceProfile identifies a voice available from a provider.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier. For XTTS this is a
	// server-side speaker name or a reference WAV path.
	ID string

	// Name is a human-readable label.
	Name string

	// Provider names the backend this profile belongs to.
	Provider string

	// Metadata carries provider-specific details (model name, clone status).
	Metadata map[string]string
}

// SynthesisRequest is one batch synthesis call.
type SynthesisRequest struct {
	// Text is the segment text to speak. Must be non-empty.
	Text string

	// Voice selects the speaker.
	Voice VoiceProfile

	// Language is a BCP-47 code ("en"). Empty means provider default.
	Language string
}

// SynthesisResult is the synthesised audio for one request.
type SynthesisResult struct {
	// PCM is 16-bit little-endian mono audio.
	PCM []byte

	// SampleRate is the rate of PCM in Hz.
	SampleRate int
}

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use; multiple Synthesize calls
// may run in parallel.
type Provider interface {
	// Synthesize speaks req.Text with the requested voice and returns the full
	// audio. Returns an error if the backend cannot be reached, the voice is
	// unknown, or ctx is cancelled.
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)

	// ListVoices returns all voice profiles currently available.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)

	// CloneVoice creates a new voice profile by training on the supplied audio
	// samples. Each element of samples must be a provider-supported encoded
	// audio file (WAV for XTTS). This is expensive and must not be called in
	// the request hot path. An empty samples slice returns an error.
	CloneVoice(ctx context.Context, samples [][]byte) (*VoiceProfile, error)

	// Name returns a short identifier for logging and metrics ("xtts").
	Name() string
}
