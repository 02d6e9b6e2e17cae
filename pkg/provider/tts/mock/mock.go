// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider in unit tests to feed controlled PCM without a live synthesis
// server. All fields are safe to set before calling any method.
package mock

import (
	"context"
	"sync"

	"github.com/lumenlabs/lumen/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the SynthesisRequest passed to Synthesize.
	Req tts.SynthesisRequest
}

// Provider is a mock implementation of tts.Provider.
// Zero values for response fields cause methods to return zero values and nil
// errors. Set Err fields to inject errors.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SynthesizeFunc, if set, is called for every Synthesize invocation,
	// overriding SynthesizeResult and SynthesizeErr. Use this to return
	// text-dependent audio (e.g. duration proportional to text length).
	SynthesizeFunc func(ctx context.Context, req tts.SynthesisRequest) (*tts.SynthesisResult, error)

	// SynthesizeResult is returned by Synthesize when SynthesizeFunc is nil.
	SynthesizeResult *tts.SynthesisResult

	// SynthesizeErr, if non-nil, is returned as the error from Synthesize.
	SynthesizeErr error

	// Voices is returned by ListVoices.
	Voices []tts.VoiceProfile

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// CloneProfile is returned by CloneVoice.
	CloneProfile *tts.VoiceProfile

	// CloneErr, if non-nil, is returned as the error from CloneVoice.
	CloneErr error

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// --- Call records (read after test) ---

	// SynthesizeCalls records every invocation of Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns the configured result.
func (p *Provider) Synthesize(ctx context.Context, req tts.SynthesisRequest) (*tts.SynthesisResult, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Req: req})
	fn := p.SynthesizeFunc
	res, err := p.SynthesizeResult, p.SynthesizeErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return res, err
}

// ListVoices returns Voices, ListVoicesErr.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Voices, p.ListVoicesErr
}

// CloneVoice returns CloneProfile, CloneErr.
func (p *Provider) CloneVoice(ctx context.Context, samples [][]byte) (*tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CloneProfile, p.CloneErr
}

// Name returns ProviderName, defaulting to "mock".
func (p *Provider) Name() string {
	if p.ProviderName != "" {
		return p.ProviderName
	}
	return "mock"
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
