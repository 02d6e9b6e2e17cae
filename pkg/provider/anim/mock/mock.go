// Package mock provides a test double for the anim.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/lumenlabs/lumen/pkg/coeff"
	"github.com/lumenlabs/lumen/pkg/provider/anim"
)

// CoeffsCall records a single invocation of AudioToCoeffs.
type CoeffsCall struct {
	Ctx context.Context
	Req anim.CoeffRequest
}

// RenderCall records a single invocation of Render.
type RenderCall struct {
	Ctx context.Context
	Req anim.RenderRequest
}

// Provider is a mock implementation of anim.Provider.
// Zero values for response fields cause methods to return zero values and nil
// errors. Set Err fields to inject errors.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// CoeffsFunc, if set, overrides CoeffsBundle and CoeffsErr. Use this to
	// derive the bundle shape from the request (e.g. frames from audio
	// length).
	CoeffsFunc func(ctx context.Context, req anim.CoeffRequest) (*coeff.Bundle, error)

	// CoeffsBundle is returned by AudioToCoeffs when CoeffsFunc is nil.
	CoeffsBundle *coeff.Bundle

	// CoeffsErr, if non-nil, is returned as the error from AudioToCoeffs.
	CoeffsErr error

	// RenderResult is returned by Render.
	RenderResult *anim.RenderResult

	// RenderErr, if non-nil, is returned as the error from Render.
	RenderErr error

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// --- Call records (read after test) ---

	// CoeffsCalls records every invocation of AudioToCoeffs in order.
	CoeffsCalls []CoeffsCall

	// RenderCalls records every invocation of Render in order.
	RenderCalls []RenderCall
}

// AudioToCoeffs records the call and returns the configured bundle.
func (p *Provider) AudioToCoeffs(ctx context.Context, req anim.CoeffRequest) (*coeff.Bundle, error) {
	p.mu.Lock()
	p.CoeffsCalls = append(p.CoeffsCalls, CoeffsCall{Ctx: ctx, Req: req})
	fn := p.CoeffsFunc
	bundle, err := p.CoeffsBundle, p.CoeffsErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return bundle, err
}

// Render records the call and returns RenderResult, RenderErr.
func (p *Provider) Render(ctx context.Context, req anim.RenderRequest) (*anim.RenderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RenderCalls = append(p.RenderCalls, RenderCall{Ctx: ctx, Req: req})
	return p.RenderResult, p.RenderErr
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
	p.CoeffsCalls = nil
	p.RenderCalls = nil
}

// Ensure Provider implements anim.Provider at compile time.
var _ anim.Provider = (*Provider)(nil)
