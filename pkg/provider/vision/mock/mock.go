// Package mock provides a test double for the vision.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/lumenlabs/lumen/pkg/provider/vision"
)

// Provider is a mock implementation of vision.Provider.
// Zero values for response fields cause methods to return zero values and nil
// errors. Set Err fields to inject errors.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// LandmarksFunc, if set, overrides Landmarks and LandmarksErr. The call
	// index (0-based) lets tests return per-frame landmark sets.
	LandmarksFunc func(call int, imageJPEG []byte) ([]vision.Landmark, error)

	// Landmarks is returned by DetectLandmarks when LandmarksFunc is nil.
	Landmarks []vision.Landmark

	// LandmarksErr, if non-nil, is returned as the error from DetectLandmarks.
	LandmarksErr error

	// Face is returned by DetectFace.
	Face *vision.FaceBox

	// FaceErr, if non-nil, is returned as the error from DetectFace.
	FaceErr error

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// --- Call records (read after test) ---

	// LandmarksCallCount is the number of DetectLandmarks invocations.
	LandmarksCallCount int

	// FaceCallCount is the number of DetectFace invocations.
	FaceCallCount int
}

// DetectLandmarks records the call and returns the configured landmarks.
func (p *Provider) DetectLandmarks(ctx context.Context, imageJPEG []byte) ([]vision.Landmark, error) {
	p.mu.Lock()
	call := p.LandmarksCallCount
	p.LandmarksCallCount++
	fn := p.LandmarksFunc
	marks, err := p.Landmarks, p.LandmarksErr
	p.mu.Unlock()

	if fn != nil {
		return fn(call, imageJPEG)
	}
	return marks, err
}

// DetectFace records the call and returns Face, FaceErr.
func (p *Provider) DetectFace(ctx context.Context, imageJPEG []byte) (*vision.FaceBox, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.FaceCallCount++
	return p.Face, p.FaceErr
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
	p.LandmarksCallCount = 0
	p.FaceCallCount = 0
}

// Ensure Provider implements vision.Provider at compile time.
var _ vision.Provider = (*Provider)(nil)
