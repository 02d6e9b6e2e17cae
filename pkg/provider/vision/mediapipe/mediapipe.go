// Package mediapipe provides a vision provider backed by a MediaPipe face
// analysis server. It implements the vision.Provider interface.
//
// The server exposes two JSON endpoints:
//
//   - POST /landmarks — JPEG frame in, dense landmark list out.
//   - POST /face      — JPEG frame in, face bounding box out.
//
// Frames travel as base64 strings inside the JSON bodies. A 404-style
// "no face" condition is signalled by the server with an empty result and
// mapped to vision.ErrNoFace.
package mediapipe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lumenlabs/lumen/pkg/provider/vision"
)

// Compile-time interface assertion.
var _ vision.Provider = (*Provider)(nil)

const (
	landmarksEndpoint = "/landmarks"
	faceEndpoint      = "/face"

	defaultTimeout = 30 * time.Second
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// Provider implements vision.Provider backed by a MediaPipe server.
type Provider struct {
	serverURL  string
	httpClient *http.Client
}

// New creates a Provider targeting the server at serverURL
// (e.g., "http://localhost:8040"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("mediapipe: serverURL must not be empty")
	}
	p := &Provider{
		serverURL: strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements vision.Provider.
func (p *Provider) Name() string { return "mediapipe" }

// frameRequest is the JSON body sent to both endpoints.
type frameRequest struct {
	ImageJPEG string `json:"image_jpeg"`
}

// landmarksResponse is the JSON body returned by POST /landmarks.
type landmarksResponse struct {
	Landmarks []vision.Landmark `json:"landmarks"`
}

// faceResponse is the JSON body returned by POST /face.
type faceResponse struct {
	Face *vision.FaceBox `json:"face"`
}

// DetectLandmarks implements vision.Provider.
func (p *Provider) DetectLandmarks(ctx context.Context, imageJPEG []byte) ([]vision.Landmark, error) {
	if len(imageJPEG) == 0 {
		return nil, errors.New("mediapipe: image must not be empty")
	}

	var resp landmarksResponse
	if err := p.postJSON(ctx, landmarksEndpoint, frameRequest{
		ImageJPEG: base64.StdEncoding.EncodeToString(imageJPEG),
	}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Landmarks) == 0 {
		return nil, vision.ErrNoFace
	}
	return resp.Landmarks, nil
}

// DetectFace implements vision.Provider.
func (p *Provider) DetectFace(ctx context.Context, imageJPEG []byte) (*vision.FaceBox, error) {
	if len(imageJPEG) == 0 {
		return nil, errors.New("mediapipe: image must not be empty")
	}

	var resp faceResponse
	if err := p.postJSON(ctx, faceEndpoint, frameRequest{
		ImageJPEG: base64.StdEncoding.EncodeToString(imageJPEG),
	}, &resp); err != nil {
		return nil, err
	}
	if resp.Face == nil {
		return nil, vision.ErrNoFace
	}
	return resp.Face, nil
}

// postJSON sends body to endpoint as JSON and decodes the response into out.
func (p *Provider) postJSON(ctx context.Context, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("mediapipe: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("mediapipe: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mediapipe: POST %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return vision.ErrNoFace
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mediapipe: POST %s returned status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("mediapipe: decode response: %w", err)
	}
	return nil
}
