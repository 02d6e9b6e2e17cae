// Package sadtalker provides an animation provider backed by a SadTalker
// model server. It implements the anim.Provider interface.
//
// The server exposes two JSON endpoints:
//
//   - POST /coeffs  — audio + image in, per-frame motion coefficients out.
//   - POST /render  — coefficients + audio + image in, MP4 video out.
//
// Binary payloads (WAV, JPEG, coefficient matrices) travel as base64 strings
// inside the JSON bodies. Coefficients are float32 little-endian, row-major.
package sadtalker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/lumenlabs/lumen/pkg/coeff"
	"github.com/lumenlabs/lumen/pkg/provider/anim"
)

// Compile-time interface assertion.
var _ anim.Provider = (*Provider)(nil)

const (
	coeffsEndpoint = "/coeffs"
	renderEndpoint = "/render"

	// Rendering a minute of video can take several minutes on CPU.
	defaultTimeout = 10 * time.Minute
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// Provider implements anim.Provider backed by a SadTalker model server.
type Provider struct {
	serverURL  string
	httpClient *http.Client
}

// New creates a Provider targeting the model server at serverURL
// (e.g., "http://localhost:8030"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("sadtalker: serverURL must not be empty")
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

// Name implements anim.Provider.
func (p *Provider) Name() string { return "sadtalker" }

// coeffsRequest is the JSON body sent to POST /coeffs.
type coeffsRequest struct {
	AudioWAV  string `json:"audio_wav"`
	ImageJPEG string `json:"image_jpeg"`
	FPS       int    `json:"fps"`
}

// coeffsResponse is the JSON body returned by POST /coeffs.
type coeffsResponse struct {
	Frames int    `json:"frames"`
	Dims   int    `json:"dims"`
	Data   string `json:"data"` // base64 float32 LE, row-major
}

// renderRequest is the JSON body sent to POST /render.
type renderRequest struct {
	Frames     int    `json:"frames"`
	Dims       int    `json:"dims"`
	Coeffs     string `json:"coeffs"` // base64 float32 LE, row-major
	AudioWAV   string `json:"audio_wav"`
	ImageJPEG  string `json:"image_jpeg"`
	FPS        int    `json:"fps"`
	Resolution int    `json:"resolution,omitempty"`
	Enhance    bool   `json:"enhance"`
}

// renderResponse is the JSON body returned by POST /render.
type renderResponse struct {
	VideoMP4 string `json:"video_mp4"`
}

// AudioToCoeffs implements anim.Provider.
func (p *Provider) AudioToCoeffs(ctx context.Context, req anim.CoeffRequest) (*coeff.Bundle, error) {
	if len(req.AudioWAV) == 0 {
		return nil, errors.New("sadtalker: audio must not be empty")
	}
	if len(req.ImageJPEG) == 0 {
		return nil, errors.New("sadtalker: image must not be empty")
	}
	if req.FPS <= 0 {
		return nil, fmt.Errorf("sadtalker: fps must be positive, got %d", req.FPS)
	}

	body := coeffsRequest{
		AudioWAV:  base64.StdEncoding.EncodeToString(req.AudioWAV),
		ImageJPEG: base64.StdEncoding.EncodeToString(req.ImageJPEG),
		FPS:       req.FPS,
	}
	var resp coeffsResponse
	if err := p.postJSON(ctx, coeffsEndpoint, body, &resp); err != nil {
		return nil, err
	}

	data, err := decodeFloat32Matrix(resp.Data, resp.Frames, resp.Dims)
	if err != nil {
		return nil, fmt.Errorf("sadtalker: decode coefficients: %w", err)
	}
	bundle, err := coeff.New(resp.Frames, resp.Dims, data)
	if err != nil {
		return nil, fmt.Errorf("sadtalker: %w", err)
	}
	return bundle, nil
}

// Render implements anim.Provider.
func (p *Provider) Render(ctx context.Context, req anim.RenderRequest) (*anim.RenderResult, error) {
	if req.Coeffs == nil || req.Coeffs.Frames == 0 {
		return nil, errors.New("sadtalker: coefficient bundle must not be empty")
	}
	if len(req.AudioWAV) == 0 {
		return nil, errors.New("sadtalker: audio must not be empty")
	}
	if len(req.ImageJPEG) == 0 {
		return nil, errors.New("sadtalker: image must not be empty")
	}
	if req.FPS <= 0 {
		return nil, fmt.Errorf("sadtalker: fps must be positive, got %d", req.FPS)
	}
	if !req.Coeffs.IsFinite() {
		return nil, errors.New("sadtalker: coefficient bundle contains non-finite values")
	}

	body := renderRequest{
		Frames:     req.Coeffs.Frames,
		Dims:       req.Coeffs.Dims,
		Coeffs:     encodeFloat32Matrix(req.Coeffs.Data),
		AudioWAV:   base64.StdEncoding.EncodeToString(req.AudioWAV),
		ImageJPEG:  base64.StdEncoding.EncodeToString(req.ImageJPEG),
		FPS:        req.FPS,
		Resolution: req.Resolution,
		Enhance:    req.Enhance,
	}
	var resp renderResponse
	if err := p.postJSON(ctx, renderEndpoint, body, &resp); err != nil {
		return nil, err
	}

	video, err := base64.StdEncoding.DecodeString(resp.VideoMP4)
	if err != nil {
		return nil, fmt.Errorf("sadtalker: decode video: %w", err)
	}
	if len(video) == 0 {
		return nil, errors.New("sadtalker: server returned empty video")
	}
	return &anim.RenderResult{VideoMP4: video}, nil
}

// postJSON sends body to endpoint as JSON and decodes the response into out.
func (p *Provider) postJSON(ctx context.Context, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("sadtalker: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("sadtalker: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sadtalker: POST %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sadtalker: POST %s returned status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("sadtalker: decode response: %w", err)
	}
	return nil
}

// decodeFloat32Matrix decodes a base64 float32 little-endian matrix and
// widens it to float64, validating the element count against frames*dims.
func decodeFloat32Matrix(encoded string, frames, dims int) ([]float64, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if frames <= 0 || dims <= 0 {
		return nil, fmt.Errorf("invalid shape %dx%d", frames, dims)
	}
	want := frames * dims * 4
	if len(raw) != want {
		return nil, fmt.Errorf("payload is %d bytes, want %d for %dx%d float32", len(raw), want, frames, dims)
	}

	out := make([]float64, frames*dims)
	for i := range out {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		out[i] = float64(math.Float32frombits(bits))
	}
	return out, nil
}

// encodeFloat32Matrix narrows a float64 matrix to float32 little-endian and
// base64-encodes it.
func encodeFloat32Matrix(data []float64) string {
	raw := make([]byte, len(data)*4)
	for i, v := range data {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(float32(v)))
	}
	return base64.StdEncoding.EncodeToString(raw)
}
