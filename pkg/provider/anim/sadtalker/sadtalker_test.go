package sadtalker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lumenlabs/lumen/pkg/coeff"
	"github.com/lumenlabs/lumen/pkg/provider/anim"
)

func mustNew(t *testing.T, serverURL string, opts ...Option) *Provider {
	t.Helper()
	p, err := New(serverURL, opts...)
	if err != nil {
		t.Fatalf("New(%q): unexpected error: %v", serverURL, err)
	}
	return p
}

func TestAudioToCoeffs(t *testing.T) {
	// 2 frames x 70 dims, every value 0.5.
	data := make([]float64, 2*70)
	for i := range data {
		data[i] = 0.5
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != coeffsEndpoint {
			http.NotFound(w, r)
			return
		}
		var req coeffsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.FPS != 25 {
			t.Errorf("fps = %d, want 25", req.FPS)
		}
		json.NewEncoder(w).Encode(coeffsResponse{
			Frames: 2,
			Dims:   70,
			Data:   encodeFloat32Matrix(data),
		})
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	bundle, err := p.AudioToCoeffs(context.Background(), anim.CoeffRequest{
		AudioWAV:  []byte("RIFFfake"),
		ImageJPEG: []byte{0xff, 0xd8},
		FPS:       25,
	})
	if err != nil {
		t.Fatalf("AudioToCoeffs: %v", err)
	}
	if bundle.Frames != 2 || bundle.Dims != 70 {
		t.Errorf("shape = %dx%d, want 2x70", bundle.Frames, bundle.Dims)
	}
	if !bundle.IsCompact() {
		t.Error("70-dim bundle should be compact")
	}
	if got := bundle.At(1, 69); math.Abs(got-0.5) > 1e-6 {
		t.Errorf("At(1,69) = %v, want 0.5", got)
	}
}

func TestAudioToCoeffs_ShapeMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(coeffsResponse{
			Frames: 3,
			Dims:   70,
			Data:   base64.StdEncoding.EncodeToString(make([]byte, 8)), // far too short
		})
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	if _, err := p.AudioToCoeffs(context.Background(), anim.CoeffRequest{
		AudioWAV:  []byte("a"),
		ImageJPEG: []byte("i"),
		FPS:       25,
	}); err == nil {
		t.Error("shape mismatch should fail")
	}
}

func TestRender(t *testing.T) {
	video := []byte("fake-mp4-bytes")
	var got renderRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != renderEndpoint {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(renderResponse{
			VideoMP4: base64.StdEncoding.EncodeToString(video),
		})
	}))
	defer srv.Close()

	bundle, err := coeff.New(5, 70, make([]float64, 5*70))
	if err != nil {
		t.Fatalf("coeff.New: %v", err)
	}

	p := mustNew(t, srv.URL)
	res, err := p.Render(context.Background(), anim.RenderRequest{
		Coeffs:     bundle,
		AudioWAV:   []byte("RIFFfake"),
		ImageJPEG:  []byte{0xff, 0xd8},
		FPS:        25,
		Resolution: 512,
		Enhance:    true,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if string(res.VideoMP4) != string(video) {
		t.Errorf("video = %q, want %q", res.VideoMP4, video)
	}
	if got.Frames != 5 || got.Dims != 70 {
		t.Errorf("request shape = %dx%d, want 5x70", got.Frames, got.Dims)
	}
	if !got.Enhance || got.Resolution != 512 {
		t.Errorf("enhance/resolution not forwarded: %+v", got)
	}
}

func TestRender_RejectsNonFinite(t *testing.T) {
	bundle, _ := coeff.New(1, 70, make([]float64, 70))
	bundle.Set(0, 3, math.NaN())

	p := mustNew(t, "http://localhost:8030")
	if _, err := p.Render(context.Background(), anim.RenderRequest{
		Coeffs:    bundle,
		AudioWAV:  []byte("a"),
		ImageJPEG: []byte("i"),
		FPS:       25,
	}); err == nil {
		t.Error("non-finite coefficients should be rejected before hitting the server")
	}
}

func TestFloat32MatrixRoundTrip(t *testing.T) {
	in := []float64{0, 1, -1, 0.25, 1e6}
	out, err := decodeFloat32Matrix(encodeFloat32Matrix(in), 1, 5)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range in {
		if math.Abs(out[i]-in[i]) > 1e-3 {
			t.Errorf("element %d: got %v, want %v", i, out[i], in[i])
		}
	}
}
