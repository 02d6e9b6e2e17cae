package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/lumenlabs/lumen/internal/config"
	"github.com/lumenlabs/lumen/internal/pipeline"
	"github.com/lumenlabs/lumen/internal/refstyle"
	"github.com/lumenlabs/lumen/pkg/coeff"
	"github.com/lumenlabs/lumen/pkg/provider/anim"
	animmock "github.com/lumenlabs/lumen/pkg/provider/anim/mock"
	"github.com/lumenlabs/lumen/pkg/provider/llm"
	llmmock "github.com/lumenlabs/lumen/pkg/provider/llm/mock"
	"github.com/lumenlabs/lumen/pkg/provider/tts"
	ttsmock "github.com/lumenlabs/lumen/pkg/provider/tts/mock"
	visionmock "github.com/lumenlabs/lumen/pkg/provider/vision/mock"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const scriptJSON = `{"segments":[
  {"text":"Hello world.","pause_after":0.2,"emphasis":[],"sentence_end":true}
]}`

type testServer struct {
	llm       *llmmock.Provider
	handler   http.Handler
	orch      *pipeline.Orchestrator
	outputDir string
	styleDir  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dir := t.TempDir()
	outputDir := filepath.Join(dir, "outputs")
	imagePath := filepath.Join(dir, "face.jpg")
	if err := os.WriteFile(imagePath, []byte{0xFF, 0xD8, 0xFF, 0xD9}, 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}

	store, err := pipeline.NewArtifactStore(outputDir)
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}

	llmP := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: scriptJSON},
	}
	pcm := make([]byte, 8000)
	ttsP := &ttsmock.Provider{
		SynthesizeResult: &tts.SynthesisResult{PCM: pcm, SampleRate: 16000},
	}
	data := make([]float64, 10*64)
	bundle, err := coeff.New(10, 64, data)
	if err != nil {
		t.Fatalf("coeff.New: %v", err)
	}
	animP := &animmock.Provider{
		CoeffsBundle: bundle,
		RenderResult: &anim.RenderResult{VideoMP4: []byte("mp4-bytes")},
	}

	orch, err := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
		LLM:   llmP,
		TTS:   ttsP,
		Anim:  animP,
		Store: store,
		Personas: []config.PersonaConfig{{
			Name:           "mkbhd",
			ReferenceAudio: filepath.Join(dir, "voice.wav"),
			ReferenceImage: imagePath,
		}},
		FPS: 25,
	})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	styleDir := filepath.Join(dir, "styles")
	srv, err := New(Config{
		Orchestrator: orch,
		OutputDir:    outputDir,
		StyleDir:     styleDir,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testServer{
		llm:       llmP,
		handler:   srv.Routes(),
		orch:      orch,
		outputDir: outputDir,
		styleDir:  styleDir,
	}
}

// serverWithExtractor rebuilds the handler with a style extractor backed by
// the vision mock, so the extraction endpoint's validation paths can be hit.
func serverWithExtractor(t *testing.T, ts *testServer) http.Handler {
	t.Helper()
	ext, err := refstyle.NewExtractor(&visionmock.Provider{})
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	srv, err := New(Config{
		Orchestrator: ts.orch,
		Extractor:    ext,
		OutputDir:    ts.outputDir,
		StyleDir:     ts.styleDir,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv.Routes()
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestGenerateEndpoint_HappyPath(t *testing.T) {
	ts := newTestServer(t)

	rec := postJSON(t, ts.handler, "/api/generate", map[string]any{
		"prompt":  "explain solid state batteries",
		"persona": "mkbhd",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var res pipeline.Result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.RequestID == "" {
		t.Error("missing request_id")
	}
	if res.Text != "Hello world." {
		t.Errorf("text = %q", res.Text)
	}

	// The rendered video is served through the static route.
	getReq := httptest.NewRequest("GET", res.VideoURL, nil)
	getRec := httptest.NewRecorder()
	ts.handler.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("GET %s = %d", res.VideoURL, getRec.Code)
	}
	if getRec.Body.String() != "mp4-bytes" {
		t.Errorf("video body = %q", getRec.Body.String())
	}
}

func TestGenerateEndpoint_InvalidJSON(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest("POST", "/api/generate", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGenerateEndpoint_UnknownPersona(t *testing.T) {
	ts := newTestServer(t)
	rec := postJSON(t, ts.handler, "/api/generate", map[string]any{
		"prompt":  "topic",
		"persona": "nobody",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ErrorKind != "invalid_input" {
		t.Errorf("error_kind = %q", body.ErrorKind)
	}
}

func TestGenerateEndpoint_UpstreamDown(t *testing.T) {
	ts := newTestServer(t)
	ts.llm.CompleteResponse = nil
	ts.llm.CompleteErr = errors.New("connection refused")

	rec := postJSON(t, ts.handler, "/api/generate", map[string]any{
		"prompt":  "topic",
		"persona": "mkbhd",
	})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ErrorKind != "upstream_unavailable" {
		t.Errorf("error_kind = %q", body.ErrorKind)
	}
}

func TestPersonasEndpoint(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest("GET", "/api/personas", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Personas []string `json:"personas"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Personas) != 1 || body.Personas[0] != "mkbhd" {
		t.Errorf("personas = %v", body.Personas)
	}
}

func TestHealthzEndpoint(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestReferenceStyle_NotConfigured(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest("POST", "/api/styles/reference", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestReferenceStyle_BadName(t *testing.T) {
	ts := newTestServer(t)
	srv := serverWithExtractor(t, ts)

	body := &bytes.Buffer{}
	req := httptest.NewRequest("POST", "/api/styles/reference", body)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
