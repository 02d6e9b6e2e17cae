// Package xtts provides a TTS provider backed by a Coqui XTTS v2 API server.
// It implements the tts.Provider interface.
//
// Synthesis is performed via POST /tts_to_audio/ with a JSON body; the voice
// catalogue is retrieved from GET /studio_speakers; voice cloning is available
// via POST /clone_speaker. The server returns WAV files, which are unwrapped
// to raw PCM and resampled to the configured output rate.
//
// Typical usage:
//
//	p, err := xtts.New("http://localhost:8020",
//	    xtts.WithLanguage("en"),
//	    xtts.WithTimeout(60*time.Second),
//	)
//	res, err := p.Synthesize(ctx, tts.SynthesisRequest{Text: "Hello.", Voice: voice})
package xtts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/lumenlabs/lumen/pkg/audio"
	"github.com/lumenlabs/lumen/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage   = "en"
	defaultTimeout    = 120 * time.Second
	defaultOutputRate = 24000

	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	cloneSpeakerEndpoint   = "/clone_speaker"
)

// Sampling parameters tuned for long-form narration. Lower temperature and a
// strong repetition penalty keep multi-sentence segments from drifting or
// stuttering.
const (
	samplingTemperature       = 0.65
	samplingRepetitionPenalty = 2.5
	samplingTopP              = 0.85
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the BCP-47 language code sent to the server (e.g., "en",
// "de", "fr"). Defaults to "en" if not set.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout for calls to the server.
// Long segments can take well over a minute on CPU inference, hence the
// generous 120 s default.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithOutputSampleRate configures the provider to resample synthesised PCM to
// the given rate. Defaults to 24000, the XTTS v2 native rate. Set to 0 to
// disable resampling entirely.
func WithOutputSampleRate(rate int) Option {
	return func(p *Provider) {
		p.outputRate = rate
	}
}

// Provider implements tts.Provider backed by an XTTS v2 API server. It is
// safe for concurrent use; multiple Synthesize calls may run in parallel.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
	outputRate int // target sample rate; 0 = no resampling
}

// New creates a Provider targeting the XTTS server at serverURL
// (e.g., "http://localhost:8020"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("xtts: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		outputRate: defaultOutputRate,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements tts.Provider.
func (p *Provider) Name() string { return "xtts" }

// ttsRequest is the JSON body sent to POST /tts_to_audio/.
type ttsRequest struct {
	Text              string  `json:"text"`
	SpeakerWav        string  `json:"speaker_wav"`
	Language          string  `json:"language"`
	Temperature       float64 `json:"temperature"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	TopP              float64 `json:"top_p"`
}

// studioSpeakersResponse represents the raw map[name]any returned by
// GET /studio_speakers. Only the keys (voice names) are needed.
type studioSpeakersResponse map[string]json.RawMessage

// cloneSpeakerResponse is the JSON body returned by POST /clone_speaker.
type cloneSpeakerResponse struct {
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

// Synthesize performs a single POST /tts_to_audio/ call and returns the
// unwrapped PCM, resampled to the configured output rate.
func (p *Provider) Synthesize(ctx context.Context, req tts.SynthesisRequest) (*tts.SynthesisResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("xtts: text must not be empty")
	}
	if req.Voice.ID == "" {
		return nil, errors.New("xtts: voice.ID must not be empty")
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	body := ttsRequest{
		Text:              req.Text,
		SpeakerWav:        req.Voice.ID,
		Language:          lang,
		Temperature:       samplingTemperature,
		RepetitionPenalty: samplingRepetitionPenalty,
		TopP:              samplingTopP,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("xtts: marshal tts request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("xtts: create tts request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("xtts: POST %s: %w", ttsEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("xtts: POST %s returned status %d", ttsEndpoint, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("xtts: read WAV response: %w", err)
	}

	info, err := audio.ParseWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("xtts: %w", err)
	}
	if info.Channels != 1 {
		return nil, fmt.Errorf("xtts: expected mono audio, got %d channels", info.Channels)
	}

	pcm := wav[info.DataOffset:]
	rate := info.SampleRate
	if p.outputRate > 0 && rate != p.outputRate {
		pcm = audio.ResampleMono16(pcm, rate, p.outputRate)
		rate = p.outputRate
	}
	return &tts.SynthesisResult{PCM: pcm, SampleRate: rate}, nil
}

// ListVoices retrieves the studio speaker catalogue via GET /studio_speakers
// and maps each entry to a VoiceProfile, sorted by name.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+studioSpeakersEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("xtts: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("xtts: GET %s: %w", studioSpeakersEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("xtts: GET %s returned status %d", studioSpeakersEndpoint, resp.StatusCode)
	}

	var raw studioSpeakersResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("xtts: decode studio speakers: %w", err)
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	profiles := make([]tts.VoiceProfile, 0, len(names))
	for _, name := range names {
		profiles = append(profiles, tts.VoiceProfile{
			ID:       name,
			Name:     name,
			Provider: "xtts",
			Metadata: map[string]string{
				"type": "studio",
			},
		})
	}
	return profiles, nil
}

// CloneVoice creates a new speaker voice by uploading WAV audio samples via
// POST /clone_speaker. Each element of samples must be a valid WAV file.
//
// Returns a VoiceProfile for the cloned voice or an error if the request
// fails. An empty samples slice returns an error rather than sending an
// empty request.
func (p *Provider) CloneVoice(ctx context.Context, samples [][]byte) (*tts.VoiceProfile, error) {
	if len(samples) == 0 {
		return nil, errors.New("xtts: CloneVoice requires at least one audio sample")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	for i, sample := range samples {
		filename := fmt.Sprintf("sample_%02d.wav", i)
		fw, err := mw.CreateFormFile("wav_files", filename)
		if err != nil {
			return nil, fmt.Errorf("xtts: create form file %s: %w", filename, err)
		}
		if _, err := fw.Write(sample); err != nil {
			return nil, fmt.Errorf("xtts: write form file %s: %w", filename, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("xtts: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+cloneSpeakerEndpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("xtts: create clone-speaker request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("xtts: POST %s: %w", cloneSpeakerEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("xtts: POST %s returned status %d", cloneSpeakerEndpoint, resp.StatusCode)
	}

	var cloneResp cloneSpeakerResponse
	if err := json.NewDecoder(resp.Body).Decode(&cloneResp); err != nil {
		return nil, fmt.Errorf("xtts: decode clone-speaker response: %w", err)
	}
	if cloneResp.Name == "" {
		return nil, errors.New("xtts: clone-speaker response missing name")
	}

	return &tts.VoiceProfile{
		ID:       cloneResp.Name,
		Name:     cloneResp.Name,
		Provider: "xtts",
		Metadata: map[string]string{
			"type": "cloned",
		},
	}, nil
}
