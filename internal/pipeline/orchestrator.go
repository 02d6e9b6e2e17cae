// Package pipeline orchestrates the full text-to-video generation flow:
// script generation, segmented speech synthesis, coefficient prediction,
// motion governing, and rendering. Per-request artifacts are persisted after
// each stage so a partial run leaves inspectable intermediates on disk.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lumenlabs/lumen/internal/config"
	"github.com/lumenlabs/lumen/internal/governor"
	"github.com/lumenlabs/lumen/internal/observe"
	"github.com/lumenlabs/lumen/internal/scriptgen"
	"github.com/lumenlabs/lumen/internal/synth"
	"github.com/lumenlabs/lumen/pkg/audio"
	"github.com/lumenlabs/lumen/pkg/coeff"
	"github.com/lumenlabs/lumen/pkg/intent"
	"github.com/lumenlabs/lumen/pkg/provider/anim"
	"github.com/lumenlabs/lumen/pkg/provider/llm"
	"github.com/lumenlabs/lumen/pkg/provider/tts"
)

// Request is one video generation job.
type Request struct {
	// Prompt is the topic to speak about. Required.
	Prompt string `json:"prompt"`

	// Persona selects the speaker. Required; must match a configured persona.
	Persona string `json:"persona"`

	// Temperature overrides the persona's LLM sampling temperature. Nil means
	// use the persona default. Must be in (0, 2] when set.
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxTokens overrides the completion token cap. Zero means default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Style overrides the motion style for this request. Empty means the
	// persona's default, then the pipeline default.
	Style string `json:"style,omitempty"`

	// DisableIntent generates a plain unannotated script: one completion, one
	// synthesis call, and audio-only pause detection in the governor.
	DisableIntent bool `json:"disable_intent,omitempty"`

	// DisableGovernor renders the raw model coefficients unmodified.
	DisableGovernor bool `json:"disable_governor,omitempty"`
}

// provenanceDisabled marks results generated with intent annotations turned
// off; the parse provenance tags do not apply to that path.
const provenanceDisabled = "disabled"

// Result is a completed generation.
type Result struct {
	// Text is the plain spoken script.
	Text string `json:"text"`

	// Intent carries the segment annotations used for synthesis and governing.
	Intent *intent.ScriptIntent `json:"script_intent"`

	// Timing places each script segment on the synthesized audio timeline.
	Timing *intent.TimingMap `json:"timing_map"`

	// Provenance records how the intent annotations were obtained
	// ("strict", "permissive", or "fallback"; "disabled" when the request
	// turned annotations off).
	Provenance string `json:"intent_provenance"`

	// AudioURL and VideoURL are paths under the server's /outputs route.
	AudioURL string `json:"audio_url"`
	VideoURL string `json:"video_url"`

	// AudioPath and VideoPath are the on-disk artifact locations.
	AudioPath string `json:"-"`
	VideoPath string `json:"-"`

	// Usage aggregates LLM token accounting across all attempts.
	Usage llm.Usage `json:"usage"`

	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`

	// ProcessingTime is the wall-clock duration of the run in seconds.
	ProcessingTime float64 `json:"processing_time"`
}

// persona couples the API-facing script persona with its reference assets.
type persona struct {
	script scriptgen.Persona
	voice  tts.VoiceProfile

	referenceImage string
	defaultStyle   string
}

// OrchestratorConfig wires an Orchestrator. LLM, TTS, Anim, and Store are
// required.
type OrchestratorConfig struct {
	LLM   llm.Provider
	TTS   tts.Provider
	Anim  anim.Provider
	Store *ArtifactStore

	// Personas declares the available speakers and their reference assets.
	Personas []config.PersonaConfig

	// AssetDir resolves relative persona asset paths and holds extracted
	// style profiles under <AssetDir>/styles/<name>.json.
	AssetDir string

	// FPS is the coefficient and video frame rate. Zero means 25.
	FPS int

	// Resolution is the output video edge size. Zero means renderer default.
	Resolution int

	// DefaultStyle is the motion style when neither the request nor the
	// persona names one. Empty means "calm_tech".
	DefaultStyle string

	// DisableGovernor bypasses motion governing for every request.
	DisableGovernor bool

	// Language is the BCP-47 synthesis language. Empty means provider default.
	Language string

	// Metrics receives stage instrumentation. Nil means the process default.
	Metrics *observe.Metrics
}

// Orchestrator runs generation requests through the five pipeline stages.
// It is safe for concurrent use; per-model serialisation is the providers'
// concern.
type Orchestrator struct {
	llm     llm.Provider
	tts     tts.Provider
	anim    anim.Provider
	synth   *synth.Synthesizer
	store   *ArtifactStore
	metrics *observe.Metrics

	personas map[string]persona

	assetDir        string
	fps             int
	resolution      int
	defaultStyle    string
	disableGovernor bool
	language        string
}

// NewOrchestrator validates the wiring and resolves persona assets.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.LLM == nil || cfg.TTS == nil || cfg.Anim == nil {
		return nil, fmt.Errorf("pipeline: llm, tts, and anim providers are required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("pipeline: artifact store is required")
	}
	fps := cfg.FPS
	if fps == 0 {
		fps = 25
	}
	defaultStyle := cfg.DefaultStyle
	if defaultStyle == "" {
		defaultStyle = "calm_tech"
	}

	syn, err := synth.NewSynthesizer(cfg.TTS, fps)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		llm:             cfg.LLM,
		tts:             cfg.TTS,
		anim:            cfg.Anim,
		synth:           syn,
		store:           cfg.Store,
		metrics:         cfg.Metrics,
		personas:        make(map[string]persona, len(cfg.Personas)),
		assetDir:        cfg.AssetDir,
		fps:             fps,
		resolution:      cfg.Resolution,
		defaultStyle:    defaultStyle,
		disableGovernor: cfg.DisableGovernor,
		language:        cfg.Language,
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}

	for _, pc := range cfg.Personas {
		tag := strings.ToLower(strings.TrimSpace(pc.Name))
		if tag == "" {
			continue
		}
		sp, ok := scriptgen.PersonaByTag(tag)
		if !ok {
			// Personas without a built-in prompt profile still work; they get
			// neutral pacing and rely on the configured style hint.
			sp = scriptgen.Persona{
				Tag:         tag,
				DisplayName: pc.Name,
				Temperature: 0.8,
				PauseRange:  [2]float64{0.3, 0.4},
			}
		}
		if pc.StyleHint != "" {
			sp.StyleHint = pc.StyleHint
		}
		o.personas[tag] = persona{
			script: sp,
			voice: tts.VoiceProfile{
				ID:       o.resolveAsset(pc.ReferenceAudio),
				Name:     pc.Name,
				Provider: cfg.TTS.Name(),
			},
			referenceImage: o.resolveAsset(pc.ReferenceImage),
			defaultStyle:   pc.DefaultStyle,
		}
	}
	return o, nil
}

// Personas returns the configured persona tags in no particular order.
func (o *Orchestrator) Personas() []string {
	tags := make([]string, 0, len(o.personas))
	for tag := range o.personas {
		tags = append(tags, tag)
	}
	return tags
}

// Generate runs one request through the full pipeline. Stage boundaries check
// ctx so a disconnected client stops the run before the next model call.
//
// Upstream failures short-circuit; every artifact written before the failure
// stays on disk for inspection.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*Result, error) {
	p, err := o.validate(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	requestID := uuid.NewString()
	log := observe.Logger(ctx).With("request_id", requestID, "persona", p.script.Tag)

	arts, err := o.store.Begin(requestID)
	if err != nil {
		return nil, Wrap(KindInternal, err, "create artifact directory")
	}

	o.metrics.ActiveRequests.Add(ctx, 1)
	defer o.metrics.ActiveRequests.Add(ctx, -1)

	// Stage 1: script generation.
	script, err := o.runScript(ctx, p, req, arts)
	if err != nil {
		return nil, err
	}
	log.Info("script generated",
		"segments", len(script.Intent.Segments),
		"provenance", script.Provenance)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage 2: segmented speech synthesis.
	speech, err := o.runSynth(ctx, p, script.Intent, arts)
	if err != nil {
		return nil, err
	}
	log.Info("speech synthesised",
		"duration", audio.Duration(speech.PCM, speech.SampleRate),
		"sample_rate", speech.SampleRate,
		"single_shot", speech.SingleShot)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage 3: coefficient prediction.
	wav := audio.EncodeWAV(speech.PCM, speech.SampleRate, 1)
	imageJPEG, err := os.ReadFile(p.referenceImage)
	if err != nil {
		return nil, Wrap(KindInternal, err, "read reference image")
	}
	coeffs, err := o.runCoeffs(ctx, wav, imageJPEG)
	if err != nil {
		return nil, err
	}
	log.Info("coefficients predicted", "frames", coeffs.Frames, "dims", coeffs.Dims)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage 4: motion governing. Never fails; worst case it passes the raw
	// coefficients through.
	if !o.disableGovernor && !req.DisableGovernor {
		govStart := time.Now()
		style := o.resolveStyle(req.Style, p)
		timing := speech.Timing
		if req.DisableIntent || speech.SingleShot {
			// No meaningful segment annotations; let the audio mask alone
			// drive pause detection.
			timing = nil
		}
		coeffs = governor.Govern(governor.Input{
			Coeffs:     coeffs,
			AudioPCM:   speech.PCM,
			SampleRate: speech.SampleRate,
			Timing:     timing,
			Style:      style,
			FPS:        o.fps,
		})
		o.metrics.RecordStageDuration(ctx, "govern", time.Since(govStart).Seconds())
		log.Info("motion governed", "style", style.Name)
	} else {
		log.Warn("governor disabled, rendering raw coefficients")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage 5: rendering.
	if err := o.runRender(ctx, coeffs, wav, imageJPEG, arts); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	o.metrics.RecordVideoGenerated(ctx, p.script.Tag, script.Provenance)
	log.Info("video generated", "elapsed", elapsed.Seconds(), "video", arts.VideoPath())

	return &Result{
		Text:           script.Text,
		Intent:         script.Intent,
		Timing:         speech.Timing,
		Provenance:     script.Provenance,
		AudioURL:       arts.AudioURL(),
		VideoURL:       arts.VideoURL(),
		AudioPath:      arts.AudioPath(),
		VideoPath:      arts.VideoPath(),
		Usage:          script.Usage,
		RequestID:      requestID,
		Timestamp:      start.UTC(),
		ProcessingTime: elapsed.Seconds(),
	}, nil
}

func (o *Orchestrator) validate(req Request) (persona, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return persona{}, E(KindInvalidInput, "prompt is required")
	}
	tag := strings.ToLower(strings.TrimSpace(req.Persona))
	p, ok := o.personas[tag]
	if !ok {
		return persona{}, E(KindInvalidInput, "unknown persona %q", req.Persona)
	}
	if req.Temperature != nil && (*req.Temperature <= 0 || *req.Temperature > 2) {
		return persona{}, E(KindInvalidInput, "temperature %v out of range (0, 2]", *req.Temperature)
	}
	if req.MaxTokens < 0 {
		return persona{}, E(KindInvalidInput, "max_tokens must be non-negative")
	}
	return p, nil
}

// scriptOutcome is the stage-1 result regardless of whether intent
// annotations were requested.
type scriptOutcome struct {
	Text       string
	Intent     *intent.ScriptIntent
	Provenance string
	Usage      llm.Usage
}

func (o *Orchestrator) runScript(ctx context.Context, p persona, req Request, arts *RequestArtifacts) (*scriptOutcome, error) {
	start := time.Now()
	defer func() {
		o.metrics.RecordStageDuration(ctx, "script", time.Since(start).Seconds())
	}()

	sp := p.script
	if req.Temperature != nil {
		sp.Temperature = *req.Temperature
	}
	var opts []scriptgen.Option
	if req.MaxTokens > 0 {
		opts = append(opts, scriptgen.WithMaxTokens(req.MaxTokens))
	}
	gen, err := scriptgen.NewGenerator(o.llm, opts...)
	if err != nil {
		return nil, Wrap(KindInternal, err, "build script generator")
	}

	var out *scriptOutcome
	if req.DisableIntent {
		text, usage, err := gen.GeneratePlain(ctx, sp, req.Prompt)
		if err != nil {
			o.metrics.RecordProviderError(ctx, o.llm.Name(), "llm")
			return nil, Wrap(KindUpstreamUnavailable, err, "script generation")
		}
		// One segment, one synthesis call, no pause or emphasis timing.
		plain, err := intent.NewScriptIntent([]intent.SegmentIntent{{
			Text:        text,
			Emphasis:    []string{},
			SentenceEnd: true,
		}})
		if err != nil {
			return nil, Wrap(KindInternal, err, "wrap plain script")
		}
		out = &scriptOutcome{
			Text:       text,
			Intent:     plain,
			Provenance: provenanceDisabled,
			Usage:      usage,
		}
	} else {
		res, err := gen.Generate(ctx, sp, req.Prompt)
		if err != nil {
			o.metrics.RecordProviderError(ctx, o.llm.Name(), "llm")
			if errors.Is(err, scriptgen.ErrUpstreamUnavailable) {
				return nil, Wrap(KindUpstreamUnavailable, err, "script generation")
			}
			return nil, Wrap(KindInternal, err, "script generation")
		}
		if res.Provenance == intent.ParseFallback {
			o.metrics.IntentFallbacks.Add(ctx, 1)
		}
		out = &scriptOutcome{
			Text:       res.Text,
			Intent:     res.Intent,
			Provenance: res.Provenance.String(),
			Usage:      res.Usage,
		}
	}
	o.metrics.RecordProviderRequest(ctx, o.llm.Name(), "llm", "ok")

	if err := arts.WriteScript(out.Intent); err != nil {
		return nil, Wrap(KindInternal, err, "persist script")
	}
	return out, nil
}

func (o *Orchestrator) runSynth(ctx context.Context, p persona, script *intent.ScriptIntent, arts *RequestArtifacts) (*synth.Output, error) {
	start := time.Now()
	defer func() {
		o.metrics.RecordStageDuration(ctx, "synth", time.Since(start).Seconds())
	}()

	out, err := o.synth.Synthesize(ctx, script, p.voice, o.language)
	if err != nil {
		o.metrics.RecordProviderError(ctx, o.tts.Name(), "tts")
		return nil, Wrap(KindUpstreamUnavailable, err, "speech synthesis")
	}
	o.metrics.RecordProviderRequest(ctx, o.tts.Name(), "tts", "ok")

	if err := arts.WriteTiming(out.Timing); err != nil {
		return nil, Wrap(KindInternal, err, "persist timing map")
	}
	if err := arts.WriteAudio(out.PCM, out.SampleRate); err != nil {
		return nil, Wrap(KindInternal, err, "persist audio")
	}
	return out, nil
}

func (o *Orchestrator) runCoeffs(ctx context.Context, wav, imageJPEG []byte) (*coeff.Bundle, error) {
	start := time.Now()
	defer func() {
		o.metrics.RecordStageDuration(ctx, "coeff", time.Since(start).Seconds())
	}()

	bundle, err := o.anim.AudioToCoeffs(ctx, anim.CoeffRequest{
		AudioWAV:  wav,
		ImageJPEG: imageJPEG,
		FPS:       o.fps,
	})
	if err != nil {
		o.metrics.RecordProviderError(ctx, o.anim.Name(), "anim")
		return nil, Wrap(KindUpstreamUnavailable, err, "coefficient prediction")
	}
	o.metrics.RecordProviderRequest(ctx, o.anim.Name(), "anim", "ok")
	return bundle, nil
}

func (o *Orchestrator) runRender(ctx context.Context, coeffs *coeff.Bundle, wav, imageJPEG []byte, arts *RequestArtifacts) error {
	start := time.Now()
	defer func() {
		o.metrics.RecordStageDuration(ctx, "render", time.Since(start).Seconds())
	}()

	res, err := o.anim.Render(ctx, anim.RenderRequest{
		Coeffs:     coeffs,
		AudioWAV:   wav,
		ImageJPEG:  imageJPEG,
		FPS:        o.fps,
		Resolution: o.resolution,
	})
	if err != nil {
		o.metrics.RecordProviderError(ctx, o.anim.Name(), "anim")
		return Wrap(KindUpstreamUnavailable, err, "video rendering")
	}
	o.metrics.RecordProviderRequest(ctx, o.anim.Name(), "anim", "ok")

	if err := arts.WriteVideo(res.VideoMP4); err != nil {
		return Wrap(KindInternal, err, "persist video")
	}
	return nil
}

// resolveStyle picks the motion style for a request: explicit request style,
// then the persona default, then the pipeline default. Names resolve first
// against extracted profiles under <AssetDir>/styles, then built-in presets.
func (o *Orchestrator) resolveStyle(requested string, p persona) governor.StyleProfile {
	name := requested
	if name == "" {
		name = p.defaultStyle
	}
	if name == "" {
		name = o.defaultStyle
	}
	if o.assetDir != "" {
		path := filepath.Join(o.assetDir, "styles", name+".json")
		if s, err := governor.LoadStyle(path); err == nil {
			return s
		}
	}
	return governor.PresetStyle(name)
}

// resolveAsset resolves a persona asset path against the asset directory.
// Absolute paths pass through.
func (o *Orchestrator) resolveAsset(path string) string {
	if path == "" || filepath.IsAbs(path) || o.assetDir == "" {
		return path
	}
	return filepath.Join(o.assetDir, path)
}
