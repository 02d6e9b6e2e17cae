package scriptgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/lumenlabs/lumen/pkg/intent"
	"github.com/lumenlabs/lumen/pkg/provider/llm"
)

// ErrUpstreamUnavailable is returned when the LLM backend cannot be reached
// at all. Malformed content never produces this error; it degrades to the
// sentence-split fallback instead.
var ErrUpstreamUnavailable = errors.New("scriptgen: llm backend unavailable")

// previewLen caps how much of a model response lands in the logs.
const previewLen = 120

// defaultMaxTokens bounds script length; a talking-head clip rarely needs
// more than a few hundred tokens of script.
const defaultMaxTokens = 1024

// Result is a finished script with its annotations and an audit trail of how
// the annotations were obtained.
type Result struct {
	// Text is the plain spoken script.
	Text string

	// Intent carries the segment annotations. Never nil.
	Intent *intent.ScriptIntent

	// Provenance records which parsing path produced Intent.
	Provenance intent.Provenance

	// Usage aggregates token accounting across all attempts.
	Usage llm.Usage
}

// Option configures a Generator.
type Option func(*Generator)

// WithMaxTokens overrides the completion token cap.
func WithMaxTokens(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// Generator drives the strict/permissive/fallback cascade against an LLM
// provider. It is stateless between calls and safe for concurrent use.
type Generator struct {
	provider  llm.Provider
	maxTokens int
}

// NewGenerator wraps an LLM provider.
func NewGenerator(provider llm.Provider, opts ...Option) (*Generator, error) {
	if provider == nil {
		return nil, fmt.Errorf("scriptgen: provider is required")
	}
	g := &Generator{provider: provider, maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

var (
	schemaOnce sync.Once
	schemaMap  map[string]any
)

// intentSchema reflects the ScriptIntent wire format into a JSON Schema once
// and caches it for the life of the process.
func intentSchema() map[string]any {
	schemaOnce.Do(func() {
		reflector := &jsonschema.Reflector{
			ExpandedStruct: true,
			DoNotReference: true,
		}
		schema := reflector.Reflect(&intent.ScriptIntent{})
		raw, err := json.Marshal(schema)
		if err != nil {
			slog.Error("failed to marshal intent schema", "error", err)
			return
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			slog.Error("failed to decode intent schema", "error", err)
			return
		}
		schemaMap = m
	})
	return schemaMap
}

// Generate produces an annotated script for topic in the given persona's
// voice. The cascade is:
//
//  1. strict: native JSON mode with a response schema
//  2. permissive: free-form completion asked to include JSON
//  3. fallback: sentence-split the last response text
//
// Only transport failures return an error (wrapping ErrUpstreamUnavailable).
// Every other failure mode yields a usable Result with degraded provenance.
func (g *Generator) Generate(ctx context.Context, persona Persona, topic string) (*Result, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("scriptgen: topic is required")
	}

	var usage llm.Usage
	lastContent := ""

	for attempt, req := range g.attempts(persona, topic) {
		resp, err := g.provider.Complete(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%w: attempt %d via %s: %v",
				ErrUpstreamUnavailable, attempt+1, g.provider.Name(), err)
		}
		if resp == nil {
			return nil, fmt.Errorf("%w: attempt %d via %s: empty response",
				ErrUpstreamUnavailable, attempt+1, g.provider.Name())
		}
		usage = addUsage(usage, resp.Usage)
		if strings.TrimSpace(resp.Content) != "" {
			lastContent = resp.Content
		}

		slog.Info("script generation attempt",
			"attempt", attempt+1,
			"json_mode", req.ForceJSON,
			"response_len", len(resp.Content),
			"preview", preview(resp.Content))

		parsed := intent.ParseScriptIntent(resp.Content)
		if parsed == nil {
			continue
		}

		prov := intent.ParsePermissive
		if json.Valid([]byte(strings.TrimSpace(resp.Content))) {
			prov = intent.ParseStrict
		}
		slog.Info("script intent parsed",
			"attempt", attempt+1,
			"provenance", prov.String(),
			"segments", len(parsed.Segments))
		return &Result{
			Text:       parsed.PlainText(),
			Intent:     parsed,
			Provenance: prov,
			Usage:      usage,
		}, nil
	}

	fallback := intent.FallbackIntent(lastContent)
	slog.Warn("script intent unparseable, using sentence-split fallback",
		"persona", persona.Tag,
		"segments", len(fallback.Segments))
	return &Result{
		Text:       fallback.PlainText(),
		Intent:     fallback,
		Provenance: intent.ParseFallback,
		Usage:      usage,
	}, nil
}

// GeneratePlain produces an unannotated script: one free-form completion in
// the persona's voice, no segment structure requested. Used when the caller
// has opted out of intent annotations.
func (g *Generator) GeneratePlain(ctx context.Context, persona Persona, topic string) (string, llm.Usage, error) {
	if strings.TrimSpace(topic) == "" {
		return "", llm.Usage{}, fmt.Errorf("scriptgen: topic is required")
	}

	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: persona.plainSystemPrompt(),
		Prompt:       fmt.Sprintf("Write the script for this topic: %s", topic),
		Temperature:  persona.Temperature,
		MaxTokens:    g.maxTokens,
	})
	if err != nil {
		return "", llm.Usage{}, fmt.Errorf("%w: plain script via %s: %v",
			ErrUpstreamUnavailable, g.provider.Name(), err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", llm.Usage{}, fmt.Errorf("%w: plain script via %s: empty response",
			ErrUpstreamUnavailable, g.provider.Name())
	}

	slog.Info("plain script generated",
		"response_len", len(resp.Content),
		"preview", preview(resp.Content))
	return strings.TrimSpace(resp.Content), resp.Usage, nil
}

// attempts builds the strict and permissive completion requests in cascade
// order.
func (g *Generator) attempts(persona Persona, topic string) []llm.CompletionRequest {
	system := persona.systemPrompt()
	strict := llm.CompletionRequest{
		SystemPrompt: system,
		Prompt: fmt.Sprintf(
			"Write the script for this topic: %s\n"+
				"Respond with a JSON object matching the provided schema.", topic),
		Temperature:    persona.Temperature,
		MaxTokens:      g.maxTokens,
		ForceJSON:      true,
		ResponseSchema: intentSchema(),
	}
	permissive := llm.CompletionRequest{
		SystemPrompt: system,
		Prompt: fmt.Sprintf(
			"Write the script for this topic: %s\n"+
				"Respond with only a JSON object of the form "+
				`{"segments": [{"text": "...", "pause_after": 0.4, `+
				`"emphasis": [], "sentence_end": true}]}`+
				" and no other text.", topic),
		Temperature: persona.Temperature,
		MaxTokens:   g.maxTokens,
	}
	return []llm.CompletionRequest{strict, permissive}
}

func preview(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > previewLen {
		return s[:previewLen]
	}
	return s
}

func addUsage(a, b llm.Usage) llm.Usage {
	return llm.Usage{
		PromptTokens:     a.PromptTokens + b.PromptTokens,
		CompletionTokens: a.CompletionTokens + b.CompletionTokens,
		TotalTokens:      a.TotalTokens + b.TotalTokens,
	}
}
