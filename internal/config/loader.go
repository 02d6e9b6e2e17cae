package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":    {"openai"},
	"tts":    {"xtts"},
	"anim":   {"sadtalker"},
	"vision": {"mediapipe"},
}

// envAPIKeys maps provider kinds to the environment variable consulted when
// the YAML api_key is empty. Keeps secrets out of checked-in config files.
var envAPIKeys = map[string]string{
	"llm": "OPENAI_API_KEY",
}

const (
	defaultFPS       = 25
	defaultOutputDir = "outputs"
)

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides
// and defaults, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv fills empty API keys from the environment.
func applyEnv(cfg *Config) {
	if cfg.Providers.LLM.APIKey == "" {
		if key := os.Getenv(envAPIKeys["llm"]); key != "" {
			cfg.Providers.LLM.APIKey = key
		}
	}
}

// applyDefaults fills zero-value pipeline settings.
func applyDefaults(cfg *Config) {
	if cfg.Pipeline.FPS == 0 {
		cfg.Pipeline.FPS = defaultFPS
	}
	if cfg.Pipeline.OutputDir == "" {
		cfg.Pipeline.OutputDir = defaultOutputDir
	}
	if cfg.Pipeline.DefaultStyle == "" {
		cfg.Pipeline.DefaultStyle = "calm_tech"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("anim", cfg.Providers.Anim.Name)
	validateProviderName("vision", cfg.Providers.Vision.Name)

	if cfg.Providers.LLM.Name == "" && len(cfg.Personas) > 0 {
		slog.Warn("no LLM provider configured; script generation will always use the sentence-split fallback")
	}
	if cfg.Providers.TTS.Name == "" && len(cfg.Personas) > 0 {
		errs = append(errs, errors.New("providers.tts is required when personas are configured"))
	}
	if cfg.Providers.Anim.Name == "" && len(cfg.Personas) > 0 {
		errs = append(errs, errors.New("providers.anim is required when personas are configured"))
	}

	if cfg.Pipeline.FPS < 1 || cfg.Pipeline.FPS > 60 {
		errs = append(errs, fmt.Errorf("pipeline.fps %d is out of range [1, 60]", cfg.Pipeline.FPS))
	}
	if cfg.Pipeline.Resolution < 0 {
		errs = append(errs, fmt.Errorf("pipeline.resolution %d must not be negative", cfg.Pipeline.Resolution))
	}

	namesSeen := make(map[string]int, len(cfg.Personas))
	for i, p := range cfg.Personas {
		prefix := fmt.Sprintf("personas[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := namesSeen[p.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of personas[%d]", prefix, p.Name, prev))
			}
			namesSeen[p.Name] = i
		}
		if p.ReferenceAudio == "" {
			errs = append(errs, fmt.Errorf("%s.reference_audio is required", prefix))
		}
		if p.ReferenceImage == "" {
			errs = append(errs, fmt.Errorf("%s.reference_image is required", prefix))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// loadFromBytes parses an in-memory config, used by the watcher.
func loadFromBytes(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}
