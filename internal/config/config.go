// Package config provides the configuration schema, loader, provider
// registry, and file watcher for the Lumen video generation server.
package config

// LogLevel controls log verbosity for the Lumen server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Lumen.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Personas  []PersonaConfig `yaml:"personas"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// ServerConfig holds network and logging settings for the Lumen server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	LLM    ProviderEntry `yaml:"llm"`
	TTS    ProviderEntry `yaml:"tts"`
	Anim   ProviderEntry `yaml:"anim"`
	Vision ProviderEntry `yaml:"vision"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai",
	// "xtts", "sadtalker", "mediapipe").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any. When
	// empty it may be filled from the environment; see [Load].
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint. For self-hosted
	// model servers this is the server address.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// PersonaConfig binds a persona tag to its reference assets and defaults.
type PersonaConfig struct {
	// Name is the persona tag used in API requests (e.g., "mkbhd").
	Name string `yaml:"name"`

	// ReferenceAudio is the path to the voice-cloning reference WAV.
	ReferenceAudio string `yaml:"reference_audio"`

	// ReferenceImage is the path to the portrait used for rendering.
	ReferenceImage string `yaml:"reference_image"`

	// StyleHint overrides the built-in speaking-style prompt for this persona.
	// Empty means use the built-in hint.
	StyleHint string `yaml:"style_hint"`

	// DefaultStyle names the motion style preset or profile file applied when
	// a request does not specify one.
	DefaultStyle string `yaml:"default_style"`
}

// PipelineConfig holds stage-independent pipeline settings.
type PipelineConfig struct {
	// OutputDir is the root directory for per-request artifacts.
	OutputDir string `yaml:"output_dir"`

	// AssetDir is the root for persona reference assets; relative persona
	// paths are resolved against it.
	AssetDir string `yaml:"asset_dir"`

	// FPS is the video frame rate. Zero means the default of 25.
	FPS int `yaml:"fps"`

	// Resolution is the output video edge size in pixels (e.g., 256, 512).
	// Zero means the renderer default.
	Resolution int `yaml:"resolution"`

	// DefaultStyle names the motion style used when neither the request nor
	// the persona specifies one.
	DefaultStyle string `yaml:"default_style"`

	// DisableGovernor bypasses the motion constraint layer entirely.
	// Intended for debugging renders, not production.
	DisableGovernor bool `yaml:"disable_governor"`
}
