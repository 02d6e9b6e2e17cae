// Command lumen is the main entry point for the Lumen video generation server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lumenlabs/lumen/internal/config"
	"github.com/lumenlabs/lumen/internal/health"
	"github.com/lumenlabs/lumen/internal/observe"
	"github.com/lumenlabs/lumen/internal/pipeline"
	"github.com/lumenlabs/lumen/internal/refstyle"
	"github.com/lumenlabs/lumen/internal/resilience"
	"github.com/lumenlabs/lumen/internal/server"
	"github.com/lumenlabs/lumen/pkg/coeff"
	"github.com/lumenlabs/lumen/pkg/provider/anim"
	"github.com/lumenlabs/lumen/pkg/provider/anim/sadtalker"
	"github.com/lumenlabs/lumen/pkg/provider/llm"
	oaillm "github.com/lumenlabs/lumen/pkg/provider/llm/openai"
	"github.com/lumenlabs/lumen/pkg/provider/tts"
	"github.com/lumenlabs/lumen/pkg/provider/tts/xtts"
	"github.com/lumenlabs/lumen/pkg/provider/vision"
	"github.com/lumenlabs/lumen/pkg/provider/vision/mediapipe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// A .env file is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "lumen: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "lumen: %v\n", err)
		}
		return 1
	}

	// The level var lets a config reload adjust verbosity without restart.
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	slog.Info("lumen starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "lumen",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	models := pipeline.NewModelRegistry()
	providers, err := buildProviders(cfg, reg, models)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := models.Shutdown(shutdownCtx); err != nil {
			slog.Warn("model shutdown error", "err", err)
		}
	}()

	printStartupSummary(cfg)

	// ── Pipeline ──────────────────────────────────────────────────────────────
	store, err := pipeline.NewArtifactStore(cfg.Pipeline.OutputDir)
	if err != nil {
		slog.Error("failed to create artifact store", "err", err)
		return 1
	}

	orch, err := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
		LLM:             providers.llm,
		TTS:             providers.tts,
		Anim:            providers.anim,
		Store:           store,
		Personas:        cfg.Personas,
		AssetDir:        cfg.Pipeline.AssetDir,
		FPS:             cfg.Pipeline.FPS,
		Resolution:      cfg.Pipeline.Resolution,
		DefaultStyle:    cfg.Pipeline.DefaultStyle,
		DisableGovernor: cfg.Pipeline.DisableGovernor,
	})
	if err != nil {
		slog.Error("failed to build orchestrator", "err", err)
		return 1
	}

	var extractor *refstyle.Extractor
	if providers.vision != nil {
		extractor, err = refstyle.NewExtractor(providers.vision)
		if err != nil {
			slog.Error("failed to build style extractor", "err", err)
			return 1
		}
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.PersonasChanged {
			slog.Warn("persona configuration changed on disk; restart to apply",
				"changes", len(d.PersonaChanges))
		}
	})
	if err != nil {
		slog.Error("failed to watch config", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── HTTP server ───────────────────────────────────────────────────────────
	checker := health.Checker{
		Name: "artifact_store",
		Check: func(ctx context.Context) error {
			_, err := os.Stat(store.Root())
			return err
		},
	}

	srv, err := server.New(server.Config{
		Orchestrator: orch,
		Extractor:    extractor,
		OutputDir:    cfg.Pipeline.OutputDir,
		StyleDir:     styleDir(cfg),
		Health:       health.New(checker),
		Server:       cfg.Server,
	})
	if err != nil {
		slog.Error("failed to build server", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// providerSet holds the instantiated pipeline providers. Vision is optional.
type providerSet struct {
	llm    llm.Provider
	tts    tts.Provider
	anim   anim.Provider
	vision vision.Provider
}

// registerBuiltinProviders wires the provider factories that ship with Lumen.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTTS("xtts", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []xtts.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, xtts.WithLanguage(lang))
		}
		if rate := optInt(entry.Options, "output_sample_rate"); rate > 0 {
			opts = append(opts, xtts.WithOutputSampleRate(rate))
		}
		return xtts.New(entry.BaseURL, opts...)
	})

	reg.RegisterAnim("sadtalker", func(entry config.ProviderEntry) (anim.Provider, error) {
		return sadtalker.New(entry.BaseURL)
	})

	reg.RegisterVision("mediapipe", func(entry config.ProviderEntry) (vision.Provider, error) {
		return mediapipe.New(entry.BaseURL)
	})
}

// buildProviders instantiates the providers named in cfg. The LLM is wrapped
// in a circuit-breaking fallback group; the animation provider goes through
// the model registry so its requests are serialised and its connection is
// established lazily.
func buildProviders(cfg *config.Config, reg *config.Registry, models *pipeline.ModelRegistry) (*providerSet, error) {
	ps := &providerSet{}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		fb := resilience.NewLLMFallback(p, name, resilience.FallbackConfig{})
		ps.llm = fb
		slog.Info("provider created", "kind", "llm", "name", name)
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		}
		ps.tts = resilience.NewTTSFallback(p, name, resilience.FallbackConfig{})
		slog.Info("provider created", "kind", "tts", "name", name)
	}

	if entry := cfg.Providers.Anim; entry.Name != "" {
		models.Register("anim", func(ctx context.Context) (any, error) {
			return reg.CreateAnim(entry)
		})
		ps.anim = &serialAnim{models: models, name: entry.Name}
		slog.Info("provider registered", "kind", "anim", "name", entry.Name)
	}

	if name := cfg.Providers.Vision.Name; name != "" {
		p, err := reg.CreateVision(cfg.Providers.Vision)
		if err != nil {
			return nil, fmt.Errorf("create vision provider %q: %w", name, err)
		}
		ps.vision = p
		slog.Info("provider created", "kind", "vision", "name", name)
	}

	return ps, nil
}

// serialAnim routes animation calls through the model registry: the provider
// is constructed on first use and at most one heavy request runs at a time.
type serialAnim struct {
	models *pipeline.ModelRegistry
	name   string
}

var _ anim.Provider = (*serialAnim)(nil)

func (s *serialAnim) AudioToCoeffs(ctx context.Context, req anim.CoeffRequest) (*coeff.Bundle, error) {
	p, release, err := s.models.Acquire(ctx, "anim")
	if err != nil {
		return nil, err
	}
	defer release()
	return p.(anim.Provider).AudioToCoeffs(ctx, req)
}

func (s *serialAnim) Render(ctx context.Context, req anim.RenderRequest) (*anim.RenderResult, error) {
	p, release, err := s.models.Acquire(ctx, "anim")
	if err != nil {
		return nil, err
	}
	defer release()
	return p.(anim.Provider).Render(ctx, req)
}

func (s *serialAnim) Name() string { return s.name }

// styleDir is where extracted style profiles live; the orchestrator resolves
// style names against the same directory.
func styleDir(cfg *config.Config) string {
	if cfg.Pipeline.AssetDir == "" {
		return ""
	}
	return cfg.Pipeline.AssetDir + "/styles"
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Lumen — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("Anim", cfg.Providers.Anim.Name, cfg.Providers.Anim.Model)
	printProvider("Vision", cfg.Providers.Vision.Name, "")
	fmt.Printf("║  Personas        : %-19d ║\n", len(cfg.Personas))
	fmt.Printf("║  FPS             : %-19d ║\n", cfg.Pipeline.FPS)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string value from a provider Options map.
func optString(opts map[string]any, key string) string {
	if v, ok := opts[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// optInt extracts an int value from a provider Options map. YAML decodes
// integers as int.
func optInt(opts map[string]any, key string) int {
	if v, ok := opts[key]; ok {
		if n, ok := v.(int); ok {
			return n
		}
	}
	return 0
}
