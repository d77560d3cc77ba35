package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kaiwa-ai/kaiwa/internal/config"
	"github.com/kaiwa-ai/kaiwa/internal/dialogue"
	"github.com/kaiwa-ai/kaiwa/internal/gateway"
	"github.com/kaiwa-ai/kaiwa/internal/gateway/adapters"
	"github.com/kaiwa-ai/kaiwa/internal/memory"
	"github.com/kaiwa-ai/kaiwa/internal/memory/embeddings"
	"github.com/kaiwa-ai/kaiwa/internal/memory/vector"
	"github.com/kaiwa-ai/kaiwa/internal/observability"
	"github.com/kaiwa-ai/kaiwa/internal/server"
	"github.com/kaiwa-ai/kaiwa/internal/store"
	"github.com/kaiwa-ai/kaiwa/internal/tools"
	"github.com/kaiwa-ai/kaiwa/internal/tools/builtin"
	"github.com/kaiwa-ai/kaiwa/internal/usage"
)

// app holds the fully wired pipeline.
type app struct {
	cfg          *config.Config
	configPath   string
	logger       *slog.Logger
	store        store.Store
	memory       *memory.Service
	gateway      *gateway.Gateway
	personas     *config.PersonaStore
	monitor      *usage.Monitor
	metrics      *observability.Metrics
	orchestrator *dialogue.Orchestrator
	server       *server.Server
}

// buildApp loads configuration and constructs every component. withMetrics
// is false for one-shot CLI turns so default-registry collectors are not
// registered twice across tests.
func buildApp(ctx context.Context, configPath string, withMetrics bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	slog.SetDefault(logger)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	index, err := openVectorIndex(ctx, cfg, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	mem := memory.NewService(st, index, cfg.Memory.Window, logger)

	gw := gateway.New(logger)
	if err := registerAdapters(ctx, gw, cfg); err != nil {
		st.Close()
		return nil, err
	}

	personas := config.NewPersonaStore(cfg.Personas.Dir, cfg.Personas.Default)
	monitor := usage.NewMonitor(cfg.Pricing, st, cfg.Usage.AuditPath, logger)

	var metrics *observability.Metrics
	if withMetrics {
		metrics = observability.NewMetrics(nil)
	}

	catalog := builtin.Catalog(builtin.Deps{
		Gateway:  gw,
		Model:    cfg.Models.Default,
		Memory:   mem,
		Stickers: cfg.Stickers,
	})
	registry := tools.NewRegistry(logger)
	registry.Load(cfg.Tools, catalog)

	orch := dialogue.New(dialogue.Config{
		Gateway:  gw,
		Memory:   mem,
		Tools:    tools.NewRunner(registry, logger),
		Personas: personas,
		Monitor:  monitor,
		Metrics:  metrics,
		Model:    cfg.Models.Default,
		Planner:  cfg.Models.Planner,
		Logger:   logger,
	})

	return &app{
		cfg:          cfg,
		configPath:   configPath,
		logger:       logger,
		store:        st,
		memory:       mem,
		gateway:      gw,
		personas:     personas,
		monitor:      monitor,
		metrics:      metrics,
		orchestrator: orch,
		server:       server.New(cfg.Server.Host, cfg.Server.Port, orch, metrics, logger),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// watchConfig hot-reloads the persona cache when the config file or the
// persona directory changes.
func (a *app) watchConfig(ctx context.Context) {
	watcher, err := config.NewWatcher(
		[]string{a.configPath, a.cfg.Personas.Dir},
		func() {
			a.personas.Invalidate()
			a.logger.Info("persona cache invalidated after config change")
		},
		a.logger,
	)
	if err != nil {
		a.logger.Warn("config watcher unavailable", "error", err)
		return
	}
	go watcher.Run(ctx)
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Database.Path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Database.URL)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// openVectorIndex returns nil when no embedding provider is configured;
// the memory service then degrades to recency-only retrieval.
func openVectorIndex(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*vector.Index, error) {
	var provider embeddings.Provider
	switch cfg.Embeddings.Provider {
	case "":
		return nil, nil
	case "openai":
		p, err := embeddings.NewOpenAI(embeddings.OpenAIConfig{
			APIKey:  cfg.Embeddings.APIKey,
			BaseURL: cfg.Embeddings.BaseURL,
			Model:   cfg.Embeddings.Model,
		})
		if err != nil {
			return nil, err
		}
		provider = p
	case "ollama":
		provider = embeddings.NewOllama(embeddings.OllamaConfig{
			BaseURL: cfg.Embeddings.BaseURL,
			Model:   cfg.Embeddings.Model,
		})
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Embeddings.Provider)
	}
	return vector.New(ctx, provider, cfg.Embeddings.IndexPath, logger)
}

func registerAdapters(ctx context.Context, gw *gateway.Gateway, cfg *config.Config) error {
	for _, ac := range cfg.Models.Adapters {
		kind := ac.Kind
		if kind == "" {
			kind = ac.Name
		}

		var (
			adapter gateway.Adapter
			err     error
		)
		switch kind {
		case "openai":
			adapter, err = adapters.NewOpenAI(adapters.OpenAIConfig{
				Name:         ac.Name,
				APIKey:       ac.APIKey,
				BaseURL:      ac.BaseURL,
				DefaultModel: ac.DefaultModel,
			})
		case "anthropic":
			adapter, err = adapters.NewAnthropic(adapters.AnthropicConfig{
				APIKey:       ac.APIKey,
				BaseURL:      ac.BaseURL,
				DefaultModel: ac.DefaultModel,
			})
		case "gemini":
			adapter, err = adapters.NewGemini(ctx, adapters.GeminiConfig{
				APIKey:       ac.APIKey,
				DefaultModel: ac.DefaultModel,
			})
		case "ollama":
			adapter = adapters.NewOllama(adapters.OllamaConfig{
				BaseURL:      ac.BaseURL,
				DefaultModel: ac.DefaultModel,
			})
		default:
			return fmt.Errorf("adapter %q: unknown kind %q", ac.Name, kind)
		}
		if err != nil {
			return fmt.Errorf("adapter %q: %w", ac.Name, err)
		}

		if err := gw.Register(adapter, ac.Aliases...); err != nil {
			return fmt.Errorf("adapter %q: %w", ac.Name, err)
		}
	}
	return nil
}
