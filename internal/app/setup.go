package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plantia/plantia/db"
	"github.com/plantia/plantia/internal/agents"
	"github.com/plantia/plantia/internal/config"
	"github.com/plantia/plantia/internal/configstore"
	"github.com/plantia/plantia/internal/knowledge"
	"github.com/plantia/plantia/internal/log"
	"github.com/plantia/plantia/internal/metrics"
	"github.com/plantia/plantia/internal/observability"
	"github.com/plantia/plantia/internal/rag"
	"github.com/plantia/plantia/internal/session"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	tracing, err := observability.Setup(ctx, cfg.Otel, logger)
	if err != nil {
		// Tracing is never worth refusing to start over.
		logger.Warn("tracing setup failed, continuing without traces", "error", err)
	} else {
		a.tracing = tracing
	}

	pool, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	a.Knowledge = knowledge.New(knowledge.NewDB(pool), embedder, logger)

	configs, err := provideConfigStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Configs = configs

	a.Sessions = session.NewStore(cfg.HistoryMaxMessages, logger)

	recorder := metrics.NewRecorder(logger)

	generator := rag.NewGenkitGenerator(g, qualifiedModelName(cfg), float64(cfg.Temperature))
	ragSvc, err := rag.New(configs, a.Knowledge, generator, a.Sessions, logger, recorder)
	if err != nil {
		return nil, fmt.Errorf("creating retrieval service: %w", err)
	}
	a.RAG = ragSvc

	agentSvc, err := agents.NewService(cfg, configs, agents.NewRegistry(logger), ragSvc, logger, recorder)
	if err != nil {
		return nil, fmt.Errorf("creating agent service: %w", err)
	}
	a.Agents = agentSvc

	_, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	return a, nil
}

// provideConfigStore opens the dynamic configuration directory, seeding it
// with defaults on first run so a fresh install answers questions out of
// the box.
func provideConfigStore(cfg *config.Config, logger log.Logger) (*configstore.Store, error) {
	store, err := configstore.New(cfg.ConfigDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening config directory: %w", err)
	}
	if err := store.CreateDefaults(); err != nil {
		return nil, fmt.Errorf("seeding default configs: %w", err)
	}
	store.Preload()
	return store, nil
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports ollama (default), gemini, and googleai providers.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderGemini, config.ProviderGoogleAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)

	default: // ollama
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		// Register embedder for retrieval
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the AI provider plugin.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderGemini, config.ProviderGoogleAI:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	default: // ollama embedders are keyed by server address
		return ollama.Embedder(g, cfg.OllamaHost)
	}
}

// qualifiedModelName prefixes the model with its provider namespace as
// Genkit registers it.
func qualifiedModelName(cfg *config.Config) string {
	switch cfg.Provider {
	case config.ProviderGemini, config.ProviderGoogleAI:
		return "googleai/" + cfg.ModelName
	default:
		return "ollama/" + cfg.ModelName
	}
}

// provideDBPool runs migrations and creates a PostgreSQL connection pool
// tuned for a single-service deployment.
func provideDBPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.DatabaseURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
