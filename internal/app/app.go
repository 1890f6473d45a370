// Package app provides application initialization and dependency wiring.
//
// App is the container that assembles the assistant's components: Genkit
// and its AI provider, the PostgreSQL knowledge store, the dynamic
// configuration store, the RAG retrieval layer and the agent orchestration
// service.
package app

import (
	"context"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plantia/plantia/internal/agents"
	"github.com/plantia/plantia/internal/config"
	"github.com/plantia/plantia/internal/configstore"
	"github.com/plantia/plantia/internal/knowledge"
	"github.com/plantia/plantia/internal/log"
	"github.com/plantia/plantia/internal/observability"
	"github.com/plantia/plantia/internal/rag"
	"github.com/plantia/plantia/internal/session"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Configs   *configstore.Store
	Knowledge *knowledge.Store
	Sessions  *session.Store
	RAG       *rag.Service
	Agents    *agents.Service

	tracing *observability.Tracing
	cancel  context.CancelFunc
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.cancel != nil {
		a.cancel()
	}

	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Debug("database pool closed")
	}

	if a.tracing != nil {
		if err := a.tracing.Shutdown(context.Background()); err != nil {
			a.Logger.Warn("shutting down tracing", "error", err)
		}
	}

	return nil
}
