// Package api exposes the assistant over a JSON HTTP API.
//
// Endpoints:
//   - POST   /api/v1/chat                        ask a question
//   - GET    /api/v1/agents                      list live agents
//   - GET    /api/v1/agents/{name}               one agent with stats
//   - POST   /api/v1/agents                      register a new agent
//   - POST   /api/v1/agents/{name}/reload        re-read one agent from disk
//   - GET    /api/v1/topics                      list configured topics
//   - POST   /api/v1/topics                      register a new topic
//   - GET    /api/v1/topics/{name}               one topic's configuration
//   - GET    /api/v1/topics/{name}/validate      topic config validation report
//   - DELETE /api/v1/sessions/{id}/history       clear one conversation
//   - GET    /health, GET /ready                 probes (outside the middleware stack)
package api

import (
	"errors"
	"net/http"

	"github.com/plantia/plantia/internal/agents"
	"github.com/plantia/plantia/internal/configstore"
	"github.com/plantia/plantia/internal/log"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger            log.Logger
	Agents            *agents.Service    // Required
	Retrieval         agents.Retrieval   // Required: session history management
	Configs           *configstore.Store // Required: topic endpoints
	CORSOrigins       []string           // Allowed origins for CORS
	TrustProxy        bool               // Trust X-Real-IP/X-Forwarded-For headers (behind reverse proxy)
	RateBurst         int                // Rate limiter burst size per IP (0 = default 60)
	APIToken          string             // Bearer token for the /api/v1 routes; empty disables auth
	MaxQuestionLength int                // Maximum accepted question length in bytes
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Agents == nil {
		return nil, errors.New("agent service is required")
	}
	if cfg.Retrieval == nil {
		return nil, errors.New("retrieval service is required")
	}
	if cfg.Configs == nil {
		return nil, errors.New("config store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	ch := &chatHandler{
		service:           cfg.Agents,
		retrieval:         cfg.Retrieval,
		maxQuestionLength: cfg.MaxQuestionLength,
		logger:            logger,
	}
	ah := &agentsHandler{service: cfg.Agents, logger: logger}
	th := &topicsHandler{store: cfg.Configs, logger: logger}

	mux := http.NewServeMux()

	// Chat
	mux.HandleFunc("POST /api/v1/chat", ch.send)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/history", ch.clearHistory)

	// Agent management
	mux.HandleFunc("GET /api/v1/agents", ah.list)
	mux.HandleFunc("POST /api/v1/agents", ah.add)
	mux.HandleFunc("GET /api/v1/agents/{name}", ah.details)
	mux.HandleFunc("POST /api/v1/agents/{name}/reload", ah.reload)

	// Topic configuration
	mux.HandleFunc("GET /api/v1/topics", th.list)
	mux.HandleFunc("POST /api/v1/topics", th.add)
	mux.HandleFunc("GET /api/v1/topics/{name}", th.details)
	mux.HandleFunc("GET /api/v1/topics/{name}/validate", th.validate)

	// One question per second steady-state per client, configurable burst.
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newClientLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Auth → Routes
	// RequestID must be before Logging so request_id is available in log attributes.
	// CORS must be before RateLimit so preflight OPTIONS gets proper CORS headers.
	var handler http.Handler = mux
	handler = authMiddleware(cfg.APIToken, logger)(handler)
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w)
		handler.ServeHTTP(w, r)
	})

	// Use a top-level mux to separate health probes from the middleware stack
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Agents, logger))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
