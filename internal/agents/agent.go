// Package agents implements question routing: each agent scores its own
// suitability for a question, a selector ranks the candidates, and the
// service delegates the winning agent to the retrieval backend.
package agents

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/plantia/plantia/internal/configstore"
	"github.com/plantia/plantia/internal/log"
)

// Sentinel errors for agent routing.
var (
	// ErrAgentNotFound indicates an explicitly requested agent is not in
	// the live map. Explicit requests never fall back to automatic
	// selection.
	ErrAgentNotFound = errors.New("agents: agent not found")

	// ErrNoAgents indicates selection ran with an empty candidate set.
	ErrNoAgents = errors.New("agents: no agents available")

	// ErrEmptyQuestion indicates a blank question was submitted.
	ErrEmptyQuestion = errors.New("agents: question cannot be empty")
)

// Retrieval is the consumer-side interface to the RAG backend. Agents hold
// a non-owning reference; the backend's lifecycle belongs to the caller.
type Retrieval interface {
	// Query answers a question against one topic's document collection.
	Query(ctx context.Context, question, topic, sessionID string, includeSources bool) (string, map[string]any, error)

	// AvailableTopics lists the topics the backend can currently serve.
	AvailableTopics() []string

	// ClearSessionHistory drops the conversation history for a session.
	ClearSessionHistory(ctx context.Context, sessionID string) error

	// HealthCheck reports backend health as a status payload.
	HealthCheck(ctx context.Context) map[string]any
}

// ProcessOptions carries per-call processing flags.
type ProcessOptions struct {
	IncludeSources bool
}

// Agent is a named, configured component that scores its own suitability
// for a question and answers it via the retrieval backend.
type Agent interface {
	Name() string
	Config() *configstore.AgentConfig

	// Score returns a confidence in [MinConfidence, MaxConfidence].
	// It is a pure function of (question, context, config).
	Score(question string, context map[string]string) float64

	// Process answers the question. Returned metadata is merged with
	// selection metadata by the service.
	Process(ctx context.Context, question, sessionID string, opts ProcessOptions) (string, map[string]any, error)

	Stats() Stats
	recordSuccess(confidence float64)
	recordFailure()
}

// Stats holds an agent's usage counters. AverageConfidence is a running
// mean over successful calls only.
type Stats struct {
	TotalQueries      int       `json:"total_queries"`
	SuccessfulQueries int       `json:"successful_queries"`
	FailedQueries     int       `json:"failed_queries"`
	AverageConfidence float64   `json:"average_confidence"`
	LastUsed          time.Time `json:"last_used,omitzero"`
}

// SuccessRate returns successful/total, or 0 when unused.
func (s Stats) SuccessRate() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.SuccessfulQueries) / float64(s.TotalQueries)
}

// ConfiguredAgent is the generic configuration-driven agent. Built-in
// flavors embed it and add domain-specific score adjustments through the
// adjust hook; the clamp-at-the-end contract is preserved either way.
type ConfiguredAgent struct {
	cfg       *configstore.AgentConfig
	retrieval Retrieval
	logger    log.Logger
	patterns  []*regexp.Regexp
	matching  configstore.MatchingConfig

	// adjust returns an extra pre-clamp additive term. Nil for the
	// generic agent.
	adjust func(question string) float64

	mu    sync.Mutex
	stats Stats
}

// NewConfiguredAgent builds the generic agent from its config. Patterns
// are compiled once, case-insensitively; an invalid pattern fails
// construction rather than being silently skipped.
func NewConfiguredAgent(cfg *configstore.AgentConfig, retrieval Retrieval, logger log.Logger) (*ConfiguredAgent, error) {
	if cfg == nil {
		return nil, errors.New("agents: config cannot be nil")
	}
	if retrieval == nil {
		return nil, errors.New("agents: retrieval backend cannot be nil")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	patterns, err := compilePatterns(cfg.Patterns)
	if err != nil {
		return nil, fmt.Errorf("agent %q: %w", cfg.Name, err)
	}

	// A config without a match_increments block carries the zero value.
	matching := cfg.Matching
	if matching == (configstore.MatchingConfig{}) {
		matching = configstore.DefaultMatching()
	}

	return &ConfiguredAgent{
		cfg:       cfg,
		retrieval: retrieval,
		logger:    logger.With("agent", cfg.Name),
		patterns:  patterns,
		matching:  matching,
	}, nil
}

func compilePatterns(exprs []string) ([]*regexp.Regexp, error) {
	patterns := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return nil, fmt.Errorf("compiling pattern %q: %w", expr, err)
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}

func (a *ConfiguredAgent) Name() string                     { return a.cfg.Name }
func (a *ConfiguredAgent) Config() *configstore.AgentConfig { return a.cfg }

// Score implements the additive keyword/species/pattern scoring model,
// clamped to the agent's configured confidence bounds.
func (a *ConfiguredAgent) Score(question string, context map[string]string) float64 {
	raw := rawScore(a.cfg, a.matching, a.patterns, question, context)
	if a.adjust != nil {
		raw += a.adjust(question)
	}
	return clamp(raw, a.cfg.MinConfidence, a.cfg.MaxConfidence)
}

// primaryTopic returns the topic this agent queries. Config validation
// guarantees at least one topic for agents loaded from files.
func (a *ConfiguredAgent) primaryTopic() string {
	if len(a.cfg.Topics) == 0 {
		return ""
	}
	return a.cfg.Topics[0]
}

// Process delegates to the retrieval backend against the agent's primary
// topic and enriches the returned metadata with agent identity.
func (a *ConfiguredAgent) Process(ctx context.Context, question, sessionID string, opts ProcessOptions) (string, map[string]any, error) {
	topic := a.primaryTopic()
	if topic == "" {
		return "", nil, fmt.Errorf("agent %q has no topics configured", a.cfg.Name)
	}

	answer, md, err := a.retrieval.Query(ctx, question, topic, sessionID, opts.IncludeSources)
	if err != nil {
		return "", nil, fmt.Errorf("agent %q querying topic %q: %w", a.cfg.Name, topic, err)
	}

	if md == nil {
		md = make(map[string]any)
	}
	md["agent"] = a.cfg.Name
	md["agent_description"] = a.cfg.Description
	md["topic"] = topic
	return answer, md, nil
}

func (a *ConfiguredAgent) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// recordSuccess folds one successful call into the running statistics:
// new_avg = (old_avg*(n-1) + confidence) / n over successful calls.
func (a *ConfiguredAgent) recordSuccess(confidence float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.TotalQueries++
	a.stats.SuccessfulQueries++
	n := float64(a.stats.SuccessfulQueries)
	a.stats.AverageConfidence = (a.stats.AverageConfidence*(n-1) + confidence) / n
	a.stats.LastUsed = time.Now()
}

// recordFailure counts a failed call. The running average only tracks
// successful calls, so it is left untouched.
func (a *ConfiguredAgent) recordFailure() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.TotalQueries++
	a.stats.FailedQueries++
	a.stats.LastUsed = time.Now()
}
