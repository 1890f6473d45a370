package agents

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/plantia/plantia/internal/config"
	"github.com/plantia/plantia/internal/configstore"
	"github.com/plantia/plantia/internal/log"
	"github.com/plantia/plantia/internal/metrics"
)

// Selection method labels reported in answer metadata.
const (
	methodManual    = "manual"
	methodAutomatic = "automatic"
)

// TopicReloader is implemented by retrieval backends that can rebuild
// per-topic resources when a topic config changes.
type TopicReloader interface {
	ReloadTopic(name string)
}

// ProcessRequest is one question round-trip request.
type ProcessRequest struct {
	Question  string
	SessionID string
	// AgentType forces a specific agent, bypassing selection. An unknown
	// name fails with ErrAgentNotFound; it never falls back to automatic
	// selection.
	AgentType      string
	Context        map[string]string
	IncludeSources bool
}

// ProcessResult is the answer plus merged agent and selection metadata.
type ProcessResult struct {
	Answer   string         `json:"answer"`
	Metadata map[string]any `json:"metadata"`
}

// AgentSummary is the externally visible description of one live agent.
type AgentSummary struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Class           string   `json:"class"`
	Topics          []string `json:"topics"`
	Enabled         bool     `json:"enabled"`
	Priority        int      `json:"priority"`
	FallbackEnabled bool     `json:"fallback_enabled"`
	Stats           Stats    `json:"stats"`
}

// AgentHealth is the per-agent slice of the health payload.
type AgentHealth struct {
	Enabled      bool     `json:"enabled"`
	Topics       []string `json:"topics"`
	TotalQueries int      `json:"total_queries"`
	SuccessRate  float64  `json:"success_rate"`
}

// Health is the service health payload.
type Health struct {
	Status        string                 `json:"status"` // healthy | degraded | unhealthy
	TotalAgents   int                    `json:"total_agents"`
	EnabledAgents int                    `json:"enabled_agents"`
	Agents        map[string]AgentHealth `json:"agents"`
	Retrieval     map[string]any         `json:"retrieval,omitempty"`
}

// Service is the orchestration entry point. It owns the live agent map and
// the configuration store, runs the rate-limited reload check, selects an
// agent per question and delegates to it.
type Service struct {
	store     *configstore.Store
	registry  *Registry
	retrieval Retrieval
	selector  *Selector
	logger    log.Logger
	recorder  *metrics.Recorder

	reloadInterval time.Duration

	// mu guards live, buildFailures and lastReload. The live map is
	// replaced wholesale on rebuild, never mutated in place, so in-flight
	// requests holding an agent reference complete against a consistent
	// snapshot.
	mu            sync.RWMutex
	live          map[string]Agent
	buildFailures int
	lastReload    time.Time
}

// NewService builds the service and the initial live agent map. Agents
// whose construction fails are logged and omitted; the service starts as
// long as the configuration itself is readable.
func NewService(appCfg *config.Config, store *configstore.Store, registry *Registry, retrieval Retrieval, logger log.Logger, recorder *metrics.Recorder) (*Service, error) {
	if appCfg == nil {
		return nil, config.ErrConfigNil
	}
	if store == nil {
		return nil, errors.New("agents: config store cannot be nil")
	}
	if registry == nil {
		return nil, errors.New("agents: registry cannot be nil")
	}
	if retrieval == nil {
		return nil, errors.New("agents: retrieval backend cannot be nil")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	if recorder == nil {
		recorder = metrics.NewRecorder(log.NewNop())
	}

	s := &Service{
		store:          store,
		registry:       registry,
		retrieval:      retrieval,
		selector:       NewSelector(logger, recorder),
		logger:         logger.With("component", "agents"),
		recorder:       recorder,
		reloadInterval: appCfg.ReloadInterval,
		lastReload:     time.Now(),
	}

	if _, err := store.LoadAgents(); err != nil {
		return nil, fmt.Errorf("loading agent configs: %w", err)
	}
	s.rebuildLive()
	return s, nil
}

// rebuildLive constructs a fresh agent map from the store's current agent
// configs and swaps it in atomically. Disabled and invalid configs are
// skipped; failed constructions are counted for health reporting.
func (s *Service) rebuildLive() {
	cfgs := s.store.Agents()
	live := make(map[string]Agent, len(cfgs))
	failures := 0

	for name, cfg := range cfgs {
		if !cfg.Enabled {
			continue
		}
		if v := configstore.ValidateAgent(cfg); !v.Valid {
			s.logger.Error("skipping invalid agent config", "agent", name, "errors", v.Errors)
			failures++
			continue
		}
		agent, err := s.registry.Create(cfg, s.retrieval, s.logger)
		if err != nil {
			s.logger.Error("skipping unavailable agent", "agent", name, "error", err)
			failures++
			continue
		}
		live[name] = agent
	}

	s.mu.Lock()
	s.live = live
	s.buildFailures = failures
	s.mu.Unlock()

	s.logger.Info("live agent map rebuilt", "agents", len(live), "failures", failures)
}

// liveAgents returns the current live map snapshot. Callers must not
// mutate it.
func (s *Service) liveAgents() map[string]Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

// checkAndReload runs the configuration reload at most once per reload
// interval. The timestamp guard keeps concurrent requests from stacking
// redundant file-system scans; a lost race is harmless because a redundant
// reload is idempotent.
func (s *Service) checkAndReload() {
	s.mu.Lock()
	if time.Since(s.lastReload) < s.reloadInterval {
		s.mu.Unlock()
		return
	}
	s.lastReload = time.Now()
	s.mu.Unlock()

	changed := s.store.ReloadIfChanged()
	if len(changed) == 0 {
		return
	}
	s.recorder.ConfigReload(changed)

	rebuild := false
	for _, id := range changed {
		switch {
		case id == "agents:all":
			rebuild = true
		case strings.HasPrefix(id, "topic:"):
			if reloader, ok := s.retrieval.(TopicReloader); ok {
				reloader.ReloadTopic(strings.TrimPrefix(id, "topic:"))
			}
		}
	}
	if rebuild {
		s.rebuildLive()
	}
}

// ProcessQuestion answers one question: reload check, agent selection (or
// explicit override), delegation, statistics and metadata merging.
func (s *Service) ProcessQuestion(ctx context.Context, req ProcessRequest) (*ProcessResult, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, ErrEmptyQuestion
	}

	s.checkAndReload()
	live := s.liveAgents()

	var (
		agent      Agent
		confidence float64
		method     string
	)

	if req.AgentType != "" {
		a, ok := live[req.AgentType]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrAgentNotFound, req.AgentType)
		}
		agent, confidence, method = a, 1.0, methodManual
	} else {
		candidates := make([]Agent, 0, len(live))
		for _, a := range live {
			candidates = append(candidates, a)
		}
		sel, err := s.selector.Select(req.Question, candidates, req.Context)
		if err != nil {
			return nil, err
		}
		agent, confidence, method = sel.Agent, sel.Confidence, methodAutomatic
	}

	start := time.Now()
	answer, md, err := agent.Process(ctx, req.Question, req.SessionID, ProcessOptions{
		IncludeSources: req.IncludeSources,
	})
	elapsed := time.Since(start)

	if err != nil {
		agent.recordFailure()
		s.recorder.ChatInteraction(agent.Name(), false, 0, elapsed, err.Error())
		return nil, fmt.Errorf("processing question with agent %q: %w", agent.Name(), err)
	}

	agent.recordSuccess(confidence)
	s.recorder.ChatInteraction(agent.Name(), true, confidence, elapsed, "")

	if md == nil {
		md = make(map[string]any)
	}
	md["confidence"] = confidence
	md["selection_method"] = method
	md["processing_time_ms"] = elapsed.Milliseconds()

	return &ProcessResult{Answer: answer, Metadata: md}, nil
}

// AvailableAgents summarizes every live agent, ordered by priority then
// name.
func (s *Service) AvailableAgents() []AgentSummary {
	live := s.liveAgents()

	summaries := make([]AgentSummary, 0, len(live))
	for _, agent := range live {
		summaries = append(summaries, summarize(agent))
	}

	// Deterministic listing for API consumers.
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Priority != summaries[j].Priority {
			return summaries[i].Priority < summaries[j].Priority
		}
		return summaries[i].Name < summaries[j].Name
	})
	return summaries
}

// AgentDetails returns the summary for one live agent.
func (s *Service) AgentDetails(name string) (AgentSummary, error) {
	agent, ok := s.liveAgents()[name]
	if !ok {
		return AgentSummary{}, fmt.Errorf("%w: %q", ErrAgentNotFound, name)
	}
	return summarize(agent), nil
}

func summarize(agent Agent) AgentSummary {
	cfg := agent.Config()
	return AgentSummary{
		Name:            cfg.Name,
		Description:     cfg.Description,
		Class:           cfg.ClassName,
		Topics:          cfg.Topics,
		Enabled:         cfg.Enabled,
		Priority:        cfg.Priority,
		FallbackEnabled: cfg.FallbackEnabled,
		Stats:           agent.Stats(),
	}
}

// AddAgent persists a new agent definition and swaps in a rebuilt live
// map. The definition is validated before anything is written; a failed
// save or build leaves the previous live map untouched.
func (s *Service) AddAgent(name string, settings map[string]any) error {
	cfg, err := configstore.ParseAgentSettings(name, settings)
	if err != nil {
		return err
	}
	if v := configstore.ValidateAgent(cfg); !v.Valid {
		return fmt.Errorf("agents: invalid agent definition %q: %s", name, strings.Join(v.Errors, "; "))
	}

	if err := s.store.SaveAgent(name, settings); err != nil {
		return err
	}

	s.rebuildLive()
	s.logger.Info("agent added", "agent", name)
	return nil
}

// ReloadAgent re-reads the agents file and replaces one live agent with a
// freshly constructed instance. Statistics restart from zero. The live map
// is copied and swapped, never mutated, and is left unchanged if
// construction fails.
func (s *Service) ReloadAgent(name string) error {
	if _, err := s.store.LoadAgents(); err != nil {
		return fmt.Errorf("reloading agent configs: %w", err)
	}

	cfg, err := s.store.Agent(name)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrAgentNotFound, name)
	}

	old := s.liveAgents()

	if !cfg.Enabled {
		next := make(map[string]Agent, len(old))
		for n, a := range old {
			if n != name {
				next[n] = a
			}
		}
		s.mu.Lock()
		s.live = next
		s.mu.Unlock()
		s.logger.Info("agent disabled on reload", "agent", name)
		return nil
	}

	agent, err := s.registry.Create(cfg, s.retrieval, s.logger)
	if err != nil {
		return fmt.Errorf("rebuilding agent %q: %w", name, err)
	}

	next := make(map[string]Agent, len(old)+1)
	for n, a := range old {
		next[n] = a
	}
	next[name] = agent

	s.mu.Lock()
	s.live = next
	s.mu.Unlock()

	s.logger.Info("agent reloaded", "agent", name)
	return nil
}

// HealthCheck reports the routing layer's health plus the retrieval
// backend's own health payload.
func (s *Service) HealthCheck(ctx context.Context) Health {
	live := s.liveAgents()

	s.mu.RLock()
	failures := s.buildFailures
	s.mu.RUnlock()

	h := Health{
		TotalAgents:   len(s.store.Agents()),
		EnabledAgents: len(live),
		Agents:        make(map[string]AgentHealth, len(live)),
		Retrieval:     s.retrieval.HealthCheck(ctx),
	}
	for name, agent := range live {
		st := agent.Stats()
		h.Agents[name] = AgentHealth{
			Enabled:      agent.Config().Enabled,
			Topics:       agent.Config().Topics,
			TotalQueries: st.TotalQueries,
			SuccessRate:  st.SuccessRate(),
		}
	}

	retrievalStatus, _ := h.Retrieval["status"].(string)
	switch {
	case len(live) == 0 || retrievalStatus == "unhealthy":
		h.Status = "unhealthy"
	case failures > 0 || retrievalStatus == "degraded":
		h.Status = "degraded"
	default:
		h.Status = "healthy"
	}
	return h
}
