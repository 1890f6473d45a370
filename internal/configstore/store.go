// Package configstore loads, caches and hot-reloads the dynamic
// topic and agent configuration files.
//
// Layout under the base directory:
//
//	<base>/rags/<topic>.yaml   one file per retrieval topic
//	<base>/agents.yaml         aggregate file describing every agent
//
// Topic files are cached per file and reloaded individually when their
// modification time changes. The agents file is reloaded as a whole: any
// change invalidates all agents.
package configstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/plantia/plantia/internal/log"
)

// Sentinel errors for configuration loading.
var (
	// ErrTopicNotFound indicates no config file exists for the topic.
	ErrTopicNotFound = errors.New("configstore: topic not found")

	// ErrAgentNotFound indicates the agents file has no entry for the agent.
	ErrAgentNotFound = errors.New("configstore: agent not found")

	// ErrMalformedConfig indicates a config file exists but cannot be parsed.
	ErrMalformedConfig = errors.New("configstore: malformed config")
)

// Extensions accepted for topic config files, in lookup order.
var configExtensions = []string{".yaml", ".yml", ".json"}

const (
	ragsDirName    = "rags"
	agentsFileName = "agents.yaml"
)

// Store loads and caches topic and agent configurations from disk.
//
// All exported methods are safe for concurrent use. Reads return the cached
// configs; ReloadIfChanged rescans the directory and refreshes stale entries.
type Store struct {
	baseDir string
	logger  log.Logger

	mu     sync.RWMutex
	topics map[string]*TopicConfig
	agents map[string]*AgentConfig
	mtimes map[string]time.Time // config path -> mtime at load
}

// New creates a Store rooted at baseDir, creating the directory layout if
// it does not exist. No configs are loaded; call Preload or the individual
// loaders afterwards.
func New(baseDir string, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	if err := os.MkdirAll(filepath.Join(baseDir, ragsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	return &Store{
		baseDir: baseDir,
		logger:  logger.With("component", "configstore"),
		topics:  make(map[string]*TopicConfig),
		agents:  make(map[string]*AgentConfig),
		mtimes:  make(map[string]time.Time),
	}, nil
}

// BaseDir returns the directory the store reads configs from.
func (s *Store) BaseDir() string { return s.baseDir }

func (s *Store) ragsDir() string    { return filepath.Join(s.baseDir, ragsDirName) }
func (s *Store) agentsPath() string { return filepath.Join(s.baseDir, agentsFileName) }

// DiscoverTopics lists the names of every topic config file present on disk,
// sorted alphabetically. Presence only; files are not parsed or validated.
func (s *Store) DiscoverTopics() []string {
	entries, err := os.ReadDir(s.ragsDir())
	if err != nil {
		s.logger.Error("reading topic config directory", "dir", s.ragsDir(), "error", err)
		return nil
	}

	seen := make(map[string]struct{})
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if !slices.Contains(configExtensions, ext) {
			continue
		}
		seen[strings.TrimSuffix(e.Name(), ext)] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// topicPath returns the config file path for a topic, trying each accepted
// extension in order. Returns "" when no file exists.
func (s *Store) topicPath(name string) string {
	for _, ext := range configExtensions {
		path := filepath.Join(s.ragsDir(), name+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// LoadTopic reads a topic config from disk, applies defaults, caches it and
// returns it. Returns ErrTopicNotFound when no file exists for the name and
// a wrapped ErrMalformedConfig when the file cannot be parsed.
func (s *Store) LoadTopic(name string) (*TopicConfig, error) {
	path := s.topicPath(name)
	if path == "" {
		return nil, fmt.Errorf("%w: %q", ErrTopicNotFound, name)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrTopicNotFound, name)
	}

	cfg, err := parseTopicFile(path, name)
	if err != nil {
		s.logger.Error("parsing topic config", "topic", name, "path", path, "error", err)
		return nil, err
	}

	s.mu.Lock()
	s.topics[name] = cfg
	s.mtimes[path] = info.ModTime()
	s.mu.Unlock()

	s.logger.Info("topic config loaded", "topic", name, "enabled", cfg.Enabled)
	return cfg, nil
}

func parseTopicFile(path, name string) (*TopicConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedConfig, path, err)
	}

	cfg := defaultTopicConfig(name)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedConfig, path, err)
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = name
	}
	return cfg, nil
}

// defaultTopicConfig returns a TopicConfig pre-filled with the defaults a
// file entry merges into.
func defaultTopicConfig(name string) *TopicConfig {
	return &TopicConfig{
		Name:     name,
		Enabled:  true,
		Priority: 1,
		Vectorstore: VectorstoreConfig{
			Type:           "pgvector",
			CollectionName: name + "_collection",
			ChunkSize:      DefaultChunkSize,
			ChunkOverlap:   DefaultChunkOverlap,
		},
		Retrieval: RetrievalConfig{
			SearchType:     SearchMMR,
			K:              DefaultRetrievalK,
			FetchK:         DefaultFetchK,
			LambdaMult:     DefaultLambdaMult,
			ScoreThreshold: DefaultScoreThreshold,
			MaxK:           DefaultMaxK,
		},
	}
}

// ParseTopicSettings decodes a raw settings map exactly the way LoadTopic
// decodes a file, applying the same defaults. Used to validate a topic
// definition before persisting it.
func ParseTopicSettings(name string, settings map[string]any) (*TopicConfig, error) {
	cfg := defaultTopicConfig(name)
	if err := mapstructure.Decode(settings, cfg); err != nil {
		return nil, fmt.Errorf("%w: topic %q: %v", ErrMalformedConfig, name, err)
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = name
	}
	return cfg, nil
}

// Topic returns the cached config for a topic, loading it on first access.
func (s *Store) Topic(name string) (*TopicConfig, error) {
	s.mu.RLock()
	cfg, ok := s.topics[name]
	s.mu.RUnlock()
	if ok {
		return cfg, nil
	}
	return s.LoadTopic(name)
}

// Topics returns all currently cached topic configs keyed by name.
// The returned map is a copy; the configs themselves are shared and must be
// treated as read-only.
func (s *Store) Topics() map[string]*TopicConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*TopicConfig, len(s.topics))
	for name, cfg := range s.topics {
		out[name] = cfg
	}
	return out
}

// EnabledTopics returns the names of every discovered topic whose config
// loads successfully and is enabled, sorted by priority then name.
func (s *Store) EnabledTopics() []string {
	var cfgs []*TopicConfig
	for _, name := range s.DiscoverTopics() {
		cfg, err := s.Topic(name)
		if err != nil {
			continue // logged by LoadTopic
		}
		if cfg.Enabled {
			cfgs = append(cfgs, cfg)
		}
	}

	sort.Slice(cfgs, func(i, j int) bool {
		if cfgs[i].Priority != cfgs[j].Priority {
			return cfgs[i].Priority < cfgs[j].Priority
		}
		return cfgs[i].Name < cfgs[j].Name
	})

	names := make([]string, len(cfgs))
	for i, cfg := range cfgs {
		names[i] = cfg.Name
	}
	return names
}

// Preload loads every discoverable topic plus the agents file, skipping
// malformed entries. Intended for startup.
func (s *Store) Preload() {
	for _, name := range s.DiscoverTopics() {
		if _, err := s.LoadTopic(name); err != nil {
			s.logger.Warn("skipping topic config", "topic", name, "error", err)
		}
	}
	if _, err := s.LoadAgents(); err != nil {
		s.logger.Warn("agents config unavailable", "error", err)
	}
}

// agentFile mirrors one entry under "agents:" in agents.yaml.
type agentFile struct {
	Description     string         `mapstructure:"description"`
	Class           string         `mapstructure:"class"`
	ModulePath      string         `mapstructure:"module_path"`
	Topics          []string       `mapstructure:"topics"`
	Enabled         *bool          `mapstructure:"enabled"`
	Priority        *int           `mapstructure:"priority"`
	FallbackEnabled bool           `mapstructure:"fallback_enabled"`
	Config          agentTuning    `mapstructure:"config"`
	Thresholds      agentWeights   `mapstructure:"thresholds"`
	Custom          map[string]any `mapstructure:"custom"`
}

type agentTuning struct {
	MaxConfidence     *float64    `mapstructure:"max_confidence"`
	MinConfidence     *float64    `mapstructure:"min_confidence"`
	BaseConfidence    *float64    `mapstructure:"base_confidence"`
	PrimaryKeywords   []string    `mapstructure:"primary_keywords"`
	SecondaryKeywords []string    `mapstructure:"secondary_keywords"`
	Patterns          []string    `mapstructure:"patterns"`
	TargetSpecies     []string    `mapstructure:"target_species"`
	CommonNames       []string    `mapstructure:"common_names"`
	MatchIncrements   matchTuning `mapstructure:"match_increments"`
}

// matchTuning mirrors the optional match_increments block under an agent's
// config. Pointer fields tell an explicit value from an absent one.
type matchTuning struct {
	PrimaryStep    *float64 `mapstructure:"primary_step"`
	PrimaryCap     *float64 `mapstructure:"primary_cap"`
	SecondaryStep  *float64 `mapstructure:"secondary_step"`
	SecondaryCap   *float64 `mapstructure:"secondary_cap"`
	SpeciesStep    *float64 `mapstructure:"species_step"`
	SpeciesCap     *float64 `mapstructure:"species_cap"`
	CommonNameStep *float64 `mapstructure:"common_name_step"`
	CommonNameCap  *float64 `mapstructure:"common_name_cap"`
	PatternStep    *float64 `mapstructure:"pattern_step"`
	PatternCap     *float64 `mapstructure:"pattern_cap"`
}

func (m matchTuning) toConfig() MatchingConfig {
	cfg := DefaultMatching()
	for _, f := range []struct {
		src *float64
		dst *float64
	}{
		{m.PrimaryStep, &cfg.PrimaryStep},
		{m.PrimaryCap, &cfg.PrimaryCap},
		{m.SecondaryStep, &cfg.SecondaryStep},
		{m.SecondaryCap, &cfg.SecondaryCap},
		{m.SpeciesStep, &cfg.SpeciesStep},
		{m.SpeciesCap, &cfg.SpeciesCap},
		{m.CommonNameStep, &cfg.CommonNameStep},
		{m.CommonNameCap, &cfg.CommonNameCap},
		{m.PatternStep, &cfg.PatternStep},
		{m.PatternCap, &cfg.PatternCap},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	return cfg
}

type agentWeights struct {
	KeywordWeight *float64 `mapstructure:"keyword_weight"`
	SpeciesWeight *float64 `mapstructure:"species_weight"`
	PatternWeight *float64 `mapstructure:"pattern_weight"`
	ContextBonus  *float64 `mapstructure:"context_bonus"`
}

// LoadAgents reads the aggregate agents file, applies per-agent defaults,
// replaces the agent cache and returns the new map. A missing file is not an
// error; it yields an empty map.
func (s *Store) LoadAgents() (map[string]*AgentConfig, error) {
	path := s.agentsPath()

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		s.agents = make(map[string]*AgentConfig)
		delete(s.mtimes, path)
		s.mu.Unlock()
		return map[string]*AgentConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading agents config: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedConfig, path, err)
	}

	var raw map[string]agentFile
	if err := v.UnmarshalKey("agents", &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedConfig, path, err)
	}

	agents := make(map[string]*AgentConfig, len(raw))
	for name, f := range raw {
		agents[name] = f.toConfig(name)
	}

	s.mu.Lock()
	s.agents = agents
	s.mtimes[path] = info.ModTime()
	s.mu.Unlock()

	s.logger.Info("agent configs loaded", "count", len(agents))
	return agents, nil
}

func (f agentFile) toConfig(name string) *AgentConfig {
	cfg := &AgentConfig{
		Name:        name,
		Description: f.Description,
		ClassName:   f.Class,
		ModulePath:  f.ModulePath,
		Topics:      f.Topics,

		MinConfidence: DefaultMinConfidence,
		MaxConfidence: DefaultMaxConfidence,
		// BaseConfidence defaults to 0 so an empty question clamps down to
		// MinConfidence instead of floating at an arbitrary floor.
		BaseConfidence: 0,

		PrimaryKeywords:   f.Config.PrimaryKeywords,
		SecondaryKeywords: f.Config.SecondaryKeywords,
		Patterns:          f.Config.Patterns,
		TargetSpecies:     f.Config.TargetSpecies,
		CommonNames:       f.Config.CommonNames,

		KeywordWeight: DefaultKeywordWeight,
		SpeciesWeight: DefaultSpeciesWeight,
		PatternWeight: DefaultPatternWeight,
		ContextBonus:  DefaultContextBonus,

		Matching: f.Config.MatchIncrements.toConfig(),

		Enabled:         true,
		Priority:        1,
		FallbackEnabled: f.FallbackEnabled,
		CustomConfig:    f.Custom,
	}

	if f.Enabled != nil {
		cfg.Enabled = *f.Enabled
	}
	if f.Priority != nil {
		cfg.Priority = *f.Priority
	}
	if f.Config.MinConfidence != nil {
		cfg.MinConfidence = *f.Config.MinConfidence
	}
	if f.Config.MaxConfidence != nil {
		cfg.MaxConfidence = *f.Config.MaxConfidence
	}
	if f.Config.BaseConfidence != nil {
		cfg.BaseConfidence = *f.Config.BaseConfidence
	}
	if f.Thresholds.KeywordWeight != nil {
		cfg.KeywordWeight = *f.Thresholds.KeywordWeight
	}
	if f.Thresholds.SpeciesWeight != nil {
		cfg.SpeciesWeight = *f.Thresholds.SpeciesWeight
	}
	if f.Thresholds.PatternWeight != nil {
		cfg.PatternWeight = *f.Thresholds.PatternWeight
	}
	if f.Thresholds.ContextBonus != nil {
		cfg.ContextBonus = *f.Thresholds.ContextBonus
	}
	return cfg
}

// ParseAgentSettings decodes a raw settings map exactly the way LoadAgents
// decodes one file entry, applying the same defaults. Used to validate an
// agent definition before persisting it.
func ParseAgentSettings(name string, settings map[string]any) (*AgentConfig, error) {
	var f agentFile
	if err := mapstructure.Decode(settings, &f); err != nil {
		return nil, fmt.Errorf("%w: agent %q: %v", ErrMalformedConfig, name, err)
	}
	return f.toConfig(strings.ToLower(name)), nil
}

// Agent returns the cached config for an agent.
func (s *Store) Agent(name string) (*AgentConfig, error) {
	s.mu.RLock()
	cfg, ok := s.agents[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAgentNotFound, name)
	}
	return cfg, nil
}

// Agents returns a copy of the cached agent config map.
func (s *Store) Agents() map[string]*AgentConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*AgentConfig, len(s.agents))
	for name, cfg := range s.agents {
		out[name] = cfg
	}
	return out
}

// ReloadIfChanged rescans the config directory and reloads every file whose
// modification time is newer than the cached one, including files never seen
// before. It returns change identifiers: "topic:<name>" for each reloaded
// topic and "agents:all" when the agents file changed. A second call with no
// intervening file changes returns an empty slice.
func (s *Store) ReloadIfChanged() []string {
	var changed []string

	for _, name := range s.DiscoverTopics() {
		path := s.topicPath(name)
		if path == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		s.mu.RLock()
		cached := s.mtimes[path]
		s.mu.RUnlock()

		if !info.ModTime().After(cached) {
			continue
		}
		if _, err := s.LoadTopic(name); err != nil {
			// Record the mtime so a broken file is not re-parsed every scan.
			s.mu.Lock()
			s.mtimes[path] = info.ModTime()
			s.mu.Unlock()
			continue
		}
		changed = append(changed, "topic:"+name)
	}

	if path := s.agentsPath(); s.agentsFileChanged(path) {
		if _, err := s.LoadAgents(); err != nil {
			s.logger.Error("reloading agents config", "error", err)
			if info, statErr := os.Stat(path); statErr == nil {
				s.mu.Lock()
				s.mtimes[path] = info.ModTime()
				s.mu.Unlock()
			}
		} else {
			changed = append(changed, "agents:all")
		}
	}

	if len(changed) > 0 {
		s.logger.Info("configuration reloaded", "changed", changed)
	}
	return changed
}

func (s *Store) agentsFileChanged(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	s.mu.RLock()
	cached := s.mtimes[path]
	s.mu.RUnlock()
	return info.ModTime().After(cached)
}

// ValidateTopic checks the structural soundness of a topic config.
// Errors make the topic unusable; warnings flag suspicious values.
func (s *Store) ValidateTopic(name string) Validation {
	cfg, err := s.Topic(name)
	if err != nil {
		return Validation{Errors: []string{err.Error()}}
	}
	return ValidateTopicConfig(cfg)
}

// ValidateTopicConfig checks the structural soundness of a topic config.
// Errors make the topic unusable; warnings flag suspicious values.
func ValidateTopicConfig(cfg *TopicConfig) Validation {
	var v Validation

	if cfg.Description == "" {
		v.Errors = append(v.Errors, "description is required")
	}
	if cfg.Vectorstore.CollectionName == "" {
		v.Errors = append(v.Errors, "vectorstore.collection_name is required")
	}
	if cfg.Vectorstore.ChunkSize < 1 {
		v.Errors = append(v.Errors, fmt.Sprintf("vectorstore.chunk_size must be positive, got %d", cfg.Vectorstore.ChunkSize))
	}
	if cfg.Vectorstore.ChunkOverlap < 0 || cfg.Vectorstore.ChunkOverlap >= cfg.Vectorstore.ChunkSize {
		v.Errors = append(v.Errors, fmt.Sprintf("vectorstore.chunk_overlap must be in [0, chunk_size), got %d", cfg.Vectorstore.ChunkOverlap))
	}

	switch cfg.Retrieval.SearchType {
	case SearchSimilarity, SearchMMR, SearchScoreThreshold:
	default:
		v.Errors = append(v.Errors, fmt.Sprintf("retrieval.search_type %q is not one of %q, %q, %q",
			cfg.Retrieval.SearchType, SearchSimilarity, SearchMMR, SearchScoreThreshold))
	}
	if cfg.Retrieval.K < 1 {
		v.Errors = append(v.Errors, fmt.Sprintf("retrieval.k must be positive, got %d", cfg.Retrieval.K))
	}
	if cfg.Retrieval.K > cfg.Retrieval.MaxK {
		v.Errors = append(v.Errors, fmt.Sprintf("retrieval.k (%d) exceeds retrieval.max_k (%d)", cfg.Retrieval.K, cfg.Retrieval.MaxK))
	}
	if cfg.Retrieval.SearchType == SearchMMR && cfg.Retrieval.FetchK < cfg.Retrieval.K {
		v.Errors = append(v.Errors, fmt.Sprintf("retrieval.fetch_k (%d) must be >= retrieval.k (%d) for MMR", cfg.Retrieval.FetchK, cfg.Retrieval.K))
	}
	if cfg.Retrieval.LambdaMult < 0 || cfg.Retrieval.LambdaMult > 1 {
		v.Errors = append(v.Errors, fmt.Sprintf("retrieval.lambda_mult must be in [0,1], got %v", cfg.Retrieval.LambdaMult))
	}
	if cfg.Retrieval.ScoreThreshold < 0 || cfg.Retrieval.ScoreThreshold > 1 {
		v.Errors = append(v.Errors, fmt.Sprintf("retrieval.score_threshold must be in [0,1], got %v", cfg.Retrieval.ScoreThreshold))
	}

	if cfg.SystemPrompt == "" {
		v.Warnings = append(v.Warnings, "system_prompt is empty; generation will use the provider default")
	}
	if len(cfg.Keywords) == 0 {
		v.Warnings = append(v.Warnings, "no keyword groups defined; agents routing on this topic have nothing to match")
	}
	if len(cfg.SourcePaths) == 0 {
		v.Warnings = append(v.Warnings, "no source_paths defined; the collection will only serve pre-ingested documents")
	}

	// Referenced paths are warnings, not errors: the topic still works
	// against already-ingested documents.
	if p := cfg.Vectorstore.Path; p != "" {
		if _, err := os.Stat(p); err != nil {
			v.Warnings = append(v.Warnings, fmt.Sprintf("vectorstore.path %q does not exist", p))
		}
	}
	for _, p := range cfg.SourcePaths {
		if _, err := os.Stat(p); err != nil {
			v.Warnings = append(v.Warnings, fmt.Sprintf("source path %q does not exist", p))
		}
	}

	v.Valid = len(v.Errors) == 0
	return v
}

// ValidateAgent checks the structural soundness of an agent config.
func ValidateAgent(cfg *AgentConfig) Validation {
	var v Validation

	if cfg.ClassName == "" {
		v.Errors = append(v.Errors, "class is required")
	}
	if len(cfg.Topics) == 0 {
		v.Errors = append(v.Errors, "at least one topic is required")
	}

	if cfg.MinConfidence < 0 || cfg.MinConfidence > 1 {
		v.Errors = append(v.Errors, fmt.Sprintf("min_confidence must be in [0,1], got %v", cfg.MinConfidence))
	}
	if cfg.MaxConfidence < 0 || cfg.MaxConfidence > 1 {
		v.Errors = append(v.Errors, fmt.Sprintf("max_confidence must be in [0,1], got %v", cfg.MaxConfidence))
	}
	if cfg.MinConfidence > cfg.MaxConfidence {
		v.Errors = append(v.Errors, fmt.Sprintf("min_confidence (%v) exceeds max_confidence (%v)", cfg.MinConfidence, cfg.MaxConfidence))
	}

	for _, pattern := range cfg.Patterns {
		if _, err := regexp.Compile("(?i)" + pattern); err != nil {
			v.Errors = append(v.Errors, fmt.Sprintf("pattern %q does not compile: %v", pattern, err))
		}
	}

	for _, w := range []struct {
		name  string
		value float64
	}{
		{"keyword_weight", cfg.KeywordWeight},
		{"species_weight", cfg.SpeciesWeight},
		{"pattern_weight", cfg.PatternWeight},
		{"context_bonus", cfg.ContextBonus},
		{"match_increments.primary_step", cfg.Matching.PrimaryStep},
		{"match_increments.primary_cap", cfg.Matching.PrimaryCap},
		{"match_increments.secondary_step", cfg.Matching.SecondaryStep},
		{"match_increments.secondary_cap", cfg.Matching.SecondaryCap},
		{"match_increments.species_step", cfg.Matching.SpeciesStep},
		{"match_increments.species_cap", cfg.Matching.SpeciesCap},
		{"match_increments.common_name_step", cfg.Matching.CommonNameStep},
		{"match_increments.common_name_cap", cfg.Matching.CommonNameCap},
		{"match_increments.pattern_step", cfg.Matching.PatternStep},
		{"match_increments.pattern_cap", cfg.Matching.PatternCap},
	} {
		if w.value < 0 {
			v.Errors = append(v.Errors, fmt.Sprintf("%s must be non-negative, got %v", w.name, w.value))
		}
	}

	if len(cfg.PrimaryKeywords) == 0 && len(cfg.Patterns) == 0 && len(cfg.TargetSpecies) == 0 && !cfg.FallbackEnabled {
		v.Warnings = append(v.Warnings, "no primary keywords, patterns or species; agent can only win by base confidence")
	}

	v.Valid = len(v.Errors) == 0
	return v
}
