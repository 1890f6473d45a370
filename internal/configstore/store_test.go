package configstore

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/plantia/plantia/internal/log"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(t.TempDir(), log.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func writeTopicFile(t *testing.T, s *Store, name, content string) string {
	t.Helper()

	path := filepath.Join(s.BaseDir(), "rags", name+".yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing topic file: %v", err)
	}
	return path
}

// touch bumps a file's mtime strictly past every cached timestamp,
// independent of filesystem timestamp granularity.
func touch(t *testing.T, path string) {
	t.Helper()

	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("bumping mtime: %v", err)
	}
}

func TestNew_CreatesLayout(t *testing.T) {
	s := newTestStore(t)

	info, err := os.Stat(filepath.Join(s.BaseDir(), "rags"))
	if err != nil {
		t.Fatalf("rags directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("rags is not a directory")
	}
}

func TestDiscoverTopics(t *testing.T) {
	s := newTestStore(t)

	writeTopicFile(t, s, "plants", "description: plants\n")
	writeTopicFile(t, s, "pathology", "description: pathology\n")
	if err := os.WriteFile(filepath.Join(s.BaseDir(), "rags", "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := s.DiscoverTopics()
	want := []string{"pathology", "plants"}
	if !slices.Equal(got, want) {
		t.Errorf("DiscoverTopics() = %v, want %v", got, want)
	}
}

func TestLoadTopic_Defaults(t *testing.T) {
	s := newTestStore(t)
	writeTopicFile(t, s, "plants", "description: plant knowledge\n")

	cfg, err := s.LoadTopic("plants")
	if err != nil {
		t.Fatalf("LoadTopic() error = %v", err)
	}

	if cfg.Name != "plants" {
		t.Errorf("Name = %q, want plants", cfg.Name)
	}
	if cfg.DisplayName != "plants" {
		t.Errorf("DisplayName = %q, want topic name fallback", cfg.DisplayName)
	}
	if !cfg.Enabled {
		t.Error("Enabled should default to true")
	}
	if cfg.Vectorstore.ChunkSize != DefaultChunkSize {
		t.Errorf("ChunkSize = %d, want %d", cfg.Vectorstore.ChunkSize, DefaultChunkSize)
	}
	if cfg.Vectorstore.CollectionName != "plants_collection" {
		t.Errorf("CollectionName = %q, want plants_collection", cfg.Vectorstore.CollectionName)
	}
	if cfg.Retrieval.SearchType != SearchMMR {
		t.Errorf("SearchType = %q, want %q", cfg.Retrieval.SearchType, SearchMMR)
	}
	if cfg.Retrieval.K != DefaultRetrievalK || cfg.Retrieval.FetchK != DefaultFetchK {
		t.Errorf("K/FetchK = %d/%d, want %d/%d", cfg.Retrieval.K, cfg.Retrieval.FetchK, DefaultRetrievalK, DefaultFetchK)
	}
	if cfg.Retrieval.LambdaMult != DefaultLambdaMult {
		t.Errorf("LambdaMult = %v, want %v", cfg.Retrieval.LambdaMult, DefaultLambdaMult)
	}
}

func TestLoadTopic_Overrides(t *testing.T) {
	s := newTestStore(t)
	writeTopicFile(t, s, "pathology", `
display_name: Plant Pathology
description: diseases
enabled: false
priority: 3
retrieval:
  search_type: similarity_score_threshold
  k: 8
  score_threshold: 0.65
keywords:
  primary: [enfermedad, plaga]
`)

	cfg, err := s.LoadTopic("pathology")
	if err != nil {
		t.Fatalf("LoadTopic() error = %v", err)
	}

	if cfg.DisplayName != "Plant Pathology" {
		t.Errorf("DisplayName = %q", cfg.DisplayName)
	}
	if cfg.Enabled {
		t.Error("Enabled should be false")
	}
	if cfg.Priority != 3 {
		t.Errorf("Priority = %d, want 3", cfg.Priority)
	}
	if cfg.Retrieval.SearchType != SearchScoreThreshold {
		t.Errorf("SearchType = %q", cfg.Retrieval.SearchType)
	}
	if cfg.Retrieval.K != 8 {
		t.Errorf("K = %d, want 8", cfg.Retrieval.K)
	}
	if cfg.Retrieval.ScoreThreshold != 0.65 {
		t.Errorf("ScoreThreshold = %v, want 0.65", cfg.Retrieval.ScoreThreshold)
	}
	if !slices.Equal(cfg.Keywords["primary"], []string{"enfermedad", "plaga"}) {
		t.Errorf("Keywords[primary] = %v", cfg.Keywords["primary"])
	}
}

func TestLoadTopic_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LoadTopic("missing")
	if !errors.Is(err, ErrTopicNotFound) {
		t.Errorf("error = %v, want ErrTopicNotFound", err)
	}
}

func TestLoadTopic_Malformed(t *testing.T) {
	s := newTestStore(t)
	writeTopicFile(t, s, "broken", "description: [unclosed\n")

	_, err := s.LoadTopic("broken")
	if !errors.Is(err, ErrMalformedConfig) {
		t.Errorf("error = %v, want ErrMalformedConfig", err)
	}

	// Still discoverable: discovery reports presence, not validity.
	if !slices.Contains(s.DiscoverTopics(), "broken") {
		t.Error("malformed topic should still be discoverable")
	}
}

func TestLoadAgents_MissingFileIsEmpty(t *testing.T) {
	s := newTestStore(t)

	agents, err := s.LoadAgents()
	if err != nil {
		t.Fatalf("LoadAgents() error = %v", err)
	}
	if len(agents) != 0 {
		t.Errorf("expected empty agent map, got %d entries", len(agents))
	}
}

func TestLoadAgents_DefaultsAndOverrides(t *testing.T) {
	s := newTestStore(t)

	content := `
agents:
  plants:
    description: plant questions
    class: PlantsAgent
    topics: [plants]
    config:
      primary_keywords: [planta, riego]
      min_confidence: 0.2
    thresholds:
      keyword_weight: 0.4
  general:
    description: fallback
    class: GenericRAGAgent
    topics: [plants]
    enabled: false
    priority: 99
    fallback_enabled: true
    config:
      base_confidence: 0.2
      max_confidence: 0.5
`
	if err := os.WriteFile(filepath.Join(s.BaseDir(), "agents.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	agents, err := s.LoadAgents()
	if err != nil {
		t.Fatalf("LoadAgents() error = %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(agents))
	}

	plants := agents["plants"]
	if plants.ClassName != "PlantsAgent" {
		t.Errorf("ClassName = %q", plants.ClassName)
	}
	if !plants.Enabled {
		t.Error("Enabled should default to true")
	}
	if plants.Priority != 1 {
		t.Errorf("Priority = %d, want default 1", plants.Priority)
	}
	if plants.MinConfidence != 0.2 {
		t.Errorf("MinConfidence = %v, want override 0.2", plants.MinConfidence)
	}
	if plants.MaxConfidence != DefaultMaxConfidence {
		t.Errorf("MaxConfidence = %v, want default", plants.MaxConfidence)
	}
	if plants.BaseConfidence != 0 {
		t.Errorf("BaseConfidence = %v, want default 0", plants.BaseConfidence)
	}
	if plants.KeywordWeight != 0.4 {
		t.Errorf("KeywordWeight = %v, want override 0.4", plants.KeywordWeight)
	}
	if plants.SpeciesWeight != DefaultSpeciesWeight {
		t.Errorf("SpeciesWeight = %v, want default", plants.SpeciesWeight)
	}

	general := agents["general"]
	if general.Enabled {
		t.Error("general.Enabled should be false")
	}
	if !general.FallbackEnabled {
		t.Error("general.FallbackEnabled should be true")
	}
	if general.BaseConfidence != 0.2 {
		t.Errorf("general.BaseConfidence = %v, want 0.2", general.BaseConfidence)
	}
	if general.MaxConfidence != 0.5 {
		t.Errorf("general.MaxConfidence = %v, want 0.5", general.MaxConfidence)
	}
}

func TestReloadIfChanged(t *testing.T) {
	s := newTestStore(t)
	path := writeTopicFile(t, s, "plants", "description: v1\n")
	s.Preload()

	// Nothing changed yet.
	if changed := s.ReloadIfChanged(); len(changed) != 0 {
		t.Errorf("unchanged scan returned %v", changed)
	}

	if err := os.WriteFile(path, []byte("description: v2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	touch(t, path)

	changed := s.ReloadIfChanged()
	if !slices.Equal(changed, []string{"topic:plants"}) {
		t.Errorf("ReloadIfChanged() = %v, want [topic:plants]", changed)
	}

	cfg, err := s.Topic("plants")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Description != "v2" {
		t.Errorf("Description = %q, want v2", cfg.Description)
	}

	// Idempotent: immediate rescan with no file changes is empty.
	if changed := s.ReloadIfChanged(); len(changed) != 0 {
		t.Errorf("second scan returned %v, want empty", changed)
	}
}

func TestReloadIfChanged_NewTopicFile(t *testing.T) {
	s := newTestStore(t)
	s.Preload()

	path := writeTopicFile(t, s, "pathology", "description: diseases\n")
	touch(t, path)

	changed := s.ReloadIfChanged()
	if !slices.Equal(changed, []string{"topic:pathology"}) {
		t.Errorf("ReloadIfChanged() = %v, want [topic:pathology]", changed)
	}
}

func TestReloadIfChanged_AgentsInvalidatesAll(t *testing.T) {
	s := newTestStore(t)
	agentsPath := filepath.Join(s.BaseDir(), "agents.yaml")

	content := "agents:\n  plants:\n    class: PlantsAgent\n    topics: [plants]\n"
	if err := os.WriteFile(agentsPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	s.Preload()

	content += "  pathology:\n    class: PathologyAgent\n    topics: [pathology]\n"
	if err := os.WriteFile(agentsPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	touch(t, agentsPath)

	changed := s.ReloadIfChanged()
	if !slices.Equal(changed, []string{"agents:all"}) {
		t.Errorf("ReloadIfChanged() = %v, want [agents:all]", changed)
	}
	if len(s.Agents()) != 2 {
		t.Errorf("expected 2 agents after reload, got %d", len(s.Agents()))
	}
}

func TestCreateDefaults(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateDefaults(); err != nil {
		t.Fatalf("CreateDefaults() error = %v", err)
	}

	topics := s.DiscoverTopics()
	for _, want := range []string{"plants", "pathology", "eco_agriculture"} {
		if !slices.Contains(topics, want) {
			t.Errorf("default topic %q missing from %v", want, topics)
		}
	}

	for _, name := range topics {
		if v := s.ValidateTopic(name); !v.Valid {
			t.Errorf("default topic %q invalid: %v", name, v.Errors)
		}
	}

	agents, err := s.LoadAgents()
	if err != nil {
		t.Fatalf("LoadAgents() error = %v", err)
	}
	for _, want := range []string{"plants", "pathology", "eco_agriculture", "general"} {
		if _, ok := agents[want]; !ok {
			t.Errorf("default agent %q missing", want)
		}
	}
	if !agents["general"].FallbackEnabled {
		t.Error("default general agent should be fallback-enabled")
	}

	// Second run must not overwrite.
	path := writeTopicFile(t, s, "plants", "description: customized\n")
	if err := s.CreateDefaults(); err != nil {
		t.Fatalf("CreateDefaults() second run error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "description: customized\n" {
		t.Error("CreateDefaults overwrote an existing topic file")
	}
}

func TestSaveAgent_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	settings := map[string]any{
		"description":      "urban gardening questions",
		"class":            "GenericRAGAgent",
		"topics":           []string{"plants"},
		"enabled":          true,
		"priority":         2,
		"fallback_enabled": false,
		"config": map[string]any{
			"min_confidence":   0.15,
			"max_confidence":   0.9,
			"primary_keywords": []string{"balcon", "maceta", "urban"},
		},
		"thresholds": map[string]any{
			"keyword_weight": 0.35,
		},
	}

	if err := s.SaveAgent("Urban", settings); err != nil {
		t.Fatalf("SaveAgent() error = %v", err)
	}

	// Saved under a lowercased name and immediately visible.
	cfg, err := s.Agent("urban")
	if err != nil {
		t.Fatalf("Agent() error = %v", err)
	}
	if cfg.Description != "urban gardening questions" {
		t.Errorf("Description = %q", cfg.Description)
	}
	if cfg.MinConfidence != 0.15 || cfg.MaxConfidence != 0.9 {
		t.Errorf("confidence bounds = [%v, %v], want [0.15, 0.9]", cfg.MinConfidence, cfg.MaxConfidence)
	}
	if cfg.KeywordWeight != 0.35 {
		t.Errorf("KeywordWeight = %v, want 0.35", cfg.KeywordWeight)
	}
	if !slices.Equal(cfg.PrimaryKeywords, []string{"balcon", "maceta", "urban"}) {
		t.Errorf("PrimaryKeywords = %v", cfg.PrimaryKeywords)
	}

	// A fresh store reads the same values back from disk.
	s2, err := New(s.BaseDir(), log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s2.LoadAgents(); err != nil {
		t.Fatalf("LoadAgents() on fresh store: %v", err)
	}
	cfg2, err := s2.Agent("urban")
	if err != nil {
		t.Fatalf("Agent() on fresh store: %v", err)
	}
	if cfg2.MinConfidence != cfg.MinConfidence || cfg2.KeywordWeight != cfg.KeywordWeight {
		t.Error("persisted agent differs from saved agent")
	}
}

func TestSaveAgent_PreservesOtherAgents(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateDefaults(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadAgents(); err != nil {
		t.Fatal(err)
	}
	before := len(s.Agents())

	if err := s.SaveAgent("extra", map[string]any{
		"class":  "GenericRAGAgent",
		"topics": []string{"plants"},
	}); err != nil {
		t.Fatalf("SaveAgent() error = %v", err)
	}

	if got := len(s.Agents()); got != before+1 {
		t.Errorf("agent count = %d, want %d", got, before+1)
	}
	if _, err := s.Agent("plants"); err != nil {
		t.Errorf("pre-existing agent lost after save: %v", err)
	}
}

func TestSaveTopic_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	settings := map[string]any{
		"description":   "soil and substrate knowledge",
		"system_prompt": "You are a soil scientist.",
		"priority":      3,
		"retrieval": map[string]any{
			"search_type": SearchSimilarity,
			"k":           2,
		},
	}

	if err := s.SaveTopic("soil", settings); err != nil {
		t.Fatalf("SaveTopic() error = %v", err)
	}

	// Immediately visible with defaults applied.
	cfg, err := s.Topic("soil")
	if err != nil {
		t.Fatalf("Topic() after save error = %v", err)
	}
	if cfg.Vectorstore.CollectionName != "soil_collection" {
		t.Errorf("collection = %q, want default soil_collection", cfg.Vectorstore.CollectionName)
	}
	if cfg.Retrieval.SearchType != SearchSimilarity || cfg.Retrieval.K != 2 {
		t.Errorf("retrieval = %+v", cfg.Retrieval)
	}
	if !slices.Contains(s.DiscoverTopics(), "soil") {
		t.Errorf("soil missing from DiscoverTopics() = %v", s.DiscoverTopics())
	}
}

func TestSaveTopic_RejectsUnsafeNames(t *testing.T) {
	s := newTestStore(t)

	for _, name := range []string{"", "../escape", "a/b", "Upper", "dot.name"} {
		if err := s.SaveTopic(name, map[string]any{"description": "x"}); err == nil {
			t.Errorf("SaveTopic(%q) = nil, want error", name)
		}
	}
}

func TestParseTopicSettings(t *testing.T) {
	cfg, err := ParseTopicSettings("vines", map[string]any{
		"description": "grapevine cultivation",
		"retrieval":   map[string]any{"k": 7},
	})
	if err != nil {
		t.Fatalf("ParseTopicSettings() error = %v", err)
	}
	if cfg.DisplayName != "vines" {
		t.Errorf("DisplayName = %q, want name fallback", cfg.DisplayName)
	}
	if cfg.Retrieval.K != 7 {
		t.Errorf("K = %d, want 7", cfg.Retrieval.K)
	}
	if cfg.Retrieval.SearchType != SearchMMR {
		t.Errorf("SearchType = %q, want default mmr", cfg.Retrieval.SearchType)
	}

	if _, err := ParseTopicSettings("bad", map[string]any{"priority": "not-a-number"}); err == nil {
		t.Error("ParseTopicSettings() with wrong type = nil, want error")
	}
}

func TestValidateTopic(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantValid bool
		wantWarn  bool
	}{
		{
			name: "valid with warnings",
			content: `
description: plants
`,
			wantValid: true,
			wantWarn:  true,
		},
		{
			name: "bad search type",
			content: `
description: plants
retrieval:
  search_type: cosine
`,
			wantValid: false,
		},
		{
			name: "k exceeds max_k",
			content: `
description: plants
retrieval:
  k: 50
`,
			wantValid: false,
		},
		{
			name: "fetch_k below k for mmr",
			content: `
description: plants
retrieval:
  k: 10
  fetch_k: 5
  max_k: 20
`,
			wantValid: false,
		},
		{
			name: "overlap not below chunk size",
			content: `
description: plants
vectorstore:
  chunk_size: 100
  chunk_overlap: 100
`,
			wantValid: false,
		},
		{
			name:      "missing description",
			content:   "priority: 1\n",
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			writeTopicFile(t, s, "topic", tt.content)

			v := s.ValidateTopic("topic")
			if v.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v (errors: %v)", v.Valid, tt.wantValid, v.Errors)
			}
			if tt.wantWarn && len(v.Warnings) == 0 {
				t.Error("expected warnings, got none")
			}
		})
	}
}

func TestLoadAgents_MatchIncrements(t *testing.T) {
	s := newTestStore(t)

	content := `
agents:
  plants:
    description: plant questions
    class: PlantsAgent
    topics: [plants]
    config:
      match_increments:
        primary_step: 0.5
        species_cap: 0.4
  general:
    description: fallback
    class: GenericRAGAgent
    topics: [plants]
`
	if err := os.WriteFile(filepath.Join(s.BaseDir(), "agents.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	agents, err := s.LoadAgents()
	if err != nil {
		t.Fatalf("LoadAgents() error = %v", err)
	}

	plants := agents["plants"].Matching
	if plants.PrimaryStep != 0.5 {
		t.Errorf("PrimaryStep = %v, want override 0.5", plants.PrimaryStep)
	}
	if plants.SpeciesCap != 0.4 {
		t.Errorf("SpeciesCap = %v, want override 0.4", plants.SpeciesCap)
	}
	if plants.SecondaryStep != DefaultSecondaryStep {
		t.Errorf("SecondaryStep = %v, want default", plants.SecondaryStep)
	}
	if plants.PatternCap != DefaultPatternCap {
		t.Errorf("PatternCap = %v, want default", plants.PatternCap)
	}

	// No match_increments block means the stock tuning.
	if got := agents["general"].Matching; got != DefaultMatching() {
		t.Errorf("general.Matching = %+v, want defaults", got)
	}
}

func TestValidateTopic_MissingPathWarnings(t *testing.T) {
	existing := t.TempDir()
	cfg := defaultTopicConfig("plants")
	cfg.Description = "plants"
	cfg.SystemPrompt = "You are a botanist."
	cfg.Keywords = map[string][]string{"primary": {"planta"}}
	cfg.Vectorstore.Path = filepath.Join(existing, "no-such-store")
	cfg.SourcePaths = []string{existing, filepath.Join(existing, "no-such-docs")}

	v := ValidateTopicConfig(cfg)
	if !v.Valid {
		t.Fatalf("Valid = false, errors = %v", v.Errors)
	}
	if len(v.Warnings) != 2 {
		t.Fatalf("Warnings = %v, want 2 (vectorstore path and one source path)", v.Warnings)
	}
	if want := "no-such-store"; !strings.Contains(v.Warnings[0], want) {
		t.Errorf("Warnings[0] = %q, want mention of %q", v.Warnings[0], want)
	}
	if want := "no-such-docs"; !strings.Contains(v.Warnings[1], want) {
		t.Errorf("Warnings[1] = %q, want mention of %q", v.Warnings[1], want)
	}
	for _, w := range v.Warnings {
		if strings.Contains(w, existing+`"`) {
			t.Errorf("warning flags an existing path: %q", w)
		}
	}
}

func TestValidateAgent(t *testing.T) {
	valid := func() *AgentConfig {
		return &AgentConfig{
			Name:            "plants",
			ClassName:       "PlantsAgent",
			Topics:          []string{"plants"},
			MinConfidence:   0.1,
			MaxConfidence:   1.0,
			PrimaryKeywords: []string{"planta"},
			KeywordWeight:   0.3,
			SpeciesWeight:   0.5,
			PatternWeight:   0.2,
			ContextBonus:    0.2,
		}
	}

	tests := []struct {
		name      string
		mutate    func(*AgentConfig)
		wantValid bool
	}{
		{"valid", func(c *AgentConfig) {}, true},
		{"missing class", func(c *AgentConfig) { c.ClassName = "" }, false},
		{"no topics", func(c *AgentConfig) { c.Topics = nil }, false},
		{"min above max", func(c *AgentConfig) { c.MinConfidence = 0.9; c.MaxConfidence = 0.5 }, false},
		{"min out of range", func(c *AgentConfig) { c.MinConfidence = -0.1 }, false},
		{"max out of range", func(c *AgentConfig) { c.MaxConfidence = 1.5 }, false},
		{"bad pattern", func(c *AgentConfig) { c.Patterns = []string{"(unclosed"} }, false},
		{"negative weight", func(c *AgentConfig) { c.KeywordWeight = -0.3 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			v := ValidateAgent(cfg)
			if v.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v (errors: %v)", v.Valid, tt.wantValid, v.Errors)
			}
		})
	}

	t.Run("warning without scoring inputs", func(t *testing.T) {
		cfg := valid()
		cfg.PrimaryKeywords = nil

		v := ValidateAgent(cfg)
		if !v.Valid {
			t.Fatalf("unexpected errors: %v", v.Errors)
		}
		if len(v.Warnings) == 0 {
			t.Error("expected a warning for an agent with no scoring inputs")
		}
	})
}
