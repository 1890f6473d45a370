package configstore

// Search strategy identifiers used in RetrievalConfig.SearchType.
const (
	SearchSimilarity     = "similarity"
	SearchMMR            = "mmr"
	SearchScoreThreshold = "similarity_score_threshold"
)

// Default values applied to absent optional fields when loading configs.
const (
	DefaultChunkSize      = 1000
	DefaultChunkOverlap   = 200
	DefaultRetrievalK     = 5
	DefaultFetchK         = 20
	DefaultLambdaMult     = 0.7
	DefaultScoreThreshold = 0.5
	DefaultMaxK           = 20

	DefaultKeywordWeight = 0.3
	DefaultSpeciesWeight = 0.5
	DefaultPatternWeight = 0.2
	DefaultContextBonus  = 0.2

	DefaultMinConfidence = 0.1
	DefaultMaxConfidence = 1.0
)

// Default per-match increments and saturation caps of the additive scoring
// model. These are tuned values; do not rebalance them.
const (
	DefaultPrimaryStep    = 0.2
	DefaultPrimaryCap     = 1.0
	DefaultSecondaryStep  = 0.1
	DefaultSecondaryCap   = 0.5
	DefaultSpeciesStep    = 0.3
	DefaultSpeciesCap     = 1.0
	DefaultCommonNameStep = 0.2
	DefaultCommonNameCap  = 0.6
	DefaultPatternStep    = 0.3
	DefaultPatternCap     = 1.0
)

// MatchingConfig holds the per-match increments and saturation caps of the
// scoring terms. The caps make each term saturate so stuffing a question
// with one kind of signal cannot dominate the score. Agents override these
// under a match_increments block; absent fields keep the defaults.
type MatchingConfig struct {
	PrimaryStep    float64 `json:"primary_step"`
	PrimaryCap     float64 `json:"primary_cap"`
	SecondaryStep  float64 `json:"secondary_step"`
	SecondaryCap   float64 `json:"secondary_cap"`
	SpeciesStep    float64 `json:"species_step"`
	SpeciesCap     float64 `json:"species_cap"`
	CommonNameStep float64 `json:"common_name_step"`
	CommonNameCap  float64 `json:"common_name_cap"`
	PatternStep    float64 `json:"pattern_step"`
	PatternCap     float64 `json:"pattern_cap"`
}

// DefaultMatching returns the increments and caps applied when an agent's
// match_increments block is absent.
func DefaultMatching() MatchingConfig {
	return MatchingConfig{
		PrimaryStep:    DefaultPrimaryStep,
		PrimaryCap:     DefaultPrimaryCap,
		SecondaryStep:  DefaultSecondaryStep,
		SecondaryCap:   DefaultSecondaryCap,
		SpeciesStep:    DefaultSpeciesStep,
		SpeciesCap:     DefaultSpeciesCap,
		CommonNameStep: DefaultCommonNameStep,
		CommonNameCap:  DefaultCommonNameCap,
		PatternStep:    DefaultPatternStep,
		PatternCap:     DefaultPatternCap,
	}
}

// VectorstoreConfig describes where and how a topic's documents are stored.
type VectorstoreConfig struct {
	Type           string `mapstructure:"type" json:"type"`
	Path           string `mapstructure:"path" json:"path"`
	CollectionName string `mapstructure:"collection_name" json:"collection_name"`
	ChunkSize      int    `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap   int    `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	EmbeddingModel string `mapstructure:"embedding_model" json:"embedding_model"`
}

// RetrievalConfig describes how documents are retrieved for a topic.
type RetrievalConfig struct {
	SearchType     string  `mapstructure:"search_type" json:"search_type"`
	K              int     `mapstructure:"k" json:"k"`
	FetchK         int     `mapstructure:"fetch_k" json:"fetch_k"`           // MMR candidate pool
	LambdaMult     float64 `mapstructure:"lambda_mult" json:"lambda_mult"`   // MMR relevance/diversity balance
	ScoreThreshold float64 `mapstructure:"score_threshold" json:"score_threshold"`
	MaxK           int     `mapstructure:"max_k" json:"max_k"`
}

// TopicConfig describes one retrieval domain.
//
// Topics are defined one file per topic under <base>/rags, named
// <topic>.yaml (.yml and .json are also accepted). The file's base name is
// the topic name.
type TopicConfig struct {
	Name        string `mapstructure:"-" json:"name"`
	DisplayName string `mapstructure:"display_name" json:"display_name"`
	Description string `mapstructure:"description" json:"description"`
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	Priority    int    `mapstructure:"priority" json:"priority"` // lower = higher priority

	Vectorstore VectorstoreConfig `mapstructure:"vectorstore" json:"vectorstore"`
	Retrieval   RetrievalConfig   `mapstructure:"retrieval" json:"retrieval"`

	SystemPrompt string              `mapstructure:"system_prompt" json:"system_prompt"`
	Categories   []string            `mapstructure:"categories" json:"categories"`
	Keywords     map[string][]string `mapstructure:"keywords" json:"keywords"` // named keyword groups
	SourcePaths  []string            `mapstructure:"source_paths" json:"source_paths"`

	CustomSettings map[string]any `mapstructure:"custom_settings" json:"custom_settings"`
}

// AgentConfig describes one question-routing agent.
//
// All agents live in a single aggregate file <base>/agents.yaml; any change
// to that file invalidates every agent at once (coarse-grained reload).
type AgentConfig struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ClassName   string `json:"class_name"`
	ModulePath  string `json:"module_path,omitempty"` // external plugin location for non-built-in classes

	Topics []string `json:"topics"`

	// Confidence bounds. Invariant: 0 <= Min <= Max <= 1.
	MinConfidence  float64 `json:"min_confidence"`
	MaxConfidence  float64 `json:"max_confidence"`
	BaseConfidence float64 `json:"base_confidence"`

	// Scoring inputs
	PrimaryKeywords   []string `json:"primary_keywords"`
	SecondaryKeywords []string `json:"secondary_keywords"`
	Patterns          []string `json:"patterns"` // regular expressions, matched case-insensitively
	TargetSpecies     []string `json:"target_species"`
	CommonNames       []string `json:"common_names"`

	// Scoring weights
	KeywordWeight float64 `json:"keyword_weight"`
	SpeciesWeight float64 `json:"species_weight"`
	PatternWeight float64 `json:"pattern_weight"`
	ContextBonus  float64 `json:"context_bonus"`

	// Per-match increments and caps of the scoring terms.
	Matching MatchingConfig `json:"match_increments"`

	Enabled         bool `json:"enabled"`
	Priority        int  `json:"priority"` // lower = higher priority; tie-break only
	FallbackEnabled bool `json:"fallback_enabled"`

	CustomConfig map[string]any `json:"custom_config,omitempty"`
}

// Validation is the result of validating a single config.
// Errors make the config unusable; warnings do not.
type Validation struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}
