package configstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gofrs/flock"
	"github.com/spf13/viper"
)

// CreateDefaults writes starter config files for a fresh installation:
// three sample topics (plants, pathology, eco_agriculture) and a matching
// agents.yaml. Existing files are never overwritten. Writes are guarded by
// a file lock so concurrent processes bootstrapping the same directory do
// not corrupt each other.
func (s *Store) CreateDefaults() error {
	lock := flock.New(filepath.Join(s.baseDir, ".plantia.lock"))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking config directory: %w", err)
	}
	defer lock.Unlock() //nolint:errcheck

	for name, settings := range defaultTopics() {
		path := filepath.Join(s.ragsDir(), name+".yaml")
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := writeConfigFile(path, settings); err != nil {
			return fmt.Errorf("writing default topic %q: %w", name, err)
		}
		s.logger.Info("default topic config created", "topic", name, "path", path)
	}

	agentsPath := s.agentsPath()
	if _, err := os.Stat(agentsPath); errors.Is(err, os.ErrNotExist) {
		if err := writeConfigFile(agentsPath, defaultAgents()); err != nil {
			return fmt.Errorf("writing default agents config: %w", err)
		}
		s.logger.Info("default agents config created", "path", agentsPath)
	}

	return nil
}

// SaveAgent inserts or replaces one entry under "agents:" in agents.yaml
// and reloads the agent cache. The write is lock-guarded and atomic
// (temp file + rename) so a concurrent reload never observes a torn file.
func (s *Store) SaveAgent(name string, settings map[string]any) error {
	if name == "" {
		return errors.New("configstore: agent name cannot be empty")
	}

	lock := flock.New(filepath.Join(s.baseDir, ".plantia.lock"))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking config directory: %w", err)
	}
	defer lock.Unlock() //nolint:errcheck

	path := s.agentsPath()

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformedConfig, path, err)
		}
		// No agents file yet; start from scratch.
	}

	agents := v.GetStringMap("agents")
	if agents == nil {
		agents = make(map[string]any)
	}
	agents[strings.ToLower(name)] = settings

	doc := map[string]any{"agents": agents}
	if selector := v.Get("selector"); selector != nil {
		doc["selector"] = selector
	}

	if err := writeConfigFile(path, doc); err != nil {
		return fmt.Errorf("saving agent %q: %w", name, err)
	}

	if _, err := s.LoadAgents(); err != nil {
		return fmt.Errorf("reloading agents after save: %w", err)
	}

	s.logger.Info("agent config saved", "agent", name)
	return nil
}

// topicNamePattern constrains topic names to safe file stems.
var topicNamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// SaveTopic writes one topic config file under rags/ and loads it into the
// cache. An existing file for the name is replaced. The name doubles as the
// file stem, so it is restricted to lowercase letters, digits and underscores.
func (s *Store) SaveTopic(name string, settings map[string]any) error {
	if !topicNamePattern.MatchString(name) {
		return fmt.Errorf("%w: topic name %q must match %s", ErrMalformedConfig, name, topicNamePattern)
	}

	lock := flock.New(filepath.Join(s.baseDir, ".plantia.lock"))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking config directory: %w", err)
	}
	defer lock.Unlock() //nolint:errcheck

	path := s.topicPath(name)
	if path == "" {
		path = filepath.Join(s.ragsDir(), name+".yaml")
	}
	if err := writeConfigFile(path, settings); err != nil {
		return fmt.Errorf("saving topic %q: %w", name, err)
	}

	if _, err := s.LoadTopic(name); err != nil {
		return fmt.Errorf("reloading topic after save: %w", err)
	}

	s.logger.Info("topic config saved", "topic", name)
	return nil
}

// writeConfigFile serializes settings to path via a temp file and rename.
// The temp file keeps the target extension so viper picks the right encoder.
func writeConfigFile(path string, settings map[string]any) error {
	ext := filepath.Ext(path)
	tmp := strings.TrimSuffix(path, ext) + ".tmp" + ext

	v := viper.New()
	for key, value := range settings {
		v.Set(key, value)
	}
	if err := v.WriteConfigAs(tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return err
	}
	return nil
}

func defaultTopics() map[string]map[string]any {
	return map[string]map[string]any{
		"plants": {
			"display_name": "General Botany",
			"description":  "General plant knowledge: care, cultivation, identification and growth",
			"enabled":      true,
			"priority":     1,
			"vectorstore": map[string]any{
				"type":            "pgvector",
				"collection_name": "plants_collection",
				"chunk_size":      DefaultChunkSize,
				"chunk_overlap":   DefaultChunkOverlap,
			},
			"retrieval": map[string]any{
				"search_type": SearchMMR,
				"k":           DefaultRetrievalK,
				"fetch_k":     DefaultFetchK,
				"lambda_mult": DefaultLambdaMult,
				"max_k":       DefaultMaxK,
			},
			"system_prompt": "You are an expert botanist. Answer questions about plant care, cultivation and identification using the provided context. Answer in the language of the question.",
			"categories":    []string{"botany", "cultivation", "care"},
			"keywords": map[string]any{
				"primary":   []string{"planta", "cultivo", "cuidado", "riego", "poda", "plant", "grow", "care"},
				"secondary": []string{"hoja", "raiz", "flor", "fruto", "semilla", "leaf", "root", "flower"},
			},
		},
		"pathology": {
			"display_name": "Plant Pathology",
			"description":  "Plant diseases, pests, symptoms, diagnosis and treatments",
			"enabled":      true,
			"priority":     1,
			"vectorstore": map[string]any{
				"type":            "pgvector",
				"collection_name": "pathology_collection",
				"chunk_size":      DefaultChunkSize,
				"chunk_overlap":   DefaultChunkOverlap,
			},
			"retrieval": map[string]any{
				"search_type":     SearchScoreThreshold,
				"k":               DefaultRetrievalK,
				"score_threshold": DefaultScoreThreshold,
				"max_k":           DefaultMaxK,
			},
			"system_prompt": "You are a plant pathologist. Diagnose diseases and pests from the described symptoms and recommend treatments using the provided context. Answer in the language of the question.",
			"categories":    []string{"pathology", "pests", "diseases"},
			"keywords": map[string]any{
				"primary":   []string{"enfermedad", "plaga", "hongo", "sintoma", "tratamiento", "disease", "pest", "fungus"},
				"secondary": []string{"mancha", "amarillo", "marchito", "podrido", "spot", "wilt", "rot"},
			},
		},
		"eco_agriculture": {
			"display_name": "Ecological Agriculture",
			"description":  "Organic farming, sustainable practices and biological pest control",
			"enabled":      true,
			"priority":     2,
			"vectorstore": map[string]any{
				"type":            "pgvector",
				"collection_name": "eco_agriculture_collection",
				"chunk_size":      DefaultChunkSize,
				"chunk_overlap":   DefaultChunkOverlap,
			},
			"retrieval": map[string]any{
				"search_type": SearchMMR,
				"k":           DefaultRetrievalK,
				"fetch_k":     DefaultFetchK,
				"lambda_mult": DefaultLambdaMult,
				"max_k":       DefaultMaxK,
			},
			"system_prompt": "You are an ecological agriculture advisor. Recommend organic and sustainable practices using the provided context, avoiding synthetic chemical solutions. Answer in the language of the question.",
			"categories":    []string{"organic", "sustainability", "biological-control"},
			"keywords": map[string]any{
				"primary":   []string{"ecologico", "organico", "sostenible", "biologico", "organic", "sustainable"},
				"secondary": []string{"compost", "permacultura", "natural", "permaculture"},
			},
		},
	}
}

func defaultAgents() map[string]any {
	return map[string]any{
		"agents": map[string]any{
			"plants": map[string]any{
				"description":      "General plant care and cultivation questions",
				"class":            "PlantsAgent",
				"topics":           []string{"plants"},
				"enabled":          true,
				"priority":         1,
				"fallback_enabled": false,
				"config": map[string]any{
					"min_confidence":     DefaultMinConfidence,
					"max_confidence":     DefaultMaxConfidence,
					"primary_keywords":   []string{"planta", "cultivo", "cuidado", "riego", "poda", "plant", "grow", "care", "water", "prune"},
					"secondary_keywords": []string{"hoja", "raiz", "flor", "fruto", "semilla", "leaf", "root", "flower", "fruit", "seed"},
					"patterns":           []string{`como (cuidar|cultivar|regar|podar)`, `how (to|do I) (care|grow|water|prune)`},
					"target_species":     []string{"malus domestica", "solanum lycopersicum", "citrus sinensis"},
					"common_names":       []string{"manzano", "tomate", "naranjo", "apple", "tomato", "orange"},
				},
				"thresholds": map[string]any{
					"keyword_weight": DefaultKeywordWeight,
					"species_weight": DefaultSpeciesWeight,
					"pattern_weight": DefaultPatternWeight,
					"context_bonus":  DefaultContextBonus,
				},
			},
			"pathology": map[string]any{
				"description":      "Plant disease and pest diagnosis",
				"class":            "PathologyAgent",
				"topics":           []string{"pathology"},
				"enabled":          true,
				"priority":         1,
				"fallback_enabled": false,
				"config": map[string]any{
					"min_confidence":     DefaultMinConfidence,
					"max_confidence":     DefaultMaxConfidence,
					"primary_keywords":   []string{"enfermedad", "plaga", "hongo", "sintoma", "tratamiento", "mildiu", "disease", "pest", "fungus", "symptom", "treatment", "mildew"},
					"secondary_keywords": []string{"mancha", "amarillo", "marchito", "podrido", "spot", "yellow", "wilt", "rot"},
					"patterns":           []string{`(mi|la|el) .* (tiene|esta) (enferm|amarill|march)`, `(que|cual) (enfermedad|plaga|tratamiento)`, `my .* (is|has) (sick|yellow|wilting)`},
					"target_species":     []string{"phytophthora infestans", "botrytis cinerea", "oidium"},
					"common_names":       []string{"mildiu", "botritis", "oidio", "roya", "mildew", "blight", "rust"},
				},
				"thresholds": map[string]any{
					"keyword_weight": DefaultKeywordWeight,
					"species_weight": DefaultSpeciesWeight,
					"pattern_weight": DefaultPatternWeight,
					"context_bonus":  DefaultContextBonus,
				},
			},
			"eco_agriculture": map[string]any{
				"description":      "Organic and sustainable agriculture advice",
				"class":            "EcoAgricultureAgent",
				"topics":           []string{"eco_agriculture"},
				"enabled":          true,
				"priority":         2,
				"fallback_enabled": false,
				"config": map[string]any{
					"min_confidence":     DefaultMinConfidence,
					"max_confidence":     DefaultMaxConfidence,
					"primary_keywords":   []string{"ecologico", "organico", "sostenible", "biologico", "organic", "sustainable", "biological"},
					"secondary_keywords": []string{"compost", "permacultura", "rotacion", "natural", "permaculture", "rotation"},
					"patterns":           []string{`(control|tratamiento) (biologico|natural|ecologico)`, `(organic|natural|biological) (control|treatment|farming)`},
				},
				"thresholds": map[string]any{
					"keyword_weight": DefaultKeywordWeight,
					"species_weight": DefaultSpeciesWeight,
					"pattern_weight": DefaultPatternWeight,
					"context_bonus":  DefaultContextBonus,
				},
			},
			"general": map[string]any{
				"description":      "General assistant for questions outside every specialty",
				"class":            "GenericRAGAgent",
				"topics":           []string{"plants"},
				"enabled":          true,
				"priority":         99,
				"fallback_enabled": true,
				"config": map[string]any{
					"min_confidence":  DefaultMinConfidence,
					"max_confidence":  0.5,
					"base_confidence": 0.2,
				},
				"thresholds": map[string]any{
					"keyword_weight": DefaultKeywordWeight,
					"species_weight": DefaultSpeciesWeight,
					"pattern_weight": DefaultPatternWeight,
					"context_bonus":  DefaultContextBonus,
				},
			},
		},
		"selector": map[string]any{
			"reload_interval_seconds": 30,
		},
	}
}
