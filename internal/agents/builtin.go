package agents

import (
	"strings"

	"github.com/plantia/plantia/internal/configstore"
	"github.com/plantia/plantia/internal/log"
)

// Built-in agent class names resolvable without a module path.
const (
	ClassGeneric        = "GenericRAGAgent"
	ClassPlants         = "PlantsAgent"
	ClassPathology      = "PathologyAgent"
	ClassEcoAgriculture = "EcoAgricultureAgent"
)

// NewGenericRAGAgent builds the catch-all configuration-driven agent.
// It scores with the standard model and no extra terms.
func NewGenericRAGAgent(cfg *configstore.AgentConfig, retrieval Retrieval, logger log.Logger) (Agent, error) {
	return NewConfiguredAgent(cfg, retrieval, logger)
}

// NewPlantsAgent builds the botany specialist. Identical to the generic
// agent; its specialization lives in its keyword config and topic prompt.
func NewPlantsAgent(cfg *configstore.AgentConfig, retrieval Retrieval, logger log.Logger) (Agent, error) {
	return NewConfiguredAgent(cfg, retrieval, logger)
}

// Default adjustment terms of the specialist flavors. Each can be
// overridden per agent through a custom key of the same name.
const (
	defaultUrgencyBonus    = 0.1
	defaultEcoBonus        = 0.15
	defaultChemicalPenalty = 0.1
)

// customTerm reads a flavor adjustment override from an agent's custom
// config, falling back to the tuned default.
func customTerm(custom map[string]any, key string, fallback float64) float64 {
	switch v := custom[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}

// Symptom vocabulary that marks a question as an active problem report
// rather than general curiosity about diseases.
var urgentSymptomTerms = []string{
	"muriendo", "se muere", "urgente", "rapido",
	"dying", "urgent", "emergency", "spreading",
	"se extiende", "contagia",
}

// NewPathologyAgent builds the disease/pest specialist. On top of the
// standard model it adds a small bonus when the question reads like an
// active problem report, so live outbreaks route here over general botany.
func NewPathologyAgent(cfg *configstore.AgentConfig, retrieval Retrieval, logger log.Logger) (Agent, error) {
	a, err := NewConfiguredAgent(cfg, retrieval, logger)
	if err != nil {
		return nil, err
	}
	urgencyBonus := customTerm(cfg.CustomConfig, "urgency_bonus", defaultUrgencyBonus)
	a.adjust = func(question string) float64 {
		q := strings.ToLower(question)
		if countSubstrings(q, urgentSymptomTerms) > 0 {
			return urgencyBonus
		}
		return 0
	}
	return a, nil
}

var (
	ecoTerms = []string{
		"ecologico", "ecológico", "organico", "orgánico", "sostenible",
		"biologico", "biológico", "natural", "compost", "permacultura",
		"organic", "sustainable", "biological", "permaculture",
	}
	chemicalTerms = []string{
		"quimico", "químico", "pesticida", "herbicida", "fungicida sintetico",
		"chemical", "pesticide", "herbicide", "synthetic",
	}
)

// NewEcoAgricultureAgent builds the organic-farming specialist. It boosts
// questions using ecological vocabulary (+0.15 per distinct term) and
// penalizes questions asking for synthetic chemical solutions (-0.1 per
// distinct term), both pre-clamp.
func NewEcoAgricultureAgent(cfg *configstore.AgentConfig, retrieval Retrieval, logger log.Logger) (Agent, error) {
	a, err := NewConfiguredAgent(cfg, retrieval, logger)
	if err != nil {
		return nil, err
	}
	ecoBonus := customTerm(cfg.CustomConfig, "eco_bonus", defaultEcoBonus)
	chemicalPenalty := customTerm(cfg.CustomConfig, "chemical_penalty", defaultChemicalPenalty)
	a.adjust = func(question string) float64 {
		q := strings.ToLower(question)
		bonus := ecoBonus * float64(countSubstrings(q, ecoTerms))
		penalty := chemicalPenalty * float64(countSubstrings(q, chemicalTerms))
		return bonus - penalty
	}
	return a, nil
}
