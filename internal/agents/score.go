package agents

import (
	"regexp"
	"strings"

	"github.com/plantia/plantia/internal/configstore"
)

// rawScore computes the unclamped confidence for a question against one
// agent config, using the agent's per-match increments and caps. It is a
// pure function of its inputs: no I/O, no state.
//
// Accumulation is order-independent: every term is computed from the full
// question and summed.
func rawScore(cfg *configstore.AgentConfig, m configstore.MatchingConfig, patterns []*regexp.Regexp, question string, context map[string]string) float64 {
	score := cfg.BaseConfidence
	q := strings.ToLower(question)

	if n := countSubstrings(q, cfg.PrimaryKeywords); n > 0 {
		score += cfg.KeywordWeight * capped(float64(n)*m.PrimaryStep, m.PrimaryCap)
	}
	if n := countSubstrings(q, cfg.SecondaryKeywords); n > 0 {
		score += cfg.KeywordWeight * 0.5 * capped(float64(n)*m.SecondaryStep, m.SecondaryCap)
	}
	if n := countSubstrings(q, cfg.TargetSpecies); n > 0 {
		score += cfg.SpeciesWeight * capped(float64(n)*m.SpeciesStep, m.SpeciesCap)
	}
	if n := countSubstrings(q, cfg.CommonNames); n > 0 {
		score += cfg.SpeciesWeight * 0.5 * capped(float64(n)*m.CommonNameStep, m.CommonNameCap)
	}
	if n := countPatternMatches(question, patterns); n > 0 {
		score += cfg.PatternWeight * capped(float64(n)*m.PatternStep, m.PatternCap)
	}

	if topic, ok := context["topic"]; ok && hasTopic(cfg.Topics, topic) {
		score += cfg.ContextBonus
	}

	return score
}

// countSubstrings counts the terms that occur in the lowercased question.
// Each term counts at most once regardless of repetition.
func countSubstrings(q string, terms []string) int {
	n := 0
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(q, strings.ToLower(term)) {
			n++
		}
	}
	return n
}

// countPatternMatches counts the precompiled patterns that match the
// question. Patterns are compiled case-insensitively at agent construction.
func countPatternMatches(question string, patterns []*regexp.Regexp) int {
	n := 0
	for _, re := range patterns {
		if re.MatchString(question) {
			n++
		}
	}
	return n
}

func hasTopic(topics []string, topic string) bool {
	for _, t := range topics {
		if strings.EqualFold(t, topic) {
			return true
		}
	}
	return false
}

func capped(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
