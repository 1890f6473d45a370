package agents

import (
	"sort"
	"strings"

	"github.com/plantia/plantia/internal/log"
	"github.com/plantia/plantia/internal/metrics"
)

// Fixed confidences reported by the fallback tiers. A fallback win means
// "weak match", not a computed score.
const (
	fallbackConfidence   = 0.1
	lastResortConfidence = 0.05
)

// Candidate pairs an agent with its computed confidence for one question.
type Candidate struct {
	Agent      Agent
	Confidence float64
}

// Selection is the result of one selector run.
type Selection struct {
	Agent      Agent
	Confidence float64
	// Alternatives holds the remaining candidates in ranking order.
	Alternatives []Candidate
}

// Selector ranks candidate agents for a question.
type Selector struct {
	logger   log.Logger
	recorder *metrics.Recorder
}

func NewSelector(logger log.Logger, recorder *metrics.Recorder) *Selector {
	if logger == nil {
		logger = log.NewNop()
	}
	if recorder == nil {
		recorder = metrics.NewRecorder(log.NewNop())
	}
	return &Selector{logger: logger.With("component", "selector"), recorder: recorder}
}

// Select scores every candidate and returns the winner.
//
// Ranking is by confidence descending; equal confidence is broken by the
// lower priority number, then by name for determinism. If every score is
// zero the fallback policy applies, in order: any fallback-enabled agent,
// any agent whose name contains "general", and finally the agent with the
// numerically highest priority (lowest importance, safest default). Each
// fallback tier reports a fixed low confidence instead of the computed
// score.
func (s *Selector) Select(question string, candidates []Agent, context map[string]string) (Selection, error) {
	if len(candidates) == 0 {
		return Selection{}, ErrNoAgents
	}

	scored := make([]Candidate, 0, len(candidates))
	for _, agent := range candidates {
		scored = append(scored, Candidate{
			Agent:      agent,
			Confidence: s.safeScore(agent, question, context),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Confidence != scored[j].Confidence {
			return scored[i].Confidence > scored[j].Confidence
		}
		pi, pj := scored[i].Agent.Config().Priority, scored[j].Agent.Config().Priority
		if pi != pj {
			return pi < pj
		}
		return scored[i].Agent.Name() < scored[j].Agent.Name()
	})

	sel := Selection{
		Agent:        scored[0].Agent,
		Confidence:   scored[0].Confidence,
		Alternatives: scored[1:],
	}

	if sel.Confidence == 0 {
		sel = s.fallback(scored)
	}

	s.recorder.AgentSelection(sel.Agent.Name(), sel.Confidence, question)
	s.logger.Debug("agent selected",
		"agent", sel.Agent.Name(),
		"confidence", sel.Confidence,
		"candidates", len(candidates),
	)
	return sel, nil
}

// safeScore isolates per-agent scoring failures: one panicking scorer must
// not abort the whole selection, it just scores zero.
func (s *Selector) safeScore(agent Agent, question string, context map[string]string) (confidence float64) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("agent scoring panicked, scored as zero",
				"agent", agent.Name(), "panic", rec)
			confidence = 0
		}
	}()
	return agent.Score(question, context)
}

func (s *Selector) fallback(scored []Candidate) Selection {
	pick := func(agent Agent, confidence float64, tier string) Selection {
		s.logger.Warn("no agent matched, using fallback",
			"agent", agent.Name(), "tier", tier)
		return Selection{Agent: agent, Confidence: confidence, Alternatives: nil}
	}

	for _, c := range scored {
		if c.Agent.Config().FallbackEnabled {
			return pick(c.Agent, fallbackConfidence, "fallback_enabled")
		}
	}
	for _, c := range scored {
		if strings.Contains(strings.ToLower(c.Agent.Name()), "general") {
			return pick(c.Agent, fallbackConfidence, "general_name")
		}
	}

	last := scored[0]
	for _, c := range scored[1:] {
		if c.Agent.Config().Priority > last.Agent.Config().Priority {
			last = c
		}
	}
	return pick(last.Agent, lastResortConfidence, "highest_priority_number")
}
