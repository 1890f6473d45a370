// Package rag answers questions against per-topic document collections:
// retrieve relevant chunks, assemble a grounded prompt with the session's
// history, generate, and report sources.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/firebase/genkit/go/ai"

	"github.com/plantia/plantia/internal/configstore"
	"github.com/plantia/plantia/internal/knowledge"
	"github.com/plantia/plantia/internal/log"
	"github.com/plantia/plantia/internal/metrics"
	"github.com/plantia/plantia/internal/session"
)

// ErrTopicUnavailable indicates a query named a topic that is unknown or
// disabled.
var ErrTopicUnavailable = errors.New("rag: topic unavailable")

// Source excerpt limits in answer metadata.
const (
	maxSources       = 3
	excerptLength    = 200
	historyTurnLimit = 10 // most recent turns included in the prompt
)

// Searcher is the slice of the knowledge store the RAG service uses.
type Searcher interface {
	Search(ctx context.Context, collection, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
	QueryEmbedding(ctx context.Context, query string) ([]float32, error)
	Count(ctx context.Context, collection string) (int, error)
}

// Generator produces a model answer from a system prompt and messages.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, messages []*ai.Message) (string, error)
}

// Service executes RAG queries per topic. It implements the retrieval
// interface the agents layer consumes, including topic hot-reload.
type Service struct {
	topics    *configstore.Store
	searcher  Searcher
	generator Generator
	sessions  *session.Store
	logger    log.Logger
	recorder  *metrics.Recorder
}

// New creates the RAG service.
func New(topics *configstore.Store, searcher Searcher, generator Generator, sessions *session.Store, logger log.Logger, recorder *metrics.Recorder) (*Service, error) {
	if topics == nil {
		return nil, errors.New("rag: topic store cannot be nil")
	}
	if searcher == nil {
		return nil, errors.New("rag: searcher cannot be nil")
	}
	if generator == nil {
		return nil, errors.New("rag: generator cannot be nil")
	}
	if sessions == nil {
		return nil, errors.New("rag: session store cannot be nil")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	if recorder == nil {
		recorder = metrics.NewRecorder(log.NewNop())
	}

	return &Service{
		topics:    topics,
		searcher:  searcher,
		generator: generator,
		sessions:  sessions,
		logger:    logger.With("component", "rag"),
		recorder:  recorder,
	}, nil
}

// Query answers a question against one topic's collection.
func (s *Service) Query(ctx context.Context, question, topic, sessionID string, includeSources bool) (string, map[string]any, error) {
	cfg, err := s.topics.Topic(topic)
	if err != nil || !cfg.Enabled {
		return "", nil, fmt.Errorf("%w: %q", ErrTopicUnavailable, topic)
	}

	start := time.Now()
	results, err := s.retrieve(ctx, cfg, question)
	if err != nil {
		return "", nil, fmt.Errorf("retrieving from topic %q: %w", topic, err)
	}
	s.recorder.RAGRetrieval(topic, len(results), time.Since(start))

	messages := s.buildMessages(sessionID, question, results)
	answer, err := s.generator.Generate(ctx, cfg.SystemPrompt, messages)
	if err != nil {
		return "", nil, fmt.Errorf("generating answer for topic %q: %w", topic, err)
	}

	s.sessions.Append(sessionID, session.RoleUser, question)
	s.sessions.Append(sessionID, session.RoleAssistant, answer)

	md := map[string]any{
		"rag_topic":     topic,
		"num_documents": len(results),
		"rag_config": map[string]any{
			"search_type": cfg.Retrieval.SearchType,
			"k":           cfg.Retrieval.K,
		},
	}
	if includeSources {
		md["sources"] = sourceExcerpts(results)
	}
	return answer, md, nil
}

// retrieve runs the topic's configured search strategy.
func (s *Service) retrieve(ctx context.Context, cfg *configstore.TopicConfig, question string) ([]knowledge.Result, error) {
	collection := cfg.Vectorstore.CollectionName
	r := cfg.Retrieval

	switch r.SearchType {
	case configstore.SearchMMR:
		candidates, err := s.searcher.Search(ctx, collection, question,
			knowledge.WithTopK(r.FetchK), knowledge.WithEmbeddings())
		if err != nil {
			return nil, err
		}
		queryEmbedding, err := s.searcher.QueryEmbedding(ctx, question)
		if err != nil {
			return nil, err
		}
		return maximalMarginalRelevance(queryEmbedding, candidates, r.K, r.LambdaMult), nil

	case configstore.SearchScoreThreshold:
		// Over-fetch, then keep hits above the threshold.
		results, err := s.searcher.Search(ctx, collection, question,
			knowledge.WithTopK(r.MaxK))
		if err != nil {
			return nil, err
		}
		kept := results[:0]
		for _, res := range results {
			if float64(res.Similarity) >= r.ScoreThreshold {
				kept = append(kept, res)
			}
		}
		if len(kept) > r.K {
			kept = kept[:r.K]
		}
		return kept, nil

	default: // plain similarity
		return s.searcher.Search(ctx, collection, question, knowledge.WithTopK(r.K))
	}
}

// buildMessages assembles recent history, the retrieved context and the
// question into the generation message list.
func (s *Service) buildMessages(sessionID, question string, results []knowledge.Result) []*ai.Message {
	var messages []*ai.Message

	history := s.sessions.History(sessionID)
	if turns := historyTurnLimit * 2; len(history) > turns {
		history = history[len(history)-turns:]
	}
	for _, msg := range history {
		switch msg.Role {
		case session.RoleAssistant:
			messages = append(messages, ai.NewModelTextMessage(msg.Content))
		default:
			messages = append(messages, ai.NewUserTextMessage(msg.Content))
		}
	}

	var b strings.Builder
	if len(results) > 0 {
		b.WriteString("Context:\n")
		for i, res := range results {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, res.Document.Content)
		}
		b.WriteString("\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)

	return append(messages, ai.NewUserTextMessage(b.String()))
}

func sourceExcerpts(results []knowledge.Result) []map[string]any {
	sources := make([]map[string]any, 0, maxSources)
	for _, res := range results {
		if len(sources) == maxSources {
			break
		}
		excerpt := res.Document.Content
		if len(excerpt) > excerptLength {
			// Back off to a rune boundary so a multibyte character is
			// never split mid-sequence.
			cut := excerptLength
			for cut > 0 && !utf8.RuneStart(excerpt[cut]) {
				cut--
			}
			excerpt = excerpt[:cut] + "..."
		}
		sources = append(sources, map[string]any{
			"excerpt":    excerpt,
			"metadata":   res.Document.Metadata,
			"similarity": res.Similarity,
		})
	}
	return sources
}

// AvailableTopics lists the enabled topics, highest priority first.
func (s *Service) AvailableTopics() []string {
	return s.topics.EnabledTopics()
}

// ReloadTopic refreshes one topic's cached config after a file change.
func (s *Service) ReloadTopic(name string) {
	if _, err := s.topics.LoadTopic(name); err != nil {
		s.logger.Error("reloading topic config", "topic", name, "error", err)
		return
	}
	s.logger.Info("topic config reloaded", "topic", name)
}

// ClearSessionHistory drops one session's conversation history.
func (s *Service) ClearSessionHistory(_ context.Context, sessionID string) error {
	s.sessions.Clear(sessionID)
	return nil
}

// HealthCheck reports per-topic document counts. Degraded means some
// enabled topic has no reachable documents; unhealthy means the store is
// unreachable.
func (s *Service) HealthCheck(ctx context.Context) map[string]any {
	payload := map[string]any{"status": "healthy"}

	if _, err := s.searcher.Count(ctx, ""); err != nil {
		payload["status"] = "unhealthy"
		payload["error"] = err.Error()
		return payload
	}

	topics := make(map[string]any)
	degraded := false
	for _, name := range s.topics.EnabledTopics() {
		cfg, err := s.topics.Topic(name)
		if err != nil {
			continue
		}
		count, err := s.searcher.Count(ctx, cfg.Vectorstore.CollectionName)
		if err != nil {
			topics[name] = map[string]any{"error": err.Error()}
			degraded = true
			continue
		}
		if count == 0 {
			degraded = true
		}
		topics[name] = map[string]any{"documents": count}
	}
	payload["topics"] = topics
	if degraded {
		payload["status"] = "degraded"
	}
	return payload
}
