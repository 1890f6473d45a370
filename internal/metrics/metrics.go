// Package metrics emits structured observability events for question
// routing and retrieval. Events are written through the shared slog logger
// so any log sink doubles as the metrics sink.
package metrics

import (
	"time"

	"github.com/plantia/plantia/internal/log"
)

// Recorder emits metric events. The zero value is not usable; construct
// with NewRecorder.
type Recorder struct {
	logger log.Logger
}

func NewRecorder(logger log.Logger) *Recorder {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Recorder{logger: logger.With("component", "metrics")}
}

// AgentSelection records the outcome of one selector run.
func (r *Recorder) AgentSelection(agent string, confidence float64, question string) {
	r.logger.Info("agent_selection",
		"agent", agent,
		"confidence", confidence,
		"question_length", len(question),
	)
}

// ChatInteraction records one completed (or failed) question round-trip.
func (r *Recorder) ChatInteraction(agent string, success bool, confidence float64, elapsed time.Duration, errMsg string) {
	attrs := []any{
		"agent", agent,
		"success", success,
		"confidence", confidence,
		"elapsed_ms", elapsed.Milliseconds(),
	}
	if errMsg != "" {
		attrs = append(attrs, "error", errMsg)
	}
	r.logger.Info("chat_interaction", attrs...)
}

// RAGRetrieval records one retrieval round against a topic collection.
func (r *Recorder) RAGRetrieval(topic string, documents int, elapsed time.Duration) {
	r.logger.Info("rag_retrieval",
		"topic", topic,
		"documents", documents,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// ConfigReload records a completed configuration rescan.
func (r *Recorder) ConfigReload(changed []string) {
	r.logger.Info("config_reload", "changed", changed, "count", len(changed))
}
