package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/plantia/plantia/internal/agents"
	"github.com/plantia/plantia/internal/log"
	"github.com/plantia/plantia/internal/session"
)

// maxRequestBody caps chat request bodies at 1MB.
const maxRequestBody = 1 << 20

// chatHandler serves the question/answer endpoint and session history
// management.
type chatHandler struct {
	service           *agents.Service
	retrieval         agents.Retrieval
	maxQuestionLength int
	logger            log.Logger
}

// chatRequest is the POST /api/v1/chat body.
type chatRequest struct {
	Question       string            `json:"question"`
	SessionID      string            `json:"session_id,omitempty"`
	Agent          string            `json:"agent,omitempty"`
	Context        map[string]string `json:"context,omitempty"`
	IncludeSources bool              `json:"include_sources,omitempty"`
}

// chatResponse is the POST /api/v1/chat response.
type chatResponse struct {
	Answer    string         `json:"answer"`
	SessionID string         `json:"session_id"`
	Metadata  map[string]any `json:"metadata"`
}

// send handles POST /api/v1/chat.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "empty_question", "question is required", h.logger)
		return
	}
	if h.maxQuestionLength > 0 && len(req.Question) > h.maxQuestionLength {
		writeError(w, http.StatusBadRequest, "question_too_long", "question exceeds maximum length", h.logger)
		return
	}

	// A missing session ID starts a new conversation; a present one must be
	// well-formed so history keys cannot be forged into arbitrary strings.
	if req.SessionID == "" {
		req.SessionID = session.NewSessionID()
	} else if !session.ValidID(req.SessionID) {
		writeError(w, http.StatusBadRequest, "invalid_session_id", "session_id must be a UUID", h.logger)
		return
	}

	result, err := h.service.ProcessQuestion(r.Context(), agents.ProcessRequest{
		Question:       req.Question,
		SessionID:      req.SessionID,
		AgentType:      req.Agent,
		Context:        req.Context,
		IncludeSources: req.IncludeSources,
	})
	if err != nil {
		h.writeProcessError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Answer:    result.Answer,
		SessionID: req.SessionID,
		Metadata:  result.Metadata,
	}, h.logger)
}

// writeProcessError maps orchestration errors to HTTP statuses without
// leaking internal detail.
func (h *chatHandler) writeProcessError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, agents.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, "empty_question", "question is required", h.logger)
	case errors.Is(err, agents.ErrAgentNotFound):
		writeError(w, http.StatusNotFound, "agent_not_found", "requested agent does not exist", h.logger)
	case errors.Is(err, agents.ErrNoAgents):
		writeError(w, http.StatusServiceUnavailable, "no_agents", "no agents are available", h.logger)
	default:
		h.logger.Error("chat processing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "processing_failed", "failed to process question", h.logger)
	}
}

// clearHistory handles DELETE /api/v1/sessions/{id}/history.
func (h *chatHandler) clearHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !session.ValidID(id) {
		writeError(w, http.StatusBadRequest, "invalid_session_id", "session id must be a UUID", h.logger)
		return
	}

	if err := h.retrieval.ClearSessionHistory(r.Context(), id); err != nil {
		h.logger.Error("clearing session history", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "clear_failed", "failed to clear session history", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"}, h.logger)
}
