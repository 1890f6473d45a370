package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/plantia/plantia/internal/agents"
	"github.com/plantia/plantia/internal/log"
)

// agentsHandler serves the agent management endpoints.
type agentsHandler struct {
	service *agents.Service
	logger  log.Logger
}

// list handles GET /api/v1/agents.
func (h *agentsHandler) list(w http.ResponseWriter, _ *http.Request) {
	summaries := h.service.AvailableAgents()
	writeJSON(w, http.StatusOK, map[string]any{
		"agents": summaries,
		"total":  len(summaries),
	}, h.logger)
}

// details handles GET /api/v1/agents/{name}.
func (h *agentsHandler) details(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	summary, err := h.service.AgentDetails(name)
	if err != nil {
		if errors.Is(err, agents.ErrAgentNotFound) {
			writeError(w, http.StatusNotFound, "agent_not_found", "agent not found", h.logger)
			return
		}
		h.logger.Error("fetching agent details", "agent", name, "error", err)
		writeError(w, http.StatusInternalServerError, "details_failed", "failed to fetch agent details", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, summary, h.logger)
}

// addAgentRequest is the POST /api/v1/agents body. Settings uses the same
// shape as an agent entry in the dynamic configuration file.
type addAgentRequest struct {
	Name     string         `json:"name"`
	Settings map[string]any `json:"settings"`
}

// add handles POST /api/v1/agents. The definition is validated before it is
// persisted; an invalid definition changes nothing on disk.
func (h *agentsHandler) add(w http.ResponseWriter, r *http.Request) {
	var req addAgentRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	req.Name = strings.ToLower(strings.TrimSpace(req.Name))
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing_name", "agent name is required", h.logger)
		return
	}

	if err := h.service.AddAgent(req.Name, req.Settings); err != nil {
		h.logger.Warn("rejected agent definition", "agent", req.Name, "error", err)
		writeError(w, http.StatusBadRequest, "invalid_agent", err.Error(), h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"status": "created",
		"agent":  req.Name,
	}, h.logger)
}

// reload handles POST /api/v1/agents/{name}/reload. It re-reads the agent's
// definition from disk and replaces the live instance.
func (h *agentsHandler) reload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if err := h.service.ReloadAgent(name); err != nil {
		if errors.Is(err, agents.ErrAgentNotFound) {
			writeError(w, http.StatusNotFound, "agent_not_found", "agent not found", h.logger)
			return
		}
		h.logger.Error("reloading agent", "agent", name, "error", err)
		writeError(w, http.StatusInternalServerError, "reload_failed", "failed to reload agent", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "reloaded",
		"agent":  name,
	}, h.logger)
}
