package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/plantia/plantia/internal/configstore"
	"github.com/plantia/plantia/internal/log"
)

// topicsHandler serves read-only topic configuration endpoints.
type topicsHandler struct {
	store  *configstore.Store
	logger log.Logger
}

// topicSummary is the externally visible slice of a topic configuration.
type topicSummary struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	Priority    int    `json:"priority"`
	SearchType  string `json:"search_type"`
	Collection  string `json:"collection"`
}

// list handles GET /api/v1/topics.
func (h *topicsHandler) list(w http.ResponseWriter, _ *http.Request) {
	topics := h.store.Topics()

	summaries := make([]topicSummary, 0, len(topics))
	for _, t := range topics {
		summaries = append(summaries, topicSummary{
			Name:        t.Name,
			DisplayName: t.DisplayName,
			Description: t.Description,
			Enabled:     t.Enabled,
			Priority:    t.Priority,
			SearchType:  t.Retrieval.SearchType,
			Collection:  t.Vectorstore.CollectionName,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Priority != summaries[j].Priority {
			return summaries[i].Priority < summaries[j].Priority
		}
		return summaries[i].Name < summaries[j].Name
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"topics": summaries,
		"total":  len(summaries),
	}, h.logger)
}

// details handles GET /api/v1/topics/{name}.
func (h *topicsHandler) details(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	t, err := h.store.Topic(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "topic_not_found", "topic not found", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":         t.Name,
		"display_name": t.DisplayName,
		"description":  t.Description,
		"enabled":      t.Enabled,
		"priority":     t.Priority,
		"collection":   t.Vectorstore.CollectionName,
		"categories":   t.Categories,
		"retrieval": map[string]any{
			"search_type": t.Retrieval.SearchType,
			"k":           t.Retrieval.K,
			"max_k":       t.Retrieval.MaxK,
		},
	}, h.logger)
}

// addTopicRequest is the POST /api/v1/topics body. Settings follows the
// topic config file schema.
type addTopicRequest struct {
	Name     string         `json:"name"`
	Settings map[string]any `json:"settings"`
}

// add handles POST /api/v1/topics. The definition is validated before it is
// persisted, so a rejected topic leaves no file behind.
func (h *topicsHandler) add(w http.ResponseWriter, r *http.Request) {
	var req addTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	name := strings.ToLower(strings.TrimSpace(req.Name))
	if name == "" {
		writeError(w, http.StatusBadRequest, "invalid_topic", "topic name is required", h.logger)
		return
	}

	cfg, err := configstore.ParseTopicSettings(name, req.Settings)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_topic", err.Error(), h.logger)
		return
	}
	if v := configstore.ValidateTopicConfig(cfg); !v.Valid {
		writeError(w, http.StatusBadRequest, "invalid_topic", strings.Join(v.Errors, "; "), h.logger)
		return
	}

	if err := h.store.SaveTopic(name, req.Settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_topic", err.Error(), h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"status": "created",
		"topic":  name,
	}, h.logger)
}

// validate handles GET /api/v1/topics/{name}/validate. The report is always
// 200 when the topic file exists, even when it is malformed; validity is
// carried in the payload.
func (h *topicsHandler) validate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if _, err := h.store.Topic(name); errors.Is(err, configstore.ErrTopicNotFound) {
		writeError(w, http.StatusNotFound, "topic_not_found", "topic not found", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, h.store.ValidateTopic(name), h.logger)
}
