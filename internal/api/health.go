package api

import (
	"net/http"

	"github.com/plantia/plantia/internal/agents"
	"github.com/plantia/plantia/internal/log"
)

// health is a simple liveness endpoint for Docker/Kubernetes probes.
// Returns 200 OK with {"status":"ok"}.
func health(logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	}
}

// readiness reports whether the service can answer questions. A degraded
// service (some agents failed to build, empty collections) still accepts
// traffic; only an unhealthy one is taken out of rotation.
func readiness(service *agents.Service, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := service.HealthCheck(r.Context())

		status := http.StatusOK
		if h.Status == "unhealthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, h, logger)
	}
}
