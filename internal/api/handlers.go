package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sydlexius/releasewire/internal/version"
)

// handleHealth reports liveness and catalog size.
// GET /api/v1/health
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": version.Version,
	}
	if r.releases != nil {
		n, err := r.releases.Count(req.Context())
		if err != nil {
			r.logger.Error("health check: counting releases", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "version": version.Version})
			return
		}
		resp["releases"] = n
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}
