package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sydlexius/releasewire/internal/release"
)

// handleGetRelease returns a stored release with its credits and tracks.
// GET /api/v1/releases/{id}
func (r *Router) handleGetRelease(w http.ResponseWriter, req *http.Request) {
	rel, err := r.releases.GetByID(req.Context(), req.PathValue("id"))
	if errors.Is(err, release.ErrNotFound) {
		writeError(w, http.StatusNotFound, "release not found")
		return
	}
	if err != nil {
		r.logger.Error("loading release", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load release")
		return
	}
	writeJSON(w, http.StatusOK, rel)
}
