package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sydlexius/releasewire/internal/importer"
)

type startImportRequest struct {
	PrincipalID string `json:"principal_id"`
	Link        string `json:"link,omitempty"`
}

// handleStartImport starts a background import over the configured
// sources, or over a single link when one is given.
// POST /api/v1/imports
func (r *Router) handleStartImport(w http.ResponseWriter, req *http.Request) {
	var body startImportRequest
	dec := json.NewDecoder(io.LimitReader(req.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	body.PrincipalID = strings.TrimSpace(body.PrincipalID)
	if body.PrincipalID == "" {
		writeError(w, http.StatusBadRequest, "principal_id is required")
		return
	}

	runID, err := r.runner.Start(r.runCtx, body.PrincipalID, strings.TrimSpace(body.Link))
	switch {
	case errors.Is(err, importer.ErrRunActive):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, importer.ErrUnsupportedLink):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		r.logger.Error("starting import", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to start import")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"status": "started",
	})
}

// handleCurrentImport returns progress of the running or most recent import.
// GET /api/v1/imports/current
func (r *Router) handleCurrentImport(w http.ResponseWriter, _ *http.Request) {
	st := r.runner.Status()
	if st.Snapshot == nil && st.Error == "" {
		writeError(w, http.StatusNotFound, "no import has run yet")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
