package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alfredjeanlab/tagrules/internal/metrics"
	"github.com/alfredjeanlab/tagrules/internal/model"
	"github.com/alfredjeanlab/tagrules/internal/ruletree"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health and
// GET /metrics) must include a valid Authorization: Bearer <token> header.
func (s *RulesServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/rules", s.handleGetTree)
	mux.HandleFunc("GET /v1/rules/version", s.handleGetVersion)
	mux.HandleFunc("GET /v1/rules/log", s.handleGetLog)
	mux.HandleFunc("POST /v1/rules/groups", s.handleCreateGroup)
	mux.HandleFunc("PATCH /v1/rules/groups/{id}", s.handleUpdateGroup)
	mux.HandleFunc("POST /v1/rules/groups/{id}/move", s.handleMoveGroup)
	mux.HandleFunc("DELETE /v1/rules/groups/{id}", s.handleDeleteGroup)
	mux.HandleFunc("POST /v1/rules/edges", s.handleLinkGroup)
	mux.HandleFunc("DELETE /v1/rules/edges", s.handleUnlinkGroup)
	mux.HandleFunc("POST /v1/rules/groups/{id}/keywords", s.handleAddKeyword)
	mux.HandleFunc("DELETE /v1/rules/groups/{id}/keywords", s.handleRemoveKeywordText)
	mux.HandleFunc("DELETE /v1/rules/keywords/{id}", s.handleRemoveKeyword)
	mux.HandleFunc("PATCH /v1/rules/keywords/{id}", s.handleUpdateKeyword)
	mux.HandleFunc("POST /v1/rules/batch", s.handleBatch)
	mux.HandleFunc("POST /v1/expand", s.handleExpand)
	mux.HandleFunc("GET /v1/export", s.handleExport)
	mux.HandleFunc("POST /v1/import", s.handleImport)
	mux.HandleFunc("GET /v1/stats", s.handleGetStats)
	mux.HandleFunc("GET /v1/editors", s.handleEditors)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return AuthMiddleware(authToken, mux)
}

// handleHealth handles GET /v1/health.
func (s *RulesServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.rules.Version(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// conflictResponse is the 409 body returned for a stale base version.
type conflictResponse struct {
	Success                bool        `json:"success"`
	Error                  string      `json:"error"`
	Status                 int         `json:"status"`
	CurrentVersion         int64       `json:"current_version"`
	LatestSnapshot         *model.Tree `json:"latest_snapshot"`
	DistinctModifiersSince int         `json:"distinct_modifiers_since"`
}

// writeServiceError maps a rule tree error onto an HTTP status.
func writeServiceError(w http.ResponseWriter, err error) {
	var conflict *ruletree.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, conflictResponse{
			Error:                  "conflict",
			Status:                 http.StatusConflict,
			CurrentVersion:         conflict.CurrentVersion,
			LatestSnapshot:         conflict.LatestSnapshot,
			DistinctModifiersSince: conflict.DistinctModifiersSince,
		})
	case isConflict(err):
		writeError(w, http.StatusConflict, "conflict")
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case isBadRequest(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody decodes the JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return inputError("invalid JSON body")
	}
	return nil
}

// pathID parses the {id} path value.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, inputError("id must be a positive integer")
	}
	return id, nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message, "status": status})
}
