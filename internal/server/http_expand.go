package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/alfredjeanlab/tagrules/internal/model"
	"github.com/alfredjeanlab/tagrules/internal/ruletree"
)

type expandInput struct {
	Tags []string `json:"tags"`
}

// handleExpand handles POST /v1/expand.
func (s *RulesServer) handleExpand(w http.ResponseWriter, r *http.Request) {
	var in expandInput
	if err := decodeBody(r, &in); err != nil {
		writeServiceError(w, err)
		return
	}
	res, err := s.expander.Expand(r.Context(), in.Tags)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleExport handles GET /v1/export. The body is the legacy interchange
// document, served as an attachment.
func (s *RulesServer) handleExport(w http.ResponseWriter, r *http.Request) {
	doc, err := s.rules.Export(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="tagrules-v%d.json"`, doc.Rules.VersionID))
	writeJSON(w, http.StatusOK, doc)
}

// handleImport handles POST /v1/import?client_id=. The body is a legacy
// export document; it replaces the whole rule set.
func (s *RulesServer) handleImport(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	var doc model.LegacyExport
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid export document")
		return
	}

	sum, err := s.rules.Import(r.Context(), clientID, &doc)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	details := fmt.Sprintf("groups=%d keywords=%d edges=%d skipped_keywords=%d skipped_edges=%d",
		sum.Groups, sum.Keywords, sum.Edges, sum.SkippedKeywords, sum.SkippedEdges)
	s.recordAndPublish(r.Context(), change{
		req:       ruletree.Request{ClientID: clientID},
		operation: model.OpImport,
		version:   sum.Version,
		details:   details,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "new_version": sum.Version, "summary": sum})
}

// handleGetStats handles GET /v1/stats.
func (s *RulesServer) handleGetStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.rules.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleEditors handles GET /v1/editors?stale_threshold_secs=.
func (s *RulesServer) handleEditors(w http.ResponseWriter, r *http.Request) {
	var stale time.Duration
	if v := r.URL.Query().Get("stale_threshold_secs"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs < 0 {
			writeError(w, http.StatusBadRequest, "stale_threshold_secs must be a non-negative integer")
			return
		}
		stale = time.Duration(secs) * time.Second
	}
	writeJSON(w, http.StatusOK, map[string]any{"editors": s.Presence.Roster(stale)})
}
