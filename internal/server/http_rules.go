package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/alfredjeanlab/tagrules/internal/model"
	"github.com/alfredjeanlab/tagrules/internal/ruletree"
)

// handleGetTree handles GET /v1/rules. The ETag is the quoted revision, so a
// client holding the current tree gets 304 without a snapshot being built.
func (s *RulesServer) handleGetTree(w http.ResponseWriter, r *http.Request) {
	if inm := r.Header.Get("If-None-Match"); inm != "" {
		rev, err := s.rules.Revision(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if inm == etag(rev) {
			w.Header().Set("ETag", etag(rev))
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	tree, err := s.rules.Snapshot(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("ETag", etag(tree.Revision()))
	writeJSON(w, http.StatusOK, tree)
}

func etag(rev model.Revision) string {
	return strconv.Quote(rev.String())
}

// handleGetVersion handles GET /v1/rules/version.
func (s *RulesServer) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	v, err := s.rules.Version(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"version": v})
}

// handleGetLog handles GET /v1/rules/log?since=&limit=.
func (s *RulesServer) handleGetLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var since int64
	var limit int
	if v := q.Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an integer")
			return
		}
		since = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.rules.History(r.Context(), since, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []*model.VersionLogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type createGroupInput struct {
	ruletree.Request
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id"`
	Enabled  *bool  `json:"enabled"`
}

// handleCreateGroup handles POST /v1/rules/groups.
func (s *RulesServer) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var in createGroupInput
	if err := decodeBody(r, &in); err != nil {
		writeServiceError(w, err)
		return
	}
	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}

	g, v, err := s.rules.CreateGroup(r.Context(), in.Request, in.Name, in.ParentID, enabled)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.recordAndPublish(r.Context(), change{req: in.Request, operation: model.OpCreateGroup, version: v, groupIDs: []int64{g.ID}})
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "new_version": v, "group": g})
}

type updateGroupInput struct {
	ruletree.Request
	Name    *string `json:"name"`
	Enabled *bool   `json:"enabled"`
}

// handleUpdateGroup handles PATCH /v1/rules/groups/{id}.
func (s *RulesServer) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var in updateGroupInput
	if err := decodeBody(r, &in); err != nil {
		writeServiceError(w, err)
		return
	}

	var (
		v  int64
		op string
	)
	switch {
	case in.Name != nil && in.Enabled != nil:
		op = model.OpUpdateGroup
		v, err = s.rules.UpdateGroup(r.Context(), in.Request, id, in.Name, in.Enabled)
	case in.Name != nil:
		op = model.OpRenameGroup
		v, err = s.rules.RenameGroup(r.Context(), in.Request, id, *in.Name)
	case in.Enabled != nil:
		op = model.OpSetGroupEnabled
		v, err = s.rules.SetGroupEnabled(r.Context(), in.Request, id, *in.Enabled)
	default:
		err = inputError("name or enabled is required")
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.recordAndPublish(r.Context(), change{req: in.Request, operation: op, version: v, groupIDs: []int64{id}})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "new_version": v})
}

type moveGroupInput struct {
	ruletree.Request
	ParentID *int64 `json:"parent_id"`
}

// handleMoveGroup handles POST /v1/rules/groups/{id}/move.
func (s *RulesServer) handleMoveGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var in moveGroupInput
	if err := decodeBody(r, &in); err != nil {
		writeServiceError(w, err)
		return
	}

	v, err := s.rules.RelocateGroup(r.Context(), in.Request, id, in.ParentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	groups := []int64{id}
	if in.ParentID != nil && *in.ParentID != model.RootParentID {
		groups = append(groups, *in.ParentID)
	}
	s.recordAndPublish(r.Context(), change{req: in.Request, operation: model.OpRelocateGroup, version: v, groupIDs: groups})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "new_version": v})
}

// handleDeleteGroup handles DELETE /v1/rules/groups/{id}. The body carries
// the client id and base version.
func (s *RulesServer) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var in ruletree.Request
	if err := decodeBody(r, &in); err != nil {
		writeServiceError(w, err)
		return
	}

	removed, v, err := s.rules.DeleteGroup(r.Context(), in, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.recordAndPublish(r.Context(), change{
		req: in, operation: model.OpDeleteGroup, version: v, groupIDs: []int64{id},
		details: fmt.Sprintf("removed=%d", removed),
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "new_version": v, "removed": removed})
}

type edgeInput struct {
	ruletree.Request
	ParentID int64 `json:"parent_id"`
	ChildID  int64 `json:"child_id"`
}

// handleLinkGroup handles POST /v1/rules/edges.
func (s *RulesServer) handleLinkGroup(w http.ResponseWriter, r *http.Request) {
	var in edgeInput
	if err := decodeBody(r, &in); err != nil {
		writeServiceError(w, err)
		return
	}
	v, err := s.rules.LinkGroup(r.Context(), in.Request, in.ParentID, in.ChildID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.recordAndPublish(r.Context(), change{req: in.Request, operation: model.OpLinkGroup, version: v, groupIDs: []int64{in.ParentID, in.ChildID}})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "new_version": v})
}

// handleUnlinkGroup handles DELETE /v1/rules/edges.
func (s *RulesServer) handleUnlinkGroup(w http.ResponseWriter, r *http.Request) {
	var in edgeInput
	if err := decodeBody(r, &in); err != nil {
		writeServiceError(w, err)
		return
	}
	v, err := s.rules.UnlinkGroup(r.Context(), in.Request, in.ParentID, in.ChildID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.recordAndPublish(r.Context(), change{req: in.Request, operation: model.OpUnlinkGroup, version: v, groupIDs: []int64{in.ParentID, in.ChildID}})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "new_version": v})
}

type keywordInput struct {
	ruletree.Request
	Text string `json:"text"`
}

// handleAddKeyword handles POST /v1/rules/groups/{id}/keywords.
func (s *RulesServer) handleAddKeyword(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var in keywordInput
	if err := decodeBody(r, &in); err != nil {
		writeServiceError(w, err)
		return
	}

	k, v, err := s.rules.AddKeyword(r.Context(), in.Request, groupID, in.Text)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.recordAndPublish(r.Context(), change{req: in.Request, operation: model.OpAddKeyword, version: v, groupIDs: []int64{groupID}, keywordID: k.ID})
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "new_version": v, "keyword": k})
}

// handleRemoveKeywordText handles DELETE /v1/rules/groups/{id}/keywords,
// removing the keyword named in the body.
func (s *RulesServer) handleRemoveKeywordText(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var in keywordInput
	if err := decodeBody(r, &in); err != nil {
		writeServiceError(w, err)
		return
	}

	v, err := s.rules.RemoveKeywordText(r.Context(), in.Request, groupID, in.Text)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.recordAndPublish(r.Context(), change{req: in.Request, operation: model.OpRemoveKeyword, version: v, groupIDs: []int64{groupID}, details: in.Text})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "new_version": v})
}

// handleRemoveKeyword handles DELETE /v1/rules/keywords/{id}.
func (s *RulesServer) handleRemoveKeyword(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var in ruletree.Request
	if err := decodeBody(r, &in); err != nil {
		writeServiceError(w, err)
		return
	}

	v, err := s.rules.RemoveKeyword(r.Context(), in, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.recordAndPublish(r.Context(), change{req: in, operation: model.OpRemoveKeyword, version: v, keywordID: id})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "new_version": v})
}

type updateKeywordInput struct {
	ruletree.Request
	Enabled *bool `json:"enabled"`
}

// handleUpdateKeyword handles PATCH /v1/rules/keywords/{id}.
func (s *RulesServer) handleUpdateKeyword(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var in updateKeywordInput
	if err := decodeBody(r, &in); err != nil {
		writeServiceError(w, err)
		return
	}
	if in.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	v, err := s.rules.SetKeywordEnabled(r.Context(), in.Request, id, *in.Enabled)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.recordAndPublish(r.Context(), change{req: in.Request, operation: model.OpSetKeywordEnabled, version: v, keywordID: id})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "new_version": v})
}

type batchInput struct {
	ruletree.Request
	IDs            []int64           `json:"ids"`
	Action         model.BatchAction `json:"action"`
	TargetParentID *int64            `json:"target_parent_id"`
}

// handleBatch handles POST /v1/rules/batch. Per-item failures are reported
// in the body with status 200.
func (s *RulesServer) handleBatch(w http.ResponseWriter, r *http.Request) {
	var in batchInput
	if err := decodeBody(r, &in); err != nil {
		writeServiceError(w, err)
		return
	}

	res, err := s.rules.Batch(r.Context(), in.Request, in.IDs, in.Action, in.TargetParentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.recordAndPublish(r.Context(), change{
		req: in.Request, operation: model.OpBatch, version: res.NewVersion, groupIDs: in.IDs,
		details: fmt.Sprintf("action=%s affected=%d", in.Action, res.Affected),
	})
	writeJSON(w, http.StatusOK, res)
}
