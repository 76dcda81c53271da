package model

import "time"

// RootParentID is the parent id clients send to attach a group at the root.
// Root attachment is stored as the absence of an incoming edge.
const RootParentID int64 = 0

// Group is a named node in the rule hierarchy.
type Group struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`

	// LegacyDisplayParentID is one representative parent kept for older
	// read shapes. It is recomputed from the edge list after every
	// structural change and is never read back as a source of truth.
	LegacyDisplayParentID *int64 `json:"legacy_display_parent_id"`
}

// Keyword is a search term owned by exactly one group.
type Keyword struct {
	ID      int64  `json:"id"`
	Text    string `json:"text"`
	GroupID int64  `json:"group_id"`
	Enabled bool   `json:"enabled"`
}

// Edge is a parent -> child link between two groups.
type Edge struct {
	ParentID int64 `json:"parent_id"`
	ChildID  int64 `json:"child_id"`
}

// ClosureRow is one entry of the reflexive transitive closure of the edge
// list. Depth is the shortest hop count from ancestor to descendant.
type ClosureRow struct {
	AncestorID   int64 `json:"ancestor_id"`
	DescendantID int64 `json:"descendant_id"`
	Depth        int   `json:"depth"`
}

// Operation names recorded in the version log.
const (
	OpCreateGroup       = "create_group"
	OpRenameGroup       = "rename_group"
	OpUpdateGroup       = "update_group"
	OpSetGroupEnabled   = "set_group_enabled"
	OpRelocateGroup     = "relocate_group"
	OpLinkGroup         = "link_group"
	OpUnlinkGroup       = "unlink_group"
	OpDeleteGroup       = "delete_group"
	OpAddKeyword        = "add_keyword"
	OpRemoveKeyword     = "remove_keyword"
	OpSetKeywordEnabled = "set_keyword_enabled"
	OpBatch             = "batch"
	OpImport            = "import"
)

// VersionLogEntry records one successful structural mutation.
type VersionLogEntry struct {
	VersionID int64     `json:"version_id"`
	ClientID  string    `json:"client_id"`
	Operation string    `json:"operation"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats holds aggregate counts for the rule set.
type Stats struct {
	Groups   int   `json:"groups"`
	Keywords int   `json:"keywords"`
	Edges    int   `json:"edges"`
	Version  int64 `json:"rules_version"`
}
