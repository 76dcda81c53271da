// Package client provides transport-agnostic interfaces for the tagrules
// service, an HTTP/JSON implementation of the full API and a read-only
// gRPC implementation for lookups.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alfredjeanlab/tagrules/internal/model"
	"github.com/alfredjeanlab/tagrules/internal/presence"
)

// ErrNotModified is returned by GetTree when the caller's known revision is
// still current.
var ErrNotModified = errors.New("not modified")

// Reader is the read-only half of the API. Both transports implement it.
type Reader interface {
	Health(ctx context.Context) (string, error)
	Version(ctx context.Context) (int64, error)
	GetTree(ctx context.Context, known model.Revision) (*model.Tree, error)
	Expand(ctx context.Context, tags []string) (*ExpandResult, error)
	Close() error
}

// RulesClient is the interface the tr CLI uses to edit the rule set. It is
// implemented by HTTPClient.
type RulesClient interface {
	Reader

	// Groups
	CreateGroup(ctx context.Context, req Request, name string, parentID *int64, enabled bool) (*model.Group, int64, error)
	UpdateGroup(ctx context.Context, req Request, id int64, name *string, enabled *bool) (int64, error)
	MoveGroup(ctx context.Context, req Request, id int64, parentID *int64) (int64, error)
	DeleteGroup(ctx context.Context, req Request, id int64) (int, int64, error)

	// Edges
	LinkGroup(ctx context.Context, req Request, parentID, childID int64) (int64, error)
	UnlinkGroup(ctx context.Context, req Request, parentID, childID int64) (int64, error)

	// Keywords
	AddKeyword(ctx context.Context, req Request, groupID int64, text string) (*model.Keyword, int64, error)
	RemoveKeyword(ctx context.Context, req Request, id int64) (int64, error)
	RemoveKeywordText(ctx context.Context, req Request, groupID int64, text string) (int64, error)
	SetKeywordEnabled(ctx context.Context, req Request, id int64, enabled bool) (int64, error)

	Batch(ctx context.Context, req *BatchRequest) (*model.BatchResult, error)

	// Import/export
	Export(ctx context.Context) (*model.LegacyExport, error)
	Import(ctx context.Context, clientID string, doc *model.LegacyExport) (*model.ImportSummary, error)

	// Introspection
	Log(ctx context.Context, since int64, limit int) ([]*model.VersionLogEntry, error)
	Stats(ctx context.Context) (*model.Stats, error)
	Editors(ctx context.Context, staleAfter time.Duration) ([]*presence.Entry, error)
}

// Request identifies the editor and the version their edit was based on.
type Request struct {
	ClientID    string `json:"client_id"`
	BaseVersion int64  `json:"base_version"`
}

// BatchRequest applies one action to many groups.
type BatchRequest struct {
	Request
	IDs            []int64           `json:"ids"`
	Action         model.BatchAction `json:"action"`
	TargetParentID *int64            `json:"target_parent_id,omitempty"`
}

// ExpandResult is the response of an expansion.
type ExpandResult struct {
	Tags    []string `json:"tags"`
	Matched []string `json:"matched"`
	Version int64    `json:"version"`
}

// ConflictError is returned when an edit was based on a stale version. It
// carries what the caller needs to rebase.
type ConflictError struct {
	CurrentVersion         int64       `json:"current_version"`
	LatestSnapshot         *model.Tree `json:"latest_snapshot"`
	DistinctModifiersSince int         `json:"distinct_modifiers_since"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: rules are at version %d (%d other editors since your base)",
		e.CurrentVersion, e.DistinctModifiersSince)
}

// mutationResponse is the common envelope of every write.
type mutationResponse struct {
	Success    bool           `json:"success"`
	NewVersion int64          `json:"new_version"`
	Group      *model.Group   `json:"group,omitempty"`
	Keyword    *model.Keyword `json:"keyword,omitempty"`
	Removed    int            `json:"removed,omitempty"`
}
