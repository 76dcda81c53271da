package store

import (
	"context"

	"github.com/alfredjeanlab/tagrules/internal/model"
)

// Store defines the persistence interface for the rule set.
//
// Lookups of a single missing row return model.ErrNotFound. Structural
// writes are only issued from inside RunInTransaction by the ledger.
type Store interface {
	// Groups
	CreateGroup(ctx context.Context, g *model.Group) error
	InsertGroup(ctx context.Context, g *model.Group) error // keeps g.ID; used by import
	GetGroup(ctx context.Context, id int64) (*model.Group, error)
	ListGroups(ctx context.Context) ([]*model.Group, error)
	UpdateGroup(ctx context.Context, g *model.Group) error
	SetLegacyParent(ctx context.Context, id int64, parentID *int64) error
	DeleteGroups(ctx context.Context, ids []int64) (int, error)

	// Keywords
	CreateKeyword(ctx context.Context, k *model.Keyword) error
	GetKeyword(ctx context.Context, id int64) (*model.Keyword, error)
	ListKeywords(ctx context.Context) ([]*model.Keyword, error)
	SetKeywordEnabled(ctx context.Context, id int64, enabled bool) error
	DeleteKeyword(ctx context.Context, id int64) error
	DeleteKeywordText(ctx context.Context, groupID int64, text string) (int, error)
	DeleteKeywordsForGroups(ctx context.Context, groupIDs []int64) (int, error)

	// Edges
	AddEdge(ctx context.Context, e model.Edge) error // no-op when present
	RemoveEdge(ctx context.Context, e model.Edge) (bool, error)
	RemoveIncomingEdges(ctx context.Context, childID int64) error
	DeleteEdgesTouching(ctx context.Context, ids []int64) (int, error)
	ListEdges(ctx context.Context) ([]model.Edge, error)

	// Closure
	ReplaceClosure(ctx context.Context, rows []model.ClosureRow) error
	ListClosure(ctx context.Context) ([]model.ClosureRow, error)
	ListDescendants(ctx context.Context, ancestorID int64) ([]model.ClosureRow, error)

	// Version ledger
	GetVersion(ctx context.Context) (int64, error)
	GetRevision(ctx context.Context) (model.Revision, error)
	LockVersion(ctx context.Context) (int64, error) // holds writers off until the transaction ends
	SetVersion(ctx context.Context, version int64) error
	BumpEpoch(ctx context.Context) error
	AppendVersionLog(ctx context.Context, e *model.VersionLogEntry) error
	ListVersionLog(ctx context.Context, sinceVersion int64, limit int) ([]*model.VersionLogEntry, error)
	CountModifiersSince(ctx context.Context, sinceVersion int64) (int, error)
	ClearVersionLog(ctx context.Context) error

	// Bulk replacement (import)
	ClearRules(ctx context.Context) error
	ResetSequences(ctx context.Context) error

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error
	// ReadSnapshot runs fn in a read-only transaction that observes a single
	// committed state across all of its statements.
	ReadSnapshot(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
