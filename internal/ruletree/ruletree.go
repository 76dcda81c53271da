// Package ruletree owns groups and keywords. Every mutation goes through the
// ledger's compare-and-swap and edits the hierarchy inside the same
// transaction.
package ruletree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alfredjeanlab/tagrules/internal/hierarchy"
	"github.com/alfredjeanlab/tagrules/internal/ledger"
	"github.com/alfredjeanlab/tagrules/internal/model"
	"github.com/alfredjeanlab/tagrules/internal/store"
)

// Request carries the caller identity and the version its edit is based on.
type Request struct {
	ClientID    string `json:"client_id"`
	BaseVersion int64  `json:"base_version"`
}

// ConflictError is returned when Request.BaseVersion is stale. It carries
// what the caller needs to re-diff and retry.
type ConflictError struct {
	BaseVersion            int64
	CurrentVersion         int64
	LatestSnapshot         *model.Tree
	DistinctModifiersSince int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: base %d, current %d (%d other editors)",
		e.BaseVersion, e.CurrentVersion, e.DistinctModifiersSince)
}

// Is lets errors.Is(err, ledger.ErrConflict) match.
func (e *ConflictError) Is(target error) bool { return target == ledger.ErrConflict }

// Cache stores rendered snapshots by revision. Entries never need to be
// dropped: an import bumps the epoch, so no later revision reuses a key.
type Cache interface {
	Get(ctx context.Context, rev model.Revision) (*model.Tree, error)
	Put(ctx context.Context, tree *model.Tree) error
}

// Option configures a Service.
type Option func(*Service)

// WithCache serves snapshots from c when it has one for the current revision.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// Service implements the rule tree operations.
type Service struct {
	store  store.Store
	ledger *ledger.Ledger
	cache  Cache
}

// New returns a Service over s.
func New(s store.Store, opts ...Option) *Service {
	svc := &Service{store: s, ledger: ledger.New(s)}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Version returns the committed rules version.
func (s *Service) Version(ctx context.Context) (int64, error) {
	return s.ledger.Current(ctx)
}

// Revision returns the committed version and import epoch.
func (s *Service) Revision(ctx context.Context) (model.Revision, error) {
	return s.ledger.Revision(ctx)
}

// History returns version log entries after since.
func (s *Service) History(ctx context.Context, since int64, limit int) ([]*model.VersionLogEntry, error) {
	return s.ledger.History(ctx, since, limit)
}

// mutate runs fn as one guarded mutation and turns a ledger conflict into a
// *ConflictError carrying the latest snapshot.
func (s *Service) mutate(ctx context.Context, req Request, op string, fn ledger.MutateFunc) (int64, error) {
	v, err := s.ledger.GuardedMutate(ctx, ledger.Mutation{
		BaseVersion: req.BaseVersion,
		ClientID:    req.ClientID,
		Operation:   op,
	}, fn)
	var conflict *ledger.ConflictError
	if errors.As(err, &conflict) {
		return 0, s.conflict(ctx, conflict)
	}
	return v, err
}

func (s *Service) conflict(ctx context.Context, c *ledger.ConflictError) error {
	ce := &ConflictError{BaseVersion: c.BaseVersion, CurrentVersion: c.CurrentVersion}

	tree, err := s.Snapshot(ctx)
	if err != nil {
		slog.Warn("conflict: load latest snapshot", "error", err)
	} else {
		ce.LatestSnapshot = tree
		ce.CurrentVersion = tree.Version
	}

	n, err := s.ledger.ModifiersSince(ctx, c.BaseVersion)
	if err != nil {
		slog.Warn("conflict: count modifiers", "error", err)
	} else {
		ce.DistinctModifiersSince = n
	}
	return ce
}

// Snapshot returns the rooted forest at the committed version. Groups,
// keywords and edges are read in one snapshot transaction.
func (s *Service) Snapshot(ctx context.Context) (*model.Tree, error) {
	if s.cache != nil {
		if rev, err := s.store.GetRevision(ctx); err == nil {
			if tree, err := s.cache.Get(ctx, rev); err == nil {
				return tree, nil
			}
		}
	}

	var tree *model.Tree
	err := s.store.ReadSnapshot(ctx, func(tx store.Store) error {
		rev, err := tx.GetRevision(ctx)
		if err != nil {
			return err
		}
		groups, err := tx.ListGroups(ctx)
		if err != nil {
			return err
		}
		keywords, err := tx.ListKeywords(ctx)
		if err != nil {
			return err
		}
		edges, err := tx.ListEdges(ctx)
		if err != nil {
			return err
		}
		tree = model.BuildTree(rev.Version, groups, keywords, edges)
		tree.Epoch = rev.Epoch
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, tree); err != nil {
			slog.Warn("failed to cache snapshot", "revision", tree.Revision().String(), "error", err)
		}
	}
	return tree, nil
}

// Stats returns row counts and the version from one snapshot.
func (s *Service) Stats(ctx context.Context) (*model.Stats, error) {
	var st model.Stats
	err := s.store.ReadSnapshot(ctx, func(tx store.Store) error {
		v, err := tx.GetVersion(ctx)
		if err != nil {
			return err
		}
		groups, err := tx.ListGroups(ctx)
		if err != nil {
			return err
		}
		keywords, err := tx.ListKeywords(ctx)
		if err != nil {
			return err
		}
		edges, err := tx.ListEdges(ctx)
		if err != nil {
			return err
		}
		st = model.Stats{Groups: len(groups), Keywords: len(keywords), Edges: len(edges), Version: v}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return &st, nil
}

// normalizeParent maps the root sentinel to nil.
func normalizeParent(p *int64) *int64 {
	if p == nil || *p == model.RootParentID {
		return nil
	}
	v := *p
	return &v
}

func parentString(p *int64) string {
	if p == nil {
		return "root"
	}
	return fmt.Sprint(*p)
}

func hierarchyOf(tx store.Store) *hierarchy.Store {
	return hierarchy.New(tx)
}

func clean(s string) string {
	return strings.TrimSpace(s)
}
