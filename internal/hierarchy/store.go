package hierarchy

import (
	"context"
	"fmt"
	"time"

	"github.com/alfredjeanlab/tagrules/internal/metrics"
	"github.com/alfredjeanlab/tagrules/internal/model"
	"github.com/alfredjeanlab/tagrules/internal/store"
)

// Store edits the edge list of a store.Store and keeps the closure table and
// the legacy display parent in step with it. It is meant to be bound to the
// transaction of a guarded mutation so edges and closure commit together.
type Store struct {
	s store.Store
}

// New binds a hierarchy Store to s.
func New(s store.Store) *Store {
	return &Store{s: s}
}

// Graph loads the current groups and edges.
func (h *Store) Graph(ctx context.Context) (*Graph, error) {
	groups, err := h.s.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	edges, err := h.s.ListEdges(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	return NewGraph(ids, edges), nil
}

// CheckEdge reports whether parent -> child may be added: both groups must
// exist and the edge must not close a cycle.
func (h *Store) CheckEdge(ctx context.Context, parent, child int64) error {
	g, err := h.Graph(ctx)
	if err != nil {
		return err
	}
	return checkEdge(g, parent, child)
}

func checkEdge(g *Graph, parent, child int64) error {
	for _, id := range []int64{parent, child} {
		if !g.HasNode(id) {
			return fmt.Errorf("group %d: %w", id, model.ErrNotFound)
		}
	}
	if g.WouldCycle(parent, child) {
		return fmt.Errorf("edge %d -> %d: %w", parent, child, model.ErrCycle)
	}
	return nil
}

// AddEdge inserts parent -> child after the cycle check. Adding an existing
// edge is a no-op apart from the rebuild.
func (h *Store) AddEdge(ctx context.Context, parent, child int64) error {
	if err := h.CheckEdge(ctx, parent, child); err != nil {
		return err
	}
	if err := h.s.AddEdge(ctx, model.Edge{ParentID: parent, ChildID: child}); err != nil {
		return err
	}
	return h.RebuildClosure(ctx)
}

// RemoveEdge deletes parent -> child if present and reports whether it was.
func (h *Store) RemoveEdge(ctx context.Context, parent, child int64) (bool, error) {
	removed, err := h.s.RemoveEdge(ctx, model.Edge{ParentID: parent, ChildID: child})
	if err != nil {
		return false, err
	}
	return removed, h.RebuildClosure(ctx)
}

// Move detaches node from all of its parents and, when newParent is set and
// not the root sentinel, attaches it under newParent. Callers run CheckEdge
// for the new edge first.
func (h *Store) Move(ctx context.Context, node int64, newParent *int64) error {
	if err := h.s.RemoveIncomingEdges(ctx, node); err != nil {
		return err
	}
	if newParent != nil && *newParent != model.RootParentID {
		if err := h.s.AddEdge(ctx, model.Edge{ParentID: *newParent, ChildID: node}); err != nil {
			return err
		}
	}
	return h.RebuildClosure(ctx)
}

// DescendantsOf returns id and every group reachable from it over the edge
// list, in BFS order.
func (h *Store) DescendantsOf(ctx context.Context, id int64) ([]int64, error) {
	g, err := h.Graph(ctx)
	if err != nil {
		return nil, err
	}
	if !g.HasNode(id) {
		return nil, fmt.Errorf("group %d: %w", id, model.ErrNotFound)
	}
	return g.Descendants(id), nil
}

// RebuildClosure recomputes the closure table from the edge list and
// refreshes every group's legacy display parent.
func (h *Store) RebuildClosure(ctx context.Context) error {
	start := time.Now()

	groups, err := h.s.ListGroups(ctx)
	if err != nil {
		return err
	}
	edges, err := h.s.ListEdges(ctx)
	if err != nil {
		return err
	}
	ids := make([]int64, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	g := NewGraph(ids, edges)

	rows := g.Closure()
	if err := h.s.ReplaceClosure(ctx, rows); err != nil {
		return fmt.Errorf("rebuild closure: %w", err)
	}

	reps := g.RepresentativeParents()
	for _, grp := range groups {
		want := reps[grp.ID]
		if sameParent(grp.LegacyDisplayParentID, want) {
			continue
		}
		if err := h.s.SetLegacyParent(ctx, grp.ID, want); err != nil {
			return err
		}
	}

	metrics.ObserveClosureRebuild(time.Since(start), len(rows))
	return nil
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
