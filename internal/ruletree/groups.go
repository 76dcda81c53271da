package ruletree

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/tagrules/internal/ledger"
	"github.com/alfredjeanlab/tagrules/internal/model"
	"github.com/alfredjeanlab/tagrules/internal/store"
)

// CreateGroup adds a group, attached under parentID or at the root when
// parentID is nil or the root sentinel.
func (s *Service) CreateGroup(ctx context.Context, req Request, name string, parentID *int64, enabled bool) (*model.Group, int64, error) {
	name = clean(name)
	if err := model.ValidateGroupName(name); err != nil {
		return nil, 0, err
	}
	parent := normalizeParent(parentID)

	g := &model.Group{Name: name, Enabled: enabled}
	v, err := s.mutate(ctx, req, model.OpCreateGroup, func(ctx context.Context, tx store.Store) (string, error) {
		if parent != nil {
			if _, err := tx.GetGroup(ctx, *parent); err != nil {
				return "", err
			}
		}
		if err := tx.CreateGroup(ctx, g); err != nil {
			return "", err
		}
		h := hierarchyOf(tx)
		if parent != nil {
			if err := h.AddEdge(ctx, *parent, g.ID); err != nil {
				return "", err
			}
		} else if err := h.RebuildClosure(ctx); err != nil {
			return "", err
		}
		return fmt.Sprintf("id=%d name=%s parent=%s", g.ID, g.Name, parentString(parent)), nil
	})
	if err != nil {
		return nil, 0, err
	}
	if parent != nil {
		g.LegacyDisplayParentID = parent
	}
	return g, v, nil
}

// RenameGroup changes a group's name.
func (s *Service) RenameGroup(ctx context.Context, req Request, id int64, name string) (int64, error) {
	name = clean(name)
	if err := model.ValidateGroupName(name); err != nil {
		return 0, err
	}
	return s.updateGroup(ctx, req, model.OpRenameGroup, id, &name, nil)
}

// SetGroupEnabled toggles whether a group takes part in expansion.
func (s *Service) SetGroupEnabled(ctx context.Context, req Request, id int64, enabled bool) (int64, error) {
	return s.updateGroup(ctx, req, model.OpSetGroupEnabled, id, nil, &enabled)
}

// UpdateGroup sets the name, the enabled flag, or both in one mutation.
func (s *Service) UpdateGroup(ctx context.Context, req Request, id int64, name *string, enabled *bool) (int64, error) {
	if name == nil && enabled == nil {
		return 0, &model.ValidationError{Errors: []model.FieldError{{Field: "name", Message: "name or enabled is required"}}}
	}
	if name != nil {
		n := clean(*name)
		if err := model.ValidateGroupName(n); err != nil {
			return 0, err
		}
		name = &n
	}
	return s.updateGroup(ctx, req, model.OpUpdateGroup, id, name, enabled)
}

func (s *Service) updateGroup(ctx context.Context, req Request, op string, id int64, name *string, enabled *bool) (int64, error) {
	return s.mutate(ctx, req, op, func(ctx context.Context, tx store.Store) (string, error) {
		g, err := tx.GetGroup(ctx, id)
		if err != nil {
			return "", err
		}
		if name != nil {
			g.Name = *name
		}
		if enabled != nil {
			g.Enabled = *enabled
		}
		if err := tx.UpdateGroup(ctx, g); err != nil {
			return "", err
		}
		return fmt.Sprintf("id=%d name=%s enabled=%t", g.ID, g.Name, g.Enabled), nil
	})
}

// RelocateGroup detaches a group from all of its parents and attaches it
// under newParent, or at the root when newParent is nil or the root
// sentinel. Moving a group under itself or one of its descendants is
// rejected before anything is written.
func (s *Service) RelocateGroup(ctx context.Context, req Request, id int64, newParent *int64) (int64, error) {
	parent := normalizeParent(newParent)
	if err := model.ValidateParent(id, parent); err != nil {
		return 0, err
	}
	return s.mutate(ctx, req, model.OpRelocateGroup, func(ctx context.Context, tx store.Store) (string, error) {
		if err := relocate(ctx, tx, id, parent); err != nil {
			return "", err
		}
		return fmt.Sprintf("id=%d parent=%s", id, parentString(parent)), nil
	})
}

func relocate(ctx context.Context, tx store.Store, id int64, parent *int64) error {
	h := hierarchyOf(tx)
	if parent == nil {
		if _, err := tx.GetGroup(ctx, id); err != nil {
			return err
		}
	} else if err := h.CheckEdge(ctx, *parent, id); err != nil {
		return err
	}
	return h.Move(ctx, id, parent)
}

// LinkGroup adds an extra parent -> child edge, giving child another parent.
func (s *Service) LinkGroup(ctx context.Context, req Request, parent, child int64) (int64, error) {
	if parent == model.RootParentID {
		return 0, &model.ValidationError{Errors: []model.FieldError{{Field: "parent_id", Message: "must name a group"}}}
	}
	return s.mutate(ctx, req, model.OpLinkGroup, func(ctx context.Context, tx store.Store) (string, error) {
		if err := hierarchyOf(tx).AddEdge(ctx, parent, child); err != nil {
			return "", err
		}
		return fmt.Sprintf("parent=%d child=%d", parent, child), nil
	})
}

// UnlinkGroup removes the parent -> child edge. Removing an edge that does
// not exist succeeds without changing the version.
func (s *Service) UnlinkGroup(ctx context.Context, req Request, parent, child int64) (int64, error) {
	return s.mutate(ctx, req, model.OpUnlinkGroup, func(ctx context.Context, tx store.Store) (string, error) {
		for _, id := range []int64{parent, child} {
			if _, err := tx.GetGroup(ctx, id); err != nil {
				return "", err
			}
		}
		removed, err := hierarchyOf(tx).RemoveEdge(ctx, parent, child)
		if err != nil {
			return "", err
		}
		if !removed {
			return "", ledger.ErrNoChange
		}
		return fmt.Sprintf("parent=%d child=%d", parent, child), nil
	})
}

// DeleteGroup removes the group and everything reachable below it, including
// descendants that another parent also links to. It returns the number of
// groups removed.
func (s *Service) DeleteGroup(ctx context.Context, req Request, id int64) (int, int64, error) {
	var removed int
	v, err := s.mutate(ctx, req, model.OpDeleteGroup, func(ctx context.Context, tx store.Store) (string, error) {
		n, err := deleteSubtree(ctx, tx, id)
		if err != nil {
			return "", err
		}
		removed = n
		return fmt.Sprintf("id=%d removed=%d", id, n), nil
	})
	if err != nil {
		return 0, 0, err
	}
	return removed, v, nil
}

func deleteSubtree(ctx context.Context, tx store.Store, id int64) (int, error) {
	h := hierarchyOf(tx)
	ids, err := h.DescendantsOf(ctx, id)
	if err != nil {
		return 0, err
	}
	if _, err := tx.DeleteKeywordsForGroups(ctx, ids); err != nil {
		return 0, err
	}
	if _, err := tx.DeleteEdgesTouching(ctx, ids); err != nil {
		return 0, err
	}
	n, err := tx.DeleteGroups(ctx, ids)
	if err != nil {
		return 0, err
	}
	if err := h.RebuildClosure(ctx); err != nil {
		return 0, err
	}
	return n, nil
}
