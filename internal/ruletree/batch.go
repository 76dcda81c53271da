package ruletree

import (
	"context"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/tagrules/internal/ledger"
	"github.com/alfredjeanlab/tagrules/internal/model"
	"github.com/alfredjeanlab/tagrules/internal/store"
)

// Batch applies action to every group in ids as one guarded mutation.
// Items fail independently: a missing group, a cycle or a self-reference is
// reported in BatchResult.Errors and the rest still apply. The version is
// bumped once, and only when at least one item was applied.
func (s *Service) Batch(ctx context.Context, req Request, ids []int64, action model.BatchAction, target *int64) (*model.BatchResult, error) {
	if !action.IsValid() {
		return nil, &model.ValidationError{Errors: []model.FieldError{{Field: "action", Message: fmt.Sprintf("unknown action %q", action)}}}
	}
	if len(ids) == 0 {
		return nil, &model.ValidationError{Errors: []model.FieldError{{Field: "ids", Message: "is required"}}}
	}
	parent := normalizeParent(target)

	res := &model.BatchResult{Errors: []model.BatchItemError{}}
	v, err := s.mutate(ctx, req, model.OpBatch, func(ctx context.Context, tx store.Store) (string, error) {
		if action == model.BatchMove && parent != nil {
			if _, err := tx.GetGroup(ctx, *parent); err != nil {
				return "", fmt.Errorf("target parent %d: %w", *parent, err)
			}
		}

		for _, id := range ids {
			err := applyBatchItem(ctx, tx, id, action, parent)
			if reason, ok := itemReason(err); ok {
				res.Errors = append(res.Errors, model.BatchItemError{ID: id, Reason: reason})
				continue
			}
			if err != nil {
				return "", fmt.Errorf("batch %s %d: %w", action, id, err)
			}
			res.Affected++
		}
		if res.Affected == 0 {
			return "", ledger.ErrNoChange
		}
		return fmt.Sprintf("action=%s ids=%d affected=%d target=%s", action, len(ids), res.Affected, parentString(parent)), nil
	})
	if err != nil {
		return nil, err
	}
	res.NewVersion = v
	res.Success = len(res.Errors) == 0
	return res, nil
}

func applyBatchItem(ctx context.Context, tx store.Store, id int64, action model.BatchAction, parent *int64) error {
	switch action {
	case model.BatchEnable, model.BatchDisable:
		g, err := tx.GetGroup(ctx, id)
		if err != nil {
			return err
		}
		g.Enabled = action == model.BatchEnable
		return tx.UpdateGroup(ctx, g)
	case model.BatchDelete:
		_, err := deleteSubtree(ctx, tx, id)
		return err
	case model.BatchMove:
		if err := model.ValidateParent(id, parent); err != nil {
			return err
		}
		return relocate(ctx, tx, id, parent)
	}
	return fmt.Errorf("unknown batch action %q", action)
}

// itemReason maps per-item failures to the reason reported to the caller.
// Any other error aborts the whole batch.
func itemReason(err error) (string, bool) {
	switch {
	case err == nil:
		return "", false
	case errors.Is(err, model.ErrNotFound):
		return "not found", true
	case errors.Is(err, model.ErrCycle):
		return "cycle rejected", true
	case errors.Is(err, model.ErrInvalidReference):
		return "invalid reference", true
	}
	return "", false
}
