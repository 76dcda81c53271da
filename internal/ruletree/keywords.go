package ruletree

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/tagrules/internal/model"
	"github.com/alfredjeanlab/tagrules/internal/store"
)

// AddKeyword attaches text to a group. An existing keyword with the same
// text in that group is replaced, so the new row is always enabled.
func (s *Service) AddKeyword(ctx context.Context, req Request, groupID int64, text string) (*model.Keyword, int64, error) {
	text = clean(text)
	if err := model.ValidateKeywordText(text); err != nil {
		return nil, 0, err
	}
	k := &model.Keyword{GroupID: groupID, Text: text, Enabled: true}
	v, err := s.mutate(ctx, req, model.OpAddKeyword, func(ctx context.Context, tx store.Store) (string, error) {
		if _, err := tx.GetGroup(ctx, groupID); err != nil {
			return "", err
		}
		if _, err := tx.DeleteKeywordText(ctx, groupID, text); err != nil {
			return "", err
		}
		if err := tx.CreateKeyword(ctx, k); err != nil {
			return "", err
		}
		return fmt.Sprintf("id=%d group=%d text=%s", k.ID, groupID, text), nil
	})
	if err != nil {
		return nil, 0, err
	}
	return k, v, nil
}

// RemoveKeyword deletes a keyword by id.
func (s *Service) RemoveKeyword(ctx context.Context, req Request, id int64) (int64, error) {
	return s.mutate(ctx, req, model.OpRemoveKeyword, func(ctx context.Context, tx store.Store) (string, error) {
		k, err := tx.GetKeyword(ctx, id)
		if err != nil {
			return "", err
		}
		if err := tx.DeleteKeyword(ctx, id); err != nil {
			return "", err
		}
		return fmt.Sprintf("id=%d group=%d text=%s", id, k.GroupID, k.Text), nil
	})
}

// RemoveKeywordText deletes the keyword with the given text from a group.
func (s *Service) RemoveKeywordText(ctx context.Context, req Request, groupID int64, text string) (int64, error) {
	text = clean(text)
	if err := model.ValidateKeywordText(text); err != nil {
		return 0, err
	}
	return s.mutate(ctx, req, model.OpRemoveKeyword, func(ctx context.Context, tx store.Store) (string, error) {
		n, err := tx.DeleteKeywordText(ctx, groupID, text)
		if err != nil {
			return "", err
		}
		if n == 0 {
			return "", fmt.Errorf("keyword %q in group %d: %w", text, groupID, model.ErrNotFound)
		}
		return fmt.Sprintf("group=%d text=%s", groupID, text), nil
	})
}

// SetKeywordEnabled toggles a keyword's flag. Expansion is gated by groups
// only, so the flag is informational for editors.
func (s *Service) SetKeywordEnabled(ctx context.Context, req Request, id int64, enabled bool) (int64, error) {
	return s.mutate(ctx, req, model.OpSetKeywordEnabled, func(ctx context.Context, tx store.Store) (string, error) {
		if _, err := tx.GetKeyword(ctx, id); err != nil {
			return "", err
		}
		if err := tx.SetKeywordEnabled(ctx, id, enabled); err != nil {
			return "", err
		}
		return fmt.Sprintf("id=%d enabled=%t", id, enabled), nil
	})
}
