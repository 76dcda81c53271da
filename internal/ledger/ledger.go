// Package ledger owns the rules version counter and the append-only log of
// who changed what. Every structural mutation runs through GuardedMutate.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/tagrules/internal/metrics"
	"github.com/alfredjeanlab/tagrules/internal/model"
	"github.com/alfredjeanlab/tagrules/internal/store"
)

// ErrConflict is matched by every *ConflictError.
var ErrConflict = errors.New("version conflict")

// ErrNoChange may be returned by a MutateFunc that found nothing to apply.
// The transaction commits without bumping the version or logging.
var ErrNoChange = errors.New("no change")

// ConflictError reports that the caller's base version is stale.
type ConflictError struct {
	BaseVersion    int64
	CurrentVersion int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: base %d, current %d", e.BaseVersion, e.CurrentVersion)
}

// Is lets errors.Is(err, ErrConflict) match.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Mutation identifies a guarded write.
type Mutation struct {
	BaseVersion int64
	ClientID    string
	Operation   string
}

// MutateFunc applies a mutation using tx and returns the log details.
type MutateFunc func(ctx context.Context, tx store.Store) (details string, err error)

// Ledger guards mutations with a compare-and-swap on the version counter.
type Ledger struct {
	store store.Store
}

// New returns a ledger over s.
func New(s store.Store) *Ledger {
	return &Ledger{store: s}
}

// Current returns the committed version.
func (l *Ledger) Current(ctx context.Context) (int64, error) {
	return l.store.GetVersion(ctx)
}

// Revision returns the committed version together with the import epoch.
func (l *Ledger) Revision(ctx context.Context) (model.Revision, error) {
	return l.store.GetRevision(ctx)
}

// GuardedMutate runs fn in one transaction together with the version check,
// the increment and the log append. The version row is locked before it is
// compared, so two writers holding the same base version cannot both pass.
//
// On a stale base version nothing is written and a *ConflictError is
// returned. If fn fails the transaction rolls back and the version is left
// alone. It returns the new version, or the unchanged current version when fn
// returned ErrNoChange.
func (l *Ledger) GuardedMutate(ctx context.Context, m Mutation, fn MutateFunc) (int64, error) {
	if err := model.ValidateClientID(m.ClientID); err != nil {
		metrics.RecordMutation(m.Operation, metrics.OutcomeRejected)
		return 0, err
	}

	var version int64
	err := l.store.RunInTransaction(ctx, func(tx store.Store) error {
		current, err := tx.LockVersion(ctx)
		if err != nil {
			return err
		}
		if current != m.BaseVersion {
			return &ConflictError{BaseVersion: m.BaseVersion, CurrentVersion: current}
		}

		details, err := fn(ctx, tx)
		if errors.Is(err, ErrNoChange) {
			version = current
			return nil
		}
		if err != nil {
			return err
		}

		version = current + 1
		if err := tx.SetVersion(ctx, version); err != nil {
			return err
		}
		return tx.AppendVersionLog(ctx, &model.VersionLogEntry{
			VersionID: version,
			ClientID:  m.ClientID,
			Operation: m.Operation,
			Details:   details,
		})
	})
	metrics.RecordMutation(m.Operation, outcome(err))
	if err != nil {
		return 0, err
	}
	metrics.SetVersion(version)
	return version, nil
}

// Reset replaces the ledger state wholesale for a bulk import. fn rewrites
// the rule tables and returns the version to adopt; the log is cleared and a
// single entry is written at that version. The epoch is bumped so that a
// version number reused after the import never names the old rule set.
// Reset is not compared against a base version but still takes the version
// lock.
func (l *Ledger) Reset(ctx context.Context, clientID string, fn func(ctx context.Context, tx store.Store) (version int64, details string, err error)) (int64, error) {
	if err := model.ValidateClientID(clientID); err != nil {
		metrics.RecordMutation(model.OpImport, metrics.OutcomeRejected)
		return 0, err
	}

	var version int64
	err := l.store.RunInTransaction(ctx, func(tx store.Store) error {
		if _, err := tx.LockVersion(ctx); err != nil {
			return err
		}
		v, details, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		if v < 0 {
			return &model.ValidationError{Errors: []model.FieldError{{Field: "version_id", Message: "must not be negative"}}}
		}
		version = v
		if err := tx.SetVersion(ctx, version); err != nil {
			return err
		}
		if err := tx.BumpEpoch(ctx); err != nil {
			return err
		}
		if err := tx.ClearVersionLog(ctx); err != nil {
			return err
		}
		return tx.AppendVersionLog(ctx, &model.VersionLogEntry{
			VersionID: version,
			ClientID:  clientID,
			Operation: model.OpImport,
			Details:   details,
		})
	})
	metrics.RecordMutation(model.OpImport, outcome(err))
	if err != nil {
		return 0, err
	}
	metrics.SetVersion(version)
	return version, nil
}

// ModifiersSince counts the distinct clients that committed after base.
func (l *Ledger) ModifiersSince(ctx context.Context, base int64) (int, error) {
	return l.store.CountModifiersSince(ctx, base)
}

// History returns log entries with a version above since, oldest first.
func (l *Ledger) History(ctx context.Context, since int64, limit int) ([]*model.VersionLogEntry, error) {
	return l.store.ListVersionLog(ctx, since, limit)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeApplied
	case errors.Is(err, ErrConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrCycle),
		errors.Is(err, model.ErrInvalidReference), errors.Is(err, model.ErrInvalidInput):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}
