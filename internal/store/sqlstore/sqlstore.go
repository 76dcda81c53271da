// Package sqlstore implements store.Store over database/sql. The postgres
// and sqlite packages open the connection, run their migrations and supply
// a Dialect; all queries are shared.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alfredjeanlab/tagrules/internal/model"
	"github.com/alfredjeanlab/tagrules/internal/store"
)

// Dialect captures the few places where the SQL backends differ.
type Dialect struct {
	// Name identifies the backend in logs and errors.
	Name string

	// LockVersionSQL reads the version row and excludes other writers until
	// the transaction ends.
	LockVersionSQL string

	// SnapshotTx are the options for ReadSnapshot transactions. Nil uses
	// the driver defaults.
	SnapshotTx *sql.TxOptions

	// ResetSequencesSQL realigns id generators after rows were inserted
	// with explicit ids.
	ResetSequencesSQL []string
}

// Store implements store.Store backed by a *sql.DB.
type Store struct {
	db      *sql.DB
	reader  *sql.DB
	dialect Dialect
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithReadPool runs ReadSnapshot transactions on r instead of the write
// pool. The store takes ownership of r and closes it in Close.
func WithReadPool(r *sql.DB) Option {
	return func(s *Store) { s.reader = r }
}

// New wraps an open database. The caller is responsible for migrations.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{db: db, dialect: dialect}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the dialect the store was built with.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close closes the underlying database connections.
func (s *Store) Close() error {
	if s.reader != nil {
		if err := s.reader.Close(); err != nil {
			s.db.Close()
			return err
		}
	}
	return s.db.Close()
}

func (s *Store) CreateGroup(ctx context.Context, g *model.Group) error {
	return queryCreateGroup(ctx, s.db, g)
}

func (s *Store) InsertGroup(ctx context.Context, g *model.Group) error {
	return queryInsertGroup(ctx, s.db, g)
}

func (s *Store) GetGroup(ctx context.Context, id int64) (*model.Group, error) {
	return queryGetGroup(ctx, s.db, id)
}

func (s *Store) ListGroups(ctx context.Context) ([]*model.Group, error) {
	return queryListGroups(ctx, s.db)
}

func (s *Store) UpdateGroup(ctx context.Context, g *model.Group) error {
	return queryUpdateGroup(ctx, s.db, g)
}

func (s *Store) SetLegacyParent(ctx context.Context, id int64, parentID *int64) error {
	return querySetLegacyParent(ctx, s.db, id, parentID)
}

func (s *Store) DeleteGroups(ctx context.Context, ids []int64) (int, error) {
	return queryDeleteGroups(ctx, s.db, ids)
}

func (s *Store) CreateKeyword(ctx context.Context, k *model.Keyword) error {
	return queryCreateKeyword(ctx, s.db, k)
}

func (s *Store) GetKeyword(ctx context.Context, id int64) (*model.Keyword, error) {
	return queryGetKeyword(ctx, s.db, id)
}

func (s *Store) ListKeywords(ctx context.Context) ([]*model.Keyword, error) {
	return queryListKeywords(ctx, s.db)
}

func (s *Store) SetKeywordEnabled(ctx context.Context, id int64, enabled bool) error {
	return querySetKeywordEnabled(ctx, s.db, id, enabled)
}

func (s *Store) DeleteKeyword(ctx context.Context, id int64) error {
	return queryDeleteKeyword(ctx, s.db, id)
}

func (s *Store) DeleteKeywordText(ctx context.Context, groupID int64, text string) (int, error) {
	return queryDeleteKeywordText(ctx, s.db, groupID, text)
}

func (s *Store) DeleteKeywordsForGroups(ctx context.Context, groupIDs []int64) (int, error) {
	return queryDeleteKeywordsForGroups(ctx, s.db, groupIDs)
}

func (s *Store) AddEdge(ctx context.Context, e model.Edge) error {
	return queryAddEdge(ctx, s.db, e)
}

func (s *Store) RemoveEdge(ctx context.Context, e model.Edge) (bool, error) {
	return queryRemoveEdge(ctx, s.db, e)
}

func (s *Store) RemoveIncomingEdges(ctx context.Context, childID int64) error {
	return queryRemoveIncomingEdges(ctx, s.db, childID)
}

func (s *Store) DeleteEdgesTouching(ctx context.Context, ids []int64) (int, error) {
	return queryDeleteEdgesTouching(ctx, s.db, ids)
}

func (s *Store) ListEdges(ctx context.Context) ([]model.Edge, error) {
	return queryListEdges(ctx, s.db)
}

func (s *Store) ReplaceClosure(ctx context.Context, rows []model.ClosureRow) error {
	return queryReplaceClosure(ctx, s.db, rows)
}

func (s *Store) ListClosure(ctx context.Context) ([]model.ClosureRow, error) {
	return queryListClosure(ctx, s.db)
}

func (s *Store) ListDescendants(ctx context.Context, ancestorID int64) ([]model.ClosureRow, error) {
	return queryListDescendants(ctx, s.db, ancestorID)
}

func (s *Store) GetVersion(ctx context.Context) (int64, error) {
	return queryGetVersion(ctx, s.db)
}

func (s *Store) GetRevision(ctx context.Context) (model.Revision, error) {
	return queryGetRevision(ctx, s.db)
}

// LockVersion outside a transaction only reads; the lock would be released
// as soon as the statement finished.
func (s *Store) LockVersion(ctx context.Context) (int64, error) {
	return queryGetVersion(ctx, s.db)
}

func (s *Store) SetVersion(ctx context.Context, version int64) error {
	return querySetVersion(ctx, s.db, version)
}

func (s *Store) BumpEpoch(ctx context.Context) error {
	return queryBumpEpoch(ctx, s.db)
}

func (s *Store) AppendVersionLog(ctx context.Context, e *model.VersionLogEntry) error {
	return queryAppendVersionLog(ctx, s.db, e)
}

func (s *Store) ListVersionLog(ctx context.Context, sinceVersion int64, limit int) ([]*model.VersionLogEntry, error) {
	return queryListVersionLog(ctx, s.db, sinceVersion, limit)
}

func (s *Store) CountModifiersSince(ctx context.Context, sinceVersion int64) (int, error) {
	return queryCountModifiersSince(ctx, s.db, sinceVersion)
}

func (s *Store) ClearVersionLog(ctx context.Context) error {
	return queryClearVersionLog(ctx, s.db)
}

func (s *Store) ClearRules(ctx context.Context) error {
	return queryClearRules(ctx, s.db)
}

func (s *Store) ResetSequences(ctx context.Context) error {
	return execAll(ctx, s.db, s.dialect.ResetSequencesSQL)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return runTx(ctx, s.db, s.dialect, nil, fn)
}

// ReadSnapshot runs fn in a transaction opened with the dialect's snapshot
// options, on the read pool when one is configured.
func (s *Store) ReadSnapshot(ctx context.Context, fn func(tx store.Store) error) error {
	db := s.db
	if s.reader != nil {
		db = s.reader
	}
	return runTx(ctx, db, s.dialect, s.dialect.SnapshotTx, fn)
}

func runTx(ctx context.Context, db *sql.DB, dialect Dialect, opts *sql.TxOptions, fn func(tx store.Store) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx, dialect: dialect}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx      *sql.Tx
	dialect Dialect
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) CreateGroup(ctx context.Context, g *model.Group) error {
	return queryCreateGroup(ctx, s.tx, g)
}

func (s *txStore) InsertGroup(ctx context.Context, g *model.Group) error {
	return queryInsertGroup(ctx, s.tx, g)
}

func (s *txStore) GetGroup(ctx context.Context, id int64) (*model.Group, error) {
	return queryGetGroup(ctx, s.tx, id)
}

func (s *txStore) ListGroups(ctx context.Context) ([]*model.Group, error) {
	return queryListGroups(ctx, s.tx)
}

func (s *txStore) UpdateGroup(ctx context.Context, g *model.Group) error {
	return queryUpdateGroup(ctx, s.tx, g)
}

func (s *txStore) SetLegacyParent(ctx context.Context, id int64, parentID *int64) error {
	return querySetLegacyParent(ctx, s.tx, id, parentID)
}

func (s *txStore) DeleteGroups(ctx context.Context, ids []int64) (int, error) {
	return queryDeleteGroups(ctx, s.tx, ids)
}

func (s *txStore) CreateKeyword(ctx context.Context, k *model.Keyword) error {
	return queryCreateKeyword(ctx, s.tx, k)
}

func (s *txStore) GetKeyword(ctx context.Context, id int64) (*model.Keyword, error) {
	return queryGetKeyword(ctx, s.tx, id)
}

func (s *txStore) ListKeywords(ctx context.Context) ([]*model.Keyword, error) {
	return queryListKeywords(ctx, s.tx)
}

func (s *txStore) SetKeywordEnabled(ctx context.Context, id int64, enabled bool) error {
	return querySetKeywordEnabled(ctx, s.tx, id, enabled)
}

func (s *txStore) DeleteKeyword(ctx context.Context, id int64) error {
	return queryDeleteKeyword(ctx, s.tx, id)
}

func (s *txStore) DeleteKeywordText(ctx context.Context, groupID int64, text string) (int, error) {
	return queryDeleteKeywordText(ctx, s.tx, groupID, text)
}

func (s *txStore) DeleteKeywordsForGroups(ctx context.Context, groupIDs []int64) (int, error) {
	return queryDeleteKeywordsForGroups(ctx, s.tx, groupIDs)
}

func (s *txStore) AddEdge(ctx context.Context, e model.Edge) error {
	return queryAddEdge(ctx, s.tx, e)
}

func (s *txStore) RemoveEdge(ctx context.Context, e model.Edge) (bool, error) {
	return queryRemoveEdge(ctx, s.tx, e)
}

func (s *txStore) RemoveIncomingEdges(ctx context.Context, childID int64) error {
	return queryRemoveIncomingEdges(ctx, s.tx, childID)
}

func (s *txStore) DeleteEdgesTouching(ctx context.Context, ids []int64) (int, error) {
	return queryDeleteEdgesTouching(ctx, s.tx, ids)
}

func (s *txStore) ListEdges(ctx context.Context) ([]model.Edge, error) {
	return queryListEdges(ctx, s.tx)
}

func (s *txStore) ReplaceClosure(ctx context.Context, rows []model.ClosureRow) error {
	return queryReplaceClosure(ctx, s.tx, rows)
}

func (s *txStore) ListClosure(ctx context.Context) ([]model.ClosureRow, error) {
	return queryListClosure(ctx, s.tx)
}

func (s *txStore) ListDescendants(ctx context.Context, ancestorID int64) ([]model.ClosureRow, error) {
	return queryListDescendants(ctx, s.tx, ancestorID)
}

func (s *txStore) GetVersion(ctx context.Context) (int64, error) {
	return queryGetVersion(ctx, s.tx)
}

func (s *txStore) GetRevision(ctx context.Context) (model.Revision, error) {
	return queryGetRevision(ctx, s.tx)
}

func (s *txStore) LockVersion(ctx context.Context) (int64, error) {
	return queryLockVersion(ctx, s.tx, s.dialect.LockVersionSQL)
}

func (s *txStore) SetVersion(ctx context.Context, version int64) error {
	return querySetVersion(ctx, s.tx, version)
}

func (s *txStore) BumpEpoch(ctx context.Context) error {
	return queryBumpEpoch(ctx, s.tx)
}

func (s *txStore) AppendVersionLog(ctx context.Context, e *model.VersionLogEntry) error {
	return queryAppendVersionLog(ctx, s.tx, e)
}

func (s *txStore) ListVersionLog(ctx context.Context, sinceVersion int64, limit int) ([]*model.VersionLogEntry, error) {
	return queryListVersionLog(ctx, s.tx, sinceVersion, limit)
}

func (s *txStore) CountModifiersSince(ctx context.Context, sinceVersion int64) (int, error) {
	return queryCountModifiersSince(ctx, s.tx, sinceVersion)
}

func (s *txStore) ClearVersionLog(ctx context.Context) error {
	return queryClearVersionLog(ctx, s.tx)
}

func (s *txStore) ClearRules(ctx context.Context) error {
	return queryClearRules(ctx, s.tx)
}

func (s *txStore) ResetSequences(ctx context.Context) error {
	return execAll(ctx, s.tx, s.dialect.ResetSequencesSQL)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// ReadSnapshot on a txStore reuses the existing transaction.
func (s *txStore) ReadSnapshot(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
