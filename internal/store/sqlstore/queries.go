package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alfredjeanlab/tagrules/internal/model"
)

const (
	groupColumns   = `id, name, enabled, legacy_parent_id`
	keywordColumns = `id, group_id, keyword, enabled`
	logColumns     = `version_id, client_id, operation, details, created_at`

	// closureChunk bounds the rows per multi-row INSERT so the statement
	// stays under the backends' bind parameter limits.
	closureChunk = 300

	defaultLogLimit = 100
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// --- groups ---

func queryCreateGroup(ctx context.Context, db executor, g *model.Group) error {
	err := db.QueryRowContext(ctx,
		`INSERT INTO rule_groups (name, enabled, legacy_parent_id) VALUES ($1, $2, $3) RETURNING id`,
		g.Name, g.Enabled, nullInt64(g.LegacyDisplayParentID),
	).Scan(&g.ID)
	if err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

func queryInsertGroup(ctx context.Context, db executor, g *model.Group) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO rule_groups (id, name, enabled, legacy_parent_id) VALUES ($1, $2, $3, $4)`,
		g.ID, g.Name, g.Enabled, nullInt64(g.LegacyDisplayParentID),
	)
	if err != nil {
		return fmt.Errorf("insert group %d: %w", g.ID, err)
	}
	return nil
}

func queryGetGroup(ctx context.Context, db executor, id int64) (*model.Group, error) {
	row := db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM rule_groups WHERE id = $1`, id)
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get group %d: %w", id, err)
	}
	return g, nil
}

func queryListGroups(ctx context.Context, db executor) ([]*model.Group, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+groupColumns+` FROM rule_groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()
	return scanGroups(rows)
}

func queryUpdateGroup(ctx context.Context, db executor, g *model.Group) error {
	res, err := db.ExecContext(ctx,
		`UPDATE rule_groups SET name = $2, enabled = $3 WHERE id = $1`,
		g.ID, g.Name, g.Enabled,
	)
	if err != nil {
		return fmt.Errorf("update group %d: %w", g.ID, err)
	}
	return requireAffected(res, "group", g.ID)
}

func querySetLegacyParent(ctx context.Context, db executor, id int64, parentID *int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE rule_groups SET legacy_parent_id = $2 WHERE id = $1`,
		id, nullInt64(parentID),
	)
	if err != nil {
		return fmt.Errorf("set legacy parent of %d: %w", id, err)
	}
	return nil
}

func queryDeleteGroups(ctx context.Context, db executor, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	in, args := inList(ids, 1)
	res, err := db.ExecContext(ctx, `DELETE FROM rule_groups WHERE id IN (`+in+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete groups: %w", err)
	}
	return affected(res)
}

// --- keywords ---

func queryCreateKeyword(ctx context.Context, db executor, k *model.Keyword) error {
	err := db.QueryRowContext(ctx,
		`INSERT INTO rule_keywords (group_id, keyword, enabled) VALUES ($1, $2, $3) RETURNING id`,
		k.GroupID, k.Text, k.Enabled,
	).Scan(&k.ID)
	if err != nil {
		return fmt.Errorf("create keyword: %w", err)
	}
	return nil
}

func queryGetKeyword(ctx context.Context, db executor, id int64) (*model.Keyword, error) {
	row := db.QueryRowContext(ctx, `SELECT `+keywordColumns+` FROM rule_keywords WHERE id = $1`, id)
	k, err := scanKeyword(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("keyword %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get keyword %d: %w", id, err)
	}
	return k, nil
}

func queryListKeywords(ctx context.Context, db executor) ([]*model.Keyword, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+keywordColumns+` FROM rule_keywords ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	defer rows.Close()
	return scanKeywords(rows)
}

func querySetKeywordEnabled(ctx context.Context, db executor, id int64, enabled bool) error {
	res, err := db.ExecContext(ctx, `UPDATE rule_keywords SET enabled = $2 WHERE id = $1`, id, enabled)
	if err != nil {
		return fmt.Errorf("set keyword %d enabled: %w", id, err)
	}
	return requireAffected(res, "keyword", id)
}

func queryDeleteKeyword(ctx context.Context, db executor, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM rule_keywords WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete keyword %d: %w", id, err)
	}
	return requireAffected(res, "keyword", id)
}

func queryDeleteKeywordText(ctx context.Context, db executor, groupID int64, text string) (int, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM rule_keywords WHERE group_id = $1 AND keyword = $2`,
		groupID, text,
	)
	if err != nil {
		return 0, fmt.Errorf("delete keyword %q from group %d: %w", text, groupID, err)
	}
	return affected(res)
}

func queryDeleteKeywordsForGroups(ctx context.Context, db executor, groupIDs []int64) (int, error) {
	if len(groupIDs) == 0 {
		return 0, nil
	}
	in, args := inList(groupIDs, 1)
	res, err := db.ExecContext(ctx, `DELETE FROM rule_keywords WHERE group_id IN (`+in+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete keywords: %w", err)
	}
	return affected(res)
}

// --- edges ---

func queryAddEdge(ctx context.Context, db executor, e model.Edge) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO rule_edges (parent_id, child_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		e.ParentID, e.ChildID,
	)
	if err != nil {
		return fmt.Errorf("add edge %d->%d: %w", e.ParentID, e.ChildID, err)
	}
	return nil
}

func queryRemoveEdge(ctx context.Context, db executor, e model.Edge) (bool, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM rule_edges WHERE parent_id = $1 AND child_id = $2`,
		e.ParentID, e.ChildID,
	)
	if err != nil {
		return false, fmt.Errorf("remove edge %d->%d: %w", e.ParentID, e.ChildID, err)
	}
	n, err := affected(res)
	return n > 0, err
}

func queryRemoveIncomingEdges(ctx context.Context, db executor, childID int64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM rule_edges WHERE child_id = $1`, childID); err != nil {
		return fmt.Errorf("remove incoming edges of %d: %w", childID, err)
	}
	return nil
}

func queryDeleteEdgesTouching(ctx context.Context, db executor, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	parents, args := inList(ids, 1)
	children, more := inList(ids, len(ids)+1)
	args = append(args, more...)
	res, err := db.ExecContext(ctx,
		`DELETE FROM rule_edges WHERE parent_id IN (`+parents+`) OR child_id IN (`+children+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("delete edges: %w", err)
	}
	return affected(res)
}

func queryListEdges(ctx context.Context, db executor) ([]model.Edge, error) {
	rows, err := db.QueryContext(ctx, `SELECT parent_id, child_id FROM rule_edges ORDER BY parent_id, child_id`)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	var edges []model.Edge
	for rows.Next() {
		var e model.Edge
		if err := rows.Scan(&e.ParentID, &e.ChildID); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// --- closure ---

func queryReplaceClosure(ctx context.Context, db executor, rows []model.ClosureRow) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM rule_closure`); err != nil {
		return fmt.Errorf("clear closure: %w", err)
	}
	for start := 0; start < len(rows); start += closureChunk {
		end := min(start+closureChunk, len(rows))
		chunk := rows[start:end]

		values := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)*3)
		for i, r := range chunk {
			n := i * 3
			values[i] = fmt.Sprintf("($%d, $%d, $%d)", n+1, n+2, n+3)
			args = append(args, r.AncestorID, r.DescendantID, r.Depth)
		}
		q := `INSERT INTO rule_closure (ancestor_id, descendant_id, depth) VALUES ` + strings.Join(values, ", ")
		if _, err := db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert closure rows: %w", err)
		}
	}
	return nil
}

func queryListClosure(ctx context.Context, db executor) ([]model.ClosureRow, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT ancestor_id, descendant_id, depth FROM rule_closure ORDER BY ancestor_id, descendant_id`)
	if err != nil {
		return nil, fmt.Errorf("list closure: %w", err)
	}
	defer rows.Close()
	return scanClosureRows(rows)
}

func queryListDescendants(ctx context.Context, db executor, ancestorID int64) ([]model.ClosureRow, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT ancestor_id, descendant_id, depth FROM rule_closure WHERE ancestor_id = $1 ORDER BY depth, descendant_id`,
		ancestorID,
	)
	if err != nil {
		return nil, fmt.Errorf("list descendants of %d: %w", ancestorID, err)
	}
	defer rows.Close()
	return scanClosureRows(rows)
}

// --- version ledger ---

func queryGetVersion(ctx context.Context, db executor) (int64, error) {
	var v int64
	if err := db.QueryRowContext(ctx, `SELECT version FROM rules_version WHERE id = 1`).Scan(&v); err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return v, nil
}

func queryGetRevision(ctx context.Context, db executor) (model.Revision, error) {
	var r model.Revision
	if err := db.QueryRowContext(ctx, `SELECT version, epoch FROM rules_version WHERE id = 1`).Scan(&r.Version, &r.Epoch); err != nil {
		return model.Revision{}, fmt.Errorf("get revision: %w", err)
	}
	return r, nil
}

func queryLockVersion(ctx context.Context, db executor, lockSQL string) (int64, error) {
	var v int64
	if err := db.QueryRowContext(ctx, lockSQL).Scan(&v); err != nil {
		return 0, fmt.Errorf("lock version: %w", err)
	}
	return v, nil
}

func querySetVersion(ctx context.Context, db executor, version int64) error {
	if _, err := db.ExecContext(ctx, `UPDATE rules_version SET version = $1 WHERE id = 1`, version); err != nil {
		return fmt.Errorf("set version: %w", err)
	}
	return nil
}

func queryBumpEpoch(ctx context.Context, db executor) error {
	if _, err := db.ExecContext(ctx, `UPDATE rules_version SET epoch = epoch + 1 WHERE id = 1`); err != nil {
		return fmt.Errorf("bump epoch: %w", err)
	}
	return nil
}

func queryAppendVersionLog(ctx context.Context, db executor, e *model.VersionLogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO rules_version_log (`+logColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		e.VersionID, e.ClientID, e.Operation, e.Details, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append version log %d: %w", e.VersionID, err)
	}
	return nil
}

func queryListVersionLog(ctx context.Context, db executor, sinceVersion int64, limit int) ([]*model.VersionLogEntry, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+logColumns+` FROM rules_version_log WHERE version_id > $1 ORDER BY version_id LIMIT $2`,
		sinceVersion, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list version log: %w", err)
	}
	defer rows.Close()
	return scanLogEntries(rows)
}

func queryCountModifiersSince(ctx context.Context, db executor, sinceVersion int64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT client_id) FROM rules_version_log WHERE version_id > $1`,
		sinceVersion,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count modifiers: %w", err)
	}
	return n, nil
}

func queryClearVersionLog(ctx context.Context, db executor) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM rules_version_log`); err != nil {
		return fmt.Errorf("clear version log: %w", err)
	}
	return nil
}

// --- bulk ---

func queryClearRules(ctx context.Context, db executor) error {
	return execAll(ctx, db, []string{
		`DELETE FROM rule_closure`,
		`DELETE FROM rule_edges`,
		`DELETE FROM rule_keywords`,
		`DELETE FROM rule_groups`,
	})
}

func execAll(ctx context.Context, db executor, stmts []string) error {
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("exec %q: %w", q, err)
		}
	}
	return nil
}

// --- helpers ---

// inList renders "$n, $n+1, ..." for ids starting at placeholder first.
func inList(ids []int64, first int) (string, []any) {
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = fmt.Sprintf("$%d", first+i)
		args[i] = id
	}
	return strings.Join(ph, ", "), args
}

func affected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func requireAffected(res sql.Result, kind string, id int64) error {
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, model.ErrNotFound)
	}
	return nil
}
