package sqlstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/alfredjeanlab/tagrules/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanGroup scans a single row in groupColumns order.
func scanGroup(row scannable) (*model.Group, error) {
	var (
		g      model.Group
		parent sql.NullInt64
	)
	if err := row.Scan(&g.ID, &g.Name, &g.Enabled, &parent); err != nil {
		return nil, err
	}
	if parent.Valid {
		p := parent.Int64
		g.LegacyDisplayParentID = &p
	}
	return &g, nil
}

func scanGroups(rows *sql.Rows) ([]*model.Group, error) {
	var groups []*model.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// scanKeyword scans a single row in keywordColumns order.
func scanKeyword(row scannable) (*model.Keyword, error) {
	var k model.Keyword
	if err := row.Scan(&k.ID, &k.GroupID, &k.Text, &k.Enabled); err != nil {
		return nil, err
	}
	return &k, nil
}

func scanKeywords(rows *sql.Rows) ([]*model.Keyword, error) {
	var keywords []*model.Keyword
	for rows.Next() {
		k, err := scanKeyword(rows)
		if err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		keywords = append(keywords, k)
	}
	return keywords, rows.Err()
}

func scanClosureRows(rows *sql.Rows) ([]model.ClosureRow, error) {
	var out []model.ClosureRow
	for rows.Next() {
		var r model.ClosureRow
		if err := rows.Scan(&r.AncestorID, &r.DescendantID, &r.Depth); err != nil {
			return nil, fmt.Errorf("scan closure row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// scanLogEntries scans rows in logColumns order. created_at is stored as
// Unix milliseconds so both backends share one representation.
func scanLogEntries(rows *sql.Rows) ([]*model.VersionLogEntry, error) {
	var out []*model.VersionLogEntry
	for rows.Next() {
		var (
			e       model.VersionLogEntry
			details sql.NullString
			millis  int64
		)
		if err := rows.Scan(&e.VersionID, &e.ClientID, &e.Operation, &details, &millis); err != nil {
			return nil, fmt.Errorf("scan version log: %w", err)
		}
		e.Details = details.String
		e.CreatedAt = time.UnixMilli(millis).UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}

// nullInt64 converts an optional id to sql.NullInt64.
func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}
