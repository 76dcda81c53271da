// Package postgres opens the rule store on PostgreSQL.
package postgres

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/tagrules/internal/store/sqlstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Dialect is the PostgreSQL flavour of the shared queries. The version row
// is locked with FOR UPDATE so concurrent writers queue behind each other,
// and snapshots run at REPEATABLE READ.
var Dialect = sqlstore.Dialect{
	Name:           "postgres",
	LockVersionSQL: `SELECT version FROM rules_version WHERE id = 1 FOR UPDATE`,
	SnapshotTx:     &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
	ResetSequencesSQL: []string{
		`SELECT setval(pg_get_serial_sequence('rule_groups', 'id'), COALESCE((SELECT MAX(id) FROM rule_groups), 0) + 1, false)`,
		`SELECT setval(pg_get_serial_sequence('rule_keywords', 'id'), COALESCE((SELECT MAX(id) FROM rule_keywords), 0) + 1, false)`,
	},
}

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*sqlstore.Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return sqlstore.New(db, Dialect), nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}
