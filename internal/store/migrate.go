package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration is one embedded schema change, identified by its filename
// prefix (e.g. "0001_initial").
type Migration struct {
	ID      string
	UpSQL   string
	DownSQL string
}

// AppliedMigration is one row of the schema_migrations ledger.
type AppliedMigration struct {
	ID        string
	AppliedAt time.Time
}

// Migrator applies the embedded migrations against a Postgres database.
type Migrator struct {
	db         *sql.DB
	migrations []Migration
}

// NewMigrator loads the embedded migrations and returns a Migrator bound
// to db.
func NewMigrator(db *sql.DB) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	migrations, err := loadMigrations()
	if err != nil {
		return nil, err
	}
	return &Migrator{db: db, migrations: migrations}, nil
}

// EnsureSchema creates the schema_migrations ledger table if absent.
func (m *Migrator) EnsureSchema(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id text PRIMARY KEY,
			applied_at timestamptz NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("store: create schema_migrations: %w", err)
	}
	return nil
}

// Up applies every pending migration in ID order, each in its own
// transaction, recording it in schema_migrations on success.
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	if err := m.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	applied, err := m.appliedIDs(ctx)
	if err != nil {
		return nil, err
	}

	var appliedNow []string
	for _, migration := range m.migrations {
		if applied[migration.ID] {
			continue
		}
		if strings.TrimSpace(migration.UpSQL) == "" {
			return appliedNow, fmt.Errorf("store: missing up migration for %s", migration.ID)
		}
		tx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			return appliedNow, fmt.Errorf("store: begin migration %s: %w", migration.ID, err)
		}
		if _, err := tx.ExecContext(ctx, migration.UpSQL); err != nil {
			_ = tx.Rollback()
			return appliedNow, fmt.Errorf("store: apply migration %s: %w", migration.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (id) VALUES ($1)`, migration.ID); err != nil {
			_ = tx.Rollback()
			return appliedNow, fmt.Errorf("store: record migration %s: %w", migration.ID, err)
		}
		if err := tx.Commit(); err != nil {
			return appliedNow, fmt.Errorf("store: commit migration %s: %w", migration.ID, err)
		}
		appliedNow = append(appliedNow, migration.ID)
	}
	return appliedNow, nil
}

// Status reports applied and pending migrations.
func (m *Migrator) Status(ctx context.Context) ([]AppliedMigration, []Migration, error) {
	if err := m.EnsureSchema(ctx); err != nil {
		return nil, nil, err
	}
	applied, err := m.appliedIDs(ctx)
	if err != nil {
		return nil, nil, err
	}
	rows, err := m.db.QueryContext(ctx, `SELECT id, applied_at FROM schema_migrations ORDER BY applied_at ASC`)
	if err != nil {
		return nil, nil, fmt.Errorf("store: list applied migrations: %w", err)
	}
	defer rows.Close()

	var appliedList []AppliedMigration
	for rows.Next() {
		var a AppliedMigration
		if err := rows.Scan(&a.ID, &a.AppliedAt); err != nil {
			return nil, nil, fmt.Errorf("store: scan applied migration: %w", err)
		}
		appliedList = append(appliedList, a)
	}

	var pending []Migration
	for _, migration := range m.migrations {
		if !applied[migration.ID] {
			pending = append(pending, migration)
		}
	}
	return appliedList, pending, nil
}

func (m *Migrator) appliedIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("store: list applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan applied migration id: %w", err)
		}
		applied[id] = true
	}
	return applied, rows.Err()
}

func loadMigrations() ([]Migration, error) {
	paths, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("store: list migrations: %w", err)
	}

	entries := map[string]*Migration{}
	for _, path := range paths {
		base := strings.TrimPrefix(path, "migrations/")
		var suffix string
		switch {
		case strings.HasSuffix(base, ".up.sql"):
			suffix = ".up.sql"
		case strings.HasSuffix(base, ".down.sql"):
			suffix = ".down.sql"
		default:
			continue
		}
		id := strings.TrimSuffix(base, suffix)
		entry := entries[id]
		if entry == nil {
			entry = &Migration{ID: id}
			entries[id] = entry
		}
		data, err := migrationsFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("store: read migration %s: %w", path, err)
		}
		if suffix == ".up.sql" {
			entry.UpSQL = string(data)
		} else {
			entry.DownSQL = string(data)
		}
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	migrations := make([]Migration, 0, len(ids))
	for _, id := range ids {
		migrations = append(migrations, *entries[id])
	}
	return migrations, nil
}
