// Package store implements the Index Store (spec.md §4.1): the single sqlite-backed
// source of truth for every entity family the code index tracks. Connection setup and
// migration bootstrap follow the teacher's internal/store/local_core.go conventions —
// a single writer connection, WAL journaling, and a busy timeout rather than retry loops.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"codeindex/internal/logging"
)

// Store wraps the single sqlite connection backing the index. All access goes through
// its exported methods; there is no separate read-replica or connection pool, matching
// spec.md §6's single-writer requirement.
type Store struct {
	db *sql.DB
}

// Open creates or connects to the sqlite database at path, applying the pragmas
// spec.md §6 requires (WAL journaling, a busy timeout instead of SQLITE_BUSY errors)
// and running any pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY from concurrent goroutines within
	// this process; WAL mode lets readers (e.g. the browse server) proceed independently.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for packages (sync, graph, tracer) that need to
// compose their own statements or open explicit transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate applies schema.go's DDL and records the schema version in metadata. All DDL
// is idempotent (CREATE TABLE/INDEX IF NOT EXISTS), so this is safe to call on every
// startup, matching the teacher's migrations.go forward-only, catalog-checked approach.
func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	version, err := schemaVersion(ctx, tx)
	if err != nil {
		return err
	}
	if version > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than this binary supports (%d)", version, CurrentSchemaVersion)
	}
	if version < CurrentSchemaVersion {
		logging.Store("migrating schema from version %d to %d", version, CurrentSchemaVersion)
		if err := setSchemaVersion(ctx, tx, CurrentSchemaVersion); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// tableNames lists every table schema.go creates, in an order safe to drop given the
// foreign keys between them (children before parents).
var tableNames = []string{
	"sync_dirty", "feature_flows", "features", "flow_steps", "flows",
	"interaction_definition_links", "interactions", "module_members", "modules",
	"relationship_annotations", "usages", "symbols", "references", "definitions",
	"files", "metadata",
}

// Reset drops and recreates the full schema, for the `index` subcommand's full
// re-index (spec.md §6: "drops and recreates schema").
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, name := range tableNames {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, name)); err != nil {
			return fmt.Errorf("drop table %s: %w", name, err)
		}
	}
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if err := setSchemaVersion(ctx, tx, CurrentSchemaVersion); err != nil {
		return err
	}
	return tx.Commit()
}

func schemaVersion(ctx context.Context, tx *sql.Tx) (int, error) {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = 'schema_version'`).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var version int
	if _, err := fmt.Sscanf(raw, "%d", &version); err != nil {
		return 0, fmt.Errorf("parse schema_version %q: %w", raw, err)
	}
	return version, nil
}

func setSchemaVersion(ctx context.Context, tx *sql.Tx, version int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		fmt.Sprintf("%d", version))
	return err
}

// WithTx runs fn inside a single transaction and commits on success. The transaction
// begins in SQLite's default deferred mode: it takes the database write lock at its
// first write, not when it begins, so it is not exclusive from BEGIN. The Sync Engine
// (spec.md §4.2) uses this to run every phase after parsing atomically with no
// suspension points.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
