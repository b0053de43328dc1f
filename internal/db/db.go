// Package db keeps a history of assembled topologies in SQLite so that runs
// can be compared after the fact.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DefaultPath is the default database location
const DefaultPath = "/var/lib/disktopo/snapshots.db"

// ErrSnapshotNotFound is returned when no snapshot matches an id
var ErrSnapshotNotFound = errors.New("snapshot not found")

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
	path string
}

// New opens or creates the SQLite database at the given path
func New(path string) (*DB, error) {
	if path == "" {
		path = DefaultPath
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	db := &DB{conn: conn, path: path}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.conn.Close()
}

// Path returns the database file path
func (d *DB) Path() string {
	return d.path
}

// migrate applies the migrations newer than the recorded schema version
func (d *DB) migrate() error {
	_, err := d.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	var version int
	err = d.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return err
	}

	migrations := []string{
		migrationV1,
		migrationV2,
	}

	for i, migration := range migrations {
		v := i + 1
		if v <= version {
			continue
		}

		tx, err := d.conn.Begin()
		if err != nil {
			return err
		}

		if _, err := tx.Exec(migration); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d failed: %w", v, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", v); err != nil {
			tx.Rollback()
			return err
		}

		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

// migrationV1 creates the snapshot tables
const migrationV1 = `
-- One row per aggregation run
CREATE TABLE IF NOT EXISTS snapshots (
    id TEXT PRIMARY KEY,
    platform TEXT NOT NULL,
    object_count INTEGER NOT NULL DEFAULT 0,
    error_count INTEGER NOT NULL DEFAULT 0,
    errors_json TEXT,
    taken_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_time ON snapshots(taken_at);

-- Storage objects as they were at snapshot time
CREATE TABLE IF NOT EXISTS snapshot_objects (
    id INTEGER PRIMARY KEY,
    snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    kind TEXT NOT NULL,
    host_device TEXT,
    raw_capacity TEXT,
    uuid TEXT,
    persistent_id TEXT,
    object_json TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_objects_snapshot ON snapshot_objects(snapshot_id);
CREATE INDEX IF NOT EXISTS idx_objects_name ON snapshot_objects(name);
`

// migrationV2 records which host a snapshot was taken on, so a shared
// database can hold several machines
const migrationV2 = `
ALTER TABLE snapshots ADD COLUMN hostname TEXT;

CREATE INDEX IF NOT EXISTS idx_objects_uuid ON snapshot_objects(uuid);
`
