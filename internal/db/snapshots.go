package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/sigreer/disktopo/internal/device"
	"github.com/sigreer/disktopo/internal/topology"
)

// Snapshot describes one recorded aggregation run
type Snapshot struct {
	ID          string    `json:"id" yaml:"id"`
	Platform    string    `json:"platform" yaml:"platform"`
	Hostname    string    `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	ObjectCount int       `json:"object_count" yaml:"object_count"`
	ErrorCount  int       `json:"error_count" yaml:"error_count"`
	Errors      []string  `json:"errors,omitempty" yaml:"errors,omitempty"`
	TakenAt     time.Time `json:"taken_at" yaml:"taken_at"`
}

// ObjectRecord is one storage object as stored in a snapshot
type ObjectRecord struct {
	SnapshotID string
	TakenAt    time.Time
	Object     *device.StorageObject
}

// RecordSnapshot stores res under a new snapshot id
func (d *DB) RecordSnapshot(res *topology.Result) (*Snapshot, error) {
	if res == nil {
		return nil, errors.New("nothing to record")
	}

	snap := &Snapshot{
		ID:          uuid.NewString(),
		Platform:    string(res.Platform),
		ObjectCount: len(res.Objects),
		ErrorCount:  len(res.Errors),
		Errors:      res.Errors,
		TakenAt:     time.Now().UTC(),
	}
	if host, err := os.Hostname(); err == nil {
		snap.Hostname = host
	}

	errorsJSON, err := json.Marshal(res.Errors)
	if err != nil {
		return nil, fmt.Errorf("failed to encode errors: %w", err)
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO snapshots (id, platform, hostname, object_count, error_count, errors_json, taken_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, snap.ID, snap.Platform, nullString(snap.Hostname), snap.ObjectCount, snap.ErrorCount,
		string(errorsJSON), snap.TakenAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO snapshot_objects (
			snapshot_id, name, kind, host_device, raw_capacity, uuid, persistent_id, object_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	for _, name := range res.Objects.Names() {
		obj := res.Objects[name]
		data, err := json.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", name, err)
		}
		_, err = stmt.Exec(snap.ID, obj.Name, string(obj.Kind), nullString(obj.HostDevice),
			nullString(obj.RawCapacity), nullString(obj.UUID), nullString(obj.ID), string(data))
		if err != nil {
			return nil, fmt.Errorf("failed to insert %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return snap, nil
}

// ListSnapshots returns the most recent snapshots first. limit <= 0 returns
// all of them.
func (d *DB) ListSnapshots(limit int) ([]Snapshot, error) {
	query := `
		SELECT id, platform, hostname, object_count, error_count, errors_json, taken_at
		FROM snapshots ORDER BY taken_at DESC, rowid DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *snap)
	}
	return snaps, rows.Err()
}

// GetSnapshot returns a snapshot and its objects. id may be any unique
// prefix of the full snapshot id.
func (d *DB) GetSnapshot(id string) (*Snapshot, device.Topology, error) {
	rows, err := d.conn.Query(`
		SELECT id, platform, hostname, object_count, error_count, errors_json, taken_at
		FROM snapshots WHERE substr(id, 1, length(?)) = ? LIMIT 2
	`, id, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	var matches []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			rows.Close()
			return nil, nil, err
		}
		matches = append(matches, snap)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	switch {
	case id == "" || len(matches) == 0:
		return nil, nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	case len(matches) > 1:
		return nil, nil, fmt.Errorf("snapshot id %q is ambiguous", id)
	}

	snap := matches[0]
	topo, err := d.snapshotObjects(snap.ID)
	if err != nil {
		return nil, nil, err
	}
	return snap, topo, nil
}

func (d *DB) snapshotObjects(id string) (device.Topology, error) {
	rows, err := d.conn.Query(`
		SELECT object_json FROM snapshot_objects WHERE snapshot_id = ? ORDER BY name
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query objects: %w", err)
	}
	defer rows.Close()

	topo := make(device.Topology)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan object row: %w", err)
		}
		var obj device.StorageObject
		if err := json.Unmarshal([]byte(data), &obj); err != nil {
			return nil, fmt.Errorf("failed to decode object: %w", err)
		}
		topo[obj.Name] = &obj
	}
	return topo, rows.Err()
}

// ObjectHistory returns every recorded state of the object that was named
// name, or carried name as its UUID, newest first
func (d *DB) ObjectHistory(name string) ([]ObjectRecord, error) {
	rows, err := d.conn.Query(`
		SELECT o.snapshot_id, s.taken_at, o.object_json
		FROM snapshot_objects o JOIN snapshots s ON s.id = o.snapshot_id
		WHERE o.name = ? OR o.uuid = ?
		ORDER BY s.taken_at DESC, s.rowid DESC
	`, name, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []ObjectRecord
	for rows.Next() {
		var rec ObjectRecord
		var data string
		if err := rows.Scan(&rec.SnapshotID, &rec.TakenAt, &data); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		rec.Object = &device.StorageObject{}
		if err := json.Unmarshal([]byte(data), rec.Object); err != nil {
			return nil, fmt.Errorf("failed to decode object: %w", err)
		}
		history = append(history, rec)
	}
	return history, rows.Err()
}

// PruneSnapshots deletes all but the newest keep snapshots and returns how
// many were removed
func (d *DB) PruneSnapshots(keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	tx, err := d.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	// foreign_keys is per connection, so objects are removed explicitly
	const stale = `SELECT id FROM snapshots ORDER BY taken_at DESC, rowid DESC LIMIT -1 OFFSET ?`
	if _, err := tx.Exec(`DELETE FROM snapshot_objects WHERE snapshot_id IN (`+stale+`)`, keep); err != nil {
		return 0, fmt.Errorf("failed to prune snapshot objects: %w", err)
	}
	result, err := tx.Exec(`DELETE FROM snapshots WHERE id IN (`+stale+`)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var snap Snapshot
	var hostname, errorsJSON sql.NullString

	err := row.Scan(&snap.ID, &snap.Platform, &hostname, &snap.ObjectCount,
		&snap.ErrorCount, &errorsJSON, &snap.TakenAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
	}

	snap.Hostname = hostname.String
	if errorsJSON.Valid && errorsJSON.String != "" {
		if err := json.Unmarshal([]byte(errorsJSON.String), &snap.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot errors: %w", err)
		}
	}
	return &snap, nil
}

// nullString stores empty strings as NULL
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
