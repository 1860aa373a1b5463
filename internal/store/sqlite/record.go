// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/expunge-dev/expunge/internal/store"
	xerr "github.com/expunge-dev/expunge/pkg/errors"
)

// Compile-time interface check.
var _ store.Adapter = (*RecordStore)(nil)

// RecordVersion is one version of a logical record in the versioned store.
type RecordVersion struct {
	RecordID   string    `json:"record_id"`
	Version    int       `json:"version"`
	OwnerKind  string    `json:"owner_kind"`
	OwnerValue string    `json:"owner_value"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecordStore adapts the versioned record store. A logical record is the set
// of all its versions; FindByIdentity matches on the owner columns, and
// deletion removes every version of a matched record. The snapshot payload
// is the JSON array of all versions, so Restore reinstates full history.
type RecordStore struct {
	db *sql.DB
}

// NewRecordStore opens (or creates) a SQLite database at dbPath and
// initialises the records table.
func NewRecordStore(dbPath string) (*RecordStore, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	if err := migrateRecords(db); err != nil {
		_ = db.Close()
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "migrating record tables: %w", err)
	}

	return &RecordStore{db: db}, nil
}

func migrateRecords(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS records (
	record_id   TEXT NOT NULL,
	version     INTEGER NOT NULL,
	owner_kind  TEXT NOT NULL,
	owner_value TEXT NOT NULL,
	body        TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	PRIMARY KEY (record_id, version)
);

CREATE INDEX IF NOT EXISTS idx_records_owner ON records(owner_kind, owner_value);
`
	_, err := db.Exec(ddl)
	return err
}

// Name implements store.Adapter.
func (r *RecordStore) Name() string { return "records" }

// Layer implements store.Adapter.
func (r *RecordStore) Layer() store.Layer { return store.LayerStructural }

// Close closes the underlying database connection.
func (r *RecordStore) Close() error {
	return r.db.Close()
}

// Put appends a new version of a record. Version numbers start at 1.
func (r *RecordStore) Put(ctx context.Context, recordID string, owner store.Identity, body string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var version int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM records WHERE record_id = ?`, recordID).Scan(&version)
	if err != nil {
		return 0, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "finding next version for %s: %w", recordID, err)
	}

	const q = `INSERT INTO records (record_id, version, owner_kind, owner_value, body, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, q, recordID, version, string(owner.Kind), owner.Value, body, formatTime(time.Now()))
	if err != nil {
		return 0, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "inserting record %s v%d: %w", recordID, version, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "committing record put: %w", err)
	}
	return version, nil
}

// Latest returns the newest version of a record.
func (r *RecordStore) Latest(ctx context.Context, recordID string) (*RecordVersion, error) {
	const q = `SELECT record_id, version, owner_kind, owner_value, body, created_at
FROM records WHERE record_id = ? ORDER BY version DESC LIMIT 1`

	var (
		rv        RecordVersion
		createdAt string
	)
	err := r.db.QueryRowContext(ctx, q, recordID).Scan(
		&rv.RecordID, &rv.Version, &rv.OwnerKind, &rv.OwnerValue, &rv.Body, &createdAt)
	if err == sql.ErrNoRows {
		return nil, xerr.Errorf(xerr.CodeStoreRecordNotFound, "record %s: %w", recordID, store.ErrNotFound)
	}
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "reading record %s: %w", recordID, err)
	}
	if rv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &rv, nil
}

// FindByIdentity implements store.Adapter.
func (r *RecordStore) FindByIdentity(ctx context.Context, identity store.Identity) ([]store.Reference, error) {
	const q = `SELECT DISTINCT record_id FROM records
WHERE owner_kind = ? AND owner_value = ? ORDER BY record_id`

	rows, err := r.db.QueryContext(ctx, q, string(identity.Kind), identity.Value)
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "scanning records for %s: %w", identity, err)
	}
	defer func() { _ = rows.Close() }()

	var refs []store.Reference
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "scanning record row: %w", err)
		}
		refs = append(refs, store.Reference{Store: r.Name(), RecordID: id})
	}
	if err := rows.Err(); err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "iterating record rows: %w", err)
	}

	return refs, nil
}

// Snapshot implements store.Adapter. The payload is the JSON array of every
// version of the record, oldest first.
func (r *RecordStore) Snapshot(ctx context.Context, ref store.Reference) (*store.Snapshot, error) {
	versions, err := r.allVersions(ctx, ref.RecordID)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, xerr.Errorf(xerr.CodeStoreRecordNotFound, "record %s: %w", ref.RecordID, store.ErrNotFound)
	}

	payload, err := json.Marshal(versions)
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "marshalling record snapshot %s: %w", ref.RecordID, err)
	}

	return &store.Snapshot{Store: r.Name(), RecordID: ref.RecordID, Payload: payload}, nil
}

func (r *RecordStore) allVersions(ctx context.Context, recordID string) ([]RecordVersion, error) {
	const q = `SELECT record_id, version, owner_kind, owner_value, body, created_at
FROM records WHERE record_id = ? ORDER BY version`

	rows, err := r.db.QueryContext(ctx, q, recordID)
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "reading record versions %s: %w", recordID, err)
	}
	defer func() { _ = rows.Close() }()

	var versions []RecordVersion
	for rows.Next() {
		var (
			rv        RecordVersion
			createdAt string
		)
		if err := rows.Scan(&rv.RecordID, &rv.Version, &rv.OwnerKind, &rv.OwnerValue, &rv.Body, &createdAt); err != nil {
			return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "scanning record version: %w", err)
		}
		if rv.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		versions = append(versions, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "iterating record versions: %w", err)
	}
	return versions, nil
}

// DeleteByID implements store.Adapter by removing every version of the
// record. Missing ids are not an error.
func (r *RecordStore) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE record_id = ?`, id); err != nil {
		return xerr.Errorf(xerr.CodeStoreDatabaseFailure, "deleting record %s: %w", id, err)
	}
	return nil
}

// Restore implements store.Adapter by replaying all versions from the snapshot.
func (r *RecordStore) Restore(ctx context.Context, snap *store.Snapshot) error {
	if snap.Store != r.Name() {
		return xerr.Errorf(xerr.CodeStoreSnapshotInvalid, "restoring %s snapshot into record store: %w", snap.Store, store.ErrSnapshotMismatch)
	}

	var versions []RecordVersion
	if err := json.Unmarshal(snap.Payload, &versions); err != nil {
		return xerr.Errorf(xerr.CodeStoreSnapshotInvalid, "unmarshalling record snapshot %s: %w", snap.RecordID, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return xerr.Errorf(xerr.CodeStoreDatabaseFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `INSERT OR REPLACE INTO records (record_id, version, owner_kind, owner_value, body, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	for _, rv := range versions {
		if _, err := tx.ExecContext(ctx, q,
			rv.RecordID, rv.Version, rv.OwnerKind, rv.OwnerValue, rv.Body, formatTime(rv.CreatedAt)); err != nil {
			return xerr.Errorf(xerr.CodeStoreDatabaseFailure, "restoring record %s v%d: %w", rv.RecordID, rv.Version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return xerr.Errorf(xerr.CodeStoreDatabaseFailure, "committing record restore: %w", err)
	}
	return nil
}
