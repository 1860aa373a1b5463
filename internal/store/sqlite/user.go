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
var _ store.Adapter = (*UserStore)(nil)

// Profile is a user's own anchor record.
type Profile struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Role       string            `json:"role"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// UserStore adapts the user/profile store. It sits in the final cascade
// layer: the identity's own record disappears only after every dependent
// record is gone. Identity matching: only user identities match, by exact
// id; participant identities have no profile row.
type UserStore struct {
	db *sql.DB
}

// NewUserStore opens (or creates) a SQLite database at dbPath and
// initialises the profiles table.
func NewUserStore(dbPath string) (*UserStore, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	if err := migrateProfiles(db); err != nil {
		_ = db.Close()
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "migrating profile tables: %w", err)
	}

	return &UserStore{db: db}, nil
}

func migrateProfiles(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS profiles (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	role       TEXT NOT NULL DEFAULT '',
	attributes TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`
	_, err := db.Exec(ddl)
	return err
}

// Name implements store.Adapter.
func (u *UserStore) Name() string { return "users" }

// Layer implements store.Adapter.
func (u *UserStore) Layer() store.Layer { return store.LayerIdentity }

// Close closes the underlying database connection.
func (u *UserStore) Close() error {
	return u.db.Close()
}

// Put upserts a profile.
func (u *UserStore) Put(ctx context.Context, p *Profile) error {
	attrs, err := json.Marshal(p.Attributes)
	if err != nil {
		return xerr.Errorf(xerr.CodeStoreInvalidInput, "marshalling profile attributes: %w", err)
	}

	const q = `INSERT INTO profiles (id, name, role, attributes, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	role = excluded.role,
	attributes = excluded.attributes,
	updated_at = excluded.updated_at`

	_, err = u.db.ExecContext(ctx, q,
		p.ID, p.Name, p.Role, string(attrs),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return xerr.Errorf(xerr.CodeStoreDatabaseFailure, "upserting profile %s: %w", p.ID, err)
	}
	return nil
}

// Get returns a profile by id.
func (u *UserStore) Get(ctx context.Context, id string) (*Profile, error) {
	const q = `SELECT id, name, role, attributes, created_at, updated_at FROM profiles WHERE id = ?`

	var (
		p                    Profile
		attrs                string
		createdAt, updatedAt string
	)
	err := u.db.QueryRowContext(ctx, q, id).Scan(&p.ID, &p.Name, &p.Role, &attrs, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, xerr.Errorf(xerr.CodeStoreRecordNotFound, "profile %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "reading profile %s: %w", id, err)
	}

	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if attrs != "" && attrs != "{}" {
		if err := json.Unmarshal([]byte(attrs), &p.Attributes); err != nil {
			return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "unmarshalling profile attributes %s: %w", id, err)
		}
	}
	return &p, nil
}

// FindByIdentity implements store.Adapter.
func (u *UserStore) FindByIdentity(ctx context.Context, identity store.Identity) ([]store.Reference, error) {
	if identity.Kind != store.IdentityUser {
		return nil, nil
	}

	var id string
	err := u.db.QueryRowContext(ctx, `SELECT id FROM profiles WHERE id = ?`, identity.Value).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "scanning profiles for %s: %w", identity, err)
	}

	return []store.Reference{{Store: u.Name(), RecordID: id}}, nil
}

// Snapshot implements store.Adapter. The payload is the JSON profile.
func (u *UserStore) Snapshot(ctx context.Context, ref store.Reference) (*store.Snapshot, error) {
	p, err := u.Get(ctx, ref.RecordID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "marshalling profile snapshot %s: %w", ref.RecordID, err)
	}

	return &store.Snapshot{Store: u.Name(), RecordID: ref.RecordID, Payload: payload}, nil
}

// DeleteByID implements store.Adapter. Missing ids are not an error.
func (u *UserStore) DeleteByID(ctx context.Context, id string) error {
	if _, err := u.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id); err != nil {
		return xerr.Errorf(xerr.CodeStoreDatabaseFailure, "deleting profile %s: %w", id, err)
	}
	return nil
}

// Restore implements store.Adapter.
func (u *UserStore) Restore(ctx context.Context, snap *store.Snapshot) error {
	if snap.Store != u.Name() {
		return xerr.Errorf(xerr.CodeStoreSnapshotInvalid, "restoring %s snapshot into user store: %w", snap.Store, store.ErrSnapshotMismatch)
	}

	var p Profile
	if err := json.Unmarshal(snap.Payload, &p); err != nil {
		return xerr.Errorf(xerr.CodeStoreSnapshotInvalid, "unmarshalling profile snapshot %s: %w", snap.RecordID, err)
	}

	return u.Put(ctx, &p)
}
