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
var _ store.Adapter = (*FactStore)(nil)

// Fact is one subject-predicate-object assertion in the fact store. Subjects
// and objects that denote identities use the "kind:value" form.
type Fact struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	Predicate  string    `json:"predicate"`
	Object     string    `json:"object"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// FactStore adapts the extracted-fact store, a single triples table with
// SPO/POS/OSP indexes. Identity matching: a fact references the identity
// when its subject or object equals identity.String(). Facts are derived
// data and sit in the first cascade layer.
type FactStore struct {
	db *sql.DB
}

// NewFactStore opens (or creates) a SQLite database at dbPath and
// initialises the facts table.
func NewFactStore(dbPath string) (*FactStore, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	if err := migrateFacts(db); err != nil {
		_ = db.Close()
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "migrating fact tables: %w", err)
	}

	return &FactStore{db: db}, nil
}

func migrateFacts(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS facts (
	id         TEXT PRIMARY KEY,
	subject    TEXT NOT NULL,
	predicate  TEXT NOT NULL,
	object     TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 1.0,
	source     TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_facts_spo ON facts(subject, predicate, object);
CREATE INDEX IF NOT EXISTS idx_facts_pos ON facts(predicate, object, subject);
CREATE INDEX IF NOT EXISTS idx_facts_osp ON facts(object, subject, predicate);
`
	_, err := db.Exec(ddl)
	return err
}

// Name implements store.Adapter.
func (f *FactStore) Name() string { return "facts" }

// Layer implements store.Adapter.
func (f *FactStore) Layer() store.Layer { return store.LayerDerived }

// Close closes the underlying database connection.
func (f *FactStore) Close() error {
	return f.db.Close()
}

// Put upserts a fact.
func (f *FactStore) Put(ctx context.Context, fact *Fact) error {
	const q = `INSERT INTO facts (id, subject, predicate, object, confidence, source, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	subject = excluded.subject,
	predicate = excluded.predicate,
	object = excluded.object,
	confidence = excluded.confidence,
	source = excluded.source`

	_, err := f.db.ExecContext(ctx, q,
		fact.ID, fact.Subject, fact.Predicate, fact.Object,
		fact.Confidence, fact.Source, formatTime(fact.CreatedAt))
	if err != nil {
		return xerr.Errorf(xerr.CodeStoreDatabaseFailure, "upserting fact %s: %w", fact.ID, err)
	}
	return nil
}

// FindByIdentity implements store.Adapter.
func (f *FactStore) FindByIdentity(ctx context.Context, identity store.Identity) ([]store.Reference, error) {
	const q = `SELECT id FROM facts WHERE subject = ? OR object = ? ORDER BY id`

	key := identity.String()
	rows, err := f.db.QueryContext(ctx, q, key, key)
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "scanning facts for %s: %w", identity, err)
	}
	defer func() { _ = rows.Close() }()

	var refs []store.Reference
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "scanning fact row: %w", err)
		}
		refs = append(refs, store.Reference{Store: f.Name(), RecordID: id})
	}
	if err := rows.Err(); err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "iterating fact rows: %w", err)
	}

	return refs, nil
}

// Snapshot implements store.Adapter. The payload is the JSON fact.
func (f *FactStore) Snapshot(ctx context.Context, ref store.Reference) (*store.Snapshot, error) {
	const q = `SELECT id, subject, predicate, object, confidence, source, created_at
FROM facts WHERE id = ?`

	var (
		fact      Fact
		createdAt string
	)
	err := f.db.QueryRowContext(ctx, q, ref.RecordID).Scan(
		&fact.ID, &fact.Subject, &fact.Predicate, &fact.Object,
		&fact.Confidence, &fact.Source, &createdAt)
	if err == sql.ErrNoRows {
		return nil, xerr.Errorf(xerr.CodeStoreRecordNotFound, "fact %s: %w", ref.RecordID, store.ErrNotFound)
	}
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "reading fact %s: %w", ref.RecordID, err)
	}
	if fact.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(fact)
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "marshalling fact snapshot %s: %w", ref.RecordID, err)
	}

	return &store.Snapshot{Store: f.Name(), RecordID: ref.RecordID, Payload: payload}, nil
}

// DeleteByID implements store.Adapter. Missing ids are not an error.
func (f *FactStore) DeleteByID(ctx context.Context, id string) error {
	if _, err := f.db.ExecContext(ctx, `DELETE FROM facts WHERE id = ?`, id); err != nil {
		return xerr.Errorf(xerr.CodeStoreDatabaseFailure, "deleting fact %s: %w", id, err)
	}
	return nil
}

// Restore implements store.Adapter.
func (f *FactStore) Restore(ctx context.Context, snap *store.Snapshot) error {
	if snap.Store != f.Name() {
		return xerr.Errorf(xerr.CodeStoreSnapshotInvalid, "restoring %s snapshot into fact store: %w", snap.Store, store.ErrSnapshotMismatch)
	}

	var fact Fact
	if err := json.Unmarshal(snap.Payload, &fact); err != nil {
		return xerr.Errorf(xerr.CodeStoreSnapshotInvalid, "unmarshalling fact snapshot %s: %w", snap.RecordID, err)
	}

	return f.Put(ctx, &fact)
}
