// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/expunge-dev/expunge/internal/store"
	xerr "github.com/expunge-dev/expunge/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

// Compile-time interface check.
var _ store.Adapter = (*VectorStore)(nil)

// vectorSnapshot is the JSON image of one embedding row and its metadata.
type vectorSnapshot struct {
	ID         string         `json:"id"`
	OwnerKind  string         `json:"owner_kind"`
	OwnerValue string         `json:"owner_value"`
	Embedding  []float32      `json:"embedding"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// VectorStore adapts the embedding index (SQLite with sqlite-vec). The vec0
// virtual table holds the embeddings; a companion metadata table carries the
// owning identity, which is what FindByIdentity matches on. Embeddings are
// derived data and sit in the first cascade layer.
type VectorStore struct {
	db         *sql.DB
	dimensions int
}

// NewVectorStore opens (or creates) a SQLite database at dbPath and
// initialises the vec0 virtual table and companion metadata table.
func NewVectorStore(dbPath string, dimensions int) (*VectorStore, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	if err := migrateVector(db, dimensions); err != nil {
		_ = db.Close()
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "migrating vector tables: %w", err)
	}

	return &VectorStore{db: db, dimensions: dimensions}, nil
}

func migrateVector(db *sql.DB, dimensions int) error {
	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vectors USING vec0(id TEXT PRIMARY KEY, embedding float[%d])`,
		dimensions,
	)
	if _, err := db.Exec(vecDDL); err != nil {
		return fmt.Errorf("creating vectors virtual table: %w", err)
	}

	const metaDDL = `
CREATE TABLE IF NOT EXISTS vector_metadata (
	id          TEXT PRIMARY KEY,
	owner_kind  TEXT NOT NULL,
	owner_value TEXT NOT NULL,
	metadata    TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_vector_metadata_owner ON vector_metadata(owner_kind, owner_value);
`
	if _, err := db.Exec(metaDDL); err != nil {
		return fmt.Errorf("creating vector_metadata table: %w", err)
	}

	return nil
}

// Name implements store.Adapter.
func (v *VectorStore) Name() string { return "vector" }

// Layer implements store.Adapter.
func (v *VectorStore) Layer() store.Layer { return store.LayerDerived }

// Close closes the underlying database connection.
func (v *VectorStore) Close() error {
	return v.db.Close()
}

// Store inserts or replaces an embedding owned by the given identity.
func (v *VectorStore) Store(ctx context.Context, id string, owner store.Identity, embedding []float32, metadata map[string]any) error {
	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return xerr.Errorf(xerr.CodeStoreInvalidInput, "serializing embedding: %w", err)
	}

	metaJSON := []byte("{}")
	if len(metadata) > 0 {
		metaJSON, err = json.Marshal(metadata)
		if err != nil {
			return xerr.Errorf(xerr.CodeStoreInvalidInput, "marshalling metadata: %w", err)
		}
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return xerr.Errorf(xerr.CodeStoreDatabaseFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// vec0 does not support ON CONFLICT; delete first for upsert.
	if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE id = ?`, id); err != nil {
		return xerr.Errorf(xerr.CodeStoreDatabaseFailure, "deleting existing vector %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO vectors(id, embedding) VALUES (?, ?)`, id, blob); err != nil {
		return xerr.Errorf(xerr.CodeStoreDatabaseFailure, "inserting vector %s: %w", id, err)
	}

	const metaQ = `INSERT INTO vector_metadata(id, owner_kind, owner_value, metadata) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	owner_kind = excluded.owner_kind,
	owner_value = excluded.owner_value,
	metadata = excluded.metadata`
	if _, err := tx.ExecContext(ctx, metaQ, id, string(owner.Kind), owner.Value, string(metaJSON)); err != nil {
		return xerr.Errorf(xerr.CodeStoreDatabaseFailure, "upserting vector metadata %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return xerr.Errorf(xerr.CodeStoreDatabaseFailure, "committing vector store: %w", err)
	}
	return nil
}

// FindByIdentity implements store.Adapter.
func (v *VectorStore) FindByIdentity(ctx context.Context, identity store.Identity) ([]store.Reference, error) {
	const q = `SELECT id FROM vector_metadata WHERE owner_kind = ? AND owner_value = ? ORDER BY id`

	rows, err := v.db.QueryContext(ctx, q, string(identity.Kind), identity.Value)
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "scanning vectors for %s: %w", identity, err)
	}
	defer func() { _ = rows.Close() }()

	var refs []store.Reference
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "scanning vector row: %w", err)
		}
		refs = append(refs, store.Reference{Store: v.Name(), RecordID: id})
	}
	if err := rows.Err(); err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "iterating vector rows: %w", err)
	}

	return refs, nil
}

// Snapshot implements store.Adapter. The payload carries the deserialized
// embedding and its metadata row as JSON.
func (v *VectorStore) Snapshot(ctx context.Context, ref store.Reference) (*store.Snapshot, error) {
	const q = `SELECT v.embedding, m.owner_kind, m.owner_value, m.metadata
FROM vectors v
JOIN vector_metadata m ON m.id = v.id
WHERE v.id = ?`

	var (
		blob    []byte
		vs      vectorSnapshot
		metaStr string
	)
	err := v.db.QueryRowContext(ctx, q, ref.RecordID).Scan(&blob, &vs.OwnerKind, &vs.OwnerValue, &metaStr)
	if err == sql.ErrNoRows {
		return nil, xerr.Errorf(xerr.CodeStoreRecordNotFound, "vector %s: %w", ref.RecordID, store.ErrNotFound)
	}
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "reading vector %s: %w", ref.RecordID, err)
	}

	vs.ID = ref.RecordID
	vs.Embedding = deserializeFloat32(blob)
	if metaStr != "" && metaStr != "{}" {
		if err := json.Unmarshal([]byte(metaStr), &vs.Metadata); err != nil {
			return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "unmarshalling vector metadata %s: %w", ref.RecordID, err)
		}
	}

	payload, err := json.Marshal(vs)
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "marshalling vector snapshot %s: %w", ref.RecordID, err)
	}

	return &store.Snapshot{Store: v.Name(), RecordID: ref.RecordID, Payload: payload}, nil
}

// DeleteByID implements store.Adapter by removing the embedding and its
// metadata row. Missing ids are not an error.
func (v *VectorStore) DeleteByID(ctx context.Context, id string) error {
	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return xerr.Errorf(xerr.CodeStoreDatabaseFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE id = ?`, id); err != nil {
		return xerr.Errorf(xerr.CodeStoreDatabaseFailure, "deleting vector %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM vector_metadata WHERE id = ?`, id); err != nil {
		return xerr.Errorf(xerr.CodeStoreDatabaseFailure, "deleting vector metadata %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return xerr.Errorf(xerr.CodeStoreDatabaseFailure, "committing vector delete: %w", err)
	}
	return nil
}

// Restore implements store.Adapter by replaying the embedding and metadata.
func (v *VectorStore) Restore(ctx context.Context, snap *store.Snapshot) error {
	if snap.Store != v.Name() {
		return xerr.Errorf(xerr.CodeStoreSnapshotInvalid, "restoring %s snapshot into vector store: %w", snap.Store, store.ErrSnapshotMismatch)
	}

	var vs vectorSnapshot
	if err := json.Unmarshal(snap.Payload, &vs); err != nil {
		return xerr.Errorf(xerr.CodeStoreSnapshotInvalid, "unmarshalling vector snapshot %s: %w", snap.RecordID, err)
	}

	owner := store.Identity{Kind: store.IdentityKind(vs.OwnerKind), Value: vs.OwnerValue}
	return v.Store(ctx, vs.ID, owner, vs.Embedding, vs.Metadata)
}

// deserializeFloat32 decodes the little-endian float32 blob stored by vec0.
func deserializeFloat32(blob []byte) []float32 {
	out := make([]float32, 0, len(blob)/4)
	for i := 0; i+4 <= len(blob); i += 4 {
		bits := binary.LittleEndian.Uint32(blob[i:])
		out = append(out, math.Float32frombits(bits))
	}
	return out
}
