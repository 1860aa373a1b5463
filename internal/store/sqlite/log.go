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
var _ store.Adapter = (*LogStore)(nil)

// LogMessage is one entry in the append-only conversation log.
type LogMessage struct {
	ID            string            `json:"id"`
	SessionID     string            `json:"session_id"`
	UserID        string            `json:"user_id"`
	ParticipantID string            `json:"participant_id"`
	Role          string            `json:"role"`
	Content       string            `json:"content"`
	CreatedAt     time.Time         `json:"created_at"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// LogStore adapts the append-only conversation log (SQLite with FTS5).
// Identity matching: user identities match the user_id column, participant
// identities match participant_id.
type LogStore struct {
	db *sql.DB
}

// NewLogStore opens (or creates) a SQLite database at dbPath and
// initialises the log_messages table with FTS5 full-text search.
func NewLogStore(dbPath string) (*LogStore, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	if err := migrateLog(db); err != nil {
		_ = db.Close()
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "migrating log tables: %w", err)
	}

	return &LogStore{db: db}, nil
}

func migrateLog(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS log_messages (
	rowid          INTEGER PRIMARY KEY AUTOINCREMENT,
	id             TEXT UNIQUE NOT NULL,
	session_id     TEXT NOT NULL,
	user_id        TEXT NOT NULL DEFAULT '',
	participant_id TEXT NOT NULL DEFAULT '',
	role           TEXT NOT NULL,
	content        TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL,
	metadata       TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_log_messages_user ON log_messages(user_id);
CREATE INDEX IF NOT EXISTS idx_log_messages_participant ON log_messages(participant_id);

CREATE VIRTUAL TABLE IF NOT EXISTS log_messages_fts USING fts5(
	content,
	content='log_messages',
	content_rowid='rowid'
);

-- Triggers to keep FTS index in sync with the main table.
CREATE TRIGGER IF NOT EXISTS log_messages_ai AFTER INSERT ON log_messages BEGIN
	INSERT INTO log_messages_fts(rowid, content) VALUES (new.rowid, new.content);
END;

CREATE TRIGGER IF NOT EXISTS log_messages_ad AFTER DELETE ON log_messages BEGIN
	INSERT INTO log_messages_fts(log_messages_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
END;

CREATE TRIGGER IF NOT EXISTS log_messages_au AFTER UPDATE ON log_messages BEGIN
	INSERT INTO log_messages_fts(log_messages_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
	INSERT INTO log_messages_fts(rowid, content) VALUES (new.rowid, new.content);
END;
`
	_, err := db.Exec(ddl)
	return err
}

// Name implements store.Adapter.
func (l *LogStore) Name() string { return "log" }

// Layer implements store.Adapter.
func (l *LogStore) Layer() store.Layer { return store.LayerStructural }

// Close closes the underlying database connection.
func (l *LogStore) Close() error {
	return l.db.Close()
}

// Append inserts a message into the log. This is the write path of the
// surrounding memory system; the cascade engine itself never appends.
func (l *LogStore) Append(ctx context.Context, msg *LogMessage) error {
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return xerr.Errorf(xerr.CodeStoreInvalidInput, "marshalling message metadata: %w", err)
	}

	const q = `INSERT INTO log_messages (id, session_id, user_id, participant_id, role, content, created_at, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = l.db.ExecContext(ctx, q,
		msg.ID,
		msg.SessionID,
		msg.UserID,
		msg.ParticipantID,
		msg.Role,
		msg.Content,
		formatTime(msg.CreatedAt),
		string(metadata),
	)
	if err != nil {
		return xerr.Errorf(xerr.CodeStoreDatabaseFailure, "appending log message %s: %w", msg.ID, err)
	}
	return nil
}

// FindByIdentity implements store.Adapter.
func (l *LogStore) FindByIdentity(ctx context.Context, identity store.Identity) ([]store.Reference, error) {
	column := "user_id"
	if identity.Kind == store.IdentityParticipant {
		column = "participant_id"
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id FROM log_messages WHERE `+column+` = ? ORDER BY rowid`, identity.Value)
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "scanning log for %s: %w", identity, err)
	}
	defer func() { _ = rows.Close() }()

	var refs []store.Reference
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "scanning log row: %w", err)
		}
		refs = append(refs, store.Reference{Store: l.Name(), RecordID: id})
	}
	if err := rows.Err(); err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "iterating log rows: %w", err)
	}

	return refs, nil
}

// Snapshot implements store.Adapter. The payload is the JSON row image.
func (l *LogStore) Snapshot(ctx context.Context, ref store.Reference) (*store.Snapshot, error) {
	msg, err := l.getMessage(ctx, ref.RecordID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "marshalling log snapshot %s: %w", ref.RecordID, err)
	}

	return &store.Snapshot{Store: l.Name(), RecordID: ref.RecordID, Payload: payload}, nil
}

func (l *LogStore) getMessage(ctx context.Context, id string) (*LogMessage, error) {
	const q = `SELECT id, session_id, user_id, participant_id, role, content, created_at, metadata
FROM log_messages WHERE id = ?`

	var (
		msg       LogMessage
		createdAt string
		metadata  string
	)
	err := l.db.QueryRowContext(ctx, q, id).Scan(
		&msg.ID, &msg.SessionID, &msg.UserID, &msg.ParticipantID,
		&msg.Role, &msg.Content, &createdAt, &metadata,
	)
	if err == sql.ErrNoRows {
		return nil, xerr.Errorf(xerr.CodeStoreRecordNotFound, "log message %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "reading log message %s: %w", id, err)
	}

	if msg.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &msg.Metadata); err != nil {
			return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "unmarshalling log metadata %s: %w", id, err)
		}
	}
	return &msg, nil
}

// DeleteByID implements store.Adapter. Missing ids are not an error.
func (l *LogStore) DeleteByID(ctx context.Context, id string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM log_messages WHERE id = ?`, id); err != nil {
		return xerr.Errorf(xerr.CodeStoreDatabaseFailure, "deleting log message %s: %w", id, err)
	}
	return nil
}

// Restore implements store.Adapter by replaying a JSON row image.
func (l *LogStore) Restore(ctx context.Context, snap *store.Snapshot) error {
	if snap.Store != l.Name() {
		return xerr.Errorf(xerr.CodeStoreSnapshotInvalid, "restoring %s snapshot into log store: %w", snap.Store, store.ErrSnapshotMismatch)
	}

	var msg LogMessage
	if err := json.Unmarshal(snap.Payload, &msg); err != nil {
		return xerr.Errorf(xerr.CodeStoreSnapshotInvalid, "unmarshalling log snapshot %s: %w", snap.RecordID, err)
	}

	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return xerr.Errorf(xerr.CodeStoreSnapshotInvalid, "marshalling log metadata %s: %w", snap.RecordID, err)
	}

	const q = `INSERT OR REPLACE INTO log_messages (id, session_id, user_id, participant_id, role, content, created_at, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = l.db.ExecContext(ctx, q,
		msg.ID, msg.SessionID, msg.UserID, msg.ParticipantID,
		msg.Role, msg.Content, formatTime(msg.CreatedAt), string(metadata),
	)
	if err != nil {
		return xerr.Errorf(xerr.CodeStoreDatabaseFailure, "restoring log message %s: %w", snap.RecordID, err)
	}
	return nil
}
