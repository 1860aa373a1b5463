// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

// Package sqlite implements the log, record, fact, user, and vector store
// adapters on SQLite databases. Each adapter owns one database file and
// defines its own row type and snapshot encoding; the cascade engine only
// sees store.Reference and opaque store.Snapshot values.
package sqlite

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	xerr "github.com/expunge-dev/expunge/pkg/errors"
)

// openDB opens (or creates) a SQLite database with the WAL journal and a
// busy timeout, and verifies the connection.
func openDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "pinging sqlite db: %w", err)
	}

	return db, nil
}

// formatTime serialises a time for storage in a TEXT column.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database. A corrupt
// value is an error: silently zeroing it would alter restored rows.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, xerr.Errorf(xerr.CodeStoreDatabaseFailure, "parsing stored time %q: %w", s, err)
	}
	return t, nil
}
