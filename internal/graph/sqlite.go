// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package graph

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "github.com/mattn/go-sqlite3"

	xerr "github.com/expunge-dev/expunge/pkg/errors"
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store on two SQLite tables. The identity property
// is mirrored into its own indexed column so identity lookups do not scan
// JSON.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and
// initialises the nodes and edges tables.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeGraphDatabaseFailure, "opening graph db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, xerr.Errorf(xerr.CodeGraphDatabaseFailure, "pinging graph db: %w", err)
	}

	if err := migrateGraph(db); err != nil {
		_ = db.Close()
		return nil, xerr.Errorf(xerr.CodeGraphDatabaseFailure, "migrating graph tables: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func migrateGraph(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS nodes (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	identity   TEXT NOT NULL DEFAULT '',
	properties TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(type);
CREATE INDEX IF NOT EXISTS idx_nodes_identity ON nodes(identity);

CREATE TABLE IF NOT EXISTS edges (
	id      TEXT PRIMARY KEY,
	from_id TEXT NOT NULL,
	to_id   TEXT NOT NULL,
	type    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_id);
CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_id);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// PutNode upserts a node. The "identity" property, when present and a
// string, is mirrored into the indexed identity column.
func (s *SQLiteStore) PutNode(ctx context.Context, node *Node) error {
	props, err := json.Marshal(node.Properties)
	if err != nil {
		return xerr.Errorf(xerr.CodeGraphDatabaseFailure, "marshalling node properties %s: %w", node.ID, err)
	}

	identity := ""
	if v, ok := node.Properties["identity"].(string); ok {
		identity = v
	}

	const q = `INSERT INTO nodes (id, type, identity, properties) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	type = excluded.type,
	identity = excluded.identity,
	properties = excluded.properties`

	if _, err := s.db.ExecContext(ctx, q, node.ID, node.Type, identity, string(props)); err != nil {
		return xerr.Errorf(xerr.CodeGraphDatabaseFailure, "upserting node %s: %w", node.ID, err)
	}
	return nil
}

// GetNode returns one node by id.
func (s *SQLiteStore) GetNode(ctx context.Context, id string) (*Node, error) {
	const q = `SELECT id, type, properties FROM nodes WHERE id = ?`

	var (
		node  Node
		props string
	)
	err := s.db.QueryRowContext(ctx, q, id).Scan(&node.ID, &node.Type, &props)
	if err == sql.ErrNoRows {
		return nil, xerr.Errorf(xerr.CodeGraphNodeNotFound, "node %s not found", id)
	}
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeGraphDatabaseFailure, "reading node %s: %w", id, err)
	}

	if props != "" && props != "{}" {
		if err := json.Unmarshal([]byte(props), &node.Properties); err != nil {
			return nil, xerr.Errorf(xerr.CodeGraphDatabaseFailure, "unmarshalling node properties %s: %w", id, err)
		}
	}
	return &node, nil
}

// DeleteNode removes a node by id. Idempotent.
func (s *SQLiteStore) DeleteNode(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id); err != nil {
		return xerr.Errorf(xerr.CodeGraphDatabaseFailure, "deleting node %s: %w", id, err)
	}
	return nil
}

// PutEdge upserts an edge.
func (s *SQLiteStore) PutEdge(ctx context.Context, edge *Edge) error {
	if edge.FromID == "" || edge.ToID == "" {
		return xerr.Errorf(xerr.CodeGraphEdgeInvalid, "edge %s missing endpoint", edge.ID)
	}

	const q = `INSERT INTO edges (id, from_id, to_id, type) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	from_id = excluded.from_id,
	to_id = excluded.to_id,
	type = excluded.type`

	if _, err := s.db.ExecContext(ctx, q, edge.ID, edge.FromID, edge.ToID, edge.Type); err != nil {
		return xerr.Errorf(xerr.CodeGraphDatabaseFailure, "upserting edge %s: %w", edge.ID, err)
	}
	return nil
}

// DeleteEdge removes an edge by id. Idempotent.
func (s *SQLiteStore) DeleteEdge(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM edges WHERE id = ?`, id); err != nil {
		return xerr.Errorf(xerr.CodeGraphDatabaseFailure, "deleting edge %s: %w", id, err)
	}
	return nil
}

// NodesByType implements Store.
func (s *SQLiteStore) NodesByType(ctx context.Context, nodeType string) ([]*Node, error) {
	return s.queryNodes(ctx, `SELECT id, type, properties FROM nodes WHERE type = ? ORDER BY id`, nodeType)
}

// NodesByIdentity implements Store.
func (s *SQLiteStore) NodesByIdentity(ctx context.Context, identityKey string) ([]*Node, error) {
	return s.queryNodes(ctx, `SELECT id, type, properties FROM nodes WHERE identity = ? ORDER BY id`, identityKey)
}

func (s *SQLiteStore) queryNodes(ctx context.Context, q string, arg string) ([]*Node, error) {
	rows, err := s.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeGraphDatabaseFailure, "querying nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var nodes []*Node
	for rows.Next() {
		var (
			node  Node
			props string
		)
		if err := rows.Scan(&node.ID, &node.Type, &props); err != nil {
			return nil, xerr.Errorf(xerr.CodeGraphDatabaseFailure, "scanning node row: %w", err)
		}
		if props != "" && props != "{}" {
			if err := json.Unmarshal([]byte(props), &node.Properties); err != nil {
				return nil, xerr.Errorf(xerr.CodeGraphDatabaseFailure, "unmarshalling node properties %s: %w", node.ID, err)
			}
		}
		nodes = append(nodes, &node)
	}
	if err := rows.Err(); err != nil {
		return nil, xerr.Errorf(xerr.CodeGraphDatabaseFailure, "iterating node rows: %w", err)
	}
	return nodes, nil
}

// IncidentEdges implements Store, returning edges in either direction.
func (s *SQLiteStore) IncidentEdges(ctx context.Context, nodeID string) ([]*Edge, error) {
	const q = `SELECT id, from_id, to_id, type FROM edges WHERE from_id = ? OR to_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q, nodeID, nodeID)
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeGraphDatabaseFailure, "querying incident edges of %s: %w", nodeID, err)
	}
	defer func() { _ = rows.Close() }()

	var edges []*Edge
	for rows.Next() {
		var edge Edge
		if err := rows.Scan(&edge.ID, &edge.FromID, &edge.ToID, &edge.Type); err != nil {
			return nil, xerr.Errorf(xerr.CodeGraphDatabaseFailure, "scanning edge row: %w", err)
		}
		edges = append(edges, &edge)
	}
	if err := rows.Err(); err != nil {
		return nil, xerr.Errorf(xerr.CodeGraphDatabaseFailure, "iterating edge rows: %w", err)
	}
	return edges, nil
}

// AllNodeIDs implements Store.
func (s *SQLiteStore) AllNodeIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM nodes ORDER BY id`)
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeGraphDatabaseFailure, "querying node ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, xerr.Errorf(xerr.CodeGraphDatabaseFailure, "scanning node id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, xerr.Errorf(xerr.CodeGraphDatabaseFailure, "iterating node ids: %w", err)
	}
	return ids, nil
}
