// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

// Package graph provides the property-graph store consumed by the cascade
// engine, the anchor-type registry, and the orphan reclaimer that removes
// node islands left unreachable after identity deletion.
package graph

import (
	"context"
	"sort"
	"sync"
)

// Node is a property-graph node. Nodes carrying an "identity" property in
// "kind:value" form belong to that identity and are deleted by the cascade.
type Node struct {
	ID         string
	Type       string
	Properties map[string]any
}

// Edge is a directed edge between two nodes. Reachability treats edges as
// undirected; direction only matters to the surrounding domain.
type Edge struct {
	ID     string
	FromID string
	ToID   string
	Type   string
}

// Other returns the endpoint of the edge that is not nodeID.
func (e *Edge) Other(nodeID string) string {
	if e.FromID == nodeID {
		return e.ToID
	}
	return e.FromID
}

// Store is the graph backend contract. The reclaimer only reads and
// deletes; it never creates nodes or edges.
type Store interface {
	PutNode(ctx context.Context, node *Node) error
	GetNode(ctx context.Context, id string) (*Node, error)
	DeleteNode(ctx context.Context, id string) error

	PutEdge(ctx context.Context, edge *Edge) error
	DeleteEdge(ctx context.Context, id string) error

	// NodesByType returns all nodes of one type.
	NodesByType(ctx context.Context, nodeType string) ([]*Node, error)

	// NodesByIdentity returns all nodes whose identity property equals the
	// given "kind:value" key.
	NodesByIdentity(ctx context.Context, identityKey string) ([]*Node, error)

	// IncidentEdges returns every edge touching the node, in either direction.
	IncidentEdges(ctx context.Context, nodeID string) ([]*Edge, error)

	// AllNodeIDs returns the ids of every node in the graph.
	AllNodeIDs(ctx context.Context) ([]string, error)

	Close() error
}

// AnchorRegistry holds the node types that always survive a cascade.
// Anchor nodes seed the reachability search and are never orphan candidates.
type AnchorRegistry struct {
	mu    sync.RWMutex
	types map[string]bool
}

// NewAnchorRegistry creates a registry seeded with the given types.
func NewAnchorRegistry(types ...string) *AnchorRegistry {
	r := &AnchorRegistry{types: make(map[string]bool, len(types))}
	for _, t := range types {
		r.types[t] = true
	}
	return r
}

// Register adds an anchor type. Goroutine-safe.
func (r *AnchorRegistry) Register(nodeType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[nodeType] = true
}

// IsAnchor reports whether the type is registered.
func (r *AnchorRegistry) IsAnchor(nodeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types[nodeType]
}

// Types returns the registered anchor types, sorted.
func (r *AnchorRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for t := range r.types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
