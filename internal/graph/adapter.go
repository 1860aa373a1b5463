// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package graph

import (
	"context"
	"encoding/json"

	"github.com/expunge-dev/expunge/internal/store"
	xerr "github.com/expunge-dev/expunge/pkg/errors"
)

// Compile-time interface check.
var _ store.Adapter = (*Adapter)(nil)

// nodeSnapshot is the JSON image of one node and its incident edges.
type nodeSnapshot struct {
	Node  *Node   `json:"node"`
	Edges []*Edge `json:"edges,omitempty"`
}

// Adapter exposes the graph store to the cascade engine as a store.Adapter.
// A record is one node; deleting it removes its incident edges first so no
// edge ever dangles, and restoring replays both the node and its edges.
type Adapter struct {
	store Store
}

// NewAdapter wraps a graph store.
func NewAdapter(s Store) *Adapter {
	return &Adapter{store: s}
}

// Store returns the wrapped graph store.
func (a *Adapter) Store() Store { return a.store }

// Name implements store.Adapter.
func (a *Adapter) Name() string { return "graph" }

// Layer implements store.Adapter.
func (a *Adapter) Layer() store.Layer { return store.LayerGraph }

// Close closes the wrapped store.
func (a *Adapter) Close() error {
	return a.store.Close()
}

// FindByIdentity implements store.Adapter: nodes whose identity property
// equals the target identity.
func (a *Adapter) FindByIdentity(ctx context.Context, identity store.Identity) ([]store.Reference, error) {
	nodes, err := a.store.NodesByIdentity(ctx, identity.String())
	if err != nil {
		return nil, err
	}

	refs := make([]store.Reference, 0, len(nodes))
	for _, node := range nodes {
		refs = append(refs, store.Reference{Store: a.Name(), RecordID: node.ID})
	}
	return refs, nil
}

// Snapshot implements store.Adapter. The payload carries the node and every
// incident edge, so rollback can rebuild the local neighbourhood.
func (a *Adapter) Snapshot(ctx context.Context, ref store.Reference) (*store.Snapshot, error) {
	node, err := a.store.GetNode(ctx, ref.RecordID)
	if err != nil {
		return nil, err
	}

	edges, err := a.store.IncidentEdges(ctx, ref.RecordID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(nodeSnapshot{Node: node, Edges: edges})
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeGraphDatabaseFailure, "marshalling node snapshot %s: %w", ref.RecordID, err)
	}

	return &store.Snapshot{Store: a.Name(), RecordID: ref.RecordID, Payload: payload}, nil
}

// DeleteByID implements store.Adapter: incident edges first, then the node.
// Missing nodes are not an error.
func (a *Adapter) DeleteByID(ctx context.Context, id string) error {
	edges, err := a.store.IncidentEdges(ctx, id)
	if err != nil {
		return err
	}
	for _, edge := range edges {
		if err := a.store.DeleteEdge(ctx, edge.ID); err != nil {
			return err
		}
	}
	return a.store.DeleteNode(ctx, id)
}

// Restore implements store.Adapter by replaying the node and its edges.
// Edges whose far endpoint no longer exists are still reinserted; the graph
// store does not enforce referential integrity and a later cascade or
// reclamation pass owns their cleanup.
func (a *Adapter) Restore(ctx context.Context, snap *store.Snapshot) error {
	if snap.Store != a.Name() {
		return xerr.Errorf(xerr.CodeStoreSnapshotInvalid, "restoring %s snapshot into graph store: %w", snap.Store, store.ErrSnapshotMismatch)
	}

	var ns nodeSnapshot
	if err := json.Unmarshal(snap.Payload, &ns); err != nil {
		return xerr.Errorf(xerr.CodeStoreSnapshotInvalid, "unmarshalling node snapshot %s: %w", snap.RecordID, err)
	}

	if err := a.store.PutNode(ctx, ns.Node); err != nil {
		return err
	}
	for _, edge := range ns.Edges {
		if err := a.store.PutEdge(ctx, edge); err != nil {
			return err
		}
	}
	return nil
}
