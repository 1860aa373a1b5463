// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package store

import (
	"time"
)

// --- Identity types ---

// IdentityKind distinguishes the two deletion-key namespaces.
type IdentityKind string

const (
	IdentityUser        IdentityKind = "user"
	IdentityParticipant IdentityKind = "participant"
)

// Identity is the deletion key driving one cascade.
type Identity struct {
	Kind  IdentityKind
	Value string
}

// String renders the identity as "kind:value", the form adapters use when
// the identity is stored denormalized in a single column.
func (i Identity) String() string {
	return string(i.Kind) + ":" + i.Value
}

// Valid reports whether the identity names a known kind and a non-empty value.
func (i Identity) Valid() bool {
	if i.Value == "" {
		return false
	}
	return i.Kind == IdentityUser || i.Kind == IdentityParticipant
}

// --- Layer ordering ---

// Layer is an execution phase of the cascade. Deletes run layer by layer in
// ascending order: derived data first, the identity's own anchor record last,
// so a mid-cascade crash never leaves a live identity pointing at
// partially-deleted data.
type Layer int

const (
	// LayerDerived holds data recomputable from structural stores
	// (embeddings, extracted facts).
	LayerDerived Layer = iota
	// LayerStructural holds primary data (conversation log, versioned
	// records, key-value entries).
	LayerStructural
	// LayerGraph holds the property graph, deleted together with orphan
	// reclamation.
	LayerGraph
	// LayerIdentity holds the identity's own profile record, always last.
	LayerIdentity
)

// Layers lists all layers in execution order.
func Layers() []Layer {
	return []Layer{LayerDerived, LayerStructural, LayerGraph, LayerIdentity}
}

func (l Layer) String() string {
	switch l {
	case LayerDerived:
		return "derived"
	case LayerStructural:
		return "structural"
	case LayerGraph:
		return "graph"
	case LayerIdentity:
		return "identity"
	default:
		return "unknown"
	}
}

// --- Plan types ---

// Reference names one record matched in one store.
type Reference struct {
	Store    string
	RecordID string
}

// Snapshot is an adapter-defined pre-delete image of one record. The engine
// treats Payload as opaque: it only carries it from Snapshot to Restore.
type Snapshot struct {
	Store    string
	RecordID string
	Payload  []byte
}

// ScanError records a store whose read failed during planning. Scan
// failures are tolerated: the affected store contributes no references but
// the remaining stores are still scanned.
type ScanError struct {
	Store   string
	Message string
}

// Plan is the immutable set of matched records for one cascade invocation.
// A Plan is single-use: the coordinator consumes it once and a fresh Plan
// is produced per invocation.
type Plan struct {
	ID        string
	Identity  Identity
	CreatedAt time.Time

	// Refs is ordered by layer, then by adapter registration order within
	// a layer. Execution and backup both follow this order.
	Refs []Reference

	ScanErrors []ScanError
}

// Count returns the total number of matched records.
func (p *Plan) Count() int {
	return len(p.Refs)
}

// CountByStore returns per-store match counts.
func (p *Plan) CountByStore() map[string]int {
	counts := make(map[string]int, 8)
	for _, ref := range p.Refs {
		counts[ref.Store]++
	}
	return counts
}

// RefsForStore returns the plan's references for a single store, in plan order.
func (p *Plan) RefsForStore(name string) []Reference {
	var refs []Reference
	for _, ref := range p.Refs {
		if ref.Store == name {
			refs = append(refs, ref)
		}
	}
	return refs
}
