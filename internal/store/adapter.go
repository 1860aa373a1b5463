// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package store

import "context"

// Adapter is the uniform interface over one physical data store. Each store
// defines its own identity-matching semantics and its own snapshot encoding;
// the cascade engine never inspects either.
//
// Adapters must be safe for concurrent use: the scanner fans out reads and
// the executor may delete across independent stores in parallel.
type Adapter interface {
	// Name identifies the store in plans, results, and logs.
	Name() string

	// Layer places the store in the fixed cascade execution order.
	Layer() Layer

	// FindByIdentity returns every record referencing the identity.
	// Read-only; zero matches is a valid empty result, not an error.
	FindByIdentity(ctx context.Context, identity Identity) ([]Reference, error)

	// Snapshot re-reads one matched record and returns its full pre-delete
	// image. Called immediately before deletion to minimize staleness.
	Snapshot(ctx context.Context, ref Reference) (*Snapshot, error)

	// DeleteByID removes one record. Idempotent: a missing id is not an
	// error, so a cascade re-run over already-deleted data succeeds.
	DeleteByID(ctx context.Context, id string) error

	// Restore reinserts a record from its snapshot. Best-effort and used
	// only during rollback.
	Restore(ctx context.Context, snap *Snapshot) error

	Close() error
}
