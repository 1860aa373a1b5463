// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package cascade_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/expunge-dev/expunge/internal/store"
	xerr "github.com/expunge-dev/expunge/pkg/errors"
)

// fakeRecord is one entry in a fakeAdapter.
type fakeRecord struct {
	Owner   store.Identity `json:"owner"`
	Payload string         `json:"payload"`
}

// fakeAdapter is an in-memory store.Adapter with per-call fault injection,
// used to drive the coordinator through failure paths that real backends
// cannot produce on demand.
type fakeAdapter struct {
	name  string
	layer store.Layer

	mu      sync.Mutex
	records map[string]fakeRecord
	order   []string

	failFind     error
	failSnapshot map[string]error
	failDelete   map[string]error
	failRestore  map[string]error

	// stickyDelete makes DeleteByID report success while leaving the record
	// in place, simulating a store whose identity matching outlives the
	// delete (stale denormalized fields).
	stickyDelete map[string]bool

	// deleteDelay stalls every DeleteByID, letting tests expire a run's
	// deadline mid-execution.
	deleteDelay time.Duration

	deleteCalls  int
	restoreCalls int
}

var _ store.Adapter = (*fakeAdapter)(nil)

func newFakeAdapter(name string, layer store.Layer) *fakeAdapter {
	return &fakeAdapter{
		name:         name,
		layer:        layer,
		records:      map[string]fakeRecord{},
		failSnapshot: map[string]error{},
		failDelete:   map[string]error{},
		failRestore:  map[string]error{},
		stickyDelete: map[string]bool{},
	}
}

func (f *fakeAdapter) seed(id string, owner store.Identity, payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		f.order = append(f.order, id)
	}
	f.records[id] = fakeRecord{Owner: owner, Payload: payload}
}

func (f *fakeAdapter) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[id]
	return ok
}

func (f *fakeAdapter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func (f *fakeAdapter) get(id string) (fakeRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	return rec, ok
}

func (f *fakeAdapter) Name() string       { return f.name }
func (f *fakeAdapter) Layer() store.Layer { return f.layer }
func (f *fakeAdapter) Close() error       { return nil }

func (f *fakeAdapter) FindByIdentity(ctx context.Context, identity store.Identity) ([]store.Reference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.failFind != nil {
		return nil, f.failFind
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var refs []store.Reference
	for _, id := range f.order {
		rec, ok := f.records[id]
		if ok && rec.Owner == identity {
			refs = append(refs, store.Reference{Store: f.name, RecordID: id})
		}
	}
	return refs, nil
}

func (f *fakeAdapter) Snapshot(ctx context.Context, ref store.Reference) (*store.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.failSnapshot[ref.RecordID]; err != nil {
		return nil, err
	}

	f.mu.Lock()
	rec, ok := f.records[ref.RecordID]
	f.mu.Unlock()
	if !ok {
		return nil, xerr.Errorf(xerr.CodeStoreRecordNotFound, "record %s: %w", ref.RecordID, store.ErrNotFound)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return &store.Snapshot{Store: f.name, RecordID: ref.RecordID, Payload: payload}, nil
}

func (f *fakeAdapter) DeleteByID(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.deleteDelay > 0 {
		time.Sleep(f.deleteDelay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if err := f.failDelete[id]; err != nil {
		return err
	}
	if f.stickyDelete[id] {
		return nil
	}
	delete(f.records, id)
	return nil
}

func (f *fakeAdapter) Restore(ctx context.Context, snap *store.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap.Store != f.name {
		return store.ErrSnapshotMismatch
	}

	f.mu.Lock()
	f.restoreCalls++
	if err := f.failRestore[snap.RecordID]; err != nil {
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()

	var rec fakeRecord
	if err := json.Unmarshal(snap.Payload, &rec); err != nil {
		return err
	}
	f.seed(snap.RecordID, rec.Owner, rec.Payload)
	return nil
}
