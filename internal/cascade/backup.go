// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package cascade

import (
	"github.com/expunge-dev/expunge/internal/store"
)

// backup buffers pre-delete snapshots for one invocation. It exists only
// between the first mutation and the final commit or rollback, and is
// discarded afterwards. Snapshots are keyed by reference and kept in
// capture order so rollback can walk them in reverse.
type backup struct {
	snaps map[store.Reference]*store.Snapshot
	order []store.Reference
}

func newBackup() *backup {
	return &backup{snaps: make(map[store.Reference]*store.Snapshot)}
}

func (b *backup) add(ref store.Reference, snap *store.Snapshot) {
	if _, exists := b.snaps[ref]; !exists {
		b.order = append(b.order, ref)
	}
	b.snaps[ref] = snap
}

func (b *backup) get(ref store.Reference) (*store.Snapshot, bool) {
	snap, ok := b.snaps[ref]
	return snap, ok
}

func (b *backup) len() int {
	return len(b.order)
}

// discard drops all snapshots. Called on commit and after rollback.
func (b *backup) discard() {
	b.snaps = nil
	b.order = nil
}
