// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expunge-dev/expunge/internal/store"
	"github.com/expunge-dev/expunge/internal/store/sqlite"
)

const testDims = 4

func seedVector(t *testing.T, vs *sqlite.VectorStore, id string, owner store.Identity, embedding []float32) {
	t.Helper()
	err := vs.Store(context.Background(), id, owner, embedding, map[string]any{"source": "msg"})
	require.NoError(t, err)
}

func TestVectorStore_FindByOwner(t *testing.T) {
	ctx := context.Background()
	vs, err := sqlite.NewVectorStore(testDBPath(t, "vectors"), testDims)
	require.NoError(t, err)
	defer func() { _ = vs.Close() }()

	seedVector(t, vs, "v1", userIdentity("u-1"), []float32{0.1, 0.2, 0.3, 0.4})
	seedVector(t, vs, "v2", userIdentity("u-1"), []float32{0.5, 0.6, 0.7, 0.8})
	seedVector(t, vs, "v3", userIdentity("u-2"), []float32{0.9, 0.1, 0.2, 0.3})

	refs, err := vs.FindByIdentity(ctx, userIdentity("u-1"))
	require.NoError(t, err)
	assert.Len(t, refs, 2)

	refs, err = vs.FindByIdentity(ctx, participantIdentity("u-1"))
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestVectorStore_DeleteRemovesEmbeddingAndMetadata(t *testing.T) {
	ctx := context.Background()
	vs, err := sqlite.NewVectorStore(testDBPath(t, "vectors-delete"), testDims)
	require.NoError(t, err)
	defer func() { _ = vs.Close() }()

	seedVector(t, vs, "v1", userIdentity("u-1"), []float32{1, 2, 3, 4})

	require.NoError(t, vs.DeleteByID(ctx, "v1"))
	require.NoError(t, vs.DeleteByID(ctx, "v1"))

	refs, err := vs.FindByIdentity(ctx, userIdentity("u-1"))
	require.NoError(t, err)
	assert.Empty(t, refs)

	_, err = vs.Snapshot(ctx, store.Reference{Store: "vector", RecordID: "v1"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestVectorStore_SnapshotRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	vs, err := sqlite.NewVectorStore(testDBPath(t, "vectors-restore"), testDims)
	require.NoError(t, err)
	defer func() { _ = vs.Close() }()

	embedding := []float32{0.25, -1.5, 3.75, 0}
	seedVector(t, vs, "v1", userIdentity("u-1"), embedding)

	ref := store.Reference{Store: "vector", RecordID: "v1"}
	snap, err := vs.Snapshot(ctx, ref)
	require.NoError(t, err)

	require.NoError(t, vs.DeleteByID(ctx, "v1"))
	require.NoError(t, vs.Restore(ctx, snap))

	refs, err := vs.FindByIdentity(ctx, userIdentity("u-1"))
	require.NoError(t, err)
	require.Len(t, refs, 1)

	restored, err := vs.Snapshot(ctx, ref)
	require.NoError(t, err)
	assert.JSONEq(t, string(snap.Payload), string(restored.Payload))
}
