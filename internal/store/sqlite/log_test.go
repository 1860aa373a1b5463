// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expunge-dev/expunge/internal/store"
	"github.com/expunge-dev/expunge/internal/store/sqlite"
)

func seedLog(t *testing.T, ls *sqlite.LogStore, id, userID, participantID, content string) {
	t.Helper()
	err := ls.Append(context.Background(), &sqlite.LogMessage{
		ID:            id,
		SessionID:     "sess-1",
		UserID:        userID,
		ParticipantID: participantID,
		Role:          "user",
		Content:       content,
		CreatedAt:     time.Now(),
		Metadata:      map[string]string{"channel": "cli"},
	})
	require.NoError(t, err)
}

func TestLogStore_FindByIdentity(t *testing.T) {
	ctx := context.Background()
	ls, err := sqlite.NewLogStore(testDBPath(t, "log"))
	require.NoError(t, err)
	defer func() { _ = ls.Close() }()

	seedLog(t, ls, "m1", "u-1", "", "hello")
	seedLog(t, ls, "m2", "u-1", "", "world")
	seedLog(t, ls, "m3", "u-2", "", "other user")
	seedLog(t, ls, "m4", "", "p-1", "participant message")

	refs, err := ls.FindByIdentity(ctx, userIdentity("u-1"))
	require.NoError(t, err)
	assert.Len(t, refs, 2)
	assert.Equal(t, "log", refs[0].Store)

	refs, err = ls.FindByIdentity(ctx, participantIdentity("p-1"))
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "m4", refs[0].RecordID)

	refs, err = ls.FindByIdentity(ctx, userIdentity("nobody"))
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestLogStore_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ls, err := sqlite.NewLogStore(testDBPath(t, "log-delete"))
	require.NoError(t, err)
	defer func() { _ = ls.Close() }()

	seedLog(t, ls, "m1", "u-1", "", "hello")

	require.NoError(t, ls.DeleteByID(ctx, "m1"))
	// Deleting a missing id is not an error.
	require.NoError(t, ls.DeleteByID(ctx, "m1"))
	require.NoError(t, ls.DeleteByID(ctx, "never-existed"))

	refs, err := ls.FindByIdentity(ctx, userIdentity("u-1"))
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestLogStore_SnapshotRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	ls, err := sqlite.NewLogStore(testDBPath(t, "log-restore"))
	require.NoError(t, err)
	defer func() { _ = ls.Close() }()

	seedLog(t, ls, "m1", "u-1", "", "precious content")

	ref := store.Reference{Store: "log", RecordID: "m1"}
	snap, err := ls.Snapshot(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "log", snap.Store)
	assert.Equal(t, "m1", snap.RecordID)

	require.NoError(t, ls.DeleteByID(ctx, "m1"))
	require.NoError(t, ls.Restore(ctx, snap))

	restored, err := ls.Snapshot(ctx, ref)
	require.NoError(t, err)
	assert.JSONEq(t, string(snap.Payload), string(restored.Payload))
}

func TestLogStore_SnapshotMissingRecord(t *testing.T) {
	ctx := context.Background()
	ls, err := sqlite.NewLogStore(testDBPath(t, "log-missing"))
	require.NoError(t, err)
	defer func() { _ = ls.Close() }()

	_, err = ls.Snapshot(ctx, store.Reference{Store: "log", RecordID: "ghost"})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLogStore_RestoreRejectsForeignSnapshot(t *testing.T) {
	ctx := context.Background()
	ls, err := sqlite.NewLogStore(testDBPath(t, "log-foreign"))
	require.NoError(t, err)
	defer func() { _ = ls.Close() }()

	err = ls.Restore(ctx, &store.Snapshot{Store: "facts", RecordID: "f1", Payload: []byte("{}")})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrSnapshotMismatch)
}
