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

func TestRecordStore_VersionsAccumulate(t *testing.T) {
	ctx := context.Background()
	rs, err := sqlite.NewRecordStore(testDBPath(t, "records"))
	require.NoError(t, err)
	defer func() { _ = rs.Close() }()

	owner := userIdentity("u-1")
	v, err := rs.Put(ctx, "rec-1", owner, "first draft")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = rs.Put(ctx, "rec-1", owner, "second draft")
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	latest, err := rs.Latest(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, "second draft", latest.Body)
}

func TestRecordStore_FindMatchesOwner(t *testing.T) {
	ctx := context.Background()
	rs, err := sqlite.NewRecordStore(testDBPath(t, "records-find"))
	require.NoError(t, err)
	defer func() { _ = rs.Close() }()

	_, err = rs.Put(ctx, "rec-1", userIdentity("u-1"), "a")
	require.NoError(t, err)
	_, err = rs.Put(ctx, "rec-1", userIdentity("u-1"), "b")
	require.NoError(t, err)
	_, err = rs.Put(ctx, "rec-2", userIdentity("u-2"), "c")
	require.NoError(t, err)
	_, err = rs.Put(ctx, "rec-3", participantIdentity("u-1"), "d")
	require.NoError(t, err)

	// Two versions of rec-1 are one logical record.
	refs, err := rs.FindByIdentity(ctx, userIdentity("u-1"))
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "rec-1", refs[0].RecordID)

	// Kinds are separate namespaces: participant u-1 is not user u-1.
	refs, err = rs.FindByIdentity(ctx, participantIdentity("u-1"))
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "rec-3", refs[0].RecordID)
}

func TestRecordStore_DeleteRemovesAllVersions(t *testing.T) {
	ctx := context.Background()
	rs, err := sqlite.NewRecordStore(testDBPath(t, "records-delete"))
	require.NoError(t, err)
	defer func() { _ = rs.Close() }()

	owner := userIdentity("u-1")
	for range 3 {
		_, err = rs.Put(ctx, "rec-1", owner, "body")
		require.NoError(t, err)
	}

	require.NoError(t, rs.DeleteByID(ctx, "rec-1"))
	require.NoError(t, rs.DeleteByID(ctx, "rec-1"))

	refs, err := rs.FindByIdentity(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestRecordStore_RestoreReinstatesHistory(t *testing.T) {
	ctx := context.Background()
	rs, err := sqlite.NewRecordStore(testDBPath(t, "records-restore"))
	require.NoError(t, err)
	defer func() { _ = rs.Close() }()

	owner := userIdentity("u-1")
	_, err = rs.Put(ctx, "rec-1", owner, "v1")
	require.NoError(t, err)
	_, err = rs.Put(ctx, "rec-1", owner, "v2")
	require.NoError(t, err)

	ref := store.Reference{Store: "records", RecordID: "rec-1"}
	snap, err := rs.Snapshot(ctx, ref)
	require.NoError(t, err)

	require.NoError(t, rs.DeleteByID(ctx, "rec-1"))
	require.NoError(t, rs.Restore(ctx, snap))

	latest, err := rs.Latest(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, "v2", latest.Body)

	restored, err := rs.Snapshot(ctx, ref)
	require.NoError(t, err)
	assert.JSONEq(t, string(snap.Payload), string(restored.Payload))
}
