// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package store_test

import (
	"testing"

	"github.com/expunge-dev/expunge/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestIdentityString(t *testing.T) {
	id := store.Identity{Kind: store.IdentityUser, Value: "u-1"}
	assert.Equal(t, "user:u-1", id.String())

	id = store.Identity{Kind: store.IdentityParticipant, Value: "p-9"}
	assert.Equal(t, "participant:p-9", id.String())
}

func TestIdentityValid(t *testing.T) {
	assert.True(t, store.Identity{Kind: store.IdentityUser, Value: "u-1"}.Valid())
	assert.False(t, store.Identity{Kind: store.IdentityUser}.Valid())
	assert.False(t, store.Identity{Kind: "robot", Value: "r-1"}.Valid())
}

func TestLayersOrder(t *testing.T) {
	layers := store.Layers()
	assert.Equal(t, []store.Layer{
		store.LayerDerived,
		store.LayerStructural,
		store.LayerGraph,
		store.LayerIdentity,
	}, layers)
	assert.Equal(t, "derived", store.LayerDerived.String())
	assert.Equal(t, "identity", store.LayerIdentity.String())
}

func TestPlanCounts(t *testing.T) {
	plan := &store.Plan{
		Refs: []store.Reference{
			{Store: "vector", RecordID: "v1"},
			{Store: "vector", RecordID: "v2"},
			{Store: "log", RecordID: "m1"},
		},
	}

	assert.Equal(t, 3, plan.Count())
	assert.Equal(t, map[string]int{"vector": 2, "log": 1}, plan.CountByStore())
	assert.Len(t, plan.RefsForStore("vector"), 2)
	assert.Empty(t, plan.RefsForStore("facts"))
}
