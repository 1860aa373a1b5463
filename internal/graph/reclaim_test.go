// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package graph_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expunge-dev/expunge/internal/graph"
	xerr "github.com/expunge-dev/expunge/pkg/errors"
)

// faultyStore wraps a graph store and fails deletes for chosen ids.
type faultyStore struct {
	graph.Store
	failNodes map[string]bool
	failEdges map[string]bool
}

func (f *faultyStore) DeleteNode(ctx context.Context, id string) error {
	if f.failNodes[id] {
		return xerr.New(xerr.CodeGraphDatabaseFailure, "injected node failure")
	}
	return f.Store.DeleteNode(ctx, id)
}

func (f *faultyStore) DeleteEdge(ctx context.Context, id string) error {
	if f.failEdges[id] {
		return xerr.New(xerr.CodeGraphDatabaseFailure, "injected edge failure")
	}
	return f.Store.DeleteEdge(ctx, id)
}

func TestReclaimer_UnanchoredCycleIsDeleted(t *testing.T) {
	ctx := context.Background()
	gs := testGraph(t)

	// A is an anchor. B and C reference each other but nothing anchors them.
	putNode(t, gs, "a", "tenant", nil)
	putNode(t, gs, "b", "entity", nil)
	putNode(t, gs, "c", "entity", nil)
	putEdge(t, gs, "e1", "b", "c")
	putEdge(t, gs, "e2", "c", "b")

	rec := graph.NewReclaimer(gs, graph.NewAnchorRegistry("tenant"))
	report, err := rec.Reclaim(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, report.AnchorCount)
	assert.Equal(t, 1, report.ReachableCount)
	require.Len(t, report.Islands, 1)
	assert.Equal(t, []string{"b", "c"}, report.Islands[0].NodeIDs)
	assert.Equal(t, 2, report.DeletedNodes)
	assert.Equal(t, 2, report.DeletedEdges)
	assert.Empty(t, report.Errors)

	ids, err := gs.AllNodeIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestReclaimer_AnchoredCycleSurvives(t *testing.T) {
	ctx := context.Background()
	gs := testGraph(t)

	// A anchors E, and E sits on a cycle with F. The cycle is reachable,
	// so nothing may be deleted.
	putNode(t, gs, "a", "tenant", nil)
	putNode(t, gs, "e", "entity", nil)
	putNode(t, gs, "f", "entity", nil)
	putEdge(t, gs, "e1", "a", "e")
	putEdge(t, gs, "e2", "e", "f")
	putEdge(t, gs, "e3", "f", "e")

	rec := graph.NewReclaimer(gs, graph.NewAnchorRegistry("tenant"))
	report, err := rec.Reclaim(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, report.ReachableCount)
	assert.Empty(t, report.Islands)
	assert.Equal(t, 0, report.DeletedNodes)

	ids, err := gs.AllNodeIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestReclaimer_GroupsSeparateIslands(t *testing.T) {
	ctx := context.Background()
	gs := testGraph(t)

	putNode(t, gs, "a", "tenant", nil)
	// Island one: x1-x2.
	putNode(t, gs, "x1", "entity", nil)
	putNode(t, gs, "x2", "entity", nil)
	putEdge(t, gs, "e1", "x1", "x2")
	// Island two: a lone node.
	putNode(t, gs, "y1", "entity", nil)

	rec := graph.NewReclaimer(gs, graph.NewAnchorRegistry("tenant"))
	islands, err := rec.Preview(ctx, nil)
	require.NoError(t, err)

	require.Len(t, islands, 2)
	assert.Equal(t, []string{"x1", "x2"}, islands[0].NodeIDs)
	assert.Equal(t, []string{"y1"}, islands[1].NodeIDs)

	// Preview must not delete anything.
	ids, err := gs.AllNodeIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 4)
}

func TestReclaimer_ExcludedNodesAreNotCandidates(t *testing.T) {
	ctx := context.Background()
	gs := testGraph(t)

	// B is scheduled for deletion by the surrounding run; C hangs off B.
	// Excluding B leaves C unreachable, and C alone is the island.
	putNode(t, gs, "a", "tenant", nil)
	putNode(t, gs, "b", "person", nil)
	putNode(t, gs, "c", "entity", nil)
	putEdge(t, gs, "e1", "a", "b")
	putEdge(t, gs, "e2", "b", "c")

	rec := graph.NewReclaimer(gs, graph.NewAnchorRegistry("tenant"))
	islands, err := rec.Preview(ctx, map[string]bool{"b": true})
	require.NoError(t, err)

	require.Len(t, islands, 1)
	assert.Equal(t, []string{"c"}, islands[0].NodeIDs)
}

func TestReclaimer_ExcludedAnchorDoesNotSeed(t *testing.T) {
	ctx := context.Background()
	gs := testGraph(t)

	// The only anchor is itself scheduled for deletion. Everything it held
	// up becomes orphaned.
	putNode(t, gs, "a", "tenant", nil)
	putNode(t, gs, "b", "entity", nil)
	putEdge(t, gs, "e1", "a", "b")

	rec := graph.NewReclaimer(gs, graph.NewAnchorRegistry("tenant"))
	islands, err := rec.Preview(ctx, map[string]bool{"a": true})
	require.NoError(t, err)

	require.Len(t, islands, 1)
	assert.Equal(t, []string{"b"}, islands[0].NodeIDs)
}

func TestReclaimer_PartialFailureKeepsNodeWithSurvivingEdge(t *testing.T) {
	ctx := context.Background()
	gs := testGraph(t)

	putNode(t, gs, "a", "tenant", nil)
	putNode(t, gs, "b", "entity", nil)
	putNode(t, gs, "c", "entity", nil)
	putEdge(t, gs, "e1", "b", "c")

	faulty := &faultyStore{Store: gs, failEdges: map[string]bool{"e1": true}}
	rec := graph.NewReclaimer(faulty, graph.NewAnchorRegistry("tenant"))
	report, err := rec.Reclaim(ctx, nil)
	require.NoError(t, err)

	require.Len(t, report.Islands, 1)
	assert.True(t, report.Islands[0].Partial)
	assert.NotEmpty(t, report.Errors)

	// e1 could not be deleted, so neither endpoint node may go: a node is
	// only removed once all its edges are gone.
	ids, err := gs.AllNodeIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestReclaimer_NodeFailureDoesNotStrandIsland(t *testing.T) {
	ctx := context.Background()
	gs := testGraph(t)

	putNode(t, gs, "a", "tenant", nil)
	putNode(t, gs, "b", "entity", nil)
	putNode(t, gs, "c", "entity", nil)
	putEdge(t, gs, "e1", "b", "c")

	faulty := &faultyStore{Store: gs, failNodes: map[string]bool{"b": true}}
	rec := graph.NewReclaimer(faulty, graph.NewAnchorRegistry("tenant"))
	report, err := rec.Reclaim(ctx, nil)
	require.NoError(t, err)

	require.Len(t, report.Islands, 1)
	assert.True(t, report.Islands[0].Partial)
	assert.Equal(t, 1, report.DeletedNodes)
	assert.Equal(t, 1, report.DeletedEdges)

	// b survives this pass; a later run sees it as an orphan again.
	ids, err := gs.AllNodeIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestReclaimer_EmptyGraph(t *testing.T) {
	ctx := context.Background()
	gs := testGraph(t)

	rec := graph.NewReclaimer(gs, graph.NewAnchorRegistry("tenant"))
	report, err := rec.Reclaim(ctx, nil)
	require.NoError(t, err)

	assert.Zero(t, report.AnchorCount)
	assert.Zero(t, report.DeletedNodes)
	assert.Empty(t, report.Islands)
}
