// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package graph

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	xerr "github.com/expunge-dev/expunge/pkg/errors"
)

// Island is a maximal connected group of nodes unreachable from any anchor.
// By construction no island has an edge to another island, so islands can
// be deleted independently.
type Island struct {
	NodeIDs []string
}

// IslandResult records the outcome of deleting one island.
type IslandResult struct {
	NodeIDs      []string
	DeletedNodes int
	DeletedEdges int
	// Partial is true when at least one delete inside the island failed.
	// The island is then marked partially cleaned; a later run will see the
	// survivors as orphans again.
	Partial bool
	Errors  []error
}

// ReclaimReport summarizes one orphan-reclamation pass.
type ReclaimReport struct {
	AnchorCount    int
	ReachableCount int
	Islands        []IslandResult
	DeletedNodes   int
	DeletedEdges   int
	Errors         []error
}

// Reclaimer finds and deletes orphan islands. Orphan state is recomputed
// fully on every run; there is no persisted reachability index.
type Reclaimer struct {
	store   Store
	anchors *AnchorRegistry
	logger  *slog.Logger
}

// NewReclaimer creates a reclaimer over the given store and anchor registry.
func NewReclaimer(store Store, anchors *AnchorRegistry) *Reclaimer {
	return &Reclaimer{store: store, anchors: anchors, logger: slog.Default()}
}

// Reclaim deletes every orphan island and reports what happened. exclude
// names nodes scheduled for deletion by the surrounding cascade: they are
// removed from the anchor seed set and skipped as orphan candidates, since
// the cascade deletes them itself.
//
// Island deletions run concurrently across islands; within one island,
// edges are deleted before their endpoint node, sequentially. A failure
// inside one island never aborts the others: orphan cleanup errors are
// recorded, not fatal to the surrounding cascade.
func (r *Reclaimer) Reclaim(ctx context.Context, exclude map[string]bool) (*ReclaimReport, error) {
	islands, report, err := r.findIslands(ctx, exclude)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		results = make([]IslandResult, len(islands))
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, island := range islands {
		g.Go(func() error {
			res := r.deleteIsland(gctx, island)
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	// Island goroutines never return errors; failures land in IslandResult.
	_ = g.Wait()

	for _, res := range results {
		report.Islands = append(report.Islands, res)
		report.DeletedNodes += res.DeletedNodes
		report.DeletedEdges += res.DeletedEdges
		report.Errors = append(report.Errors, res.Errors...)
	}

	r.logger.Info("orphan reclamation finished",
		"anchors", report.AnchorCount,
		"reachable", report.ReachableCount,
		"islands", len(report.Islands),
		"deleted_nodes", report.DeletedNodes,
		"deleted_edges", report.DeletedEdges,
		"errors", len(report.Errors),
	)

	return report, nil
}

// Preview computes the orphan islands without deleting anything.
func (r *Reclaimer) Preview(ctx context.Context, exclude map[string]bool) ([]Island, error) {
	islands, _, err := r.findIslands(ctx, exclude)
	return islands, err
}

// findIslands runs the two-pass reachability analysis: an anchored BFS over
// undirected adjacency marks everything reachable, then a second BFS
// restricted to unreached nodes groups them into connected components.
func (r *Reclaimer) findIslands(ctx context.Context, exclude map[string]bool) ([]Island, *ReclaimReport, error) {
	report := &ReclaimReport{}

	// Pass 0: seed with every anchor-typed node not scheduled for deletion.
	var seeds []string
	for _, anchorType := range r.anchors.Types() {
		nodes, err := r.store.NodesByType(ctx, anchorType)
		if err != nil {
			return nil, nil, xerr.Wrapf(err, xerr.CodeCascadeOrphanCleanupFailure, "listing anchor nodes of type %s", anchorType)
		}
		for _, node := range nodes {
			if !exclude[node.ID] {
				seeds = append(seeds, node.ID)
			}
		}
	}
	report.AnchorCount = len(seeds)

	// Pass 1: BFS from all anchors. One global visited set; every node is
	// enqueued at most once, which guarantees termination despite cycles.
	visited := make(map[string]bool, len(seeds))
	queue := make([]string, 0, len(seeds))
	for _, id := range seeds {
		if !visited[id] {
			visited[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, nil, xerr.Wrapf(err, xerr.CodeCascadeOrphanCleanupFailure, "reachability search interrupted")
		}
		id := queue[0]
		queue = queue[1:]

		edges, err := r.store.IncidentEdges(ctx, id)
		if err != nil {
			return nil, nil, xerr.Wrapf(err, xerr.CodeCascadeOrphanCleanupFailure, "listing edges of %s", id)
		}
		for _, edge := range edges {
			next := edge.Other(id)
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	report.ReachableCount = len(visited)

	// Pass 2: everything unvisited is an orphan. Group orphans into
	// connected components with a BFS restricted to unreachable nodes.
	allIDs, err := r.store.AllNodeIDs(ctx)
	if err != nil {
		return nil, nil, xerr.Wrapf(err, xerr.CodeCascadeOrphanCleanupFailure, "listing all nodes")
	}

	orphan := make(map[string]bool)
	for _, id := range allIDs {
		if !visited[id] && !exclude[id] {
			orphan[id] = true
		}
	}

	var islands []Island
	grouped := make(map[string]bool, len(orphan))
	for _, id := range allIDs {
		if !orphan[id] || grouped[id] {
			continue
		}

		var members []string
		grouped[id] = true
		queue = append(queue[:0], id)
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			members = append(members, cur)

			edges, err := r.store.IncidentEdges(ctx, cur)
			if err != nil {
				return nil, nil, xerr.Wrapf(err, xerr.CodeCascadeOrphanCleanupFailure, "listing edges of %s", cur)
			}
			for _, edge := range edges {
				next := edge.Other(cur)
				if orphan[next] && !grouped[next] {
					grouped[next] = true
					queue = append(queue, next)
				}
			}
		}

		sort.Strings(members)
		islands = append(islands, Island{NodeIDs: members})
	}

	return islands, report, nil
}

// deleteIsland removes one island: for each node, incident edges first,
// then the node. Failures are recorded and the remaining members are still
// attempted, so one bad node does not strand the whole island.
func (r *Reclaimer) deleteIsland(ctx context.Context, island Island) IslandResult {
	res := IslandResult{NodeIDs: island.NodeIDs}

	for _, nodeID := range island.NodeIDs {
		if err := ctx.Err(); err != nil {
			res.Partial = true
			res.Errors = append(res.Errors, xerr.Wrapf(err, xerr.CodeCascadeOrphanCleanupFailure, "island deletion interrupted at %s", nodeID))
			return res
		}

		edges, err := r.store.IncidentEdges(ctx, nodeID)
		if err != nil {
			res.Partial = true
			res.Errors = append(res.Errors, xerr.Wrap(err, xerr.CodeCascadeOrphanCleanupFailure, "listing edges", xerr.FieldNodeID(nodeID)))
			continue
		}

		failed := false
		for _, edge := range edges {
			if err := r.store.DeleteEdge(ctx, edge.ID); err != nil {
				failed = true
				res.Partial = true
				res.Errors = append(res.Errors, xerr.Wrap(err, xerr.CodeCascadeOrphanCleanupFailure, "deleting edge", xerr.FieldNodeID(nodeID), xerr.Field("edge_id", edge.ID)))
				continue
			}
			res.DeletedEdges++
		}
		// Keep the node if any of its edges survived, so no edge dangles.
		if failed {
			continue
		}

		if err := r.store.DeleteNode(ctx, nodeID); err != nil {
			res.Partial = true
			res.Errors = append(res.Errors, xerr.Wrap(err, xerr.CodeCascadeOrphanCleanupFailure, "deleting node", xerr.FieldNodeID(nodeID)))
			continue
		}
		res.DeletedNodes++
	}

	return res
}
