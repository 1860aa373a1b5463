// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

// Package cascade implements the cross-store deletion engine: scan, backup,
// ordered execution with rollback, graph orphan reclamation, and post-run
// verification, orchestrated by a single state machine per invocation.
package cascade

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/expunge-dev/expunge/internal/graph"
	"github.com/expunge-dev/expunge/internal/store"
	xerr "github.com/expunge-dev/expunge/pkg/errors"
)

// Config carries the coordinator's construction-time settings. The
// destructive gate is an explicit value handed in by the caller, never an
// ambient environment check.
type Config struct {
	// DestructiveAllowed permits non-dry-run cascades. When false, Run
	// refuses anything but DryRun invocations.
	DestructiveAllowed bool

	// PerCallTimeout is the default bound on a single adapter call.
	PerCallTimeout time.Duration

	// Timeout is the default bound on a whole run.
	Timeout time.Duration
}

// Coordinator orchestrates one cascade at a time per invocation:
// Planning -> BackingUp -> Executing -> Verifying -> terminal state.
// Plans and backups belong exclusively to one invocation; concurrent runs
// for non-overlapping identities against the same stores are safe. Two
// runs racing over overlapping data yield last-delete-wins with no error,
// a documented limitation of the non-locking design.
type Coordinator struct {
	adapters  []store.Adapter
	scanner   *Scanner
	reclaimer *graph.Reclaimer
	cfg       Config
	logger    *slog.Logger
}

// New creates a coordinator over the given adapters. Adapter registration
// order fixes the within-layer execution order and the AffectedLayers
// ordering on results. reclaimer may be nil when no graph store is
// configured.
func New(adapters []store.Adapter, reclaimer *graph.Reclaimer, cfg Config) *Coordinator {
	return &Coordinator{
		adapters:  adapters,
		scanner:   NewScanner(adapters),
		reclaimer: reclaimer,
		cfg:       cfg,
		logger:    slog.Default(),
	}
}

// Plan builds a preview plan without mutating anything.
func (c *Coordinator) Plan(ctx context.Context, identity store.Identity, opts Options) (*store.Plan, error) {
	c.applyDefaults(&opts)
	return c.scanner.Scan(ctx, identity, opts)
}

// Run executes a full cascade for the identity and always returns a Result
// describing what happened, except on caller misuse (invalid identity,
// destructive runs disabled) where it returns a bare error.
//
// An empty plan commits immediately, with one exception: when the graph
// layer is active, the run still performs the orphan pass, so islands left
// behind by an earlier partial cleanup are reclaimed on retry.
func (c *Coordinator) Run(ctx context.Context, identity store.Identity, opts Options) (*Result, error) {
	c.applyDefaults(&opts)

	if !opts.DryRun && !c.cfg.DestructiveAllowed {
		return nil, xerr.New(xerr.CodeCascadeRunNotAllowed,
			"destructive cascades are disabled; enable cascade.destructive_allowed or use dry-run",
			xerr.FieldIdentity(identity.String()))
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	run := &runState{
		result: &Result{
			RunID:          uuid.NewString(),
			Identity:       identity,
			DryRun:         opts.DryRun,
			PlannedByStore: map[string]int{},
			DeletedByStore: map[string]int{},
		},
		backup: newBackup(),
		start:  time.Now(),
	}
	logger := c.logger.With("run_id", run.result.RunID, "identity", identity.String())

	// Planning.
	logger.Info("cascade state", "state", StatePlanning)
	plan, err := c.scanner.Scan(ctx, identity, opts)
	if err != nil {
		return nil, err
	}
	run.result.PlannedByStore = plan.CountByStore()
	for _, se := range plan.ScanErrors {
		run.result.Errors = append(run.result.Errors, CascadeError{Store: se.Store, Message: se.Message})
	}

	if opts.DryRun {
		return c.finish(run, StateCommitted, logger), nil
	}

	if plan.Count() == 0 && !c.graphLayerActive(opts) {
		// Nothing matched anywhere and no orphan pass to run. With the
		// graph layer active the run proceeds even on an empty plan: the
		// orphan pass must still get its chance to sweep leftover islands.
		return c.finish(run, StateCommitted, logger), nil
	}

	// BackingUp. A snapshot failure here aborts before any mutation, so
	// no rollback is needed.
	logger.Info("cascade state", "state", StateBackingUp, "records", plan.Count())
	if err := c.backUp(ctx, plan, run, opts); err != nil {
		run.result.Errors = append(run.result.Errors, toCascadeError(err))
		logger.Error("backup failed, aborting pre-mutation", "error", err)
		return c.finish(run, StateFailed, logger), nil
	}

	// Executing.
	logger.Info("cascade state", "state", StateExecuting)
	if execErr := c.execute(ctx, plan, run, opts, logger); execErr != nil {
		run.result.Errors = append(run.result.Errors, toCascadeError(execErr))
		return c.rollback(run, logger), nil
	}
	run.backup.discard()

	// Verifying. Residuals never demote a committed result.
	if opts.Verify {
		logger.Info("cascade state", "state", StateVerifying)
		verification, err := NewVerifier(c.scanner).Verify(ctx, identity, opts)
		if err != nil {
			run.result.Errors = append(run.result.Errors, toCascadeError(err))
		}
		run.result.Verification = verification
	}

	return c.finish(run, StateCommitted, logger), nil
}

// runState bundles the per-invocation mutable pieces.
type runState struct {
	result *Result
	backup *backup
	// deleted lists successfully deleted references in completion order;
	// rollback walks it in reverse.
	deleted []store.Reference
	mu      sync.Mutex
	start   time.Time
}

func (r *runState) markDeleted(ref store.Reference) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, ref)
	r.result.DeletedByStore[ref.Store]++
}

func (c *Coordinator) applyDefaults(opts *Options) {
	if opts.PerCallTimeout == 0 {
		opts.PerCallTimeout = c.cfg.PerCallTimeout
	}
	if opts.Timeout == 0 {
		opts.Timeout = c.cfg.Timeout
	}
}

func (c *Coordinator) graphLayerActive(opts Options) bool {
	if !opts.IncludeGraph || c.reclaimer == nil {
		return false
	}
	for _, adapter := range c.adapters {
		if adapter.Layer() == store.LayerGraph && opts.includes(adapter.Name()) {
			return true
		}
	}
	return false
}

func (c *Coordinator) adapterByName(name string) store.Adapter {
	for _, adapter := range c.adapters {
		if adapter.Name() == name {
			return adapter
		}
	}
	return nil
}

// backUp snapshots every planned reference, re-reading immediately before
// mutation to minimize staleness.
func (c *Coordinator) backUp(ctx context.Context, plan *store.Plan, run *runState, opts Options) error {
	for _, ref := range plan.Refs {
		if err := ctx.Err(); err != nil {
			return xerr.Wrapf(err, xerr.CodeCascadeBackupSnapshotFailure, "backup interrupted")
		}

		adapter := c.adapterByName(ref.Store)
		if adapter == nil {
			return xerr.New(xerr.CodeCascadeBackupSnapshotFailure, "plan references unknown store", xerr.FieldStore(ref.Store))
		}

		snap, err := snapshotWithTimeout(ctx, adapter, ref, opts.PerCallTimeout)
		if err != nil {
			return xerr.Wrap(err, xerr.CodeCascadeBackupSnapshotFailure, "snapshotting record",
				xerr.FieldStore(ref.Store), xerr.FieldRecordID(ref.RecordID))
		}
		run.backup.add(ref, snap)
	}
	return nil
}

func snapshotWithTimeout(ctx context.Context, adapter store.Adapter, ref store.Reference, timeout time.Duration) (*store.Snapshot, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return adapter.Snapshot(ctx, ref)
}

// execute deletes layer by layer: concurrent across stores within a layer,
// sequential within one store. The graph layer additionally runs orphan
// reclamation after the identity's own nodes are gone. Cancellation is
// honored between deletes, never mid-delete: each delete runs under a
// detached, per-call-bounded context so an in-flight call completes before
// the run aborts.
func (c *Coordinator) execute(ctx context.Context, plan *store.Plan, run *runState, opts Options, logger *slog.Logger) error {
	for _, layer := range store.Layers() {
		g, gctx := errgroup.WithContext(ctx)

		for _, adapter := range c.adapters {
			if adapter.Layer() != layer {
				continue
			}
			refs := plan.RefsForStore(adapter.Name())
			if len(refs) == 0 {
				continue
			}

			g.Go(func() error {
				for _, ref := range refs {
					if err := gctx.Err(); err != nil {
						return xerr.Wrap(err, executionInterruptCode(ctx), "execution interrupted",
							xerr.FieldStore(ref.Store), xerr.FieldRecordID(ref.RecordID))
					}

					callCtx, cancel := detachedCallCtx(gctx, opts.PerCallTimeout)
					err := adapter.DeleteByID(callCtx, ref.RecordID)
					cancel()
					if err != nil {
						return xerr.Wrap(err, xerr.CodeCascadeExecuteDeleteFailure, "deleting record",
							xerr.FieldStore(ref.Store), xerr.FieldRecordID(ref.RecordID))
					}
					run.markDeleted(ref)
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return xerr.Wrapf(err, executionInterruptCode(ctx), "execution interrupted after layer %s", layer)
		}

		if layer == store.LayerGraph && c.graphLayerActive(opts) {
			c.reclaimOrphans(ctx, plan, run, logger)
		}
	}
	return nil
}

// reclaimOrphans runs the orphan pass. Its failures are recorded on the
// result but never change the cascade's terminal outcome.
func (c *Coordinator) reclaimOrphans(ctx context.Context, plan *store.Plan, run *runState, logger *slog.Logger) {
	exclude := make(map[string]bool)
	for _, ref := range plan.Refs {
		adapter := c.adapterByName(ref.Store)
		if adapter != nil && adapter.Layer() == store.LayerGraph {
			exclude[ref.RecordID] = true
		}
	}

	report, err := c.reclaimer.Reclaim(ctx, exclude)
	if err != nil {
		logger.Warn("orphan reclamation failed", "error", err)
		run.result.Errors = append(run.result.Errors, toCascadeError(err))
		return
	}

	run.result.OrphanNodesReclaimed = report.DeletedNodes
	run.result.OrphanEdgesReclaimed = report.DeletedEdges
	for _, rerr := range report.Errors {
		run.result.Errors = append(run.result.Errors, toCascadeError(rerr))
	}
}

// rollback restores already-deleted records in reverse order, best-effort:
// a failed restore is recorded and the remaining restores still run.
func (c *Coordinator) rollback(run *runState, logger *slog.Logger) *Result {
	logger.Warn("execution failed, rolling back", "deleted", len(run.deleted))

	// Rollback must proceed even when the run's context is gone, so each
	// restore runs under a fresh per-call-bounded context.
	failed := 0
	for i := len(run.deleted) - 1; i >= 0; i-- {
		ref := run.deleted[i]
		adapter := c.adapterByName(ref.Store)
		snap, ok := run.backup.get(ref)
		if adapter == nil || !ok {
			failed++
			run.result.Errors = append(run.result.Errors, CascadeError{
				Store: ref.Store, RecordID: ref.RecordID, Message: "no backup snapshot for deleted record",
			})
			continue
		}

		callCtx, cancel := detachedCallCtx(context.Background(), c.cfg.PerCallTimeout)
		err := adapter.Restore(callCtx, snap)
		cancel()
		if err != nil {
			failed++
			rerr := xerr.Wrap(err, xerr.CodeCascadeRollbackRestoreFailure, "restoring record",
				xerr.FieldStore(ref.Store), xerr.FieldRecordID(ref.RecordID))
			run.result.Errors = append(run.result.Errors, toCascadeError(rerr))
			logger.Error("restore failed", "store", ref.Store, "record_id", ref.RecordID, "error", err)
			continue
		}
		run.result.DeletedByStore[ref.Store]--
		if run.result.DeletedByStore[ref.Store] == 0 {
			delete(run.result.DeletedByStore, ref.Store)
		}
	}
	run.backup.discard()

	if failed > 0 {
		logger.Error("rollback incomplete, operator attention required", "failed_restores", failed)
		return c.finish(run, StateFailed, logger)
	}
	return c.finish(run, StateRolledBack, logger)
}

// finish stamps the terminal state, affected layers, and duration.
func (c *Coordinator) finish(run *runState, state State, logger *slog.Logger) *Result {
	res := run.result
	res.FinalState = state
	res.Duration = time.Since(run.start)

	for _, adapter := range c.adapters {
		name := adapter.Name()
		touched := res.DeletedByStore[name] > 0
		if res.DryRun {
			touched = res.PlannedByStore[name] > 0
		}
		if adapter.Layer() == store.LayerGraph && (res.OrphanNodesReclaimed > 0 || res.OrphanEdgesReclaimed > 0) {
			touched = true
		}
		if touched {
			res.AffectedLayers = append(res.AffectedLayers, name)
		}
	}

	logger.Info("cascade finished",
		"state", state,
		"deleted", res.TotalDeleted(),
		"orphan_nodes", res.OrphanNodesReclaimed,
		"errors", len(res.Errors),
		"duration", res.Duration,
	)
	return res
}

// detachedCallCtx derives a context for a single mutating call: detached
// from the run's cancellation so the in-flight call completes, but bounded
// by the per-call timeout.
func detachedCallCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if timeout > 0 {
		return context.WithTimeout(base, timeout)
	}
	return context.WithCancel(base)
}

// executionInterruptCode distinguishes deadline expiry from caller
// cancellation for the execution-failure error.
func executionInterruptCode(ctx context.Context) xerr.Code {
	if ctx.Err() == context.DeadlineExceeded {
		return xerr.CodeCascadeRunTimeout
	}
	return xerr.CodeCascadeRunCancelled
}

// toCascadeError flattens a coded error into the result's error list.
func toCascadeError(err error) CascadeError {
	ce := CascadeError{Message: err.Error()}
	fields := xerr.FieldsOf(err)
	if s, ok := fields["store"].(string); ok {
		ce.Store = s
	}
	if id, ok := fields["record_id"].(string); ok {
		ce.RecordID = id
	}
	return ce
}
