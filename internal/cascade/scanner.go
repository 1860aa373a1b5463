// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package cascade

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/expunge-dev/expunge/internal/store"
	xerr "github.com/expunge-dev/expunge/pkg/errors"
)

// Scanner queries every adapter for records referencing an identity and
// assembles a fresh, single-use deletion plan. Reads fan out concurrently
// (bounded by the adapter count); a failed read is recorded on the plan and
// never blocks the other stores. There is no cross-store point-in-time
// consistency: a record created between scan and execution is missed.
type Scanner struct {
	adapters []store.Adapter
	logger   *slog.Logger
}

// NewScanner creates a scanner over the given adapters. Adapter order is
// preserved: plans list references layer by layer, and within a layer in
// registration order.
func NewScanner(adapters []store.Adapter) *Scanner {
	return &Scanner{adapters: adapters, logger: slog.Default()}
}

// Scan builds a deletion plan for the identity under the given options.
// Zero matches is a valid, non-error empty plan.
func (s *Scanner) Scan(ctx context.Context, identity store.Identity, opts Options) (*store.Plan, error) {
	if !identity.Valid() {
		return nil, xerr.New(xerr.CodeCascadeIdentityInvalid, "identity kind or value missing", xerr.FieldIdentity(identity.String()))
	}

	selected := s.selectAdapters(opts)

	var (
		mu      sync.Mutex
		found   = make(map[string][]store.Reference, len(selected))
		scanErr = make(map[string]error, len(selected))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(selected) + 1)
	for _, adapter := range selected {
		g.Go(func() error {
			refs, err := findWithTimeout(gctx, adapter, identity, opts.PerCallTimeout)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				scanErr[adapter.Name()] = err
				return nil
			}
			found[adapter.Name()] = refs
			return nil
		})
	}
	// Read goroutines report failures through scanErr, never through the group.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, xerr.Wrapf(err, xerr.CodeCascadeRunCancelled, "scan interrupted")
	}

	plan := &store.Plan{
		ID:        uuid.NewString(),
		Identity:  identity,
		CreatedAt: time.Now(),
	}

	for _, layer := range store.Layers() {
		for _, adapter := range selected {
			if adapter.Layer() != layer {
				continue
			}
			plan.Refs = append(plan.Refs, found[adapter.Name()]...)
		}
	}
	for _, adapter := range selected {
		if err, ok := scanErr[adapter.Name()]; ok {
			s.logger.Warn("store scan failed", "store", adapter.Name(), "identity", identity.String(), "error", err)
			plan.ScanErrors = append(plan.ScanErrors, store.ScanError{Store: adapter.Name(), Message: err.Error()})
		}
	}

	s.logger.Debug("scan complete",
		"identity", identity.String(),
		"plan_id", plan.ID,
		"matches", plan.Count(),
		"scan_errors", len(plan.ScanErrors),
	)

	return plan, nil
}

// selectAdapters applies the store subset and graph opt-out.
func (s *Scanner) selectAdapters(opts Options) []store.Adapter {
	var selected []store.Adapter
	for _, adapter := range s.adapters {
		if adapter.Layer() == store.LayerGraph && !opts.IncludeGraph {
			continue
		}
		if !opts.includes(adapter.Name()) {
			continue
		}
		selected = append(selected, adapter)
	}
	return selected
}

// findWithTimeout bounds a single FindByIdentity call.
func findWithTimeout(ctx context.Context, adapter store.Adapter, identity store.Identity, timeout time.Duration) ([]store.Reference, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	refs, err := adapter.FindByIdentity(ctx, identity)
	if err != nil {
		return nil, xerr.Wrap(err, xerr.CodeCascadeScanStoreFailure, "finding records", xerr.FieldStore(adapter.Name()), xerr.FieldIdentity(identity.String()))
	}
	return refs, nil
}
