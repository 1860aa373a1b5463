// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package cascade

import (
	"context"

	"github.com/expunge-dev/expunge/internal/store"
)

// Verifier re-applies the scanner after execution and reports per-store
// residual references. It never mutates. Residual accuracy is bounded by
// each adapter's identity matching: a store matching on a denormalized,
// stale field may under- or over-report, which is a documented limitation
// of that store, not of the verifier.
type Verifier struct {
	scanner *Scanner
}

// NewVerifier creates a verifier sharing the coordinator's scanner.
func NewVerifier(scanner *Scanner) *Verifier {
	return &Verifier{scanner: scanner}
}

// Verify re-scans the identity and returns one result per store that still
// has matches, plus one per store whose re-scan failed. An empty slice means
// a clean verification; an unreadable store is never reported clean.
func (v *Verifier) Verify(ctx context.Context, identity store.Identity, opts Options) ([]VerificationResult, error) {
	plan, err := v.scanner.Scan(ctx, identity, opts)
	if err != nil {
		return nil, err
	}

	byStore := make(map[string][]string)
	for _, ref := range plan.Refs {
		byStore[ref.Store] = append(byStore[ref.Store], ref.RecordID)
	}

	var results []VerificationResult
	// Plan.Refs is already layer-ordered; walk it once more to keep the
	// per-store results in the same order.
	seen := make(map[string]bool)
	for _, ref := range plan.Refs {
		if seen[ref.Store] {
			continue
		}
		seen[ref.Store] = true
		ids := byStore[ref.Store]
		results = append(results, VerificationResult{
			Store:         ref.Store,
			ResidualCount: len(ids),
			ResidualIDs:   ids,
		})
	}

	for _, se := range plan.ScanErrors {
		results = append(results, VerificationResult{Store: se.Store, Error: se.Message})
	}

	return results, nil
}
