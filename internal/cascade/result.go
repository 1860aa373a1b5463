// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package cascade

import (
	"time"

	"github.com/expunge-dev/expunge/internal/store"
)

// State is a phase of the cascade state machine.
type State string

const (
	StatePlanning  State = "planning"
	StateBackingUp State = "backing_up"
	StateExecuting State = "executing"
	StateVerifying State = "verifying"

	// Terminal states.
	StateCommitted  State = "committed"
	StateRolledBack State = "rolled_back"
	StateFailed     State = "failed"
)

// Terminal reports whether the state is an end state.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateRolledBack || s == StateFailed
}

// CascadeError describes one failed operation against one record.
type CascadeError struct {
	Store    string `json:"store" yaml:"store"`
	RecordID string `json:"record_id,omitempty" yaml:"record_id,omitempty"`
	Message  string `json:"message" yaml:"message"`
}

// VerificationResult reports residual references found in one store after
// a committed cascade. Residuals are visibility, not failure: they can
// legitimately appear when an adapter's identity matching is incomplete or
// new data arrived concurrently. A store that could not be re-scanned gets
// an entry with Error set; its residual count is unknown, not zero.
type VerificationResult struct {
	Store         string   `json:"store" yaml:"store"`
	ResidualCount int      `json:"residual_count" yaml:"residual_count"`
	ResidualIDs   []string `json:"residual_ids,omitempty" yaml:"residual_ids,omitempty"`
	Error         string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// Result describes exactly what one cascade run did: what was deleted,
// what was rolled back, and what needs manual follow-up. Callers always
// receive a Result for expected failure modes; a bare error signals misuse
// (invalid identity, destructive runs disabled).
type Result struct {
	RunID      string         `json:"run_id" yaml:"run_id"`
	Identity   store.Identity `json:"identity" yaml:"identity"`
	FinalState State          `json:"final_state" yaml:"final_state"`
	DryRun     bool           `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`

	// PlannedByStore counts the records matched during planning.
	PlannedByStore map[string]int `json:"planned_by_store" yaml:"planned_by_store"`
	// DeletedByStore counts the records actually deleted and not rolled back.
	DeletedByStore map[string]int `json:"deleted_by_store" yaml:"deleted_by_store"`

	// AffectedLayers lists the stores that were touched, in adapter
	// registration order.
	AffectedLayers []string `json:"affected_layers" yaml:"affected_layers"`

	OrphanNodesReclaimed int `json:"orphan_nodes_reclaimed,omitempty" yaml:"orphan_nodes_reclaimed,omitempty"`
	OrphanEdgesReclaimed int `json:"orphan_edges_reclaimed,omitempty" yaml:"orphan_edges_reclaimed,omitempty"`

	Errors       []CascadeError       `json:"errors,omitempty" yaml:"errors,omitempty"`
	Verification []VerificationResult `json:"verification,omitempty" yaml:"verification,omitempty"`

	Duration time.Duration `json:"duration" yaml:"duration"`
}

// TotalDeleted sums per-store deletion counts.
func (r *Result) TotalDeleted() int {
	total := 0
	for _, n := range r.DeletedByStore {
		total += n
	}
	return total
}
