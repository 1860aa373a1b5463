// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package cascade

import "time"

// Options control one cascade invocation.
type Options struct {
	// DryRun stops after planning; nothing is mutated.
	DryRun bool

	// Verify re-scans after a successful execution and attaches residual
	// counts to the committed result.
	Verify bool

	// IncludeGraph enables the graph layer (node deletion plus orphan
	// reclamation). Ignored when no graph adapter is configured.
	IncludeGraph bool

	// Stores restricts the cascade to a subset of adapters by name.
	// Empty means all configured adapters.
	Stores []string

	// PerCallTimeout bounds every single adapter call. Zero uses the
	// coordinator default.
	PerCallTimeout time.Duration

	// Timeout bounds the whole run. Zero uses the coordinator default.
	// An overall timeout during execution is treated as an execution
	// failure and triggers rollback.
	Timeout time.Duration
}

// includes reports whether the named store participates in this run.
func (o Options) includes(name string) bool {
	if len(o.Stores) == 0 {
		return true
	}
	for _, s := range o.Stores {
		if s == name {
			return true
		}
	}
	return false
}
