// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package store

import "errors"

// Sentinel errors for adapter implementations.
// These errors can be checked using errors.Is() for classification.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input parameters are invalid or malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSnapshotMismatch indicates a snapshot was handed to an adapter
	// that did not produce it.
	ErrSnapshotMismatch = errors.New("snapshot store mismatch")

	// ErrDatabase indicates a general database error occurred.
	// This is a catch-all for unexpected database failures.
	ErrDatabase = errors.New("database error")
)
