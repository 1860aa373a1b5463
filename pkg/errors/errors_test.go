// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package errors_test

import (
	stderrors "errors"
	"testing"

	xerr "github.com/expunge-dev/expunge/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// New / Errorf
// ---------------------------------------------------------------------------

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := xerr.New(
		xerr.CodeCascadeExecuteDeleteFailure,
		"delete failed mid-cascade",
		xerr.FieldStore("vector"),
		xerr.FieldRecordID("vec-7"),
	)

	require.Error(t, err)
	assert.Equal(t, xerr.CodeCascadeExecuteDeleteFailure, xerr.CodeOf(err))
	assert.True(t, xerr.HasCode(err, xerr.CodeCascadeExecuteDeleteFailure))

	fields := xerr.FieldsOf(err)
	assert.Equal(t, "vector", fields["store"])
	assert.Equal(t, "vec-7", fields["record_id"])
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("disk full")
	err := xerr.Errorf(xerr.CodeStoreDatabaseFailure, "write failed: %w", inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, xerr.CodeStoreDatabaseFailure, xerr.CodeOf(err))
}

// ---------------------------------------------------------------------------
// Wrap / With
// ---------------------------------------------------------------------------

func TestWrapPreservesWrappedErrorAndCode(t *testing.T) {
	root := stderrors.New("record missing")
	err := xerr.Wrap(
		root,
		xerr.CodeStoreRecordNotFound,
		"snapshotting record",
		xerr.FieldRecordID("rec-42"),
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.Equal(t, xerr.CodeStoreRecordNotFound, xerr.CodeOf(err))
	assert.True(t, xerr.IsNotFound(err))
	assert.Equal(t, "rec-42", xerr.FieldsOf(err)["record_id"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, xerr.Wrap(nil, xerr.CodeStoreDatabaseFailure, "ignored"))
	assert.NoError(t, xerr.Wrapf(nil, xerr.CodeStoreDatabaseFailure, "ignored %d", 1))
	assert.NoError(t, xerr.With(nil, xerr.FieldStore("log")))
}

func TestWithAddsFieldsAndKeepsCode(t *testing.T) {
	err := xerr.New(xerr.CodeCascadeRollbackRestoreFailure, "restore failed")
	err = xerr.With(err, xerr.FieldRunID("run-1"))

	assert.Equal(t, xerr.CodeCascadeRollbackRestoreFailure, xerr.CodeOf(err))
	assert.Equal(t, "run-1", xerr.FieldsOf(err)["run_id"])
}

// ---------------------------------------------------------------------------
// Classification
// ---------------------------------------------------------------------------

func TestCodeOfPlainErrorIsEmpty(t *testing.T) {
	assert.Equal(t, xerr.Code(""), xerr.CodeOf(stderrors.New("plain")))
	assert.Equal(t, xerr.Code(""), xerr.CodeOf(nil))
}

func TestClassificationPredicates(t *testing.T) {
	assert.True(t, xerr.IsNotFound(xerr.New(xerr.CodeGraphNodeNotFound, "gone")))
	assert.True(t, xerr.IsInvalidInput(xerr.New(xerr.CodeCascadeIdentityInvalid, "empty identity")))
	assert.True(t, xerr.IsTimeout(xerr.New(xerr.CodeCascadeRunTimeout, "deadline")))
	assert.True(t, xerr.IsNotAllowed(xerr.New(xerr.CodeCascadeRunNotAllowed, "destructive ops disabled")))
	assert.False(t, xerr.IsNotFound(xerr.New(xerr.CodeStoreDatabaseFailure, "boom")))
}

func TestIsFatalToCascade(t *testing.T) {
	fatal := []xerr.Code{
		xerr.CodeCascadeBackupSnapshotFailure,
		xerr.CodeCascadeExecuteDeleteFailure,
		xerr.CodeCascadeRunTimeout,
		xerr.CodeCascadeRunCancelled,
	}
	for _, code := range fatal {
		assert.True(t, xerr.IsFatalToCascade(xerr.New(code, "x")), string(code))
	}

	tolerated := []xerr.Code{
		xerr.CodeCascadeScanStoreFailure,
		xerr.CodeCascadeOrphanCleanupFailure,
		xerr.CodeCascadeVerifyResidualFound,
	}
	for _, code := range tolerated {
		assert.False(t, xerr.IsFatalToCascade(xerr.New(code, "x")), string(code))
	}
	assert.False(t, xerr.IsFatalToCascade(stderrors.New("plain")))
}
