// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	// Cascade phase errors. The middle segment names the state-machine
	// phase that produced the error.
	CodeCascadeScanStoreFailure       Code = "cascade.scan.store_failure"
	CodeCascadeBackupSnapshotFailure  Code = "cascade.backup.snapshot_failure"
	CodeCascadeExecuteDeleteFailure   Code = "cascade.execute.delete_failure"
	CodeCascadeRollbackRestoreFailure Code = "cascade.rollback.restore_failure"
	CodeCascadeOrphanCleanupFailure   Code = "cascade.graph.orphan_cleanup_failure"
	CodeCascadeVerifyResidualFound    Code = "cascade.verify.residual_found"
	CodeCascadeRunNotAllowed          Code = "cascade.run.not_allowed"
	CodeCascadeRunTimeout             Code = "cascade.run.timeout"
	CodeCascadeRunCancelled           Code = "cascade.run.cancelled"
	CodeCascadeIdentityInvalid        Code = "cascade.identity.invalid_input"

	CodeStoreDatabaseFailure Code = "store.database.failure"
	CodeStoreRecordNotFound  Code = "store.record.not_found"
	CodeStoreInvalidInput    Code = "store.invalid_input"
	CodeStoreSnapshotInvalid Code = "store.snapshot.invalid_input"
	CodeStoreConflict        Code = "store.conflict"

	CodeGraphDatabaseFailure Code = "graph.database.failure"
	CodeGraphNodeNotFound    Code = "graph.node.not_found"
	CodeGraphEdgeInvalid     Code = "graph.edge.invalid_input"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeCLIInputInvalid  Code = "cli.input.invalid"
	CodeCLISetupFailure  Code = "cli.setup.failure"
	CodeCLIConfirmDenied Code = "cli.confirm.denied"
	CodeCLIRunFailed     Code = "cli.run.failure"

	CodeInternalFailure Code = "internal.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldStore(value string) Attr {
	return Field("store", value)
}

func FieldRecordID(value string) Attr {
	return Field("record_id", value)
}

func FieldIdentity(value string) Attr {
	return Field("identity", value)
}

func FieldRunID(value string) Attr {
	return Field("run_id", value)
}

func FieldNodeID(value string) Attr {
	return Field("node_id", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func IsNotAllowed(err error) bool {
	r := reason(CodeOf(err))
	return r == "not_allowed" || r == "denied"
}

// IsFatalToCascade reports whether an error belongs to the phase-fatal
// part of the taxonomy: backup and execution failures abort a run, while
// scan, orphan-cleanup, and verification findings never do.
func IsFatalToCascade(err error) bool {
	switch CodeOf(err) {
	case CodeCascadeBackupSnapshotFailure,
		CodeCascadeExecuteDeleteFailure,
		CodeCascadeRunTimeout,
		CodeCascadeRunCancelled:
		return true
	default:
		return false
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
