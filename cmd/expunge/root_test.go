// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package main

import (
	"bytes"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	err := root.Execute()
	return buf.String(), err
}

func TestRootCommand_Help(t *testing.T) {
	out, err := runCLI(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "expunge")
	assert.Contains(t, out, "plan")
	assert.Contains(t, out, "purge")
	assert.Contains(t, out, "verify")
	assert.Contains(t, out, "version")
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "expunge")
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	out, err := runCLI(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "--config")
	assert.Contains(t, out, "--data-dir")
	assert.Contains(t, out, "--verbose")
}

func TestPlanCommand_RequiresIdentity(t *testing.T) {
	_, err := runCLI(t, "plan")
	assert.Error(t, err)
}

func TestPlanCommand_RejectsBothIdentities(t *testing.T) {
	_, err := runCLI(t, "plan", "--user", "u-1", "--participant", "p-1")
	assert.Error(t, err)
}

func TestPlanCommand_EmptyStores(t *testing.T) {
	out, err := runCLI(t, "plan", "--user", "u-1", "--data-dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "identity: user:u-1")
	assert.Contains(t, out, "total: 0")
}

func TestPurgeCommand_DryRun(t *testing.T) {
	out, err := runCLI(t, "purge", "--user", "u-1", "--dry-run", "--data-dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "final_state: committed")
	assert.Contains(t, out, "dry_run: true")
}

func TestPurgeCommand_DestructiveGate(t *testing.T) {
	// destructive_allowed defaults to false, so a non-dry-run purge is
	// refused even with confirmation skipped.
	_, err := runCLI(t, "purge", "--user", "u-1", "--yes", "--data-dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestVerifyCommand_Clean(t *testing.T) {
	out, err := runCLI(t, "verify", "--user", "u-1", "--data-dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "clean")
}

func TestRootCommand_MissingConfigFile(t *testing.T) {
	_, err := runCLI(t, "plan", "--user", "u-1", "--config", "/nonexistent/path.yaml")
	assert.Error(t, err)
}
