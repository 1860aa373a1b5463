// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/expunge-dev/expunge/internal/cascade"
	xerr "github.com/expunge-dev/expunge/pkg/errors"
)

func newPurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every record referencing an identity",
		Long:  "Run a full cascade: scan, back up, delete layer by layer, reclaim graph orphans, and verify. Execution failures roll back from the backup.",
		RunE:  runPurge,
	}

	addIdentityFlags(cmd)
	cmd.Flags().Bool("dry-run", false, "plan only, mutate nothing")
	cmd.Flags().BoolP("yes", "y", false, "skip the interactive confirmation")
	cmd.Flags().Bool("skip-graph", false, "leave the graph layer untouched")
	cmd.Flags().StringSlice("stores", nil, "restrict the cascade to these stores")

	return cmd
}

func runPurge(cmd *cobra.Command, _ []string) error {
	identity, err := identityFromFlags(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engine, err := wireEngine(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	opts := engine.Options()
	opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
	if skip, _ := cmd.Flags().GetBool("skip-graph"); skip {
		opts.IncludeGraph = false
	}
	if stores, _ := cmd.Flags().GetStringSlice("stores"); len(stores) > 0 {
		opts.Stores = stores
	}

	if !opts.DryRun {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			if err := confirmPurge(cmd, identity.Value); err != nil {
				return err
			}
		}
	}

	result, err := engine.Coordinator.Run(cmd.Context(), identity, opts)
	if err != nil {
		return err
	}

	if err := yaml.NewEncoder(cmd.OutOrStdout()).Encode(result); err != nil {
		return err
	}
	if result.FinalState != cascade.StateCommitted {
		return xerr.New(xerr.CodeCLIRunFailed, fmt.Sprintf("cascade ended in state %s", result.FinalState),
			xerr.FieldRunID(result.RunID))
	}
	return nil
}

// confirmPurge makes the operator type the identity value back before a
// destructive run proceeds.
func confirmPurge(cmd *cobra.Command, value string) error {
	fmt.Fprintf(cmd.OutOrStdout(),
		"This permanently deletes every record for this identity across all stores.\nType %q to confirm: ", value)

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil {
		return xerr.Errorf(xerr.CodeCLIConfirmDenied, "reading confirmation: %w", err)
	}
	if strings.TrimSpace(line) != value {
		return xerr.New(xerr.CodeCLIConfirmDenied, "confirmation mismatch, aborting")
	}
	return nil
}
