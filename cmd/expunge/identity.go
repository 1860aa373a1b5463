// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/expunge-dev/expunge/internal/store"
	xerr "github.com/expunge-dev/expunge/pkg/errors"
)

// addIdentityFlags registers the mutually exclusive identity selectors.
func addIdentityFlags(cmd *cobra.Command) {
	cmd.Flags().String("user", "", "user id to target")
	cmd.Flags().String("participant", "", "participant id to target")
	cmd.MarkFlagsMutuallyExclusive("user", "participant")
	cmd.MarkFlagsOneRequired("user", "participant")
}

// identityFromFlags resolves the target identity from --user/--participant.
func identityFromFlags(cmd *cobra.Command) (store.Identity, error) {
	if userID, _ := cmd.Flags().GetString("user"); userID != "" {
		return store.Identity{Kind: store.IdentityUser, Value: userID}, nil
	}
	if participantID, _ := cmd.Flags().GetString("participant"); participantID != "" {
		return store.Identity{Kind: store.IdentityParticipant, Value: participantID}, nil
	}
	return store.Identity{}, xerr.New(xerr.CodeCascadeIdentityInvalid, "either --user or --participant is required")
}
