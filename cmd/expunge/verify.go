// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/expunge-dev/expunge/internal/cascade"
)

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a purged identity for residual records",
		Long:  "Re-scan every store for the identity and report any records still referencing it. Nothing is mutated.",
		RunE:  runVerify,
	}

	addIdentityFlags(cmd)

	return cmd
}

func runVerify(cmd *cobra.Command, _ []string) error {
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

	results, err := cascade.NewVerifier(cascade.NewScanner(engine.Adapters())).Verify(cmd.Context(), identity, engine.Options())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		_, err = fmt.Fprintf(out, "clean: no records reference %s\n", identity)
		return err
	}
	return yaml.NewEncoder(out).Encode(struct {
		Identity  string                       `yaml:"identity"`
		Residuals []cascade.VerificationResult `yaml:"residuals"`
	}{Identity: identity.String(), Residuals: results})
}
