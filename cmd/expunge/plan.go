// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package main

import (
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/expunge-dev/expunge/internal/store"
)

// planView is the YAML shape of a deletion plan preview.
type planView struct {
	PlanID     string         `yaml:"plan_id"`
	Identity   string         `yaml:"identity"`
	CreatedAt  string         `yaml:"created_at"`
	Total      int            `yaml:"total"`
	ByStore    map[string]int `yaml:"by_store"`
	Refs       []refView      `yaml:"refs,omitempty"`
	ScanErrors []scanErrView  `yaml:"scan_errors,omitempty"`
}

type refView struct {
	Store    string `yaml:"store"`
	RecordID string `yaml:"record_id"`
}

type scanErrView struct {
	Store   string `yaml:"store"`
	Message string `yaml:"message"`
}

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Preview what a cascade would delete",
		Long:  "Scan every store for records referencing the identity and print the deletion plan. Nothing is mutated.",
		RunE:  runPlan,
	}

	addIdentityFlags(cmd)
	cmd.Flags().Bool("refs", false, "list every matched record id")

	return cmd
}

func runPlan(cmd *cobra.Command, _ []string) error {
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

	plan, err := engine.Coordinator.Plan(cmd.Context(), identity, engine.Options())
	if err != nil {
		return err
	}

	showRefs, _ := cmd.Flags().GetBool("refs")
	return yaml.NewEncoder(cmd.OutOrStdout()).Encode(newPlanView(plan, showRefs))
}

func newPlanView(plan *store.Plan, showRefs bool) planView {
	view := planView{
		PlanID:    plan.ID,
		Identity:  plan.Identity.String(),
		CreatedAt: plan.CreatedAt.Format(time.RFC3339),
		Total:     plan.Count(),
		ByStore:   plan.CountByStore(),
	}
	if showRefs {
		for _, ref := range plan.Refs {
			view.Refs = append(view.Refs, refView{Store: ref.Store, RecordID: ref.RecordID})
		}
	}
	for _, se := range plan.ScanErrors {
		view.ScanErrors = append(view.ScanErrors, scanErrView{Store: se.Store, Message: se.Message})
	}
	return view
}
