// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/expunge-dev/expunge/internal/config"
	xerr "github.com/expunge-dev/expunge/pkg/errors"
)

// NewRootCmd creates the root expunge command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "expunge",
		Short:         "Expunge — cross-store identity deletion",
		Long:          "Expunge removes every trace of an identity across the log, record, key-value, vector, fact, and graph stores, with backup, rollback, and orphan reclamation.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd)
		},
	}

	// Global flags — these map to viper keys via initViper.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to the store database directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newPlanCmd(),
		newPurgeCmd(),
		newVerifyCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper sets up the global Viper with defaults, env bindings, flag
// bindings, and optional config file so the standard precedence
// (flag > env > file > defaults) is handled uniformly.
func initViper(cmd *cobra.Command) error {
	v := viper.GetViper()

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return xerr.Errorf(xerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// Auto-discover expunge.yaml from standard locations. No config
		// file is fine — defaults and env vars still apply. Parse or
		// permission errors must surface.
		// Note: SetConfigType is intentionally omitted. When set, Viper
		// falls back to trying the bare config name without extension,
		// which collides with the ./expunge binary in the project root.
		v.SetConfigName("expunge")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/expunge")
		v.AddConfigPath("/etc/expunge")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return xerr.Errorf(xerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
		}
	}

	// Bind persistent flags to viper keys.
	if err := v.BindPFlag("storage.dir", cmd.Root().PersistentFlags().Lookup("data-dir")); err != nil {
		return xerr.Errorf(xerr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
	}
	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return xerr.Errorf(xerr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	if v.GetBool("verbose") {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	return nil
}

// loadConfig unmarshals and validates the active configuration.
func loadConfig() (*config.Config, error) {
	return config.FromViper(viper.GetViper())
}
