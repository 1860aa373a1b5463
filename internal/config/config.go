// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

// Package config loads and validates the expunge configuration with
// flag > env > file > default precedence.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	xerr "github.com/expunge-dev/expunge/pkg/errors"
)

// Config is the top-level expunge configuration.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Cascade CascadeConfig `mapstructure:"cascade"`
	Graph   GraphConfig   `mapstructure:"graph"`
}

// StorageConfig locates the per-store database files.
type StorageConfig struct {
	// Dir is the directory holding every store's database. Per-store
	// file paths are derived from it.
	Dir string `mapstructure:"dir"`

	// VectorDimensions is the embedding width of the vector index.
	VectorDimensions int `mapstructure:"vector_dimensions"`
}

// CascadeConfig controls cascade behavior and the destructive gate.
type CascadeConfig struct {
	// DestructiveAllowed is the explicit safety gate: non-dry-run
	// cascades are refused while it is false. It is always a configured
	// value, never inferred from the runtime environment.
	DestructiveAllowed bool `mapstructure:"destructive_allowed"`

	// IncludeGraph enables the graph layer by default.
	IncludeGraph bool `mapstructure:"include_graph"`

	// Verify re-scans after committed cascades by default.
	Verify bool `mapstructure:"verify"`

	// Stores restricts cascades to a subset of store names; empty means all.
	Stores []string `mapstructure:"stores"`

	PerCallTimeout time.Duration `mapstructure:"per_call_timeout"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// GraphConfig controls the property-graph layer.
type GraphConfig struct {
	// AnchorTypes lists node types that always survive a cascade and
	// seed the orphan reachability search.
	AnchorTypes []string `mapstructure:"anchor_types"`
}

// knownStores names every adapter the engine can wire.
var knownStores = map[string]bool{
	"vector":  true,
	"facts":   true,
	"log":     true,
	"records": true,
	"kv":      true,
	"graph":   true,
	"users":   true,
}

// SetDefaults installs the default configuration values on a Viper.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("storage.dir", "")
	v.SetDefault("storage.vector_dimensions", 1536)
	v.SetDefault("cascade.destructive_allowed", false)
	v.SetDefault("cascade.include_graph", true)
	v.SetDefault("cascade.verify", true)
	v.SetDefault("cascade.per_call_timeout", "10s")
	v.SetDefault("cascade.timeout", "5m")
	v.SetDefault("graph.anchor_types", []string{"tenant", "workspace"})
}

// SetupEnv binds environment variable overrides (prefix EXPUNGE_).
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("EXPUNGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, xerr.Errorf(xerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper unmarshals and validates a Config out of a prepared Viper.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, xerr.Errorf(xerr.CodeConfigValidateInvalidValue, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, xerr.Errorf(xerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It returns every
// validation error found rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateCascade()...)
	errs = append(errs, c.validateGraph()...)

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	if c.Storage.VectorDimensions <= 0 {
		errs = append(errs, xerr.Errorf(xerr.CodeConfigValidateInvalidValue,
			"config: storage.vector_dimensions must be positive, got %d",
			c.Storage.VectorDimensions,
		))
	}

	return errs
}

func (c *Config) validateCascade() []error {
	var errs []error

	if c.Cascade.PerCallTimeout < 0 {
		errs = append(errs, xerr.Errorf(xerr.CodeConfigValidateInvalidValue,
			"config: cascade.per_call_timeout must not be negative"))
	}
	if c.Cascade.Timeout < 0 {
		errs = append(errs, xerr.Errorf(xerr.CodeConfigValidateInvalidValue,
			"config: cascade.timeout must not be negative"))
	}

	for _, name := range c.Cascade.Stores {
		if !knownStores[name] {
			errs = append(errs, xerr.Errorf(xerr.CodeConfigValidateInvalidValue,
				"config: cascade.stores contains unknown store %q", name))
		}
	}

	return errs
}

func (c *Config) validateGraph() []error {
	var errs []error

	if c.Cascade.IncludeGraph && len(c.Graph.AnchorTypes) == 0 {
		errs = append(errs, xerr.Errorf(xerr.CodeConfigValidateInvalidValue,
			"config: graph.anchor_types must not be empty while cascade.include_graph is set"))
	}

	return errs
}
