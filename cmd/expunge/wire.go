// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expunge Contributors

package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/expunge-dev/expunge/internal/cascade"
	"github.com/expunge-dev/expunge/internal/config"
	"github.com/expunge-dev/expunge/internal/graph"
	"github.com/expunge-dev/expunge/internal/store"
	"github.com/expunge-dev/expunge/internal/store/badger"
	"github.com/expunge-dev/expunge/internal/store/sqlite"
	xerr "github.com/expunge-dev/expunge/pkg/errors"
)

// Engine holds the wired cascade coordinator and every store it drives.
type Engine struct {
	Coordinator *cascade.Coordinator

	adapters []store.Adapter
	cfg      *config.Config
}

// wireEngine opens every store under the configured data directory and
// assembles the coordinator. Adapter registration order is fixed here; it
// determines within-layer execution order and result ordering.
func wireEngine(cfg *config.Config) (*Engine, error) {
	dataDir := cfg.Storage.Dir
	if dataDir == "" {
		dataDir = "expunge-data"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, xerr.Errorf(xerr.CodeCLISetupFailure, "creating data directory: %w", err)
	}

	var adapters []store.Adapter
	closeAll := func() {
		for _, a := range adapters {
			_ = a.Close()
		}
	}

	logStore, err := sqlite.NewLogStore(filepath.Join(dataDir, "log.db"))
	if err != nil {
		return nil, xerr.Errorf(xerr.CodeCLISetupFailure, "opening log store: %w", err)
	}
	adapters = append(adapters, logStore)

	vecStore, err := sqlite.NewVectorStore(filepath.Join(dataDir, "vectors.db"), cfg.Storage.VectorDimensions)
	if err != nil {
		closeAll()
		return nil, xerr.Errorf(xerr.CodeCLISetupFailure, "opening vector store: %w", err)
	}
	adapters = append(adapters, vecStore)

	factStore, err := sqlite.NewFactStore(filepath.Join(dataDir, "facts.db"))
	if err != nil {
		closeAll()
		return nil, xerr.Errorf(xerr.CodeCLISetupFailure, "opening fact store: %w", err)
	}
	adapters = append(adapters, factStore)

	recordStore, err := sqlite.NewRecordStore(filepath.Join(dataDir, "records.db"))
	if err != nil {
		closeAll()
		return nil, xerr.Errorf(xerr.CodeCLISetupFailure, "opening record store: %w", err)
	}
	adapters = append(adapters, recordStore)

	kvStore, err := badger.NewKVStore(filepath.Join(dataDir, "kv"))
	if err != nil {
		closeAll()
		return nil, xerr.Errorf(xerr.CodeCLISetupFailure, "opening kv store: %w", err)
	}
	adapters = append(adapters, kvStore)

	graphStore, err := graph.NewSQLiteStore(filepath.Join(dataDir, "graph.db"))
	if err != nil {
		closeAll()
		return nil, xerr.Errorf(xerr.CodeCLISetupFailure, "opening graph store: %w", err)
	}
	adapters = append(adapters, graph.NewAdapter(graphStore))

	userStore, err := sqlite.NewUserStore(filepath.Join(dataDir, "users.db"))
	if err != nil {
		closeAll()
		return nil, xerr.Errorf(xerr.CodeCLISetupFailure, "opening user store: %w", err)
	}
	adapters = append(adapters, userStore)

	reclaimer := graph.NewReclaimer(graphStore, graph.NewAnchorRegistry(cfg.Graph.AnchorTypes...))

	coordinator := cascade.New(adapters, reclaimer, cascade.Config{
		DestructiveAllowed: cfg.Cascade.DestructiveAllowed,
		PerCallTimeout:     cfg.Cascade.PerCallTimeout,
		Timeout:            cfg.Cascade.Timeout,
	})

	return &Engine{Coordinator: coordinator, adapters: adapters, cfg: cfg}, nil
}

// Adapters returns the wired adapters in registration order.
func (e *Engine) Adapters() []store.Adapter { return e.adapters }

// Options builds the cascade options configured as defaults.
func (e *Engine) Options() cascade.Options {
	return cascade.Options{
		Verify:         e.cfg.Cascade.Verify,
		IncludeGraph:   e.cfg.Cascade.IncludeGraph,
		Stores:         e.cfg.Cascade.Stores,
		PerCallTimeout: e.cfg.Cascade.PerCallTimeout,
		Timeout:        e.cfg.Cascade.Timeout,
	}
}

// Close releases every open store.
func (e *Engine) Close() error {
	var errs []error
	for _, a := range e.adapters {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
