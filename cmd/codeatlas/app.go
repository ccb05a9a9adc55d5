// Copyright 2026 CodeAtlas Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"log/slog"

	"github.com/codeatlas-dev/codeatlas/internal/config"
	"github.com/codeatlas-dev/codeatlas/internal/errors"
	"github.com/codeatlas-dev/codeatlas/pkg/embed"
	"github.com/codeatlas-dev/codeatlas/pkg/extract"
	"github.com/codeatlas-dev/codeatlas/pkg/gitrepo"
	"github.com/codeatlas-dev/codeatlas/pkg/graph"
	"github.com/codeatlas-dev/codeatlas/pkg/index"
	"github.com/codeatlas-dev/codeatlas/pkg/scan"
	"github.com/codeatlas-dev/codeatlas/pkg/state"
	"github.com/codeatlas-dev/codeatlas/pkg/vector"
	"github.com/prometheus/client_golang/prometheus"
)

// app bundles the wired-up services every command needs. Close releases the
// stores in reverse open order.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	repoPath string

	vectors  vector.Store
	graph    graph.Adapter
	searcher *index.Searcher
	coord    *index.Coordinator
	metrics  *index.Metrics
}

// newLogger builds the process logger. Debug switches the level; logs go to
// stderr so stdout stays clean for command output and MCP framing.
func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// loadConfig resolves and reads the project configuration.
func loadConfig(configPath string) (*config.Config, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("cannot get current directory: %w", err)
	}
	if configPath == "" {
		configPath = config.Path(cwd)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		if os.IsNotExist(err) || os.IsNotExist(unwrapAll(err)) {
			return nil, "", errors.NewConfigError(
				"configuration not found",
				fmt.Sprintf("no config file at %s", configPath),
				"run 'codeatlas init' to create one",
				err)
		}
		return nil, "", err
	}
	return cfg, cwd, nil
}

func unwrapAll(err error) error {
	for {
		u, ok := err.(interface{ Unwrap() error })
		if !ok || u.Unwrap() == nil {
			return err
		}
		err = u.Unwrap()
	}
}

// dataDir is where per-repository stores live.
func dataDir(repository string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".codeatlas", "data", repository)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// newApp opens all stores and wires the pipeline.
func newApp(ctx context.Context, configPath string, debug bool) (*app, error) {
	logger := newLogger(debug)
	cfg, repoPath, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	dir, err := dataDir(cfg.Repository)
	if err != nil {
		return nil, err
	}

	vectors, err := vector.Open(filepath.Join(dir, "vectors.db"), cfg.Embedding.Dims())
	if err != nil {
		return nil, errors.NewStorageError(
			"cannot open vector store",
			err.Error(),
			"check permissions on "+dir,
			err)
	}

	graphPath := cfg.Graph.Path
	if graphPath == "" {
		graphPath = filepath.Join(dir, "graph")
	}
	adapter := graph.NewKuzuAdapter(graphPath, graph.DefaultSchema(), logger)
	if err := adapter.Connect(ctx); err != nil {
		vectors.Close()
		return nil, errors.NewStorageError(
			"cannot open graph database",
			err.Error(),
			"check permissions on "+graphPath,
			err)
	}

	provider, err := embed.NewProvider(cfg.Embedding, logger)
	if err != nil {
		adapter.Close()
		vectors.Close()
		return nil, err
	}
	generator := embed.NewGenerator(provider, cfg.Embedding.BatchSize, logger)
	generator.SetRetryConfig(embed.RetryConfig{MaxRetries: cfg.Embedding.MaxRetries})

	extractor := extract.NewService(extract.Options{
		MaxFileSize:  cfg.Indexing.MaxFileSizeBytes,
		ParseTimeout: parseTimeout(cfg),
	}, logger)

	metrics := index.NewMetrics(prometheus.DefaultRegisterer)
	chunker := scan.NewChunker(cfg.Indexing.ChunkSizeBytes)
	indexer := index.NewIndexer(extractor, generator, vectors, adapter, chunker, logger, metrics)
	snapshots := state.NewStore(filepath.Join(dir, "state"))
	coord := index.NewCoordinator(*cfg, indexer, snapshots, gitrepo.NewSyncer(logger), adapter, logger, metrics)

	return &app{
		cfg:      cfg,
		logger:   logger,
		repoPath: repoPath,
		vectors:  vectors,
		graph:    adapter,
		searcher: index.NewSearcher(generator, vectors, logger, metrics),
		coord:    coord,
		metrics:  metrics,
	}, nil
}

func parseTimeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Indexing.ParseTimeoutSeconds) * time.Second
}

func (a *app) Close() {
	if a.graph != nil {
		a.graph.Close()
	}
	if a.vectors != nil {
		a.vectors.Close()
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM. The
// pipeline drains in-flight work and commits metadata before exiting.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("shutdown.signal", "signal", sig.String())
		cancel()
	}()
	return ctx, cancel
}

func fatal(err error, jsonOutput bool) {
	errors.FatalError(err, jsonOutput)
}
