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

package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"log/slog"

	"github.com/Masterminds/semver/v3"
)

// Migration is one versioned schema change. Statements are rendered for a
// specific dialect at registration time via the Build hook so the same
// migration can target Kuzu or an openCypher server.
type Migration struct {
	Version     string
	Description string

	// Build renders the statements for the given dialect. A nil result is a
	// no-op for that dialect.
	Build func(r DialectRenderer) []string
}

// MigrationStatus reports where the graph schema stands.
type MigrationStatus struct {
	CurrentVersion string
	Applied        []string
	Pending        []string
}

// MigrateOptions controls a Migrate run.
type MigrateOptions struct {
	// TargetVersion stops after this version. Empty means migrate to latest.
	TargetVersion string
	// DryRun renders and returns statements without executing anything.
	DryRun bool
	// Force re-applies migrations already recorded in history. History is
	// written with merge semantics, so forcing never duplicates entries.
	Force bool
}

// MigrateResult describes what a Migrate run did (or would do, for dry runs).
type MigrateResult struct {
	Applied    []string
	Statements []string
	DryRun     bool
}

// Runner applies migrations against an adapter, storing history in the graph
// itself as Migration nodes keyed by version.
type Runner struct {
	adapter    Adapter
	migrations []Migration
	logger     *slog.Logger
	now        func() time.Time
}

func NewRunner(adapter Adapter, migrations []Migration, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sorted := append([]Migration{}, migrations...)
	for _, m := range sorted {
		if _, err := semver.NewVersion(m.Version); err != nil {
			return nil, NewQueryError(fmt.Sprintf("invalid migration version %q", m.Version), err)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return semver.MustParse(sorted[i].Version).LessThan(semver.MustParse(sorted[j].Version))
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Version == sorted[i-1].Version {
			return nil, NewQueryError(fmt.Sprintf("duplicate migration version %q", sorted[i].Version), nil)
		}
	}
	return &Runner{adapter: adapter, migrations: sorted, logger: logger, now: time.Now}, nil
}

// bootstrap makes sure the history table exists. The statements come from the
// dialect and are idempotent, so this runs before every Status and Migrate.
func (r *Runner) bootstrap(ctx context.Context) error {
	for _, stmt := range r.adapter.Dialect().MigrationTable() {
		if _, err := r.adapter.RunQuery(ctx, stmt, nil); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) appliedVersions(ctx context.Context) (map[string]bool, error) {
	nodes, err := r.adapter.ListNodes(ctx, NodeMigration)
	if err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		applied[n.Key] = true
	}
	return applied, nil
}

// Status reports applied and pending migrations in ascending version order.
func (r *Runner) Status(ctx context.Context) (*MigrationStatus, error) {
	if err := r.bootstrap(ctx); err != nil {
		return nil, err
	}
	applied, err := r.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}
	st := &MigrationStatus{}
	for _, m := range r.migrations {
		if applied[m.Version] {
			st.Applied = append(st.Applied, m.Version)
			st.CurrentVersion = m.Version
		} else {
			st.Pending = append(st.Pending, m.Version)
		}
	}
	return st, nil
}

// Migrate applies pending migrations in ascending version order. A failure
// mid-sequence stops the run; already-applied migrations stay applied and the
// error names the version that failed.
func (r *Runner) Migrate(ctx context.Context, opts MigrateOptions) (*MigrateResult, error) {
	if err := r.bootstrap(ctx); err != nil {
		return nil, err
	}
	applied, err := r.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	var target *semver.Version
	if opts.TargetVersion != "" {
		target, err = semver.NewVersion(opts.TargetVersion)
		if err != nil {
			return nil, NewQueryError(fmt.Sprintf("invalid target version %q", opts.TargetVersion), err)
		}
	}

	result := &MigrateResult{DryRun: opts.DryRun}
	dialect := r.adapter.Dialect()

	for _, m := range r.migrations {
		v := semver.MustParse(m.Version)
		if target != nil && v.GreaterThan(target) {
			break
		}
		if applied[m.Version] && !opts.Force {
			continue
		}

		stmts := m.Build(dialect)
		result.Statements = append(result.Statements, stmts...)
		if opts.DryRun {
			result.Applied = append(result.Applied, m.Version)
			continue
		}

		r.logger.Info("migrate.apply.start", "version", m.Version, "description", m.Description)
		for _, stmt := range stmts {
			if _, err := r.adapter.RunQuery(ctx, stmt, nil); err != nil {
				return result, fmt.Errorf("migration %s: %w", m.Version, err)
			}
		}
		if err := r.recordApplied(ctx, m); err != nil {
			return result, fmt.Errorf("migration %s: record history: %w", m.Version, err)
		}
		result.Applied = append(result.Applied, m.Version)
		r.logger.Info("migrate.apply.complete", "version", m.Version)
	}
	return result, nil
}

func (r *Runner) recordApplied(ctx context.Context, m Migration) error {
	return r.adapter.UpsertNode(ctx, Node{
		Type: NodeMigration,
		Key:  m.Version,
		Properties: map[string]any{
			"description": m.Description,
			"applied_at":  r.now().UTC().Format(time.RFC3339),
		},
	})
}

// DefaultMigrations is the registry of schema migrations, ascending.
func DefaultMigrations() []Migration {
	return []Migration{
		{
			Version:     "1.0.0",
			Description: "initial knowledge graph schema",
			Build: func(r DialectRenderer) []string {
				s := DefaultSchema()
				s.Indexes = nil // added in 1.1.0
				return s.Render(r)
			},
		},
		{
			Version:     "1.1.0",
			Description: "entity name and doc search indexes",
			Build: func(r DialectRenderer) []string {
				var out []string
				out = append(out, r.RenderIndex(Index{NodeType: NodeEntity, Properties: []string{"name"}})...)
				out = append(out, r.RenderIndex(Index{NodeType: NodeEntity, Properties: []string{"doc"}, FullText: true})...)
				return out
			},
		},
	}
}
