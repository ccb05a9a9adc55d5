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
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/codeatlas-dev/codeatlas/internal/output"
	"github.com/codeatlas-dev/codeatlas/pkg/graph"
)

// runMigrate executes the 'migrate' command: graph schema migrations.
//
// Flags:
//   - --status: Report applied and pending versions without migrating
//   - --dry-run: Print the statements that would run
//   - --target: Stop after this version
//   - --force: Re-apply already-applied migrations (recovery only)
func runMigrate(args []string, configPath string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output result as JSON")
	debug := fs.Bool("debug", false, "Enable debug logging")
	statusOnly := fs.Bool("status", false, "Show migration status without applying anything")
	dryRun := fs.Bool("dry-run", false, "Print statements without executing them")
	target := fs.String("target", "", "Migrate up to this version only")
	force := fs.Bool("force", false, "Re-apply already-applied migrations (statements must be idempotent)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codeatlas migrate [options]

Applies versioned schema migrations to the graph database. History is
stored in the graph itself, so status is consistent across backends.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, configPath, *debug)
	if err != nil {
		fatal(err, *jsonOutput)
	}
	defer a.Close()

	runner, err := graph.NewRunner(a.graph, graph.DefaultMigrations(), a.logger)
	if err != nil {
		fatal(err, *jsonOutput)
	}

	if *statusOnly {
		st, err := runner.Status(ctx)
		if err != nil {
			fatal(err, *jsonOutput)
		}
		if *jsonOutput {
			_ = output.JSON(st)
			return
		}
		if st.CurrentVersion == "" {
			fmt.Println("Schema version: none")
		} else {
			fmt.Printf("Schema version: %s\n", st.CurrentVersion)
		}
		for _, v := range st.Applied {
			fmt.Printf("  applied  %s\n", v)
		}
		for _, v := range st.Pending {
			fmt.Printf("  pending  %s\n", v)
		}
		return
	}

	result, err := runner.Migrate(ctx, graph.MigrateOptions{
		TargetVersion: *target,
		DryRun:        *dryRun,
		Force:         *force,
	})
	if err != nil {
		fatal(err, *jsonOutput)
	}

	if *jsonOutput {
		if err := output.JSON(result); err != nil {
			fatal(err, true)
		}
		return
	}

	if *dryRun {
		fmt.Printf("Would apply %d migration(s):\n", len(result.Applied))
		for _, stmt := range result.Statements {
			fmt.Println("  " + stmt)
		}
		return
	}
	if len(result.Applied) == 0 {
		fmt.Println("Schema is up to date.")
		return
	}
	for _, v := range result.Applied {
		fmt.Printf("Applied %s\n", v)
	}
}
