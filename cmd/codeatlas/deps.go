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
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/codeatlas-dev/codeatlas/internal/output"
	"github.com/codeatlas-dev/codeatlas/pkg/graph"
)

// runDeps executes the 'deps' command: import-graph queries for one file.
//
// Examples:
//
//	codeatlas deps src/auth/login.ts
//	codeatlas deps src/auth/login.ts --reverse --depth 3
//	codeatlas deps --architecture
func runDeps(args []string, configPath string) {
	fs := flag.NewFlagSet("deps", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output results as JSON")
	debug := fs.Bool("debug", false, "Enable debug logging")
	reverse := fs.Bool("reverse", false, "Show dependents (files importing this one) instead of dependencies")
	depth := fs.Int("depth", 1, "Traversal depth")
	pathTo := fs.String("path-to", "", "Show one import path from the file to this target file")
	architecture := fs.Bool("architecture", false, "Summarize the repository's import structure")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codeatlas deps <file> [options]

Queries the knowledge graph's import edges.

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

	repo := a.cfg.Repository

	if *architecture {
		arch, err := a.graph.GetArchitecture(ctx, repo)
		if err != nil {
			fatal(err, *jsonOutput)
		}
		if *jsonOutput {
			_ = output.JSON(arch)
			return
		}
		fmt.Printf("Repository: %s (%d files)\n", arch.Repository, arch.FileCount)
		for kind, n := range arch.Entities {
			fmt.Printf("  %-12s %d\n", kind, n)
		}
		fmt.Printf("Imports (%d):\n", len(arch.Imports))
		for _, e := range arch.Imports {
			fmt.Printf("  %s -> %s\n", e.From, e.To)
		}
		return
	}

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(1)
	}
	fileKey := graph.FileKey(repo, fs.Arg(0))

	if *pathTo != "" {
		p, err := a.graph.GetPath(ctx, fileKey, graph.FileKey(repo, *pathTo))
		if err != nil {
			fatal(err, *jsonOutput)
		}
		if *jsonOutput {
			_ = output.JSON(p)
			return
		}
		fmt.Println(strings.Join(stripRepo(p.Nodes, repo), " -> "))
		return
	}

	var paths []graph.Path
	if *reverse {
		paths, err = a.graph.GetDependents(ctx, fileKey, *depth)
	} else {
		paths, err = a.graph.GetDependencies(ctx, fileKey, *depth)
	}
	if err != nil {
		fatal(err, *jsonOutput)
	}

	if *jsonOutput {
		_ = output.JSON(paths)
		return
	}
	if len(paths) == 0 {
		fmt.Println("No import edges found.")
		return
	}
	for _, p := range paths {
		fmt.Println(strings.Join(stripRepo(p.Nodes, repo), " -> "))
	}
}

// stripRepo removes the repository prefix from file keys for display.
func stripRepo(keys []string, repo string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = strings.TrimPrefix(k, repo+"#")
	}
	return out
}
