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
	"github.com/codeatlas-dev/codeatlas/pkg/index"
)

// runSearch executes the 'search' command: semantic search over indexed
// chunks.
//
// Examples:
//
//	codeatlas search "password hashing"
//	codeatlas search "session handling" --limit 5 --json
func runSearch(args []string, configPath string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output results as JSON")
	debug := fs.Bool("debug", false, "Enable debug logging")
	limit := fs.Int("limit", 10, "Maximum number of results")
	maxDistance := fs.Float64("max-distance", 0, "Drop results farther than this L2 distance (0 = no cutoff)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codeatlas search <query> [options]

Embeds the query and returns the nearest indexed chunks.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(1)
	}
	query := strings.Join(fs.Args(), " ")

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, configPath, *debug)
	if err != nil {
		fatal(err, *jsonOutput)
	}
	defer a.Close()

	results, err := a.searcher.Search(ctx, query, index.SearchOptions{
		Limit:       *limit,
		MaxDistance: *maxDistance,
		Repository:  a.cfg.Repository,
	})
	if err != nil {
		fatal(err, *jsonOutput)
	}

	if *jsonOutput {
		if err := output.JSON(results); err != nil {
			fatal(err, true)
		}
		return
	}

	if len(results) == 0 {
		fmt.Println("No matches.")
		return
	}
	for i, r := range results {
		fmt.Printf("%d. %s:%d-%d (score %.3f)\n", i+1, r.Path, r.StartLine, r.EndLine, r.Score)
		fmt.Println(indentSnippet(r.Snippet, 4, 6))
	}
}

// indentSnippet trims a snippet to maxLines and indents each line.
func indentSnippet(s string, indent, maxLines int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > maxLines {
		lines = append(lines[:maxLines], "...")
	}
	pad := strings.Repeat(" ", indent)
	for i, l := range lines {
		lines[i] = pad + l
	}
	return strings.Join(lines, "\n")
}
