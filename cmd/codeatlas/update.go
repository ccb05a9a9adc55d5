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
	"errors"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/codeatlas-dev/codeatlas/internal/output"
	"github.com/codeatlas-dev/codeatlas/pkg/index"
)

// runUpdate executes the 'update' command: one incremental update cycle.
// When incremental processing does not apply (no prior index, too many
// changes, changed filters) it falls back to a full index unless
// --no-fallback is set.
func runUpdate(args []string, configPath string) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output result as JSON")
	debug := fs.Bool("debug", false, "Enable debug logging")
	noFallback := fs.Bool("no-fallback", false, "Fail instead of running a full index when incremental does not apply")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codeatlas update [options]

Pulls the latest commit, detects changed files against the last indexed
snapshot, and re-indexes only what changed. Renamed files keep their
embeddings; only content changes are re-embedded.

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

	result, err := a.coord.Update(ctx, a.repoPath)
	if errors.Is(err, index.ErrNeedsFullIndex) && !*noFallback {
		a.logger.Info("update.fallback.full_index", "reason", err)
		result, err = a.coord.FullIndex(ctx, a.repoPath, nil)
	}
	if err != nil {
		fatal(err, *jsonOutput)
	}

	if *jsonOutput {
		if err := output.JSON(result); err != nil {
			fatal(err, true)
		}
		return
	}

	switch result.Status {
	case index.StatusNoChanges:
		fmt.Println("No changes since last index.")
	default:
		fmt.Printf("Updated %d files in %s", result.Processed, result.Duration.Round(time.Millisecond))
		if result.Changes != nil {
			fmt.Printf(" (%d added, %d modified, %d deleted, %d renamed)",
				len(result.Changes.Added), len(result.Changes.Modified),
				len(result.Changes.Deleted), len(result.Changes.Renamed))
		}
		fmt.Println(".")
	}
	for _, e := range result.Errors {
		fmt.Fprintf(os.Stderr, "  failed %s (%s): %s\n", e.Path, e.Stage, e.Err)
	}
}
