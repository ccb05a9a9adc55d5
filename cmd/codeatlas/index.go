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
	"net/http"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/codeatlas-dev/codeatlas/internal/output"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
)

// runIndex executes the 'index' command: a full index of the repository.
//
// Flags:
//   - --json: Output the result as JSON
//   - --debug: Enable debug logging
//   - --metrics-addr: HTTP address for Prometheus metrics (default: disabled)
func runIndex(args []string, configPath string) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output result as JSON")
	debug := fs.Bool("debug", false, "Enable debug logging")
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codeatlas index [options]

Indexes every eligible file in the current repository from scratch,
replacing any previous index. Use 'codeatlas update' for incremental
updates after the first index.

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

	serveMetrics(a, *metricsAddr)

	var bar *progressbar.ProgressBar
	progress := func(done, total int) {
		if bar == nil {
			bar = newProgressBar(*jsonOutput, int64(total), "indexing")
		}
		if bar != nil {
			_ = bar.Set(done)
		}
	}

	result, err := a.coord.FullIndex(ctx, a.repoPath, progress)
	if err != nil {
		fatal(err, *jsonOutput)
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if *jsonOutput {
		if err := output.JSON(result); err != nil {
			fatal(err, true)
		}
		return
	}

	fmt.Printf("Indexed %d files in %s.\n", result.Processed, result.Duration.Round(time.Millisecond))
	for _, e := range result.Errors {
		fmt.Fprintf(os.Stderr, "  failed %s (%s): %s\n", e.Path, e.Stage, e.Err)
	}
	if len(result.Errors) > 0 {
		fmt.Fprintf(os.Stderr, "%d files failed; they will be retried on the next update.\n", len(result.Errors))
	}
}

// serveMetrics starts the optional Prometheus endpoint.
func serveMetrics(a *app, addr string) {
	if addr == "" {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: addr, Handler: mux}
		a.logger.Info("metrics.http.start", "addr", addr, "path", "/metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Warn("metrics.http.error", "err", err)
		}
	}()
}
