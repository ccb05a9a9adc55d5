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
)

// runQuery executes the 'query' command: a raw statement against the graph
// backend in its native dialect.
//
// Example:
//
//	codeatlas query "MATCH (f:File) RETURN f.path LIMIT 10"
func runQuery(args []string, configPath string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output rows as JSON")
	debug := fs.Bool("debug", false, "Enable debug logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codeatlas query <statement> [options]

Executes a raw graph query in the active backend's dialect and prints
result rows.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, configPath, *debug)
	if err != nil {
		fatal(err, *jsonOutput)
	}
	defer a.Close()

	rows, err := a.graph.RunQuery(ctx, fs.Arg(0), nil)
	if err != nil {
		fatal(err, *jsonOutput)
	}

	if *jsonOutput {
		if err := output.JSON(rows); err != nil {
			fatal(err, true)
		}
		return
	}
	for _, row := range rows {
		for i, v := range row {
			if i > 0 {
				fmt.Print("\t")
			}
			fmt.Print(v)
		}
		fmt.Println()
	}
}
