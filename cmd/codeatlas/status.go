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

	flag "github.com/spf13/pflag"

	"github.com/codeatlas-dev/codeatlas/internal/output"
	"github.com/codeatlas-dev/codeatlas/pkg/index"
)

// runStatus executes the 'status' command, reporting index state for the
// configured repository.
func runStatus(args []string, configPath string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output result as JSON")
	debug := fs.Bool("debug", false, "Enable debug logging")
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

	st, err := a.coord.Status(ctx)
	if errors.Is(err, index.ErrNeedsFullIndex) {
		if *jsonOutput {
			_ = output.JSON(map[string]any{"repository": a.cfg.Repository, "indexed": false})
			return
		}
		fmt.Printf("Repository '%s' is not indexed yet. Run 'codeatlas index'.\n", a.cfg.Repository)
		return
	}
	if err != nil {
		fatal(err, *jsonOutput)
	}

	if *jsonOutput {
		if err := output.JSON(st); err != nil {
			fatal(err, true)
		}
		return
	}

	fmt.Printf("Repository:  %s\n", st.Repository)
	if st.HeadSHA != "" {
		fmt.Printf("HEAD:        %s\n", st.HeadSHA)
	}
	fmt.Printf("Indexed:     %s\n", st.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Files:       %d\n", st.FileCount)
	fmt.Printf("Chunks:      %d\n", st.ChunkCount)
}
