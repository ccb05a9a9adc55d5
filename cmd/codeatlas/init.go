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
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/codeatlas-dev/codeatlas/internal/config"
)

// runInit creates .codeatlas/project.yaml in the current directory with
// defaults and the repository name derived from the directory.
func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	name := fs.String("name", "", "Repository name (default: current directory name)")
	force := fs.Bool("force", false, "Overwrite an existing configuration")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot get current directory: %v\n", err)
		os.Exit(1)
	}

	path := config.Path(cwd)
	if _, err := os.Stat(path); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "Error: %s already exists (use --force to overwrite)\n", path)
		os.Exit(1)
	}

	cfg := config.Default()
	cfg.Repository = *name
	if cfg.Repository == "" {
		cfg.Repository = filepath.Base(cwd)
	}

	if err := cfg.Save(path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Created %s for repository '%s'.\n\n", path, cfg.Repository)
	fmt.Println("Next steps:")
	fmt.Println("  codeatlas migrate      Create the graph schema")
	fmt.Println("  codeatlas index        Index the repository")
}
