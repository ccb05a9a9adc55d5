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

// Package main implements the codeatlas CLI for indexing repositories and
// querying the code knowledge base.
//
// Usage:
//
//	codeatlas init                    Create .codeatlas/project.yaml
//	codeatlas index                   Full index of the current repository
//	codeatlas update                  Incremental update since last index
//	codeatlas status [--json]         Show repository index status
//	codeatlas search <query>          Semantic search over indexed content
//	codeatlas deps <path>             Show file dependencies from the graph
//	codeatlas query <cypher>          Execute a raw graph query
//	codeatlas migrate                 Apply graph schema migrations
//	codeatlas --mcp                   Start as MCP server (stdio)
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		mcpMode     = flag.Bool("mcp", false, "Start as MCP server (JSON-RPC over stdio)")
		configPath  = flag.String("config", "", "Path to .codeatlas/project.yaml (default: ./.codeatlas/project.yaml)")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `codeatlas - repository knowledge base

codeatlas indexes source repositories into a vector store and a code
knowledge graph, and serves semantic search and structural queries to
both humans and MCP-compatible tools.

Usage:
  codeatlas <command> [options]

Commands:
  init      Create .codeatlas/project.yaml configuration
  index     Full index of the current repository
  update    Incremental update since the last index
  status    Show repository index status
  search    Semantic search over indexed content
  deps      Show file dependencies from the knowledge graph
  query     Execute a raw graph query
  migrate   Apply graph schema migrations

Global Options:
  --mcp     Start as MCP server (JSON-RPC over stdio)
  --config  Path to .codeatlas/project.yaml
  --version Show version and exit

Examples:
  codeatlas init
  codeatlas index
  codeatlas update
  codeatlas search "password hashing" --limit 5
  codeatlas deps src/auth/login.ts --depth 3
  codeatlas migrate --status

Data Storage:
  Data is stored locally in ~/.codeatlas/data/<repository>/

Environment Variables:
  OLLAMA_HOST        Ollama URL (default: http://localhost:11434)
  OLLAMA_EMBED_MODEL Embedding model (default: nomic-embed-text)
  OPENAI_API_KEY     OpenAI API key (openai provider)

For detailed command help: codeatlas <command> --help
`)
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("codeatlas version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	if *mcpMode {
		runMCPServer(*configPath)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs)
	case "index":
		runIndex(cmdArgs, *configPath)
	case "update":
		runUpdate(cmdArgs, *configPath)
	case "status":
		runStatus(cmdArgs, *configPath)
	case "search":
		runSearch(cmdArgs, *configPath)
	case "deps":
		runDeps(cmdArgs, *configPath)
	case "query":
		runQuery(cmdArgs, *configPath)
	case "migrate":
		runMigrate(cmdArgs, *configPath)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
