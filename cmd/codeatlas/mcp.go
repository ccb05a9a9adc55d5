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
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/codeatlas-dev/codeatlas/pkg/graph"
	"github.com/codeatlas-dev/codeatlas/pkg/index"
)

// runMCPServer starts the MCP server on stdio, exposing the knowledge base
// as tools for AI assistants.
func runMCPServer(configPath string) {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	s := mcpserver.NewMCPServer("codeatlas", version, mcpserver.WithToolCapabilities(false))

	s.AddTool(searchCodebaseTool(), makeSearchHandler(a))
	s.AddTool(getDependenciesTool(), makeDependenciesHandler(a, false))
	s.AddTool(getDependentsTool(), makeDependenciesHandler(a, true))
	s.AddTool(repoStatusTool(), makeStatusHandler(a))

	if err := mcpserver.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func searchCodebaseTool() mcp.Tool {
	return mcp.NewTool("search_codebase",
		mcp.WithDescription("Semantically search the indexed repository. Returns relevant code and document chunks with file paths and line numbers."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language query to search the codebase"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of chunks to return (default 10)"),
		),
	)
}

func getDependenciesTool() mcp.Tool {
	return mcp.NewTool("get_dependencies",
		mcp.WithDescription("List the files a given file imports, transitively up to the requested depth."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File path relative to the repository root"),
		),
		mcp.WithNumber("depth",
			mcp.Description("Traversal depth (default 1)"),
		),
	)
}

func getDependentsTool() mcp.Tool {
	return mcp.NewTool("get_dependents",
		mcp.WithDescription("List the files that import a given file, transitively up to the requested depth."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File path relative to the repository root"),
		),
		mcp.WithNumber("depth",
			mcp.Description("Traversal depth (default 1)"),
		),
	)
}

func repoStatusTool() mcp.Tool {
	return mcp.NewTool("repo_status",
		mcp.WithDescription("Report the index state of the repository: last indexed commit, file and chunk counts."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
	)
}

func makeSearchHandler(a *app) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		if query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}

		results, err := a.searcher.Search(ctx, query, index.SearchOptions{
			Limit:      limit,
			Repository: a.cfg.Repository,
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatSearchResults(query, results)), nil
	}
}

func makeDependenciesHandler(a *app, reverse bool) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := req.GetString("path", "")
		if path == "" {
			return mcp.NewToolResultError("path is required"), nil
		}
		depth := req.GetInt("depth", 1)
		fileKey := graph.FileKey(a.cfg.Repository, path)

		var (
			paths []graph.Path
			err   error
		)
		if reverse {
			paths, err = a.graph.GetDependents(ctx, fileKey, depth)
		} else {
			paths, err = a.graph.GetDependencies(ctx, fileKey, depth)
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("graph query failed: %v", err)), nil
		}
		if len(paths) == 0 {
			return mcp.NewToolResultText("No import edges found for " + path), nil
		}

		var sb strings.Builder
		for _, p := range paths {
			sb.WriteString(strings.Join(stripRepo(p.Nodes, a.cfg.Repository), " -> "))
			sb.WriteByte('\n')
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func makeStatusHandler(a *app) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := a.coord.Status(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("status failed: %v", err)), nil
		}
		text := fmt.Sprintf("repository: %s\nhead: %s\nindexed: %s\nfiles: %d\nchunks: %d\n",
			st.Repository, st.HeadSHA, st.UpdatedAt.Format("2006-01-02 15:04:05 MST"),
			st.FileCount, st.ChunkCount)
		return mcp.NewToolResultText(text), nil
	}
}

func formatSearchResults(query string, results []index.SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results for %q.", query)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Results for %q:\n\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s:%d-%d (score %.3f)\n", i+1, r.Path, r.StartLine, r.EndLine, r.Score)
		sb.WriteString(r.Snippet)
		if !strings.HasSuffix(r.Snippet, "\n") {
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
