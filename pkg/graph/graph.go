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

// Package graph stores the code knowledge graph: files, code entities and
// chunks as nodes, their structural relationships as edges. All access goes
// through the Adapter interface so the query dialect stays isolated per
// backend.
package graph

import (
	"context"
	"io"
)

// Node types in the knowledge graph.
const (
	NodeRepository = "Repository"
	NodeFile       = "File"
	NodeEntity     = "Entity"
	NodeChunk      = "Chunk"
	NodeTag        = "Tag"
	NodeMigration  = "SchemaMigration"
)

// Relationship types.
const (
	RelDefines    = "DEFINES"     // File -> Entity
	RelImports    = "IMPORTS"     // File -> File
	RelCalls      = "CALLS"       // Entity -> Entity
	RelHasChunk   = "HAS_CHUNK"   // File -> Chunk
	RelReferences = "REFERENCES"  // Entity -> File
	RelRelatedTo  = "RELATED_TO"  // Entity -> Entity
	RelTaggedWith = "TAGGED_WITH" // File -> Tag
	RelContains   = "CONTAINS"    // Repository -> File
)

// Node is a keyed graph node. Key is unique within its type; upserting the
// same type+key replaces properties rather than duplicating the node.
type Node struct {
	Type       string
	Key        string
	Properties map[string]any
}

// Relationship is a typed edge between two keyed nodes. Upsert-by-key
// semantics: missing endpoints are created alongside the edge, and writing
// the same (type, from, to) twice never duplicates it.
type Relationship struct {
	Type       string
	FromType   string
	FromKey    string
	ToType     string
	ToKey      string
	Properties map[string]any
}

// Path is one traversal result: node keys in order from the start node.
type Path struct {
	Nodes []string
	Depth int
}

// Architecture summarizes a repository's structure for high-level queries.
type Architecture struct {
	Repository string
	FileCount  int
	Entities   map[string]int // entity kind -> count
	Imports    []ImportEdge
}

// ImportEdge is one file-to-file import in an architecture summary.
type ImportEdge struct {
	From string
	To   string
}

// MaxTraversalDepth caps traversal fan-out. Requests beyond it fail with a
// traversal-limit error instead of walking an unbounded closure.
const MaxTraversalDepth = 16

// Adapter is the uniform interface over a graph database backend. One
// concrete backend is active at a time; tests use the in-memory adapter.
type Adapter interface {
	io.Closer

	// Connect establishes the backend connection and must be called before
	// any other operation.
	Connect(ctx context.Context) error

	// RunQuery executes a raw statement in the backend's dialect and
	// returns result rows in column order.
	RunQuery(ctx context.Context, statement string, params map[string]any) ([][]any, error)

	UpsertNode(ctx context.Context, n Node) error
	UpsertRelationship(ctx context.Context, r Relationship) error

	// GetNode fetches a node by type and key. Returns a not-found error
	// (IsNotFound) when absent.
	GetNode(ctx context.Context, nodeType, key string) (*Node, error)

	// ListNodes returns every node of a type. Used by the migration runner
	// for applied history and by status reporting.
	ListNodes(ctx context.Context, nodeType string) ([]Node, error)

	// DeleteNode removes a node and all edges touching it. Deleting an
	// absent node is not an error.
	DeleteNode(ctx context.Context, nodeType, key string) error

	// Traverse walks outgoing edges of the given types from a start node,
	// breadth-first, up to depth. Depth beyond MaxTraversalDepth fails.
	Traverse(ctx context.Context, startType, startKey string, relTypes []string, depth int) ([]Path, error)

	// GetDependencies returns files the given file imports, up to depth.
	GetDependencies(ctx context.Context, fileKey string, depth int) ([]Path, error)

	// GetDependents returns files importing the given file, up to depth.
	GetDependents(ctx context.Context, fileKey string, depth int) ([]Path, error)

	// GetPath finds one shortest import path between two files, or a
	// not-found error when none exists.
	GetPath(ctx context.Context, fromKey, toKey string) (*Path, error)

	// GetArchitecture summarizes one repository's files, entities and
	// import structure.
	GetArchitecture(ctx context.Context, repository string) (*Architecture, error)

	// Dialect names the statement renderer this backend understands.
	Dialect() DialectRenderer
}

// FileKey builds the unique File node key. File paths repeat across
// repositories, so the key is composite.
func FileKey(repository, path string) string {
	return repository + "#" + path
}
