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

package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func fileNode(repo, path string) Node {
	return Node{
		Type: NodeFile,
		Key:  FileKey(repo, path),
		Properties: map[string]any{
			"repository": repo,
			"path":       path,
		},
	}
}

func importRel(repo, from, to string) Relationship {
	return Relationship{
		Type:     RelImports,
		FromType: NodeFile,
		FromKey:  FileKey(repo, from),
		ToType:   NodeFile,
		ToKey:    FileKey(repo, to),
	}
}

func TestMemoryAdapterUpsertNodeReplaces(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()

	require.NoError(t, m.UpsertNode(ctx, Node{Type: NodeTag, Key: "auth", Properties: map[string]any{"name": "auth"}}))
	require.NoError(t, m.UpsertNode(ctx, Node{Type: NodeTag, Key: "auth", Properties: map[string]any{"name": "authentication"}}))

	nodes, err := m.ListNodes(ctx, NodeTag)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, "authentication", nodes[0].Properties["name"])
}

func TestMemoryAdapterGetNodeNotFound(t *testing.T) {
	m := NewMemoryAdapter()
	_, err := m.GetNode(context.Background(), NodeFile, "repo#missing.go")
	require.Error(t, err)
	require.True(t, IsNotFound(err))
	require.Equal(t, ErrNodeNotFound, CodeOf(err))
}

func TestMemoryAdapterRelationshipCreatesEndpoints(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()

	require.NoError(t, m.UpsertRelationship(ctx, importRel("repo", "a.ts", "b.ts")))

	// Both endpoints exist even though neither was inserted explicitly.
	_, err := m.GetNode(ctx, NodeFile, "repo#a.ts")
	require.NoError(t, err)
	_, err = m.GetNode(ctx, NodeFile, "repo#b.ts")
	require.NoError(t, err)

	// Upserting the same edge again does not duplicate it.
	require.NoError(t, m.UpsertRelationship(ctx, importRel("repo", "a.ts", "b.ts")))
	paths, err := m.GetDependencies(ctx, "repo#a.ts", 1)
	require.NoError(t, err)
	require.Len(t, paths, 1)
}

func TestMemoryAdapterDeleteNodeDetaches(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()

	require.NoError(t, m.UpsertRelationship(ctx, importRel("repo", "a.ts", "b.ts")))
	require.NoError(t, m.DeleteNode(ctx, NodeFile, "repo#b.ts"))

	paths, err := m.GetDependencies(ctx, "repo#a.ts", 2)
	require.NoError(t, err)
	require.Empty(t, paths)

	// Deleting again is a no-op.
	require.NoError(t, m.DeleteNode(ctx, NodeFile, "repo#b.ts"))
}

func TestMemoryAdapterTraverseDepth(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()

	// a -> b -> c -> d
	require.NoError(t, m.UpsertRelationship(ctx, importRel("repo", "a.ts", "b.ts")))
	require.NoError(t, m.UpsertRelationship(ctx, importRel("repo", "b.ts", "c.ts")))
	require.NoError(t, m.UpsertRelationship(ctx, importRel("repo", "c.ts", "d.ts")))

	paths, err := m.Traverse(ctx, NodeFile, "repo#a.ts", []string{RelImports}, 2)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	require.Equal(t, []string{"repo#a.ts", "repo#b.ts"}, paths[0].Nodes)
	require.Equal(t, 1, paths[0].Depth)
	require.Equal(t, []string{"repo#a.ts", "repo#b.ts", "repo#c.ts"}, paths[1].Nodes)
	require.Equal(t, 2, paths[1].Depth)
}

func TestMemoryAdapterTraverseCycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()

	require.NoError(t, m.UpsertRelationship(ctx, importRel("repo", "a.ts", "b.ts")))
	require.NoError(t, m.UpsertRelationship(ctx, importRel("repo", "b.ts", "a.ts")))

	paths, err := m.Traverse(ctx, NodeFile, "repo#a.ts", []string{RelImports}, MaxTraversalDepth)
	require.NoError(t, err)
	require.Len(t, paths, 1) // the cycle back to a.ts is not revisited
}

func TestMemoryAdapterTraverseDepthLimit(t *testing.T) {
	m := NewMemoryAdapter()
	_, err := m.Traverse(context.Background(), NodeFile, "repo#a.ts", []string{RelImports}, MaxTraversalDepth+1)
	require.Error(t, err)
	require.Equal(t, ErrTraversalLimit, CodeOf(err))
}

func TestMemoryAdapterGetDependents(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()

	// a and b both import util; main imports a.
	require.NoError(t, m.UpsertRelationship(ctx, importRel("repo", "a.ts", "util.ts")))
	require.NoError(t, m.UpsertRelationship(ctx, importRel("repo", "b.ts", "util.ts")))
	require.NoError(t, m.UpsertRelationship(ctx, importRel("repo", "main.ts", "a.ts")))

	paths, err := m.GetDependents(ctx, "repo#util.ts", 2)
	require.NoError(t, err)

	var leaves []string
	for _, p := range paths {
		leaves = append(leaves, p.Nodes[len(p.Nodes)-1])
	}
	require.ElementsMatch(t, []string{"repo#a.ts", "repo#b.ts", "repo#main.ts"}, leaves)
}

func TestMemoryAdapterGetPath(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()

	require.NoError(t, m.UpsertRelationship(ctx, importRel("repo", "a.ts", "b.ts")))
	require.NoError(t, m.UpsertRelationship(ctx, importRel("repo", "b.ts", "c.ts")))

	p, err := m.GetPath(ctx, "repo#a.ts", "repo#c.ts")
	require.NoError(t, err)
	require.Equal(t, []string{"repo#a.ts", "repo#b.ts", "repo#c.ts"}, p.Nodes)

	_, err = m.GetPath(ctx, "repo#c.ts", "repo#a.ts")
	require.Error(t, err)
	require.Equal(t, ErrRelNotFound, CodeOf(err))
}

func TestMemoryAdapterGetArchitecture(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()

	require.NoError(t, m.UpsertNode(ctx, fileNode("repo", "a.ts")))
	require.NoError(t, m.UpsertNode(ctx, fileNode("repo", "b.ts")))
	require.NoError(t, m.UpsertNode(ctx, fileNode("other", "x.ts")))
	require.NoError(t, m.UpsertNode(ctx, Node{
		Type: NodeEntity, Key: "repo#a.ts#login",
		Properties: map[string]any{"repository": "repo", "kind": "function"},
	}))
	require.NoError(t, m.UpsertNode(ctx, Node{
		Type: NodeEntity, Key: "repo#a.ts#Session",
		Properties: map[string]any{"repository": "repo", "kind": "class"},
	}))
	require.NoError(t, m.UpsertRelationship(ctx, importRel("repo", "a.ts", "b.ts")))
	require.NoError(t, m.UpsertRelationship(ctx, importRel("other", "x.ts", "y.ts")))

	arch, err := m.GetArchitecture(ctx, "repo")
	require.NoError(t, err)
	require.Equal(t, 2, arch.FileCount)
	require.Equal(t, map[string]int{"function": 1, "class": 1}, arch.Entities)
	require.Equal(t, []ImportEdge{{From: "a.ts", To: "b.ts"}}, arch.Imports)
}

func TestMemoryAdapterRecordsStatements(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()

	_, err := m.RunQuery(ctx, "CREATE NODE TABLE IF NOT EXISTS Tag(key STRING, PRIMARY KEY(key))", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"CREATE NODE TABLE IF NOT EXISTS Tag(key STRING, PRIMARY KEY(key))"}, m.Executed())
}
