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
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKuzuRendererNodeTable(t *testing.T) {
	stmts := KuzuRenderer{}.RenderNodeTable(NodeTable{
		Name: "File",
		Key:  "key",
		Properties: []Property{
			{"repository", PropString},
			{"start_line", PropInt},
			{"exported", PropBool},
		},
	})
	require.Len(t, stmts, 1)
	require.Equal(t,
		"CREATE NODE TABLE IF NOT EXISTS File(key STRING, repository STRING, start_line INT64, exported BOOLEAN, PRIMARY KEY(key))",
		stmts[0])
}

func TestKuzuRendererRelTable(t *testing.T) {
	stmts := KuzuRenderer{}.RenderRelTable(RelTable{
		Name: "IMPORTS",
		From: "File",
		To:   "File",
		Properties: []Property{
			{"specifier", PropString},
		},
	})
	require.Len(t, stmts, 1)
	require.Equal(t,
		"CREATE REL TABLE IF NOT EXISTS IMPORTS(FROM File TO File, specifier STRING)",
		stmts[0])
}

func TestKuzuRendererConstraintsAndIndexesAreEmpty(t *testing.T) {
	r := KuzuRenderer{}
	require.Empty(t, r.RenderConstraint(Constraint{NodeType: "File", Properties: []string{"repository", "path"}}))
	require.Empty(t, r.RenderIndex(Index{NodeType: "Entity", Properties: []string{"name"}}))
}

func TestOpenCypherRendererConstraints(t *testing.T) {
	r := OpenCypherRenderer{}

	single := r.RenderConstraint(Constraint{NodeType: "Tag", Properties: []string{"name"}})
	require.Equal(t, []string{
		"CREATE CONSTRAINT IF NOT EXISTS FOR (n:Tag) REQUIRE n.name IS UNIQUE",
	}, single)

	composite := r.RenderConstraint(Constraint{NodeType: "File", Properties: []string{"repository", "path"}})
	require.Equal(t, []string{
		"CREATE CONSTRAINT IF NOT EXISTS FOR (n:File) REQUIRE n.ck_repository_path IS UNIQUE",
	}, composite)
}

func TestOpenCypherRendererIndexes(t *testing.T) {
	r := OpenCypherRenderer{}

	plain := r.RenderIndex(Index{NodeType: "Entity", Properties: []string{"name"}})
	require.Equal(t, []string{
		"CREATE INDEX IF NOT EXISTS FOR (n:Entity) ON (n.name)",
	}, plain)

	fulltext := r.RenderIndex(Index{NodeType: "Entity", Properties: []string{"doc"}, FullText: true})
	require.Equal(t, []string{
		"CREATE FULLTEXT INDEX entity_fulltext IF NOT EXISTS FOR (n:Entity) ON EACH [n.doc]",
	}, fulltext)
}

func TestSchemaRenderOrdering(t *testing.T) {
	stmts := DefaultSchema().Render(KuzuRenderer{})
	require.NotEmpty(t, stmts)

	// All node tables come before any rel table.
	lastNode, firstRel := -1, len(stmts)
	for i, s := range stmts {
		if strings.HasPrefix(s, "CREATE NODE TABLE") {
			lastNode = i
		}
		if strings.HasPrefix(s, "CREATE REL TABLE") && i < firstRel {
			firstRel = i
		}
	}
	require.Less(t, lastNode, firstRel)
}

func TestMigrationTableStatements(t *testing.T) {
	kuzu := KuzuRenderer{}.MigrationTable()
	require.Len(t, kuzu, 1)
	require.Contains(t, kuzu[0], "CREATE NODE TABLE IF NOT EXISTS SchemaMigration")
	require.Contains(t, kuzu[0], "PRIMARY KEY(version)")

	oc := OpenCypherRenderer{}.MigrationTable()
	require.Len(t, oc, 1)
	require.Contains(t, oc[0], "REQUIRE n.version IS UNIQUE")
}
