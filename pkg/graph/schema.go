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
	"fmt"
	"strings"
)

// The schema is described as data and rendered to backend-specific
// statements, so the intent lives in one place and each dialect only
// contributes syntax.

// PropertyType is the portable column type set.
type PropertyType string

const (
	PropString PropertyType = "string"
	PropInt    PropertyType = "int"
	PropFloat  PropertyType = "float"
	PropBool   PropertyType = "bool"
)

// Property is one typed node property.
type Property struct {
	Name string
	Type PropertyType
}

// NodeTable declares a node type with its key and properties.
type NodeTable struct {
	Name       string
	Key        string // primary key property
	Properties []Property
}

// RelTable declares an edge type between two node types.
type RelTable struct {
	Name       string
	From       string
	To         string
	Properties []Property
}

// Constraint declares uniqueness over one or more properties of a node type.
// Backends without native composite constraints emulate multi-property
// uniqueness with a synthetic combined-key property.
type Constraint struct {
	NodeType   string
	Properties []string
}

// Index declares a secondary index. FullText marks content indexes, which
// some backends do not support at all.
type Index struct {
	NodeType   string
	Properties []string
	FullText   bool
}

// Schema is the complete declarative description of the graph layout.
type Schema struct {
	Nodes       []NodeTable
	Rels        []RelTable
	Constraints []Constraint
	Indexes     []Index
}

// DialectRenderer turns schema declarations into statements for one backend.
// Renderers return only what the backend supports: an empty slice means the
// declaration has no representation there (e.g. full-text indexes).
type DialectRenderer interface {
	Name() string
	RenderNodeTable(t NodeTable) []string
	RenderRelTable(t RelTable) []string
	RenderConstraint(c Constraint) []string
	RenderIndex(i Index) []string
	// MigrationTable renders the bootstrap statements for the applied-
	// migration history, which must exist before any migration runs.
	MigrationTable() []string
}

// Render produces the full ordered statement list for a schema: node tables,
// then relationship tables, then constraints, then indexes.
func (s Schema) Render(r DialectRenderer) []string {
	var out []string
	for _, n := range s.Nodes {
		out = append(out, r.RenderNodeTable(n)...)
	}
	for _, rel := range s.Rels {
		out = append(out, r.RenderRelTable(rel)...)
	}
	for _, c := range s.Constraints {
		out = append(out, r.RenderConstraint(c)...)
	}
	for _, i := range s.Indexes {
		out = append(out, r.RenderIndex(i)...)
	}
	return out
}

// DefaultSchema is the knowledge-graph layout for indexed repositories.
func DefaultSchema() Schema {
	return Schema{
		Nodes: []NodeTable{
			{Name: NodeRepository, Key: "key", Properties: []Property{
				{"name", PropString}, {"clone_url", PropString}, {"head_sha", PropString},
			}},
			{Name: NodeFile, Key: "key", Properties: []Property{
				{"repository", PropString}, {"path", PropString},
				{"language", PropString}, {"hash", PropString},
			}},
			{Name: NodeEntity, Key: "key", Properties: []Property{
				{"name", PropString}, {"kind", PropString}, {"repository", PropString},
				{"file_path", PropString}, {"start_line", PropInt}, {"end_line", PropInt},
				{"exported", PropBool}, {"is_async", PropBool}, {"is_abstract", PropBool},
				{"signature", PropString}, {"doc", PropString},
			}},
			{Name: NodeChunk, Key: "key", Properties: []Property{
				{"repository", PropString}, {"path", PropString}, {"chunk_index", PropInt},
				{"start_line", PropInt}, {"end_line", PropInt},
			}},
			{Name: NodeTag, Key: "key", Properties: []Property{
				{"name", PropString},
			}},
		},
		Rels: []RelTable{
			{Name: RelContains, From: NodeRepository, To: NodeFile},
			{Name: RelDefines, From: NodeFile, To: NodeEntity},
			{Name: RelImports, From: NodeFile, To: NodeFile, Properties: []Property{
				{"specifier", PropString},
			}},
			{Name: RelCalls, From: NodeEntity, To: NodeEntity, Properties: []Property{
				{"line", PropInt}, {"is_async", PropBool},
			}},
			{Name: RelHasChunk, From: NodeFile, To: NodeChunk},
			{Name: RelReferences, From: NodeEntity, To: NodeFile},
			{Name: RelRelatedTo, From: NodeEntity, To: NodeEntity},
			{Name: RelTaggedWith, From: NodeFile, To: NodeTag},
		},
		Constraints: []Constraint{
			{NodeType: NodeFile, Properties: []string{"repository", "path"}},
		},
		Indexes: []Index{
			{NodeType: NodeEntity, Properties: []string{"name"}},
			{NodeType: NodeEntity, Properties: []string{"doc"}, FullText: true},
		},
	}
}

// ============================================================================
// KUZU DIALECT
// ============================================================================

// KuzuRenderer renders schema declarations as Kuzu DDL. Kuzu enforces
// uniqueness only through primary keys, so composite constraints become a
// synthetic combined-key property filled by the adapter, and secondary
// indexes have no representation.
type KuzuRenderer struct{}

func (KuzuRenderer) Name() string { return "kuzu" }

func (KuzuRenderer) RenderNodeTable(t NodeTable) []string {
	var cols []string
	cols = append(cols, fmt.Sprintf("%s STRING", t.Key))
	for _, p := range t.Properties {
		cols = append(cols, fmt.Sprintf("%s %s", p.Name, kuzuType(p.Type)))
	}
	cols = append(cols, fmt.Sprintf("PRIMARY KEY(%s)", t.Key))
	return []string{fmt.Sprintf("CREATE NODE TABLE IF NOT EXISTS %s(%s)", t.Name, strings.Join(cols, ", "))}
}

func (KuzuRenderer) RenderRelTable(t RelTable) []string {
	var cols []string
	cols = append(cols, fmt.Sprintf("FROM %s TO %s", t.From, t.To))
	for _, p := range t.Properties {
		cols = append(cols, fmt.Sprintf("%s %s", p.Name, kuzuType(p.Type)))
	}
	return []string{fmt.Sprintf("CREATE REL TABLE IF NOT EXISTS %s(%s)", t.Name, strings.Join(cols, ", "))}
}

// RenderConstraint emulates composite uniqueness: the adapter writes the
// combined key into the node's primary key property, so uniqueness is
// enforced by the table itself and no extra DDL is needed.
func (KuzuRenderer) RenderConstraint(Constraint) []string { return nil }

// RenderIndex returns nothing: Kuzu has no user-defined secondary indexes.
func (KuzuRenderer) RenderIndex(Index) []string { return nil }

func (r KuzuRenderer) MigrationTable() []string {
	return r.RenderNodeTable(NodeTable{
		Name: NodeMigration,
		Key:  "version",
		Properties: []Property{
			{"description", PropString},
			{"applied_at", PropString},
		},
	})
}

func kuzuType(t PropertyType) string {
	switch t {
	case PropInt:
		return "INT64"
	case PropFloat:
		return "DOUBLE"
	case PropBool:
		return "BOOLEAN"
	default:
		return "STRING"
	}
}

// ============================================================================
// OPENCYPHER DIALECT
// ============================================================================

// OpenCypherRenderer renders schema declarations for label-based OpenCypher
// backends with native constraint and index DDL. Nodes and relationships
// need no table declarations there; only constraints and indexes produce
// statements.
type OpenCypherRenderer struct{}

func (OpenCypherRenderer) Name() string { return "opencypher" }

func (OpenCypherRenderer) RenderNodeTable(NodeTable) []string { return nil }

func (OpenCypherRenderer) RenderRelTable(RelTable) []string { return nil }

func (OpenCypherRenderer) RenderConstraint(c Constraint) []string {
	if len(c.Properties) == 1 {
		return []string{fmt.Sprintf(
			"CREATE CONSTRAINT IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
			c.NodeType, c.Properties[0])}
	}
	// Composite uniqueness via a synthetic combined-key property kept in
	// sync by the adapter.
	return []string{fmt.Sprintf(
		"CREATE CONSTRAINT IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
		c.NodeType, combinedKeyProp(c.Properties))}
}

func (OpenCypherRenderer) RenderIndex(i Index) []string {
	if i.FullText {
		return []string{fmt.Sprintf(
			"CREATE FULLTEXT INDEX %s_fulltext IF NOT EXISTS FOR (n:%s) ON EACH [%s]",
			strings.ToLower(i.NodeType), i.NodeType, propList(i.Properties))}
	}
	return []string{fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS FOR (n:%s) ON (%s)",
		i.NodeType, propList(i.Properties))}
}

func (OpenCypherRenderer) MigrationTable() []string {
	return []string{fmt.Sprintf(
		"CREATE CONSTRAINT IF NOT EXISTS FOR (n:%s) REQUIRE n.version IS UNIQUE",
		NodeMigration)}
}

func combinedKeyProp(props []string) string {
	return "ck_" + strings.Join(props, "_")
}

func propList(props []string) string {
	out := make([]string, len(props))
	for i, p := range props {
		out[i] = "n." + p
	}
	return strings.Join(out, ", ")
}
