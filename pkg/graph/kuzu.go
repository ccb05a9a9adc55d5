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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"log/slog"

	kuzu "github.com/kuzudb/go-kuzu"
)

// KuzuAdapter implements Adapter on an embedded KuzuDB database. It requires
// CGO because the go-kuzu driver wraps KuzuDB's C library.
type KuzuAdapter struct {
	path   string
	schema Schema
	logger *slog.Logger

	db   *kuzu.Database
	conn *kuzu.Connection
}

var _ Adapter = (*KuzuAdapter)(nil)

// NewKuzuAdapter creates an adapter for the database directory at path.
// An empty path opens an in-memory database.
func NewKuzuAdapter(path string, schema Schema, logger *slog.Logger) *KuzuAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &KuzuAdapter{path: path, schema: schema, logger: logger}
}

// Connect opens the database and creates the schema tables.
func (a *KuzuAdapter) Connect(ctx context.Context) error {
	target := a.path
	if target == "" {
		target = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return NewConnectionError("create database parent directory", err)
		}
	}

	db, err := kuzu.OpenDatabase(target, kuzu.DefaultSystemConfig())
	if err != nil {
		return NewConnectionError(fmt.Sprintf("open database %s", target), err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return NewConnectionError("open connection", err)
	}
	a.db = db
	a.conn = conn

	for _, stmt := range a.schema.Render(a.Dialect()) {
		if _, err := a.RunQuery(ctx, stmt, nil); err != nil {
			a.Close()
			return err
		}
	}
	a.logger.Info("graph.connect", "backend", "kuzu", "path", target)
	return nil
}

func (a *KuzuAdapter) Close() error {
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
	return nil
}

func (a *KuzuAdapter) Dialect() DialectRenderer { return KuzuRenderer{} }

// RunQuery executes a statement and collects all result rows.
func (a *KuzuAdapter) RunQuery(ctx context.Context, statement string, params map[string]any) ([][]any, error) {
	if a.conn == nil {
		return nil, NewConnectionError("adapter not connected", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, NewQueryTimeoutError("context done before query", err)
	}

	var res *kuzu.QueryResult
	var err error
	if len(params) == 0 {
		res, err = a.conn.Query(statement)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = a.conn.Prepare(statement)
		if err != nil {
			return nil, classifyKuzuError("prepare", err)
		}
		defer stmt.Close()
		res, err = a.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, classifyKuzuError("execute", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, NewQueryError("read row", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, NewQueryError("row values", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

// UpsertNode MERGEs by key and sets all properties, so re-writing a node is
// a replace rather than a duplicate.
func (a *KuzuAdapter) UpsertNode(ctx context.Context, n Node) error {
	table, err := a.nodeTable(n.Type)
	if err != nil {
		return err
	}

	params := map[string]any{"key": n.Key}
	var sets []string
	for _, name := range sortedKeys(n.Properties) {
		sets = append(sets, fmt.Sprintf("n.%s = $p_%s", name, name))
		params["p_"+name] = kuzuValue(n.Properties[name])
	}
	cypher := fmt.Sprintf("MERGE (n:%s {%s: $key})", n.Type, table.Key)
	if len(sets) > 0 {
		cypher += " SET " + strings.Join(sets, ", ")
	}
	_, err = a.RunQuery(ctx, cypher, params)
	return err
}

// UpsertRelationship MERGEs both endpoints, then the edge itself. Endpoints
// missing from the graph come into existence with just their key set.
func (a *KuzuAdapter) UpsertRelationship(ctx context.Context, r Relationship) error {
	fromTable, err := a.nodeTable(r.FromType)
	if err != nil {
		return err
	}
	toTable, err := a.nodeTable(r.ToType)
	if err != nil {
		return err
	}
	if _, err := a.relTable(r.Type); err != nil {
		return err
	}

	params := map[string]any{"from": r.FromKey, "to": r.ToKey}
	var sets []string
	for _, name := range sortedKeys(r.Properties) {
		sets = append(sets, fmt.Sprintf("e.%s = $p_%s", name, name))
		params["p_"+name] = kuzuValue(r.Properties[name])
	}
	cypher := fmt.Sprintf(
		"MERGE (a:%s {%s: $from}) MERGE (b:%s {%s: $to}) MERGE (a)-[e:%s]->(b)",
		r.FromType, fromTable.Key, r.ToType, toTable.Key, r.Type,
	)
	if len(sets) > 0 {
		cypher += " SET " + strings.Join(sets, ", ")
	}
	_, err = a.RunQuery(ctx, cypher, params)
	return err
}

func (a *KuzuAdapter) GetNode(ctx context.Context, nodeType, key string) (*Node, error) {
	table, err := a.nodeTable(nodeType)
	if err != nil {
		return nil, err
	}
	cols := make([]string, 0, len(table.Properties))
	for _, p := range table.Properties {
		cols = append(cols, "n."+p.Name)
	}
	ret := "RETURN 1"
	if len(cols) > 0 {
		ret = "RETURN " + strings.Join(cols, ", ")
	}

	rows, err := a.RunQuery(ctx,
		fmt.Sprintf("MATCH (n:%s {%s: $key}) %s", nodeType, table.Key, ret),
		map[string]any{"key": key},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, NewNodeNotFoundError(nodeType, key)
	}
	return rowToNode(nodeType, key, table, rows[0]), nil
}

func (a *KuzuAdapter) ListNodes(ctx context.Context, nodeType string) ([]Node, error) {
	table, err := a.nodeTable(nodeType)
	if err != nil {
		return nil, err
	}
	cols := []string{"n." + table.Key}
	for _, p := range table.Properties {
		cols = append(cols, "n."+p.Name)
	}

	rows, err := a.RunQuery(ctx,
		fmt.Sprintf("MATCH (n:%s) RETURN %s", nodeType, strings.Join(cols, ", ")),
		nil,
	)
	if err != nil {
		return nil, err
	}
	out := make([]Node, 0, len(rows))
	for _, row := range rows {
		key := toString(row[0])
		out = append(out, *rowToNode(nodeType, key, table, row[1:]))
	}
	return out, nil
}

func (a *KuzuAdapter) DeleteNode(ctx context.Context, nodeType, key string) error {
	table, err := a.nodeTable(nodeType)
	if err != nil {
		return err
	}
	_, err = a.RunQuery(ctx,
		fmt.Sprintf("MATCH (n:%s {%s: $key}) DETACH DELETE n", nodeType, table.Key),
		map[string]any{"key": key},
	)
	return err
}

// Traverse walks outgoing edges breadth-first from the start node.
func (a *KuzuAdapter) Traverse(ctx context.Context, startType, startKey string, relTypes []string, depth int) ([]Path, error) {
	if depth > MaxTraversalDepth {
		return nil, NewTraversalLimitError(depth, MaxTraversalDepth)
	}
	if depth <= 0 {
		depth = 1
	}

	type nodeRef struct{ typ, key string }
	type entry struct {
		ref   nodeRef
		path  []string
		depth int
	}
	start := nodeRef{startType, startKey}
	visited := map[nodeRef]bool{start: true}
	queue := []entry{{ref: start, path: []string{startKey}}}
	var paths []Path

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= depth {
			continue
		}
		for _, rel := range relTypes {
			table, err := a.relTable(rel)
			if err != nil {
				return nil, err
			}
			if table.From != cur.ref.typ {
				continue
			}
			neighbors, err := a.outNeighbors(ctx, rel, cur.ref.typ, cur.ref.key)
			if err != nil {
				return nil, err
			}
			for _, nb := range neighbors {
				ref := nodeRef{table.To, nb}
				if visited[ref] {
					continue
				}
				visited[ref] = true
				path := append(append([]string{}, cur.path...), nb)
				paths = append(paths, Path{Nodes: path, Depth: cur.depth + 1})
				queue = append(queue, entry{ref: ref, path: path, depth: cur.depth + 1})
			}
		}
	}
	return paths, nil
}

func (a *KuzuAdapter) GetDependencies(ctx context.Context, fileKey string, depth int) ([]Path, error) {
	return a.Traverse(ctx, NodeFile, fileKey, []string{RelImports}, depth)
}

// GetDependents walks IMPORTS edges in reverse: which files import this one.
func (a *KuzuAdapter) GetDependents(ctx context.Context, fileKey string, depth int) ([]Path, error) {
	if depth > MaxTraversalDepth {
		return nil, NewTraversalLimitError(depth, MaxTraversalDepth)
	}
	if depth <= 0 {
		depth = 1
	}

	type entry struct {
		key   string
		path  []string
		depth int
	}
	visited := map[string]bool{fileKey: true}
	queue := []entry{{key: fileKey, path: []string{fileKey}}}
	var paths []Path

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= depth {
			continue
		}
		neighbors, err := a.inNeighbors(ctx, RelImports, NodeFile, cur.key)
		if err != nil {
			return nil, err
		}
		for _, nb := range neighbors {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			path := append(append([]string{}, cur.path...), nb)
			paths = append(paths, Path{Nodes: path, Depth: cur.depth + 1})
			queue = append(queue, entry{key: nb, path: path, depth: cur.depth + 1})
		}
	}
	return paths, nil
}

// GetPath finds one shortest import path between two files via BFS.
func (a *KuzuAdapter) GetPath(ctx context.Context, fromKey, toKey string) (*Path, error) {
	paths, err := a.GetDependencies(ctx, fromKey, MaxTraversalDepth)
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if p.Nodes[len(p.Nodes)-1] == toKey {
			return &p, nil
		}
	}
	return nil, &Error{Code: ErrRelNotFound, Message: fmt.Sprintf("no import path %s -> %s", fromKey, toKey)}
}

func (a *KuzuAdapter) GetArchitecture(ctx context.Context, repository string) (*Architecture, error) {
	arch := &Architecture{Repository: repository, Entities: make(map[string]int)}

	rows, err := a.RunQuery(ctx,
		"MATCH (f:File) WHERE f.repository = $repo RETURN count(f)",
		map[string]any{"repo": repository})
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		arch.FileCount = toInt(rows[0][0])
	}

	rows, err = a.RunQuery(ctx,
		"MATCH (e:Entity) WHERE e.repository = $repo RETURN e.kind, count(e)",
		map[string]any{"repo": repository})
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		arch.Entities[toString(row[0])] = toInt(row[1])
	}

	rows, err = a.RunQuery(ctx,
		`MATCH (a:File)-[:IMPORTS]->(b:File)
		 WHERE a.repository = $repo
		 RETURN a.path, b.path`,
		map[string]any{"repo": repository})
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		arch.Imports = append(arch.Imports, ImportEdge{From: toString(row[0]), To: toString(row[1])})
	}
	sort.Slice(arch.Imports, func(i, j int) bool {
		if arch.Imports[i].From != arch.Imports[j].From {
			return arch.Imports[i].From < arch.Imports[j].From
		}
		return arch.Imports[i].To < arch.Imports[j].To
	})
	return arch, nil
}

// ---------- internal helpers ----------

func (a *KuzuAdapter) outNeighbors(ctx context.Context, rel, fromType, fromKey string) ([]string, error) {
	relTable, err := a.relTable(rel)
	if err != nil {
		return nil, err
	}
	fromTable, err := a.nodeTable(fromType)
	if err != nil {
		return nil, err
	}
	toTable, err := a.nodeTable(relTable.To)
	if err != nil {
		return nil, err
	}
	rows, err := a.RunQuery(ctx,
		fmt.Sprintf("MATCH (a:%s {%s: $key})-[:%s]->(b:%s) RETURN b.%s",
			fromType, fromTable.Key, rel, relTable.To, toTable.Key),
		map[string]any{"key": fromKey})
	if err != nil {
		return nil, err
	}
	return column(rows), nil
}

func (a *KuzuAdapter) inNeighbors(ctx context.Context, rel, nodeType, key string) ([]string, error) {
	table, err := a.nodeTable(nodeType)
	if err != nil {
		return nil, err
	}
	rows, err := a.RunQuery(ctx,
		fmt.Sprintf("MATCH (a:%s)-[:%s]->(b:%s {%s: $key}) RETURN a.%s",
			nodeType, rel, nodeType, table.Key, table.Key),
		map[string]any{"key": key})
	if err != nil {
		return nil, err
	}
	return column(rows), nil
}

func (a *KuzuAdapter) nodeTable(name string) (*NodeTable, error) {
	if name == NodeMigration {
		return &NodeTable{
			Name: NodeMigration,
			Key:  "version",
			Properties: []Property{
				{"description", PropString},
				{"applied_at", PropString},
			},
		}, nil
	}
	for i := range a.schema.Nodes {
		if a.schema.Nodes[i].Name == name {
			return &a.schema.Nodes[i], nil
		}
	}
	return nil, NewQueryError(fmt.Sprintf("unknown node type %s", name), nil)
}

func (a *KuzuAdapter) relTable(name string) (*RelTable, error) {
	for i := range a.schema.Rels {
		if a.schema.Rels[i].Name == name {
			return &a.schema.Rels[i], nil
		}
	}
	return nil, NewQueryError(fmt.Sprintf("unknown relationship type %s", name), nil)
}

func rowToNode(nodeType, key string, table *NodeTable, row []any) *Node {
	props := make(map[string]any, len(table.Properties))
	for i, p := range table.Properties {
		if i < len(row) {
			props[p.Name] = row[i]
		}
	}
	return &Node{Type: nodeType, Key: key, Properties: props}
}

func column(rows [][]any) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, toString(r[0]))
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// kuzuValue widens Go ints: the driver binds INT64 columns from int64 only.
func kuzuValue(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	default:
		return v
	}
}

// classifyKuzuError maps driver errors onto the taxonomy. The driver exposes
// no structured codes, so this inspects messages at the adapter boundary.
func classifyKuzuError(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewQueryTimeoutError(op, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "duplicated primary key"),
		strings.Contains(msg, "unique constraint"):
		return NewConstraintError(op, err)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "interrupt"):
		return NewQueryTimeoutError(op, err)
	default:
		return NewQueryError(op, err)
	}
}

// ---------- type coercion ----------
// The driver returns typed Go values (int64, float64, bool, string); these
// coerce any -> concrete safely.

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case int32:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
