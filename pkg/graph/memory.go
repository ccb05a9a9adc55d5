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
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryAdapter is a pure-Go Adapter for tests and dry runs. It keeps nodes
// and relationships in maps and records every raw statement passed to
// RunQuery so callers can assert what would have been executed.
type MemoryAdapter struct {
	mu        sync.RWMutex
	connected bool
	nodes     map[string]map[string]Node // type -> key -> node
	rels      []Relationship
	executed  []string

	// FailOn, when non-empty, makes RunQuery return a query error for any
	// statement containing the substring. Lets tests inject mid-run failures.
	FailOn string
}

var _ Adapter = (*MemoryAdapter)(nil)

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{nodes: make(map[string]map[string]Node)}
}

func (m *MemoryAdapter) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

func (m *MemoryAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

func (m *MemoryAdapter) Dialect() DialectRenderer { return KuzuRenderer{} }

// RunQuery records the statement; it does not interpret Cypher.
func (m *MemoryAdapter) RunQuery(ctx context.Context, statement string, params map[string]any) ([][]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewQueryTimeoutError("context done before query", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailOn != "" && strings.Contains(statement, m.FailOn) {
		return nil, NewQueryError("injected failure", nil)
	}
	m.executed = append(m.executed, statement)
	return nil, nil
}

// Executed returns a copy of all statements passed to RunQuery.
func (m *MemoryAdapter) Executed() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string{}, m.executed...)
}

func (m *MemoryAdapter) UpsertNode(ctx context.Context, n Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byKey := m.nodes[n.Type]
	if byKey == nil {
		byKey = make(map[string]Node)
		m.nodes[n.Type] = byKey
	}
	props := make(map[string]any, len(n.Properties))
	for k, v := range n.Properties {
		props[k] = v
	}
	byKey[n.Key] = Node{Type: n.Type, Key: n.Key, Properties: props}
	return nil
}

func (m *MemoryAdapter) UpsertRelationship(ctx context.Context, r Relationship) error {
	if err := m.ensureNode(ctx, r.FromType, r.FromKey); err != nil {
		return err
	}
	if err := m.ensureNode(ctx, r.ToType, r.ToKey); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rels {
		e := &m.rels[i]
		if e.Type == r.Type && e.FromKey == r.FromKey && e.ToKey == r.ToKey {
			e.Properties = r.Properties
			return nil
		}
	}
	m.rels = append(m.rels, r)
	return nil
}

func (m *MemoryAdapter) ensureNode(ctx context.Context, nodeType, key string) error {
	m.mu.RLock()
	_, ok := m.nodes[nodeType][key]
	m.mu.RUnlock()
	if ok {
		return nil
	}
	return m.UpsertNode(ctx, Node{Type: nodeType, Key: key, Properties: map[string]any{}})
}

func (m *MemoryAdapter) GetNode(ctx context.Context, nodeType, key string) (*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[nodeType][key]
	if !ok {
		return nil, NewNodeNotFoundError(nodeType, key)
	}
	cp := n
	return &cp, nil
}

func (m *MemoryAdapter) ListNodes(ctx context.Context, nodeType string) ([]Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byKey := m.nodes[nodeType]
	out := make([]Node, 0, len(byKey))
	for _, n := range byKey {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryAdapter) DeleteNode(ctx context.Context, nodeType, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes[nodeType], key)
	kept := m.rels[:0]
	for _, r := range m.rels {
		if (r.FromType == nodeType && r.FromKey == key) || (r.ToType == nodeType && r.ToKey == key) {
			continue
		}
		kept = append(kept, r)
	}
	m.rels = kept
	return nil
}

func (m *MemoryAdapter) Traverse(ctx context.Context, startType, startKey string, relTypes []string, depth int) ([]Path, error) {
	if depth > MaxTraversalDepth {
		return nil, NewTraversalLimitError(depth, MaxTraversalDepth)
	}
	if depth <= 0 {
		depth = 1
	}
	want := make(map[string]bool, len(relTypes))
	for _, t := range relTypes {
		want[t] = true
	}
	return m.bfs(startKey, depth, func(key string) []string {
		var next []string
		for _, r := range m.rels {
			if want[r.Type] && r.FromKey == key {
				next = append(next, r.ToKey)
			}
		}
		sort.Strings(next)
		return next
	}), nil
}

func (m *MemoryAdapter) GetDependencies(ctx context.Context, fileKey string, depth int) ([]Path, error) {
	return m.Traverse(ctx, NodeFile, fileKey, []string{RelImports}, depth)
}

func (m *MemoryAdapter) GetDependents(ctx context.Context, fileKey string, depth int) ([]Path, error) {
	if depth > MaxTraversalDepth {
		return nil, NewTraversalLimitError(depth, MaxTraversalDepth)
	}
	if depth <= 0 {
		depth = 1
	}
	return m.bfs(fileKey, depth, func(key string) []string {
		var next []string
		for _, r := range m.rels {
			if r.Type == RelImports && r.ToKey == key {
				next = append(next, r.FromKey)
			}
		}
		sort.Strings(next)
		return next
	}), nil
}

func (m *MemoryAdapter) GetPath(ctx context.Context, fromKey, toKey string) (*Path, error) {
	paths, err := m.GetDependencies(ctx, fromKey, MaxTraversalDepth)
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

func (m *MemoryAdapter) bfs(start string, depth int, neighbors func(string) []string) []Path {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type entry struct {
		key   string
		path  []string
		depth int
	}
	visited := map[string]bool{start: true}
	queue := []entry{{key: start, path: []string{start}}}
	var paths []Path

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= depth {
			continue
		}
		for _, nb := range neighbors(cur.key) {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			path := append(append([]string{}, cur.path...), nb)
			paths = append(paths, Path{Nodes: path, Depth: cur.depth + 1})
			queue = append(queue, entry{key: nb, path: path, depth: cur.depth + 1})
		}
	}
	return paths
}

func (m *MemoryAdapter) GetArchitecture(ctx context.Context, repository string) (*Architecture, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	arch := &Architecture{Repository: repository, Entities: make(map[string]int)}
	for _, n := range m.nodes[NodeFile] {
		if s, _ := n.Properties["repository"].(string); s == repository {
			arch.FileCount++
		}
	}
	for _, n := range m.nodes[NodeEntity] {
		if s, _ := n.Properties["repository"].(string); s == repository {
			kind, _ := n.Properties["kind"].(string)
			arch.Entities[kind]++
		}
	}
	prefix := repository + "#"
	for _, r := range m.rels {
		if r.Type != RelImports || !strings.HasPrefix(r.FromKey, prefix) {
			continue
		}
		arch.Imports = append(arch.Imports, ImportEdge{
			From: strings.TrimPrefix(r.FromKey, prefix),
			To:   strings.TrimPrefix(r.ToKey, prefix),
		})
	}
	sort.Slice(arch.Imports, func(i, j int) bool {
		if arch.Imports[i].From != arch.Imports[j].From {
			return arch.Imports[i].From < arch.Imports[j].From
		}
		return arch.Imports[i].To < arch.Imports[j].To
	})
	return arch, nil
}
