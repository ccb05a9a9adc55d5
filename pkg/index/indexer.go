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

// Package index orchestrates the indexing pipeline: scanning, extraction,
// chunking, embedding, and the vector/graph writes that keep both stores
// consistent with the repository content.
package index

import (
	"context"
	"fmt"
	"path"
	"strings"

	"log/slog"

	"github.com/codeatlas-dev/codeatlas/pkg/document"
	"github.com/codeatlas-dev/codeatlas/pkg/extract"
	"github.com/codeatlas-dev/codeatlas/pkg/graph"
	"github.com/codeatlas-dev/codeatlas/pkg/lang"
	"github.com/codeatlas-dev/codeatlas/pkg/scan"
	"github.com/codeatlas-dev/codeatlas/pkg/vector"
)

// Embedder is the slice of the embedding generator the indexer needs.
type Embedder interface {
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
}

// Indexer runs the per-file pipeline: chunk, embed, vector upsert, then
// graph upsert. Graph facts reference chunk identities, so the vector write
// always lands first.
type Indexer struct {
	extractor *extract.Service
	embedder  Embedder
	vectors   vector.Store
	graph     graph.Adapter
	chunker   *scan.Chunker
	logger    *slog.Logger
	metrics   *Metrics
}

func NewIndexer(extractor *extract.Service, embedder Embedder, vectors vector.Store, g graph.Adapter, chunker *scan.Chunker, logger *slog.Logger, metrics *Metrics) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	if chunker == nil {
		chunker = scan.NewChunker(0)
	}
	return &Indexer{
		extractor: extractor,
		embedder:  embedder,
		vectors:   vectors,
		graph:     g,
		chunker:   chunker,
		logger:    logger,
		metrics:   metrics,
	}
}

// ProcessFile indexes one file's content: documents are reduced to text
// first, source files keep their raw text for chunking and additionally go
// through entity extraction. knownPaths is the set of all scanned paths in
// the repository, used to resolve relative import specifiers.
func (ix *Indexer) ProcessFile(ctx context.Context, repo, relPath, hash string, content []byte, knownPaths map[string]bool) error {
	text := string(content)
	if extracted, handled, err := document.Extract(content, relPath); handled {
		if err != nil {
			return fmt.Errorf("document %s: %w", relPath, err)
		}
		text = extracted.Text
	}

	chunks := ix.chunker.Split(repo, relPath, text)
	if err := ix.embedAndStore(ctx, repo, relPath, chunks); err != nil {
		return err
	}
	return ix.updateGraph(ctx, repo, relPath, hash, content, chunks, knownPaths)
}

// embedAndStore replaces the file's chunks in the vector store. DeleteFile
// first, because the new chunking may produce fewer chunks than before and
// stale tails must not survive.
func (ix *Indexer) embedAndStore(ctx context.Context, repo, relPath string, chunks []scan.Chunk) error {
	if err := ix.vectors.DeleteFile(repo, relPath); err != nil {
		return fmt.Errorf("vector delete %s: %w", relPath, err)
	}
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	embeddings, err := ix.embedder.EmbedAll(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %s: %w", relPath, err)
	}
	ix.metrics.chunksEmbedded(len(chunks))

	records := make([]vector.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vector.Record{
			ID:         c.ID,
			Repository: c.Repository,
			Path:       c.Path,
			Index:      c.Index,
			StartLine:  c.StartLine,
			EndLine:    c.EndLine,
			Content:    c.Content,
			Embedding:  embeddings[i],
		}
	}
	if err := ix.vectors.Upsert(records); err != nil {
		return fmt.Errorf("vector upsert %s: %w", relPath, err)
	}
	return nil
}

// updateGraph replaces the file's graph facts: the File node, its chunks,
// and (for source files) its entities, imports and call edges.
func (ix *Indexer) updateGraph(ctx context.Context, repo, relPath, hash string, content []byte, chunks []scan.Chunk, knownPaths map[string]bool) error {
	if err := ix.RemoveFileFacts(ctx, repo, relPath); err != nil {
		return err
	}

	fileKey := graph.FileKey(repo, relPath)
	language := lang.Detect(relPath)
	if err := ix.graph.UpsertNode(ctx, graph.Node{
		Type: graph.NodeFile,
		Key:  fileKey,
		Properties: map[string]any{
			"repository": repo,
			"path":       relPath,
			"language":   string(language),
			"hash":       hash,
		},
	}); err != nil {
		return fmt.Errorf("graph file %s: %w", relPath, err)
	}
	if err := ix.graph.UpsertRelationship(ctx, graph.Relationship{
		Type:     graph.RelContains,
		FromType: graph.NodeRepository,
		FromKey:  repo,
		ToType:   graph.NodeFile,
		ToKey:    fileKey,
	}); err != nil {
		return fmt.Errorf("graph contains %s: %w", relPath, err)
	}

	for _, c := range chunks {
		if err := ix.graph.UpsertNode(ctx, graph.Node{
			Type: graph.NodeChunk,
			Key:  c.ID,
			Properties: map[string]any{
				"repository":  repo,
				"path":        relPath,
				"chunk_index": c.Index,
				"start_line":  c.StartLine,
				"end_line":    c.EndLine,
			},
		}); err != nil {
			return fmt.Errorf("graph chunk %s: %w", c.ID, err)
		}
		if err := ix.graph.UpsertRelationship(ctx, graph.Relationship{
			Type:     graph.RelHasChunk,
			FromType: graph.NodeFile,
			FromKey:  fileKey,
			ToType:   graph.NodeChunk,
			ToKey:    c.ID,
		}); err != nil {
			return fmt.Errorf("graph has_chunk %s: %w", c.ID, err)
		}
	}

	if ix.extractor == nil || !ix.extractor.Supports(relPath) {
		return nil
	}
	result, err := ix.extractor.Extract(ctx, content, relPath)
	if err != nil {
		// Extraction failure leaves the file indexed as chunks only.
		ix.logger.Warn("index.extract.failed", "path", relPath, "error", err)
		return nil
	}
	return ix.upsertEntities(ctx, repo, relPath, result, knownPaths)
}

func (ix *Indexer) upsertEntities(ctx context.Context, repo, relPath string, result *extract.Result, knownPaths map[string]bool) error {
	fileKey := graph.FileKey(repo, relPath)

	entityByID := make(map[string]extract.CodeEntity, len(result.Entities))
	entityByName := make(map[string]string, len(result.Entities))
	for _, e := range result.Entities {
		entityByID[e.ID] = e
		entityByName[e.Name] = e.ID
		if err := ix.graph.UpsertNode(ctx, graph.Node{
			Type: graph.NodeEntity,
			Key:  e.ID,
			Properties: map[string]any{
				"name":        e.Name,
				"kind":        string(e.Kind),
				"repository":  repo,
				"file_path":   relPath,
				"start_line":  e.StartLine,
				"end_line":    e.EndLine,
				"exported":    e.Exported,
				"is_async":    e.IsAsync,
				"is_abstract": e.IsAbstract,
				"signature":   e.Signature,
				"doc":         e.Doc,
			},
		}); err != nil {
			return fmt.Errorf("graph entity %s: %w", e.Name, err)
		}
		if err := ix.graph.UpsertRelationship(ctx, graph.Relationship{
			Type:     graph.RelDefines,
			FromType: graph.NodeFile,
			FromKey:  fileKey,
			ToType:   graph.NodeEntity,
			ToKey:    e.ID,
		}); err != nil {
			return fmt.Errorf("graph defines %s: %w", e.Name, err)
		}
	}

	for _, imp := range result.Imports {
		target := resolveImport(relPath, imp.Module, knownPaths)
		if target == "" {
			continue
		}
		if err := ix.graph.UpsertRelationship(ctx, graph.Relationship{
			Type:     graph.RelImports,
			FromType: graph.NodeFile,
			FromKey:  fileKey,
			ToType:   graph.NodeFile,
			ToKey:    graph.FileKey(repo, target),
			Properties: map[string]any{
				"specifier": imp.Module,
			},
		}); err != nil {
			return fmt.Errorf("graph imports %s: %w", imp.Module, err)
		}
	}

	for _, call := range result.Calls {
		// Call edges only for calls resolvable to entities in this file.
		calleeID, ok := entityByName[call.Callee]
		if !ok {
			continue
		}
		// Backends that know the enclosing entity set CallerID; the
		// tree-sitter walker reports only the enclosing name, so resolve
		// it here. Module-level calls stay out of the graph.
		callerID := call.CallerID
		if callerID == "" {
			callerID = entityByName[call.Caller]
		}
		if _, ok := entityByID[callerID]; !ok {
			continue
		}
		if err := ix.graph.UpsertRelationship(ctx, graph.Relationship{
			Type:     graph.RelCalls,
			FromType: graph.NodeEntity,
			FromKey:  callerID,
			ToType:   graph.NodeEntity,
			ToKey:    calleeID,
			Properties: map[string]any{
				"line":     call.Line,
				"is_async": call.Awaited,
			},
		}); err != nil {
			return fmt.Errorf("graph calls %s: %w", call.Callee, err)
		}
	}
	return nil
}

// DeleteFileData removes everything indexed for one file from both stores.
func (ix *Indexer) DeleteFileData(ctx context.Context, repo, relPath string) error {
	if err := ix.vectors.DeleteFile(repo, relPath); err != nil {
		return fmt.Errorf("vector delete %s: %w", relPath, err)
	}
	if err := ix.RemoveFileFacts(ctx, repo, relPath); err != nil {
		return err
	}
	return ix.graph.DeleteNode(ctx, graph.NodeFile, graph.FileKey(repo, relPath))
}

// RenameFile relabels a file whose content hash did not change: vector rows
// move to the new path without re-embedding, and the file's graph facts are
// rebuilt under the new path from the same content.
func (ix *Indexer) RenameFile(ctx context.Context, repo, oldPath, newPath, hash string, content []byte, knownPaths map[string]bool) error {
	if err := ix.vectors.RenameFile(repo, oldPath, newPath); err != nil {
		return fmt.Errorf("vector rename %s -> %s: %w", oldPath, newPath, err)
	}
	if err := ix.RemoveFileFacts(ctx, repo, oldPath); err != nil {
		return err
	}
	if err := ix.graph.DeleteNode(ctx, graph.NodeFile, graph.FileKey(repo, oldPath)); err != nil {
		return err
	}

	text := string(content)
	if extracted, handled, err := document.Extract(content, newPath); handled {
		if err != nil {
			return fmt.Errorf("document %s: %w", newPath, err)
		}
		text = extracted.Text
	}
	chunks := ix.chunker.Split(repo, newPath, text)
	return ix.updateGraph(ctx, repo, newPath, hash, content, chunks, knownPaths)
}

// RemoveFileFacts deletes the entity and chunk nodes belonging to one file.
// The adapter has no filtered delete, so this lists and matches on the
// recorded repository and path properties.
func (ix *Indexer) RemoveFileFacts(ctx context.Context, repo, relPath string) error {
	entities, err := ix.graph.ListNodes(ctx, graph.NodeEntity)
	if err != nil {
		return err
	}
	for _, n := range entities {
		r, _ := n.Properties["repository"].(string)
		p, _ := n.Properties["file_path"].(string)
		if r == repo && p == relPath {
			if err := ix.graph.DeleteNode(ctx, graph.NodeEntity, n.Key); err != nil {
				return err
			}
		}
	}

	chunkNodes, err := ix.graph.ListNodes(ctx, graph.NodeChunk)
	if err != nil {
		return err
	}
	for _, n := range chunkNodes {
		r, _ := n.Properties["repository"].(string)
		p, _ := n.Properties["path"].(string)
		if r == repo && p == relPath {
			if err := ix.graph.DeleteNode(ctx, graph.NodeChunk, n.Key); err != nil {
				return err
			}
		}
	}
	return nil
}

// importSuffixes are tried in order when a relative specifier has no
// extension, mirroring module resolution for the indexed languages.
var importSuffixes = []string{
	"", ".ts", ".tsx", ".js", ".jsx",
	"/index.ts", "/index.tsx", "/index.js", "/index.jsx",
}

// resolveImport maps a relative import specifier to a repository path, or ""
// when the specifier is a package import or resolves outside the scan.
func resolveImport(fromPath, specifier string, knownPaths map[string]bool) string {
	if !strings.HasPrefix(specifier, "./") && !strings.HasPrefix(specifier, "../") {
		return ""
	}
	base := path.Join(path.Dir(fromPath), specifier)
	if strings.HasPrefix(base, "..") {
		return ""
	}
	for _, suffix := range importSuffixes {
		if candidate := base + suffix; knownPaths[candidate] {
			return candidate
		}
	}
	return ""
}
