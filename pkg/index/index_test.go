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

package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"github.com/codeatlas-dev/codeatlas/internal/config"
	"github.com/codeatlas-dev/codeatlas/pkg/embed"
	"github.com/codeatlas-dev/codeatlas/pkg/extract"
	"github.com/codeatlas-dev/codeatlas/pkg/gitrepo"
	"github.com/codeatlas-dev/codeatlas/pkg/graph"
	"github.com/codeatlas-dev/codeatlas/pkg/scan"
	"github.com/codeatlas-dev/codeatlas/pkg/state"
	"github.com/codeatlas-dev/codeatlas/pkg/vector"
)

// fakeVectorStore is an in-memory vector.Store that counts mutations, so
// tests can assert the zero-mutation and no-re-embed properties.
type fakeVectorStore struct {
	mu      sync.Mutex
	records map[string]vector.Record

	upserts int
	deletes int
	renames int

	// failPath makes any mutation touching this path fail.
	failPath string
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{records: make(map[string]vector.Record)}
}

func (f *fakeVectorStore) mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts + f.deletes + f.renames
}

func (f *fakeVectorStore) Upsert(records []vector.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range records {
		if f.failPath != "" && r.Path == f.failPath {
			return fmt.Errorf("upsert %s: injected failure", r.Path)
		}
	}
	for _, r := range records {
		f.records[r.ID] = r
	}
	f.upserts++
	return nil
}

func (f *fakeVectorStore) Delete(ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.records, id)
	}
	f.deletes++
	return nil
}

func (f *fakeVectorStore) DeleteFile(repository, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, r := range f.records {
		if r.Repository == repository && r.Path == path {
			delete(f.records, id)
		}
	}
	f.deletes++
	return nil
}

func (f *fakeVectorStore) RenameFile(repository, oldPath, newPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, r := range f.records {
		if r.Repository == repository && r.Path == oldPath {
			delete(f.records, id)
			r.Path = newPath
			r.ID = scan.ChunkID(repository, newPath, r.Index)
			f.records[r.ID] = r
		}
	}
	f.renames++
	return nil
}

func (f *fakeVectorStore) Query(embedding []float32, opts vector.QueryOptions) ([]vector.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matches []vector.Match
	for _, r := range f.records {
		if opts.Repository != "" && r.Repository != opts.Repository {
			continue
		}
		var dot float64
		for i := range embedding {
			if i < len(r.Embedding) {
				dot += float64(embedding[i]) * float64(r.Embedding[i])
			}
		}
		dist := 1 - dot
		if opts.MaxDistance > 0 && dist > opts.MaxDistance {
			continue
		}
		matches = append(matches, vector.Match{
			ID: r.ID, Repository: r.Repository, Path: r.Path, Index: r.Index,
			StartLine: r.StartLine, EndLine: r.EndLine, Content: r.Content, Distance: dist,
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	return matches, nil
}

func (f *fakeVectorStore) Count(repository string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.records {
		if repository == "" || r.Repository == repository {
			n++
		}
	}
	return n, nil
}

func (f *fakeVectorStore) Close() error { return nil }

func (f *fakeVectorStore) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := map[string]bool{}
	for _, r := range f.records {
		set[r.Path] = true
	}
	var out []string
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// countingEmbedder wraps the mock generator and counts EmbedAll calls.
type countingEmbedder struct {
	mu    sync.Mutex
	inner Embedder
	calls int
}

func (c *countingEmbedder) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.EmbedAll(ctx, texts)
}

func (c *countingEmbedder) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type testEnv struct {
	coord    *Coordinator
	searcher *Searcher
	vectors  *fakeVectorStore
	graph    *graph.MemoryAdapter
	embedder *countingEmbedder
	repoPath string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Repository = "testrepo"
	cfg.Indexing.Extensions = []string{"ts", "md"}
	cfg.Indexing.Exclude = nil
	cfg.Indexing.ParseWorkers = 2

	vectors := newFakeVectorStore()
	adapter := graph.NewMemoryAdapter()
	require.NoError(t, adapter.Connect(context.Background()))

	embedder := &countingEmbedder{
		inner: embed.NewGenerator(embed.NewMockProvider(8, nil), 16, nil),
	}
	extractor := extract.NewService(extract.Options{}, nil)
	indexer := NewIndexer(extractor, embedder, vectors, adapter, scan.NewChunker(0), nil, nil)

	repoPath := t.TempDir()
	coord := NewCoordinator(cfg, indexer, state.NewStore(t.TempDir()), gitrepo.NewSyncer(nil), adapter, nil, nil)

	return &testEnv{
		coord:    coord,
		searcher: NewSearcher(embedder, vectors, nil, nil),
		vectors:  vectors,
		graph:    adapter,
		embedder: embedder,
		repoPath: repoPath,
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func initGit(t *testing.T, root string) *gogit.Repository {
	t.Helper()
	repo, err := gogit.PlainInit(root, false)
	require.NoError(t, err)
	return repo
}

func commitAll(t *testing.T, repo *gogit.Repository, msg string) {
	t.Helper()
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(".")
	require.NoError(t, err)
	_, err = wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "t@example.com", When: time.Now()},
	})
	require.NoError(t, err)
}

const loginSource = `import { hash } from "./utils";

export async function login(user: string, password: string): Promise<boolean> {
  return hash(password) === user;
}
`

const utilsSource = `export function hash(s: string): string {
  return s.split("").reverse().join("");
}
`

func TestFullIndexThenStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	writeFile(t, env.repoPath, "src/login.ts", loginSource)
	writeFile(t, env.repoPath, "src/utils.ts", utilsSource)
	writeFile(t, env.repoPath, "docs/guide.md", "# Guide\n\nHow to log in.\n")

	res, err := env.coord.FullIndex(ctx, env.repoPath, nil)
	require.NoError(t, err)
	require.Equal(t, StatusUpdated, res.Status)
	require.Equal(t, 3, res.Processed)
	require.Empty(t, res.Errors)

	st, err := env.coord.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, "testrepo", st.Repository)
	require.Equal(t, 3, st.FileCount)
	require.Positive(t, st.ChunkCount)

	// The repository and file nodes landed in the graph.
	_, err = env.graph.GetNode(ctx, graph.NodeRepository, "testrepo")
	require.NoError(t, err)
	_, err = env.graph.GetNode(ctx, graph.NodeFile, graph.FileKey("testrepo", "src/login.ts"))
	require.NoError(t, err)
}

func TestUpdateWithoutSnapshotNeedsFullIndex(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.coord.Update(context.Background(), env.repoPath)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNeedsFullIndex)
}

func TestUpdateNoChangesShortCircuit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	writeFile(t, env.repoPath, "src/utils.ts", utilsSource)
	repo := initGit(t, env.repoPath)
	commitAll(t, repo, "initial")

	_, err := env.coord.FullIndex(ctx, env.repoPath, nil)
	require.NoError(t, err)

	mutationsBefore := env.vectors.mutations()
	nodesBefore, err := env.graph.ListNodes(ctx, graph.NodeFile)
	require.NoError(t, err)

	res, err := env.coord.Update(ctx, env.repoPath)
	require.NoError(t, err)
	require.Equal(t, StatusNoChanges, res.Status)

	// Zero vector and graph mutations.
	require.Equal(t, mutationsBefore, env.vectors.mutations())
	nodesAfter, err := env.graph.ListNodes(ctx, graph.NodeFile)
	require.NoError(t, err)
	require.Equal(t, nodesBefore, nodesAfter)
}

func TestUpdateThresholdFallback(t *testing.T) {
	env := newTestEnv(t)
	env.coord.cfg.Indexing.ChangeThreshold = 2
	ctx := context.Background()

	writeFile(t, env.repoPath, "src/utils.ts", utilsSource)
	repo := initGit(t, env.repoPath)
	commitAll(t, repo, "initial")

	_, err := env.coord.FullIndex(ctx, env.repoPath, nil)
	require.NoError(t, err)
	mutationsBefore := env.vectors.mutations()

	for i := 0; i < 3; i++ {
		writeFile(t, env.repoPath, fmt.Sprintf("src/gen%d.ts", i), fmt.Sprintf("export const n%d = %d;\n", i, i))
	}
	commitAll(t, repo, "bulk change")

	_, err = env.coord.Update(ctx, env.repoPath)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNeedsFullIndex)
	require.Contains(t, err.Error(), "exceed threshold")

	// Nothing was processed before the fallback decision.
	require.Equal(t, mutationsBefore, env.vectors.mutations())
}

func TestUpdateAddModifyDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	writeFile(t, env.repoPath, "src/login.ts", loginSource)
	writeFile(t, env.repoPath, "src/utils.ts", utilsSource)
	repo := initGit(t, env.repoPath)
	commitAll(t, repo, "initial")

	_, err := env.coord.FullIndex(ctx, env.repoPath, nil)
	require.NoError(t, err)

	writeFile(t, env.repoPath, "src/login.ts", loginSource+"\nexport const VERSION = 2;\n")
	writeFile(t, env.repoPath, "src/session.ts", "export class Session {}\n")
	require.NoError(t, os.Remove(filepath.Join(env.repoPath, "src", "utils.ts")))
	commitAll(t, repo, "changes")

	res, err := env.coord.Update(ctx, env.repoPath)
	require.NoError(t, err)
	require.Equal(t, StatusUpdated, res.Status)
	require.Empty(t, res.Errors)
	require.Len(t, res.Changes.Added, 1)
	require.Len(t, res.Changes.Modified, 1)
	require.Len(t, res.Changes.Deleted, 1)

	require.Equal(t, []string{"src/login.ts", "src/session.ts"}, env.vectors.paths())

	// The deleted file's graph node is gone; the added file's is present.
	_, err = env.graph.GetNode(ctx, graph.NodeFile, graph.FileKey("testrepo", "src/utils.ts"))
	require.True(t, graph.IsNotFound(err))
	_, err = env.graph.GetNode(ctx, graph.NodeFile, graph.FileKey("testrepo", "src/session.ts"))
	require.NoError(t, err)
}

func TestUpdateRenameSkipsReEmbedding(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	writeFile(t, env.repoPath, "src/utils.ts", utilsSource)
	repo := initGit(t, env.repoPath)
	commitAll(t, repo, "initial")

	_, err := env.coord.FullIndex(ctx, env.repoPath, nil)
	require.NoError(t, err)
	embedsBefore := env.embedder.callCount()

	require.NoError(t, os.Rename(
		filepath.Join(env.repoPath, "src", "utils.ts"),
		filepath.Join(env.repoPath, "src", "helpers.ts")))
	commitAll(t, repo, "rename")

	res, err := env.coord.Update(ctx, env.repoPath)
	require.NoError(t, err)
	require.Equal(t, StatusUpdated, res.Status)
	require.Len(t, res.Changes.Renamed, 1)
	require.Equal(t, "src/utils.ts", res.Changes.Renamed[0].OldPath)
	require.Equal(t, "src/helpers.ts", res.Changes.Renamed[0].Path)

	// Unchanged content is never re-embedded; the vectors moved in place.
	require.Equal(t, embedsBefore, env.embedder.callCount())
	require.Equal(t, []string{"src/helpers.ts"}, env.vectors.paths())

	// Entities re-associated with the new path.
	entities, err := env.graph.ListNodes(ctx, graph.NodeEntity)
	require.NoError(t, err)
	for _, e := range entities {
		require.Equal(t, "src/helpers.ts", e.Properties["file_path"])
	}
}

func TestUpdatePartialFailureCommitsMetadata(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	writeFile(t, env.repoPath, "src/base.ts", "export const base = 1;\n")
	repo := initGit(t, env.repoPath)
	commitAll(t, repo, "initial")

	_, err := env.coord.FullIndex(ctx, env.repoPath, nil)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		writeFile(t, env.repoPath, fmt.Sprintf("src/ok%d.ts", i), fmt.Sprintf("export const ok%d = %d;\n", i, i))
	}
	writeFile(t, env.repoPath, "src/bad.ts", "export const bad = true;\n")
	commitAll(t, repo, "five new files")

	env.vectors.mu.Lock()
	env.vectors.failPath = "src/bad.ts"
	env.vectors.mu.Unlock()

	res, err := env.coord.Update(ctx, env.repoPath)
	require.NoError(t, err)
	require.Equal(t, StatusUpdated, res.Status, "partial success still reports updated")
	require.Len(t, res.Errors, 1)
	require.Equal(t, "src/bad.ts", res.Errors[0].Path)
	require.Equal(t, 4, res.Processed)

	// The snapshot committed without the failed file, so the next cycle
	// sees it as still added and retries.
	snap, err := env.coord.snapshots.Load("testrepo")
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.NotContains(t, snap.Files, "src/bad.ts")
	require.Contains(t, snap.Files, "src/ok0.ts")
}

func TestUpdateInFlightGuard(t *testing.T) {
	env := newTestEnv(t)
	require.True(t, env.coord.acquire("testrepo"))
	defer env.coord.release("testrepo")

	_, err := env.coord.Update(context.Background(), env.repoPath)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrUpdateInFlight)
}

func TestUpdateFilterChangeNeedsFullIndex(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	writeFile(t, env.repoPath, "src/utils.ts", utilsSource)
	_, err := env.coord.FullIndex(ctx, env.repoPath, nil)
	require.NoError(t, err)

	env.coord.cfg.Indexing.Extensions = []string{"ts"}
	_, err = env.coord.Update(ctx, env.repoPath)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNeedsFullIndex)
	require.Contains(t, err.Error(), "filters changed")
}

func TestSearchReturnsNearestChunks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	writeFile(t, env.repoPath, "src/login.ts", loginSource)
	writeFile(t, env.repoPath, "docs/guide.md", "# Guide\n\nPasswords are hashed before comparison.\n")
	_, err := env.coord.FullIndex(ctx, env.repoPath, nil)
	require.NoError(t, err)

	results, err := env.searcher.Search(ctx, "login", SearchOptions{Limit: 5, Repository: "testrepo"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for i := 1; i < len(results); i++ {
		require.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}
	for _, r := range results {
		require.Equal(t, "testrepo", r.Repository)
		require.InDelta(t, 1-r.Distance/2, r.Score, 1e-9)
	}

	_, err = env.searcher.Search(ctx, "", SearchOptions{})
	require.Error(t, err)
}

func TestResolveImport(t *testing.T) {
	known := map[string]bool{
		"src/utils.ts":       true,
		"src/lib/index.ts":   true,
		"src/config.json":    true,
		"src/deep/helper.ts": true,
	}
	tests := []struct {
		from, spec, want string
	}{
		{"src/login.ts", "./utils", "src/utils.ts"},
		{"src/login.ts", "./lib", "src/lib/index.ts"},
		{"src/deep/a.ts", "../utils", "src/utils.ts"},
		{"src/login.ts", "./missing", ""},
		{"src/login.ts", "react", ""},
		{"src/login.ts", "../../outside", ""},
	}
	for _, tt := range tests {
		got := resolveImport(tt.from, tt.spec, known)
		if got != tt.want {
			t.Errorf("resolveImport(%q, %q) = %q, want %q", tt.from, tt.spec, got, tt.want)
		}
	}
}

func TestDottedExtensions(t *testing.T) {
	require.Equal(t, []string{".ts", ".md"}, dotted([]string{"ts", ".md"}))
}

func TestFullIndexRemovesStaleFiles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	writeFile(t, env.repoPath, "src/old.ts", "export const old = 1;\n")
	_, err := env.coord.FullIndex(ctx, env.repoPath, nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(env.repoPath, "src", "old.ts")))
	writeFile(t, env.repoPath, "src/new.ts", "export const fresh = 2;\n")

	res, err := env.coord.FullIndex(ctx, env.repoPath, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Processed)
	require.Equal(t, []string{"src/new.ts"}, env.vectors.paths())

	_, err = env.graph.GetNode(ctx, graph.NodeFile, graph.FileKey("testrepo", "src/old.ts"))
	require.True(t, graph.IsNotFound(err))
}

func TestFullIndexProgressCallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	writeFile(t, env.repoPath, "a.ts", "export const a = 1;\n")
	writeFile(t, env.repoPath, "b.ts", "export const b = 2;\n")

	var mu sync.Mutex
	var seen []string
	_, err := env.coord.FullIndex(ctx, env.repoPath, func(done, total int) {
		mu.Lock()
		seen = append(seen, fmt.Sprintf("%d/%d", done, total))
		mu.Unlock()
	})
	require.NoError(t, err)
	require.Len(t, seen, 2)
	require.True(t, strings.HasSuffix(seen[len(seen)-1], "/2"))
}

func TestErrorsUnwrapThroughUpdate(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.coord.Update(context.Background(), env.repoPath)
	require.True(t, errors.Is(err, ErrNeedsFullIndex))
}

const serviceSource = `export function helper(s: string): string {
  return s.trim();
}

export function caller(s: string): string {
  return helper(s);
}
`

func TestProcessFileCreatesCallEdges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	knownPaths := map[string]bool{"src/service.ts": true}
	err := env.coord.indexer.ProcessFile(ctx, "testrepo", "src/service.ts", "h1", []byte(serviceSource), knownPaths)
	require.NoError(t, err)

	entities, err := env.graph.ListNodes(ctx, graph.NodeEntity)
	require.NoError(t, err)
	var callerID, helperID string
	for _, n := range entities {
		switch n.Properties["name"] {
		case "caller":
			callerID = n.Key
		case "helper":
			helperID = n.Key
		}
	}
	require.NotEmpty(t, callerID)
	require.NotEmpty(t, helperID)

	paths, err := env.graph.Traverse(ctx, graph.NodeEntity, callerID, []string{graph.RelCalls}, 1)
	require.NoError(t, err)
	require.Len(t, paths, 1, "caller should reach helper through a call edge")
	require.Equal(t, []string{callerID, helperID}, paths[0].Nodes)

	// helper calls nothing within the file.
	paths, err = env.graph.Traverse(ctx, graph.NodeEntity, helperID, []string{graph.RelCalls}, 1)
	require.NoError(t, err)
	require.Empty(t, paths)
}

func TestUpdateUnreadableFileKeepsIndexedData(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions do not apply to root")
	}
	env := newTestEnv(t)
	ctx := context.Background()

	writeFile(t, env.repoPath, "src/ok.ts", "export const a = 1;\n")
	writeFile(t, env.repoPath, "src/locked.ts", utilsSource)

	_, err := env.coord.FullIndex(ctx, env.repoPath, nil)
	require.NoError(t, err)

	require.NoError(t, os.Chmod(filepath.Join(env.repoPath, "src", "locked.ts"), 0o000))
	writeFile(t, env.repoPath, "src/ok.ts", "export const a = 2;\n")

	res, err := env.coord.Update(ctx, env.repoPath)
	require.NoError(t, err)
	require.Equal(t, StatusUpdated, res.Status)
	require.Empty(t, res.Changes.Deleted, "a read failure must not become a delete")

	require.Len(t, res.Errors, 1)
	require.Equal(t, "src/locked.ts", res.Errors[0].Path)
	require.Equal(t, "hashing", res.Errors[0].Stage)

	// The unreadable file's stores and snapshot entry survive the cycle.
	require.Contains(t, env.vectors.paths(), "src/locked.ts")
	_, err = env.graph.GetNode(ctx, graph.NodeFile, graph.FileKey("testrepo", "src/locked.ts"))
	require.NoError(t, err)
	snap, err := env.coord.snapshots.Load("testrepo")
	require.NoError(t, err)
	require.Contains(t, snap.Files, "src/locked.ts")
}
