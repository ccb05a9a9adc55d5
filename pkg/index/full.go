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
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeatlas-dev/codeatlas/pkg/graph"
	"github.com/codeatlas-dev/codeatlas/pkg/state"
)

// FullIndex indexes every eligible file in the checkout from scratch and
// writes a fresh snapshot. Files recorded in a previous snapshot but absent
// from the new scan have their stored data removed. progress, when non-nil,
// is called after each file with cumulative counts.
func (c *Coordinator) FullIndex(ctx context.Context, repoPath string, progress func(done, total int)) (*UpdateResult, error) {
	repo := c.cfg.Repository
	if !c.acquire(repo) {
		return nil, fmt.Errorf("%w: %s", ErrUpdateInFlight, repo)
	}
	defer c.release(repo)

	started := time.Now()
	result, err := c.fullIndex(ctx, repo, repoPath, progress)
	elapsed := time.Since(started)
	if err != nil {
		c.metrics.cycleDone(StatusFailed, elapsed.Seconds())
		return nil, err
	}
	result.Duration = elapsed
	c.metrics.cycleDone(result.Status, elapsed.Seconds())
	c.logger.Info("index.full.complete",
		"repository", repo,
		"files", result.Processed,
		"errors", len(result.Errors),
		"duration", elapsed)
	return result, nil
}

func (c *Coordinator) fullIndex(ctx context.Context, repo, repoPath string, progress func(done, total int)) (*UpdateResult, error) {
	head, err := c.pull(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	scanResult, err := c.scan(repoPath)
	if err != nil {
		return nil, err
	}
	knownPaths := make(map[string]bool, len(scanResult.Files))
	for _, f := range scanResult.Files {
		knownPaths[f.Path] = true
	}

	// Old snapshot, if any, tells us which previously indexed files are gone.
	prev, err := c.snapshots.Load(repo)
	if err != nil {
		c.logger.Warn("index.full.snapshot_unreadable", "repository", repo, "error", err)
		prev = nil
	}

	var (
		mu        sync.Mutex
		files     = make(map[string]state.FileState, len(scanResult.Files))
		errs      []FileError
		done      int
		processed int
		total     = len(scanResult.Files)
		report    = func() {
			if progress != nil {
				progress(done, total)
			}
		}
	)

	readFailed := make(map[string]bool, len(scanResult.Errors))
	for _, re := range scanResult.Errors {
		readFailed[re.Path] = true
		errs = append(errs, FileError{Path: re.Path, Stage: "read", Err: re.Err.Error()})
	}

	workers := c.cfg.Indexing.ParseWorkers
	if workers <= 0 {
		workers = 4
	}
	g := &errgroup.Group{}
	g.SetLimit(workers)

	for _, f := range scanResult.Files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			content, err := os.ReadFile(f.AbsPath)
			if err == nil {
				err = c.indexer.ProcessFile(ctx, repo, f.Path, f.Hash, content, knownPaths)
			}
			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				errs = append(errs, FileError{Path: f.Path, Stage: "process", Err: err.Error()})
				c.metrics.fileDone("failed")
			} else {
				files[f.Path] = state.FileState{Hash: f.Hash, Size: f.Size}
				processed++
				c.metrics.fileDone("ok")
			}
			report()
			return nil
		})
	}
	_ = g.Wait()

	if prev != nil {
		for p, st := range prev.Files {
			if knownPaths[p] {
				continue
			}
			if readFailed[p] {
				// Unreadable, not gone. Keep its indexed data and carry the
				// old snapshot state so a later run retries it.
				files[p] = st
				continue
			}
			if err := c.indexer.DeleteFileData(ctx, repo, p); err != nil {
				errs = append(errs, FileError{Path: p, Stage: "delete", Err: err.Error()})
			}
		}
	}

	if err := c.graph.UpsertNode(ctx, graph.Node{
		Type: graph.NodeRepository,
		Key:  repo,
		Properties: map[string]any{
			"name":      repo,
			"clone_url": c.cfg.CloneURL,
			"head_sha":  head,
		},
	}); err != nil {
		errs = append(errs, FileError{Stage: "graph", Err: err.Error()})
	}

	snap := &state.RepositorySnapshot{
		Name:      repo,
		CloneURL:  c.cfg.CloneURL,
		Path:      repoPath,
		HeadSHA:   head,
		UpdatedAt: time.Now().UTC(),
		Files:     files,
		Filters:   state.Filters{Extensions: c.cfg.Indexing.Extensions, Exclude: c.cfg.Indexing.Exclude},
	}
	if err := c.snapshots.Save(snap); err != nil {
		return nil, err
	}

	sort.Slice(errs, func(i, j int) bool { return errs[i].Path < errs[j].Path })
	return &UpdateResult{
		Status:    StatusUpdated,
		HeadSHA:   head,
		Processed: processed,
		Errors:    errs,
	}, nil
}

// RepoStatus summarizes one indexed repository for status reporting.
type RepoStatus struct {
	Repository string    `json:"repository"`
	HeadSHA    string    `json:"head_sha,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
	FileCount  int       `json:"file_count"`
	ChunkCount int       `json:"chunk_count"`
}

// Status reports the snapshot and store state for the configured repository.
// A missing snapshot returns ErrNeedsFullIndex.
func (c *Coordinator) Status(ctx context.Context) (*RepoStatus, error) {
	repo := c.cfg.Repository
	snap, err := c.snapshots.Load(repo)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: no snapshot for %s", ErrNeedsFullIndex, repo)
	}
	chunks, err := c.indexer.vectors.Count(repo)
	if err != nil {
		return nil, err
	}
	return &RepoStatus{
		Repository: repo,
		HeadSHA:    snap.HeadSHA,
		UpdatedAt:  snap.UpdatedAt,
		FileCount:  len(snap.Files),
		ChunkCount: chunks,
	}, nil
}
