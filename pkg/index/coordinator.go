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
	"sort"
	"sync"
	"time"

	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/codeatlas-dev/codeatlas/internal/config"
	"github.com/codeatlas-dev/codeatlas/pkg/gitrepo"
	"github.com/codeatlas-dev/codeatlas/pkg/graph"
	"github.com/codeatlas-dev/codeatlas/pkg/scan"
	"github.com/codeatlas-dev/codeatlas/pkg/state"
)

// Update cycle statuses. "updated" covers both full and partial success;
// callers must inspect Errors to tell them apart.
const (
	StatusNoChanges = "no_changes"
	StatusUpdated   = "updated"
	StatusFailed    = "failed"
)

// Phase names one step of the update state machine, surfaced in logs.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseFetchingMetadata Phase = "fetching_metadata"
	PhasePulling          Phase = "pulling"
	PhaseDetectingChanges Phase = "detecting_changes"
	PhaseProcessingFiles  Phase = "processing_files"
	PhaseUpdatingGraph    Phase = "updating_graph"
	PhaseUpdatingMetadata Phase = "updating_metadata"
	PhaseCompleted        Phase = "completed"
	PhaseFailed           Phase = "failed"
)

var (
	// ErrUpdateInFlight rejects a second concurrent cycle for the same
	// repository.
	ErrUpdateInFlight = errors.New("update already in flight for repository")

	// ErrNeedsFullIndex signals that incremental processing does not apply:
	// either no prior snapshot exists, or the change volume exceeds the
	// configured threshold. The caller should run a full index instead.
	ErrNeedsFullIndex = errors.New("full index required")
)

// FileError is one per-file failure collected during a cycle.
type FileError struct {
	Path  string `json:"path"`
	Stage string `json:"stage"`
	Err   string `json:"error"`
}

// hashErrors converts detector hashing failures into cycle errors.
func hashErrors(errs []*state.Error) []FileError {
	out := make([]FileError, 0, len(errs))
	for _, e := range errs {
		out = append(out, FileError{Path: e.Path, Stage: "hashing", Err: e.Error()})
	}
	return out
}

// UpdateResult is the outcome of one update cycle.
type UpdateResult struct {
	Status    string           `json:"status"`
	HeadSHA   string           `json:"head_sha,omitempty"`
	Changes   *state.ChangeSet `json:"changes,omitempty"`
	Processed int              `json:"processed"`
	Errors    []FileError      `json:"errors,omitempty"`
	Duration  time.Duration    `json:"duration"`
}

// Coordinator drives incremental repository update cycles. One cycle per
// repository runs at a time; everything else about file processing order is
// unspecified and parallel.
type Coordinator struct {
	cfg       config.Config
	indexer   *Indexer
	snapshots *state.Store
	syncer    *gitrepo.Syncer
	detector  *state.Detector
	graph     graph.Adapter
	logger    *slog.Logger
	metrics   *Metrics

	mu       sync.Mutex
	inFlight map[string]bool
}

func NewCoordinator(cfg config.Config, indexer *Indexer, snapshots *state.Store, syncer *gitrepo.Syncer, g graph.Adapter, logger *slog.Logger, metrics *Metrics) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:       cfg,
		indexer:   indexer,
		snapshots: snapshots,
		syncer:    syncer,
		detector:  state.NewDetector(logger),
		graph:     g,
		logger:    logger,
		metrics:   metrics,
		inFlight:  make(map[string]bool),
	}
}

func (c *Coordinator) acquire(repo string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[repo] {
		return false
	}
	c.inFlight[repo] = true
	return true
}

func (c *Coordinator) release(repo string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, repo)
}

// Update runs one incremental cycle for the repository checked out at
// repoPath. It returns ErrNeedsFullIndex when no prior snapshot exists or
// the change volume exceeds the threshold, and ErrUpdateInFlight when a
// cycle for the same repository is already running.
//
// Cancelling ctx stops launching new per-file work; in-flight work drains
// and the snapshot is still committed for whatever completed.
func (c *Coordinator) Update(ctx context.Context, repoPath string) (*UpdateResult, error) {
	repo := c.cfg.Repository
	if !c.acquire(repo) {
		return nil, fmt.Errorf("%w: %s", ErrUpdateInFlight, repo)
	}
	defer c.release(repo)

	started := time.Now()
	result, err := c.update(ctx, repo, repoPath)
	elapsed := time.Since(started)
	if err != nil {
		c.metrics.cycleDone(StatusFailed, elapsed.Seconds())
		c.logger.Error("update.cycle.failed", "repository", repo, "error", err, "duration", elapsed)
		return nil, err
	}
	result.Duration = elapsed
	c.metrics.cycleDone(result.Status, elapsed.Seconds())
	c.logger.Info("update.cycle.complete",
		"repository", repo,
		"status", result.Status,
		"processed", result.Processed,
		"errors", len(result.Errors),
		"duration", elapsed)
	return result, nil
}

func (c *Coordinator) update(ctx context.Context, repo, repoPath string) (*UpdateResult, error) {
	c.logPhase(repo, PhaseFetchingMetadata)
	snap, err := c.snapshots.Load(repo)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: no snapshot for %s", ErrNeedsFullIndex, repo)
	}

	filters := state.Filters{Extensions: c.cfg.Indexing.Extensions, Exclude: c.cfg.Indexing.Exclude}
	if !snap.Filters.Equal(filters) {
		// A filter change invalidates hash comparison: files appear or
		// vanish without content changes.
		return nil, fmt.Errorf("%w: indexing filters changed since last index", ErrNeedsFullIndex)
	}

	c.logPhase(repo, PhasePulling)
	head, err := c.pull(ctx, repoPath)
	if err != nil {
		return nil, err
	}
	if head != "" && head == snap.HeadSHA {
		c.logPhase(repo, PhaseCompleted)
		return &UpdateResult{Status: StatusNoChanges, HeadSHA: head}, nil
	}

	c.logPhase(repo, PhaseDetectingChanges)
	scanResult, err := c.scan(repoPath)
	if err != nil {
		return nil, err
	}
	current := make(map[string]state.FileState, len(scanResult.Files))
	records := make(map[string]scan.FileRecord, len(scanResult.Files))
	knownPaths := make(map[string]bool, len(scanResult.Files))
	for _, f := range scanResult.Files {
		current[f.Path] = state.FileState{Hash: f.Hash, Size: f.Size}
		records[f.Path] = f
		knownPaths[f.Path] = true
	}

	unreadable := make(map[string]error, len(scanResult.Errors))
	for _, re := range scanResult.Errors {
		unreadable[re.Path] = re.Err
	}

	changes := c.detector.Detect(snap.Files, current, unreadable)
	if changes.IsEmpty() {
		if len(changes.Errors) > 0 {
			// Hashing failures with no other changes: leave the old HEAD
			// recorded so the next cycle rescans and retries them.
			return &UpdateResult{
				Status:  StatusNoChanges,
				HeadSHA: head,
				Changes: changes,
				Errors:  hashErrors(changes.Errors),
			}, nil
		}
		// The commit touched nothing we index. Record the new HEAD so the
		// next cycle short-circuits on the SHA alone.
		snap.HeadSHA = head
		snap.UpdatedAt = time.Now().UTC()
		if err := c.snapshots.Save(snap); err != nil {
			return nil, err
		}
		return &UpdateResult{Status: StatusNoChanges, HeadSHA: head, Changes: changes}, nil
	}

	threshold := c.cfg.Indexing.ChangeThreshold
	if threshold <= 0 {
		threshold = 500
	}
	if changes.Total() > threshold {
		return nil, fmt.Errorf("%w: %d changed files exceed threshold %d",
			ErrNeedsFullIndex, changes.Total(), threshold)
	}

	c.logPhase(repo, PhaseProcessingFiles)
	cycle := newCycleState(snap)
	for _, e := range changes.Errors {
		cycle.addError(e.Path, "hashing", e)
	}
	c.processChanges(ctx, repo, changes, records, knownPaths, cycle)

	c.logPhase(repo, PhaseUpdatingGraph)
	if err := c.graph.UpsertNode(ctx, graph.Node{
		Type: graph.NodeRepository,
		Key:  repo,
		Properties: map[string]any{
			"name":      repo,
			"clone_url": c.cfg.CloneURL,
			"head_sha":  head,
		},
	}); err != nil {
		cycle.addError("", "graph", err)
	}

	// The snapshot commits even under partial failure: finished work must
	// not be redone next cycle, and failed files keep their old recorded
	// state so the next diff retries them.
	c.logPhase(repo, PhaseUpdatingMetadata)
	snap.HeadSHA = head
	snap.UpdatedAt = time.Now().UTC()
	snap.Files = cycle.files
	snap.Filters = filters
	if err := c.snapshots.Save(snap); err != nil {
		return nil, err
	}

	c.logPhase(repo, PhaseCompleted)
	return &UpdateResult{
		Status:    StatusUpdated,
		HeadSHA:   head,
		Changes:   changes,
		Processed: cycle.processed,
		Errors:    cycle.errors,
	}, nil
}

// pull syncs the checkout and returns the new HEAD SHA. Directories that are
// not git repositories index fine; they just never short-circuit on SHA.
func (c *Coordinator) pull(ctx context.Context, repoPath string) (string, error) {
	if c.cfg.CloneURL != "" {
		res, err := c.syncer.Sync(ctx, c.cfg.CloneURL, repoPath)
		if err != nil {
			return "", err
		}
		return res.HeadSHA, nil
	}
	head, err := gitrepo.LocalHead(repoPath)
	if errors.Is(err, gitrepo.ErrNoRepository) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return head, nil
}

func (c *Coordinator) scan(repoPath string) (*scan.Result, error) {
	scanner := scan.NewScanner(scan.Options{
		Extensions:  dotted(c.cfg.Indexing.Extensions),
		Exclude:     c.cfg.Indexing.Exclude,
		MaxFileSize: c.cfg.Indexing.MaxFileSizeBytes,
	}, c.logger)
	return scanner.Scan(repoPath)
}

// cycleState accumulates per-file outcomes across the worker pool. files
// starts as a copy of the snapshot and is mutated only on success, so a
// failed file keeps its old recorded hash and gets retried next cycle.
type cycleState struct {
	mu        sync.Mutex
	files     map[string]state.FileState
	errors    []FileError
	processed int
}

func newCycleState(snap *state.RepositorySnapshot) *cycleState {
	files := make(map[string]state.FileState, len(snap.Files))
	for p, fs := range snap.Files {
		files[p] = fs
	}
	return &cycleState{files: files}
}

func (cs *cycleState) addError(path, stage string, err error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.errors = append(cs.errors, FileError{Path: path, Stage: stage, Err: err.Error()})
}

func (cs *cycleState) succeed(fn func(files map[string]state.FileState)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	fn(cs.files)
	cs.processed++
}

func (c *Coordinator) processChanges(ctx context.Context, repo string, changes *state.ChangeSet, records map[string]scan.FileRecord, knownPaths map[string]bool, cycle *cycleState) {
	workers := c.cfg.Indexing.ParseWorkers
	if workers <= 0 {
		workers = 4
	}
	g := &errgroup.Group{}
	g.SetLimit(workers)

	launch := func(task func()) bool {
		// An abort stops launching new work; in-flight work drains below.
		if ctx.Err() != nil {
			return false
		}
		g.Go(func() error {
			task()
			return nil
		})
		return true
	}

	upserts := append(append([]state.FileChange{}, changes.Added...), changes.Modified...)
	for _, ch := range upserts {
		launched := launch(func() {
			rec, ok := records[ch.Path]
			if !ok {
				cycle.addError(ch.Path, "read", fmt.Errorf("file vanished after scan"))
				c.metrics.fileDone("failed")
				return
			}
			content, err := os.ReadFile(rec.AbsPath)
			if err != nil {
				cycle.addError(ch.Path, "read", err)
				c.metrics.fileDone("failed")
				return
			}
			if err := c.indexer.ProcessFile(ctx, repo, ch.Path, rec.Hash, content, knownPaths); err != nil {
				cycle.addError(ch.Path, "process", err)
				c.metrics.fileDone("failed")
				return
			}
			cycle.succeed(func(files map[string]state.FileState) {
				files[ch.Path] = state.FileState{Hash: rec.Hash, Size: rec.Size}
			})
			c.metrics.fileDone("ok")
		})
		if !launched {
			break
		}
	}

	for _, ch := range changes.Deleted {
		launched := launch(func() {
			if err := c.indexer.DeleteFileData(ctx, repo, ch.Path); err != nil {
				cycle.addError(ch.Path, "delete", err)
				c.metrics.fileDone("failed")
				return
			}
			cycle.succeed(func(files map[string]state.FileState) {
				delete(files, ch.Path)
			})
			c.metrics.fileDone("ok")
		})
		if !launched {
			break
		}
	}

	for _, ch := range changes.Renamed {
		launched := launch(func() {
			rec, ok := records[ch.Path]
			if !ok {
				cycle.addError(ch.Path, "read", fmt.Errorf("file vanished after scan"))
				c.metrics.fileDone("failed")
				return
			}
			content, err := os.ReadFile(rec.AbsPath)
			if err != nil {
				cycle.addError(ch.Path, "read", err)
				c.metrics.fileDone("failed")
				return
			}
			if err := c.indexer.RenameFile(ctx, repo, ch.OldPath, ch.Path, rec.Hash, content, knownPaths); err != nil {
				cycle.addError(ch.Path, "rename", err)
				c.metrics.fileDone("failed")
				return
			}
			cycle.succeed(func(files map[string]state.FileState) {
				delete(files, ch.OldPath)
				files[ch.Path] = state.FileState{Hash: rec.Hash, Size: rec.Size}
			})
			c.metrics.fileDone("ok")
		})
		if !launched {
			break
		}
	}

	// Workers never return errors; they report through cycleState.
	_ = g.Wait()

	sort.Slice(cycle.errors, func(i, j int) bool { return cycle.errors[i].Path < cycle.errors[j].Path })
}

func (c *Coordinator) logPhase(repo string, phase Phase) {
	c.logger.Debug("update.phase", "repository", repo, "phase", string(phase))
}

// dotted converts config extensions ("ts") to scanner form (".ts").
func dotted(exts []string) []string {
	out := make([]string, len(exts))
	for i, e := range exts {
		if len(e) > 0 && e[0] != '.' {
			out[i] = "." + e
		} else {
			out[i] = e
		}
	}
	return out
}
