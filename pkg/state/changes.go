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

package state

import (
	"sort"
	"strings"

	"log/slog"
)

// ChangeType classifies how a file differs from the last snapshot.
type ChangeType string

const (
	FileAdded    ChangeType = "added"
	FileModified ChangeType = "modified"
	FileDeleted  ChangeType = "deleted"
	FileRenamed  ChangeType = "renamed"
)

// FileChange is one detected difference between a snapshot and the
// current working tree.
type FileChange struct {
	Type    ChangeType
	Path    string // current path; for deletes, the removed path
	OldPath string // set only for renames
	Hash    string // current content hash; empty for deletes
	OldHash string // snapshot hash; empty for adds
}

// ChangeSet is the full diff between a snapshot and the current listing.
type ChangeSet struct {
	Added    []FileChange
	Modified []FileChange
	Deleted  []FileChange
	Renamed  []FileChange

	// Errors holds per-file tracking failures. They never abort detection;
	// affected files are simply absent from the diff this cycle.
	Errors []*Error
}

// Total counts every change in the set.
func (cs *ChangeSet) Total() int {
	return len(cs.Added) + len(cs.Modified) + len(cs.Deleted) + len(cs.Renamed)
}

// IsEmpty reports whether nothing changed.
func (cs *ChangeSet) IsEmpty() bool { return cs.Total() == 0 }

// Detector computes change sets by comparing content hashes. It never looks
// at git history: two scans with identical hashes produce an empty change
// set regardless of how many commits happened in between.
type Detector struct {
	logger *slog.Logger
}

// NewDetector creates a change detector.
func NewDetector(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{logger: logger}
}

// Detect diffs the snapshot's file states against the current listing.
// Every tracked or listed file lands in exactly one bucket: unchanged
// (omitted), added, modified, deleted, or renamed. unreadable names files
// the caller found on disk but could not hash this cycle; they are recorded
// as errors and never classified as deleted, so a transient read failure
// cannot tear down a file's indexed data.
func (d *Detector) Detect(snapshot map[string]FileState, current map[string]FileState, unreadable map[string]error) *ChangeSet {
	cs := &ChangeSet{}

	for path, cause := range unreadable {
		cs.Errors = append(cs.Errors, &Error{Code: ErrHashUnavailable, Path: path, Err: cause})
	}
	sort.Slice(cs.Errors, func(i, j int) bool { return cs.Errors[i].Path < cs.Errors[j].Path })

	var added, deleted []string
	for path, cur := range current {
		old, ok := snapshot[path]
		if !ok {
			added = append(added, path)
			continue
		}
		if old.Hash != cur.Hash {
			cs.Modified = append(cs.Modified, FileChange{
				Type:    FileModified,
				Path:    path,
				Hash:    cur.Hash,
				OldHash: old.Hash,
			})
		}
	}
	for path := range snapshot {
		if _, ok := current[path]; ok {
			continue
		}
		if _, bad := unreadable[path]; bad {
			// Still on disk, just unreadable. The snapshot keeps its old
			// state and the next cycle retries it.
			continue
		}
		deleted = append(deleted, path)
	}
	sort.Strings(added)
	sort.Strings(deleted)

	renames := correlateRenames(snapshot, current, added, deleted)

	renamedNew := make(map[string]bool, len(renames))
	renamedOld := make(map[string]bool, len(renames))
	for _, r := range renames {
		cs.Renamed = append(cs.Renamed, r)
		renamedNew[r.Path] = true
		renamedOld[r.OldPath] = true
	}
	for _, path := range added {
		if renamedNew[path] {
			continue
		}
		cs.Added = append(cs.Added, FileChange{Type: FileAdded, Path: path, Hash: current[path].Hash})
	}
	for _, path := range deleted {
		if renamedOld[path] {
			continue
		}
		cs.Deleted = append(cs.Deleted, FileChange{Type: FileDeleted, Path: path, OldHash: snapshot[path].Hash})
	}

	sort.Slice(cs.Modified, func(i, j int) bool { return cs.Modified[i].Path < cs.Modified[j].Path })

	d.logger.Info("changes.detect.complete",
		"added", len(cs.Added),
		"modified", len(cs.Modified),
		"deleted", len(cs.Deleted),
		"renamed", len(cs.Renamed),
		"errors", len(cs.Errors),
	)
	return cs
}

// correlateRenames pairs deleted paths with added paths that carry the same
// content hash. When one deleted file could match several additions, the
// addition sharing the longest path prefix with the old location wins;
// remaining ties go to the lexicographically smallest new path. Unmatched
// candidates stay plain adds and deletes.
func correlateRenames(snapshot, current map[string]FileState, added, deleted []string) []FileChange {
	if len(added) == 0 || len(deleted) == 0 {
		return nil
	}

	addsByHash := make(map[string][]string)
	for _, path := range added {
		h := current[path].Hash
		if h == "" {
			continue
		}
		addsByHash[h] = append(addsByHash[h], path)
	}

	var renames []FileChange
	claimed := make(map[string]bool)
	for _, oldPath := range deleted {
		hash := snapshot[oldPath].Hash
		candidates := addsByHash[hash]
		best := ""
		bestPrefix := -1
		for _, cand := range candidates {
			if claimed[cand] {
				continue
			}
			p := commonPathPrefixLen(oldPath, cand)
			if p > bestPrefix || (p == bestPrefix && cand < best) {
				best = cand
				bestPrefix = p
			}
		}
		if best == "" {
			continue
		}
		claimed[best] = true
		renames = append(renames, FileChange{
			Type:    FileRenamed,
			Path:    best,
			OldPath: oldPath,
			Hash:    current[best].Hash,
			OldHash: hash,
		})
	}
	sort.Slice(renames, func(i, j int) bool { return renames[i].Path < renames[j].Path })
	return renames
}

// commonPathPrefixLen counts leading path segments two slash paths share.
func commonPathPrefixLen(a, b string) int {
	as := strings.Split(a, "/")
	bs := strings.Split(b, "/")
	n := 0
	for n < len(as) && n < len(bs) && as[n] == bs[n] {
		n++
	}
	return n
}
