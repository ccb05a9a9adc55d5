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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileState is the recorded state of a single tracked file.
type FileState struct {
	Hash  string    `json:"hash"` // hex-encoded SHA-256 of content
	Size  int64     `json:"size"`
	MTime time.Time `json:"mtime,omitempty"`
}

// Filters records the scan configuration a snapshot was taken with. A filter
// change invalidates incremental comparison: files may appear or vanish
// without their content changing.
type Filters struct {
	Extensions []string `json:"extensions,omitempty"`
	Exclude    []string `json:"exclude,omitempty"`
}

// Equal reports whether two filter sets select the same files.
func (f Filters) Equal(other Filters) bool {
	return strings.Join(f.Extensions, ",") == strings.Join(other.Extensions, ",") &&
		strings.Join(f.Exclude, ",") == strings.Join(other.Exclude, ",")
}

// RepositorySnapshot is the persisted state of an indexed repository,
// written after every successful (or partially successful) update cycle.
type RepositorySnapshot struct {
	Name      string               `json:"name"`
	CloneURL  string               `json:"clone_url,omitempty"`
	Path      string               `json:"path"`
	HeadSHA   string               `json:"head_sha,omitempty"`
	UpdatedAt time.Time            `json:"updated_at"`
	Files     map[string]FileState `json:"files"`
	Filters   Filters              `json:"filters"`
}

// Store persists repository snapshots as JSON documents, one per repository,
// under a state directory.
type Store struct {
	dir string
}

// NewStore creates a snapshot store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Load reads the snapshot for a repository. Returns (nil, nil) when no
// snapshot exists yet, which callers treat as "never indexed".
func (s *Store) Load(name string) (*RepositorySnapshot, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &Error{Code: ErrSnapshotRead, Repository: name, Err: err}
	}

	var snap RepositorySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &Error{Code: ErrSnapshotCorrupt, Repository: name, Err: err}
	}
	if snap.Files == nil {
		snap.Files = make(map[string]FileState)
	}
	return &snap, nil
}

// Save writes the snapshot atomically (temp file + rename) so a crash during
// write never leaves a truncated state file behind.
func (s *Store) Save(snap *RepositorySnapshot) error {
	if snap.Name == "" {
		return &Error{Code: ErrSnapshotWrite, Err: fmt.Errorf("snapshot has no repository name")}
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return &Error{Code: ErrSnapshotWrite, Repository: snap.Name, Err: err}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return &Error{Code: ErrSnapshotWrite, Repository: snap.Name, Err: err}
	}

	path := s.path(snap.Name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &Error{Code: ErrSnapshotWrite, Repository: snap.Name, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return &Error{Code: ErrSnapshotWrite, Repository: snap.Name, Err: err}
	}
	return nil
}

// Delete removes a repository's snapshot. Missing snapshots are not an error.
func (s *Store) Delete(name string) error {
	if err := os.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
		return &Error{Code: ErrSnapshotWrite, Repository: name, Err: err}
	}
	return nil
}

// List returns the names of all repositories with a stored snapshot, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &Error{Code: ErrSnapshotRead, Err: err}
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "snapshot-") && strings.HasSuffix(name, ".json") {
			names = append(names, strings.TrimSuffix(strings.TrimPrefix(name, "snapshot-"), ".json"))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) path(name string) string {
	// Repository names may contain path separators (org/repo).
	safe := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(name)
	return filepath.Join(s.dir, fmt.Sprintf("snapshot-%s.json", safe))
}
