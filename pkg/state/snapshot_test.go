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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	snap := &RepositorySnapshot{
		Name:      "acme/webapp",
		CloneURL:  "https://example.com/acme/webapp.git",
		Path:      "/tmp/repos/webapp",
		HeadSHA:   "abc123",
		UpdatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Files: map[string]FileState{
			"src/app.ts": {Hash: "h1", Size: 100},
			"README.md":  {Hash: "h2", Size: 20},
		},
		Filters: Filters{Extensions: []string{".ts"}, Exclude: []string{"node_modules/**"}},
	}
	require.NoError(t, store.Save(snap))

	loaded, err := store.Load("acme/webapp")
	require.NoError(t, err)
	require.Equal(t, snap, loaded)
}

func TestStore_LoadMissingReturnsNil(t *testing.T) {
	store := NewStore(t.TempDir())
	snap, err := store.Load("never-indexed")
	require.NoError(t, err)
	require.Nil(t, snap)
}

func TestStore_LoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "snapshot-broken.json"), []byte("{not json"), 0o644))

	_, err := store.Load("broken")
	require.Error(t, err)
	var serr *Error
	require.True(t, errors.As(err, &serr))
	require.Equal(t, ErrSnapshotCorrupt, serr.Code)
	require.Equal(t, "broken", serr.Repository)
}

func TestStore_SaveRequiresName(t *testing.T) {
	store := NewStore(t.TempDir())
	err := store.Save(&RepositorySnapshot{})
	require.Error(t, err)
}

func TestStore_ListAndDelete(t *testing.T) {
	store := NewStore(t.TempDir())
	for _, name := range []string{"beta", "alpha"} {
		require.NoError(t, store.Save(&RepositorySnapshot{Name: name, Files: map[string]FileState{}}))
	}

	names, err := store.List()
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "beta"}, names)

	require.NoError(t, store.Delete("alpha"))
	require.NoError(t, store.Delete("alpha"), "deleting twice is fine")

	names, err = store.List()
	require.NoError(t, err)
	require.Equal(t, []string{"beta"}, names)
}

func TestStore_ListEmptyDir(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "does-not-exist"))
	names, err := store.List()
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestFilters_Equal(t *testing.T) {
	a := Filters{Extensions: []string{".ts", ".js"}, Exclude: []string{"dist/**"}}
	b := Filters{Extensions: []string{".ts", ".js"}, Exclude: []string{"dist/**"}}
	c := Filters{Extensions: []string{".ts"}, Exclude: []string{"dist/**"}}
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}
