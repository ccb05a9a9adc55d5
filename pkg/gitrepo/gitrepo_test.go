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

package gitrepo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initOriginRepo creates a local git repository with one commit, usable as a
// clone source without any network.
func initOriginRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	commitFile(t, repo, dir, "main.ts", "export const v = 1;\n", "initial commit")
	return dir
}

func commitFile(t *testing.T, repo *gogit.Repository, dir, name, content, msg string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(name)
	require.NoError(t, err)

	hash, err := wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return hash.String()
}

func TestSync_ClonesWhenAbsent(t *testing.T) {
	origin := initOriginRepo(t)
	local := filepath.Join(t.TempDir(), "clone")

	s := NewSyncer(nil)
	result, err := s.Sync(context.Background(), origin, local)
	require.NoError(t, err)
	assert.True(t, result.Cloned)
	assert.True(t, result.Updated)
	assert.NotEmpty(t, result.HeadSHA)

	sha, err := LocalHead(local)
	require.NoError(t, err)
	assert.Equal(t, result.HeadSHA, sha)
}

func TestSync_PullAlreadyUpToDate(t *testing.T) {
	origin := initOriginRepo(t)
	local := filepath.Join(t.TempDir(), "clone")

	s := NewSyncer(nil)
	first, err := s.Sync(context.Background(), origin, local)
	require.NoError(t, err)

	second, err := s.Sync(context.Background(), origin, local)
	require.NoError(t, err)
	assert.False(t, second.Cloned)
	assert.False(t, second.Updated)
	assert.Equal(t, first.HeadSHA, second.HeadSHA)
}

func TestSync_PullsNewCommits(t *testing.T) {
	origin := initOriginRepo(t)
	local := filepath.Join(t.TempDir(), "clone")

	s := NewSyncer(nil)
	_, err := s.Sync(context.Background(), origin, local)
	require.NoError(t, err)

	originRepo, err := gogit.PlainOpen(origin)
	require.NoError(t, err)
	newSHA := commitFile(t, originRepo, origin, "extra.ts", "export const w = 2;\n", "second commit")

	result, err := s.Sync(context.Background(), origin, local)
	require.NoError(t, err)
	assert.False(t, result.Cloned)
	assert.True(t, result.Updated)
	assert.Equal(t, newSHA, result.HeadSHA)
}

func TestSync_PathExistsButNotARepo(t *testing.T) {
	origin := initOriginRepo(t)
	local := t.TempDir() // exists, but no .git

	_, err := NewSyncer(nil).Sync(context.Background(), origin, local)
	assert.ErrorIs(t, err, ErrNoRepository)
}

func TestRemoteHead(t *testing.T) {
	origin := initOriginRepo(t)

	sha, err := NewSyncer(nil).RemoteHead(context.Background(), origin)
	require.NoError(t, err)

	localSHA, err := LocalHead(origin)
	require.NoError(t, err)
	assert.Equal(t, localSHA, sha)
}

func TestLocalHead_NotARepo(t *testing.T) {
	_, err := LocalHead(t.TempDir())
	assert.ErrorIs(t, err, ErrNoRepository)
}
