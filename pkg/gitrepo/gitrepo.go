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

// Package gitrepo keeps local working copies of indexed repositories in
// sync with their remotes.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"

	"log/slog"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
)

// ErrNoRepository is returned when a local path exists but holds no git repo.
var ErrNoRepository = errors.New("not a git repository")

// SyncResult reports what a Sync call did.
type SyncResult struct {
	HeadSHA string
	Cloned  bool // true when the repository was cloned fresh
	Updated bool // true when the pull brought in new commits
}

// Syncer clones and updates repository working copies.
type Syncer struct {
	logger *slog.Logger
}

// NewSyncer creates a syncer.
func NewSyncer(logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{logger: logger}
}

// Sync makes localPath an up-to-date working copy of cloneURL: clone when the
// path does not exist yet, otherwise fetch and fast-forward pull.
func (s *Syncer) Sync(ctx context.Context, cloneURL, localPath string) (*SyncResult, error) {
	if _, err := os.Stat(localPath); os.IsNotExist(err) {
		return s.clone(ctx, cloneURL, localPath)
	}

	repo, err := gogit.PlainOpen(localPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoRepository, localPath)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("get worktree: %w", err)
	}

	s.logger.Info("gitrepo.pull.start", "path", localPath)
	err = wt.PullContext(ctx, &gogit.PullOptions{RemoteName: "origin"})
	updated := true
	if err != nil {
		if !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
			return nil, fmt.Errorf("pull %s: %w", cloneURL, err)
		}
		updated = false
	}

	sha, err := headSHA(repo)
	if err != nil {
		return nil, err
	}
	s.logger.Info("gitrepo.pull.complete", "path", localPath, "head", sha, "updated", updated)
	return &SyncResult{HeadSHA: sha, Updated: updated}, nil
}

func (s *Syncer) clone(ctx context.Context, cloneURL, localPath string) (*SyncResult, error) {
	s.logger.Info("gitrepo.clone.start", "url", cloneURL, "path", localPath)
	repo, err := gogit.PlainCloneContext(ctx, localPath, false, &gogit.CloneOptions{
		URL: cloneURL,
	})
	if err != nil {
		return nil, fmt.Errorf("clone %s: %w", cloneURL, err)
	}

	sha, err := headSHA(repo)
	if err != nil {
		return nil, err
	}
	s.logger.Info("gitrepo.clone.complete", "url", cloneURL, "head", sha)
	return &SyncResult{HeadSHA: sha, Cloned: true, Updated: true}, nil
}

// RemoteHead resolves the SHA the remote's default branch points at, without
// touching the local working copy. Used to decide whether an update cycle
// has anything to do.
func (s *Syncer) RemoteHead(ctx context.Context, cloneURL string) (string, error) {
	remote := gogit.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{cloneURL},
	})

	refs, err := remote.ListContext(ctx, &gogit.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("list remote %s: %w", cloneURL, err)
	}

	// HEAD is usually symbolic; resolve it through the ref it targets.
	var headTarget plumbing.ReferenceName
	byName := make(map[plumbing.ReferenceName]*plumbing.Reference, len(refs))
	for _, ref := range refs {
		byName[ref.Name()] = ref
		if ref.Name() == plumbing.HEAD {
			if ref.Type() == plumbing.HashReference {
				return ref.Hash().String(), nil
			}
			headTarget = ref.Target()
		}
	}
	if headTarget != "" {
		if ref, ok := byName[headTarget]; ok {
			return ref.Hash().String(), nil
		}
	}
	return "", fmt.Errorf("remote %s has no resolvable HEAD", cloneURL)
}

// LocalHead returns the SHA of the working copy's HEAD commit.
func LocalHead(localPath string) (string, error) {
	repo, err := gogit.PlainOpen(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNoRepository, localPath)
	}
	return headSHA(repo)
}

func headSHA(repo *gogit.Repository) (string, error) {
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}
