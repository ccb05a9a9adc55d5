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
	"time"

	"log/slog"

	"github.com/codeatlas-dev/codeatlas/pkg/vector"
)

// SearchOptions narrow a semantic search.
type SearchOptions struct {
	Limit       int
	MaxDistance float64
	Repository  string
}

// SearchResult is one semantic search hit.
type SearchResult struct {
	Repository string  `json:"repository"`
	Path       string  `json:"path"`
	StartLine  int     `json:"start_line"`
	EndLine    int     `json:"end_line"`
	Snippet    string  `json:"snippet"`
	Distance   float64 `json:"distance"`
	Score      float64 `json:"score"`
}

// Searcher embeds a query and runs nearest-neighbor search over the
// vector store.
type Searcher struct {
	embedder Embedder
	vectors  vector.Store
	logger   *slog.Logger
	metrics  *Metrics
}

func NewSearcher(embedder Embedder, vectors vector.Store, logger *slog.Logger, metrics *Metrics) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{embedder: embedder, vectors: vectors, logger: logger, metrics: metrics}
}

func (s *Searcher) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	started := time.Now()

	embeddings, err := s.embedder.EmbedAll(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := s.vectors.Query(embeddings[0], vector.QueryOptions{
		Limit:       opts.Limit,
		MaxDistance: opts.MaxDistance,
		Repository:  opts.Repository,
	})
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	results := make([]SearchResult, len(matches))
	for i, m := range matches {
		results[i] = SearchResult{
			Repository: m.Repository,
			Path:       m.Path,
			StartLine:  m.StartLine,
			EndLine:    m.EndLine,
			Snippet:    m.Content,
			Distance:   m.Distance,
			// L2 distance between unit-normalized embeddings spans
			// [0, 2]; fold it into a [0, 1] score.
			Score: 1 - m.Distance/2,
		}
	}

	s.metrics.searchDone(time.Since(started).Seconds())
	s.logger.Debug("search.complete",
		"query_len", len(query),
		"matches", len(results),
		"duration", time.Since(started))
	return results, nil
}
