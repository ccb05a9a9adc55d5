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

// Package vector stores chunk embeddings and answers nearest-neighbor
// queries over them.
package vector

// Record is a chunk plus its embedding, ready for storage. ID is the stable
// chunk identity (repository:path:index), so re-upserting after a re-index
// replaces rather than duplicates.
type Record struct {
	ID         string
	Repository string
	Path       string
	Index      int
	StartLine  int
	EndLine    int
	Content    string
	Embedding  []float32
}

// QueryOptions narrow a nearest-neighbor query.
type QueryOptions struct {
	// Limit is the maximum number of matches to return.
	Limit int
	// MaxDistance drops matches farther than this. Zero means no cutoff.
	MaxDistance float64
	// Repository restricts matches to one repository. Empty means all.
	Repository string
}

// Match is one query result.
type Match struct {
	ID         string
	Repository string
	Path       string
	Index      int
	StartLine  int
	EndLine    int
	Content    string
	Distance   float64
}

// Store persists embeddings and serves similarity queries.
type Store interface {
	// Upsert writes records, replacing any existing rows with the same ID.
	Upsert(records []Record) error
	// Delete removes records by chunk ID. Unknown IDs are ignored.
	Delete(ids []string) error
	// DeleteFile removes every chunk belonging to one file.
	DeleteFile(repository, path string) error
	// RenameFile relabels every chunk of a file to a new path, keeping the
	// stored embeddings. Chunk IDs are rewritten for the new path.
	RenameFile(repository, oldPath, newPath string) error
	// Query returns the closest matches to the embedding, nearest first.
	Query(embedding []float32, opts QueryOptions) ([]Match, error)
	// Count reports how many chunks a repository has stored. Empty
	// repository counts everything.
	Count(repository string) (int, error)
	Close() error
}
