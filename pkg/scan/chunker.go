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

package scan

import (
	"fmt"
	"strings"
)

// defaultChunkBytes bounds how much text a single embedding input carries.
const defaultChunkBytes = 8192

// Chunk is a bounded slice of file content ready for embedding. Its ID is
// stable across runs: the same repository, path and index always produce the
// same chunk identity, so re-indexing overwrites rather than duplicates.
type Chunk struct {
	ID         string
	Repository string
	Path       string
	Index      int
	StartLine  int // 1-based, inclusive
	EndLine    int // 1-based, inclusive
	Content    string
}

// Chunker splits file content into chunks on line boundaries.
type Chunker struct {
	maxBytes int
}

// NewChunker creates a chunker. maxBytes <= 0 selects the default size.
func NewChunker(maxBytes int) *Chunker {
	if maxBytes <= 0 {
		maxBytes = defaultChunkBytes
	}
	return &Chunker{maxBytes: maxBytes}
}

// ChunkID builds the stable identity for a chunk.
func ChunkID(repository, path string, index int) string {
	return fmt.Sprintf("%s:%s:%d", repository, path, index)
}

// Split breaks content into chunks of at most maxBytes, cutting on line
// boundaries. Lines longer than maxBytes are split mid-line as a last resort.
// Chunks cover the content exactly: consecutive chunks have contiguous line
// ranges and concatenating their contents restores the input.
func (c *Chunker) Split(repository, path, content string) []Chunk {
	if content == "" {
		return nil
	}

	lines := strings.SplitAfter(content, "\n")
	// SplitAfter leaves a trailing empty element when content ends in \n.
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	var chunks []Chunk
	var sb strings.Builder
	startLine := 1
	curLine := 1

	flush := func(endLine int) {
		if sb.Len() == 0 {
			return
		}
		idx := len(chunks)
		chunks = append(chunks, Chunk{
			ID:         ChunkID(repository, path, idx),
			Repository: repository,
			Path:       path,
			Index:      idx,
			StartLine:  startLine,
			EndLine:    endLine,
			Content:    sb.String(),
		})
		sb.Reset()
	}

	for _, line := range lines {
		if len(line) > c.maxBytes {
			// Oversized line: flush what we have, then emit byte-range pieces
			// that all carry this line's number.
			flush(curLine - 1)
			startLine = curLine
			for len(line) > 0 {
				n := min(len(line), c.maxBytes)
				sb.WriteString(line[:n])
				line = line[n:]
				flush(curLine)
				startLine = curLine
			}
			curLine++
			startLine = curLine
			continue
		}
		if sb.Len() > 0 && sb.Len()+len(line) > c.maxBytes {
			flush(curLine - 1)
			startLine = curLine
		}
		sb.WriteString(line)
		curLine++
	}
	flush(curLine - 1)

	return chunks
}
