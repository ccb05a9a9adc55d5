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

// Package extract turns source text into code entities and relationships.
//
// Each supported language has a Backend. TypeScript and JavaScript are parsed
// in process with tree-sitter; C# delegates to an out-of-process analyzer
// tool speaking JSON over stdin/stdout. All backends share one output
// contract (Result), so callers never see the parsing strategy.
//
// Extraction is a pure function of file content plus path: re-running on
// identical input yields an identical Result, entity order included. The
// incremental pipeline relies on this for its replace-on-reparse invariant.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeatlas-dev/codeatlas/pkg/lang"
)

// Backend parses one or more languages into the shared Result contract.
type Backend interface {
	// Languages lists the languages this backend handles.
	Languages() []lang.Language

	// Extract parses content and walks the tree. The context carries the
	// per-file parse deadline.
	Extract(ctx context.Context, content []byte, filePath string) (*Result, error)
}

// Options tune the extraction guardrails.
type Options struct {
	// MaxFileSize rejects files above this many bytes. 0 disables the check.
	MaxFileSize int64

	// ParseTimeout bounds a single file's parse. 0 means no deadline.
	ParseTimeout time.Duration

	// AnalyzerPath locates the C# analyzer tool. Empty disables C#.
	AnalyzerPath string

	// InitRetries is the number of attempts for parser initialization.
	InitRetries int
}

// Service dispatches extraction requests to language backends.
type Service struct {
	backends map[lang.Language]Backend
	opts     Options
	logger   *slog.Logger
}

// NewService builds a Service with the in-process tree-sitter backends and,
// when opts.AnalyzerPath is set, the C# analyzer backend.
//
// A backend whose initialization fails after opts.InitRetries attempts is
// dropped for that language only; other languages continue to work.
func NewService(opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.InitRetries <= 0 {
		opts.InitRetries = 3
	}

	s := &Service{
		backends: make(map[lang.Language]Backend),
		opts:     opts,
		logger:   logger,
	}

	s.register(func() (Backend, error) { return NewTreeSitterBackend(logger) })
	if opts.AnalyzerPath != "" {
		s.register(func() (Backend, error) {
			return NewAnalyzerBackend(opts.AnalyzerPath, logger)
		})
	}

	return s
}

// register initializes one backend with retry and maps its languages.
func (s *Service) register(init func() (Backend, error)) {
	var b Backend
	var err error
	for attempt := 1; attempt <= s.opts.InitRetries; attempt++ {
		b, err = init()
		if err == nil {
			break
		}
		s.logger.Warn("extract.backend.init.retry", "attempt", attempt, "err", err)
	}
	if err != nil {
		// Fatal for this backend's languages only.
		s.logger.Error("extract.backend.init.failed", "err", err)
		return
	}
	for _, l := range b.Languages() {
		s.backends[l] = b
	}
}

// Supports reports whether a path maps to a registered backend.
func (s *Service) Supports(path string) bool {
	_, ok := s.backends[lang.Detect(path)]
	return ok
}

// Extract dispatches by detected language and applies the guardrails.
//
// Returned extraction problems are typed *Error values; callers classify by
// code. LanguageNotSupported and FileTooLarge carry no partial Result.
func (s *Service) Extract(ctx context.Context, content []byte, filePath string) (*Result, error) {
	language := lang.Detect(filePath)
	backend, ok := s.backends[language]
	if !ok {
		return nil, NewLanguageNotSupportedError(filePath)
	}

	if s.opts.MaxFileSize > 0 && int64(len(content)) > s.opts.MaxFileSize {
		return nil, NewFileTooLargeError(filePath, int64(len(content)), s.opts.MaxFileSize)
	}

	if s.opts.ParseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ParseTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := backend.Extract(ctx, content, filePath)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, NewParseTimeoutError(filePath, err)
		}
		return nil, err
	}
	result.ParseTime = time.Since(start)

	s.logger.Debug("extract.file.complete",
		"path", filePath,
		"language", string(language),
		"entities", len(result.Entities),
		"calls", len(result.Calls),
		"duration_ms", result.ParseTime.Milliseconds(),
	)
	return result, nil
}

// ExtractBatch runs Extract over a set of files sequentially, routing C#
// files through the analyzer's batch mode when available.
//
// Per-file failures are collected, not fatal: the error map holds one entry
// per failed path.
func (s *Service) ExtractBatch(ctx context.Context, files map[string][]byte) (map[string]*Result, map[string]error) {
	results := make(map[string]*Result, len(files))
	failures := make(map[string]error)

	// Split out C# files for the analyzer's batch protocol.
	var csFiles []AnalyzerInput
	for path, content := range files {
		if lang.Detect(path) == lang.CSharp {
			csFiles = append(csFiles, AnalyzerInput{Path: path, Content: string(content)})
		}
	}

	if len(csFiles) > 0 {
		if ab, ok := s.backends[lang.CSharp].(*AnalyzerBackend); ok {
			batch, err := ab.ExtractAll(ctx, csFiles)
			if err != nil {
				for _, in := range csFiles {
					failures[in.Path] = err
				}
			} else {
				for path, r := range batch {
					results[path] = r
				}
			}
		}
	}

	for path, content := range files {
		if _, done := results[path]; done {
			continue
		}
		if _, failed := failures[path]; failed {
			continue
		}
		r, err := s.Extract(ctx, content, path)
		if err != nil {
			failures[path] = err
			continue
		}
		results[path] = r
	}

	return results, failures
}

// validateResult enforces the line-range invariant before a Result leaves
// a backend. Violations are internal bugs, not input errors.
func validateResult(r *Result) error {
	for _, e := range r.Entities {
		if e.StartLine > e.EndLine {
			return fmt.Errorf("entity %s %q: line range %d..%d inverted",
				e.Kind, e.Name, e.StartLine, e.EndLine)
		}
	}
	return nil
}
