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
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/codeatlas-dev/codeatlas/pkg/lang"
)

// FileRecord describes one file discovered during a repository scan.
type FileRecord struct {
	Path     string // relative to repo root, slash-separated
	AbsPath  string
	Size     int64
	Hash     string // hex-encoded SHA-256 of the file content
	Language lang.Language
}

// ReadError records a file the scanner found but could not read or hash.
type ReadError struct {
	Path string
	Err  error
}

// Result holds the outcome of a scan.
type Result struct {
	Root        string
	Files       []FileRecord
	TotalSize   int64
	SkipReasons map[string]int // reason -> count ("excluded", "too_large", "binary", ...)

	// Errors lists files that failed to read or hash. These paths are
	// absent from Files; callers diffing against a previous scan must not
	// treat them as deleted.
	Errors []ReadError
}

// Options control which files a scan includes.
type Options struct {
	// Extensions limits the scan to these extensions (with leading dot).
	// Empty means all non-binary files.
	Extensions []string
	// Exclude is a list of glob patterns matched against relative paths.
	Exclude []string
	// MaxFileSize skips files larger than this many bytes. Zero means no limit.
	MaxFileSize int64
}

// Scanner walks a repository tree and produces hashed file records.
type Scanner struct {
	opts   Options
	extSet map[string]bool
	logger *slog.Logger
}

// NewScanner creates a scanner with the given options.
func NewScanner(opts Options, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	extSet := make(map[string]bool, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		extSet[strings.ToLower(ext)] = true
	}
	return &Scanner{opts: opts, extSet: extSet, logger: logger}
}

// Scan walks root and returns records for every included file. Each record
// carries the content hash, so callers can diff scans without re-reading.
func (s *Scanner) Scan(root string) (*Result, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root is not a directory: %s", absRoot)
	}

	result := &Result{
		Root:        absRoot,
		SkipReasons: make(map[string]int),
	}

	s.logger.Info("scan.start", "root", absRoot)

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("scan.walk.error", "path", path, "err", err)
			return nil
		}

		relPath, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if path == absRoot {
				return nil
			}
			if d.Name() == ".git" || s.excluded(relPath) {
				result.SkipReasons["excluded_dir"]++
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			result.SkipReasons["symlink"]++
			return nil
		}
		if s.excluded(relPath) {
			result.SkipReasons["excluded"]++
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}
		if s.opts.MaxFileSize > 0 && fi.Size() > s.opts.MaxFileSize {
			result.SkipReasons["too_large"]++
			s.logger.Warn("scan.skip.large_file",
				"path", relPath,
				"size", fi.Size(),
				"limit", s.opts.MaxFileSize,
			)
			return nil
		}

		ext := strings.ToLower(filepath.Ext(relPath))
		if len(s.extSet) > 0 && !s.extSet[ext] {
			result.SkipReasons["extension"]++
			return nil
		}

		hash, sniffedBinary, err := hashFile(path, len(s.extSet) == 0)
		if err != nil {
			s.logger.Warn("scan.hash.error", "path", relPath, "err", err)
			result.SkipReasons["read_error"]++
			result.Errors = append(result.Errors, ReadError{Path: relPath, Err: err})
			return nil
		}
		if sniffedBinary {
			result.SkipReasons["binary"]++
			return nil
		}

		result.Files = append(result.Files, FileRecord{
			Path:     relPath,
			AbsPath:  path,
			Size:     fi.Size(),
			Hash:     hash,
			Language: lang.Detect(relPath),
		})
		result.TotalSize += fi.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk repository: %w", err)
	}

	s.logger.Info("scan.complete",
		"files", len(result.Files),
		"total_size", result.TotalSize,
		"skipped", result.SkipReasons,
	)
	return result, nil
}

// hashFile streams the file through SHA-256. When sniff is set, the first
// block is also checked for NUL bytes so unknown binaries can be dropped.
func hashFile(path string, sniff bool) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	h := sha256.New()
	if sniff {
		head := make([]byte, 8000)
		n, err := io.ReadFull(f, head)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return "", false, err
		}
		head = head[:n]
		if bytes.IndexByte(head, 0) >= 0 {
			return "", true, nil
		}
		h.Write(head)
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", false, err
	}
	return hex.EncodeToString(h.Sum(nil)), false, nil
}

// excluded checks the relative path against all exclude patterns.
func (s *Scanner) excluded(relPath string) bool {
	for _, pattern := range s.opts.Exclude {
		if MatchesGlob(relPath, pattern) {
			return true
		}
	}
	return false
}

// MatchesGlob matches a slash-separated path against a glob pattern.
// Supported syntax:
//   - *  : any sequence of non-separator characters
//   - ** : any sequence including separators
//   - ?  : any single non-separator character
//
// A pattern without a leading ** can match at any depth (implicit **/ prefix).
func MatchesGlob(path, pattern string) bool {
	pattern = filepath.ToSlash(pattern)

	// dir/** matches the directory itself and everything under it, at any depth.
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		parts := strings.Split(path, "/")
		for i := range parts {
			subpath := strings.Join(parts[i:], "/")
			if subpath == prefix || strings.HasPrefix(subpath, prefix+"/") {
				return true
			}
		}
		return false
	}

	// *.ext matches any file with that extension, at any depth.
	if strings.HasPrefix(pattern, "*.") && !strings.Contains(pattern, "/") {
		return strings.HasSuffix(path, pattern[1:])
	}

	// **/name matches name at any depth including the root.
	if strings.HasPrefix(pattern, "**/") {
		suffix := pattern[3:]
		parts := strings.Split(path, "/")
		for i := range parts {
			if matchGlob(strings.Join(parts[i:], "/"), suffix) {
				return true
			}
		}
		return false
	}

	// Literal pattern: exact match or path component match.
	if !strings.ContainsAny(pattern, "*?") {
		return path == pattern ||
			strings.HasSuffix(path, "/"+pattern) ||
			strings.HasPrefix(path, pattern+"/") ||
			strings.Contains(path, "/"+pattern+"/")
	}

	// General glob: try from the root, then at every depth.
	parts := strings.Split(path, "/")
	for i := range parts {
		if matchGlob(strings.Join(parts[i:], "/"), pattern) {
			return true
		}
	}
	return false
}

func matchGlob(path, pattern string) bool {
	return matchGlobAt(path, pattern, 0, 0)
}

func matchGlobAt(path, pattern string, pi, pti int) bool {
	for pi < len(path) || pti < len(pattern) {
		if pti >= len(pattern) {
			return false
		}

		if pti+1 < len(pattern) && pattern[pti] == '*' && pattern[pti+1] == '*' {
			next := pti + 2
			if next < len(pattern) && pattern[next] == '/' {
				next++
			}
			if next >= len(pattern) {
				return true
			}
			for i := pi; i <= len(path); i++ {
				if matchGlobAt(path, pattern, i, next) {
					return true
				}
			}
			return false
		}

		switch pattern[pti] {
		case '*':
			for i := pi; i <= len(path); i++ {
				if i > pi && path[i-1] == '/' {
					break
				}
				if matchGlobAt(path, pattern, i, pti+1) {
					return true
				}
			}
			return false
		case '?':
			if pi >= len(path) || path[pi] == '/' {
				return false
			}
			pi++
			pti++
		default:
			if pi >= len(path) || path[pi] != pattern[pti] {
				return false
			}
			pi++
			pti++
		}
	}
	return true
}
