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

package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/codeatlas-dev/codeatlas/pkg/lang"
)

// =============================================================================
// C# ANALYZER BACKEND (out-of-process)
// =============================================================================
//
// C# analysis runs in a separate Roslyn-based tool. The protocol is JSON over
// stdin/stdout:
//
//   Single file:  file content on stdin, file path as argv; one ParseResult
//                 object on stdout.
//   Batch:        invoked with --batch; a JSON array of {path, content} on
//                 stdin; a JSON array of ParseResult on stdout, one per
//                 input file, in input order.
//
// The backend treats the tool as a black box behind the same Result contract
// as the in-process parsers.

// AnalyzerBackend shells out to the C# analyzer tool.
type AnalyzerBackend struct {
	toolPath string
	logger   *slog.Logger
}

// AnalyzerInput is one file in a batch request.
type AnalyzerInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// analyzerParseResult is the tool's wire format for one file.
type analyzerParseResult struct {
	FilePath    string             `json:"filePath"`
	Language    string             `json:"language"`
	Entities    []analyzerEntity   `json:"entities"`
	Imports     []analyzerImport   `json:"imports"`
	Exports     []ExportRecord     `json:"exports"`
	Calls       []CallRecord       `json:"calls"`
	ParseTimeMs int64              `json:"parseTimeMs"`
	Errors      []string           `json:"errors"`
	Success     bool               `json:"success"`
}

type analyzerEntity struct {
	Kind       string `json:"kind"`
	Name       string `json:"name"`
	StartLine  int    `json:"lineStart"`
	EndLine    int    `json:"lineEnd"`
	StartCol   int    `json:"colStart"`
	EndCol     int    `json:"colEnd"`
	Exported   bool   `json:"isExported"`
	IsAsync    bool   `json:"isAsync"`
	IsAbstract bool   `json:"isAbstract"`
	Parent     string `json:"parent"`
	Signature  string `json:"signature"`
	Doc        string `json:"documentation"`
}

type analyzerImport struct {
	Module string `json:"module"`
	Line   int    `json:"line"`
}

// NewAnalyzerBackend verifies the tool exists and builds the backend.
func NewAnalyzerBackend(toolPath string, logger *slog.Logger) (*AnalyzerBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	resolved, err := exec.LookPath(toolPath)
	if err != nil {
		return nil, NewAnalyzerUnavailableError(toolPath, err)
	}
	return &AnalyzerBackend{toolPath: resolved, logger: logger}, nil
}

// Languages implements Backend.
func (b *AnalyzerBackend) Languages() []lang.Language {
	return []lang.Language{lang.CSharp}
}

// Extract implements Backend using the tool's single-file mode.
func (b *AnalyzerBackend) Extract(ctx context.Context, content []byte, filePath string) (*Result, error) {
	cmd := exec.CommandContext(ctx, b.toolPath, filePath)
	cmd.Stdin = bytes.NewReader(content)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, NewParseTimeoutError(filePath, ctx.Err())
		}
		return nil, NewExtractionError(filePath,
			fmt.Errorf("analyzer exited: %w: %s", err, firstLine(stderr.String())))
	}

	var pr analyzerParseResult
	if err := json.Unmarshal(stdout.Bytes(), &pr); err != nil {
		return nil, NewExtractionError(filePath, fmt.Errorf("decode analyzer output: %w", err))
	}

	result := b.toResult(&pr, filePath)
	result.ParseTime = time.Since(start)
	return result, nil
}

// ExtractAll runs the tool's batch mode over multiple files.
//
// The whole batch shares one process invocation; a per-file failure inside
// the batch is carried in that file's Result.Errors, not as a Go error.
func (b *AnalyzerBackend) ExtractAll(ctx context.Context, files []AnalyzerInput) (map[string]*Result, error) {
	if len(files) == 0 {
		return map[string]*Result{}, nil
	}

	input, err := json.Marshal(files)
	if err != nil {
		return nil, fmt.Errorf("encode analyzer batch: %w", err)
	}

	cmd := exec.CommandContext(ctx, b.toolPath, "--batch")
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, NewParseTimeoutError("batch", ctx.Err())
		}
		return nil, NewAnalyzerUnavailableError(b.toolPath,
			fmt.Errorf("batch run: %w: %s", err, firstLine(stderr.String())))
	}

	var prs []analyzerParseResult
	if err := json.Unmarshal(stdout.Bytes(), &prs); err != nil {
		return nil, NewExtractionError("batch", fmt.Errorf("decode analyzer batch output: %w", err))
	}

	results := make(map[string]*Result, len(prs))
	perFile := time.Since(start) / time.Duration(len(files))
	for i := range prs {
		r := b.toResult(&prs[i], prs[i].FilePath)
		r.ParseTime = perFile
		results[r.FilePath] = r
	}

	b.logger.Debug("extract.analyzer.batch.complete",
		"files", len(files),
		"results", len(results),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return results, nil
}

// toResult converts the wire format, assigning deterministic IDs locally so
// the ID scheme stays out of the tool contract.
func (b *AnalyzerBackend) toResult(pr *analyzerParseResult, filePath string) *Result {
	result := &Result{
		FilePath: filePath,
		Language: lang.CSharp,
		Exports:  pr.Exports,
		Calls:    pr.Calls,
		Errors:   pr.Errors,
	}

	endLine := 1
	for _, e := range pr.Entities {
		if e.EndLine > endLine {
			endLine = e.EndLine
		}
	}
	result.Entities = append(result.Entities, CodeEntity{
		ID:        ModuleID(filePath),
		Kind:      KindModule,
		Name:      moduleName(filePath),
		FilePath:  filePath,
		StartLine: 1,
		EndLine:   endLine,
		StartCol:  1,
		EndCol:    1,
		Exported:  true,
	})

	for _, ae := range pr.Entities {
		kind := EntityKind(ae.Kind)
		e := CodeEntity{
			Kind:       kind,
			Name:       ae.Name,
			FilePath:   filePath,
			StartLine:  ae.StartLine,
			EndLine:    ae.EndLine,
			StartCol:   ae.StartCol,
			EndCol:     ae.EndCol,
			Exported:   ae.Exported,
			IsAsync:    ae.IsAsync,
			IsAbstract: ae.IsAbstract,
			Parent:     ae.Parent,
			Signature:  ae.Signature,
			Doc:        ae.Doc,
		}
		e.ID = EntityID(filePath, e.Name, kind, e.StartLine, e.EndLine, e.StartCol, e.EndCol)
		result.Entities = append(result.Entities, e)
	}

	for _, ai := range pr.Imports {
		result.Imports = append(result.Imports, ImportRecord{
			FilePath: filePath,
			Module:   ai.Module,
			Line:     ai.Line,
		})
	}

	for i := range result.Calls {
		result.Calls[i].FilePath = filePath
	}
	for i := range result.Exports {
		result.Exports[i].FilePath = filePath
	}

	return result
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
