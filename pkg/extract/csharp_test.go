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
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAnalyzerBackend_MissingTool(t *testing.T) {
	_, err := NewAnalyzerBackend("definitely-not-a-real-analyzer-tool", nil)
	require.Error(t, err)
	require.Equal(t, CodeAnalyzerUnavailable, CodeOf(err))
	require.True(t, IsRetryable(err))
}

func TestAnalyzerToResult_MapsEntitiesAndAssignsIDs(t *testing.T) {
	b := &AnalyzerBackend{toolPath: "fake"}

	pr := &analyzerParseResult{
		FilePath: "Services/UserService.cs",
		Language: "csharp",
		Entities: []analyzerEntity{
			{Kind: "class", Name: "UserService", StartLine: 5, EndLine: 40, StartCol: 1, EndCol: 2, Exported: true},
			{Kind: "method", Name: "GetUser", StartLine: 10, EndLine: 20, StartCol: 5, EndCol: 6, Parent: "UserService", IsAsync: true},
		},
		Imports: []analyzerImport{{Module: "System.Linq", Line: 1}},
		Calls:   []CallRecord{{Caller: "GetUser", Callee: "FirstOrDefault", Line: 15, Awaited: false}},
		Success: true,
	}

	result := b.toResult(pr, "Services/UserService.cs")

	require.NotNil(t, findEntity(result.Entities, KindModule, "UserService"))

	cls := findEntity(result.Entities, KindClass, "UserService")
	require.NotNil(t, cls)
	require.True(t, cls.Exported)
	require.NotEmpty(t, cls.ID)

	method := findEntity(result.Entities, KindMethod, "GetUser")
	require.NotNil(t, method)
	require.True(t, method.IsAsync)
	require.Equal(t, "UserService", method.Parent)

	require.Len(t, result.Imports, 1)
	require.Equal(t, "System.Linq", result.Imports[0].Module)
	require.Equal(t, "Services/UserService.cs", result.Imports[0].FilePath)

	require.Len(t, result.Calls, 1)
	require.Equal(t, "Services/UserService.cs", result.Calls[0].FilePath)
}

// TestAnalyzerBackend_SingleFileProtocol drives the stdin/stdout contract
// against a stub tool.
func TestAnalyzerBackend_SingleFileProtocol(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("stub tool is a shell script")
	}

	dir := t.TempDir()
	tool := filepath.Join(dir, "analyzer")
	script := `#!/bin/sh
# Consume stdin, then emit a fixed ParseResult for the path in $1.
cat > /dev/null
printf '{"filePath":"%s","language":"csharp","entities":[{"kind":"class","name":"Program","lineStart":1,"lineEnd":9,"colStart":1,"colEnd":2,"isExported":true}],"imports":[],"exports":[],"calls":[],"parseTimeMs":3,"errors":[],"success":true}' "$1"
`
	require.NoError(t, os.WriteFile(tool, []byte(script), 0o755))

	b, err := NewAnalyzerBackend(tool, nil)
	require.NoError(t, err)

	result, err := b.Extract(context.Background(), []byte("class Program {}"), "Program.cs")
	require.NoError(t, err)
	require.NotNil(t, findEntity(result.Entities, KindClass, "Program"))
}

// TestAnalyzerBackend_BatchProtocol drives the --batch mode contract.
func TestAnalyzerBackend_BatchProtocol(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("stub tool is a shell script")
	}

	dir := t.TempDir()
	tool := filepath.Join(dir, "analyzer")
	script := `#!/bin/sh
cat > /dev/null
printf '[{"filePath":"A.cs","language":"csharp","entities":[],"imports":[],"exports":[],"calls":[],"parseTimeMs":1,"errors":[],"success":true},{"filePath":"B.cs","language":"csharp","entities":[],"imports":[],"exports":[],"calls":[],"parseTimeMs":1,"errors":["CS1002 at 3:1"],"success":false}]'
`
	require.NoError(t, os.WriteFile(tool, []byte(script), 0o755))

	b, err := NewAnalyzerBackend(tool, nil)
	require.NoError(t, err)

	results, err := b.ExtractAll(context.Background(), []AnalyzerInput{
		{Path: "A.cs", Content: "class A {}"},
		{Path: "B.cs", Content: "class B {"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Empty(t, results["A.cs"].Errors)
	require.NotEmpty(t, results["B.cs"].Errors, "per-file failure rides in Result.Errors")
}
