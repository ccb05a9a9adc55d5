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
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestService_LanguageNotSupported(t *testing.T) {
	s := NewService(Options{}, nil)

	_, err := s.Extract(context.Background(), []byte("# readme"), "README.md")
	require.Error(t, err)
	require.Equal(t, CodeLanguageNotSupported, CodeOf(err))
	require.False(t, IsRetryable(err))
}

func TestService_FileTooLarge(t *testing.T) {
	s := NewService(Options{MaxFileSize: 64}, nil)

	big := strings.Repeat("const x = 1;\n", 100)
	_, err := s.Extract(context.Background(), []byte(big), "src/big.ts")
	require.Error(t, err)
	require.Equal(t, CodeFileTooLarge, CodeOf(err))
}

func TestService_Supports(t *testing.T) {
	s := NewService(Options{}, nil)

	require.True(t, s.Supports("a.ts"))
	require.True(t, s.Supports("a.jsx"))
	require.False(t, s.Supports("a.md"))
	// C# needs the analyzer tool, which is not configured here.
	require.False(t, s.Supports("a.cs"))
}

func TestService_ExtractBatch_CollectsPerFileFailures(t *testing.T) {
	s := NewService(Options{}, nil)

	files := map[string][]byte{
		"src/good.ts": []byte("export function ok() {}"),
		"docs/bad.md": []byte("# not code"),
	}
	results, failures := s.ExtractBatch(context.Background(), files)

	require.Len(t, results, 1)
	require.Contains(t, results, "src/good.ts")
	require.Len(t, failures, 1)
	require.Equal(t, CodeLanguageNotSupported, CodeOf(failures["docs/bad.md"]))
}

func TestEntityID_Deterministic(t *testing.T) {
	a := EntityID("src/a.ts", "login", KindFunction, 1, 10, 1, 2)
	b := EntityID("./src/a.ts", "login", KindFunction, 1, 10, 1, 2)
	require.Equal(t, a, b, "path normalization feeds the ID")

	c := EntityID("src/a.ts", "login", KindFunction, 2, 10, 1, 2)
	require.NotEqual(t, a, c)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"./src/a.ts", "src/a.ts"},
		{"src//a.ts", "src/a.ts"},
		{"/abs/a.ts", "abs/a.ts"},
	}
	for _, tt := range tests {
		if got := NormalizePath(tt.in); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
