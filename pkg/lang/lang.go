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

// Package lang maps file paths to source languages.
//
// Detection is a pure function of the file path. Languages with a parser
// backend registered in pkg/extract are "supported"; everything else is
// indexed as a document only.
package lang

import (
	"path/filepath"
	"strings"
)

// Language identifies a programming language for entity extraction.
type Language string

const (
	TypeScript Language = "typescript"
	JavaScript Language = "javascript"
	CSharp     Language = "csharp"

	// Unknown is returned for paths with no language mapping.
	Unknown Language = ""
)

// extMap maps lowercase file extensions to languages.
var extMap = map[string]Language{
	".ts":  TypeScript,
	".tsx": TypeScript,
	".mts": TypeScript,
	".cts": TypeScript,
	".js":  JavaScript,
	".jsx": JavaScript,
	".mjs": JavaScript,
	".cjs": JavaScript,
	".cs":  CSharp,
}

// Detect returns the language for a file path, or Unknown.
func Detect(path string) Language {
	ext := strings.ToLower(filepath.Ext(path))
	return extMap[ext]
}

// IsSupported reports whether the path maps to a language with a
// registered parser backend.
func IsSupported(path string) bool {
	return Detect(path) != Unknown
}

// IsJSX reports whether the path uses JSX/TSX syntax, which requires the
// corresponding tree-sitter grammar variant.
func IsJSX(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".tsx" || ext == ".jsx"
}
