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

// Package document extracts normalized text from non-code documents.
//
// A closed set of document types is supported: PDF, DOCX, Markdown, plain
// text and images. Dispatch goes through a lookup table keyed by detected
// type; adding a type means adding a table entry, not a subclass.
package document

import (
	"path/filepath"
	"strings"
)

// Type classifies a document for extractor dispatch.
type Type string

const (
	TypePDF       Type = "pdf"
	TypeDOCX      Type = "docx"
	TypeMarkdown  Type = "markdown"
	TypePlainText Type = "plaintext"
	TypeImage     Type = "image"

	// TypeUnknown means no extractor applies; the file is skipped.
	TypeUnknown Type = ""
)

var typeByExt = map[string]Type{
	".pdf":      TypePDF,
	".docx":     TypeDOCX,
	".md":       TypeMarkdown,
	".markdown": TypeMarkdown,
	".mdx":      TypeMarkdown,
	".txt":      TypePlainText,
	".text":     TypePlainText,
	".rst":      TypePlainText,
	".log":      TypePlainText,
	".png":      TypeImage,
	".jpg":      TypeImage,
	".jpeg":     TypeImage,
	".gif":      TypeImage,
	".webp":     TypeImage,
	".svg":      TypeImage,
}

// DetectType returns the document type for a path, or TypeUnknown.
func DetectType(path string) Type {
	return typeByExt[strings.ToLower(filepath.Ext(path))]
}
