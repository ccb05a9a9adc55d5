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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"time"

	"github.com/codeatlas-dev/codeatlas/pkg/lang"
)

// EntityKind classifies a code entity discovered by parsing.
type EntityKind string

const (
	KindFunction  EntityKind = "function"
	KindClass     EntityKind = "class"
	KindInterface EntityKind = "interface"
	KindEnum      EntityKind = "enum"
	KindMethod    EntityKind = "method"
	KindProperty  EntityKind = "property"
	KindTypeAlias EntityKind = "type_alias"
	KindModule    EntityKind = "module"
)

// CodeEntity is a named construct extracted from source.
//
// Entities are created fresh on every parse of a file and never mutated in
// place; a file's prior entities are fully replaced on re-parse.
type CodeEntity struct {
	// ID is deterministic for identical content at an identical path.
	ID string `json:"id"`

	Kind     EntityKind `json:"kind"`
	Name     string     `json:"name"`
	FilePath string     `json:"filePath"`

	// Line range is 1-based and inclusive; StartLine <= EndLine always.
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine"`
	StartCol  int `json:"startCol"`
	EndCol    int `json:"endCol"`

	// Exported reports whether the entity is visible outside its module.
	Exported bool `json:"exported"`

	// IsAsync is set for async functions and methods.
	IsAsync bool `json:"isAsync,omitempty"`

	// IsAbstract is set for abstract classes and methods.
	IsAbstract bool `json:"isAbstract,omitempty"`

	// Parent is the name of the enclosing class/interface for members.
	Parent string `json:"parent,omitempty"`

	// Signature is the declaration text up to the body.
	Signature string `json:"signature,omitempty"`

	// Doc is the leading documentation comment, if any.
	Doc string `json:"doc,omitempty"`
}

// ImportRecord is one import statement with resolved specifier and aliasing.
type ImportRecord struct {
	FilePath string         `json:"filePath"`
	Module   string         `json:"module"`
	Names    []ImportedName `json:"names,omitempty"`
	Line     int            `json:"line"`
}

// ImportedName is a single imported binding, possibly aliased.
type ImportedName struct {
	Name  string `json:"name"`
	Alias string `json:"alias,omitempty"`

	// Default marks `import foo from "mod"` style bindings.
	Default bool `json:"default,omitempty"`

	// Namespace marks `import * as foo from "mod"` style bindings.
	Namespace bool `json:"namespace,omitempty"`
}

// ExportRecord is one exported binding from a file.
type ExportRecord struct {
	FilePath string `json:"filePath"`
	Name     string `json:"name"`
	Kind     string `json:"kind,omitempty"`
	Line     int    `json:"line"`
	Default  bool   `json:"default,omitempty"`
}

// CallRecord is one call expression with caller attribution.
type CallRecord struct {
	FilePath string `json:"filePath"`

	// Caller is the enclosing function or method name; "<module>" for
	// top-level calls.
	Caller   string `json:"caller"`
	CallerID string `json:"callerId,omitempty"`

	// Callee is the called name (the property name for member calls).
	Callee string `json:"callee"`

	Line int `json:"line"`

	// Awaited is set when the call is the operand of an await expression.
	Awaited bool `json:"awaited,omitempty"`
}

// Result is the output contract shared by every language backend.
type Result struct {
	FilePath string        `json:"filePath"`
	Language lang.Language `json:"language"`

	Entities []CodeEntity   `json:"entities"`
	Imports  []ImportRecord `json:"imports"`
	Exports  []ExportRecord `json:"exports"`
	Calls    []CallRecord   `json:"calls"`

	// Errors collects non-fatal per-node extraction problems.
	Errors []string `json:"errors,omitempty"`

	ParseTime time.Duration `json:"-"`
}

// EntityID generates a deterministic entity ID.
//
// Strategy: hash(path | name | kind | full position). Identical content at an
// identical path always yields the same ID, which is what makes
// replace-on-reparse idempotent.
func EntityID(filePath, name string, kind EntityKind, startLine, endLine, startCol, endCol int) string {
	idStr := fmt.Sprintf("%s|%s|%s|%d|%d|%d|%d",
		NormalizePath(filePath), name, kind, startLine, endLine, startCol, endCol)
	hash := sha256.Sum256([]byte(idStr))
	return "ent:" + hex.EncodeToString(hash[:16])
}

// ModuleID generates the deterministic ID of a file's module entity.
func ModuleID(filePath string) string {
	normalized := NormalizePath(filePath)
	if len(normalized) <= 200 {
		return "mod:" + normalized
	}
	hash := sha256.Sum256([]byte(normalized))
	return "mod:" + hex.EncodeToString(hash[:16])
}

// NormalizePath normalizes a file path for consistent ID generation.
//
// Removes a leading ./, cleans the path, and converts separators to forward
// slashes so IDs are identical across platforms.
func NormalizePath(path string) string {
	if len(path) >= 2 && path[0:2] == "./" {
		path = path[2:]
	}
	path = filepath.ToSlash(filepath.Clean(path))
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	return path
}
