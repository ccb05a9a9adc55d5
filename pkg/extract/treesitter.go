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
	"fmt"
	"log/slog"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/codeatlas-dev/codeatlas/pkg/lang"
)

// =============================================================================
// TREE-SITTER BACKEND (TypeScript / TSX / JavaScript / JSX)
// =============================================================================

// TreeSitterBackend parses TypeScript and JavaScript in process.
//
// The TS and JS grammars share node type names for everything this walker
// cares about, so one walker serves all four dialects; only the grammar
// handed to the parser differs.
type TreeSitterBackend struct {
	tsLang  *sitter.Language
	tsxLang *sitter.Language
	jsLang  *sitter.Language
	logger  *slog.Logger
}

// NewTreeSitterBackend loads the grammars. A nil grammar from the bindings
// is a load failure and is reported as a retryable ParserInit error.
func NewTreeSitterBackend(logger *slog.Logger) (*TreeSitterBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tsLang := typescript.GetLanguage()
	tsxLang := tsx.GetLanguage()
	jsLang := javascript.GetLanguage()
	if tsLang == nil || tsxLang == nil || jsLang == nil {
		return nil, NewParserInitError("typescript/javascript", fmt.Errorf("grammar load returned nil"))
	}
	return &TreeSitterBackend{
		tsLang:  tsLang,
		tsxLang: tsxLang,
		jsLang:  jsLang,
		logger:  logger,
	}, nil
}

// Languages implements Backend.
func (b *TreeSitterBackend) Languages() []lang.Language {
	return []lang.Language{lang.TypeScript, lang.JavaScript}
}

// grammarFor picks the grammar variant for a path.
func (b *TreeSitterBackend) grammarFor(path string) *sitter.Language {
	switch {
	case lang.Detect(path) == lang.JavaScript:
		return b.jsLang // the JS grammar handles JSX natively
	case lang.IsJSX(path):
		return b.tsxLang
	default:
		return b.tsLang
	}
}

// Extract implements Backend.
func (b *TreeSitterBackend) Extract(ctx context.Context, content []byte, filePath string) (*Result, error) {
	// Parsers are cheap to construct and not safe for concurrent use, so
	// each call gets its own.
	parser := sitter.NewParser()
	parser.SetLanguage(b.grammarFor(filePath))

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse %s: %w", filePath, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	result := &Result{
		FilePath: filePath,
		Language: lang.Detect(filePath),
	}

	if root.HasError() {
		if n := countErrorNodes(root); n > 0 {
			// Tree-sitter is error-tolerant; keep going.
			b.logger.Warn("extract.treesitter.syntax_errors", "path", filePath, "error_count", n)
			result.Errors = append(result.Errors, fmt.Sprintf("%d syntax error nodes", n))
		}
	}

	// One module entity per file anchors DEFINES edges in the graph.
	result.Entities = append(result.Entities, CodeEntity{
		ID:        ModuleID(filePath),
		Kind:      KindModule,
		Name:      moduleName(filePath),
		FilePath:  filePath,
		StartLine: 1,
		EndLine:   int(root.EndPoint().Row) + 1,
		StartCol:  1,
		EndCol:    1,
		Exported:  true,
	})

	w := &tsWalker{content: content, path: filePath, result: result}
	w.walk(root, "<module>", "")

	if err := validateResult(result); err != nil {
		return nil, NewExtractionError(filePath, err)
	}
	return result, nil
}

// tsWalker carries state for one file's tree walk.
type tsWalker struct {
	content []byte
	path    string
	result  *Result
}

// walk is a single depth-first pass collecting entities, imports, exports
// and calls. caller is the name of the nearest enclosing function-like
// entity; parent is the enclosing class/interface name.
func (w *tsWalker) walk(node *sitter.Node, caller, parent string) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "import_statement":
		w.handleImport(node)
		return

	case "export_statement":
		w.handleExport(node)
		// Fall through to children so the exported declaration itself is
		// extracted with its Exported flag set.

	case "function_declaration", "generator_function_declaration":
		if e := w.declEntity(node, KindFunction, parent); e != nil {
			w.result.Entities = append(w.result.Entities, *e)
			w.walkChildren(node, e.Name, parent)
			return
		}

	case "class_declaration", "abstract_class_declaration":
		if e := w.declEntity(node, KindClass, ""); e != nil {
			e.IsAbstract = node.Type() == "abstract_class_declaration" || hasChildToken(node, "abstract")
			w.result.Entities = append(w.result.Entities, *e)
			w.walkChildren(node, caller, e.Name)
			return
		}

	case "interface_declaration":
		if e := w.declEntity(node, KindInterface, ""); e != nil {
			w.result.Entities = append(w.result.Entities, *e)
			w.walkChildren(node, caller, e.Name)
			return
		}

	case "enum_declaration":
		if e := w.declEntity(node, KindEnum, ""); e != nil {
			w.result.Entities = append(w.result.Entities, *e)
			return // enum members are not entities
		}

	case "type_alias_declaration":
		if e := w.declEntity(node, KindTypeAlias, ""); e != nil {
			w.result.Entities = append(w.result.Entities, *e)
			return
		}

	case "method_definition", "abstract_method_signature", "method_signature":
		if e := w.declEntity(node, KindMethod, parent); e != nil {
			e.IsAbstract = node.Type() == "abstract_method_signature"
			w.result.Entities = append(w.result.Entities, *e)
			w.walkChildren(node, e.Name, parent)
			return
		}

	case "public_field_definition":
		w.handleField(node, caller, parent)
		return

	case "variable_declarator":
		if w.handleVariableDeclarator(node, parent) {
			return
		}

	case "call_expression":
		w.handleCall(node, caller)
		// Recurse for nested calls in arguments.
	}

	w.walkChildren(node, caller, parent)
}

func (w *tsWalker) walkChildren(node *sitter.Node, caller, parent string) {
	for i := 0; i < int(node.ChildCount()); i++ {
		w.walk(node.Child(i), caller, parent)
	}
}

// declEntity builds an entity from a named declaration node.
func (w *tsWalker) declEntity(node *sitter.Node, kind EntityKind, parent string) *CodeEntity {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := w.text(nameNode)

	e := &CodeEntity{
		Kind:      kind,
		Name:      name,
		FilePath:  w.path,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		StartCol:  int(node.StartPoint().Column) + 1,
		EndCol:    int(node.EndPoint().Column) + 1,
		Exported:  isExported(node),
		IsAsync:   hasChildToken(node, "async"),
		Parent:    parent,
		Signature: w.signature(node),
		Doc:       w.docComment(node),
	}
	e.ID = EntityID(w.path, name, kind, e.StartLine, e.EndLine, e.StartCol, e.EndCol)
	return e
}

// handleVariableDeclarator extracts `const f = () => {}` and
// `const f = function() {}` as function entities. Returns true when the
// declarator was consumed.
func (w *tsWalker) handleVariableDeclarator(node *sitter.Node, parent string) bool {
	nameNode := node.ChildByFieldName("name")
	valueNode := node.ChildByFieldName("value")
	if nameNode == nil || valueNode == nil {
		return false
	}
	vt := valueNode.Type()
	if vt != "arrow_function" && vt != "function_expression" && vt != "function" {
		return false
	}

	name := w.text(nameNode)
	e := &CodeEntity{
		Kind:      KindFunction,
		Name:      name,
		FilePath:  w.path,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		StartCol:  int(node.StartPoint().Column) + 1,
		EndCol:    int(node.EndPoint().Column) + 1,
		Exported:  isExported(node),
		IsAsync:   hasChildToken(valueNode, "async"),
		Parent:    parent,
		Signature: w.signature(valueNode),
	}
	e.ID = EntityID(w.path, name, KindFunction, e.StartLine, e.EndLine, e.StartCol, e.EndCol)
	w.result.Entities = append(w.result.Entities, *e)
	w.walkChildren(valueNode, name, parent)
	return true
}

// handleField extracts class fields: arrow-valued fields become methods,
// plain fields become properties.
func (w *tsWalker) handleField(node *sitter.Node, caller, parent string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := w.text(nameNode)
	valueNode := node.ChildByFieldName("value")

	kind := KindProperty
	if valueNode != nil && (valueNode.Type() == "arrow_function" || valueNode.Type() == "function_expression") {
		kind = KindMethod
	}

	e := CodeEntity{
		Kind:      kind,
		Name:      name,
		FilePath:  w.path,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		StartCol:  int(node.StartPoint().Column) + 1,
		EndCol:    int(node.EndPoint().Column) + 1,
		Parent:    parent,
	}
	if valueNode != nil {
		e.IsAsync = hasChildToken(valueNode, "async")
	}
	e.ID = EntityID(w.path, name, kind, e.StartLine, e.EndLine, e.StartCol, e.EndCol)
	w.result.Entities = append(w.result.Entities, e)

	if kind == KindMethod {
		w.walkChildren(valueNode, name, parent)
	}
}

// handleImport records one import statement with its bindings.
func (w *tsWalker) handleImport(node *sitter.Node) {
	sourceNode := node.ChildByFieldName("source")
	if sourceNode == nil {
		return
	}
	rec := ImportRecord{
		FilePath: w.path,
		Module:   stripQuotes(w.text(sourceNode)),
		Line:     int(node.StartPoint().Row) + 1,
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(child.ChildCount()); j++ {
			cl := child.Child(j)
			switch cl.Type() {
			case "identifier":
				rec.Names = append(rec.Names, ImportedName{Name: w.text(cl), Default: true})
			case "namespace_import":
				for k := 0; k < int(cl.ChildCount()); k++ {
					if id := cl.Child(k); id.Type() == "identifier" {
						rec.Names = append(rec.Names, ImportedName{Name: w.text(id), Namespace: true})
					}
				}
			case "named_imports":
				for k := 0; k < int(cl.NamedChildCount()); k++ {
					spec := cl.NamedChild(k)
					if spec.Type() != "import_specifier" {
						continue
					}
					in := ImportedName{}
					if n := spec.ChildByFieldName("name"); n != nil {
						in.Name = w.text(n)
					}
					if a := spec.ChildByFieldName("alias"); a != nil {
						in.Alias = w.text(a)
					}
					if in.Name != "" {
						rec.Names = append(rec.Names, in)
					}
				}
			}
		}
	}

	w.result.Imports = append(w.result.Imports, rec)
}

// handleExport records exported bindings. Declarations nested under the
// export statement are extracted separately by the main walk.
func (w *tsWalker) handleExport(node *sitter.Node) {
	line := int(node.StartPoint().Row) + 1
	isDefault := hasChildToken(node, "default")

	if decl := node.ChildByFieldName("declaration"); decl != nil {
		name := ""
		if n := decl.ChildByFieldName("name"); n != nil {
			name = w.text(n)
		} else if decl.Type() == "lexical_declaration" || decl.Type() == "variable_declaration" {
			for i := 0; i < int(decl.NamedChildCount()); i++ {
				if d := decl.NamedChild(i); d.Type() == "variable_declarator" {
					if n := d.ChildByFieldName("name"); n != nil {
						w.result.Exports = append(w.result.Exports, ExportRecord{
							FilePath: w.path,
							Name:     w.text(n),
							Kind:     "value",
							Line:     line,
							Default:  isDefault,
						})
					}
				}
			}
			return
		}
		if name == "" && isDefault {
			name = "default"
		}
		if name != "" {
			w.result.Exports = append(w.result.Exports, ExportRecord{
				FilePath: w.path,
				Name:     name,
				Kind:     exportKind(decl.Type()),
				Line:     line,
				Default:  isDefault,
			})
		}
		return
	}

	// export { a, b as c }
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "export_clause" {
			continue
		}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			spec := child.NamedChild(j)
			if spec.Type() != "export_specifier" {
				continue
			}
			name := ""
			if n := spec.ChildByFieldName("name"); n != nil {
				name = w.text(n)
			}
			if a := spec.ChildByFieldName("alias"); a != nil {
				name = w.text(a)
			}
			if name != "" {
				w.result.Exports = append(w.result.Exports, ExportRecord{
					FilePath: w.path,
					Name:     name,
					Kind:     "value",
					Line:     line,
				})
			}
		}
	}
}

// handleCall records one call expression attributed to its enclosing caller.
func (w *tsWalker) handleCall(node *sitter.Node, caller string) {
	fnNode := node.ChildByFieldName("function")
	if fnNode == nil {
		return
	}

	callee := ""
	switch fnNode.Type() {
	case "identifier":
		callee = w.text(fnNode)
	case "member_expression":
		if prop := fnNode.ChildByFieldName("property"); prop != nil {
			callee = w.text(prop)
		}
	default:
		return // computed or immediately-invoked expressions are skipped
	}
	if callee == "" {
		return
	}

	awaited := node.Parent() != nil && node.Parent().Type() == "await_expression"

	w.result.Calls = append(w.result.Calls, CallRecord{
		FilePath: w.path,
		Caller:   caller,
		Callee:   callee,
		Line:     int(node.StartPoint().Row) + 1,
		Awaited:  awaited,
	})
}

// --- helpers ---

func (w *tsWalker) text(node *sitter.Node) string {
	return string(w.content[node.StartByte():node.EndByte()])
}

// signature returns the declaration text up to the body, capped at 300 bytes.
func (w *tsWalker) signature(node *sitter.Node) string {
	end := node.EndByte()
	if body := node.ChildByFieldName("body"); body != nil {
		end = body.StartByte()
	}
	sig := strings.TrimSpace(string(w.content[node.StartByte():end]))
	if len(sig) > 300 {
		sig = sig[:300]
	}
	return sig
}

// docComment returns a leading /** ... */ comment if one directly precedes
// the declaration (or its export statement wrapper).
func (w *tsWalker) docComment(node *sitter.Node) string {
	target := node
	if p := node.Parent(); p != nil && p.Type() == "export_statement" {
		target = p
	}
	prev := target.PrevNamedSibling()
	if prev == nil || prev.Type() != "comment" {
		return ""
	}
	text := w.text(prev)
	if !strings.HasPrefix(text, "/**") {
		return ""
	}
	return text
}

// isExported checks whether the declaration sits under an export statement.
func isExported(node *sitter.Node) bool {
	for p := node.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "export_statement":
			return true
		case "program", "statement_block", "class_body":
			return false
		}
	}
	return false
}

// hasChildToken scans direct children for an anonymous token like "async".
func hasChildToken(node *sitter.Node, token string) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		if node.Child(i).Type() == token {
			return true
		}
	}
	return false
}

func countErrorNodes(node *sitter.Node) int {
	if node == nil {
		return 0
	}
	count := 0
	if node.IsError() {
		count++
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		count += countErrorNodes(node.Child(i))
	}
	return count
}

func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'' || s[0] == '`') {
		return s[1 : len(s)-1]
	}
	return s
}

func exportKind(nodeType string) string {
	switch nodeType {
	case "function_declaration", "generator_function_declaration":
		return "function"
	case "class_declaration", "abstract_class_declaration":
		return "class"
	case "interface_declaration":
		return "interface"
	case "enum_declaration":
		return "enum"
	case "type_alias_declaration":
		return "type_alias"
	default:
		return "value"
	}
}

func moduleName(path string) string {
	base := path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}
