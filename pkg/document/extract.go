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

package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	gast "github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"
)

// Extracted is the normalized output of any document extractor.
type Extracted struct {
	// Text is the normalized plain text, empty for images.
	Text string

	// Title is a best-effort document title (first heading, PDF metadata).
	Title string

	// Metadata holds type-specific facts (page count, image dimensions).
	Metadata map[string]string
}

// ExtractFunc turns raw document bytes into normalized text plus metadata.
type ExtractFunc func(content []byte, path string) (*Extracted, error)

// extractors is the dispatch table. The variant set is closed; see package doc.
var extractors = map[Type]ExtractFunc{
	TypePDF:       extractPDF,
	TypeDOCX:      extractDOCX,
	TypeMarkdown:  extractMarkdown,
	TypePlainText: extractPlainText,
	TypeImage:     extractImage,
}

// Extract detects the document type for path and runs its extractor.
// An unknown type returns (nil, false, nil): not an error, just not a document.
func Extract(content []byte, path string) (*Extracted, bool, error) {
	dt := DetectType(path)
	fn, ok := extractors[dt]
	if !ok {
		return nil, false, nil
	}
	ex, err := fn(content, path)
	if err != nil {
		return nil, true, fmt.Errorf("extract %s %s: %w", dt, path, err)
	}
	return ex, true, nil
}

// extractPDF pulls plain text from every page.
func extractPDF(content []byte, _ string) (*Extracted, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	var sb strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page should not sink the document.
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	return &Extracted{
		Text: normalizeWhitespace(sb.String()),
		Metadata: map[string]string{
			"pages": fmt.Sprintf("%d", pages),
		},
	}, nil
}

// extractDOCX reads paragraph text out of the OOXML main document part.
// DOCX is a zip archive; paragraph text lives in <w:p><w:r><w:t> runs.
func extractDOCX(content []byte, _ string) (*Extracted, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open docx archive: %w", err)
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("open document.xml: %w", err)
			}
			docXML, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, fmt.Errorf("read document.xml: %w", err)
			}
			break
		}
	}
	if docXML == nil {
		return nil, fmt.Errorf("word/document.xml not found")
	}

	// Stream the XML and collect <w:t> character data per paragraph.
	dec := xml.NewDecoder(bytes.NewReader(docXML))
	var sb strings.Builder
	paragraphs := 0
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
			if t.Name.Local == "p" {
				paragraphs++
			}
		case xml.EndElement:
			if t.Name.Local == "t" {
				inText = false
			}
			if t.Name.Local == "p" {
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}

	return &Extracted{
		Text: normalizeWhitespace(sb.String()),
		Metadata: map[string]string{
			"paragraphs": fmt.Sprintf("%d", paragraphs),
		},
	}, nil
}

// extractMarkdown walks the goldmark AST and keeps only text content,
// dropping formatting, links and code fences' syntax.
func extractMarkdown(content []byte, _ string) (*Extracted, error) {
	md := goldmark.New()
	doc := md.Parser().Parse(gtext.NewReader(content))

	var sb strings.Builder
	title := ""

	err := gast.Walk(doc, func(n gast.Node, entering bool) (gast.WalkStatus, error) {
		if !entering {
			return gast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *gast.Heading:
			if title == "" && t.Level == 1 {
				title = string(t.Text(content))
			}
		case *gast.Text:
			sb.Write(t.Segment.Value(content))
			sb.WriteString(" ")
		case *gast.FencedCodeBlock:
			lines := t.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(content))
			}
		}
		return gast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk markdown: %w", err)
	}

	return &Extracted{
		Text:     normalizeWhitespace(sb.String()),
		Title:    title,
		Metadata: map[string]string{},
	}, nil
}

// extractPlainText validates encoding and normalizes whitespace.
func extractPlainText(content []byte, _ string) (*Extracted, error) {
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("not valid UTF-8")
	}
	return &Extracted{
		Text:     normalizeWhitespace(string(content)),
		Metadata: map[string]string{},
	}, nil
}

// extractImage produces metadata only; images carry no indexable text.
func extractImage(content []byte, path string) (*Extracted, error) {
	meta := map[string]string{}
	if strings.HasSuffix(strings.ToLower(path), ".svg") {
		meta["format"] = "svg"
	} else if cfg, format, err := image.DecodeConfig(bytes.NewReader(content)); err == nil {
		meta["format"] = format
		meta["width"] = fmt.Sprintf("%d", cfg.Width)
		meta["height"] = fmt.Sprintf("%d", cfg.Height)
	}
	return &Extracted{Text: "", Metadata: meta}, nil
}

// normalizeWhitespace collapses runs of blank lines and trims trailing space.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
