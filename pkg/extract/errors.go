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
	"errors"
	"fmt"
)

// Error codes for extraction failures. Codes are stable machine-readable
// strings; callers branch on these, never on message text.
const (
	CodeLanguageNotSupported = "language_not_supported"
	CodeFileTooLarge         = "file_too_large"
	CodeParseTimeout         = "parse_timeout"
	CodeExtraction           = "extraction_failed"
	CodeParserInit           = "parser_init_failed"
	CodeAnalyzerUnavailable  = "analyzer_unavailable"
)

// Error is a typed extraction failure with a stable code and retry hint.
type Error struct {
	Code      string
	Path      string
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewLanguageNotSupportedError marks a path with no parser backend.
// Non-fatal: the caller indexes the file as a document only.
func NewLanguageNotSupportedError(path string) *Error {
	return &Error{
		Code:    CodeLanguageNotSupported,
		Path:    path,
		Message: fmt.Sprintf("no parser backend for %s", path),
	}
}

// NewFileTooLargeError marks a file over the configured size guardrail.
func NewFileTooLargeError(path string, size, limit int64) *Error {
	return &Error{
		Code:    CodeFileTooLarge,
		Path:    path,
		Message: fmt.Sprintf("%s is %d bytes, limit %d", path, size, limit),
	}
}

// NewParseTimeoutError marks a parse that exceeded its deadline.
func NewParseTimeoutError(path string, err error) *Error {
	return &Error{
		Code:    CodeParseTimeout,
		Path:    path,
		Message: fmt.Sprintf("parse of %s timed out", path),
		Err:     err,
	}
}

// NewExtractionError marks a successful parse whose tree walk failed.
// This indicates malformed assumptions about AST shape.
func NewExtractionError(path string, err error) *Error {
	return &Error{
		Code:    CodeExtraction,
		Path:    path,
		Message: fmt.Sprintf("tree walk of %s failed", path),
		Err:     err,
	}
}

// NewParserInitError marks a grammar or runtime load failure.
// Retryable; if retries exhaust the language is disabled, others continue.
func NewParserInitError(language string, err error) *Error {
	return &Error{
		Code:      CodeParserInit,
		Message:   fmt.Sprintf("parser for %s failed to initialize", language),
		Retryable: true,
		Err:       err,
	}
}

// NewAnalyzerUnavailableError marks the out-of-process analyzer tool as
// missing or unlaunchable.
func NewAnalyzerUnavailableError(tool string, err error) *Error {
	return &Error{
		Code:      CodeAnalyzerUnavailable,
		Message:   fmt.Sprintf("analyzer tool %s unavailable", tool),
		Retryable: true,
		Err:       err,
	}
}

// CodeOf returns the extraction error code, or "" for foreign errors.
func CodeOf(err error) string {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// IsRetryable reports whether the extraction error is worth retrying.
func IsRetryable(err error) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Retryable
	}
	return false
}
