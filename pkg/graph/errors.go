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

package graph

import (
	"errors"
	"fmt"
)

// Error codes for graph operations. Stable, machine-readable.
const (
	ErrConnection     = "graph_connection_failed"
	ErrAuthentication = "graph_authentication_failed"
	ErrQuery          = "graph_query_failed"
	ErrQueryTimeout   = "graph_query_timeout"
	ErrNodeNotFound   = "node_not_found"
	ErrRelNotFound    = "relationship_not_found"
	ErrNodeConstraint = "node_constraint_violation"
	ErrTraversalLimit = "traversal_limit_exceeded"
)

// Error is a typed graph failure. Retryable marks transient conditions worth
// another attempt (connection refused, query timeout); constraint violations
// and auth failures are deterministic and must not be retried.
type Error struct {
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	msg := e.Code
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewConnectionError marks a failure to reach the graph backend. Retryable.
func NewConnectionError(msg string, err error) *Error {
	return &Error{Code: ErrConnection, Message: msg, Retryable: true, Err: err}
}

// NewAuthenticationError marks rejected credentials. Fatal, never retried.
func NewAuthenticationError(msg string, err error) *Error {
	return &Error{Code: ErrAuthentication, Message: msg, Err: err}
}

// NewQueryError marks a failed statement.
func NewQueryError(msg string, err error) *Error {
	return &Error{Code: ErrQuery, Message: msg, Err: err}
}

// NewQueryTimeoutError marks a statement that exceeded its deadline. Retryable.
func NewQueryTimeoutError(msg string, err error) *Error {
	return &Error{Code: ErrQueryTimeout, Message: msg, Retryable: true, Err: err}
}

// NewNodeNotFoundError marks expected absence, not a fault: lookups return it
// so callers can distinguish "missing" from "broken".
func NewNodeNotFoundError(nodeType, key string) *Error {
	return &Error{Code: ErrNodeNotFound, Message: fmt.Sprintf("%s %q", nodeType, key)}
}

// NewConstraintError marks a uniqueness violation: a logic bug or a race,
// never something a retry fixes.
func NewConstraintError(msg string, err error) *Error {
	return &Error{Code: ErrNodeConstraint, Message: msg, Err: err}
}

// NewTraversalLimitError marks a traversal that exceeded the depth cap. The
// caller must narrow the query, not retry it.
func NewTraversalLimitError(depth, limit int) *Error {
	return &Error{Code: ErrTraversalLimit, Message: fmt.Sprintf("depth %d exceeds limit %d", depth, limit)}
}

// IsRetryable reports whether the error is a transient graph failure.
func IsRetryable(err error) bool {
	var gerr *Error
	return errors.As(err, &gerr) && gerr.Retryable
}

// IsNotFound reports whether the error is an expected-absence result.
func IsNotFound(err error) bool {
	var gerr *Error
	return errors.As(err, &gerr) &&
		(gerr.Code == ErrNodeNotFound || gerr.Code == ErrRelNotFound)
}

// CodeOf returns the machine-readable code, or "" for untyped errors.
func CodeOf(err error) string {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return ""
}
