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

package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestUserError_Error verifies the Error() method implementation.
func TestUserError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *UserError
		want string
	}{
		{
			name: "with underlying error",
			err: &UserError{
				Message: "Cannot open vector index",
				Err:     fmt.Errorf("file locked"),
			},
			want: "Cannot open vector index: file locked",
		},
		{
			name: "without underlying error",
			err: &UserError{
				Message: "Invalid input",
				Err:     nil,
			},
			want: "Invalid input",
		},
		{
			name: "empty message with underlying error",
			err: &UserError{
				Message: "",
				Err:     fmt.Errorf("some error"),
			},
			want: ": some error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.want {
				t.Errorf("UserError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestUserError_Unwrap verifies errors.Is works through the wrapper chain.
func TestUserError_Unwrap(t *testing.T) {
	underlying := fmt.Errorf("underlying error")
	ue := NewStorageError("Cannot write graph", "disk full", "free disk space", underlying)

	if !errors.Is(ue, underlying) {
		t.Error("errors.Is should find the underlying error")
	}
	if ue.Unwrap() != underlying {
		t.Errorf("Unwrap() = %v, want %v", ue.Unwrap(), underlying)
	}

	noWrap := NewInputError("bad flag", "", "")
	if noWrap.Unwrap() != nil {
		t.Error("Unwrap() on input error should be nil")
	}
}

// TestConstructors_ExitCodes verifies each constructor assigns its category code.
func TestConstructors_ExitCodes(t *testing.T) {
	tests := []struct {
		name string
		err  *UserError
		want int
	}{
		{"config", NewConfigError("m", "c", "f", nil), ExitConfig},
		{"storage", NewStorageError("m", "c", "f", nil), ExitStorage},
		{"network", NewNetworkError("m", "c", "f", nil), ExitNetwork},
		{"input", NewInputError("m", "c", "f"), ExitInput},
		{"permission", NewPermissionError("m", "c", "f", nil), ExitPermission},
		{"not found", NewNotFoundError("m", "c", "f"), ExitNotFound},
		{"internal", NewInternalError("m", "c", "f", nil), ExitInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.ExitCode != tt.want {
				t.Errorf("ExitCode = %d, want %d", tt.err.ExitCode, tt.want)
			}
		})
	}
}

// TestFormat_Sections verifies all three sections render and empties are omitted.
func TestFormat_Sections(t *testing.T) {
	full := NewStorageError(
		"Cannot open the vector index",
		"The database file is locked by another process",
		"Close other codeatlas instances",
		nil,
	)
	out := full.Format(true)
	for _, want := range []string{"Error: Cannot open the vector index", "Cause: The database file is locked", "Fix:   Close other codeatlas instances"} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q in %q", want, out)
		}
	}

	bare := NewInputError("bad query", "", "")
	out = bare.Format(true)
	if strings.Contains(out, "Cause:") || strings.Contains(out, "Fix:") {
		t.Errorf("Format() should omit empty sections, got %q", out)
	}
}

// TestToJSON verifies the JSON projection carries all fields.
func TestToJSON(t *testing.T) {
	ue := NewNetworkError("Cannot reach embedding API", "connection refused", "check OLLAMA_HOST", nil)
	j := ue.ToJSON()
	if j.Error != ue.Message || j.Cause != ue.Cause || j.Fix != ue.Fix || j.ExitCode != ExitNetwork {
		t.Errorf("ToJSON() = %+v does not match source %+v", j, ue)
	}
}
