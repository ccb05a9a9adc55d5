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

package lang

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		path string
		want Language
	}{
		{"src/auth/login.ts", TypeScript},
		{"src/App.tsx", TypeScript},
		{"lib/util.js", JavaScript},
		{"components/Button.jsx", JavaScript},
		{"scripts/build.mjs", JavaScript},
		{"Services/UserService.cs", CSharp},
		{"README.md", Unknown},
		{"Makefile", Unknown},
		{"data.json", Unknown},
		{"SRC/LOGIN.TS", TypeScript}, // extension matching is case-insensitive
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := Detect(tt.path); got != tt.want {
				t.Errorf("Detect(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestIsJSX(t *testing.T) {
	if !IsJSX("a.tsx") || !IsJSX("b.jsx") {
		t.Error("tsx/jsx should be JSX variants")
	}
	if IsJSX("a.ts") || IsJSX("b.js") || IsJSX("c.cs") {
		t.Error("ts/js/cs are not JSX variants")
	}
}

func TestIsSupported(t *testing.T) {
	if !IsSupported("x.ts") || IsSupported("x.yaml") {
		t.Error("IsSupported mismatch")
	}
}
