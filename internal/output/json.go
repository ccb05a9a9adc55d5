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

// Package output writes command results to stdout. Commands print
// human-readable text themselves; under --json they hand their result
// struct to this package, which emits a single pretty-printed document.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// JSON writes v to stdout as indented JSON with a trailing newline. Every
// --json code path in the CLI funnels through here so the output shape
// stays uniform across commands.
func JSON(v any) error {
	return JSONTo(os.Stdout, v)
}

// JSONTo writes v to w as indented JSON. Split out from JSON so tests can
// capture the bytes.
func JSONTo(w io.Writer, v any) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %T: %w", v, err)
	}
	buf = append(buf, '\n')
	_, err = w.Write(buf)
	return err
}
