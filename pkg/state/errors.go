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

package state

import "fmt"

// Error codes for state tracking failures.
const (
	ErrSnapshotRead    = "snapshot_read_failed"
	ErrSnapshotWrite   = "snapshot_write_failed"
	ErrSnapshotCorrupt = "snapshot_corrupt"
	ErrHashUnavailable = "hash_unavailable"
)

// Error is a typed state-tracking failure. Snapshot read/write errors are
// fatal for the update cycle; per-file hash errors are recorded on the
// change set and the cycle continues.
type Error struct {
	Code       string
	Repository string
	Path       string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Code
	if e.Repository != "" {
		msg += " repo=" + e.Repository
	}
	if e.Path != "" {
		msg += " path=" + e.Path
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }
