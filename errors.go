// Copyright 2024 The Cockroach Authors
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

package quadprobe

import "errors"

// The outcomes below are expected and leave the table unchanged. They are
// returned rather than logged; compare with errors.Is.
var (
	// ErrDuplicateKey is returned by Insert when the key is already present.
	ErrDuplicateKey = errors.New("quadprobe: duplicate key")
	// ErrProbeLimitExceeded is returned by Insert when the probe sequence
	// visited capacity positions without finding a free slot. Quadratic
	// probing over an odd prime capacity only reaches (capacity+1)/2
	// distinct slots, so this can happen on a dense table.
	ErrProbeLimitExceeded = errors.New("quadprobe: probe limit exceeded")
	// ErrNotFound is returned by Remove when the key is not present.
	ErrNotFound = errors.New("quadprobe: key not found")
)
