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

import "fmt"

// DefaultLoadFactor is the fraction of occupied slots at which a Table grows.
const DefaultLoadFactor = 0.8

// Option configures a Table while it is being created.
type Option interface {
	apply(t *Table)
}

type loadFactorOption struct {
	loadFactor float64
}

func (op loadFactorOption) apply(t *Table) {
	if !(op.loadFactor > 0 && op.loadFactor < 1) {
		panic(fmt.Sprintf("quadprobe: load factor %v not in (0, 1)", op.loadFactor))
	}
	t.loadFactor = op.loadFactor
}

// WithLoadFactor is an option to specify the occupancy threshold at which
// the table grows. The value must lie in (0, 1).
func WithLoadFactor(loadFactor float64) Option {
	return loadFactorOption{loadFactor}
}

// Allocator specifies an interface for allocating and releasing memory used
// by a Table. The default allocator utilizes Go's builtin make() and allows
// the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that slots and
// controls be freed then Table.Close must be called in order to ensure
// FreeSlots and FreeControls are called.
type Allocator interface {
	// AllocSlots should return a slice equivalent to make([]int, n).
	AllocSlots(n int) []int

	// AllocControls should return a slice equivalent to make([]uint8, n).
	AllocControls(n int) []uint8

	// FreeSlots can optional release the memory associated with the supplied
	// slice that is guaranteed to have been allocated by AllocSlots.
	FreeSlots(v []int)

	// FreeControls can optional release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocControls.
	FreeControls(v []uint8)
}

type defaultAllocator struct{}

func (defaultAllocator) AllocSlots(n int) []int {
	return make([]int, n)
}

func (defaultAllocator) AllocControls(n int) []uint8 {
	return make([]uint8, n)
}

func (defaultAllocator) FreeSlots(v []int) {
}

func (defaultAllocator) FreeControls(v []uint8) {
}

type allocatorOption struct {
	allocator Allocator
}

func (op allocatorOption) apply(t *Table) {
	t.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Table.
func WithAllocator(allocator Allocator) Option {
	return allocatorOption{allocator}
}
