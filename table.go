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

// Package quadprobe is an open-addressing set of integer keys using
// quadratic probing over a prime-sized slot array.
//
// # Layout
//
// A Table holds a slot array of capacity entries and a parallel array of
// control bytes, one per slot. A control byte is one of:
//
//	   empty: never occupied since the array was allocated
//	 deleted: a tombstone left behind by Remove
//	    full: the slot holds a live key
//
// The capacity is always prime. It starts at the smallest prime >= the
// requested initial capacity and every growth moves it to the smallest prime
// >= twice the current capacity.
//
// # Probing
//
// The home slot of a key is h(k) = k mod capacity, normalized to be
// non-negative so that h(-3) = 4 when capacity = 7. Attempt i of a probe
// visits slot (h(k) + i*i) mod capacity. Over an odd prime capacity the
// first capacity attempts reach exactly (capacity+1)/2 distinct slots, and
// every probe stops after capacity attempts: a probe that runs out of
// attempts is reported rather than looping. See probeSeq.
//
// Search walks the sequence until it finds the key or reaches an empty slot.
// Tombstones behave like full slots that never match, so a delete in the
// middle of a chain never hides the keys behind it. Insert walks the same
// sequence to the first empty slot, rejecting the key if it is already
// present, and places it in the first tombstone it passed or, failing that,
// in the empty slot.
//
// # Growth
//
// After a successful Insert the table grows if used/capacity reaches the load
// factor (0.8 by default). Growth allocates a fresh array and reinserts only
// the live keys, so tombstones are dropped. Because tombstones also lengthen
// probe chains they count against the load factor: when live keys plus
// tombstones reach it but live keys alone do not, the table is rebuilt at its
// current capacity, provided fewer than half the slots are live. Otherwise
// the tombstones stay in place until the next growth; only live keys ever
// make the table grow. Either way the load after a rebuild is below 1/2,
// which guarantees every live key finds a free slot within its probe limit.
//
// Key positions are stable between rebuilds. A rebuild may move any key.
//
// A Table is NOT goroutine-safe.
package quadprobe

import (
	"fmt"
	"strconv"
	"strings"
	"unsafe"

	"github.com/cockroachdb/quadprobe/internal/prime"
)

const debug = false

// Each slot in the table has a control byte describing its state.
type ctrl uint8

const (
	ctrlEmpty ctrl = iota
	ctrlDeleted
	ctrlFull
)

// SlotState is the state of a single slot as reported by Inspect.
type SlotState uint8

const (
	// SlotEmpty is a slot that has not held a key since the slot array was
	// allocated.
	SlotEmpty SlotState = iota
	// SlotTombstone is a slot whose key was removed.
	SlotTombstone
	// SlotOccupied is a slot holding a live key.
	SlotOccupied
)

func (s SlotState) String() string {
	switch s {
	case SlotEmpty:
		return "empty"
	case SlotTombstone:
		return "tombstone"
	case SlotOccupied:
		return "occupied"
	default:
		return fmt.Sprintf("SlotState(%d)", uint8(s))
	}
}

// SlotView is a read-only copy of a slot. Key is only meaningful when State
// is SlotOccupied.
type SlotView struct {
	State SlotState
	Key   int
}

// String renders the slot as "-" when empty, "x" for a tombstone, and the
// decimal key otherwise.
func (v SlotView) String() string {
	switch v.State {
	case SlotEmpty:
		return "-"
	case SlotTombstone:
		return "x"
	default:
		return strconv.Itoa(v.Key)
	}
}

// Table is a set of integer keys stored with open addressing and quadratic
// probing. Insert, Search and Remove are O(1) on average; Insert may rebuild
// the table inline.
type Table struct {
	// The allocator to use for the ctrls and slots slices.
	allocator Allocator
	// ctrls and slots are capacity in length.
	ctrls []ctrl
	slots []int
	// The total number of slots. Always prime.
	capacity int
	// The number of full slots (i.e. the number of keys in the table).
	used int
	// The number of deleted slots. Reset to zero by every rebuild.
	tombstones int
	// The value of used/capacity at which the table grows.
	loadFactor float64
}

// New constructs a new Table whose capacity is the smallest prime >=
// initialCapacity. An initialCapacity below 1 is treated as 1.
func New(initialCapacity int, options ...Option) *Table {
	t := &Table{
		allocator:  defaultAllocator{},
		loadFactor: DefaultLoadFactor,
	}

	for _, op := range options {
		op.apply(t)
	}

	if initialCapacity < 1 {
		initialCapacity = 1
	}
	t.resize(prime.Next(initialCapacity))
	t.checkInvariants()
	return t
}

// Close closes the table, releasing any memory back to its configured
// allocator. It is unnecessary to close a table using the default allocator.
// It is invalid to use a Table after it has been closed, though Close itself
// is idempotent.
func (t *Table) Close() {
	if t.capacity > 0 {
		t.allocator.FreeSlots(t.slots)
		t.allocator.FreeControls(unsafeConvertSlice[uint8](t.ctrls))
	}
	t.ctrls = nil
	t.slots = nil
	t.capacity = 0
	t.used = 0
	t.tombstones = 0
}

// Insert adds key to the table. It returns ErrDuplicateKey if the key is
// already present and ErrProbeLimitExceeded if no free slot was found within
// the probe limit; in both cases the table is left unchanged. A successful
// insert may grow or rebuild the table before returning.
func (t *Table) Insert(key int) error {
	seq := makeProbeSeq(t.hash(key), t.capacity)
	if debug {
		fmt.Printf("insert(%d): %s\n", key, seq)
	}

	// The scan continues past tombstones to the first empty slot even after
	// a candidate slot has been found, because the key may live further
	// along the chain.
	target := -1
probe:
	for ; seq.index < t.capacity; seq = seq.next() {
		i := seq.offset
		switch t.ctrls[i] {
		case ctrlFull:
			if t.slots[i] == key {
				if debug {
					fmt.Printf("insert(duplicate): index=%d key=%d\n", i, key)
				}
				return ErrDuplicateKey
			}
		case ctrlDeleted:
			if target < 0 {
				target = i
			}
		case ctrlEmpty:
			if target < 0 {
				target = i
			}
			break probe
		}
		if debug {
			fmt.Printf("insert(skipping): %s ctrl=%d\n", seq, t.ctrls[i])
		}
	}

	// If the probe limit was reached after passing a tombstone we still
	// claim it. Search visits exactly the same slots, so the key cannot be
	// present anywhere else.
	if target < 0 {
		if debug {
			fmt.Printf("insert(probe-limit): key=%d capacity=%d\n", key, t.capacity)
		}
		return ErrProbeLimitExceeded
	}

	if debug {
		fmt.Printf("insert(inserting): index=%d used=%d tombstones=%d\n", target, t.used+1, t.tombstones)
	}
	t.place(target, key)
	t.rehash()
	t.checkInvariants()
	return nil
}

// Search returns the index of the slot holding key, or ok=false if the key
// is not present. The index is stable until the table is rebuilt.
func (t *Table) Search(key int) (index int, ok bool) {
	return t.find(key)
}

// Contains reports whether key is present.
func (t *Table) Contains(key int) bool {
	_, ok := t.find(key)
	return ok
}

// Remove deletes key from the table, leaving a tombstone in its slot. It
// returns ErrNotFound if the key is not present.
func (t *Table) Remove(key int) error {
	i, ok := t.find(key)
	if !ok {
		if debug {
			fmt.Printf("remove(not-found): key=%d\n", key)
		}
		return ErrNotFound
	}

	t.ctrls[i] = ctrlDeleted
	t.slots[i] = 0
	t.used--
	t.tombstones++
	if debug {
		fmt.Printf("remove(%d): index=%d used=%d tombstones=%d\n", key, i, t.used, t.tombstones)
	}
	t.checkInvariants()
	return nil
}

// Inspect returns a copy of every slot in index order. The result has
// Capacity() entries.
func (t *Table) Inspect() []SlotView {
	views := make([]SlotView, t.capacity)
	for i := range views {
		switch t.ctrls[i] {
		case ctrlEmpty:
			views[i].State = SlotEmpty
		case ctrlDeleted:
			views[i].State = SlotTombstone
		default:
			views[i] = SlotView{State: SlotOccupied, Key: t.slots[i]}
		}
	}
	return views
}

// String renders the slots on a single line separated by spaces, using the
// notation of SlotView.String.
func (t *Table) String() string {
	var buf strings.Builder
	for i, v := range t.Inspect() {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(v.String())
	}
	return buf.String()
}

// All calls yield sequentially for each key present in the table, in slot
// order. If yield returns false, iteration stops. The table can be mutated
// during iteration, though there is no guarantee that the mutations will be
// visible to the iteration.
func (t *Table) All(yield func(key int) bool) {
	// Snapshot the capacity, controls, and slots so that iteration remains
	// valid if the table is rebuilt during iteration.
	capacity := t.capacity
	ctrls := t.ctrls
	slots := t.slots

	for i := 0; i < capacity; i++ {
		if ctrls[i] == ctrlFull {
			if !yield(slots[i]) {
				return
			}
		}
	}
}

// Clear removes all keys from the table, keeping its capacity. Tombstones are
// dropped too.
func (t *Table) Clear() {
	for i := 0; i < t.capacity; i++ {
		t.ctrls[i] = ctrlEmpty
		t.slots[i] = 0
	}
	t.used = 0
	t.tombstones = 0
	t.checkInvariants()
}

// Len returns the number of keys in the table.
func (t *Table) Len() int {
	return t.used
}

// Capacity returns the number of slots in the table.
func (t *Table) Capacity() int {
	return t.capacity
}

// Tombstones returns the number of slots holding a tombstone.
func (t *Table) Tombstones() int {
	return t.tombstones
}

// LoadFactor returns the ratio of keys to slots.
func (t *Table) LoadFactor() float64 {
	if t.capacity == 0 {
		return 0
	}
	return float64(t.used) / float64(t.capacity)
}

// hash returns the home slot of key: key mod capacity, normalized into
// [0, capacity) for negative keys.
func (t *Table) hash(key int) int {
	h := key % t.capacity
	if h < 0 {
		h += t.capacity
	}
	return h
}

// find walks the probe sequence for key. Tombstones never match and never
// stop the walk; an empty slot or the probe limit ends it.
func (t *Table) find(key int) (int, bool) {
	seq := makeProbeSeq(t.hash(key), t.capacity)
	if debug {
		fmt.Printf("find(%d): %s\n", key, seq)
	}

	for ; seq.index < t.capacity; seq = seq.next() {
		i := seq.offset
		switch t.ctrls[i] {
		case ctrlEmpty:
			if debug {
				fmt.Printf("find(not-found): %s\n", seq)
			}
			return -1, false
		case ctrlFull:
			if t.slots[i] == key {
				return i, true
			}
		}
	}
	if debug {
		fmt.Printf("find(probe-limit): key=%d capacity=%d\n", key, t.capacity)
	}
	return -1, false
}

// place stores key in slot i, which must be empty or deleted.
func (t *Table) place(i, key int) {
	if t.ctrls[i] == ctrlDeleted {
		t.tombstones--
	}
	t.ctrls[i] = ctrlFull
	t.slots[i] = key
	t.used++
}

// uncheckedInsert inserts a key known not to be in the table. Used when
// rebuilding, where the load is below 1/2 and a free slot within the probe
// limit is guaranteed.
func (t *Table) uncheckedInsert(key int) {
	for seq := makeProbeSeq(t.hash(key), t.capacity); seq.index < t.capacity; seq = seq.next() {
		if t.ctrls[seq.offset] != ctrlFull {
			t.place(seq.offset, key)
			return
		}
	}
	panic(fmt.Sprintf("quadprobe: no free slot for key %d while rebuilding\n%s", key, t.debugString()))
}

// overloaded reports whether n occupied slots reach the load factor.
func (t *Table) overloaded(n int) bool {
	return float64(n)/float64(t.capacity) >= t.loadFactor
}

// rehash grows the table once the live keys reach the load factor. If it is
// the tombstones that push the table over, they are dropped by rebuilding at
// the current capacity, but only while fewer than half the slots are live.
func (t *Table) rehash() {
	if !t.overloaded(t.used) {
		if t.overloaded(t.used+t.tombstones) && 2*t.used < t.capacity {
			t.resize(t.capacity)
		}
		return
	}

	t.resize(prime.Next(2 * t.capacity))
	// A very small load factor can require more than one doubling.
	for t.overloaded(t.used) {
		t.resize(prime.Next(2 * t.capacity))
	}
}

// resize allocates fresh arrays of newCapacity slots, reinserts every live
// key, and releases the old arrays. Tombstones are not carried over.
func (t *Table) resize(newCapacity int) {
	oldCtrls, oldSlots, oldCapacity := t.ctrls, t.slots, t.capacity

	t.slots = t.allocator.AllocSlots(newCapacity)
	t.ctrls = unsafeConvertSlice[ctrl](t.allocator.AllocControls(newCapacity))
	for i := range t.ctrls {
		t.ctrls[i] = ctrlEmpty
	}
	t.capacity = newCapacity
	t.used = 0
	t.tombstones = 0

	if debug {
		fmt.Printf("resize: capacity=%d->%d\n", oldCapacity, newCapacity)
	}

	for i := 0; i < oldCapacity; i++ {
		if oldCtrls[i] == ctrlFull {
			t.uncheckedInsert(oldSlots[i])
		}
	}

	if oldCapacity > 0 {
		t.allocator.FreeSlots(oldSlots)
		t.allocator.FreeControls(unsafeConvertSlice[uint8](oldCtrls))
	}
}

func (t *Table) checkInvariants() {
	if invariants {
		if err := t.validate(); err != nil {
			panic(fmt.Sprintf("invariant failed: %v\n%s", err, t.debugString()))
		}
	}
}

// validate verifies the structure of the table: the capacity is prime, the
// counters match the control bytes, every live key is found by a probe at
// the slot it occupies (which also rules out duplicates), and the load factor
// is respected.
func (t *Table) validate() error {
	if !prime.IsPrime(t.capacity) {
		return fmt.Errorf("capacity %d is not prime", t.capacity)
	}
	if len(t.ctrls) != t.capacity || len(t.slots) != t.capacity {
		return fmt.Errorf("capacity %d but %d ctrls and %d slots", t.capacity, len(t.ctrls), len(t.slots))
	}

	var used, deleted int
	for i := 0; i < t.capacity; i++ {
		switch c := t.ctrls[i]; c {
		case ctrlEmpty:
		case ctrlDeleted:
			deleted++
		case ctrlFull:
			key := t.slots[i]
			if j, ok := t.find(key); !ok || j != i {
				return fmt.Errorf("slot(%d): %d found at %d [ok=%t h=%d]", i, key, j, ok, t.hash(key))
			}
			used++
		default:
			return fmt.Errorf("ctrl(%d): unexpected %02x", i, uint8(c))
		}
	}

	if used != t.used {
		return fmt.Errorf("found %d used slots, but used count is %d", used, t.used)
	}
	if deleted != t.tombstones {
		return fmt.Errorf("found %d deleted slots, but tombstone count is %d", deleted, t.tombstones)
	}
	if t.overloaded(t.used) {
		return fmt.Errorf("load %d/%d reaches load factor %v", t.used, t.capacity, t.loadFactor)
	}
	return nil
}

func (t *Table) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d  tombstones=%d\n", t.capacity, t.used, t.tombstones)
	for i := 0; i < t.capacity; i++ {
		switch c := t.ctrls[i]; c {
		case ctrlEmpty:
			fmt.Fprintf(&buf, "  %4d: empty\n", i)
		case ctrlDeleted:
			fmt.Fprintf(&buf, "  %4d: deleted\n", i)
		case ctrlFull:
			fmt.Fprintf(&buf, "  %4d: %d [h=%d]\n", i, t.slots[i], t.hash(t.slots[i]))
		default:
			fmt.Fprintf(&buf, "  %4d: [ctrl=%02x]\n", i, uint8(c))
		}
	}
	return buf.String()
}

// probeSeq maintains the state for a probe sequence. The sequence is
//
//	p(i) := (hash + i^2) mod capacity
//
// computed incrementally using i^2 - (i-1)^2 = 2i-1 so that no intermediate
// value exceeds 3*capacity.
//
// For an odd prime capacity the values i^2 mod capacity for i in
// [0, capacity) take exactly (capacity+1)/2 distinct values, since i and capacity-i square to the
// same residue. The first (capacity+1)/2 probes are all distinct, which is why
// a table with load below 1/2 always finds a free slot. Callers stop once
// index reaches capacity.
type probeSeq struct {
	capacity int
	offset   int
	index    int
}

func makeProbeSeq(hash, capacity int) probeSeq {
	return probeSeq{
		capacity: capacity,
		offset:   hash,
		index:    0,
	}
}

func (s probeSeq) next() probeSeq {
	s.index++
	s.offset = (s.offset + 2*s.index - 1) % s.capacity
	return s
}

func (s probeSeq) String() string {
	return fmt.Sprintf("capacity=%d offset=%d index=%d", s.capacity, s.offset, s.index)
}

func unsafeConvertSlice[Dest any, Src any](s []Src) []Dest {
	return unsafe.Slice((*Dest)(unsafe.Pointer(unsafe.SliceData(s))), len(s))
}
