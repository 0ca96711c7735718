// Copyright 2026 The Corevisor Authors.
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

package gdbstub

import (
	"fmt"
	"sync"

	"github.com/google/btree"
	"golang.org/x/exp/slices"
)

// BreakpointKind enumerates breakpoint types, spec.md §3. BreakNone is
// the zero value and identifies the sentinel returned by
// GetNextBreakpointFromAddress when nothing matches.
type BreakpointKind int

const (
	BreakNone BreakpointKind = iota
	BreakExecute
	BreakRead
	BreakWrite
	BreakAccess
)

// Breakpoint is one entry in the BreakpointTable, keyed by
// (Address, Kind).
type Breakpoint struct {
	Address uint64
	Kind    BreakpointKind
}

func less(a, b Breakpoint) bool {
	if a.Address != b.Address {
		return a.Address < b.Address
	}
	return a.Kind < b.Kind
}

// BreakpointTable is the ordered (address, type) breakpoint set from
// spec.md §3/§4.6: no duplicate (address, type) entries, Access is
// stored as a single entry rather than as separate Read+Write entries,
// and it must support a "nearest address ≥ addr" query.
//
// Backed by github.com/google/btree (already in the teacher's own
// go.mod) rather than a sorted slice: insert/remove/nearest-neighbor
// are all O(log n), and the ordering google/btree maintains natively
// matches the "ordered by address" invariant spec.md calls for.
type BreakpointTable struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[Breakpoint]
}

// NewBreakpointTable returns an empty table.
func NewBreakpointTable() *BreakpointTable {
	return &BreakpointTable{tree: btree.NewG(32, less)}
}

// Insert adds a breakpoint at (addr, kind). Returns an error wrapping
// ErrBreakpointInsertion (the gdbstub wire layer reports this as E01)
// if kind is BreakNone or a breakpoint of that kind already exists at
// addr.
func (t *BreakpointTable) Insert(addr uint64, kind BreakpointKind) error {
	if kind == BreakNone {
		return fmt.Errorf("%w: invalid breakpoint kind", ErrBreakpointInsertion)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	bp := Breakpoint{Address: addr, Kind: kind}
	if _, exists := t.tree.Get(bp); exists {
		return fmt.Errorf("%w: duplicate breakpoint at %#x", ErrBreakpointInsertion, addr)
	}
	t.tree.ReplaceOrInsert(bp)
	return nil
}

// Remove deletes the breakpoint at (addr, kind), returning whether one
// was present.
func (t *BreakpointTable) Remove(addr uint64, kind BreakpointKind) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, existed := t.tree.Delete(Breakpoint{Address: addr, Kind: kind})
	return existed
}

// Check performs the exact-match lookup CheckBreakpoint specifies: for
// kind == BreakAccess it matches an entry of kind Read, Write, or
// Access at addr; for any other kind it matches only that exact kind.
func (t *BreakpointTable) Check(addr uint64, kind BreakpointKind) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if kind == BreakAccess {
		for _, k := range [3]BreakpointKind{BreakRead, BreakWrite, BreakAccess} {
			if _, ok := t.tree.Get(Breakpoint{Address: addr, Kind: k}); ok {
				return true
			}
		}
		return false
	}
	_, ok := t.tree.Get(Breakpoint{Address: addr, Kind: kind})
	return ok
}

// GetNextBreakpointFromAddress returns the minimum-address entry of the
// given kind with address ≥ addr, or the sentinel {0, BreakNone} if
// none exists.
func (t *BreakpointTable) GetNextBreakpointFromAddress(addr uint64, kind BreakpointKind) Breakpoint {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var found Breakpoint
	t.tree.AscendGreaterOrEqual(Breakpoint{Address: addr, Kind: BreakNone}, func(bp Breakpoint) bool {
		if bp.Kind == kind {
			found = bp
			return false
		}
		return true
	})
	return found
}

// Len reports the number of breakpoints currently tracked.
func (t *BreakpointTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tree.Len()
}

// RemoveAll clears every breakpoint, called from Server.Shutdown.
func (t *BreakpointTable) RemoveAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tree.Clear(false)
}

// snapshot returns every breakpoint in address order, for diagnostic
// qXfer-style introspection; x/exp/slices.SortFunc keeps the result
// stable even though the btree iteration already produces it ordered,
// so callers don't come to depend on btree's exact traversal order.
func (t *BreakpointTable) snapshot() []Breakpoint {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Breakpoint, 0, t.tree.Len())
	t.tree.Ascend(func(bp Breakpoint) bool {
		out = append(out, bp)
		return true
	})
	slices.SortFunc(out, func(a, b Breakpoint) int {
		switch {
		case a.Address != b.Address:
			if a.Address < b.Address {
				return -1
			}
			return 1
		case a.Kind != b.Kind:
			if a.Kind < b.Kind {
				return -1
			}
			return 1
		default:
			return 0
		}
	})
	return out
}
