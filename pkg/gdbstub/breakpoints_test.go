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

import "testing"

func TestBreakpointInsertAndCheck(t *testing.T) {
	tbl := NewBreakpointTable()
	if err := tbl.Insert(0x1000, BreakExecute); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if !tbl.Check(0x1000, BreakExecute) {
		t.Fatal("expected Check to find the inserted breakpoint")
	}
	if tbl.Check(0x1000, BreakWrite) {
		t.Fatal("Check should not match a different kind at the same address")
	}
}

func TestBreakpointInsertDuplicateFails(t *testing.T) {
	tbl := NewBreakpointTable()
	if err := tbl.Insert(0x2000, BreakWrite); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	err := tbl.Insert(0x2000, BreakWrite)
	if err == nil {
		t.Fatal("expected duplicate insertion to fail")
	}
}

func TestBreakpointInsertZeroKindFails(t *testing.T) {
	tbl := NewBreakpointTable()
	if err := tbl.Insert(0x3000, BreakNone); err == nil {
		t.Fatal("expected BreakNone to be rejected")
	}
}

func TestBreakpointCheckAccessMatchesReadWriteAccess(t *testing.T) {
	tbl := NewBreakpointTable()
	tbl.Insert(0x4000, BreakRead)
	if !tbl.Check(0x4000, BreakAccess) {
		t.Fatal("expected BreakAccess check to match a BreakRead entry")
	}

	tbl2 := NewBreakpointTable()
	tbl2.Insert(0x4000, BreakWrite)
	if !tbl2.Check(0x4000, BreakAccess) {
		t.Fatal("expected BreakAccess check to match a BreakWrite entry")
	}
}

func TestBreakpointRemove(t *testing.T) {
	tbl := NewBreakpointTable()
	tbl.Insert(0x5000, BreakExecute)
	if !tbl.Remove(0x5000, BreakExecute) {
		t.Fatal("expected Remove to report the breakpoint existed")
	}
	if tbl.Check(0x5000, BreakExecute) {
		t.Fatal("expected breakpoint gone after Remove")
	}
	if tbl.Remove(0x5000, BreakExecute) {
		t.Fatal("expected a second Remove to report false")
	}
}

func TestGetNextBreakpointFromAddress(t *testing.T) {
	tbl := NewBreakpointTable()
	tbl.Insert(0x100, BreakExecute)
	tbl.Insert(0x200, BreakExecute)
	tbl.Insert(0x150, BreakWrite)

	bp := tbl.GetNextBreakpointFromAddress(0x120, BreakExecute)
	if bp.Address != 0x200 {
		t.Fatalf("expected nearest Execute breakpoint at or after 0x120 to be 0x200, got %#x", bp.Address)
	}

	bp = tbl.GetNextBreakpointFromAddress(0x100, BreakExecute)
	if bp.Address != 0x100 {
		t.Fatalf("expected exact match at 0x100, got %#x", bp.Address)
	}
}

func TestGetNextBreakpointFromAddressReturnsSentinelWhenNoneFound(t *testing.T) {
	tbl := NewBreakpointTable()
	tbl.Insert(0x100, BreakExecute)

	bp := tbl.GetNextBreakpointFromAddress(0x200, BreakExecute)
	if bp.Kind != BreakNone {
		t.Fatalf("expected sentinel BreakNone, got %+v", bp)
	}
}

func TestBreakpointRemoveAll(t *testing.T) {
	tbl := NewBreakpointTable()
	tbl.Insert(0x10, BreakExecute)
	tbl.Insert(0x20, BreakWrite)
	tbl.RemoveAll()
	if tbl.Len() != 0 {
		t.Fatalf("expected 0 breakpoints after RemoveAll, got %d", tbl.Len())
	}
}

func TestBreakpointSnapshotIsAddressOrdered(t *testing.T) {
	tbl := NewBreakpointTable()
	tbl.Insert(0x300, BreakExecute)
	tbl.Insert(0x100, BreakExecute)
	tbl.Insert(0x200, BreakExecute)

	snap := tbl.snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(snap))
	}
	for i := 1; i < len(snap); i++ {
		if snap[i-1].Address > snap[i].Address {
			t.Fatalf("snapshot not address-ordered: %+v", snap)
		}
	}
}
