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

package corekernel

import "testing"

func TestCheckAndClearMatchesOwnReservation(t *testing.T) {
	m := NewExclusiveMonitor(4)
	m.Reserve(0, 0x1000, 8)
	if !m.CheckAndClear(0, 0x1000, 8) {
		t.Fatal("expected CheckAndClear to match the reservation just taken")
	}
	// Reservation is consumed: a second CheckAndClear for the same
	// address must fail.
	if m.CheckAndClear(0, 0x1000, 8) {
		t.Fatal("expected second CheckAndClear to fail: reservation already cleared")
	}
}

func TestCheckAndClearFailsWithoutReservation(t *testing.T) {
	m := NewExclusiveMonitor(4)
	if m.CheckAndClear(0, 0x1000, 8) {
		t.Fatal("expected CheckAndClear to fail: no reservation was ever taken")
	}
}

func TestConcurrentStoreInvalidatesOtherCoreReservation(t *testing.T) {
	m := NewExclusiveMonitor(4)
	m.Reserve(0, 0x2000, 4)
	// Core 1 makes an overlapping plain store.
	m.NotifyStore(0x2000, 4)
	if m.CheckAndClear(0, 0x2000, 4) {
		t.Fatal("expected core 0's reservation to be invalidated by core 1's store")
	}
}

func TestNonOverlappingStoreDoesNotInvalidate(t *testing.T) {
	m := NewExclusiveMonitor(4)
	m.Reserve(0, 0x3000, 4)
	m.NotifyStore(0x4000, 4)
	if !m.CheckAndClear(0, 0x3000, 4) {
		t.Fatal("non-overlapping store should not invalidate an unrelated reservation")
	}
}

func TestCheckAndClearClearsOverlappingReservationsOnOtherCores(t *testing.T) {
	m := NewExclusiveMonitor(4)
	m.Reserve(0, 0x1000, 8)
	m.Reserve(1, 0x1004, 8) // overlaps core 0's range

	if !m.CheckAndClear(0, 0x1000, 8) {
		t.Fatal("expected core 0's store-conditional to succeed")
	}
	if m.CheckAndClear(1, 0x1004, 8) {
		t.Fatal("expected core 1's reservation to have been invalidated by core 0's commit")
	}
}

func TestClearAllDropsOnlyThatCore(t *testing.T) {
	m := NewExclusiveMonitor(2)
	m.Reserve(0, 0x10, 4)
	m.Reserve(1, 0x20, 4)
	m.ClearAll(0)
	if m.CheckAndClear(0, 0x10, 4) {
		t.Fatal("expected core 0's reservation to be gone after ClearAll")
	}
	if !m.CheckAndClear(1, 0x20, 4) {
		t.Fatal("expected core 1's reservation to survive core 0's ClearAll")
	}
}
