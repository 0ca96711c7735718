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

import "sync"

// reservation is one core's outstanding load-linked address range.
type reservation struct {
	addr  uint64
	width uint32
	valid bool
}

func (r reservation) overlaps(addr uint64, width uint32) bool {
	if !r.valid {
		return false
	}
	rEnd := r.addr + uint64(r.width)
	end := addr + uint64(width)
	return r.addr < end && addr < rEnd
}

// ExclusiveMonitor implements load-linked/store-conditional reservation
// tracking for the guest's atomic instructions (spec.md §4.2). One
// reservation slot per core; any store to an overlapping range, from
// any core, invalidates it.
//
// A single mutex serializes Reserve/CheckAndClear/ClearAll across all
// cores. This is the "single lock" option spec.md §4.2 explicitly
// allows, and it gives CheckAndClear the linearization point the spec
// requires for free: the store side and the check side take the same
// lock, so a successful CheckAndClear can never straddle a concurrent
// overlapping store from another core.
type ExclusiveMonitor struct {
	mu           sync.Mutex
	reservations []reservation // indexed by CoreIndex
}

// NewExclusiveMonitor returns a monitor with numCores empty reservation
// slots.
func NewExclusiveMonitor(numCores int) *ExclusiveMonitor {
	return &ExclusiveMonitor{reservations: make([]reservation, numCores)}
}

// Reserve records a reservation for core, overwriting any prior one.
func (m *ExclusiveMonitor) Reserve(core CoreIndex, addr uint64, width uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservations[core] = reservation{addr: addr, width: width, valid: true}
}

// CheckAndClear returns true iff core held a matching reservation for
// [addr, addr+width); it always clears core's own reservation, and it
// clears (invalidates) any other core's reservation that overlaps the
// written range, per the load-linked/store-conditional semantics of
// §4.2: a store commits globally regardless of whether it was the
// reservation holder's own store-conditional or a plain store from
// elsewhere.
func (m *ExclusiveMonitor) CheckAndClear(core CoreIndex, addr uint64, width uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := m.reservations[core].valid && m.reservations[core].addr == addr && m.reservations[core].width == width
	for i := range m.reservations {
		if m.reservations[i].overlaps(addr, width) {
			m.reservations[i] = reservation{}
		}
	}
	return matched
}

// ClearAll drops core's reservation without checking or clearing
// others.
func (m *ExclusiveMonitor) ClearAll(core CoreIndex) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservations[core] = reservation{}
}

// NotifyStore invalidates any reservation (on any core, including the
// writer's own) overlapping [addr, addr+width). Called for ordinary
// (non store-conditional) writes so that a plain store from core B
// still invalidates core A's outstanding reservation, matching
// spec.md §8 property 5 / scenario S6.
func (m *ExclusiveMonitor) NotifyStore(addr uint64, width uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.reservations {
		if m.reservations[i].overlaps(addr, width) {
			m.reservations[i] = reservation{}
		}
	}
}
