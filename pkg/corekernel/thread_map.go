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

// HostThreadID identifies the OS thread driving a CoreRunner. In
// practice this is the goroutine's locked OS thread id obtained after
// runtime.LockOSThread; corekernel treats it as opaque.
type HostThreadID uint64

// ThreadToCoreMap maps a host thread to the CoreRunner it drives
// (spec.md §4.5). Populated in CpuManager.StartThreads and re-bound for
// core 0 on every RunLoop entry (different UI host threads may drive
// the single-core manager loop across sessions); cleared at Shutdown.
//
// Per spec.md §9's guidance this is an explicit map with insert/remove
// at thread-birth/death rather than thread-local storage, so it stays
// inspectable at shutdown — the same shape as gvisor's goid-tagged
// Task.run goroutines, made explicit instead of implicit.
type ThreadToCoreMap struct {
	mu      sync.RWMutex
	runners map[HostThreadID]*CoreRunner
}

// NewThreadToCoreMap returns an empty map.
func NewThreadToCoreMap() *ThreadToCoreMap {
	return &ThreadToCoreMap{runners: make(map[HostThreadID]*CoreRunner)}
}

// Bind registers id as the current driver of runner, overwriting any
// prior binding for id.
func (m *ThreadToCoreMap) Bind(id HostThreadID, runner *CoreRunner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runners[id] = runner
}

// Unbind removes id's binding, if any.
func (m *ThreadToCoreMap) Unbind(id HostThreadID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runners, id)
}

// Lookup returns the CoreRunner bound to id. Lookup failure while a
// core thread is running is a programmer error (spec.md §4.5): callers
// on the hot path should use MustLookup instead.
func (m *ThreadToCoreMap) Lookup(id HostThreadID) (*CoreRunner, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runners[id]
	return r, ok
}

// MustLookup returns the CoreRunner bound to id, panicking with an
// error that wraps ErrSchedulerInvariant if none is bound. Use from code paths the spec
// guarantees always run on a bound host thread (e.g.
// CpuManager.GetCurrentCoreRunner in multi-core mode).
func (m *ThreadToCoreMap) MustLookup(id HostThreadID) *CoreRunner {
	r, ok := m.Lookup(id)
	if !ok {
		panic(&schedulerInvariantPanic{id: id})
	}
	return r
}

// Clear removes every binding. Called at CpuManager.Shutdown.
func (m *ThreadToCoreMap) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runners = make(map[HostThreadID]*CoreRunner)
}

// Len reports the number of currently bound threads, mainly useful in
// tests asserting Shutdown cleared the map.
func (m *ThreadToCoreMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runners)
}

type schedulerInvariantPanic struct {
	id HostThreadID
}

func (p *schedulerInvariantPanic) Error() string {
	return "corekernel: no CoreRunner bound for host thread"
}

func (p *schedulerInvariantPanic) Unwrap() error { return ErrSchedulerInvariant }
