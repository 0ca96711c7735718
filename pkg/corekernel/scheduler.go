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

// roundRobinScheduler is the default PerCoreScheduler: a fixed pool of
// threads bound to this core, cycled in insertion order. It exists so
// InterpreterCoreFactory (archcore_variants.go) and tests have a real
// PerCoreScheduler to exercise instead of only a mock.
type roundRobinScheduler struct {
	mu      sync.Mutex
	threads []ThreadHandle
	cursor  int
	current ThreadHandle
	hasCur  bool
	step    map[ThreadHandle]bool
}

func newRoundRobinScheduler() *roundRobinScheduler {
	return &roundRobinScheduler{step: make(map[ThreadHandle]bool)}
}

// AddThread registers thread as schedulable on this core. Tests call
// this directly; a real scheduler would populate it from the guest's
// thread-creation syscalls.
func (s *roundRobinScheduler) AddThread(thread ThreadHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.threads {
		if t == thread {
			return
		}
	}
	s.threads = append(s.threads, thread)
}

// RemoveThread drops thread from the pool.
func (s *roundRobinScheduler) RemoveThread(thread ThreadHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.threads {
		if t == thread {
			s.threads = append(s.threads[:i], s.threads[i+1:]...)
			break
		}
	}
	if s.hasCur && s.current == thread {
		s.hasCur = false
	}
}

func (s *roundRobinScheduler) SelectThread(core CoreIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.threads) == 0 {
		s.hasCur = false
		return
	}
	s.cursor = s.cursor % len(s.threads)
	s.current = s.threads[s.cursor]
	s.hasCur = true
	s.cursor++
}

// TryDoContextSwitch is a no-op: this scheduler carries no
// architectural state of its own to save or restore, it only sequences
// ThreadHandles.
func (s *roundRobinScheduler) TryDoContextSwitch() {}

func (s *roundRobinScheduler) GetCurrentThread(core CoreIndex) (ThreadHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.hasCur
}

func (s *roundRobinScheduler) StepFlag(thread ThreadHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step[thread]
}

// SetStepFlag lets a test (or a future internal stepping need) mark
// thread for a single-step slice independently of GdbServer's own
// per_thread_step table.
func (s *roundRobinScheduler) SetStepFlag(thread ThreadHandle, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v {
		s.step[thread] = true
	} else {
		delete(s.step, thread)
	}
}

var _ PerCoreScheduler = (*roundRobinScheduler)(nil)
