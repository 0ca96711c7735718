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

import (
	"sync"
	"testing"
)

// fakeDebugHooks is a minimal DebugHooks recorder for testing
// CoreRunner's interaction with the debugger surface without pulling
// in pkg/gdbstub (which itself imports corekernel).
type fakeDebugHooks struct {
	mu        sync.Mutex
	halted    bool
	stepFlags map[ThreadHandle]bool
	traps     []trapCall
	breaks    int
}

type trapCall struct {
	thread ThreadHandle
	signal uint8
}

func newFakeDebugHooks() *fakeDebugHooks {
	return &fakeDebugHooks{stepFlags: make(map[ThreadHandle]bool)}
}

func (f *fakeDebugHooks) HaltFlag() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.halted
}

func (f *fakeDebugHooks) ThreadStepFlag(thread ThreadHandle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stepFlags[thread]
}

func (f *fakeDebugHooks) Break(isMemoryBreak bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.halted = true
	f.breaks++
}

func (f *fakeDebugHooks) SendTrap(thread ThreadHandle, trapNo uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.traps = append(f.traps, trapCall{thread, trapNo})
}

func (f *fakeDebugHooks) setStep(thread ThreadHandle, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stepFlags[thread] = v
}

var _ DebugHooks = (*fakeDebugHooks)(nil)

func newTestRunner(t *testing.T) (*CoreRunner, *roundRobinScheduler, *fakeDebugHooks) {
	t.Helper()
	sched := newRoundRobinScheduler()
	debug := newFakeDebugHooks()
	core := newInterpreterCore()
	timing := NewFreeRunTiming()
	monitor := NewExclusiveMonitor(NumCores)
	var lock sync.Mutex
	runner := NewCoreRunner(0, core, sched, timing, debug, monitor, &lock)
	return runner, sched, debug
}

func TestRunLoopIdleWhenNoThreadRunnable(t *testing.T) {
	runner, _, debug := newTestRunner(t)
	if err := runner.RunLoop(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if debug.HaltFlag() {
		t.Fatal("idle slice should not set halt_flag")
	}
}

func TestRunLoopSkipsExecutionWhenHalted(t *testing.T) {
	runner, sched, debug := newTestRunner(t)
	sched.AddThread(ThreadHandle(1))
	debug.Break(false)

	if err := runner.RunLoop(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !debug.HaltFlag() {
		t.Fatal("halt_flag should remain set")
	}
}

func TestRunLoopHonorsForcedSingleStep(t *testing.T) {
	runner, sched, debug := newTestRunner(t)
	sched.AddThread(ThreadHandle(7))
	debug.setStep(ThreadHandle(7), true)

	if err := runner.RunLoop(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !debug.HaltFlag() {
		t.Fatal("forcing a single step should call Break, setting halt_flag")
	}
	if len(debug.traps) != 1 || debug.traps[0].thread != ThreadHandle(7) || debug.traps[0].signal != 5 {
		t.Fatalf("expected a single SIGTRAP stop-reply for thread 7, got %+v", debug.traps)
	}
}

func TestRunLoopRunsNormallyWithRunnableThread(t *testing.T) {
	runner, sched, debug := newTestRunner(t)
	sched.AddThread(ThreadHandle(3))

	if err := runner.RunLoop(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if debug.HaltFlag() {
		t.Fatal("normal execution should not set halt_flag")
	}
}

func TestRunLoopConvertsExecutionFaultToTrap(t *testing.T) {
	sched := newRoundRobinScheduler()
	sched.AddThread(ThreadHandle(9))
	debug := newFakeDebugHooks()
	core := &faultingCore{fault: &ArchExecutionFault{Kind: FaultMemoryPermission, Addr: 0x40}}
	monitor := NewExclusiveMonitor(NumCores)
	var lock sync.Mutex
	runner := NewCoreRunner(0, core, sched, NewFreeRunTiming(), debug, monitor, &lock)

	if err := runner.RunLoop(true); err != nil {
		t.Fatalf("RunLoop must not propagate ArchCore errors: %v", err)
	}
	if !debug.HaltFlag() {
		t.Fatal("execution fault should set halt_flag")
	}
	if len(debug.traps) != 1 || debug.traps[0].signal != 11 {
		t.Fatalf("expected a single SIGSEGV trap, got %+v", debug.traps)
	}
}

// faultingCore always returns fault from Run/Step, to exercise
// CoreRunner.handleExecutionFault.
type faultingCore struct {
	fault error
}

func (c *faultingCore) Run() error                                { return c.fault }
func (c *faultingCore) Step() error                               { return c.fault }
func (c *faultingCore) Stop()                                     {}
func (c *faultingCore) ReadReg(reg int) (uint64, error)           { return 0, nil }
func (c *faultingCore) WriteReg(reg int, value uint64) error      { return nil }
func (c *faultingCore) PageTableChanged()                         {}
func (c *faultingCore) ClearInstructionCache(addr, length uint64) {}
func (c *faultingCore) ClearExclusiveState()                      {}

var _ ArchCore = (*faultingCore)(nil)

func TestOnlyOneRunLoopAtATimePerRunner(t *testing.T) {
	runner, sched, _ := newTestRunner(t)
	sched.AddThread(ThreadHandle(1))

	// runMu already enforces mutual exclusion; this just documents that
	// eight goroutines calling RunLoop concurrently on one runner don't
	// deadlock or race (the race detector covers the rest).
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runner.RunLoop(true)
		}()
	}
	wg.Wait()
}
