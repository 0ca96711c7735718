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

	"github.com/quadcore/corevisor/internal/corelog"
)

// CoreRunner is the per-core run loop (spec.md §4.3). Exactly one host
// thread drives a given CoreRunner at a time; in single-core mode that
// thread is CpuManager's own.
//
// The slice algorithm below follows the same shape as gvisor's
// Task.run/runApp.execute pair in task_run.go: check for a
// stop-equivalent condition first (doStop there, the halt_flag check
// here), dispatch to the execution engine, then fold the result back
// into scheduler/timing state. Where task_run.go tail-calls between
// taskRunState values, RunLoop inlines the equivalent steps directly
// since spec.md §4.3 defines a fixed, non-recursive state sequence.
type CoreRunner struct {
	index     CoreIndex
	core      ArchCore
	scheduler PerCoreScheduler
	timing    Timing
	debug     DebugHooks

	// monitor is this process's shared ExclusiveMonitor (spec.md §4.2).
	// CoreRunner's own use of it is narrow: Shutdown drops this core's
	// reservation so ownership of the monitor's per-core state is real
	// rather than only CpuManager holding a pointer nothing reads.
	// Store-side invalidation (Reserve/CheckAndClear/NotifyStore) is
	// the memory subsystem's concern (out of scope, spec.md §1), driven
	// directly against the same *ExclusiveMonitor CpuManager owns.
	monitor *ExclusiveMonitor

	// kernelLock is the global scheduler lock Reschedule acquires
	// (spec.md §4.3a, §5): held across scheduler state mutations only,
	// never across ArchCore execution.
	kernelLock *sync.Mutex

	// runMu enforces spec.md §8 property 1: at most one host thread is
	// ever inside RunLoop for this core at a time.
	runMu sync.Mutex
}

// NewCoreRunner constructs a CoreRunner for core, bound to the given
// execution engine, scheduler, timing, debug hooks, the process's
// shared ExclusiveMonitor, and the process's shared kernel lock.
// monitor may be nil (e.g. in tests that don't exercise LL/SC), in
// which case Shutdown skips clearing a reservation.
func NewCoreRunner(index CoreIndex, core ArchCore, scheduler PerCoreScheduler, timing Timing, debug DebugHooks, monitor *ExclusiveMonitor, kernelLock *sync.Mutex) *CoreRunner {
	return &CoreRunner{
		index:      index,
		core:       core,
		scheduler:  scheduler,
		timing:     timing,
		debug:      debug,
		monitor:    monitor,
		kernelLock: kernelLock,
	}
}

// Index returns this runner's CoreIndex.
func (r *CoreRunner) Index() CoreIndex { return r.index }

// CurrentThread reports the thread the scheduler currently considers
// runnable on this core, for diagnostic snapshots (CpuManager.Status).
func (r *CoreRunner) CurrentThread() (ThreadHandle, bool) {
	return r.scheduler.GetCurrentThread(r.index)
}

// RunLoop executes one scheduling slice on this core (spec.md §4.3).
// If tight, ArchCore.Run is used (may execute many instructions before
// returning); otherwise ArchCore.Step executes exactly one instruction.
func (r *CoreRunner) RunLoop(tight bool) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	r.reschedule()

	thread, ok := r.scheduler.GetCurrentThread(r.index)
	if !ok {
		// Step 3: no runnable thread. Advance timing to the next
		// event rather than spinning, then request a reschedule at
		// the next safe point.
		r.timing.Idle()
		r.prepareReschedule()
		r.reschedule()
		return nil
	}

	if r.debug.HaltFlag() {
		// Step 4: the debugger halted everything. Do not advance
		// idle cycles here — doing so while halted deadlocks guest
		// timers waiting on real wall-clock progress (spec.md §4.3
		// rationale).
		r.reschedule()
		return nil
	}

	forceSingleStep := false
	if r.debug.ThreadStepFlag(thread) {
		r.debug.Break(false)
		forceSingleStep = true
	}

	var err error
	if tight && !forceSingleStep {
		err = r.core.Run()
	} else {
		err = r.core.Step()
	}
	if err != nil {
		r.handleExecutionFault(thread, err)
	} else if forceSingleStep {
		// The step the debugger asked for completed cleanly: deliver
		// the stop-reply it's waiting on (spec.md §4.6 step protocol,
		// §8 scenario S3). A faulting step already got its trap from
		// handleExecutionFault above.
		r.debug.SendTrap(thread, 5)
	}

	r.timing.Advance()
	r.reschedule()
	return nil
}

// SingleStep executes exactly one instruction; equivalent to
// RunLoop(false).
func (r *CoreRunner) SingleStep() error {
	return r.RunLoop(false)
}

// PrepareReschedule requests the ArchCore exit its inner loop at the
// next safe point. Safe to call from any goroutine: it only forwards
// to ArchCore.Stop, which is the engine's own cross-goroutine signal.
func (r *CoreRunner) PrepareReschedule() {
	r.prepareReschedule()
}

func (r *CoreRunner) prepareReschedule() {
	r.core.Stop()
}

// Shutdown releases this runner's ArchCore resources and drops this
// core's exclusive-monitor reservation, mirroring the engine's own
// ClearExclusiveState (spec.md §4.2, §3 ExclusiveMonitor ownership).
func (r *CoreRunner) Shutdown() {
	r.core.Stop()
	r.core.ClearExclusiveState()
	if r.monitor != nil {
		r.monitor.ClearAll(r.index)
	}
}

// reschedule is §4.3a: acquire the global kernel lock, select the next
// thread, perform the context switch. The lock is held only across
// scheduler manipulation, never across execution, matching §5's
// ordering guarantee and gvisor's own rule that the kernel lock never
// spans Task.p.Switch.
func (r *CoreRunner) reschedule() {
	r.kernelLock.Lock()
	defer r.kernelLock.Unlock()
	r.scheduler.SelectThread(r.index)
	r.scheduler.TryDoContextSwitch()
}

// handleExecutionFault converts an ArchCore error into a trap delivery
// and a halt, per spec.md §7: CoreRunner never propagates engine errors
// across its boundary.
func (r *CoreRunner) handleExecutionFault(thread ThreadHandle, err error) {
	fault, ok := err.(*ArchExecutionFault)
	signal := uint8(5)
	if ok {
		signal = fault.Signal()
	} else {
		corelog.Warningf("core %d: unclassified execution error, reporting SIGTRAP: %v", r.index, err)
	}
	r.debug.SendTrap(thread, signal)
	r.debug.Break(false)
}
