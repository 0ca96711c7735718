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

// CoreIndex identifies one of the four virtual CPUs (spec.md §3).
// Fixed cardinality: always in [0, NumCores).
type CoreIndex int

// NumCores is the fixed number of virtual CPU cores this driver
// animates. Not configurable: spec.md §1 fixes it at four.
const NumCores = 4

// ThreadHandle is an opaque identity owned by the scheduler (spec.md
// §3). corekernel and gdbstub only ever use it as a map key.
type ThreadHandle uint64

// ArchCore is the capability set an architecture-specific execution
// engine (JIT or interpreter) exposes to a CoreRunner. Per spec.md §9's
// re-architecture guidance this replaces a deep class hierarchy with an
// explicit interface plus concrete variants, the same shape gvisor uses
// for its Platform/Context abstraction around Task.run's
// t.p.Switch(t, t.MemoryManager(), t.Arch(), t.rseqCPU) call.
type ArchCore interface {
	// Run executes guest code until it stops itself (a breakpoint, a
	// fault, a syscall) or PrepareReschedule is called from another
	// goroutine. It may execute many instructions before returning.
	Run() error

	// Step executes exactly one guest instruction.
	Step() error

	// Stop requests that a concurrent Run/Step return at its next safe
	// point. Safe to call from any goroutine.
	Stop()

	// ReadReg and WriteReg access the PSTATE/general register file.
	ReadReg(reg int) (uint64, error)
	WriteReg(reg int, value uint64) error

	// PageTableChanged notifies the engine that the guest's page
	// tables were mutated out from under it (e.g. by an SVC handler)
	// and any cached translations must be dropped.
	PageTableChanged()

	// ClearInstructionCache invalidates cached decoded instructions
	// covering [addr, addr+length).
	ClearInstructionCache(addr uint64, length uint64)

	// ClearExclusiveState drops this core's exclusive-monitor
	// reservation as observed by the engine itself (e.g. on an
	// exception entry that Linux defines as clearing the monitor).
	ClearExclusiveState()
}

// Timing is the external timing subsystem CoreRunner and CpuManager
// drive (spec.md §1, out of scope for semantics, specified only by the
// interface consumed).
type Timing interface {
	// ResetRun prepares timing state for a fresh single-core RunLoop
	// pass over all cores.
	ResetRun()

	// SwitchContext establishes a happens-before edge into the given
	// core's timing context (single-core mode rotation).
	SwitchContext(core CoreIndex)

	// CanCurrentContextRun reports whether the core last switched to
	// via SwitchContext has a runnable timing context.
	CanCurrentContextRun() bool

	// Advance accounts for the instructions/cycles executed by the
	// current core's slice.
	Advance()

	// Idle advances timing to the next scheduled event when a core has
	// no runnable thread.
	Idle()
}

// PerCoreScheduler is the per-core thread scheduler CoreRunner
// cooperates with (spec.md §1, §4.3a). It is an external collaborator;
// this interface specifies only what CoreRunner consumes.
type PerCoreScheduler interface {
	// SelectThread chooses the next thread to run on core and makes it
	// current, or clears the current thread if none is runnable.
	SelectThread(core CoreIndex)

	// TryDoContextSwitch performs any bookkeeping a context switch
	// requires (e.g. saving/restoring architectural state) for the
	// thread SelectThread just chose.
	TryDoContextSwitch()

	// GetCurrentThread returns core's current thread, or the zero
	// ThreadHandle with ok=false if none is runnable.
	GetCurrentThread(core CoreIndex) (thread ThreadHandle, ok bool)

	// StepFlag reports whether thread has a debugger-requested
	// single-step pending. CoreRunner consults this via GdbServer
	// instead (GdbServer owns per_thread_step); PerCoreScheduler's
	// StepFlag exists for schedulers that also need to honor it
	// internally (e.g. to avoid coalescing a stepped thread's slice
	// with another's).
	StepFlag(thread ThreadHandle) bool
}
