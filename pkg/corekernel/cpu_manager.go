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

// Package corekernel implements the multi-core execution driver of the
// emulator: CpuManager, the per-core CoreRunner run loop, the shutdown
// Barrier, and the ExclusiveMonitor backing load-linked/
// store-conditional. See spec.md §4.4 and SPEC_FULL.md.
package corekernel

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/quadcore/corevisor/internal/corelog"
)

// CoreFactory builds the ArchCore and PerCoreScheduler for one core.
// CpuManager calls it once per CoreIndex at Initialize.
type CoreFactory interface {
	NewArchCore(core CoreIndex) ArchCore
	NewScheduler(core CoreIndex) PerCoreScheduler
}

// CoreStatus is CpuManager's diagnostic snapshot of one core (SPEC_FULL
// "Metrics-free health surface"). It is read-only plumbing for the CLI
// debug subcommand; nothing in corekernel's scheduling path reads it
// back.
type CoreStatus struct {
	Index         CoreIndex
	CurrentThread ThreadHandle
	HasThread     bool
	Halted        bool
}

// CpuManager owns the four CoreRunners, the shutdown Barrier, and the
// ExclusiveMonitor (spec.md §4.4). It exposes RunLoop for single-core
// cooperative mode and StartThreads for multi-core mode.
type CpuManager struct {
	factory CoreFactory
	timing  Timing
	debug   DebugHooks

	// kernelLock is the single global scheduler lock shared by every
	// CoreRunner's Reschedule (spec.md §4.3a, §5).
	kernelLock sync.Mutex

	runners   [NumCores]*CoreRunner
	monitor   *ExclusiveMonitor
	barrier   *Barrier
	threadMap *ThreadToCoreMap

	// gdbstubLoops bounds RunLoop iterations while a debugger is
	// connected (spec.md §4.4 step 5).
	gdbstubLoops int

	// active is the core currently being driven by the manager's own
	// RunLoop in single-core mode; written only by the manager thread,
	// read by any CoreRunner via GetCurrentCoreRunner (spec.md §4.4
	// invariant) — hence atomic rather than plain, since a concurrent
	// debugger-thread read of GetCurrentCoreRunner must never race.
	active atomic.Int32

	// poweredOn gates the helper threads' `while system_powered_on`
	// loop (spec.md §4.4, §9 Open Questions: the canonical termination
	// predicate).
	poweredOn atomic.Bool

	multiCore bool
	group     *errgroup.Group

	numLoops int

	// instanceLock guards against two driver processes animating the
	// same four cores at once. Empty path disables the check (tests).
	instanceLockPath string
	instanceLock     *flock.Flock
}

// NewCpuManager constructs a CpuManager. Initialize must be called
// before StartThreads or RunLoop.
func NewCpuManager(factory CoreFactory, timing Timing, debug DebugHooks, multiCore bool, gdbstubLoops int, instanceLockPath string) *CpuManager {
	return &CpuManager{
		factory:          factory,
		timing:           timing,
		debug:            debug,
		multiCore:        multiCore,
		gdbstubLoops:     gdbstubLoops,
		instanceLockPath: instanceLockPath,
	}
}

// Initialize constructs the four CoreRunners, the ExclusiveMonitor, and
// the Barrier (spec.md §4.4). If an instance lock path is configured it
// is acquired first (non-blocking): a second driver process racing to
// animate the same cores fails fast here instead of corrupting shared
// guest memory later.
func (m *CpuManager) Initialize() error {
	if m.instanceLockPath != "" {
		m.instanceLock = flock.New(m.instanceLockPath)
		locked, err := m.instanceLock.TryLock()
		if err != nil {
			return fmt.Errorf("cpu manager: acquiring instance lock %q: %w", m.instanceLockPath, err)
		}
		if !locked {
			return fmt.Errorf("cpu manager: instance lock %q held by another process", m.instanceLockPath)
		}
	}

	m.monitor = NewExclusiveMonitor(NumCores)
	m.barrier = NewBarrier()
	m.threadMap = NewThreadToCoreMap()

	for i := CoreIndex(0); i < NumCores; i++ {
		core := m.factory.NewArchCore(i)
		sched := m.factory.NewScheduler(i)
		m.runners[i] = NewCoreRunner(i, core, sched, m.timing, m.debug, m.monitor, &m.kernelLock)
	}
	m.poweredOn.Store(true)
	corelog.Infof("cpu manager: initialized %d cores (multi_core=%v)", NumCores, m.multiCore)
	return nil
}

// StartThreads registers the calling host thread as the driver of
// CoreRunner[0]. In multi-core mode it additionally spawns three helper
// host threads, one per remaining core, each pinned via
// unix.SchedSetaffinity after runtime.LockOSThread, running
// `while system_powered_on: runner.RunLoop(true)` (spec.md §4.4). In
// single-core mode nothing else is spawned: CpuManager's own RunLoop
// drives all four cores cooperatively.
func (m *CpuManager) StartThreads() error {
	m.threadMap.Bind(currentHostThreadID(), m.runners[0])

	if !m.multiCore {
		return nil
	}

	m.group = new(errgroup.Group)
	for i := CoreIndex(1); i < NumCores; i++ {
		runner := m.runners[i]
		m.group.Go(func() error {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()

			id := currentHostThreadID()
			m.threadMap.Bind(id, runner)
			defer m.threadMap.Unbind(id)

			if err := pinToCore(runner.Index()); err != nil {
				// Affinity is an optimization, not a correctness
				// requirement: a core thread that couldn't be pinned
				// still runs, just without the host-CPU locality hint.
				corelog.Warningf("core %d: failed to set thread affinity: %v", runner.Index(), err)
			}

			for m.poweredOn.Load() {
				if err := runner.RunLoop(true); err != nil {
					return fmt.Errorf("core %d: %w", runner.Index(), err)
				}
			}
			return nil
		})
	}
	corelog.Infof("cpu manager: started %d helper core threads", NumCores-1)
	return nil
}

// Shutdown sets the Barrier to Ending, joins the helper threads in
// multi-core mode, clears the ThreadToCoreMap, and releases the
// CoreRunners, ExclusiveMonitor, and Barrier in that order (spec.md
// §4.4).
func (m *CpuManager) Shutdown() error {
	m.poweredOn.Store(false)
	m.barrier.NotifyEnd()

	var joinErr error
	if m.multiCore && m.group != nil {
		joinErr = m.group.Wait()
	}

	m.threadMap.Clear()
	for i := range m.runners {
		if m.runners[i] != nil {
			m.runners[i].Shutdown()
			m.runners[i] = nil
		}
	}
	m.monitor = nil
	m.barrier = nil

	if m.instanceLock != nil {
		if err := m.instanceLock.Unlock(); err != nil && joinErr == nil {
			joinErr = fmt.Errorf("cpu manager: releasing instance lock: %w", err)
		}
	}

	corelog.Infof("cpu manager: shutdown complete")
	return joinErr
}

// GetCurrentCoreRunner returns the CoreRunner the calling host thread
// drives. In multi-core mode this is a ThreadToCoreMap lookup that must
// succeed (spec.md §4.5 — failure is a programmer error); in
// single-core mode it returns CoreRunner[active_core].
func (m *CpuManager) GetCurrentCoreRunner() *CoreRunner {
	if m.multiCore {
		return m.threadMap.MustLookup(currentHostThreadID())
	}
	return m.runners[CoreIndex(m.active.Load())]
}

// RunLoop drives all four cores cooperatively from the calling
// (manager) thread; single-core mode only (spec.md §4.4).
//
//	1. If the debugger is enabled, service one pending packet.
//	2. Timing.ResetRun.
//	3. For active_core in 0..3: SwitchContext(active_core); if
//	   CanCurrentContextRun, run that core's slice.
//	4. If the debugger is connected, count the loop.
//	5. Repeat while any core could still run and the loop count is
//	   under gdbstubLoops, the bound that stops a connected debugger
//	   from being starved indefinitely.
func (m *CpuManager) RunLoop(tight bool, handlePacket func(), connected func() bool) error {
	m.threadMap.Bind(currentHostThreadID(), m.runners[0])

	m.numLoops = 0
	for {
		if handlePacket != nil {
			handlePacket()
		}
		m.timing.ResetRun()

		keepRunning := false
		for core := CoreIndex(0); core < NumCores; core++ {
			m.active.Store(int32(core))
			m.timing.SwitchContext(core)
			if m.timing.CanCurrentContextRun() {
				if err := m.runners[core].RunLoop(tight); err != nil {
					return fmt.Errorf("core %d: %w", core, err)
				}
				keepRunning = true
			}
		}

		if connected != nil && connected() {
			m.numLoops++
		}

		if !keepRunning || m.numLoops >= m.gdbstubLoops {
			return nil
		}
	}
}

// Monitor returns the process-wide ExclusiveMonitor every CoreRunner
// shares (spec.md §4.2), for a memory subsystem (out of this core's
// scope, spec.md §1) to drive Reserve/CheckAndClear/NotifyStore
// against the same reservation state CoreRunner.Shutdown clears.
func (m *CpuManager) Monitor() *ExclusiveMonitor {
	return m.monitor
}

// Status reports a read-only snapshot of every core, for the CLI debug
// subcommand (SPEC_FULL "Metrics-free health surface").
func (m *CpuManager) Status() [NumCores]CoreStatus {
	var out [NumCores]CoreStatus
	halted := m.debug.HaltFlag()
	for i := CoreIndex(0); i < NumCores; i++ {
		out[i].Index = i
		out[i].Halted = halted
		if m.runners[i] == nil {
			continue
		}
		if thread, ok := m.runners[i].CurrentThread(); ok {
			out[i].CurrentThread = thread
			out[i].HasThread = true
		}
	}
	return out
}

// currentHostThreadID derives a stable identity for the goroutine's
// locked OS thread. It is only meaningful after runtime.LockOSThread;
// the manager's own RunLoop calls it from an unlocked goroutine, which
// is fine because single-core mode never consults ThreadToCoreMap for
// core 0 (GetCurrentCoreRunner takes the `active` fast path instead).
func currentHostThreadID() HostThreadID {
	return HostThreadID(unix.Gettid())
}

// pinToCore locks the calling (already LockOSThread'd) OS thread's CPU
// affinity to a single host CPU matching core's index, modulo the
// number of host CPUs available. This is a locality hint, not a
// correctness requirement for the virtual-to-host core mapping.
func pinToCore(core CoreIndex) error {
	numCPU := runtime.NumCPU()
	if numCPU == 0 {
		return nil
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(int(core) % numCPU)
	return unix.SchedSetaffinity(0, &set)
}
