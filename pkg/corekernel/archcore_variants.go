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

import "sync/atomic"

// The three variants below are deterministic, test-only stand-ins for
// the real JIT/interpreter execution engines ArchCore abstracts over
// (spec.md §9's re-architecture guidance: replace a deep class
// hierarchy with one interface and concrete variants swappable behind
// it, mirroring how gvisor's Platform/Context separates the scheduling
// loop from the actual instruction-execution backend). None of them
// decode a real guest ISA; they exist so CoreRunner and CpuManager have
// concrete engines to drive in tests instead of only a hand-rolled
// mock, and so CoreFactory has more than one thing to choose between.

// registerFile is the fixed-width general register bank all three
// variants share.
type registerFile [32]uint64

// jit32Core stands in for an AArch32-mode JIT backend: Run/Step just
// advance a program counter register and report completion, touching
// no real memory.
type jit32Core struct {
	regs    registerFile
	pc      uint64
	stopped atomic.Bool
}

func newJIT32Core() *jit32Core { return &jit32Core{} }

func (c *jit32Core) Run() error {
	c.stopped.Store(false)
	c.pc += 4
	return nil
}

func (c *jit32Core) Step() error {
	c.pc += 4
	return nil
}

func (c *jit32Core) Stop() { c.stopped.Store(true) }

func (c *jit32Core) ReadReg(reg int) (uint64, error) {
	if reg < 0 || reg >= len(c.regs) {
		return 0, &ArchExecutionFault{Kind: FaultIllegalInstruction, Addr: c.pc}
	}
	return c.regs[reg], nil
}

func (c *jit32Core) WriteReg(reg int, value uint64) error {
	if reg < 0 || reg >= len(c.regs) {
		return &ArchExecutionFault{Kind: FaultIllegalInstruction, Addr: c.pc}
	}
	c.regs[reg] = value
	return nil
}

func (c *jit32Core) PageTableChanged()                        {}
func (c *jit32Core) ClearInstructionCache(addr, length uint64) {}
func (c *jit32Core) ClearExclusiveState()                      {}

// jit64Core stands in for an AArch64-mode JIT backend. Identical shape
// to jit32Core, with the same 4-byte instruction stride, matching the
// A64 encoding's fixed 32-bit width.
type jit64Core struct {
	regs    registerFile
	pc      uint64
	stopped atomic.Bool
}

func newJIT64Core() *jit64Core { return &jit64Core{} }

func (c *jit64Core) Run() error {
	c.stopped.Store(false)
	c.pc += 4
	return nil
}

func (c *jit64Core) Step() error {
	c.pc += 4
	return nil
}

func (c *jit64Core) Stop() { c.stopped.Store(true) }

func (c *jit64Core) ReadReg(reg int) (uint64, error) {
	if reg < 0 || reg >= len(c.regs) {
		return 0, &ArchExecutionFault{Kind: FaultIllegalInstruction, Addr: c.pc}
	}
	return c.regs[reg], nil
}

func (c *jit64Core) WriteReg(reg int, value uint64) error {
	if reg < 0 || reg >= len(c.regs) {
		return &ArchExecutionFault{Kind: FaultIllegalInstruction, Addr: c.pc}
	}
	c.regs[reg] = value
	return nil
}

func (c *jit64Core) PageTableChanged()                        {}
func (c *jit64Core) ClearInstructionCache(addr, length uint64) {}
func (c *jit64Core) ClearExclusiveState()                      {}

// interpreterCore stands in for a plain bytecode interpreter: the
// fallback engine used when neither JIT variant applies (e.g. a guest
// page marked non-executable-for-JIT). Single-instruction granularity
// only — Run behaves exactly like Step, since an interpreter has no
// reason to batch.
type interpreterCore struct {
	regs      registerFile
	pc        uint64
	stopped   atomic.Bool
	exclDirty bool
}

func newInterpreterCore() *interpreterCore { return &interpreterCore{} }

func (c *interpreterCore) Run() error {
	c.stopped.Store(false)
	return c.Step()
}

func (c *interpreterCore) Step() error {
	c.pc += 4
	return nil
}

func (c *interpreterCore) Stop() { c.stopped.Store(true) }

func (c *interpreterCore) ReadReg(reg int) (uint64, error) {
	if reg < 0 || reg >= len(c.regs) {
		return 0, &ArchExecutionFault{Kind: FaultIllegalInstruction, Addr: c.pc}
	}
	return c.regs[reg], nil
}

func (c *interpreterCore) WriteReg(reg int, value uint64) error {
	if reg < 0 || reg >= len(c.regs) {
		return &ArchExecutionFault{Kind: FaultIllegalInstruction, Addr: c.pc}
	}
	c.regs[reg] = value
	return nil
}

func (c *interpreterCore) PageTableChanged()                        { c.exclDirty = true }
func (c *interpreterCore) ClearInstructionCache(addr, length uint64) {}
func (c *interpreterCore) ClearExclusiveState()                      { c.exclDirty = false }

var _ ArchCore = (*jit32Core)(nil)
var _ ArchCore = (*jit64Core)(nil)
var _ ArchCore = (*interpreterCore)(nil)

// InterpreterCoreFactory is a CoreFactory that hands every core an
// interpreterCore and a round-robin scheduler (see scheduler.go). It's
// the default factory cmd/corevisor wires up.
type InterpreterCoreFactory struct{}

func (InterpreterCoreFactory) NewArchCore(core CoreIndex) ArchCore {
	return newInterpreterCore()
}

func (InterpreterCoreFactory) NewScheduler(core CoreIndex) PerCoreScheduler {
	return newRoundRobinScheduler()
}

// JIT32CoreFactory is a CoreFactory that hands every core a jit32Core
// and a round-robin scheduler. Exercised by archcore_variants_test.go,
// which drives a CoreRunner against the 32-bit JIT stand-in the same
// way core_runner_test.go drives an interpreterCore.
type JIT32CoreFactory struct{}

func (JIT32CoreFactory) NewArchCore(core CoreIndex) ArchCore {
	return newJIT32Core()
}

func (JIT32CoreFactory) NewScheduler(core CoreIndex) PerCoreScheduler {
	return newRoundRobinScheduler()
}

// JIT64CoreFactory is JIT32CoreFactory's 64-bit counterpart, handing
// every core a jit64Core.
type JIT64CoreFactory struct{}

func (JIT64CoreFactory) NewArchCore(core CoreIndex) ArchCore {
	return newJIT64Core()
}

func (JIT64CoreFactory) NewScheduler(core CoreIndex) PerCoreScheduler {
	return newRoundRobinScheduler()
}
