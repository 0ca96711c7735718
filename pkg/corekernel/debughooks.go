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

// DebugHooks is the slice of GdbServer's contract that CoreRunner
// consults every RunLoop slice (spec.md §4.3, §4.6). It is defined
// here, not in pkg/gdbstub, so corekernel has no import dependency on
// the protocol server; pkg/gdbstub.Server implements it.
type DebugHooks interface {
	// HaltFlag reports the global halt_flag. When true, CoreRunner
	// performs only Reschedule and executes nothing.
	HaltFlag() bool

	// ThreadStepFlag reports whether thread has a pending single-step
	// request (per_thread_step).
	ThreadStepFlag(thread ThreadHandle) bool

	// Break sets halt_flag (and, if isMemoryBreak, the memory_break
	// flag) so every core's next slice is a no-op.
	Break(isMemoryBreak bool)

	// SendTrap delivers a stop reply identifying thread and the given
	// POSIX signal number.
	SendTrap(thread ThreadHandle, trapNo uint8)
}
