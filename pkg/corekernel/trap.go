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

// ArchFaultKind enumerates the guest-fault conditions an ArchCore can
// stop on (spec.md §7).
type ArchFaultKind int

const (
	FaultIllegalInstruction ArchFaultKind = iota
	FaultMemoryPermission
	FaultTrap
)

// Signal returns the POSIX signal number GdbServer.SendTrap should
// report for this fault kind: 05 (SIGTRAP) for a single-step or
// breakpoint trap, 11 (SIGSEGV) for a memory permission violation, 04
// (SIGILL) for an illegal instruction (spec.md §7).
func (f *ArchExecutionFault) Signal() uint8 {
	switch f.Kind {
	case FaultMemoryPermission:
		return 11
	case FaultIllegalInstruction:
		return 4
	default:
		return 5
	}
}
