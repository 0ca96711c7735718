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
	"errors"
	"fmt"
)

// Error kinds from spec.md §7. CoreRunner never lets an ArchCore error
// cross its boundary: ArchExecutionFault is always converted to a
// SendTrap + halt_flag by the caller (see core_runner.go). The other
// kinds are returned to callers that can act on them (the manager, the
// gdbstub) rather than panicking.
var (
	// ErrSchedulerInvariant marks a ThreadToCoreMap lookup or similar
	// scheduler-bookkeeping failure that should never happen if the
	// run loop's ordering guarantees hold. Fatal:
	// ThreadToCoreMap.MustLookup panics with a value that wraps it
	// (thread_map.go), in every build.
	ErrSchedulerInvariant = errors.New("corekernel: scheduler invariant violated")

	// ErrSocketSetup marks a gdbstub listener bind/accept failure at
	// Init. Per §7 this must not abort the emulator: the caller logs
	// and leaves the server disabled.
	ErrSocketSetup = errors.New("corekernel: gdbstub socket setup failed")
)

// ArchExecutionFault reports that an ArchCore stopped on a guest fault
// (illegal instruction, memory permission violation). CoreRunner
// converts this into GdbServer.SendTrap + halt_flag rather than
// propagating it (spec.md §7). Its fault-kind taxonomy and POSIX signal
// mapping live in trap.go.
type ArchExecutionFault struct {
	Kind ArchFaultKind
	Addr uint64
	Err  error
}

func (f *ArchExecutionFault) Error() string {
	return fmt.Sprintf("corekernel: arch execution fault at %#x: %v", f.Addr, f.Err)
}

func (f *ArchExecutionFault) Unwrap() error { return f.Err }
