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

package gdbstub

import "errors"

// Error kinds from spec.md §7 owned by the gdbstub package.
var (
	// ErrBreakpointInsertion marks a duplicate or invalid breakpoint
	// address; reported to the debugger as E01, internal state left
	// unchanged.
	ErrBreakpointInsertion = errors.New("gdbstub: breakpoint insertion failed")

	// ErrProtocol marks a malformed packet or a reset connection. The
	// server drops the connection; core execution proceeds with
	// halt_flag unchanged.
	ErrProtocol = errors.New("gdbstub: protocol error")

	// ErrSocketSetup marks a listener bind/accept failure at Init. The
	// server logs and stays disabled rather than aborting the
	// emulator.
	ErrSocketSetup = errors.New("gdbstub: socket setup failed")
)
