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

// Package gdbstub implements the GDB remote protocol endpoint the
// emulator's debugger attaches to: the breakpoint table, the global
// halt flag, per-thread step flags, and trap delivery (spec.md §4.6).
package gdbstub

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/coreos/go-systemd/v22/activation"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/quadcore/corevisor/internal/corelog"
	"github.com/quadcore/corevisor/pkg/corekernel"
)

// Server is the process-wide GdbServer state (spec.md §4.6, §3
// GdbState). It implements corekernel.DebugHooks, so a CoreRunner only
// ever sees the narrow slice of this type it needs.
type Server struct {
	breakpoints *BreakpointTable
	modules     *moduleTable

	mu            sync.Mutex
	enabled       bool
	connected     bool
	deferredStart bool
	halted        bool
	memoryBreak   bool
	perThreadStep map[corekernel.ThreadHandle]bool
	port          uint16

	listener net.Listener
	conn     net.Conn
	reader   *bufio.Reader

	// packetLimiter bounds retransmission churn from a misbehaving
	// client (spec.md §7 GdbProtocolError) without blocking the core
	// thread HandlePacket runs on.
	packetLimiter *rate.Limiter
}

// NewServer returns a Server bound to port, initially disabled.
func NewServer(port uint16) *Server {
	return &Server{
		breakpoints:   NewBreakpointTable(),
		modules:       newModuleTable(),
		perThreadStep: make(map[corekernel.ThreadHandle]bool),
		port:          port,
		packetLimiter: rate.NewLimiter(rate.Limit(200), 50),
	}
}

// SetServerPort sets the TCP port Init will listen on.
func (s *Server) SetServerPort(port uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.port = port
}

// ToggleServer enables or disables the server. Disabling while
// connected drops the connection.
func (s *Server) ToggleServer(on bool) {
	s.mu.Lock()
	wasEnabled := s.enabled
	s.enabled = on
	s.mu.Unlock()
	if wasEnabled && !on {
		s.closeConnectionLocked()
	}
}

// IsServerEnabled reports whether the server is enabled.
func (s *Server) IsServerEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// IsConnected reports whether a debugger is currently attached.
func (s *Server) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// DeferStart marks the server to perform Init-equivalent work lazily,
// on the first HandlePacket call, rather than eagerly here — avoiding
// initializing a listening socket on a host thread that's about to
// block on system startup (spec.md §4.6).
func (s *Server) DeferStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deferredStart = true
	s.enabled = true
}

// Init opens the listening socket and prepares server state. If the
// process was started under systemd socket activation (LISTEN_FDS set)
// it adopts the pre-bound listener instead of binding its own, the same
// "inherit a prepared fd" shape gvisor's control socket uses. Bind
// failures retry with exponential backoff (a few hundred milliseconds
// of EADDRINUSE during rapid restart is common and not fatal); a
// failure that persists past the backoff's max elapsed time returns
// ErrSocketSetup and leaves the server disabled, per spec.md §7 —
// never aborts the emulator.
func (s *Server) Init() error {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()

	listener, err := adoptActivatedListener(port)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSocketSetup, err)
	}
	if listener == nil {
		listener, err = bindWithBackoff(port)
		if err != nil {
			corelog.Warningf("gdbstub: failed to bind port %d: %v", port, err)
			s.mu.Lock()
			s.enabled = false
			s.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrSocketSetup, err)
		}
	}

	s.mu.Lock()
	s.listener = listener
	s.enabled = true
	s.deferredStart = false
	s.mu.Unlock()
	corelog.Infof("gdbstub: listening on %s", listener.Addr())
	return nil
}

// adoptActivatedListener returns the systemd-activated listener bound to
// port if one was passed, otherwise the first activated listener
// whatever its port, or (nil, nil) if activation isn't in play.
func adoptActivatedListener(port uint16) (net.Listener, error) {
	listeners, err := activation.Listeners()
	if err != nil || len(listeners) == 0 {
		return nil, nil
	}
	for _, l := range listeners {
		if l == nil {
			continue
		}
		if tcpAddr, ok := l.Addr().(*net.TCPAddr); ok && tcpAddr.Port == int(port) {
			return l, nil
		}
	}
	return listeners[0], nil
}

func bindWithBackoff(port uint16) (net.Listener, error) {
	var listener net.Listener
	op := func() error {
		lc := net.ListenConfig{Control: setReuseAddr}
		l, err := lc.Listen(context.Background(), "tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			return err
		}
		listener = l
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 5 * time.Second
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return listener, nil
}

// setReuseAddr lets a restarted driver rebind a port still in
// TIME_WAIT, which is the common case backoff above is guarding
// against.
func setReuseAddr(network, address string, c syscallConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// syscallConn is the subset of syscall.RawConn ListenConfig.Control
// needs, named locally to avoid importing syscall just for the type.
type syscallConn interface {
	Control(f func(fd uintptr)) error
}

// Shutdown closes the connection and listener and frees breakpoints
// (spec.md §4.6). status is accepted for parity with the external exit
// contract (spec.md §6) but carries no behavior of its own here.
func (s *Server) Shutdown(status int) error {
	s.closeConnectionLocked()

	s.mu.Lock()
	listener := s.listener
	s.listener = nil
	s.enabled = false
	s.mu.Unlock()

	s.breakpoints.RemoveAll()
	if listener != nil {
		return listener.Close()
	}
	return nil
}

func (s *Server) closeConnectionLocked() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.reader = nil
	s.connected = false
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// RegisterModule advertises a loaded module's address range to the
// debugger (spec.md §4.6), served back through qXfer:libraries:read.
func (s *Server) RegisterModule(name string, begin, end uint64, addElfExt bool) {
	s.modules.register(name, begin, end, addElfExt)
}

// Break sets halt_flag (spec.md §4.6 halt protocol) and records whether
// this was a memory breakpoint.
func (s *Server) Break(isMemoryBreak bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.halted = true
	if isMemoryBreak {
		s.memoryBreak = true
	}
}

// IsMemoryBreak reports and clears the memory_break flag (read-and-
// clear semantics, spec.md §9 Open Questions — documented here as the
// implementation choice).
func (s *Server) IsMemoryBreak() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.memoryBreak
	s.memoryBreak = false
	return v
}

// HaltFlag implements corekernel.DebugHooks.
func (s *Server) HaltFlag() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}

// ThreadStepFlag implements corekernel.DebugHooks.
func (s *Server) ThreadStepFlag(thread corekernel.ThreadHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.perThreadStep[thread]
}

// clearStepFlag clears thread's pending step. HandlePacket calls it for
// every packet other than a step request, which includes the continue
// packet that consumes the stop reply (spec.md §4.6 step protocol).
func (s *Server) clearStepFlag(thread corekernel.ThreadHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.perThreadStep, thread)
}

// requestStep translates a vCont;s:thread packet into a per_thread_step
// insertion (spec.md §4.6).
func (s *Server) requestStep(thread corekernel.ThreadHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perThreadStep[thread] = true
}

// clearHalt clears halt_flag; only debugger continue packets do this
// (spec.md §4.6 halt protocol).
func (s *Server) clearHalt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.halted = false
}

// GetCpuHaltFlag is the spec-named accessor; HaltFlag is the
// DebugHooks-facing name for the identical value.
func (s *Server) GetCpuHaltFlag() bool { return s.HaltFlag() }

// GetThreadStepFlag is the spec-named accessor for ThreadStepFlag.
func (s *Server) GetThreadStepFlag(thread corekernel.ThreadHandle) bool {
	return s.ThreadStepFlag(thread)
}

// SendTrap delivers a stop reply identifying thread and trapNo to the
// connected debugger, if any. A disconnected debugger silently drops
// the trap: there's nobody to tell, and CoreRunner must not block on
// it (spec.md §4.6).
func (s *Server) SendTrap(thread corekernel.ThreadHandle, trapNo uint8) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	s.writePacket(stopReply(trapNo, uint64(thread)))
}

func (s *Server) writePacket(payload string) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	if _, err := conn.Write([]byte(encodePacket(payload))); err != nil {
		corelog.Warningf("gdbstub: write failed, dropping connection: %v", err)
		s.closeConnectionLocked()
	}
}

// GetNextBreakpointFromAddress is the spec-named pass-through to the
// breakpoint table.
func (s *Server) GetNextBreakpointFromAddress(addr uint64, kind BreakpointKind) Breakpoint {
	return s.breakpoints.GetNextBreakpointFromAddress(addr, kind)
}

// CheckBreakpoint is the spec-named pass-through to the breakpoint
// table.
func (s *Server) CheckBreakpoint(addr uint64, kind BreakpointKind) bool {
	return s.breakpoints.Check(addr, kind)
}

// Breakpoints returns every currently tracked breakpoint in address
// order, for the CLI debug subcommand's startup snapshot alongside
// CpuManager.Status (SPEC_FULL "Metrics-free health surface").
func (s *Server) Breakpoints() []Breakpoint {
	return s.breakpoints.snapshot()
}
