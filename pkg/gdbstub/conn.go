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

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/quadcore/corevisor/internal/corelog"
	"github.com/quadcore/corevisor/pkg/corekernel"
)

// AcceptLoop blocks accepting debugger connections until ctx is
// cancelled or the listener closes. Only one debugger may be attached
// at a time (spec.md §4.6); a second connection attempt while one is
// already active is accepted and immediately closed rather than queued,
// since there is nothing useful to do with a second debugger.
func (s *Server) AcceptLoop(ctx context.Context) {
	for {
		s.mu.Lock()
		listener := s.listener
		s.mu.Unlock()
		if listener == nil {
			return
		}

		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			corelog.Warningf("gdbstub: accept failed: %v", err)
			continue
		}

		s.mu.Lock()
		if s.conn != nil {
			s.mu.Unlock()
			conn.Close()
			continue
		}
		s.conn = conn
		s.reader = bufio.NewReader(conn)
		s.connected = true
		s.mu.Unlock()
		corelog.Infof("gdbstub: debugger attached from %s", conn.RemoteAddr())
	}
}

// ReadPacket blocks for the next complete "$payload#cc" frame from the
// attached debugger. It returns ErrProtocol if no debugger is attached,
// wrapping io.EOF if the connection was closed by the peer.
func (s *Server) ReadPacket() (string, error) {
	s.mu.Lock()
	reader := s.reader
	s.mu.Unlock()
	if reader == nil {
		return "", ErrProtocol
	}

	for {
		b, err := reader.ReadByte()
		if err != nil {
			if err == io.EOF {
				s.closeConnectionLocked()
				return "", fmt.Errorf("%w: %w", ErrProtocol, err)
			}
			return "", err
		}
		if b != '$' {
			continue // ignore bytes between packets, e.g. stray '+'/'-' acks
		}
		var frame []byte
		frame = append(frame, '$')
		for {
			nb, err := reader.ReadByte()
			if err != nil {
				return "", err
			}
			frame = append(frame, nb)
			if nb == '#' {
				c1, err := reader.ReadByte()
				if err != nil {
					return "", err
				}
				c2, err := reader.ReadByte()
				if err != nil {
					return "", err
				}
				frame = append(frame, c1, c2)
				payload, _, err := decodePacket(frame)
				if err != nil {
					return "", err
				}
				return payload, nil
			}
		}
	}
}

// HandlePacket reads and answers exactly one packet from the attached
// debugger, applying rate limiting so a misbehaving client can't starve
// the core thread it runs on (spec.md §4.6, §7 GdbProtocolError).
// cmd/corevisor builds CpuManager.RunLoop's handlePacket hook from it,
// which calls it at most once per RunLoop iteration on the manager
// thread; CoreRunner never calls it.
func (s *Server) HandlePacket(thread corekernel.ThreadHandle) {
	if !s.packetLimiter.Allow() {
		return
	}

	payload, err := s.ReadPacket()
	if err != nil {
		return
	}
	pkt := parsePacket(payload)

	switch pkt.kind {
	case pktStopReason:
		s.writePacket(stopReply(5, uint64(thread)))

	case pktContinue, pktVContContinue:
		s.clearHalt()
		s.writePacket("OK")

	case pktStep, pktVContStep:
		target := thread
		if pkt.hasThread {
			target = pkt.vContThread
		}
		s.requestStep(target)
		s.clearHalt()
		s.writePacket("OK")

	case pktInsertBreak:
		if err := s.breakpoints.Insert(pkt.addr, pkt.breakType); err != nil {
			s.writePacket("E01")
			break
		}
		s.writePacket("OK")

	case pktRemoveBreak:
		s.breakpoints.Remove(pkt.addr, pkt.breakType)
		s.writePacket("OK")

	case pktQSupported:
		s.writePacket("qXfer:libraries:read+")

	case pktQXfer:
		if pkt.qXferObject == "libraries" {
			s.writePacket("l" + s.modules.librariesXML())
		} else {
			s.writePacket("")
		}

	case pktReadRegs, pktWriteRegs, pktReadMem, pktWriteMem:
		// Register and memory access round-trip through the active
		// ArchCore, which the caller wires in above this layer; this
		// stub acknowledges without data so a client doesn't hang.
		s.writePacket("")

	default:
		s.writePacket("")
	}

	// Any packet the debugger sends while a step it previously
	// requested is pending clears that pending flag (spec.md §4.6):
	// once the core has stopped and reported back, the per-thread step
	// request it was honoring is done.
	if pkt.kind != pktStep && pkt.kind != pktVContStep {
		s.clearStepFlag(thread)
	}
}
