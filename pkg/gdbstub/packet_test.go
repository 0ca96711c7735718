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
	"strings"
	"testing"

	"github.com/quadcore/corevisor/pkg/corekernel"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	framed := encodePacket("g")
	if !strings.HasPrefix(framed, "$g#") {
		t.Fatalf("unexpected frame: %q", framed)
	}
	payload, consumed, err := decodePacket([]byte(framed))
	if err != nil {
		t.Fatalf("decodePacket: %v", err)
	}
	if payload != "g" {
		t.Fatalf("expected payload %q, got %q", "g", payload)
	}
	if consumed != len(framed) {
		t.Fatalf("expected to consume %d bytes, got %d", len(framed), consumed)
	}
}

func TestDecodePacketRejectsBadChecksum(t *testing.T) {
	_, _, err := decodePacket([]byte("$g#00"))
	if err == nil {
		t.Fatal("expected a checksum mismatch error")
	}
}

func TestDecodePacketRejectsMissingDollar(t *testing.T) {
	_, _, err := decodePacket([]byte("g#67"))
	if err == nil {
		t.Fatal("expected an error for a frame missing '$'")
	}
}

func TestStopReplyFormat(t *testing.T) {
	got := stopReply(5, 0x2a)
	want := "T05thread:2a;"
	if got != want {
		t.Fatalf("stopReply = %q, want %q", got, want)
	}
}

func TestParsePacketSimpleCommands(t *testing.T) {
	cases := map[string]packetKind{
		"?": pktStopReason,
		"g": pktReadRegs,
		"G": pktWriteRegs,
		"c": pktContinue,
		"s": pktStep,
	}
	for payload, want := range cases {
		if got := parsePacket(payload).kind; got != want {
			t.Fatalf("parsePacket(%q).kind = %v, want %v", payload, got, want)
		}
	}
}

func TestParsePacketReadMemory(t *testing.T) {
	pkt := parsePacket("m1000,4")
	if pkt.kind != pktReadMem {
		t.Fatalf("expected pktReadMem, got %v", pkt.kind)
	}
	if pkt.memAddr != 0x1000 || pkt.memLength != 4 {
		t.Fatalf("unexpected addr/length: %#x/%d", pkt.memAddr, pkt.memLength)
	}
}

func TestParsePacketWriteMemory(t *testing.T) {
	pkt := parsePacket("M1000,2:abcd")
	if pkt.kind != pktWriteMem {
		t.Fatalf("expected pktWriteMem, got %v", pkt.kind)
	}
	if pkt.memAddr != 0x1000 || pkt.memLength != 2 {
		t.Fatalf("unexpected addr/length: %#x/%d", pkt.memAddr, pkt.memLength)
	}
	if len(pkt.memData) != 2 || pkt.memData[0] != 0xab || pkt.memData[1] != 0xcd {
		t.Fatalf("unexpected decoded data: %x", pkt.memData)
	}
}

func TestParsePacketInsertBreakpoint(t *testing.T) {
	pkt := parsePacket("Z0,1000,4")
	if pkt.kind != pktInsertBreak {
		t.Fatalf("expected pktInsertBreak, got %v", pkt.kind)
	}
	if pkt.breakType != BreakExecute || pkt.addr != 0x1000 {
		t.Fatalf("unexpected breakType/addr: %v/%#x", pkt.breakType, pkt.addr)
	}
}

func TestParsePacketBreakpointTypeMapping(t *testing.T) {
	cases := map[string]BreakpointKind{
		"0,10,4": BreakExecute,
		"2,10,4": BreakWrite,
		"3,10,4": BreakRead,
		"4,10,4": BreakAccess,
	}
	for s, want := range cases {
		pkt := parseBreakpointPacket(s, pktInsertBreak)
		if pkt.breakType != want {
			t.Fatalf("parseBreakpointPacket(%q) = %v, want %v", s, pkt.breakType, want)
		}
	}
}

func TestParsePacketRemoveBreakpoint(t *testing.T) {
	pkt := parsePacket("z3,2000,1")
	if pkt.kind != pktRemoveBreak || pkt.breakType != BreakRead {
		t.Fatalf("unexpected parse: %+v", pkt)
	}
}

func TestParseVContContinue(t *testing.T) {
	pkt := parsePacket("vCont;c")
	if pkt.kind != pktVContContinue {
		t.Fatalf("expected pktVContContinue, got %v", pkt.kind)
	}
}

func TestParseVContStepWithThread(t *testing.T) {
	pkt := parsePacket("vCont;s:2a")
	if pkt.kind != pktVContStep {
		t.Fatalf("expected pktVContStep, got %v", pkt.kind)
	}
	if !pkt.hasThread || pkt.vContThread != corekernel.ThreadHandle(0x2a) {
		t.Fatalf("unexpected thread: hasThread=%v thread=%v", pkt.hasThread, pkt.vContThread)
	}
}

func TestParseQuerySupportedAndXfer(t *testing.T) {
	if parsePacket("qSupported").kind != pktQSupported {
		t.Fatal("expected pktQSupported")
	}
	pkt := parsePacket("qXfer:libraries:read::0,fff")
	if pkt.kind != pktQXfer || pkt.qXferObject != "libraries" {
		t.Fatalf("unexpected qXfer parse: %+v", pkt)
	}
}

func TestParsePacketUnknownFallsThrough(t *testing.T) {
	if parsePacket("").kind != pktUnknown {
		t.Fatal("empty payload should parse as unknown")
	}
	if parsePacket("Qsomething").kind != pktUnknown {
		t.Fatal("unrecognized 'Q' command should parse as unknown")
	}
}
