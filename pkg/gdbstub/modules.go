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
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mohae/deepcopy"
)

// moduleRange is one entry registered via Server.RegisterModule
// (spec.md §4.6): a loaded guest module's address range, advertised to
// the debugger through qXfer:libraries:read.
type moduleRange struct {
	Name       string
	Begin, End uint64
	AddElfExt  bool
}

// moduleTable backs RegisterModule/qXfer:libraries:read.
type moduleTable struct {
	mu      sync.Mutex
	modules []moduleRange
}

func newModuleTable() *moduleTable {
	return &moduleTable{}
}

// register records name's range, replacing any prior entry of the same
// name.
func (t *moduleTable) register(name string, begin, end uint64, addElfExt bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.modules {
		if t.modules[i].Name == name {
			t.modules[i] = moduleRange{Name: name, Begin: begin, End: end, AddElfExt: addElfExt}
			return
		}
	}
	t.modules = append(t.modules, moduleRange{Name: name, Begin: begin, End: end, AddElfExt: addElfExt})
}

// snapshot returns a deep copy of the registered modules ordered by
// base address, so a caller mutating the returned slice (or the shim
// that renders it into XML) can never reach back into the server's own
// table — the same defensive-copy concern runsc's control-socket RPCs
// solve by marshaling through JSON; here deepcopy.Copy does it without
// a serialization round trip.
func (t *moduleTable) snapshot() []moduleRange {
	t.mu.Lock()
	defer t.mu.Unlock()
	cloned := deepcopy.Copy(t.modules).([]moduleRange)
	sort.Slice(cloned, func(i, j int) bool { return cloned[i].Begin < cloned[j].Begin })
	return cloned
}

// librariesXML renders the registered modules as the body
// qXfer:libraries:read expects: a <library-list> with one <library>
// per module, each with a single <segment> giving its base address.
func (t *moduleTable) librariesXML() string {
	mods := t.snapshot()
	var b strings.Builder
	b.WriteString(`<library-list>`)
	for _, m := range mods {
		name := m.Name
		if m.AddElfExt && !strings.HasSuffix(name, ".elf") {
			name += ".elf"
		}
		fmt.Fprintf(&b, `<library name="%s"><segment address="%#x"/></library>`, name, m.Begin)
	}
	b.WriteString(`</library-list>`)
	return b.String()
}
