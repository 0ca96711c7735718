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

import "sync"

// freeRunTiming is a minimal Timing implementation: every core is
// always runnable, Advance/Idle/ResetRun/SwitchContext are pure
// bookkeeping with no dependency on a real clock source. Timing's
// actual accounting is out of scope (spec.md §1); this exists so
// CpuManager has a concrete collaborator to drive instead of only a
// mock, the same role archcore_variants.go's engines play for ArchCore.
type freeRunTiming struct {
	mu      sync.Mutex
	current CoreIndex
}

// NewFreeRunTiming returns a Timing where every core can always run.
func NewFreeRunTiming() Timing { return &freeRunTiming{} }

func (t *freeRunTiming) ResetRun() {}

func (t *freeRunTiming) SwitchContext(core CoreIndex) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = core
}

func (t *freeRunTiming) CanCurrentContextRun() bool { return true }

func (t *freeRunTiming) Advance() {}

func (t *freeRunTiming) Idle() {}

var _ Timing = (*freeRunTiming)(nil)
