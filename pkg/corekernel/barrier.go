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

// Barrier coordinates shutdown across core threads (spec.md §4.1). It
// has two states, Open and Ending, and the transition is monotone: once
// Ending, every current and future Wait returns promptly.
//
// The condition-variable shape mirrors the stop/wake pattern in
// task_run.go's doStop, which waits on a sync.Cond guarded by the same
// mutex its state transition locks.
type Barrier struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ending bool
}

// NewBarrier returns a Barrier in the Open state.
func NewBarrier() *Barrier {
	b := &Barrier{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// NotifyEnd transitions Open to Ending. Idempotent.
func (b *Barrier) NotifyEnd() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ending {
		return
	}
	b.ending = true
	b.cond.Broadcast()
}

// Wait returns immediately if Ending, else suspends until NotifyEnd.
func (b *Barrier) Wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for !b.ending {
		b.cond.Wait()
	}
}

// IsEnding reports whether NotifyEnd has been called.
func (b *Barrier) IsEnding() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ending
}
