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
	"testing"
	"time"
)

func TestBarrierWaitReturnsAfterNotifyEnd(t *testing.T) {
	b := NewBarrier()
	done := make(chan struct{})
	go func() {
		b.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before NotifyEnd")
	case <-time.After(20 * time.Millisecond):
	}

	b.NotifyEnd()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after NotifyEnd")
	}
}

func TestBarrierWaitReturnsImmediatelyIfAlreadyEnding(t *testing.T) {
	b := NewBarrier()
	b.NotifyEnd()

	done := make(chan struct{})
	go func() {
		b.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait blocked despite barrier already ending")
	}
}

func TestBarrierNotifyEndIsIdempotent(t *testing.T) {
	b := NewBarrier()
	b.NotifyEnd()
	b.NotifyEnd()
	if !b.IsEnding() {
		t.Fatal("expected barrier to be ending")
	}
}

func TestBarrierIsEnding(t *testing.T) {
	b := NewBarrier()
	if b.IsEnding() {
		t.Fatal("new barrier should not be ending")
	}
	b.NotifyEnd()
	if !b.IsEnding() {
		t.Fatal("expected barrier to report ending after NotifyEnd")
	}
}
