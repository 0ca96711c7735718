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

package main

import (
	"context"
	"fmt"

	"github.com/quadcore/corevisor/internal/config"
	"github.com/quadcore/corevisor/pkg/corekernel"
	"github.com/quadcore/corevisor/pkg/gdbstub"
)

// driver bundles the two long-lived pieces of state every subcommand
// wires up: CpuManager and the gdbstub Server. Splitting this out of
// runCmd/debugCmd keeps the subcommand types themselves limited to
// flag parsing, matching a pattern with one boot path feeding several
// entry points.
type driver struct {
	conf *config.Config
	cpu  *corekernel.CpuManager
	gdb  *gdbstub.Server
}

func newDriver(conf *config.Config) (*driver, error) {
	gdb := gdbstub.NewServer(conf.GdbstubPort)

	cpu := corekernel.NewCpuManager(
		corekernel.InterpreterCoreFactory{},
		corekernel.NewFreeRunTiming(),
		gdb,
		conf.UseMultiCore,
		conf.GdbstubLoops,
		conf.InstanceLockPath,
	)
	if err := cpu.Initialize(); err != nil {
		return nil, fmt.Errorf("corevisor: initializing cpu manager: %w", err)
	}

	return &driver{conf: conf, cpu: cpu, gdb: gdb}, nil
}

// start brings the driver up: optionally the GDB server, then the core
// threads.
func (d *driver) start(ctx context.Context) error {
	if d.conf.GdbstubEnabled {
		d.gdb.ToggleServer(true)
		if err := d.gdb.Init(); err != nil {
			return fmt.Errorf("corevisor: starting gdbstub: %w", err)
		}
		go d.gdb.AcceptLoop(ctx)
	}
	return d.cpu.StartThreads()
}

// runSingleCore drives CpuManager.RunLoop cooperatively on the calling
// thread, used only in single-core mode; multi-core mode's helper
// threads are already running after start().
func (d *driver) runSingleCore() error {
	handlePacket := func() {
		if !d.gdb.IsServerEnabled() || !d.gdb.IsConnected() {
			return
		}
		runner := d.cpu.GetCurrentCoreRunner()
		thread, ok := runner.CurrentThread()
		if !ok {
			return
		}
		d.gdb.HandlePacket(thread)
	}
	connected := func() bool { return d.gdb.IsServerEnabled() && d.gdb.IsConnected() }

	for {
		if err := d.cpu.RunLoop(true, handlePacket, connected); err != nil {
			return err
		}
	}
}

func (d *driver) shutdown() error {
	gdbErr := d.gdb.Shutdown(0)
	cpuErr := d.cpu.Shutdown()
	if cpuErr != nil {
		return cpuErr
	}
	return gdbErr
}
