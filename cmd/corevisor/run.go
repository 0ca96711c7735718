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
	"flag"

	"github.com/google/subcommands"

	"github.com/quadcore/corevisor/internal/config"
	"github.com/quadcore/corevisor/internal/corelog"
)

// runCmd starts emulation using whatever config file and flags the
// caller supplies; the GDB stub only comes up if gdbstub_enabled says
// so (spec.md §6).
type runCmd struct {
	configPath string
	conf       config.Config
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "start the emulator" }
func (*runCmd) Usage() string {
	return "run [-config path] [-multi-core] [-gdbstub-enabled] [-gdbstub-port N]:\n" +
		"\tstart the four-core emulator.\n"
}

func (c *runCmd) SetFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "path to a TOML config file (defaults layered under flags)")
	c.conf = *config.Default()
	config.RegisterFlags(fs, &c.conf)
}

func (c *runCmd) Execute(ctx context.Context, fs *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	conf := &c.conf
	if c.configPath != "" {
		fileConf, err := config.LoadTOML(c.configPath)
		if err != nil {
			corelog.Warningf("run: %v", err)
			return subcommands.ExitFailure
		}
		// Re-apply the flags given on the command line on top of the
		// file's values, so the file only supplies defaults.
		fileFlags := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
		config.RegisterFlags(fileFlags, fileConf)
		fs.Visit(func(f *flag.Flag) {
			if fileFlags.Lookup(f.Name) != nil {
				fileFlags.Set(f.Name, f.Value.String())
			}
		})
		fs = fileFlags
		conf = fileConf
	}
	if _, err := config.NewFromFlags(fs, conf); err != nil {
		corelog.Warningf("run: %v", err)
		return subcommands.ExitUsageError
	}

	d, err := newDriver(conf)
	if err != nil {
		corelog.Warningf("run: %v", err)
		return subcommands.ExitFailure
	}
	defer d.shutdown()

	if err := d.start(ctx); err != nil {
		corelog.Warningf("run: %v", err)
		return subcommands.ExitFailure
	}

	if conf.UseMultiCore {
		<-ctx.Done()
		return subcommands.ExitSuccess
	}
	if err := d.runSingleCore(); err != nil {
		corelog.Warningf("run: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
