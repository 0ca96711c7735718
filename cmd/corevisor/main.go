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

// Command corevisor drives the four-core emulator described by
// SPEC_FULL.md: CpuManager's scheduling loop and the GDB remote
// protocol server sit behind two subcommands, `run` and `debug`.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	"github.com/quadcore/corevisor/internal/corelog"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&runCmd{}, "")
	subcommands.Register(&debugCmd{}, "")

	flag.Parse()
	corelog.SetLevel(corelog.Info)

	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}
