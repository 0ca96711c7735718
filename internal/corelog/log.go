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

// Package corelog provides the package-level logging surface used
// throughout corevisor. It mirrors the Debugf/Infof/Warningf/Fatalf
// call shape used pervasively across the codebase, backed by logrus.
package corelog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Level is a logging verbosity level.
type Level int

const (
	Warning Level = iota
	Info
	Debug
)

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel sets the process-wide logging verbosity.
func SetLevel(lvl Level) {
	switch lvl {
	case Debug:
		base.SetLevel(logrus.DebugLevel)
	case Info:
		base.SetLevel(logrus.InfoLevel)
	default:
		base.SetLevel(logrus.WarnLevel)
	}
}

// Debugf logs at debug level.
func Debugf(format string, args ...any) { base.Debugf(format, args...) }

// Infof logs at info level.
func Infof(format string, args ...any) { base.Infof(format, args...) }

// Warningf logs at warning level.
func Warningf(format string, args ...any) { base.Warnf(format, args...) }

// Fatalf logs at fatal level and terminates the process. Reserved for
// SchedulerInvariantViolation-class conditions in release builds that
// choose to terminate rather than continue (see pkg/corekernel/errors.go).
func Fatalf(format string, args ...any) { base.Fatalf(format, args...) }
