// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package logging holds the diagnostic logger. Operator-facing progress and
// remote command output are not routed through here.
package logging

import (
	"fmt"
	"io"
	"os"

	clog "github.com/charmbracelet/log"
)

// L is the package-level logger. Callers should use the helper functions
// below rather than reaching for L directly.
var L = clog.NewWithOptions(os.Stderr, clog.Options{Prefix: "serverprep"})

// SetDebug switches between debug and info level.
func SetDebug(enabled bool) {
	if enabled {
		L.SetLevel(clog.DebugLevel)
		return
	}
	L.SetLevel(clog.InfoLevel)
}

// SetOutput redirects the logger, keeping its level.
func SetOutput(w io.Writer) {
	L.SetOutput(w)
}

// Debugf logs a debug-level formatted message.
func Debugf(format string, v ...any) {
	L.Debug(fmt.Sprintf(format, v...))
}

// Infof logs an info-level formatted message.
func Infof(format string, v ...any) {
	L.Info(fmt.Sprintf(format, v...))
}

// Warnf logs a warning-level formatted message.
func Warnf(format string, v ...any) {
	L.Warn(fmt.Sprintf(format, v...))
}

// Errorf logs an error-level formatted message.
func Errorf(format string, v ...any) {
	L.Error(fmt.Sprintf(format, v...))
}
