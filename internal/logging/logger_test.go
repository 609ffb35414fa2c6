package logging

import (
	"bytes"
	"strings"
	"testing"

	clog "github.com/charmbracelet/log"
)

// TestLoggingHelpers_WriteToBuffer verifies the package helper functions write
// formatted messages to the package-level logger `L`. The test swaps `L` with
// a buffer-backed logger and restores it afterwards.
func TestLoggingHelpers_WriteToBuffer(t *testing.T) {
	var buf bytes.Buffer
	prev := L
	L = clog.New(&buf)
	L.SetLevel(clog.DebugLevel)
	defer func() { L = prev }()

	Debugf("hello %s", "dbg")
	Infof("info %d", 1)
	Warnf("warn")
	Errorf("err %v", "E")

	out := buf.String()
	for _, want := range []string{"hello dbg", "info 1", "warn", "err E"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output; got: %s", want, out)
		}
	}
}

func TestSetDebug_TogglesDebugOutput(t *testing.T) {
	var buf bytes.Buffer
	prev := L
	L = clog.New(&buf)
	defer func() { L = prev }()

	SetDebug(false)
	Debugf("hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("debug message written while debug disabled: %s", buf.String())
	}

	SetDebug(true)
	Debugf("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("debug message missing after SetDebug(true): %s", buf.String())
	}
}
