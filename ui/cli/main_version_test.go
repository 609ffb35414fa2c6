// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.
package cli

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestResolveBuildVersion_MainVersion(t *testing.T) {
	info := &debug.BuildInfo{
		Main: debug.Module{Path: "github.com/toeirei/serverprep", Version: "v1.2.3"},
	}
	v, c, d := resolveBuildVersion(info)
	if v != "v1.2.3" {
		t.Fatalf("expected v1.2.3 got %s", v)
	}
	if c != gitCommit {
		t.Fatalf("expected commit to equal package gitCommit (default) got %s", c)
	}
	if d != buildDate {
		t.Fatalf("expected date to equal package buildDate (default) got %s", d)
	}
}

func TestResolveBuildVersion_DependencyFallback(t *testing.T) {
	info := &debug.BuildInfo{
		Main: debug.Module{Path: "github.com/toeirei/serverprep", Version: "(devel)"},
		Deps: []*debug.Module{
			{Path: "github.com/toeirei/serverprep", Version: "v0.3.1-0.20260912081500-4b1c9e07d2aa"},
		},
	}
	v, _, _ := resolveBuildVersion(info)
	if v != "v0.3.1-0.20260912081500-4b1c9e07d2aa" {
		t.Fatalf("expected dependency version fallback got %s", v)
	}
}

func TestResolveBuildVersion_GitCommitFallback(t *testing.T) {
	// preserve original
	orig := gitCommit
	defer func() { gitCommit = orig }()
	gitCommit = "deadbeef"
	info := &debug.BuildInfo{
		Main: debug.Module{Path: "github.com/toeirei/serverprep", Version: "(devel)"},
	}
	v, _, _ := resolveBuildVersion(info)
	if v != "deadbeef" {
		t.Fatalf("expected gitCommit fallback got %s", v)
	}
}

func TestResolveBuildVersion_VCSSettings(t *testing.T) {
	info := &debug.BuildInfo{
		Main: debug.Module{Path: "github.com/toeirei/serverprep", Version: "v0.4.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "4b1c9e0"},
			{Key: "vcs.time", Value: "2026-09-12T08:15:00Z"},
		},
	}
	v, c, d := resolveBuildVersion(info)
	if v != "v0.4.0" || c != "4b1c9e0" || d != "2026-09-12T08:15:00Z" {
		t.Fatalf("unexpected version info %q %q %q", v, c, d)
	}
}

func TestVersionCmd(t *testing.T) {
	isolate(t)
	out, err := executeCommand(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "version: ") || !strings.Contains(out, "commit: ") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}
