// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package audit_test

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/toeirei/serverprep/internal/audit"
	"github.com/toeirei/serverprep/internal/testutil"
)

// preparedHost returns a file system as left behind by a full Ubuntu run.
func preparedHost() *testutil.FakeFS {
	fs := testutil.NewFakeFS()
	fs.WriteFile(audit.OSReleasePath, "NAME=\"Ubuntu\"\nPRETTY_NAME=\"Ubuntu 22.04.4 LTS\"\n", 0o644)
	fs.WriteFile(audit.SSHDConfigPath, "Include /etc/ssh/sshd_config.d/*.conf\nPermitRootLogin no\n#PasswordAuthentication yes\nPasswordAuthentication no\n", 0o644)
	fs.WriteFile(audit.SwapfilePath, "", 0o600)
	fs.Mkdir(audit.StoragePath, 0o700, 1000, 1000)
	fs.WriteFile(audit.AuthorizedKeysPath("deploy"), "ssh-ed25519 AAAA deploy@laptop\n", 0o600)
	fs.WriteFile(audit.AutoUpgradesPath, "APT::Periodic::Update-Package-Lists \"1\";\nAPT::Periodic::Unattended-Upgrade \"1\";\n", 0o644)
	return fs
}

func byName(checks []audit.Check) map[string]audit.Check {
	m := map[string]audit.Check{}
	for _, c := range checks {
		m[c.Name] = c
	}
	return m
}

func TestRun_PreparedHostPasses(t *testing.T) {
	checks := audit.Run(preparedHost(), "deploy")
	if len(checks) != 7 {
		t.Fatalf("expected 7 checks, got %d", len(checks))
	}
	for _, c := range checks {
		if c.Status != audit.Pass {
			t.Errorf("%s: expected pass, got %s (%s)", c.Name, c.Status, c.Detail)
		}
	}
	if d := byName(checks)["os"].Detail; d != "Ubuntu 22.04.4 LTS" {
		t.Errorf("unexpected os detail %q", d)
	}
	if audit.Failed(checks) != 0 {
		t.Errorf("expected no failures")
	}
}

func TestRun_DetectsDeviations(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(fs *testutil.FakeFS)
		check  string
		want   audit.Status
	}{
		{
			name:   "root login still allowed",
			mutate: func(fs *testutil.FakeFS) { fs.WriteFile(audit.SSHDConfigPath, "PermitRootLogin yes\nPasswordAuthentication no\n", 0o644) },
			check:  "root-login",
			want:   audit.Fail,
		},
		{
			name:   "password auth unset",
			mutate: func(fs *testutil.FakeFS) { fs.WriteFile(audit.SSHDConfigPath, "PermitRootLogin no\n", 0o644) },
			check:  "password-auth",
			want:   audit.Fail,
		},
		{
			name: "setting inside match block ignored",
			mutate: func(fs *testutil.FakeFS) {
				fs.WriteFile(audit.SSHDConfigPath, "PasswordAuthentication no\nMatch User admin\n  PermitRootLogin no\n", 0o644)
			},
			check: "root-login",
			want:  audit.Fail,
		},
		{
			name: "cloud-init drop-in enables passwords before the main file",
			mutate: func(fs *testutil.FakeFS) {
				fs.WriteFile("/etc/ssh/sshd_config.d/50-cloud-init.conf", "PasswordAuthentication yes\n", 0o600)
			},
			check: "password-auth",
			want:  audit.Fail,
		},
		{
			name: "relative include read before the main file",
			mutate: func(fs *testutil.FakeFS) {
				fs.WriteFile(audit.SSHDConfigPath, "Include extra.conf\nPermitRootLogin no\nPasswordAuthentication no\n", 0o644)
				fs.WriteFile("/etc/ssh/extra.conf", "passwordauthentication=yes\n", 0o644)
			},
			check: "password-auth",
			want:  audit.Fail,
		},
		{
			name: "unreadable drop-in",
			mutate: func(fs *testutil.FakeFS) {
				fs.Files["/etc/ssh/sshd_config.d/50-cloud-init.conf"] = testutil.FakeFile{Err: os.ErrPermission}
				fs.WriteFile(audit.SSHDConfigPath, "PermitRootLogin no\nInclude /etc/ssh/sshd_config.d/*.conf\nPasswordAuthentication no\n", 0o644)
			},
			check: "password-auth",
			want:  audit.Unknown,
		},
		{
			name:   "swapfile world readable",
			mutate: func(fs *testutil.FakeFS) { fs.WriteFile(audit.SwapfilePath, "", 0o644) },
			check:  "swap",
			want:   audit.Fail,
		},
		{
			name:   "swapfile missing",
			mutate: func(fs *testutil.FakeFS) { delete(fs.Files, audit.SwapfilePath) },
			check:  "swap",
			want:   audit.Fail,
		},
		{
			name:   "storage owned by root",
			mutate: func(fs *testutil.FakeFS) { fs.Mkdir(audit.StoragePath, 0o700, 0, 0) },
			check:  "storage",
			want:   audit.Fail,
		},
		{
			name:   "storage is a file",
			mutate: func(fs *testutil.FakeFS) { fs.WriteFile(audit.StoragePath, "", 0o700) },
			check:  "storage",
			want:   audit.Fail,
		},
		{
			name:   "authorized_keys empty",
			mutate: func(fs *testutil.FakeFS) { fs.WriteFile(audit.AuthorizedKeysPath("deploy"), "\n# none\n", 0o600) },
			check:  "authorized-keys",
			want:   audit.Fail,
		},
		{
			name: "authorized_keys unreadable",
			mutate: func(fs *testutil.FakeFS) {
				fs.Files[audit.AuthorizedKeysPath("deploy")] = testutil.FakeFile{Err: os.ErrPermission}
			},
			check: "authorized-keys",
			want:  audit.Unknown,
		},
		{
			name:   "auto upgrades half configured",
			mutate: func(fs *testutil.FakeFS) { fs.WriteFile(audit.AutoUpgradesPath, "APT::Periodic::Update-Package-Lists \"1\";\n", 0o644) },
			check:  "auto-upgrades",
			want:   audit.Fail,
		},
		{
			name:   "os-release missing",
			mutate: func(fs *testutil.FakeFS) { delete(fs.Files, audit.OSReleasePath) },
			check:  "os",
			want:   audit.Unknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := preparedHost()
			tc.mutate(fs)
			checks := audit.Run(fs, "deploy")
			got := byName(checks)[tc.check]
			if got.Status != tc.want {
				t.Fatalf("%s: expected %s, got %s (%s)", tc.check, tc.want, got.Status, got.Detail)
			}
			if audit.Failed(checks) != 1 {
				t.Fatalf("expected exactly one non-passing check, got %d", audit.Failed(checks))
			}
		})
	}
}

func TestRun_SSHDIncludesFollowedInOrder(t *testing.T) {
	fs := preparedHost()
	fs.WriteFile("/etc/ssh/sshd_config.d/10-hardening.conf", "PasswordAuthentication no\n", 0o600)
	fs.WriteFile("/etc/ssh/sshd_config.d/50-cloud-init.conf", "PasswordAuthentication yes\n", 0o600)
	fs.WriteFile("/etc/ssh/sshd_config.d/README", "PasswordAuthentication yes\n", 0o644)
	fs.Mkdir("/etc/ssh/sshd_config.d/old.conf", 0o755, 0, 0)

	got := byName(audit.Run(fs, "deploy"))["password-auth"]
	if got.Status != audit.Pass {
		t.Fatalf("expected the first drop-in to win, got %s (%s)", got.Status, got.Detail)
	}
	for _, p := range fs.Reads {
		if strings.HasSuffix(p, "README") {
			t.Errorf("unexpected read of %s", p)
		}
	}
}

func TestRun_ReadsOnlyExpectedFiles(t *testing.T) {
	fs := preparedHost()
	audit.Run(fs, "deploy")
	for _, p := range fs.Reads {
		switch p {
		case audit.OSReleasePath, audit.SSHDConfigPath, audit.AutoUpgradesPath, "/home/deploy/.ssh/authorized_keys":
		default:
			t.Errorf("unexpected read of %s", p)
		}
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	checks := []audit.Check{
		{Name: "swap", Status: audit.Pass, Detail: "/swapfile"},
		{Name: "storage", Status: audit.Fail, Detail: "/storage is missing"},
		{Name: "authorized-keys", Status: audit.Unknown, Detail: "not readable"},
	}
	if err := audit.Write(&buf, checks); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"pass", "swap: /swapfile", "fail", "storage: /storage is missing", "unknown"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "\n") != 3 {
		t.Errorf("expected 3 lines, got:\n%s", out)
	}
}
