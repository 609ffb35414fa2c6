package provision_test

import (
	"strings"
	"testing"

	"github.com/toeirei/serverprep/internal/provision"
)

func render(t *testing.T, step provision.Step, family provision.OSFamily, user string) string {
	t.Helper()
	out, err := provision.DefaultCommands().Render(step, family, user)
	if err != nil {
		t.Fatalf("Render(%s, %s): %v", step, family, err)
	}
	return out
}

func TestRender_UserBlockEmbedsUserName(t *testing.T) {
	for _, family := range []provision.OSFamily{provision.Ubuntu, provision.RHEL} {
		script := render(t, provision.StepUser, family, "deploy")
		for _, want := range []string{
			"useradd --create-home deploy",
			"/etc/sudoers.d/deploy",
			"'deploy ALL=(ALL:ALL) NOPASSWD: ALL'",
			"visudo -c -f",
			"usermod -aG docker deploy",
			"chmod 700 /home/deploy/.ssh",
			"chmod 600 /home/deploy/.ssh/authorized_keys",
			"cat /root/.ssh/authorized_keys >> /home/deploy/.ssh/authorized_keys",
		} {
			if !strings.Contains(script, want) {
				t.Errorf("%s user block missing %q:\n%s", family, want, script)
			}
		}
		if strings.Contains(script, "{{") {
			t.Errorf("unrendered template left in:\n%s", script)
		}
	}
}

func TestRender_UserNameIsNotQuoted(t *testing.T) {
	script := render(t, provision.StepUser, provision.Ubuntu, "a b")
	if !strings.Contains(script, "useradd --create-home a b") {
		t.Fatalf("user name should be inserted verbatim:\n%s", script)
	}
}

func TestRender_FamilyVariants(t *testing.T) {
	cases := []struct {
		step   provision.Step
		ubuntu string
		rhel   string
	}{
		{provision.StepEssentials, "apt-get install -y docker.io curl unattended-upgrades", "docker-ce.repo"},
		{provision.StepSwap, "fallocate -l 2GB /swapfile", "count=2048"},
		{provision.StepFail2ban, "apt-get install -y fail2ban", "yum install -y fail2ban"},
	}
	for _, tc := range cases {
		u := render(t, tc.step, provision.Ubuntu, "deploy")
		r := render(t, tc.step, provision.RHEL, "deploy")
		if !strings.Contains(u, tc.ubuntu) {
			t.Errorf("%s ubuntu variant missing %q:\n%s", tc.step, tc.ubuntu, u)
		}
		if !strings.Contains(r, tc.rhel) {
			t.Errorf("%s rhel variant missing %q:\n%s", tc.step, tc.rhel, r)
		}
		if u == r {
			t.Errorf("%s: variants should differ", tc.step)
		}
	}
}

func TestRender_SharedStepsIdenticalAcrossFamilies(t *testing.T) {
	for _, step := range []provision.Step{
		provision.StepStorage,
		provision.StepUser,
		provision.StepFirewall,
		provision.StepUnattendedUpgrades,
		provision.StepDisableRoot,
	} {
		if render(t, step, provision.Ubuntu, "deploy") != render(t, step, provision.RHEL, "deploy") {
			t.Errorf("%s differs between families", step)
		}
	}
}

func TestRender_SwapAndStorageSettings(t *testing.T) {
	for _, family := range []provision.OSFamily{provision.Ubuntu, provision.RHEL} {
		swap := render(t, provision.StepSwap, family, "deploy")
		for _, want := range []string{"chmod 600 /swapfile", "/etc/fstab", "vm.swappiness=20", "/etc/sysctl.conf"} {
			if !strings.Contains(swap, want) {
				t.Errorf("%s swap block missing %q", family, want)
			}
		}
	}
	storage := render(t, provision.StepStorage, provision.Ubuntu, "deploy")
	for _, want := range []string{"mkdir -p /storage", "chmod 700 /storage", "chown 1000:1000 /storage"} {
		if !strings.Contains(storage, want) {
			t.Errorf("storage block missing %q", want)
		}
	}
}

func TestRender_FirewallAndSSHD(t *testing.T) {
	fw := render(t, provision.StepFirewall, provision.Ubuntu, "deploy")
	for _, want := range []string{"ufw default deny incoming", "ufw default allow outgoing", "ufw allow 22", "ufw allow 80", "ufw allow 443", "ufw --force enable", "systemctl restart ufw"} {
		if !strings.Contains(fw, want) {
			t.Errorf("firewall block missing %q", want)
		}
	}
	sshd := render(t, provision.StepDisableRoot, provision.Ubuntu, "deploy")
	for _, want := range []string{"PasswordAuthentication no", "PermitRootLogin no", "/etc/ssh/sshd_config", "systemctl restart ssh"} {
		if !strings.Contains(sshd, want) {
			t.Errorf("disable_root block missing %q", want)
		}
	}
	up := render(t, provision.StepUnattendedUpgrades, provision.Ubuntu, "deploy")
	for _, want := range []string{`APT::Periodic::Update-Package-Lists "1";`, `APT::Periodic::Unattended-Upgrade "1";`, "systemctl restart unattended-upgrades"} {
		if !strings.Contains(up, want) {
			t.Errorf("unattended upgrades block missing %q", want)
		}
	}
}

func TestRender_UnknownStep(t *testing.T) {
	if _, err := provision.DefaultCommands().Render(provision.Step(99), provision.Ubuntu, "deploy"); err == nil {
		t.Fatalf("expected error for unknown step")
	}
	if got := provision.Step(99).String(); got != "step(99)" {
		t.Fatalf("unexpected String for unknown step: %q", got)
	}
}

func TestPlan_RendersWholeSequence(t *testing.T) {
	steps, err := provision.Plan(provision.DefaultCommands(), provision.RHEL, "deploy")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(steps) != len(provision.Sequence) {
		t.Fatalf("expected %d steps, got %d", len(provision.Sequence), len(steps))
	}
	for i, s := range steps {
		if s.Step != provision.Sequence[i] {
			t.Fatalf("step %d = %s, want %s", i, s.Step, provision.Sequence[i])
		}
	}
	if !strings.Contains(steps[0].Script, "yum") {
		t.Fatalf("rhel plan should start with yum essentials:\n%s", steps[0].Script)
	}
}

func TestSequence_Order(t *testing.T) {
	want := []string{"essentials", "swap", "storage", "user", "fail2ban", "firewall", "unattended_upgrades", "disable_root"}
	if len(provision.Sequence) != len(want) {
		t.Fatalf("unexpected sequence length %d", len(provision.Sequence))
	}
	for i, s := range provision.Sequence {
		if s.String() != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, s, want[i])
		}
	}
}
