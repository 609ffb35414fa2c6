// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package provision

import (
	"fmt"
	"strings"
	"text/template"
)

// Step identifies one command block in the preparation sequence.
type Step int

const (
	StepEssentials Step = iota
	StepSwap
	StepStorage
	StepUser
	StepFail2ban
	StepFirewall
	StepUnattendedUpgrades
	StepDisableRoot
)

// Sequence is the fixed order in which steps run on every host.
var Sequence = []Step{
	StepEssentials,
	StepSwap,
	StepStorage,
	StepUser,
	StepFail2ban,
	StepFirewall,
	StepUnattendedUpgrades,
	StepDisableRoot,
}

var stepKeys = map[Step]string{
	StepEssentials:         "essentials",
	StepSwap:               "swap",
	StepStorage:            "storage",
	StepUser:               "user",
	StepFail2ban:           "fail2ban",
	StepFirewall:           "firewall",
	StepUnattendedUpgrades: "unattended_upgrades",
	StepDisableRoot:        "disable_root",
}

// String returns the step's stable identifier.
func (s Step) String() string {
	if k, ok := stepKeys[s]; ok {
		return k
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Block is one shell script with an Ubuntu and a RHEL variant. Steps that do
// not differ per family carry the same template in both.
type Block struct {
	Ubuntu *template.Template
	RHEL   *template.Template
}

// CommandSet is the immutable table of command blocks.
type CommandSet struct {
	blocks map[Step]Block
}

// templateData is the single substitution slot available to templates. The
// user name is inserted verbatim: no shell quoting is applied, so it must
// come from a trusted descriptor.
type templateData struct {
	User string
}

// Render returns the script text for step on family with user substituted.
func (c CommandSet) Render(step Step, family OSFamily, user string) (string, error) {
	b, ok := c.blocks[step]
	if !ok {
		return "", fmt.Errorf("no command block for step %s", step)
	}
	t := b.Ubuntu
	if family == RHEL {
		t = b.RHEL
	}
	var sb strings.Builder
	if err := t.Execute(&sb, templateData{User: user}); err != nil {
		return "", fmt.Errorf("render %s: %w", step, err)
	}
	return sb.String(), nil
}

// DefaultCommands returns the built-in command table.
func DefaultCommands() CommandSet {
	return defaultCommands
}

var defaultCommands = CommandSet{blocks: map[Step]Block{
	StepEssentials:         perFamily("essentials", ubuntuEssentials, rhelEssentials),
	StepSwap:               perFamily("swap", ubuntuSwap, rhelSwap),
	StepStorage:            shared("storage", storageScript),
	StepUser:               shared("user", userScript),
	StepFail2ban:           perFamily("fail2ban", ubuntuFail2ban, rhelFail2ban),
	StepFirewall:           shared("firewall", firewallScript),
	StepUnattendedUpgrades: shared("unattended_upgrades", unattendedUpgradesScript),
	StepDisableRoot:        shared("disable_root", disableRootScript),
}}

func perFamily(name, ubuntu, rhel string) Block {
	return Block{
		Ubuntu: template.Must(template.New(name + ".ubuntu").Option("missingkey=error").Parse(ubuntu)),
		RHEL:   template.Must(template.New(name + ".rhel").Option("missingkey=error").Parse(rhel)),
	}
}

func shared(name, script string) Block {
	t := template.Must(template.New(name).Option("missingkey=error").Parse(script))
	return Block{Ubuntu: t, RHEL: t}
}

const ubuntuEssentials = `apt-get update
DEBIAN_FRONTEND=noninteractive apt-get upgrade -y
DEBIAN_FRONTEND=noninteractive apt-get install -y docker.io curl unattended-upgrades
systemctl enable --now docker
`

const rhelEssentials = `yum update -y
yum install -y yum-utils curl
yum-config-manager --add-repo https://download.docker.com/linux/centos/docker-ce.repo
yum install -y docker-ce docker-ce-cli containerd.io
systemctl enable --now docker
`

const ubuntuSwap = `fallocate -l 2GB /swapfile
chmod 600 /swapfile
mkswap /swapfile
swapon /swapfile
echo "/swapfile swap swap defaults 0 0" >> /etc/fstab
sysctl vm.swappiness=20
echo "vm.swappiness=20" >> /etc/sysctl.conf
`

const rhelSwap = `dd if=/dev/zero of=/swapfile bs=1M count=2048
chmod 600 /swapfile
mkswap /swapfile
swapon /swapfile
echo "/swapfile swap swap defaults 0 0" >> /etc/fstab
sysctl vm.swappiness=20
echo "vm.swappiness=20" >> /etc/sysctl.conf
`

// uid/gid 1000 is the id the deployment user receives when it is created in
// the next step.
const storageScript = `mkdir -p /storage
chmod 700 /storage
chown 1000:1000 /storage
`

const userScript = `useradd --create-home {{.User}}
usermod -s /bin/bash {{.User}}
su - {{.User}} -c 'mkdir -p ~/.ssh'
su - {{.User}} -c 'touch ~/.ssh/authorized_keys'
cat /root/.ssh/authorized_keys >> /home/{{.User}}/.ssh/authorized_keys
chmod 700 /home/{{.User}}/.ssh
chmod 600 /home/{{.User}}/.ssh/authorized_keys
echo '{{.User}} ALL=(ALL:ALL) NOPASSWD: ALL' > /tmp/sudoers.{{.User}}
visudo -c -f /tmp/sudoers.{{.User}} && install -m 0440 /tmp/sudoers.{{.User}} /etc/sudoers.d/{{.User}}
rm -f /tmp/sudoers.{{.User}}
usermod -aG docker {{.User}}
`

const ubuntuFail2ban = `DEBIAN_FRONTEND=noninteractive apt-get install -y fail2ban
systemctl start fail2ban
systemctl enable fail2ban
`

const rhelFail2ban = `yum install -y epel-release
yum install -y fail2ban
systemctl start fail2ban
systemctl enable fail2ban
`

// ufw only exists on the Ubuntu family; the RHEL path has no firewall
// variant and this block runs there unchanged.
const firewallScript = `ufw logging on
ufw default deny incoming
ufw default allow outgoing
ufw allow 22
ufw allow 80
ufw allow 443
ufw --force enable
systemctl restart ufw
`

const unattendedUpgradesScript = `echo 'APT::Periodic::Update-Package-Lists "1";' > /etc/apt/apt.conf.d/20auto-upgrades
echo 'APT::Periodic::Unattended-Upgrade "1";' >> /etc/apt/apt.conf.d/20auto-upgrades
systemctl restart unattended-upgrades
`

const disableRootScript = `sed -i -E 's/^#?[[:space:]]*PasswordAuthentication[[:space:]].*/PasswordAuthentication no/' /etc/ssh/sshd_config
sed -i -E 's/^#?[[:space:]]*PermitRootLogin[[:space:]].*/PermitRootLogin no/' /etc/ssh/sshd_config
systemctl restart ssh || systemctl restart sshd
`
