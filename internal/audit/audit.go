// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package audit verifies, read-only, that a host looks the way the
// provisioning sequence leaves it. Files are read through a FileSystem,
// which the SSH client implements over SFTP.
package audit

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/sftp"
)

// FileSystem is the read access an audit needs.
type FileSystem interface {
	Stat(path string) (os.FileInfo, error)
	ReadFile(path string) ([]byte, error)
	ReadDir(path string) ([]os.FileInfo, error)
}

// Status is the outcome of a single check.
type Status int

const (
	Pass Status = iota
	Fail
	Unknown
)

func (s Status) String() string {
	switch s {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	default:
		return "unknown"
	}
}

// Check is one audited property of a host.
type Check struct {
	Name   string
	Status Status
	Detail string
}

// Paths read by Run.
const (
	OSReleasePath    = "/etc/os-release"
	SSHDConfigPath   = "/etc/ssh/sshd_config"
	SwapfilePath     = "/swapfile"
	StoragePath      = "/storage"
	AutoUpgradesPath = "/etc/apt/apt.conf.d/20auto-upgrades"
)

// StorageOwner is the uid and gid the storage directory is handed to.
const StorageOwner = 1000

// Run performs every check against fs for the given deployment user.
func Run(fs FileSystem, user string) []Check {
	return []Check{
		checkOSRelease(fs),
		checkSSHD(fs, "root-login", "permitrootlogin", "no"),
		checkSSHD(fs, "password-auth", "passwordauthentication", "no"),
		checkSwapfile(fs),
		checkStorage(fs),
		checkAuthorizedKeys(fs, user),
		checkAutoUpgrades(fs),
	}
}

// Failed counts checks that did not pass.
func Failed(checks []Check) int {
	n := 0
	for _, c := range checks {
		if c.Status != Pass {
			n++
		}
	}
	return n
}

var (
	passStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	unknownStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// Write prints one line per check.
func Write(w io.Writer, checks []Check) error {
	for _, c := range checks {
		var label string
		switch c.Status {
		case Pass:
			label = passStyle.Render(c.Status.String())
		case Fail:
			label = failStyle.Render(c.Status.String())
		default:
			label = unknownStyle.Render(c.Status.String())
		}
		if _, err := fmt.Fprintf(w, "  [%s] %s: %s\n", label, c.Name, c.Detail); err != nil {
			return err
		}
	}
	return nil
}

// unreadable turns a read error into a check result. A missing file fails
// the check; anything else leaves it undecided.
func unreadable(name, p string, err error) Check {
	if errors.Is(err, os.ErrNotExist) {
		return Check{Name: name, Status: Fail, Detail: p + " is missing"}
	}
	if errors.Is(err, os.ErrPermission) {
		return Check{Name: name, Status: Unknown, Detail: p + " is not readable"}
	}
	return Check{Name: name, Status: Unknown, Detail: err.Error()}
}

func checkOSRelease(fs FileSystem) Check {
	const name = "os"
	content, err := fs.ReadFile(OSReleasePath)
	if err != nil {
		return Check{Name: name, Status: Unknown, Detail: err.Error()}
	}
	for _, line := range strings.Split(string(content), "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "PRETTY_NAME="); ok {
			return Check{Name: name, Status: Pass, Detail: strings.Trim(v, `"'`)}
		}
	}
	return Check{Name: name, Status: Unknown, Detail: "no PRETTY_NAME in " + OSReleasePath}
}

// sshdMaxIncludeDepth matches the nesting limit sshd enforces.
const sshdMaxIncludeDepth = 16

// sshdOption returns the value sshd uses for keyword: the first one outside
// any Match block, with Include directives expanded in place.
func sshdOption(fs FileSystem, content []byte, keyword string, depth int) (string, bool, error) {
	sc := bufio.NewScanner(bytes.NewReader(content))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(strings.Replace(line, "=", " ", 1))
		if len(fields) < 2 {
			continue
		}
		switch strings.ToLower(fields[0]) {
		case "match":
			return "", false, nil
		case keyword:
			return strings.ToLower(fields[1]), true, nil
		case "include":
			if depth >= sshdMaxIncludeDepth {
				return "", false, errors.New("sshd Include nested too deeply")
			}
			for _, pattern := range fields[1:] {
				files, err := expandInclude(fs, pattern)
				if err != nil {
					return "", false, err
				}
				for _, f := range files {
					included, err := fs.ReadFile(f)
					if errors.Is(err, os.ErrNotExist) {
						continue
					}
					if err != nil {
						return "", false, fmt.Errorf("failed to read %s: %w", f, err)
					}
					if v, ok, err := sshdOption(fs, included, keyword, depth+1); err != nil || ok {
						return v, ok, err
					}
				}
			}
		}
	}
	return "", false, sc.Err()
}

// expandInclude resolves one Include argument to files in lexical order.
// Relative paths are taken from /etc/ssh and globs may only appear in the
// last path element.
func expandInclude(fs FileSystem, pattern string) ([]string, error) {
	if !path.IsAbs(pattern) {
		pattern = path.Join(path.Dir(SSHDConfigPath), pattern)
	}
	dir, base := path.Split(pattern)
	if !strings.ContainsAny(base, "*?[") {
		return []string{pattern}, nil
	}
	entries, err := fs.ReadDir(path.Clean(dir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if ok, _ := path.Match(base, e.Name()); ok && !e.IsDir() {
			files = append(files, path.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func checkSSHD(fs FileSystem, name, keyword, want string) Check {
	content, err := fs.ReadFile(SSHDConfigPath)
	if err != nil {
		return unreadable(name, SSHDConfigPath, err)
	}
	got, ok, err := sshdOption(fs, content, keyword, 0)
	if err != nil {
		return Check{Name: name, Status: Unknown, Detail: err.Error()}
	}
	if !ok {
		return Check{Name: name, Status: Fail, Detail: keyword + " is not set (sshd default applies)"}
	}
	if got != want {
		return Check{Name: name, Status: Fail, Detail: fmt.Sprintf("%s is %q, want %q", keyword, got, want)}
	}
	return Check{Name: name, Status: Pass, Detail: keyword + " " + got}
}

func checkSwapfile(fs FileSystem) Check {
	const name = "swap"
	info, err := fs.Stat(SwapfilePath)
	if err != nil {
		return unreadable(name, SwapfilePath, err)
	}
	if !info.Mode().IsRegular() {
		return Check{Name: name, Status: Fail, Detail: SwapfilePath + " is not a regular file"}
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		return Check{Name: name, Status: Fail, Detail: fmt.Sprintf("%s has mode %04o, want 0600", SwapfilePath, perm)}
	}
	return Check{Name: name, Status: Pass, Detail: fmt.Sprintf("%s, %d MiB", SwapfilePath, info.Size()>>20)}
}

func checkStorage(fs FileSystem) Check {
	const name = "storage"
	info, err := fs.Stat(StoragePath)
	if err != nil {
		return unreadable(name, StoragePath, err)
	}
	if !info.IsDir() {
		return Check{Name: name, Status: Fail, Detail: StoragePath + " is not a directory"}
	}
	if perm := info.Mode().Perm(); perm != 0o700 {
		return Check{Name: name, Status: Fail, Detail: fmt.Sprintf("%s has mode %04o, want 0700", StoragePath, perm)}
	}
	stat, ok := info.Sys().(*sftp.FileStat)
	if !ok {
		return Check{Name: name, Status: Unknown, Detail: "owner of " + StoragePath + " is not reported"}
	}
	if stat.UID != StorageOwner || stat.GID != StorageOwner {
		return Check{Name: name, Status: Fail, Detail: fmt.Sprintf("%s is owned by %d:%d, want %d:%d", StoragePath, stat.UID, stat.GID, StorageOwner, StorageOwner)}
	}
	return Check{Name: name, Status: Pass, Detail: fmt.Sprintf("%s 0700 %d:%d", StoragePath, stat.UID, stat.GID)}
}

// AuthorizedKeysPath is where the deployment user's keys are copied to.
func AuthorizedKeysPath(user string) string {
	return path.Join("/home", user, ".ssh", "authorized_keys")
}

func checkAuthorizedKeys(fs FileSystem, user string) Check {
	const name = "authorized-keys"
	p := AuthorizedKeysPath(user)
	content, err := fs.ReadFile(p)
	if err != nil {
		return unreadable(name, p, err)
	}
	keys := 0
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			keys++
		}
	}
	if keys == 0 {
		return Check{Name: name, Status: Fail, Detail: p + " has no keys"}
	}
	return Check{Name: name, Status: Pass, Detail: fmt.Sprintf("%s has %d key(s)", p, keys)}
}

func checkAutoUpgrades(fs FileSystem) Check {
	const name = "auto-upgrades"
	content, err := fs.ReadFile(AutoUpgradesPath)
	if err != nil {
		return unreadable(name, AutoUpgradesPath, err)
	}
	var missing []string
	for _, opt := range []string{"APT::Periodic::Update-Package-Lists", "APT::Periodic::Unattended-Upgrade"} {
		if !strings.Contains(string(content), opt+` "1"`) {
			missing = append(missing, opt)
		}
	}
	if len(missing) > 0 {
		return Check{Name: name, Status: Fail, Detail: "not enabled: " + strings.Join(missing, ", ")}
	}
	return Check{Name: name, Status: Pass, Detail: AutoUpgradesPath}
}
