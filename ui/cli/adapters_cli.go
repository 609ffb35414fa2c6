// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/toeirei/serverprep/config"
	"github.com/toeirei/serverprep/internal/audit"
	"github.com/toeirei/serverprep/internal/i18n"
	"github.com/toeirei/serverprep/internal/provision"
	"github.com/toeirei/serverprep/internal/remote"
	"golang.org/x/term"
)

var hostHeading = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

// Swapped in tests.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// newProvisionDialer returns the dialer prepare uses.
var newProvisionDialer = func(opts remote.Options) provision.Dialer {
	return remoteDialer{opts: opts}
}

// auditTarget is a connected host the auditor can read from.
type auditTarget interface {
	audit.FileSystem
	Close() error
}

var dialAudit = func(host string, opts remote.Options) (auditTarget, error) {
	c, err := remote.Dial(host, opts)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// remoteDialer adapts remote.Dial to provision.Dialer.
type remoteDialer struct {
	opts remote.Options
}

func (d remoteDialer) Dial(host string) (provision.Session, error) {
	c, err := remote.Dial(host, d.opts)
	if err != nil {
		return nil, err
	}
	return remoteSession{client: c}, nil
}

type remoteSession struct {
	client *remote.Client
}

func (s remoteSession) Run(cmd string) (provision.Result, error) {
	res, err := s.client.Run(cmd)
	return provision.Result{Output: res.Output, ExitStatus: res.ExitStatus}, err
}

func (s remoteSession) Close() error { return s.client.Close() }

// sshOptions turns settings into connection options for user.
func sshOptions(c config.Config, user string) (remote.Options, error) {
	opts := remote.DefaultOptions()
	opts.User = user
	if c.SSH.Port != 0 {
		opts.Port = c.SSH.Port
	}
	if c.SSH.ConnectTimeout > 0 {
		opts.Timeout = c.SSH.ConnectTimeout
	}

	policy, err := remote.ParseHostKeyPolicy(c.SSH.HostKeyPolicy)
	if err != nil {
		return opts, err
	}
	opts.HostKeyPolicy = policy

	if opts.KnownHosts, err = config.ExpandHome(c.SSH.KnownHosts); err != nil {
		return opts, err
	}
	for _, f := range c.SSH.IdentityFiles {
		path, err := config.ExpandHome(f)
		if err != nil {
			return opts, err
		}
		opts.IdentityFiles = append(opts.IdentityFiles, path)
	}

	if isTerminal(int(os.Stdin.Fd())) {
		opts.Passphrase = promptPassphrase
	}
	return opts, nil
}

func promptPassphrase(path string) ([]byte, error) {
	fmt.Fprint(os.Stderr, i18n.T("config.passphrase_prompt", path))
	pass, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	if len(pass) == 0 {
		return nil, errors.New("empty passphrase")
	}
	return pass, nil
}
