// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package provision

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/toeirei/serverprep/internal/i18n"
	"github.com/toeirei/serverprep/internal/logging"
)

// LoginUser is the account every host is prepared as.
const LoginUser = "root"

// Result is the outcome of one remote command. ExitStatus is informational:
// the driver never stops on it.
type Result struct {
	Output     string
	ExitStatus int
}

// Runner executes one command block and waits for it to finish.
type Runner interface {
	Run(cmd string) (Result, error)
}

// Session is an open connection to one host.
type Session interface {
	Runner
	Close() error
}

// Dialer opens a root session to a host.
type Dialer interface {
	Dial(host string) (Session, error)
}

var (
	hostStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	stepStyle = lipgloss.NewStyle().Bold(true)
	doneStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
)

// Provisioner prepares hosts one after another.
type Provisioner struct {
	Dialer   Dialer
	Commands CommandSet
	Out      io.Writer
	// Port only affects the login reminder.
	Port int
}

// New returns a Provisioner using the built-in command table.
func New(d Dialer, out io.Writer) *Provisioner {
	return &Provisioner{Dialer: d, Commands: DefaultCommands(), Out: out, Port: 22}
}

// Run prepares every host in order. The first connection or transport error
// aborts the run; hosts after it are not contacted and hosts before it are
// left as they are. Remote exit statuses never abort. The summary is
// printed either way and the returned string is the login command it
// suggested (empty when there are no hosts).
func (p *Provisioner) Run(hosts []string, user string) (string, error) {
	var runErr error
	for _, host := range hosts {
		if runErr = p.prepareHost(host, user); runErr != nil {
			break
		}
	}
	return p.report(hosts, user), runErr
}

func (p *Provisioner) prepareHost(host, user string) error {
	fmt.Fprintln(p.Out, hostStyle.Render(i18n.T("prepare.connecting", host, LoginUser)))
	s, err := p.Dialer.Dial(host)
	if err != nil {
		return fmt.Errorf(i18n.T("prepare.error_connect"), host, err)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			logging.Debugf("closing session to %s: %v", host, cerr)
		}
	}()

	family, probe, err := DetectOSFamily(s)
	if err != nil {
		return fmt.Errorf(i18n.T("prepare.error_run"), host, "detect_os", err)
	}
	fmt.Fprintln(p.Out, i18n.T("prepare.detected_os", host, i18n.T("os."+family.String()), probe))

	for _, step := range Sequence {
		script, err := p.Commands.Render(step, family, user)
		if err != nil {
			return err
		}
		fmt.Fprintln(p.Out, stepStyle.Render(i18n.T("prepare.step", host, i18n.T("step."+step.String()))))
		res, err := s.Run(script)
		if err != nil {
			return fmt.Errorf(i18n.T("prepare.error_run"), host, step, err)
		}
		if res.ExitStatus != 0 {
			logging.Debugf("%s: %s exited with status %d", host, step, res.ExitStatus)
		}
		writeOutput(p.Out, res.Output)
	}

	fmt.Fprintln(p.Out, i18n.T("prepare.host_done", host))
	return nil
}

func (p *Provisioner) report(hosts []string, user string) string {
	fmt.Fprintln(p.Out, doneStyle.Render(i18n.T("prepare.done")))
	if len(hosts) == 0 {
		return ""
	}
	cmd := LoginCommand(user, hosts[0], p.Port)
	fmt.Fprintln(p.Out, i18n.T("prepare.reminder", cmd))
	return cmd
}

// LoginCommand formats a ready-to-copy ssh invocation. A port carried by
// host wins over port.
func LoginCommand(user, host string, port int) string {
	if h, p, err := net.SplitHostPort(host); err == nil {
		host = h
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}
	if port != 0 && port != 22 {
		return fmt.Sprintf("ssh -p %d %s@%s", port, user, host)
	}
	return fmt.Sprintf("ssh %s@%s", user, host)
}

func writeOutput(w io.Writer, out string) {
	if out == "" {
		return
	}
	io.WriteString(w, out)
	if !strings.HasSuffix(out, "\n") {
		io.WriteString(w, "\n")
	}
}

// PlannedStep is one rendered block of a dry run.
type PlannedStep struct {
	Step   Step
	Script string
}

// Plan renders the full sequence for family without contacting any host.
func Plan(c CommandSet, family OSFamily, user string) ([]PlannedStep, error) {
	steps := make([]PlannedStep, 0, len(Sequence))
	for _, step := range Sequence {
		script, err := c.Render(step, family, user)
		if err != nil {
			return nil, err
		}
		steps = append(steps, PlannedStep{Step: step, Script: script})
	}
	return steps, nil
}
