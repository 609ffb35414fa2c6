// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package testutil holds in-memory stand-ins for remote hosts so tests never
// open a network connection.
package testutil

import (
	"strings"

	"github.com/toeirei/serverprep/internal/provision"
)

// FakeResponse is returned for the first command containing Contains.
type FakeResponse struct {
	Contains string
	Result   provision.Result
	Err      error
}

// FakeSession records every command it is asked to run.
type FakeSession struct {
	Host      string
	Commands  []string
	Responses []FakeResponse
	// Default is returned when no response matches.
	Default provision.Result
	// CloseFunc, if set, is called when Close() is invoked.
	CloseFunc func() error
	Closed    bool
}

// Run records cmd and returns the first matching canned response.
func (f *FakeSession) Run(cmd string) (provision.Result, error) {
	f.Commands = append(f.Commands, cmd)
	for _, r := range f.Responses {
		if strings.Contains(cmd, r.Contains) {
			return r.Result, r.Err
		}
	}
	return f.Default, nil
}

// Close marks the session closed and calls CloseFunc if provided.
func (f *FakeSession) Close() error {
	if f == nil {
		return nil
	}
	f.Closed = true
	if f.CloseFunc != nil {
		return f.CloseFunc()
	}
	return nil
}

// FakeDialer hands out FakeSessions and can be told to refuse hosts.
type FakeDialer struct {
	// Probe maps a host to its os-release NAME= line.
	Probe map[string]string
	// Fail maps a host to the error its Dial returns.
	Fail map[string]error
	// Dialed lists every host Dial was called with, in order.
	Dialed   []string
	sessions map[string]*FakeSession
}

// NewFakeDialer returns a dialer whose hosts answer the OS probe as given.
func NewFakeDialer(probe map[string]string) *FakeDialer {
	return &FakeDialer{Probe: probe, Fail: map[string]error{}}
}

// Dial returns the host's session, creating it on first use.
func (d *FakeDialer) Dial(host string) (provision.Session, error) {
	d.Dialed = append(d.Dialed, host)
	if err, ok := d.Fail[host]; ok {
		return nil, err
	}
	return d.Session(host), nil
}

// Session returns (and lazily creates) the fake session for host.
func (d *FakeDialer) Session(host string) *FakeSession {
	if d.sessions == nil {
		d.sessions = map[string]*FakeSession{}
	}
	s, ok := d.sessions[host]
	if !ok {
		s = &FakeSession{Host: host}
		if probe, ok := d.Probe[host]; ok {
			s.Responses = append(s.Responses, FakeResponse{
				Contains: provision.DetectCommand,
				Result:   provision.Result{Output: probe + "\n"},
			})
		}
		d.sessions[host] = s
	}
	return s
}

// Touched reports whether a session was ever created for host.
func (d *FakeDialer) Touched(host string) bool {
	_, ok := d.sessions[host]
	return ok
}
