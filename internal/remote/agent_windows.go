//go:build windows

// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package remote

import (
	"fmt"
	"os"
	"time"

	"github.com/Microsoft/go-winio"
	"github.com/davidmz/go-pageant"
	"golang.org/x/crypto/ssh/agent"
)

// openSSHAgentPipe is where the Windows OpenSSH agent service listens.
const openSSHAgentPipe = `\\.\pipe\openssh-ssh-agent`

// openAgent tries Pageant, then the OpenSSH agent pipe.
func openAgent() (agent.Agent, error) {
	if pageant.Available() {
		return pageant.New(), nil
	}

	pipe, ok := os.LookupEnv("SSH_AUTH_SOCK")
	if !ok || pipe == "" {
		pipe = openSSHAgentPipe
	}
	timeout := 2 * time.Second
	conn, err := winio.DialPipe(pipe, &timeout)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errNoAgent
		}
		return nil, fmt.Errorf("agent pipe %s: %w", pipe, err)
	}
	return agent.NewClient(conn), nil
}
