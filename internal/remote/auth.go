// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package remote

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/toeirei/serverprep/internal/logging"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// sshAgentGetter is swapped in tests.
var sshAgentGetter = getSSHAgent

// errNoAgent means no agent is configured on this machine.
var errNoAgent = errors.New("no ssh agent configured")

// getSSHAgent returns the local agent, or nil when none can be reached.
func getSSHAgent() agent.Agent {
	a, err := openAgent()
	if err != nil {
		if !errors.Is(err, errNoAgent) {
			logging.Debugf("ssh agent unavailable: %v", err)
		}
		return nil
	}
	return a
}

// DefaultIdentityFiles lists the keys tried when none are configured.
func DefaultIdentityFiles() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	dir := filepath.Join(home, ".ssh")
	return []string{
		filepath.Join(dir, "id_ed25519"),
		filepath.Join(dir, "id_ecdsa"),
		filepath.Join(dir, "id_rsa"),
	}
}

// authMethod offers the identity file keys first and the agent keys after
// them. Both go into a single callback because the client tries each method
// type only once.
func authMethod(opts Options) (ssh.AuthMethod, error) {
	signers, err := loadSigners(opts)
	if err != nil {
		return nil, err
	}

	agentClient := sshAgentGetter()
	if len(signers) == 0 && agentClient == nil {
		return nil, ErrNoAuth
	}

	return ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
		all := append([]ssh.Signer(nil), signers...)
		if agentClient != nil {
			agentSigners, err := agentClient.Signers()
			if err != nil {
				logging.Debugf("ssh agent: %v", err)
			} else {
				all = append(all, agentSigners...)
			}
		}
		return all, nil
	}), nil
}

// loadSigners reads the configured identity files. Configured files must
// exist; missing default files are skipped.
func loadSigners(opts Options) ([]ssh.Signer, error) {
	files := opts.IdentityFiles
	explicit := len(files) > 0
	if !explicit {
		files = DefaultIdentityFiles()
	}

	var signers []ssh.Signer
	for _, path := range files {
		pem, err := os.ReadFile(path)
		if err != nil {
			if !explicit && errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to read identity file %s: %w", path, err)
		}

		signer, err := parseSigner(path, pem, opts.Passphrase)
		if err != nil {
			if !explicit {
				logging.Warnf("skipping identity file %s: %v", path, err)
				continue
			}
			return nil, err
		}
		logging.Debugf("loaded identity file %s", path)
		signers = append(signers, signer)
	}
	return signers, nil
}

func parseSigner(path string, pem []byte, prompt func(string) ([]byte, error)) (ssh.Signer, error) {
	signer, err := ssh.ParsePrivateKey(pem)
	if err == nil {
		return signer, nil
	}

	var missing *ssh.PassphraseMissingError
	if !errors.As(err, &missing) {
		return nil, fmt.Errorf("unable to parse private key %s: %w", path, err)
	}
	if prompt == nil {
		return nil, fmt.Errorf("private key %s is encrypted and no passphrase prompt is available", path)
	}

	passphrase, err := prompt(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase for %s: %w", path, err)
	}
	defer clear(passphrase)

	signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, passphrase)
	if err != nil {
		return nil, fmt.Errorf("unable to decrypt private key %s: %w", path, err)
	}
	return signer, nil
}
