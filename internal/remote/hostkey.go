// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package remote

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/toeirei/serverprep/internal/logging"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKeyPolicy decides how unknown host keys are handled.
type HostKeyPolicy string

const (
	// HostKeyStrict rejects hosts missing from the known_hosts file.
	HostKeyStrict HostKeyPolicy = "strict"
	// HostKeyAcceptNew records unknown hosts and rejects changed keys.
	HostKeyAcceptNew HostKeyPolicy = "accept-new"
	// HostKeyOff skips verification.
	HostKeyOff HostKeyPolicy = "off"
)

// ParseHostKeyPolicy accepts strict, accept-new and off. Empty means accept-new.
func ParseHostKeyPolicy(s string) (HostKeyPolicy, error) {
	switch p := HostKeyPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return HostKeyAcceptNew, nil
	case HostKeyStrict, HostKeyAcceptNew, HostKeyOff:
		return p, nil
	default:
		return "", fmt.Errorf("unknown host key policy %q (want strict, accept-new or off)", s)
	}
}

func newHostKeyCallback(opts Options) (ssh.HostKeyCallback, error) {
	policy := opts.HostKeyPolicy
	if policy == "" {
		policy = HostKeyAcceptNew
	}
	if policy == HostKeyOff {
		logging.Warnf("host key verification is disabled")
		return ssh.InsecureIgnoreHostKey(), nil
	}

	path := opts.KnownHosts
	if path == "" {
		return nil, errors.New("no known_hosts file configured")
	}
	if policy == HostKeyAcceptNew {
		if err := ensureFile(path); err != nil {
			return nil, err
		}
	}

	check, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts %s: %w", path, err)
	}

	var mu sync.Mutex
	learned := map[string]ssh.PublicKey{}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := check(hostname, remote, key)
		if err == nil {
			return nil
		}

		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) {
			return err
		}
		if len(keyErr.Want) > 0 {
			return fmt.Errorf("%w: HOST KEY MISMATCH FOR %s, this could be a man-in-the-middle attack", ErrHostKey, hostname)
		}
		if policy != HostKeyAcceptNew {
			return fmt.Errorf("%w: %s is not in %s", ErrHostKey, hostname, path)
		}

		mu.Lock()
		defer mu.Unlock()
		if prev, ok := learned[hostname]; ok {
			if bytes.Equal(prev.Marshal(), key.Marshal()) {
				return nil
			}
			return fmt.Errorf("%w: HOST KEY MISMATCH FOR %s, this could be a man-in-the-middle attack", ErrHostKey, hostname)
		}
		if err := appendKnownHost(path, hostname, key); err != nil {
			return err
		}
		learned[hostname] = key
		logging.Infof("added %s (%s) to %s", knownhosts.Normalize(hostname), ssh.FingerprintSHA256(key), path)
		return nil
	}, nil
}

// knownHostAlgorithms lists the host key algorithms recorded for addr, so the
// handshake negotiates a key type the known_hosts file can verify. It returns
// nil when the host is not recorded or verification is off.
func knownHostAlgorithms(opts Options, addr string) ([]string, error) {
	if opts.HostKeyPolicy == HostKeyOff || opts.KnownHosts == "" {
		return nil, nil
	}
	if _, err := os.Stat(opts.KnownHosts); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	check, err := knownhosts.New(opts.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts %s: %w", opts.KnownHosts, err)
	}

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	placeholder, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, err
	}

	var keyErr *knownhosts.KeyError
	if err := check(addr, &net.TCPAddr{IP: net.IPv4zero}, placeholder); !errors.As(err, &keyErr) {
		return nil, nil
	}

	var algos []string
	seen := map[string]bool{}
	for _, known := range keyErr.Want {
		for _, algo := range algorithmsForKeyType(known.Key.Type()) {
			if !seen[algo] {
				seen[algo] = true
				algos = append(algos, algo)
			}
		}
	}
	return algos, nil
}

// algorithmsForKeyType maps a recorded key type to the signature algorithms
// that can present it. RSA keys are offered with SHA-2 signatures first.
func algorithmsForKeyType(keyType string) []string {
	if keyType == ssh.KeyAlgoRSA {
		return []string{ssh.KeyAlgoRSASHA512, ssh.KeyAlgoRSASHA256, ssh.KeyAlgoRSA}
	}
	return []string{keyType}
}

func ensureFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open known hosts %s: %w", path, err)
	}
	return f.Close()
}

func appendKnownHost(path, hostname string, key ssh.PublicKey) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open known hosts %s: %w", path, err)
	}
	defer f.Close()

	line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
	if _, err := fmt.Fprintln(f, line); err != nil {
		return fmt.Errorf("failed to write known hosts %s: %w", path, err)
	}
	return nil
}
