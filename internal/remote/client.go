// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package remote

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"github.com/toeirei/serverprep/internal/logging"
	"golang.org/x/crypto/ssh"
)

// Options configures a connection.
type Options struct {
	User          string
	Port          int
	IdentityFiles []string
	KnownHosts    string
	HostKeyPolicy HostKeyPolicy
	Timeout       time.Duration
	// Passphrase is asked for the passphrase of an encrypted identity file.
	// When nil, encrypted keys are skipped.
	Passphrase func(path string) ([]byte, error)
}

// DefaultOptions returns root on port 22 with trust-on-first-use host keys.
func DefaultOptions() Options {
	return Options{
		User:          "root",
		Port:          22,
		HostKeyPolicy: HostKeyAcceptNew,
		Timeout:       10 * time.Second,
	}
}

// Result is the combined output and exit status of one command.
// ExitStatus is -1 when the remote side closed without reporting one.
type Result struct {
	Output     string
	ExitStatus int
}

// Client is an open SSH connection to one host.
type Client struct {
	host string
	conn *ssh.Client
	sftp *sftp.Client
}

// sshDial is swapped in tests.
var sshDial = ssh.Dial

// Dial connects and authenticates to host.
func Dial(host string, opts Options) (*Client, error) {
	addr := JoinHostPort(host, opts.Port)

	auth, err := authMethod(opts)
	if err != nil {
		return nil, err
	}
	hostKeyCallback, err := newHostKeyCallback(opts)
	if err != nil {
		return nil, err
	}

	hostKeyAlgorithms, err := knownHostAlgorithms(opts, addr)
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:              opts.User,
		Auth:              []ssh.AuthMethod{auth},
		HostKeyCallback:   hostKeyCallback,
		HostKeyAlgorithms: hostKeyAlgorithms,
		Timeout:           opts.Timeout,
	}

	logging.Debugf("dialing %s as %s", addr, opts.User)
	conn, err := sshDial("tcp", addr, config)
	if err != nil {
		return nil, classifyDialError(addr, err)
	}
	return &Client{host: host, conn: conn}, nil
}

// JoinHostPort adds port unless host already carries one.
func JoinHostPort(host string, port int) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Run executes cmd in a new session and waits for it to finish.
func (c *Client) Run(cmd string) (Result, error) {
	sess, err := c.conn.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("failed to open session on %s: %w", c.host, err)
	}
	defer sess.Close()

	out, err := sess.CombinedOutput(cmd)
	res := Result{Output: string(out)}
	if err != nil {
		var exitErr *ssh.ExitError
		var missingErr *ssh.ExitMissingError
		switch {
		case errors.As(err, &exitErr):
			res.ExitStatus = exitErr.ExitStatus()
		case errors.As(err, &missingErr):
			res.ExitStatus = -1
		default:
			return res, fmt.Errorf("command failed on %s: %w", c.host, err)
		}
	}
	return res, nil
}

func (c *Client) sftpClient() (*sftp.Client, error) {
	if c.sftp != nil {
		return c.sftp, nil
	}
	s, err := sftp.NewClient(c.conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create sftp client: %w", err)
	}
	c.sftp = s
	return s, nil
}

// Stat returns file info for a remote path.
func (c *Client) Stat(path string) (os.FileInfo, error) {
	s, err := c.sftpClient()
	if err != nil {
		return nil, err
	}
	return s.Stat(path)
}

// ReadFile returns the content of a remote file.
func (c *Client) ReadFile(path string) ([]byte, error) {
	s, err := c.sftpClient()
	if err != nil {
		return nil, err
	}
	f, err := s.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read remote file %s: %w", path, err)
	}
	return content, nil
}

// ReadDir lists a remote directory.
func (c *Client) ReadDir(path string) ([]os.FileInfo, error) {
	s, err := c.sftpClient()
	if err != nil {
		return nil, err
	}
	return s.ReadDir(path)
}

// Close closes the SFTP client, if any, and the connection.
func (c *Client) Close() error {
	if c.sftp != nil {
		_ = c.sftp.Close()
		c.sftp = nil
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
