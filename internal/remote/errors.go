// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package remote

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrTimeout     = errors.New("connection timed out")
	ErrAuthFailed  = errors.New("authentication failed")
	ErrConnRefused = errors.New("connection refused")
	ErrHostKey     = errors.New("host key verification failed")
	ErrNoAuth      = errors.New("no authentication method available (no identity file and no ssh agent)")
)

// classifyDialError maps dial failures onto the sentinel errors above while
// keeping the original error in the chain.
func classifyDialError(addr string, err error) error {
	if errors.Is(err, ErrHostKey) {
		return fmt.Errorf("%s: %w", addr, err)
	}

	msg := strings.ToLower(err.Error())
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout(),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"):
		return fmt.Errorf("%w: %s: %w", ErrTimeout, addr, err)
	case strings.Contains(msg, "unable to authenticate"),
		strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "no supported methods remain"):
		return fmt.Errorf("%w: %s: %w", ErrAuthFailed, addr, err)
	case strings.Contains(msg, "connection refused"):
		return fmt.Errorf("%w: %s: %w", ErrConnRefused, addr, err)
	}
	return fmt.Errorf("failed to connect to %s: %w", addr, err)
}
