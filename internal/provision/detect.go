// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package provision

import (
	"fmt"
	"strings"
)

// OSFamily selects which variant of a command block runs on a host.
type OSFamily int

const (
	Ubuntu OSFamily = iota
	RHEL
)

// String returns "ubuntu" or "rhel".
func (f OSFamily) String() string {
	if f == Ubuntu {
		return "ubuntu"
	}
	return "rhel"
}

// ParseOSFamily accepts the family names used on the command line.
func ParseOSFamily(s string) (OSFamily, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ubuntu", "debian":
		return Ubuntu, nil
	case "rhel", "centos", "redhat":
		return RHEL, nil
	}
	return 0, fmt.Errorf("unknown OS family %q (want ubuntu or rhel)", s)
}

// DetectCommand prints the NAME= line of the remote os-release file.
const DetectCommand = "grep -E '^NAME=' /etc/os-release"

// Classify maps probe output to a family. Anything that does not mention
// Ubuntu, including empty output, is treated as RHEL.
func Classify(probe string) OSFamily {
	if strings.Contains(probe, "Ubuntu") {
		return Ubuntu
	}
	return RHEL
}

// DetectOSFamily runs the probe once and classifies it. It also returns the
// trimmed probe output for display.
func DetectOSFamily(r Runner) (OSFamily, string, error) {
	res, err := r.Run(DetectCommand)
	if err != nil {
		return RHEL, "", err
	}
	probe := strings.TrimSpace(res.Output)
	return Classify(probe), probe, nil
}
