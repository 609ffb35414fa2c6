// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Command-line entrypoint for Serverprep.
//
// Usage:
//
//	go run . [flags]
//	./serverprep [command] [flags]
//
// Without a command the hosts of config/deploy.yml are prepared. See --help.
package main

import (
	"os"

	"github.com/toeirei/serverprep/internal/logging"
	"github.com/toeirei/serverprep/ui/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		logging.Errorf("%v", err)
		os.Exit(1)
	}
}
