// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/toeirei/serverprep/config"
	"github.com/toeirei/serverprep/internal/i18n"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage serverprep settings",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective settings to the settings file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			system, _ := cmd.Flags().GetBool("system")
			path, err := config.WriteConfigFile(&appConfig, system)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("config.written", path))
			return nil
		},
	}
	initCmd.Flags().Bool("system", false, "Write the system-wide file instead of the user file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings and where they came from",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	used := config.FileUsed()
	if used == "" {
		used = "none"
	}
	fmt.Fprintf(out, "# settings file: %s\n", used)

	data, err := config.Marshal(&appConfig)
	if err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		return err
	}

	fmt.Fprintln(out, "# flags")
	cmd.Flags().Visit(func(f *pflag.Flag) {
		fmt.Fprintf(out, "#   --%s=%s\n", f.Name, f.Value.String())
	})

	fmt.Fprintln(out, "# environment")
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, "SERVERPREP_") {
			fmt.Fprintf(out, "#   %s\n", e)
		}
	}
	return nil
}
