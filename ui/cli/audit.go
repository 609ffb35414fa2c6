// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/toeirei/serverprep/internal/audit"
	"github.com/toeirei/serverprep/internal/i18n"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check prepared servers without changing them",
		Long: `Connects to every server and reads, over SFTP, the files the preparation
touches. Unreachable servers are reported and skipped; the command fails at
the end if any server could not be audited.`,
		Args: cobra.NoArgs,
		RunE: runAudit,
	}
	addDeployFileFlags(cmd)
	addConnectionFlags(cmd)
	cmd.Flags().String("login", "", "User to log in as (default: the deployment user)")
	return cmd
}

func runAudit(cmd *cobra.Command, args []string) error {
	d, err := loadDeployment()
	if err != nil {
		return err
	}
	login, _ := cmd.Flags().GetString("login")
	if login == "" {
		login = d.User
	}
	opts, err := sshOptions(appConfig, login)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, host := range d.Hosts {
		fmt.Fprintln(out, hostHeading.Render(i18n.T("audit.host_header", host, login)))
		target, err := dialAudit(host, opts)
		if err != nil {
			fmt.Fprintln(out, i18n.T("audit.host_failed", host, err))
			failed++
			continue
		}
		checks := audit.Run(target, d.User)
		_ = target.Close()
		if err := audit.Write(out, checks); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf(i18n.T("audit.error_hosts_failed"), failed, len(d.Hosts))
	}
	return nil
}
