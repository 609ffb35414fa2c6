// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
	"github.com/toeirei/serverprep/config"
	"github.com/toeirei/serverprep/internal/deployfile"
	"github.com/toeirei/serverprep/internal/i18n"
	"github.com/toeirei/serverprep/internal/logging"
	"github.com/toeirei/serverprep/internal/provision"
)

// writeClipboard is swapped in tests.
var writeClipboard = clipboard.WriteAll

func newPrepareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Prepare every server of the deployment file",
		Long: `Connects to every server of the deployment file as root, one after the
other, and runs the preparation steps. A connection failure stops the run;
failing commands on a server do not.`,
		Args: cobra.NoArgs,
		RunE: runPrepare,
	}
	addDeployFileFlags(cmd)
	addConnectionFlags(cmd)
	cmd.Flags().Bool("copy", false, "Copy the login command to the clipboard")
	return cmd
}

func runPrepare(cmd *cobra.Command, args []string) error {
	d, err := loadDeployment()
	if err != nil {
		return err
	}
	opts, err := sshOptions(appConfig, provision.LoginUser)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	p := provision.New(newProvisionDialer(opts), out)
	p.Port = appConfig.SSH.Port

	login, runErr := p.Run(d.Hosts, d.User)

	if copyFlag, _ := cmd.Flags().GetBool("copy"); copyFlag && login != "" {
		if err := writeClipboard(login); err != nil {
			logging.Warnf("could not copy to clipboard: %v", err)
		} else {
			fmt.Fprintln(out, i18n.T("prepare.copied"))
		}
	}
	return runErr
}

func loadDeployment() (deployfile.Deployment, error) {
	path, err := config.ExpandHome(appConfig.DeployFile)
	if err != nil {
		return deployfile.Deployment{}, err
	}
	d, err := deployfile.Load(path, appConfig.Destination)
	if err != nil {
		return deployfile.Deployment{}, err
	}
	logging.Debugf("deployment %s: %d host(s), user %s", path, len(d.Hosts), d.User)
	return d, nil
}

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the commands prepare would run, without connecting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeployment()
			if err != nil {
				return err
			}
			osName, _ := cmd.Flags().GetString("os")
			family, err := provision.ParseOSFamily(osName)
			if err != nil {
				return err
			}
			steps, err := provision.Plan(provision.DefaultCommands(), family, d.User)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, s := range steps {
				fmt.Fprintln(out, i18n.T("plan.header", i18n.T("step."+s.Step.String()), family))
				fmt.Fprintln(out, s.Script)
			}
			return nil
		},
	}
	addDeployFileFlags(cmd)
	cmd.Flags().String("os", "ubuntu", "Operating system family to render for (ubuntu, rhel)")
	return cmd
}

func newHostsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hosts",
		Short: "List the servers and user read from the deployment file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeployment()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, h := range d.Hosts {
				fmt.Fprintln(out, h)
			}
			fmt.Fprintln(out, i18n.T("hosts.user", d.User))
			return nil
		},
	}
	addDeployFileFlags(cmd)
	return cmd
}
