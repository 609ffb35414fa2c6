// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the root command, settings loading and the version
// command. The provisioning commands live in prepare.go and audit.go.

package cli

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/toeirei/serverprep/buildvars"
	"github.com/toeirei/serverprep/config"
	"github.com/toeirei/serverprep/internal/i18n"
	"github.com/toeirei/serverprep/internal/logging"
)

var version = buildvars.VersionOrDefault("dev") // set by the linker through buildvars
var gitCommit = "dev"                           // set at build time with the short commit SHA
var buildDate = ""                              // set at build time (RFC3339)
var cfgFile string
var verbose bool

var appConfig config.Config

func setupDefaultServices(cmd *cobra.Command, args []string) error {
	logging.SetDebug(verbose)

	optionalConfigPath, err := getConfigPathFromCli(cmd)
	if err != nil {
		return err
	}

	appConfig, err = config.LoadConfig[config.Config](cmd, config.Defaults(), optionalConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if appConfig.Language == "" {
		appConfig.Language = "en"
	}
	if appConfig.SSH.Port == 0 {
		appConfig.SSH.Port = 22
	}

	i18n.Init(appConfig.Language)
	logging.Debugf("settings: %+v", appConfig)
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func getConfigPathFromCli(cmd *cobra.Command) (*string, error) {
	if !cmd.Flags().Changed("config") {
		return nil, nil
	}
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("could not read --config flag: %w", err)
	}
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file specified via --config flag not found or is not accessible: %w", err)
	}
	return &path, nil
}

// NewRootCmd builds the full command tree. Running it without a subcommand
// prepares the hosts, same as `serverprep prepare`.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serverprep",
		Short: "Serverprep readies fresh servers to run containers.",
		Long: `Serverprep reads the server list and SSH user from a container
deployment file and prepares every server over SSH as root: packages and
Docker, swap, a /storage directory, the deployment user with sudo and the
root SSH keys, fail2ban, a firewall, unattended upgrades, and finally it
disables root login and password authentication.

Running without a subcommand is the same as running "prepare".`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupDefaultServices,
		RunE:              runPrepare,
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug output")
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file")
	cmd.PersistentFlags().String("language", "en", `message language ("en", "de")`)
	addDeployFileFlags(cmd)
	addConnectionFlags(cmd)
	cmd.Flags().Bool("copy", false, "Copy the login command to the clipboard")

	cmd.AddCommand(
		newPrepareCmd(),
		newPlanCmd(),
		newHostsCmd(),
		newAuditCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return cmd
}

func addDeployFileFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("deploy-file", "c", "config/deploy.yml", "Deployment file to read servers and user from")
	cmd.Flags().StringP("destination", "d", "", "Destination overlay (reads deploy.<destination>.yml on top)")
}

func addConnectionFlags(cmd *cobra.Command) {
	cmd.Flags().Int("port", 22, "SSH port")
	cmd.Flags().StringSliceP("identity", "i", nil, "Private key file (repeatable)")
	cmd.Flags().String("known-hosts", "~/.ssh/known_hosts", "known_hosts file")
	cmd.Flags().String("host-key-policy", "accept-new", "Host key checking: strict, accept-new or off")
	cmd.Flags().Duration("connect-timeout", 0, "Timeout for connecting (default from settings)")
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			v, c, d := resolveBuildVersion(nil)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "version: %s\n", v)
			fmt.Fprintf(out, "commit: %s\n", c)
			if d != "" {
				fmt.Fprintf(out, "built: %s\n", d)
			}
		},
	}
}

// resolveBuildVersion prefers module build info over link-time values.
func resolveBuildVersion(info *debug.BuildInfo) (versionOut, commitOut, dateOut string) {
	resolvedVersion := version
	resolvedCommit := gitCommit
	resolvedDate := buildDate

	if info == nil {
		if local, ok := debug.ReadBuildInfo(); ok {
			info = local
		}
	}

	if info != nil {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			resolvedVersion = info.Main.Version
		}
		if (resolvedVersion == "dev" || resolvedVersion == "(devel)") && info.Deps != nil {
			for _, dep := range info.Deps {
				if dep.Path == "github.com/toeirei/serverprep" && dep.Version != "" {
					resolvedVersion = dep.Version
					break
				}
			}
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if s.Value != "" {
					resolvedCommit = s.Value
				}
			case "vcs.time":
				if s.Value != "" {
					resolvedDate = s.Value
				}
			}
		}
	}

	if resolvedVersion == "dev" && gitCommit != "dev" && gitCommit != "" {
		resolvedVersion = gitCommit
	}

	return resolvedVersion, resolvedCommit, resolvedDate
}
