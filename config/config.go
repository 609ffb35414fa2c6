// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RuntimeOS is the operating system used to pick config locations.
var RuntimeOS = runtime.GOOS

// fileUsed is the settings file read by the last LoadConfig, if any.
var fileUsed string

// FileUsed returns the settings file the last LoadConfig read, or "" when
// only defaults, environment and flags applied.
func FileUsed() string { return fileUsed }

// Config is the tool's own settings.
type Config struct {
	DeployFile  string    `mapstructure:"deploy_file" yaml:"deploy_file"`
	Destination string    `mapstructure:"destination" yaml:"destination,omitempty"`
	Language    string    `mapstructure:"language" yaml:"language"`
	SSH         SSHConfig `mapstructure:"ssh" yaml:"ssh"`
}

// SSHConfig holds the connection settings shared by every host.
type SSHConfig struct {
	Port           int           `mapstructure:"port" yaml:"port"`
	IdentityFiles  []string      `mapstructure:"identity_files" yaml:"identity_files,omitempty"`
	KnownHosts     string        `mapstructure:"known_hosts" yaml:"known_hosts"`
	HostKeyPolicy  string        `mapstructure:"host_key_policy" yaml:"host_key_policy"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// FlagKeys maps command-line flag names onto config keys for flags whose
// name differs from the key.
var FlagKeys = map[string]string{
	"deploy-file":     "deploy_file",
	"destination":     "destination",
	"port":            "ssh.port",
	"identity":        "ssh.identity_files",
	"known-hosts":     "ssh.known_hosts",
	"host-key-policy": "ssh.host_key_policy",
	"connect-timeout": "ssh.connect_timeout",
}

// Defaults returns the default value for every key.
func Defaults() map[string]any {
	return map[string]any{
		"deploy_file":         "config/deploy.yml",
		"destination":         "",
		"language":            "en",
		"ssh.port":            22,
		"ssh.identity_files":  []string{},
		"ssh.known_hosts":     "~/.ssh/known_hosts",
		"ssh.host_key_policy": "accept-new",
		"ssh.connect_timeout": "10s",
	}
}

// GetConfigPath returns the full path for the configuration file.
func GetConfigPath(system bool) (string, error) {
	var configDir string
	var err error

	if system {
		switch RuntimeOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "Serverprep")
		default:
			configDir = "/etc/serverprep"
		}
	} else {
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "serverprep")
	}

	return filepath.Join(configDir, "serverprep.yaml"), nil
}

// LoadConfig reads settings with the precedence flag > env > file > defaults.
// A missing config file is not an error; an explicit path that cannot be
// read is.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, explicitPath *string) (T, error) {
	var c T
	v := viper.New()
	fileUsed = ""

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("serverprep")
	v.SetConfigType("yaml")

	if explicitPath != nil {
		v.SetConfigFile(*explicitPath)
	}

	if userConfigPath, err := GetConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := GetConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, err
		}
	}

	fileUsed = v.ConfigFileUsed()

	v.SetEnvPrefix("serverprep")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		for flag, key := range FlagKeys {
			if f := cmd.Flags().Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return c, err
				}
			}
		}
		if f := cmd.Flags().Lookup("language"); f != nil {
			if err := v.BindPFlag("language", f); err != nil {
				return c, err
			}
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}

	return c, nil
}

// WriteConfigFile writes c to the user (or system) config path and returns
// the path written.
func WriteConfigFile[T any](c *T, system bool) (string, error) {
	path, err := GetConfigPath(system)
	if err != nil {
		return "", err
	}

	data, err := Marshal(c)
	if err != nil {
		return "", err
	}

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", err
	}
	return path, nil
}

// Marshal renders c the way WriteConfigFile stores it.
func Marshal[T any](c *T) ([]byte, error) {
	return yaml.Marshal(c)
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
