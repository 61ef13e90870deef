// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/plughub/plughub/internal/config"
	"github.com/plughub/plughub/internal/logging"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the PlugHub CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plughub",
		Short: "PlugHub - a plugin host runtime",
		Long: `PlugHub hosts loadable plugins: it installs plugin packages,
resolves their dependencies, runs their lifecycle, and routes work and
events between them.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG config dir)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewPluginCmd())
	cmd.AddCommand(NewRegistryCmd())

	return cmd
}

// loadConfig merges defaults, the config file, and the command's flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path, cmd.Flags())
}

// setupLogging installs the process-wide logger per configuration.
func setupLogging(cfg *config.Config, w io.Writer) *slog.Logger {
	logger := logging.Setup("plughub", version, cfg.String(config.KeyLogFormat), w)
	slog.SetDefault(logger)
	return logger
}
