// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/plughub/plughub/internal/app"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the plugin host",
		Long: `Run the plugin host: load every enabled plugin in dependency
order and serve until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := setupLogging(cfg, os.Stderr)

			ctx, stop := signal.NotifyContext(cmd.Context(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a := app.New(cfg, logger)
			if err := a.Start(ctx); err != nil {
				return err
			}
			logger.Info("plughub started", "version", version)
			return a.Run(ctx)
		},
	}

	cmd.Flags().String("metrics.addr", "", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log.format", "", "log format (json or text)")
	cmd.Flags().Int("tasks.max_workers", 0, "worker pool size (0 = CPU count)")

	return cmd
}
