// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/plughub/plughub/internal/config"
	"github.com/plughub/plughub/internal/downloader"
	"github.com/plughub/plughub/internal/xdg"
)

// NewRegistryCmd creates the registry subcommand tree.
func NewRegistryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Query the plugin registry",
	}

	cmd.AddCommand(newRegistryStatusCmd())
	cmd.AddCommand(newRegistryAvailableCmd())
	cmd.AddCommand(newRegistrySearchCmd())

	return cmd
}

func newRegistryClient(cmd *cobra.Command) (*downloader.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg, os.Stderr)

	url := cfg.String(config.KeyRegistryURL)
	if url == "" {
		return nil, oops.
			Code("REGISTRY_NOT_CONFIGURED").
			In("cli").
			Hint("set registry.url in the config file").
			Errorf("no plugin registry configured")
	}
	return downloader.New(url, xdg.CacheDir(),
		downloader.WithTimeout(cfg.Duration(config.KeyRegistryTimeout))), nil
}

func newRegistryStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show registry server status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newRegistryClient(cmd)
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("status:  %s\n", status.Status)
			cmd.Printf("version: %s\n", status.Version)
			cmd.Printf("plugins: %d\n", status.PluginCount)
			return nil
		},
	}
}

func newRegistryAvailableCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "available",
		Short: "List plugins available in the registry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newRegistryClient(cmd)
			if err != nil {
				return err
			}
			plugins, err := client.Available(cmd.Context(), category)
			if err != nil {
				return err
			}
			printRegistryPlugins(cmd, plugins)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	return cmd
}

func newRegistrySearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newRegistryClient(cmd)
			if err != nil {
				return err
			}
			plugins, err := client.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printRegistryPlugins(cmd, plugins)
			return nil
		},
	}
}

func printRegistryPlugins(cmd *cobra.Command, plugins []downloader.RegistryPlugin) {
	if len(plugins) == 0 {
		cmd.Println("no plugins found")
		return
	}
	for _, p := range plugins {
		line := p.ID + " " + p.Version
		if p.Category != "" {
			line += " [" + p.Category + "]"
		}
		if p.Description != "" {
			line += " - " + p.Description
		}
		cmd.Println(line)
	}
}
