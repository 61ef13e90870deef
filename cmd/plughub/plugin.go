// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/plughub/plughub/internal/config"
	"github.com/plughub/plughub/internal/downloader"
	"github.com/plughub/plughub/internal/event"
	"github.com/plughub/plughub/internal/plugin"
	"github.com/plughub/plughub/internal/plugin/lua"
	"github.com/plughub/plughub/internal/store"
	"github.com/plughub/plughub/internal/xdg"
)

// NewPluginCmd creates the plugin subcommand tree.
func NewPluginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugin",
		Short: "Manage installed plugins",
	}

	cmd.AddCommand(newPluginListCmd())
	cmd.AddCommand(newPluginInfoCmd())
	cmd.AddCommand(newPluginInstallCmd())
	cmd.AddCommand(newPluginUninstallCmd())
	cmd.AddCommand(newPluginEnableCmd())
	cmd.AddCommand(newPluginDisableCmd())
	cmd.AddCommand(newPluginUpdateCmd())

	return cmd
}

// cliEnv is the one-shot wiring used by plugin subcommands: store and
// manager without the full app lifecycle.
type cliEnv struct {
	cfg     *config.Config
	store   *store.SQLite
	bus     *event.Bus
	manager *plugin.Manager
}

func newCLIEnv(cmd *cobra.Command) (*cliEnv, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	setupLogging(cfg, os.Stderr)

	dataDir := cfg.String(config.KeyDataDir)
	if err := xdg.EnsureDir(dataDir); err != nil {
		return nil, nil, err
	}
	st, err := store.OpenSQLite(filepath.Join(dataDir, "plughub.db"))
	if err != nil {
		return nil, nil, err
	}

	bus := event.NewBus()
	opts := []plugin.Option{plugin.WithDataDir(dataDir)}
	if url := cfg.String(config.KeyRegistryURL); url != "" {
		opts = append(opts, plugin.WithFetcher(downloader.New(url, xdg.CacheDir(),
			downloader.WithTimeout(cfg.Duration(config.KeyRegistryTimeout)),
			downloader.WithStore(st))))
	}

	mgr := plugin.NewManager(bus, st,
		cfg.String(config.KeyPluginsDir), cfg.String(config.KeyBuiltinDir), opts...)
	mgr.RegisterFactory(lua.NewFactory())
	mgr.RegisterFactory(plugin.NewNativeFactory())

	env := &cliEnv{cfg: cfg, store: st, bus: bus, manager: mgr}
	cleanup := func() {
		bus.Shutdown(5 * time.Second)
		_ = st.Close()
	}
	return env, cleanup, nil
}

func newPluginListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed plugins",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, cleanup, err := newCLIEnv(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			recs, err := env.manager.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				cmd.Println("no plugins installed")
				return nil
			}
			for _, rec := range recs {
				state := "disabled"
				if rec.Enabled {
					state = "enabled"
				}
				cmd.Printf("%-24s %-10s %s\n", rec.ID, rec.Version, state)
			}
			return nil
		},
	}
}

func newPluginInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <plugin-id>",
		Short: "Show details for one plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, cleanup, err := newCLIEnv(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			rec, err := env.manager.Info(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Printf("ID:          %s\n", rec.ID)
			cmd.Printf("Name:        %s\n", rec.Name)
			cmd.Printf("Version:     %s\n", rec.Version)
			if rec.Author != "" {
				cmd.Printf("Author:      %s\n", rec.Author)
			}
			if rec.Description != "" {
				cmd.Printf("Description: %s\n", rec.Description)
			}
			cmd.Printf("Enabled:     %t\n", rec.Enabled)
			if !rec.InstallDate.IsZero() {
				cmd.Printf("Installed:   %s\n", rec.InstallDate.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newPluginInstallCmd() *cobra.Command {
	var enable, force bool

	cmd := &cobra.Command{
		Use:   "install <package>",
		Short: "Install a plugin from a directory or .zip package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, cleanup, err := newCLIEnv(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			id, err := env.manager.Install(cmd.Context(), args[0], enable, force)
			if err != nil {
				return err
			}
			cmd.Printf("installed %s\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVar(&enable, "enable", false, "enable and load the plugin after install")
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing installation")
	return cmd
}

func newPluginUninstallCmd() *cobra.Command {
	var removeData bool

	cmd := &cobra.Command{
		Use:   "uninstall <plugin-id>",
		Short: "Remove an installed plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, cleanup, err := newCLIEnv(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := env.manager.Uninstall(cmd.Context(), args[0], removeData); err != nil {
				return err
			}
			cmd.Printf("uninstalled %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&removeData, "remove-data", false, "also remove the plugin's data directory")
	return cmd
}

func newPluginEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <plugin-id>",
		Short: "Enable a plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, cleanup, err := newCLIEnv(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := env.manager.Enable(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmd.Printf("enabled %s\n", args[0])
			return nil
		},
	}
}

func newPluginDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <plugin-id>",
		Short: "Disable a plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, cleanup, err := newCLIEnv(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := env.manager.Disable(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmd.Printf("disabled %s\n", args[0])
			return nil
		},
	}
}

func newPluginUpdateCmd() *cobra.Command {
	var packagePath string

	cmd := &cobra.Command{
		Use:   "update <plugin-id>",
		Short: "Update a plugin from a package or the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, cleanup, err := newCLIEnv(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := env.manager.Update(cmd.Context(), args[0], packagePath); err != nil {
				return err
			}
			cmd.Printf("updated %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&packagePath, "package", "",
		"local package path (fetches from the registry when omitted)")
	return cmd
}
