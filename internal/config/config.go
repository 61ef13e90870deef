// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

// Package config loads and persists PlugHub configuration.
//
// Precedence, lowest to highest: built-in defaults, the YAML config file,
// then command-line flags.
package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/plughub/plughub/internal/xdg"
)

// Config keys.
const (
	KeyPluginsDir      = "plugins.dir"
	KeyBuiltinDir      = "plugins.builtin_dir"
	KeyDataDir         = "data.dir"
	KeyRegistryURL     = "registry.url"
	KeyRegistryTimeout = "registry.timeout"
	KeyMaxWorkers      = "tasks.max_workers"
	KeyLogFormat       = "log.format"
	KeyMetricsAddr     = "metrics.addr"
)

// Config holds the merged configuration. Safe for concurrent reads;
// Set and Save serialize writes.
type Config struct {
	mu   sync.RWMutex
	k    *koanf.Koanf
	path string
}

// defaults returns the built-in default values.
func defaults() map[string]any {
	return map[string]any{
		KeyPluginsDir:      xdg.PluginsDir(),
		KeyBuiltinDir:      "",
		KeyDataDir:         xdg.DataDir(),
		KeyRegistryURL:     "",
		KeyRegistryTimeout: "30s",
		KeyMaxWorkers:      0, // 0 = derive from CPU count
		KeyLogFormat:       "json",
		KeyMetricsAddr:     "",
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigDir(), "config.yaml")
}

// Load builds a Config from defaults, the YAML file at path (skipped if the
// file does not exist), and flag overrides (skipped if flags is nil).
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	for key, val := range defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, oops.In("config").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, oops.Code("CONFIG_LOAD_FAILED").
					In("config").
					With("path", path).
					Hint("config file exists but could not be parsed").
					Wrap(err)
			}
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").In("config").Wrap(err)
		}
	}

	return &Config{k: k, path: path}, nil
}

// String returns the string value for key.
func (c *Config) String(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.k.String(key)
}

// Int returns the integer value for key.
func (c *Config) Int(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.k.Int(key)
}

// Duration returns the duration value for key.
func (c *Config) Duration(key string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.k.Duration(key)
}

// Set updates a value in memory. Call Save to persist.
func (c *Config) Set(key string, val any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.k.Set(key, val); err != nil {
		return oops.In("config").With("key", key).Wrap(err)
	}
	return nil
}

// All returns a flat map of all settings.
func (c *Config) All() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.k.All()
}

// Save writes the current configuration to the config file path.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		return oops.In("config").New("no config file path set")
	}

	data, err := c.k.Marshal(yaml.Parser())
	if err != nil {
		return oops.Code("CONFIG_SAVE_FAILED").In("config").Wrap(err)
	}

	if err := xdg.EnsureDir(filepath.Dir(c.path)); err != nil {
		return oops.Code("CONFIG_SAVE_FAILED").In("config").With("path", c.path).Wrap(err)
	}

	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return oops.Code("CONFIG_SAVE_FAILED").In("config").With("path", c.path).Wrap(err)
	}
	return nil
}
