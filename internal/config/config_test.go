// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plughub/plughub/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.String(config.KeyLogFormat))
	assert.Equal(t, 30*time.Second, cfg.Duration(config.KeyRegistryTimeout))
	assert.Equal(t, 0, cfg.Int(config.KeyMaxWorkers))
	assert.NotEmpty(t, cfg.String(config.KeyPluginsDir))
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("log:\n  format: text\ntasks:\n  max_workers: 4\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "text", cfg.String(config.KeyLogFormat))
	assert.Equal(t, 4, cfg.Int(config.KeyMaxWorkers))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.String(config.KeyLogFormat))
}

func TestLoad_BadYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log: ["), 0o600))

	_, err := config.Load(path, nil)
	require.Error(t, err)
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  format: text\n"), 0o600))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log.format", "json", "")
	require.NoError(t, flags.Parse([]string{"--log.format=json"}))

	cfg, err := config.Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.String(config.KeyLogFormat))
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	require.NoError(t, cfg.Set(config.KeyRegistryURL, "https://plugins.example.com"))
	require.NoError(t, cfg.Save())

	reloaded, err := config.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://plugins.example.com", reloaded.String(config.KeyRegistryURL))
}
