// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

// Package store persists installed-plugin records, per-plugin configuration,
// host preferences, and a TTL cache.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// PluginRecord describes an installed plugin as persisted by the host.
type PluginRecord struct {
	ID          string
	Name        string
	Version     string
	Author      string
	Description string
	InstallDate time.Time
	Enabled     bool
	Metadata    map[string]any
}

// Store is the persistence boundary consumed by the plugin manager. All
// methods are safe for concurrent use.
type Store interface {
	// SavePlugin inserts or replaces the record for rec.ID.
	SavePlugin(ctx context.Context, rec PluginRecord) error
	// GetPlugin returns ErrNotFound when no record exists for id.
	GetPlugin(ctx context.Context, id string) (PluginRecord, error)
	// ListPlugins returns all records ordered by ID.
	ListPlugins(ctx context.Context) ([]PluginRecord, error)
	// DeletePlugin removes the record and its configuration. Deleting a
	// missing record is not an error.
	DeletePlugin(ctx context.Context, id string) error
	// SetEnabled flips the enabled flag; ErrNotFound when id is unknown.
	SetEnabled(ctx context.Context, id string, enabled bool) error

	// SetConfig stores one configuration value for a plugin.
	SetConfig(ctx context.Context, pluginID, key, value string) error
	// GetConfig returns ErrNotFound when the key is unset.
	GetConfig(ctx context.Context, pluginID, key string) (string, error)
	// AllConfig returns every configuration entry for a plugin.
	AllConfig(ctx context.Context, pluginID string) (map[string]string, error)

	// SetPreference stores a host-level preference.
	SetPreference(ctx context.Context, key, value string) error
	// GetPreference returns ErrNotFound when the key is unset.
	GetPreference(ctx context.Context, key string) (string, error)

	// CachePut stores value under key with a TTL. A zero TTL stores the
	// value without expiry; a negative TTL stores it already expired.
	CachePut(ctx context.Context, key, value string, ttl time.Duration) error
	// CacheGet returns ErrNotFound for missing or expired entries.
	CacheGet(ctx context.Context, key string) (string, error)
	// CachePrune removes expired entries and returns how many were removed.
	CachePrune(ctx context.Context) (int, error)

	Close() error
}
