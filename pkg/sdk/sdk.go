// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

// Package sdk defines the contract a loadable plugin must satisfy and the
// host surface the runtime exposes to plugin instances.
//
// A plugin implementation is any type that satisfies the Plugin interface.
// Plugins written in other dialects (Lua scripts, bare processing functions)
// are adapted to this interface by their dialect's factory, so the manager
// only ever deals with Plugin values.
package sdk

import (
	"context"
	"log/slog"
)

// DataType identifies the kind of payload moving through Process.
type DataType string

// Payload data types.
const (
	DataText   DataType = "text"
	DataJSON   DataType = "json"
	DataImage  DataType = "image"
	DataBinary DataType = "binary"
)

// Input is the payload handed to a plugin's Process call.
type Input struct {
	Type     DataType
	Data     []byte
	Metadata map[string]string
}

// Output is the payload a plugin's Process call returns.
type Output struct {
	Type     DataType
	Data     []byte
	Metadata map[string]string
}

// Plugin status strings reported by Status.
const (
	StatusInitialized = "initialized"
	StatusRunning     = "running"
	StatusPaused      = "paused"
	StatusStopped     = "stopped"
	StatusError       = "error"
)

// Plugin is the full capability set a loadable unit must provide.
//
// Lifecycle calls arrive in the order Initialize, Start, then eventually
// Stop, Cleanup. Process may be called any time between Start and Stop.
// Implementations must be safe for concurrent Process calls.
type Plugin interface {
	// Initialize prepares the plugin. Called exactly once after
	// instantiation, before Start.
	Initialize(ctx context.Context) error

	// Start begins the plugin's active work.
	Start(ctx context.Context) error

	// Stop halts active work. Stop is cooperative: the host trusts the
	// plugin to return within a bounded time and never force-kills it.
	Stop(ctx context.Context) error

	// Cleanup releases resources after Stop. The instance is discarded
	// afterward.
	Cleanup(ctx context.Context) error

	// Process runs the plugin's processing function on one input.
	Process(ctx context.Context, in Input) (Output, error)

	// Status reports the plugin's current runtime status string.
	Status() string
}

// Host is the surface the runtime exposes to plugin instances. Each loaded
// plugin receives its own Host scoped to its plugin ID.
type Host interface {
	// PluginID returns the ID of the plugin this host is scoped to.
	PluginID() string

	// Publish emits an event on the host's event bus.
	Publish(eventType string, payload any)

	// ConfigGet reads a plugin-scoped configuration value. Returns
	// ("", false) when the key is unset.
	ConfigGet(key string) (string, bool)

	// ConfigSet writes a plugin-scoped configuration value.
	ConfigSet(key, value string) error

	// Logger returns a logger pre-tagged with the plugin ID.
	Logger() *slog.Logger
}

// ProcessFunc adapts a bare processing function into a full Plugin.
// Lifecycle calls are no-ops; Process delegates to the function. This is
// the adapter for the "single function" plugin dialect.
type ProcessFunc func(ctx context.Context, in Input) (Output, error)

// Initialize implements Plugin.
func (ProcessFunc) Initialize(context.Context) error { return nil }

// Start implements Plugin.
func (ProcessFunc) Start(context.Context) error { return nil }

// Stop implements Plugin.
func (ProcessFunc) Stop(context.Context) error { return nil }

// Cleanup implements Plugin.
func (ProcessFunc) Cleanup(context.Context) error { return nil }

// Process implements Plugin by calling the wrapped function.
func (f ProcessFunc) Process(ctx context.Context, in Input) (Output, error) {
	return f(ctx, in)
}

// Status implements Plugin. Function plugins are always running once loaded.
func (ProcessFunc) Status() string { return StatusRunning }
