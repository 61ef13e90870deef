// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

// Package event provides the publish/subscribe bus that decouples plugin
// lifecycle transitions from interested observers.
package event

// Event types emitted or consumed by the host runtime. The names are part
// of the contract consumers rely on.
const (
	TypePluginLoaded      = "plugin.loaded"
	TypePluginUnloaded    = "plugin.unloaded"
	TypePluginInstalled   = "plugin.installed"
	TypePluginUninstalled = "plugin.uninstalled"
	TypePluginEnabled     = "plugin.enabled"
	TypePluginDisabled    = "plugin.disabled"
	TypePluginUpdated     = "plugin.updated"
	TypeAllLoaded         = "plugins.all_loaded"
	TypeAppStopping       = "app.stopping"
)

// Callback receives the payload of a published event.
type Callback func(payload any)
