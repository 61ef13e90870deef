// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

package plugin

// LifecyclePayload is published with every plugin lifecycle event.
type LifecyclePayload struct {
	PluginID string `json:"plugin_id"`
	Version  string `json:"version,omitempty"`
}

// UpdatePayload is published with plugin.updated events.
type UpdatePayload struct {
	PluginID    string `json:"plugin_id"`
	FromVersion string `json:"from_version"`
	ToVersion   string `json:"to_version"`
}

// AllLoadedPayload is published once startup loading completes.
type AllLoadedPayload struct {
	Loaded []string `json:"loaded"`
	Failed []string `json:"failed,omitempty"`
}
