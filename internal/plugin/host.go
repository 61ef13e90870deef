// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

package plugin

import (
	"context"
	"errors"
	"log/slog"

	"github.com/plughub/plughub/internal/store"
	"github.com/plughub/plughub/pkg/sdk"
)

// pluginHost is the sdk.Host handed to each plugin instance, scoped to
// one plugin ID. Publishes go through the async queue so a plugin
// emitting events from inside a lifecycle call cannot re-enter the
// manager lock.
type pluginHost struct {
	id     string
	m      *Manager
	logger *slog.Logger
}

var _ sdk.Host = (*pluginHost)(nil)

func (m *Manager) hostFor(id string) sdk.Host {
	return &pluginHost{
		id:     id,
		m:      m,
		logger: m.logger.With(slog.String("plugin_id", id)),
	}
}

func (h *pluginHost) PluginID() string { return h.id }

func (h *pluginHost) Publish(eventType string, payload any) {
	h.m.bus.PublishAsync(eventType, payload)
}

func (h *pluginHost) ConfigGet(key string) (string, bool) {
	value, err := h.m.store.GetConfig(context.Background(), h.id, key)
	if errors.Is(err, store.ErrNotFound) {
		return "", false
	}
	if err != nil {
		h.logger.Warn("reading plugin config",
			slog.String("key", key), slog.Any("error", err))
		return "", false
	}
	return value, true
}

func (h *pluginHost) ConfigSet(key, value string) error {
	return h.m.store.SetConfig(context.Background(), h.id, key, value)
}

func (h *pluginHost) Logger() *slog.Logger { return h.logger }
