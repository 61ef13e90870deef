// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

// Package storetest provides an in-memory Store for tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/plughub/plughub/internal/store"
)

type cacheEntry struct {
	value  string
	expiry time.Time // zero means no expiry
}

// Memory is a Store kept entirely in process memory. The zero value is
// not usable; construct with New.
type Memory struct {
	mu      sync.Mutex
	plugins map[string]store.PluginRecord
	configs map[string]map[string]string
	prefs   map[string]string
	cache   map[string]cacheEntry

	// FailSave and FailSetEnabled, when set, are returned by SavePlugin
	// and SetEnabled. Lets tests exercise persistence-failure paths.
	FailSave       error
	FailSetEnabled error
}

var _ store.Store = (*Memory)(nil)

func New() *Memory {
	return &Memory{
		plugins: make(map[string]store.PluginRecord),
		configs: make(map[string]map[string]string),
		prefs:   make(map[string]string),
		cache:   make(map[string]cacheEntry),
	}
}

func (m *Memory) SavePlugin(_ context.Context, rec store.PluginRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSave != nil {
		return m.FailSave
	}
	m.plugins[rec.ID] = rec
	return nil
}

func (m *Memory) GetPlugin(_ context.Context, id string) (store.PluginRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.plugins[id]
	if !ok {
		return store.PluginRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (m *Memory) ListPlugins(_ context.Context) ([]store.PluginRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := make([]store.PluginRecord, 0, len(m.plugins))
	for _, rec := range m.plugins {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs, nil
}

func (m *Memory) DeletePlugin(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.plugins, id)
	delete(m.configs, id)
	return nil
}

func (m *Memory) SetEnabled(_ context.Context, id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSetEnabled != nil {
		return m.FailSetEnabled
	}
	rec, ok := m.plugins[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.Enabled = enabled
	m.plugins[id] = rec
	return nil
}

func (m *Memory) SetConfig(_ context.Context, pluginID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[pluginID]
	if !ok {
		cfg = make(map[string]string)
		m.configs[pluginID] = cfg
	}
	cfg[key] = value
	return nil
}

func (m *Memory) GetConfig(_ context.Context, pluginID, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.configs[pluginID][key]
	if !ok {
		return "", store.ErrNotFound
	}
	return value, nil
}

func (m *Memory) AllConfig(_ context.Context, pluginID string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.configs[pluginID]))
	for k, v := range m.configs[pluginID] {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) SetPreference(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[key] = value
	return nil
}

func (m *Memory) GetPreference(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.prefs[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return value, nil
}

func (m *Memory) CachePut(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := cacheEntry{value: value}
	if ttl != 0 {
		entry.expiry = time.Now().Add(ttl)
	}
	m.cache[key] = entry
	return nil
}

func (m *Memory) CacheGet(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.cache[key]
	if !ok {
		return "", store.ErrNotFound
	}
	if !entry.expiry.IsZero() && !entry.expiry.After(time.Now()) {
		delete(m.cache, key)
		return "", store.ErrNotFound
	}
	return entry.value, nil
}

func (m *Memory) CachePrune(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	now := time.Now()
	for k, entry := range m.cache {
		if !entry.expiry.IsZero() && !entry.expiry.After(now) {
			delete(m.cache, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Close() error { return nil }
