// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plughub/plughub/internal/store"
)

func openStore(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "plughub.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPlugin_SaveGetRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	rec := store.PluginRecord{
		ID:          "image-resizer",
		Name:        "Image Resizer",
		Version:     "1.2.0",
		Author:      "Acme",
		Description: "Resizes things",
		InstallDate: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Enabled:     true,
		Metadata:    map[string]any{"dialect": "lua", "dependencies": []any{"base"}},
	}
	require.NoError(t, s.SavePlugin(ctx, rec))

	got, err := s.GetPlugin(ctx, "image-resizer")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestPlugin_GetMissing(t *testing.T) {
	s := openStore(t)

	_, err := s.GetPlugin(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPlugin_SaveReplacesExisting(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePlugin(ctx, store.PluginRecord{ID: "p", Name: "P", Version: "1.0.0"}))
	require.NoError(t, s.SavePlugin(ctx, store.PluginRecord{ID: "p", Name: "P", Version: "2.0.0"}))

	got, err := s.GetPlugin(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", got.Version)

	recs, err := s.ListPlugins(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestPlugin_ListOrderedByID(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for _, id := range []string{"charlie", "alpha", "bravo"} {
		require.NoError(t, s.SavePlugin(ctx, store.PluginRecord{ID: id, Name: id, Version: "1.0.0"}))
	}

	recs, err := s.ListPlugins(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "alpha", recs[0].ID)
	assert.Equal(t, "bravo", recs[1].ID)
	assert.Equal(t, "charlie", recs[2].ID)
}

func TestPlugin_DeleteCascadesConfig(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePlugin(ctx, store.PluginRecord{ID: "p", Name: "P", Version: "1.0.0"}))
	require.NoError(t, s.SetConfig(ctx, "p", "theme", "dark"))

	require.NoError(t, s.DeletePlugin(ctx, "p"))

	_, err := s.GetPlugin(ctx, "p")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetConfig(ctx, "p", "theme")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Deleting again is fine.
	assert.NoError(t, s.DeletePlugin(ctx, "p"))
}

func TestPlugin_SetEnabled(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePlugin(ctx, store.PluginRecord{ID: "p", Name: "P", Version: "1.0.0", Enabled: true}))
	require.NoError(t, s.SetEnabled(ctx, "p", false))

	got, err := s.GetPlugin(ctx, "p")
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	assert.ErrorIs(t, s.SetEnabled(ctx, "missing", true), store.ErrNotFound)
}

func TestConfig(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePlugin(ctx, store.PluginRecord{ID: "p", Name: "P", Version: "1.0.0"}))
	require.NoError(t, s.SetConfig(ctx, "p", "theme", "dark"))
	require.NoError(t, s.SetConfig(ctx, "p", "lang", "en"))
	require.NoError(t, s.SetConfig(ctx, "p", "theme", "light"))

	v, err := s.GetConfig(ctx, "p", "theme")
	require.NoError(t, err)
	assert.Equal(t, "light", v)

	all, err := s.AllConfig(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"theme": "light", "lang": "en"}, all)
}

func TestPreferences(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.GetPreference(ctx, "locale")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.SetPreference(ctx, "locale", "de"))
	v, err := s.GetPreference(ctx, "locale")
	require.NoError(t, err)
	assert.Equal(t, "de", v)
}

func TestCache_TTL(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.CachePut(ctx, "fresh", "v1", time.Hour))
	require.NoError(t, s.CachePut(ctx, "stale", "v2", -time.Second))
	require.NoError(t, s.CachePut(ctx, "forever", "v3", 0))

	v, err := s.CacheGet(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	_, err = s.CacheGet(ctx, "stale")
	assert.ErrorIs(t, err, store.ErrNotFound)

	v, err = s.CacheGet(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, "v3", v)
}

func TestCache_Prune(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.CachePut(ctx, "a", "1", -time.Second))
	require.NoError(t, s.CachePut(ctx, "b", "2", -time.Second))
	require.NoError(t, s.CachePut(ctx, "c", "3", time.Hour))

	n, err := s.CachePrune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.CacheGet(ctx, "c")
	assert.NoError(t, err)
}
