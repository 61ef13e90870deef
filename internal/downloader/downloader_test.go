// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

package downloader_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plughub/plughub/internal/downloader"
	"github.com/plughub/plughub/internal/store/storetest"
)

func newTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestStatus(t *testing.T) {
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/server/status", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"ok","version":"2.1.0","plugin_count":42}`))
	}))

	c := downloader.New(srv.URL, t.TempDir())
	status, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, 42, status.PluginCount)
}

func TestAvailable_CategoryFilter(t *testing.T) {
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/plugins/available", r.URL.Path)
		assert.Equal(t, "image", r.URL.Query().Get("category"))
		_, _ = w.Write([]byte(`{"plugins":[{"id":"image-resizer","name":"Resizer","version":"1.0.0","category":"image"}]}`))
	}))

	c := downloader.New(srv.URL, t.TempDir())
	plugins, err := c.Available(context.Background(), "image")
	require.NoError(t, err)
	require.Len(t, plugins, 1)
	assert.Equal(t, "image-resizer", plugins[0].ID)
}

func TestAvailable_ServedFromCache(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"plugins":[{"id":"cached-plugin","name":"C","version":"1.0.0"}]}`))
	}))

	c := downloader.New(srv.URL, t.TempDir(), downloader.WithStore(storetest.New()))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		plugins, err := c.Available(ctx, "")
		require.NoError(t, err)
		require.Len(t, plugins, 1)
	}
	assert.Equal(t, int32(1), hits.Load(), "repeat listings must come from cache")
}

func TestSearch(t *testing.T) {
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/plugins/search", r.URL.Path)
		assert.Equal(t, "resize me", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{"plugins":[]}`))
	}))

	c := downloader.New(srv.URL, t.TempDir())
	plugins, err := c.Search(context.Background(), "resize me")
	require.NoError(t, err)
	assert.Empty(t, plugins)
}

func TestPluginInfo_NotFound(t *testing.T) {
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	c := downloader.New(srv.URL, t.TempDir())
	_, err := c.PluginInfo(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestFetchPackage(t *testing.T) {
	payload := []byte("fake zip bytes")
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/plugins/image-resizer/download", r.URL.Path)
		_, _ = w.Write(payload)
	}))

	cacheDir := t.TempDir()
	c := downloader.New(srv.URL, cacheDir)
	path, err := c.FetchPackage(context.Background(), "image-resizer")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Contains(t, path, cacheDir)
}

func TestFetchPackage_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("eventually"))
	}))

	c := downloader.New(srv.URL, t.TempDir())
	path, err := c.FetchPackage(context.Background(), "flaky")
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "eventually", string(data))
}

func TestFetchPackage_GivesUpOnClientError(t *testing.T) {
	var attempts atomic.Int32
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.NotFound(w, r)
	}))

	c := downloader.New(srv.URL, t.TempDir(), downloader.WithTimeout(5*time.Second))
	_, err := c.FetchPackage(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load(), "404 must not be retried")
}
