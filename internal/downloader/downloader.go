// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

// Package downloader talks to a plugin registry server: listing and
// searching available plugins and fetching plugin packages for install.
package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/plughub/plughub/internal/store"
)

// listingCacheTTL bounds how long plugin listings are served from the
// store cache before hitting the registry again.
const listingCacheTTL = 5 * time.Minute

// ServerStatus is the registry's health response.
type ServerStatus struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	PluginCount int    `json:"plugin_count"`
}

// RegistryPlugin describes one plugin as listed by the registry.
type RegistryPlugin struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Author      string `json:"author,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

type listingResponse struct {
	Plugins []RegistryPlugin `json:"plugins"`
}

// Client is an HTTP client for a plugin registry. Transient failures
// are retried with exponential backoff.
type Client struct {
	baseURL  string
	http     *http.Client
	cacheDir string
	store    store.Store
	logger   *slog.Logger

	maxRetries uint64
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithStore enables caching of listing responses through the store's
// TTL cache.
func WithStore(s store.Store) Option {
	return func(c *Client) { c.store = s }
}

// New creates a registry client. Downloaded packages land in cacheDir.
func New(baseURL, cacheDir string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		http:       &http.Client{Timeout: 30 * time.Second},
		cacheDir:   cacheDir,
		logger:     slog.Default(),
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status fetches the registry's health endpoint.
func (c *Client) Status(ctx context.Context) (ServerStatus, error) {
	var status ServerStatus
	if err := c.getJSON(ctx, "/api/server/status", &status); err != nil {
		return ServerStatus{}, err
	}
	return status, nil
}

// Available lists plugins offered by the registry, optionally filtered
// by category. Responses are cached briefly.
func (c *Client) Available(ctx context.Context, category string) ([]RegistryPlugin, error) {
	path := "/api/plugins/available"
	if category != "" {
		path += "?category=" + url.QueryEscape(category)
	}
	return c.cachedListing(ctx, "registry:available:"+category, path)
}

// Search queries the registry by free-text query.
func (c *Client) Search(ctx context.Context, query string) ([]RegistryPlugin, error) {
	path := "/api/plugins/search?q=" + url.QueryEscape(query)
	return c.cachedListing(ctx, "registry:search:"+query, path)
}

// Categories lists the plugin categories the registry knows.
func (c *Client) Categories(ctx context.Context) ([]string, error) {
	var resp struct {
		Categories []string `json:"categories"`
	}
	if err := c.getJSON(ctx, "/api/plugins/categories", &resp); err != nil {
		return nil, err
	}
	return resp.Categories, nil
}

// PluginInfo fetches the registry's record for one plugin.
func (c *Client) PluginInfo(ctx context.Context, id string) (RegistryPlugin, error) {
	var p RegistryPlugin
	if err := c.getJSON(ctx, "/api/plugins/"+url.PathEscape(id), &p); err != nil {
		return RegistryPlugin{}, err
	}
	return p, nil
}

// FetchPackage downloads a plugin's package archive into the cache
// directory and returns its local path.
func (c *Client) FetchPackage(ctx context.Context, id string) (string, error) {
	errCtx := oops.In("downloader").With("plugin_id", id)

	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		return "", errCtx.Wrap(err)
	}
	target := filepath.Join(c.cacheDir, id+".zip")

	path := "/api/plugins/" + url.PathEscape(id) + "/download"
	err := c.withRetry(ctx, func(ctx context.Context) error {
		resp, err := c.get(ctx, path)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		tmp, err := os.CreateTemp(c.cacheDir, id+"-*.partial")
		if err != nil {
			return err
		}
		if _, err := io.Copy(tmp, resp.Body); err != nil {
			tmp.Close()
			_ = os.Remove(tmp.Name())
			return retry.RetryableError(err)
		}
		if err := tmp.Close(); err != nil {
			_ = os.Remove(tmp.Name())
			return err
		}
		return os.Rename(tmp.Name(), target)
	})
	if err != nil {
		return "", errCtx.Hint("is the plugin registry reachable?").Wrap(err)
	}

	c.logger.Info("package downloaded",
		slog.String("plugin_id", id), slog.String("path", target))
	return target, nil
}

func (c *Client) cachedListing(ctx context.Context, cacheKey, path string) ([]RegistryPlugin, error) {
	if c.store != nil {
		if cached, err := c.store.CacheGet(ctx, cacheKey); err == nil {
			var plugins []RegistryPlugin
			if err := json.Unmarshal([]byte(cached), &plugins); err == nil {
				return plugins, nil
			}
		}
	}

	var resp listingResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}

	if c.store != nil {
		if data, err := json.Marshal(resp.Plugins); err == nil {
			if err := c.store.CachePut(ctx, cacheKey, string(data), listingCacheTTL); err != nil {
				c.logger.Warn("caching registry listing",
					slog.String("key", cacheKey), slog.Any("error", err))
			}
		}
	}
	return resp.Plugins, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.withRetry(ctx, func(ctx context.Context) error {
		resp, err := c.get(ctx, path)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return oops.In("downloader").With("path", path).
				Wrapf(err, "decoding registry response")
		}
		return nil
	})
}

// get issues one GET request. Server-side (5xx) and transport failures
// are marked retryable; client errors are not.
func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, retry.RetryableError(err)
	}
	if resp.StatusCode >= 500 {
		resp.Body.Close()
		return nil, retry.RetryableError(
			fmt.Errorf("registry returned %s", resp.Status))
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, oops.In("downloader").With("path", path).
			With("status", resp.StatusCode).
			Errorf("registry returned %s", resp.Status)
	}
	return resp, nil
}

func (c *Client) withRetry(ctx context.Context, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(c.maxRetries,
		retry.NewExponential(200*time.Millisecond))
	return retry.Do(ctx, backoff, fn)
}
