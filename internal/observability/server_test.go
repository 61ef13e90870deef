// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func startServer(t *testing.T, ready ReadinessChecker) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", ready)
	if _, err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestServer_Metrics(t *testing.T) {
	server := startServer(t, func() bool { return true })

	m := server.Metrics()
	m.RecordLifecycle("load")
	m.RecordLifecycle("load")
	m.RecordLifecycle("unload")
	m.SetLoadedCount(1)
	m.RecordTask("ok")
	m.RecordEvent("plugin.loaded")

	status, body := get(t, "http://"+server.Addr()+"/metrics")
	if status != http.StatusOK {
		t.Fatalf("expected status 200, got %d", status)
	}

	for _, want := range []string{
		"# HELP",
		"go_",
		"process_",
		`plughub_plugin_lifecycle_total{operation="load"} 2`,
		`plughub_plugin_lifecycle_total{operation="unload"} 1`,
		"plughub_plugins_loaded 1",
		`plughub_tasks_total{outcome="ok"} 1`,
		`plughub_events_published_total{event_type="plugin.loaded"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestServer_HealthProbes(t *testing.T) {
	var ready atomic.Bool
	server := startServer(t, ready.Load)
	base := "http://" + server.Addr()

	if status, _ := get(t, base+"/healthz/liveness"); status != http.StatusOK {
		t.Errorf("liveness: expected 200, got %d", status)
	}
	if status, _ := get(t, base+"/healthz/readiness"); status != http.StatusServiceUnavailable {
		t.Errorf("readiness before ready: expected 503, got %d", status)
	}

	ready.Store(true)
	if status, _ := get(t, base+"/healthz/readiness"); status != http.StatusOK {
		t.Errorf("readiness after ready: expected 200, got %d", status)
	}
}

func TestServer_StartTwice(t *testing.T) {
	server := startServer(t, nil)
	if _, err := server.Start(); err == nil {
		t.Error("second Start should fail while running")
	}
}

func TestServer_StopIdempotent(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	if _, err := server.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx := context.Background()
	if err := server.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := server.Stop(ctx); err != nil {
		t.Errorf("second stop should be a no-op, got %v", err)
	}
}
