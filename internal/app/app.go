// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

// Package app wires the host's components together and owns their
// startup and shutdown order.
package app

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/plughub/plughub/internal/config"
	"github.com/plughub/plughub/internal/downloader"
	"github.com/plughub/plughub/internal/event"
	"github.com/plughub/plughub/internal/observability"
	"github.com/plughub/plughub/internal/plugin"
	"github.com/plughub/plughub/internal/plugin/lua"
	"github.com/plughub/plughub/internal/store"
	"github.com/plughub/plughub/internal/task"
	"github.com/plughub/plughub/internal/xdg"
)

// shutdownTimeout bounds each stage of Stop so a stuck component cannot
// hang process exit.
const shutdownTimeout = 10 * time.Second

// App is the assembled plugin host.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	bus      *event.Bus
	executor *task.Executor
	store    store.Store
	manager  *plugin.Manager
	native   *plugin.NativeFactory
	registry *downloader.Client
	obs      *observability.Server

	ready   atomic.Bool
	started atomic.Bool
}

// New creates an App from configuration. Components are constructed
// here; side effects (store open, listeners, plugin loads) happen in
// Start.
func New(cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		cfg:    cfg,
		logger: logger,
		bus:    event.NewBus(event.WithLogger(logger)),
		native: plugin.NewNativeFactory(),
	}
}

// RegisterNativePlugin wires an in-process plugin constructor. Must be
// called before Start.
func (a *App) RegisterNativePlugin(id string, ctor plugin.Constructor) {
	a.native.Register(id, ctor)
}

// Manager returns the plugin manager. Valid after Start.
func (a *App) Manager() *plugin.Manager { return a.manager }

// Bus returns the event bus.
func (a *App) Bus() *event.Bus { return a.bus }

// Registry returns the registry client, or nil when no registry URL is
// configured.
func (a *App) Registry() *downloader.Client { return a.registry }

// Store returns the persistence layer. Valid after Start.
func (a *App) Store() store.Store { return a.store }

// Start opens the store, starts the observability server, registers
// builtin plugins, and loads every enabled plugin.
func (a *App) Start(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return oops.In("app").New("app already started")
	}

	dataDir := a.cfg.String(config.KeyDataDir)
	pluginsDir := a.cfg.String(config.KeyPluginsDir)
	for _, dir := range []string{dataDir, pluginsDir, xdg.CacheDir()} {
		if err := xdg.EnsureDir(dir); err != nil {
			return oops.In("app").With("dir", dir).Wrap(err)
		}
	}

	st, err := store.OpenSQLite(filepath.Join(dataDir, "plughub.db"))
	if err != nil {
		return err
	}
	a.store = st

	workers := a.cfg.Int(config.KeyMaxWorkers)
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	a.executor = task.NewExecutor(workers, task.WithLogger(a.logger))

	managerOpts := []plugin.Option{
		plugin.WithLogger(a.logger),
		plugin.WithDataDir(dataDir),
	}

	if addr := a.cfg.String(config.KeyMetricsAddr); addr != "" {
		a.obs = observability.NewServer(addr, a.ready.Load)
		if _, err := a.obs.Start(); err != nil {
			return err
		}
		managerOpts = append(managerOpts, plugin.WithMetrics(a.obs.Metrics()))
	}

	if url := a.cfg.String(config.KeyRegistryURL); url != "" {
		a.registry = downloader.New(url, xdg.CacheDir(),
			downloader.WithLogger(a.logger),
			downloader.WithTimeout(a.cfg.Duration(config.KeyRegistryTimeout)),
			downloader.WithStore(st))
		managerOpts = append(managerOpts, plugin.WithFetcher(a.registry))
	}

	a.manager = plugin.NewManager(a.bus, st,
		pluginsDir, a.cfg.String(config.KeyBuiltinDir), managerOpts...)
	a.manager.RegisterFactory(a.native)
	a.manager.RegisterFactory(lua.NewFactory())

	// Teardown trigger: anything publishing app.stopping drains the
	// plugins, not just Stop.
	a.bus.Subscribe(event.TypeAppStopping, func(any) {
		// Fresh context: the one Start ran under is usually already
		// cancelled by the time shutdown begins.
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		report := a.manager.StopAll(stopCtx)
		for id, err := range report.Failed {
			a.logger.Error("stopping plugin",
				slog.String("plugin_id", id), slog.Any("error", err))
		}
	})

	if err := a.manager.ScanBuiltins(ctx); err != nil {
		return err
	}

	report := a.manager.LoadInstalled(ctx)
	a.logger.Info("startup plugin load complete",
		slog.Int("loaded", len(report.Loaded)),
		slog.Int("failed", len(report.Failed)))

	a.ready.Store(true)
	return nil
}

// Run serves deferred event delivery on the calling goroutine until ctx
// is cancelled, then shuts the app down.
func (a *App) Run(ctx context.Context) error {
	a.bus.ServeOwner(ctx)
	return a.Stop()
}

// SubmitTask runs fn on the worker pool, recording the outcome in the
// host metrics.
func (a *App) SubmitTask(fn task.Func, cb task.Callbacks) task.Handle {
	if a.obs != nil {
		metrics := a.obs.Metrics()
		userErr := cb.OnError
		cb.OnError = func(err error) {
			metrics.RecordTask("error")
			if userErr != nil {
				userErr(err)
			}
		}
		userResult := cb.OnResult
		cb.OnResult = func(result any) {
			metrics.RecordTask("ok")
			if userResult != nil {
				userResult(result)
			}
		}
	}
	return a.executor.Submit(fn, cb)
}

// Stop tears the app down: plugins stop in reverse load order, pending
// tasks and events drain, then the store closes. Individual failures
// are collected rather than aborting the sequence.
func (a *App) Stop() error {
	if !a.started.CompareAndSwap(true, false) {
		return nil
	}
	a.ready.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error

	// The app.stopping subscription runs StopAll inline.
	a.bus.Publish(event.TypeAppStopping, nil)

	if !a.executor.WaitForIdle(shutdownTimeout) {
		errs = append(errs, oops.In("app").New("task executor did not drain in time"))
	}
	a.executor.Close()

	a.bus.Flush()
	a.bus.Shutdown(shutdownTimeout)

	if a.obs != nil {
		if err := a.obs.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, oops.In("app").Wrap(err))
	}

	for _, err := range errs {
		a.logger.Error("shutdown", slog.Any("error", err))
	}
	a.logger.Info("plughub stopped")
	return errors.Join(errs...)
}
