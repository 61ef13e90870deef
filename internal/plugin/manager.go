// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

package plugin

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/plughub/plughub/internal/event"
	"github.com/plughub/plughub/internal/store"
	"github.com/plughub/plughub/pkg/sdk"
)

// Fetcher downloads a plugin package from the registry, returning the
// local path of the downloaded archive.
type Fetcher interface {
	FetchPackage(ctx context.Context, id string) (string, error)
}

// Metrics receives lifecycle counters from the manager.
type Metrics interface {
	RecordLifecycle(op string)
	SetLoadedCount(n int)
}

type noopMetrics struct{}

func (noopMetrics) RecordLifecycle(string) {}
func (noopMetrics) SetLoadedCount(int)     {}

// loadedPlugin is the runtime state of one active plugin.
type loadedPlugin struct {
	manifest *Manifest
	instance sdk.Plugin
	dir      string
}

// Manager owns the lifecycle of every plugin known to the store. All
// lifecycle operations serialize on one mutex; dependency recursion
// happens inside the held lock through the *Locked helpers.
type Manager struct {
	logger  *slog.Logger
	bus     *event.Bus
	store   store.Store
	fetcher Fetcher
	metrics Metrics

	pluginsDir string
	builtinDir string
	dataDir    string

	mu        sync.Mutex
	factories map[Dialect]Factory
	loaded    map[string]*loadedPlugin
	loadOrder []string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithFetcher sets the registry downloader used by Update when no local
// package path is given.
func WithFetcher(f Fetcher) Option {
	return func(m *Manager) { m.fetcher = f }
}

// WithMetrics sets the lifecycle metrics sink.
func WithMetrics(mx Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// WithDataDir sets the directory holding per-plugin data, removed by
// Uninstall when removeData is requested.
func WithDataDir(dir string) Option {
	return func(m *Manager) { m.dataDir = dir }
}

// NewManager creates a manager over the given bus and store. pluginsDir
// holds user-installed plugins, builtinDir the plugins shipped with the
// host.
func NewManager(bus *event.Bus, st store.Store, pluginsDir, builtinDir string, opts ...Option) *Manager {
	m := &Manager{
		logger:     slog.Default(),
		bus:        bus,
		store:      st,
		metrics:    noopMetrics{},
		pluginsDir: pluginsDir,
		builtinDir: builtinDir,
		factories:  make(map[Dialect]Factory),
		loaded:     make(map[string]*loadedPlugin),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterFactory makes a dialect loadable. Factories must be registered
// before any load; registering twice for a dialect replaces the earlier
// factory.
func (m *Manager) RegisterFactory(f Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[f.Dialect()] = f
}

// IsLoaded reports whether the plugin is currently loaded.
func (m *Manager) IsLoaded(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.loaded[id]
	return ok
}

// Loaded returns the IDs of loaded plugins in their load order.
func (m *Manager) Loaded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.loadOrder))
	copy(out, m.loadOrder)
	return out
}

// Status returns the runtime status string of a loaded plugin, or
// CodeNotFound when it is not loaded.
func (m *Manager) Status(id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lp, ok := m.loaded[id]
	if !ok {
		return "", errb(CodeNotFound, id).Errorf("plugin %q is not loaded", id)
	}
	return lp.instance.Status(), nil
}

// Process runs one input through a loaded plugin.
func (m *Manager) Process(ctx context.Context, id string, in sdk.Input) (sdk.Output, error) {
	m.mu.Lock()
	lp, ok := m.loaded[id]
	m.mu.Unlock()
	if !ok {
		return sdk.Output{}, errb(CodeNotFound, id).Errorf("plugin %q is not loaded", id)
	}
	return lp.instance.Process(ctx, in)
}

// List returns all plugin records known to the store.
func (m *Manager) List(ctx context.Context) ([]store.PluginRecord, error) {
	return m.store.ListPlugins(ctx)
}

// Info returns the stored record for one plugin.
func (m *Manager) Info(ctx context.Context, id string) (store.PluginRecord, error) {
	rec, err := m.store.GetPlugin(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.PluginRecord{}, errb(CodeNotFound, id).Errorf("plugin %q is not installed", id)
	}
	return rec, err
}

// Load activates a plugin, loading its declared dependencies first.
// Loading an already-loaded plugin is a no-op.
func (m *Manager) Load(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(ctx, id, map[string]bool{})
}

func (m *Manager) loadLocked(ctx context.Context, id string, visiting map[string]bool) error {
	if _, ok := m.loaded[id]; ok {
		return nil
	}
	if visiting[id] {
		return errb(CodeDependencyFailed, id).
			Errorf("circular dependency involving %q", id)
	}
	visiting[id] = true
	defer delete(visiting, id)

	rec, err := m.store.GetPlugin(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return errb(CodeNotFound, id).Errorf("plugin %q is not installed", id)
	}
	if err != nil {
		return errb(CodeLoadFailed, id).Wrap(err)
	}

	dir := m.pluginDir(rec)
	manifest, err := m.readManifest(dir)
	if err != nil {
		return errb(CodeLoadFailed, id).With("dir", dir).Wrap(err)
	}

	for _, dep := range manifest.Dependencies {
		if _, ok := m.loaded[dep]; ok {
			continue
		}
		if err := m.loadLocked(ctx, dep, visiting); err != nil {
			return errb(CodeDependencyFailed, id).
				With("dependency", dep).
				Wrapf(err, "dependency %q failed to load", dep)
		}
	}

	factory, ok := m.factories[manifest.Dialect]
	if !ok {
		return errb(CodeLoadFailed, id).
			Errorf("no factory registered for dialect %q", manifest.Dialect)
	}

	instance, err := factory.Open(ctx, manifest, dir, m.hostFor(id))
	if err != nil {
		return errb(CodeLoadFailed, id).Wrap(err)
	}
	if err := instance.Initialize(ctx); err != nil {
		return errb(CodeLoadFailed, id).Wrapf(err, "initialize failed")
	}
	if err := instance.Start(ctx); err != nil {
		// Initialize succeeded, so give the instance a chance to release
		// whatever it acquired.
		if cerr := instance.Cleanup(ctx); cerr != nil {
			m.logger.Warn("cleanup after failed start",
				slog.String("plugin_id", id), slog.Any("error", cerr))
		}
		return errb(CodeLoadFailed, id).Wrapf(err, "start failed")
	}

	m.loaded[id] = &loadedPlugin{manifest: manifest, instance: instance, dir: dir}
	m.loadOrder = append(m.loadOrder, id)
	m.metrics.RecordLifecycle("load")
	m.metrics.SetLoadedCount(len(m.loaded))

	m.logger.Info("plugin loaded",
		slog.String("plugin_id", id),
		slog.String("version", manifest.Version),
		slog.String("dialect", string(manifest.Dialect)))
	m.bus.Publish(event.TypePluginLoaded, LifecyclePayload{PluginID: id, Version: manifest.Version})
	return nil
}

// Unload deactivates a plugin. Unloading a plugin that is not loaded is
// a no-op; unloading one that other loaded plugins depend on fails with
// a DependencyBlockedError naming the dependents.
func (m *Manager) Unload(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unloadLocked(ctx, id)
}

func (m *Manager) unloadLocked(ctx context.Context, id string) error {
	lp, ok := m.loaded[id]
	if !ok {
		return nil
	}

	if dependents := m.loadedDependentsLocked(id); len(dependents) > 0 {
		return errb(CodeDependencyFailed, id).
			With("dependents", dependents).
			Wrap(&DependencyBlockedError{PluginID: id, Dependents: dependents})
	}

	if err := lp.instance.Stop(ctx); err != nil {
		m.logger.Warn("plugin stop failed",
			slog.String("plugin_id", id), slog.Any("error", err))
	}
	if err := lp.instance.Cleanup(ctx); err != nil {
		m.logger.Warn("plugin cleanup failed",
			slog.String("plugin_id", id), slog.Any("error", err))
	}

	delete(m.loaded, id)
	for i, lid := range m.loadOrder {
		if lid == id {
			m.loadOrder = append(m.loadOrder[:i], m.loadOrder[i+1:]...)
			break
		}
	}
	m.metrics.RecordLifecycle("unload")
	m.metrics.SetLoadedCount(len(m.loaded))

	m.logger.Info("plugin unloaded", slog.String("plugin_id", id))
	m.bus.Publish(event.TypePluginUnloaded, LifecyclePayload{PluginID: id, Version: lp.manifest.Version})
	return nil
}

// loadedDependentsLocked returns the loaded plugins that declare id as a
// direct dependency.
func (m *Manager) loadedDependentsLocked(id string) []string {
	deps := make(map[string][]string, len(m.loaded))
	for lid, lp := range m.loaded {
		deps[lid] = lp.manifest.Dependencies
	}
	return DirectDependents(deps, id)
}

// Install validates the package at path and installs it into the plugins
// directory. With enable set, the plugin is loaded after installation.
// With force set, an existing installation of the same ID is replaced,
// unloading it first if needed.
func (m *Manager) Install(ctx context.Context, path string, enable, force bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.installLocked(ctx, path, enable, force)
}

func (m *Manager) installLocked(ctx context.Context, path string, enable, force bool) (string, error) {
	staged, cleanup, err := StagePackage(path)
	if err != nil {
		return "", oops.Code(CodeValidationFailed).In("plugin").
			With("path", path).Wrap(err)
	}
	defer cleanup()

	data, err := os.ReadFile(filepath.Join(staged, ManifestFileName))
	if err != nil {
		return "", oops.Code(CodeValidationFailed).In("plugin").
			With("path", path).Wrap(err)
	}
	if err := ValidateSchema(data); err != nil {
		return "", oops.Code(CodeValidationFailed).In("plugin").
			With("path", path).Wrap(err)
	}
	manifest, err := ParseManifest(data)
	if err != nil {
		return "", oops.Code(CodeValidationFailed).In("plugin").
			With("path", path).Wrap(err)
	}
	id := manifest.ID

	if _, ok := m.factories[manifest.Dialect]; !ok {
		return "", errb(CodeValidationFailed, id).
			Errorf("unsupported plugin dialect %q", manifest.Dialect)
	}

	_, err = m.store.GetPlugin(ctx, id)
	exists := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", errb(CodeInstallFailed, id).Wrap(err)
	}
	if exists && !force {
		return "", errb(CodeInstallFailed, id).
			Hint("pass force to replace the existing installation").
			Errorf("plugin %q is already installed", id)
	}
	if force {
		if err := m.unloadLocked(ctx, id); err != nil {
			return "", err
		}
	}

	target := filepath.Join(m.pluginsDir, id)
	if exists {
		if err := os.RemoveAll(target); err != nil {
			return "", errb(CodeInstallFailed, id).Wrap(err)
		}
	}
	if err := CopyDir(staged, target); err != nil {
		_ = os.RemoveAll(target)
		return "", errb(CodeInstallFailed, id).Wrapf(err, "copying package")
	}

	rec := recordFromManifest(manifest, enable)
	if err := m.store.SavePlugin(ctx, rec); err != nil {
		_ = os.RemoveAll(target)
		return "", errb(CodeInstallFailed, id).Wrapf(err, "persisting record")
	}

	m.metrics.RecordLifecycle("install")
	m.logger.Info("plugin installed",
		slog.String("plugin_id", id), slog.String("version", manifest.Version))
	m.bus.Publish(event.TypePluginInstalled, LifecyclePayload{PluginID: id, Version: manifest.Version})

	if enable {
		if err := m.loadLocked(ctx, id, map[string]bool{}); err != nil {
			if serr := m.store.SetEnabled(ctx, id, false); serr != nil {
				m.logger.Warn("reverting enabled flag",
					slog.String("plugin_id", id), slog.Any("error", serr))
			}
			return id, err
		}
	}
	return id, nil
}

// Uninstall removes a plugin's files and record. Builtin plugins cannot
// be uninstalled. A loaded plugin is unloaded first; a dependency-blocked
// unload aborts the uninstall.
func (m *Manager) Uninstall(ctx context.Context, id string, removeData bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.store.GetPlugin(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return errb(CodeNotFound, id).Errorf("plugin %q is not installed", id)
	}
	if err != nil {
		return errb(CodeInstallFailed, id).Wrap(err)
	}
	if recordBuiltin(rec) {
		return errb(CodeValidationFailed, id).
			Errorf("builtin plugin %q cannot be uninstalled", id)
	}

	if err := m.unloadLocked(ctx, id); err != nil {
		return err
	}

	if err := os.RemoveAll(filepath.Join(m.pluginsDir, id)); err != nil {
		return errb(CodeInstallFailed, id).Wrapf(err, "removing plugin directory")
	}
	if removeData && m.dataDir != "" {
		if err := os.RemoveAll(filepath.Join(m.dataDir, id)); err != nil {
			m.logger.Warn("removing plugin data",
				slog.String("plugin_id", id), slog.Any("error", err))
		}
	}
	if err := m.store.DeletePlugin(ctx, id); err != nil {
		return errb(CodeInstallFailed, id).Wrapf(err, "deleting record")
	}

	m.metrics.RecordLifecycle("uninstall")
	m.logger.Info("plugin uninstalled", slog.String("plugin_id", id))
	m.bus.Publish(event.TypePluginUninstalled, LifecyclePayload{PluginID: id, Version: rec.Version})
	return nil
}

// Enable marks a plugin enabled and loads it. If the load fails the flag
// is reverted so the store never claims enabled for a plugin that is not
// actually loadable.
func (m *Manager) Enable(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.SetEnabled(ctx, id, true); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errb(CodeNotFound, id).Errorf("plugin %q is not installed", id)
		}
		return errb(CodeInstallFailed, id).Wrap(err)
	}
	if err := m.loadLocked(ctx, id, map[string]bool{}); err != nil {
		if serr := m.store.SetEnabled(ctx, id, false); serr != nil {
			m.logger.Warn("reverting enabled flag",
				slog.String("plugin_id", id), slog.Any("error", serr))
		}
		return err
	}

	m.bus.Publish(event.TypePluginEnabled, LifecyclePayload{PluginID: id})
	return nil
}

// Disable unloads a plugin and marks it disabled. The same dependent
// blocking rule as Unload applies; a blocked disable leaves the enabled
// flag untouched.
func (m *Manager) Disable(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.unloadLocked(ctx, id); err != nil {
		return err
	}
	if err := m.store.SetEnabled(ctx, id, false); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errb(CodeNotFound, id).Errorf("plugin %q is not installed", id)
		}
		return errb(CodeInstallFailed, id).Wrap(err)
	}

	m.bus.Publish(event.TypePluginDisabled, LifecyclePayload{PluginID: id})
	return nil
}

// Update replaces an installed plugin with a new package version,
// restoring the previous enabled state afterward. With an empty
// packagePath the package is fetched from the registry. A failed install
// leaves the existing record authoritative.
func (m *Manager) Update(ctx context.Context, id, packagePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.store.GetPlugin(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return errb(CodeNotFound, id).Errorf("plugin %q is not installed", id)
	}
	if err != nil {
		return errb(CodeInstallFailed, id).Wrap(err)
	}
	wasEnabled := rec.Enabled
	_, wasLoaded := m.loaded[id]
	oldVersion := rec.Version

	if packagePath == "" {
		if m.fetcher == nil {
			return errb(CodeInstallFailed, id).
				Errorf("no package path given and no registry configured")
		}
		packagePath, err = m.fetcher.FetchPackage(ctx, id)
		if err != nil {
			return errb(CodeInstallFailed, id).Wrapf(err, "fetching package")
		}
	}

	// Reject a package for a different plugin before touching anything.
	staged, cleanup, err := StagePackage(packagePath)
	if err != nil {
		return errb(CodeValidationFailed, id).Wrap(err)
	}
	data, err := os.ReadFile(filepath.Join(staged, ManifestFileName))
	cleanup()
	if err != nil {
		return errb(CodeValidationFailed, id).Wrap(err)
	}
	manifest, err := ParseManifest(data)
	if err != nil {
		return errb(CodeValidationFailed, id).Wrap(err)
	}
	if manifest.ID != id {
		return errb(CodeValidationFailed, id).
			Errorf("package is for plugin %q, not %q", manifest.ID, id)
	}

	if wasLoaded {
		if err := m.unloadLocked(ctx, id); err != nil {
			return err
		}
	}

	if _, err := m.installLocked(ctx, packagePath, false, true); err != nil {
		// The old record was never deleted; reload it if it was running.
		if wasLoaded {
			if lerr := m.loadLocked(ctx, id, map[string]bool{}); lerr != nil {
				m.logger.Error("restoring plugin after failed update",
					slog.String("plugin_id", id), slog.Any("error", lerr))
			}
		}
		return err
	}

	if wasEnabled {
		if err := m.store.SetEnabled(ctx, id, true); err != nil {
			return errb(CodeInstallFailed, id).Wrap(err)
		}
		if err := m.loadLocked(ctx, id, map[string]bool{}); err != nil {
			return err
		}
	}

	m.metrics.RecordLifecycle("update")
	m.logger.Info("plugin updated",
		slog.String("plugin_id", id),
		slog.String("from", oldVersion),
		slog.String("to", manifest.Version))
	m.bus.Publish(event.TypePluginUpdated, UpdatePayload{
		PluginID: id, FromVersion: oldVersion, ToVersion: manifest.Version,
	})
	return nil
}

// LoadReport is the aggregate outcome of LoadInstalled.
type LoadReport struct {
	Loaded []string
	Failed map[string]error
}

// LoadInstalled loads every enabled plugin in dependency order,
// tolerating per-plugin failures. One plugins.all_loaded event is
// published at the end.
func (m *Manager) LoadInstalled(ctx context.Context) LoadReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := LoadReport{Failed: make(map[string]error)}

	recs, err := m.store.ListPlugins(ctx)
	if err != nil {
		m.logger.Error("listing installed plugins", slog.Any("error", err))
		m.bus.Publish(event.TypeAllLoaded, AllLoadedPayload{})
		return report
	}

	deps := make(map[string][]string)
	for _, rec := range recs {
		if rec.Enabled {
			deps[rec.ID] = recordDeps(rec)
		}
	}

	for _, id := range LoadOrder(deps, m.logger) {
		if err := m.loadLocked(ctx, id, map[string]bool{}); err != nil {
			m.logger.Error("loading plugin at startup",
				slog.String("plugin_id", id), slog.Any("error", err))
			report.Failed[id] = err
			continue
		}
		report.Loaded = append(report.Loaded, id)
	}

	payload := AllLoadedPayload{Loaded: report.Loaded}
	for id := range report.Failed {
		payload.Failed = append(payload.Failed, id)
	}
	m.bus.Publish(event.TypeAllLoaded, payload)
	return report
}

// StopReport is the aggregate outcome of StopAll.
type StopReport struct {
	Stopped []string
	Failed  map[string]error
}

// StopAll unloads every loaded plugin in reverse load order, tolerating
// per-plugin failures.
func (m *Manager) StopAll(ctx context.Context) StopReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := StopReport{Failed: make(map[string]error)}

	order := make([]string, len(m.loadOrder))
	copy(order, m.loadOrder)
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		if err := m.unloadLocked(ctx, id); err != nil {
			m.logger.Error("stopping plugin",
				slog.String("plugin_id", id), slog.Any("error", err))
			report.Failed[id] = err
			continue
		}
		report.Stopped = append(report.Stopped, id)
	}
	return report
}

// ScanBuiltins registers plugin records for every builtin plugin found
// in the builtin directory that the store does not know yet.
func (m *Manager) ScanBuiltins(ctx context.Context) error {
	if m.builtinDir == "" {
		return nil
	}
	entries, err := os.ReadDir(m.builtinDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return oops.Code(CodeInstallFailed).In("plugin").
			With("dir", m.builtinDir).Wrap(err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(m.builtinDir, e.Name())
		manifest, err := m.readManifest(dir)
		if err != nil {
			m.logger.Warn("skipping builtin plugin",
				slog.String("dir", dir), slog.Any("error", err))
			continue
		}
		if _, err := m.store.GetPlugin(ctx, manifest.ID); err == nil {
			continue
		}
		manifest.Builtin = true
		if err := m.store.SavePlugin(ctx, recordFromManifest(manifest, true)); err != nil {
			return errb(CodeInstallFailed, manifest.ID).Wrap(err)
		}
		m.logger.Info("registered builtin plugin",
			slog.String("plugin_id", manifest.ID),
			slog.String("version", manifest.Version))
	}
	return nil
}

func (m *Manager) pluginDir(rec store.PluginRecord) string {
	if recordBuiltin(rec) {
		return filepath.Join(m.builtinDir, rec.ID)
	}
	return filepath.Join(m.pluginsDir, rec.ID)
}

func (m *Manager) readManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}

func recordFromManifest(m *Manifest, enabled bool) store.PluginRecord {
	deps := make([]any, len(m.Dependencies))
	for i, d := range m.Dependencies {
		deps[i] = d
	}
	return store.PluginRecord{
		ID:          m.ID,
		Name:        m.Name,
		Version:     m.Version,
		Author:      m.Author,
		Description: m.Description,
		InstallDate: time.Now().UTC().Truncate(time.Second),
		Enabled:     enabled,
		Metadata: map[string]any{
			"dialect":      string(m.Dialect),
			"main":         m.Main,
			"dependencies": deps,
			"builtin":      m.Builtin,
		},
	}
}

func recordBuiltin(rec store.PluginRecord) bool {
	b, _ := rec.Metadata["builtin"].(bool)
	return b
}

func recordDeps(rec store.PluginRecord) []string {
	raw, _ := rec.Metadata["dependencies"].([]any)
	out := make([]string, 0, len(raw))
	for _, d := range raw {
		if s, ok := d.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
