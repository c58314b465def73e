// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/samber/oops"

	"github.com/holomush/hookevents/pkg/events"
)

// Manager discovers plugins and keeps their subscribers registered on a
// host registry.
type Manager struct {
	pluginsDir string
	host       events.Host
	prefix     string
	luaHost    Host
	loaded     map[string]*loadedPlugin
	ready      atomic.Bool
	mu         sync.RWMutex
}

// loadedPlugin is a plugin whose subscriber is registered.
type loadedPlugin struct {
	plugin     *DiscoveredPlugin
	runtime    Host
	dispatcher *events.Dispatcher
	subscriber events.Subscriber
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithLuaHost sets the Lua host for the manager.
func WithLuaHost(h Host) ManagerOption {
	return func(m *Manager) {
		m.luaHost = h
	}
}

// WithPrefix sets the event prefix for plugins whose manifest has none.
func WithPrefix(prefix string) ManagerOption {
	return func(m *Manager) {
		m.prefix = prefix
	}
}

// NewManager creates a plugin manager that registers subscribers on host.
func NewManager(pluginsDir string, host events.Host, opts ...ManagerOption) (*Manager, error) {
	if host == nil {
		return nil, events.ErrNilHost
	}
	m := &Manager{
		pluginsDir: pluginsDir,
		host:       host,
		loaded:     make(map[string]*loadedPlugin),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// DiscoveredPlugin contains a manifest and its directory.
type DiscoveredPlugin struct {
	Manifest *Manifest
	Dir      string
}

// Discover finds all valid plugins in the plugins directory, in directory
// name order. Invalid plugins are logged and skipped.
func (m *Manager) Discover(_ context.Context) ([]*DiscoveredPlugin, error) {
	if m.pluginsDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(m.pluginsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, oops.With("dir", m.pluginsDir).Wrapf(err, "read plugins directory")
	}

	var plugins []*DiscoveredPlugin
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pluginDir := filepath.Join(m.pluginsDir, entry.Name())
		data, err := os.ReadFile(filepath.Join(pluginDir, ManifestFile)) //nolint:gosec // path is built from ReadDir entries
		if err != nil {
			slog.Warn("skipping plugin without manifest",
				"dir", entry.Name(),
				"error", err)
			continue
		}

		manifest, err := ParseManifest(data)
		if err != nil {
			slog.Warn("skipping plugin with invalid manifest",
				"dir", entry.Name(),
				"error", err)
			continue
		}

		plugins = append(plugins, &DiscoveredPlugin{
			Manifest: manifest,
			Dir:      pluginDir,
		})
	}

	return plugins, nil
}

// LoadAll discovers every plugin and registers its subscriber. A plugin
// that fails to load is logged and skipped so one broken plugin does not
// take the others down. The manager reports Ready once LoadAll returns.
func (m *Manager) LoadAll(ctx context.Context) error {
	discovered, err := m.Discover(ctx)
	if err != nil {
		return err
	}

	for _, dp := range discovered {
		if err := m.Load(ctx, dp); err != nil {
			slog.Warn("skipping plugin that failed to load",
				"plugin", dp.Manifest.Name,
				"error", err)
		}
	}

	m.ready.Store(true)
	return nil
}

// Load loads one discovered plugin and registers its subscriber.
func (m *Manager) Load(ctx context.Context, dp *DiscoveredPlugin) error {
	name := dp.Manifest.Name

	m.mu.RLock()
	_, dup := m.loaded[name]
	m.mu.RUnlock()
	if dup {
		return oops.Code("PLUGIN_EXISTS").With("plugin", name).Errorf("plugin %q already loaded", name)
	}

	runtime, err := m.runtimeFor(dp.Manifest)
	if err != nil {
		return err
	}

	prefix := m.prefix
	if dp.Manifest.Prefix != "" {
		prefix = dp.Manifest.Prefix
	}
	dispatcher, err := events.NewDispatcher(m.host, events.WithPrefix(prefix))
	if err != nil {
		return err //nolint:wrapcheck // only fails on a nil host, ruled out by NewManager
	}

	sub, err := runtime.Load(ctx, dp.Manifest, dp.Dir)
	if err != nil {
		return oops.With("plugin", name).Wrap(err)
	}
	if err := dispatcher.AddSubscriber(sub); err != nil {
		_ = runtime.Unload(ctx, name)
		return oops.With("plugin", name).Wrap(err)
	}

	m.mu.Lock()
	m.loaded[name] = &loadedPlugin{
		plugin:     dp,
		runtime:    runtime,
		dispatcher: dispatcher,
		subscriber: sub,
	}
	m.mu.Unlock()

	slog.Info("loaded plugin",
		"plugin", name,
		"type", dp.Manifest.Type,
		"version", dp.Manifest.Version,
		"prefix", prefix,
		"events", len(sub.SubscribedEvents()))
	return nil
}

func (m *Manager) runtimeFor(manifest *Manifest) (Host, error) {
	switch manifest.Type {
	case TypeLua:
		if m.luaHost == nil {
			return nil, oops.Code("NO_RUNTIME").
				With("plugin", manifest.Name).
				Errorf("no Lua host configured")
		}
		return m.luaHost, nil
	default:
		return nil, oops.Code("NO_RUNTIME").
			With("plugin", manifest.Name).
			With("type", manifest.Type).
			Errorf("unsupported plugin type %q", manifest.Type)
	}
}

// Unload removes a plugin's listeners and unloads it from its runtime.
func (m *Manager) Unload(ctx context.Context, name string) error {
	m.mu.Lock()
	lp, ok := m.loaded[name]
	delete(m.loaded, name)
	m.mu.Unlock()

	if !ok {
		return oops.Code("PLUGIN_NOT_LOADED").With("plugin", name).Errorf("plugin %q not loaded", name)
	}
	if err := lp.dispatcher.RemoveSubscriber(lp.subscriber); err != nil {
		return oops.With("plugin", name).Wrap(err)
	}
	if err := lp.runtime.Unload(ctx, name); err != nil {
		return oops.With("plugin", name).Wrap(err)
	}
	return nil
}

// ListPlugins returns names of all loaded plugins, sorted.
func (m *Manager) ListPlugins() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.loaded))
	for name := range m.loaded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Manifest returns the manifest of a loaded plugin.
func (m *Manager) Manifest(name string) (*Manifest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lp, ok := m.loaded[name]
	if !ok {
		return nil, false
	}
	return lp.plugin.Manifest, true
}

// Ready reports whether LoadAll has completed.
func (m *Manager) Ready() bool {
	return m.ready.Load()
}

// Close removes every plugin's listeners and shuts down the runtimes.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	loaded := m.loaded
	m.loaded = make(map[string]*loadedPlugin)
	m.mu.Unlock()

	m.ready.Store(false)

	var errs []error
	for name, lp := range loaded {
		if err := lp.dispatcher.RemoveSubscriber(lp.subscriber); err != nil {
			errs = append(errs, oops.With("plugin", name).Wrap(err))
		}
	}

	if m.luaHost != nil {
		if err := m.luaHost.Close(ctx); err != nil {
			errs = append(errs, oops.With("operation", "close_lua_host").Wrap(err))
		}
	}
	return errors.Join(errs...)
}
