// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/samber/oops"

	plugins "github.com/holomush/hookevents/internal/plugin"
	"github.com/holomush/hookevents/internal/plugin/capability"
	"github.com/holomush/hookevents/internal/plugin/hostfunc"
	"github.com/holomush/hookevents/pkg/events"
)

// Compile-time interface check.
var _ plugins.Host = (*Host)(nil)

// Host manages Lua plugins.
type Host struct {
	factory   *StateFactory
	hostFuncs *hostfunc.Functions
	enforcer  *capability.Enforcer
	plugins   map[string]*Subscriber
	maxDepth  int
	depth     *dispatchDepth
	mu        sync.RWMutex
	closed    bool
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithStateFactory replaces the default state factory.
func WithStateFactory(f *StateFactory) HostOption {
	return func(h *Host) {
		h.factory = f
	}
}

// WithHostFunctions installs host functions into every plugin state.
func WithHostFunctions(hf *hostfunc.Functions) HostOption {
	return func(h *Host) {
		h.hostFuncs = hf
	}
}

// WithEnforcer shares an enforcer for plugin dispatch grants.
func WithEnforcer(e *capability.Enforcer) HostOption {
	return func(h *Host) {
		h.enforcer = e
	}
}

// WithMaxDispatchDepth bounds how deeply dispatches started from plugin
// code may nest. Values below 1 keep DefaultMaxDispatchDepth.
func WithMaxDispatchDepth(n int) HostOption {
	return func(h *Host) {
		if n > 0 {
			h.maxDepth = n
		}
	}
}

// NewHost creates a new Lua plugin host.
func NewHost(opts ...HostOption) *Host {
	h := &Host{
		factory:  NewStateFactory(),
		enforcer: capability.NewEnforcer(),
		plugins:  make(map[string]*Subscriber),
		maxDepth: DefaultMaxDispatchDepth,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.depth = &dispatchDepth{limit: int32(min(h.maxDepth, math.MaxInt32))} //nolint:gosec // clamped above
	return h
}

// Load reads the plugin's entry script, validates it, and returns its
// subscriber. The manifest's emits patterns become the plugin's dispatch
// grants.
func (h *Host) Load(ctx context.Context, manifest *plugins.Manifest, dir string) (events.Subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	errb := oops.In("lua").With("plugin", manifest.Name).With("operation", "load")
	if h.closed {
		return nil, errb.Code("HOST_CLOSED").New("host is closed")
	}
	if _, exists := h.plugins[manifest.Name]; exists {
		return nil, errb.Code("PLUGIN_EXISTS").Errorf("plugin %q already loaded", manifest.Name)
	}
	if manifest.LuaPlugin == nil {
		return nil, errb.Code(plugins.CodeInvalidManifest).New("lua-plugin is required")
	}

	entryPath := filepath.Join(dir, manifest.LuaPlugin.Entry)
	code, err := os.ReadFile(filepath.Clean(entryPath))
	if err != nil {
		return nil, errb.With("path", entryPath).Hint("failed to read entry file").Wrap(err)
	}

	declared, err := manifest.Subscriptions()
	if err != nil {
		return nil, errb.Wrap(err)
	}

	sub, err := compileSubscriber(ctx, h.factory, h.hostFuncs,
		&binding{plugin: manifest.Name, enforcer: h.enforcer, depth: h.depth},
		string(code), declared)
	if err != nil {
		return nil, errb.With("entry", manifest.LuaPlugin.Entry).Wrap(err)
	}

	if err := h.enforcer.SetGrants(manifest.Name, manifest.Emits); err != nil {
		return nil, errb.Wrap(err)
	}
	h.plugins[manifest.Name] = sub
	return sub, nil
}

// Unload removes a plugin and its dispatch grants.
func (h *Host) Unload(_ context.Context, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.plugins[name]; !ok {
		return oops.In("lua").Code("PLUGIN_NOT_LOADED").With("plugin", name).With("operation", "unload").New("plugin not loaded")
	}
	delete(h.plugins, name)
	h.enforcer.RemoveGrants(name)
	return nil
}

// Subscriber returns the loaded plugin's subscriber.
func (h *Host) Subscriber(name string) (*Subscriber, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sub, ok := h.plugins[name]
	return sub, ok
}

// Plugins returns the sorted names of loaded plugins.
func (h *Host) Plugins() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.plugins))
	for name := range h.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close shuts down the host. Subscribers already handed out keep working
// but no new plugins can be loaded.
func (h *Host) Close(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for name := range h.plugins {
		h.enforcer.RemoveGrants(name)
	}
	h.closed = true
	h.plugins = nil
	return nil
}
