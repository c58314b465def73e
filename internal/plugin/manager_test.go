// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/hookevents/internal/plugin"
	pluginlua "github.com/holomush/hookevents/internal/plugin/lua"
	"github.com/holomush/hookevents/pkg/errutil"
	"github.com/holomush/hookevents/pkg/events"
	"github.com/holomush/hookevents/pkg/hook"
)

// Helper functions for creating test fixtures with secure permissions.
func mkdirAll(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0o750))
}

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, content, 0o600))
}

// writeLuaPlugin creates dir/name with a manifest listening on event and a
// main.lua holding code.
func writeLuaPlugin(t *testing.T, dir, name, event, code string) string {
	t.Helper()
	pluginDir := filepath.Join(dir, name)
	mkdirAll(t, pluginDir)
	manifest := "name: " + name + "\nversion: 1.0.0\ntype: lua\nevents:\n  " + event + ": on_event\nlua-plugin:\n  entry: main.lua\n"
	writeFile(t, filepath.Join(pluginDir, plugin.ManifestFile), []byte(manifest))
	writeFile(t, filepath.Join(pluginDir, "main.lua"), []byte(code))
	return pluginDir
}

// mockHost is a plugin.Host whose calls are scripted per test.
type mockHost struct {
	mock.Mock
}

func (m *mockHost) Load(ctx context.Context, manifest *plugin.Manifest, dir string) (events.Subscriber, error) {
	args := m.Called(ctx, manifest, dir)
	sub, _ := args.Get(0).(events.Subscriber)
	return sub, args.Error(1)
}

func (m *mockHost) Unload(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func (m *mockHost) Plugins() []string {
	names, _ := m.Called().Get(0).([]string)
	return names
}

func (m *mockHost) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// recordingSubscriber appends every event it hears to a shared log.
type recordingSubscriber struct {
	events map[string]events.Subscription
	log    *[]string
}

func (r *recordingSubscriber) SubscribedEvents() map[string]events.Subscription {
	return r.events
}

func (r *recordingSubscriber) OnEvent(_ events.Event, name string) {
	*r.log = append(*r.log, name)
}

func TestNewManager_NilHost(t *testing.T) {
	_, err := plugin.NewManager(t.TempDir(), nil)
	errutil.AssertErrorCode(t, err, events.CodeNilHost)
}

func TestManager_Discover(t *testing.T) {
	dir := t.TempDir()
	auditDir := writeLuaPlugin(t, dir, "order-audit", "order.placed", "function on_event(e) end")

	mgr, err := plugin.NewManager(dir, hook.NewRegistry())
	require.NoError(t, err)

	discovered, err := mgr.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, discovered, 1)
	assert.Equal(t, "order-audit", discovered[0].Manifest.Name)
	assert.Equal(t, auditDir, discovered[0].Dir)
}

func TestManager_Discover_SkipsInvalidPlugins(t *testing.T) {
	dir := t.TempDir()
	writeLuaPlugin(t, dir, "valid", "order.placed", "function on_event(e) end")

	invalidDir := filepath.Join(dir, "invalid")
	mkdirAll(t, invalidDir)
	writeFile(t, filepath.Join(invalidDir, plugin.ManifestFile), []byte("name: Invalid_Name\nversion: 1.0.0\ntype: lua\n"))

	mkdirAll(t, filepath.Join(dir, "no-manifest"))
	writeFile(t, filepath.Join(dir, "README.md"), []byte("not a plugin"))

	mgr, err := plugin.NewManager(dir, hook.NewRegistry())
	require.NoError(t, err)

	discovered, err := mgr.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, discovered, 1)
	assert.Equal(t, "valid", discovered[0].Manifest.Name)
}

func TestManager_Discover_MissingOrEmptyDirectory(t *testing.T) {
	for name, dir := range map[string]string{
		"unset":   "",
		"empty":   t.TempDir(),
		"missing": filepath.Join(t.TempDir(), "nope"),
	} {
		t.Run(name, func(t *testing.T) {
			mgr, err := plugin.NewManager(dir, hook.NewRegistry())
			require.NoError(t, err)

			discovered, err := mgr.Discover(context.Background())
			require.NoError(t, err)
			assert.Empty(t, discovered)
		})
	}
}

func TestManager_Discover_DirectoryOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"gamma", "alpha", "beta"} {
		writeLuaPlugin(t, dir, name, "order.placed", "function on_event(e) end")
	}

	mgr, err := plugin.NewManager(dir, hook.NewRegistry())
	require.NoError(t, err)

	discovered, err := mgr.Discover(context.Background())
	require.NoError(t, err)
	var names []string
	for _, dp := range discovered {
		names = append(names, dp.Manifest.Name)
	}
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, names)
}

func TestManager_LoadAll_LuaPlugins(t *testing.T) {
	dir := t.TempDir()
	writeLuaPlugin(t, dir, "audit", "order.placed", `
		function on_event(event) event:set("audited", true) end
	`)
	writeLuaPlugin(t, dir, "mailer", "order.placed", `
		function on_event(event) event:set("mailed", true) end
	`)

	registry := hook.NewRegistry()
	mgr, err := plugin.NewManager(dir, registry,
		plugin.WithLuaHost(pluginlua.NewHost()),
		plugin.WithPrefix("shop."))
	require.NoError(t, err)

	assert.False(t, mgr.Ready())
	require.NoError(t, mgr.LoadAll(context.Background()))
	assert.True(t, mgr.Ready())
	assert.Equal(t, []string{"audit", "mailer"}, mgr.ListPlugins())
	assert.Equal(t, 2, registry.Count("shop.order.placed"))

	d, err := events.NewDispatcher(registry, events.WithPrefix("shop."))
	require.NoError(t, err)
	ev, err := d.Dispatch("order.placed", events.NewGenericEvent(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"audited": true, "mailed": true}, ev.(*events.GenericEvent).Arguments())

	m, ok := mgr.Manifest("audit")
	require.True(t, ok)
	assert.Equal(t, "1.0.0", m.Version)
	_, ok = mgr.Manifest("missing")
	assert.False(t, ok)
}

func TestManager_LoadAll_ManifestPrefixOverrides(t *testing.T) {
	dir := t.TempDir()
	pluginDir := writeLuaPlugin(t, dir, "billing", "invoice.sent", "function on_event(e) end")
	writeFile(t, filepath.Join(pluginDir, plugin.ManifestFile), []byte(
		"name: billing\nversion: 1.0.0\ntype: lua\nprefix: \"billing.\"\nevents:\n  invoice.sent: on_event\nlua-plugin:\n  entry: main.lua\n"))

	registry := hook.NewRegistry()
	mgr, err := plugin.NewManager(dir, registry,
		plugin.WithLuaHost(pluginlua.NewHost()),
		plugin.WithPrefix("shop."))
	require.NoError(t, err)
	require.NoError(t, mgr.LoadAll(context.Background()))

	assert.True(t, registry.HasFilter("billing.invoice.sent"))
	assert.False(t, registry.HasFilter("shop.invoice.sent"))
}

func TestManager_LoadAll_SkipsBrokenPlugins(t *testing.T) {
	dir := t.TempDir()
	writeLuaPlugin(t, dir, "good", "order.placed", "function on_event(e) end")
	writeLuaPlugin(t, dir, "syntax", "order.placed", "function on_event(")
	writeLuaPlugin(t, dir, "unhandled", "order.placed", "function other(e) end")

	mgr, err := plugin.NewManager(dir, hook.NewRegistry(), plugin.WithLuaHost(pluginlua.NewHost()))
	require.NoError(t, err)

	require.NoError(t, mgr.LoadAll(context.Background()))
	assert.Equal(t, []string{"good"}, mgr.ListPlugins())
	assert.True(t, mgr.Ready())
}

func TestManager_Load_WithoutLuaHost(t *testing.T) {
	dir := t.TempDir()
	writeLuaPlugin(t, dir, "audit", "order.placed", "function on_event(e) end")

	mgr, err := plugin.NewManager(dir, hook.NewRegistry())
	require.NoError(t, err)

	discovered, err := mgr.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, discovered, 1)

	err = mgr.Load(context.Background(), discovered[0])
	errutil.AssertErrorCode(t, err, "NO_RUNTIME")
	assert.Empty(t, mgr.ListPlugins())
}

func TestManager_Load_Duplicate(t *testing.T) {
	dir := t.TempDir()
	writeLuaPlugin(t, dir, "audit", "order.placed", "function on_event(e) end")

	mgr, err := plugin.NewManager(dir, hook.NewRegistry(), plugin.WithLuaHost(pluginlua.NewHost()))
	require.NoError(t, err)

	discovered, err := mgr.Discover(context.Background())
	require.NoError(t, err)
	require.NoError(t, mgr.Load(context.Background(), discovered[0]))

	err = mgr.Load(context.Background(), discovered[0])
	errutil.AssertErrorCode(t, err, "PLUGIN_EXISTS")
}

func TestManager_Load_HostError(t *testing.T) {
	dir := t.TempDir()
	writeLuaPlugin(t, dir, "audit", "order.placed", "function on_event(e) end")

	hostErr := errors.New("runtime unavailable")
	host := &mockHost{}
	host.On("Load", mock.Anything, mock.Anything, mock.Anything).Return(nil, hostErr)

	mgr, err := plugin.NewManager(dir, hook.NewRegistry(), plugin.WithLuaHost(host))
	require.NoError(t, err)
	discovered, err := mgr.Discover(context.Background())
	require.NoError(t, err)

	err = mgr.Load(context.Background(), discovered[0])
	require.Error(t, err)
	assert.ErrorIs(t, err, hostErr)
	errutil.AssertErrorContext(t, err, "plugin", "audit")
	host.AssertExpectations(t)
}

func TestManager_Load_RollsBackOnRegistrationFailure(t *testing.T) {
	dir := t.TempDir()
	writeLuaPlugin(t, dir, "audit", "order.placed", "function on_event(e) end")

	var log []string
	sub := &recordingSubscriber{
		events: map[string]events.Subscription{
			"order.placed":  events.Method("OnEvent"),
			"order.shipped": events.Method("Missing"),
		},
		log: &log,
	}

	host := &mockHost{}
	host.On("Load", mock.Anything, mock.Anything, mock.Anything).Return(sub, nil)
	host.On("Unload", mock.Anything, "audit").Return(nil)

	registry := hook.NewRegistry()
	mgr, err := plugin.NewManager(dir, registry, plugin.WithLuaHost(host))
	require.NoError(t, err)
	discovered, err := mgr.Discover(context.Background())
	require.NoError(t, err)

	err = mgr.Load(context.Background(), discovered[0])
	errutil.AssertErrorCode(t, err, events.CodeInvalidListener)
	assert.False(t, registry.HasFilter("order.placed"), "partial registration is removed")
	assert.Empty(t, mgr.ListPlugins())
	host.AssertExpectations(t)
}

func TestManager_Unload(t *testing.T) {
	dir := t.TempDir()
	writeLuaPlugin(t, dir, "audit", "order.placed", "function on_event(e) end")

	registry := hook.NewRegistry()
	luaHost := pluginlua.NewHost()
	mgr, err := plugin.NewManager(dir, registry, plugin.WithLuaHost(luaHost))
	require.NoError(t, err)
	require.NoError(t, mgr.LoadAll(context.Background()))
	require.True(t, registry.HasFilter("order.placed"))

	require.NoError(t, mgr.Unload(context.Background(), "audit"))
	assert.False(t, registry.HasFilter("order.placed"))
	assert.Empty(t, mgr.ListPlugins())
	assert.Empty(t, luaHost.Plugins())

	err = mgr.Unload(context.Background(), "audit")
	errutil.AssertErrorCode(t, err, "PLUGIN_NOT_LOADED")
}

func TestManager_Close_WithoutLuaHost(t *testing.T) {
	mgr, err := plugin.NewManager(t.TempDir(), hook.NewRegistry())
	require.NoError(t, err)

	assert.NoError(t, mgr.Close(context.Background()))
}

func TestManager_Close(t *testing.T) {
	dir := t.TempDir()
	writeLuaPlugin(t, dir, "audit", "order.placed", "function on_event(e) end")

	registry := hook.NewRegistry()
	mgr, err := plugin.NewManager(dir, registry, plugin.WithLuaHost(pluginlua.NewHost()))
	require.NoError(t, err)
	require.NoError(t, mgr.LoadAll(context.Background()))
	require.Len(t, mgr.ListPlugins(), 1)

	require.NoError(t, mgr.Close(context.Background()))
	assert.Empty(t, mgr.ListPlugins(), "ListPlugins() after Close() should be empty")
	assert.False(t, registry.HasFilter("order.placed"))
	assert.False(t, mgr.Ready())
}

func TestManager_Close_PropagatesHostError(t *testing.T) {
	dir := t.TempDir()
	writeLuaPlugin(t, dir, "audit", "order.placed", "function on_event(e) end")

	var log []string
	sub := &recordingSubscriber{
		events: map[string]events.Subscription{"order.placed": events.MethodPriorityArgs("OnEvent", 10, 2)},
		log:    &log,
	}
	hostErr := errors.New("cleanup failed")
	host := &mockHost{}
	host.On("Load", mock.Anything, mock.Anything, mock.Anything).Return(sub, nil)
	host.On("Close", mock.Anything).Return(hostErr)

	registry := hook.NewRegistry()
	mgr, err := plugin.NewManager(dir, registry, plugin.WithLuaHost(host))
	require.NoError(t, err)
	require.NoError(t, mgr.LoadAll(context.Background()))
	require.Len(t, mgr.ListPlugins(), 1)

	require.NoError(t, registry.DoAction("order.placed", events.NewEvent(), "order.placed"))
	assert.Equal(t, []string{"order.placed"}, log)

	err = mgr.Close(context.Background())
	require.Error(t, err, "Close() should return error from host")
	assert.ErrorIs(t, err, hostErr)
	assert.Empty(t, mgr.ListPlugins(), "ListPlugins() after failed Close() should be empty")
}
