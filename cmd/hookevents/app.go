// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/holomush/hookevents/internal/config"
	"github.com/holomush/hookevents/internal/logging"
	"github.com/holomush/hookevents/internal/observability"
	"github.com/holomush/hookevents/internal/plugin"
	"github.com/holomush/hookevents/internal/plugin/capability"
	"github.com/holomush/hookevents/internal/plugin/hostfunc"
	pluginlua "github.com/holomush/hookevents/internal/plugin/lua"
	"github.com/holomush/hookevents/internal/xdg"
	"github.com/holomush/hookevents/pkg/events"
	"github.com/holomush/hookevents/pkg/hook"
)

const serviceName = "hookevents"

// app is the wired registry, dispatcher, and plugin set a command runs
// against.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	registry   *hook.Registry
	dispatcher *events.Dispatcher
	manager    *plugin.Manager
}

// loadConfig resolves configuration and installs the default logger.
// Without --config the per-user XDG config file is used when present.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, *slog.Logger, error) {
	path := opts.configFile
	if path == "" {
		found, err := xdg.ConfigFile()
		if err != nil {
			return nil, nil, err //nolint:wrapcheck // carries path context
		}
		path = found
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // config errors carry their own code
	}
	// Validate already accepted the level.
	level, _ := logging.ParseLevel(cfg.LogLevel) //nolint:errcheck // validated above
	logger := logging.Setup(serviceName, version, cfg.LogFormat, level, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// newApp builds the registry and loads every plugin. metrics may be nil,
// in which case invocations are recorded on a throwaway registry.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.HookMetrics) (*app, error) {
	if metrics == nil {
		metrics = observability.NewHookMetrics(prometheus.NewRegistry())
	}

	registry := hook.NewRegistry(
		hook.WithDefaultPriority(cfg.DefaultPriority),
		hook.WithRecorder(metrics),
	)
	dispatcher, err := events.NewDispatcher(registry, events.WithPrefix(cfg.Prefix))
	if err != nil {
		return nil, err //nolint:wrapcheck // registry is never nil
	}

	luaHost := pluginlua.NewHost(
		pluginlua.WithEnforcer(capability.NewEnforcer()),
		pluginlua.WithHostFunctions(hostfunc.New(logger)),
	)
	manager, err := plugin.NewManager(cfg.PluginsDir, registry,
		plugin.WithLuaHost(luaHost),
		plugin.WithPrefix(cfg.Prefix))
	if err != nil {
		return nil, err //nolint:wrapcheck // registry is never nil
	}
	if err := manager.LoadAll(ctx); err != nil {
		return nil, err //nolint:wrapcheck // manager errors carry plugin context
	}

	logger.Debug("plugins loaded",
		"plugins_dir", cfg.PluginsDir,
		"plugins", manager.ListPlugins(),
		"prefix", cfg.Prefix)

	return &app{
		cfg:        cfg,
		logger:     logger,
		registry:   registry,
		dispatcher: dispatcher,
		manager:    manager,
	}, nil
}

// Close unloads every plugin.
func (a *app) Close(ctx context.Context) error {
	return a.manager.Close(ctx) //nolint:wrapcheck // joined plugin errors
}
