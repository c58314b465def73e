// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package plugin discovers subscriber plugins and wires them into event
// dispatchers.
//
// A plugin is a directory holding a plugin.yaml manifest and the runtime
// files it names. Each loaded plugin yields one events.Subscriber, which
// the Manager registers through a dispatcher scoped to the plugin's prefix.
package plugin

import (
	"context"

	"github.com/holomush/hookevents/pkg/events"
)

// Host manages a specific plugin runtime type.
type Host interface {
	// Load initializes a plugin from its manifest and returns the
	// subscriber that represents it.
	Load(ctx context.Context, manifest *Manifest, dir string) (events.Subscriber, error)

	// Unload tears down a plugin.
	Unload(ctx context.Context, name string) error

	// Plugins returns names of all loaded plugins.
	Plugins() []string

	// Close shuts down the host and all plugins.
	Close(ctx context.Context) error
}
