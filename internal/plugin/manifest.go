// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"path/filepath"
	"regexp"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/gobwas/glob"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/holomush/hookevents/pkg/events"
)

// CodeInvalidManifest is the error code for a plugin.yaml that fails to
// parse or validate.
const CodeInvalidManifest = "INVALID_MANIFEST"

// ManifestFile is the manifest file name inside a plugin directory.
const ManifestFile = "plugin.yaml"

// Type identifies the plugin runtime.
type Type string

// Plugin types supported by the system.
const (
	TypeLua Type = "lua"
)

// Manifest represents a plugin.yaml file.
//
// Events maps event names to subscriptions in any of the shapes
// events.ParseSubscription accepts. A Lua plugin that leaves Events empty
// declares them from its subscribed_events() function instead.
type Manifest struct {
	Name        string         `yaml:"name" jsonschema:"pattern=^[a-z]([a-z0-9-]*[a-z0-9])?$,maxLength=64"`
	Version     string         `yaml:"version" jsonschema:"description=Semantic version of the plugin"`
	Description string         `yaml:"description,omitempty"`
	Type        Type           `yaml:"type" jsonschema:"enum=lua"`
	Prefix      string         `yaml:"prefix,omitempty" jsonschema:"description=Event name prefix for this plugin's listeners"`
	Events      map[string]any `yaml:"events,omitempty"`
	Emits       []string       `yaml:"emits,omitempty" jsonschema:"description=Glob patterns of events the plugin may dispatch"`
	LuaPlugin   *LuaConfig     `yaml:"lua-plugin,omitempty"`
}

// LuaConfig holds Lua-specific configuration.
type LuaConfig struct {
	Entry string `yaml:"entry" jsonschema:"minLength=1"`
}

// maxNameLength is the maximum allowed length for plugin names.
const maxNameLength = 64

// namePattern validates plugin names: must start with lowercase letter,
// followed by lowercase letters, digits, or hyphens.
// Cannot end with a hyphen. Single character names are allowed.
var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

func invalid(field string) oops.OopsErrorBuilder {
	return oops.Code(CodeInvalidManifest).With("field", field)
}

// ParseManifest parses and validates a plugin.yaml file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, invalid("").Errorf("manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, invalid("").Wrapf(err, "invalid YAML")
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if m.Name == "" || !namePattern.MatchString(m.Name) {
		return invalid("name").Errorf("name %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", m.Name)
	}
	if len(m.Name) > maxNameLength {
		return invalid("name").Errorf("name must be %d characters or less, got %d", maxNameLength, len(m.Name))
	}

	if m.Version == "" {
		return invalid("version").Errorf("version is required")
	}
	if _, err := semver.StrictNewVersion(m.Version); err != nil {
		return invalid("version").With("version", m.Version).Wrapf(err, "version must be semantic (MAJOR.MINOR.PATCH)")
	}

	switch m.Type {
	case TypeLua:
		if m.LuaPlugin == nil {
			return invalid("lua-plugin").Errorf("lua-plugin is required when type is lua")
		}
		if m.LuaPlugin.Entry == "" {
			return invalid("lua-plugin.entry").Errorf("lua-plugin.entry is required")
		}
		if !filepath.IsLocal(m.LuaPlugin.Entry) {
			return invalid("lua-plugin.entry").
				With("entry", m.LuaPlugin.Entry).
				Errorf("lua-plugin.entry must be a relative path inside the plugin directory")
		}
	default:
		return invalid("type").Errorf("type must be 'lua', got %q", m.Type)
	}

	if _, err := m.Subscriptions(); err != nil {
		return err
	}

	for i, pattern := range m.Emits {
		if pattern == "" {
			return invalid("emits").With("index", i).Errorf("emits[%d]: empty pattern", i)
		}
		if _, err := glob.Compile(pattern, '.'); err != nil {
			return invalid("emits").With("index", i).With("pattern", pattern).Wrapf(err, "emits[%d]: invalid pattern", i)
		}
	}

	return nil
}

// Subscriptions parses Events. It returns nil when the manifest declares
// no events.
func (m *Manifest) Subscriptions() (map[string]events.Subscription, error) {
	if len(m.Events) == 0 {
		return nil, nil
	}
	for name := range m.Events {
		if name == "" {
			return nil, invalid("events").Errorf("event name cannot be empty")
		}
	}
	subs, err := events.ParseSubscriptions(m.Events)
	if err != nil {
		return nil, invalid("events").Wrap(err)
	}
	return subs, nil
}

// EventNames returns the sorted names of the events the manifest declares.
func (m *Manifest) EventNames() []string {
	names := make([]string, 0, len(m.Events))
	for name := range m.Events {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
