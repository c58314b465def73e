// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package capability decides which events a plugin may dispatch.
//
// A plugin's manifest lists glob patterns under emits. Pattern matching uses
// gobwas/glob with '.' as the segment separator:
//   - '*' matches a single segment (does not cross '.')
//   - '**' matches zero or more segments (crosses '.')
//
// Examples:
//   - "order.*" matches "order.placed" but NOT "order.line.added"
//   - "order.**" matches both "order.placed" AND "order.line.added"
//   - "**" matches any event
package capability

import (
	"sort"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// CodeDenied is the error code for a dispatch the plugin was not granted.
const CodeDenied = "DISPATCH_DENIED"

// compiledGrant holds a pattern and its compiled glob.
type compiledGrant struct {
	pattern string
	glob    glob.Glob
}

// Enforcer checks plugin dispatch grants at runtime.
//
// Enforcer is safe for concurrent use. The zero value is ready to use.
type Enforcer struct {
	grants map[string][]compiledGrant // plugin name -> compiled grants
	mu     sync.RWMutex
}

// NewEnforcer creates an enforcer with no grants.
func NewEnforcer() *Enforcer {
	return &Enforcer{
		grants: make(map[string][]compiledGrant),
	}
}

// SetGrants replaces the event patterns plugin may dispatch. Either every
// pattern compiles and the grants are replaced, or nothing changes.
func (e *Enforcer) SetGrants(plugin string, patterns []string) error {
	if plugin == "" {
		return oops.Code("INVALID_GRANT").Errorf("plugin name cannot be empty")
	}

	compiled := make([]compiledGrant, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" {
			return oops.Code("INVALID_GRANT").
				With("plugin", plugin).
				With("index", i).
				Errorf("grant %d: empty pattern", i)
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return oops.Code("INVALID_GRANT").
				With("plugin", plugin).
				With("pattern", pattern).
				Wrapf(err, "grant %d", i)
		}
		compiled[i] = compiledGrant{pattern: pattern, glob: g}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.grants == nil {
		e.grants = make(map[string][]compiledGrant)
	}
	e.grants[plugin] = compiled
	return nil
}

// RemoveGrants forgets plugin. Unknown plugins are ignored.
func (e *Enforcer) RemoveGrants(plugin string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.grants, plugin)
}

// Grants returns a copy of the patterns granted to plugin, or nil when
// the plugin is unknown.
func (e *Enforcer) Grants(plugin string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	grants, ok := e.grants[plugin]
	if !ok {
		return nil
	}
	patterns := make([]string, len(grants))
	for i, g := range grants {
		patterns[i] = g.pattern
	}
	return patterns
}

// Plugins returns the sorted names of plugins with grants.
func (e *Enforcer) Plugins() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.grants))
	for name := range e.grants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check reports whether plugin may dispatch event. Unknown plugins and
// empty event names are denied.
func (e *Enforcer) Check(plugin, event string) bool {
	if event == "" {
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, grant := range e.grants[plugin] {
		if grant.glob.Match(event) {
			return true
		}
	}
	return false
}

// Authorize returns a DISPATCH_DENIED error unless plugin may dispatch event.
func (e *Enforcer) Authorize(plugin, event string) error {
	if e.Check(plugin, event) {
		return nil
	}
	return oops.Code(CodeDenied).
		With("plugin", plugin).
		With("event", event).
		Hint("add a matching pattern to the plugin manifest's emits list").
		Errorf("plugin %q may not dispatch %q", plugin, event)
}
