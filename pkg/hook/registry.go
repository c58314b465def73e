// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package hook provides an in-process named-hook callback registry.
//
// Callbacks register against a hook name with a priority and an accepted
// argument count. Invoking a hook runs its callbacks in ascending priority
// order, first-registered first within the same priority. Actions discard
// callback results; filters pipe a value through each callback in turn.
//
// Hook-name patterns use gobwas/glob with '.' as the segment separator:
//   - '*' matches a single segment (does not cross '.')
//   - '**' matches zero or more segments
package hook

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// DefaultPriority is the priority used when a caller does not choose one.
const DefaultPriority = 10

// Kind distinguishes action invocations from filter invocations.
type Kind string

// Invocation kinds reported to a Recorder.
const (
	KindAction Kind = "action"
	KindFilter Kind = "filter"
)

// Recorder observes hook invocations. Implementations must not call back
// into the registry.
type Recorder interface {
	RecordHook(kind Kind, hook string, callbacks int, elapsed time.Duration, err error)
}

// callback is one registration on a hook.
type callback struct {
	id           string
	fn           any
	priority     int
	acceptedArgs int
}

// Registry stores callbacks per hook name and tracks which hooks are
// currently running.
//
// Registry is safe for concurrent registration, but the running-hook
// stack assumes hooks are invoked from a single goroutine, matching the
// synchronous re-entrant model of its callers.
type Registry struct {
	hooks           map[string][]callback // ordered by priority, then insertion
	running         []string
	defaultPriority int
	recorder        Recorder
	mu              sync.RWMutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithRecorder reports every hook invocation to rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Registry) {
		r.recorder = rec
	}
}

// WithDefaultPriority overrides DefaultPriority for this registry.
func WithDefaultPriority(priority int) Option {
	return func(r *Registry) {
		r.defaultPriority = priority
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		hooks:           make(map[string][]callback),
		defaultPriority: DefaultPriority,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultPriority returns the priority callers should use when none is given.
func (r *Registry) DefaultPriority() int {
	return r.defaultPriority
}

// AddFilter registers cb on hook. Registering the same callback again at
// the same priority replaces the earlier registration in place. Sameness
// follows ID, so method values of different receivers never collide.
func (r *Registry) AddFilter(hook string, cb any, priority, acceptedArgs int) error {
	id, err := ID(cb)
	if err != nil {
		return err
	}
	entry := callback{id: id, fn: cb, priority: priority, acceptedArgs: acceptedArgs}

	r.mu.Lock()
	defer r.mu.Unlock()

	cbs := r.hooks[hook]
	for i := range cbs {
		if cbs[i].id == id && cbs[i].priority == priority {
			cbs[i] = entry
			return nil
		}
	}

	// Insert after every callback with priority <= p to keep FIFO ties.
	pos := sort.Search(len(cbs), func(i int) bool { return cbs[i].priority > priority })
	r.hooks[hook] = slices.Insert(cbs, pos, entry)
	return nil
}

// AddAction is AddFilter under its action name.
func (r *Registry) AddAction(hook string, cb any, priority, acceptedArgs int) error {
	return r.AddFilter(hook, cb, priority, acceptedArgs)
}

// RemoveFilter removes cb from hook at priority. It reports whether a
// registration was removed.
func (r *Registry) RemoveFilter(hook string, cb any, priority int) bool {
	id, err := ID(cb)
	if err != nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cbs := r.hooks[hook]
	for i := range cbs {
		if cbs[i].id == id && cbs[i].priority == priority {
			cbs = slices.Delete(cbs, i, i+1)
			if len(cbs) == 0 {
				delete(r.hooks, hook)
			} else {
				r.hooks[hook] = cbs
			}
			return true
		}
	}
	return false
}

// HasFilter reports whether any callback is registered on hook.
func (r *Registry) HasFilter(hook string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks[hook]) > 0
}

// FilterPriority returns the priority cb is registered with on hook.
func (r *Registry) FilterPriority(hook string, cb any) (int, bool) {
	id, err := ID(cb)
	if err != nil {
		return 0, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.hooks[hook] {
		if c.id == id {
			return c.priority, true
		}
	}
	return 0, false
}

// Count returns the number of callbacks registered on hook.
func (r *Registry) Count(hook string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks[hook])
}

// HookNames returns the sorted names of hooks with callbacks that match
// pattern. An empty pattern matches every hook.
func (r *Registry) HookNames(pattern string) ([]string, error) {
	var g glob.Glob
	if pattern != "" {
		compiled, err := glob.Compile(pattern, '.')
		if err != nil {
			return nil, ErrInvalidPattern(pattern, err)
		}
		g = compiled
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.hooks))
	for name := range r.hooks {
		if g == nil || g.Match(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// CurrentFilter returns the innermost running hook.
func (r *Registry) CurrentFilter() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.running) == 0 {
		return "", false
	}
	return r.running[len(r.running)-1], true
}

// DoingFilter reports whether hook is running at any nesting depth. An
// empty hook name reports whether any hook is running.
func (r *Registry) DoingFilter(hook string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if hook == "" {
		return len(r.running) > 0
	}
	return slices.Contains(r.running, hook)
}

// DoAction runs every callback on hook for its side effects. The first
// callback error stops the run and is returned.
func (r *Registry) DoAction(hook string, args ...any) error {
	_, err := r.run(KindAction, hook, nil, args)
	return err
}

// ApplyFilters passes value through every callback on hook, each
// receiving the previous result. Callbacks that return nothing leave the
// value unchanged.
func (r *Registry) ApplyFilters(hook string, value any, args ...any) (any, error) {
	return r.run(KindFilter, hook, value, args)
}

func (r *Registry) run(kind Kind, hook string, value any, args []any) (result any, err error) {
	r.mu.Lock()
	cbs := slices.Clone(r.hooks[hook])
	r.running = append(r.running, hook)
	r.mu.Unlock()

	start := time.Now()
	defer func() {
		r.mu.Lock()
		r.running = r.running[:len(r.running)-1]
		r.mu.Unlock()

		if r.recorder != nil {
			r.recorder.RecordHook(kind, hook, len(cbs), time.Since(start), err)
		}
	}()

	for _, c := range cbs {
		full := args
		if kind == KindFilter {
			full = append([]any{value}, args...)
		}
		n := min(max(c.acceptedArgs, 0), len(full))

		out, ok, callErr := Invoke(c.fn, full[:n])
		if callErr != nil {
			return value, oops.With("hook", hook).With("priority", c.priority).Wrap(callErr)
		}
		if kind == KindFilter && ok {
			value = out
		}
	}
	return value, nil
}
