// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package events

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/holomush/hookevents/pkg/hook"
)

// Host is the named-hook callback registry a Dispatcher drives. It owns
// all listener state. *hook.Registry is the in-process implementation.
type Host interface {
	// AddFilter registers callback on hook.
	AddFilter(hook string, callback any, priority, acceptedArgs int) error

	// RemoveFilter removes callback from hook at priority and reports
	// whether it was registered.
	RemoveFilter(hook string, callback any, priority int) bool

	// DoAction runs every callback on hook and discards their results.
	DoAction(hook string, args ...any) error

	// ApplyFilters pipes value through every callback on hook.
	ApplyFilters(hook string, value any, args ...any) (any, error)

	// HasFilter reports whether hook has any callbacks.
	HasFilter(hook string) bool

	// FilterPriority returns the priority of callback on hook.
	FilterPriority(hook string, callback any) (int, bool)

	// CurrentFilter returns the innermost running hook.
	CurrentFilter() (string, bool)

	// DoingFilter reports whether hook is running.
	DoingFilter(hook string) bool

	// DefaultPriority is the priority used when none is given.
	DefaultPriority() int
}

var _ Host = (*hook.Registry)(nil)

// Dispatcher translates named events into host hook calls.
//
// Every event name is prefixed unless it already starts with the prefix.
// Listeners receive the event, the unprefixed event name, and the
// dispatcher itself. A Dispatcher holds no listener state and is safe to
// create and discard freely.
type Dispatcher struct {
	host   Host
	prefix string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPrefix sets the prefix applied to event names.
func WithPrefix(prefix string) Option {
	return func(d *Dispatcher) {
		d.prefix = prefix
	}
}

// NewDispatcher creates a dispatcher over host.
func NewDispatcher(host Host, opts ...Option) (*Dispatcher, error) {
	if host == nil {
		return nil, ErrNilHost
	}
	d := &Dispatcher{host: host}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Prefix returns the configured event name prefix.
func (d *Dispatcher) Prefix() string {
	return d.prefix
}

// DefaultPriority returns the host's default listener priority.
func (d *Dispatcher) DefaultPriority() int {
	return d.host.DefaultPriority()
}

// EventName returns the hook name used for event.
func (d *Dispatcher) EventName(event string) string {
	if strings.HasPrefix(event, d.prefix) {
		return event
	}
	return d.prefix + event
}

// Dispatch notifies every listener of event and returns the event they
// received. A nil event, including a typed nil pointer, is replaced by
// NewEvent().
func (d *Dispatcher) Dispatch(name string, event Event) (Event, error) {
	if isNilEvent(event) {
		event = NewEvent()
	}
	if err := d.host.DoAction(d.EventName(name), event, name, d); err != nil {
		return event, err //nolint:wrapcheck // host errors propagate unmodified
	}
	return event, nil
}

// Filter passes value through every listener of event and returns the
// final value. Listeners receive the value, the event, the unprefixed
// name, and the dispatcher.
//
// When value is a non-nil *GenericEvent it is also the event, so listeners
// get the same instance in both positions, never its subject. A nil event,
// including a typed nil pointer, is otherwise replaced by NewEvent().
func (d *Dispatcher) Filter(name string, value any, event Event) (any, error) {
	if ge, ok := value.(*GenericEvent); ok && ge != nil {
		//nolint:wrapcheck // host errors propagate unmodified
		return d.host.ApplyFilters(d.EventName(name), ge, ge, name, d)
	}
	if isNilEvent(event) {
		event = NewEvent()
	}
	//nolint:wrapcheck // host errors propagate unmodified
	return d.host.ApplyFilters(d.EventName(name), value, event, name, d)
}

// AddListener registers listener for event. listener must be a func or a
// hook.Method; acceptedArgs must not be negative.
func (d *Dispatcher) AddListener(name string, listener any, priority, acceptedArgs int) error {
	if !hook.IsCallable(listener) {
		return ErrInvalidListener(name, listener)
	}
	if acceptedArgs < 0 {
		return ErrInvalidArgument("accepted_args", acceptedArgs)
	}
	//nolint:wrapcheck // host errors propagate unmodified
	return d.host.AddFilter(d.EventName(name), listener, priority, acceptedArgs)
}

// RemoveListener removes listener registered for event at priority and
// reports whether the host removed it.
func (d *Dispatcher) RemoveListener(name string, listener any, priority int) (bool, error) {
	if !hook.IsCallable(listener) {
		return false, ErrInvalidListener(name, listener)
	}
	return d.host.RemoveFilter(d.EventName(name), listener, priority), nil
}

// AddSubscriber registers a listener for every event sub declares. Each
// listener is the bound method hook.Method{Receiver: sub, Name: method}.
// Event names are prefixed like any other listener's.
//
// Registration is all or nothing: when one entry fails, the entries
// already registered are removed before the error is returned.
func (d *Dispatcher) AddSubscriber(sub Subscriber) error {
	events := sub.SubscribedEvents()
	names := sortedKeys(events)
	for i, name := range names {
		method, priority, acceptedArgs := Normalize(events[name], d.DefaultPriority())
		if err := d.AddListener(name, hook.Method{Receiver: sub, Name: method}, priority, acceptedArgs); err != nil {
			for _, added := range names[:i] {
				m, p, _ := Normalize(events[added], d.DefaultPriority())
				d.host.RemoveFilter(d.EventName(added), hook.Method{Receiver: sub, Name: m}, p)
			}
			return err
		}
		slog.Debug("subscriber listener added",
			"event", d.EventName(name),
			"subscriber", fmt.Sprintf("%T", sub),
			"method", method,
			"priority", priority,
			"accepted_args", acceptedArgs)
	}
	return nil
}

// isNilEvent reports whether event is nil or a nil pointer.
func isNilEvent(event Event) bool {
	if event == nil {
		return true
	}
	v := reflect.ValueOf(event)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// RemoveSubscriber removes every listener AddSubscriber registered for sub.
func (d *Dispatcher) RemoveSubscriber(sub Subscriber) error {
	events := sub.SubscribedEvents()
	for _, name := range sortedKeys(events) {
		method, priority, _ := Normalize(events[name], d.DefaultPriority())
		if _, err := d.RemoveListener(name, hook.Method{Receiver: sub, Name: method}, priority); err != nil {
			return err
		}
	}
	return nil
}

// HasListeners reports whether event has any listeners.
func (d *Dispatcher) HasListeners(name string) bool {
	return d.host.HasFilter(d.EventName(name))
}

// ListenerPriority returns the priority listener is registered with for
// event, or false when it is not listening.
func (d *Dispatcher) ListenerPriority(name string, listener any) (int, bool) {
	return d.host.FilterPriority(d.EventName(name), listener)
}

// CurrentEvent returns the hook name the host reports as running. The
// name is returned as the host knows it, prefix included.
func (d *Dispatcher) CurrentEvent() (string, bool) {
	return d.host.CurrentFilter()
}

// DoingEvent reports whether event is running.
func (d *Dispatcher) DoingEvent(name string) bool {
	return d.host.DoingFilter(d.EventName(name))
}
