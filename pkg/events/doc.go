// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package events layers an event-object API over a named-hook callback
// registry.
//
// A Dispatcher prefixes event names, registers listeners and subscribers
// with its Host, and runs events in one of two modes:
//   - Dispatch notifies listeners for their side effects and returns the event
//   - Filter pipes a value through listeners and returns the final value
//
// Listeners are plain funcs or hook.Method values. They are called with up
// to their accepted argument count of the positional arguments:
//
//	Dispatch: (event, name, dispatcher)
//	Filter:   (value, event, name, dispatcher)
//
// Example:
//
//	registry := hook.NewRegistry()
//	d, _ := events.NewDispatcher(registry, events.WithPrefix("shop."))
//
//	_ = d.AddListener("order.placed", func(e *events.GenericEvent) {
//		e.SetArgument("seen", true)
//	}, hook.DefaultPriority, 1)
//
//	event := events.NewGenericEvent(order, map[string]any{"total": 42})
//	_, err := d.Dispatch("order.placed", event)
//
// Dispatch is synchronous and re-entrant: listeners may dispatch further
// events and query CurrentEvent or DoingEvent while they run.
package events
