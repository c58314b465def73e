// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package events

// Event is the state passed to every listener of a dispatched event.
type Event interface {
	// StopPropagation marks the event as handled. Every listener still
	// runs; listeners check IsPropagationStopped to skip their own work.
	StopPropagation()

	// IsPropagationStopped reports whether StopPropagation was called.
	IsPropagationStopped() bool
}

// BaseEvent is the default Event. Embed it to build custom events.
type BaseEvent struct {
	propagationStopped bool
}

// NewEvent returns a fresh event with propagation running.
func NewEvent() *BaseEvent {
	return &BaseEvent{}
}

// StopPropagation implements Event.
func (e *BaseEvent) StopPropagation() {
	e.propagationStopped = true
}

// IsPropagationStopped implements Event.
func (e *BaseEvent) IsPropagationStopped() bool {
	return e.propagationStopped
}
