// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package events

import (
	"fmt"

	"github.com/samber/oops"
)

// Error codes returned by this package.
const (
	CodeInvalidListener  = "INVALID_LISTENER"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeArgumentNotFound = "ARGUMENT_NOT_FOUND"
	CodeNilHost          = "NIL_HOST"
)

// ErrInvalidListener creates an error for a listener that cannot be invoked.
func ErrInvalidListener(event string, listener any) error {
	return oops.Code(CodeInvalidListener).
		With("event", event).
		With("listener_type", fmt.Sprintf("%T", listener)).
		Errorf("listener for event %q is not callable", event)
}

// ErrInvalidArgument creates an error for a priority, accepted argument
// count, or subscription value that is not usable.
func ErrInvalidArgument(field string, value any) error {
	return oops.Code(CodeInvalidArgument).
		With("field", field).
		With("value", value).
		Errorf("invalid %s: %v", field, value)
}

// ErrArgumentNotFound creates an error for a missing GenericEvent argument.
func ErrArgumentNotFound(key string) error {
	return oops.Code(CodeArgumentNotFound).
		With("key", key).
		Errorf("argument %q not found", key)
}

// ErrNilHost is returned when a Dispatcher is created without a Host.
var ErrNilHost = oops.Code(CodeNilHost).Errorf("host cannot be nil")
