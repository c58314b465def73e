// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package hook

import (
	"fmt"
	"reflect"

	"github.com/samber/oops"
)

// Error codes for registry and callback failures.
const (
	CodeNotCallable       = "NOT_CALLABLE"
	CodeCallbackSignature = "CALLBACK_SIGNATURE"
	CodeCallbackFailed    = "CALLBACK_FAILED"
	CodeInvalidPattern    = "INVALID_PATTERN"
)

// ErrNotCallable creates an error for a value that cannot be invoked.
func ErrNotCallable(cb any) error {
	return oops.Code(CodeNotCallable).
		With("callback_type", fmt.Sprintf("%T", cb)).
		Errorf("value of type %T is not callable", cb)
}

// ErrCallbackSignature creates an error for arguments that do not fit a
// callback's parameters.
func ErrCallbackSignature(ft reflect.Type, reason string) error {
	return oops.Code(CodeCallbackSignature).
		With("signature", ft.String()).
		Errorf("cannot call %s: %s", ft, reason)
}

// ErrInvalidPattern creates an error for a hook-name pattern that does not compile.
func ErrInvalidPattern(pattern string, cause error) error {
	return oops.Code(CodeInvalidPattern).
		With("pattern", pattern).
		Wrapf(cause, "invalid hook pattern %q", pattern)
}
