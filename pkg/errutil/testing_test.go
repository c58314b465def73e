// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"testing"

	"github.com/samber/oops"

	"github.com/holomush/hookevents/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("ARGUMENT_NOT_FOUND").Errorf("argument missing")
	errutil.AssertErrorCode(t, err, "ARGUMENT_NOT_FOUND")
}

func TestAssertErrorCode_WrappedKeepsCode(t *testing.T) {
	inner := oops.Code("CALLBACK_SIGNATURE").Errorf("cannot call")
	err := oops.With("hook", "event").Wrap(inner)
	errutil.AssertErrorCode(t, err, "CALLBACK_SIGNATURE")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("key", "name").Errorf("argument missing")
	errutil.AssertErrorContext(t, err, "key", "name")
}
