// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package lua runs event subscriber plugins written in Lua.
//
// Every listener call runs in a fresh sandboxed state: the plugin source is
// loaded, the listener function is called, and the state is discarded. No
// Lua globals survive between calls.
package lua

import (
	"context"
	"time"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
)

// DefaultCallTimeout bounds a single listener call.
const DefaultCallTimeout = 5 * time.Second

// safeLibrary represents a Lua library that is safe to load in sandboxed state.
type safeLibrary struct {
	name string
	fn   lua.LGFunction
}

// defaultSafeLibraries returns the list of libraries safe to load.
// Safe: base, table, string, math.
// Blocked: os, io, debug, package.
func defaultSafeLibraries() []safeLibrary {
	return []safeLibrary{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
}

// StateFactory creates sandboxed Lua states with only safe libraries.
type StateFactory struct {
	// libraries allows overriding the default safe libraries for testing.
	libraries   []safeLibrary
	callTimeout time.Duration
}

// FactoryOption configures a StateFactory.
type FactoryOption func(*StateFactory)

// WithCallTimeout bounds each listener call. Zero disables the limit.
func WithCallTimeout(d time.Duration) FactoryOption {
	return func(f *StateFactory) {
		f.callTimeout = d
	}
}

// NewStateFactory creates a new state factory.
func NewStateFactory(opts ...FactoryOption) *StateFactory {
	f := &StateFactory{
		libraries:   defaultSafeLibraries(),
		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// unsafeBaseFunctions lists base library functions that must be blocked.
// Each one can read files or compile code outside the plugin source.
var unsafeBaseFunctions = []string{"dofile", "loadfile", "loadstring", "load"}

// NewState creates a fresh Lua state with only safe libraries loaded.
// Calls made on the state stop with an error once ctx is done.
func (f *StateFactory) NewState(ctx context.Context) (*lua.LState, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})

	for _, lib := range f.libraries {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, oops.In("lua").With("library", lib.name).Wrapf(err, "failed to open library %s", lib.name)
		}
	}

	for _, fn := range unsafeBaseFunctions {
		L.SetGlobal(fn, lua.LNil)
	}

	if ctx != nil {
		L.SetContext(ctx)
	}
	return L, nil
}

// callContext returns the context for one listener call.
func (f *StateFactory) callContext() (context.Context, context.CancelFunc) {
	if f.callTimeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), f.callTimeout)
}
