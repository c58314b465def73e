// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package hostfunc provides host functions to Lua plugins.
//
// Functions are installed as the global table "hookevents" in every state
// a plugin runs in.
package hostfunc

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
	lua "github.com/yuin/gopher-lua"
)

// GlobalName is the Lua global holding the host functions.
const GlobalName = "hookevents"

// Functions provides host functions to Lua plugins.
type Functions struct {
	logger *slog.Logger
}

// New creates host functions that log through logger. A nil logger uses
// slog.Default at call time.
func New(logger *slog.Logger) *Functions {
	return &Functions{logger: logger}
}

// Register adds host functions to a Lua state.
func (f *Functions) Register(ls *lua.LState, pluginName string) {
	mod := ls.NewTable()
	ls.SetField(mod, "log", ls.NewFunction(f.logFn(pluginName)))
	ls.SetField(mod, "new_request_id", ls.NewFunction(newRequestID))
	ls.SetField(mod, "plugin", lua.LString(pluginName))
	ls.SetGlobal(GlobalName, mod)
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func (f *Functions) logFn(pluginName string) lua.LGFunction {
	return func(L *lua.LState) int {
		levelName := L.CheckString(1)
		message := L.CheckString(2)

		level, ok := levels[levelName]
		if !ok {
			L.ArgError(1, "invalid log level "+levelName+" (use debug, info, warn, or error)")
			return 0
		}

		logger := f.logger
		if logger == nil {
			logger = slog.Default()
		}
		ctx := L.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		logger.Log(ctx, level, message, "plugin", pluginName)
		return 0
	}
}

func newRequestID(L *lua.LState) int {
	L.Push(lua.LString(ulid.Make().String()))
	return 1
}
