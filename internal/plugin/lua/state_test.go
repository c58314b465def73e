// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	pluginlua "github.com/holomush/hookevents/internal/plugin/lua"
)

func newState(t *testing.T) *lua.LState {
	t.Helper()
	L, err := pluginlua.NewStateFactory().NewState(context.Background())
	require.NoError(t, err)
	t.Cleanup(L.Close)
	return L
}

func TestStateFactory_NewState_LoadsSafeLibraries(t *testing.T) {
	L := newState(t)
	for _, lib := range []string{"table", "string", "math"} {
		assert.NotEqual(t, lua.LTNil, L.GetGlobal(lib).Type(), "library %q not loaded", lib)
	}
}

func TestStateFactory_NewState_BlocksUnsafeLibraries(t *testing.T) {
	L := newState(t)
	for _, lib := range []string{"os", "io", "debug", "package"} {
		assert.Equal(t, lua.LTNil, L.GetGlobal(lib).Type(), "unsafe library %q loaded", lib)
	}
}

func TestStateFactory_NewState_BlocksFilesystemFunctions(t *testing.T) {
	L := newState(t)
	for _, fn := range []string{"dofile", "loadfile", "loadstring", "load"} {
		assert.Equal(t, lua.LTNil, L.GetGlobal(fn).Type(), "unsafe function %q available", fn)
	}
}

func TestStateFactory_NewState_CanUseLibraries(t *testing.T) {
	L := newState(t)
	require.NoError(t, L.DoString(`
		local parts = {}
		for word in string.gmatch("order placed", "%a+") do
			table.insert(parts, string.upper(word))
		end
		result = table.concat(parts, ".") .. ":" .. math.max(3, 7)
	`))
	assert.Equal(t, "ORDER.PLACED:7", L.GetGlobal("result").String())
}

func TestStateFactory_NewState_StatesAreIsolated(t *testing.T) {
	factory := pluginlua.NewStateFactory()

	L1, err := factory.NewState(context.Background())
	require.NoError(t, err)
	defer L1.Close()
	L2, err := factory.NewState(context.Background())
	require.NoError(t, err)
	defer L2.Close()

	require.NoError(t, L1.DoString(`shared = "L1"`))
	assert.Equal(t, lua.LTNil, L2.GetGlobal("shared").Type())
}

func TestStateFactory_NewState_CanceledContextStopsCalls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	L, err := pluginlua.NewStateFactory().NewState(ctx)
	require.NoError(t, err)
	defer L.Close()

	cancel()
	assert.Error(t, L.DoString(`while true do end`))
}
