// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"math"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/hookevents/pkg/events"
)

// maxTableDepth bounds nested table conversion; deeper tables are
// almost certainly cyclic.
const maxTableDepth = 32

// toLua converts a Go value for a Lua call. Events and dispatchers become
// userdata with methods; values Lua cannot represent travel as opaque
// userdata and convert back to the same Go value.
func (b *binding) toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return val
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int8:
		return lua.LNumber(val)
	case int16:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case uint:
		return lua.LNumber(val)
	case uint8:
		return lua.LNumber(val)
	case uint16:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case *events.Dispatcher:
		return b.newDispatcher(L, val)
	case events.Event:
		return newEvent(L, val)
	case []string:
		t := L.CreateTable(len(val), 0)
		for _, s := range val {
			t.Append(lua.LString(s))
		}
		return t
	case []any:
		t := L.CreateTable(len(val), 0)
		for _, item := range val {
			t.Append(b.toLua(L, item))
		}
		return t
	case map[string]any:
		t := L.CreateTable(0, len(val))
		for k, item := range val {
			t.RawSetString(k, b.toLua(L, item))
		}
		return t
	default:
		ud := L.NewUserData()
		ud.Value = v
		return ud
	}
}

// fromLua converts a Lua value back to Go. Integral numbers become int,
// sequences become []any, other tables map[string]any, and userdata
// yields the Go value it wraps.
func fromLua(v lua.LValue) (any, error) {
	return fromLuaDepth(v, 0)
}

func fromLuaDepth(v lua.LValue, depth int) (any, error) {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(val), nil
	case lua.LString:
		return string(val), nil
	case lua.LNumber:
		f := float64(val)
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return int(f), nil
		}
		return f, nil
	case *lua.LTable:
		if depth >= maxTableDepth {
			return nil, oops.Code(CodeConversion).
				With("depth", depth).
				Errorf("table nesting exceeds %d levels", maxTableDepth)
		}
		return tableToGo(val, depth+1)
	case *lua.LUserData:
		if ref, ok := val.Value.(*dispatcherRef); ok {
			return ref.dispatcher, nil
		}
		return val.Value, nil
	default:
		return nil, oops.Code(CodeConversion).
			With("lua_type", v.Type().String()).
			Errorf("cannot convert Lua %s to a Go value", v.Type())
	}
}

func tableToGo(t *lua.LTable, depth int) (any, error) {
	n := t.MaxN()
	count := 0
	t.ForEach(func(lua.LValue, lua.LValue) { count++ })

	if n > 0 && count == n {
		out := make([]any, n)
		for i := 1; i <= n; i++ {
			item, err := fromLuaDepth(t.RawGetInt(i), depth)
			if err != nil {
				return nil, err
			}
			out[i-1] = item
		}
		return out, nil
	}

	out := make(map[string]any, count)
	var convErr error
	t.ForEach(func(k, v lua.LValue) {
		if convErr != nil {
			return
		}
		item, err := fromLuaDepth(v, depth)
		if err != nil {
			convErr = err
			return
		}
		out[k.String()] = item
	})
	if convErr != nil {
		return nil, convErr
	}
	return out, nil
}
