// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"sync/atomic"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/hookevents/internal/plugin/capability"
	"github.com/holomush/hookevents/pkg/events"
)

// Metatable names registered in each state.
const (
	eventTypeName      = "hookevents.event"
	dispatcherTypeName = "hookevents.dispatcher"
	errorTypeName      = "hookevents.error"
)

// DefaultMaxDispatchDepth bounds nested dispatches started from plugin code.
const DefaultMaxDispatchDepth = 16

// binding is the plugin identity Lua values act on behalf of.
type binding struct {
	plugin   string
	enforcer *capability.Enforcer
	depth    *dispatchDepth
}

// dispatchDepth counts dispatches from plugin code that are still running.
// It is shared by every plugin of a host so cycles across plugins count
// too. Dispatch is synchronous, so the count is the nesting depth.
type dispatchDepth struct {
	current atomic.Int32
	limit   int32
}

func (d *dispatchDepth) enter() bool {
	if d == nil {
		return true
	}
	if d.current.Add(1) > d.limit {
		d.current.Add(-1)
		return false
	}
	return true
}

func (d *dispatchDepth) leave() {
	if d != nil {
		d.current.Add(-1)
	}
}

// dispatcherRef is the userdata payload for a dispatcher handed to Lua.
type dispatcherRef struct {
	dispatcher *events.Dispatcher
	binding    *binding
}

// registerTypes installs the event, dispatcher, and error metatables.
func registerTypes(L *lua.LState) {
	em := L.NewTypeMetatable(eventTypeName)
	L.SetField(em, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"get":       eventGet,
		"set":       eventSet,
		"has":       eventHas,
		"remove":    eventRemove,
		"keys":      eventKeys,
		"arguments": eventArguments,
		"subject":   eventSubject,
		"stop":      eventStop,
		"stopped":   eventStopped,
	}))

	dm := L.NewTypeMetatable(dispatcherTypeName)
	L.SetField(dm, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"current":       dispatcherCurrent,
		"doing":         dispatcherDoing,
		"has_listeners": dispatcherHasListeners,
		"dispatch":      dispatcherDispatch,
		"filter":        dispatcherFilter,
	}))

	xm := L.NewTypeMetatable(errorTypeName)
	L.SetField(xm, "__tostring", L.NewFunction(func(L *lua.LState) int {
		ud := L.CheckUserData(1)
		if err, ok := ud.Value.(error); ok {
			L.Push(lua.LString(err.Error()))
			return 1
		}
		L.Push(lua.LString("error"))
		return 1
	}))
}

// raise aborts the running Lua call with err. The Go error survives the
// trip through Lua so its code reaches the caller.
func raise(L *lua.LState, err error) {
	ud := L.NewUserData()
	ud.Value = err
	L.SetMetatable(ud, L.GetTypeMetatable(errorTypeName))
	L.Error(ud, 1)
}

func newEvent(L *lua.LState, ev events.Event) lua.LValue {
	ud := L.NewUserData()
	ud.Value = ev
	L.SetMetatable(ud, L.GetTypeMetatable(eventTypeName))
	return ud
}

func checkEvent(L *lua.LState) events.Event {
	ud := L.CheckUserData(1)
	ev, ok := ud.Value.(events.Event)
	if !ok {
		L.ArgError(1, "event expected")
		return nil
	}
	return ev
}

func checkArguments(L *lua.LState) *events.GenericEvent {
	ev := checkEvent(L)
	ge, ok := ev.(*events.GenericEvent)
	if !ok {
		L.ArgError(1, "event has no arguments")
		return nil
	}
	return ge
}

// currentBinding recovers the binding stored in the registry by CallMethod.
func currentBinding(L *lua.LState) *binding {
	ud, ok := L.GetField(L.Get(lua.RegistryIndex), bindingKey).(*lua.LUserData)
	if !ok {
		return &binding{}
	}
	b, ok := ud.Value.(*binding)
	if !ok {
		return &binding{}
	}
	return b
}

const bindingKey = "hookevents.binding"

func setBinding(L *lua.LState, b *binding) {
	ud := L.NewUserData()
	ud.Value = b
	L.SetField(L.Get(lua.RegistryIndex), bindingKey, ud)
}

func eventGet(L *lua.LState) int {
	ge := checkArguments(L)
	value, err := ge.Argument(L.CheckString(2))
	if err != nil {
		raise(L, err)
		return 0
	}
	L.Push(currentBinding(L).toLua(L, value))
	return 1
}

func eventSet(L *lua.LState) int {
	ge := checkArguments(L)
	key := L.CheckString(2)
	value, err := fromLua(L.Get(3))
	if err != nil {
		raise(L, err)
		return 0
	}
	ge.SetArgument(key, value)
	L.Push(L.Get(1))
	return 1
}

func eventHas(L *lua.LState) int {
	ge := checkArguments(L)
	L.Push(lua.LBool(ge.HasArgument(L.CheckString(2))))
	return 1
}

func eventRemove(L *lua.LState) int {
	ge := checkArguments(L)
	ge.RemoveArgument(L.CheckString(2))
	return 0
}

func eventKeys(L *lua.LState) int {
	ge := checkArguments(L)
	L.Push(currentBinding(L).toLua(L, ge.Keys()))
	return 1
}

func eventArguments(L *lua.LState) int {
	ge := checkArguments(L)
	L.Push(currentBinding(L).toLua(L, ge.Arguments()))
	return 1
}

func eventSubject(L *lua.LState) int {
	ge := checkArguments(L)
	L.Push(currentBinding(L).toLua(L, ge.Subject()))
	return 1
}

func eventStop(L *lua.LState) int {
	checkEvent(L).StopPropagation()
	return 0
}

func eventStopped(L *lua.LState) int {
	L.Push(lua.LBool(checkEvent(L).IsPropagationStopped()))
	return 1
}

func (b *binding) newDispatcher(L *lua.LState, d *events.Dispatcher) lua.LValue {
	ud := L.NewUserData()
	ud.Value = &dispatcherRef{dispatcher: d, binding: b}
	L.SetMetatable(ud, L.GetTypeMetatable(dispatcherTypeName))
	return ud
}

func checkDispatcher(L *lua.LState) *dispatcherRef {
	ud := L.CheckUserData(1)
	ref, ok := ud.Value.(*dispatcherRef)
	if !ok {
		L.ArgError(1, "dispatcher expected")
		return nil
	}
	return ref
}

func dispatcherCurrent(L *lua.LState) int {
	ref := checkDispatcher(L)
	if name, ok := ref.dispatcher.CurrentEvent(); ok {
		L.Push(lua.LString(name))
		return 1
	}
	L.Push(lua.LNil)
	return 1
}

func dispatcherDoing(L *lua.LState) int {
	ref := checkDispatcher(L)
	L.Push(lua.LBool(ref.dispatcher.DoingEvent(L.CheckString(2))))
	return 1
}

func dispatcherHasListeners(L *lua.LState) int {
	ref := checkDispatcher(L)
	L.Push(lua.LBool(ref.dispatcher.HasListeners(L.CheckString(2))))
	return 1
}

// authorize raises unless the plugin may dispatch name.
func (r *dispatcherRef) authorize(L *lua.LState, name string) bool {
	if r.binding.enforcer == nil {
		raise(L, oops.Code(capability.CodeDenied).
			With("plugin", r.binding.plugin).
			With("event", name).
			Errorf("plugin %q may not dispatch events", r.binding.plugin))
		return false
	}
	if err := r.binding.enforcer.Authorize(r.binding.plugin, name); err != nil {
		raise(L, err)
		return false
	}
	return true
}

// enter raises once nested plugin dispatches reach the host limit. A true
// result must be paired with binding.depth.leave().
func (r *dispatcherRef) enter(L *lua.LState, name string) bool {
	if r.binding.depth.enter() {
		return true
	}
	raise(L, oops.Code(CodeDispatchDepth).
		With("plugin", r.binding.plugin).
		With("event", name).
		With("limit", r.binding.depth.limit).
		Hint("a listener dispatches an event that leads back to itself").
		Errorf("plugin dispatch nested deeper than %d levels", r.binding.depth.limit))
	return false
}

// dispatcherDispatch is d:dispatch(name [, args]). It fires a generic event
// whose subject is the plugin name and returns it.
func dispatcherDispatch(L *lua.LState) int {
	ref := checkDispatcher(L)
	name := L.CheckString(2)
	if !ref.authorize(L, name) {
		return 0
	}

	args := map[string]any{}
	if t, ok := L.Get(3).(*lua.LTable); ok {
		converted, err := fromLua(t)
		if err != nil {
			raise(L, err)
			return 0
		}
		m, isMap := converted.(map[string]any)
		if !isMap {
			L.ArgError(3, "table of named arguments expected")
			return 0
		}
		args = m
	} else if L.Get(3) != lua.LNil {
		L.ArgError(3, "table of named arguments expected")
		return 0
	}

	if !ref.enter(L, name) {
		return 0
	}
	defer ref.binding.depth.leave()

	ev, err := ref.dispatcher.Dispatch(name, events.NewGenericEvent(ref.binding.plugin, args))
	if err != nil {
		raise(L, err)
		return 0
	}
	L.Push(newEvent(L, ev))
	return 1
}

// dispatcherFilter is d:filter(name, value). It returns the filtered value.
func dispatcherFilter(L *lua.LState) int {
	ref := checkDispatcher(L)
	name := L.CheckString(2)
	if !ref.authorize(L, name) {
		return 0
	}

	value, err := fromLua(L.Get(3))
	if err != nil {
		raise(L, err)
		return 0
	}
	if !ref.enter(L, name) {
		return 0
	}
	defer ref.binding.depth.leave()

	out, err := ref.dispatcher.Filter(name, value, nil)
	if err != nil {
		raise(L, err)
		return 0
	}
	L.Push(ref.binding.toLua(L, out))
	return 1
}
