// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"
	"errors"
	"maps"
	"slices"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/hookevents/internal/plugin/hostfunc"
	"github.com/holomush/hookevents/pkg/events"
	"github.com/holomush/hookevents/pkg/hook"
)

// Error codes for Lua plugin failures.
const (
	CodeScriptError    = "SCRIPT_ERROR"
	CodeConversion     = "LUA_CONVERSION"
	CodeNoEvents       = "NO_EVENTS"
	CodeMissingHandler = "MISSING_HANDLER"
	CodeDispatchDepth  = "DISPATCH_DEPTH_EXCEEDED"
)

// subscribedEventsFn is the Lua function that declares a plugin's events
// when its manifest does not.
const subscribedEventsFn = "subscribed_events"

// Subscriber is a Lua plugin acting as an events.Subscriber. Its listener
// methods are the global functions the plugin source defines.
//
// A Subscriber is immutable once loaded and safe for concurrent calls;
// each call gets its own Lua state.
type Subscriber struct {
	name          string
	code          string
	factory       *StateFactory
	funcs         *hostfunc.Functions
	binding       *binding
	subscriptions map[string]events.Subscription
	functions     map[string]struct{}
}

var (
	_ events.Subscriber = (*Subscriber)(nil)
	_ hook.MethodCaller = (*Subscriber)(nil)
)

// compileSubscriber runs code once in a scratch state to find the
// functions it defines and the events it subscribes to. declared, when
// not nil, takes the place of subscribed_events().
func compileSubscriber(
	ctx context.Context,
	factory *StateFactory,
	funcs *hostfunc.Functions,
	b *binding,
	code string,
	declared map[string]events.Subscription,
) (*Subscriber, error) {
	name := b.plugin
	s := &Subscriber{
		name:    name,
		code:    code,
		factory: factory,
		funcs:   funcs,
		binding: b,
	}

	L, err := s.newState(ctx)
	if err != nil {
		return nil, err
	}
	defer L.Close()

	before := globalFunctions(L)
	if err := L.DoString(code); err != nil {
		return nil, oops.Code(CodeScriptError).
			In("lua").
			With("plugin", name).
			Hint("syntax or top-level runtime error in plugin source").
			Wrap(err)
	}

	s.functions = make(map[string]struct{})
	for fnName, fn := range globalFunctions(L) {
		if before[fnName] != fn && fnName != subscribedEventsFn {
			s.functions[fnName] = struct{}{}
		}
	}

	subs := declared
	if subs == nil {
		subs, err = s.declaredEvents(L)
		if err != nil {
			return nil, err
		}
	}
	if len(subs) == 0 {
		return nil, oops.Code(CodeNoEvents).
			With("plugin", name).
			Hint("list events in plugin.yaml or define subscribed_events()").
			Errorf("plugin %q subscribes to no events", name)
	}

	for _, event := range slices.Sorted(maps.Keys(subs)) {
		method := subs[event].MethodName()
		if _, ok := s.functions[method]; !ok {
			return nil, oops.Code(CodeMissingHandler).
				With("plugin", name).
				With("event", event).
				With("method", method).
				Errorf("plugin %q has no function %q for event %q", name, method, event)
		}
	}
	s.subscriptions = subs
	return s, nil
}

// declaredEvents calls subscribed_events() and parses its table.
func (s *Subscriber) declaredEvents(L *lua.LState) (map[string]events.Subscription, error) {
	fn, ok := L.GetGlobal(subscribedEventsFn).(*lua.LFunction)
	if !ok {
		return nil, nil
	}
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}); err != nil {
		return nil, s.scriptError(subscribedEventsFn, err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	raw, err := fromLua(ret)
	if err != nil {
		return nil, oops.With("plugin", s.name).Wrap(err)
	}
	table, ok := raw.(map[string]any)
	if !ok {
		return nil, oops.Code(CodeNoEvents).
			With("plugin", s.name).
			Errorf("%s() must return a table keyed by event name", subscribedEventsFn)
	}
	subs, err := events.ParseSubscriptions(table)
	if err != nil {
		return nil, oops.With("plugin", s.name).Wrap(err)
	}
	return subs, nil
}

// Name returns the plugin name.
func (s *Subscriber) Name() string {
	return s.name
}

// SubscribedEvents implements events.Subscriber.
func (s *Subscriber) SubscribedEvents() map[string]events.Subscription {
	return maps.Clone(s.subscriptions)
}

// Functions returns the sorted names of the plugin's global functions.
func (s *Subscriber) Functions() []string {
	return slices.Sorted(maps.Keys(s.functions))
}

// HasMethod implements hook.MethodCaller.
func (s *Subscriber) HasMethod(name string) bool {
	_, ok := s.functions[name]
	return ok
}

// CallMethod implements hook.MethodCaller. It loads the plugin into a
// fresh state and calls the named function with args.
func (s *Subscriber) CallMethod(name string, args []any) (any, bool, error) {
	ctx, cancel := s.factory.callContext()
	defer cancel()

	L, err := s.newState(ctx)
	if err != nil {
		return nil, false, err
	}
	defer L.Close()

	if err := L.DoString(s.code); err != nil {
		return nil, false, s.scriptError(name, err)
	}
	fn, ok := L.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return nil, false, oops.Code(CodeMissingHandler).
			With("plugin", s.name).
			With("method", name).
			Errorf("plugin %q has no function %q", s.name, name)
	}

	luaArgs := make([]lua.LValue, len(args))
	for i, arg := range args {
		luaArgs[i] = s.binding.toLua(L, arg)
	}

	top := L.GetTop()
	if err := L.CallByParam(lua.P{Fn: fn, NRet: lua.MultRet, Protect: true}, luaArgs...); err != nil {
		return nil, false, s.scriptError(name, err)
	}
	if L.GetTop() == top {
		return nil, false, nil
	}

	out, err := fromLua(L.Get(top + 1))
	L.SetTop(top)
	if err != nil {
		return nil, false, oops.With("plugin", s.name).With("method", name).Wrap(err)
	}
	return out, true, nil
}

func (s *Subscriber) newState(ctx context.Context) (*lua.LState, error) {
	L, err := s.factory.NewState(ctx)
	if err != nil {
		return nil, oops.With("plugin", s.name).Wrap(err)
	}
	registerTypes(L)
	setBinding(L, s.binding)
	if s.funcs != nil {
		s.funcs.Register(L, s.name)
	}
	return L, nil
}

// scriptError converts a Lua failure into a Go error. Errors raised from
// Go inside the call are unwrapped so their codes survive.
func (s *Subscriber) scriptError(fn string, err error) error {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) {
		if ud, ok := apiErr.Object.(*lua.LUserData); ok {
			if goErr, isErr := ud.Value.(error); isErr {
				return oops.In("lua").With("plugin", s.name).With("function", fn).Wrap(goErr)
			}
		}
	}
	return oops.Code(CodeScriptError).
		In("lua").
		With("plugin", s.name).
		With("function", fn).
		Wrap(err)
}

// globalFunctions maps global names to the Lua functions they hold.
func globalFunctions(L *lua.LState) map[string]*lua.LFunction {
	fns := make(map[string]*lua.LFunction)
	L.G.Global.ForEach(func(k, v lua.LValue) {
		name, isName := k.(lua.LString)
		fn, isFn := v.(*lua.LFunction)
		if isName && isFn {
			fns[string(name)] = fn
		}
	})
	return fns
}
