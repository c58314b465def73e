// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package hook

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/samber/oops"
)

// Method binds a method name to a receiver. It is the Go form of an
// (object, "method") callback pair.
//
// The method is resolved at call time, either through MethodCaller when
// the receiver implements it, or by reflection on the receiver's exported
// method set.
type Method struct {
	Receiver any
	Name     string
}

// String returns "receiver-type::Name".
func (m Method) String() string {
	return fmt.Sprintf("%T::%s", m.Receiver, m.Name)
}

// MethodCaller is implemented by receivers whose methods are not Go
// methods, such as script-backed subscribers. A Method on a MethodCaller
// resolves only through HasMethod and CallMethod, never by reflection.
type MethodCaller interface {
	// HasMethod reports whether name can be called.
	HasMethod(name string) bool

	// CallMethod invokes name with args. ok is false when the method
	// returned no value at all.
	CallMethod(name string, args []any) (result any, ok bool, err error)
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// IsCallable reports whether cb can be registered as a hook callback.
// Accepted forms are non-nil func values and Method values whose receiver
// exposes the named method.
func IsCallable(cb any) bool {
	switch c := cb.(type) {
	case nil:
		return false
	case Method:
		if _, isCaller := c.Receiver.(MethodCaller); isCaller {
			return hasCallerMethod(c)
		}
		return methodValue(c).IsValid()
	case *Method:
		return c != nil && IsCallable(*c)
	}
	v := reflect.ValueOf(cb)
	return v.Kind() == reflect.Func && !v.IsNil()
}

func hasCallerMethod(m Method) bool {
	caller, ok := m.Receiver.(MethodCaller)
	return ok && m.Name != "" && caller.HasMethod(m.Name)
}

func methodValue(m Method) reflect.Value {
	if m.Receiver == nil || m.Name == "" {
		return reflect.Value{}
	}
	return reflect.ValueOf(m.Receiver).MethodByName(m.Name)
}

// ID returns the identity used to match a callback on registration,
// removal, and priority lookup.
//
// Funcs are identified by the func value itself: every reference to a
// top-level func shares an ID, while each method value (g.Greet) and each
// capturing closure is a distinct callback. Keep the value you registered
// to remove it, or register a Method, which matches by receiver. Methods
// on pointer-like receivers are identified by receiver address and name;
// value receivers by type and name.
func ID(cb any) (string, error) {
	if !IsCallable(cb) {
		return "", ErrNotCallable(cb)
	}
	m, ok := cb.(Method)
	if !ok {
		if mp, isPtr := cb.(*Method); isPtr {
			m, ok = *mp, true
		}
	}
	if ok {
		rv := reflect.ValueOf(m.Receiver)
		switch rv.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Slice:
			return fmt.Sprintf("%#x::%s", rv.Pointer(), m.Name), nil
		default:
			return m.String(), nil
		}
	}
	return fmt.Sprintf("func:%#x:%p", reflect.ValueOf(cb).Pointer(), funcValuePointer(cb)), nil
}

// funcValuePointer returns the closure pointer of the func held in cb.
// Func types are pointer-shaped, so the interface data word is the func
// value. The code pointer alone cannot tell method values or closures of
// one literal apart.
func funcValuePointer(cb any) unsafe.Pointer {
	return (*[2]unsafe.Pointer)(unsafe.Pointer(&cb))[1]
}

// Invoke calls cb with args. It reports whether the callback produced a
// result; a callback without return values yields (nil, false, nil).
//
// Funcs with fewer parameters than len(args) receive the leading
// arguments. A trailing error result is returned as the call error.
func Invoke(cb any, args []any) (result any, ok bool, err error) {
	var m Method
	switch c := cb.(type) {
	case Method:
		m = c
	case *Method:
		if c == nil {
			return nil, false, ErrNotCallable(cb)
		}
		m = *c
	default:
		v := reflect.ValueOf(cb)
		if v.Kind() != reflect.Func || v.IsNil() {
			return nil, false, ErrNotCallable(cb)
		}
		return callValue(v, args)
	}

	if caller, isCaller := m.Receiver.(MethodCaller); isCaller {
		if !hasCallerMethod(m) {
			return nil, false, ErrNotCallable(cb)
		}
		out, produced, callErr := caller.CallMethod(m.Name, args)
		if callErr != nil {
			return nil, false, oops.Code(CodeCallbackFailed).
				With("callback", m.String()).
				Wrap(callErr)
		}
		return out, produced, nil
	}
	if fn := methodValue(m); fn.IsValid() {
		return callValue(fn, args)
	}
	return nil, false, ErrNotCallable(cb)
}

func callValue(fn reflect.Value, args []any) (any, bool, error) {
	in, err := buildArgs(fn.Type(), args)
	if err != nil {
		return nil, false, err
	}

	out := fn.Call(in)

	if n := len(out); n > 0 && fn.Type().Out(n-1) == errorType {
		if e, _ := out[n-1].Interface().(error); e != nil {
			return nil, false, oops.Code(CodeCallbackFailed).
				With("callback", fn.Type().String()).
				Wrap(e)
		}
		out = out[:n-1]
	}
	if len(out) == 0 {
		return nil, false, nil
	}
	return out[0].Interface(), true, nil
}

func buildArgs(ft reflect.Type, args []any) ([]reflect.Value, error) {
	fixed := ft.NumIn()
	if ft.IsVariadic() {
		fixed--
	}
	if len(args) < fixed {
		return nil, ErrCallbackSignature(ft, fmt.Sprintf("needs %d arguments, got %d", fixed, len(args)))
	}

	in := make([]reflect.Value, 0, len(args))
	for i := 0; i < fixed; i++ {
		v, err := argValue(ft, ft.In(i), i, args[i])
		if err != nil {
			return nil, err
		}
		in = append(in, v)
	}

	if !ft.IsVariadic() {
		return in, nil
	}
	elem := ft.In(fixed).Elem()
	for i := fixed; i < len(args); i++ {
		v, err := argValue(ft, elem, i, args[i])
		if err != nil {
			return nil, err
		}
		in = append(in, v)
	}
	return in, nil
}

func argValue(ft, param reflect.Type, i int, arg any) (reflect.Value, error) {
	if arg == nil {
		switch param.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(param), nil
		}
		return reflect.Value{}, ErrCallbackSignature(ft, fmt.Sprintf("argument %d is nil, want %s", i, param))
	}
	v := reflect.ValueOf(arg)
	if !v.Type().AssignableTo(param) {
		return reflect.Value{}, ErrCallbackSignature(ft, fmt.Sprintf("argument %d is %s, want %s", i, v.Type(), param))
	}
	return v, nil
}
