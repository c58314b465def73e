// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package events

import (
	"math"
	"sort"
)

// Subscriber declares, in one call, every event it listens to.
//
// The returned map is keyed by event name. SubscribedEvents must not
// depend on receiver state: the same mapping is used to register and to
// remove the subscriber's listeners.
type Subscriber interface {
	SubscribedEvents() map[string]Subscription
}

// shape records which of the declared subscription forms was used.
type shape uint8

const (
	shapeMethod shape = iota
	shapeMethodPriority
	shapeMethodPriorityArgs
)

// Subscription is one event's listener declaration: a method name,
// optionally with a priority, optionally with an accepted argument count.
// Omitted parts take the host default priority and one accepted argument.
type Subscription struct {
	method       string
	priority     int
	acceptedArgs int
	shape        shape
}

// Method declares a listener with default priority and one argument.
func Method(method string) Subscription {
	return Subscription{method: method, shape: shapeMethod}
}

// MethodPriority declares a listener with an explicit priority.
func MethodPriority(method string, priority int) Subscription {
	return Subscription{method: method, priority: priority, shape: shapeMethodPriority}
}

// MethodPriorityArgs declares a listener with an explicit priority and
// accepted argument count.
func MethodPriorityArgs(method string, priority, acceptedArgs int) Subscription {
	return Subscription{method: method, priority: priority, acceptedArgs: acceptedArgs, shape: shapeMethodPriorityArgs}
}

// MethodName returns the declared method.
func (s Subscription) MethodName() string {
	return s.method
}

// Normalize resolves s to a concrete method, priority, and accepted
// argument count, filling omitted parts from defaultPriority and 1.
func Normalize(s Subscription, defaultPriority int) (method string, priority, acceptedArgs int) {
	switch s.shape {
	case shapeMethodPriority:
		return s.method, s.priority, 1
	case shapeMethodPriorityArgs:
		return s.method, s.priority, s.acceptedArgs
	default:
		return s.method, defaultPriority, 1
	}
}

// ParseSubscription reads a subscription from decoded data such as YAML or
// a script table. Accepted forms are a method name, or a sequence of one
// to three elements: method, priority, accepted argument count.
func ParseSubscription(raw any) (Subscription, error) {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return Subscription{}, ErrInvalidArgument("method", v)
		}
		return Method(v), nil
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return parseSequence(items)
	case []any:
		return parseSequence(v)
	default:
		return Subscription{}, ErrInvalidArgument("subscription", raw)
	}
}

func parseSequence(items []any) (Subscription, error) {
	if len(items) == 0 || len(items) > 3 {
		return Subscription{}, ErrInvalidArgument("subscription", items)
	}
	method, ok := items[0].(string)
	if !ok || method == "" {
		return Subscription{}, ErrInvalidArgument("method", items[0])
	}
	if len(items) == 1 {
		return Method(method), nil
	}

	priority, ok := toInt(items[1])
	if !ok {
		return Subscription{}, ErrInvalidArgument("priority", items[1])
	}
	if len(items) == 2 {
		return MethodPriority(method, priority), nil
	}

	acceptedArgs, ok := toInt(items[2])
	if !ok || acceptedArgs < 0 {
		return Subscription{}, ErrInvalidArgument("accepted_args", items[2])
	}
	return MethodPriorityArgs(method, priority, acceptedArgs), nil
}

// ParseSubscriptions parses every entry of a decoded event map.
func ParseSubscriptions(raw map[string]any) (map[string]Subscription, error) {
	out := make(map[string]Subscription, len(raw))
	for _, name := range sortedKeys(raw) {
		sub, err := ParseSubscription(raw[name])
		if err != nil {
			return nil, err
		}
		out[name] = sub
	}
	return out, nil
}

// toInt accepts Go integers and integral floats, which is how YAML, JSON,
// and Lua decoders deliver whole numbers. Values outside the int range are
// rejected.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		if n > math.MaxInt || n < math.MinInt {
			return 0, false
		}
		return int(n), true
	case uint:
		return uintToInt(uint64(n))
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return uintToInt(uint64(n))
	case uint64:
		return uintToInt(n)
	case uintptr:
		return uintToInt(uint64(n))
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	default:
		return 0, false
	}
}

func uintToInt(n uint64) (int, bool) {
	if n > math.MaxInt {
		return 0, false
	}
	return int(n), true
}

// floatToInt rejects fractions, NaN, and anything at or beyond 2^63 (2^31
// on 32-bit platforms), the first float outside the int range.
func floatToInt(f float64) (int, bool) {
	if f != math.Trunc(f) || f < math.MinInt || f >= -math.MinInt {
		return 0, false
	}
	return int(f), true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
