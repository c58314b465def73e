// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package events

import (
	"encoding/json"
	"iter"
	"reflect"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ArgumentMap is the map-style view of an argument container. GenericEvent
// satisfies it by delegating to its named argument methods.
type ArgumentMap interface {
	Get(key string) (any, error)
	Set(key string, value any)
	Has(key string) bool
	Delete(key string)
}

var _ ArgumentMap = (*GenericEvent)(nil)

// GenericEvent is an Event carrying an optional subject and an ordered set
// of named arguments. Reading an absent argument is an error.
type GenericEvent struct {
	BaseEvent
	subject   any
	arguments *orderedmap.OrderedMap[string, any]
}

// NewGenericEvent creates a GenericEvent. Initial arguments are inserted in
// key order; use SetArgument to control insertion order.
func NewGenericEvent(subject any, args map[string]any) *GenericEvent {
	e := &GenericEvent{
		subject:   subject,
		arguments: orderedmap.New[string, any](),
	}
	e.insertSorted(args)
	return e
}

func (e *GenericEvent) insertSorted(args map[string]any) {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e.args().Set(k, args[k])
	}
}

// Subject returns the subject given at construction.
func (e *GenericEvent) Subject() any {
	return e.subject
}

// Arguments returns a copy of all arguments.
func (e *GenericEvent) Arguments() map[string]any {
	out := make(map[string]any, e.args().Len())
	for pair := e.args().Oldest(); pair != nil; pair = pair.Next() {
		out[pair.Key] = pair.Value
	}
	return out
}

// SetArguments replaces every argument.
func (e *GenericEvent) SetArguments(args map[string]any) *GenericEvent {
	e.arguments = orderedmap.New[string, any]()
	e.insertSorted(args)
	return e
}

// SetArgument adds or replaces one argument. A replaced argument keeps its
// position.
func (e *GenericEvent) SetArgument(key string, value any) *GenericEvent {
	e.args().Set(key, value)
	return e
}

// Argument returns the value stored under key.
func (e *GenericEvent) Argument(key string) (any, error) {
	v, ok := e.args().Get(key)
	if !ok {
		return nil, ErrArgumentNotFound(key)
	}
	return v, nil
}

// HasArgument reports whether key is set, even to nil.
func (e *GenericEvent) HasArgument(key string) bool {
	_, ok := e.args().Get(key)
	return ok
}

// RemoveArgument deletes key. Removing an absent key does nothing.
func (e *GenericEvent) RemoveArgument(key string) {
	e.args().Delete(key)
}

// Len returns the number of arguments.
func (e *GenericEvent) Len() int {
	return e.args().Len()
}

// Keys returns argument keys in insertion order.
func (e *GenericEvent) Keys() []string {
	keys := make([]string, 0, e.args().Len())
	for pair := e.args().Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// All iterates arguments in insertion order. Each range over the sequence
// starts from the current arguments, so mutations made before it are seen.
func (e *GenericEvent) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for pair := e.args().Oldest(); pair != nil; {
			next := pair.Next()
			if !yield(pair.Key, pair.Value) {
				return
			}
			pair = next
		}
	}
}

// Get is Argument.
func (e *GenericEvent) Get(key string) (any, error) { return e.Argument(key) }

// Set is SetArgument.
func (e *GenericEvent) Set(key string, value any) { e.SetArgument(key, value) }

// Has is HasArgument.
func (e *GenericEvent) Has(key string) bool { return e.HasArgument(key) }

// Delete is RemoveArgument.
func (e *GenericEvent) Delete(key string) { e.RemoveArgument(key) }

// Equal reports whether both events have equal subjects and equal
// arguments. Argument order is ignored.
func (e *GenericEvent) Equal(other *GenericEvent) bool {
	if e == nil || other == nil {
		return e == other
	}
	return reflect.DeepEqual(e.subject, other.subject) &&
		reflect.DeepEqual(e.Arguments(), other.Arguments())
}

// MarshalJSON renders the subject and the arguments in insertion order.
func (e *GenericEvent) MarshalJSON() ([]byte, error) {
	//nolint:wrapcheck // encoding/json passthrough
	return json.Marshal(struct {
		Subject   any                                 `json:"subject,omitempty"`
		Arguments *orderedmap.OrderedMap[string, any] `json:"arguments"`
		Stopped   bool                                `json:"propagation_stopped,omitempty"`
	}{
		Subject:   e.subject,
		Arguments: e.args(),
		Stopped:   e.IsPropagationStopped(),
	})
}

func (e *GenericEvent) args() *orderedmap.OrderedMap[string, any] {
	if e.arguments == nil {
		e.arguments = orderedmap.New[string, any]()
	}
	return e.arguments
}
