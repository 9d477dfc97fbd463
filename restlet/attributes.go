// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restlet

import "fmt"

// Attributes is a string-keyed map that remembers insertion order.
// The zero value is an empty map ready to use.  Attributes are not
// safe for concurrent mutation; a call's attributes belong to the
// goroutine handling it.
type Attributes struct {
	keys   []string
	values map[string]interface{}
}

// NewAttributes creates an attribute map from a plain map.  Keys of
// m are added in an unspecified order.
func NewAttributes(m map[string]interface{}) *Attributes {
	a := &Attributes{}
	for k, v := range m {
		a.Set(k, v)
	}
	return a
}

// Get returns the value for key and whether it was present.
func (a *Attributes) Get(key string) (interface{}, bool) {
	if a == nil || a.values == nil {
		return nil, false
	}
	v, ok := a.values[key]
	return v, ok
}

// GetString returns the value for key formatted as a string, or "" if
// it is absent.
func (a *Attributes) GetString(key string) string {
	v, ok := a.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, isString := v.(string); isString {
		return s
	}
	return fmt.Sprint(v)
}

// Has returns true if key is present.
func (a *Attributes) Has(key string) bool {
	_, ok := a.Get(key)
	return ok
}

// Set adds or replaces a value.  Replacing keeps the original
// position.
func (a *Attributes) Set(key string, value interface{}) {
	if a.values == nil {
		a.values = make(map[string]interface{})
	}
	if _, exists := a.values[key]; !exists {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
}

// Delete removes a key.
func (a *Attributes) Delete(key string) {
	if a == nil || a.values == nil {
		return
	}
	if _, exists := a.values[key]; !exists {
		return
	}
	delete(a.values, key)
	for i, k := range a.keys {
		if k == key {
			a.keys = append(a.keys[:i], a.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (a *Attributes) Keys() []string {
	if a == nil {
		return nil
	}
	return append([]string(nil), a.keys...)
}

// Len returns the number of keys.
func (a *Attributes) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// Range calls f on each key and value in order until f returns
// false.
func (a *Attributes) Range(f func(key string, value interface{}) bool) {
	if a == nil {
		return
	}
	for _, k := range a.Keys() {
		if !f(k, a.values[k]) {
			return
		}
	}
}

// Map returns a plain copy of the attributes.
func (a *Attributes) Map() map[string]interface{} {
	result := make(map[string]interface{}, a.Len())
	a.Range(func(k string, v interface{}) bool {
		result[k] = v
		return true
	})
	return result
}

// Merge copies every entry of other into a.
func (a *Attributes) Merge(other *Attributes) {
	other.Range(func(k string, v interface{}) bool {
		a.Set(k, v)
		return true
	})
}
