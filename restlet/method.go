// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restlet

import "strings"

// Method is a request method name, always in upper case.
type Method string

// Standard methods.
const (
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodOptions Method = "OPTIONS"
	MethodPatch   Method = "PATCH"
	MethodTrace   Method = "TRACE"
	MethodConnect Method = "CONNECT"
)

// ParseMethod returns the canonical form of a method name.
func ParseMethod(name string) Method {
	return Method(strings.ToUpper(strings.TrimSpace(name)))
}

// IsSafe returns true for methods that do not modify the resource.
func (m Method) IsSafe() bool {
	switch m {
	case MethodGet, MethodHead, MethodOptions, MethodTrace:
		return true
	}
	return false
}

// IsIdempotent returns true for methods that can be repeated with
// the same effect.
func (m Method) IsIdempotent() bool {
	return m.IsSafe() || m == MethodPut || m == MethodDelete
}

func (m Method) String() string {
	return string(m)
}
