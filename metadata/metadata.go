// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package metadata describes the negotiable properties of a
// representation: its media type, its languages, its character set,
// and its content encodings.  It also parses the HTTP Accept-* family
// of headers into ordered preference lists, and scores candidate
// variants against those preferences.
//
// Metadata values are immutable.  Names compare case-insensitively.
package metadata

import (
	"strings"
)

// Metadata is the common interface of MediaType, Language,
// CharacterSet, and Encoding.
type Metadata interface {
	// Name returns the canonical name of the value, without any
	// parameters.
	Name() string

	// Parent returns the next more general value, or nil if there
	// is none.  The parent of "text/html" is "text/*"; the parent
	// of "en-us" is "en".
	Parent() Metadata

	// Includes returns true if other is equal to or more specific
	// than this value.
	Includes(other Metadata) bool

	// Equals returns true if other names the same value.
	Equals(other Metadata) bool
}

// Parameter is a single name/value pair attached to a header element,
// such as the "charset" of a media type or the "q" of a preference.
type Parameter struct {
	Name  string
	Value string
}

// findParam returns the value of the named parameter, compared
// case-insensitively.
func findParam(params []Parameter, name string) (string, bool) {
	for _, p := range params {
		if strings.EqualFold(p.Name, name) {
			return p.Value, true
		}
	}
	return "", false
}

// Equal compares two possibly-nil metadata values.
func Equal(a, b Metadata) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equals(b)
}

// Set is a list of metadata values of a single kind.
type Set []Metadata

// Contains returns true if some member of s equals m.
func (s Set) Contains(m Metadata) bool {
	for _, mm := range s {
		if Equal(mm, m) {
			return true
		}
	}
	return false
}
