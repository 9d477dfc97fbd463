// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package metadata

import (
	"strings"
)

// CharacterSet names a character encoding such as "UTF-8".  The name
// is stored in upper case, and a few common aliases are folded into
// their canonical names.
type CharacterSet struct {
	name string
}

// Well-known character sets.
var (
	AllCharacterSets = CharacterSet{name: "*"}
	ISO88591         = CharacterSet{name: "ISO-8859-1"}
	USASCII          = CharacterSet{name: "US-ASCII"}
	UTF8             = CharacterSet{name: "UTF-8"}
	UTF16            = CharacterSet{name: "UTF-16"}
)

var charsetAliases = map[string]string{
	"LATIN1":     "ISO-8859-1",
	"ISO8859-1":  "ISO-8859-1",
	"ISO-8859-1": "ISO-8859-1",
	"ASCII":      "US-ASCII",
	"US-ASCII":   "US-ASCII",
	"UTF8":       "UTF-8",
	"UTF-8":      "UTF-8",
	"UTF16":      "UTF-16",
	"UTF-16":     "UTF-16",
}

// NewCharacterSet creates a character set from its name.
func NewCharacterSet(name string) CharacterSet {
	upper := strings.ToUpper(name)
	if canonical, known := charsetAliases[upper]; known {
		upper = canonical
	}
	return CharacterSet{name: upper}
}

// IsZero returns true for the zero CharacterSet.
func (c CharacterSet) IsZero() bool {
	return c.name == ""
}

// Name returns the canonical name.
func (c CharacterSet) Name() string {
	return c.name
}

func (c CharacterSet) String() string {
	return c.name
}

// Parent always returns nil.
func (c CharacterSet) Parent() Metadata {
	return nil
}

// Includes is true if c is "*" or names the same character set.
func (c CharacterSet) Includes(other Metadata) bool {
	o, ok := other.(CharacterSet)
	if !ok || c.IsZero() || o.IsZero() {
		return false
	}
	return c.name == "*" || c.name == o.name
}

// Equals compares names.
func (c CharacterSet) Equals(other Metadata) bool {
	o, ok := other.(CharacterSet)
	return ok && c.name == o.name
}
