// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package metadata

import (
	"strings"
)

// Encoding is a content coding such as "gzip".
type Encoding struct {
	name string
}

// Well-known encodings.
var (
	AllEncodings = Encoding{name: "*"}
	Identity     = Encoding{name: "identity"}
	GZip         = Encoding{name: "gzip"}
	Deflate      = Encoding{name: "deflate"}
	Brotli       = Encoding{name: "br"}
	Compress     = Encoding{name: "compress"}
	Zip          = Encoding{name: "zip"}
)

// NewEncoding creates an encoding from its name.  "x-gzip" is folded
// into "gzip".
func NewEncoding(name string) Encoding {
	name = strings.ToLower(name)
	switch name {
	case "x-gzip":
		name = "gzip"
	case "x-compress":
		name = "compress"
	}
	return Encoding{name: name}
}

// IsZero returns true for the zero Encoding.
func (e Encoding) IsZero() bool {
	return e.name == ""
}

// Name returns the encoding name.
func (e Encoding) Name() string {
	return e.name
}

func (e Encoding) String() string {
	return e.name
}

// Parent always returns nil.
func (e Encoding) Parent() Metadata {
	return nil
}

// Includes is true if e is "*" or the same encoding.
func (e Encoding) Includes(other Metadata) bool {
	o, ok := other.(Encoding)
	if !ok || e.IsZero() || o.IsZero() {
		return false
	}
	return e.name == "*" || e.name == o.name
}

// Equals compares names.
func (e Encoding) Equals(other Metadata) bool {
	o, ok := other.(Encoding)
	return ok && e.name == o.name
}
