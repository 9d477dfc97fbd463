// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package metadata

import (
	"errors"
	"fmt"
	"strings"
)

// MediaType is a MIME type such as "text/html;charset=UTF-8".  The
// main type and subtype are stored in lower case; either can be the
// wildcard "*".
type MediaType struct {
	main   string
	sub    string
	params []Parameter
}

// Well-known media types.
var (
	AllMediaTypes          = NewMediaType("*", "*")
	ApplicationAll         = NewMediaType("application", "*")
	ApplicationCBOR        = NewMediaType("application", "cbor")
	ApplicationGzip        = NewMediaType("application", "gzip")
	ApplicationJavaScript  = NewMediaType("application", "javascript")
	ApplicationJSON        = NewMediaType("application", "json")
	ApplicationOctetStream = NewMediaType("application", "octet-stream")
	ApplicationPDF         = NewMediaType("application", "pdf")
	ApplicationWWWForm     = NewMediaType("application", "x-www-form-urlencoded")
	ApplicationXML         = NewMediaType("application", "xml")
	ApplicationZip         = NewMediaType("application", "zip")
	ImageAll               = NewMediaType("image", "*")
	ImageGIF               = NewMediaType("image", "gif")
	ImageJPEG              = NewMediaType("image", "jpeg")
	ImagePNG               = NewMediaType("image", "png")
	MultipartFormData      = NewMediaType("multipart", "form-data")
	TextAll                = NewMediaType("text", "*")
	TextCSS                = NewMediaType("text", "css")
	TextHTML               = NewMediaType("text", "html")
	TextJSON               = NewMediaType("text", "json")
	TextPlain              = NewMediaType("text", "plain")
	TextXML                = NewMediaType("text", "xml")
)

// errBadMediaType is returned when a media type is not of the form
// type/subtype.
var errBadMediaType = errors.New("media type must be type/subtype")

// NewMediaType creates a media type from its parts.
func NewMediaType(main, sub string, params ...Parameter) MediaType {
	return MediaType{
		main:   strings.ToLower(main),
		sub:    strings.ToLower(sub),
		params: params,
	}
}

// ParseMediaType parses a single Content-Type style value, including
// any parameters.
func ParseMediaType(s string) (MediaType, error) {
	value, params, err := ParseElement(s)
	if err != nil {
		return MediaType{}, err
	}
	mt, err := mediaTypeFromValue(value)
	if err != nil {
		return MediaType{}, err
	}
	mt.params = params
	return mt, nil
}

// MustParseMediaType is ParseMediaType for static strings; it panics
// on error.
func MustParseMediaType(s string) MediaType {
	mt, err := ParseMediaType(s)
	if err != nil {
		panic(err)
	}
	return mt
}

func mediaTypeFromValue(value string) (MediaType, error) {
	if value == "*" {
		// Some clients send a bare "*"; treat it as */*
		return AllMediaTypes, nil
	}
	parts := strings.SplitN(value, "/", 2)
	if len(parts) != 2 || !isToken(parts[0]) || !isToken(parts[1]) {
		return MediaType{}, fmt.Errorf("%v: %q", errBadMediaType, value)
	}
	if parts[0] == "*" && parts[1] != "*" {
		return MediaType{}, fmt.Errorf("%v: %q", errBadMediaType, value)
	}
	return NewMediaType(parts[0], parts[1]), nil
}

// IsZero returns true for the zero MediaType, which stands for "no
// media type".
func (mt MediaType) IsZero() bool {
	return mt.main == ""
}

// Main returns the main type, "text" in "text/html".
func (mt MediaType) Main() string {
	return mt.main
}

// Sub returns the subtype, "html" in "text/html".
func (mt MediaType) Sub() string {
	return mt.sub
}

// Params returns the media type parameters in declaration order.
func (mt MediaType) Params() []Parameter {
	return mt.params
}

// Param returns a single parameter by name.
func (mt MediaType) Param(name string) (string, bool) {
	return findParam(mt.params, name)
}

// WithParam returns a copy of mt with the named parameter replaced
// or appended.
func (mt MediaType) WithParam(name, value string) MediaType {
	params := make([]Parameter, 0, len(mt.params)+1)
	for _, p := range mt.params {
		if !strings.EqualFold(p.Name, name) {
			params = append(params, p)
		}
	}
	params = append(params, Parameter{Name: name, Value: value})
	return MediaType{main: mt.main, sub: mt.sub, params: params}
}

// WithoutParam returns a copy of mt without the named parameter.
func (mt MediaType) WithoutParam(name string) MediaType {
	var params []Parameter
	for _, p := range mt.params {
		if !strings.EqualFold(p.Name, name) {
			params = append(params, p)
		}
	}
	return MediaType{main: mt.main, sub: mt.sub, params: params}
}

// WithoutParams returns mt with all of its parameters removed.
func (mt MediaType) WithoutParams() MediaType {
	return MediaType{main: mt.main, sub: mt.sub}
}

// Name returns "type/subtype".
func (mt MediaType) Name() string {
	if mt.IsZero() {
		return ""
	}
	return mt.main + "/" + mt.sub
}

// String returns the full header form, including parameters.
func (mt MediaType) String() string {
	var b strings.Builder
	b.WriteString(mt.Name())
	for _, p := range mt.params {
		b.WriteString(";")
		b.WriteString(p.Name)
		b.WriteString("=")
		b.WriteString(QuoteIfNeeded(p.Value))
	}
	return b.String()
}

// Parent returns "type/*" for a concrete type, "*/*" for "type/*",
// and nil for "*/*".
func (mt MediaType) Parent() Metadata {
	switch {
	case mt.IsZero():
		return nil
	case mt.main == "*":
		return nil
	case mt.sub == "*":
		return AllMediaTypes
	default:
		return NewMediaType(mt.main, "*")
	}
}

// Includes returns true if other is a MediaType covered by mt.
// Wildcards include everything under them, and every parameter of mt
// must appear with the same value in other.
func (mt MediaType) Includes(other Metadata) bool {
	o, ok := other.(MediaType)
	if !ok || o.IsZero() || mt.IsZero() {
		return false
	}
	if mt.main == "*" {
		return true
	}
	if mt.main != o.main {
		return false
	}
	if mt.sub != "*" && mt.sub != o.sub {
		return false
	}
	for _, p := range mt.params {
		if strings.EqualFold(p.Name, "q") {
			continue
		}
		v, present := o.Param(p.Name)
		if !present || !strings.EqualFold(v, p.Value) {
			return false
		}
	}
	return true
}

// IsCompatible returns true if either media type includes the other.
func (mt MediaType) IsCompatible(other MediaType) bool {
	return mt.Includes(other) || other.Includes(mt)
}

// Equals compares the type, subtype, and parameters.
func (mt MediaType) Equals(other Metadata) bool {
	o, ok := other.(MediaType)
	if !ok || mt.main != o.main || mt.sub != o.sub || len(mt.params) != len(o.params) {
		return false
	}
	for _, p := range mt.params {
		v, present := o.Param(p.Name)
		if !present || v != p.Value {
			return false
		}
	}
	return true
}

// isToken checks that s is a non-empty RFC 2616 token.
func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isTokenChar(s[i]) {
			return false
		}
	}
	return true
}

func isTokenChar(c byte) bool {
	if c <= 32 || c >= 127 {
		return false
	}
	return !strings.ContainsRune("()<>@,;:\\\"/[]?={} \t", rune(c))
}

// ContentType formats a media type with a character set as its
// charset parameter, unless the media type already carries one.
func ContentType(mt MediaType, cs CharacterSet) string {
	if !cs.IsZero() {
		if _, has := mt.Param("charset"); !has {
			mt = mt.WithParam("charset", cs.Name())
		}
	}
	return mt.String()
}

// ParseContentType is the inverse of ContentType: it splits the
// charset parameter out of a Content-Type value.
func ParseContentType(s string) (MediaType, CharacterSet, error) {
	mt, err := ParseMediaType(s)
	if err != nil {
		return MediaType{}, CharacterSet{}, err
	}
	var cs CharacterSet
	if name, ok := mt.Param("charset"); ok {
		cs = NewCharacterSet(name)
		mt = mt.WithoutParam("charset")
	}
	return mt, cs, nil
}
