// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package template

import (
	"net/url"
	"strings"
)

// VariableType selects the characters a variable may capture.
type VariableType int

const (
	// TypeAll matches any character.
	TypeAll VariableType = iota + 1
	// TypeAlpha matches ASCII letters.
	TypeAlpha
	// TypeDigit matches ASCII digits.
	TypeDigit
	// TypeAlphaDigit matches ASCII letters and digits.
	TypeAlphaDigit
	// TypeURIAll matches any reserved or unreserved URI character
	// and percent-escapes, including "/".
	TypeURIAll
	// TypeURIUnreserved matches unreserved URI characters only.
	TypeURIUnreserved
	// TypeWord matches word characters.
	TypeWord
	// TypeURIFragment matches characters valid in a fragment.
	TypeURIFragment
	// TypeURIPath matches a sequence of path segments.
	TypeURIPath
	// TypeURIQuery matches a whole query string.
	TypeURIQuery
	// TypeURIQueryParam matches a query parameter name or value,
	// stopping at "&" and "=".
	TypeURIQueryParam
	// TypeURISegment matches one path segment, stopping at "/".
	TypeURISegment
	// TypeToken matches an RFC 2616 token.
	TypeToken
	// TypeComment matches the text of an RFC 2616 comment.
	TypeComment
	// TypeCommentAttribute matches a comment attribute, stopping
	// at ";".
	TypeCommentAttribute
)

var typeNames = map[VariableType]string{
	TypeAll:              "all",
	TypeAlpha:            "alpha",
	TypeDigit:            "digit",
	TypeAlphaDigit:       "alphaDigit",
	TypeURIAll:           "uriAll",
	TypeURIUnreserved:    "uriUnreserved",
	TypeWord:             "word",
	TypeURIFragment:      "uriFragment",
	TypeURIPath:          "uriPath",
	TypeURIQuery:         "uriQuery",
	TypeURIQueryParam:    "uriQueryParam",
	TypeURISegment:       "uriSegment",
	TypeToken:            "token",
	TypeComment:          "comment",
	TypeCommentAttribute: "commentAttribute",
}

func (t VariableType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseVariableType returns the type with a name as printed by
// String, ignoring case.
func ParseVariableType(name string) (VariableType, bool) {
	for t, n := range typeNames {
		if strings.EqualFold(n, name) {
			return t, true
		}
	}
	return 0, false
}

// Character classes from RFC 3986.
const (
	alphaChars      = "a-zA-Z"
	digitChars      = "0-9"
	unreservedChars = alphaChars + digitChars + `\-._~`
	subDelimChars   = `!$&'()*+,;=`
	genDelimChars   = `:/?#\[\]@`
	pctEncoded      = `%[0-9A-Fa-f]{2}`
)

// classes are the regular expressions for one character of each
// variable type.
var classes = map[VariableType]string{
	TypeAll:              `(?s:.)`,
	TypeAlpha:            `[` + alphaChars + `]`,
	TypeDigit:            `[` + digitChars + `]`,
	TypeAlphaDigit:       `[` + alphaChars + digitChars + `]`,
	TypeURIAll:           `(?:[` + unreservedChars + subDelimChars + genDelimChars + `]|` + pctEncoded + `)`,
	TypeURIUnreserved:    `[` + unreservedChars + `]`,
	TypeWord:             `\w`,
	TypeURIFragment:      `(?:[` + unreservedChars + subDelimChars + `:@/?]|` + pctEncoded + `)`,
	TypeURIPath:          `(?:[` + unreservedChars + subDelimChars + `:@/]|` + pctEncoded + `)`,
	TypeURIQuery:         `(?:[` + unreservedChars + subDelimChars + `:@/?]|` + pctEncoded + `)`,
	TypeURIQueryParam:    `(?:[` + unreservedChars + `!$'()*+,;:@/?]|` + pctEncoded + `)`,
	TypeURISegment:       `(?:[` + unreservedChars + subDelimChars + `:@]|` + pctEncoded + `)`,
	TypeToken:            `[^\x00-\x20()<>@,;:\\"/\[\]?={}\x7f]`,
	TypeComment:          `[^\x00-\x08\x0a-\x1f\x7f()]`,
	TypeCommentAttribute: `[^\x00-\x08\x0a-\x1f\x7f();]`,
}

// Variable describes one "{name}" in a template.
type Variable struct {
	Type VariableType
	// DefaultValue is used when formatting without a binding.
	DefaultValue string
	// Required variables must capture at least one character and
	// must be bound (or have a default) when formatting.
	Required bool
	// Fixed variables always format as their default value.
	Fixed bool
	// DecodeOnParse percent-decodes captured values.
	DecodeOnParse bool
	// EncodeOnFormat percent-encodes values when formatting.
	EncodeOnFormat bool
}

// NewVariable returns a required variable of some type.
func NewVariable(t VariableType) Variable {
	return Variable{Type: t, Required: true}
}

func (v Variable) regex() string {
	class, ok := classes[v.Type]
	if !ok {
		class = classes[TypeAll]
	}
	if v.Required {
		return "(" + class + "+)"
	}
	return "(" + class + "*)"
}

func (v Variable) isQuery() bool {
	return v.Type == TypeURIQuery || v.Type == TypeURIQueryParam
}

func (v Variable) decode(s string) string {
	var decoded string
	var err error
	if v.isQuery() {
		decoded, err = url.QueryUnescape(s)
	} else {
		decoded, err = url.PathUnescape(s)
	}
	if err != nil {
		return s
	}
	return decoded
}

func (v Variable) encode(s string) string {
	switch v.Type {
	case TypeURISegment:
		return url.PathEscape(s)
	case TypeURIPath:
		parts := strings.Split(s, "/")
		for i, part := range parts {
			parts[i] = url.PathEscape(part)
		}
		return strings.Join(parts, "/")
	default:
		return strings.Replace(url.QueryEscape(s), "+", "%20", -1)
	}
}
