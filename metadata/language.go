// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package metadata

import (
	"fmt"
	"strings"
)

// Language is an RFC 3066 language tag such as "en" or "en-us".  Tags
// are stored in lower case.  "*" matches every language.
type Language struct {
	tag string
}

// Well-known languages.
var (
	AllLanguages      = Language{tag: "*"}
	English           = Language{tag: "en"}
	EnglishUS         = Language{tag: "en-us"}
	EnglishGB         = Language{tag: "en-gb"}
	French            = Language{tag: "fr"}
	FrenchFrance      = Language{tag: "fr-fr"}
	German            = Language{tag: "de"}
	Spanish           = Language{tag: "es"}
	Italian           = Language{tag: "it"}
	Japanese          = Language{tag: "ja"}
	ChineseSimplified = Language{tag: "zh-cn"}
)

// NewLanguage creates a language from a tag.  It does not validate;
// see ParseLanguage.
func NewLanguage(tag string) Language {
	return Language{tag: strings.ToLower(tag)}
}

// ParseLanguage validates and creates a language tag.  Each
// "-"-separated part must be 1 to 8 letters or digits.
func ParseLanguage(tag string) (Language, error) {
	if tag == "*" {
		return AllLanguages, nil
	}
	parts := strings.Split(tag, "-")
	for _, part := range parts {
		if len(part) == 0 || len(part) > 8 {
			return Language{}, fmt.Errorf("invalid language tag %q", tag)
		}
		for i := 0; i < len(part); i++ {
			c := part[i]
			isAlpha := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
			isDigit := c >= '0' && c <= '9'
			if !isAlpha && !isDigit {
				return Language{}, fmt.Errorf("invalid language tag %q", tag)
			}
		}
	}
	return NewLanguage(tag), nil
}

// IsZero returns true for the zero Language.
func (l Language) IsZero() bool {
	return l.tag == ""
}

// Name returns the full tag.
func (l Language) Name() string {
	return l.tag
}

func (l Language) String() string {
	return l.tag
}

// Primary returns the primary tag, "en" in "en-us".
func (l Language) Primary() string {
	if i := strings.IndexByte(l.tag, '-'); i >= 0 {
		return l.tag[:i]
	}
	return l.tag
}

// Subtags returns the tags after the primary one.
func (l Language) Subtags() []string {
	parts := strings.Split(l.tag, "-")
	return parts[1:]
}

// Parent drops the last subtag; a bare primary tag has no parent.
func (l Language) Parent() Metadata {
	i := strings.LastIndexByte(l.tag, '-')
	if i < 0 {
		return nil
	}
	return Language{tag: l.tag[:i]}
}

// Includes is true if l is "*", or if l's tags are a prefix of the
// other language's tags.
func (l Language) Includes(other Metadata) bool {
	o, ok := other.(Language)
	if !ok || l.IsZero() || o.IsZero() {
		return false
	}
	if l.tag == "*" || l.tag == o.tag {
		return true
	}
	return strings.HasPrefix(o.tag, l.tag+"-")
}

// Equals compares tags.
func (l Language) Equals(other Metadata) bool {
	o, ok := other.(Language)
	return ok && l.tag == o.tag
}
