// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package metadata

// This file contains a small permissive reader for the RFC 2616
// header grammar shared by the Accept-* family, Content-Type, and
// Content-Disposition:
//
//     header  = #element
//     element = value *( ";" name [ "=" ( token | quoted-string ) ] )

import (
	"errors"
	"strings"
)

var errUnterminatedQuote = errors.New("unterminated quoted string")

var errTrailingGarbage = errors.New("unexpected characters after element")

var errEmptyValue = errors.New("empty element value")

// element is one comma-separated item of a header.
type element struct {
	value  string
	params []Parameter
	raw    string
}

type headerScanner struct {
	s   string
	pos int
}

func (sc *headerScanner) eof() bool {
	return sc.pos >= len(sc.s)
}

func (sc *headerScanner) peek() byte {
	return sc.s[sc.pos]
}

func (sc *headerScanner) skipSpace() {
	for !sc.eof() && (sc.peek() == ' ' || sc.peek() == '\t' || sc.peek() == '\r' || sc.peek() == '\n') {
		sc.pos++
	}
}

// until reads up to (not including) any byte in stops, outside of
// quotes, and returns the trimmed text.
func (sc *headerScanner) until(stops string) string {
	start := sc.pos
	for !sc.eof() && strings.IndexByte(stops, sc.peek()) < 0 {
		sc.pos++
	}
	return strings.TrimSpace(sc.s[start:sc.pos])
}

// quoted reads a quoted-string starting at the opening quote,
// resolving backslash escapes.
func (sc *headerScanner) quoted() (string, error) {
	var b strings.Builder
	sc.pos++ // opening quote
	for !sc.eof() {
		c := sc.peek()
		sc.pos++
		switch c {
		case '\\':
			if sc.eof() {
				return b.String(), errUnterminatedQuote
			}
			b.WriteByte(sc.peek())
			sc.pos++
		case '"':
			return b.String(), nil
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), errUnterminatedQuote
}

// skipElement moves past the rest of the current element, honoring
// quotes, so that a malformed element does not poison the next one.
func (sc *headerScanner) skipElement() {
	inQuote := false
	for !sc.eof() {
		c := sc.peek()
		switch {
		case inQuote && c == '\\':
			sc.pos++
		case c == '"':
			inQuote = !inQuote
		case !inQuote && c == ',':
			return
		}
		sc.pos++
	}
}

// element reads one element; on error the scanner is left at the
// next comma.
func (sc *headerScanner) element() (element, error) {
	start := sc.pos
	var el element
	el.value = sc.until(",;")
	for {
		sc.skipSpace()
		if sc.eof() || sc.peek() != ';' {
			break
		}
		sc.pos++
		sc.skipSpace()
		name := sc.until("=,;")
		var value string
		if !sc.eof() && sc.peek() == '=' {
			sc.pos++
			sc.skipSpace()
			if !sc.eof() && sc.peek() == '"' {
				var err error
				value, err = sc.quoted()
				if err != nil {
					el.raw = sc.s[start:sc.pos]
					return el, err
				}
			} else {
				value = sc.until(",;")
			}
		}
		if name != "" {
			el.params = append(el.params, Parameter{Name: name, Value: value})
		}
	}
	sc.skipSpace()
	if !sc.eof() && sc.peek() != ',' {
		sc.skipElement()
		el.raw = sc.s[start:sc.pos]
		return el, errTrailingGarbage
	}
	el.raw = strings.TrimSpace(sc.s[start:sc.pos])
	return el, nil
}

// readElements splits a header into elements.  Malformed elements
// are returned as errors alongside the good ones.
func readElements(header string) ([]element, []elementError) {
	var (
		elements []element
		errs     []elementError
	)
	sc := &headerScanner{s: header}
	for {
		sc.skipSpace()
		if sc.eof() {
			break
		}
		if sc.peek() == ',' {
			sc.pos++
			continue
		}
		el, err := sc.element()
		if err == nil && el.value == "" {
			err = errEmptyValue
		}
		if err != nil {
			errs = append(errs, elementError{raw: el.raw, err: err})
			sc.skipElement()
			continue
		}
		elements = append(elements, el)
	}
	return elements, errs
}

type elementError struct {
	raw string
	err error
}

// ParseElement parses a single-element header value such as a
// Content-Type or Content-Disposition, returning its main value and
// its parameters.
func ParseElement(s string) (string, []Parameter, error) {
	sc := &headerScanner{s: s}
	sc.skipSpace()
	el, err := sc.element()
	if err == nil && el.value == "" {
		err = errEmptyValue
	}
	if err == nil && !sc.eof() {
		err = errTrailingGarbage
	}
	if err != nil {
		return "", nil, err
	}
	return el.value, el.params, nil
}

// Quote returns s as an RFC 2616 quoted-string, escaping embedded
// quotes and backslashes.
func Quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String()
}

// QuoteIfNeeded returns s unchanged if it is a token, or quoted
// otherwise.
func QuoteIfNeeded(s string) string {
	if isToken(s) {
		return s
	}
	return Quote(s)
}
