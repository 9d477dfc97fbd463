// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package metadata

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Preference is one entry of an Accept-* header: a metadata value and
// the quality the client assigned to it.
type Preference struct {
	Metadata Metadata
	Quality  float64
	// Params holds accept-extension parameters that followed the
	// quality value.
	Params []Parameter
}

func (p Preference) String() string {
	if p.Metadata == nil {
		return ""
	}
	s := fmt.Sprint(p.Metadata)
	if p.Quality < 1.0 {
		s += ";q=" + formatQuality(p.Quality)
	}
	for _, param := range p.Params {
		s += ";" + param.Name + "=" + QuoteIfNeeded(param.Value)
	}
	return s
}

// Preferences gathers the four preference lists a client sends.
type Preferences struct {
	MediaTypes    []Preference
	Languages     []Preference
	CharacterSets []Preference
	Encodings     []Preference
}

// Kind names which Accept-* header a preference list came from.
type Kind int

const (
	// MediaTypes is the Accept: header.
	MediaTypes Kind = iota
	// Languages is the Accept-Language: header.
	Languages
	// CharacterSets is the Accept-Charset: header.
	CharacterSets
	// Encodings is the Accept-Encoding: header.
	Encodings
)

// Header returns the HTTP header name for k.
func (k Kind) Header() string {
	switch k {
	case MediaTypes:
		return "Accept"
	case Languages:
		return "Accept-Language"
	case CharacterSets:
		return "Accept-Charset"
	case Encodings:
		return "Accept-Encoding"
	default:
		return "Accept-Unknown"
	}
}

// ErrBadQuality is the cause of a ProtocolError for a q value that is
// not an RFC 7231 qvalue: "0" or "1" with at most three decimals, and
// never above 1.
var ErrBadQuality = errors.New("quality must be a number between 0 and 1")

// ProtocolError describes one header element that could not be
// understood.  Preference parsing never fails as a whole; each bad
// element produces one of these and is skipped.
type ProtocolError struct {
	Header  string
	Element string
	Err     error
}

func (e ProtocolError) Error() string {
	return fmt.Sprintf("%s: skipping %q: %v", e.Header, e.Element, e.Err)
}

// HTTPStatus returns a fixed 400 Bad Request status code.
func (e ProtocolError) HTTPStatus() int {
	return http.StatusBadRequest
}

// ReadPreferences parses an Accept-* header into preferences sorted
// by decreasing quality; elements of equal quality keep their order
// in the header.  Malformed elements, including those with an
// invalid q, are skipped and reported in the error list.
func ReadPreferences(kind Kind, header string) ([]Preference, []error) {
	elements, elementErrors := readElements(header)
	var errs []error
	for _, ee := range elementErrors {
		errs = append(errs, ProtocolError{Header: kind.Header(), Element: ee.raw, Err: ee.err})
	}

	prefs := make([]Preference, 0, len(elements))
	for _, el := range elements {
		pref, err := preferenceFromElement(kind, el)
		if err != nil {
			errs = append(errs, ProtocolError{Header: kind.Header(), Element: el.raw, Err: err})
			continue
		}
		prefs = append(prefs, pref)
	}
	SortPreferences(prefs)
	return prefs, errs
}

func preferenceFromElement(kind Kind, el element) (Preference, error) {
	pref := Preference{Quality: 1.0}

	// Parameters before q belong to the media type; parameters after
	// q are accept-extensions.
	var own []Parameter
	sawQ := false
	for _, param := range el.params {
		switch {
		case !sawQ && strings.EqualFold(param.Name, "q"):
			sawQ = true
			q, err := parseQuality(param.Value)
			if err != nil {
				return pref, err
			}
			pref.Quality = q
		case sawQ:
			pref.Params = append(pref.Params, param)
		default:
			own = append(own, param)
		}
	}

	switch kind {
	case MediaTypes:
		mt, err := mediaTypeFromValue(el.value)
		if err != nil {
			return pref, err
		}
		mt.params = own
		pref.Metadata = mt
	case Languages:
		lang, err := ParseLanguage(el.value)
		if err != nil {
			return pref, err
		}
		pref.Metadata = lang
	case CharacterSets:
		if !isToken(el.value) {
			return pref, fmt.Errorf("invalid character set %q", el.value)
		}
		pref.Metadata = NewCharacterSet(el.value)
	case Encodings:
		if !isToken(el.value) {
			return pref, fmt.Errorf("invalid encoding %q", el.value)
		}
		pref.Metadata = NewEncoding(el.value)
	default:
		return pref, fmt.Errorf("unknown preference kind %v", kind)
	}
	return pref, nil
}

// parseQuality accepts only the qvalue grammar,
//
//     qvalue = ( "0" [ "." 0*3DIGIT ] ) / ( "1" [ "." 0*3("0") ] )
//
// so NaN, infinities, exponents and signs are all refused.
func parseQuality(value string) (float64, error) {
	if value == "" || len(value) > 5 || (value[0] != '0' && value[0] != '1') {
		return 0, ErrBadQuality
	}
	if len(value) > 1 {
		if value[1] != '.' {
			return 0, ErrBadQuality
		}
		for _, c := range value[2:] {
			if c < '0' || c > '9' || (value[0] == '1' && c != '0') {
				return 0, ErrBadQuality
			}
		}
	}
	q, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, ErrBadQuality
	}
	return q, nil
}

// SortPreferences sorts prefs by decreasing quality, keeping the
// relative order of equal-quality entries.
func SortPreferences(prefs []Preference) {
	sort.SliceStable(prefs, func(i, j int) bool {
		return prefs[i].Quality > prefs[j].Quality
	})
}

// ParsePreferences is ReadPreferences for callers that only want the
// list; protocol errors are logged as warnings on the standard logger.
// Callers with their own logger should use ReadPreferences.
func ParsePreferences(kind Kind, header string) []Preference {
	prefs, errs := ReadPreferences(kind, header)
	for _, err := range errs {
		logrus.WithError(err).WithField("header", kind.Header()).Warn("Ignoring malformed preference")
	}
	return prefs
}

// ParseMediaTypes parses an Accept: header.
func ParseMediaTypes(header string) []Preference {
	return ParsePreferences(MediaTypes, header)
}

// ParseLanguages parses an Accept-Language: header.
func ParseLanguages(header string) []Preference {
	return ParsePreferences(Languages, header)
}

// ParseCharacterSets parses an Accept-Charset: header.
func ParseCharacterSets(header string) []Preference {
	return ParsePreferences(CharacterSets, header)
}

// ParseEncodings parses an Accept-Encoding: header.
func ParseEncodings(header string) []Preference {
	return ParsePreferences(Encodings, header)
}

// ReadHeader applies the defaults for an absent or empty header and
// otherwise parses it.  A missing Accept: means "*/*", a missing
// Accept-Charset: means any character set but an empty one means
// ISO-8859-1, a missing Accept-Encoding: means identity, and a missing
// Accept-Language: means any language.
func ReadHeader(kind Kind, value string, present bool) []Preference {
	prefs, errs := readHeader(kind, value, present)
	for _, err := range errs {
		logrus.WithError(err).WithField("header", kind.Header()).Warn("Ignoring malformed preference")
	}
	return prefs
}

func readHeader(kind Kind, value string, present bool) ([]Preference, []error) {
	if present && strings.TrimSpace(value) != "" {
		return ReadPreferences(kind, value)
	}
	var m Metadata
	switch kind {
	case MediaTypes:
		m = AllMediaTypes
	case Languages:
		m = AllLanguages
	case CharacterSets:
		if present {
			m = ISO88591
		} else {
			m = AllCharacterSets
		}
	case Encodings:
		m = Identity
	default:
		return nil, nil
	}
	return []Preference{{Metadata: m, Quality: 1.0}}, nil
}

// ReadHTTPHeaders fills a Preferences from a set of HTTP headers.  The
// malformed elements it skipped come back as ProtocolErrors for the
// caller to log.
func ReadHTTPHeaders(h http.Header) (Preferences, []error) {
	var errs []error
	read := func(kind Kind) []Preference {
		values, present := h[http.CanonicalHeaderKey(kind.Header())]
		prefs, kindErrs := readHeader(kind, strings.Join(values, ","), present)
		errs = append(errs, kindErrs...)
		return prefs
	}
	prefs := Preferences{
		MediaTypes:    read(MediaTypes),
		Languages:     read(Languages),
		CharacterSets: read(CharacterSets),
		Encodings:     read(Encodings),
	}
	return prefs, errs
}

// FormatPreferences writes a preference list in Accept-* syntax.
func FormatPreferences(prefs []Preference) string {
	parts := make([]string, 0, len(prefs))
	for _, pref := range prefs {
		if s := pref.String(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// formatQuality renders q with at most three decimals, as RFC 2616
// requires, dropping trailing zeros.
func formatQuality(q float64) string {
	s := strconv.FormatFloat(q, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
