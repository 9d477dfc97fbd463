// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package metadata

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// names returns the metadata names of a preference list, in order.
func names(prefs []Preference) []string {
	result := make([]string, len(prefs))
	for i, pref := range prefs {
		result[i] = pref.Metadata.Name()
	}
	return result
}

// TestPreferenceOrdering checks the basic sort: highest quality first,
// with an unspecified quality meaning 1.
func TestPreferenceOrdering(t *testing.T) {
	prefs, errs := ReadPreferences(MediaTypes, "a/b;q=0.3, c/d;q=0.9, e/f")
	assert.Empty(t, errs)
	if assert.Len(t, prefs, 3) {
		assert.Equal(t, []string{"e/f", "c/d", "a/b"}, names(prefs))
		assert.Equal(t, 1.0, prefs[0].Quality)
		assert.Equal(t, 0.9, prefs[1].Quality)
		assert.Equal(t, 0.3, prefs[2].Quality)
	}
}

// TestPreferenceStable checks that equal qualities keep header order.
func TestPreferenceStable(t *testing.T) {
	prefs := ParseMediaTypes("text/plain;q=0.5, text/html, application/json;q=0.5, text/xml")
	assert.Equal(t, []string{"text/html", "text/xml", "text/plain", "application/json"}, names(prefs))
}

func TestPreferenceBadQuality(t *testing.T) {
	prefs, errs := ReadPreferences(MediaTypes, "text/html;q=1.5, text/plain;q=-0.1, text/xml;q=abc, application/json;q=0.2")
	assert.Equal(t, []string{"application/json"}, names(prefs))
	if assert.Len(t, errs, 3) {
		for _, err := range errs {
			var perr ProtocolError
			if assert.IsType(t, perr, err) {
				perr = err.(ProtocolError)
				assert.Equal(t, ErrBadQuality, perr.Err)
				assert.Equal(t, "Accept", perr.Header)
				assert.Equal(t, http.StatusBadRequest, perr.HTTPStatus())
			}
		}
	}
}

// TestPreferenceQualityGrammar checks that only qvalues are accepted,
// so no entry can escape the decreasing-quality order.
func TestPreferenceQualityGrammar(t *testing.T) {
	prefs, errs := ReadPreferences(MediaTypes, "a/b;q=0.3, c/d;q=NaN, e/f")
	assert.Equal(t, []string{"e/f", "a/b"}, names(prefs))
	if assert.Len(t, errs, 1) {
		assert.Equal(t, ErrBadQuality, errs[0].(ProtocolError).Err)
	}

	for _, q := range []string{"NaN", "nan", "Inf", "+0.5", "1e-1", "0x1p-1", ".5", "0.1234", "1.001", "01", ""} {
		_, errs := ReadPreferences(MediaTypes, "text/plain;q="+q)
		if assert.Len(t, errs, 1, "q=%q", q) {
			assert.Equal(t, ErrBadQuality, errs[0].(ProtocolError).Err, "q=%q", q)
		}
	}
	for q, want := range map[string]float64{"0": 0, "0.": 0, "0.125": 0.125, "1": 1, "1.": 1, "1.000": 1} {
		prefs, errs := ReadPreferences(MediaTypes, "text/plain;q="+q)
		assert.Empty(t, errs, "q=%q", q)
		if assert.Len(t, prefs, 1, "q=%q", q) {
			assert.Equal(t, want, prefs[0].Quality, "q=%q", q)
		}
	}
}

func TestPreferenceMalformed(t *testing.T) {
	prefs, errs := ReadPreferences(MediaTypes, "text, text/html, ;q=0.5, image/png;foo=\"unterminated")
	assert.Equal(t, []string{"text/html"}, names(prefs))
	assert.Len(t, errs, 3)
}

func TestPreferenceMediaTypeParams(t *testing.T) {
	prefs := ParseMediaTypes(`text/html;level=1;q=0.7;ext="a,b", text/*;q=0.3`)
	require.Len(t, prefs, 2)
	mt := prefs[0].Metadata.(MediaType)
	level, present := mt.Param("level")
	assert.True(t, present)
	assert.Equal(t, "1", level)
	assert.Equal(t, 0.7, prefs[0].Quality)
	assert.Equal(t, []Parameter{{Name: "ext", Value: "a,b"}}, prefs[0].Params)
	assert.Equal(t, "text/*", prefs[1].Metadata.Name())
}

func TestPreferenceLanguages(t *testing.T) {
	prefs := ParseLanguages("da, en-GB;q=0.8, en;q=0.7, not_a_tag")
	assert.Equal(t, []string{"da", "en-gb", "en"}, names(prefs))
}

func TestPreferenceDefaults(t *testing.T) {
	assert.Equal(t, []string{"*/*"}, names(ReadHeader(MediaTypes, "", false)))
	assert.Equal(t, []string{"*"}, names(ReadHeader(Languages, "", false)))
	assert.Equal(t, []string{"*"}, names(ReadHeader(CharacterSets, "", false)))
	assert.Equal(t, []string{"ISO-8859-1"}, names(ReadHeader(CharacterSets, "", true)))
	assert.Equal(t, []string{"identity"}, names(ReadHeader(Encodings, "", false)))
	assert.Equal(t, []string{"gzip", "identity"}, names(ReadHeader(Encodings, "identity;q=0.5, x-gzip", true)))
}

func TestReadHTTPHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("Accept-Charset", "")
	prefs, errs := ReadHTTPHeaders(h)
	assert.Empty(t, errs)
	assert.Equal(t, []string{"application/json"}, names(prefs.MediaTypes))
	assert.Equal(t, []string{"ISO-8859-1"}, names(prefs.CharacterSets))
	assert.Equal(t, []string{"*"}, names(prefs.Languages))
	assert.Equal(t, []string{"identity"}, names(prefs.Encodings))

	h.Set("Accept", "text/html;q=2, text/plain")
	h.Set("Accept-Encoding", "gzip;q=NaN")
	prefs, errs = ReadHTTPHeaders(h)
	assert.Equal(t, []string{"text/plain"}, names(prefs.MediaTypes))
	assert.Empty(t, prefs.Encodings)
	if assert.Len(t, errs, 2) {
		assert.Equal(t, "Accept", errs[0].(ProtocolError).Header)
		assert.Equal(t, "Accept-Encoding", errs[1].(ProtocolError).Header)
	}
}

func TestFormatPreferences(t *testing.T) {
	prefs := ParseMediaTypes("a/b;q=0.3, c/d;q=0.95, e/f;x=y")
	assert.Equal(t, "e/f;x=y, c/d;q=0.95, a/b;q=0.3", FormatPreferences(prefs))
}

func TestParseElement(t *testing.T) {
	value, params, err := ParseElement(`attachment; filename="a \"quoted\" \\ name.txt"; size=12`)
	if assert.NoError(t, err) {
		assert.Equal(t, "attachment", value)
		assert.Equal(t, []Parameter{
			{Name: "filename", Value: `a "quoted" \ name.txt`},
			{Name: "size", Value: "12"},
		}, params)
	}

	_, _, err = ParseElement(`text/html, text/plain`)
	assert.Error(t, err)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"a \"b\" \\c"`, Quote(`a "b" \c`))
	assert.Equal(t, "token", QuoteIfNeeded("token"))
	assert.Equal(t, `"two words"`, QuoteIfNeeded("two words"))
}
