// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func segments() Option {
	return WithDefaultVariable(NewVariable(TypeURISegment))
}

func TestBookmark(t *testing.T) {
	tmpl, err := New("/accounts/{username}/bookmarks/{URI}",
		segments(),
		WithVariable("URI", Variable{Type: TypeURIAll, Required: true, DecodeOnParse: true}))
	require.NoError(t, err)

	m, ok := tmpl.Parse("/accounts/alice/bookmarks/http%3A%2F%2Fx.org")
	require.True(t, ok)
	assert.Equal(t, map[string]string{
		"username": "alice",
		"URI":      "http://x.org",
	}, m.Variables)
	assert.Equal(t, []string{"username", "URI"}, m.Names())
	assert.Equal(t, len("/accounts/alice/bookmarks/http%3A%2F%2Fx.org"), m.Length)
}

func TestSegmentStopsAtSlash(t *testing.T) {
	tmpl := MustNew("/items/{itemName}", segments())
	assert.Equal(t, -1, tmpl.Match("/items/widget/parts"))
	assert.Equal(t, -1, tmpl.Match("/items/"))
	assert.Equal(t, len("/items/widget"), tmpl.Match("/items/widget"))

	prefix := MustNew("/items/{itemName}", segments(), WithMode(StartsWith))
	assert.Equal(t, len("/items/widget"), prefix.Match("/items/widget/parts"))
	assert.Equal(t, -1, prefix.Match("/other/widget"))
}

func TestAllSpansSlashes(t *testing.T) {
	tmpl := MustNew("/files/{path}.txt")
	vars, n := tmpl.ParseMap("/files/a/b/c.txt")
	assert.Equal(t, len("/files/a/b/c.txt"), n)
	assert.Equal(t, "a/b/c", vars["path"])
}

func TestTypedVariables(t *testing.T) {
	tmpl := MustNew("/v{major}.{minor}/{name}",
		WithVariable("major", NewVariable(TypeDigit)),
		WithVariable("minor", NewVariable(TypeDigit)),
		WithVariable("name", NewVariable(TypeAlpha)))
	vars, n := tmpl.ParseMap("/v1.22/abc")
	assert.NotEqual(t, -1, n)
	assert.Equal(t, map[string]string{"major": "1", "minor": "22", "name": "abc"}, vars)
	assert.Equal(t, -1, tmpl.Match("/vx.22/abc"))
	assert.Equal(t, -1, tmpl.Match("/v1.22/abc1"))
}

func TestOptionalVariable(t *testing.T) {
	tmpl := MustNew("/search?q={q}", WithVariable("q", Variable{Type: TypeURIQueryParam}))
	vars, n := tmpl.ParseMap("/search?q=")
	assert.NotEqual(t, -1, n)
	assert.Equal(t, "", vars["q"])
}

func TestRepeatedVariable(t *testing.T) {
	tmpl := MustNew("/{a}/x/{a}", segments())
	assert.NotEqual(t, -1, tmpl.Match("/same/x/same"))
	assert.Equal(t, -1, tmpl.Match("/one/x/two"))
	assert.Equal(t, []string{"a"}, tmpl.VariableNames())
}

func TestSyntaxErrors(t *testing.T) {
	for _, pattern := range []string{
		"/{a}{b}",
		"/{}",
		"/{a",
		"/a}",
		"/{a{b}}",
		"/{a b}",
	} {
		_, err := New(pattern)
		if assert.Error(t, err, pattern) {
			assert.IsType(t, SyntaxError{}, err, pattern)
		}
	}

	_, err := New("/{a}-{b}")
	assert.NoError(t, err)
}

func TestFormat(t *testing.T) {
	tmpl := MustNew("/accounts/{username}/bookmarks/{URI}",
		segments(),
		WithVariable("URI", Variable{Type: TypeURIAll, Required: true, EncodeOnFormat: true}))

	s, err := tmpl.FormatMap(map[string]string{"username": "alice", "URI": "http://x.org"})
	assert.NoError(t, err)
	assert.Equal(t, "/accounts/alice/bookmarks/http%3A%2F%2Fx.org", s)

	_, err = tmpl.FormatMap(map[string]string{"username": "alice"})
	assert.Equal(t, ErrUnboundVariable{Name: "URI"}, err)
}

func TestFormatDefaults(t *testing.T) {
	tmpl := MustNew("/{lang}/{page}",
		WithVariable("lang", Variable{Type: TypeURISegment, DefaultValue: "en", Required: true}),
		WithVariable("page", Variable{Type: TypeURISegment, DefaultValue: "index", Fixed: true}))
	s, err := tmpl.FormatMap(map[string]string{"page": "ignored"})
	assert.NoError(t, err)
	assert.Equal(t, "/en/index", s)

	s, err = tmpl.Format(ResolverFunc(func(name string) (string, bool) {
		return "fr", name == "lang"
	}))
	assert.NoError(t, err)
	assert.Equal(t, "/fr/index", s)
}

func TestFormatEscapesBraces(t *testing.T) {
	s, err := MustNew("/x/{a}").FormatMap(map[string]string{"a": "{b}"})
	assert.NoError(t, err)
	assert.Equal(t, "/x/%7Bb%7D", s)

	s, err = MustNew("/x/{a}", WithEncodeVariables(true)).FormatMap(map[string]string{"a": "{b}"})
	assert.NoError(t, err)
	assert.Equal(t, "/x/%7Bb%7D", s)
}

// TestRoundTrip checks that parsing a formatted template gives back
// the bindings, both for values that are already valid and for
// arbitrary values with encoding on.
func TestRoundTrip(t *testing.T) {
	plain := MustNew("/users/{user}/files/{path}", segments(),
		WithVariable("path", NewVariable(TypeURIPath)))
	for _, bindings := range []map[string]string{
		{"user": "alice", "path": "a/b/c"},
		{"user": "bob.smith", "path": "docs"},
		{"user": "x~y", "path": "p;q=1/r"},
	} {
		s, err := plain.FormatMap(bindings)
		require.NoError(t, err)
		vars, n := plain.ParseMap(s)
		assert.Equal(t, len(s), n)
		assert.Equal(t, bindings, vars)
	}

	encoded := MustNew("/q/{a}/{b}",
		WithDefaultVariable(Variable{Type: TypeURISegment, Required: true, DecodeOnParse: true}),
		WithVariable("b", Variable{Type: TypeURIAll, Required: true, DecodeOnParse: true}),
		WithEncodeVariables(true))
	for _, bindings := range []map[string]string{
		{"a": "hello world", "b": "http://x.org/?q=1&r=2"},
		{"a": "50%", "b": "a+b c/d"},
		{"a": "café", "b": "#frag"},
	} {
		s, err := encoded.FormatMap(bindings)
		require.NoError(t, err)
		assert.NotContains(t, s, "{")
		vars, n := encoded.ParseMap(s)
		assert.Equal(t, len(s), n, s)
		assert.Equal(t, bindings, vars, s)
	}
}
