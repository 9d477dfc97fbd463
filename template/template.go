// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package template implements URI templates: patterns such as
// "/accounts/{username}/bookmarks/{URI}" whose variables are typed by
// the characters they may capture.  A Template can match a string,
// extract variable values from it, or format a string from variable
// values.
package template

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// Mode selects how much of a string a template must match.
type Mode int

const (
	// StartsWith matches a prefix of the string.
	StartsWith Mode = 1
	// Equals matches the whole string.
	Equals Mode = 2
)

func (m Mode) String() string {
	switch m {
	case StartsWith:
		return "startsWith"
	case Equals:
		return "equals"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// SyntaxError is returned from New for a malformed pattern.
type SyntaxError struct {
	Pattern string
	Offset  int
	Problem string
}

func (e SyntaxError) Error() string {
	return fmt.Sprintf("template %q: %s at offset %d", e.Pattern, e.Problem, e.Offset)
}

// ErrUnboundVariable is returned from Format when a required variable
// has neither a value nor a default.
type ErrUnboundVariable struct {
	Name string
}

func (e ErrUnboundVariable) Error() string {
	return fmt.Sprintf("no value for template variable %q", e.Name)
}

// HTTPStatus returns a fixed 500 Internal Server Error code.
func (e ErrUnboundVariable) HTTPStatus() int {
	return http.StatusInternalServerError
}

type token struct {
	literal string
	name    string
	offset  int
}

func (t token) isVariable() bool {
	return t.name != ""
}

// Template is a compiled URI template.  It is immutable and safe for
// concurrent use.
type Template struct {
	pattern         string
	mode            Mode
	defaultVariable Variable
	variables       map[string]Variable
	encodeVariables bool

	tokens []token
	regex  *regexp.Regexp
	// groups names the variable behind each capture group
	groups []string
	names  []string
}

// Option configures a Template.
type Option func(*Template)

// WithMode sets the matching mode.  The default is Equals.
func WithMode(mode Mode) Option {
	return func(t *Template) {
		t.mode = mode
	}
}

// WithDefaultVariable sets the description of variables not named
// by WithVariable.  The default is a required TypeAll variable.
func WithDefaultVariable(v Variable) Option {
	return func(t *Template) {
		t.defaultVariable = v
	}
}

// WithVariable describes one named variable.
func WithVariable(name string, v Variable) Option {
	return func(t *Template) {
		t.variables[name] = v
	}
}

// WithVariables describes several named variables.
func WithVariables(vars map[string]Variable) Option {
	return func(t *Template) {
		for name, v := range vars {
			t.variables[name] = v
		}
	}
}

// WithEncodeVariables percent-encodes every value when formatting.
func WithEncodeVariables(encode bool) Option {
	return func(t *Template) {
		t.encodeVariables = encode
	}
}

// New compiles a template.  Unbalanced or nested braces, empty or
// malformed variable names, and two variables with no literal text
// between them are all errors.
func New(pattern string, opts ...Option) (*Template, error) {
	t := &Template{
		pattern:         pattern,
		mode:            Equals,
		defaultVariable: NewVariable(TypeAll),
		variables:       make(map[string]Variable),
	}
	for _, opt := range opts {
		opt(t)
	}

	var err error
	t.tokens, err = tokenize(pattern)
	if err != nil {
		return nil, err
	}

	var re strings.Builder
	re.WriteString("^")
	seen := make(map[string]bool)
	for _, tok := range t.tokens {
		if !tok.isVariable() {
			re.WriteString(regexp.QuoteMeta(tok.literal))
			continue
		}
		re.WriteString(t.Variable(tok.name).regex())
		t.groups = append(t.groups, tok.name)
		if !seen[tok.name] {
			seen[tok.name] = true
			t.names = append(t.names, tok.name)
		}
	}
	if t.mode == Equals {
		re.WriteString("$")
	}
	t.regex, err = regexp.Compile(re.String())
	if err != nil {
		return nil, SyntaxError{Pattern: pattern, Problem: err.Error()}
	}
	return t, nil
}

// MustNew compiles a template and panics on failure.
func MustNew(pattern string, opts ...Option) *Template {
	t, err := New(pattern, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func isNameChar(r rune) bool {
	return r == '_' || r == '-' || r == '.' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func tokenize(pattern string) ([]token, error) {
	var tokens []token
	fail := func(offset int, problem string) ([]token, error) {
		return nil, SyntaxError{Pattern: pattern, Offset: offset, Problem: problem}
	}
	literalStart := 0
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '}':
			return fail(i, "unbalanced braces")
		case '{':
			end := strings.IndexByte(pattern[i+1:], '}')
			if end < 0 {
				return fail(i, "unbalanced braces")
			}
			end += i + 1
			name := pattern[i+1 : end]
			if name == "" {
				return fail(i, "empty variable name")
			}
			for j, r := range name {
				if r == '{' {
					return fail(i+1+j, "unbalanced braces")
				}
				if !isNameChar(r) {
					return fail(i+1+j, fmt.Sprintf("invalid character %q in variable name", r))
				}
			}
			if literalStart < i {
				tokens = append(tokens, token{literal: pattern[literalStart:i], offset: literalStart})
			} else if len(tokens) > 0 && tokens[len(tokens)-1].isVariable() {
				return fail(i, "adjacent variables with no separator")
			}
			tokens = append(tokens, token{name: name, offset: i})
			i = end
			literalStart = end + 1
		}
	}
	if literalStart < len(pattern) {
		tokens = append(tokens, token{literal: pattern[literalStart:], offset: literalStart})
	}
	return tokens, nil
}

// Pattern returns the source pattern.
func (t *Template) Pattern() string {
	return t.pattern
}

func (t *Template) String() string {
	return t.pattern
}

// Mode returns the matching mode.
func (t *Template) Mode() Mode {
	return t.mode
}

// VariableNames returns the distinct variable names in the order
// they first appear.
func (t *Template) VariableNames() []string {
	return append([]string(nil), t.names...)
}

// Variable returns the description of a named variable.
func (t *Template) Variable(name string) Variable {
	if v, ok := t.variables[name]; ok {
		return v
	}
	return t.defaultVariable
}

// MatchResult is the outcome of a successful Parse.
type MatchResult struct {
	// Length is the number of bytes of the input that matched.
	Length int
	// Variables maps variable names to captured values.
	Variables map[string]string
	names     []string
}

// Names returns the captured variable names in pattern order.
func (m MatchResult) Names() []string {
	return append([]string(nil), m.names...)
}

// Parse matches s and extracts its variables.  A variable that
// appears more than once must capture the same text each time.
func (t *Template) Parse(s string) (MatchResult, bool) {
	loc := t.regex.FindStringSubmatchIndex(s)
	if loc == nil {
		return MatchResult{}, false
	}
	result := MatchResult{
		Length:    loc[1],
		Variables: make(map[string]string, len(t.names)),
		names:     t.names,
	}
	raw := make(map[string]string, len(t.names))
	for i, name := range t.groups {
		start, end := loc[2*i+2], loc[2*i+3]
		var value string
		if start >= 0 {
			value = s[start:end]
		}
		if previous, repeated := raw[name]; repeated {
			if previous != value {
				return MatchResult{}, false
			}
			continue
		}
		raw[name] = value
		v := t.Variable(name)
		if v.DecodeOnParse {
			value = v.decode(value)
		}
		result.Variables[name] = value
	}
	return result, true
}

// ParseMap is Parse returning only the variables and the matched
// length, which is -1 if s does not match.
func (t *Template) ParseMap(s string) (map[string]string, int) {
	m, ok := t.Parse(s)
	if !ok {
		return nil, -1
	}
	return m.Variables, m.Length
}

// Match returns the number of bytes of s matched, or -1.
func (t *Template) Match(s string) int {
	m, ok := t.Parse(s)
	if !ok {
		return -1
	}
	return m.Length
}

// Resolver supplies variable values when formatting.
type Resolver interface {
	// Resolve returns the value of a variable and whether it has
	// one.
	Resolve(name string) (string, bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(name string) (string, bool)

// Resolve calls f(name).
func (f ResolverFunc) Resolve(name string) (string, bool) {
	return f(name)
}

// MapResolver resolves variables from a map.
type MapResolver map[string]string

// Resolve looks name up in the map.
func (m MapResolver) Resolve(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// escapeBraces keeps formatted values from reading as template
// expressions.
var escapeBraces = strings.NewReplacer("{", "%7B", "}", "%7D")

// Format substitutes values from r into the template.  Unbound
// variables use their default value; a required variable with no
// default is an ErrUnboundVariable.  Braces in values are always
// percent-encoded, so the result is never itself a template.
func (t *Template) Format(r Resolver) (string, error) {
	var b strings.Builder
	for _, tok := range t.tokens {
		if !tok.isVariable() {
			b.WriteString(tok.literal)
			continue
		}
		v := t.Variable(tok.name)
		value, ok := "", false
		if !v.Fixed && r != nil {
			value, ok = r.Resolve(tok.name)
		}
		if !ok || value == "" {
			switch {
			case v.DefaultValue != "":
				value = v.DefaultValue
			case v.Required && !ok:
				return "", ErrUnboundVariable{Name: tok.name}
			}
		}
		if v.EncodeOnFormat || t.encodeVariables {
			value = v.encode(value)
		}
		b.WriteString(escapeBraces.Replace(value))
	}
	return b.String(), nil
}

// FormatMap formats with values from a map.
func (t *Template) FormatMap(values map[string]string) (string, error) {
	return t.Format(MapResolver(values))
}
