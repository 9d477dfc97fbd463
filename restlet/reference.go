// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restlet

import (
	"net/url"
	"strconv"
	"strings"
)

// Reference is a URI reference together with an optional base
// reference.  During dispatch, routers extend the base of the
// request's resource reference over the part of the path they have
// already matched, so that the next router only sees the remaining
// part.
//
// A reference parsed from text with unescaped braces, such as
// "riap://component/{rr}", is a URI template.  It keeps that text
// until a template dispatcher formats it; percent-encoded braces are
// ordinary data.
type Reference struct {
	url      *url.URL
	base     *Reference
	template string
}

// ParseReference parses an absolute or relative URI reference, or a
// URI template of one.
func ParseReference(s string) (*Reference, error) {
	if !strings.ContainsAny(s, "{}") {
		u, err := url.Parse(s)
		if err != nil {
			return nil, err
		}
		return &Reference{url: u}, nil
	}
	// url.Parse refuses braces in a host, so fall back to parsing
	// the template with its expressions blanked out.
	u, err := url.Parse(s)
	if err != nil {
		var blankErr error
		if u, blankErr = url.Parse(blankExpressions(s)); blankErr != nil {
			return nil, err
		}
	}
	return &Reference{url: u, template: s}, nil
}

// blankExpressions drops every "{...}" from s.
func blankExpressions(s string) string {
	var b strings.Builder
	depth := 0
	for _, c := range s {
		switch {
		case c == '{':
			depth++
		case c == '}' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// MustParseReference parses a reference and panics on failure.
func MustParseReference(s string) *Reference {
	r, err := ParseReference(s)
	if err != nil {
		panic(err)
	}
	return r
}

// NewReference wraps a parsed URL.  The URL is copied.
func NewReference(u *url.URL) *Reference {
	copied := *u
	return &Reference{url: &copied}
}

// Clone returns a copy of r, including a copy of its base.
func (r *Reference) Clone() *Reference {
	if r == nil {
		return nil
	}
	result := NewReference(r.url)
	result.template = r.template
	if r.base != nil {
		result.base = r.base.Clone()
	}
	return result
}

// URL returns a copy of the underlying URL.
func (r *Reference) URL() *url.URL {
	copied := *r.url
	return &copied
}

// String returns the full reference.  A template reference returns
// its template text.
func (r *Reference) String() string {
	if r == nil {
		return ""
	}
	if r.template != "" {
		return r.template
	}
	return r.url.String()
}

// Template returns the URI template text r was parsed from, or "" if
// r is not a template.
func (r *Reference) Template() string {
	if r == nil {
		return ""
	}
	return r.template
}

// format returns the reference with or without its query, never with
// its fragment.
func (r *Reference) format(query bool) string {
	u := *r.url
	u.Fragment = ""
	u.RawFragment = ""
	if !query {
		u.RawQuery = ""
		u.ForceQuery = false
	}
	return u.String()
}

// Scheme returns the URI scheme in lower case.
func (r *Reference) Scheme() string {
	return strings.ToLower(r.url.Scheme)
}

// Authority returns the host and port.
func (r *Reference) Authority() string {
	return r.url.Host
}

// HostDomain returns the host name without the port.
func (r *Reference) HostDomain() string {
	return r.url.Hostname()
}

// HostPort returns the explicit port, or the scheme's default port, or
// -1.
func (r *Reference) HostPort() int {
	if port := r.url.Port(); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			return n
		}
	}
	return ProtocolForScheme(r.url.Scheme).DefaultPort
}

// Path returns the escaped path.
func (r *Reference) Path() string {
	return r.url.EscapedPath()
}

// SetPath replaces the path.  p is taken to be escaped already.
func (r *Reference) SetPath(p string) {
	unescaped, err := url.PathUnescape(p)
	if err != nil {
		unescaped = p
	}
	r.url.Path = unescaped
	r.url.RawPath = p
	r.template = ""
}

// Query returns the raw query string, without the "?".
func (r *Reference) Query() string {
	return r.url.RawQuery
}

// SetQuery replaces the raw query string.
func (r *Reference) SetQuery(raw string) {
	r.url.RawQuery = raw
	r.template = ""
}

// QueryValues parses the query string.
func (r *Reference) QueryValues() url.Values {
	return r.url.Query()
}

// Fragment returns the fragment.
func (r *Reference) Fragment() string {
	return r.url.Fragment
}

// Base returns the base reference, or nil.
func (r *Reference) Base() *Reference {
	return r.base
}

// SetBase changes the base reference.
func (r *Reference) SetBase(base *Reference) {
	r.base = base
}

// LastSegment returns the last path segment, unescaped.
func (r *Reference) LastSegment() string {
	p := strings.TrimSuffix(r.url.Path, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// Extensions returns the dot-separated extensions of the last path
// segment, so "report.fr.html" gives ["fr", "html"].
func (r *Reference) Extensions() []string {
	parts := strings.Split(r.LastSegment(), ".")
	if len(parts) < 2 {
		return nil
	}
	return parts[1:]
}

// RemainingPart returns the part of r after its base reference.  If r
// has no base or does not start with it, the whole reference is
// returned.  The fragment is never included.
func (r *Reference) RemainingPart(decode, query bool) string {
	all := r.format(query)
	result := all
	if r.base != nil {
		base := r.base.format(false)
		if strings.HasPrefix(all, base) {
			result = all[len(base):]
		}
	}
	if decode {
		if decoded, err := url.PathUnescape(result); err == nil {
			result = decoded
		}
	}
	return result
}

// Resolve resolves a possibly relative reference against r.
func (r *Reference) Resolve(ref string) (*Reference, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	return &Reference{url: r.url.ResolveReference(u)}, nil
}

// Root returns the scheme and authority of an absolute reference, or
// nil for a relative one.
func (r *Reference) Root() *Reference {
	if r.url.Scheme == "" || r.url.Host == "" {
		return nil
	}
	return &Reference{url: &url.URL{Scheme: r.url.Scheme, Host: r.url.Host}}
}

// Identifier returns the reference without its fragment.
func (r *Reference) Identifier() string {
	return r.format(true)
}

// HostIdentifier returns the scheme and authority, such as
// "http://example.com:8182".
func (r *Reference) HostIdentifier() string {
	if root := r.Root(); root != nil {
		return root.String()
	}
	return ""
}

// ExtendBase moves the base reference forward over the first n bytes
// of the remaining part, as computed without the query.
func (r *Reference) ExtendBase(n int) {
	all := r.format(false)
	remaining := r.RemainingPart(false, false)
	if n > len(remaining) {
		n = len(remaining)
	}
	if n < 0 {
		n = 0
	}
	base, err := url.Parse(all[:len(all)-len(remaining)+n])
	if err != nil {
		return
	}
	r.base = &Reference{url: base}
}
