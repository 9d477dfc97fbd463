// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package httpconn

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/diffeo/go-restlet/metadata"
	"github.com/diffeo/go-restlet/representation"
	"github.com/diffeo/go-restlet/restlet"
)

// modeledHeaders are written from call fields rather than copied
// from the raw header map.
var modeledHeaders = map[string]bool{
	"Accept":              true,
	"Accept-Charset":      true,
	"Accept-Encoding":     true,
	"Accept-Language":     true,
	"Allow":               true,
	"Authorization":       true,
	"Content-Disposition": true,
	"Content-Encoding":    true,
	"Content-Language":    true,
	"Content-Length":      true,
	"Content-Type":        true,
	"Cookie":              true,
	"Host":                true,
	"Location":            true,
	"Referer":             true,
	"Retry-After":         true,
	"Server":              true,
	"Transfer-Encoding":   true,
	"User-Agent":          true,
}

// copyHeaders copies raw headers not otherwise modeled.
func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		if modeledHeaders[http.CanonicalHeaderKey(name)] {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

// splitList splits a comma-separated header.
func splitList(values []string) []string {
	var result []string
	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				result = append(result, item)
			}
		}
	}
	return result
}

// readVariant reads the Content-* headers.
func readVariant(h http.Header) (metadata.Variant, *representation.Disposition) {
	var v metadata.Variant
	if ct := h.Get("Content-Type"); ct != "" {
		if mt, cs, err := metadata.ParseContentType(ct); err == nil {
			v.MediaType, v.CharacterSet = mt, cs
		}
	}
	for _, tag := range splitList(h["Content-Language"]) {
		if lang, err := metadata.ParseLanguage(tag); err == nil {
			v.Languages = append(v.Languages, lang)
		}
	}
	for _, name := range splitList(h["Content-Encoding"]) {
		v.Encodings = append(v.Encodings, metadata.NewEncoding(name))
	}
	var disposition *representation.Disposition
	if cd := h.Get("Content-Disposition"); cd != "" {
		if d, err := representation.ParseDisposition(cd); err == nil {
			disposition = d
		}
	}
	return v, disposition
}

// writeEntityHeaders writes the Content-* headers of an entity.
func writeEntityHeaders(h http.Header, rep representation.Representation) {
	v := rep.Variant()
	if !v.MediaType.IsZero() {
		h.Set("Content-Type", metadata.ContentType(v.MediaType, v.CharacterSet))
	}
	if len(v.Languages) > 0 {
		tags := make([]string, len(v.Languages))
		for i, lang := range v.Languages {
			tags[i] = lang.Name()
		}
		h.Set("Content-Language", strings.Join(tags, ", "))
	}
	var encodings []string
	for _, enc := range v.Encodings {
		if !enc.Equals(metadata.Identity) {
			encodings = append(encodings, enc.Name())
		}
	}
	if len(encodings) > 0 {
		h.Set("Content-Encoding", strings.Join(encodings, ", "))
	}
	if size := rep.Size(); size >= 0 {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
	}
	if d := rep.Disposition(); d != nil {
		if s := d.Format(); s != "" {
			h.Set("Content-Disposition", s)
		}
	}
}

// writeAcceptHeaders writes the client's preferences, leaving out
// the ones equal to an absent header.
func writeAcceptHeaders(h http.Header, prefs metadata.Preferences) {
	defaults := restlet.DefaultPreferences()
	for _, item := range []struct {
		name          string
		prefs, absent []metadata.Preference
	}{
		{"Accept", prefs.MediaTypes, defaults.MediaTypes},
		{"Accept-Language", prefs.Languages, defaults.Languages},
		{"Accept-Charset", prefs.CharacterSets, defaults.CharacterSets},
		{"Accept-Encoding", prefs.Encodings, defaults.Encodings},
	} {
		s := metadata.FormatPreferences(item.prefs)
		if s != "" && s != metadata.FormatPreferences(item.absent) {
			h.Set(item.name, s)
		}
	}
}

func formatMethods(methods []restlet.Method) string {
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

func parseMethods(values []string) []restlet.Method {
	var result []restlet.Method
	for _, item := range splitList(values) {
		result = append(result, restlet.ParseMethod(item))
	}
	return result
}

// formatRetryAfter rounds up to whole seconds.
func formatRetryAfter(d time.Duration) string {
	return strconv.FormatInt(int64(math.Ceil(d.Seconds())), 10)
}

// parseRetryAfter reads delta-seconds or an HTTP date relative to
// now.
func parseRetryAfter(s string, now time.Time) time.Duration {
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second
	}
	if t, err := http.ParseTime(s); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
