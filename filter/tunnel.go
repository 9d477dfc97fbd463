// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package filter

import (
	"net/url"
	"strings"

	"github.com/diffeo/go-restlet/metadata"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/diffeo/go-restlet/routing"
	"github.com/sirupsen/logrus"
)

// MethodOverrideHeader is the header that can replace the method of a
// POST.
const MethodOverrideHeader = "X-HTTP-Method-Override"

// Tunnel lets clients that cannot set methods or Accept-* headers
// express them in the reference instead.  Query parameters override
// the method and the preferences; trailing file extensions such as
// "report.fr.html" override the preferences and are removed from the
// path.  Recognized parameters are removed from the query.
type Tunnel struct {
	Context *restlet.Context
	Service *metadata.Service

	MethodParam   string
	MediaParam    string
	CharsetParam  string
	EncodingParam string
	LanguageParam string

	// QueryTunnel enables the query parameters.
	QueryTunnel bool
	// ExtensionsTunnel enables file extensions.
	ExtensionsTunnel bool
	// MethodHeader enables X-HTTP-Method-Override.
	MethodHeader bool
}

// NewTunnel creates a tunnel filter with every tunnel enabled.
func NewTunnel(ctx *restlet.Context, service *metadata.Service, next restlet.Handler) *routing.Filter {
	if service == nil {
		service = metadata.NewService()
	}
	return routing.NewFilter(ctx, &Tunnel{
		Context:          ctx,
		Service:          service,
		MethodParam:      "method",
		MediaParam:       "media",
		CharsetParam:     "charset",
		EncodingParam:    "encoding",
		LanguageParam:    "language",
		QueryTunnel:      true,
		ExtensionsTunnel: true,
		MethodHeader:     true,
	}, next)
}

// BeforeHandle rewrites the call and always continues.
func (t *Tunnel) BeforeHandle(req *restlet.Request, resp *restlet.Response) routing.Action {
	if req.ResourceRef == nil {
		return routing.Continue
	}
	if t.MethodHeader && req.Method == restlet.MethodPost {
		if override := req.Headers.Get(MethodOverrideHeader); override != "" {
			req.Method = restlet.ParseMethod(override)
		}
	}
	if t.QueryTunnel && req.ResourceRef.Query() != "" {
		t.queryTunnel(req)
	}
	if t.ExtensionsTunnel {
		t.extensionsTunnel(req)
	}
	return routing.Continue
}

// AfterHandle does nothing.
func (t *Tunnel) AfterHandle(req *restlet.Request, resp *restlet.Response) {}

func (t *Tunnel) queryTunnel(req *restlet.Request) {
	ref := req.ResourceRef
	var kept []string
	for _, pair := range strings.Split(ref.Query(), "&") {
		if pair == "" {
			continue
		}
		key, value := pair, ""
		if i := strings.IndexByte(pair, '='); i >= 0 {
			key, value = pair[:i], pair[i+1:]
		}
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		if !t.applyParam(req, key, value) {
			kept = append(kept, pair)
		}
	}
	ref.SetQuery(strings.Join(kept, "&"))
}

// applyParam returns true if key was a tunnel parameter.
func (t *Tunnel) applyParam(req *restlet.Request, key, value string) bool {
	switch key {
	case "":
		return false
	case t.MethodParam:
		if req.Method == restlet.MethodPost {
			req.Method = restlet.ParseMethod(value)
		}
		return true
	case t.MediaParam:
		if m, ok := t.lookup(value, metadata.MediaTypes); ok {
			req.ClientInfo.MediaTypes = []metadata.Preference{{Metadata: m, Quality: 1.0}}
		}
		return true
	case t.CharsetParam:
		if m, ok := t.lookup(value, metadata.CharacterSets); ok {
			req.ClientInfo.CharacterSets = []metadata.Preference{{Metadata: m, Quality: 1.0}}
		}
		return true
	case t.EncodingParam:
		if m, ok := t.lookup(value, metadata.Encodings); ok {
			req.ClientInfo.Encodings = []metadata.Preference{{Metadata: m, Quality: 1.0}}
		}
		return true
	case t.LanguageParam:
		if m, ok := t.lookup(value, metadata.Languages); ok {
			req.ClientInfo.Languages = []metadata.Preference{{Metadata: m, Quality: 1.0}}
		}
		return true
	}
	return false
}

// lookup resolves a tunneled value, either an extension name such as
// "json" or a full name such as "application/json".
func (t *Tunnel) lookup(value string, kind metadata.Kind) (metadata.Metadata, bool) {
	if m := t.Service.Lookup(value); m != nil && kindOf(m) == kind {
		return m, true
	}
	prefs, errs := metadata.ReadPreferences(kind, value)
	if len(errs) > 0 || len(prefs) != 1 {
		t.Context.Log().WithFields(logrus.Fields{
			"value": value,
			"kind":  kind.Header(),
		}).Warn("Ignoring unrecognized tunnel value")
		return nil, false
	}
	return prefs[0].Metadata, true
}

func kindOf(m metadata.Metadata) metadata.Kind {
	switch m.(type) {
	case metadata.MediaType:
		return metadata.MediaTypes
	case metadata.Language:
		return metadata.Languages
	case metadata.CharacterSet:
		return metadata.CharacterSets
	default:
		return metadata.Encodings
	}
}

func (t *Tunnel) extensionsTunnel(req *restlet.Request) {
	ref := req.ResourceRef
	path := ref.Path()
	slash := strings.LastIndexByte(path, '/')
	segment := path[slash+1:]
	parts := strings.Split(segment, ".")
	if len(parts) < 2 {
		return
	}

	// Consume recognized extensions from the right
	keep := len(parts)
	var found []metadata.Metadata
	for keep > 1 {
		m := t.Service.Lookup(parts[keep-1])
		if m == nil {
			break
		}
		found = append(found, m)
		keep--
	}
	if len(found) == 0 {
		return
	}

	var languages []metadata.Preference
	for _, m := range found {
		pref := metadata.Preference{Metadata: m, Quality: 1.0}
		switch m.(type) {
		case metadata.MediaType:
			req.ClientInfo.MediaTypes = []metadata.Preference{pref}
		case metadata.CharacterSet:
			req.ClientInfo.CharacterSets = []metadata.Preference{pref}
		case metadata.Encoding:
			req.ClientInfo.Encodings = []metadata.Preference{pref}
		case metadata.Language:
			languages = append([]metadata.Preference{pref}, languages...)
		}
	}
	if len(languages) > 0 {
		req.ClientInfo.Languages = languages
	}
	ref.SetPath(path[:slash+1] + strings.Join(parts[:keep], "."))
}
