// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package routing

import (
	"testing"
	"time"

	"github.com/diffeo/go-restlet/metadata"
	"github.com/diffeo/go-restlet/representation"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/diffeo/go-restlet/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallResolver(t *testing.T) {
	req, resp := newCall(t, restlet.MethodPut, "http://example.com:8182/docs/a?x=1#top")
	req.ResourceRef.ExtendBase(len("/docs"))
	req.ClientInfo.Address = "10.0.0.1"
	req.Attributes.Set("user", "alice")
	req.Entity = representation.NewString("text", metadata.TextPlain)
	resp.Status = restlet.StatusCreated

	r := NewCallResolver(req, resp)
	r.Now = func() time.Time { return time.Date(2017, 3, 1, 12, 0, 0, 0, time.UTC) }
	for name, expected := range map[string]string{
		"user": "alice",
		"m":    "PUT",
		"p":    "HTTP",
		"cia":  "10.0.0.1",
		"d":    "Wed, 01 Mar 2017 12:00:00 UTC",
		"r":    "http://example.com:8182/docs/a?x=1#top",
		"rr":   "/a",
		"re":   "/a?x=1",
		"rp":   "/docs/a",
		"rq":   "x=1",
		"rf":   "top",
		"rh":   "http://example.com:8182",
		"ra":   "example.com:8182",
		"rs":   "http",
		"rb":   "http://example.com:8182/docs",
		"o":    "http://example.com:8182",
		"emt":  "text/plain",
		"ecs":  "UTF-8",
		"es":   "4",
		"s":    "201",
	} {
		value, ok := r.Resolve(name)
		if assert.True(t, ok, name) {
			assert.Equal(t, expected, value, name)
		}
	}
	_, ok := r.Resolve("nonsense")
	assert.False(t, ok)
	_, ok = r.Resolve("f")
	assert.False(t, ok)
}

func TestClientRedirect(t *testing.T) {
	router := NewRouter(nil)
	_, err := router.RedirectPermanent("/old", "http://new.example.com/new{rr}")
	require.NoError(t, err)

	// the router infers StartsWith only for prefix handlers, so the
	// redirector route must be told
	redirector, err := NewRedirector(nil, "/v2{rr}", ClientSeeOther)
	require.NoError(t, err)
	_, err = router.Attach("/v1", redirector, MatchMode(template.StartsWith))
	require.NoError(t, err)

	_, resp := dispatch(t, router, "http://example.com/old")
	assert.Equal(t, restlet.StatusMovedPermanently, resp.Status)
	assert.Equal(t, "http://new.example.com/new", resp.LocationRef.String())

	_, resp = dispatch(t, router, "http://example.com/v1/things/3")
	assert.Equal(t, restlet.StatusSeeOther, resp.Status)
	assert.Equal(t, "http://example.com/v2/things/3", resp.LocationRef.String())
}

func TestServerRedirect(t *testing.T) {
	inner := NewRouter(nil)
	inner.MustAttach("/target/{id}", named("target"))

	ctx := restlet.NewContext(nil)
	ctx.ServerDispatcher = inner
	redirector, err := NewRedirector(ctx, "http://example.com/target/{id}", ServerInbound)
	require.NoError(t, err)

	router := NewRouter(ctx)
	router.MustAttach("/alias/{id}", redirector)
	req, resp := dispatch(t, router, "http://example.com/alias/7")
	assert.Equal(t, "target", handledBy(resp))
	assert.Equal(t, "http://example.com/target/7", req.ResourceRef.String())

	// no outbound dispatcher configured
	outbound, err := NewRedirector(ctx, "http://example.com/target/1", ServerOutbound)
	require.NoError(t, err)
	_, resp = dispatch(t, outbound, "http://example.com/alias/1")
	assert.Equal(t, 500, resp.Status.Code)
}

func TestRedirectorOptionalVariable(t *testing.T) {
	redirector, err := NewRedirector(nil, "/to/{missing}", ClientFound)
	require.NoError(t, err)
	_, resp := dispatch(t, redirector, "http://example.com/x")
	assert.Equal(t, "", resp.Attributes.GetString("handler"))
	assert.Equal(t, restlet.StatusFound, resp.Status)
	assert.Equal(t, "http://example.com/to/", resp.LocationRef.String())
}
