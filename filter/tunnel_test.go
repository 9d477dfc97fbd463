// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package filter

import (
	"testing"

	"github.com/diffeo/go-restlet/metadata"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/stretchr/testify/assert"
)

// captured remembers the request its handler saw.
type captured struct {
	req *restlet.Request
}

func (c *captured) Handle(req *restlet.Request, resp *restlet.Response) {
	c.req = req
}

func tunnel(t *testing.T, method restlet.Method, uri string) (*restlet.Request, *captured) {
	ctx, _, _ := testContext()
	target := &captured{}
	f := NewTunnel(ctx, nil, target)
	req, resp := newCall(t, method, uri)
	f.Handle(req, resp)
	return req, target
}

func TestTunnelMethodQuery(t *testing.T) {
	req, target := tunnel(t, restlet.MethodPost, "http://example.com/items?method=DELETE&x=1")
	assert.Equal(t, req, target.req)
	assert.Equal(t, restlet.MethodDelete, req.Method)
	assert.Equal(t, "x=1", req.ResourceRef.Query())

	// Only POST can be tunneled, but the parameter is still consumed
	req, _ = tunnel(t, restlet.MethodGet, "http://example.com/items?method=DELETE")
	assert.Equal(t, restlet.MethodGet, req.Method)
	assert.Equal(t, "", req.ResourceRef.Query())
}

func TestTunnelMethodHeader(t *testing.T) {
	ctx, _, _ := testContext()
	f := NewTunnel(ctx, nil, &captured{})
	req, resp := newCall(t, restlet.MethodPost, "http://example.com/items")
	req.Headers.Set(MethodOverrideHeader, "put")
	f.Handle(req, resp)
	assert.Equal(t, restlet.MethodPut, req.Method)
}

func TestTunnelPreferenceQuery(t *testing.T) {
	req, _ := tunnel(t, restlet.MethodGet, "http://example.com/doc?media=json&language=fr&charset=utf8&b=2")
	assert.Equal(t, []metadata.Preference{{Metadata: metadata.ApplicationJSON, Quality: 1.0}}, req.ClientInfo.MediaTypes)
	assert.Equal(t, []metadata.Preference{{Metadata: metadata.French, Quality: 1.0}}, req.ClientInfo.Languages)
	assert.Equal(t, []metadata.Preference{{Metadata: metadata.UTF8, Quality: 1.0}}, req.ClientInfo.CharacterSets)
	assert.Equal(t, "b=2", req.ResourceRef.Query())

	req, _ = tunnel(t, restlet.MethodGet, "http://example.com/doc?media=application%2Fxml")
	if assert.Len(t, req.ClientInfo.MediaTypes, 1) {
		assert.Equal(t, "application/xml", req.ClientInfo.MediaTypes[0].Metadata.Name())
	}
}

func TestTunnelExtensions(t *testing.T) {
	req, _ := tunnel(t, restlet.MethodGet, "http://example.com/docs/report.fr.html")
	assert.Equal(t, "/docs/report", req.ResourceRef.Path())
	assert.Equal(t, []metadata.Preference{{Metadata: metadata.TextHTML, Quality: 1.0}}, req.ClientInfo.MediaTypes)
	assert.Equal(t, []metadata.Preference{{Metadata: metadata.French, Quality: 1.0}}, req.ClientInfo.Languages)

	// Unknown extensions are left alone
	req, _ = tunnel(t, restlet.MethodGet, "http://example.com/docs/report.2017")
	assert.Equal(t, "/docs/report.2017", req.ResourceRef.Path())
	assert.Equal(t, restlet.DefaultPreferences().MediaTypes, req.ClientInfo.MediaTypes)

	// A bare extension-looking name keeps at least one part
	req, _ = tunnel(t, restlet.MethodGet, "http://example.com/json")
	assert.Equal(t, "/json", req.ResourceRef.Path())
}
