// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restlet

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceRemainingPart(t *testing.T) {
	req, err := NewRequest(MethodGet, "http://example.com:8182/items/a%20b?x=1#frag")
	require.NoError(t, err)
	ref := req.ResourceRef
	assert.Equal(t, "http://example.com:8182", ref.Base().String())
	assert.Equal(t, "/items/a%20b", ref.RemainingPart(false, false))
	assert.Equal(t, "/items/a%20b?x=1", ref.RemainingPart(false, true))
	assert.Equal(t, "/items/a b", ref.RemainingPart(true, false))

	ref.SetBase(MustParseReference("http://example.com:8182/items"))
	assert.Equal(t, "/a%20b", ref.RemainingPart(false, false))

	// A base that is not a prefix leaves the whole reference
	ref.SetBase(MustParseReference("http://other.com"))
	assert.Equal(t, "http://example.com:8182/items/a%20b", ref.RemainingPart(false, false))

	assert.Equal(t, 8182, ref.HostPort())
	assert.Equal(t, "example.com", ref.HostDomain())
}

func TestReferenceRelative(t *testing.T) {
	req, err := NewRequest(MethodGet, "/items")
	require.NoError(t, err)
	assert.Nil(t, req.ResourceRef.Base())
	assert.Equal(t, "/items", req.ResourceRef.RemainingPart(false, false))
	assert.True(t, req.EffectiveProtocol().IsZero())
}

func TestReferenceTemplate(t *testing.T) {
	ref := MustParseReference("riap://component/{rr}")
	assert.Equal(t, "riap://component/{rr}", ref.Template())
	assert.Equal(t, "riap://component/{rr}", ref.String())
	assert.Equal(t, "riap", ref.Scheme())
	assert.Equal(t, "riap://component/{rr}", ref.Clone().Template())

	host := MustParseReference("http://{m}.example.com/x")
	assert.Equal(t, "http://{m}.example.com/x", host.Template())
	assert.Equal(t, "http", host.Scheme())

	// Percent-encoded braces are data
	encoded := MustParseReference("http://example.com/a%7Bb%7D?q=%7Bjson%7D")
	assert.Equal(t, "", encoded.Template())
	assert.Equal(t, "http://example.com/a%7Bb%7D?q=%7Bjson%7D", encoded.String())

	ref.SetQuery("x=1")
	assert.Equal(t, "", ref.Template())
}

func TestReferenceExtensions(t *testing.T) {
	ref := MustParseReference("http://example.com/docs/report.fr.html")
	assert.Equal(t, []string{"fr", "html"}, ref.Extensions())
	assert.Equal(t, "report.fr.html", ref.LastSegment())
	assert.Nil(t, MustParseReference("/docs/").Extensions())
}

func TestEffectiveProtocol(t *testing.T) {
	req, err := NewRequest(MethodGet, "RIAP://component/x")
	require.NoError(t, err)
	assert.Equal(t, RIAP, req.EffectiveProtocol())

	req.Protocol = HTTP
	assert.Equal(t, HTTP, req.EffectiveProtocol())

	assert.Equal(t, CBORRPC, ProtocolForName("cbor-rpc"))
	assert.Equal(t, -1, ProtocolForScheme("gopher").DefaultPort)
}

func TestAttributesOrder(t *testing.T) {
	var a Attributes
	a.Set("b", 1)
	a.Set("a", "two")
	a.Set("c", 3)
	a.Set("b", 4)
	assert.Equal(t, []string{"b", "a", "c"}, a.Keys())
	assert.Equal(t, "4", a.GetString("b"))
	a.Delete("a")
	assert.Equal(t, []string{"b", "c"}, a.Keys())
	assert.False(t, a.Has("a"))
	assert.Equal(t, 2, a.Len())

	var seen []string
	a.Range(func(k string, v interface{}) bool {
		seen = append(seen, k)
		return false
	})
	assert.Equal(t, []string{"b"}, seen)
}

func TestStatusTable(t *testing.T) {
	assert.Equal(t, "Too Many Requests", StatusFor(429).Reason)
	assert.Equal(t, StatusConnectorInternal, StatusFor(1002))
	assert.Equal(t, "I'm a teapot", StatusFor(418).Reason)
	assert.Equal(t, 599, StatusFor(599).Code)

	assert.True(t, StatusTooManyRequests.IsClientError())
	assert.True(t, StatusTooManyRequests.IsRecoverableError())
	assert.True(t, StatusConnectorConnection.IsConnectorError())
	assert.True(t, StatusConnectorConnection.IsError())
	assert.False(t, StatusNotFound.IsRecoverableError())
	assert.Equal(t, http.StatusServiceUnavailable, StatusConnectorConnection.HTTPStatus())
	assert.Equal(t, http.StatusBadGateway, StatusConnectorCommunication.HTTPStatus())
	assert.Equal(t, "404 Not Found", StatusNotFound.String())
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, StatusOK, StatusOf(nil))
	assert.Equal(t, 500, StatusOf(errors.New("x")).Code)
	assert.Equal(t, 409, StatusOf(NewStatusError(StatusConflict, "exists")).Code)
	assert.Equal(t, 1002, StatusOf(ErrUnsupportedProtocol{Protocol: SQL}).Code)
	assert.Equal(t, 1002, StatusOf(ConfigError{Err: ErrUnsupportedProtocol{}}).Code)
	assert.Equal(t, 500, StatusOf(ConfigError{Err: ErrMissingProtocol}).Code)

	s := StatusOf(NewStatusError(StatusConflict, "exists"))
	assert.Equal(t, "exists", s.Description)
}

func TestServerInfoOnce(t *testing.T) {
	req, err := NewRequest(MethodGet, "http://example.com/")
	require.NoError(t, err)
	resp := NewResponse(req)
	calls := 0
	resp.OnServerInfo(func(info *ServerInfo) {
		calls++
		info.Address = "127.0.0.1"
		info.Port = 8182
	})
	assert.Equal(t, "127.0.0.1", resp.ServerInfo().Address)
	assert.Equal(t, 8182, resp.ServerInfo().Port)
	assert.Equal(t, DefaultAgent, resp.ServerInfo().Agent)
	assert.Equal(t, 1, calls)
}

func TestResponseSetError(t *testing.T) {
	resp := NewResponse(nil)
	assert.Equal(t, StatusOK, resp.Status)
	err := NewStatusError(StatusGone, "deleted")
	resp.SetError(err)
	assert.Equal(t, 410, resp.Status.Code)
	assert.Equal(t, err, resp.Err)
	resp.SetStatus(StatusOK)
	assert.NoError(t, resp.Err)
}

func TestContextDefaults(t *testing.T) {
	var c *Context
	assert.NotNil(t, c.Log())
	assert.NotNil(t, c.Time())
	_, ok := c.Parameter("x")
	assert.False(t, ok)

	child := NewContext(nil).Child(map[string]interface{}{"app": "demo"})
	assert.Equal(t, "demo", child.Log().Data["app"])
}

func TestReferenceExtendBase(t *testing.T) {
	req, err := NewRequest(MethodGet, "http://example.com/users/alice/files?x=1")
	require.NoError(t, err)
	ref := req.ResourceRef
	ref.ExtendBase(len("/users"))
	assert.Equal(t, "http://example.com/users", ref.Base().String())
	assert.Equal(t, "/alice/files", ref.RemainingPart(false, false))
	ref.ExtendBase(len("/alice"))
	assert.Equal(t, "/files?x=1", ref.RemainingPart(false, true))
	ref.ExtendBase(100)
	assert.Equal(t, "", ref.RemainingPart(false, false))
	assert.Equal(t, "http://example.com", ref.HostIdentifier())
	assert.Equal(t, "http://example.com/users/alice/files?x=1", ref.Identifier())
}
