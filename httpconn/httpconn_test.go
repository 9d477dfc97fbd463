// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package httpconn

import (
	"context"
	"io/ioutil"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/diffeo/go-restlet/connector"
	"github.com/diffeo/go-restlet/metadata"
	"github.com/diffeo/go-restlet/representation"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// echo answers with what it was sent.
type echo struct {
	lock sync.Mutex
	req  *restlet.Request
}

func (e *echo) last() *restlet.Request {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.req
}

func (e *echo) Handle(req *restlet.Request, resp *restlet.Response) {
	e.lock.Lock()
	e.req = req
	e.lock.Unlock()
	switch req.ResourceRef.Path() {
	case "/missing":
		resp.SetStatus(restlet.StatusNotFound)
		resp.AllowedMethods = []restlet.Method{restlet.MethodGet, restlet.MethodPut}
		return
	case "/slow":
		resp.SetStatus(restlet.StatusServiceUnavailable)
		resp.RetryAfter = 1500 * time.Millisecond
		return
	case "/moved":
		resp.Redirect(restlet.MustParseReference("/elsewhere"), restlet.StatusSeeOther)
		return
	case "/panic":
		panic("boom")
	}
	body := string(req.Method) + " " + req.ResourceRef.String()
	if req.Entity != nil {
		text, err := representation.Text(req.Context(), req.Entity)
		if err != nil {
			resp.SetError(err)
			return
		}
		body += "\n" + text
	}
	rep := representation.NewString(body, metadata.TextPlain)
	rep.Metadata.Languages = []metadata.Language{metadata.French}
	rep.SetDisposition(representation.NewAttachment("echo.txt"))
	resp.Entity = rep
	resp.Headers.Set("X-Echo", "yes")
}

type HTTPSuite struct {
	suite.Suite
	target   *echo
	registry *connector.Registry
	server   *connector.Server
	client   *connector.Client
	base     string
}

func (s *HTTPSuite) SetupTest() {
	s.target = &echo{}
	s.registry = connector.NewRegistry()
	Register(s.registry)
	s.registry.RegisterAuthenticator(connector.Basic{})

	s.server = connector.NewServer(nil, s.registry, restlet.HTTP, "127.0.0.1", 0, s.target)
	s.server.Parameters["metrics"] = true
	s.Require().NoError(s.server.Start())
	s.base = "http://" + s.server.BoundAddress()

	s.client = connector.NewClient(nil, s.registry, restlet.HTTP)
	s.Require().NoError(s.client.Start())
}

func (s *HTTPSuite) TearDownTest() {
	s.NoError(s.client.Stop())
	s.NoError(s.server.Stop())
}

func (s *HTTPSuite) call(method restlet.Method, path string) (*restlet.Request, *restlet.Response) {
	req, err := restlet.NewRequest(method, s.base+path)
	s.Require().NoError(err)
	resp := restlet.NewResponse(req)
	s.client.Handle(req, resp)
	return req, resp
}

func (s *HTTPSuite) TestGet() {
	_, resp := s.call(restlet.MethodGet, "/things?x=1")
	s.Equal(restlet.StatusOK, resp.Status)
	s.Require().NotNil(resp.Entity)
	v := resp.Entity.Variant()
	s.Equal("text/plain", v.MediaType.Name())
	s.Equal(metadata.UTF8, v.CharacterSet)
	s.Equal([]metadata.Language{metadata.French}, v.Languages)
	s.Equal("echo.txt", resp.Entity.Disposition().Filename())
	s.Equal("yes", resp.Headers.Get("X-Echo"))
	s.Equal(restlet.DefaultAgent, resp.ServerInfo().Agent)

	text, err := representation.Text(context.Background(), resp.Entity)
	s.NoError(err)
	s.Equal("GET "+s.base+"/things?x=1", text)

	s.Require().NotNil(s.target.last())
	s.NotEmpty(s.target.last().ID)
	s.Equal(restlet.HTTP, s.target.last().Protocol)
	s.Equal("127.0.0.1", s.target.last().ClientInfo.Address)
	s.Equal("/things", s.target.last().ResourceRef.RemainingPart(false, false))
}

func (s *HTTPSuite) TestPostEntity() {
	req, err := restlet.NewRequest(restlet.MethodPost, s.base+"/things")
	s.Require().NoError(err)
	req.Entity = representation.NewString("hello", metadata.TextPlain)
	req.ClientInfo.MediaTypes = metadata.ParseMediaTypes("text/plain, application/json;q=0.5")
	req.ID = "fixed-id"
	resp := restlet.NewResponse(req)
	s.client.Handle(req, resp)
	s.Equal(restlet.StatusOK, resp.Status)
	text, err := representation.Text(context.Background(), resp.Entity)
	s.NoError(err)
	s.Equal("POST "+s.base+"/things\nhello", text)

	seen := s.target.last()
	s.Equal("fixed-id", seen.ID)
	s.Equal("text/plain, application/json;q=0.5", metadata.FormatPreferences(seen.ClientInfo.MediaTypes))
}

func (s *HTTPSuite) TestStatusHeaders() {
	_, resp := s.call(restlet.MethodGet, "/missing")
	s.Equal(restlet.StatusNotFound, resp.Status)
	s.Equal([]restlet.Method{restlet.MethodGet, restlet.MethodPut}, resp.AllowedMethods)

	_, resp = s.call(restlet.MethodGet, "/slow")
	s.Equal(restlet.StatusServiceUnavailable, resp.Status)
	s.Equal(2*time.Second, resp.RetryAfter)

	_, resp = s.call(restlet.MethodGet, "/moved")
	s.Equal(restlet.StatusSeeOther, resp.Status)
	s.Require().NotNil(resp.LocationRef)
	s.Equal(s.base+"/elsewhere", resp.LocationRef.String())
}

func (s *HTTPSuite) TestPanicRecovered() {
	_, resp := s.call(restlet.MethodGet, "/panic")
	s.Equal(restlet.StatusInternalServerError, resp.Status)
	if resp.Entity != nil {
		resp.Entity.Release()
	}
}

func (s *HTTPSuite) TestHead() {
	_, resp := s.call(restlet.MethodHead, "/things")
	s.Equal(restlet.StatusOK, resp.Status)
	s.Nil(resp.Entity)
}

func (s *HTTPSuite) TestMetrics() {
	hr, err := http.Get(s.base + "/metrics")
	s.Require().NoError(err)
	defer hr.Body.Close()
	body, err := ioutil.ReadAll(hr.Body)
	s.NoError(err)
	s.Equal(http.StatusOK, hr.StatusCode)
	s.Contains(string(body), "go_goroutines")
	s.Nil(s.target.last())
}

func (s *HTTPSuite) TestCredentials() {
	req, err := restlet.NewRequest(restlet.MethodGet, s.base+"/secret")
	s.Require().NoError(err)
	req.Attributes.Set(connector.CredentialsAttribute, &connector.Credentials{Scheme: "Basic", Identifier: "jo", Secret: "pw"})
	resp := restlet.NewResponse(req)
	s.client.Handle(req, resp)
	s.Equal(restlet.StatusOK, resp.Status)
	resp.Entity.Release()

	v, ok := s.target.last().Attributes.Get(connector.CredentialsAttribute)
	s.True(ok)
	s.Equal(&connector.Credentials{Scheme: "Basic", Identifier: "jo", Secret: "pw"}, v)
}

func TestHTTPSuite(t *testing.T) {
	suite.Run(t, new(HTTPSuite))
}

func TestConnectionRefused(t *testing.T) {
	// Find a port nobody listens on
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	registry := connector.NewRegistry()
	Register(registry)
	client := connector.NewClient(nil, registry, restlet.HTTP)
	require.NoError(t, client.Start())
	req, err := restlet.NewRequest(restlet.MethodGet, "http://"+addr+"/")
	require.NoError(t, err)
	resp := restlet.NewResponse(req)
	client.Handle(req, resp)
	assert.Equal(t, restlet.StatusConnectorConnection.Code, resp.Status.Code)
	assert.True(t, resp.Status.IsRecoverableError())
	assert.Error(t, resp.Err)
}

func TestWriteResponseNoContent(t *testing.T) {
	req, err := restlet.NewRequest(restlet.MethodDelete, "http://example.com/x")
	require.NoError(t, err)
	resp := restlet.NewResponse(req)
	resp.SetStatus(restlet.StatusNoContent)
	resp.Entity = representation.NewString("ignored", metadata.TextPlain)

	w := httptest.NewRecorder()
	require.NoError(t, WriteResponse(w, req, resp))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "", w.Body.String())
	assert.Equal(t, restlet.DefaultAgent, w.Header().Get("Server"))
}

func TestToRequest(t *testing.T) {
	server := connector.NewServer(nil, nil, restlet.HTTP, "", 0, nil)
	helper, err := NewServerHelper(server)
	require.NoError(t, err)

	r := httptest.NewRequest("PUT", "http://example.com:8182/a/b?c=d", strings.NewReader(`{"a":1}`))
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	r.Header.Set("Content-Encoding", "gzip")
	r.Header.Set("Accept-Language", "fr, en;q=0.5")
	r.Header.Set("X-Custom", "1")
	req := helper.(*ServerHelper).ToRequest(r)

	assert.Equal(t, restlet.MethodPut, req.Method)
	assert.Equal(t, "http://example.com:8182/a/b?c=d", req.ResourceRef.String())
	assert.Equal(t, "http://example.com:8182", req.RootRef.String())
	assert.Equal(t, "fr, en;q=0.5", metadata.FormatPreferences(req.ClientInfo.Languages))
	assert.Equal(t, "1", req.Headers.Get("X-Custom"))
	require.NotNil(t, req.Entity)
	v := req.Entity.Variant()
	assert.True(t, v.MediaType.Equals(metadata.ApplicationJSON))
	assert.Equal(t, metadata.UTF8, v.CharacterSet)
	assert.Equal(t, []metadata.Encoding{metadata.GZip}, v.Encodings)
	assert.Equal(t, int64(7), req.Entity.Size())

	_, err = NewServerHelper(connector.NewServer(nil, nil, restlet.HTTPS, "", 0, nil))
	assert.Error(t, err)
}

func TestToRequestLogsBadPreferences(t *testing.T) {
	logger, hook := test.NewNullLogger()
	ctx := restlet.NewContext(logger.WithField("component", "test"))
	helper, err := NewServerHelper(connector.NewServer(ctx, nil, restlet.HTTP, "", 0, nil))
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "http://example.com/", nil)
	r.Header.Set("Accept", "text/html;q=NaN, text/plain")
	req := helper.(*ServerHelper).ToRequest(r)
	assert.Equal(t, "text/plain", metadata.FormatPreferences(req.ClientInfo.MediaTypes))

	entry := hook.LastEntry()
	if assert.NotNil(t, entry) {
		assert.Equal(t, logrus.WarnLevel, entry.Level)
		assert.Equal(t, "test", entry.Data["component"])
		assert.Equal(t, req.ID, entry.Data["id"])
		assert.IsType(t, metadata.ProtocolError{}, entry.Data[logrus.ErrorKey])
	}
}
