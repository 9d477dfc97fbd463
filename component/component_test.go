// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package component

import (
	"net"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/diffeo/go-restlet/metadata"
	"github.com/diffeo/go-restlet/representation"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/diffeo/go-restlet/riap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// answer replies with a fixed string.
func answer(s string) restlet.HandlerFunc {
	return func(req *restlet.Request, resp *restlet.Response) {
		resp.Entity = representation.NewString(s, metadata.TextPlain)
	}
}

func handle(t *testing.T, h restlet.Handler, method restlet.Method, uri string) *restlet.Response {
	req, err := restlet.NewRequest(method, uri)
	require.NoError(t, err)
	resp := restlet.NewResponse(req)
	h.Handle(req, resp)
	return resp
}

func text(t *testing.T, resp *restlet.Response) string {
	require.NotNil(t, resp.Entity)
	s, err := representation.Text(resp.Request.Context(), resp.Entity)
	require.NoError(t, err)
	return s
}

func TestVirtualHostScore(t *testing.T) {
	h, err := NewVirtualHost(nil, HostPatterns{
		HostDomain: `(www\.)?example\.com`,
		HostPort:   "80|8080",
	})
	require.NoError(t, err)

	score := func(uri string) float64 {
		req, err := restlet.NewRequest(restlet.MethodGet, uri)
		require.NoError(t, err)
		return h.Score(req, restlet.NewResponse(req))
	}
	assert.Equal(t, 1.0, score("http://example.com/"))
	assert.Equal(t, 1.0, score("http://WWW.Example.COM:8080/x"))
	assert.Equal(t, 0.0, score("http://example.com:9000/"))
	assert.Equal(t, 0.0, score("http://notexample.com/"))
	assert.Equal(t, 0.0, score("http://example.com.evil.org/"))
}

func TestVirtualHostServerPatterns(t *testing.T) {
	h, err := NewVirtualHost(nil, HostPatterns{ServerPort: "8182"})
	require.NoError(t, err)

	req, err := restlet.NewRequest(restlet.MethodGet, "http://anything/")
	require.NoError(t, err)
	resp := restlet.NewResponse(req)
	resp.OnServerInfo(func(info *restlet.ServerInfo) {
		info.Address, info.Port = "10.0.0.1", 8182
	})
	assert.Equal(t, 1.0, h.Score(req, resp))

	resp = restlet.NewResponse(req)
	assert.Equal(t, 0.0, h.Score(req, resp))
}

func TestBadPattern(t *testing.T) {
	_, err := NewVirtualHost(nil, HostPatterns{HostScheme: "(http"})
	assert.Error(t, err)
}

func TestHostRouting(t *testing.T) {
	c := New(nil)
	example, err := NewVirtualHost(c.Context, HostPatterns{HostDomain: `example\.com`})
	require.NoError(t, err)
	example.Name = "example"
	example.MustAttach("/who", answer("example"))
	c.AddHost(example)
	c.DefaultHost.MustAttach("/who", answer("default"))
	c.DefaultHost.MustAttach("/self", restlet.HandlerFunc(func(req *restlet.Request, resp *restlet.Response) {
		if riap.Host(req.Context()) != c.DefaultHost {
			resp.SetStatus(restlet.StatusInternalServerError)
		}
	}))

	assert.Equal(t, "example", text(t, handle(t, c, restlet.MethodGet, "http://example.com/who")))
	assert.Equal(t, "default", text(t, handle(t, c, restlet.MethodGet, "http://localhost/who")))
	assert.Equal(t, restlet.StatusOK, handle(t, c, restlet.MethodGet, "http://localhost/self").Status)
	assert.Equal(t, restlet.StatusNotFound.Code, handle(t, c, restlet.MethodGet, "http://example.com/nothing").Status.Code)

	assert.Equal(t, example, c.Host("example"))
	assert.Equal(t, c.DefaultHost, c.Host(""))
	assert.Nil(t, c.Host("missing"))
}

func TestPanicBecomesStatus(t *testing.T) {
	c := New(nil)
	c.DefaultHost.MustAttach("/panic", restlet.HandlerFunc(func(req *restlet.Request, resp *restlet.Response) {
		panic("boom")
	}))
	resp := handle(t, c, restlet.MethodGet, "http://localhost/panic")
	assert.Equal(t, restlet.StatusInternalServerError.Code, resp.Status.Code)
	assert.NotNil(t, resp.Entity)
}

func TestInternalRouter(t *testing.T) {
	c := New(nil)
	c.Internal.MustAttach("/ping", answer("pong"))
	require.NoError(t, c.Start())
	defer c.Stop()

	req, err := restlet.NewRequest(restlet.MethodGet, riap.Reference(riap.AuthorityComponent, "/ping"))
	require.NoError(t, err)
	resp := c.Call(req)
	assert.Equal(t, restlet.StatusOK, resp.Status)
	assert.Equal(t, "pong", text(t, resp))

	// The context dispatcher is the same route out
	req, err = restlet.NewRequest(restlet.MethodGet, "riap://component/ping")
	require.NoError(t, err)
	resp = restlet.NewResponse(req)
	c.Context.ClientDispatcher.Handle(req, resp)
	assert.Equal(t, "pong", text(t, resp))
}

func TestOutboundTemplate(t *testing.T) {
	c := New(nil)
	var seen []string
	c.Internal.MustAttach("/echo/{what}", restlet.HandlerFunc(func(req *restlet.Request, resp *restlet.Response) {
		seen = append(seen, req.Attributes.GetString("what"))
		resp.Entity = representation.NewString(req.ResourceRef.String(), metadata.TextPlain)
	}))
	require.NoError(t, c.Start())
	defer c.Stop()

	req, err := restlet.NewRequest(restlet.MethodGet, "riap://component/echo/{m}")
	require.NoError(t, err)
	resp := c.Call(req)
	assert.Equal(t, restlet.StatusOK, resp.Status)
	assert.Equal(t, "riap://component/echo/GET", text(t, resp))

	req, err = restlet.NewRequest(restlet.MethodPut, "riap://component/echo/{id}")
	require.NoError(t, err)
	req.Attributes.Set("id", "42")
	resp = restlet.NewResponse(req)
	c.Context.ClientDispatcher.Handle(req, resp)
	assert.Equal(t, restlet.StatusOK, resp.Status)

	req, err = restlet.NewRequest(restlet.MethodGet, "riap://component/echo/{missing}")
	require.NoError(t, err)
	resp = c.Call(req)
	assert.Equal(t, restlet.StatusInternalServerError.Code, resp.Status.Code)
	assert.IsType(t, restlet.ConfigError{}, resp.Err)

	assert.Equal(t, []string{"GET", "42"}, seen)
}

func TestApplication(t *testing.T) {
	c := New(nil)
	var app *Application
	var remaining string
	root := restlet.HandlerFunc(func(req *restlet.Request, resp *restlet.Response) {
		remaining = req.ResourceRef.RemainingPart(false, false)
		if riap.Application(req.Context()) != app {
			resp.SetStatus(restlet.StatusInternalServerError)
		}
	})
	app, err := NewApplication(c.Context, "test", root, DefaultServices())
	require.NoError(t, err)
	c.DefaultHost.MustAttach("/app", app)

	resp := handle(t, c, restlet.MethodGet, "http://localhost/app/things/1")
	assert.Equal(t, restlet.StatusOK, resp.Status)
	assert.Equal(t, "/things/1", remaining)
	assert.True(t, app.MatchesPrefix())
}

func TestApplicationRateLimit(t *testing.T) {
	ctx := restlet.NewContext(nil)
	mock := clock.NewMock()
	ctx.Clock = mock
	app, err := NewApplication(ctx, "limited", answer("ok"), Services{
		RateLimit: &RateLimit{Rate: 1, Burst: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, restlet.StatusOK, handle(t, app, restlet.MethodGet, "http://localhost/").Status)
	resp := handle(t, app, restlet.MethodGet, "http://localhost/")
	assert.Equal(t, restlet.StatusTooManyRequests, resp.Status)
	assert.True(t, resp.RetryAfter > 0)

	mock.Add(2 * time.Second)
	assert.Equal(t, restlet.StatusOK, handle(t, app, restlet.MethodGet, "http://localhost/").Status)
}

func TestApplicationMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	app, err := NewApplication(nil, "my-app", answer("ok"), Services{Metrics: reg})
	require.NoError(t, err)
	handle(t, app, restlet.MethodGet, "http://localhost/")

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "my_app_calls_total")

	// A second application with the same name cannot register
	_, err = NewApplication(nil, "my-app", answer("ok"), Services{Metrics: reg})
	assert.Error(t, err)
}

func TestMetricsNamespace(t *testing.T) {
	assert.Equal(t, "bookmarks", metricsNamespace("bookmarks"))
	assert.Equal(t, "my_app_v2", metricsNamespace("my-app.v2"))
	assert.Equal(t, "_app", metricsNamespace("9app"))
}

func TestHTTPRoundTrip(t *testing.T) {
	c := New(nil)
	server := c.AddServer(restlet.HTTP, "127.0.0.1", 0)
	c.AddClient(restlet.HTTP)
	c.DefaultHost.MustAttach("/hello", answer("world"))
	require.NoError(t, c.Start())
	defer c.Stop()
	assert.True(t, c.Started())

	addr := server.BoundAddress()
	require.NotEmpty(t, addr)
	req, err := restlet.NewRequest(restlet.MethodGet, "http://"+addr+"/hello")
	require.NoError(t, err)
	resp := c.Call(req)
	assert.Equal(t, restlet.StatusOK.Code, resp.Status.Code)
	assert.Equal(t, "world", text(t, resp))

	require.NoError(t, c.Stop())
	assert.False(t, c.Started())
	assert.Empty(t, server.BoundAddress())
}

func TestStartFailureStopsEverything(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	c := New(nil)
	c.AddServer(restlet.HTTP, "127.0.0.1", port)
	client := c.AddClient(restlet.HTTP)
	assert.Error(t, c.Start())
	assert.False(t, c.Started())
	assert.False(t, client.Started())
}

func TestUnsupportedClientProtocol(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Start())
	defer c.Stop()
	req, err := restlet.NewRequest(restlet.MethodGet, "http://localhost/")
	require.NoError(t, err)
	resp := c.Call(req)
	assert.Equal(t, restlet.StatusConnectorInternal.Code, resp.Status.Code)
	assert.IsType(t, restlet.ErrUnsupportedProtocol{}, resp.Err)
}
