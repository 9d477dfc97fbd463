// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package connector

import (
	"errors"
	"sync"
	"testing"

	"github.com/diffeo/go-restlet/restlet"
	"github.com/diffeo/go-restlet/riap"
	"github.com/diffeo/go-restlet/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHelper is a client helper that records what it sees.
type fakeHelper struct {
	protocols []restlet.Protocol
	lock      sync.Mutex
	calls     []string
	started   int
	stopped   int
	startErr  error
}

func (h *fakeHelper) Protocols() []restlet.Protocol { return h.protocols }

func (h *fakeHelper) Start() error {
	h.started++
	return h.startErr
}

func (h *fakeHelper) Stop() error {
	h.stopped++
	return nil
}

func (h *fakeHelper) Handle(req *restlet.Request, resp *restlet.Response) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.calls = append(h.calls, req.ResourceRef.String())
	resp.SetStatus(restlet.StatusAccepted)
}

func newCall(t *testing.T, method restlet.Method, uri string) (*restlet.Request, *restlet.Response) {
	req, err := restlet.NewRequest(method, uri)
	require.NoError(t, err)
	return req, restlet.NewResponse(req)
}

func TestRegistryCreateClient(t *testing.T) {
	registry := NewRegistry()
	first := &fakeHelper{protocols: []restlet.Protocol{restlet.HTTP}}
	second := &fakeHelper{protocols: []restlet.Protocol{restlet.HTTP, restlet.HTTPS}}
	registry.RegisterClient(first.protocols, func(*Client) (ClientHelper, error) { return first, nil })
	registry.RegisterClient(second.protocols, func(*Client) (ClientHelper, error) { return second, nil })

	h, err := registry.CreateClient(NewClient(nil, registry, restlet.HTTP))
	if assert.NoError(t, err) {
		assert.Equal(t, first, h)
	}
	h, err = registry.CreateClient(NewClient(nil, registry, restlet.HTTPS))
	if assert.NoError(t, err) {
		assert.Equal(t, second, h)
	}
	_, err = registry.CreateClient(NewClient(nil, registry, restlet.CBORRPC))
	assert.Equal(t, restlet.ErrUnsupportedProtocol{Protocol: restlet.CBORRPC}, err)
	_, err = registry.CreateClient(NewClient(nil, registry))
	assert.Equal(t, restlet.ErrMissingProtocol, err)

	assert.Equal(t, []restlet.Protocol{restlet.HTTP, restlet.HTTPS}, registry.ClientProtocols())
}

func TestRegistryAuthenticator(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterAuthenticator(Basic{})
	assert.Equal(t, Basic{}, registry.Authenticator("basic"))
	assert.Nil(t, registry.Authenticator("Digest"))
}

func TestBasic(t *testing.T) {
	header, err := Basic{}.Format(&Credentials{Identifier: "Aladdin", Secret: "open sesame"})
	require.NoError(t, err)
	assert.Equal(t, "Basic QWxhZGRpbjpvcGVuIHNlc2FtZQ==", header)
	assert.Equal(t, "Basic", SchemeOf(header))

	c, err := Basic{}.Parse(header)
	if assert.NoError(t, err) {
		assert.Equal(t, &Credentials{Scheme: "Basic", Identifier: "Aladdin", Secret: "open sesame"}, c)
	}
	_, err = Basic{}.Parse("Basic !!!")
	assert.Equal(t, ErrBadCredentials, err)
	_, err = Basic{}.Format(&Credentials{Identifier: "a:b"})
	assert.Equal(t, ErrBadCredentials, err)
}

func TestClientLifecycle(t *testing.T) {
	helper := &fakeHelper{protocols: []restlet.Protocol{restlet.HTTP}}
	client := NewClientWithHelper(nil, helper)

	req, resp := newCall(t, restlet.MethodGet, "http://example.com/")
	client.Handle(req, resp)
	assert.Equal(t, restlet.StatusConnectorInternal.Code, resp.Status.Code)
	assert.Equal(t, ErrNotStarted, resp.Err)

	require.NoError(t, client.Start())
	require.NoError(t, client.Start())
	assert.Equal(t, 1, helper.started)
	req, resp = newCall(t, restlet.MethodGet, "http://example.com/")
	client.Handle(req, resp)
	assert.Equal(t, restlet.StatusAccepted, resp.Status)

	require.NoError(t, client.Stop())
	assert.False(t, client.Started())
	assert.Equal(t, 1, helper.stopped)

	bad := NewClientWithHelper(nil, &fakeHelper{startErr: errors.New("no")})
	assert.EqualError(t, bad.Start(), "no")
	assert.False(t, bad.Started())
}

func TestClientParameters(t *testing.T) {
	client := NewClient(nil, nil, restlet.HTTP)
	client.Parameters["timeout"] = "5s"
	client.Parameters["MAXCONNS"] = "12"
	var opts struct {
		Timeout  string
		MaxConns int
	}
	require.NoError(t, client.DecodeParameters(&opts))
	assert.Equal(t, "5s", opts.Timeout)
	assert.Equal(t, 12, opts.MaxConns)
}

// socketHelper stands in for a network client; any call to it fails
// the test.
type socketHelper struct {
	t *testing.T
}

func (h socketHelper) Protocols() []restlet.Protocol {
	return []restlet.Protocol{restlet.RIAP, restlet.HTTP}
}
func (h socketHelper) Start() error { return nil }
func (h socketHelper) Stop() error  { return nil }
func (h socketHelper) Handle(req *restlet.Request, resp *restlet.Response) {
	h.t.Errorf("socket helper reached for %v", req.ResourceRef)
}

func TestDispatcherRIAPShortCircuit(t *testing.T) {
	internal := routing.NewRouter(nil)
	var seen string
	internal.MustAttach("/status", restlet.HandlerFunc(func(req *restlet.Request, resp *restlet.Response) {
		seen = req.ResourceRef.Base().String()
		resp.SetStatus(restlet.StatusNoContent)
	}))

	d := NewClientDispatcher(nil, riap.NewHelper(nil, internal))
	socket := NewClientWithHelper(nil, socketHelper{t})
	require.NoError(t, socket.Start())
	d.AddClient(socket)

	req, resp := newCall(t, restlet.MethodGet, "riap://component/status")
	d.Handle(req, resp)
	assert.Equal(t, restlet.StatusNoContent, resp.Status)
	assert.Equal(t, "riap://component/status", seen)

	req, resp = newCall(t, restlet.MethodGet, "riap://component/nowhere")
	d.Handle(req, resp)
	assert.Equal(t, restlet.StatusNotFound, resp.Status)
}

func TestDispatcherProtocols(t *testing.T) {
	d := NewClientDispatcher(nil, nil)
	httpHelper := &fakeHelper{protocols: []restlet.Protocol{restlet.HTTP}}
	client := NewClientWithHelper(nil, httpHelper)
	d.AddClient(client)

	// Not started yet
	req, resp := newCall(t, restlet.MethodGet, "http://example.com/a")
	d.Handle(req, resp)
	assert.Equal(t, restlet.StatusConnectorInternal.Code, resp.Status.Code)
	assert.Equal(t, restlet.ErrUnsupportedProtocol{Protocol: restlet.HTTP}, resp.Err)

	require.NoError(t, client.Start())
	req, resp = newCall(t, restlet.MethodGet, "http://example.com/a")
	d.Handle(req, resp)
	assert.Equal(t, restlet.StatusAccepted, resp.Status)
	assert.Equal(t, []string{"http://example.com/a"}, httpHelper.calls)

	// The explicit protocol wins over the scheme
	req, resp = newCall(t, restlet.MethodGet, "http://example.com/b")
	req.Protocol = restlet.HTTPS
	d.Handle(req, resp)
	assert.Equal(t, restlet.StatusConnectorInternal.Code, resp.Status.Code)

	// No protocol at all
	req, resp = newCall(t, restlet.MethodGet, "/relative")
	d.Handle(req, resp)
	assert.Equal(t, 500, resp.Status.Code)
	assert.Equal(t, restlet.ConfigError{Err: restlet.ErrMissingProtocol}, resp.Err)

	assert.Equal(t, []*Client{client}, d.Clients())
	assert.True(t, d.RemoveClient(client))
	assert.Empty(t, d.Clients())
}

func TestTemplateDispatcher(t *testing.T) {
	helper := &fakeHelper{protocols: []restlet.Protocol{restlet.HTTP}}
	client := NewClientWithHelper(nil, helper)
	require.NoError(t, client.Start())
	d := NewClientDispatcher(nil, nil)
	d.AddClient(client)
	td := NewTemplateDispatcher(nil, d)

	req, resp := newCall(t, restlet.MethodGet, "http://example.com/{m}/{user}")
	req.Attributes.Set("user", "jo")
	td.Handle(req, resp)
	assert.Equal(t, restlet.StatusAccepted, resp.Status)
	assert.Equal(t, []string{"http://example.com/GET/jo"}, helper.calls)

	// The compiled template is cached
	assert.Equal(t, 1, td.templates.Len())

	req, resp = newCall(t, restlet.MethodGet, "http://example.com/{nobody}")
	td.Handle(req, resp)
	assert.Equal(t, 500, resp.Status.Code)
	var cfg restlet.ConfigError
	assert.True(t, errors.As(resp.Err, &cfg))
	assert.Len(t, helper.calls, 1)

	// Encoded braces are data, not variables
	req, resp = newCall(t, restlet.MethodGet, "http://example.com/search?q=%7Bjson%7D")
	td.Handle(req, resp)
	assert.Equal(t, restlet.StatusAccepted, resp.Status)
	assert.Equal(t, "http://example.com/search?q=%7Bjson%7D", helper.calls[len(helper.calls)-1])
	assert.Equal(t, 1, td.templates.Len())

	// A bound value with braces cannot leave a template behind
	req, resp = newCall(t, restlet.MethodGet, "http://example.com/{user}")
	req.Attributes.Set("user", "{m}")
	td.Handle(req, resp)
	assert.Equal(t, restlet.StatusAccepted, resp.Status)
	assert.Equal(t, "http://example.com/%7Bm%7D", helper.calls[len(helper.calls)-1])
}

func TestTemplateHost(t *testing.T) {
	helper := &fakeHelper{protocols: []restlet.Protocol{restlet.HTTP}}
	client := NewClientWithHelper(nil, helper)
	require.NoError(t, client.Start())
	d := NewClientDispatcher(nil, nil)
	d.AddClient(client)

	req, resp := newCall(t, restlet.MethodPost, "http://{m}.example.com/x")
	assert.Equal(t, "http://{m}.example.com/x", req.ResourceRef.String())
	NewTemplateDispatcher(nil, d).Handle(req, resp)
	assert.Equal(t, restlet.StatusAccepted, resp.Status)
	assert.Equal(t, []string{"http://POST.example.com/x"}, helper.calls)
}

func TestDispatcherRefusesTemplate(t *testing.T) {
	helper := &fakeHelper{protocols: []restlet.Protocol{restlet.HTTP}}
	client := NewClientWithHelper(nil, helper)
	require.NoError(t, client.Start())
	d := NewClientDispatcher(nil, nil)
	d.AddClient(client)

	req, resp := newCall(t, restlet.MethodGet, "http://example.com/{m}")
	d.Handle(req, resp)
	assert.Equal(t, 500, resp.Status.Code)
	assert.Equal(t, restlet.ConfigError{Err: restlet.ErrUnformattedTemplate}, resp.Err)
	assert.Empty(t, helper.calls)
}

func TestBinding(t *testing.T) {
	var b Binding
	require.NoError(t, b.Set("http::8182"))
	assert.Equal(t, restlet.HTTP, b.Protocol)
	assert.Equal(t, ":8182", b.Address)
	assert.Equal(t, "http::8182", b.String())
	host, port := b.HostPort()
	assert.Equal(t, "", host)
	assert.Equal(t, 8182, port)

	require.NoError(t, b.Set("CBOR-RPC"))
	assert.Equal(t, restlet.CBORRPC, b.Protocol)
	_, port = b.HostPort()
	assert.Equal(t, -1, port)

	assert.Error(t, b.Set("gopher:70"))
	assert.Error(t, b.Set("http:localhost:eighty"))
	assert.Error(t, b.Set(""))
}
