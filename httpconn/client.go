// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package httpconn

import (
	"io"
	"net"
	"net/http"
	"time"

	"github.com/diffeo/go-restlet/connector"
	"github.com/diffeo/go-restlet/representation"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ClientOptions are the parameters of an HTTP client connector.
type ClientOptions struct {
	Timeout             time.Duration
	MaxIdleConnsPerHost int
	// FollowRedirects lets net/http follow redirects itself.
	FollowRedirects bool
}

// ClientHelper sends calls with an http.Client.
type ClientHelper struct {
	Client  *connector.Client
	Options ClientOptions
	HTTP    *http.Client
}

// NewClientHelper is the connector.ClientFactory for HTTP.
func NewClientHelper(client *connector.Client) (connector.ClientHelper, error) {
	h := &ClientHelper{Client: client}
	if err := client.DecodeParameters(&h.Options); err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if h.Options.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = h.Options.MaxIdleConnsPerHost
	}
	h.HTTP = &http.Client{Transport: transport, Timeout: h.Options.Timeout}
	if !h.Options.FollowRedirects {
		h.HTTP.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return h, nil
}

// Protocols returns HTTP and HTTPS.
func (h *ClientHelper) Protocols() []restlet.Protocol {
	return Protocols
}

// Start does nothing.
func (h *ClientHelper) Start() error { return nil }

// Stop closes idle connections.
func (h *ClientHelper) Stop() error {
	h.HTTP.CloseIdleConnections()
	return nil
}

// Handle sends the call.  An entity in the response holds the
// connection open until it is read or released.
func (h *ClientHelper) Handle(req *restlet.Request, resp *restlet.Response) {
	r, err := h.toHTTP(req)
	if err != nil {
		resp.Status = restlet.StatusConnectorInternal.WithDescription(err.Error())
		resp.Err = err
		return
	}
	start := h.Client.Context.Time().Now()
	hr, err := h.HTTP.Do(r)
	if err != nil {
		h.fail(req, resp, err)
		return
	}
	h.Client.Context.Log().WithFields(logrus.Fields{
		"method":   req.Method,
		"ref":      req.ResourceRef.String(),
		"status":   hr.StatusCode,
		"duration": h.Client.Context.Time().Now().Sub(start),
	}).Debug("HTTP call")
	h.fromHTTP(req, resp, hr)
}

func (h *ClientHelper) toHTTP(req *restlet.Request) (*http.Request, error) {
	var body io.ReadCloser
	var size int64
	if req.Entity != nil {
		var err error
		body, err = req.Entity.Open(req.Context())
		if err != nil {
			return nil, errors.Wrap(err, "opening request entity")
		}
		size = req.Entity.Size()
	}
	r, err := http.NewRequestWithContext(req.Context(), string(req.Method), req.ResourceRef.Identifier(), body)
	if err != nil {
		if body != nil {
			body.Close()
		}
		return nil, errors.Wrap(err, "building HTTP request")
	}
	if body != nil {
		r.ContentLength = size
		writeEntityHeaders(r.Header, req.Entity)
		r.Header.Del("Content-Length")
	}
	copyHeaders(r.Header, req.Headers)
	writeAcceptHeaders(r.Header, req.ClientInfo.Preferences)
	if req.ClientInfo.Agent != "" {
		r.Header.Set("User-Agent", req.ClientInfo.Agent)
	}
	if req.Referrer != nil {
		r.Header.Set("Referer", req.Referrer.String())
	}
	for _, c := range req.Cookies {
		r.AddCookie(c)
	}
	if v, ok := req.Attributes.Get(connector.CredentialsAttribute); ok {
		if c, ok := v.(*connector.Credentials); ok {
			if err := h.authorize(r, c); err != nil {
				return nil, err
			}
		}
	}
	if req.ID != "" {
		r.Header.Set(RequestIDHeader, req.ID)
	}
	return r, nil
}

func (h *ClientHelper) authorize(r *http.Request, c *connector.Credentials) error {
	var a connector.Authenticator
	if registry := h.Client.Registry(); registry != nil {
		a = registry.Authenticator(c.Scheme)
	}
	if a == nil {
		return errors.Errorf("no authenticator for scheme %q", c.Scheme)
	}
	value, err := a.Format(c)
	if err != nil {
		return errors.Wrap(err, "formatting credentials")
	}
	r.Header.Set("Authorization", value)
	return nil
}

// fail maps a transport error to a connector status: failing to
// connect at all is 1000, anything later is 1001.
func (h *ClientHelper) fail(req *restlet.Request, resp *restlet.Response, err error) {
	status := restlet.StatusConnectorCommunication
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		status = restlet.StatusConnectorConnection
	}
	wrapped := errors.Wrapf(err, "%s %s", req.Method, req.ResourceRef.Identifier())
	h.Client.Context.Log().WithError(wrapped).Warn("HTTP call failed")
	resp.Status = status.WithDescription(wrapped.Error())
	resp.Err = wrapped
}

func (h *ClientHelper) fromHTTP(req *restlet.Request, resp *restlet.Response, hr *http.Response) {
	resp.Status = restlet.StatusFor(hr.StatusCode)
	resp.Headers = hr.Header
	resp.Attributes.Set(restlet.HeadersAttribute, hr.Header)
	if server := hr.Header.Get("Server"); server != "" {
		resp.OnServerInfo(func(info *restlet.ServerInfo) {
			info.Agent = server
		})
	}
	if loc := hr.Header.Get("Location"); loc != "" {
		if ref, err := req.ResourceRef.Resolve(loc); err == nil {
			resp.LocationRef = ref
		}
	}
	resp.AllowedMethods = parseMethods(hr.Header["Allow"])
	resp.RetryAfter = parseRetryAfter(hr.Header.Get("Retry-After"), h.Client.Context.Time().Now())

	if req.Method == restlet.MethodHead || hr.StatusCode == http.StatusNoContent || hr.StatusCode == http.StatusNotModified {
		hr.Body.Close()
		return
	}
	variant, disposition := readVariant(hr.Header)
	size := hr.ContentLength
	if hr.Uncompressed {
		size = -1
	}
	entity := representation.NewReader(hr.Body, variant, size)
	entity.SetDisposition(disposition)
	resp.Entity = entity
}
