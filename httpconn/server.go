// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package httpconn

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/diffeo/go-restlet/connector"
	"github.com/diffeo/go-restlet/metadata"
	"github.com/diffeo/go-restlet/representation"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
	"github.com/urfave/negroni"
)

// RequestIDHeader carries a request id; one is generated when the
// client sends none.
const RequestIDHeader = "X-Request-Id"

// ServerOptions are the parameters of an HTTP server connector.
type ServerOptions struct {
	// CertFile and KeyFile enable TLS.
	CertFile string
	KeyFile  string

	// Metrics serves the default Prometheus registry at
	// MetricsPath.
	Metrics     bool
	MetricsPath string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// ServerHelper serves a connector.Server over net/http.
type ServerHelper struct {
	Server  *connector.Server
	Options ServerOptions

	lock     sync.Mutex
	listener net.Listener
	http     *http.Server
	done     chan error
}

// NewServerHelper is the connector.ServerFactory for HTTP.
func NewServerHelper(server *connector.Server) (connector.ServerHelper, error) {
	h := &ServerHelper{
		Server: server,
		Options: ServerOptions{
			MetricsPath:     "/metrics",
			ShutdownTimeout: 5 * time.Second,
		},
	}
	if err := server.DecodeParameters(&h.Options); err != nil {
		return nil, err
	}
	if server.Protocol.Equals(restlet.HTTPS) && (h.Options.CertFile == "" || h.Options.KeyFile == "") {
		return nil, errors.New("HTTPS server needs certFile and keyFile parameters")
	}
	return h, nil
}

// Protocols returns the protocol of the server.
func (h *ServerHelper) Protocols() []restlet.Protocol {
	return []restlet.Protocol{h.Server.Protocol}
}

// Handler returns the complete http.Handler: recovery, the metrics
// endpoint if enabled, then the call adapter.
func (h *ServerHelper) Handler() http.Handler {
	r := mux.NewRouter()
	if h.Options.Metrics {
		r.Handle(h.Options.MetricsPath, promhttp.Handler())
	}
	r.PathPrefix("/").Handler(h)

	recovery := negroni.NewRecovery()
	recovery.Logger = h.Server.Context.Log()
	recovery.PrintStack = false
	n := negroni.New(recovery)
	n.UseHandler(r)
	return n
}

// Start listens and serves in the background.
func (h *ServerHelper) Start() error {
	h.lock.Lock()
	defer h.lock.Unlock()
	listener, err := net.Listen("tcp", h.Server.ListenAddress())
	if err != nil {
		return err
	}
	h.listener = listener
	h.http = &http.Server{
		Handler:      h.Handler(),
		ReadTimeout:  h.Options.ReadTimeout,
		WriteTimeout: h.Options.WriteTimeout,
	}
	h.done = make(chan error, 1)
	go func(srv *http.Server, done chan<- error) {
		var err error
		if h.Options.CertFile != "" {
			err = srv.ServeTLS(listener, h.Options.CertFile, h.Options.KeyFile)
		} else {
			err = srv.Serve(listener)
		}
		if err == http.ErrServerClosed {
			err = nil
		}
		if err != nil {
			h.Server.Context.Log().WithError(err).Error("HTTP server failed")
		}
		done <- err
	}(h.http, h.done)
	return nil
}

// Stop shuts the server down, waiting for calls in flight.
func (h *ServerHelper) Stop() error {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.Options.ShutdownTimeout)
	defer cancel()
	err := h.http.Shutdown(ctx)
	if serveErr := <-h.done; err == nil {
		err = serveErr
	}
	h.http = nil
	return err
}

// Address returns the bound address.
func (h *ServerHelper) Address() string {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// ServeHTTP converts the HTTP request to a call and writes the
// call's response.
func (h *ServerHelper) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := h.ToRequest(r)
	resp := restlet.NewResponse(req)
	resp.OnServerInfo(func(info *restlet.ServerInfo) {
		if addr, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr); ok {
			info.Address, info.Port = connector.SplitAddress(addr.String())
		}
	})
	h.Server.Handle(req, resp)
	if req.Entity != nil {
		req.Entity.Release()
	}
	if err := WriteResponse(w, req, resp); err != nil {
		h.Server.Context.Log().WithError(err).WithField("id", req.ID).Warn("Failed writing response")
	}
}

// ToRequest converts an inbound HTTP request.
func (h *ServerHelper) ToRequest(r *http.Request) *restlet.Request {
	scheme := h.Server.Protocol.Scheme
	if r.TLS != nil {
		scheme = restlet.HTTPS.Scheme
	}
	// Built from the parsed URL, so braces a client sent are data and
	// never a URI template.
	u := *r.URL
	u.Scheme, u.Host = scheme, r.Host
	ref := restlet.NewReference(&u)
	req := restlet.NewRequestRef(restlet.ParseMethod(r.Method), ref)
	req.Protocol = h.Server.Protocol
	req.SetContext(r.Context())

	req.ID = r.Header.Get(RequestIDHeader)
	if req.ID == "" {
		req.ID = uuid.NewV4().String()
	}

	req.ClientInfo.Address, req.ClientInfo.Port = connector.SplitAddress(r.RemoteAddr)
	if agent := r.UserAgent(); agent != "" {
		req.ClientInfo.Agent = agent
	}
	prefs, errs := metadata.ReadHTTPHeaders(r.Header)
	req.ClientInfo.Preferences = prefs
	for _, err := range errs {
		h.Server.Context.Log().WithError(err).WithField("id", req.ID).Warn("Ignoring malformed preference")
	}

	if referer := r.Referer(); referer != "" {
		if u, err := url.Parse(referer); err == nil {
			req.Referrer = restlet.NewReference(u)
		}
	}
	req.Headers = r.Header
	req.Attributes.Set(restlet.HeadersAttribute, r.Header)
	req.Cookies = r.Cookies()

	if auth := r.Header.Get("Authorization"); auth != "" {
		if registry := h.Server.Registry(); registry != nil {
			if a := registry.Authenticator(connector.SchemeOf(auth)); a != nil {
				if c, err := a.Parse(auth); err == nil {
					req.Attributes.Set(connector.CredentialsAttribute, c)
				}
			}
		}
	}

	if r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0 {
		variant, disposition := readVariant(r.Header)
		entity := representation.NewReader(r.Body, variant, r.ContentLength)
		entity.SetDisposition(disposition)
		req.Entity = entity
	}

	h.Server.Context.Log().WithFields(logrus.Fields{
		"id":     req.ID,
		"method": req.Method,
		"ref":    ref.String(),
	}).Debug("HTTP request")
	return req
}

// WriteResponse writes a call's response to an HTTP response writer.
func WriteResponse(w http.ResponseWriter, req *restlet.Request, resp *restlet.Response) error {
	header := w.Header()
	copyHeaders(header, resp.Headers)
	if agent := resp.ServerInfo().Agent; agent != "" {
		header.Set("Server", agent)
	}
	if req.ID != "" {
		header.Set(RequestIDHeader, req.ID)
	}
	if resp.LocationRef != nil {
		header.Set("Location", resp.LocationRef.String())
	}
	if len(resp.AllowedMethods) > 0 {
		header.Set("Allow", formatMethods(resp.AllowedMethods))
	}
	if resp.RetryAfter > 0 {
		header.Set("Retry-After", formatRetryAfter(resp.RetryAfter))
	}

	code := resp.Status.HTTPStatus()
	entity := resp.Entity
	if code == http.StatusNoContent || code == http.StatusNotModified || code < 200 {
		entity = nil
	}
	if entity == nil {
		w.WriteHeader(code)
		return nil
	}
	defer entity.Release()
	writeEntityHeaders(header, entity)
	if req.Method == restlet.MethodHead {
		w.WriteHeader(code)
		return nil
	}
	body, err := entity.Open(req.Context())
	if err != nil {
		header.Del("Content-Length")
		w.WriteHeader(http.StatusInternalServerError)
		return err
	}
	defer body.Close()
	w.WriteHeader(code)
	_, err = io.Copy(w, body)
	return err
}
