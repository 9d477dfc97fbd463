// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restlet

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/diffeo/go-restlet/representation"
)

// HeadersAttribute is the attribute key under which connectors store
// the raw protocol headers of a call.
const HeadersAttribute = "org.restlet.http.headers"

// Request is an inbound or outbound call.
type Request struct {
	Method Method

	// ResourceRef is the target of the call.  Routers move its
	// base reference forward as they match.
	ResourceRef *Reference

	// RootRef is the reference of the server root, if known.
	RootRef *Reference

	// Referrer is the referring resource, if any.
	Referrer *Reference

	// Protocol may be zero, in which case the resource reference's
	// scheme decides.
	Protocol Protocol

	Attributes Attributes
	Entity     representation.Representation
	ClientInfo ClientInfo

	// Headers holds raw protocol headers not otherwise modeled.
	Headers http.Header
	Cookies []*http.Cookie

	// ID identifies the call in logs.
	ID string

	ctx context.Context
}

// NewRequest creates a request for a target reference.  If target is
// absolute, its scheme and authority become the base reference, so
// that routers match against the path.
func NewRequest(method Method, target string) (*Request, error) {
	ref, err := ParseReference(target)
	if err != nil {
		return nil, err
	}
	return NewRequestRef(method, ref), nil
}

// NewRequestRef creates a request for a parsed reference.
func NewRequestRef(method Method, ref *Reference) *Request {
	if ref.Base() == nil {
		ref.SetBase(ref.Root())
	}
	return &Request{
		Method:      method,
		ResourceRef: ref,
		RootRef:     ref.Root(),
		ClientInfo:  DefaultClientInfo(),
		Headers:     http.Header{},
		ctx:         context.Background(),
	}
}

// Context returns the request's context.  It is never nil.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// SetContext replaces the request's context.
func (r *Request) SetContext(ctx context.Context) {
	r.ctx = ctx
}

// EffectiveProtocol returns the request protocol, or the protocol
// implied by the resource reference's scheme, or the zero protocol.
func (r *Request) EffectiveProtocol() Protocol {
	if !r.Protocol.IsZero() {
		return r.Protocol
	}
	if r.ResourceRef == nil {
		return Protocol{}
	}
	return ProtocolForScheme(r.ResourceRef.Scheme())
}

// Cookie returns the first cookie with a name, or nil.
func (r *Request) Cookie(name string) *http.Cookie {
	for _, c := range r.Cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Response is the answer being built for a Request.
type Response struct {
	Request *Request
	Status  Status
	Entity  representation.Representation

	// LocationRef is the Location: of a redirect or created
	// resource.
	LocationRef *Reference

	// AllowedMethods populates Allow: on 405 and OPTIONS.
	AllowedMethods []Method

	// RetryAfter is sent as Retry-After: when non-zero.
	RetryAfter time.Duration

	Headers    http.Header
	Attributes Attributes

	serverInfo     ServerInfo
	serverInfoOnce sync.Once
	serverInfoFill func(*ServerInfo)

	// Err is the error that produced the current status, if any.
	Err error
}

// NewResponse creates a 200 OK response to req.
func NewResponse(req *Request) *Response {
	return &Response{
		Request: req,
		Status:  StatusOK,
		Headers: http.Header{},
	}
}

// OnServerInfo sets the function that fills in server info the first
// time it is asked for.  It has no effect after ServerInfo has been
// called.
func (r *Response) OnServerInfo(fill func(*ServerInfo)) {
	r.serverInfoFill = fill
}

// ServerInfo returns the server info, populating it exactly once.
func (r *Response) ServerInfo() *ServerInfo {
	r.serverInfoOnce.Do(func() {
		r.serverInfo.Agent = DefaultAgent
		r.serverInfo.Port = -1
		if r.serverInfoFill != nil {
			r.serverInfoFill(&r.serverInfo)
		}
	})
	return &r.serverInfo
}

// SetStatus changes the status and clears any error.
func (r *Response) SetStatus(s Status) {
	r.Status = s
	r.Err = nil
}

// SetError sets the status corresponding to err and remembers err.
func (r *Response) SetError(err error) {
	r.Status = StatusOf(err)
	r.Err = err
}

// Redirect points the client at another reference.
func (r *Response) Redirect(target *Reference, s Status) {
	r.Status = s
	r.LocationRef = target
}
