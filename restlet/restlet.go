// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package restlet defines the uniform call model shared by every
// handler, filter, router and connector: a Request, the Response
// being built for it, and the Handler interface that processes them.
//
// A call is created by a server connector (or by a client wishing to
// make an outbound call), passed by reference through a chain of
// handlers, and finally serialized by a connector.  Nothing in the
// dispatch path returns errors; failures become response statuses so
// that the connector always has a well-formed Response to write.
package restlet

// Version is the version of this library, used in the default agent
// strings.
const Version = "0.1"

// DefaultAgent is the default client and server agent name.
const DefaultAgent = "Restlet-Go/" + Version

// Handler processes a call.  Handlers are shared across goroutines,
// and one Handler may be handling many calls at once; each individual
// call, though, is only touched by one goroutine at a time.
type Handler interface {
	Handle(req *Request, resp *Response)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(req *Request, resp *Response)

// Handle calls f(req, resp).
func (f HandlerFunc) Handle(req *Request, resp *Response) {
	f(req, resp)
}

// Starter is implemented by handlers with a lifecycle, such as
// connectors and applications.
type Starter interface {
	Start() error
	Stop() error
}

// Start starts h if it implements Starter.
func Start(h Handler) error {
	if s, ok := h.(Starter); ok {
		return s.Start()
	}
	return nil
}

// Stop stops h if it implements Starter.
func Stop(h Handler) error {
	if s, ok := h.(Starter); ok {
		return s.Stop()
	}
	return nil
}
