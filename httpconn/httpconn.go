// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package httpconn provides HTTP and HTTPS client and server
// connector helpers on top of net/http.
//
// The server side mounts the call adapter on a gorilla/mux router,
// optionally next to a Prometheus /metrics endpoint, behind negroni's
// panic recovery.  The client side maps calls onto an http.Client.
package httpconn

import (
	"github.com/diffeo/go-restlet/connector"
	"github.com/diffeo/go-restlet/restlet"
)

// Protocols are the protocols served here.
var Protocols = []restlet.Protocol{restlet.HTTP, restlet.HTTPS}

// Register adds the HTTP client and server factories to a registry.
func Register(registry *connector.Registry) {
	registry.RegisterClient(Protocols, NewClientHelper)
	registry.RegisterServer(Protocols, NewServerHelper)
}
