// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package connector binds protocols to the helpers that implement
// them.  A Registry records which helper factories handle which
// protocols; Client and Server connectors create their helper from
// the registry when they start; a ClientDispatcher sends outbound
// calls to the right started client.
//
// Internal RIAP calls never reach a client connector: the dispatcher
// hands them straight to an in-process handler.
package connector

import (
	"net"
	"strconv"

	"github.com/diffeo/go-restlet/restlet"
)

// Helper is the protocol-specific implementation behind a connector.
type Helper interface {
	Protocols() []restlet.Protocol
	Start() error
	Stop() error
}

// ClientHelper sends calls to remote servers.
type ClientHelper interface {
	Helper
	restlet.Handler
}

// ServerHelper accepts calls and passes them to its Server.
type ServerHelper interface {
	Helper
	// Address returns the address actually bound, once started.
	Address() string
}

// ClientFactory creates the helper for a client connector.
type ClientFactory func(*Client) (ClientHelper, error)

// ServerFactory creates the helper for a server connector.
type ServerFactory func(*Server) (ServerHelper, error)

// SplitAddress splits a host:port address, giving port -1 when it is
// missing or malformed.
func SplitAddress(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, -1
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = -1
	}
	return host, port
}
