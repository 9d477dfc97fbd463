// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package connector

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/diffeo/go-restlet/restlet"
)

// Binding describes a server connector on the command line.  It
// implements flag.Value, so a typical use is
//
//     func main() {
//         binding := connector.Binding{Protocol: restlet.HTTP, Address: ":8182"}
//         flag.Var(&binding, "listen", "protocol:address to listen on")
//         flag.Parse()
//     }
type Binding struct {
	// Protocol is the protocol to serve.
	Protocol restlet.Protocol

	// Address is a host:port, a :port, or empty for the
	// protocol's default port.
	Address string
}

// String renders a binding as "scheme:address".
func (b *Binding) String() string {
	if b.Protocol.IsZero() {
		return b.Address
	}
	if b.Address == "" {
		return b.Protocol.Scheme
	}
	return b.Protocol.Scheme + ":" + b.Address
}

// Set parses "protocol:address", where protocol is a scheme or a
// protocol name.  An unknown protocol is an error; the address is
// only checked for having a numeric port.
func (b *Binding) Set(param string) error {
	parts := strings.SplitN(param, ":", 2)
	if parts[0] == "" {
		return errors.New("must specify a protocol")
	}
	p, known := restlet.LookupProtocol(parts[0])
	if !known {
		return fmt.Errorf("unknown protocol %q", parts[0])
	}
	address := ""
	if len(parts) == 2 {
		address = parts[1]
	}
	if address != "" {
		if _, _, err := b.split(address); err != nil {
			return err
		}
	}
	b.Protocol = p
	b.Address = address
	return nil
}

// split returns the host and port; a missing port is -1.
func (b *Binding) split(address string) (string, int, error) {
	if address == "" {
		return "", -1, nil
	}
	if !strings.Contains(address, ":") {
		return address, -1, nil
	}
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("bad port %q", portStr)
	}
	return host, port, nil
}

// HostPort returns the host and port of the binding; a missing port
// is -1, meaning the protocol default.
func (b *Binding) HostPort() (string, int) {
	host, port, err := b.split(b.Address)
	if err != nil {
		return b.Address, -1
	}
	return host, port
}

// Server creates a server connector for the binding.
func (b *Binding) Server(ctx *restlet.Context, registry *Registry, target restlet.Handler) *Server {
	host, port := b.HostPort()
	return NewServer(ctx, registry, b.Protocol, host, port, target)
}
