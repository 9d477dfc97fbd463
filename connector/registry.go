// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package connector

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/diffeo/go-restlet/converter"
	"github.com/diffeo/go-restlet/restlet"
)

type clientRegistration struct {
	protocols []restlet.Protocol
	factory   ClientFactory
}

type serverRegistration struct {
	protocols []restlet.Protocol
	factory   ServerFactory
}

// registryLists is one immutable snapshot of a Registry.
type registryLists struct {
	clients        []clientRegistration
	servers        []serverRegistration
	converters     []converter.Converter
	authenticators []Authenticator
}

// Registry holds the helper factories, converters, and authenticators
// available to a component.  Lookups never block; registrations copy
// the lists they change.
type Registry struct {
	lock  sync.Mutex
	lists atomic.Value // *registryLists
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.lists.Store(&registryLists{})
	return r
}

func (r *Registry) snapshot() *registryLists {
	lists, _ := r.lists.Load().(*registryLists)
	if lists == nil {
		return &registryLists{}
	}
	return lists
}

// update applies f to a copy of the current lists.
func (r *Registry) update(f func(*registryLists)) {
	r.lock.Lock()
	defer r.lock.Unlock()
	old := r.snapshot()
	next := &registryLists{
		clients:        append([]clientRegistration(nil), old.clients...),
		servers:        append([]serverRegistration(nil), old.servers...),
		converters:     append([]converter.Converter(nil), old.converters...),
		authenticators: append([]Authenticator(nil), old.authenticators...),
	}
	f(next)
	r.lists.Store(next)
}

// RegisterClient adds a client helper factory.  Earlier
// registrations win.
func (r *Registry) RegisterClient(protocols []restlet.Protocol, factory ClientFactory) {
	r.update(func(l *registryLists) {
		l.clients = append(l.clients, clientRegistration{protocols, factory})
	})
}

// RegisterServer adds a server helper factory.
func (r *Registry) RegisterServer(protocols []restlet.Protocol, factory ServerFactory) {
	r.update(func(l *registryLists) {
		l.servers = append(l.servers, serverRegistration{protocols, factory})
	})
}

// RegisterConverter adds a converter.
func (r *Registry) RegisterConverter(c converter.Converter) {
	r.update(func(l *registryLists) {
		l.converters = append(l.converters, c)
	})
}

// RegisterAuthenticator adds an authenticator.
func (r *Registry) RegisterAuthenticator(a Authenticator) {
	r.update(func(l *registryLists) {
		l.authenticators = append(l.authenticators, a)
	})
}

// ClientProtocols lists every protocol some client factory handles.
func (r *Registry) ClientProtocols() []restlet.Protocol {
	var result []restlet.Protocol
	for _, reg := range r.snapshot().clients {
		for _, p := range reg.protocols {
			if !p.In(result) {
				result = append(result, p)
			}
		}
	}
	return result
}

// CreateClient creates a helper for the first of client's protocols
// that has a factory.
func (r *Registry) CreateClient(client *Client) (ClientHelper, error) {
	regs := r.snapshot().clients
	for _, p := range client.Protocols {
		for _, reg := range regs {
			if p.In(reg.protocols) {
				return reg.factory(client)
			}
		}
	}
	return nil, r.unsupported(client.Protocols)
}

// CreateServer creates a helper for server's protocol.
func (r *Registry) CreateServer(server *Server) (ServerHelper, error) {
	for _, reg := range r.snapshot().servers {
		if server.Protocol.In(reg.protocols) {
			return reg.factory(server)
		}
	}
	return nil, r.unsupported([]restlet.Protocol{server.Protocol})
}

func (r *Registry) unsupported(protocols []restlet.Protocol) error {
	if len(protocols) == 0 {
		return restlet.ErrMissingProtocol
	}
	return restlet.ErrUnsupportedProtocol{Protocol: protocols[0]}
}

// Converters returns the registered converters.
func (r *Registry) Converters() []converter.Converter {
	return r.snapshot().converters
}

// ConverterService returns a converter service over the registered
// converters, or the stock service if none are registered.
func (r *Registry) ConverterService() *converter.Service {
	converters := r.Converters()
	if len(converters) == 0 {
		return converter.NewService()
	}
	s := &converter.Service{}
	for _, c := range converters {
		s.Register(c)
	}
	return s
}

// Authenticator returns the authenticator for a challenge scheme,
// compared case-insensitively, or nil.
func (r *Registry) Authenticator(scheme string) Authenticator {
	for _, a := range r.snapshot().authenticators {
		if strings.EqualFold(a.Scheme(), scheme) {
			return a
		}
	}
	return nil
}
