// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package component assembles connectors, virtual hosts and
// applications into a running Restlet component.
//
// Inbound calls arrive on server connectors and pass the component's
// status filter, and its log filter if request logging is on, before
// the host router picks a virtual host.  Outbound calls from any
// handler go through the context's client dispatcher; riap://component
// calls reach the internal router without touching the network.
//
//     c := component.New(nil)
//     c.AddServer(restlet.HTTP, "", 8182)
//     c.AddClient(restlet.HTTP)
//     c.DefaultHost.MustAttach("/app", app)
//     if err := c.Start(); err != nil {
//         ...
//     }
//     defer c.Stop()
package component

import (
	"sync"
	"sync/atomic"

	"github.com/diffeo/go-restlet/blobconn"
	"github.com/diffeo/go-restlet/cborrpc"
	"github.com/diffeo/go-restlet/connector"
	"github.com/diffeo/go-restlet/filter"
	"github.com/diffeo/go-restlet/httpconn"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/diffeo/go-restlet/riap"
	"github.com/diffeo/go-restlet/routing"
	"github.com/diffeo/go-restlet/sqlconn"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// RegisterConnectors adds every connector in this module to registry.
func RegisterConnectors(registry *connector.Registry) {
	httpconn.Register(registry)
	cborrpc.Register(registry)
	blobconn.Register(registry)
	sqlconn.Register(registry)
	registry.RegisterAuthenticator(connector.Basic{})
}

// Component is the top-level container of a Restlet process.
type Component struct {
	Context  *restlet.Context
	Registry *connector.Registry

	// DefaultHost takes the calls no other virtual host accepts.
	DefaultHost *VirtualHost

	// Internal is the router behind riap://component references.
	Internal *routing.Router

	// RequestLog, if set before Start, gets one line per inbound
	// call.
	RequestLog *logrus.Logger

	riap     *riap.Helper
	clients  *connector.ClientDispatcher
	outbound *connector.TemplateDispatcher
	hosts   *routing.Router
	status  *filter.Status
	inbound atomic.Value

	lock    sync.Mutex
	servers []*connector.Server
	vhosts  []*VirtualHost
	started bool
}

type handlerBox struct {
	h restlet.Handler
}

// New creates a component with every connector registered and no
// servers or clients.  ctx may be nil.
func New(ctx *restlet.Context) *Component {
	if ctx == nil {
		ctx = restlet.NewContext(nil)
	} else {
		ctx = ctx.Child(logrus.Fields{})
	}
	registry := connector.NewRegistry()
	RegisterConnectors(registry)

	c := &Component{
		Context:  ctx,
		Registry: registry,
		Internal: routing.NewRouter(ctx),
		hosts:    routing.NewRouter(ctx),
	}
	c.riap = riap.NewHelper(ctx, c.Internal)
	registry.RegisterClient([]restlet.Protocol{restlet.RIAP}, func(*connector.Client) (connector.ClientHelper, error) {
		return c.riap, nil
	})
	c.clients = connector.NewClientDispatcher(ctx, c.riap)
	c.outbound = connector.NewTemplateDispatcher(ctx, c.clients)
	ctx.ClientDispatcher = c.outbound
	ctx.ServerDispatcher = c

	c.DefaultHost = NewDefaultHost(ctx)
	c.hosts.Mode = routing.ModeFirst
	c.hosts.SetDefaultRoute(hostRoute{c.DefaultHost})
	c.status = filter.NewStatus(ctx, registry.ConverterService(), c.hosts)
	c.inbound.Store(handlerBox{c.status})
	return c
}

// AddServer adds a server connector passing its calls to the
// component.  port 0 picks a free port and -1 the protocol default.
func (c *Component) AddServer(protocol restlet.Protocol, address string, port int) *connector.Server {
	s := connector.NewServer(c.Context, c.Registry, protocol, address, port, c)
	c.lock.Lock()
	c.servers = append(c.servers, s)
	c.lock.Unlock()
	return s
}

// Servers lists the server connectors.
func (c *Component) Servers() []*connector.Server {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]*connector.Server(nil), c.servers...)
}

// AddClient adds a client connector for some protocols.  Clients
// added after Start are not started.
func (c *Component) AddClient(protocols ...restlet.Protocol) *connector.Client {
	client := connector.NewClient(c.Context, c.Registry, protocols...)
	c.clients.AddClient(client)
	return client
}

// Clients lists the client connectors.
func (c *Component) Clients() []*connector.Client {
	return c.clients.Clients()
}

// AddHost adds a virtual host ahead of the default host.  Hosts are
// tried in the order they were added.
func (c *Component) AddHost(h *VirtualHost) {
	c.lock.Lock()
	c.vhosts = append(c.vhosts, h)
	c.lock.Unlock()
	c.hosts.AddRoute(hostRoute{h})
}

// Hosts lists the virtual hosts other than the default host.
func (c *Component) Hosts() []*VirtualHost {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]*VirtualHost(nil), c.vhosts...)
}

// Host returns the virtual host with a name, or the default host for
// "", or nil.
func (c *Component) Host(name string) *VirtualHost {
	if name == "" {
		return c.DefaultHost
	}
	for _, h := range c.Hosts() {
		if h.Name == name {
			return h
		}
	}
	return nil
}

// Handle dispatches an inbound call: it is the target of every
// server connector and the context's server dispatcher.
func (c *Component) Handle(req *restlet.Request, resp *restlet.Response) {
	box, _ := c.inbound.Load().(handlerBox)
	box.h.Handle(req, resp)
}

// Call sends an outbound call through the client dispatcher.  A
// template reference such as "riap://component/{m}/{id}" is formatted
// against the call first.
func (c *Component) Call(req *restlet.Request) *restlet.Response {
	resp := restlet.NewResponse(req)
	c.outbound.Handle(req, resp)
	return resp
}

// Start starts the clients, then the hosts and the internal router,
// then the servers.  If anything fails to start, everything is
// stopped again.
func (c *Component) Start() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.started {
		return nil
	}
	if c.RequestLog != nil {
		logCtx := c.Context.Child(logrus.Fields{})
		logCtx.Logger = logrus.NewEntry(c.RequestLog)
		c.inbound.Store(handlerBox{filter.NewLog(logCtx, c.status)})
	}

	err := c.startAll()
	if err != nil {
		c.Context.Log().WithError(err).Error("Component failed to start")
		_ = c.stopAll()
		return err
	}
	c.started = true
	c.Context.Log().WithFields(logrus.Fields{
		"servers": len(c.servers),
		"clients": len(c.clients.Clients()),
	}).Info("Component started")
	return nil
}

func (c *Component) startAll() error {
	var clients errgroup.Group
	for _, client := range c.clients.Clients() {
		client := client
		clients.Go(client.Start)
	}
	if err := clients.Wait(); err != nil {
		return err
	}

	if err := c.Internal.Start(); err != nil {
		return err
	}
	if err := restlet.Start(c.DefaultHost); err != nil {
		return err
	}
	for _, h := range c.vhosts {
		if err := restlet.Start(h); err != nil {
			return err
		}
	}

	var servers errgroup.Group
	for _, server := range c.servers {
		server := server
		servers.Go(server.Start)
	}
	return servers.Wait()
}

// Stop stops the servers, then the hosts and the internal router,
// then the clients.  It returns the first error but always stops
// everything.
func (c *Component) Stop() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.started {
		return nil
	}
	c.started = false
	err := c.stopAll()
	c.Context.Log().Info("Component stopped")
	return err
}

func (c *Component) stopAll() error {
	var servers errgroup.Group
	for _, server := range c.servers {
		server := server
		servers.Go(server.Stop)
	}
	firstErr := servers.Wait()

	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}
	for i := len(c.vhosts) - 1; i >= 0; i-- {
		keep(restlet.Stop(c.vhosts[i]))
	}
	keep(restlet.Stop(c.DefaultHost))
	keep(c.Internal.Stop())

	var clients errgroup.Group
	for _, client := range c.clients.Clients() {
		client := client
		clients.Go(client.Stop)
	}
	keep(clients.Wait())
	return firstErr
}

// Started returns true between Start and Stop.
func (c *Component) Started() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.started
}
