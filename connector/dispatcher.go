// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package connector

import (
	"github.com/diffeo/go-restlet/restlet"
	"github.com/diffeo/go-restlet/routing"
	"github.com/sirupsen/logrus"
)

// ClientScorer scores a call 1 if a client connector handles its
// protocol and is started, and 0 otherwise.
type ClientScorer struct {
	Client *Client
}

// Score implements routing.Scorer.
func (s ClientScorer) Score(req *restlet.Request, resp *restlet.Response) float64 {
	p := req.EffectiveProtocol()
	if p.IsZero() || !s.Client.Supports(p) || !s.Client.Started() {
		return 0.0
	}
	return 1.0
}

// ClientRoute routes calls to a client connector.
type ClientRoute struct {
	ClientScorer
}

// Handle sends the call through the client.
func (r ClientRoute) Handle(req *restlet.Request, resp *restlet.Response) {
	r.Client.Handle(req, resp)
}

// Next returns the client.
func (r ClientRoute) Next() restlet.Handler {
	return r.Client
}

// NewClientRouter creates a router over client connectors that takes
// the first client supporting a call's protocol.
func NewClientRouter(ctx *restlet.Context) *routing.Router {
	router := routing.NewRouter(ctx)
	router.Mode = routing.ModeFirst
	return router
}

// ClientDispatcher sends outbound calls to the client connector for
// their protocol.  RIAP calls go to the RIAP handler instead.
type ClientDispatcher struct {
	Context *restlet.Context
	// RIAP handles riap:// calls in process.
	RIAP restlet.Handler

	router *routing.Router
}

// NewClientDispatcher creates a dispatcher with no clients.
func NewClientDispatcher(ctx *restlet.Context, riap restlet.Handler) *ClientDispatcher {
	return &ClientDispatcher{
		Context: ctx,
		RIAP:    riap,
		router:  NewClientRouter(ctx),
	}
}

// AddClient makes a client available for dispatch.
func (d *ClientDispatcher) AddClient(c *Client) {
	d.router.AddRoute(ClientRoute{ClientScorer{Client: c}})
}

// RemoveClient removes a client.
func (d *ClientDispatcher) RemoveClient(c *Client) bool {
	return d.router.Detach(c) > 0
}

// Clients lists the clients in dispatch order.
func (d *ClientDispatcher) Clients() []*Client {
	var result []*Client
	for _, route := range d.router.Routes() {
		if cr, ok := route.(ClientRoute); ok {
			result = append(result, cr.Client)
		}
	}
	return result
}

// Handle dispatches the call.  Dispatch problems become statuses: a
// call with no protocol or with an unformatted template reference is
// a configuration error, and one whose protocol no started client
// handles is a connector error.
func (d *ClientDispatcher) Handle(req *restlet.Request, resp *restlet.Response) {
	if pattern := req.ResourceRef.Template(); pattern != "" {
		d.Context.Log().WithError(restlet.ErrUnformattedTemplate).WithField("reference", pattern).Error("Cannot dispatch call")
		resp.Status = restlet.StatusInternalServerError.WithDescription(restlet.ErrUnformattedTemplate.Error())
		resp.Err = restlet.ConfigError{Err: restlet.ErrUnformattedTemplate}
		return
	}
	p := req.EffectiveProtocol()
	if p.IsZero() {
		d.Context.Log().WithError(restlet.ErrMissingProtocol).WithField("reference", req.ResourceRef.String()).Error("Cannot dispatch call")
		resp.Status = restlet.StatusInternalServerError.WithDescription(restlet.ErrMissingProtocol.Error())
		resp.Err = restlet.ConfigError{Err: restlet.ErrMissingProtocol}
		return
	}
	if p.Equals(restlet.RIAP) && d.RIAP != nil {
		d.RIAP.Handle(req, resp)
		return
	}
	route := d.router.Next(req, resp)
	if route == nil {
		err := restlet.ErrUnsupportedProtocol{Protocol: p}
		d.Context.Log().WithFields(logrus.Fields{
			"protocol":  p,
			"reference": req.ResourceRef.String(),
		}).Warn("No client connector for protocol")
		resp.Status = err.Status()
		resp.Err = err
		return
	}
	route.Handle(req, resp)
}
