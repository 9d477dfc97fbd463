// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package riap implements the Restlet Internal Access Protocol: calls
// to riap:// references that stay inside the process.
//
// The authority of a RIAP reference names the target:
//
//     riap://component/...    the component's internal router
//     riap://application/...  the calling application's inbound root
//     riap://host/...         the calling virtual host
//
// The calling application and host travel in the request's
// context.Context; see WithApplication and WithHost.
package riap

import (
	"context"
	"fmt"
	"strings"

	"github.com/diffeo/go-restlet/restlet"
	"github.com/sirupsen/logrus"
)

// Authorities of RIAP references.
const (
	AuthorityComponent   = "component"
	AuthorityApplication = "application"
	AuthorityHost        = "host"
)

type contextKey int

const (
	applicationKey contextKey = iota
	hostKey
)

// WithApplication records the application handling a call.
func WithApplication(ctx context.Context, h restlet.Handler) context.Context {
	return context.WithValue(ctx, applicationKey, h)
}

// Application returns the application recorded in ctx, or nil.
func Application(ctx context.Context) restlet.Handler {
	h, _ := ctx.Value(applicationKey).(restlet.Handler)
	return h
}

// WithHost records the virtual host handling a call.
func WithHost(ctx context.Context, h restlet.Handler) context.Context {
	return context.WithValue(ctx, hostKey, h)
}

// Host returns the virtual host recorded in ctx, or nil.
func Host(ctx context.Context) restlet.Handler {
	h, _ := ctx.Value(hostKey).(restlet.Handler)
	return h
}

// Reference builds a RIAP reference.
func Reference(authority, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("riap://%s%s", authority, path)
}

// Helper is the RIAP client helper.  It has no sockets to manage.
type Helper struct {
	Context *restlet.Context
	// Component is the component's internal router.
	Component restlet.Handler
}

// NewHelper creates a RIAP helper.
func NewHelper(ctx *restlet.Context, component restlet.Handler) *Helper {
	return &Helper{Context: ctx, Component: component}
}

// Protocols returns RIAP.
func (h *Helper) Protocols() []restlet.Protocol {
	return []restlet.Protocol{restlet.RIAP}
}

// Start does nothing.
func (h *Helper) Start() error { return nil }

// Stop does nothing.
func (h *Helper) Stop() error { return nil }

// Target returns the handler a RIAP call goes to, or nil.
func (h *Helper) Target(req *restlet.Request) restlet.Handler {
	if req.ResourceRef == nil {
		return nil
	}
	switch strings.ToLower(req.ResourceRef.HostDomain()) {
	case AuthorityComponent:
		return h.Component
	case AuthorityApplication:
		return Application(req.Context())
	case AuthorityHost:
		return Host(req.Context())
	}
	return nil
}

// Handle dispatches a RIAP call in process.  The routers below see
// the path relative to the RIAP root.
func (h *Helper) Handle(req *restlet.Request, resp *restlet.Response) {
	target := h.Target(req)
	if target == nil {
		h.Context.Log().WithFields(logrus.Fields{
			"reference": req.ResourceRef.String(),
		}).Debug("No RIAP target")
		resp.SetStatus(restlet.StatusNotFound)
		return
	}
	root := req.ResourceRef.Root()
	req.ResourceRef.SetBase(root)
	req.RootRef = root
	if req.Protocol.IsZero() {
		req.Protocol = restlet.RIAP
	}
	target.Handle(req, resp)
}
