// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package routing

import (
	"errors"

	"github.com/diffeo/go-restlet/restlet"
	"github.com/diffeo/go-restlet/template"
	"github.com/sirupsen/logrus"
)

// RedirectMode selects how a Redirector redirects.
type RedirectMode int

const (
	// ClientPermanent tells the client 301 Moved Permanently.
	ClientPermanent RedirectMode = iota + 1
	// ClientFound tells the client 302 Found.
	ClientFound
	// ClientSeeOther tells the client 303 See Other.
	ClientSeeOther
	// ClientTemporary tells the client 307 Temporary Redirect.
	ClientTemporary
	// ServerOutbound fetches the target through the context's
	// client dispatcher and returns its response.
	ServerOutbound
	// ServerInbound sends the call back into the component through
	// the context's server dispatcher.
	ServerInbound
)

// ErrNoDispatcher is the configuration error for a server-side
// redirect from a context with no dispatcher.
var ErrNoDispatcher = errors.New("context has no dispatcher for server-side redirection")

// Redirector redirects calls to a target built from a template.  The
// template is formatted with a CallResolver, so "{rr}" carries the
// remaining part over to the target.
type Redirector struct {
	Context *restlet.Context
	Mode    RedirectMode
	target  *template.Template
}

// NewRedirector compiles the target template.
func NewRedirector(ctx *restlet.Context, target string, mode RedirectMode) (*Redirector, error) {
	tmpl, err := template.New(target, template.WithDefaultVariable(template.Variable{Type: template.TypeAll}))
	if err != nil {
		return nil, restlet.ConfigError{Err: err}
	}
	return &Redirector{Context: ctx, Mode: mode, target: tmpl}, nil
}

// Target returns the target template.
func (r *Redirector) Target() *template.Template {
	return r.target
}

// TargetRef formats the target for a call, resolved against the
// call's resource reference.
func (r *Redirector) TargetRef(req *restlet.Request, resp *restlet.Response) (*restlet.Reference, error) {
	resolver := NewCallResolver(req, resp)
	resolver.Now = r.Context.Time().Now
	s, err := r.target.Format(resolver)
	if err != nil {
		return nil, restlet.ConfigError{Err: err}
	}
	if req.ResourceRef == nil {
		return restlet.ParseReference(s)
	}
	return req.ResourceRef.Resolve(s)
}

// Handle redirects the call.
func (r *Redirector) Handle(req *restlet.Request, resp *restlet.Response) {
	target, err := r.TargetRef(req, resp)
	if err != nil {
		r.Context.Log().WithError(err).Error("Cannot format redirection target")
		resp.SetError(err)
		return
	}
	log := r.Context.Log().WithFields(logrus.Fields{
		"from": req.ResourceRef.String(),
		"to":   target.String(),
	})
	switch r.Mode {
	case ClientPermanent:
		resp.Redirect(target, restlet.StatusMovedPermanently)
	case ClientFound:
		resp.Redirect(target, restlet.StatusFound)
	case ClientSeeOther:
		resp.Redirect(target, restlet.StatusSeeOther)
	case ClientTemporary:
		resp.Redirect(target, restlet.StatusTemporaryRedirect)
	case ServerOutbound:
		log.Debug("Redirecting outbound")
		r.serverRedirect(dispatcher(r.Context, true), target, req, resp)
	case ServerInbound:
		log.Debug("Redirecting inbound")
		r.serverRedirect(dispatcher(r.Context, false), target, req, resp)
	default:
		resp.SetStatus(restlet.StatusNotImplemented)
	}
}

func (r *Redirector) serverRedirect(next restlet.Handler, target *restlet.Reference, req *restlet.Request, resp *restlet.Response) {
	if next == nil {
		r.Context.Log().WithError(ErrNoDispatcher).Error("Cannot redirect")
		resp.SetError(restlet.ConfigError{Err: ErrNoDispatcher})
		return
	}
	target.SetBase(target.Root())
	req.ResourceRef = target
	req.RootRef = target.Root()
	req.Protocol = restlet.Protocol{}
	req.Attributes.Delete(restlet.HeadersAttribute)
	next.Handle(req, resp)
}

func dispatcher(ctx *restlet.Context, outbound bool) restlet.Handler {
	switch {
	case ctx == nil:
		return nil
	case outbound:
		return ctx.ClientDispatcher
	default:
		return ctx.ServerDispatcher
	}
}

// Redirect attaches a redirector from pattern to target.
func (r *Router) Redirect(pattern, target string, mode RedirectMode) (*TemplateRoute, error) {
	redirector, err := NewRedirector(r.Context, target, mode)
	if err != nil {
		return nil, err
	}
	return r.Attach(pattern, redirector)
}

// RedirectPermanent attaches a 301 redirect.
func (r *Router) RedirectPermanent(pattern, target string) (*TemplateRoute, error) {
	return r.Redirect(pattern, target, ClientPermanent)
}

// RedirectFound attaches a 302 redirect.
func (r *Router) RedirectFound(pattern, target string) (*TemplateRoute, error) {
	return r.Redirect(pattern, target, ClientFound)
}

// RedirectSeeOther attaches a 303 redirect.
func (r *Router) RedirectSeeOther(pattern, target string) (*TemplateRoute, error) {
	return r.Redirect(pattern, target, ClientSeeOther)
}

// RedirectTemporary attaches a 307 redirect.
func (r *Router) RedirectTemporary(pattern, target string) (*TemplateRoute, error) {
	return r.Redirect(pattern, target, ClientTemporary)
}
