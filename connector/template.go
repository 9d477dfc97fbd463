// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package connector

import (
	"github.com/diffeo/go-restlet/cache"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/diffeo/go-restlet/routing"
	"github.com/diffeo/go-restlet/template"
	"github.com/sirupsen/logrus"
)

// DefaultTemplateCacheSize is how many compiled reference templates a
// TemplateDispatcher keeps.
const DefaultTemplateCacheSize = 256

// TemplateDispatcher formats calls whose resource reference is a URI
// template against the call, and passes every call on.  A reference
// of "http://{m}.example.com/{rr}" becomes a call to the request
// method's host.  Other references, including ones with
// percent-encoded braces, pass through untouched.
type TemplateDispatcher struct {
	Context *restlet.Context
	Next    restlet.Handler

	templates *cache.LRU
}

// NewTemplateDispatcher creates a template dispatcher.
func NewTemplateDispatcher(ctx *restlet.Context, next restlet.Handler) *TemplateDispatcher {
	return &TemplateDispatcher{
		Context:   ctx,
		Next:      next,
		templates: cache.NewLRU(DefaultTemplateCacheSize),
	}
}

func (d *TemplateDispatcher) compile(pattern string) (*template.Template, error) {
	t, err := d.templates.Get(pattern, func(p string) (interface{}, error) {
		return template.New(p)
	})
	if err != nil {
		return nil, err
	}
	return t.(*template.Template), nil
}

// Handle formats the reference and dispatches.
func (d *TemplateDispatcher) Handle(req *restlet.Request, resp *restlet.Response) {
	if pattern := req.ResourceRef.Template(); pattern != "" {
		if !d.format(pattern, req, resp) {
			return
		}
	}
	d.Next.Handle(req, resp)
}

func (d *TemplateDispatcher) format(pattern string, req *restlet.Request, resp *restlet.Response) bool {
	fail := func(err error) bool {
		d.Context.Log().WithError(err).WithFields(logrus.Fields{
			"template": pattern,
		}).Error("Cannot format target reference")
		resp.Status = restlet.StatusInternalServerError.WithDescription(err.Error())
		resp.Err = restlet.ConfigError{Err: err}
		return false
	}
	t, err := d.compile(pattern)
	if err != nil {
		return fail(err)
	}
	target, err := t.Format(routing.NewCallResolver(req, resp))
	if err != nil {
		return fail(err)
	}
	ref, err := restlet.ParseReference(target)
	if err != nil {
		return fail(err)
	}
	if ref.Base() == nil {
		ref.SetBase(ref.Root())
	}
	req.ResourceRef = ref
	return true
}
