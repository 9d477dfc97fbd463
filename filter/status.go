// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package filter

import (
	"fmt"
	"html"

	"github.com/diffeo/go-restlet/converter"
	"github.com/diffeo/go-restlet/metadata"
	"github.com/diffeo/go-restlet/representation"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/diffeo/go-restlet/routing"
	"github.com/sirupsen/logrus"
)

// Status turns panics below it into 500 responses and gives error
// responses without an entity a description of the error, as plain
// text, HTML, or whatever the converters offer, by negotiation.
type Status struct {
	*routing.Filter
	Converters *converter.Service

	// Overwrite replaces entities that error responses already
	// carry.
	Overwrite bool
}

// NewStatus creates a status filter.  converters may be nil for only
// text and HTML.
func NewStatus(ctx *restlet.Context, converters *converter.Service, next restlet.Handler) *Status {
	s := &Status{Converters: converters}
	s.Filter = routing.NewFilter(ctx, s, next)
	return s
}

// Handle runs the chain, recovering panics.
func (s *Status) Handle(req *restlet.Request, resp *restlet.Response) {
	defer func() {
		if obj := recover(); obj != nil {
			s.Context.Log().WithFields(logrus.Fields{
				"method": req.Method,
				"panic":  obj,
			}).Error("Handler panicked")
			var body converter.ErrorResponse
			body.FromPanic(obj)
			resp.Status = restlet.StatusInternalServerError
			resp.Err = fmt.Errorf("panic: %s", body.Message)
			resp.Entity = s.errorEntity(req, body)
		}
	}()
	s.Filter.Handle(req, resp)
}

// BeforeHandle continues.
func (s *Status) BeforeHandle(req *restlet.Request, resp *restlet.Response) routing.Action {
	return routing.Continue
}

// AfterHandle adds the error entity.
func (s *Status) AfterHandle(req *restlet.Request, resp *restlet.Response) {
	if !resp.Status.IsError() || (resp.Entity != nil && !s.Overwrite) {
		return
	}
	var body converter.ErrorResponse
	body.FromStatus(resp.Status, resp.Err)
	resp.Entity = s.errorEntity(req, body)
}

var errorVariants = []metadata.Variant{
	{MediaType: metadata.TextPlain, CharacterSet: metadata.UTF8},
	{MediaType: metadata.TextHTML, CharacterSet: metadata.UTF8},
}

func (s *Status) errorEntity(req *restlet.Request, body converter.ErrorResponse) representation.Representation {
	variants := append([]metadata.Variant(nil), errorVariants...)
	if s.Converters != nil {
		variants = append(variants, s.Converters.Variants(body)...)
	}
	best := req.ClientInfo.Conneg(nil).PreferredVariant(variants)
	switch {
	case best == 0 || best < 0:
		return representation.NewString(fmt.Sprintf("%d %s\n%s\n", body.Status, body.Error, body.Message), metadata.TextPlain)
	case best == 1:
		return representation.NewString(fmt.Sprintf(
			"<html><head><title>%d %s</title></head><body><h1>%s</h1><p>%s</p></body></html>\n",
			body.Status, html.EscapeString(body.Error),
			html.EscapeString(body.Error), html.EscapeString(body.Message)), metadata.TextHTML)
	}
	rep, err := s.Converters.Encode(body, variants[best])
	if err != nil {
		s.Context.Log().WithError(err).Warn("Could not encode error response")
		return representation.NewString(body.Message, metadata.TextPlain)
	}
	return rep
}
