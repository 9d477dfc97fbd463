// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package routing

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/diffeo/go-restlet/metadata"
	"github.com/diffeo/go-restlet/representation"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/diffeo/go-restlet/template"
)

// Scorer rates how well a call fits some target, from 0 (not at all)
// to 1 (perfectly).  Score must not change the call.
type Scorer interface {
	Score(req *restlet.Request, resp *restlet.Response) float64
}

// Route is a scored handler inside a router.
type Route interface {
	Scorer
	restlet.Handler
	// Next returns the handler the route forwards to.
	Next() restlet.Handler
}

// DefaultRequiredScore is the score a route needs to be selected.
const DefaultRequiredScore = 0.5

type extractSource int

const (
	fromQuery extractSource = iota
	fromCookie
	fromEntity
)

type extract struct {
	source    extractSource
	attribute string
	name      string
	first     bool
}

type validation struct {
	attribute string
	required  bool
	format    *regexp.Regexp
}

// TemplateRoute routes calls whose remaining reference matches a URI
// template.  A TemplateRoute is not modified after it is created.
type TemplateRoute struct {
	router        *Router
	template      *template.Template
	next          restlet.Handler
	matchingQuery bool
	protocols     []restlet.Protocol
	contentTypes  []metadata.MediaType
	extracts      []extract
	validations   []validation

	// used only while building
	mode         template.Mode
	templateOpts []template.Option
}

// RouteOption configures a TemplateRoute as it is attached.
type RouteOption func(*TemplateRoute)

// MatchMode overrides the matching mode inferred from the target.
func MatchMode(mode template.Mode) RouteOption {
	return func(r *TemplateRoute) {
		r.mode = mode
	}
}

// MatchQuery includes the query string in the part matched against
// the template.
func MatchQuery(matching bool) RouteOption {
	return func(r *TemplateRoute) {
		r.matchingQuery = matching
	}
}

// TemplateOptions passes options through to template.New.
func TemplateOptions(opts ...template.Option) RouteOption {
	return func(r *TemplateRoute) {
		r.templateOpts = append(r.templateOpts, opts...)
	}
}

// Protocols limits the route to calls using one of protocols.
func Protocols(protocols ...restlet.Protocol) RouteOption {
	return func(r *TemplateRoute) {
		r.protocols = append(r.protocols, protocols...)
	}
}

// ContentTypes limits the route to calls with no entity or an entity
// whose media type is included in one of types.
func ContentTypes(types ...metadata.MediaType) RouteOption {
	return func(r *TemplateRoute) {
		r.contentTypes = append(r.contentTypes, types...)
	}
}

// ExtractQuery copies a query parameter into a request attribute.  If
// first is set the attribute is the first value as a string;
// otherwise it is every value as a []string.
func ExtractQuery(attribute, param string, first bool) RouteOption {
	return func(r *TemplateRoute) {
		r.extracts = append(r.extracts, extract{fromQuery, attribute, param, first})
	}
}

// ExtractCookie copies a cookie value into a request attribute.
func ExtractCookie(attribute, cookie string, first bool) RouteOption {
	return func(r *TemplateRoute) {
		r.extracts = append(r.extracts, extract{fromCookie, attribute, cookie, first})
	}
}

// ExtractEntity copies a field of a form-encoded entity into a request
// attribute.
func ExtractEntity(attribute, field string, first bool) RouteOption {
	return func(r *TemplateRoute) {
		r.extracts = append(r.extracts, extract{fromEntity, attribute, field, first})
	}
}

// Validate checks a request attribute once variables and extracts
// are in place.  A missing required attribute, or a value not
// matching format, fails the call with 400 Bad Request.  format may
// be nil.
func Validate(attribute string, required bool, format *regexp.Regexp) RouteOption {
	return func(r *TemplateRoute) {
		r.validations = append(r.validations, validation{attribute, required, format})
	}
}

// NewTemplateRoute creates a route outside of Router.Attach.  router
// supplies the required score and may be nil.
func NewTemplateRoute(router *Router, pattern string, next restlet.Handler, opts ...RouteOption) (*TemplateRoute, error) {
	r := &TemplateRoute{
		router: router,
		next:   next,
		mode:   template.Equals,
	}
	if router != nil {
		r.mode = router.matchingMode(next)
		r.matchingQuery = router.DefaultMatchingQuery
		r.templateOpts = []template.Option{template.WithDefaultVariable(router.DefaultVariable)}
	}
	for _, opt := range opts {
		opt(r)
	}
	tmpl, err := template.New(pattern, append([]template.Option{template.WithMode(r.mode)}, r.templateOpts...)...)
	if err != nil {
		return nil, restlet.ConfigError{Err: err}
	}
	r.template = tmpl
	r.templateOpts = nil
	return r, nil
}

// Template returns the route's template.
func (r *TemplateRoute) Template() *template.Template {
	return r.template
}

// Next returns the route's target.
func (r *TemplateRoute) Next() restlet.Handler {
	return r.next
}

func (r *TemplateRoute) requiredScore() float64 {
	if r.router == nil {
		return DefaultRequiredScore
	}
	return r.router.RequiredScore
}

func (r *TemplateRoute) protocolFactor(req *restlet.Request) float64 {
	if len(r.protocols) == 0 || req.EffectiveProtocol().In(r.protocols) {
		return 1.0
	}
	return 0.0
}

func (r *TemplateRoute) contentTypeFactor(req *restlet.Request) float64 {
	if len(r.contentTypes) == 0 || req.Entity == nil {
		return 1.0
	}
	mt := req.Entity.Variant().MediaType
	if mt.IsZero() {
		return 1.0
	}
	for _, ct := range r.contentTypes {
		if ct.Includes(mt) {
			return 1.0
		}
	}
	return 0.0
}

// Score is the path quality scaled by the protocol and content type
// factors, each 0 or 1.  The path quality is 0 when the template
// does not match the remaining part and otherwise rises from the
// required score toward 1 with the fraction of the remaining part
// matched.
func (r *TemplateRoute) Score(req *restlet.Request, resp *restlet.Response) float64 {
	if req == nil || req.ResourceRef == nil {
		return 0.0
	}
	factor := r.protocolFactor(req) * r.contentTypeFactor(req)
	if factor == 0 {
		return 0.0
	}
	remaining := req.ResourceRef.RemainingPart(false, r.matchingQuery)
	matched := r.template.Match(remaining)
	if matched < 0 {
		return 0.0
	}
	if len(remaining) == 0 {
		return factor
	}
	rs := r.requiredScore()
	return factor * (rs + (1.0-rs)*float64(matched)/float64(len(remaining)))
}

// Handle matches the template again, moves the base reference over
// the matched text, copies variables and extracts into the request
// attributes, validates them, and forwards the call.
func (r *TemplateRoute) Handle(req *restlet.Request, resp *restlet.Response) {
	if !r.beforeHandle(req, resp) {
		return
	}
	if r.next == nil {
		resp.Status = restlet.StatusNotImplemented.WithDescription(ErrNoNext.Error())
		resp.Err = restlet.ConfigError{Err: ErrNoNext}
		return
	}
	r.next.Handle(req, resp)
}

func (r *TemplateRoute) beforeHandle(req *restlet.Request, resp *restlet.Response) bool {
	ref := req.ResourceRef
	remaining := ref.RemainingPart(false, r.matchingQuery)
	match, ok := r.template.Parse(remaining)
	if !ok {
		resp.SetStatus(restlet.StatusNotFound)
		return false
	}
	ref.ExtendBase(match.Length)
	for _, name := range match.Names() {
		req.Attributes.Set(name, match.Variables[name])
	}

	for _, ex := range r.extracts {
		switch ex.source {
		case fromQuery:
			setExtract(req, ex, ref.QueryValues()[ex.name])
		case fromCookie:
			var values []string
			for _, c := range req.Cookies {
				if c.Name == ex.name {
					values = append(values, c.Value)
				}
			}
			setExtract(req, ex, values)
		case fromEntity:
			form, err := entityForm(req)
			if err != nil {
				resp.SetError(restlet.StatusError{Status: restlet.StatusBadRequest, Err: err})
				return false
			}
			setExtract(req, ex, form[ex.name])
		}
	}

	for _, v := range r.validations {
		value, present := req.Attributes.Get(v.attribute)
		if !present {
			if v.required {
				resp.SetError(restlet.NewStatusError(restlet.StatusBadRequest,
					"missing required attribute %q", v.attribute))
				return false
			}
			continue
		}
		if v.format != nil && !v.format.MatchString(fmt.Sprint(value)) {
			resp.SetError(restlet.NewStatusError(restlet.StatusBadRequest,
				"attribute %q does not match the required format", v.attribute))
			return false
		}
	}
	return true
}

func setExtract(req *restlet.Request, ex extract, values []string) {
	if len(values) == 0 {
		return
	}
	if ex.first {
		req.Attributes.Set(ex.attribute, values[0])
	} else {
		req.Attributes.Set(ex.attribute, values)
	}
}

// entityForm reads a form-encoded request entity.  The entity is
// replaced with an in-memory copy so that later handlers can still
// read it.
func entityForm(req *restlet.Request) (url.Values, error) {
	if req.Entity == nil || !metadata.ApplicationWWWForm.Includes(req.Entity.Variant().MediaType) {
		return url.Values{}, nil
	}
	data, err := representation.ReadAll(req.Context(), req.Entity)
	if err != nil {
		return nil, err
	}
	copied := representation.NewBytes(data, req.Entity.Variant().MediaType)
	copied.Metadata = req.Entity.Variant()
	req.Entity = copied
	return url.ParseQuery(string(data))
}
