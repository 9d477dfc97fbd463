// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package resource is a skeleton for handlers that exchange Go
// values rather than representations.  A Resource decodes the
// request entity into a fresh copy of its Representation, calls the
// function for the request method, and negotiates a representation
// of whatever comes back.
package resource

import (
	"net/url"
	"reflect"

	"github.com/diffeo/go-restlet/converter"
	"github.com/diffeo/go-restlet/representation"
	"github.com/diffeo/go-restlet/restlet"
)

// Created is returned by handler functions that created a new
// resource.
type Created struct {
	// Location is the reference of the new resource, possibly
	// relative to the request.
	Location string

	// Body is sent as the response entity.
	Body interface{}
}

// Call holds what handler functions get to see of a call.
type Call struct {
	Request  *restlet.Request
	Response *restlet.Response

	// Query is the parsed query of the resource reference.
	Query url.Values

	// Target is whatever Find returned.
	Target interface{}
}

// Attribute returns a request attribute, such as a template
// variable, as a string.
func (c *Call) Attribute(name string) string {
	return c.Request.Attributes.GetString(name)
}

// Resource is a handler built from per-method functions.  Methods
// without a function answer 405 Method Not Allowed; a nil result
// answers 204 No Content.
type Resource struct {
	Context *restlet.Context

	// Converters decode request entities and encode results.
	// nil means the stock JSON and CBOR converters.
	Converters *converter.Service

	// Representation is a value of the type PUT and POST entities
	// decode into.  nil passes the entity itself.
	Representation interface{}

	// Find, if non-nil, runs before every method function and
	// sets the call's target.  Its errors, 404 typically, end the
	// call.
	Find func(*Call) (interface{}, error)

	// Get returns a representation of the resource.  It also
	// serves HEAD.
	Get func(*Call) (interface{}, error)

	// Put updates the resource from a value of the
	// Representation's type.
	Put func(*Call, interface{}) (interface{}, error)

	// Post takes some arbitrary action with a value of the
	// Representation's type.  It may return Created.
	Post func(*Call, interface{}) (interface{}, error)

	// Delete deletes the resource.
	Delete func(*Call) (interface{}, error)

	// Options describes the resource.  Without it, OPTIONS
	// answers with just the Allow: list.
	Options func(*Call) (interface{}, error)
}

func (r *Resource) converters() *converter.Service {
	if r.Converters == nil {
		return converter.NewService()
	}
	return r.Converters
}

// Allowed returns the methods the resource implements.
func (r *Resource) Allowed() []restlet.Method {
	var result []restlet.Method
	if r.Get != nil {
		result = append(result, restlet.MethodGet, restlet.MethodHead)
	}
	if r.Put != nil {
		result = append(result, restlet.MethodPut)
	}
	if r.Post != nil {
		result = append(result, restlet.MethodPost)
	}
	if r.Delete != nil {
		result = append(result, restlet.MethodDelete)
	}
	return append(result, restlet.MethodOptions)
}

// errMethodNotAllowed flags a method without a function.
type errMethodNotAllowed struct {
	Method restlet.Method
}

func (e errMethodNotAllowed) Error() string {
	return "Method " + e.Method.String() + " not allowed"
}

func (e errMethodNotAllowed) HTTPStatus() int {
	return restlet.StatusMethodNotAllowed.Code
}

// Handle runs the call.
func (r *Resource) Handle(req *restlet.Request, resp *restlet.Response) {
	call := &Call{
		Request:  req,
		Response: resp,
		Query:    req.ResourceRef.QueryValues(),
	}

	// Recover from panics by sending an error entity.
	defer func() {
		if recovered := recover(); recovered != nil {
			r.Context.Log().WithField("panic", recovered).Error("Panic in resource")
			body := converter.ErrorResponse{}
			body.FromPanic(recovered)
			resp.SetStatus(restlet.StatusInternalServerError)
			resp.Entity = r.errorEntity(req, body)
		}
	}()

	out, err := r.dispatch(call)

	switch created, isCreated := out.(Created); {
	case err != nil:
		resp.SetError(err)
		if _, ok := err.(errMethodNotAllowed); ok {
			resp.AllowedMethods = r.Allowed()
		}
		body := converter.ErrorResponse{}
		body.FromStatus(resp.Status, err)
		resp.Entity = r.errorEntity(req, body)
		return
	case isCreated:
		resp.SetStatus(restlet.StatusCreated)
		if created.Location != "" {
			if loc, err := req.ResourceRef.Resolve(created.Location); err == nil {
				resp.LocationRef = loc
			}
		}
		out = created.Body
	case req.Method == restlet.MethodOptions:
		resp.AllowedMethods = r.Allowed()
		resp.SetStatus(restlet.StatusOK)
	default:
		resp.SetStatus(restlet.StatusOK)
	}

	if out == nil {
		if resp.Status.Equals(restlet.StatusOK) {
			resp.SetStatus(restlet.StatusNoContent)
		}
		return
	}
	if rep, ok := out.(representation.Representation); ok {
		resp.Entity = rep
		return
	}
	entity, err := r.converters().ToRepresentation(out, req.ClientInfo.Conneg(nil))
	if err != nil {
		resp.SetError(err)
		return
	}
	resp.Entity = entity
}

func (r *Resource) dispatch(call *Call) (interface{}, error) {
	req := call.Request
	if r.Find != nil {
		target, err := r.Find(call)
		if err != nil {
			return nil, err
		}
		call.Target = target
	}

	var in interface{}
	if req.Method == restlet.MethodPut || req.Method == restlet.MethodPost {
		var err error
		in, err = r.decode(req)
		if err != nil {
			return nil, err
		}
	}

	switch req.Method {
	case restlet.MethodGet, restlet.MethodHead:
		if r.Get != nil {
			return r.Get(call)
		}
	case restlet.MethodPut:
		if r.Put != nil {
			return r.Put(call, in)
		}
	case restlet.MethodPost:
		if r.Post != nil {
			return r.Post(call, in)
		}
	case restlet.MethodDelete:
		if r.Delete != nil {
			return r.Delete(call)
		}
	case restlet.MethodOptions:
		if r.Options != nil {
			return r.Options(call)
		}
		return nil, nil
	}
	return nil, errMethodNotAllowed{Method: req.Method}
}

// decode reads the request entity into a new value of the
// Representation's type, returned by value.
func (r *Resource) decode(req *restlet.Request) (interface{}, error) {
	if r.Representation == nil {
		if req.Entity == nil {
			return nil, nil
		}
		return req.Entity, nil
	}
	ptr := reflect.New(reflect.TypeOf(r.Representation))
	if req.Entity == nil {
		return ptr.Elem().Interface(), nil
	}
	if err := r.converters().ToObject(req.Context(), req.Entity, ptr.Interface()); err != nil {
		if _, unsupported := err.(converter.ErrUnsupportedMediaType); unsupported {
			return nil, err
		}
		return nil, restlet.StatusError{Status: restlet.StatusBadRequest, Err: err}
	}
	return ptr.Elem().Interface(), nil
}

// errorEntity negotiates a representation of an error body, falling
// back to JSON when the client accepts nothing the converters write.
func (r *Resource) errorEntity(req *restlet.Request, body converter.ErrorResponse) representation.Representation {
	conv := r.converters()
	entity, err := conv.ToRepresentation(body, req.ClientInfo.Conneg(nil))
	if err == nil {
		return entity
	}
	variants := conv.Variants(body)
	if len(variants) == 0 {
		return nil
	}
	entity, err = conv.Encode(body, variants[0])
	if err != nil {
		return nil
	}
	return entity
}
