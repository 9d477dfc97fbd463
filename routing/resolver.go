// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package routing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/diffeo/go-restlet/representation"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/diffeo/go-restlet/template"
)

// CallResolver resolves template variables from a call.  Request
// attributes come first, then response attributes, then the call
// variables:
//
//	m     method            p     protocol name
//	d     current date      cia   client address
//	ciua  client agent      emt   request entity media type
//	ecs   entity charset    el    entity languages
//	ee    entity encodings  es    entity size
//	S, s  response status   SIA   server address
//	SIG   server agent      SIP   server port
//	EMT   response entity media type
//	ES    response entity size
//
// Reference variables combine a reference letter with a part letter:
// r is the resource reference, f the referrer, o the root, R the
// response location.  The parts are a (authority), b (the base
// reference, followed by another part), e (remaining part with
// query), f (fragment), h (host identifier), i (identifier), p
// (path), q (query), r (remaining part), s (scheme); no part means
// the whole reference.  So "rp" is the resource path and "rbh" the
// host of the resource's base reference.
type CallResolver struct {
	Request  *restlet.Request
	Response *restlet.Response
	// Now supplies the date; nil means time.Now.
	Now func() time.Time
}

// NewCallResolver creates a resolver for a call.
func NewCallResolver(req *restlet.Request, resp *restlet.Response) *CallResolver {
	return &CallResolver{Request: req, Response: resp}
}

// Resolve implements template.Resolver.
func (c *CallResolver) Resolve(name string) (string, bool) {
	if c.Request != nil {
		if v, ok := c.Request.Attributes.Get(name); ok && v != nil {
			return fmt.Sprint(v), true
		}
	}
	if c.Response != nil {
		if v, ok := c.Response.Attributes.Get(name); ok && v != nil {
			return fmt.Sprint(v), true
		}
	}
	if c.Request != nil {
		if v, ok := c.requestVariable(name); ok {
			return v, true
		}
	}
	if c.Response != nil {
		return c.responseVariable(name)
	}
	return "", false
}

func (c *CallResolver) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *CallResolver) requestVariable(name string) (string, bool) {
	req := c.Request
	switch name {
	case "m":
		return string(req.Method), req.Method != ""
	case "p":
		p := req.EffectiveProtocol()
		return p.Name, !p.IsZero()
	case "d":
		return c.now().UTC().Format(time.RFC1123), true
	case "cia":
		return req.ClientInfo.Address, req.ClientInfo.Address != ""
	case "ciua", "cig":
		return req.ClientInfo.Agent, req.ClientInfo.Agent != ""
	case "emt", "ecs", "el", "ee", "es":
		return entityVariable(strings.ToUpper(name), req.Entity)
	}
	if len(name) == 0 {
		return "", false
	}
	switch name[0] {
	case 'r':
		return referencePart(name[1:], req.ResourceRef)
	case 'f':
		return referencePart(name[1:], req.Referrer)
	case 'o', 'h':
		return referencePart(name[1:], req.RootRef)
	}
	return "", false
}

func (c *CallResolver) responseVariable(name string) (string, bool) {
	resp := c.Response
	switch name {
	case "S", "s":
		return strconv.Itoa(resp.Status.Code), true
	case "EMT", "ECS", "EL", "EE", "ES":
		return entityVariable(name, resp.Entity)
	case "SIA":
		return resp.ServerInfo().Address, resp.ServerInfo().Address != ""
	case "SIG":
		return resp.ServerInfo().Agent, true
	case "SIP":
		port := resp.ServerInfo().Port
		return strconv.Itoa(port), port != -1
	}
	if strings.HasPrefix(name, "R") {
		return referencePart(name[1:], resp.LocationRef)
	}
	return "", false
}

func entityVariable(name string, entity representation.Representation) (string, bool) {
	if entity == nil {
		return "", false
	}
	variant := entity.Variant()
	switch name {
	case "EMT":
		return variant.MediaType.Name(), !variant.MediaType.IsZero()
	case "ECS":
		return variant.CharacterSet.Name(), !variant.CharacterSet.IsZero()
	case "EL":
		names := make([]string, len(variant.Languages))
		for i, lang := range variant.Languages {
			names[i] = lang.Name()
		}
		return strings.Join(names, ", "), len(names) > 0
	case "EE":
		names := make([]string, len(variant.Encodings))
		for i, enc := range variant.Encodings {
			names[i] = enc.Name()
		}
		return strings.Join(names, ", "), len(names) > 0
	case "ES":
		size := entity.Size()
		return strconv.FormatInt(size, 10), size != -1
	}
	return "", false
}

func referencePart(part string, ref *restlet.Reference) (string, bool) {
	if ref == nil {
		return "", false
	}
	switch {
	case part == "":
		return ref.String(), true
	case part == "a":
		return ref.Authority(), true
	case part[0] == 'b':
		return referencePart(part[1:], ref.Base())
	case part == "e":
		return ref.RemainingPart(false, true), true
	case part == "f":
		return ref.Fragment(), true
	case part == "h":
		return ref.HostIdentifier(), true
	case part == "i":
		return ref.Identifier(), true
	case part == "p":
		return ref.Path(), true
	case part == "q":
		return ref.Query(), true
	case part == "r":
		return ref.RemainingPart(false, false), true
	case part == "s":
		return ref.Scheme(), true
	}
	return "", false
}

var _ template.Resolver = (*CallResolver)(nil)
