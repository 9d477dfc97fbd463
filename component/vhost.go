// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package component

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/diffeo/go-restlet/restlet"
	"github.com/diffeo/go-restlet/riap"
	"github.com/diffeo/go-restlet/routing"
)

// HostPatterns select the calls a virtual host accepts.  Each is a
// regular expression matched case-insensitively against the whole
// value; an empty pattern matches anything.
type HostPatterns struct {
	// HostDomain matches the host name the client asked for.
	HostDomain string `mapstructure:"hostDomain"`
	// HostPort matches the port the client asked for.
	HostPort string `mapstructure:"hostPort"`
	// HostScheme matches the scheme of the resource reference.
	HostScheme string `mapstructure:"hostScheme"`
	// ServerAddress matches the local address the call arrived on.
	ServerAddress string `mapstructure:"serverAddress"`
	// ServerPort matches the local port the call arrived on.
	ServerPort string `mapstructure:"serverPort"`
}

// VirtualHost is a router for the calls addressed to one set of
// host names, ports and schemes.
type VirtualHost struct {
	*routing.Router
	Name     string
	Patterns HostPatterns

	domain, port, scheme *regexp.Regexp
	serverAddr, servPort *regexp.Regexp
}

// NewVirtualHost creates a virtual host; it fails if a pattern is
// not a valid regular expression.
func NewVirtualHost(ctx *restlet.Context, patterns HostPatterns) (*VirtualHost, error) {
	h := &VirtualHost{
		Router:   routing.NewRouter(ctx),
		Patterns: patterns,
	}
	for _, item := range []struct {
		name    string
		pattern string
		re      **regexp.Regexp
	}{
		{"hostDomain", patterns.HostDomain, &h.domain},
		{"hostPort", patterns.HostPort, &h.port},
		{"hostScheme", patterns.HostScheme, &h.scheme},
		{"serverAddress", patterns.ServerAddress, &h.serverAddr},
		{"serverPort", patterns.ServerPort, &h.servPort},
	} {
		if item.pattern == "" {
			continue
		}
		re, err := regexp.Compile("^(?i:" + item.pattern + ")$")
		if err != nil {
			return nil, fmt.Errorf("virtual host %s: %v", item.name, err)
		}
		*item.re = re
	}
	return h, nil
}

// NewDefaultHost creates a virtual host accepting every call.
func NewDefaultHost(ctx *restlet.Context) *VirtualHost {
	h, _ := NewVirtualHost(ctx, HostPatterns{})
	return h
}

func matches(re *regexp.Regexp, value string) bool {
	return re == nil || re.MatchString(value)
}

// Score is 1 if every pattern matches the call and 0 otherwise.
func (h *VirtualHost) Score(req *restlet.Request, resp *restlet.Response) float64 {
	ref := req.ResourceRef
	if ref == nil {
		return 0.0
	}
	if !matches(h.domain, ref.HostDomain()) ||
		!matches(h.port, strconv.Itoa(ref.HostPort())) ||
		!matches(h.scheme, ref.Scheme()) {
		return 0.0
	}
	if h.serverAddr != nil || h.servPort != nil {
		info := resp.ServerInfo()
		if !matches(h.serverAddr, info.Address) || !matches(h.servPort, strconv.Itoa(info.Port)) {
			return 0.0
		}
	}
	return 1.0
}

// Handle marks the call as handled by this host, for
// riap://host references, and routes it.
func (h *VirtualHost) Handle(req *restlet.Request, resp *restlet.Response) {
	req.SetContext(riap.WithHost(req.Context(), h))
	h.Router.Handle(req, resp)
}

// hostRoute puts a virtual host in the component's host router.
type hostRoute struct {
	host *VirtualHost
}

func (r hostRoute) Score(req *restlet.Request, resp *restlet.Response) float64 {
	return r.host.Score(req, resp)
}

func (r hostRoute) Handle(req *restlet.Request, resp *restlet.Response) {
	r.host.Handle(req, resp)
}

func (r hostRoute) Next() restlet.Handler {
	return r.host
}
