// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package component

import (
	"github.com/diffeo/go-restlet/converter"
	"github.com/diffeo/go-restlet/filter"
	"github.com/diffeo/go-restlet/metadata"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/diffeo/go-restlet/riap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// RateLimit configures per-client rate limiting.
type RateLimit struct {
	// Rate is the sustained number of calls per second.
	Rate float64
	// Burst is how many calls may arrive at once.
	Burst int
}

// Services selects the filters an application puts in front of its
// root.
type Services struct {
	// Tunnel honors method and preference overrides in the query
	// and in file extensions.
	Tunnel bool
	// Encoder compresses response entities on request.
	Encoder bool
	// RateLimit, if set, limits each client address.
	RateLimit *RateLimit
	// Metrics, if set, counts calls against this registerer.
	Metrics prometheus.Registerer
}

// DefaultServices turns on tunneling and encoding.
func DefaultServices() Services {
	return Services{Tunnel: true, Encoder: true}
}

// Application is a self-contained set of resources with its own
// services.  Calls pass metrics, rate limiting, tunneling and
// encoding, in that order, before reaching the root.
type Application struct {
	Context    *restlet.Context
	Name       string
	Metadata   *metadata.Service
	Converters *converter.Service

	root    restlet.Handler
	inbound restlet.Handler
}

// NewApplication creates an application around root.  It fails only
// if the metrics collectors cannot be registered.
func NewApplication(ctx *restlet.Context, name string, root restlet.Handler, services Services) (*Application, error) {
	ctx = ctx.Child(logrus.Fields{"application": name})
	app := &Application{
		Context:    ctx,
		Name:       name,
		Metadata:   metadata.NewService(),
		Converters: converter.NewService(),
		root:       root,
	}
	next := root
	if services.Encoder {
		next = filter.NewEncoder(ctx, next)
	}
	if services.Tunnel {
		next = filter.NewTunnel(ctx, app.Metadata, next)
	}
	if services.RateLimit != nil {
		next = filter.NewRateLimit(ctx, services.RateLimit.Rate, services.RateLimit.Burst, next)
	}
	if services.Metrics != nil {
		m, err := filter.NewMetrics(ctx, metricsNamespace(name), services.Metrics, next)
		if err != nil {
			return nil, err
		}
		next = m
	}
	app.inbound = next
	return app, nil
}

// metricsNamespace turns an application name into a Prometheus
// namespace.
func metricsNamespace(name string) string {
	b := []byte(name)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9' && i > 0:
		default:
			b[i] = '_'
		}
	}
	return string(b)
}

// Root returns the handler behind the services.
func (a *Application) Root() restlet.Handler {
	return a.root
}

// MatchesPrefix is true: the application routes the remainder of
// the reference itself.
func (a *Application) MatchesPrefix() bool {
	return true
}

// Handle marks the call for riap://application references and passes
// it through the services.
func (a *Application) Handle(req *restlet.Request, resp *restlet.Response) {
	req.SetContext(riap.WithApplication(req.Context(), a))
	a.inbound.Handle(req, resp)
}

// Start starts the root.
func (a *Application) Start() error {
	a.Context.Log().Debug("Starting application")
	return restlet.Start(a.root)
}

// Stop stops the root.
func (a *Application) Stop() error {
	return restlet.Stop(a.root)
}
