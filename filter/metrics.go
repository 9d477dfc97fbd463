// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package filter

import (
	"fmt"

	"github.com/diffeo/go-restlet/restlet"
	"github.com/diffeo/go-restlet/routing"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts calls and observes their duration.
type Metrics struct {
	Context  *restlet.Context
	Calls    *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewMetricsHooks creates the collectors and registers them with reg,
// which may be nil to skip registration.
func NewMetricsHooks(ctx *restlet.Context, namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Context: ctx,
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Calls handled, by method and status class.",
		}, []string{"method", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Time spent handling calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.Calls, m.Duration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// NewMetrics creates a metrics filter.
func NewMetrics(ctx *restlet.Context, namespace string, reg prometheus.Registerer, next restlet.Handler) (*routing.Filter, error) {
	m, err := NewMetricsHooks(ctx, namespace, reg)
	if err != nil {
		return nil, err
	}
	return routing.NewFilter(ctx, m, next), nil
}

// StatusClass returns "2xx" and the like; connector statuses are
// "connector".
func StatusClass(s restlet.Status) string {
	if s.IsConnectorError() {
		return "connector"
	}
	return fmt.Sprintf("%dxx", s.Code/100)
}

// BeforeHandle notes the start time.
func (m *Metrics) BeforeHandle(req *restlet.Request, resp *restlet.Response) routing.Action {
	markStart(req, m.Context.Time().Now())
	return routing.Continue
}

// AfterHandle records the call.
func (m *Metrics) AfterHandle(req *restlet.Request, resp *restlet.Response) {
	method := string(req.Method)
	m.Calls.WithLabelValues(method, StatusClass(resp.Status)).Inc()
	m.Duration.WithLabelValues(method).Observe(elapsed(req, m.Context.Time().Now()).Seconds())
}
