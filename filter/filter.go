// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package filter provides the stock filters an application puts in
// front of its routes: method and preference tunneling, rate
// limiting, entity compression, request logging, error statuses and
// metrics.
package filter

import (
	"time"

	"github.com/diffeo/go-restlet/restlet"
)

// startAttribute holds the time a call entered the first timing
// filter.
const startAttribute = "org.restlet.filter.start"

// markStart records now as the start of the call unless an earlier
// filter already did.
func markStart(req *restlet.Request, now time.Time) {
	if !req.Attributes.Has(startAttribute) {
		req.Attributes.Set(startAttribute, now)
	}
}

// elapsed returns the time since markStart, or 0.
func elapsed(req *restlet.Request, now time.Time) time.Duration {
	v, ok := req.Attributes.Get(startAttribute)
	if !ok {
		return 0
	}
	start, ok := v.(time.Time)
	if !ok {
		return 0
	}
	return now.Sub(start)
}
