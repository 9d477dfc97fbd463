// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package filter

import (
	"github.com/diffeo/go-restlet/restlet"
	"github.com/diffeo/go-restlet/routing"
	"github.com/sirupsen/logrus"
)

// Log writes one access log line per call.
type Log struct {
	Context *restlet.Context
	// Level is the level of successful calls; errors always log at
	// warning and server errors at error.
	Level logrus.Level
}

// NewLog creates a logging filter.
func NewLog(ctx *restlet.Context, next restlet.Handler) *routing.Filter {
	return routing.NewFilter(ctx, &Log{Context: ctx, Level: logrus.InfoLevel}, next)
}

// BeforeHandle notes the start time.
func (l *Log) BeforeHandle(req *restlet.Request, resp *restlet.Response) routing.Action {
	markStart(req, l.Context.Time().Now())
	return routing.Continue
}

// AfterHandle writes the log line.
func (l *Log) AfterHandle(req *restlet.Request, resp *restlet.Response) {
	fields := logrus.Fields{
		"method":   req.Method,
		"status":   resp.Status.Code,
		"duration": elapsed(req, l.Context.Time().Now()),
		"client":   req.ClientInfo.Address,
	}
	if req.ResourceRef != nil {
		fields["ref"] = req.ResourceRef.String()
	}
	if req.ID != "" {
		fields["id"] = req.ID
	}
	entry := l.Context.Log().WithFields(fields)
	if resp.Err != nil {
		entry = entry.WithError(resp.Err)
	}
	switch {
	case resp.Status.IsServerError() || resp.Status.IsConnectorError():
		entry.Error("Call failed")
	case resp.Status.IsClientError():
		entry.Warn("Call rejected")
	default:
		entry.Log(l.Level, "Call handled")
	}
}
