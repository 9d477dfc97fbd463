// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restlet

import (
	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// Context carries the services a component or application shares
// with the handlers it contains.  It is created at wiring time and
// passed by reference; handlers must not modify it once calls are
// flowing.  A nil *Context is valid and supplies defaults.
type Context struct {
	// Logger is the base log entry for this context.
	Logger *logrus.Entry

	// Parameters holds free-form configuration, such as connector
	// options.
	Parameters map[string]interface{}

	// ClientDispatcher sends outbound calls to client connectors.
	ClientDispatcher Handler

	// ServerDispatcher sends calls back into the component as if
	// they had arrived on a server connector.
	ServerDispatcher Handler

	// Clock is the time source for retries and rate limits.
	Clock clock.Clock
}

// NewContext creates a context logging to logger, or to the standard
// logrus logger if logger is nil.
func NewContext(logger *logrus.Entry) *Context {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Context{
		Logger:     logger,
		Parameters: map[string]interface{}{},
		Clock:      clock.New(),
	}
}

// Child returns a copy of c whose logger carries extra fields.  The
// dispatchers and parameters are shared.
func (c *Context) Child(fields logrus.Fields) *Context {
	child := &Context{}
	if c != nil {
		*child = *c
	}
	child.Logger = c.Log().WithFields(fields)
	return child
}

// Log returns the logger, never nil.
func (c *Context) Log() *logrus.Entry {
	if c == nil || c.Logger == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return c.Logger
}

// Time returns the clock, never nil.
func (c *Context) Time() clock.Clock {
	if c == nil || c.Clock == nil {
		return clock.New()
	}
	return c.Clock
}

// Parameter returns a parameter value and whether it was set.
func (c *Context) Parameter(name string) (interface{}, bool) {
	if c == nil || c.Parameters == nil {
		return nil, false
	}
	v, ok := c.Parameters[name]
	return v, ok
}
