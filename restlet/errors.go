// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restlet

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorStatus describes errors that correspond to specific HTTP status
// codes.
type ErrorStatus interface {
	// HTTPStatus returns the HTTP status code for this error.
	HTTPStatus() int
}

// ErrMissingProtocol is the configuration error for a call with no
// protocol and no scheme to infer one from.
var ErrMissingProtocol = errors.New("no protocol specified and none can be inferred from the resource reference")

// ErrUnformattedTemplate is the configuration error for a call whose
// resource reference is still a URI template when it reaches a client
// connector.
var ErrUnformattedTemplate = errors.New("resource reference is an unformatted URI template")

// ConfigError wraps a mistake in how handlers were wired together.
// It fails the call it happens on and nothing else.
type ConfigError struct {
	Err error
}

func (e ConfigError) Error() string {
	return "configuration error: " + e.Err.Error()
}

// Unwrap returns the embedded error.
func (e ConfigError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the embedded error's status, or 500 Internal
// Server Error.
func (e ConfigError) HTTPStatus() int {
	if es, ok := e.Err.(ErrorStatus); ok {
		return es.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// ErrUnsupportedProtocol is returned when no connector helper is
// registered for a protocol.
type ErrUnsupportedProtocol struct {
	Protocol Protocol
}

func (e ErrUnsupportedProtocol) Error() string {
	if e.Protocol.IsZero() {
		return "unsupported protocol"
	}
	return fmt.Sprintf("unsupported protocol %v", e.Protocol.Name)
}

// Status returns the connector internal error status.
func (e ErrUnsupportedProtocol) Status() Status {
	return StatusConnectorInternal.WithDescription(e.Error())
}

// HTTPStatus returns a fixed 500 Internal Server Error code.
func (e ErrUnsupportedProtocol) HTTPStatus() int {
	return http.StatusInternalServerError
}

// StatusError is an error with a specific response status, returned
// by resource code that wants something other than 500.
type StatusError struct {
	Status Status
	Err    error
}

// NewStatusError creates a StatusError with a formatted message.
func NewStatusError(s Status, format string, args ...interface{}) StatusError {
	return StatusError{Status: s, Err: fmt.Errorf(format, args...)}
}

func (e StatusError) Error() string {
	if e.Err == nil {
		return e.Status.String()
	}
	return e.Err.Error()
}

// Unwrap returns the embedded error.
func (e StatusError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the status's code on the wire.
func (e StatusError) HTTPStatus() int {
	return e.Status.HTTPStatus()
}

// statuser is implemented by errors that know their full Status.
type statuser interface {
	Status() Status
}

// StatusOf maps an error to a response status.  nil is 200 OK;
// a StatusError or anything else with a Status() method gives that
// status; anything implementing ErrorStatus gives the status for its
// code; everything else is 500.  The description is the error text.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var se StatusError
	if errors.As(err, &se) {
		s := se.Status
		if s.Description == "" && se.Err != nil {
			s.Description = se.Err.Error()
		}
		return s
	}
	var st statuser
	if errors.As(err, &st) {
		return st.Status()
	}
	var es ErrorStatus
	if errors.As(err, &es) {
		return StatusFor(es.HTTPStatus()).WithDescription(err.Error())
	}
	return StatusInternalServerError.WithDescription(err.Error())
}
