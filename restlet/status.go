// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restlet

import (
	"fmt"
	"net/http"
)

// Status is a response status.  Codes below 1000 are HTTP status
// codes; codes 1000 and up describe failures of a client connector
// that never produced a response from the remote side.
type Status struct {
	Code        int
	Reason      string
	Description string
}

func status(code int, reason string) Status {
	return Status{Code: code, Reason: reason}
}

// Informational statuses.
var (
	StatusContinue           = status(100, "Continue")
	StatusSwitchingProtocols = status(101, "Switching Protocols")
	StatusProcessing         = status(102, "Processing")
)

// Statuses from the HTTP standard.
var (
	StatusOK                   = status(200, "OK")
	StatusCreated              = status(201, "Created")
	StatusAccepted             = status(202, "Accepted")
	StatusNonAuthoritative     = status(203, "Non-Authoritative Information")
	StatusNoContent            = status(204, "No Content")
	StatusResetContent         = status(205, "Reset Content")
	StatusPartialContent       = status(206, "Partial Content")
	StatusMultiStatus          = status(207, "Multi-Status")
	StatusMultipleChoices      = status(300, "Multiple Choices")
	StatusMovedPermanently     = status(301, "Moved Permanently")
	StatusFound                = status(302, "Found")
	StatusSeeOther             = status(303, "See Other")
	StatusNotModified          = status(304, "Not Modified")
	StatusUseProxy             = status(305, "Use Proxy")
	StatusTemporaryRedirect    = status(307, "Temporary Redirect")
	StatusBadRequest           = status(400, "Bad Request")
	StatusUnauthorized         = status(401, "Unauthorized")
	StatusPaymentRequired      = status(402, "Payment Required")
	StatusForbidden            = status(403, "Forbidden")
	StatusNotFound             = status(404, "Not Found")
	StatusMethodNotAllowed     = status(405, "Method Not Allowed")
	StatusNotAcceptable        = status(406, "Not Acceptable")
	StatusProxyAuthRequired    = status(407, "Proxy Authentication Required")
	StatusRequestTimeout       = status(408, "Request Timeout")
	StatusConflict             = status(409, "Conflict")
	StatusGone                 = status(410, "Gone")
	StatusLengthRequired       = status(411, "Length Required")
	StatusPreconditionFailed   = status(412, "Precondition Failed")
	StatusEntityTooLarge       = status(413, "Request Entity Too Large")
	StatusURITooLong           = status(414, "Request-URI Too Long")
	StatusUnsupportedMediaType = status(415, "Unsupported Media Type")
	StatusRangeNotSatisfiable  = status(416, "Requested Range Not Satisfiable")
	StatusExpectationFailed    = status(417, "Expectation Failed")
	StatusUnprocessableEntity  = status(422, "Unprocessable Entity")
	StatusLocked               = status(423, "Locked")
	StatusFailedDependency     = status(424, "Failed Dependency")
	StatusTooManyRequests      = status(429, "Too Many Requests")
	StatusInternalServerError  = status(500, "Internal Server Error")
	StatusNotImplemented       = status(501, "Not Implemented")
	StatusBadGateway           = status(502, "Bad Gateway")
	StatusServiceUnavailable   = status(503, "Service Unavailable")
	StatusGatewayTimeout       = status(504, "Gateway Timeout")
	StatusVersionNotSupported  = status(505, "HTTP Version Not Supported")
	StatusInsufficientStorage  = status(507, "Insufficient Storage")
)

// Connector statuses.
var (
	// StatusConnectorConnection means the connector could not
	// connect to the remote server.
	StatusConnectorConnection = status(1000, "Connection Error")
	// StatusConnectorCommunication means the connection failed
	// while the call was in progress.
	StatusConnectorCommunication = status(1001, "Communication Error")
	// StatusConnectorInternal means the connector failed for a
	// reason of its own, including not supporting the protocol.
	StatusConnectorInternal = status(1002, "Internal Connector Error")
)

var statusTable = map[int]Status{}

func init() {
	for _, s := range []Status{
		StatusContinue, StatusSwitchingProtocols, StatusProcessing,
		StatusOK, StatusCreated, StatusAccepted, StatusNonAuthoritative,
		StatusNoContent, StatusResetContent, StatusPartialContent,
		StatusMultiStatus, StatusMultipleChoices, StatusMovedPermanently,
		StatusFound, StatusSeeOther, StatusNotModified, StatusUseProxy,
		StatusTemporaryRedirect, StatusBadRequest, StatusUnauthorized,
		StatusPaymentRequired, StatusForbidden, StatusNotFound,
		StatusMethodNotAllowed, StatusNotAcceptable,
		StatusProxyAuthRequired, StatusRequestTimeout, StatusConflict,
		StatusGone, StatusLengthRequired, StatusPreconditionFailed,
		StatusEntityTooLarge, StatusURITooLong,
		StatusUnsupportedMediaType, StatusRangeNotSatisfiable,
		StatusExpectationFailed, StatusUnprocessableEntity,
		StatusLocked, StatusFailedDependency, StatusTooManyRequests,
		StatusInternalServerError, StatusNotImplemented,
		StatusBadGateway, StatusServiceUnavailable,
		StatusGatewayTimeout, StatusVersionNotSupported,
		StatusInsufficientStorage, StatusConnectorConnection,
		StatusConnectorCommunication, StatusConnectorInternal,
	} {
		statusTable[s.Code] = s
	}
}

// StatusFor returns the well-known status for a code, or a status
// with a generic reason phrase if the code is not in the table.
func StatusFor(code int) Status {
	if s, ok := statusTable[code]; ok {
		return s
	}
	reason := http.StatusText(code)
	if reason == "" {
		reason = "Unknown Status"
	}
	return Status{Code: code, Reason: reason}
}

// WithDescription returns a copy of s with a description.
func (s Status) WithDescription(description string) Status {
	s.Description = description
	return s
}

// Equals compares statuses by code.
func (s Status) Equals(other Status) bool {
	return s.Code == other.Code
}

// IsInfo returns true for 1xx statuses.
func (s Status) IsInfo() bool { return s.Code >= 100 && s.Code < 200 }

// IsSuccess returns true for 2xx statuses.
func (s Status) IsSuccess() bool { return s.Code >= 200 && s.Code < 300 }

// IsRedirection returns true for 3xx statuses.
func (s Status) IsRedirection() bool { return s.Code >= 300 && s.Code < 400 }

// IsClientError returns true for 4xx statuses.
func (s Status) IsClientError() bool { return s.Code >= 400 && s.Code < 500 }

// IsServerError returns true for 5xx statuses.
func (s Status) IsServerError() bool { return s.Code >= 500 && s.Code < 600 }

// IsConnectorError returns true for the 1000-series statuses.
func (s Status) IsConnectorError() bool { return s.Code >= 1000 && s.Code < 1100 }

// IsError returns true for client, server or connector errors.
func (s Status) IsError() bool {
	return s.IsClientError() || s.IsServerError() || s.IsConnectorError()
}

// IsRecoverableError returns true for errors that may go away if the
// call is retried.
func (s Status) IsRecoverableError() bool {
	switch s.Code {
	case StatusConnectorConnection.Code, StatusConnectorCommunication.Code,
		StatusServiceUnavailable.Code, StatusGatewayTimeout.Code,
		StatusTooManyRequests.Code:
		return true
	}
	return false
}

// HTTPStatus returns the code to put on an HTTP status line.
// Connector errors never reach the wire as such.
func (s Status) HTTPStatus() int {
	switch s.Code {
	case StatusConnectorConnection.Code:
		return http.StatusServiceUnavailable
	case StatusConnectorCommunication.Code:
		return http.StatusBadGateway
	case StatusConnectorInternal.Code:
		return http.StatusInternalServerError
	}
	if s.Code < 100 || s.Code > 999 {
		return http.StatusInternalServerError
	}
	return s.Code
}

func (s Status) String() string {
	if s.Description != "" {
		return fmt.Sprintf("%d %s: %s", s.Code, s.Reason, s.Description)
	}
	return fmt.Sprintf("%d %s", s.Code, s.Reason)
}
