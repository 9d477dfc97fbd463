// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package converter

import (
	"fmt"
	"runtime"

	"github.com/diffeo/go-restlet/restlet"
)

// ErrorResponse is the body of an error response.
type ErrorResponse struct {
	// Error is a short description of the failure: the status
	// reason, or "panic".
	Error string `json:"error" codec:"error"`

	// Message is a human-readable description of the failure.
	Message string `json:"message" codec:"message"`

	// Status is the numeric status code.
	Status int `json:"status" codec:"status"`

	// Stack is the stack trace of a panic.
	Stack string `json:"stack,omitempty" codec:"stack,omitempty"`
}

// FromStatus fills the response from a status and the error that
// produced it, which may be nil.
func (e *ErrorResponse) FromStatus(s restlet.Status, err error) {
	e.Error = s.Reason
	e.Status = s.Code
	switch {
	case err != nil:
		e.Message = err.Error()
	case s.Description != "":
		e.Message = s.Description
	default:
		e.Message = s.Reason
	}
}

// FromPanic fills the response from a recovered panic.
func (e *ErrorResponse) FromPanic(obj interface{}) {
	e.Error = "panic"
	e.Status = restlet.StatusInternalServerError.Code
	if recoveredError, isError := obj.(error); isError {
		e.Message = recoveredError.Error()
	} else {
		e.Message = fmt.Sprintf("%+v", obj)
	}
	var stack [4096]byte
	n := runtime.Stack(stack[:], false)
	e.Stack = string(stack[:n])
}
