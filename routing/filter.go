// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package routing

import (
	"errors"
	"sync/atomic"

	"github.com/diffeo/go-restlet/restlet"
)

// Action is the outcome of a filter's before hook.
type Action int

const (
	// Continue passes the call to the next handler, then runs the
	// after hook.
	Continue Action = iota
	// Skip runs the after hook without calling the next handler.
	Skip
	// Stop ends processing at once; the response is final.
	Stop
)

func (a Action) String() string {
	switch a {
	case Continue:
		return "continue"
	case Skip:
		return "skip"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// ErrNoNext is the configuration error for a filter that wants to
// continue but has nothing to continue to.
var ErrNoNext = errors.New("filter has no next handler attached")

// Hooks are the filter-specific parts of a Filter.
type Hooks interface {
	// BeforeHandle runs before the next handler.
	BeforeHandle(req *restlet.Request, resp *restlet.Response) Action
	// AfterHandle runs after the next handler, unless BeforeHandle
	// returned Stop.
	AfterHandle(req *restlet.Request, resp *restlet.Response)
}

// HookFuncs builds Hooks from functions; either may be nil.
type HookFuncs struct {
	Before func(req *restlet.Request, resp *restlet.Response) Action
	After  func(req *restlet.Request, resp *restlet.Response)
}

// BeforeHandle calls Before, or continues.
func (h HookFuncs) BeforeHandle(req *restlet.Request, resp *restlet.Response) Action {
	if h.Before == nil {
		return Continue
	}
	return h.Before(req, resp)
}

// AfterHandle calls After if it is set.
func (h HookFuncs) AfterHandle(req *restlet.Request, resp *restlet.Response) {
	if h.After != nil {
		h.After(req, resp)
	}
}

// Filter wraps a next handler with before and after hooks.  The next
// handler may be replaced at any time, including while calls are in
// flight; each call sees either the old or the new handler.
type Filter struct {
	Context *restlet.Context
	Hooks   Hooks
	next    atomic.Value
}

// nextBox lets atomic.Value hold a nil handler.
type nextBox struct {
	handler restlet.Handler
}

// NewFilter creates a filter.  hooks may be nil, making the filter a
// pass-through.
func NewFilter(ctx *restlet.Context, hooks Hooks, next restlet.Handler) *Filter {
	f := &Filter{Context: ctx, Hooks: hooks}
	f.SetNext(next)
	return f
}

// Next returns the current next handler, or nil.
func (f *Filter) Next() restlet.Handler {
	box, _ := f.next.Load().(nextBox)
	return box.handler
}

// SetNext attaches a new next handler; nil detaches.
func (f *Filter) SetNext(next restlet.Handler) {
	f.next.Store(nextBox{handler: next})
}

// Handle runs the hooks around the next handler.  After a Continue
// the after hook runs even if the next handler panics, and the panic
// then carries on up the stack.
func (f *Filter) Handle(req *restlet.Request, resp *restlet.Response) {
	hooks := f.Hooks
	if hooks == nil {
		hooks = HookFuncs{}
	}
	switch hooks.BeforeHandle(req, resp) {
	case Stop:
		return
	case Skip:
	default:
		next := f.Next()
		if next == nil {
			f.Context.Log().WithError(ErrNoNext).Error("Cannot continue filter chain")
			resp.Status = restlet.StatusNotImplemented.WithDescription(ErrNoNext.Error())
			resp.Err = restlet.ConfigError{Err: ErrNoNext}
			return
		}
		defer hooks.AfterHandle(req, resp)
		next.Handle(req, resp)
		return
	}
	hooks.AfterHandle(req, resp)
}

// Start starts the next handler if it has a lifecycle.
func (f *Filter) Start() error {
	return restlet.Start(f.Next())
}

// Stop stops the next handler if it has a lifecycle.
func (f *Filter) Stop() error {
	return restlet.Stop(f.Next())
}
