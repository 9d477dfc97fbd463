// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package filter

import (
	"context"
	"testing"

	"github.com/diffeo/go-restlet/converter"
	"github.com/diffeo/go-restlet/metadata"
	"github.com/diffeo/go-restlet/representation"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panicker struct{}

func (panicker) Handle(req *restlet.Request, resp *restlet.Response) {
	panic("boom")
}

type failer struct {
	status restlet.Status
}

func (f failer) Handle(req *restlet.Request, resp *restlet.Response) {
	resp.SetStatus(f.status)
}

func statusCall(t *testing.T, next restlet.Handler, accept string) (*restlet.Response, string) {
	ctx, _, _ := testContext()
	f := NewStatus(ctx, converter.NewService(), next)
	req, resp := newCall(t, restlet.MethodGet, "http://example.com/")
	if accept != "" {
		req.ClientInfo.MediaTypes = metadata.ParseMediaTypes(accept)
	}
	f.Handle(req, resp)
	if resp.Entity == nil {
		return resp, ""
	}
	text, err := representation.Text(context.Background(), resp.Entity)
	require.NoError(t, err)
	return resp, text
}

func TestStatusRecoversPanic(t *testing.T) {
	ctx, _, hook := testContext()
	f := NewStatus(ctx, nil, panicker{})
	req, resp := newCall(t, restlet.MethodGet, "http://example.com/")
	assert.NotPanics(t, func() { f.Handle(req, resp) })
	assert.Equal(t, restlet.StatusInternalServerError, resp.Status)
	assert.EqualError(t, resp.Err, "panic: boom")
	require.NotNil(t, resp.Entity)
	assert.Equal(t, metadata.TextPlain, resp.Entity.Variant().MediaType)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestStatusErrorEntity(t *testing.T) {
	resp, text := statusCall(t, failer{restlet.StatusNotFound}, "")
	assert.Equal(t, restlet.StatusNotFound, resp.Status)
	assert.Equal(t, "404 Not Found\nNot Found\n", text)

	resp, text = statusCall(t, failer{restlet.StatusNotFound}, "text/html")
	assert.Equal(t, metadata.TextHTML, resp.Entity.Variant().MediaType)
	assert.Contains(t, text, "<h1>Not Found</h1>")

	resp, text = statusCall(t, failer{restlet.StatusConflict.WithDescription("already exists")}, "application/json")
	assert.Equal(t, metadata.ApplicationJSON, resp.Entity.Variant().MediaType)
	assert.JSONEq(t, `{"error":"Conflict","message":"already exists","status":409}`, text)
}

func TestStatusLeavesSuccess(t *testing.T) {
	resp, text := statusCall(t, failer{restlet.StatusOK}, "")
	assert.Nil(t, resp.Entity)
	assert.Equal(t, "", text)
}

func TestStatusKeepsEntity(t *testing.T) {
	own := representation.NewString("custom", metadata.TextPlain)
	next := restlet.HandlerFunc(func(req *restlet.Request, resp *restlet.Response) {
		resp.SetStatus(restlet.StatusBadRequest)
		resp.Entity = own
	})
	resp, text := statusCall(t, next, "")
	assert.Equal(t, own, resp.Entity)
	assert.Equal(t, "custom", text)
}
