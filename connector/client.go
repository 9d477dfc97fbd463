// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package connector

import (
	"errors"
	"sync"

	"github.com/diffeo/go-restlet/restlet"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
)

// ErrNotStarted is the error of a call to a connector that has not
// been started.
var ErrNotStarted = errors.New("connector is not started")

// Client is an outbound connector for one or more protocols.
type Client struct {
	Context   *restlet.Context
	Protocols []restlet.Protocol

	// Parameters configure the helper; helpers decode them with
	// DecodeParameters.
	Parameters map[string]interface{}

	registry *Registry
	lock     sync.Mutex
	helper   ClientHelper
	started  bool
}

// NewClient creates a client connector that will find its helper in
// registry.
func NewClient(ctx *restlet.Context, registry *Registry, protocols ...restlet.Protocol) *Client {
	return &Client{
		Context:    ctx,
		Protocols:  protocols,
		Parameters: map[string]interface{}{},
		registry:   registry,
	}
}

// NewClientWithHelper creates a client connector around an existing
// helper.
func NewClientWithHelper(ctx *restlet.Context, helper ClientHelper) *Client {
	return &Client{
		Context:    ctx,
		Protocols:  helper.Protocols(),
		Parameters: map[string]interface{}{},
		helper:     helper,
	}
}

// DecodeParameters decodes the parameters into out, typically a
// pointer to a helper's options struct, matching names
// case-insensitively.
func (c *Client) DecodeParameters(out interface{}) error {
	return decodeParameters(c.Parameters, out)
}

func decodeParameters(params map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(params)
}

// Supports returns true if the client handles p.
func (c *Client) Supports(p restlet.Protocol) bool {
	return p.In(c.Protocols)
}

// Helper returns the helper, creating it if needed.
func (c *Client) Helper() (ClientHelper, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.helperLocked()
}

func (c *Client) helperLocked() (ClientHelper, error) {
	if c.helper != nil {
		return c.helper, nil
	}
	if c.registry == nil {
		return nil, restlet.ErrUnsupportedProtocol{Protocol: c.firstProtocol()}
	}
	helper, err := c.registry.CreateClient(c)
	if err != nil {
		return nil, err
	}
	c.helper = helper
	return helper, nil
}

func (c *Client) firstProtocol() restlet.Protocol {
	if len(c.Protocols) == 0 {
		return restlet.Protocol{}
	}
	return c.Protocols[0]
}

// Start creates and starts the helper.
func (c *Client) Start() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.started {
		return nil
	}
	helper, err := c.helperLocked()
	if err != nil {
		return err
	}
	if err := helper.Start(); err != nil {
		return err
	}
	c.started = true
	c.Context.Log().WithField("protocols", c.Protocols).Debug("Started client connector")
	return nil
}

// Stop stops the helper.
func (c *Client) Stop() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.started {
		return nil
	}
	c.started = false
	return c.helper.Stop()
}

// Started returns true between Start and Stop.
func (c *Client) Started() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.started
}

// Handle sends the call through the helper.  A client that is not
// started answers with a connector error.
func (c *Client) Handle(req *restlet.Request, resp *restlet.Response) {
	c.lock.Lock()
	helper, started := c.helper, c.started
	c.lock.Unlock()
	if !started {
		c.Context.Log().WithFields(logrus.Fields{
			"protocols": c.Protocols,
			"reference": req.ResourceRef.String(),
		}).Error("Call to stopped client connector")
		resp.Status = restlet.StatusConnectorInternal.WithDescription(ErrNotStarted.Error())
		resp.Err = ErrNotStarted
		return
	}
	helper.Handle(req, resp)
}

// Registry returns the registry the client was created with, or nil.
func (c *Client) Registry() *Registry {
	return c.registry
}
