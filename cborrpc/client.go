// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package cborrpc

import (
	"bufio"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/diffeo/go-restlet/connector"
	"github.com/diffeo/go-restlet/metadata"
	"github.com/diffeo/go-restlet/representation"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

// ClientOptions are the parameters of a CBOR-RPC client connector.
type ClientOptions struct {
	// Timeout bounds each round trip, including connecting; zero
	// means no limit.
	Timeout time.Duration
}

// ClientHelper sends calls over CBOR-RPC.  It keeps one connection
// per server address; calls to the same server take turns on it.
type ClientHelper struct {
	Client  *connector.Client
	Options ClientOptions

	cbor   *codec.CborHandle
	lock   sync.Mutex
	conns  map[string]*clientConn
	nextID uint32
}

type clientConn struct {
	lock    sync.Mutex
	conn    net.Conn
	writer  *bufio.Writer
	encoder *codec.Encoder
	decoder *codec.Decoder
}

// NewClientHelper is the connector.ClientFactory for CBOR-RPC.
func NewClientHelper(client *connector.Client) (connector.ClientHelper, error) {
	cbor, err := NewHandle()
	if err != nil {
		return nil, err
	}
	h := &ClientHelper{
		Client: client,
		cbor:   cbor,
		conns:  make(map[string]*clientConn),
	}
	if err := client.DecodeParameters(&h.Options); err != nil {
		return nil, err
	}
	return h, nil
}

// Protocols returns the CBOR-RPC protocol.
func (h *ClientHelper) Protocols() []restlet.Protocol {
	return Protocols
}

// Start does nothing; connections open on first use.
func (h *ClientHelper) Start() error {
	return nil
}

// Stop closes every open connection.
func (h *ClientHelper) Stop() error {
	h.lock.Lock()
	defer h.lock.Unlock()
	var firstErr error
	for addr, c := range h.conns {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(h.conns, addr)
	}
	return firstErr
}

func (h *ClientHelper) connect(addr string) (*clientConn, error) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if c, ok := h.conns[addr]; ok {
		return c, nil
	}
	dialer := net.Dialer{Timeout: h.Options.Timeout}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	writer := bufio.NewWriter(conn)
	c := &clientConn{
		conn:    conn,
		writer:  writer,
		encoder: codec.NewEncoder(writer, h.cbor),
		decoder: codec.NewDecoder(bufio.NewReader(conn), h.cbor),
	}
	h.conns[addr] = c
	return c, nil
}

// drop forgets a broken connection.
func (h *ClientHelper) drop(addr string, c *clientConn) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.conns[addr] == c {
		delete(h.conns, addr)
	}
	_ = c.conn.Close()
}

// roundTrip sends one request and waits for its response.
func (c *clientConn) roundTrip(request Request, timeout time.Duration) (Response, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	var response Response
	if timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return response, err
		}
	}
	if err := c.encoder.Encode(request); err != nil {
		return response, err
	}
	if err := c.writer.Flush(); err != nil {
		return response, err
	}
	if err := c.decoder.Decode(&response); err != nil {
		return response, err
	}
	if response.ID != request.ID {
		return response, errors.Errorf("response id %d does not match request id %d", response.ID, request.ID)
	}
	return response, nil
}

// Handle sends the call and maps the result back onto resp.
func (h *ClientHelper) Handle(req *restlet.Request, resp *restlet.Response) {
	ref := req.ResourceRef
	addr := net.JoinHostPort(ref.HostDomain(), strconv.Itoa(ref.HostPort()))
	log := h.Client.Context.Log().WithFields(logrus.Fields{
		"id":      req.ID,
		"address": addr,
	})

	params, err := toParams(req)
	if err != nil {
		resp.SetError(restlet.NewStatusError(restlet.StatusConnectorInternal, "%v", err))
		return
	}
	c, err := h.connect(addr)
	if err != nil {
		log.WithError(err).Debug("CBOR-RPC connect failed")
		resp.Status = restlet.StatusConnectorConnection
		resp.Err = errors.Wrapf(err, "connecting to %v", addr)
		return
	}
	request := Request{
		Method: req.Method.String(),
		ID:     uint(atomic.AddUint32(&h.nextID, 1)),
		Params: params.List(),
	}
	response, err := c.roundTrip(request, h.Options.Timeout)
	if err != nil {
		h.drop(addr, c)
		log.WithError(err).Debug("CBOR-RPC call failed")
		resp.Status = restlet.StatusConnectorCommunication
		resp.Err = errors.Wrapf(err, "calling %v", addr)
		return
	}
	if response.Error != "" {
		resp.Status = restlet.StatusInternalServerError.WithDescription(response.Error)
		resp.Err = errors.New(response.Error)
		return
	}
	result, err := DecodeResult(response.Result)
	if err != nil {
		resp.Status = restlet.StatusConnectorCommunication
		resp.Err = errors.Wrap(err, "bad CBOR-RPC result")
		return
	}
	fromResult(req, resp, result)
}

// toParams reads the request entity fully.  Attributes go along only
// when the codec can carry them as plain values.
func toParams(req *restlet.Request) (CallParams, error) {
	params := CallParams{
		Ref:        req.ResourceRef.String(),
		Attributes: map[string]interface{}{},
	}
	req.Attributes.Range(func(key string, value interface{}) bool {
		switch value.(type) {
		case string, []byte, bool, int, int64, uint, uint64, float64:
			params.Attributes[key] = value
		}
		return true
	})
	if req.ID != "" {
		params.Attributes[IDAttribute] = encodeID(req.ID)
	}
	if req.Entity != nil {
		v := req.Entity.Variant()
		data, err := representation.ReadAll(req.Context(), req.Entity)
		if err != nil {
			return params, err
		}
		params.MediaType = metadata.ContentType(v.MediaType, v.CharacterSet)
		if v.MediaType.IsZero() {
			params.MediaType = metadata.ApplicationOctetStream.String()
		}
		params.Entity = data
	}
	return params, nil
}

func fromResult(req *restlet.Request, resp *restlet.Response, result CallResult) {
	resp.SetStatus(restlet.StatusFor(result.Status))
	if result.Location != "" {
		if loc, err := req.ResourceRef.Resolve(result.Location); err == nil {
			resp.LocationRef = loc
		}
	}
	for _, m := range result.Allow {
		resp.AllowedMethods = append(resp.AllowedMethods, restlet.ParseMethod(m))
	}
	if result.MediaType != "" {
		mt, cs, err := metadata.ParseContentType(result.MediaType)
		if err != nil {
			mt = metadata.ApplicationOctetStream
		}
		entity := representation.NewBytes(result.Entity, mt)
		entity.Metadata.CharacterSet = cs
		resp.Entity = entity
	}
}
