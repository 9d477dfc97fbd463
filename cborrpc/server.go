// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package cborrpc

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"runtime"
	"strings"
	"sync"

	"github.com/diffeo/go-restlet/connector"
	"github.com/diffeo/go-restlet/metadata"
	"github.com/diffeo/go-restlet/representation"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

// ServerOptions are the parameters of a CBOR-RPC server connector.
type ServerOptions struct {
	// LogRequests traces every request and response at debug
	// level.
	LogRequests bool
}

// ServerHelper serves a connector.Server over CBOR-RPC.  Each
// connection is served by its own goroutine, one request at a time.
type ServerHelper struct {
	Server  *connector.Server
	Options ServerOptions

	cbor     *codec.CborHandle
	lock     sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// NewServerHelper is the connector.ServerFactory for CBOR-RPC.
func NewServerHelper(server *connector.Server) (connector.ServerHelper, error) {
	cbor, err := NewHandle()
	if err != nil {
		return nil, err
	}
	h := &ServerHelper{Server: server, cbor: cbor}
	if err := server.DecodeParameters(&h.Options); err != nil {
		return nil, err
	}
	return h, nil
}

// Protocols returns the CBOR-RPC protocol.
func (h *ServerHelper) Protocols() []restlet.Protocol {
	return Protocols
}

// Start listens and accepts connections in the background.
func (h *ServerHelper) Start() error {
	h.lock.Lock()
	defer h.lock.Unlock()
	ln, err := net.Listen("tcp", h.Server.ListenAddress())
	if err != nil {
		return err
	}
	h.listener = ln
	h.conns = make(map[net.Conn]struct{})
	h.wg.Add(1)
	go h.serve(ln)
	return nil
}

// Stop closes the listener and every open connection, then waits
// for the connection goroutines to finish.
func (h *ServerHelper) Stop() error {
	h.lock.Lock()
	if h.listener == nil {
		h.lock.Unlock()
		return nil
	}
	err := h.listener.Close()
	h.listener = nil
	for conn := range h.conns {
		_ = conn.Close()
	}
	h.lock.Unlock()
	h.wg.Wait()
	return err
}

// Address returns the bound address.
func (h *ServerHelper) Address() string {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

func (h *ServerHelper) serve(ln net.Listener) {
	defer h.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			h.lock.Lock()
			stopping := h.listener != ln
			h.lock.Unlock()
			if !stopping {
				h.Server.Context.Log().WithError(err).Error("Error accepting connection")
			}
			return
		}
		h.lock.Lock()
		if h.listener != ln {
			h.lock.Unlock()
			_ = conn.Close()
			return
		}
		h.conns[conn] = struct{}{}
		h.wg.Add(1)
		h.lock.Unlock()
		go h.handleConnection(conn)
	}
}

func (h *ServerHelper) handleConnection(conn net.Conn) {
	defer h.wg.Done()
	defer func() {
		h.lock.Lock()
		delete(h.conns, conn)
		h.lock.Unlock()
		_ = conn.Close()
	}()

	var reqLog *logrus.Entry
	errLog := h.Server.Context.Log().WithField("remote", conn.RemoteAddr())
	if h.Options.LogRequests {
		reqLog = errLog
	}

	reader := bufio.NewReader(conn)
	decoder := codec.NewDecoder(reader, h.cbor)
	writer := bufio.NewWriter(conn)
	encoder := codec.NewEncoder(writer, h.cbor)

	for {
		var request Request
		err := decoder.Decode(&request)
		if err == io.EOF {
			if reqLog != nil {
				reqLog.Debug("Connection closed")
			}
			return
		} else if err != nil {
			if !isClosed(err) {
				errLog.WithError(err).Error("Error reading message")
			}
			return
		}
		if reqLog != nil {
			reqLog.WithFields(logrus.Fields{
				"id":     request.ID,
				"method": request.Method,
			}).Debug("Request")
		}
		response := h.doRequest(conn, request)
		if reqLog != nil {
			entry := reqLog.WithField("id", response.ID)
			if response.Error != "" {
				entry = entry.WithField("error", response.Error)
			}
			entry.Debug("Response")
		}
		err = encoder.Encode(response)
		if err != nil {
			errLog.WithError(err).Error("Error encoding response")
			return
		}
		err = writer.Flush()
		if err != nil {
			errLog.WithError(err).Error("Error writing response")
			return
		}
	}
}

// isClosed recognizes the read error of a connection closed by Stop.
func isClosed(err error) bool {
	return strings.Contains(err.Error(), "use of closed network connection")
}

// doRequest runs one call.  Failures to understand the request, and
// panics in the target, become error responses; failures of the call
// itself are in the result status.
func (h *ServerHelper) doRequest(conn net.Conn, request Request) (response Response) {
	response.ID = request.ID

	defer func() {
		if oops := recover(); oops != nil {
			buf := make([]byte, 65536)
			buf = buf[:runtime.Stack(buf, false)]
			h.Server.Context.Log().WithFields(logrus.Fields{
				"panic": oops,
				"stack": string(buf),
			}).Error("Panic handling CBOR-RPC call")
			response.Result = nil
			response.Error = fmt.Sprintf("%v", oops)
		}
	}()

	req, err := h.toRequest(conn, request)
	if err != nil {
		response.Error = err.Error()
		return
	}
	resp := restlet.NewResponse(req)
	h.Server.Handle(req, resp)
	if req.Entity != nil {
		req.Entity.Release()
	}

	result, err := toResult(req, resp)
	if err != nil {
		response.Error = err.Error()
		return
	}
	response.Result = result.Map()
	return
}

func (h *ServerHelper) toRequest(conn net.Conn, request Request) (*restlet.Request, error) {
	params, err := DecodeParams(request.Params)
	if err != nil {
		return nil, err
	}
	root, err := restlet.ParseReference(restlet.CBORRPC.Scheme + "://" + conn.LocalAddr().String() + "/")
	if err != nil {
		return nil, err
	}
	ref, err := root.Resolve(params.Ref)
	if err != nil {
		return nil, err
	}
	req := restlet.NewRequestRef(restlet.ParseMethod(request.Method), ref)
	req.Protocol = restlet.CBORRPC
	req.ClientInfo.Address, req.ClientInfo.Port = connector.SplitAddress(conn.RemoteAddr().String())
	for key, value := range params.Attributes {
		if key == IDAttribute {
			req.ID = decodeID(value)
			continue
		}
		req.Attributes.Set(key, value)
	}
	if req.ID == "" {
		req.ID = uuid.NewV4().String()
	}
	if params.MediaType != "" {
		mt, cs, err := metadata.ParseContentType(params.MediaType)
		if err != nil {
			return nil, err
		}
		entity := representation.NewBytes(params.Entity, mt)
		entity.Metadata.CharacterSet = cs
		req.Entity = entity
	}
	return req, nil
}

// toResult reads the response entity fully.
func toResult(req *restlet.Request, resp *restlet.Response) (CallResult, error) {
	result := CallResult{Status: resp.Status.Code}
	if resp.LocationRef != nil {
		result.Location = resp.LocationRef.String()
	}
	for _, m := range resp.AllowedMethods {
		result.Allow = append(result.Allow, m.String())
	}
	if resp.Entity != nil {
		defer resp.Entity.Release()
		v := resp.Entity.Variant()
		data, err := representation.ReadAll(req.Context(), resp.Entity)
		if err != nil {
			return result, err
		}
		result.MediaType = metadata.ContentType(v.MediaType, v.CharacterSet)
		if v.MediaType.IsZero() {
			result.MediaType = metadata.ApplicationOctetStream.String()
		}
		result.Entity = data
	}
	return result, nil
}
