// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package connector

import (
	"net"
	"strconv"
	"sync"

	"github.com/diffeo/go-restlet/restlet"
	"github.com/sirupsen/logrus"
)

// Server is an inbound connector listening on one protocol.
type Server struct {
	Context  *restlet.Context
	Protocol restlet.Protocol

	// Address is the host to listen on; empty means all
	// interfaces.
	Address string
	// Port is the port to listen on; 0 picks a free port, -1 the
	// protocol default.
	Port int

	Parameters map[string]interface{}

	registry *Registry
	lock     sync.Mutex
	target   restlet.Handler
	helper   ServerHelper
	started  bool
}

// NewServer creates a server connector passing calls to target.
func NewServer(ctx *restlet.Context, registry *Registry, protocol restlet.Protocol, address string, port int, target restlet.Handler) *Server {
	return &Server{
		Context:    ctx,
		Protocol:   protocol,
		Address:    address,
		Port:       port,
		Parameters: map[string]interface{}{},
		registry:   registry,
		target:     target,
	}
}

// DecodeParameters decodes the parameters into out.
func (s *Server) DecodeParameters(out interface{}) error {
	return decodeParameters(s.Parameters, out)
}

// ListenAddress returns the host:port to listen on.
func (s *Server) ListenAddress() string {
	port := s.Port
	if port < 0 {
		port = s.Protocol.DefaultPort
	}
	if port < 0 {
		port = 0
	}
	return net.JoinHostPort(s.Address, strconv.Itoa(port))
}

// Target returns the handler calls go to.
func (s *Server) Target() restlet.Handler {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.target
}

// SetTarget replaces the handler calls go to.
func (s *Server) SetTarget(target restlet.Handler) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.target = target
}

// Handle passes a call accepted by the helper to the target.
func (s *Server) Handle(req *restlet.Request, resp *restlet.Response) {
	target := s.Target()
	if target == nil {
		s.Context.Log().WithField("protocol", s.Protocol).Error("Server connector has no target")
		resp.SetStatus(restlet.StatusNotFound)
		return
	}
	target.Handle(req, resp)
}

// Start creates and starts the helper.
func (s *Server) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.started {
		return nil
	}
	if s.helper == nil {
		if s.registry == nil {
			return restlet.ErrUnsupportedProtocol{Protocol: s.Protocol}
		}
		helper, err := s.registry.CreateServer(s)
		if err != nil {
			return err
		}
		s.helper = helper
	}
	if err := s.helper.Start(); err != nil {
		return err
	}
	s.started = true
	s.Context.Log().WithFields(logrus.Fields{
		"protocol": s.Protocol,
		"address":  s.helper.Address(),
	}).Info("Server connector listening")
	return nil
}

// Stop stops the helper.
func (s *Server) Stop() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	return s.helper.Stop()
}

// BoundAddress returns the address the helper listens on, or "" if
// not started.
func (s *Server) BoundAddress() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.started {
		return ""
	}
	return s.helper.Address()
}

// Registry returns the registry the server was created with, or nil.
func (s *Server) Registry() *Registry {
	return s.registry
}
