// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package connector

import (
	"encoding/base64"
	"errors"
	"strings"
)

// CredentialsAttribute is the request attribute holding the
// *Credentials a client sent or should send.
const CredentialsAttribute = "org.restlet.credentials"

// Credentials are one client's authentication response.
type Credentials struct {
	Scheme     string
	Identifier string
	Secret     string
}

// Authenticator reads and writes the Authorization header for one
// challenge scheme.
type Authenticator interface {
	Scheme() string
	Format(c *Credentials) (string, error)
	Parse(header string) (*Credentials, error)
}

// ErrBadCredentials is returned when an Authorization header cannot
// be parsed.
var ErrBadCredentials = errors.New("malformed credentials")

// Basic implements the HTTP Basic scheme.
type Basic struct{}

// Scheme returns "Basic".
func (Basic) Scheme() string {
	return "Basic"
}

// Format writes "Basic base64(id:secret)".
func (Basic) Format(c *Credentials) (string, error) {
	if strings.Contains(c.Identifier, ":") {
		return "", ErrBadCredentials
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.Identifier+":"+c.Secret)), nil
}

// Parse reads a Basic Authorization header.
func (Basic) Parse(header string) (*Credentials, error) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Basic") {
		return nil, ErrBadCredentials
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, ErrBadCredentials
	}
	pair := strings.SplitN(string(raw), ":", 2)
	if len(pair) != 2 {
		return nil, ErrBadCredentials
	}
	return &Credentials{Scheme: "Basic", Identifier: pair[0], Secret: pair[1]}, nil
}

// SchemeOf returns the scheme name at the front of an Authorization
// header.
func SchemeOf(header string) string {
	header = strings.TrimSpace(header)
	if i := strings.IndexByte(header, ' '); i >= 0 {
		return header[:i]
	}
	return header
}
