// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restlet

import "strings"

// Protocol identifies a transport.  The zero Protocol means "not
// specified"; see Request.EffectiveProtocol.
type Protocol struct {
	// Scheme is the URI scheme, in lower case.
	Scheme string
	// Name is the display name, such as "HTTP".
	Name string
	// Version is the protocol version, if it has one.
	Version string
	// DefaultPort is the port used when a reference does not
	// name one, or -1.
	DefaultPort int
}

// Well-known protocols.
var (
	HTTP    = Protocol{Scheme: "http", Name: "HTTP", Version: "1.1", DefaultPort: 80}
	HTTPS   = Protocol{Scheme: "https", Name: "HTTPS", Version: "1.1", DefaultPort: 443}
	RIAP    = Protocol{Scheme: "riap", Name: "RIAP", Version: "1.0", DefaultPort: -1}
	CBORRPC = Protocol{Scheme: "cborrpc", Name: "CBOR-RPC", Version: "1.0", DefaultPort: 5932}
	SQL     = Protocol{Scheme: "sql", Name: "SQL", DefaultPort: -1}
	BLOB    = Protocol{Scheme: "blob", Name: "BLOB", DefaultPort: -1}
)

var knownProtocols = []Protocol{HTTP, HTTPS, RIAP, CBORRPC, SQL, BLOB}

// ProtocolForScheme returns the protocol for a URI scheme, matched
// without regard to case.  Unknown schemes produce a protocol with
// only the scheme and name filled in.
func ProtocolForScheme(scheme string) Protocol {
	if scheme == "" {
		return Protocol{}
	}
	for _, p := range knownProtocols {
		if strings.EqualFold(p.Scheme, scheme) {
			return p
		}
	}
	lower := strings.ToLower(scheme)
	return Protocol{Scheme: lower, Name: strings.ToUpper(scheme), DefaultPort: -1}
}

// ProtocolForName returns the protocol with a display name such as
// "CBOR-RPC", falling back to treating name as a scheme.
func ProtocolForName(name string) Protocol {
	for _, p := range knownProtocols {
		if strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return ProtocolForScheme(name)
}

// IsZero returns true for the unspecified protocol.
func (p Protocol) IsZero() bool {
	return p.Scheme == ""
}

// Equals compares protocols by scheme.
func (p Protocol) Equals(other Protocol) bool {
	return strings.EqualFold(p.Scheme, other.Scheme)
}

// In returns true if p is one of protocols.
func (p Protocol) In(protocols []Protocol) bool {
	for _, other := range protocols {
		if p.Equals(other) {
			return true
		}
	}
	return false
}

func (p Protocol) String() string {
	if p.Version == "" {
		return p.Name
	}
	return p.Name + "/" + p.Version
}

// MarshalText writes the protocol name, so that protocols can appear
// in configuration files.
func (p Protocol) MarshalText() ([]byte, error) {
	return []byte(p.Name), nil
}

// UnmarshalText reads a protocol name or scheme.
func (p *Protocol) UnmarshalText(text []byte) error {
	*p = ProtocolForName(string(text))
	return nil
}

// LookupProtocol finds a well-known protocol by scheme or name.
func LookupProtocol(name string) (Protocol, bool) {
	for _, p := range knownProtocols {
		if strings.EqualFold(p.Scheme, name) || strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Protocol{}, false
}
