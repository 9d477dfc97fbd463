// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restlet

import "github.com/diffeo/go-restlet/metadata"

// ClientInfo describes the client side of a call: where it came from
// and what it is willing to accept.
type ClientInfo struct {
	Address string
	Port    int
	Agent   string

	// Preferences holds the parsed Accept-* lists.
	metadata.Preferences
}

// DefaultClientInfo returns the client info of a client that sent no
// Accept-* headers at all.
func DefaultClientInfo() ClientInfo {
	return ClientInfo{
		Port:        -1,
		Agent:       DefaultAgent,
		Preferences: DefaultPreferences(),
	}
}

// DefaultPreferences returns the preferences implied by absent
// Accept-* headers.
func DefaultPreferences() metadata.Preferences {
	return metadata.Preferences{
		MediaTypes:    metadata.ReadHeader(metadata.MediaTypes, "", false),
		Languages:     metadata.ReadHeader(metadata.Languages, "", false),
		CharacterSets: metadata.ReadHeader(metadata.CharacterSets, "", false),
		Encodings:     metadata.ReadHeader(metadata.Encodings, "", false),
	}
}

// Conneg returns a negotiator for these preferences.
func (c *ClientInfo) Conneg(service *metadata.Service) *metadata.Conneg {
	return metadata.NewConneg(c.Preferences, service)
}

// ServerInfo describes the server side of a call.
type ServerInfo struct {
	Address      string
	Port         int
	Agent        string
	AcceptRanges bool
}
