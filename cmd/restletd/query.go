// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package main

import (
	"github.com/diffeo/go-restlet/component"
	"github.com/diffeo/go-restlet/routing"
)

// attachQuery forwards /query?q=... on every host to the SQL
// database db, so that
//
//     GET /query?q=select+1
//
// is answered by sql://db/?q=select+1.
func attachQuery(c *component.Component, db string) error {
	redirector, err := routing.NewRedirector(c.Context, "sql://"+db+"/{re}", routing.ServerOutbound)
	if err != nil {
		return err
	}
	hosts := append([]*component.VirtualHost{c.DefaultHost}, c.Hosts()...)
	for _, h := range hosts {
		if _, err := h.Attach("/query", redirector); err != nil {
			return err
		}
	}
	return nil
}
