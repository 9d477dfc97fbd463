// Copyright 2015-2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package restletd runs a Restlet component from the command line.
// It serves a small bookmark application at /bookmarks on every
// server connector, and at riap://component/bookmarks internally.
//
// Server connectors come from -http and -cborrpc, or from the
// "servers" section of the -config YAML file if it has one.  Either
// way the component carries HTTP, CBOR-RPC and RIAP clients; -blob
// and -db add blob and SQL clients.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/diffeo/go-restlet/component"
	"github.com/diffeo/go-restlet/connector"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

func main() {
	httpBind := connector.Binding{Protocol: restlet.HTTP, Address: ":8182"}
	flag.Var(&httpBind, "http", "protocol:[ip]:port for the HTTP interface")
	cborRPCBind := connector.Binding{Protocol: restlet.CBORRPC, Address: ":5932"}
	flag.Var(&cborRPCBind, "cborrpc", "protocol:[ip]:port for the CBOR-RPC interface")
	config := flag.String("config", "", "component configuration YAML file")
	logRequests := flag.Bool("log-requests", false, "log all requests")
	blobDir := flag.String("blob", "", "directory to mirror bookmarks into")
	db := flag.String("db", "", "PostgreSQL connection string for sql://main/")
	migrations := flag.String("migrations", "", "directory of migrations to apply to -db")
	debugBind := flag.String("debug", "", "[ip]:port for metrics and profiling endpoints")
	profileMode := flag.String("profile", "", "cpu, mem, mutex or block profiling")
	flag.Parse()

	defer startProfile(*profileMode).Stop()

	var cfg component.Config
	if *config != "" {
		var err error
		cfg, err = component.LoadConfig(*config)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"err": err,
			}).Fatal("Could not load YAML configuration")
			return
		}
	}
	if len(cfg.Servers) == 0 {
		cfg.Servers = []component.ServerConfig{
			bindingConfig(httpBind),
			bindingConfig(cborRPCBind),
		}
	}
	cfg.Clients = withClients(cfg.Clients, restlet.HTTP, restlet.CBORRPC, restlet.RIAP)
	if *blobDir != "" {
		cfg.Clients = append(cfg.Clients, component.ClientConfig{
			Protocol: restlet.BLOB.Name,
			Parameters: map[string]interface{}{
				"buckets": map[string]string{mirrorBucket: *blobDir},
			},
		})
	}
	if *db != "" {
		params := map[string]interface{}{
			"databases": map[string]string{"main": *db},
		}
		if *migrations != "" {
			params["migrations"] = map[string]string{"main": *migrations}
		}
		cfg.Clients = append(cfg.Clients, component.ClientConfig{
			Protocol:   restlet.SQL.Name,
			Parameters: params,
		})
	}
	cfg.LogRequests = cfg.LogRequests || *logRequests

	c := component.New(nil)
	if err := c.Configure(cfg); err != nil {
		logrus.WithFields(logrus.Fields{
			"err": err,
		}).Fatal("Invalid component configuration")
		return
	}

	mirror := ""
	if *blobDir != "" {
		mirror = mirrorBucket
	}
	bookmarks := NewBookmarks(c.Context, mirror)
	app, err := component.NewApplication(c.Context, "bookmarks", bookmarks.Router(), cfg.Services(prometheus.DefaultRegisterer))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"err": err,
		}).Fatal("Could not create application")
		return
	}
	c.DefaultHost.MustAttach("", app)
	for _, h := range c.Hosts() {
		h.MustAttach("", app)
	}
	c.Internal.MustAttach("", app)
	if *db != "" {
		if err := attachQuery(c, "main"); err != nil {
			logrus.WithError(err).Fatal("Could not attach query redirector")
			return
		}
	}
	go observe(bookmarks, c.Context.Time())

	if *debugBind != "" {
		go serveDebug(*debugBind)
	}

	if err := c.Start(); err != nil {
		logrus.WithFields(logrus.Fields{
			"err": err,
		}).Fatal("Could not start component")
		return
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	sig := <-signals
	logrus.WithField("signal", sig).Info("Shutting down")
	if err := c.Stop(); err != nil {
		logrus.WithError(err).Error("Component did not stop cleanly")
	}
}

// mirrorBucket is the blob bucket bookmarks are mirrored into.
const mirrorBucket = "bookmarks"

func bindingConfig(b connector.Binding) component.ServerConfig {
	return component.ServerConfig{Protocol: b.Protocol.Scheme, Address: b.Address}
}

// withClients adds clients for protocols the configuration does not
// already name.
func withClients(clients []component.ClientConfig, protocols ...restlet.Protocol) []component.ClientConfig {
	for _, p := range protocols {
		found := false
		for _, cc := range clients {
			if q, ok := restlet.LookupProtocol(cc.Protocol); ok && q.Equals(p) {
				found = true
				break
			}
		}
		if !found {
			clients = append(clients, component.ClientConfig{Protocol: p.Name})
		}
	}
	return clients
}
