// Copyright 2015-2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package main

import (
	"net/http"
	"net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// debugRouter serves /metrics and the pprof handlers.
func debugRouter() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	d := r.PathPrefix("/debug/pprof").Subrouter()
	d.HandleFunc("/cmdline", pprof.Cmdline)
	d.HandleFunc("/profile", pprof.Profile)
	d.HandleFunc("/symbol", pprof.Symbol)
	d.HandleFunc("/trace", pprof.Trace)
	d.PathPrefix("/").HandlerFunc(pprof.Index)
	return r
}

// serveDebug runs the debug HTTP server on the specified local
// address.  This serves connections forever, and probably wants to be
// run in a goroutine.
func serveDebug(laddr string) {
	err := http.ListenAndServe(laddr, debugRouter())
	logrus.WithFields(logrus.Fields{
		"err":  err,
		"addr": laddr,
	}).Error("Debug server stopped")
}

type noProfile struct{}

func (noProfile) Stop() {}

// startProfile starts a pkg/profile session in the current directory,
// or does nothing for an empty or unknown mode.
func startProfile(mode string) interface {
	Stop()
} {
	var opt func(*profile.Profile)
	switch mode {
	case "cpu":
		opt = profile.CPUProfile
	case "mem":
		opt = profile.MemProfile
	case "mutex":
		opt = profile.MutexProfile
	case "block":
		opt = profile.BlockProfile
	case "":
		return noProfile{}
	default:
		logrus.WithField("mode", mode).Warn("Unknown profiling mode")
		return noProfile{}
	}
	return profile.Start(opt, profile.ProfilePath("."), profile.NoShutdownHook)
}
