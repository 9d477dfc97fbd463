// Copyright 2015-2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package main

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
)

var bookmarkCount = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "diffeo",
		Subsystem: "restletd",
		Name:      "bookmarks",
		Help:      "Number of bookmarks held in memory",
	},
)

func init() {
	prometheus.MustRegister(bookmarkCount)
}

// observe updates the bookmark gauge every few seconds, forever.
func observe(bookmarks *Bookmarks, clk clock.Clock) {
	ticker := clk.Ticker(5 * time.Second)
	defer ticker.Stop()
	for {
		bookmarkCount.Set(float64(bookmarks.Count()))
		<-ticker.C
	}
}
