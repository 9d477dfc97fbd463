// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package routing

import (
	"sync"
	"sync/atomic"
)

// RouteList is a copy-on-write list of routes.  Readers take a
// snapshot without locking and never see a partially modified list;
// writers serialize among themselves and publish a new slice.
type RouteList struct {
	lock   sync.Mutex
	routes atomic.Value
}

// Snapshot returns the current routes.  The slice must not be
// modified.
func (l *RouteList) Snapshot() []Route {
	routes, _ := l.routes.Load().([]Route)
	return routes
}

// Len returns the number of routes.
func (l *RouteList) Len() int {
	return len(l.Snapshot())
}

// Add appends a route.
func (l *RouteList) Add(route Route) {
	l.lock.Lock()
	defer l.lock.Unlock()
	old := l.Snapshot()
	routes := make([]Route, len(old), len(old)+1)
	copy(routes, old)
	l.routes.Store(append(routes, route))
}

// Insert puts a route at a position, clamped to the list bounds.
func (l *RouteList) Insert(index int, route Route) {
	l.lock.Lock()
	defer l.lock.Unlock()
	old := l.Snapshot()
	if index < 0 {
		index = 0
	}
	if index > len(old) {
		index = len(old)
	}
	routes := make([]Route, 0, len(old)+1)
	routes = append(routes, old[:index]...)
	routes = append(routes, route)
	routes = append(routes, old[index:]...)
	l.routes.Store(routes)
}

// RemoveIf drops every route for which drop returns true, and
// returns how many were dropped.
func (l *RouteList) RemoveIf(drop func(Route) bool) int {
	l.lock.Lock()
	defer l.lock.Unlock()
	old := l.Snapshot()
	routes := make([]Route, 0, len(old))
	for _, route := range old {
		if !drop(route) {
			routes = append(routes, route)
		}
	}
	if len(routes) != len(old) {
		l.routes.Store(routes)
	}
	return len(old) - len(routes)
}

// Clear removes every route.
func (l *RouteList) Clear() {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.routes.Store([]Route(nil))
}
