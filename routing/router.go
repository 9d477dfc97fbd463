// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package routing selects and chains handlers: filters with before
// and after hooks, routers that score their routes against each
// call, and redirectors.
package routing

import (
	"math/rand"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/diffeo/go-restlet/restlet"
	"github.com/diffeo/go-restlet/template"
	"github.com/sirupsen/logrus"
)

// Mode is a router's route selection policy.
type Mode int

const (
	// ModeBest picks the highest-scoring route, the earliest
	// attached winning ties.
	ModeBest Mode = iota + 1
	// ModeFirst picks the first route reaching the required score.
	ModeFirst
	// ModeLast picks the last route reaching the required score.
	ModeLast
	// ModeNext picks routes round-robin, starting after the
	// previously selected one.
	ModeNext
	// ModeRandom starts the round-robin at a random route.
	ModeRandom
	// ModeCustom calls the router's Custom function.
	ModeCustom
)

var modeNames = map[Mode]string{
	ModeBest:   "best",
	ModeFirst:  "first",
	ModeLast:   "last",
	ModeNext:   "next",
	ModeRandom: "random",
	ModeCustom: "custom",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParseMode returns the mode with a name as printed by String.
func ParseMode(name string) (Mode, bool) {
	for m, n := range modeNames {
		if n == name {
			return m, true
		}
	}
	return 0, false
}

// PrefixHandler is implemented by handlers that expect to see only
// the first part of a reference and route the rest themselves.
// Routes to them match with template.StartsWith.
type PrefixHandler interface {
	MatchesPrefix() bool
}

// Router dispatches each call to one of its routes.  Exported fields
// are configuration, to be set before calls start flowing; routes can
// be attached and detached at any time.
type Router struct {
	Context *restlet.Context

	// Mode is the route selection policy.
	Mode Mode

	// DefaultMatchingMode applies to attached targets that are not
	// routers or other prefix handlers.
	DefaultMatchingMode template.Mode

	// DefaultMatchingQuery includes the query in template matching.
	DefaultMatchingQuery bool

	// DefaultVariable describes template variables that routes do
	// not describe themselves.
	DefaultVariable template.Variable

	// RequiredScore is the minimum score of a selected route.
	RequiredScore float64

	// MaxAttempts is how many times to look for a route before
	// giving up.
	MaxAttempts int

	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration

	// Custom selects a route in ModeCustom.
	Custom func(routes []Route, req *restlet.Request, resp *restlet.Response) Route

	routes       RouteList
	defaultRoute atomic.Value
	lastIndex    uint32

	randomLock sync.Mutex
	random     *rand.Rand
}

// NewRouter creates a router with the default settings: best-score
// selection, Equals matching of plain handlers, a required score of
// 0.5, one attempt, and URI segment variables.
func NewRouter(ctx *restlet.Context) *Router {
	return &Router{
		Context:             ctx,
		Mode:                ModeBest,
		DefaultMatchingMode: template.Equals,
		DefaultVariable:     template.NewVariable(template.TypeURISegment),
		RequiredScore:       DefaultRequiredScore,
		MaxAttempts:         1,
		RetryDelay:          500 * time.Millisecond,
		random:              rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// MatchesPrefix is always true: the router routes the remainder of
// the reference.
func (r *Router) MatchesPrefix() bool {
	return true
}

// Wrapper is implemented by handlers, such as filters, that pass
// calls on to one next handler.
type Wrapper interface {
	Next() restlet.Handler
}

// matchingMode infers how a route to target should match: prefix
// handlers match with StartsWith, wrappers match like whatever they
// wrap, and everything else uses the default.
func (r *Router) matchingMode(target restlet.Handler) template.Mode {
	switch t := target.(type) {
	case PrefixHandler:
		if t.MatchesPrefix() {
			return template.StartsWith
		}
	case Wrapper:
		return r.matchingMode(t.Next())
	}
	if r.DefaultMatchingMode == 0 {
		return template.Equals
	}
	return r.DefaultMatchingMode
}

// Attach adds a route from a URI template to a target.  The pattern
// is compiled here, so malformed templates fail at once.
func (r *Router) Attach(pattern string, target restlet.Handler, opts ...RouteOption) (*TemplateRoute, error) {
	route, err := NewTemplateRoute(r, pattern, target, opts...)
	if err != nil {
		r.Context.Log().WithError(err).WithField("pattern", pattern).Error("Cannot attach route")
		return nil, err
	}
	r.routes.Add(route)
	return route, nil
}

// MustAttach is Attach panicking on error, for static wiring.
func (r *Router) MustAttach(pattern string, target restlet.Handler, opts ...RouteOption) *TemplateRoute {
	route, err := r.Attach(pattern, target, opts...)
	if err != nil {
		panic(err)
	}
	return route
}

// AttachDefault sets the route used when no other route reaches the
// required score.  It matches any prefix.
func (r *Router) AttachDefault(target restlet.Handler) *TemplateRoute {
	route, err := NewTemplateRoute(r, "", target, MatchMode(template.StartsWith))
	if err != nil {
		// an empty pattern always compiles
		panic(err)
	}
	r.SetDefaultRoute(route)
	return route
}

// SetDefaultRoute sets or, with nil, clears the default route.
func (r *Router) SetDefaultRoute(route Route) {
	r.defaultRoute.Store(routeBox{route})
}

// DefaultRoute returns the default route, or nil.
func (r *Router) DefaultRoute() Route {
	box, _ := r.defaultRoute.Load().(routeBox)
	return box.route
}

type routeBox struct {
	route Route
}

// AddRoute appends an arbitrary route.
func (r *Router) AddRoute(route Route) {
	r.routes.Add(route)
}

// Routes returns a snapshot of the attached routes.
func (r *Router) Routes() []Route {
	return r.routes.Snapshot()
}

// Detach removes every route to target and returns how many there
// were.
func (r *Router) Detach(target restlet.Handler) int {
	return r.routes.RemoveIf(func(route Route) bool {
		return same(route.Next(), target)
	})
}

// DetachRoute removes one route.
func (r *Router) DetachRoute(route Route) bool {
	return r.routes.RemoveIf(func(other Route) bool {
		return same(other, route)
	}) > 0
}

// same compares two values for identity without panicking on
// uncomparable types such as HandlerFunc.
func same(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	if ta.Kind() == reflect.Func {
		return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
	}
	return false
}

// Next selects the route for a call, or returns nil.
func (r *Router) Next(req *restlet.Request, resp *restlet.Response) Route {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var result Route
	for attempt := 0; result == nil && attempt < attempts; attempt++ {
		if attempt > 0 {
			r.Context.Time().Sleep(r.RetryDelay)
		}
		result = r.selectRoute(r.routes.Snapshot(), req, resp)
	}
	if result == nil {
		if def := r.DefaultRoute(); def != nil && def.Score(req, resp) >= r.RequiredScore {
			result = def
		}
	}
	return result
}

func (r *Router) selectRoute(routes []Route, req *restlet.Request, resp *restlet.Response) Route {
	if len(routes) == 0 {
		return nil
	}
	switch r.Mode {
	case ModeFirst:
		for _, route := range routes {
			if route.Score(req, resp) >= r.RequiredScore {
				return route
			}
		}
		return nil
	case ModeLast:
		for i := len(routes) - 1; i >= 0; i-- {
			if routes[i].Score(req, resp) >= r.RequiredScore {
				return routes[i]
			}
		}
		return nil
	case ModeNext:
		start := int((atomic.AddUint32(&r.lastIndex, 1) - 1) % uint32(len(routes)))
		return r.roundRobin(routes, start, req, resp)
	case ModeRandom:
		r.randomLock.Lock()
		start := r.random.Intn(len(routes))
		r.randomLock.Unlock()
		return r.roundRobin(routes, start, req, resp)
	case ModeCustom:
		if r.Custom != nil {
			return r.Custom(routes, req, resp)
		}
	}
	return r.best(routes, req, resp)
}

// best keeps a running maximum; only a strictly greater score
// replaces it, so the earliest of equal routes wins.
func (r *Router) best(routes []Route, req *restlet.Request, resp *restlet.Response) Route {
	var result Route
	bestScore := 0.0
	for _, route := range routes {
		score := route.Score(req, resp)
		if score > bestScore && score >= r.RequiredScore {
			result = route
			bestScore = score
		}
	}
	return result
}

func (r *Router) roundRobin(routes []Route, start int, req *restlet.Request, resp *restlet.Response) Route {
	for i := range routes {
		route := routes[(start+i)%len(routes)]
		if route.Score(req, resp) >= r.RequiredScore {
			return route
		}
	}
	return nil
}

// Handle forwards the call to the selected route, or answers 404 Not
// Found.
func (r *Router) Handle(req *restlet.Request, resp *restlet.Response) {
	route := r.Next(req, resp)
	if route == nil {
		r.Context.Log().WithFields(logrus.Fields{
			"method":    req.Method,
			"reference": req.ResourceRef.String(),
		}).Debug("No route matched")
		resp.SetStatus(restlet.StatusNotFound)
		return
	}
	route.Handle(req, resp)
}

// Start starts every route target that has a lifecycle.
func (r *Router) Start() error {
	for _, route := range r.routes.Snapshot() {
		if err := restlet.Start(route.Next()); err != nil {
			return err
		}
	}
	if def := r.DefaultRoute(); def != nil {
		return restlet.Start(def.Next())
	}
	return nil
}

// Stop stops every route target that has a lifecycle, in reverse
// order.
func (r *Router) Stop() error {
	var firstErr error
	if def := r.DefaultRoute(); def != nil {
		firstErr = restlet.Stop(def.Next())
	}
	routes := r.routes.Snapshot()
	for i := len(routes) - 1; i >= 0; i-- {
		if err := restlet.Stop(routes[i].Next()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
