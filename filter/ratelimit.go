// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package filter

import (
	"math"
	"sync"
	"time"

	"github.com/diffeo/go-restlet/restlet"
	"github.com/diffeo/go-restlet/routing"
	"github.com/sirupsen/logrus"
)

// RateLimit gives each client address a token bucket.  A call that
// finds its bucket empty is answered 429 Too Many Requests with a
// Retry-After of the time until the next token.
type RateLimit struct {
	Context *restlet.Context

	// Rate is the number of calls per second refilled.
	Rate float64
	// Burst is the bucket size.
	Burst int
	// Idle is how long an unused bucket is kept.
	Idle time.Duration

	lock      sync.Mutex
	buckets   map[string]*bucket
	lastPrune time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewRateLimit creates a rate-limiting filter.
func NewRateLimit(ctx *restlet.Context, rate float64, burst int, next restlet.Handler) *routing.Filter {
	return routing.NewFilter(ctx, NewRateLimitHooks(ctx, rate, burst), next)
}

// NewRateLimitHooks creates the hooks alone, so callers can inspect
// them.
func NewRateLimitHooks(ctx *restlet.Context, rate float64, burst int) *RateLimit {
	if burst < 1 {
		burst = 1
	}
	return &RateLimit{
		Context: ctx,
		Rate:    rate,
		Burst:   burst,
		Idle:    10 * time.Minute,
		buckets: make(map[string]*bucket),
	}
}

// Allow takes a token for key.  If none is available it returns
// false and the wait until one will be.
func (r *RateLimit) Allow(key string) (bool, time.Duration) {
	now := r.Context.Time().Now()
	r.lock.Lock()
	defer r.lock.Unlock()

	r.prune(now)
	b := r.buckets[key]
	if b == nil {
		b = &bucket{tokens: float64(r.Burst), last: now}
		r.buckets[key] = b
	}
	if elapsed := now.Sub(b.last); elapsed > 0 {
		b.tokens = math.Min(float64(r.Burst), b.tokens+elapsed.Seconds()*r.Rate)
		b.last = now
	}
	if b.tokens >= 1.0 {
		b.tokens--
		return true, 0
	}
	if r.Rate <= 0 {
		return false, r.Idle
	}
	wait := time.Duration((1.0 - b.tokens) / r.Rate * float64(time.Second))
	return false, wait
}

// prune drops idle buckets, at most once per Idle period.  The lock
// must be held.
func (r *RateLimit) prune(now time.Time) {
	if now.Sub(r.lastPrune) < r.Idle {
		return
	}
	r.lastPrune = now
	for key, b := range r.buckets {
		if now.Sub(b.last) >= r.Idle {
			delete(r.buckets, key)
		}
	}
}

// Len returns the number of buckets currently tracked.
func (r *RateLimit) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.buckets)
}

// BeforeHandle stops calls over the limit.
func (r *RateLimit) BeforeHandle(req *restlet.Request, resp *restlet.Response) routing.Action {
	ok, wait := r.Allow(req.ClientInfo.Address)
	if ok {
		return routing.Continue
	}
	r.Context.Log().WithFields(logrus.Fields{
		"client": req.ClientInfo.Address,
		"wait":   wait,
	}).Debug("Rate limited")
	resp.SetStatus(restlet.StatusTooManyRequests)
	resp.RetryAfter = wait
	return routing.Stop
}

// AfterHandle does nothing.
func (r *RateLimit) AfterHandle(req *restlet.Request, resp *restlet.Response) {}
