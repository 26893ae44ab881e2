// Package ratelimit implements Talemon's per-domain scheduler admission
// control (spec §4.2 step 3, §9): a process-local limiter keyed by
// page.domain, modeled as a standalone component with inputs
// (domain, now) and outputs (admit/reject) so its storage can later be
// swapped for something shared without touching the scheduler's call
// site (spec §9 design note).
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter admits or rejects candidates per domain using a token-bucket
// policy: N requests per domain per window, refilled continuously.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*rate.Limiter
	perWindow int
	window    time.Duration
}

// New returns a Limiter allowing requestsPerWindow admissions per domain
// per window, refilled continuously (a domain that used its whole budget
// one second ago has a fraction of it back already, rather than waiting
// for a hard window boundary).
func New(requestsPerWindow int, window time.Duration) *Limiter {
	return &Limiter{
		buckets:   make(map[string]*rate.Limiter),
		perWindow: requestsPerWindow,
		window:    window,
	}
}

// Admit reports whether a candidate for domain may be dispatched now. It
// never blocks: an over-budget domain is simply rejected for this tick
// and reconsidered on the next (spec §4.2 step 3).
func (l *Limiter) Admit(domain string) bool {
	return l.bucketFor(domain).Allow()
}

func (l *Limiter) bucketFor(domain string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[domain]
	if !ok {
		r := rate.Limit(float64(l.perWindow) / l.window.Seconds())
		b = rate.NewLimiter(r, l.perWindow)
		l.buckets[domain] = b
	}
	return b
}
