// Package ratelimit implements a token-bucket rate limiter keyed by
// client IP, used to bound traffic to the /render endpoint.
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config configures the per-IP quota.
type Config struct {
	// Limit is the number of requests permitted per Window.
	Limit int
	// Window is the period over which Limit requests are permitted.
	Window time.Duration
}

type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Limiter tracks one token bucket per client IP.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	r       rate.Limit
	burst   int
	maxIdle time.Duration
}

// New builds a Limiter that permits cfg.Limit requests per cfg.Window per
// client IP, replenishing continuously at the equivalent rate.
func New(cfg Config) *Limiter {
	limit := cfg.Limit
	if limit <= 0 {
		limit = 100
	}
	window := cfg.Window
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &Limiter{
		entries: make(map[string]*entry),
		r:       rate.Every(window / time.Duration(limit)),
		burst:   limit,
		maxIdle: window * 2,
	}
}

// Allow reports whether a request from clientIP may proceed.
func (l *Limiter) Allow(clientIP string) bool {
	l.mu.Lock()
	e, ok := l.entries[clientIP]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.r, l.burst)}
		l.entries[clientIP] = e
	}
	e.lastAccess = time.Now()
	l.mu.Unlock()

	return e.limiter.Allow()
}

// Prune removes entries untouched for longer than twice the configured window,
// bounding memory growth under a shifting population of client IPs.
func (l *Limiter) Prune() {
	cutoff := time.Now().Add(-l.maxIdle)
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, e := range l.entries {
		if e.lastAccess.Before(cutoff) {
			delete(l.entries, ip)
		}
	}
}

// ClientIP extracts the request's client IP, preferring the address chi's
// RemoteAddr carries after stripping any port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
