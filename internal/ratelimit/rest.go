// Package ratelimit implements the broker's two independent limiters
// (spec 4.E): the REST per-IP limiter and the chat per-connection sliding
// window. There is no webhook limiter.
package ratelimit

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// RESTLimiter is a per-remote-address token bucket across /api/*: a burst
// of 100 requests, refilled at 100 per 15 minutes. It is not a strict
// sliding window: a full bucket plus the refill during the same span can
// admit more than 100 requests within one 15-minute period. Adapted from
// the teacher's per-user token bucket but rekeyed by IP since the REST
// limit is address-scoped, not account-scoped.
type RESTLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	r        rate.Limit
	burst    int
}

// NewRESTLimiter builds a limiter allowing requestsPerWindow requests per
// window (e.g. 100 requests per 15 minutes).
func NewRESTLimiter(requestsPerWindow int, window float64) *RESTLimiter {
	return &RESTLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(float64(requestsPerWindow) / window),
		burst:    requestsPerWindow,
	}
}

func (rl *RESTLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()
	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if limiter, exists = rl.limiters[key]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(rl.r, rl.burst)
	rl.limiters[key] = limiter
	return limiter
}

// Allow reports whether the given remote address may proceed.
func (rl *RESTLimiter) Allow(remoteAddr string) bool {
	return rl.getLimiter(clientIP(remoteAddr)).Allow()
}

// Middleware rate limits every request under /api/* by remote address,
// responding 429 on overflow.
func (rl *RESTLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(r.RemoteAddr) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded, please try again later"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Cleanup evicts limiters sitting at full burst (idle since last refill),
// bounding memory for long-lived processes. Passive TTL eviction: called
// periodically, never by a per-request scheduled task.
func (rl *RESTLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, limiter := range rl.limiters {
		if limiter.Tokens() >= float64(rl.burst) {
			delete(rl.limiters, key)
		}
	}
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
