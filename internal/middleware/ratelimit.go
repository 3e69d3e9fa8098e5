package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sakif/task-manager/internal/apperror"
)

// RateLimiter throttles requests per client IP with a token bucket per
// address. It guards the unauthenticated credential endpoints.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	limit    rate.Limit
	burst    int
	now      func() time.Time
	writeErr func(w http.ResponseWriter, err error)
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// idleAfter is how long an address may stay quiet before its bucket is
// dropped.
const idleAfter = 10 * time.Minute

// NewRateLimiter allows perMinute requests per minute per IP, with bursts
// of up to perMinute. perMinute <= 0 disables limiting. Rejections are
// written with writeErr so they share the API's error body.
func NewRateLimiter(perMinute int, writeErr func(w http.ResponseWriter, err error)) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*visitor),
		limit:    rate.Inf,
		burst:    0,
		now:      time.Now,
		writeErr: writeErr,
	}
	if perMinute > 0 {
		rl.limit = rate.Limit(float64(perMinute) / 60)
		rl.burst = perMinute
	}
	return rl
}

// Allow reports whether a request from ip may proceed now.
func (rl *RateLimiter) Allow(ip string) bool {
	if rl.limit == rate.Inf {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.limiters[ip]
	if !ok {
		rl.evictIdle(now)
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// evictIdle drops buckets unused for idleAfter. Callers hold mu.
func (rl *RateLimiter) evictIdle(now time.Time) {
	for ip, v := range rl.limiters {
		if now.Sub(v.lastSeen) > idleAfter {
			delete(rl.limiters, ip)
		}
	}
}

// Middleware rejects with apperror.RateLimited (429) once the client's
// bucket is empty. It keys on r.RemoteAddr, which chi's RealIP middleware
// has already rewritten when the server runs behind a proxy.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			rl.writeErr(w, apperror.RateLimited("too many requests, try again later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
