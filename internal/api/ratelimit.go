package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/plantia/plantia/internal/log"
)

// Every allowed question can fan out into retrieval plus model generation,
// so the API meters per client: each gets a token bucket with burst tokens
// up front, refilled continuously. Idle buckets are swept during allow
// calls; a background goroutine would outlive test servers for no benefit
// at this scale.
const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdleEvict  = 10 * time.Minute
)

// clientLimiter hands out one token bucket per client key.
type clientLimiter struct {
	perSecond rate.Limit
	burst     int

	mu        sync.Mutex
	buckets   map[string]*bucket
	nextSweep time.Time
}

type bucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	return &clientLimiter{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		buckets:   make(map[string]*bucket),
		nextSweep: time.Now().Add(limiterSweepEvery),
	}
}

// allow consumes one token from the client's bucket, creating the bucket on
// first sight.
func (cl *clientLimiter) allow(key string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := time.Now()
	if now.After(cl.nextSweep) {
		for k, b := range cl.buckets {
			if now.Sub(b.lastSeen) > limiterIdleEvict {
				delete(cl.buckets, k)
			}
		}
		cl.nextSweep = now.Add(limiterSweepEvery)
	}

	b, ok := cl.buckets[key]
	if !ok {
		b = &bucket{tokens: rate.NewLimiter(cl.perSecond, cl.burst)}
		cl.buckets[key] = b
	}
	b.lastSeen = now
	return b.tokens.Allow()
}

// rateLimitMiddleware rejects clients that run out of tokens with 429 and a
// Retry-After hint matching the refill rate.
func rateLimitMiddleware(lim *clientLimiter, trustProxy bool, logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := requestIP(r, trustProxy)
			if !lim.allow(ip) {
				logger.Warn("rate limit exceeded",
					"ip", ip,
					"method", r.Method,
					"path", r.URL.Path,
				)
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestIP resolves the client address used as the limiter key.
//
// Behind a trusted reverse proxy, X-Real-IP and then the first entry of
// X-Forwarded-For carry the real client; both are parsed strictly so a
// crafted header cannot smuggle arbitrary strings into the bucket map.
// Exposed directly, only the connection's remote address counts.
func requestIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, header := range []string{"X-Real-IP", "X-Forwarded-For"} {
			value := r.Header.Get(header)
			if value == "" {
				continue
			}
			first, _, _ := strings.Cut(value, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
