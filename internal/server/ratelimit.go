package server

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ragstack/ragserve/internal/logging"
)

const (
	// defaultRateLimit is the sustained requests/second allowed per client
	// IP when no explicit limit is configured.
	defaultRateLimit = 10

	// defaultRateBurst is the per-IP burst capacity when no explicit burst
	// is configured. Room for short spikes without immediate 429s.
	defaultRateBurst = 20

	// bucketIdleTTL is how long an IP's bucket survives without traffic
	// before the sweeper drops it.
	bucketIdleTTL = 5 * time.Minute

	// sweepInterval is how often idle buckets are collected.
	sweepInterval = time.Minute
)

// bucket pairs a client IP's token bucket with its last activity, which the
// sweeper uses to bound the map.
type bucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a per-IP token-bucket limit on the API routes. The
// bucket map grows with distinct client IPs and is swept periodically so an
// IP scan cannot grow it without bound.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	rps   rate.Limit
	burst int
	log   *slog.Logger
}

// newRateLimiter constructs a rateLimiter and starts its background sweeper.
// The returned stop function terminates the sweeper goroutine.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		log:     log,
	}

	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				rl.sweep()
			}
		}
	}()

	return rl, func() { close(stopCh) }
}

// allow reports whether a request from ip may proceed, creating the IP's
// bucket on first sight.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{tokens: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	rl.mu.Unlock()

	return b.tokens.Allow()
}

// sweep drops buckets idle for longer than bucketIdleTTL.
func (rl *rateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-bucketIdleTTL)
	evicted := 0
	for ip, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, ip)
			evicted++
		}
	}
	if evicted > 0 {
		rl.log.Debug("rate limiter swept idle buckets", "evicted", evicted)
	}
}

// middleware rejects over-limit requests with 429 and a Retry-After header
// before they reach next.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.allow(ip) {
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the remote IP from the request, stripping the port.
// X-Forwarded-For is deliberately ignored — it is client-controlled unless a
// trusted proxy sits in front.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	// Not canonical host:port; drop whatever follows the last colon.
	if i := strings.LastIndexByte(r.RemoteAddr, ':'); i >= 0 {
		return r.RemoteAddr[:i]
	}
	return r.RemoteAddr
}
