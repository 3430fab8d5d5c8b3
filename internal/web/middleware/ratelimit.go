package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/JonMunkholm/equipstat/internal/core"
	"github.com/JonMunkholm/equipstat/internal/metrics"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(*http.Request) string

// KeyByIP charges requests to the client address. Run TrustedRealIP first so
// RemoteAddr reflects the real client behind trusted proxies.
func KeyByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// KeyByOwner charges requests to the authenticated owner, falling back to
// the client address.
func KeyByOwner(r *http.Request) string {
	if owner, ok := core.OwnerFromContext(r.Context()); ok {
		return "owner:" + owner
	}
	return KeyByIP(r)
}

// RateLimiter is a per-client token bucket limiter.
type RateLimiter struct {
	scope string
	limit rate.Limit
	burst int
	key   KeyFunc
	clock clockwork.Clock

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	idleAfter time.Duration
	lastPrune time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter granting limit requests per second with
// the given burst to each key. scope labels the rejection metric.
func NewRateLimiter(scope string, limit rate.Limit, burst int, key KeyFunc, clock clockwork.Clock) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	if key == nil {
		key = KeyByIP
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RateLimiter{
		scope:     scope,
		limit:     limit,
		burst:     burst,
		key:       key,
		clock:     clock,
		clients:   make(map[string]*clientLimiter),
		idleAfter: 10 * time.Minute,
		lastPrune: clock.Now(),
	}
}

// Allow consumes a token for key. When the bucket is empty it returns false
// and how long until the next token.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.pruneLocked(now)

	c, ok := rl.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = now

	res := c.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Minute
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Clients returns the number of tracked keys.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// pruneLocked drops idle clients at most once per idle period.
func (rl *RateLimiter) pruneLocked(now time.Time) {
	if now.Sub(rl.lastPrune) < rl.idleAfter {
		return
	}
	for k, c := range rl.clients {
		if now.Sub(c.lastSeen) > rl.idleAfter {
			delete(rl.clients, k)
		}
	}
	rl.lastPrune = now
}

// Handler rejects requests over the limit with 429 and a Retry-After header.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retry := rl.Allow(rl.key(r))
		if !ok {
			metrics.RateLimited.WithLabelValues(rl.scope).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded", "RATE001")
			return
		}
		next.ServeHTTP(w, r)
	})
}
