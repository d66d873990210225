package middleware

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/broady/mxapi/server"
)

// RateLimiter is a server.Limiter holding one token bucket per caller.
// Callers are told apart by authenticated user, then by remote address.
// Access tokens are never used as keys on their own: an unauthenticated
// token costs the caller nothing to replace.
//
// Buckets left unused for longer than it takes them to refill completely
// (and at least IdleTimeout) are dropped, since a fresh bucket is
// indistinguishable from a full one.
type RateLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	key   func(*server.Context) string
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IdleTimeout is the shortest time a bucket is kept after its last use.
const IdleTimeout = time.Minute

var _ server.Limiter = (*RateLimiter)(nil)

// NewRateLimiter allows each caller burst requests at once, refilled at
// limit per second.
func NewRateLimiter(limit rate.Limit, burst int) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		burst:   burst,
		idle:    idleTimeout(limit, burst),
		key:     callerKey,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// idleTimeout is how long a bucket takes to refill from empty, but no less
// than IdleTimeout. A bucket that never refills is never dropped.
func idleTimeout(limit rate.Limit, burst int) time.Duration {
	switch {
	case limit == rate.Inf:
		return IdleTimeout
	case limit <= 0:
		return 0
	}
	return max(time.Duration(float64(burst)/float64(limit)*float64(time.Second)), IdleTimeout)
}

// WithKey replaces how callers are told apart.
func (l *RateLimiter) WithKey(key func(*server.Context) string) *RateLimiter {
	l.key = key
	return l
}

// Allow implements server.Limiter.
func (l *RateLimiter) Allow(ctx *server.Context) (time.Duration, bool) {
	key := l.key(ctx)
	now := l.now()

	l.mu.Lock()
	l.sweep(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return time.Second, false
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return delay, false
	}
	return 0, true
}

// sweep drops idle buckets, at most once per idle period. l.mu must be held.
func (l *RateLimiter) sweep(now time.Time) {
	if l.idle <= 0 || now.Sub(l.lastSweep) < l.idle {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.idle {
			delete(l.buckets, key)
		}
	}
}

func callerKey(ctx *server.Context) string {
	if user := ctx.UserID(); !user.IsZero() {
		return "user:" + user.String()
	}
	if r := ctx.HTTPRequest(); r != nil {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		return "addr:" + host
	}
	return ""
}
